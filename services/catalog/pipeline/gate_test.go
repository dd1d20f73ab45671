// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/tokens"
)

// =============================================================================
// parseGateResponse Tests
// =============================================================================

func TestParseGateResponse_Variants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want datatypes.Verdict
	}{
		{"plain yes", "yes", datatypes.VerdictYes},
		{"capitalized", "Yes.", datatypes.VerdictYes},
		{"quoted", `"YES"`, datatypes.VerdictYes},
		{"single quoted no", "'no'", datatypes.VerdictNo},
		{"yes with explanation on next line", "yes\nbecause the table matches", datatypes.VerdictYes},
		{"no on first line only", "no\nyes yes yes", datatypes.VerdictNo},
		{"yes wins over no", "yes, although not all terms match", datatypes.VerdictYes},
		{"unrelated text", "maybe", datatypes.VerdictUnknown},
		{"empty", "", datatypes.VerdictUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseGateResponse(tc.raw)
			assert.Equal(t, tc.want, got.Verdict)
			assert.Equal(t, tc.raw, got.Rationale)
		})
	}
}

// =============================================================================
// Classify Tests
// =============================================================================

func TestClassify_LLMFailureYieldsUnknown(t *testing.T) {
	mock := &mockLLM{responses: []mockLLMResponse{{err: errors.New("gate backend down")}}}
	gate := NewResultGate(mock)

	decision := gate.Classify(context.Background(), nil, "question", tokens.NewLedger())

	assert.Equal(t, datatypes.VerdictUnknown, decision.Verdict)
	assert.Contains(t, decision.Rationale, "gate backend down")
}

func TestClassify_RendersNumberedDocuments(t *testing.T) {
	mock := &mockLLM{responses: []mockLLMResponse{{text: "yes"}}}
	gate := NewResultGate(mock)
	docs := datatypes.Number([]datatypes.RetrievalResult{
		{Content: "employees table definition", Source: datatypes.SourceVector},
		{Content: "employees feeds employees_history", Source: datatypes.SourceGraph},
	})

	decision := gate.Classify(context.Background(), docs, "what is employees?", tokens.NewLedger())

	assert.Equal(t, datatypes.VerdictYes, decision.Verdict)
	require.Len(t, mock.prompts, 1)
	assert.Contains(t, mock.prompts[0], "Doc#1 [vector]")
	assert.Contains(t, mock.prompts[0], "Doc#2 [graph]")
}

func TestClassify_RecordsTokenUsage(t *testing.T) {
	mock := &mockLLM{responses: []mockLLMResponse{{text: "no"}}}
	gate := NewResultGate(mock)
	ledger := tokens.NewLedger()

	decision := gate.Classify(context.Background(), nil, "question", ledger)

	assert.Equal(t, datatypes.VerdictNo, decision.Verdict)
	require.Len(t, ledger.Records(), 1)
	assert.Equal(t, datatypes.SourceSystem, ledger.Records()[0].Source)
}

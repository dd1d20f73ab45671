// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber_AssignsStableOneBasedIndices(t *testing.T) {
	docs := Number([]RetrievalResult{
		{Content: "a", Source: SourceVector},
		{Content: "b", Source: SourceGraph},
		{Content: "c", Source: SourceRelational},
	})

	require.Len(t, docs, 3)
	for i, d := range docs {
		assert.Equal(t, i+1, d.Index)
	}
	assert.Equal(t, "a", docs[0].Content)
}

func TestNumber_Empty(t *testing.T) {
	assert.Empty(t, Number(nil))
}

func TestIntentMapTerms_DeterministicOrder(t *testing.T) {
	m := IntentMap{"item2": "salary", "item1": "employees", "item3": "departments"}

	// Key order, not value order, and stable across calls.
	want := []string{"employees", "salary", "departments"}
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, m.Terms())
	}
}

func TestIntentMapTerms_SkipsEmptyValues(t *testing.T) {
	m := IntentMap{"item1": "employees", "item2": ""}
	assert.Equal(t, []string{"employees"}, m.Terms())
}

func TestIntentMapTerms_Empty(t *testing.T) {
	assert.Nil(t, IntentMap{}.Terms())
}

func TestNewErrorResult(t *testing.T) {
	res := NewErrorResult(SourceRelational, errors.New("agent exhausted"))

	assert.Equal(t, SourceRelational, res.Source)
	assert.Equal(t, ErrorScore, res.Score)
	assert.Contains(t, res.Content, "relational")
	assert.Contains(t, res.Content, "agent exhausted")
}

func TestGateDecision_ShouldGenerateReport(t *testing.T) {
	assert.True(t, GateDecision{Verdict: VerdictYes}.ShouldGenerateReport())
	assert.False(t, GateDecision{Verdict: VerdictNo}.ShouldGenerateReport())
	assert.False(t, GateDecision{Verdict: VerdictUnknown}.ShouldGenerateReport())
}

func TestAskRequest_EnsureSessionId(t *testing.T) {
	req := AskRequest{Query: "q"}
	req.EnsureSessionId()
	assert.NotEmpty(t, req.SessionId)
	assert.Contains(t, req.SessionId, "sess_")

	fixed := AskRequest{Query: "q", SessionId: "sess_keep"}
	fixed.EnsureSessionId()
	assert.Equal(t, "sess_keep", fixed.SessionId)
}

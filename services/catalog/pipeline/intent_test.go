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
// parseIntentResponse Tests
// =============================================================================

func TestParseIntentResponse_PlainJSON(t *testing.T) {
	got := parseIntentResponse(`{"item1": "employees", "item2": "salary"}`)
	assert.Equal(t, datatypes.IntentMap{"item1": "employees", "item2": "salary"}, got)
}

func TestParseIntentResponse_FencedJSON(t *testing.T) {
	raw := "Here are the terms:\n```json\n{\"table\": \"employees_history\"}\n```\nDone."
	got := parseIntentResponse(raw)
	assert.Equal(t, datatypes.IntentMap{"table": "employees_history"}, got)
}

func TestParseIntentResponse_SingleQuotedJSON(t *testing.T) {
	// Not valid JSON until the quote normalization step runs.
	got := parseIntentResponse(`{'item1': 'employees'}`)
	assert.Equal(t, datatypes.IntentMap{"item1": "employees"}, got)
}

func TestParseIntentResponse_NoJSON(t *testing.T) {
	got := parseIntentResponse("I could not find any table names in the question.")
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestParseIntentResponse_EmptyObject(t *testing.T) {
	got := parseIntentResponse("{}")
	assert.Empty(t, got)
}

func TestParseIntentResponse_DropsNonStringValues(t *testing.T) {
	got := parseIntentResponse(`{"item1": "employees", "count": 3, "blank": "  "}`)
	assert.Equal(t, datatypes.IntentMap{"item1": "employees"}, got)
}

// =============================================================================
// Extract Tests
// =============================================================================

func TestExtract_LLMFailureReturnsEmptyMap(t *testing.T) {
	mock := &mockLLM{responses: []mockLLMResponse{{err: errors.New("backend down")}}}
	extractor := NewIntentExtractor(mock)
	sink := &recordingSink{}
	ledger := tokens.NewLedger()

	got := extractor.Extract(context.Background(), "what is employees?", ledger, sink)

	assert.Empty(t, got)
	assert.Empty(t, ledger.Records(), "failed call should not be recorded")
	assert.Equal(t, []string{"intent"}, sink.steps())
}

func TestExtract_RecordsTokenUsage(t *testing.T) {
	mock := &mockLLM{responses: []mockLLMResponse{{text: `{"item1": "employees"}`}}}
	extractor := NewIntentExtractor(mock)
	ledger := tokens.NewLedger()

	got := extractor.Extract(context.Background(), "what is employees?", ledger, NopSink{})

	assert.Equal(t, datatypes.IntentMap{"item1": "employees"}, got)
	records := ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, datatypes.SourceSystem, records[0].Source)
	assert.Equal(t, 10, records[0].InputTokens)
	assert.Equal(t, 5, records[0].OutputTokens)
}

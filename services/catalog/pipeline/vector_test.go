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
)

func newTestVectorRetriever(index *fakeIndex, llmText string) *VectorRetriever {
	return NewVectorRetriever(
		&fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}},
		index,
		&mockLLM{responses: []mockLLMResponse{{text: llmText}}},
		5)
}

func TestVectorRetrieve_HybridHitsReturned(t *testing.T) {
	index := &fakeIndex{dim: 3, hybridHits: []ArtifactHit{
		{Body: "CREATE TABLE employees (...)", TableName: "employees", Score: 0.9},
	}}
	r := newTestVectorRetriever(index, "")

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, datatypes.SourceVector, results[0].Source)
	assert.Contains(t, results[0].Content, "employees")
	assert.Contains(t, results[0].Content, "CREATE TABLE")
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, 0, index.knnCalls, "no fallback when hybrid hits")
}

func TestVectorRetrieve_KNNFallbackBeforePlaceholder(t *testing.T) {
	index := &fakeIndex{dim: 3, knnHits: []ArtifactHit{
		{Body: "view body", ViewName: "employees_history", Score: 0.5},
	}}
	r := newTestVectorRetriever(index, "")

	results, err := r.Retrieve(context.Background(), "history", "sess_1")

	require.NoError(t, err)
	assert.Equal(t, 1, index.hybridCalls)
	assert.Equal(t, 1, index.knnCalls, "must try knn before giving up")
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "employees_history")
	assert.NotEqual(t, "placeholder", results[0].Description)
}

func TestVectorRetrieve_PlaceholderWhenBothEmpty(t *testing.T) {
	index := &fakeIndex{dim: 3}
	r := newTestVectorRetriever(index, "")

	results, err := r.Retrieve(context.Background(), "nonexistent", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, datatypes.NotFoundScore, results[0].Score)
	assert.Contains(t, results[0].Content, "nonexistent")
}

func TestVectorRetrieve_NeverErrors(t *testing.T) {
	index := &fakeIndex{dim: 3,
		hybridErr: errors.New("index down"),
	}
	r := newTestVectorRetriever(index, "")

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, datatypes.NotFoundScore, results[0].Score)
}

func TestVectorRetrieve_DimensionMismatchRecreates(t *testing.T) {
	// Index built with 768-dim vectors, embedder now returns 3 dims.
	index := &fakeIndex{dim: 768}
	r := newTestVectorRetriever(index, "")

	_, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	assert.Equal(t, 3, index.recreatedDim)
}

func TestVectorRetrieve_DimensionMatchDoesNotRecreate(t *testing.T) {
	index := &fakeIndex{dim: 3}
	r := newTestVectorRetriever(index, "")

	_, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	assert.Equal(t, 0, index.recreatedDim)
}

func TestVectorRetrieve_RelevanceFilterApplied(t *testing.T) {
	hits := []ArtifactHit{
		{Body: "one", Score: 0.9},
		{Body: "two", Score: 0.8},
		{Body: "three", Score: 0.7},
		{Body: "four", Score: 0.6},
	}
	index := &fakeIndex{dim: 3, hybridHits: hits}
	r := newTestVectorRetriever(index, "[1, 3]")

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Content, "one")
	assert.Contains(t, results[1].Content, "three")
	require.NotNil(t, results[0].TokenUsage)
	assert.Equal(t, datatypes.SourceVector, results[0].TokenUsage.Source)
}

func TestVectorRetrieve_FilterParseFailureKeepsUnfiltered(t *testing.T) {
	hits := []ArtifactHit{
		{Body: "one"}, {Body: "two"}, {Body: "three"}, {Body: "four"},
	}
	index := &fakeIndex{dim: 3, hybridHits: hits}
	r := newTestVectorRetriever(index, "these all look relevant to me")

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	assert.Len(t, results, 4, "unparsable filter response must keep everything")
}

func TestVectorRetrieve_FilterSkippedAtThreshold(t *testing.T) {
	hits := []ArtifactHit{{Body: "one"}, {Body: "two"}, {Body: "three"}}
	index := &fakeIndex{dim: 3, hybridHits: hits}
	llm := &mockLLM{}
	r := NewVectorRetriever(&fakeEmbedder{vector: []float32{0.1}}, index, llm, 5)

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 0, llm.callCount(), "filter only runs above 3 results")
}

// =============================================================================
// parseIndexArray Tests
// =============================================================================

func TestParseIndexArray(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		max    int
		want   []int
		wantOK bool
	}{
		{"plain", "[1, 3]", 4, []int{1, 3}, true},
		{"fenced", "```json\n[2]\n```", 4, []int{2}, true},
		{"out of range dropped", "[0, 2, 9]", 4, []int{2}, true},
		{"duplicates dropped", "[1, 1, 2]", 4, []int{1, 2}, true},
		{"prose", "keep the first two", 4, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseIndexArray(tc.raw, tc.max)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

func TestGraphRetrieve_SummaryPrecedesEdges(t *testing.T) {
	store := &fakeEdgeStore{edges: []GraphEdge{
		{FromName: "employees", ToName: "employees_history", Relation: "feeds",
			CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{FromName: "employees_history", ToName: "hr_dashboard", Relation: "sourced by",
			CreatedAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
	}}
	r := NewGraphRetriever(store)

	results, err := r.Retrieve(context.Background(), "employees_history", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 3, "summary plus one result per edge")
	assert.Contains(t, results[0].Content, "Lineage summary")
	assert.Contains(t, results[0].Content, "2 relationship(s)")
	for _, res := range results {
		assert.Equal(t, datatypes.SourceGraph, res.Source)
	}
}

func TestGraphRetrieve_SentencesCarryLinkingFields(t *testing.T) {
	store := &fakeEdgeStore{edges: []GraphEdge{
		{FromName: "employees", FromField: "employee_id",
			ToName: "employees_history", ToField: "employee_id",
			Relation:  "linked to",
			CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
		{FromName: "employees", FromField: "salary",
			ToName: "employees_history", ToField: "old_salary",
			Relation:  "linked to",
			CreatedAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
	}}
	r := NewGraphRetriever(store)

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 3, "summary plus one sentence per edge")
	assert.Contains(t, results[1].Content, "via employees.employee_id → employees_history.employee_id")
	assert.Contains(t, results[2].Content, "via employees.salary → employees_history.old_salary")
}

func TestGraphRetrieve_NewestEdgeFirst(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeEdgeStore{edges: []GraphEdge{
		{FromName: "a", ToName: "b", Relation: "feeds", CreatedAt: older},
		{FromName: "c", ToName: "d", Relation: "feeds", CreatedAt: newer},
	}}
	r := NewGraphRetriever(store)

	results, err := r.Retrieve(context.Background(), "a", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Contains(t, results[1].Content, "c is feeds d")
	assert.Contains(t, results[2].Content, "a is feeds b")
}

func TestGraphRetrieve_MalformedEdgeSkipped(t *testing.T) {
	store := &fakeEdgeStore{edges: []GraphEdge{
		{FromName: "", ToName: ""}, // nothing usable
		{FromName: "employees", ToName: "", Relation: ""},
	}}
	r := NewGraphRetriever(store)

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 2, "summary plus the one salvageable edge")
	assert.Contains(t, results[1].Content, "employees is related to unknown entity")
}

func TestGraphRetrieve_NoEdgesYieldsZeroScorePlaceholder(t *testing.T) {
	r := NewGraphRetriever(&fakeEdgeStore{})

	results, err := r.Retrieve(context.Background(), "orphan_table", "sess_1")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
	assert.Contains(t, results[0].Content, "orphan_table")
}

func TestGraphRetrieve_StoreFailureYieldsPlaceholder(t *testing.T) {
	r := NewGraphRetriever(&fakeEdgeStore{err: errors.New("graph down")})

	results, err := r.Retrieve(context.Background(), "employees", "sess_1")

	require.NoError(t, err, "graph retriever must not propagate store errors")
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
}

func TestRenderEdge_IncludesRecordedDate(t *testing.T) {
	edge := GraphEdge{
		FromName:    "employees",
		ToName:      "employees_history",
		Relation:    "feeds",
		Description: "Nightly CDC copy.",
		CreatedAt:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	got := renderEdge(edge)
	assert.Equal(t, "employees is feeds employees_history (recorded 2025-03-01). Nightly CDC copy.", got)
}

func TestRenderEdge_LinkingFields(t *testing.T) {
	full := GraphEdge{
		FromName: "employees", FromField: "salary",
		ToName: "employees_history", ToField: "old_salary",
		Relation: "linked to",
	}
	assert.Equal(t,
		"employees is linked to employees_history via employees.salary → employees_history.old_salary.",
		renderEdge(full))

	// A field missing on one side falls back to the bare table name.
	oneSided := GraphEdge{
		FromName: "employees", FromField: "salary",
		ToName: "hr_dashboard",
		Relation: "feeds",
	}
	assert.Equal(t,
		"employees is feeds hr_dashboard via employees.salary → hr_dashboard.",
		renderEdge(oneSided))
}

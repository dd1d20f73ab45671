// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

var graphTracer = otel.Tracer("catalogiq.pipeline.graph")

// GraphEdge is one lineage edge between two catalog entities, down to the
// columns that link them. Fields may arrive empty from the store;
// normalization happens in the retriever.
type GraphEdge struct {
	FromName    string
	FromField   string
	ToName      string
	ToField     string
	Relation    string
	Description string
	CreatedAt   time.Time
}

// EdgeStore returns lineage edges where either endpoint name equals the
// given term. The production implementation is Neo4j (see neo4j.go).
type EdgeStore interface {
	EdgesTouching(ctx context.Context, name string) ([]GraphEdge, error)
}

// GraphRetriever answers "what is connected to this entity" from the
// lineage graph, one natural-language sentence per edge plus a summary.
//
// Retrieve never returns an error: a dead graph store degrades to a
// zero-score placeholder.
type GraphRetriever struct {
	store EdgeStore
}

// NewGraphRetriever wires the retriever to an edge store.
func NewGraphRetriever(store EdgeStore) *GraphRetriever {
	return &GraphRetriever{store: store}
}

// Retrieve implements Retriever. The error return is always nil.
func (r *GraphRetriever) Retrieve(ctx context.Context, term string, sessionID string) ([]datatypes.RetrievalResult, error) {
	ctx, span := graphTracer.Start(ctx, "GraphRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("graph.term", term))

	edges, err := r.store.EdgesTouching(ctx, term)
	if err != nil {
		slog.Warn("Graph query failed, returning placeholder", "term", term, "error", err)
		return []datatypes.RetrievalResult{noEdges(term)}, nil
	}

	edges = normalizeEdges(edges)
	if len(edges) == 0 {
		span.SetAttributes(attribute.Int("graph.edges", 0))
		return []datatypes.RetrievalResult{noEdges(term)}, nil
	}
	span.SetAttributes(attribute.Int("graph.edges", len(edges)))

	now := time.Now()
	results := make([]datatypes.RetrievalResult, 0, len(edges)+1)
	results = append(results, datatypes.RetrievalResult{
		Content:   summarizeEdges(term, edges),
		Score:     1.0,
		Source:    datatypes.SourceGraph,
		CreatedAt: now,
	})
	for _, edge := range edges {
		results = append(results, datatypes.RetrievalResult{
			Content:   renderEdge(edge),
			Score:     1.0,
			Source:    datatypes.SourceGraph,
			CreatedAt: now,
		})
	}
	return results, nil
}

// normalizeEdges applies per-field defaults and drops edges too
// malformed to describe, then orders newest first. One bad edge must
// never poison the rest of the batch.
func normalizeEdges(edges []GraphEdge) []GraphEdge {
	out := make([]GraphEdge, 0, len(edges))
	for _, e := range edges {
		if e.FromName == "" && e.ToName == "" {
			slog.Debug("Skipping lineage edge with no endpoint names")
			continue
		}
		if e.FromName == "" {
			e.FromName = "unknown entity"
		}
		if e.ToName == "" {
			e.ToName = "unknown entity"
		}
		if e.Relation == "" {
			e.Relation = "related to"
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// renderEdge produces one sentence per edge, naming the linking fields
// when the store recorded them.
func renderEdge(edge GraphEdge) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s is %s %s", edge.FromName, strings.ToLower(edge.Relation), edge.ToName)
	if edge.FromField != "" || edge.ToField != "" {
		fmt.Fprintf(&sb, " via %s → %s",
			columnRef(edge.FromName, edge.FromField), columnRef(edge.ToName, edge.ToField))
	}
	if !edge.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, " (recorded %s)", edge.CreatedAt.Format("2006-01-02"))
	}
	sb.WriteString(".")
	if edge.Description != "" {
		sb.WriteString(" ")
		sb.WriteString(edge.Description)
	}
	return sb.String()
}

// summarizeEdges builds the synthetic overview that precedes the
// per-edge sentences.
func summarizeEdges(term string, edges []GraphEdge) string {
	related := make([]string, 0, len(edges))
	seen := map[string]bool{term: true}
	for _, e := range edges {
		for _, name := range []string{e.FromName, e.ToName} {
			if !seen[name] {
				seen[name] = true
				related = append(related, name)
			}
		}
	}
	return fmt.Sprintf("Lineage summary for %q: %d relationship(s) involving %s.",
		term, len(edges), strings.Join(related, ", "))
}

// columnRef qualifies a field with its table, falling back to the bare
// table name when the edge carried no field on that side.
func columnRef(table, field string) string {
	if field == "" {
		return table
	}
	return table + "." + field
}

func noEdges(term string) datatypes.RetrievalResult {
	return datatypes.NewPlaceholderResult(datatypes.SourceGraph,
		fmt.Sprintf("No relationship information found for %q.", term), 0)
}

// Compile-time interface check.
var _ Retriever = (*GraphRetriever)(nil)

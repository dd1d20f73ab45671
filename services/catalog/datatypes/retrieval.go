// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the catalog Q&A
// pipeline: retrieval results, aggregated documents, intent maps, gate
// decisions, and token usage records.
//
// Everything in this package is a plain value type. Business logic lives
// in the pipeline package; HTTP shapes live alongside their handlers.
package datatypes

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// Sources
// =============================================================================

// Source identifies which retrieval backend produced a result.
type Source string

const (
	// SourceVector is the hybrid lexical/vector index over catalog artifacts.
	SourceVector Source = "vector"

	// SourceGraph is the graph store of table/column relationship edges.
	SourceGraph Source = "graph"

	// SourceRelational is the NL-to-SQL agent over the relational catalog.
	SourceRelational Source = "relational"

	// SourceSystem marks synthetic results produced by the pipeline itself
	// (placeholders, substitute error documents, "no information found").
	SourceSystem Source = "system"
)

// RetrievalSources lists the three real backends in their fixed
// registration order. Aggregation appends per-source result lists in this
// order so document numbering is reproducible.
var RetrievalSources = []Source{SourceVector, SourceGraph, SourceRelational}

// =============================================================================
// Retrieval Results
// =============================================================================

// RetrievalResult is one human-readable retrieval hit from a backend.
//
// Score is an unbounded relevance heuristic; backends do not normalize it
// and callers must not assume a [0,1] range. Content is always rendered
// text, never a raw backend record.
type RetrievalResult struct {
	Content     string            `json:"content"`
	Score       float64           `json:"score"`
	Source      Source            `json:"source"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
	TokenUsage  *TokenUsageRecord `json:"token_usage,omitempty"`
}

// NewErrorResult builds the substitute document the coordinator inserts
// when a backend fails. Exactly one of these is produced per throwing
// source, so the aggregation count invariant holds.
func NewErrorResult(source Source, err error) RetrievalResult {
	return RetrievalResult{
		Content:     fmt.Sprintf("retrieval from %s failed: %v", source, err),
		Score:       ErrorScore,
		Source:      source,
		Description: "substitute error document",
		CreatedAt:   time.Now(),
	}
}

// NewPlaceholderResult builds the synthetic low-score result a retriever
// returns instead of an empty list.
func NewPlaceholderResult(source Source, content string, score float64) RetrievalResult {
	return RetrievalResult{
		Content:     content,
		Score:       score,
		Source:      source,
		Description: "placeholder",
		CreatedAt:   time.Now(),
	}
}

// Fixed scores for synthetic documents.
const (
	// ErrorScore tags substitute error documents.
	ErrorScore = 0.01

	// NotFoundScore tags "nothing found" placeholders from the vector index.
	NotFoundScore = 0.1
)

// AggregatedDocument is a RetrievalResult with its stable 1-based index
// ("Doc#n") assigned at aggregation time. Index order reflects aggregation
// order, not score.
type AggregatedDocument struct {
	Index int `json:"index"`
	RetrievalResult
}

// Number assigns stable 1-based indices to a result list.
func Number(results []RetrievalResult) []AggregatedDocument {
	docs := make([]AggregatedDocument, 0, len(results))
	for i, r := range results {
		docs = append(docs, AggregatedDocument{Index: i + 1, RetrievalResult: r})
	}
	return docs
}

// =============================================================================
// Intent
// =============================================================================

// IntentMap maps arbitrary LLM-chosen keys to extracted table/column/view
// name candidates. It may be empty; insertion order is irrelevant.
type IntentMap map[string]string

// Terms returns the candidate terms in a deterministic (sorted-by-key)
// order so fan-out over terms is reproducible across runs.
func (m IntentMap) Terms() []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		if m[k] != "" {
			terms = append(terms, m[k])
		}
	}
	return terms
}

// =============================================================================
// Gate Decisions
// =============================================================================

// Verdict is the tri-state outcome of the relevance gate.
type Verdict string

const (
	VerdictYes     Verdict = "yes"
	VerdictNo      Verdict = "no"
	VerdictUnknown Verdict = "unknown"
)

// GateDecision carries the gate verdict plus the raw LLM rationale text.
// Verdict is always exactly one of the three values, never empty.
//
// Callers currently branch identically on "no" and "unknown"; the
// distinction is preserved here deliberately (see DESIGN.md).
type GateDecision struct {
	Verdict   Verdict `json:"verdict"`
	Rationale string  `json:"rationale,omitempty"`
}

// ShouldGenerateReport reports whether the decision gates report
// generation on.
func (d GateDecision) ShouldGenerateReport() bool {
	return d.Verdict == VerdictYes
}

// =============================================================================
// Token Usage
// =============================================================================

// TokenUsageRecord is one append-only ledger entry for a single LLM or
// agent call. Records are never mutated after creation.
type TokenUsageRecord struct {
	Source           Source  `json:"source"`
	Model            string  `json:"model"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	ExecutionSeconds float64 `json:"execution_seconds,omitempty"`
}

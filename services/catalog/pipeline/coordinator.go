// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorline/catalogiq/services/catalog/cache"
	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/observability"
	"github.com/anchorline/catalogiq/services/catalog/tokens"
)

var coordTracer = otel.Tracer("catalogiq.pipeline.coordinator")

// Coordinator fans a query out to the three retrieval sources and
// aggregates their results into one numbered document list.
//
// Failure isolation happens here, at the call site: a source whose
// retriever returns an error contributes exactly one error-tagged
// substitute document instead of aborting the run. Run itself never
// fails.
type Coordinator struct {
	retrievers map[datatypes.Source]Retriever
	sessions   cache.Cache
	cacheTTL   time.Duration
	metrics    *observability.PipelineMetrics
}

// NewCoordinator wires the coordinator. The retrievers map must cover
// every source in datatypes.RetrievalSources.
func NewCoordinator(retrievers map[datatypes.Source]Retriever, sessions cache.Cache,
	cacheTTL time.Duration, metrics *observability.PipelineMetrics) *Coordinator {

	return &Coordinator{
		retrievers: retrievers,
		sessions:   sessions,
		cacheTTL:   cacheTTL,
		metrics:    metrics,
	}
}

// Run queries every source for every extracted term (or for the raw
// query when no terms were extracted), numbers the aggregate, and
// persists both the per-source and the combined session cache entries.
//
// Sources run concurrently; within a source, terms run sequentially.
// The aggregate is assembled in the fixed source order regardless of
// completion order, so document numbering is reproducible.
func (c *Coordinator) Run(ctx context.Context, query string, intents datatypes.IntentMap,
	sessionID string, ledger *tokens.Ledger, sink ProgressSink) []datatypes.AggregatedDocument {

	ctx, span := coordTracer.Start(ctx, "Coordinator.Run")
	defer span.End()

	terms := intents.Terms()
	if len(terms) == 0 {
		terms = []string{query}
	}
	span.SetAttributes(attribute.Int("coordinator.terms", len(terms)))

	bySource := make(map[datatypes.Source][]datatypes.RetrievalResult, len(c.retrievers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, source := range datatypes.RetrievalSources {
		retriever, ok := c.retrievers[source]
		if !ok {
			slog.Error("No retriever registered for source, skipping", "source", source)
			continue
		}
		wg.Add(1)
		go func(source datatypes.Source, retriever Retriever) {
			defer wg.Done()
			results := c.runSource(ctx, source, retriever, terms, sessionID)
			mu.Lock()
			bySource[source] = results
			mu.Unlock()
			sink.Progress(string(source), fmt.Sprintf("%s retrieval complete (%d results)", source, len(results)))
		}(source, retriever)
	}
	wg.Wait()

	aggregate := make([]datatypes.RetrievalResult, 0, 8)
	for _, source := range datatypes.RetrievalSources {
		results := bySource[source]
		c.harvestUsage(results, ledger)
		c.persistSource(ctx, sessionID, source, results)
		aggregate = append(aggregate, results...)
	}

	if len(aggregate) == 0 {
		aggregate = append(aggregate, datatypes.NewPlaceholderResult(
			datatypes.SourceSystem, "No information found in any catalog source.", 0))
	}

	docs := datatypes.Number(aggregate)
	c.persistAggregate(ctx, sessionID, docs)
	span.SetAttributes(attribute.Int("coordinator.documents", len(docs)))
	return docs
}

// runSource queries one retriever for every term. The first error ends
// the term loop: results accumulated for earlier terms are kept, and the
// source contributes exactly one error substitute carrying the error
// text, never one per failed term.
func (c *Coordinator) runSource(ctx context.Context, source datatypes.Source,
	retriever Retriever, terms []string, sessionID string) []datatypes.RetrievalResult {

	start := time.Now()
	results := make([]datatypes.RetrievalResult, 0, len(terms))
	status := "ok"
	for _, term := range terms {
		termResults, err := retriever.Retrieve(ctx, term, sessionID)
		if err != nil {
			slog.Error("Retrieval source failed, substituting error document",
				"source", source, "term", term, "error", err)
			results = append(results, datatypes.NewErrorResult(source, err))
			status = "error"
			if c.metrics != nil {
				c.metrics.SubstituteDocumentsTotal.WithLabelValues(string(source)).Inc()
			}
			break
		}
		results = append(results, termResults...)
	}
	if c.metrics != nil {
		c.metrics.RetrievalsTotal.WithLabelValues(string(source), status).Inc()
		c.metrics.RetrievalDurationSeconds.WithLabelValues(string(source)).
			Observe(time.Since(start).Seconds())
	}
	return results
}

// harvestUsage moves per-result token usage annotations into the
// request ledger.
func (c *Coordinator) harvestUsage(results []datatypes.RetrievalResult, ledger *tokens.Ledger) {
	if ledger == nil {
		return
	}
	for _, r := range results {
		if r.TokenUsage != nil {
			ledger.Record(*r.TokenUsage)
		}
	}
}

// persistSource overwrites the per-source session cache entry. Repeated
// queries in one session replace, never append.
func (c *Coordinator) persistSource(ctx context.Context, sessionID string,
	source datatypes.Source, results []datatypes.RetrievalResult) {

	if c.sessions == nil || sessionID == "" || len(results) == 0 {
		return
	}
	payload, err := json.Marshal(results)
	if err != nil {
		slog.Warn("Failed to marshal source results for cache", "source", source, "error", err)
		return
	}
	key := cache.SourceKey(sessionID, string(source))
	if err := c.sessions.Set(ctx, key, payload, c.cacheTTL); err != nil {
		slog.Warn("Failed to cache source results", "key", key, "error", err)
	}
}

// persistAggregate overwrites the combined session cache entry.
func (c *Coordinator) persistAggregate(ctx context.Context, sessionID string,
	docs []datatypes.AggregatedDocument) {

	if c.sessions == nil || sessionID == "" {
		return
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		slog.Warn("Failed to marshal aggregate for cache", "error", err)
		return
	}
	if err := c.sessions.Set(ctx, sessionID, payload, c.cacheTTL); err != nil {
		slog.Warn("Failed to cache aggregate", "session_id", sessionID, "error", err)
	}
}

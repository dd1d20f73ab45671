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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorline/catalogiq/services/catalog/cache"
	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

var relationalTracer = otel.Tracer("catalogiq.pipeline.relational")

// disambiguationPrompt steers the SQL agent on metadata-table choice and
// away from guessing between similarly named objects. It is prefixed to
// every question verbatim.
const disambiguationPrompt = `First decide whether the question is about object names (tables, views)
or about field names (columns), and query the metadata table that holds
that kind of name. When table or column names in the question are
ambiguous or match several schema objects, describe each plausible match
instead of picking one. Prefer exact name matches over partial ones.
Never invent tables or columns that are not in the schema. Run the query
to completion without asking clarifying questions, and answer with the
executed query's results, never the SQL text itself.`

// SQLAgent turns a natural-language question into a SQL query against
// the live catalog database and returns the answer text. The production
// implementation is a LangChain SQL chain (see sqlagent.go).
type SQLAgent interface {
	Ask(ctx context.Context, question string) (string, error)
	Model() string
}

// RelationalRetriever queries the live relational schema through an LLM
// SQL agent, with bounded retries.
//
// Unlike the vector and graph retrievers this one DOES return errors:
// when all attempts fail the last error is surfaced as-is so the
// coordinator can substitute an error-tagged document and callers can
// still see what actually went wrong.
type RelationalRetriever struct {
	agent      SQLAgent
	sessions   cache.Cache
	maxRetries int
	retryDelay time.Duration
	cacheTTL   time.Duration
}

// NewRelationalRetriever wires the retriever. maxRetries is the total
// number of attempts, not the number of retries after the first.
func NewRelationalRetriever(agent SQLAgent, sessions cache.Cache,
	maxRetries int, retryDelay, cacheTTL time.Duration) *RelationalRetriever {

	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RelationalRetriever{
		agent:      agent,
		sessions:   sessions,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		cacheTTL:   cacheTTL,
	}
}

// Retrieve implements Retriever. Successful answers are persisted to the
// session cache under the relational source key before returning.
func (r *RelationalRetriever) Retrieve(ctx context.Context, term string, sessionID string) ([]datatypes.RetrievalResult, error) {
	ctx, span := relationalTracer.Start(ctx, "RelationalRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("relational.term", term))

	question := disambiguationPrompt + "\n\nQuestion: " + term

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		start := time.Now()
		answer, err := r.agent.Ask(ctx, question)
		if err == nil {
			result := datatypes.RetrievalResult{
				Content:   answer,
				Score:     1.0,
				Source:    datatypes.SourceRelational,
				CreatedAt: time.Now(),
				TokenUsage: &datatypes.TokenUsageRecord{
					Source:           datatypes.SourceRelational,
					Model:            r.agent.Model(),
					ExecutionSeconds: time.Since(start).Seconds(),
				},
			}
			r.persist(ctx, sessionID, result)
			span.SetAttributes(attribute.Int("relational.attempts", attempt))
			return []datatypes.RetrievalResult{result}, nil
		}

		lastErr = err
		slog.Warn("SQL agent attempt failed", "attempt", attempt,
			"max_retries", r.maxRetries, "error", err)

		if attempt < r.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
	}

	// Surface the agent error unmodified; wrapping here would bury the
	// root cause the operator needs.
	span.SetAttributes(attribute.Int("relational.attempts", r.maxRetries))
	return nil, lastErr
}

// persist writes the successful answer to the per-source session cache
// entry. A cache write failure is logged, not propagated.
func (r *RelationalRetriever) persist(ctx context.Context, sessionID string, result datatypes.RetrievalResult) {
	if r.sessions == nil || sessionID == "" {
		return
	}
	payload, err := json.Marshal([]datatypes.RetrievalResult{result})
	if err != nil {
		slog.Warn("Failed to marshal relational result for cache", "error", err)
		return
	}
	key := cache.SourceKey(sessionID, string(datatypes.SourceRelational))
	if err := r.sessions.Set(ctx, key, payload, r.cacheTTL); err != nil {
		slog.Warn("Failed to cache relational result", "key", key, "error", err)
	}
}

// Compile-time interface check.
var _ Retriever = (*RelationalRetriever)(nil)

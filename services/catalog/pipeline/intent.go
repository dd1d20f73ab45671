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
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/tokens"
	"github.com/anchorline/catalogiq/services/llm"
)

var intentTracer = otel.Tracer("catalogiq.pipeline.intent")

const intentPrompt = `You extract database catalog search terms from user questions.

The question may be in any language. Identify candidate table names, view
names, column/field names, or business entity names the user is asking
about.

Respond with STRICTLY a JSON object mapping arbitrary keys to the
extracted terms, for example {"item1": "employees", "item2": "salary"}.
If no candidates are found, respond with {}.
Do not add any text outside the JSON object.

Question: %s`

// IntentExtractor maps a free-form, multilingual query to a set of named
// candidate search terms via a single LLM call.
//
// Extract never fails: malformed LLM output degrades through an ordered
// fallback parse chain and, ultimately, to an empty map.
type IntentExtractor struct {
	llmClient llm.LLMClient
}

// NewIntentExtractor wires the extractor to an LLM backend.
func NewIntentExtractor(llmClient llm.LLMClient) *IntentExtractor {
	return &IntentExtractor{llmClient: llmClient}
}

// Extract returns candidate search terms for the query. Token usage is
// recorded to the ledger; one progress event signals completion.
func (e *IntentExtractor) Extract(ctx context.Context, query string,
	ledger *tokens.Ledger, sink ProgressSink) datatypes.IntentMap {

	ctx, span := intentTracer.Start(ctx, "IntentExtractor.Extract")
	defer span.End()

	start := time.Now()
	result, err := e.llmClient.Generate(ctx, fmt.Sprintf(intentPrompt, query), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Intent extraction LLM call failed, proceeding without terms", "error", err)
		span.SetAttributes(attribute.Int("intent.terms", 0))
		sink.Progress("intent", "Term extraction complete (no terms)")
		return datatypes.IntentMap{}
	}

	if ledger != nil {
		ledger.Record(datatypes.TokenUsageRecord{
			Source:           datatypes.SourceSystem,
			Model:            result.Model,
			InputTokens:      result.InputTokens,
			OutputTokens:     result.OutputTokens,
			ExecutionSeconds: time.Since(start).Seconds(),
		})
	}

	intents := parseIntentResponse(result.Text)
	span.SetAttributes(attribute.Int("intent.terms", len(intents)))
	slog.Info("Extracted search terms", "count", len(intents))
	sink.Progress("intent", fmt.Sprintf("Extracted %d candidate terms", len(intents)))
	return intents
}

// braceRE greedily matches brace-delimited substrings so JSON wrapped in
// code fences or prose can still be recovered.
var braceRE = regexp.MustCompile(`(?s)\{.*\}`)

// parseIntentResponse applies the ordered fallback parse chain:
//
//  1. parse the trimmed response directly as JSON
//  2. scan for brace-delimited substrings and parse each
//  3. take first-'{' .. last-'}', normalize single quotes, retry
//  4. give up and return an empty map
//
// Each attempt is independent; nothing here returns an error.
func parseIntentResponse(raw string) datatypes.IntentMap {
	trimmed := strings.TrimSpace(raw)
	if m, ok := parseStringMap(trimmed); ok {
		return m
	}

	for _, candidate := range braceRE.FindAllString(trimmed, -1) {
		if m, ok := parseStringMap(candidate); ok {
			return m
		}
	}

	first := strings.Index(trimmed, "{")
	last := strings.LastIndex(trimmed, "}")
	if first >= 0 && last > first {
		normalized := strings.ReplaceAll(trimmed[first:last+1], "'", "\"")
		if m, ok := parseStringMap(normalized); ok {
			return m
		}
	}

	slog.Warn("Could not parse intent response as JSON, returning no terms")
	return datatypes.IntentMap{}
}

// parseStringMap parses a JSON object, keeping only string values.
func parseStringMap(s string) (datatypes.IntentMap, bool) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(s), &generic); err != nil {
		return nil, false
	}
	out := datatypes.IntentMap{}
	for k, v := range generic {
		if str, ok := v.(string); ok && strings.TrimSpace(str) != "" {
			out[k] = strings.TrimSpace(str)
		}
	}
	return out, true
}

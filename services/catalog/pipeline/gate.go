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
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/tokens"
	"github.com/anchorline/catalogiq/services/llm"
)

var gateTracer = otel.Tracer("catalogiq.pipeline.gate")

const gatePrompt = `You decide whether retrieved catalog documents are relevant to a question.

Answer "yes" when table or field terminology in the question matches
terminology found in the documents. Answer "no" when it does not.
Answer with ONLY the single word "yes" or "no". No explanation.

Question: %s

Documents:
%s`

// ResultGate classifies aggregated documents as relevant to the query,
// gating report generation. Classify never raises: any failure resolves
// to VerdictUnknown with the error text as rationale.
type ResultGate struct {
	llmClient llm.LLMClient
}

// NewResultGate wires the gate to an LLM backend.
func NewResultGate(llmClient llm.LLMClient) *ResultGate {
	return &ResultGate{llmClient: llmClient}
}

// Classify returns exactly one of yes/no/unknown, never an absent value.
func (g *ResultGate) Classify(ctx context.Context, docs []datatypes.AggregatedDocument,
	query string, ledger *tokens.Ledger) datatypes.GateDecision {

	ctx, span := gateTracer.Start(ctx, "ResultGate.Classify")
	defer span.End()

	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "Doc#%d [%s]: %s\n", d.Index, d.Source, d.Content)
	}

	start := time.Now()
	result, err := g.llmClient.Generate(ctx, fmt.Sprintf(gatePrompt, query, sb.String()), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Gate LLM call failed, classifying as unknown", "error", err)
		span.SetAttributes(attribute.String("gate.verdict", string(datatypes.VerdictUnknown)))
		return datatypes.GateDecision{Verdict: datatypes.VerdictUnknown, Rationale: err.Error()}
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

	decision := parseGateResponse(result.Text)
	span.SetAttributes(attribute.String("gate.verdict", string(decision.Verdict)))
	slog.Info("Gate classified documents", "verdict", decision.Verdict)
	return decision
}

// parseGateResponse normalizes the raw response and classifies it:
// lowercase, strip quote characters, keep only the first line, then check
// for "yes" before "no". Anything else is unknown.
func parseGateResponse(raw string) datatypes.GateDecision {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("\"", "", "'", "", "`", "").Replace(normalized)
	if idx := strings.IndexByte(normalized, '\n'); idx >= 0 {
		normalized = normalized[:idx]
	}
	normalized = strings.TrimSpace(normalized)

	switch {
	case strings.Contains(normalized, "yes"):
		return datatypes.GateDecision{Verdict: datatypes.VerdictYes, Rationale: raw}
	case strings.Contains(normalized, "no"):
		return datatypes.GateDecision{Verdict: datatypes.VerdictNo, Rationale: raw}
	default:
		return datatypes.GateDecision{Verdict: datatypes.VerdictUnknown, Rationale: raw}
	}
}

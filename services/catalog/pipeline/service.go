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
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorline/catalogiq/services/catalog/cache"
	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/observability"
	"github.com/anchorline/catalogiq/services/catalog/report"
	"github.com/anchorline/catalogiq/services/catalog/tokens"
	"github.com/anchorline/catalogiq/services/llm"
)

var serviceTracer = otel.Tracer("catalogiq.pipeline.service")

const answerPrompt = `You answer questions about a database catalog using only the
retrieved documents below. If the documents do not contain the answer,
say so plainly. Answer in the language of the question.

Question: %s

Documents:
%s`

// AskOutcome is the full result of one pipeline run. The gate decision
// is always present and tri-state; Report is set only on a yes verdict,
// Answer on no/unknown.
type AskOutcome struct {
	Decision  datatypes.GateDecision
	Documents []datatypes.AggregatedDocument
	Answer    string
	Report    *datatypes.ArtifactRef
	Usage     []datatypes.TokenUsageRecord
}

// AskService runs the whole pipeline for one question: term extraction,
// multi-source retrieval, gate classification, then either report
// generation (yes) or direct answer synthesis (no/unknown).
type AskService struct {
	extractor   *IntentExtractor
	coordinator *Coordinator
	gate        *ResultGate
	llmClient   llm.LLMClient
	reports     report.Generator
	sessions    cache.Cache
	metrics     *observability.PipelineMetrics
}

// NewAskService wires the pipeline stages together.
func NewAskService(extractor *IntentExtractor, coordinator *Coordinator, gate *ResultGate,
	llmClient llm.LLMClient, reports report.Generator, sessions cache.Cache,
	metrics *observability.PipelineMetrics) *AskService {

	return &AskService{
		extractor:   extractor,
		coordinator: coordinator,
		gate:        gate,
		llmClient:   llmClient,
		reports:     reports,
		sessions:    sessions,
		metrics:     metrics,
	}
}

// Ask runs the pipeline. It degrades rather than fails: retrieval and
// classification problems surface inside the outcome (substitute
// documents, unknown verdicts), and only context cancellation returns
// an error.
func (s *AskService) Ask(ctx context.Context, query, sessionID string, sink ProgressSink) (*AskOutcome, error) {
	ctx, span := serviceTracer.Start(ctx, "AskService.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("ask.session_id", sessionID))

	if sink == nil {
		sink = NopSink{}
	}
	ledger := tokens.NewLedger()

	intents := s.extractor.Extract(ctx, query, ledger, sink)
	docs := s.coordinator.Run(ctx, query, intents, sessionID, ledger, sink)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision := s.gate.Classify(ctx, docs, query, ledger)
	sink.Progress("gate", fmt.Sprintf("Relevance verdict: %s", decision.Verdict))

	outcome := &AskOutcome{Decision: decision, Documents: docs}
	if decision.ShouldGenerateReport() {
		outcome.Report = s.generateReport(ctx, sessionID, docs, sink)
		if outcome.Report == nil {
			// Report path failed; the user still gets a synthesized
			// answer instead of an empty payload.
			outcome.Answer = s.synthesizeAnswer(ctx, query, docs, ledger)
		}
	} else {
		outcome.Answer = s.synthesizeAnswer(ctx, query, docs, ledger)
	}

	outcome.Usage = ledger.Records()
	if s.metrics != nil {
		s.metrics.ObserveGate(decision)
		s.metrics.MergeLedger(ledger)
		s.metrics.AsksTotal.WithLabelValues(askOutcomeLabel(outcome)).Inc()
	}
	span.SetAttributes(attribute.String("ask.verdict", string(decision.Verdict)))
	return outcome, nil
}

func askOutcomeLabel(o *AskOutcome) string {
	if o.Report != nil {
		return "report"
	}
	return "answer"
}

// generateReport hands the per-source cache entries to the external
// generator. Returns nil on any failure; the caller falls back to
// answer synthesis.
func (s *AskService) generateReport(ctx context.Context, sessionID string,
	docs []datatypes.AggregatedDocument, sink ProgressSink) *datatypes.ArtifactRef {

	if s.reports == nil {
		slog.Warn("No report generator configured, falling back to answer synthesis")
		return nil
	}
	entries := s.loadSourceEntries(ctx, sessionID, docs)
	ref, err := s.reports.Generate(ctx, sessionID, entries)
	if err != nil {
		slog.Error("Report generation failed, falling back to answer synthesis", "error", err)
		return nil
	}
	sink.Progress("report", fmt.Sprintf("Report ready: %s", ref.Filename))
	return ref
}

// loadSourceEntries reads the per-source session cache entries written
// during coordination. A missing or unreadable entry is rebuilt from the
// in-memory aggregate so a cache hiccup cannot block the report.
func (s *AskService) loadSourceEntries(ctx context.Context, sessionID string,
	docs []datatypes.AggregatedDocument) map[datatypes.Source][]datatypes.RetrievalResult {

	entries := make(map[datatypes.Source][]datatypes.RetrievalResult, len(datatypes.RetrievalSources))
	for _, source := range datatypes.RetrievalSources {
		if s.sessions != nil && sessionID != "" {
			raw, found, err := s.sessions.Get(ctx, cache.SourceKey(sessionID, string(source)))
			if err == nil && found {
				var results []datatypes.RetrievalResult
				if err := json.Unmarshal(raw, &results); err == nil {
					entries[source] = results
					continue
				}
			}
		}
		for _, d := range docs {
			if d.Source == source {
				entries[source] = append(entries[source], d.RetrievalResult)
			}
		}
	}
	return entries
}

// synthesizeAnswer generates a direct answer over the aggregated
// documents. An LLM failure yields an apologetic stock answer rather
// than an error.
func (s *AskService) synthesizeAnswer(ctx context.Context, query string,
	docs []datatypes.AggregatedDocument, ledger *tokens.Ledger) string {

	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "Doc#%d [%s]: %s\n", d.Index, d.Source, d.Content)
	}

	start := time.Now()
	result, err := s.llmClient.Generate(ctx, fmt.Sprintf(answerPrompt, query, sb.String()), llm.GenerationParams{})
	if err != nil {
		slog.Error("Answer synthesis failed", "error", err)
		return "I could not generate an answer from the retrieved catalog information."
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
	return strings.TrimSpace(result.Text)
}

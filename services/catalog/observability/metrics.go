// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the catalog
// service.
//
// Metrics cover the retrieval pipeline: per-source retrieval counts and
// latencies, substitute-error documents, gate verdicts, and token usage
// merged in from per-request ledgers. Exposed on /metrics; all operations
// are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/tokens"
)

const metricsNamespace = "catalogiq"

const pipelineSubsystem = "pipeline"

// PipelineMetrics holds all Prometheus metrics for the ask pipeline.
// Initialize once at startup via InitMetrics().
type PipelineMetrics struct {
	// AsksTotal counts ask requests by outcome.
	// Labels: outcome (answer, report, error)
	AsksTotal *prometheus.CounterVec

	// RetrievalsTotal counts per-source retrieval calls.
	// Labels: source (vector, graph, relational), status (ok, error)
	RetrievalsTotal *prometheus.CounterVec

	// RetrievalDurationSeconds measures per-source retrieval latency.
	// Labels: source
	RetrievalDurationSeconds *prometheus.HistogramVec

	// SubstituteDocumentsTotal counts error-substitute documents inserted
	// by the coordinator. Labels: source
	SubstituteDocumentsTotal *prometheus.CounterVec

	// GateDecisionsTotal counts gate verdicts. Labels: verdict
	GateDecisionsTotal *prometheus.CounterVec

	// TokensTotal counts tokens by direction, source, and model.
	// Labels: direction (input, output), source, model
	TokensTotal *prometheus.CounterVec
}

// DefaultMetrics is the instance registered by InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all pipeline metrics. Call once at
// startup.
func InitMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		AsksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "asks_total",
			Help:      "Ask requests by outcome.",
		}, []string{"outcome"}),
		RetrievalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "retrievals_total",
			Help:      "Per-source retrieval calls by status.",
		}, []string{"source", "status"}),
		RetrievalDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "retrieval_duration_seconds",
			Help:      "Per-source retrieval latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
		SubstituteDocumentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "substitute_documents_total",
			Help:      "Error-substitute documents inserted by the coordinator.",
		}, []string{"source"}),
		GateDecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "gate_decisions_total",
			Help:      "Relevance gate verdicts.",
		}, []string{"verdict"}),
		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "tokens_total",
			Help:      "LLM tokens consumed, by direction, source, and model.",
		}, []string{"direction", "source", "model"}),
	}
	DefaultMetrics = m
	return m
}

// MergeLedger folds a per-request token ledger into the token counters.
// Called once per request after the pipeline completes.
func (m *PipelineMetrics) MergeLedger(ledger *tokens.Ledger) {
	if m == nil || ledger == nil {
		return
	}
	for _, rec := range ledger.Records() {
		m.TokensTotal.WithLabelValues("input", string(rec.Source), rec.Model).
			Add(float64(rec.InputTokens))
		m.TokensTotal.WithLabelValues("output", string(rec.Source), rec.Model).
			Add(float64(rec.OutputTokens))
	}
}

// ObserveGate records a gate verdict.
func (m *PipelineMetrics) ObserveGate(d datatypes.GateDecision) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(string(d.Verdict)).Inc()
}

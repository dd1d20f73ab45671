// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/tokens"
)

// InitMetrics registers into the default registry, so it can only run
// once per process. Every test shares this instance.
var testMetrics = InitMetrics()

func TestInitMetrics_SetsDefault(t *testing.T) {
	require.NotNil(t, testMetrics)
	assert.Same(t, testMetrics, DefaultMetrics)
}

func TestMergeLedger_CountsBothDirections(t *testing.T) {
	ledger := tokens.NewLedger()
	ledger.Record(datatypes.TokenUsageRecord{
		Source: datatypes.SourceVector, Model: "m1", InputTokens: 10, OutputTokens: 4,
	})
	ledger.Record(datatypes.TokenUsageRecord{
		Source: datatypes.SourceVector, Model: "m1", InputTokens: 5, OutputTokens: 1,
	})

	testMetrics.MergeLedger(ledger)

	in := testutil.ToFloat64(testMetrics.TokensTotal.WithLabelValues("input", "vector", "m1"))
	out := testutil.ToFloat64(testMetrics.TokensTotal.WithLabelValues("output", "vector", "m1"))
	assert.Equal(t, 15.0, in)
	assert.Equal(t, 5.0, out)
}

func TestObserveGate_CountsVerdict(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.GateDecisionsTotal.WithLabelValues("unknown"))

	testMetrics.ObserveGate(datatypes.GateDecision{Verdict: datatypes.VerdictUnknown})

	after := testutil.ToFloat64(testMetrics.GateDecisionsTotal.WithLabelValues("unknown"))
	assert.Equal(t, before+1, after)
}

func TestNilReceiversAreSafe(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.MergeLedger(tokens.NewLedger())
		m.ObserveGate(datatypes.GateDecision{Verdict: datatypes.VerdictYes})
	})
}

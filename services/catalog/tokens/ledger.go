// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tokens tracks LLM token consumption per request.
//
// A Ledger is created per request, threaded through the pipeline, and
// read out at the end (response payload, metrics). There is deliberately
// no process-global counter: per-request accumulation under a mutex is
// merged into Prometheus by the caller, which keeps the ledger free of
// unsynchronized shared state.
package tokens

import (
	"sync"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

// Ledger accumulates append-only token usage records for one request.
// Safe for concurrent use; retrievers running in parallel record into the
// same ledger.
type Ledger struct {
	mu      sync.Mutex
	records []datatypes.TokenUsageRecord
}

// NewLedger returns an empty per-request ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends one usage record. Records are never mutated afterwards.
func (l *Ledger) Record(rec datatypes.TokenUsageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Records returns a snapshot copy of all recorded entries.
func (l *Ledger) Records() []datatypes.TokenUsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]datatypes.TokenUsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Totals sums input and output tokens across all records.
func (l *Ledger) Totals() (input, output int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		input += r.InputTokens
		output += r.OutputTokens
	}
	return input, output
}

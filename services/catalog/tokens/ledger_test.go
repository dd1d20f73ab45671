// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tokens

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

func TestLedger_RecordAndTotals(t *testing.T) {
	ledger := NewLedger()
	ledger.Record(datatypes.TokenUsageRecord{Source: datatypes.SourceSystem, InputTokens: 10, OutputTokens: 5})
	ledger.Record(datatypes.TokenUsageRecord{Source: datatypes.SourceVector, InputTokens: 3, OutputTokens: 2})

	in, out := ledger.Totals()
	assert.Equal(t, 13, in)
	assert.Equal(t, 7, out)
	assert.Len(t, ledger.Records(), 2)
}

func TestLedger_RecordsReturnsSnapshot(t *testing.T) {
	ledger := NewLedger()
	ledger.Record(datatypes.TokenUsageRecord{InputTokens: 1})

	snapshot := ledger.Records()
	ledger.Record(datatypes.TokenUsageRecord{InputTokens: 2})

	require.Len(t, snapshot, 1, "snapshot must not grow with later records")
	assert.Len(t, ledger.Records(), 2)
}

func TestLedger_ConcurrentRecords(t *testing.T) {
	ledger := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.Record(datatypes.TokenUsageRecord{InputTokens: 1, OutputTokens: 1})
		}()
	}
	wg.Wait()

	in, out := ledger.Totals()
	assert.Equal(t, 50, in)
	assert.Equal(t, 50, out)
}

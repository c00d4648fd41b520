package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/opsledger/ledger"
	"github.com/fieldtrack/opsledger/ledger/store"
)

func TestMemory_ReplaceLedgerVersionCheck(t *testing.T) {
	// Same contract as the SQLite store: a stale version is rejected.
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveWorker(ctx, ledger.Worker{ID: "alice", Name: "Alice"}))

	first, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	second, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, mem.ReplaceLedger(ctx, first))
	assert.ErrorIs(t, mem.ReplaceLedger(ctx, second), ledger.ErrConcurrentModification)
	assert.Equal(t, 1, mem.ReplaceCount())
}

func TestMemory_GetLedgerReturnsCopy(t *testing.T) {
	// Mutating a fetched ledger must not leak into the store before
	// ReplaceLedger commits it.
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveWorker(ctx, ledger.Worker{ID: "alice", Name: "Alice"}))

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	led.Tables = append(led.Tables, ledger.PeriodTable{
		ID:    "tbl-1",
		Name:  "March 1-15 2025",
		Lines: []ledger.InvoiceLine{{Address: "12 Oak St", Date: ledger.NewDate(2025, time.March, 10)}},
	})

	fresh, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, fresh.Tables)
}

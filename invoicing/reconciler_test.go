package invoicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/opsledger/invoicing"
	"github.com/fieldtrack/opsledger/ledger"
	"github.com/fieldtrack/opsledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestReconciler(t *testing.T) (*invoicing.WorkerInvoiceReconciler, *store.Memory, *ledger.MemoryNotifier) {
	t.Helper()
	mem := store.NewMemory()
	notifier := ledger.NewMemoryNotifier()

	require.NoError(t, mem.SaveWorker(context.Background(), ledger.Worker{
		ID:     "alice",
		Name:   "Alice",
		Status: ledger.WorkerActive,
	}))

	return invoicing.NewWorkerInvoiceReconciler(mem, notifier), mem, notifier
}

func oakSt(date ledger.Date) invoicing.InvoiceInput {
	return invoicing.InvoiceInput{Address: "12 Oak St", Date: date}
}

// =============================================================================
// ADD INVOICE
// =============================================================================

func TestAddInvoice_CreatesPeriodTableOnFirstUse(t *testing.T) {
	// GIVEN: Alice has an empty ledger
	// WHEN: An invoice lands on 2025-03-10
	// THEN: A "March 1-15 2025" table is created with one zero-amount line

	r, mem, notifier := newTestReconciler(t)
	ctx := context.Background()

	err := r.AddInvoice(ctx, "alice", oakSt(ledger.NewDate(2025, time.March, 10)))
	require.NoError(t, err)

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, led.Tables, 1)
	assert.Equal(t, "March 1-15 2025", led.Tables[0].Name)
	assert.NotEmpty(t, led.Tables[0].ID)

	require.Len(t, led.Tables[0].Lines, 1)
	line := led.Tables[0].Lines[0]
	assert.Equal(t, "12 Oak St", line.Address)
	assert.Equal(t, "2025-03-10", line.Date.String())
	assert.True(t, line.Amount.IsZero())

	last := notifier.Last()
	require.NotNil(t, last)
	assert.Equal(t, ledger.LevelSuccess, last.Level)
	assert.Contains(t, last.Message, "alice")
	assert.Contains(t, last.Message, "March 1-15 2025")
}

func TestAddInvoice_DuplicateKeyIsNoOp(t *testing.T) {
	// GIVEN: Alice already has a line for (12 Oak St, 2025-03-10)
	// WHEN: The same invoice is added again
	// THEN: Exactly one line exists and no second write happened

	r, mem, _ := newTestReconciler(t)
	ctx := context.Background()
	input := oakSt(ledger.NewDate(2025, time.March, 10))

	require.NoError(t, r.AddInvoice(ctx, "alice", input))
	writes := mem.ReplaceCount()

	require.NoError(t, r.AddInvoice(ctx, "alice", input))

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, led.Tables, 1)
	assert.Len(t, led.Tables[0].Lines, 1)
	assert.Equal(t, writes, mem.ReplaceCount(), "duplicate add must not write")
}

func TestAddInvoice_DuplicateKeyKeepsExistingAmount(t *testing.T) {
	// A second add for the same key must not overwrite the billed amount.
	r, mem, _ := newTestReconciler(t)
	ctx := context.Background()
	date := ledger.NewDate(2025, time.March, 10)

	first := oakSt(date)
	first.Amount = decimal.NewFromInt(250)
	require.NoError(t, r.AddInvoice(ctx, "alice", first))

	require.NoError(t, r.AddInvoice(ctx, "alice", oakSt(date)))

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, led.Tables[0].Lines, 1)
	assert.True(t, led.Tables[0].Lines[0].Amount.Equal(decimal.NewFromInt(250)))
}

func TestAddInvoice_SeparateBucketsGetSeparateTables(t *testing.T) {
	r, mem, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.AddInvoice(ctx, "alice", oakSt(ledger.NewDate(2025, time.March, 10))))
	require.NoError(t, r.AddInvoice(ctx, "alice", oakSt(ledger.NewDate(2025, time.March, 20))))

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, led.Tables, 2)
	assert.Equal(t, "March 1-15 2025", led.Tables[0].Name)
	assert.Equal(t, "March 16-31 2025", led.Tables[1].Name)
}

func TestAddInvoice_UnknownWorkerNotifiesFailure(t *testing.T) {
	r, _, notifier := newTestReconciler(t)

	err := r.AddInvoice(context.Background(), "nobody", oakSt(ledger.NewDate(2025, time.March, 10)))

	assert.ErrorIs(t, err, ledger.ErrWorkerNotFound)
	last := notifier.Last()
	require.NotNil(t, last)
	assert.Equal(t, ledger.LevelError, last.Level)
}

// =============================================================================
// REMOVE EMPTY INVOICE
// =============================================================================

func TestRemoveEmptyInvoice_RemovesZeroAmountLine(t *testing.T) {
	r, mem, notifier := newTestReconciler(t)
	ctx := context.Background()
	input := oakSt(ledger.NewDate(2025, time.March, 10))

	require.NoError(t, r.AddInvoice(ctx, "alice", input))
	require.NoError(t, r.RemoveEmptyInvoice(ctx, "alice", input))

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, led.Tables, 1, "table itself is never auto-deleted")
	assert.Empty(t, led.Tables[0].Lines)

	last := notifier.Last()
	require.NotNil(t, last)
	assert.Equal(t, ledger.LevelSuccess, last.Level)
}

func TestRemoveEmptyInvoice_PreservesBilledLine(t *testing.T) {
	// GIVEN: A line with a non-zero amount
	// WHEN: RemoveEmptyInvoice targets the same key
	// THEN: The ledger is unchanged

	r, mem, _ := newTestReconciler(t)
	ctx := context.Background()
	date := ledger.NewDate(2025, time.March, 10)

	billed := oakSt(date)
	billed.Amount = decimal.NewFromInt(400)
	require.NoError(t, r.AddInvoice(ctx, "alice", billed))
	writes := mem.ReplaceCount()

	require.NoError(t, r.RemoveEmptyInvoice(ctx, "alice", oakSt(date)))

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, led.Tables[0].Lines, 1)
	assert.True(t, led.Tables[0].Lines[0].Amount.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, writes, mem.ReplaceCount(), "billed line removal must not write")
}

func TestRemoveEmptyInvoice_NoMatchIsSilentNoOp(t *testing.T) {
	// Removing a line that doesn't exist writes nothing and notifies nothing.
	r, mem, notifier := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.RemoveEmptyInvoice(ctx, "alice", oakSt(ledger.NewDate(2025, time.March, 10))))

	assert.Equal(t, 0, mem.ReplaceCount())
	assert.Empty(t, notifier.Notifications())
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestAddInvoice_EndToEndAliceOakStreet(t *testing.T) {
	// Worker "Alice", address "12 Oak St" dated 2025-03-10, added twice:
	// one table named "March 1-15 2025" with exactly one zero-amount line.

	r, mem, _ := newTestReconciler(t)
	ctx := context.Background()
	input := oakSt(ledger.NewDate(2025, time.March, 10))

	require.NoError(t, r.AddInvoice(ctx, "alice", input))
	require.NoError(t, r.AddInvoice(ctx, "alice", input))

	led, err := mem.GetLedger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, led.Tables, 1)
	assert.Equal(t, "March 1-15 2025", led.Tables[0].Name)
	require.Len(t, led.Tables[0].Lines, 1)
	assert.Equal(t, "12 Oak St", led.Tables[0].Lines[0].Address)
	assert.Equal(t, "2025-03-10", led.Tables[0].Lines[0].Date.String())
	assert.True(t, led.Tables[0].Lines[0].Amount.IsZero())
}

package invoicing_test

import (
	"context"
	"errors"
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

func newTestSync(t *testing.T) (*invoicing.WorkTypeLedgerSync, *store.Memory, *ledger.MemoryNotifier) {
	t.Helper()
	mem := store.NewMemory()
	notifier := ledger.NewMemoryNotifier()
	ctx := context.Background()

	require.NoError(t, mem.SaveWorker(ctx, ledger.Worker{ID: "alice", Name: "Alice", Status: ledger.WorkerActive}))
	require.NoError(t, mem.SaveTemplate(ctx, ledger.WorkTypeTemplate{ID: "tmpl-paint", Name: "Painting"}))
	require.NoError(t, mem.SaveAddress(ctx, ledger.Address{
		ID:      "addr-oak",
		Address: "12 Oak St",
		Store:   "Depot North",
		Date:    ledger.NewDate(2025, time.March, 10),
	}))

	return invoicing.NewWorkTypeLedgerSync(mem, notifier), mem, notifier
}

func paintingFor(person ledger.WorkerID, amount int64) invoicing.WorkTypeInput {
	return invoicing.WorkTypeInput{
		AddressID:     "addr-oak",
		TemplateID:    "tmpl-paint",
		PersonID:      person,
		PaymentAmount: decimal.NewFromInt(amount),
	}
}

// failingStore overrides selected operations to simulate store failures.
type failingStore struct {
	*store.Memory
	deleteInvoicesErr error
	insertInvoiceErr  error
}

func (f *failingStore) DeleteInvoicesByWorkType(ctx context.Context, id ledger.WorkTypeID) error {
	if f.deleteInvoicesErr != nil {
		return f.deleteInvoicesErr
	}
	return f.Memory.DeleteInvoicesByWorkType(ctx, id)
}

func (f *failingStore) InsertInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	if f.insertInvoiceErr != nil {
		return ledger.Invoice{}, f.insertInvoiceErr
	}
	return f.Memory.InsertInvoice(ctx, inv)
}

// =============================================================================
// ADD WORK TYPE
// =============================================================================

func TestAddWorkType_WithAssigneeCreatesInvoice(t *testing.T) {
	// GIVEN: Address 12 Oak St dated 2025-03-10 at store Depot North
	// WHEN: A painting work type is added for Alice at 100
	// THEN: Exactly one invoice exists with the address fields copied over

	s, mem, _ := newTestSync(t)
	ctx := context.Background()

	wt, err := s.AddWorkType(ctx, paintingFor("alice", 100))
	require.NoError(t, err)
	require.NotNil(t, wt)
	assert.Equal(t, "Painting", wt.TemplateName)
	assert.Equal(t, "Alice", wt.PersonName)

	inv, err := mem.FindInvoiceByWorkType(ctx, wt.ID)
	require.NoError(t, err)
	assert.True(t, inv.TotalIncome.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "2025-03-10", inv.Date.String())
	assert.Equal(t, "12 Oak St", inv.Address)
	assert.Equal(t, "Depot North", inv.Store)
	assert.Equal(t, wt.ID, inv.WorkTypeID)

	// The invoice landed in Alice's table for the date's bucket.
	table, err := mem.FindInvoiceTable(ctx, "alice", "March 1-15 2025")
	require.NoError(t, err)
	assert.Equal(t, table.ID, inv.TableID)
}

func TestAddWorkType_WithoutAssigneeCreatesNoInvoice(t *testing.T) {
	s, mem, _ := newTestSync(t)
	ctx := context.Background()

	wt, err := s.AddWorkType(ctx, paintingFor("", 100))
	require.NoError(t, err)
	require.NotNil(t, wt)
	assert.False(t, wt.Assigned())

	_, err = mem.FindInvoiceByWorkType(ctx, wt.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAddWorkType_ReusesExistingInvoiceTable(t *testing.T) {
	s, mem, _ := newTestSync(t)
	ctx := context.Background()

	first, err := s.AddWorkType(ctx, paintingFor("alice", 100))
	require.NoError(t, err)
	second, err := s.AddWorkType(ctx, paintingFor("alice", 50))
	require.NoError(t, err)

	firstInv, err := mem.FindInvoiceByWorkType(ctx, first.ID)
	require.NoError(t, err)
	secondInv, err := mem.FindInvoiceByWorkType(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, firstInv.TableID, secondInv.TableID)

	tables, err := mem.ListInvoiceTables(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, tables, 1)
}

func TestAddWorkType_MissingRequiredFields(t *testing.T) {
	s, _, notifier := newTestSync(t)

	_, err := s.AddWorkType(context.Background(), invoicing.WorkTypeInput{TemplateID: "tmpl-paint"})
	assert.ErrorIs(t, err, ledger.ErrMissingField)

	_, err = s.AddWorkType(context.Background(), invoicing.WorkTypeInput{AddressID: "addr-oak"})
	assert.ErrorIs(t, err, ledger.ErrMissingField)

	assert.Len(t, notifier.Notifications(), 2)
}

func TestAddWorkType_InvoiceFailureKeepsWorkType(t *testing.T) {
	// GIVEN: The invoice insert is broken
	// WHEN: A work type is added for Alice
	// THEN: The work type persists without an invoice; the failure is
	//       only visible through the notification

	_, mem, notifier := newTestSync(t)
	failing := &failingStore{Memory: mem, insertInvoiceErr: errors.New("connection reset")}
	s := invoicing.NewWorkTypeLedgerSync(failing, notifier)
	ctx := context.Background()

	wt, err := s.AddWorkType(ctx, paintingFor("alice", 100))
	require.NoError(t, err, "partial failure is not surfaced as an error")
	require.NotNil(t, wt)

	stored, err := mem.GetWorkType(ctx, wt.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.WorkerID("alice"), stored.PersonID)

	_, err = mem.FindInvoiceByWorkType(ctx, wt.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	last := notifier.Last()
	require.NotNil(t, last)
	assert.Equal(t, ledger.LevelError, last.Level)
	assert.Contains(t, last.Message, "invoice")
}

// =============================================================================
// UPDATE WORK TYPE
// =============================================================================

func TestUpdateWorkType_RefreshesInvoiceIncome(t *testing.T) {
	s, mem, _ := newTestSync(t)
	ctx := context.Background()

	wt, err := s.AddWorkType(ctx, paintingFor("alice", 100))
	require.NoError(t, err)

	updated := *wt
	updated.PaymentAmount = decimal.NewFromInt(175)
	require.NoError(t, s.UpdateWorkType(ctx, updated))

	inv, err := mem.FindInvoiceByWorkType(ctx, wt.ID)
	require.NoError(t, err)
	assert.True(t, inv.TotalIncome.Equal(decimal.NewFromInt(175)))
	// Denormalized address fields are not re-derived on update.
	assert.Equal(t, "12 Oak St", inv.Address)
}

func TestUpdateWorkType_NoInvoiceIsNotCreatedLate(t *testing.T) {
	// Assigning a worker to a previously unassigned work type does not
	// backfill the missing invoice.
	s, mem, _ := newTestSync(t)
	ctx := context.Background()

	wt, err := s.AddWorkType(ctx, paintingFor("", 100))
	require.NoError(t, err)

	updated := *wt
	updated.PersonID = "alice"
	require.NoError(t, s.UpdateWorkType(ctx, updated))

	_, err = mem.FindInvoiceByWorkType(ctx, wt.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUpdateWorkType_MultipleInvoicesIsInvariantViolation(t *testing.T) {
	s, mem, notifier := newTestSync(t)
	ctx := context.Background()

	wt, err := s.AddWorkType(ctx, paintingFor("alice", 100))
	require.NoError(t, err)

	// Corrupt the store: a second invoice for the same work type.
	_, err = mem.InsertInvoice(ctx, ledger.Invoice{ID: "inv-dup", WorkTypeID: wt.ID, PersonID: "alice"})
	require.NoError(t, err)

	err = s.UpdateWorkType(ctx, *wt)
	assert.ErrorIs(t, err, ledger.ErrUnexpectedState)

	last := notifier.Last()
	require.NotNil(t, last)
	assert.Equal(t, ledger.LevelError, last.Level)
}

// =============================================================================
// DELETE WORK TYPE
// =============================================================================

func TestDeleteWorkType_RemovesInvoiceThenWorkType(t *testing.T) {
	s, mem, _ := newTestSync(t)
	ctx := context.Background()

	wt, err := s.AddWorkType(ctx, paintingFor("alice", 100))
	require.NoError(t, err)

	require.NoError(t, s.DeleteWorkType(ctx, wt.ID))

	_, err = mem.FindInvoiceByWorkType(ctx, wt.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = mem.GetWorkType(ctx, wt.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDeleteWorkType_InvoiceDeleteFailureLeavesBothRows(t *testing.T) {
	// GIVEN: The invoice delete is broken
	// WHEN: The work type is deleted
	// THEN: Both the invoice and the work type remain

	_, mem, notifier := newTestSync(t)
	ctx := context.Background()

	s := invoicing.NewWorkTypeLedgerSync(mem, notifier)
	wt, err := s.AddWorkType(ctx, paintingFor("alice", 100))
	require.NoError(t, err)

	failing := &failingStore{Memory: mem, deleteInvoicesErr: errors.New("permission denied")}
	broken := invoicing.NewWorkTypeLedgerSync(failing, notifier)

	err = broken.DeleteWorkType(ctx, wt.ID)
	assert.Error(t, err)

	_, err = mem.FindInvoiceByWorkType(ctx, wt.ID)
	assert.NoError(t, err, "invoice must survive the failed delete")
	_, err = mem.GetWorkType(ctx, wt.ID)
	assert.NoError(t, err, "work type must survive the failed delete")
}

/*
worktype.go - Work type / invoice row synchronization

PURPOSE:
  Keeps the normalized work_types and invoices rows consistent as an
  address's work assignments change. A work type assigned to a worker
  produces at most one invoice row carrying denormalized copies of the
  address's date, text, and store reference.

LIFECYCLE:
  AddWorkType:    insert row; if a worker is assigned, find-or-create the
                  worker's invoice table for the address date's bucket and
                  insert the invoice.
  UpdateWorkType: update the row; if an invoice exists, refresh only its
                  total_income. Assigning a worker to a previously
                  unassigned work type does NOT create the missing invoice
                  retroactively; longstanding behavior the UI depends on.
                  TODO: revisit once product decides whether late
                  assignment should backfill the invoice.
  DeleteWorkType: delete the invoice rows first, then the work type.
                  If the invoice delete fails the work type stays put.

PARTIAL FAILURE:
  AddWorkType deliberately does not roll back the work type row when the
  invoice insert fails: the work type persists without its invoice and
  the failure is reported through the notifier. DeleteWorkType is the
  asymmetric case: it fails fast before touching the work type. The two
  deletes are not one transaction, so a crash between them can leave a
  dangling invoice.

SEE ALSO:
  - reconciler.go: The document-ledger counterpart
  - ledger/store.go: RelationalStore contract
*/
package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldtrack/opsledger/ledger"
)

// =============================================================================
// WORK TYPE LEDGER SYNC - Relational ledger variant
// =============================================================================

// WorkTypeInput carries the fields needed to create a work type.
// AddressID and TemplateID are required; PersonID is optional (empty
// means unassigned).
type WorkTypeInput struct {
	AddressID     ledger.AddressID
	TemplateID    ledger.TemplateID
	PersonID      ledger.WorkerID
	PaymentAmount decimal.Decimal
}

func (in WorkTypeInput) validate() error {
	if in.AddressID == "" {
		return fmt.Errorf("%w: address_id", ledger.ErrMissingField)
	}
	if in.TemplateID == "" {
		return fmt.Errorf("%w: work_type_template_id", ledger.ErrMissingField)
	}
	return nil
}

// WorkTypeLedgerSync bridges address attributes into invoice rows.
type WorkTypeLedgerSync struct {
	rel      ledger.RelationalStore
	notifier ledger.Notifier
}

func NewWorkTypeLedgerSync(rel ledger.RelationalStore, notifier ledger.Notifier) *WorkTypeLedgerSync {
	if notifier == nil {
		notifier = ledger.NopNotifier{}
	}
	return &WorkTypeLedgerSync{rel: rel, notifier: notifier}
}

// AddWorkType inserts a work type and, when a worker is assigned, the
// invoice row derived from the owning address. The returned work type is
// enriched with template and worker display names.
//
// A failure past the work type insert does NOT roll it back: the work
// type persists without its invoice and the inconsistency is reported
// through the notifier only. Callers get (workType, nil) either way.
func (s *WorkTypeLedgerSync) AddWorkType(ctx context.Context, in WorkTypeInput) (*ledger.WorkType, error) {
	if err := in.validate(); err != nil {
		s.notifier.Failure(ctx, fmt.Sprintf("Could not add work type: %v", err))
		return nil, err
	}

	wt := ledger.WorkType{
		ID:            ledger.WorkTypeID(uuid.NewString()),
		AddressID:     in.AddressID,
		TemplateID:    in.TemplateID,
		PersonID:      in.PersonID,
		PaymentAmount: in.PaymentAmount,
	}
	created, err := s.rel.InsertWorkType(ctx, wt)
	if err != nil {
		wrapped := &ledger.StoreError{Op: "insert work type", Err: err}
		s.notifier.Failure(ctx, fmt.Sprintf("Could not add work type: %v", wrapped))
		return nil, wrapped
	}
	s.enrich(ctx, &created)

	if !created.Assigned() {
		s.notifier.Success(ctx, fmt.Sprintf("Work type %s added", created.TemplateName))
		return &created, nil
	}

	if err := s.createInvoice(ctx, created); err != nil {
		// Work type already committed; report and return it anyway.
		s.notifier.Failure(ctx, fmt.Sprintf("Work type added but invoice creation failed: %v", err))
		return &created, nil
	}
	s.notifier.Success(ctx, fmt.Sprintf("Work type %s added and invoiced", created.TemplateName))
	return &created, nil
}

func (s *WorkTypeLedgerSync) createInvoice(ctx context.Context, wt ledger.WorkType) error {
	addr, err := s.rel.GetAddress(ctx, wt.AddressID)
	if err != nil {
		return &ledger.StoreError{Op: "get address", Err: err}
	}

	table, err := s.findOrCreateTable(ctx, wt.PersonID, ledger.BucketName(addr.Date))
	if err != nil {
		return err
	}

	inv := ledger.Invoice{
		ID:          ledger.InvoiceID(uuid.NewString()),
		WorkTypeID:  wt.ID,
		PersonID:    wt.PersonID,
		TableID:     table.ID,
		Date:        addr.Date,
		Address:     addr.Address,
		Store:       addr.Store,
		TotalIncome: wt.PaymentAmount,
	}
	if _, err := s.rel.InsertInvoice(ctx, inv); err != nil {
		return &ledger.StoreError{Op: "insert invoice", Err: err}
	}
	return nil
}

// findOrCreateTable resolves the worker's invoice table for a bucket
// name, creating it on first use. Not atomic: two concurrent callers for
// the same (worker, bucket) can both create a table.
func (s *WorkTypeLedgerSync) findOrCreateTable(ctx context.Context, personID ledger.WorkerID, name string) (*ledger.InvoiceTable, error) {
	table, err := s.rel.FindInvoiceTable(ctx, personID, name)
	if err == nil {
		return table, nil
	}
	if !ledger.IsNotFound(err) {
		return nil, &ledger.StoreError{Op: "find invoice table", Err: err}
	}

	created, err := s.rel.InsertInvoiceTable(ctx, ledger.InvoiceTable{
		ID:       ledger.TableID(uuid.NewString()),
		PersonID: personID,
		Name:     name,
	})
	if err != nil {
		return nil, &ledger.StoreError{Op: "insert invoice table", Err: err}
	}
	return &created, nil
}

// UpdateWorkType updates the work type's template, assignee, and amount,
// then refreshes the matching invoice's total_income if one exists.
// The invoice's date/address/store are NOT re-derived, and no invoice is
// created for a work type that gained an assignee after creation.
func (s *WorkTypeLedgerSync) UpdateWorkType(ctx context.Context, wt ledger.WorkType) error {
	if err := s.rel.UpdateWorkType(ctx, wt); err != nil {
		wrapped := &ledger.StoreError{Op: "update work type", Err: err}
		s.notifier.Failure(ctx, fmt.Sprintf("Could not update work type: %v", wrapped))
		return wrapped
	}

	inv, err := s.rel.FindInvoiceByWorkType(ctx, wt.ID)
	if err != nil {
		if ledger.IsNotFound(err) {
			s.notifier.Success(ctx, "Work type updated")
			return nil
		}
		var multiple *ledger.MultipleRowsError
		if errors.As(err, &multiple) {
			s.notifier.Failure(ctx, fmt.Sprintf("Could not update invoice: %v", multiple))
			return multiple
		}
		wrapped := &ledger.StoreError{Op: "find invoice", Err: err}
		s.notifier.Failure(ctx, fmt.Sprintf("Could not update invoice: %v", wrapped))
		return wrapped
	}

	if err := s.rel.UpdateInvoiceIncome(ctx, inv.ID, wt.PaymentAmount); err != nil {
		wrapped := &ledger.StoreError{Op: "update invoice income", Err: err}
		s.notifier.Failure(ctx, fmt.Sprintf("Work type updated but invoice update failed: %v", wrapped))
		return wrapped
	}
	s.notifier.Success(ctx, "Work type and invoice updated")
	return nil
}

// DeleteWorkType removes a work type and its invoice rows, invoices
// first. If the invoice delete fails, the work type is left in place so
// no invoice can dangle in the delete direction.
func (s *WorkTypeLedgerSync) DeleteWorkType(ctx context.Context, id ledger.WorkTypeID) error {
	if err := s.rel.DeleteInvoicesByWorkType(ctx, id); err != nil {
		wrapped := &ledger.StoreError{Op: "delete invoices", Err: err}
		s.notifier.Failure(ctx, fmt.Sprintf("Could not delete work type: %v", wrapped))
		return wrapped
	}
	if err := s.rel.DeleteWorkType(ctx, id); err != nil {
		wrapped := &ledger.StoreError{Op: "delete work type", Err: err}
		s.notifier.Failure(ctx, fmt.Sprintf("Could not delete work type: %v", wrapped))
		return wrapped
	}
	s.notifier.Success(ctx, "Work type deleted")
	return nil
}

// enrich fills the joined display fields. Lookup failures leave the
// fields empty rather than failing the operation.
func (s *WorkTypeLedgerSync) enrich(ctx context.Context, wt *ledger.WorkType) {
	if tmpl, err := s.rel.GetTemplate(ctx, wt.TemplateID); err == nil {
		wt.TemplateName = tmpl.Name
	}
	if wt.PersonID != "" {
		if w, err := s.rel.GetWorker(ctx, wt.PersonID); err == nil {
			wt.PersonName = w.Name
		}
	}
}

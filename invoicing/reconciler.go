/*
reconciler.go - Worker invoice ledger reconciliation

PURPOSE:
  Keeps a worker's fortnightly invoice ledger consistent as addresses are
  attached to and detached from the worker. The ledger is one document
  per worker: a list of period tables, each holding invoice lines keyed
  by (address, date).

INVARIANTS:
  1. At most one period table per bucket name in a worker's ledger.
  2. No two lines in a table share the same (address, date) key.
  3. A line whose amount is non-zero is never removed by this reconciler;
     only zero-amount placeholders can be detached.

LINE LIFECYCLE:
  absent -> present(amount=0) -> present(amount>0)   [amount set elsewhere]
  absent -> present(amount=0) -> absent              [via RemoveEmptyInvoice]

CONCURRENCY:
  The read-modify-write over the ledger document is guarded by an
  optimistic version check: ReplaceLedger fails with
  ErrConcurrentModification if the document changed since it was read.
  AddInvoice and RemoveEmptyInvoice retry once on conflict.

ERROR HANDLING:
  Store failures never reach the caller as panics; each operation reports
  its outcome through the Notifier and also returns the error for callers
  that want it. A no-op (duplicate add, nothing to remove) performs no
  store write.

SEE ALSO:
  - ledger/period.go: Bucket name derivation
  - worktype.go: The relational-ledger counterpart
*/
package invoicing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldtrack/opsledger/ledger"
)

// =============================================================================
// WORKER INVOICE RECONCILER - Document-nested ledger variant
// =============================================================================

// InvoiceInput identifies an invoice line: where the work happened and
// when. Amount is optional and defaults to zero.
type InvoiceInput struct {
	Address string
	Date    ledger.Date
	Amount  decimal.Decimal
}

// WorkerInvoiceReconciler maintains the nested per-worker ledger.
type WorkerInvoiceReconciler struct {
	docs     ledger.DocumentStore
	notifier ledger.Notifier
}

func NewWorkerInvoiceReconciler(docs ledger.DocumentStore, notifier ledger.Notifier) *WorkerInvoiceReconciler {
	if notifier == nil {
		notifier = ledger.NopNotifier{}
	}
	return &WorkerInvoiceReconciler{docs: docs, notifier: notifier}
}

// AddInvoice lands an invoice line in the period table matching the
// date's fortnightly bucket, creating the table on first use. Adding a
// line whose (address, date) key already exists is a no-op: the existing
// line is kept as-is, its amount untouched.
func (r *WorkerInvoiceReconciler) AddInvoice(ctx context.Context, workerID ledger.WorkerID, in InvoiceInput) error {
	err := r.addInvoice(ctx, workerID, in)
	if ledger.IsRetryable(err) {
		err = r.addInvoice(ctx, workerID, in)
	}
	if err != nil {
		r.notifier.Failure(ctx, fmt.Sprintf("Could not add invoice for worker %s: %v", workerID, err))
		return err
	}
	r.notifier.Success(ctx, fmt.Sprintf("Invoice recorded for worker %s in %s", workerID, ledger.BucketName(in.Date)))
	return nil
}

func (r *WorkerInvoiceReconciler) addInvoice(ctx context.Context, workerID ledger.WorkerID, in InvoiceInput) error {
	led, err := r.docs.GetLedger(ctx, workerID)
	if err != nil {
		return &ledger.StoreError{Op: "get ledger", Err: err}
	}

	bucket := ledger.BucketName(in.Date)
	line := ledger.InvoiceLine{Address: in.Address, Date: in.Date, Amount: in.Amount}

	if table := led.Table(bucket); table != nil {
		if table.FindLine(in.Address, in.Date) >= 0 {
			// Already recorded; no write.
			return nil
		}
		table.Lines = append(table.Lines, line)
	} else {
		led.Tables = append(led.Tables, ledger.PeriodTable{
			ID:    ledger.TableID(uuid.NewString()),
			Name:  bucket,
			Lines: []ledger.InvoiceLine{line},
		})
	}

	if err := r.docs.ReplaceLedger(ctx, led); err != nil {
		if ledger.IsRetryable(err) {
			return err
		}
		return &ledger.StoreError{Op: "replace ledger", Err: err}
	}
	return nil
}

// RemoveEmptyInvoice detaches the line keyed by (address, date) from the
// date's period table, but only while the line's amount is still zero.
// Billed lines are preserved. When nothing matches, no write happens and
// no notification is emitted.
func (r *WorkerInvoiceReconciler) RemoveEmptyInvoice(ctx context.Context, workerID ledger.WorkerID, in InvoiceInput) error {
	removed, err := r.removeEmptyInvoice(ctx, workerID, in)
	if ledger.IsRetryable(err) {
		removed, err = r.removeEmptyInvoice(ctx, workerID, in)
	}
	if err != nil {
		r.notifier.Failure(ctx, fmt.Sprintf("Could not remove invoice for worker %s: %v", workerID, err))
		return err
	}
	if removed {
		r.notifier.Success(ctx, fmt.Sprintf("Invoice removed for worker %s from %s", workerID, ledger.BucketName(in.Date)))
	}
	return nil
}

func (r *WorkerInvoiceReconciler) removeEmptyInvoice(ctx context.Context, workerID ledger.WorkerID, in InvoiceInput) (bool, error) {
	led, err := r.docs.GetLedger(ctx, workerID)
	if err != nil {
		return false, &ledger.StoreError{Op: "get ledger", Err: err}
	}

	table := led.Table(ledger.BucketName(in.Date))
	if table == nil {
		return false, nil
	}
	i := table.FindLine(in.Address, in.Date)
	if i < 0 || !table.Lines[i].IsEmpty() {
		return false, nil
	}
	table.Lines = append(table.Lines[:i], table.Lines[i+1:]...)

	if err := r.docs.ReplaceLedger(ctx, led); err != nil {
		if ledger.IsRetryable(err) {
			return false, err
		}
		return false, &ledger.StoreError{Op: "replace ledger", Err: err}
	}
	return true, nil
}

/*
store.go - Persistence interfaces for the reconciliation core

PURPOSE:
  Defines the boundary between the reconcilers and the database. Two
  storage shapes coexist, reflecting two generations of the same feature:

  DocumentStore:   One ledger document per worker, holding nested period
                   tables and invoice lines. Replaced wholesale with an
                   optimistic version check.
  RelationalStore: Normalized work_types / invoices / invoice_tables rows
                   mutated by primary key.

  The Directory interface covers the surrounding CRUD (workers, addresses,
  templates) that the reconcilers read and the HTTP API manages.

CONCURRENCY CONTRACT:
  ReplaceLedger is conditional: the write succeeds only if the stored
  document's version still equals the version carried by the ledger being
  written. On conflict it returns ErrConcurrentModification and the caller
  re-reads. The relational find-then-create path for invoice tables has NO
  such guard; two concurrent creators for the same (worker, bucket) can
  both commit. Known limitation, kept deliberately.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DOCUMENT STORE - Nested ledger documents, one per worker
// =============================================================================

// DocumentStore persists worker ledger documents.
type DocumentStore interface {
	// GetLedger returns the worker's ledger document. A worker with no
	// ledger yet gets an empty document at version 0. Returns
	// ErrWorkerNotFound if the worker id is unknown.
	GetLedger(ctx context.Context, workerID WorkerID) (*WorkerLedger, error)

	// ReplaceLedger atomically replaces the worker's ledger document,
	// conditional on led.Version matching the stored version. Returns
	// ErrConcurrentModification on conflict.
	ReplaceLedger(ctx context.Context, led *WorkerLedger) error
}

// =============================================================================
// RELATIONAL STORE - Normalized work type / invoice rows
// =============================================================================

// RelationalStore persists the normalized work type and invoice rows.
// Single-row finds distinguish "no row" (ErrNotFound) from real errors;
// FindInvoiceByWorkType additionally reports MultipleRowsError if the
// at-most-one invariant is broken in the store.
type RelationalStore interface {
	InsertWorkType(ctx context.Context, wt WorkType) (WorkType, error)
	GetWorkType(ctx context.Context, id WorkTypeID) (*WorkType, error)
	UpdateWorkType(ctx context.Context, wt WorkType) error
	DeleteWorkType(ctx context.Context, id WorkTypeID) error
	ListWorkTypesByAddress(ctx context.Context, addressID AddressID) ([]WorkType, error)

	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	FindInvoiceByWorkType(ctx context.Context, id WorkTypeID) (*Invoice, error)
	UpdateInvoiceIncome(ctx context.Context, id InvoiceID, income decimal.Decimal) error
	DeleteInvoicesByWorkType(ctx context.Context, id WorkTypeID) error

	FindInvoiceTable(ctx context.Context, personID WorkerID, name string) (*InvoiceTable, error)
	InsertInvoiceTable(ctx context.Context, table InvoiceTable) (InvoiceTable, error)
	ListInvoiceTables(ctx context.Context, personID WorkerID) ([]InvoiceTable, error)

	GetAddress(ctx context.Context, id AddressID) (*Address, error)
	GetWorker(ctx context.Context, id WorkerID) (*Worker, error)
	GetTemplate(ctx context.Context, id TemplateID) (*WorkTypeTemplate, error)
}

// =============================================================================
// DIRECTORY - CRUD for the records the core reads
// =============================================================================

// Directory manages the workers, addresses, and templates that supply
// input to the reconcilers. The HTTP API is its main consumer.
type Directory interface {
	SaveWorker(ctx context.Context, w Worker) error
	ListWorkers(ctx context.Context) ([]Worker, error)

	SaveAddress(ctx context.Context, a Address) error
	ListAddresses(ctx context.Context) ([]Address, error)
	DeleteAddress(ctx context.Context, id AddressID) error

	SaveTemplate(ctx context.Context, t WorkTypeTemplate) error
	ListTemplates(ctx context.Context) ([]WorkTypeTemplate, error)
}

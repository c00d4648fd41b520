/*
Package ledger provides the core domain types for the operations backend.

PURPOSE:
  This package contains the types and pure logic shared by the invoicing
  reconcilers: workers, addresses, work types, invoices, and the
  fortnightly period-bucketed ledger each worker owns.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkerLedger: The per-worker document holding period tables of lines
  - PeriodTable:  One fortnightly billing bucket (natural key: its name)
  - InvoiceLine:  A (address, date, amount) entry inside a period table
  - WorkType:     An address-scoped work assignment, optionally to a worker
  - Invoice:      The normalized billing row a work type produces

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing worker/address IDs
  3. Purity: No I/O in this package; stores live behind interfaces (store.go)

SEE ALSO:
  - period.go: Date-to-bucket-name derivation
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type AddressID string
type WorkTypeID string
type TemplateID string
type InvoiceID string
type TableID string

// =============================================================================
// DATE - Day-granularity calendar date
// =============================================================================

// Date is a day-granularity calendar date in UTC.
// Invoice lines are keyed by (address, date), so comparisons must
// ignore any time-of-day component.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO "YYYY-MM-DD" date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }

func (d Date) Equal(other Date) bool {
	return d.Year() == other.Year() && d.Month() == other.Month() && d.Day() == other.Day()
}

// String returns the ISO "YYYY-MM-DD" form. This is also the wire and
// storage representation.
func (d Date) String() string { return d.t.Format("2006-01-02") }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// WORKER
// =============================================================================

type WorkerStatus string

const (
	WorkerActive   WorkerStatus = "active"
	WorkerInactive WorkerStatus = "inactive"
)

type Worker struct {
	ID        WorkerID
	Name      string
	Status    WorkerStatus
	CreatedAt time.Time
}

// =============================================================================
// WORKER LEDGER - Document-nested variant (one document per worker)
// =============================================================================

// InvoiceLine is one billing entry inside a period table.
// Natural key within its table: (Address, Date). Amount defaults to zero
// until a work type sets it.
type InvoiceLine struct {
	Address string          `json:"address"`
	Date    Date            `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
}

// IsEmpty reports whether the line carries no billed amount yet.
func (l InvoiceLine) IsEmpty() bool { return l.Amount.IsZero() }

// PeriodTable is one fortnightly billing bucket for one worker.
// Name is the natural key within a worker's ledger (see BucketName);
// at most one table per name may exist per worker.
type PeriodTable struct {
	ID    TableID       `json:"id"`
	Name  string        `json:"name"`
	Lines []InvoiceLine `json:"invoices"`
}

// FindLine returns the index of the line keyed by (address, date), or -1.
func (t *PeriodTable) FindLine(address string, date Date) int {
	for i, l := range t.Lines {
		if l.Address == address && l.Date.Equal(date) {
			return i
		}
	}
	return -1
}

// WorkerLedger is the single document holding a worker's period tables.
// Version supports optimistic concurrency: ReplaceLedger rejects writes
// whose Version doesn't match the stored one.
type WorkerLedger struct {
	WorkerID WorkerID      `json:"worker_id"`
	Tables   []PeriodTable `json:"tables"`
	Version  int64         `json:"version"`
}

// Table returns the period table with the given bucket name, or nil.
func (l *WorkerLedger) Table(name string) *PeriodTable {
	for i := range l.Tables {
		if l.Tables[i].Name == name {
			return &l.Tables[i]
		}
	}
	return nil
}

// =============================================================================
// WORK TYPE & INVOICE - Relational variant
// =============================================================================

// WorkTypeTemplate is a catalog entry for a category of work.
type WorkTypeTemplate struct {
	ID   TemplateID
	Name string
}

// WorkType is an address-scoped assignment of a work category to an
// optional worker, with a payment amount.
type WorkType struct {
	ID            WorkTypeID
	AddressID     AddressID
	TemplateID    TemplateID
	PersonID      WorkerID // empty = unassigned
	PaymentAmount decimal.Decimal

	// Joined display fields, populated on reads; not persisted.
	TemplateName string
	PersonName   string
}

// Assigned reports whether the work type has an assigned worker.
func (w WorkType) Assigned() bool { return w.PersonID != "" }

// Invoice is the normalized billing row produced for an assigned work type.
// At most one invoice exists per work type. Date, Address and Store are
// denormalized copies of the owning address's fields at creation time.
type Invoice struct {
	ID          InvoiceID
	WorkTypeID  WorkTypeID
	PersonID    WorkerID
	TableID     TableID
	Date        Date
	Address     string
	Store       string
	TotalIncome decimal.Decimal
}

// InvoiceTable is the relational counterpart of PeriodTable: one row per
// (worker, bucket name). Invoices link to it via TableID.
type InvoiceTable struct {
	ID       TableID
	PersonID WorkerID
	Name     string
}

// =============================================================================
// ADDRESS - Read-only input to the reconciliation core
// =============================================================================

// Address is the job-site record supplying the date, address text, and
// store reference that get denormalized into invoices.
type Address struct {
	ID        AddressID
	Address   string
	Store     string
	Date      Date
	CreatedAt time.Time
}

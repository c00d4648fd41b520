/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.DocumentStore, ledger.RelationalStore, ledger.Directory
  and ledger.Notifier on a single SQLite database. In production the same
  patterns apply to PostgreSQL; only minor SQL dialect differences.

KEY TABLES:
  workers:             Worker records
  worker_ledgers:      One JSON document per worker (nested ledger variant),
                       with an integer version for optimistic concurrency
  addresses:           Job sites supplying date/address/store fields
  work_type_templates: Work category catalog
  work_types:          Address-scoped work assignments
  invoices:            Normalized billing rows (at most one per work type)
  invoice_tables:      Relational period tables per (worker, bucket name)
  notifications:       User-visible operation outcomes

CONCURRENCY:
  worker_ledgers replaces are conditional on the version read at fetch
  time; a conflicting write returns ErrConcurrentModification. The
  invoice_tables find-then-create path is NOT guarded: no unique index on
  (person_id, name), so concurrent creators can both commit. Kept
  deliberately; see ledger/store.go.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and crash recovery improves.

USAGE:
  store, err := sqlite.New("./data/opsledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fieldtrack/opsledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	-- Nested ledger variant: one JSON document per worker.
	-- version drives the conditional replace.
	CREATE TABLE IF NOT EXISTS worker_ledgers (
		worker_id TEXT PRIMARY KEY REFERENCES workers(id),
		doc_json TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		store TEXT,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS work_type_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS work_types (
		id TEXT PRIMARY KEY,
		address_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		person_id TEXT,
		payment_amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_work_types_address
		ON work_types(address_id);

	-- Relational period tables. Intentionally no unique index on
	-- (person_id, name): the find-then-create path is unguarded.
	CREATE TABLE IF NOT EXISTS invoice_tables (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_tables_person
		ON invoice_tables(person_id, name);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		work_type_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		table_id TEXT,
		date TEXT NOT NULL,
		address TEXT NOT NULL,
		store TEXT,
		total_income TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_work_type
		ON invoices(work_type_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_table
		ON invoices(table_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCUMENT STORE - worker_ledgers
// =============================================================================

func (s *Store) GetLedger(ctx context.Context, workerID ledger.WorkerID) (*ledger.WorkerLedger, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM workers WHERE id = ?`, string(workerID)).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ledger.ErrWorkerNotFound
	}

	var docJSON string
	var version int64
	err = s.db.QueryRowContext(ctx,
		`SELECT doc_json, version FROM worker_ledgers WHERE worker_id = ?`,
		string(workerID)).Scan(&docJSON, &version)
	if err == sql.ErrNoRows {
		return &ledger.WorkerLedger{WorkerID: workerID, Version: 0}, nil
	}
	if err != nil {
		return nil, err
	}

	var tables []ledger.PeriodTable
	if err := json.Unmarshal([]byte(docJSON), &tables); err != nil {
		return nil, fmt.Errorf("corrupt ledger document for %s: %w", workerID, err)
	}
	return &ledger.WorkerLedger{WorkerID: workerID, Tables: tables, Version: version}, nil
}

func (s *Store) ReplaceLedger(ctx context.Context, led *ledger.WorkerLedger) error {
	docJSON, err := json.Marshal(led.Tables)
	if err != nil {
		return err
	}

	if led.Version == 0 {
		// First write for this worker. A concurrent first writer
		// collides on the primary key.
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO worker_ledgers (worker_id, doc_json, version) VALUES (?, ?, 1)`,
			string(led.WorkerID), string(docJSON))
		if err != nil {
			if isConstraintViolation(err) {
				return ledger.ErrConcurrentModification
			}
			return err
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE worker_ledgers SET doc_json = ?, version = version + 1
		 WHERE worker_id = ? AND version = ?`,
		string(docJSON), string(led.WorkerID), led.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

// isConstraintViolation matches mattn/go-sqlite3 UNIQUE/PRIMARY KEY errors.
func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// =============================================================================
// RELATIONAL STORE - work_types / invoices / invoice_tables
// =============================================================================

func (s *Store) InsertWorkType(ctx context.Context, wt ledger.WorkType) (ledger.WorkType, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_types (id, address_id, template_id, person_id, payment_amount)
		 VALUES (?, ?, ?, ?, ?)`,
		string(wt.ID), string(wt.AddressID), string(wt.TemplateID),
		nullable(string(wt.PersonID)), wt.PaymentAmount.String())
	if err != nil {
		return ledger.WorkType{}, err
	}
	return wt, nil
}

func (s *Store) GetWorkType(ctx context.Context, id ledger.WorkTypeID) (*ledger.WorkType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT wt.id, wt.address_id, wt.template_id, wt.person_id, wt.payment_amount,
		        COALESCE(t.name, ''), COALESCE(w.name, '')
		 FROM work_types wt
		 LEFT JOIN work_type_templates t ON t.id = wt.template_id
		 LEFT JOIN workers w ON w.id = wt.person_id
		 WHERE wt.id = ?`, string(id))
	wt, err := scanWorkType(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return wt, nil
}

func (s *Store) UpdateWorkType(ctx context.Context, wt ledger.WorkType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_types SET template_id = ?, person_id = ?, payment_amount = ?
		 WHERE id = ?`,
		string(wt.TemplateID), nullable(string(wt.PersonID)),
		wt.PaymentAmount.String(), string(wt.ID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteWorkType(ctx context.Context, id ledger.WorkTypeID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM work_types WHERE id = ?`, string(id))
	return err
}

func (s *Store) ListWorkTypesByAddress(ctx context.Context, addressID ledger.AddressID) ([]ledger.WorkType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT wt.id, wt.address_id, wt.template_id, wt.person_id, wt.payment_amount,
		        COALESCE(t.name, ''), COALESCE(w.name, '')
		 FROM work_types wt
		 LEFT JOIN work_type_templates t ON t.id = wt.template_id
		 LEFT JOIN workers w ON w.id = wt.person_id
		 WHERE wt.address_id = ?
		 ORDER BY t.name`, string(addressID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.WorkType
	for rows.Next() {
		wt, err := scanWorkType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *wt)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkType(r rowScanner) (*ledger.WorkType, error) {
	var wt ledger.WorkType
	var personID sql.NullString
	var amount string
	if err := r.Scan(&wt.ID, &wt.AddressID, &wt.TemplateID, &personID, &amount,
		&wt.TemplateName, &wt.PersonName); err != nil {
		return nil, err
	}
	wt.PersonID = ledger.WorkerID(personID.String)
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt payment_amount for work type %s: %w", wt.ID, err)
	}
	wt.PaymentAmount = parsed
	return &wt, nil
}

func (s *Store) InsertInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, work_type_id, person_id, table_id, date, address, store, total_income)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(inv.ID), string(inv.WorkTypeID), string(inv.PersonID),
		string(inv.TableID), inv.Date.String(), inv.Address, inv.Store,
		inv.TotalIncome.String())
	if err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) FindInvoiceByWorkType(ctx context.Context, id ledger.WorkTypeID) (*ledger.Invoice, error) {
	invoices, err := s.queryInvoices(ctx,
		`SELECT id, work_type_id, person_id, table_id, date, address, store, total_income
		 FROM invoices WHERE work_type_id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	switch len(invoices) {
	case 0:
		return nil, ledger.ErrNotFound
	case 1:
		return &invoices[0], nil
	default:
		return nil, &ledger.MultipleRowsError{Table: "invoices", Key: string(id), Count: len(invoices)}
	}
}

// ListInvoicesByTable returns the invoices linked to a relational period
// table, for the ledger read API.
func (s *Store) ListInvoicesByTable(ctx context.Context, tableID ledger.TableID) ([]ledger.Invoice, error) {
	return s.queryInvoices(ctx,
		`SELECT id, work_type_id, person_id, table_id, date, address, store, total_income
		 FROM invoices WHERE table_id = ? ORDER BY date`, string(tableID))
}

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]ledger.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Invoice
	for rows.Next() {
		var inv ledger.Invoice
		var date, income string
		var store sql.NullString
		if err := rows.Scan(&inv.ID, &inv.WorkTypeID, &inv.PersonID, &inv.TableID,
			&date, &inv.Address, &store, &income); err != nil {
			return nil, err
		}
		inv.Store = store.String
		if inv.Date, err = ledger.ParseDate(date); err != nil {
			return nil, fmt.Errorf("corrupt date for invoice %s: %w", inv.ID, err)
		}
		if inv.TotalIncome, err = decimal.NewFromString(income); err != nil {
			return nil, fmt.Errorf("corrupt total_income for invoice %s: %w", inv.ID, err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) UpdateInvoiceIncome(ctx context.Context, id ledger.InvoiceID, income decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET total_income = ? WHERE id = ?`,
		income.String(), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteInvoicesByWorkType(ctx context.Context, id ledger.WorkTypeID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE work_type_id = ?`, string(id))
	return err
}

func (s *Store) FindInvoiceTable(ctx context.Context, personID ledger.WorkerID, name string) (*ledger.InvoiceTable, error) {
	var t ledger.InvoiceTable
	err := s.db.QueryRowContext(ctx,
		`SELECT id, person_id, name FROM invoice_tables WHERE person_id = ? AND name = ? LIMIT 1`,
		string(personID), name).Scan(&t.ID, &t.PersonID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) InsertInvoiceTable(ctx context.Context, table ledger.InvoiceTable) (ledger.InvoiceTable, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invoice_tables (id, person_id, name) VALUES (?, ?, ?)`,
		string(table.ID), string(table.PersonID), table.Name)
	if err != nil {
		return ledger.InvoiceTable{}, err
	}
	return table, nil
}

func (s *Store) ListInvoiceTables(ctx context.Context, personID ledger.WorkerID) ([]ledger.InvoiceTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, person_id, name FROM invoice_tables WHERE person_id = ? ORDER BY name`,
		string(personID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.InvoiceTable
	for rows.Next() {
		var t ledger.InvoiceTable
		if err := rows.Scan(&t.ID, &t.PersonID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// DIRECTORY - workers / addresses / templates
// =============================================================================

func (s *Store) SaveWorker(ctx context.Context, w ledger.Worker) error {
	if w.Status == "" {
		w.Status = ledger.WorkerActive
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (id, name, status, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, status = excluded.status`,
		string(w.ID), w.Name, string(w.Status), w.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetWorker(ctx context.Context, id ledger.WorkerID) (*ledger.Worker, error) {
	var w ledger.Worker
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at FROM workers WHERE id = ?`,
		string(id)).Scan(&w.ID, &w.Name, &w.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &w, nil
}

func (s *Store) ListWorkers(ctx context.Context) ([]ledger.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, created_at FROM workers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Worker
	for rows.Next() {
		var w ledger.Worker
		var createdAt string
		if err := rows.Scan(&w.ID, &w.Name, &w.Status, &createdAt); err != nil {
			return nil, err
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) SaveAddress(ctx context.Context, a ledger.Address) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO addresses (id, address, store, date, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET address = excluded.address, store = excluded.store, date = excluded.date`,
		string(a.ID), a.Address, a.Store, a.Date.String(), a.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetAddress(ctx context.Context, id ledger.AddressID) (*ledger.Address, error) {
	var a ledger.Address
	var date, createdAt string
	var store sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, address, store, date, created_at FROM addresses WHERE id = ?`,
		string(id)).Scan(&a.ID, &a.Address, &store, &date, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Store = store.String
	if a.Date, err = ledger.ParseDate(date); err != nil {
		return nil, fmt.Errorf("corrupt date for address %s: %w", a.ID, err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (s *Store) ListAddresses(ctx context.Context) ([]ledger.Address, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, address, store, date, created_at FROM addresses ORDER BY date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Address
	for rows.Next() {
		var a ledger.Address
		var date, createdAt string
		var store sql.NullString
		if err := rows.Scan(&a.ID, &a.Address, &store, &date, &createdAt); err != nil {
			return nil, err
		}
		a.Store = store.String
		if a.Date, err = ledger.ParseDate(date); err != nil {
			return nil, fmt.Errorf("corrupt date for address %s: %w", a.ID, err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAddress(ctx context.Context, id ledger.AddressID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = ?`, string(id))
	return err
}

func (s *Store) SaveTemplate(ctx context.Context, t ledger.WorkTypeTemplate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_type_templates (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		string(t.ID), t.Name)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id ledger.TemplateID) (*ledger.WorkTypeTemplate, error) {
	var t ledger.WorkTypeTemplate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM work_type_templates WHERE id = ?`, string(id)).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]ledger.WorkTypeTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM work_type_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.WorkTypeTemplate
	for rows.Next() {
		var t ledger.WorkTypeTemplate
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// NOTIFIER - Persisted, queryable notification log
// =============================================================================

// Success records a success notification. Best-effort: a failed insert
// is logged, never propagated, so notifying can't fail the operation it
// reports on.
func (s *Store) Success(ctx context.Context, message string) {
	s.saveNotification(ctx, ledger.LevelSuccess, message)
}

// Failure records a failure notification.
func (s *Store) Failure(ctx context.Context, message string) {
	s.saveNotification(ctx, ledger.LevelError, message)
}

func (s *Store) saveNotification(ctx context.Context, level ledger.Level, message string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, level, message, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), string(level), message, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		log.Printf("failed to persist notification: %v", err)
	}
}

// ListNotifications returns the most recent notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]ledger.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, message, created_at FROM notifications ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Notification
	for rows.Next() {
		var n ledger.Notification
		var createdAt string
		if err := rows.Scan(&n.Level, &n.Message, &createdAt); err != nil {
			return nil, err
		}
		n.At, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears all data. Dev and test use only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications;
		DELETE FROM invoices;
		DELETE FROM invoice_tables;
		DELETE FROM work_types;
		DELETE FROM work_type_templates;
		DELETE FROM addresses;
		DELETE FROM worker_ledgers;
		DELETE FROM workers;
	`)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

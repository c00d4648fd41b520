// Package store provides in-memory implementations of the ledger storage
// interfaces, used by tests and local development.
package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fieldtrack/opsledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.DocumentStore, ledger.RelationalStore and
// ledger.Directory. It honors the same conditional-replace contract as
// the SQLite store so concurrency tests behave identically.
type Memory struct {
	mu        sync.RWMutex
	workers   map[ledger.WorkerID]ledger.Worker
	ledgers   map[ledger.WorkerID]ledger.WorkerLedger
	addresses map[ledger.AddressID]ledger.Address
	templates map[ledger.TemplateID]ledger.WorkTypeTemplate
	workTypes map[ledger.WorkTypeID]ledger.WorkType
	invoices  map[ledger.InvoiceID]ledger.Invoice
	tables    map[ledger.TableID]ledger.InvoiceTable

	replaceCount int
}

func NewMemory() *Memory {
	return &Memory{
		workers:   make(map[ledger.WorkerID]ledger.Worker),
		ledgers:   make(map[ledger.WorkerID]ledger.WorkerLedger),
		addresses: make(map[ledger.AddressID]ledger.Address),
		templates: make(map[ledger.TemplateID]ledger.WorkTypeTemplate),
		workTypes: make(map[ledger.WorkTypeID]ledger.WorkType),
		invoices:  make(map[ledger.InvoiceID]ledger.Invoice),
		tables:    make(map[ledger.TableID]ledger.InvoiceTable),
	}
}

// ReplaceCount returns how many ledger replaces have been committed.
// Tests use it to assert that no-op operations perform no writes.
func (m *Memory) ReplaceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replaceCount
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

func (m *Memory) GetLedger(_ context.Context, workerID ledger.WorkerID) (*ledger.WorkerLedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.workers[workerID]; !ok {
		return nil, ledger.ErrWorkerNotFound
	}
	led, ok := m.ledgers[workerID]
	if !ok {
		return &ledger.WorkerLedger{WorkerID: workerID, Version: 0}, nil
	}
	return copyLedger(led), nil
}

func (m *Memory) ReplaceLedger(_ context.Context, led *ledger.WorkerLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[led.WorkerID]; !ok {
		return ledger.ErrWorkerNotFound
	}
	current := m.ledgers[led.WorkerID] // zero value has Version 0
	if current.Version != led.Version {
		return ledger.ErrConcurrentModification
	}
	next := *copyLedger(*led)
	next.Version = led.Version + 1
	m.ledgers[led.WorkerID] = next
	m.replaceCount++
	return nil
}

func copyLedger(led ledger.WorkerLedger) *ledger.WorkerLedger {
	out := ledger.WorkerLedger{WorkerID: led.WorkerID, Version: led.Version}
	out.Tables = make([]ledger.PeriodTable, len(led.Tables))
	for i, t := range led.Tables {
		lines := make([]ledger.InvoiceLine, len(t.Lines))
		copy(lines, t.Lines)
		out.Tables[i] = ledger.PeriodTable{ID: t.ID, Name: t.Name, Lines: lines}
	}
	return &out
}

// =============================================================================
// RELATIONAL STORE
// =============================================================================

func (m *Memory) InsertWorkType(_ context.Context, wt ledger.WorkType) (ledger.WorkType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workTypes[wt.ID] = wt
	return wt, nil
}

func (m *Memory) GetWorkType(_ context.Context, id ledger.WorkTypeID) (*ledger.WorkType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wt, ok := m.workTypes[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &wt, nil
}

func (m *Memory) UpdateWorkType(_ context.Context, wt ledger.WorkType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workTypes[wt.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.workTypes[wt.ID] = wt
	return nil
}

func (m *Memory) DeleteWorkType(_ context.Context, id ledger.WorkTypeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workTypes, id)
	return nil
}

func (m *Memory) ListWorkTypesByAddress(_ context.Context, addressID ledger.AddressID) ([]ledger.WorkType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.WorkType
	for _, wt := range m.workTypes {
		if wt.AddressID == addressID {
			out = append(out, wt)
		}
	}
	return out, nil
}

func (m *Memory) InsertInvoice(_ context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *Memory) FindInvoiceByWorkType(_ context.Context, id ledger.WorkTypeID) (*ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found []ledger.Invoice
	for _, inv := range m.invoices {
		if inv.WorkTypeID == id {
			found = append(found, inv)
		}
	}
	switch len(found) {
	case 0:
		return nil, ledger.ErrNotFound
	case 1:
		return &found[0], nil
	default:
		return nil, &ledger.MultipleRowsError{Table: "invoices", Key: string(id), Count: len(found)}
	}
}

func (m *Memory) UpdateInvoiceIncome(_ context.Context, id ledger.InvoiceID, income decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return ledger.ErrNotFound
	}
	inv.TotalIncome = income
	m.invoices[id] = inv
	return nil
}

func (m *Memory) DeleteInvoicesByWorkType(_ context.Context, id ledger.WorkTypeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for invID, inv := range m.invoices {
		if inv.WorkTypeID == id {
			delete(m.invoices, invID)
		}
	}
	return nil
}

func (m *Memory) FindInvoiceTable(_ context.Context, personID ledger.WorkerID, name string) (*ledger.InvoiceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tables {
		if t.PersonID == personID && t.Name == name {
			table := t
			return &table, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *Memory) InsertInvoiceTable(_ context.Context, table ledger.InvoiceTable) (ledger.InvoiceTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table.ID] = table
	return table, nil
}

func (m *Memory) ListInvoiceTables(_ context.Context, personID ledger.WorkerID) ([]ledger.InvoiceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.InvoiceTable
	for _, t := range m.tables {
		if t.PersonID == personID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) GetAddress(_ context.Context, id ledger.AddressID) (*ledger.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addresses[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) GetWorker(_ context.Context, id ledger.WorkerID) (*ledger.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, ledger.ErrWorkerNotFound
	}
	return &w, nil
}

func (m *Memory) GetTemplate(_ context.Context, id ledger.TemplateID) (*ledger.WorkTypeTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &t, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveWorker(_ context.Context, w ledger.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = w
	return nil
}

func (m *Memory) ListWorkers(_ context.Context) ([]ledger.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	return out, nil
}

func (m *Memory) SaveAddress(_ context.Context, a ledger.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[a.ID] = a
	return nil
}

func (m *Memory) ListAddresses(_ context.Context) ([]ledger.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Address, 0, len(m.addresses))
	for _, a := range m.addresses {
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) DeleteAddress(_ context.Context, id ledger.AddressID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.addresses, id)
	return nil
}

func (m *Memory) SaveTemplate(_ context.Context, t ledger.WorkTypeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]ledger.WorkTypeTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.WorkTypeTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

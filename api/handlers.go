/*
handlers.go - HTTP API handlers for the operations backend

PURPOSE:
  Exposes the invoicing reconcilers and the surrounding directory CRUD
  via REST. Handles HTTP request/response and JSON serialization, and
  delegates everything else to domain logic.

ENDPOINTS:
  Workers:
    GET    /api/workers                    List workers
    POST   /api/workers                    Create worker
    GET    /api/workers/{id}               Get worker
    GET    /api/workers/{id}/ledger        Get nested invoice ledger
    POST   /api/workers/{id}/invoices      Add invoice line
    DELETE /api/workers/{id}/invoices      Remove empty invoice line
    GET    /api/workers/{id}/tables        List relational invoice tables

  Addresses:
    GET    /api/addresses                  List addresses
    POST   /api/addresses                  Create/replace address
    GET    /api/addresses/{id}             Get address
    DELETE /api/addresses/{id}             Delete address
    GET    /api/addresses/{id}/worktypes   List the address's work types

  Work types:
    POST   /api/worktypes                  Create work type (+invoice)
    PUT    /api/worktypes/{id}             Update work type (+invoice income)
    DELETE /api/worktypes/{id}             Delete work type and its invoice

  Misc:
    GET/POST /api/templates                Work category catalog
    GET      /api/notifications            Recent operation outcomes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (concurrent ledger modification, unexpected state)
  - 500: Internal errors
  Reconciliation outcomes are ALSO recorded as notifications, which is
  the contract the UI polls for toasts.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldtrack/opsledger/invoicing"
	"github.com/fieldtrack/opsledger/ledger"
	"github.com/fieldtrack/opsledger/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Reconciler *invoicing.WorkerInvoiceReconciler
	WorkTypes  *invoicing.WorkTypeLedgerSync
}

// NewHandler creates a new handler with the given store. The store also
// serves as the notifier so every reconciliation outcome lands in the
// queryable notification log.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:      store,
		Reconciler: invoicing.NewWorkerInvoiceReconciler(store, store),
		WorkTypes:  invoicing.NewWorkTypeLedgerSync(store, store),
	}
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.ListWorkers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list workers", err)
		return
	}

	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = WorkerDTO{
			ID:        string(wk.ID),
			Name:      wk.Name,
			Status:    string(wk.Status),
			CreatedAt: wk.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	status := ledger.WorkerStatus(req.Status)
	if status == "" {
		status = ledger.WorkerActive
	}

	worker := ledger.Worker{ID: ledger.WorkerID(req.ID), Name: req.Name, Status: status}
	if err := h.Store.SaveWorker(r.Context(), worker); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create worker", err)
		return
	}
	writeJSON(w, http.StatusCreated, WorkerDTO{ID: req.ID, Name: req.Name, Status: string(status)})
}

func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := h.Store.GetWorker(r.Context(), ledger.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		if ledger.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Worker not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get worker", err)
		return
	}
	writeJSON(w, http.StatusOK, WorkerDTO{
		ID:        string(worker.ID),
		Name:      worker.Name,
		Status:    string(worker.Status),
		CreatedAt: worker.CreatedAt.Format(time.RFC3339),
	})
}

// GetLedger returns the worker's nested invoice ledger document.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	led, err := h.Store.GetLedger(r.Context(), ledger.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		if ledger.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Worker not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTO(led))
}

// AddInvoice lands an invoice line in the worker's ledger.
func (h *Handler) AddInvoice(w http.ResponseWriter, r *http.Request) {
	workerID := ledger.WorkerID(chi.URLParam(r, "id"))

	input, ok := parseInvoiceInput(w, r)
	if !ok {
		return
	}
	if err := h.Reconciler.AddInvoice(r.Context(), workerID, input); err != nil {
		writeReconcileError(w, "Failed to add invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveInvoice detaches a zero-amount invoice line.
func (h *Handler) RemoveInvoice(w http.ResponseWriter, r *http.Request) {
	workerID := ledger.WorkerID(chi.URLParam(r, "id"))

	input, ok := parseInvoiceInput(w, r)
	if !ok {
		return
	}
	if err := h.Reconciler.RemoveEmptyInvoice(r.Context(), workerID, input); err != nil {
		writeReconcileError(w, "Failed to remove invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseInvoiceInput(w http.ResponseWriter, r *http.Request) (invoicing.InvoiceInput, bool) {
	var req AddInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return invoicing.InvoiceInput{}, false
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required", nil)
		return invoicing.InvoiceInput{}, false
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return invoicing.InvoiceInput{}, false
	}

	amount := decimal.Zero
	if req.Amount != "" {
		if amount, err = decimal.NewFromString(req.Amount); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return invoicing.InvoiceInput{}, false
		}
	}
	return invoicing.InvoiceInput{Address: req.Address, Date: date, Amount: amount}, true
}

// ListInvoiceTables returns the worker's relational period tables with
// their invoices.
func (h *Handler) ListInvoiceTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID := ledger.WorkerID(chi.URLParam(r, "id"))

	tables, err := h.Store.ListInvoiceTables(ctx, personID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoice tables", err)
		return
	}

	dtos := make([]InvoiceTableDTO, 0, len(tables))
	for _, t := range tables {
		invoices, err := h.Store.ListInvoicesByTable(ctx, t.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
			return
		}
		dto := InvoiceTableDTO{ID: string(t.ID), PersonID: string(t.PersonID), Name: t.Name}
		for _, inv := range invoices {
			dto.Invoices = append(dto.Invoices, toInvoiceDTO(inv))
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADDRESS HANDLERS
// =============================================================================

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.Store.ListAddresses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list addresses", err)
		return
	}

	dtos := make([]AddressDTO, len(addresses))
	for i, a := range addresses {
		dtos[i] = AddressDTO{ID: string(a.ID), Address: a.Address, Store: a.Store, Date: a.Date.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var req CreateAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required", nil)
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	addr := ledger.Address{ID: ledger.AddressID(req.ID), Address: req.Address, Store: req.Store, Date: date}
	if err := h.Store.SaveAddress(r.Context(), addr); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save address", err)
		return
	}
	writeJSON(w, http.StatusCreated, AddressDTO{ID: req.ID, Address: req.Address, Store: req.Store, Date: date.String()})
}

func (h *Handler) GetAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := h.Store.GetAddress(r.Context(), ledger.AddressID(chi.URLParam(r, "id")))
	if err != nil {
		if ledger.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Address not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get address", err)
		return
	}
	writeJSON(w, http.StatusOK, AddressDTO{
		ID: string(addr.ID), Address: addr.Address, Store: addr.Store, Date: addr.Date.String(),
	})
}

func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteAddress(r.Context(), ledger.AddressID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAddressWorkTypes(w http.ResponseWriter, r *http.Request) {
	workTypes, err := h.Store.ListWorkTypesByAddress(r.Context(), ledger.AddressID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list work types", err)
		return
	}

	dtos := make([]WorkTypeDTO, len(workTypes))
	for i, wt := range workTypes {
		dtos[i] = toWorkTypeDTO(wt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WORK TYPE HANDLERS
// =============================================================================

func (h *Handler) CreateWorkType(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.PaymentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_amount", err)
		return
	}

	wt, err := h.WorkTypes.AddWorkType(r.Context(), invoicing.WorkTypeInput{
		AddressID:     ledger.AddressID(req.AddressID),
		TemplateID:    ledger.TemplateID(req.TemplateID),
		PersonID:      ledger.WorkerID(req.PersonID),
		PaymentAmount: amount,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrMissingField) {
			writeError(w, http.StatusBadRequest, "Missing required field", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create work type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkTypeDTO(*wt))
}

func (h *Handler) UpdateWorkType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.WorkTypeID(chi.URLParam(r, "id"))

	current, err := h.Store.GetWorkType(ctx, id)
	if err != nil {
		if ledger.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Work type not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get work type", err)
		return
	}

	var req UpdateWorkTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.PaymentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_amount", err)
		return
	}

	updated := *current
	if req.TemplateID != "" {
		updated.TemplateID = ledger.TemplateID(req.TemplateID)
	}
	updated.PersonID = ledger.WorkerID(req.PersonID)
	updated.PaymentAmount = amount

	if err := h.WorkTypes.UpdateWorkType(ctx, updated); err != nil {
		if errors.Is(err, ledger.ErrUnexpectedState) {
			writeError(w, http.StatusConflict, "Invoice state is inconsistent", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update work type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteWorkType(w http.ResponseWriter, r *http.Request) {
	id := ledger.WorkTypeID(chi.URLParam(r, "id"))
	if err := h.WorkTypes.DeleteWorkType(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete work type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = TemplateDTO{ID: string(t.ID), Name: t.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if err := h.Store.SaveTemplate(r.Context(), ledger.WorkTypeTemplate{
		ID: ledger.TemplateID(req.ID), Name: req.Name,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template", err)
		return
	}
	writeJSON(w, http.StatusCreated, TemplateDTO{ID: req.ID, Name: req.Name})
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.Store.ListNotifications(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}

	dtos := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		dtos[i] = NotificationDTO{Level: string(n.Level), Message: n.Message, At: n.At.Format(time.RFC3339)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeReconcileError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrConcurrentModification):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

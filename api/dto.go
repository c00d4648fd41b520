/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/fieldtrack/opsledger/ledger"
)

// =============================================================================
// WORKERS
// =============================================================================

type WorkerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateWorkerRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// =============================================================================
// ADDRESSES
// =============================================================================

type AddressDTO struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Store   string `json:"store,omitempty"`
	Date    string `json:"date"`
}

type CreateAddressRequest struct {
	ID      string `json:"id,omitempty"`
	Address string `json:"address"`
	Store   string `json:"store,omitempty"`
	Date    string `json:"date"`
}

// =============================================================================
// LEDGER (document variant)
// =============================================================================

type InvoiceLineDTO struct {
	Address string `json:"address"`
	Date    string `json:"date"`
	Amount  string `json:"amount"`
}

type PeriodTableDTO struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Invoices []InvoiceLineDTO `json:"invoices"`
}

type LedgerDTO struct {
	WorkerID string           `json:"worker_id"`
	Tables   []PeriodTableDTO `json:"tables"`
	Version  int64            `json:"version"`
}

// AddInvoiceRequest identifies an invoice line within a worker's ledger.
// Amount is optional and defaults to zero.
type AddInvoiceRequest struct {
	Address string `json:"address"`
	Date    string `json:"date"`
	Amount  string `json:"amount,omitempty"`
}

// =============================================================================
// WORK TYPES & INVOICES (relational variant)
// =============================================================================

type WorkTypeDTO struct {
	ID            string `json:"id"`
	AddressID     string `json:"address_id"`
	TemplateID    string `json:"work_type_template_id"`
	TemplateName  string `json:"template_name,omitempty"`
	PersonID      string `json:"person_id,omitempty"`
	PersonName    string `json:"person_name,omitempty"`
	PaymentAmount string `json:"payment_amount"`
}

type CreateWorkTypeRequest struct {
	AddressID     string `json:"address_id"`
	TemplateID    string `json:"work_type_template_id"`
	PersonID      string `json:"person_id,omitempty"`
	PaymentAmount string `json:"payment_amount"`
}

type UpdateWorkTypeRequest struct {
	TemplateID    string `json:"work_type_template_id"`
	PersonID      string `json:"person_id,omitempty"`
	PaymentAmount string `json:"payment_amount"`
}

type InvoiceDTO struct {
	ID          string `json:"id"`
	WorkTypeID  string `json:"work_type_id"`
	PersonID    string `json:"person_id"`
	TableID     string `json:"table_id,omitempty"`
	Date        string `json:"date"`
	Address     string `json:"address"`
	Store       string `json:"store,omitempty"`
	TotalIncome string `json:"total_income"`
}

type InvoiceTableDTO struct {
	ID       string       `json:"id"`
	PersonID string       `json:"person_id"`
	Name     string       `json:"name"`
	Invoices []InvoiceDTO `json:"invoices,omitempty"`
}

// =============================================================================
// TEMPLATES & NOTIFICATIONS
// =============================================================================

type TemplateDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateTemplateRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type NotificationDTO struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	At      string `json:"at"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toWorkTypeDTO(wt ledger.WorkType) WorkTypeDTO {
	return WorkTypeDTO{
		ID:            string(wt.ID),
		AddressID:     string(wt.AddressID),
		TemplateID:    string(wt.TemplateID),
		TemplateName:  wt.TemplateName,
		PersonID:      string(wt.PersonID),
		PersonName:    wt.PersonName,
		PaymentAmount: wt.PaymentAmount.String(),
	}
}

func toLedgerDTO(led *ledger.WorkerLedger) LedgerDTO {
	dto := LedgerDTO{WorkerID: string(led.WorkerID), Version: led.Version, Tables: []PeriodTableDTO{}}
	for _, t := range led.Tables {
		tableDTO := PeriodTableDTO{ID: string(t.ID), Name: t.Name, Invoices: []InvoiceLineDTO{}}
		for _, l := range t.Lines {
			tableDTO.Invoices = append(tableDTO.Invoices, InvoiceLineDTO{
				Address: l.Address,
				Date:    l.Date.String(),
				Amount:  l.Amount.String(),
			})
		}
		dto.Tables = append(dto.Tables, tableDTO)
	}
	return dto
}

func toInvoiceDTO(inv ledger.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:          string(inv.ID),
		WorkTypeID:  string(inv.WorkTypeID),
		PersonID:    string(inv.PersonID),
		TableID:     string(inv.TableID),
		Date:        inv.Date.String(),
		Address:     inv.Address,
		Store:       inv.Store,
		TotalIncome: inv.TotalIncome.String(),
	}
}

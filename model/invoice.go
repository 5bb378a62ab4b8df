package model

import (
	"github.com/shopspring/decimal"
)

// InvoiceFields holds the structured data extracted from a single invoice
// document. Numeric fields use NullDecimal so that "the provider did not
// report this value" stays distinguishable from an asserted zero.
type InvoiceFields struct {
	PartyName     string              `json:"party_name,omitempty"`
	PartyTaxID    string              `json:"party_tax_id,omitempty"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	InvoiceDate   string              `json:"invoice_date,omitempty"`
	TaxableAmount decimal.NullDecimal `json:"taxable_amount"`
	CGSTAmount    decimal.NullDecimal `json:"cgst_amount"`
	SGSTAmount    decimal.NullDecimal `json:"sgst_amount"`
	IGSTAmount    decimal.NullDecimal `json:"igst_amount"`
	TotalAmount   decimal.NullDecimal `json:"total_amount"`
	Currency      string              `json:"currency,omitempty"`
	LineItems     []LineItem          `json:"line_items,omitempty"`
}

// LineItem is one row of an invoice's item table.
type LineItem struct {
	Description string              `json:"description"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Amount      decimal.NullDecimal `json:"amount"`
}

// ExtractionResult status constants
const (
	ExtractionSuccess = "success"
	ExtractionFailed  = "failed"
)

// ExtractionResult records the terminal outcome of extracting one file.
// Immutable once created; one instance per file per job.
type ExtractionResult struct {
	SourceFileID string         `json:"source_file_id"`
	Fields       *InvoiceFields `json:"fields,omitempty"`
	Status       string         `json:"status"` // success, failed
	ErrorDetail  string         `json:"error_detail,omitempty"`
	ProviderUsed string         `json:"provider_used,omitempty"`
	FromCache    bool           `json:"from_cache"`
}

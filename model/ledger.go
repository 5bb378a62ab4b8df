package model

import (
	"github.com/shopspring/decimal"
)

// Group is one account group master (name -> parent group).
type Group struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

// Ledger is one ledger master. TaxRate is set only for tax ledgers.
type Ledger struct {
	Name    string `json:"name"`
	Parent  string `json:"parent"`
	TaxRate int    `json:"tax_rate,omitempty"`
}

// VoucherEntry is one signed double-entry line. The signed amounts of all
// entries in a voucher sum to exactly zero.
type VoucherEntry struct {
	LedgerName string          `json:"ledger_name"`
	Amount     decimal.Decimal `json:"amount"`
	IsDebit    bool            `json:"is_debit"`
}

// Voucher is one balanced transaction record for a single invoice.
type Voucher struct {
	Date        string         `json:"date"`
	VoucherType string         `json:"voucher_type"`
	Number      string         `json:"number"`
	PartyLedger string         `json:"party_ledger"`
	Narration   string         `json:"narration"`
	Entries     []VoucherEntry `json:"entries"`
}

// SynthesisSummary reports per-job synthesis statistics alongside the document.
type SynthesisSummary struct {
	SuccessfulCount int      `json:"successful_count"`
	FailedCount     int      `json:"failed_count"`
	NoTaxDetected   []string `json:"no_tax_detected,omitempty"` // file IDs without usable tax fields
	RatesFound      []int    `json:"rates_found"`
}

// LedgerDocument is the synthesized accounting output for one completed job.
// Masters (groups, ledgers) are emitted before vouchers so the document is
// self-contained for the importer.
type LedgerDocument struct {
	CompanyName string           `json:"company_name"`
	Groups      []Group          `json:"groups"`
	Ledgers     []Ledger         `json:"ledgers"`
	Vouchers    []Voucher        `json:"vouchers"`
	Summary     SynthesisSummary `json:"summary"`
}

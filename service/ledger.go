package service

import (
	"fmt"
	"sort"

	"github.com/Rigel07/invoice-extractor/model"
	"github.com/shopspring/decimal"
)

// Account group parents used in the generated masters.
const (
	groupSundryDebtors    = "Sundry Debtors"
	groupSundryCreditors  = "Sundry Creditors"
	groupDutiesAndTaxes   = "Duties & Taxes"
	groupSalesAccounts    = "Sales Accounts"
	groupPurchaseAccounts = "Purchase Accounts"

	unknownPartyLedger = "Unknown Party"
)

var hundred = decimal.NewFromInt(100)

// LedgerSynthesizer turns a completed job's extraction results into one
// self-contained ledger document: masters first, then balanced vouchers.
type LedgerSynthesizer struct{}

func NewLedgerSynthesizer() *LedgerSynthesizer {
	return &LedgerSynthesizer{}
}

// Synthesize builds the ledger document for a completed job. Failed files
// are excluded from the output but counted in the summary; synthesis itself
// never fails on per-invoice data quality.
func (l *LedgerSynthesizer) Synthesize(job *model.Job) *model.LedgerDocument {
	doc := &model.LedgerDocument{CompanyName: job.CompanyName}

	sales := job.TransactionType == model.TransactionSales

	partyGroup := groupSundryCreditors
	principalGroup := groupPurchaseAccounts
	principalLedger := "Purchase Account"
	voucherType := "Purchase"
	if sales {
		partyGroup = groupSundryDebtors
		principalGroup = groupSalesAccounts
		principalLedger = "Sales Account"
		voucherType = "Sales"
	}

	rateSeen := make(map[int]bool)
	partySeen := make(map[string]bool)
	var partyOrder []string

	for _, r := range job.Results {
		if r.Status != model.ExtractionSuccess {
			doc.Summary.FailedCount++
			continue
		}
		doc.Summary.SuccessfulCount++
		fields := r.Fields

		total, taxEntries, rate, hasRate := invoiceAmounts(fields)
		if !hasRate {
			doc.Summary.NoTaxDetected = append(doc.Summary.NoTaxDetected, r.SourceFileID)
		} else {
			rateSeen[rate] = true
		}
		if !total.Valid {
			// No usable amount at all; nothing to post for this invoice.
			continue
		}

		party := fields.PartyName
		if party == "" {
			party = unknownPartyLedger
		}
		if !partySeen[party] {
			partySeen[party] = true
			partyOrder = append(partyOrder, party)
		}

		voucher := model.Voucher{
			Date:        fields.InvoiceDate,
			VoucherType: voucherType,
			Number:      voucherNumber(fields, r.SourceFileID),
			PartyLedger: party,
			Narration:   fmt.Sprintf("%s invoice %s", voucherType, voucherNumber(fields, r.SourceFileID)),
		}

		// Party carries the full total; the principal absorbs whatever the
		// tax entries do not cover, so rounding drift never lands on a tax
		// ledger and the entry set sums to exactly zero.
		direction := decimal.NewFromInt(1)
		if !sales {
			direction = decimal.NewFromInt(-1)
		}

		taxSum := decimal.Zero
		var entries []model.VoucherEntry
		for _, te := range taxEntries {
			amt := te.amount.Mul(direction).Neg()
			entries = append(entries, model.VoucherEntry{
				LedgerName: taxLedgerName(job.TransactionType, rate),
				Amount:     amt,
				IsDebit:    amt.IsPositive(),
			})
			taxSum = taxSum.Add(te.amount)
		}

		partyAmt := total.Decimal.Mul(direction)
		principalAmt := total.Decimal.Sub(taxSum).Mul(direction).Neg()

		voucher.Entries = append(voucher.Entries, model.VoucherEntry{
			LedgerName: party,
			Amount:     partyAmt,
			IsDebit:    partyAmt.IsPositive(),
		})
		voucher.Entries = append(voucher.Entries, model.VoucherEntry{
			LedgerName: principalLedger,
			Amount:     principalAmt,
			IsDebit:    principalAmt.IsPositive(),
		})
		voucher.Entries = append(voucher.Entries, entries...)

		doc.Vouchers = append(doc.Vouchers, voucher)
	}

	// Masters. Groups referenced by any ledger come first, then the
	// principal ledger, tax ledgers by ascending rate, and party ledgers in
	// first-encounter order.
	doc.Groups = []model.Group{
		{Name: partyGroup, Parent: currentSide(sales)},
		{Name: principalGroup, Parent: "Primary"},
	}

	rates := make([]int, 0, len(rateSeen))
	for rate := range rateSeen {
		rates = append(rates, rate)
	}
	sort.Ints(rates)
	doc.Summary.RatesFound = rates
	if len(rates) > 0 {
		doc.Groups = append(doc.Groups, model.Group{Name: groupDutiesAndTaxes, Parent: "Primary"})
	}

	doc.Ledgers = append(doc.Ledgers, model.Ledger{Name: principalLedger, Parent: principalGroup})
	for _, rate := range rates {
		doc.Ledgers = append(doc.Ledgers, model.Ledger{
			Name:    taxLedgerName(job.TransactionType, rate),
			Parent:  groupDutiesAndTaxes,
			TaxRate: rate,
		})
	}
	for _, party := range partyOrder {
		doc.Ledgers = append(doc.Ledgers, model.Ledger{Name: party, Parent: partyGroup})
	}

	return doc
}

func currentSide(sales bool) string {
	if sales {
		return "Current Assets"
	}
	return "Current Liabilities"
}

func taxLedgerName(transactionType string, rate int) string {
	return fmt.Sprintf("%s - GST %d%%", transactionType, rate)
}

func voucherNumber(fields *model.InvoiceFields, fileID string) string {
	if fields.InvoiceNumber != "" {
		return fields.InvoiceNumber
	}
	return fileID
}

type taxComponent struct {
	name   string
	amount decimal.Decimal
}

// invoiceAmounts derives the posting amounts for one invoice: the voucher
// total, the nonzero tax components, and the effective GST rate. hasRate is
// false when the tax fields are unknown or taxable is zero; such invoices
// get principal-only postings.
func invoiceAmounts(fields *model.InvoiceFields) (total decimal.NullDecimal, taxes []taxComponent, rate int, hasRate bool) {
	taxable := fields.TaxableAmount
	taxablePositive := taxable.Valid && taxable.Decimal.IsPositive()

	if taxablePositive && fields.CGSTAmount.Valid && fields.SGSTAmount.Valid {
		combined := fields.CGSTAmount.Decimal.Add(fields.SGSTAmount.Decimal)
		rate = int(combined.Div(taxable.Decimal).Mul(hundred).Round(0).IntPart())
		hasRate = true
		if !fields.CGSTAmount.Decimal.IsZero() {
			taxes = append(taxes, taxComponent{name: "cgst", amount: fields.CGSTAmount.Decimal})
		}
		if !fields.SGSTAmount.Decimal.IsZero() {
			taxes = append(taxes, taxComponent{name: "sgst", amount: fields.SGSTAmount.Decimal})
		}
	} else if taxablePositive && fields.IGSTAmount.Valid {
		rate = int(fields.IGSTAmount.Decimal.Div(taxable.Decimal).Mul(hundred).Round(0).IntPart())
		hasRate = true
		if !fields.IGSTAmount.Decimal.IsZero() {
			taxes = append(taxes, taxComponent{name: "igst", amount: fields.IGSTAmount.Decimal})
		}
	}
	if hasRate && len(taxes) == 0 {
		// All tax components asserted zero: no rate ledger may be created,
		// or the document would carry an unreferenced master.
		hasRate = false
		rate = 0
	}

	total = fields.TotalAmount
	if !total.Valid && taxable.Valid {
		// Reconstruct the total when the provider omitted it.
		sum := taxable.Decimal
		for _, t := range taxes {
			sum = sum.Add(t.amount)
		}
		total = decimal.NewNullDecimal(sum)
	}
	return total, taxes, rate, hasRate
}

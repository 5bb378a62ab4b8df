package service

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/Rigel07/invoice-extractor/model"
	"github.com/shopspring/decimal"
)

// RenderCSV produces the tabular export for a job: one row per file, with
// extracted amounts for successes and the failure reason otherwise. Rows
// follow original file submission order.
func RenderCSV(job *model.Job) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"file_id", "status", "party_name", "party_tax_id", "invoice_number",
		"invoice_date", "taxable_amount", "cgst_amount", "sgst_amount",
		"igst_amount", "total_amount", "currency", "from_cache", "error",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range job.Results {
		row := []string{r.SourceFileID, r.Status}
		if r.Fields != nil {
			row = append(row,
				r.Fields.PartyName,
				r.Fields.PartyTaxID,
				r.Fields.InvoiceNumber,
				r.Fields.InvoiceDate,
				csvAmount(r.Fields.TaxableAmount),
				csvAmount(r.Fields.CGSTAmount),
				csvAmount(r.Fields.SGSTAmount),
				csvAmount(r.Fields.IGSTAmount),
				csvAmount(r.Fields.TotalAmount),
				r.Fields.Currency,
			)
		} else {
			row = append(row, "", "", "", "", "", "", "", "", "", "")
		}
		row = append(row, fmt.Sprintf("%t", r.FromCache), r.ErrorDetail)

		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

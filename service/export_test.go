package service

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/Rigel07/invoice-extractor/model"
)

func TestRenderCSV(t *testing.T) {
	job := &model.Job{
		ID:              "job-1",
		Status:          model.StatusCompleted,
		TransactionType: model.TransactionSales,
		FileCount:       3,
		Results: []model.ExtractionResult{
			{
				SourceFileID: "f1",
				Status:       model.ExtractionSuccess,
				FromCache:    true,
				Fields: &model.InvoiceFields{
					PartyName:     "Acme Traders",
					InvoiceNumber: "INV-42",
					TaxableAmount: nd("1000"),
					CGSTAmount:    nd("90"),
					SGSTAmount:    nd("90"),
					TotalAmount:   nd("1180"),
					Currency:      "INR",
				},
			},
			{
				SourceFileID: "f2",
				Status:       model.ExtractionFailed,
				ErrorDetail:  "unparseable provider response",
			},
			{
				SourceFileID: "f3",
				Status:       model.ExtractionSuccess,
				Fields: &model.InvoiceFields{
					PartyName:   "No Numbers Ltd",
					TotalAmount: nd("500"),
				},
			},
		},
	}

	out, err := RenderCSV(job)
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("Generated CSV does not parse: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d records", len(records))
	}

	header := records[0]
	if header[0] != "file_id" || header[len(header)-1] != "error" {
		t.Errorf("Unexpected header: %v", header)
	}

	// Rows follow submission order
	if records[1][0] != "f1" || records[2][0] != "f2" || records[3][0] != "f3" {
		t.Errorf("Expected rows in submission order, got %v %v %v", records[1][0], records[2][0], records[3][0])
	}

	row := records[1]
	if row[2] != "Acme Traders" {
		t.Errorf("Expected party Acme Traders, got %s", row[2])
	}
	if row[6] != "1000.00" || row[10] != "1180.00" {
		t.Errorf("Expected amounts with two decimal places, got taxable=%s total=%s", row[6], row[10])
	}
	if row[12] != "true" {
		t.Errorf("Expected from_cache true, got %s", row[12])
	}

	// Failed row: fields empty, error populated
	failed := records[2]
	if failed[1] != model.ExtractionFailed {
		t.Errorf("Expected failed status, got %s", failed[1])
	}
	if failed[2] != "" || failed[10] != "" {
		t.Errorf("Expected empty fields on failed row, got %v", failed)
	}
	if failed[13] != "unparseable provider response" {
		t.Errorf("Expected error detail, got %s", failed[13])
	}

	// Unknown amounts render as empty, not zero
	partial := records[3]
	if partial[6] != "" || partial[7] != "" {
		t.Errorf("Expected unknown amounts empty, got taxable=%s cgst=%s", partial[6], partial[7])
	}
	if partial[10] != "500.00" {
		t.Errorf("Expected total 500.00, got %s", partial[10])
	}
}

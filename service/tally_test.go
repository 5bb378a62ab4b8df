package service

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/Rigel07/invoice-extractor/model"
	"github.com/shopspring/decimal"
)

func sampleDocument() *model.LedgerDocument {
	return &model.LedgerDocument{
		CompanyName: "Acme Ltd",
		Groups: []model.Group{
			{Name: "Sundry Debtors", Parent: "Current Assets"},
			{Name: "Sales Accounts", Parent: "Primary"},
			{Name: "Duties & Taxes", Parent: "Primary"},
		},
		Ledgers: []model.Ledger{
			{Name: "Sales Account", Parent: "Sales Accounts"},
			{Name: "Sales - GST 18%", Parent: "Duties & Taxes", TaxRate: 18},
			{Name: "Acme Traders", Parent: "Sundry Debtors"},
		},
		Vouchers: []model.Voucher{
			{
				Date:        "2024-01-15",
				VoucherType: "Sales",
				Number:      "INV-42",
				PartyLedger: "Acme Traders",
				Narration:   "Sales invoice INV-42",
				Entries: []model.VoucherEntry{
					{LedgerName: "Acme Traders", Amount: decimal.RequireFromString("1180"), IsDebit: true},
					{LedgerName: "Sales Account", Amount: decimal.RequireFromString("-1000"), IsDebit: false},
					{LedgerName: "Sales - GST 18%", Amount: decimal.RequireFromString("-180"), IsDebit: false},
				},
			},
		},
	}
}

func TestRenderTallyXMLStructure(t *testing.T) {
	out, err := RenderTallyXML(sampleDocument())
	if err != nil {
		t.Fatalf("RenderTallyXML failed: %v", err)
	}

	// Round-trips through the same schema
	var env tallyEnvelope
	if err := xml.Unmarshal(out, &env); err != nil {
		t.Fatalf("Generated XML does not parse: %v", err)
	}

	if env.Header.TallyRequest != "Import Data" {
		t.Errorf("Expected TALLYREQUEST Import Data, got %s", env.Header.TallyRequest)
	}
	if env.Body.ImportData.RequestDesc.ReportName != "All Masters" {
		t.Errorf("Expected REPORTNAME All Masters, got %s", env.Body.ImportData.RequestDesc.ReportName)
	}
	if env.Body.ImportData.RequestDesc.StaticVariables.CurrentCompany != "Acme Ltd" {
		t.Errorf("Expected company Acme Ltd, got %s", env.Body.ImportData.RequestDesc.StaticVariables.CurrentCompany)
	}

	messages := env.Body.ImportData.RequestData.Messages
	if len(messages) != 7 {
		t.Fatalf("Expected 7 messages (3 groups, 3 ledgers, 1 voucher), got %d", len(messages))
	}
}

func TestRenderTallyXMLMastersBeforeVouchers(t *testing.T) {
	out, err := RenderTallyXML(sampleDocument())
	if err != nil {
		t.Fatalf("RenderTallyXML failed: %v", err)
	}

	var env tallyEnvelope
	if err := xml.Unmarshal(out, &env); err != nil {
		t.Fatalf("Generated XML does not parse: %v", err)
	}

	defined := make(map[string]bool)
	for _, m := range env.Body.ImportData.RequestData.Messages {
		if m.Ledger != nil {
			defined[m.Ledger.Name] = true
		}
		if m.Voucher != nil {
			// Every ledger a voucher references must already be defined.
			for _, e := range m.Voucher.Entries {
				if !defined[e.LedgerName] {
					t.Errorf("Voucher references %q before its ledger definition", e.LedgerName)
				}
			}
		}
	}
}

func TestRenderTallyXMLSignConvention(t *testing.T) {
	out, err := RenderTallyXML(sampleDocument())
	if err != nil {
		t.Fatalf("RenderTallyXML failed: %v", err)
	}

	var env tallyEnvelope
	if err := xml.Unmarshal(out, &env); err != nil {
		t.Fatalf("Generated XML does not parse: %v", err)
	}

	var voucher *tallyVoucher
	for _, m := range env.Body.ImportData.RequestData.Messages {
		if m.Voucher != nil {
			voucher = m.Voucher
		}
	}
	if voucher == nil {
		t.Fatal("Expected a voucher message")
	}

	entries := voucher.Entries
	if len(entries) != 3 {
		t.Fatalf("Expected 3 ledger entries, got %d", len(entries))
	}
	// Debit: ISDEEMEDPOSITIVE Yes with a negative amount.
	if entries[0].IsDeemedPositive != "Yes" || entries[0].Amount != "-1180.00" {
		t.Errorf("Expected debit Yes/-1180.00, got %s/%s", entries[0].IsDeemedPositive, entries[0].Amount)
	}
	// Credits: No with a positive amount.
	if entries[1].IsDeemedPositive != "No" || entries[1].Amount != "1000.00" {
		t.Errorf("Expected credit No/1000.00, got %s/%s", entries[1].IsDeemedPositive, entries[1].Amount)
	}
	if entries[2].Amount != "180.00" {
		t.Errorf("Expected tax credit 180.00, got %s", entries[2].Amount)
	}

	if voucher.Date != "20240115" {
		t.Errorf("Expected voucher date 20240115, got %s", voucher.Date)
	}
}

func TestRenderTallyXMLTaxRateAttribute(t *testing.T) {
	out, err := RenderTallyXML(sampleDocument())
	if err != nil {
		t.Fatalf("RenderTallyXML failed: %v", err)
	}

	var env tallyEnvelope
	if err := xml.Unmarshal(out, &env); err != nil {
		t.Fatalf("Generated XML does not parse: %v", err)
	}

	for _, m := range env.Body.ImportData.RequestData.Messages {
		if m.Ledger == nil {
			continue
		}
		switch m.Ledger.Name {
		case "Sales - GST 18%":
			if m.Ledger.GSTRate != 18 {
				t.Errorf("Expected tax ledger rate 18, got %d", m.Ledger.GSTRate)
			}
		case "Sales Account":
			if m.Ledger.GSTRate != 0 {
				t.Errorf("Expected no rate on principal ledger, got %d", m.Ledger.GSTRate)
			}
			// Zero rates are omitted from the output entirely
			if strings.Contains(string(out), "<RATEOFTAXCALCULATION>0</RATEOFTAXCALCULATION>") {
				t.Error("Expected zero tax rate to be omitted")
			}
		}
	}
}

func TestTallyDate(t *testing.T) {
	cases := map[string]string{
		"2024-01-15":   "20240115",
		"15/01/2024":   "20240115",
		"15-01-2024":   "20240115",
		"15.01.2024":   "20240115",
		"15 Jan 2024":  "20240115",
		"Jan 15, 2024": "20240115",
		"15-Jan-2024":  "20240115",
		"garbage":      "garbage",
		"":             "",
	}
	for in, want := range cases {
		if got := tallyDate(in); got != want {
			t.Errorf("tallyDate(%q): expected %q, got %q", in, want, got)
		}
	}
}

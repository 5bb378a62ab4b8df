package service

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/Rigel07/invoice-extractor/model"
	"github.com/shopspring/decimal"
)

// Tally import XML. Masters (groups, ledgers) are emitted before vouchers
// within one envelope so every ledger a voucher references has a preceding
// definition in the same document.

type tallyEnvelope struct {
	XMLName xml.Name    `xml:"ENVELOPE"`
	Header  tallyHeader `xml:"HEADER"`
	Body    tallyBody   `xml:"BODY"`
}

type tallyHeader struct {
	TallyRequest string `xml:"TALLYREQUEST"`
}

type tallyBody struct {
	ImportData tallyImportData `xml:"IMPORTDATA"`
}

type tallyImportData struct {
	RequestDesc tallyRequestDesc `xml:"REQUESTDESC"`
	RequestData tallyRequestData `xml:"REQUESTDATA"`
}

type tallyRequestDesc struct {
	ReportName      string               `xml:"REPORTNAME"`
	StaticVariables tallyStaticVariables `xml:"STATICVARIABLES"`
}

type tallyStaticVariables struct {
	CurrentCompany string `xml:"SVCURRENTCOMPANY"`
}

type tallyRequestData struct {
	Messages []tallyMessage `xml:"TALLYMESSAGE"`
}

type tallyMessage struct {
	Group   *tallyGroup   `xml:"GROUP,omitempty"`
	Ledger  *tallyLedger  `xml:"LEDGER,omitempty"`
	Voucher *tallyVoucher `xml:"VOUCHER,omitempty"`
}

type tallyGroup struct {
	Name   string `xml:"NAME,attr"`
	Action string `xml:"ACTION,attr"`
	Parent string `xml:"PARENT"`
}

type tallyLedger struct {
	Name    string `xml:"NAME,attr"`
	Action  string `xml:"ACTION,attr"`
	Parent  string `xml:"PARENT"`
	GSTRate int    `xml:"RATEOFTAXCALCULATION,omitempty"`
}

type tallyVoucher struct {
	VoucherType   string             `xml:"VCHTYPE,attr"`
	Action        string             `xml:"ACTION,attr"`
	Date          string             `xml:"DATE"`
	TypeName      string             `xml:"VOUCHERTYPENAME"`
	VoucherNumber string             `xml:"VOUCHERNUMBER"`
	PartyLedger   string             `xml:"PARTYLEDGERNAME"`
	Narration     string             `xml:"NARRATION"`
	Entries       []tallyLedgerEntry `xml:"ALLLEDGERENTRIES.LIST"`
}

type tallyLedgerEntry struct {
	LedgerName       string `xml:"LEDGERNAME"`
	IsDeemedPositive string `xml:"ISDEEMEDPOSITIVE"`
	Amount           string `xml:"AMOUNT"`
}

// RenderTallyXML serializes a ledger document as a Tally import envelope.
func RenderTallyXML(doc *model.LedgerDocument) ([]byte, error) {
	env := tallyEnvelope{
		Header: tallyHeader{TallyRequest: "Import Data"},
		Body: tallyBody{
			ImportData: tallyImportData{
				RequestDesc: tallyRequestDesc{
					ReportName: "All Masters",
					StaticVariables: tallyStaticVariables{
						CurrentCompany: doc.CompanyName,
					},
				},
			},
		},
	}

	messages := &env.Body.ImportData.RequestData.Messages

	for _, g := range doc.Groups {
		*messages = append(*messages, tallyMessage{
			Group: &tallyGroup{Name: g.Name, Action: "Create", Parent: g.Parent},
		})
	}
	for _, l := range doc.Ledgers {
		*messages = append(*messages, tallyMessage{
			Ledger: &tallyLedger{Name: l.Name, Action: "Create", Parent: l.Parent, GSTRate: l.TaxRate},
		})
	}
	for _, v := range doc.Vouchers {
		tv := &tallyVoucher{
			VoucherType:   v.VoucherType,
			Action:        "Create",
			Date:          tallyDate(v.Date),
			TypeName:      v.VoucherType,
			VoucherNumber: v.Number,
			PartyLedger:   v.PartyLedger,
			Narration:     v.Narration,
		}
		for _, e := range v.Entries {
			tv.Entries = append(tv.Entries, tallyLedgerEntry{
				LedgerName:       e.LedgerName,
				IsDeemedPositive: yesNo(e.IsDebit),
				Amount:           tallyAmount(e.Amount, e.IsDebit),
			})
		}
		*messages = append(*messages, tallyMessage{Voucher: tv})
	}

	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tally xml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// tallyDate normalizes extracted invoice dates to Tally's YYYYMMDD. Dates
// in unrecognized formats pass through unchanged.
func tallyDate(date string) string {
	layouts := []string{
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"02.01.2006",
		"2/1/2006",
		"02 Jan 2006",
		"2 Jan 2006",
		"Jan 2, 2006",
		"02-Jan-2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("20060102")
		}
	}
	return date
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// tallyAmount renders an entry amount in Tally's sign convention: debit
// entries carry a negative amount with ISDEEMEDPOSITIVE=Yes, credits carry
// a positive amount.
func tallyAmount(amount decimal.Decimal, isDebit bool) string {
	abs := amount.Abs()
	if isDebit {
		return abs.Neg().StringFixed(2)
	}
	return abs.StringFixed(2)
}

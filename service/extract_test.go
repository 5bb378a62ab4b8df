package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rigel07/invoice-extractor/config"
	"github.com/Rigel07/invoice-extractor/model"
	"github.com/shopspring/decimal"
)

// fakeInvoker scripts responses per provider ID and records every call.
type fakeInvoker struct {
	mu        sync.Mutex
	responses map[string]func() (string, error)
	calls     []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, cfg config.ProviderConfig, images []ImagePayload, instruction string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cfg.ID)
	f.mu.Unlock()

	if fn, ok := f.responses[cfg.ID]; ok {
		return fn()
	}
	return "", fmt.Errorf("no scripted response for %s", cfg.ID)
}

func (f *fakeInvoker) callsTo(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == id {
			n++
		}
	}
	return n
}

func respond(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

const sampleResponse = "Here is the extracted data:\n```json\n" +
	`{"party_name": "Acme Traders", "party_tax_id": "27AAACA1234A1Z5", ` +
	`"invoice_number": "INV-42", "invoice_date": "2024-01-15", ` +
	`"taxable_amount": 1000, "cgst_amount": 90, "sgst_amount": 90, ` +
	`"igst_amount": null, "total_amount": 1180, "currency": "INR"}` +
	"\n```"

func newTestExtractor(t *testing.T, providers []config.ProviderConfig, invoker ProviderInvoker) (*Extractor, *ProviderRegistry) {
	t.Helper()

	extraction := &config.ExtractionConfig{
		CallTimeoutSeconds: 5,
		MaxAttempts:        6,
		FailureThreshold:   3,
		BackoffBaseSeconds: 30,
	}
	registry := NewProviderRegistry(providers, extraction)
	cache := NewContentCache(NewMemoryStore(), time.Hour)
	return NewExtractor(registry, invoker, cache, extraction), registry
}

func TestExtractSuccess(t *testing.T) {
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": respond(sampleResponse),
	}}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	file := model.FileInput{FileID: "f1", Filename: "inv.jpg", MimeType: "image/jpeg", Bytes: []byte("jpeg bytes")}
	result := extractor.Extract(context.Background(), file, false)

	if result.Status != model.ExtractionSuccess {
		t.Fatalf("Expected success, got %s (%s)", result.Status, result.ErrorDetail)
	}
	if result.ProviderUsed != "provider-1" {
		t.Errorf("Expected provider-1, got %s", result.ProviderUsed)
	}
	if result.FromCache {
		t.Error("Expected first extraction not to come from cache")
	}
	if result.Fields.PartyName != "Acme Traders" {
		t.Errorf("Expected party Acme Traders, got %s", result.Fields.PartyName)
	}
	if !result.Fields.TotalAmount.Valid || !result.Fields.TotalAmount.Decimal.Equal(decimal.RequireFromString("1180")) {
		t.Errorf("Expected total 1180, got %+v", result.Fields.TotalAmount)
	}
	if result.Fields.IGSTAmount.Valid {
		t.Error("Expected null igst to stay unknown")
	}
}

func TestExtractFailover(t *testing.T) {
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": fail(fmt.Errorf("gemini: %w", ErrQuotaExceeded)),
		"provider-2": respond(sampleResponse),
	}}
	extractor, registry := newTestExtractor(t, testProviders(), invoker)

	file := model.FileInput{FileID: "f1", MimeType: "image/jpeg", Bytes: []byte("a")}
	result := extractor.Extract(context.Background(), file, true)

	if result.Status != model.ExtractionSuccess {
		t.Fatalf("Expected success via failover, got %s (%s)", result.Status, result.ErrorDetail)
	}
	if result.ProviderUsed != "provider-2" {
		t.Errorf("Expected provider-2 after failover, got %s", result.ProviderUsed)
	}

	// provider-1 is cooling down until the daily reset
	states := registry.Snapshot()
	if states[0].CooldownUntil.IsZero() {
		t.Error("Expected quota-exceeded provider to be cooling down")
	}

	// A second extraction must not touch provider-1 again
	file2 := model.FileInput{FileID: "f2", MimeType: "image/jpeg", Bytes: []byte("b")}
	extractor.Extract(context.Background(), file2, true)
	if got := invoker.callsTo("provider-1"); got != 1 {
		t.Errorf("Expected no further calls to provider-1, got %d total", got)
	}
}

func TestExtractAllProvidersExhausted(t *testing.T) {
	quotaErr := fmt.Errorf("gemini: %w", ErrQuotaExceeded)
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": fail(quotaErr),
		"provider-2": fail(quotaErr),
		"provider-3": fail(quotaErr),
	}}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	file := model.FileInput{FileID: "f1", MimeType: "image/jpeg", Bytes: []byte("a")}
	result := extractor.Extract(context.Background(), file, true)

	if result.Status != model.ExtractionFailed {
		t.Fatal("Expected failure when every provider is exhausted")
	}
	if result.ErrorDetail != ErrProvidersExhausted.Error() {
		t.Errorf("Expected %q, got %q", ErrProvidersExhausted.Error(), result.ErrorDetail)
	}
}

func TestExtractUnparseableResponse(t *testing.T) {
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": respond("I could not read this document, sorry."),
	}}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	file := model.FileInput{FileID: "f1", MimeType: "image/jpeg", Bytes: []byte("a")}
	result := extractor.Extract(context.Background(), file, true)

	if result.Status != model.ExtractionFailed {
		t.Fatal("Expected failure for unparseable response")
	}
	if result.ErrorDetail != ErrUnparseableResponse.Error() {
		t.Errorf("Expected %q, got %q", ErrUnparseableResponse.Error(), result.ErrorDetail)
	}
	if result.ProviderUsed != "provider-1" {
		t.Errorf("Expected provider attribution even on parse failure, got %s", result.ProviderUsed)
	}
}

func TestExtractCacheIdempotence(t *testing.T) {
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": respond(sampleResponse),
	}}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	file := model.FileInput{FileID: "f1", MimeType: "image/jpeg", Bytes: []byte("same bytes")}

	first := extractor.Extract(context.Background(), file, false)
	if first.FromCache {
		t.Fatal("Expected first extraction to miss the cache")
	}

	// Same content, different file identity: must be served from cache
	second := extractor.Extract(context.Background(), model.FileInput{
		FileID: "f2", MimeType: "image/jpeg", Bytes: []byte("same bytes"),
	}, false)
	if !second.FromCache {
		t.Fatal("Expected second extraction to hit the cache")
	}
	if second.Fields.PartyName != first.Fields.PartyName {
		t.Error("Expected cached fields to match the original extraction")
	}
	if got := invoker.callsTo("provider-1"); got != 1 {
		t.Errorf("Expected exactly one provider call, got %d", got)
	}
}

func TestExtractBypassCache(t *testing.T) {
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": respond(sampleResponse),
	}}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	file := model.FileInput{FileID: "f1", MimeType: "image/jpeg", Bytes: []byte("same bytes")}
	extractor.Extract(context.Background(), file, false)

	result := extractor.Extract(context.Background(), file, true)
	if result.FromCache {
		t.Error("Expected bypass to skip the cache")
	}
	if got := invoker.callsTo("provider-1"); got != 2 {
		t.Errorf("Expected two provider calls with bypass, got %d", got)
	}
}

func TestExtractBatchShortfall(t *testing.T) {
	// Three entries for five images: trailing two must fail.
	batchResponse := `[
		{"party_name": "A", "total_amount": 100},
		{"party_name": "B", "total_amount": 200},
		{"party_name": "C", "total_amount": 300}
	]`
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": respond(batchResponse),
	}}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	files := make([]model.FileInput, 5)
	for i := range files {
		files[i] = model.FileInput{
			FileID:   fmt.Sprintf("f%d", i+1),
			MimeType: "image/jpeg",
			Bytes:    []byte(fmt.Sprintf("content %d", i+1)),
		}
	}

	results := extractor.ExtractBatch(context.Background(), files, true)
	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}

	wantParties := []string{"A", "B", "C"}
	for i, want := range wantParties {
		if results[i].Status != model.ExtractionSuccess {
			t.Errorf("Expected result %d success, got %s", i, results[i].Status)
			continue
		}
		if results[i].Fields.PartyName != want {
			t.Errorf("Expected result %d party %s, got %s", i, want, results[i].Fields.PartyName)
		}
	}
	for i := 3; i < 5; i++ {
		if results[i].Status != model.ExtractionFailed {
			t.Errorf("Expected trailing result %d failed, got %s", i, results[i].Status)
		}
		if results[i].ErrorDetail != ErrUnparseableResponse.Error() {
			t.Errorf("Expected trailing result %d detail %q, got %q", i, ErrUnparseableResponse.Error(), results[i].ErrorDetail)
		}
	}
	for i, r := range results {
		if r.SourceFileID != fmt.Sprintf("f%d", i+1) {
			t.Errorf("Expected result %d for file f%d, got %s", i, i+1, r.SourceFileID)
		}
	}
}

func TestExtractBatchSingleObjectFallback(t *testing.T) {
	// Some providers answer a batch request with one bare object.
	invoker := &fakeInvoker{responses: map[string]func() (string, error){
		"provider-1": respond(sampleResponse),
	}}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	files := []model.FileInput{
		{FileID: "f1", MimeType: "image/jpeg", Bytes: []byte("a")},
		{FileID: "f2", MimeType: "image/jpeg", Bytes: []byte("b")},
	}
	results := extractor.ExtractBatch(context.Background(), files, true)

	if results[0].Status != model.ExtractionSuccess {
		t.Errorf("Expected first file success, got %s", results[0].Status)
	}
	if results[1].Status != model.ExtractionFailed {
		t.Errorf("Expected second file failed on shortfall, got %s", results[1].Status)
	}
}

func TestParseEntries(t *testing.T) {
	// Truncates provider over-counts to the number of images sent.
	arr := `[{"a": 1}, {"a": 2}, {"a": 3}]`
	entries, err := parseEntries(arr, 2)
	if err != nil {
		t.Fatalf("parseEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected over-count truncated to 2, got %d", len(entries))
	}

	// Fenced object with surrounding prose
	entries, err = parseEntries("Sure! ```json\n{\"party_name\": \"X\"}\n```", 1)
	if err != nil {
		t.Fatalf("parseEntries failed on fenced object: %v", err)
	}
	if entries[0]["party_name"] != "X" {
		t.Errorf("Expected party X, got %v", entries[0]["party_name"])
	}

	if _, err := parseEntries("no json here", 1); err == nil {
		t.Error("Expected error for text with no JSON")
	}
}

func TestCoerceDecimal(t *testing.T) {
	cases := []struct {
		in    any
		want  string
		valid bool
	}{
		{1180.0, "1180", true},
		{1180.555, "1180.56", true},
		{"1,18,000.50", "118000.5", true},
		{"₹1180", "1180", true},
		{"Rs. 500", "500", true},
		{"$99.99", "99.99", true},
		{"null", "", false},
		{"N/A", "", false},
		{"", "", false},
		{"not a number", "", false},
		{nil, "", false},
		{true, "", false},
	}

	for _, tc := range cases {
		got := coerceDecimal(tc.in)
		if got.Valid != tc.valid {
			t.Errorf("coerceDecimal(%v): expected valid=%v, got %v", tc.in, tc.valid, got.Valid)
			continue
		}
		if tc.valid && !got.Decimal.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("coerceDecimal(%v): expected %s, got %s", tc.in, tc.want, got.Decimal)
		}
	}
}

func TestCoerceFieldsSynonyms(t *testing.T) {
	obj := map[string]any{
		"Party Name":      "Acme Traders",
		"GSTIN":           "27AAACA1234A1Z5",
		"tax_invoice_no":  "INV-42",
		"Taxable Value":   1000.0,
		"CGST":            90.0,
		"SGST":            90.0,
		"invoice value":   1180.0,
		"unrelated_field": "ignored",
		"line_items": []any{
			map[string]any{"description": "Widget", "quantity": 2.0, "unit_price": 500.0, "amount": 1000.0},
		},
	}

	fields := coerceFields(obj)
	if fields.PartyName != "Acme Traders" {
		t.Errorf("Expected party via synonym, got %s", fields.PartyName)
	}
	if fields.PartyTaxID != "27AAACA1234A1Z5" {
		t.Errorf("Expected tax id via GSTIN synonym, got %s", fields.PartyTaxID)
	}
	if fields.InvoiceNumber != "INV-42" {
		t.Errorf("Expected invoice number via synonym, got %s", fields.InvoiceNumber)
	}
	if !fields.TotalAmount.Valid || !fields.TotalAmount.Decimal.Equal(decimal.NewFromInt(1180)) {
		t.Errorf("Expected total 1180 via synonym, got %+v", fields.TotalAmount)
	}
	if fields.IGSTAmount.Valid {
		t.Error("Expected missing igst to stay unknown")
	}
	if len(fields.LineItems) != 1 || fields.LineItems[0].Description != "Widget" {
		t.Errorf("Expected one Widget line item, got %+v", fields.LineItems)
	}
}

func TestExtractBatchInstruction(t *testing.T) {
	var captured string
	invoker := &capturingInvoker{response: sampleResponse, instruction: &captured}
	extractor, _ := newTestExtractor(t, testProviders(), invoker)

	files := []model.FileInput{
		{FileID: "f1", MimeType: "image/jpeg", Bytes: []byte("a")},
		{FileID: "f2", MimeType: "image/jpeg", Bytes: []byte("b")},
		{FileID: "f3", MimeType: "image/jpeg", Bytes: []byte("c")},
	}
	extractor.ExtractBatch(context.Background(), files, true)

	if !strings.Contains(captured, "3 documents") {
		t.Errorf("Expected batch instruction to state the document count, got %q", captured)
	}
	if !strings.Contains(captured, "JSON array") {
		t.Errorf("Expected batch instruction to request an array, got %q", captured)
	}
}

type capturingInvoker struct {
	response    string
	instruction *string
}

func (c *capturingInvoker) Invoke(ctx context.Context, cfg config.ProviderConfig, images []ImagePayload, instruction string) (string, error) {
	*c.instruction = instruction
	return c.response, nil
}

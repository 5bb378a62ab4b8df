package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rigel07/invoice-extractor/config"
	"github.com/Rigel07/invoice-extractor/model"
	"github.com/shopspring/decimal"
)

const extractionInstruction = "Extract the PARTY NAME, PARTY GSTIN, TAX INVOICE NO., INVOICE DATE, " +
	"TAXABLE VALUE, CGST, SGST, IGST, INVOICE VALUE, CURRENCY and the LINE ITEMS " +
	"(description, quantity, unit price, amount) from this invoice document. " +
	"Provide the output in a clean JSON object with the keys: party_name, party_tax_id, " +
	"invoice_number, invoice_date, taxable_amount, cgst_amount, sgst_amount, igst_amount, " +
	"total_amount, currency, line_items. Use null for any value not present on the document."

// Extractor turns raw file bytes into structured invoice fields by calling
// inference providers through the registry, with content-hash caching and
// cross-provider failover.
type Extractor struct {
	registry    *ProviderRegistry
	invoker     ProviderInvoker
	cache       *ContentCache
	callTimeout time.Duration
	maxAttempts int
}

func NewExtractor(registry *ProviderRegistry, invoker ProviderInvoker, cache *ContentCache, cfg *config.ExtractionConfig) *Extractor {
	return &Extractor{
		registry:    registry,
		invoker:     invoker,
		cache:       cache,
		callTimeout: time.Duration(cfg.CallTimeoutSeconds) * time.Second,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Extract processes a single file. Equivalent to a batch of one.
func (e *Extractor) Extract(ctx context.Context, file model.FileInput, bypassCache bool) model.ExtractionResult {
	return e.ExtractBatch(ctx, []model.FileInput{file}, bypassCache)[0]
}

// ExtractBatch submits a group of files in one provider call and returns one
// result per file, in submission order. Cached files never reach a provider.
// If the provider returns fewer structured entries than submitted images,
// the trailing files are recorded as failed because position-to-file
// correspondence cannot be guaranteed beyond the returned count.
func (e *Extractor) ExtractBatch(ctx context.Context, files []model.FileInput, bypassCache bool) []model.ExtractionResult {
	results := make([]model.ExtractionResult, len(files))

	// Resolve cache hits first so only misses consume quota.
	var pending []int
	hashes := make([]string, len(files))
	for i, f := range files {
		hashes[i] = Fingerprint(f.Bytes)
		if !bypassCache {
			if fields, ok := e.cache.Lookup(ctx, hashes[i]); ok {
				results[i] = model.ExtractionResult{
					SourceFileID: f.FileID,
					Fields:       fields,
					Status:       model.ExtractionSuccess,
					FromCache:    true,
				}
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results
	}

	images := make([]ImagePayload, len(pending))
	for n, i := range pending {
		images[n] = ImagePayload{MimeType: files[i].MimeType, Data: files[i].Bytes}
	}

	text, providerID, err := e.invokeWithFailover(ctx, images)
	if err != nil {
		for _, i := range pending {
			results[i] = model.ExtractionResult{
				SourceFileID: files[i].FileID,
				Status:       model.ExtractionFailed,
				ErrorDetail:  err.Error(),
			}
		}
		return results
	}

	entries, perr := parseEntries(text, len(pending))
	if perr != nil {
		slog.Warn("provider response could not be parsed",
			"provider", providerID,
			"files", len(pending),
		)
		for _, i := range pending {
			results[i] = model.ExtractionResult{
				SourceFileID: files[i].FileID,
				Status:       model.ExtractionFailed,
				ErrorDetail:  ErrUnparseableResponse.Error(),
				ProviderUsed: providerID,
			}
		}
		return results
	}

	for n, i := range pending {
		if n < len(entries) {
			fields := coerceFields(entries[n])
			results[i] = model.ExtractionResult{
				SourceFileID: files[i].FileID,
				Fields:       fields,
				Status:       model.ExtractionSuccess,
				ProviderUsed: providerID,
			}
			if !bypassCache {
				if err := e.cache.Store(ctx, hashes[i], fields); err != nil {
					slog.Warn("failed to write cache entry", "file_id", files[i].FileID, "error", err)
				}
			}
		} else {
			// Shortfall: the provider returned fewer entries than images.
			results[i] = model.ExtractionResult{
				SourceFileID: files[i].FileID,
				Status:       model.ExtractionFailed,
				ErrorDetail:  ErrUnparseableResponse.Error(),
				ProviderUsed: providerID,
			}
		}
	}
	return results
}

// invokeWithFailover walks providers in priority order until one answers.
// Retry count is bounded across providers, not unbounded.
func (e *Extractor) invokeWithFailover(ctx context.Context, images []ImagePayload) (string, string, error) {
	instruction := extractionInstruction
	if len(images) > 1 {
		instruction = fmt.Sprintf(
			"The following %d documents are separate invoices. For each document, in order, %s Return a JSON array with exactly one object per document, in the same order as the documents.",
			len(images), lowerFirst(extractionInstruction))
	}

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		providerID, ok := e.registry.Select()
		if !ok {
			return "", "", ErrProvidersExhausted
		}
		cfg, ok := e.registry.Config(providerID)
		if !ok {
			return "", "", fmt.Errorf("unknown provider selected: %s", providerID)
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		text, err := e.invoker.Invoke(callCtx, cfg, images, instruction)
		cancel()

		if err == nil {
			e.registry.RecordOutcome(providerID, OutcomeSuccess)
			return text, providerID, nil
		}

		lastErr = err
		if errors.Is(err, ErrQuotaExceeded) {
			e.registry.RecordOutcome(providerID, OutcomeQuotaExceeded)
		} else {
			e.registry.RecordOutcome(providerID, OutcomeTransientFailure)
		}
		slog.Warn("provider call failed, trying next provider",
			"provider", providerID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return "", "", fmt.Errorf("extraction failed after %d attempts: %w", e.maxAttempts, lastErr)
}

// parseEntries recovers structured objects from free-form provider text.
// Providers wrap JSON in prose or markdown fences, so the parse slices
// between the outermost braces/brackets instead of decoding strictly.
func parseEntries(text string, want int) ([]map[string]any, error) {
	if want > 1 {
		if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
			var arr []map[string]any
			if err := json.Unmarshal([]byte(text[start:end+1]), &arr); err == nil {
				if len(arr) > want {
					arr = arr[:want]
				}
				return arr, nil
			}
		}
		// Fall through: some providers answer a batch with one object.
	}

	obj, err := parseObject(text)
	if err != nil {
		return nil, err
	}
	return []map[string]any{obj}, nil
}

// parseObject slices the substring between the first '{' and the last '}'.
func parseObject(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrUnparseableResponse
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, ErrUnparseableResponse
	}
	return obj, nil
}

// Field-name synonyms providers use despite the instructed keys.
var fieldSynonyms = map[string][]string{
	"party_name":     {"party_name", "party name", "party", "name"},
	"party_tax_id":   {"party_tax_id", "party_gstin", "party gstin", "gstin"},
	"invoice_number": {"invoice_number", "tax_invoice_no", "tax invoice no.", "invoice_no"},
	"invoice_date":   {"invoice_date", "invoice date", "date"},
	"taxable_amount": {"taxable_amount", "taxable_value", "taxable value"},
	"cgst_amount":    {"cgst_amount", "cgst"},
	"sgst_amount":    {"sgst_amount", "sgst"},
	"igst_amount":    {"igst_amount", "igst"},
	"total_amount":   {"total_amount", "invoice_value", "invoice value", "total"},
	"currency":       {"currency", "currency_code"},
}

// coerceFields maps a loosely structured provider object onto InvoiceFields.
// Missing fields stay unknown; non-numeric values in numeric fields stay
// unknown rather than becoming zero.
func coerceFields(obj map[string]any) *model.InvoiceFields {
	lowered := make(map[string]any, len(obj))
	for k, v := range obj {
		lowered[strings.ToLower(strings.TrimSpace(k))] = v
	}

	pick := func(field string) (any, bool) {
		for _, syn := range fieldSynonyms[field] {
			if v, ok := lowered[syn]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}

	str := func(field string) string {
		if v, ok := pick(field); ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}
	dec := func(field string) decimal.NullDecimal {
		if v, ok := pick(field); ok {
			return coerceDecimal(v)
		}
		return decimal.NullDecimal{}
	}

	fields := &model.InvoiceFields{
		PartyName:     str("party_name"),
		PartyTaxID:    str("party_tax_id"),
		InvoiceNumber: str("invoice_number"),
		InvoiceDate:   str("invoice_date"),
		TaxableAmount: dec("taxable_amount"),
		CGSTAmount:    dec("cgst_amount"),
		SGSTAmount:    dec("sgst_amount"),
		IGSTAmount:    dec("igst_amount"),
		TotalAmount:   dec("total_amount"),
		Currency:      str("currency"),
	}

	if items, ok := lowered["line_items"].([]any); ok {
		for _, it := range items {
			row, ok := it.(map[string]any)
			if !ok {
				continue
			}
			li := model.LineItem{}
			if s, ok := row["description"].(string); ok {
				li.Description = strings.TrimSpace(s)
			}
			if v, ok := row["quantity"]; ok {
				li.Quantity = coerceDecimal(v)
			}
			if v, ok := row["unit_price"]; ok {
				li.UnitPrice = coerceDecimal(v)
			}
			if v, ok := row["amount"]; ok {
				li.Amount = coerceDecimal(v)
			}
			fields.LineItems = append(fields.LineItems, li)
		}
	}

	return fields
}

// coerceDecimal converts provider values (numbers, or strings with currency
// symbols and thousands separators) into a two-place decimal. Anything that
// cannot be read as a number stays unknown.
func coerceDecimal(v any) decimal.NullDecimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(t).Round(2))
	case string:
		s := strings.TrimSpace(t)
		s = strings.NewReplacer(",", "", "₹", "", "$", "", "€", "", "Rs.", "", "Rs", "", " ", "").Replace(s)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d.Round(2))
	default:
		return decimal.NullDecimal{}
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/Rigel07/invoice-extractor/model"
)

// ContentCache maps a content fingerprint to a previously extracted result.
// Entries are immutable once written; the TTL is storage pressure relief,
// never a correctness requirement.
type ContentCache struct {
	store KVStore
	ttl   time.Duration
}

func NewContentCache(store KVStore, ttl time.Duration) *ContentCache {
	return &ContentCache{store: store, ttl: ttl}
}

// Fingerprint returns the deterministic cache key for a file's raw bytes.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cacheKey(contentHash string) string {
	return "cache:" + contentHash
}

// Lookup returns the cached fields for a content hash, or ok=false on miss.
func (c *ContentCache) Lookup(ctx context.Context, contentHash string) (*model.InvoiceFields, bool) {
	data, err := c.store.Get(ctx, cacheKey(contentHash))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			// A broken store is treated as a miss; the provider call covers it.
			return nil, false
		}
		return nil, false
	}

	var fields model.InvoiceFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return &fields, true
}

// Store writes extracted fields under the content hash.
func (c *ContentCache) Store(ctx context.Context, contentHash string, fields *model.InvoiceFields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, cacheKey(contentHash), data, c.ttl)
}

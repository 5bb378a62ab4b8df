package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Rigel07/invoice-extractor/config"
	"github.com/Rigel07/invoice-extractor/model"
)

// CallOutcome classifies the result of one provider invocation for quota
// and health bookkeeping.
type CallOutcome int

const (
	OutcomeSuccess CallOutcome = iota
	OutcomeQuotaExceeded
	OutcomeTransientFailure
)

type providerEntry struct {
	cfg   config.ProviderConfig
	state model.ProviderState
}

// ProviderRegistry is the ordered set of inference providers plus their
// quota/health state. Selection and usage accounting happen under one
// mutex so two callers can never both claim a provider's last quota slot.
type ProviderRegistry struct {
	mu               sync.Mutex
	providers        []*providerEntry
	failureThreshold int
	backoffBase      time.Duration
	now              func() time.Time
	resetAt          time.Time
}

func NewProviderRegistry(providers []config.ProviderConfig, extraction *config.ExtractionConfig) *ProviderRegistry {
	r := &ProviderRegistry{
		failureThreshold: extraction.FailureThreshold,
		backoffBase:      time.Duration(extraction.BackoffBaseSeconds) * time.Second,
		now:              time.Now,
	}
	for i, p := range providers {
		r.providers = append(r.providers, &providerEntry{
			cfg: p,
			state: model.ProviderState{
				ProviderID:   p.ID,
				PriorityRank: i + 1,
				DailyQuota:   p.DailyQuota,
			},
		})
	}
	r.resetAt = nextDailyBoundary(r.now())
	return r
}

// nextDailyBoundary returns the next UTC midnight after t, which is when
// provider quotas roll over.
func nextDailyBoundary(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// rollDailyWindow zeroes counters once the daily boundary passes.
// Must be called with the lock held.
func (r *ProviderRegistry) rollDailyWindow(now time.Time) {
	if now.Before(r.resetAt) {
		return
	}
	for _, p := range r.providers {
		p.state.CallsUsedToday = 0
		p.state.ConsecutiveFailures = 0
		p.state.CooldownUntil = time.Time{}
	}
	r.resetAt = nextDailyBoundary(now)
	slog.Info("provider quota window rolled over", "next_reset", r.resetAt)
}

// Select returns the highest-priority available provider and reserves one
// quota slot for it. ok=false means every provider was skipped; that is a
// distinct outcome, not an error.
func (r *ProviderRegistry) Select() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.rollDailyWindow(now)

	for _, p := range r.providers {
		if !p.state.Available(now) {
			continue
		}
		// Reserve the slot inside the same critical section as the check,
		// so concurrent callers cannot oversubscribe the quota.
		p.state.CallsUsedToday++
		return p.cfg.ID, true
	}
	return "", false
}

// RecordOutcome updates quota and health state after a call to providerID.
func (r *ProviderRegistry) RecordOutcome(providerID string, outcome CallOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.find(providerID)
	if p == nil {
		return
	}

	now := r.now()
	switch outcome {
	case OutcomeSuccess:
		p.state.ConsecutiveFailures = 0

	case OutcomeQuotaExceeded:
		// The remote count is authoritative: stand the provider down until
		// the daily boundary even if local counting disagrees.
		p.state.CooldownUntil = r.resetAt
		p.state.ConsecutiveFailures = 0
		slog.Warn("provider quota exceeded, cooling down until daily reset",
			"provider", providerID,
			"cooldown_until", p.state.CooldownUntil,
		)

	case OutcomeTransientFailure:
		p.state.ConsecutiveFailures++
		if p.state.ConsecutiveFailures >= r.failureThreshold {
			backoff := r.backoffBase << uint(p.state.ConsecutiveFailures-r.failureThreshold)
			until := now.Add(backoff)
			if until.After(r.resetAt) {
				until = r.resetAt
			}
			p.state.CooldownUntil = until
			slog.Warn("provider backing off after repeated failures",
				"provider", providerID,
				"consecutive_failures", p.state.ConsecutiveFailures,
				"cooldown_until", until,
			)
		}
	}
}

// Config returns the static configuration for a provider.
func (r *ProviderRegistry) Config(providerID string) (config.ProviderConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.find(providerID); p != nil {
		return p.cfg, true
	}
	return config.ProviderConfig{}, false
}

// Snapshot returns a copy of every provider's state in priority order.
func (r *ProviderRegistry) Snapshot() []model.ProviderState {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollDailyWindow(r.now())

	out := make([]model.ProviderState, len(r.providers))
	for i, p := range r.providers {
		out[i] = p.state
	}
	return out
}

// Reset clears all cooldowns and counters. Administrative escape hatch.
func (r *ProviderRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.providers {
		p.state.CallsUsedToday = 0
		p.state.ConsecutiveFailures = 0
		p.state.CooldownUntil = time.Time{}
	}
	slog.Info("provider registry reset", "providers", len(r.providers))
}

// must be called with the lock held
func (r *ProviderRegistry) find(providerID string) *providerEntry {
	for _, p := range r.providers {
		if p.cfg.ID == providerID {
			return p
		}
	}
	return nil
}

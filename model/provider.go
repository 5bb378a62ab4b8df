package model

import (
	"time"
)

// ProviderState is the externally visible quota/health snapshot for one
// inference provider. Shared across jobs; reset on the daily boundary.
type ProviderState struct {
	ProviderID          string    `json:"provider_id"`
	PriorityRank        int       `json:"priority_rank"`
	DailyQuota          int       `json:"daily_quota"`
	CallsUsedToday      int       `json:"calls_used_today"`
	CooldownUntil       time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Available reports whether the provider can be selected at the given time.
func (p *ProviderState) Available(now time.Time) bool {
	if p.CooldownUntil.After(now) {
		return false
	}
	return p.CallsUsedToday < p.DailyQuota
}

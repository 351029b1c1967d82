package models

import "time"

// LookupRecord is one provider lookup in the audit trail.
type LookupRecord struct {
	ID         string    `json:"id" ch:"id"`
	Provider   string    `json:"provider" ch:"provider"`
	Kind       string    `json:"kind" ch:"kind"`
	Indicator  string    `json:"indicator" ch:"indicator"`
	Score      float64   `json:"score" ch:"score"`
	Known      bool      `json:"known" ch:"known"`
	Alerted    bool      `json:"alerted" ch:"alerted"`
	CacheHit   bool      `json:"cache_hit" ch:"cache_hit"`
	Error      string    `json:"error,omitempty" ch:"error"`
	DurationMS int64     `json:"duration_ms" ch:"duration_ms"`
	LookedUpAt time.Time `json:"looked_up_at" ch:"looked_up_at"`
}

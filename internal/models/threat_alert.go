package models

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ParseSeverity accepts the three known severities in any case.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(lower(s)) {
	case SeverityCritical:
		return SeverityCritical, true
	case SeverityWarning:
		return SeverityWarning, true
	case SeverityInfo:
		return SeverityInfo, true
	}
	return "", false
}

// ThreatAlert is the dashboard view of a row in threat_alerts. Alerts are
// never updated or deleted once stored.
type ThreatAlert struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	SourceIP    string    `json:"source_ip,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlertRow mirrors the threat_alerts table.
type AlertRow struct {
	ID            string    `json:"id" db:"id"`
	Type          string    `json:"type" db:"type"`
	Severity      string    `json:"severity" db:"severity"`
	SourceIP      *string   `json:"source_ip" db:"source_ip"`
	DestinationIP *string   `json:"destination_ip" db:"destination_ip"`
	Description   *string   `json:"description" db:"description"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

func (r AlertRow) ToAlert() ThreatAlert {
	a := ThreatAlert{
		ID:          r.ID,
		Type:        r.Type,
		Severity:    Severity(r.Severity),
		SourceIP:    deref(r.SourceIP),
		Destination: deref(r.DestinationIP),
		Description: deref(r.Description),
		Timestamp:   r.Timestamp.UTC(),
	}
	if a.Description == "" {
		a.Description = fmt.Sprintf("%s detected from %s", a.Type, a.SourceIP)
	}
	return a
}

// NewAlert carries the caller supplied fields of an alert; the store assigns
// the ID and timestamp.
type NewAlert struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	SourceIP    string   `json:"source_ip"`
	Destination string   `json:"destination,omitempty"`
	Description string   `json:"description,omitempty"`
}

type AlertAnalysis struct {
	Score          float64 `json:"score"`
	Classification string  `json:"classification"`
}

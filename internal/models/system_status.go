package models

import "time"

type HealthState string

const (
	HealthOperational HealthState = "operational"
	HealthDegraded    HealthState = "degraded"
	HealthOutage      HealthState = "outage"
)

// HealthFromLoad maps a load percentage onto a gauge state.
func HealthFromLoad(load float64) HealthState {
	if load < 70 {
		return HealthOperational
	}
	if load < 90 {
		return HealthDegraded
	}
	return HealthOutage
}

type SystemStatus struct {
	Status           string    `json:"status"`
	Uptime           float64   `json:"uptime"`
	LastCheck        time.Time `json:"lastCheck"`
	ActiveThreats    int       `json:"activeThreats"`
	SystemsMonitored int       `json:"systemsMonitored"`
	AlertsToday      int       `json:"alertsToday"`
	CriticalAlerts   int       `json:"criticalAlerts"`
}

type SystemHealth struct {
	Name   string      `json:"name"`
	Status HealthState `json:"status"`
	Load   float64     `json:"load"`
}

// SystemStatusRow mirrors the system_status table: one flat row of
// per-system load percentages.
type SystemStatusRow struct {
	ID                    string    `db:"id"`
	Status                string    `db:"status"`
	Uptime                float64   `db:"uptime"`
	LastCheck             time.Time `db:"last_check"`
	FirewallLoad          float64   `db:"firewall_load"`
	IDSIPSLoad            float64   `db:"ids_ips_load"`
	SIEMLoad              float64   `db:"siem_load"`
	EmailLoad             float64   `db:"email_load"`
	EndpointLoad          float64   `db:"endpoint_load"`
	NetworkMonitoringLoad float64   `db:"network_monitoring_load"`
}

// Health expands the flat row into one gauge per monitored system.
func (r SystemStatusRow) Health() []SystemHealth {
	loads := []struct {
		name string
		load float64
	}{
		{"Firewall", r.FirewallLoad},
		{"IDS/IPS", r.IDSIPSLoad},
		{"SIEM", r.SIEMLoad},
		{"Email Security", r.EmailLoad},
		{"Endpoint Protection", r.EndpointLoad},
		{"Network Monitoring", r.NetworkMonitoringLoad},
	}
	out := make([]SystemHealth, 0, len(loads))
	for _, l := range loads {
		out = append(out, SystemHealth{Name: l.name, Status: HealthFromLoad(l.load), Load: l.load})
	}
	return out
}

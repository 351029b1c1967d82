package fixture

import (
	"strconv"
	"time"

	"secops-dashboard/internal/models"
)

func seedAlerts(now time.Time) []models.AlertRow {
	seed := []struct {
		minutesAgo  int
		kind        string
		source      string
		destination string
		severity    models.Severity
		description string
	}{
		{5, "Brute Force Attack", "192.168.1.105", "10.0.0.15", models.SeverityCritical, "Multiple failed login attempts detected"},
		{12, "Port Scanning", "45.134.26.178", "10.0.0.1", models.SeverityWarning, "Sequential port scanning detected from external IP"},
		{25, "Data Exfiltration", "10.0.0.42", "103.245.89.112", models.SeverityCritical, "Unusual outbound data transfer to unrecognized domain"},
		{38, "Malware Detection", "Email Attachment", "10.0.0.78", models.SeverityCritical, "Potential trojan detected in email attachment"},
		{67, "Suspicious Process", "Internal System", "10.0.0.23", models.SeverityWarning, "Unusual process spawned with elevated privileges"},
		{95, "API Abuse", "172.16.8.112", "API Gateway", models.SeverityWarning, "Excessive API calls detected from internal system"},
		{120, "Phishing Attempt", "Email Gateway", "Multiple Recipients", models.SeverityInfo, "Potential phishing email blocked by email security"},
	}

	rows := make([]models.AlertRow, 0, len(seed))
	for i, a := range seed {
		ts := now.Add(-time.Duration(a.minutesAgo) * time.Minute)
		rows = append(rows, models.AlertRow{
			ID:            strconv.Itoa(i + 1),
			Type:          a.kind,
			Severity:      string(a.severity),
			SourceIP:      optional(a.source),
			DestinationIP: optional(a.destination),
			Description:   optional(a.description),
			Timestamp:     ts,
			CreatedAt:     ts,
		})
	}
	return rows
}

func seedTraffic() []models.TrafficRow {
	base := time.Date(2023, 4, 12, 9, 42, 0, 0, time.UTC)
	seed := []struct {
		sec      int
		src, dst string
		proto    string
		port     int
		bytes    int64
		score    float64
	}{
		{15, "192.168.1.105", "10.0.0.15", "TCP", 22, 2456, 0.87},
		{18, "45.134.26.178", "10.0.0.1", "UDP", 53, 876, 0.32},
		{22, "10.0.0.42", "103.245.89.112", "TCP", 443, 15782, 0.91},
		{25, "10.0.0.78", "172.217.167.142", "TCP", 443, 3254, 0.12},
		{30, "172.16.8.112", "10.0.0.1", "TCP", 8080, 1876, 0.45},
		{33, "10.0.0.15", "8.8.8.8", "UDP", 53, 648, 0.07},
	}

	rows := make([]models.TrafficRow, 0, len(seed))
	for i, r := range seed {
		rows = append(rows, models.TrafficRow{
			ID:           strconv.Itoa(i + 1),
			Timestamp:    base.Add(time.Duration(r.sec) * time.Second),
			SourceIP:     r.src,
			DestIP:       r.dst,
			Protocol:     r.proto,
			Port:         r.port,
			Bytes:        r.bytes,
			AnomalyScore: r.score,
		})
	}
	return rows
}

// seedAnomalies produces one sample per hour for the last 24 hours.
func seedAnomalies(now time.Time) []models.AnomalyRow {
	scores := []float64{12, 15, 18, 14, 10, 8, 12, 20, 25, 45, 78, 42, 30, 22, 18, 15, 20, 28, 32, 30, 25, 28, 32, 38}
	start := now.Truncate(time.Hour).Add(-time.Duration(len(scores)-1) * time.Hour)

	rows := make([]models.AnomalyRow, 0, len(scores))
	for i, s := range scores {
		rows = append(rows, models.AnomalyRow{
			ID:        strconv.Itoa(i + 1),
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Value:     s / 100,
		})
	}
	return rows
}

func seedStatus(now time.Time) models.SystemStatusRow {
	return models.SystemStatusRow{
		ID:                    "1",
		Status:                "online",
		Uptime:                99.98,
		LastCheck:             now,
		FirewallLoad:          65,
		IDSIPSLoad:            72,
		SIEMLoad:              83,
		EmailLoad:             58,
		EndpointLoad:          92,
		NetworkMonitoringLoad: 75,
	}
}

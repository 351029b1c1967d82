package models

import "time"

type ProcessedLog struct {
	ID                string    `json:"id" db:"id"`
	FileName          string    `json:"file_name" db:"file_name"`
	SuspiciousEntries []string  `json:"suspicious_entries" db:"suspicious_entries"`
	UploadedAt        time.Time `json:"uploaded_at" db:"uploaded_at"`
}

type LogAnalysisResult struct {
	ThreatDetected    bool     `json:"threatDetected"`
	AnomalyScore      float64  `json:"anomalyScore"`
	SuspiciousEntries []string `json:"suspiciousEntries,omitempty"`
}

package models

import "time"

const AnomalyTimeLayout = "15:04:05"

// AnomalySample is one point of the anomaly chart. Score is on a 0-100 scale.
type AnomalySample struct {
	Time      string    `json:"time"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// AnomalyRow mirrors the anomaly_logs table. Value is on a 0-1 scale.
type AnomalyRow struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Value     float64   `json:"value" db:"value"`
}

func (r AnomalyRow) ToSample() AnomalySample {
	ts := r.Timestamp.UTC()
	return AnomalySample{
		Time:      ts.Format(AnomalyTimeLayout),
		Timestamp: ts,
		Score:     clamp01(r.Value) * 100,
	}
}

package models

import "time"

type TrafficRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	SourceIP     string    `json:"sourceIP"`
	DestIP       string    `json:"destIP"`
	Protocol     string    `json:"protocol"`
	Port         int       `json:"port"`
	Bytes        int64     `json:"bytes"`
	AnomalyScore float64   `json:"anomalyScore"`
}

// TrafficRow mirrors the network_traffic table.
type TrafficRow struct {
	ID           string    `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	SourceIP     string    `json:"source_ip" db:"source_ip"`
	DestIP       string    `json:"dest_ip" db:"dest_ip"`
	Protocol     string    `json:"protocol" db:"protocol"`
	Port         int       `json:"port" db:"port"`
	Bytes        int64     `json:"bytes" db:"bytes"`
	AnomalyScore float64   `json:"anomaly_score" db:"anomaly_score"`
}

func (r TrafficRow) ToRecord() TrafficRecord {
	return TrafficRecord{
		ID:           r.ID,
		Timestamp:    r.Timestamp.UTC(),
		SourceIP:     r.SourceIP,
		DestIP:       r.DestIP,
		Protocol:     r.Protocol,
		Port:         r.Port,
		Bytes:        r.Bytes,
		AnomalyScore: clamp01(r.AnomalyScore),
	}
}

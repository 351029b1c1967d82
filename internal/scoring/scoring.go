// Package scoring turns vendor detection statistics into a normalised threat
// score and maps scores onto alert severities.
package scoring

import "secops-dashboard/internal/models"

// AlertThreshold is the score above which a lookup raises an alert.
const AlertThreshold = 0.3

// Stats are per-engine verdict counts as reported by a scanning vendor.
type Stats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
	Timeout    int `json:"timeout"`
}

func (s Stats) Total() int {
	return s.Malicious + s.Suspicious + s.Harmless + s.Undetected + s.Timeout
}

// Assessment separates "no data" (Known == false, Score == 0) from a clean
// result that also scores 0.
type Assessment struct {
	Score float64 `json:"score"`
	Known bool    `json:"known"`
}

// Score is (malicious + suspicious/2) / total, clamped to [0, 1]. Missing
// stats or a zero total score 0.
func Score(stats *Stats) float64 {
	return Assess(stats).Score
}

func Assess(stats *Stats) Assessment {
	if stats == nil {
		return Assessment{}
	}
	total := stats.Total()
	if total <= 0 {
		return Assessment{}
	}
	score := (float64(stats.Malicious) + 0.5*float64(stats.Suspicious)) / float64(total)
	switch {
	case score < 0:
		score = 0
	case score > 1:
		score = 1
	}
	return Assessment{Score: score, Known: true}
}

func ShouldAlert(score float64) bool {
	return score > AlertThreshold
}

func SeverityForScore(score float64) models.Severity {
	switch {
	case score > 0.7:
		return models.SeverityCritical
	case score > 0.5:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

func SeverityForPulseCount(count int) models.Severity {
	switch {
	case count > 10:
		return models.SeverityCritical
	case count > 3:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// SeverityForFilePulseCount uses lower cut-offs than addresses and domains:
// a hash seen in a few pulses is already likely malware.
func SeverityForFilePulseCount(count int) models.Severity {
	switch {
	case count > 5:
		return models.SeverityCritical
	case count > 2:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// SimulatedScore is the fixed analysis score assigned to a severity.
func SimulatedScore(sev models.Severity) float64 {
	switch sev {
	case models.SeverityCritical:
		return 0.9
	case models.SeverityWarning:
		return 0.7
	case models.SeverityInfo:
		return 0.3
	default:
		return 0.5
	}
}

func Classify(score float64) string {
	switch {
	case score > 0.8:
		return "critical_threat"
	case score > 0.5:
		return "potential_threat"
	default:
		return "benign"
	}
}

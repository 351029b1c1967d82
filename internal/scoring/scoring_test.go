package scoring

import (
	"math"
	"testing"

	"secops-dashboard/internal/models"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name  string
		stats *Stats
		want  float64
		known bool
	}{
		{"nil", nil, 0, false},
		{"all zero", &Stats{}, 0, false},
		{"all malicious", &Stats{Malicious: 70}, 1, true},
		{"clean", &Stats{Harmless: 60, Undetected: 10}, 0, true},
		{"google dns", &Stats{Malicious: 2, Suspicious: 1, Harmless: 57, Undetected: 10}, 2.5 / 70, true},
		{"half suspicious", &Stats{Suspicious: 10, Harmless: 10}, 0.25, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Assess(tc.stats)
			if math.Abs(got.Score-tc.want) > 1e-9 {
				t.Fatalf("expected score %v, got %v", tc.want, got.Score)
			}
			if got.Known != tc.known {
				t.Fatalf("expected known=%v, got %v", tc.known, got.Known)
			}
			if Score(tc.stats) != got.Score {
				t.Fatal("Score and Assess disagree")
			}
		})
	}
}

func TestScoreMonotoneInMalicious(t *testing.T) {
	prev := -1.0
	for m := 0; m <= 70; m++ {
		s := Score(&Stats{Malicious: m, Harmless: 70 - m, Undetected: 5})
		if s < prev {
			t.Fatalf("score decreased at malicious=%d: %v < %v", m, s, prev)
		}
		if s < 0 || s > 1 {
			t.Fatalf("score out of range: %v", s)
		}
		prev = s
	}
}

func TestGoogleDNSDoesNotAlert(t *testing.T) {
	s := Score(&Stats{Malicious: 2, Suspicious: 1, Harmless: 57, Undetected: 10})
	if math.Abs(s-0.0357) > 1e-4 {
		t.Fatalf("expected ~0.0357, got %v", s)
	}
	if ShouldAlert(s) {
		t.Fatal("expected no alert")
	}
}

func TestSeverities(t *testing.T) {
	if SeverityForScore(0.71) != models.SeverityCritical || SeverityForScore(0.7) != models.SeverityWarning {
		t.Fatal("score severity boundary at 0.7")
	}
	if SeverityForScore(0.5) != models.SeverityInfo || SeverityForScore(0.31) != models.SeverityInfo {
		t.Fatal("score severity boundary at 0.5")
	}
	if SeverityForPulseCount(11) != models.SeverityCritical || SeverityForPulseCount(10) != models.SeverityWarning {
		t.Fatal("pulse severity boundary at 10")
	}
	if SeverityForPulseCount(3) != models.SeverityInfo || SeverityForPulseCount(4) != models.SeverityWarning {
		t.Fatal("pulse severity boundary at 3")
	}
	if SeverityForFilePulseCount(6) != models.SeverityCritical || SeverityForFilePulseCount(5) != models.SeverityWarning {
		t.Fatal("file pulse severity boundary at 5")
	}
	if SeverityForFilePulseCount(2) != models.SeverityInfo || SeverityForFilePulseCount(3) != models.SeverityWarning {
		t.Fatal("file pulse severity boundary at 2")
	}
	if ShouldAlert(0.3) || !ShouldAlert(0.31) {
		t.Fatal("alert threshold is strictly greater than 0.3")
	}
}

func TestClassify(t *testing.T) {
	cases := map[models.Severity]string{
		models.SeverityCritical: "critical_threat",
		models.SeverityWarning:  "potential_threat",
		models.SeverityInfo:     "benign",
		"unknown":               "benign",
	}
	for sev, want := range cases {
		if got := Classify(SimulatedScore(sev)); got != want {
			t.Fatalf("%s: expected %s, got %s", sev, want, got)
		}
	}
}

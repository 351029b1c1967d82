package models

import "strings"

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

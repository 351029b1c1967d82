package util

import (
	"errors"
	"net"
	"regexp"
	"strings"
)

var (
	ErrEmptyIndicator      = errors.New("indicator is empty")
	ErrSuspiciousIndicator = errors.New("indicator contains forbidden characters")
	ErrInvalidIP           = errors.New("invalid IP address")
	ErrInvalidDomain       = errors.New("invalid domain name")
	ErrInvalidHash         = errors.New("invalid file hash (expected MD5, SHA-1 or SHA-256)")
)

var (
	domainPattern = regexp.MustCompile(`^(?i)([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
	hashPattern   = regexp.MustCompile(`^(?i)([a-f0-9]{32}|[a-f0-9]{40}|[a-f0-9]{64})$`)
)

// SanitizeIndicator trims an indicator and rejects markup or template characters
// before it is used in a provider path or cache key.
func SanitizeIndicator(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyIndicator
	}
	if ContainsSuspicious(s) {
		return "", ErrSuspiciousIndicator
	}
	return s, nil
}

func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload", " "}
	lower := strings.ToLower(s)
	for _, c := range badChars {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

func NormalizeIP(s string) (string, error) {
	s, err := SanitizeIndicator(s)
	if err != nil {
		return "", err
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return "", ErrInvalidIP
	}
	return ip.String(), nil
}

func NormalizeDomain(s string) (string, error) {
	s, err := SanitizeIndicator(s)
	if err != nil {
		return "", err
	}
	s = strings.TrimSuffix(strings.ToLower(s), ".")
	if !domainPattern.MatchString(s) {
		return "", ErrInvalidDomain
	}
	return s, nil
}

func NormalizeHash(s string) (string, error) {
	s, err := SanitizeIndicator(s)
	if err != nil {
		return "", err
	}
	if !hashPattern.MatchString(s) {
		return "", ErrInvalidHash
	}
	return strings.ToLower(s), nil
}

package tls

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"testing"

	"secops-dashboard/internal/config"
)

func TestDevCertIsGeneratedOnceAndReused(t *testing.T) {
	gen := NewDevCertGenerator(t.TempDir())

	first, err := gen.GenerateCert([]string{"dashboard.local", "127.0.0.1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	leaf, err := x509.ParseCertificate(first.Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := leaf.VerifyHostname("dashboard.local"); err != nil {
		t.Fatalf("hostname: %v", err)
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Fatalf("ip: %v", err)
	}

	second, err := gen.GenerateCert([]string{"dashboard.local"})
	if err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if !bytes.Equal(first.Certificate[0], second.Certificate[0]) {
		t.Fatalf("expected the stored certificate to be reused")
	}
}

func TestManagerFallsBackToDevCert(t *testing.T) {
	m := NewTLSManager(config.ServerConfig{
		EnableTLS:   true,
		Domain:      "localhost",
		AutoCertDir: t.TempDir(),
	})
	if m.GetAutocertManager() != nil {
		t.Fatalf("autocert must stay off unless requested")
	}
	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil || cert == nil {
		t.Fatalf("certificate: %v", err)
	}
	if cfg := m.GetTLSConfig(); cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("unexpected min version %x", cfg.MinVersion)
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATA_MODE", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("REALTIME_SOURCE", "")

	cfg := LoadConfig()

	if cfg.Data.Mode != DataModeFixture {
		t.Fatalf("expected fixture mode by default, got %q", cfg.Data.Mode)
	}
	if cfg.Providers.VirusTotalTTL != 24*time.Hour {
		t.Fatalf("expected 24h virustotal ttl, got %s", cfg.Providers.VirusTotalTTL)
	}
	if cfg.Providers.OTXTTL != time.Hour {
		t.Fatalf("expected 1h otx ttl, got %s", cfg.Providers.OTXTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if Get() != cfg {
		t.Fatalf("Get should return the last loaded config")
	}
}

func TestValidateRejectsLiveWithoutDatabase(t *testing.T) {
	t.Setenv("DATA_MODE", "live")
	t.Setenv("DATABASE_URL", "")

	cfg := LoadConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for live mode without DATABASE_URL")
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, ,b:9092")

	got := GetEnvList("KAFKA_BROKERS", nil)
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
}

func TestValidateRetentionCoversCacheTTL(t *testing.T) {
	t.Setenv("DATA_MODE", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("REALTIME_SOURCE", "")
	t.Setenv("VIRUSTOTAL_CACHE_TTL", "24h")
	t.Setenv("OTX_CACHE_TTL", "1h")

	for retention, ok := range map[string]bool{"12h": false, "24h": true, "0s": true, "168h": true} {
		t.Setenv("CACHE_RETENTION", retention)
		err := LoadConfig().Validate()
		if ok && err != nil {
			t.Errorf("retention %s: unexpected error %v", retention, err)
		}
		if !ok && err == nil {
			t.Errorf("retention %s: expected an error", retention)
		}
	}
}

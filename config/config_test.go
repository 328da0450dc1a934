package config

import (
	"testing"
	"time"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg := LoadEnv()
	if cfg.Store.RetryAttempts != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.Store.RetryAttempts)
	}
	if cfg.Loyalty.PointsPerEGP != 1 {
		t.Fatalf("expected 1 point per EGP, got %v", cfg.Loyalty.PointsPerEGP)
	}
	if cfg.Cache.BranchTTL != 10*time.Minute {
		t.Fatalf("unexpected branch ttl %v", cfg.Cache.BranchTTL)
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LOYALTY_POINTS_PER_EGP", "0.5")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "not-a-number")

	cfg := LoadEnv()
	if cfg.Store.Timeout != 2*time.Second {
		t.Fatalf("expected 2s, got %v", cfg.Store.Timeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Loyalty.PointsPerEGP != 0.5 {
		t.Fatalf("expected 0.5, got %v", cfg.Loyalty.PointsPerEGP)
	}
	if cfg.Postgres.MaxOpenConns != 10 {
		t.Fatalf("invalid int should fall back, got %d", cfg.Postgres.MaxOpenConns)
	}
}

package config

import "testing"

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDriver != DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.DatabaseDriver)
	}
	if cfg.DatabaseDSN != "defter.db" {
		t.Errorf("dsn = %q", cfg.DatabaseDSN)
	}
	if cfg.KafkaTopic != "defter.events" || len(cfg.KafkaBrokers) != 0 {
		t.Errorf("kafka = %v %q", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.Debug {
		t.Error("debug should default to false")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		driver string
	}{
		{"missing secret", "", "sqlite"},
		{"short secret", "short", "sqlite"},
		{"unknown driver", testSecret, "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", tt.secret)
			t.Setenv("DATABASE_DRIVER", tt.driver)
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestListParsing(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://x.test , http://y.test")
	t.Setenv("APP_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Errorf("brokers = %v", cfg.KafkaBrokers)
	}
	if got := cfg.AllowedOrigins(); got != "http://x.test,http://y.test" {
		t.Errorf("origins = %q", got)
	}
	if !cfg.Debug {
		t.Error("debug not parsed")
	}
}

package database

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"defter-backend/internal/config"
	"defter-backend/internal/models"
)

func TestSqliteFile(t *testing.T) {
	tests := []struct {
		dsn    string
		path   string
		onDisk bool
	}{
		{"defter.db", "defter.db", true},
		{"file:data/app.db?_busy_timeout=5000", "data/app.db", true},
		{"file:x?mode=memory&cache=shared", "", false},
		{":memory:", "", false},
	}
	for _, tt := range tests {
		cfg := &config.Config{DatabaseDriver: config.DriverSQLite, DatabaseDSN: tt.dsn}
		path, ok := sqliteFile(cfg)
		if ok != tt.onDisk || path != tt.path {
			t.Errorf("sqliteFile(%q) = %q, %v", tt.dsn, path, ok)
		}
	}
	if _, ok := sqliteFile(&config.Config{DatabaseDriver: config.DriverPostgres, DatabaseDSN: "host=x"}); ok {
		t.Error("postgres DSN reported as sqlite file")
	}
}

func TestResetDeletesFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defter.db")
	cfg := &config.Config{DatabaseDriver: config.DriverSQLite, DatabaseDSN: path}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	if err := DB.Create(&models.User{Name: "A", Email: "a@test", PasswordHash: "x"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := Reset(cfg); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not recreated: %v", err)
	}
	var n int64
	DB.Model(&models.User{}).Count(&n)
	if n != 0 {
		t.Fatalf("users after reset = %d, want 0", n)
	}
}

func TestResetDropsInMemoryTables(t *testing.T) {
	cfg := &config.Config{DatabaseDriver: config.DriverSQLite, DatabaseDSN: "file:" + t.Name() + "?mode=memory&cache=shared"}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	DB.Create(&models.Category{UserID: 1, Type: models.CategoryTypeIncome, Name: "Sales"})
	if err := Reset(cfg); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	var n int64
	DB.Model(&models.Category{}).Count(&n)
	if n != 0 {
		t.Fatalf("categories after reset = %d", n)
	}
}

func TestConcurrentResetsAreSerialised(t *testing.T) {
	cfg := &config.Config{DatabaseDriver: config.DriverSQLite, DatabaseDSN: "file:" + t.Name() + "?mode=memory&cache=shared"}
	if err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- Reset(cfg)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}
	for _, m := range models.All() {
		if !DB.Migrator().HasTable(m) {
			t.Errorf("table for %T missing after resets", m)
		}
	}
}

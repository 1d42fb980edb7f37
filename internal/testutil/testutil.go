// Package testutil wires an in-memory sqlite database for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"defter-backend/internal/database"
	"defter-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// SetupDB opens a fresh in-memory database, migrates it and installs it as
// database.DB for the duration of the test.
func SetupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

// SeedUser creates a user with a company profile.
func SeedUser(t *testing.T, email string) models.User {
	t.Helper()
	user := models.User{Name: "Test " + email, Email: email, PasswordHash: "x"}
	if err := database.DB.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	company := models.Company{UserID: user.ID, Name: "Company of " + email, Currency: "USD"}
	if err := database.DB.Create(&company).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return user
}

func SeedParty(t *testing.T, userID uint, kind models.PartyKind, name string) models.Party {
	t.Helper()
	p := models.Party{UserID: userID, Kind: kind, Name: name}
	if err := database.DB.Create(&p).Error; err != nil {
		t.Fatalf("seed party: %v", err)
	}
	return p
}

// D parses a decimal literal, failing the test on bad input.
func D(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

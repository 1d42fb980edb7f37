package settings

import (
	"context"
	"errors"
	"testing"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/config"
	"defter-backend/internal/database"
	"defter-backend/internal/models"
	"defter-backend/internal/testutil"
)

func TestNotifications(t *testing.T) {
	testutil.SetupDB(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, "n@test.com")

	n, err := GetNotifications(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !n.EmailNotifications || !n.PushNotifications || !n.PaymentReminders {
		t.Errorf("defaults = %+v, want all on", n)
	}

	off := false
	n, err = UpdateNotifications(ctx, user.ID, NotificationsInput{PushNotifications: &off})
	if err != nil {
		t.Fatal(err)
	}
	if n.PushNotifications || !n.EmailNotifications || !n.PaymentReminders {
		t.Errorf("after update = %+v", n)
	}

	if _, err := UpdateNotifications(ctx, 9999, NotificationsInput{PushNotifications: &off}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestNotificationChangesAreAudited(t *testing.T) {
	testutil.SetupDB(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, "log@test.com")

	off := false
	if _, err := UpdateNotifications(ctx, user.ID, NotificationsInput{PaymentReminders: &off}); err != nil {
		t.Fatal(err)
	}
	if _, err := UpdateNotifications(ctx, user.ID, NotificationsInput{}); err != nil {
		t.Fatal(err)
	}

	var logs []models.AuditLog
	database.DB.Where("user_id = ? AND entity_type = ?", user.ID, models.EntitySettings).Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("settings logs = %d, want 1 (empty update is not logged)", len(logs))
	}
	if _, err := audit.UndoLog(ctx, logs[0].ID, user.ID); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("undo settings change: %v, want invalid", err)
	}
}

func TestResetRequiresDebug(t *testing.T) {
	err := ResetDatabase(&config.Config{Debug: false}, 1)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

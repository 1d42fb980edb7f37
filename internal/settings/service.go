package settings

import (
	"context"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/config"
	"defter-backend/internal/database"
	"defter-backend/internal/logger"
	"defter-backend/internal/models"
)

type Notifications struct {
	EmailNotifications bool `json:"email_notifications"`
	PushNotifications  bool `json:"push_notifications"`
	PaymentReminders   bool `json:"payment_reminders"`
}

// NotificationsInput leaves a preference unchanged when it is omitted.
type NotificationsInput struct {
	EmailNotifications *bool `json:"email_notifications"`
	PushNotifications  *bool `json:"push_notifications"`
	PaymentReminders   *bool `json:"payment_reminders"`
}

func GetNotifications(ctx context.Context, userID uint) (*Notifications, error) {
	var u models.User
	if err := database.DB.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, apperr.FromDB("settings.GetNotifications", "user", err)
	}
	return &Notifications{
		EmailNotifications: u.EmailNotifications,
		PushNotifications:  u.PushNotifications,
		PaymentReminders:   u.PaymentReminders,
	}, nil
}

func UpdateNotifications(ctx context.Context, userID uint, in NotificationsInput) (*Notifications, error) {
	const op = "settings.UpdateNotifications"

	before, err := GetNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.EmailNotifications != nil {
		updates["email_notifications"] = *in.EmailNotifications
	}
	if in.PushNotifications != nil {
		updates["push_notifications"] = *in.PushNotifications
	}
	if in.PaymentReminders != nil {
		updates["payment_reminders"] = *in.PaymentReminders
	}
	if len(updates) > 0 {
		res := database.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return nil, apperr.FromDB(op, "user", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperr.NotFound(op, "user")
		}
	}

	after, err := GetNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		audit.Record(ctx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntitySettings,
			EntityID:    userID,
			Action:      models.AuditActionUpdate,
			Description: "Notification preferences updated",
			Before:      before,
			After:       after,
		})
	}
	return after, nil
}

// ResetDatabase deletes every record of every user. Only debug builds of
// the configuration allow it; see database.Reset for what happens to
// requests in flight.
func ResetDatabase(cfg *config.Config, userID uint) error {
	const op = "settings.ResetDatabase"
	if !cfg.Debug {
		return apperr.Forbidden(op, "database reset is only available in debug mode")
	}
	log := logger.WithComponent("settings")
	log.Warn().Uint("user_id", userID).Msg("database reset requested")
	return database.Reset(cfg)
}

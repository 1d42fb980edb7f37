package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"size:100;not null" json:"name"`
	Email        string `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// Notification preferences
	EmailNotifications bool `gorm:"not null;default:true" json:"email_notifications"`
	PushNotifications  bool `gorm:"not null;default:true" json:"push_notifications"`
	PaymentReminders   bool `gorm:"not null;default:true" json:"payment_reminders"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

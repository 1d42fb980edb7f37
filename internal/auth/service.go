package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/database"
	"defter-backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 8

var ErrInvalidCredentials = errors.New("invalid email or password")

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	CompanyName string
}

// Register creates the user together with an empty company profile.
func Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	const op = "auth.Register"

	in.Name = strings.TrimSpace(in.Name)
	email, err := normalizeEmail(op, in.Email)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, apperr.Invalid(op, "name", "name is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Invalid(op, "password", "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.User{Name: in.Name, Email: email, PasswordHash: string(hash)}
	companyName := strings.TrimSpace(in.CompanyName)
	if companyName == "" {
		companyName = in.Name
	}

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict(op, "email is already registered")
		}
		if err := tx.Create(&user).Error; err != nil {
			return apperr.FromDB(op, "user", err)
		}
		company := models.Company{UserID: user.ID, Name: companyName, Email: email, Currency: "USD"}
		return tx.Create(&company).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var user models.User
	if err := database.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := database.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, apperr.FromDB("auth.GetUser", "user", err)
	}
	return &user, nil
}

func UpdateProfile(ctx context.Context, id uint, name, email string) (*models.User, error) {
	const op = "auth.UpdateProfile"

	user, err := GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if email != "" {
		normalized, err := normalizeEmail(op, email)
		if err != nil {
			return nil, err
		}
		if normalized != user.Email {
			var count int64
			if err := database.DB.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", normalized, id).Count(&count).Error; err != nil {
				return nil, err
			}
			if count > 0 {
				return nil, apperr.Conflict(op, "email is already registered")
			}
			user.Email = normalized
		}
	}

	if err := database.DB.WithContext(ctx).Model(user).
		Select("name", "email").Updates(user).Error; err != nil {
		return nil, apperr.FromDB(op, "user", err)
	}
	return user, nil
}

func ChangePassword(ctx context.Context, id uint, current, next string) error {
	const op = "auth.ChangePassword"

	user, err := GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperr.Invalid(op, "current_password", "current password is wrong")
	}
	if len(next) < minPasswordLen {
		return apperr.Invalid(op, "new_password", "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return database.DB.WithContext(ctx).Model(user).Update("password_hash", string(hash)).Error
}

func normalizeEmail(op, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", apperr.Invalid(op, "email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Invalid(op, "email", "email is not valid")
	}
	return email, nil
}

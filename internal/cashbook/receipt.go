package cashbook

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxReceiptSize = 10 << 20

var receiptExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true, ".pdf": true}

// SaveReceipt stores r under dir with a fresh name and points the entry at
// it. A replaced file stays on disk so undo can restore the old reference.
func SaveReceipt(ctx context.Context, userID uint, kind models.CashEntryKind, id uint, dir, filename string, r io.Reader) (*models.CashEntry, error) {
	const op = "cashbook.SaveReceipt"

	ext := strings.ToLower(filepath.Ext(filename))
	if !receiptExts[ext] {
		return nil, apperr.Invalid(op, "file", "receipt must be an image or a PDF")
	}
	if _, err := Get(ctx, userID, kind, id); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: create receipt dir: %w", op, err)
	}
	name := uuid.NewString() + ext
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxReceiptSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxReceiptSize {
		err = apperr.Invalid(op, "file", "receipt is larger than 10 MB")
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := find(tx, userID, kind, id)
		if err != nil {
			return err
		}
		before := *e
		e.ReceiptFile = name
		e.HasReceipt = true
		if err := tx.Model(e).Update("receipt_file", name).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCashEntry,
			EntityID:    e.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s receipt attached: %s", entryLabel(kind), describe(e)),
			Before:      before,
			After:       e,
		})
	})
	if err != nil {
		os.Remove(path)
		return nil, apperr.FromDB(op, "entry", err)
	}
	return Get(ctx, userID, kind, id)
}

// ReceiptPath returns the file of the entry's receipt under dir.
func ReceiptPath(ctx context.Context, userID uint, kind models.CashEntryKind, id uint, dir string) (string, error) {
	const op = "cashbook.ReceiptPath"

	e, err := Get(ctx, userID, kind, id)
	if err != nil {
		return "", err
	}
	if e.ReceiptFile == "" {
		return "", apperr.NotFound(op, "receipt")
	}
	path := filepath.Join(dir, filepath.Base(e.ReceiptFile))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", apperr.NotFound(op, "receipt")
		}
		return "", err
	}
	return path, nil
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"defter-backend/internal/apperr"
	"defter-backend/internal/database"
	"defter-backend/internal/logger"
	"defter-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LogOptions struct {
	UserID      uint
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// UndoHook runs inside the undo transaction after the entity was reverted.
type UndoHook func(tx *gorm.DB, log *models.AuditLog) error

var (
	hooksMu sync.RWMutex
	hooks   = map[string][]UndoHook{}
)

// OnUndo registers a hook for an entity type.
func OnUndo(entityType string, hook UndoHook) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks[entityType] = append(hooks[entityType], hook)
}

// itemReplacer is implemented by header models that own line items.
type itemReplacer interface {
	ReplaceItems(tx *gorm.DB) error
}

func WriteLog(tx *gorm.DB, opts LogOptions) error {
	log := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    userName(tx, opts.UserID),
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  marshal(opts.Before),
		AfterData:   marshal(opts.After),
	}
	if err := tx.Create(&log).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Record writes a log outside any transaction. Failures are logged only.
func Record(ctx context.Context, opts LogOptions) {
	if err := WriteLog(database.DB.WithContext(ctx), opts); err != nil {
		log := logger.WithComponent("audit")
		log.Warn().Err(err).
			Str("entity_type", opts.EntityType).
			Uint("entity_id", opts.EntityID).
			Msg("audit log skipped")
	}
}

func marshal(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func userName(tx *gorm.DB, userID uint) string {
	var name string
	tx.Session(&gorm.Session{NewDB: true}).Model(&models.User{}).
		Where("id = ?", userID).Limit(1).Pluck("name", &name)
	return name
}

type ListFilter struct {
	EntityType string
	EntityID   uint
	Action     models.AuditAction
}

func List(ctx context.Context, userID uint, f ListFilter) ([]models.AuditLog, error) {
	q := database.DB.WithContext(ctx).Where("user_id = ?", userID)
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}

	var logs []models.AuditLog
	if err := q.Order("id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// UndoLog reverts the change recorded by a log. A create is soft deleted, an
// update gets its before-snapshot back and a delete is restored. Each log can
// be undone once and only while no newer change of the same record is live.
func UndoLog(ctx context.Context, logID, userID uint) (*models.AuditLog, error) {
	const op = "audit.Undo"

	var undo models.AuditLog
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var log models.AuditLog
		if err := tx.Where("id = ? AND user_id = ?", logID, userID).First(&log).Error; err != nil {
			return apperr.FromDB(op, "audit log", err)
		}
		if log.Action == models.AuditActionUndo {
			return apperr.Invalid(op, "id", "an undo entry cannot be undone")
		}
		if log.IsUndone {
			return apperr.Conflict(op, "this change was already undone")
		}

		var newer int64
		if err := tx.Model(&models.AuditLog{}).
			Where("entity_type = ? AND entity_id = ? AND id > ? AND action <> ? AND is_undone = ?",
				log.EntityType, log.EntityID, log.ID, models.AuditActionUndo, false).
			Count(&newer).Error; err != nil {
			return err
		}
		if newer > 0 {
			return apperr.Conflict(op, "a newer change of this record must be undone first")
		}

		if err := revert(tx, op, &log); err != nil {
			return err
		}

		hooksMu.RLock()
		entityHooks := hooks[log.EntityType]
		hooksMu.RUnlock()
		for _, h := range entityHooks {
			if err := h(tx, &log); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := tx.Model(&log).Updates(map[string]any{
			"is_undone": true,
			"undone_by": userID,
			"undone_at": now,
		}).Error; err != nil {
			return fmt.Errorf("mark audit log: %w", err)
		}

		undo = models.AuditLog{
			UserID:      userID,
			UserName:    userName(tx, userID),
			EntityType:  log.EntityType,
			EntityID:    log.EntityID,
			Action:      models.AuditActionUndo,
			Description: "Undone: " + log.Description,
			BeforeData:  log.AfterData,
			AfterData:   log.BeforeData,
			UndoOf:      &log.ID,
		}
		return tx.Create(&undo).Error
	})
	if err != nil {
		return nil, err
	}
	return &undo, nil
}

func revert(tx *gorm.DB, op string, log *models.AuditLog) error {
	entity, err := newEntity(log.EntityType)
	if err != nil {
		return apperr.Invalid(op, "entity_type", err.Error())
	}
	scope := tx.Where("id = ? AND user_id = ?", log.EntityID, log.UserID)

	switch log.Action {
	case models.AuditActionCreate:
		res := scope.Delete(entity)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(op, "the record no longer exists")
		}

	case models.AuditActionDelete:
		res := tx.Unscoped().Model(entity).
			Where("id = ? AND user_id = ? AND deleted_at IS NOT NULL", log.EntityID, log.UserID).
			Update("deleted_at", nil)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(op, "the record is not deleted")
		}

	case models.AuditActionUpdate:
		current, _ := newEntity(log.EntityType)
		if err := scope.First(current).Error; err != nil {
			return apperr.Conflict(op, "the record no longer exists")
		}
		if err := json.Unmarshal([]byte(log.BeforeData), entity); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if err := tx.Omit(clause.Associations).Save(entity).Error; err != nil {
			return fmt.Errorf("restore %s: %w", log.EntityType, err)
		}
		if r, ok := entity.(itemReplacer); ok {
			if err := r.ReplaceItems(tx); err != nil {
				return fmt.Errorf("restore %s items: %w", log.EntityType, err)
			}
		}

	default:
		return apperr.Invalid(op, "action", "this action cannot be undone")
	}
	return nil
}

func newEntity(entityType string) (any, error) {
	switch entityType {
	case models.EntityParty:
		return &models.Party{}, nil
	case models.EntityProduct:
		return &models.Product{}, nil
	case models.EntityInvoice:
		return &models.Invoice{}, nil
	case models.EntityPayment:
		return &models.Payment{}, nil
	case models.EntityReturn:
		return &models.Return{}, nil
	case models.EntityCategory:
		return &models.Category{}, nil
	case models.EntityCashEntry:
		return &models.CashEntry{}, nil
	case models.EntityAccountGroup:
		return &models.AccountGroup{}, nil
	case models.EntityLedgerEntry:
		return &models.LedgerEntry{}, nil
	case models.EntityCompany:
		return &models.Company{}, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}

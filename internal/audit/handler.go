package audit

import (
	"strconv"

	"defter-backend/internal/auth"
	"defter-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	UndoOf      *uint              `json:"undo_of,omitempty"`
	IsUndone    bool               `json:"is_undone"`
	UndoneAt    *string            `json:"undone_at"`
}

func toResponse(log models.AuditLog) AuditLogResponse {
	var undoneAt *string
	if log.UndoneAt != nil {
		formatted := log.UndoneAt.Format("2006-01-02 15:04:05")
		undoneAt = &formatted
	}
	return AuditLogResponse{
		ID:          log.ID,
		CreatedAt:   log.CreatedAt.Format("2006-01-02 15:04:05"),
		UserName:    log.UserName,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		Action:      log.Action,
		Description: log.Description,
		UndoOf:      log.UndoOf,
		IsUndone:    log.IsUndone,
		UndoneAt:    undoneAt,
	}
}

// GET /api/audit-logs?entity_type=invoice&entity_id=1&action=update
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		f := ListFilter{
			EntityType: c.Query("entity_type"),
			Action:     models.AuditAction(c.Query("action")),
		}
		if s := c.Query("entity_id"); s != "" {
			id, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid entity_id")
			}
			f.EntityID = uint(id)
		}

		logs, err := List(c.UserContext(), userID, f)
		if err != nil {
			return err
		}
		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, toResponse(l))
		}
		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		logID, err := c.ParamsInt("id")
		if err != nil || logID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid log id")
		}

		undo, err := UndoLog(c.UserContext(), uint(logID), userID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message": "change undone",
			"log":     toResponse(*undo),
		})
	}
}

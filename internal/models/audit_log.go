package models

import "time"

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionUndo   AuditAction = "undo"
)

// Entity types recorded in audit logs.
const (
	EntityParty        = "party"
	EntityProduct      = "product"
	EntityInvoice      = "invoice"
	EntityPayment      = "payment"
	EntityReturn       = "return"
	EntityCategory     = "category"
	EntityCashEntry    = "cash_entry"
	EntityAccountGroup = "account_group"
	EntityLedgerEntry  = "ledger_entry"
	EntityCompany      = "company"
	EntitySettings     = "settings" // recorded only, not undoable
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID   uint   `gorm:"index;not null" json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"` // denormalized

	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	// JSON snapshots; text so the column works on sqlite and postgres alike
	BeforeData string `gorm:"type:text" json:"before_data"`
	AfterData  string `gorm:"type:text" json:"after_data"`

	// UndoOf points at the log this undo entry reverted.
	UndoOf *uint `gorm:"index" json:"undo_of,omitempty"`

	IsUndone bool       `gorm:"default:false" json:"is_undone"`
	UndoneBy *uint      `json:"undone_by"`
	UndoneAt *time.Time `json:"undone_at"`
}

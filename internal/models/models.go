package models

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Company{},
		&Party{},
		&Product{},
		&Invoice{},
		&InvoiceItem{},
		&Payment{},
		&PaymentItem{},
		&Return{},
		&ReturnItem{},
		&Category{},
		&CashEntry{},
		&AccountGroup{},
		&LedgerEntry{},
		&AuditLog{},
	}
}

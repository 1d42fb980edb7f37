package server

import (
	"sync"
	"time"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/auth"
	"defter-backend/internal/cashbook"
	"defter-backend/internal/company"
	"defter-backend/internal/config"
	"defter-backend/internal/events"
	"defter-backend/internal/invoice"
	"defter-backend/internal/ledger"
	"defter-backend/internal/logger"
	"defter-backend/internal/models"
	"defter-backend/internal/party"
	"defter-backend/internal/payment"
	"defter-backend/internal/product"
	"defter-backend/internal/report"
	"defter-backend/internal/returns"
	"defter-backend/internal/settings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

var hooksOnce sync.Once

// RegisterUndoHooks wires the domain checks that must run when the audit
// log reverts a change. Safe to call more than once.
func RegisterUndoHooks() {
	hooksOnce.Do(func() {
		audit.OnUndo(models.EntityParty, party.AfterUndo)
		audit.OnUndo(models.EntityInvoice, invoice.AfterUndo)
		audit.OnUndo(models.EntityPayment, payment.AfterUndo)
		audit.OnUndo(models.EntityReturn, returns.AfterUndo)
		audit.OnUndo(models.EntityCategory, cashbook.CategoryAfterUndo)
		audit.OnUndo(models.EntityCashEntry, cashbook.EntryAfterUndo)
		audit.OnUndo(models.EntityAccountGroup, ledger.GroupAfterUndo)
		audit.OnUndo(models.EntityLedgerEntry, ledger.EntryAfterUndo)
	})
}

// NewApp builds the HTTP application. The database must be initialised.
func NewApp(cfg *config.Config, pub events.Publisher) *fiber.App {
	RegisterUndoHooks()

	app := fiber.New(fiber.Config{
		AppName:      "defter-backend",
		ErrorHandler: apperr.Handler,
		BodyLimit:    12 << 20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowedOrigins(),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + payment.IdempotencyHeader,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: "Content-Disposition",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())
	protected.Put("/auth/me", auth.UpdateMeHandler())
	protected.Put("/auth/password", auth.ChangePasswordHandler())

	// Settings
	protected.Get("/settings/notifications", settings.GetNotificationsHandler())
	protected.Put("/settings/notifications", settings.UpdateNotificationsHandler())
	protected.Post("/settings/reset-database", settings.ResetDatabaseHandler(cfg))

	protected.Get("/company", company.GetCompanyHandler())
	protected.Put("/company", company.UpdateCompanyHandler())

	// Customers and vendors
	for path, kind := range map[string]models.PartyKind{
		"/customers": models.PartyKindCustomer,
		"/vendors":   models.PartyKindVendor,
	} {
		g := protected.Group(path)
		g.Get("/", party.ListPartiesHandler(kind))
		g.Post("/", party.CreatePartyHandler(kind))
		g.Get("/:id", party.GetPartyHandler(kind))
		g.Put("/:id", party.UpdatePartyHandler(kind))
		g.Delete("/:id", party.DeletePartyHandler(kind))
	}

	// Products
	protected.Get("/products", product.ListProductsHandler())
	protected.Post("/products", product.CreateProductHandler())
	protected.Post("/products/import", product.ImportProductsHandler())
	protected.Get("/products/:id", product.GetProductHandler())
	protected.Put("/products/:id", product.UpdateProductHandler())
	protected.Delete("/products/:id", product.DeleteProductHandler())

	// Invoices
	for path, typ := range map[string]models.InvoiceType{
		"/sales-invoices":    models.InvoiceTypeSales,
		"/purchase-invoices": models.InvoiceTypePurchase,
	} {
		g := protected.Group(path)
		g.Get("/", invoice.ListInvoicesHandler(typ))
		g.Post("/", invoice.CreateInvoiceHandler(typ, pub))
		g.Get("/:id", invoice.GetInvoiceHandler(typ))
		g.Put("/:id", invoice.UpdateInvoiceHandler(typ, pub))
		g.Delete("/:id", invoice.DeleteInvoiceHandler(typ))
	}

	// Payments
	for path, dir := range map[string]models.PaymentDirection{
		"/payments-in":  models.PaymentDirectionIn,
		"/payments-out": models.PaymentDirectionOut,
	} {
		g := protected.Group(path)
		g.Get("/", payment.ListPaymentsHandler(dir))
		g.Post("/", payment.CreatePaymentHandler(dir, pub))
		g.Get("/:id", payment.GetPaymentHandler(dir))
		g.Put("/:id", payment.UpdatePaymentHandler(dir, pub))
		g.Delete("/:id", payment.DeletePaymentHandler(dir))
	}

	// Returns
	for path, typ := range map[string]models.ReturnType{
		"/sales-returns":    models.ReturnTypeSales,
		"/purchase-returns": models.ReturnTypePurchase,
	} {
		g := protected.Group(path)
		g.Get("/", returns.ListReturnsHandler(typ))
		g.Post("/", returns.CreateReturnHandler(typ, pub))
		g.Get("/:id", returns.GetReturnHandler(typ))
		g.Put("/:id", returns.UpdateReturnHandler(typ, pub))
		g.Delete("/:id", returns.DeleteReturnHandler(typ))
	}

	// Income and expense categories
	for path, typ := range map[string]models.CategoryType{
		"/income-categories":  models.CategoryTypeIncome,
		"/expense-categories": models.CategoryTypeExpense,
	} {
		g := protected.Group(path)
		g.Get("/", cashbook.ListCategoriesHandler(typ))
		g.Post("/", cashbook.CreateCategoryHandler(typ))
		g.Put("/:id", cashbook.UpdateCategoryHandler(typ))
		g.Delete("/:id", cashbook.DeleteCategoryHandler(typ))
	}

	// Incomes and expenses
	for path, kind := range map[string]models.CashEntryKind{
		"/incomes":  models.CashEntryIncome,
		"/expenses": models.CashEntryExpense,
	} {
		g := protected.Group(path)
		g.Get("/", cashbook.ListEntriesHandler(kind))
		g.Post("/", cashbook.CreateEntryHandler(kind))
		g.Get("/:id", cashbook.GetEntryHandler(kind))
		g.Put("/:id", cashbook.UpdateEntryHandler(kind))
		g.Delete("/:id", cashbook.DeleteEntryHandler(kind))
		g.Post("/:id/receipt", cashbook.UploadReceiptHandler(kind, cfg))
		g.Get("/:id/receipt", cashbook.DownloadReceiptHandler(kind, cfg))
	}

	// Balance sheet ledger
	protected.Get("/account-groups", ledger.ListGroupsHandler())
	protected.Post("/account-groups", ledger.CreateGroupHandler())
	protected.Put("/account-groups/:id", ledger.UpdateGroupHandler())
	protected.Delete("/account-groups/:id", ledger.DeleteGroupHandler())
	protected.Get("/ledger-entries", ledger.ListEntriesHandler())
	protected.Post("/ledger-entries", ledger.CreateEntryHandler())
	protected.Put("/ledger-entries/:id", ledger.UpdateEntryHandler())
	protected.Delete("/ledger-entries/:id", ledger.DeleteEntryHandler())

	// Reports
	protected.Get("/reports/summary", report.SummaryHandler())
	protected.Get("/reports/chart", report.ChartHandler())
	protected.Get("/reports/balance-sheet", report.BalanceSheetHandler())
	protected.Get("/reports/export", report.ExportHandler())

	// Audit log
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", audit.UndoAuditLogHandler())

	return app
}

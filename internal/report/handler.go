package report

import (
	"bytes"
	"strconv"
	"time"

	"defter-backend/internal/auth"
	"defter-backend/internal/dates"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// dateRange reads from and to; the current month up to today by default.
func dateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	today := dates.Today()
	from, to := dates.StartOfMonth(today), today
	if s := c.Query("from"); s != "" {
		t, err := dates.Parse(s)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "from: "+err.Error())
		}
		from = t
	}
	if s := c.Query("to"); s != "" {
		t, err := dates.Parse(s)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "to: "+err.Error())
		}
		to = t
	}
	return from, to, nil
}

// GET /api/reports/summary?from=&to=&period=daily|weekly|monthly
func SummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		s, err := BuildSummary(c.UserContext(), userID, from, to, Period(c.Query("period")))
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}

// GET /api/reports/chart?period=daily&count=7
func ChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		count := 0
		if s := c.Query("count"); s != "" {
			if count, err = strconv.Atoi(s); err != nil || count <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid count")
			}
		}
		chart, err := BuildChart(c.UserContext(), userID, Period(c.Query("period")), count)
		if err != nil {
			return err
		}
		return c.JSON(chart)
	}
}

// GET /api/reports/balance-sheet?as_of=&include_earnings=true
func BalanceSheetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		asOf := dates.Today()
		if s := c.Query("as_of"); s != "" {
			if asOf, err = dates.Parse(s); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "as_of: "+err.Error())
			}
		}
		bs, err := BuildBalanceSheet(c.UserContext(), userID, asOf, c.QueryBool("include_earnings", false))
		if err != nil {
			return err
		}
		return c.JSON(bs)
	}
}

// GET /api/reports/export?dataset=invoices&from=&to=
func ExportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		d := Dataset(c.Query("dataset", string(DatasetSummary)))
		var buf bytes.Buffer
		if err := ExportXLSX(c.UserContext(), userID, d, from, to, &buf); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, xlsxContentType)
		c.Attachment(Filename(d, from, to))
		return c.Send(buf.Bytes())
	}
}

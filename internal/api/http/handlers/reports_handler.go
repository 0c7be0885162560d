package handlers

import (
	"bytes"
	"context"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/report"
)

// ReportService produces report aggregates and exports.
type ReportService interface {
	Generate(ctx context.Context, q report.Query) (report.Result, error)
	Summary(ctx context.Context) (report.Result, error)
	ExportCSV(ctx context.Context, q report.Query, w io.Writer) error
	ExportPDF(ctx context.Context, q report.Query, w io.Writer) error
}

// ReportsHandler serves the admin reporting endpoints.
type ReportsHandler struct {
	service ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reportService ReportService) *ReportsHandler {
	return &ReportsHandler{service: reportService}
}

// Report GET /reports.
func (h *ReportsHandler) Report(c *fiber.Ctx) error {
	res, err := h.service.Generate(c.UserContext(), parseReportQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// Summary GET /reports/summary.
func (h *ReportsHandler) Summary(c *fiber.Ctx) error {
	res, err := h.service.Summary(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// ExportCSV GET /reports/export.csv.
func (h *ReportsHandler) ExportCSV(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.service.ExportCSV(c.UserContext(), parseReportQuery(c), &buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="ticket-report.csv"`)
	return c.Send(buf.Bytes())
}

// ExportPDF GET /reports/export.pdf.
func (h *ReportsHandler) ExportPDF(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.service.ExportPDF(c.UserContext(), parseReportQuery(c), &buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="ticket-report.pdf"`)
	return c.Send(buf.Bytes())
}

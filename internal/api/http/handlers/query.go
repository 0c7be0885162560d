package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/report"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	dateOnlyLayout  = "2006-01-02"
)

// parseDate accepts RFC3339 or YYYY-MM-DD. A date-only upper bound covers the whole
// day. Unparseable input yields nil.
func parseDate(val string, endOfDay bool) *time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		t = t.UTC()
		return &t
	}
	t, err := time.Parse(dateOnlyLayout, val)
	if err != nil {
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func optionalString(val string) *string {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil
	}
	return &val
}

// optionalUUID returns the canonical form of val, or nil when it is not a UUID.
func optionalUUID(val string) *string {
	id, err := uuid.Parse(strings.TrimSpace(val))
	if err != nil {
		return nil
	}
	out := id.String()
	return &out
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseReportQuery reads the reporting filters. Invalid values degrade to "no filter"
// or the default grouping instead of failing the request.
func parseReportQuery(c *fiber.Ctx) report.Query {
	q := report.Query{
		StartDate:    parseDate(c.Query("startDate"), false),
		EndDate:      parseDate(c.Query("endDate"), true),
		Type:         optionalString(c.Query("type")),
		Category:     optionalString(c.Query("category")),
		AssignedUser: optionalUUID(c.Query("assignedUser")),
		GroupBy:      report.ParseGroupBy(c.Query("groupBy")),
	}
	if status := optionalString(c.Query("status")); status != nil {
		s := domain.TicketStatus(*status)
		q.Status = &s
	}
	return q
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

// Package report turns ticket snapshots into the aggregates behind the reporting
// dashboard and its CSV/PDF exports. Nothing in this package performs I/O against
// storage; callers load tickets and hand them in.
package report

import (
	"strings"
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// GroupBy selects the time bucket granularity of a report.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

// DefaultGroupBy is used whenever the requested granularity is missing or unknown.
const DefaultGroupBy = GroupByMonth

// ParseGroupBy maps user input onto a GroupBy, falling back to DefaultGroupBy.
func ParseGroupBy(raw string) GroupBy {
	switch GroupBy(strings.ToLower(strings.TrimSpace(raw))) {
	case GroupByDay:
		return GroupByDay
	case GroupByWeek:
		return GroupByWeek
	case GroupByMonth:
		return GroupByMonth
	}
	return DefaultGroupBy
}

// Query carries the report parameters. Nil or empty fields do not filter.
type Query struct {
	StartDate    *time.Time
	EndDate      *time.Time
	Status       *domain.TicketStatus
	Type         *string
	Category     *string
	AssignedUser *string
	GroupBy      GroupBy
}

// Normalize returns a copy with UTC bounds and a known GroupBy.
func (q Query) Normalize() Query {
	out := q
	if q.StartDate != nil {
		s := q.StartDate.UTC()
		out.StartDate = &s
	}
	if q.EndDate != nil {
		e := q.EndDate.UTC()
		out.EndDate = &e
	}
	out.GroupBy = ParseGroupBy(string(q.GroupBy))
	return out
}

package report

import "github.com/spec-kit/ticket-desk/internal/domain"

// Filter returns the tickets matching every filter set on q.
// A ticket without a created_at never satisfies a date bound.
func Filter(tickets []domain.Ticket, q Query) []domain.Ticket {
	q = q.Normalize()
	out := make([]domain.Ticket, 0, len(tickets))
	for i := range tickets {
		if matches(&tickets[i], q) {
			out = append(out, tickets[i])
		}
	}
	return out
}

func matches(t *domain.Ticket, q Query) bool {
	if q.StartDate != nil || q.EndDate != nil {
		if t.CreatedAt.IsZero() {
			return false
		}
		created := t.CreatedAt.UTC()
		if q.StartDate != nil && created.Before(*q.StartDate) {
			return false
		}
		if q.EndDate != nil && created.After(*q.EndDate) {
			return false
		}
	}
	if q.Status != nil && t.Status != *q.Status {
		return false
	}
	if q.Type != nil && t.Type != *q.Type {
		return false
	}
	if q.Category != nil && t.Category != *q.Category {
		return false
	}
	if q.AssignedUser != nil && (t.AssignedTo == nil || *t.AssignedTo != *q.AssignedUser) {
		return false
	}
	return true
}

package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

func strPtr(s string) *string { return &s }

func ids(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	alice := "alice"
	bob := "bob"
	closed := domain.TicketStatusClosed
	tickets := []domain.Ticket{
		{ID: "1", Status: domain.TicketStatusOpen, Type: "hardware", Category: "network", AssignedTo: &alice, CreatedAt: ts("2024-01-01T00:00:00Z")},
		{ID: "2", Status: domain.TicketStatusClosed, Type: "software", Category: "network", AssignedTo: &bob, CreatedAt: ts("2024-01-15T12:00:00Z")},
		{ID: "3", Status: domain.TicketStatusClosed, Type: "hardware", Category: "power", CreatedAt: ts("2024-01-31T23:59:59Z")},
		{ID: "4", Status: domain.TicketStatusOpen, Type: "hardware", Category: "power"},
	}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"no filters", Query{}, []string{"1", "2", "3", "4"}},
		{"inclusive date range", Query{StartDate: tsPtr("2024-01-01T00:00:00Z"), EndDate: tsPtr("2024-01-31T23:59:59Z")}, []string{"1", "2", "3"}},
		{"start only", Query{StartDate: tsPtr("2024-01-15T12:00:00Z")}, []string{"2", "3"}},
		{"status", Query{Status: &closed}, []string{"2", "3"}},
		{"type and category are conjunctive", Query{Type: strPtr("hardware"), Category: strPtr("power")}, []string{"3", "4"}},
		{"assigned user", Query{AssignedUser: strPtr("alice")}, []string{"1"}},
		{"everything", Query{Status: &closed, Type: strPtr("software"), AssignedUser: strPtr("bob"), EndDate: tsPtr("2024-02-01T00:00:00Z")}, []string{"2"}},
		{"no match", Query{Category: strPtr("plumbing")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(tickets, tt.query)))
		})
	}
}

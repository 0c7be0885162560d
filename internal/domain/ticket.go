package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketStatuses lists every known status in display order.
var TicketStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// TicketPriorities lists every known priority in display order.
var TicketPriorities = []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
//
// CreatedAt is the zero time when the stored value was missing or unparseable.
// ClosedAt is set only while Status is closed.
type Ticket struct {
	ID          string
	ExternalKey string
	CreatedBy   string
	AssignedTo  *string
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Type        string
	Category    string
	Station     string
	Client      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

// ResolutionTime returns closed_at - created_at and whether the ticket has a usable one.
// Only closed tickets with both timestamps and a strictly positive duration qualify.
func (t *Ticket) ResolutionTime() (time.Duration, bool) {
	if t.Status != TicketStatusClosed || t.ClosedAt == nil || t.CreatedAt.IsZero() {
		return 0, false
	}
	d := t.ClosedAt.Sub(t.CreatedAt)
	if d <= 0 {
		return d, false
	}
	return d, true
}

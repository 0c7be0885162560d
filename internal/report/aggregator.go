package report

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

const (
	msPerHour = float64(time.Hour / time.Millisecond)

	// UnassignedLabel groups tickets whose free-form label is empty.
	UnassignedLabel = "unassigned"
)

// Skip reasons reported to the SkipRecorder.
const (
	SkipMissingCreatedAt  = "missing_created_at"
	SkipUnknownStatus     = "unknown_status"
	SkipUnknownPriority   = "unknown_priority"
	SkipInvalidResolution = "invalid_resolution_time"
	SkipClosedAtMismatch  = "closed_at_status_mismatch"
)

// TimePoint is one bucket of the time series.
type TimePoint struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Result is the report payload served to dashboards and exports.
type Result struct {
	GroupBy                    GroupBy        `json:"groupBy"`
	Total                      int            `json:"total"`
	Resolved                   int            `json:"resolved"`
	ByStatus                   map[string]int `json:"byStatus"`
	ByPriority                 map[string]int `json:"byPriority"`
	ByType                     map[string]int `json:"byType"`
	ByCategory                 map[string]int `json:"byCategory"`
	ByStation                  map[string]int `json:"byStation"`
	ByClient                   map[string]int `json:"byClient"`
	AverageResolutionTimeHours float64        `json:"averageResolutionTimeHours"`
	TimeSeries                 []TimePoint    `json:"timeSeries"`
}

// SkipRecorder observes records excluded from part of a report.
type SkipRecorder func(reason string)

// Aggregator computes Results. It holds no per-call state and is safe for concurrent use.
type Aggregator struct {
	logger *zap.Logger
	onSkip SkipRecorder
}

// NewAggregator builds an Aggregator. Both arguments may be nil.
func NewAggregator(logger *zap.Logger, onSkip SkipRecorder) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger, onSkip: onSkip}
}

// Aggregate summarizes tickets in a single pass. The input is not modified and its
// order does not affect the result.
func (a *Aggregator) Aggregate(tickets []domain.Ticket, groupBy GroupBy) Result {
	groupBy = ParseGroupBy(string(groupBy))
	res := Result{
		GroupBy:    groupBy,
		Total:      len(tickets),
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByType:     map[string]int{},
		ByCategory: map[string]int{},
		ByStation:  map[string]int{},
		ByClient:   map[string]int{},
		TimeSeries: []TimePoint{},
	}

	buckets := map[string]int{}
	var resolvedMs int64

	for i := range tickets {
		t := &tickets[i]

		if t.Status.Valid() {
			res.ByStatus[string(t.Status)]++
		} else {
			a.skip(t, SkipUnknownStatus, zap.String("status", string(t.Status)))
		}
		if t.Priority.Valid() {
			res.ByPriority[string(t.Priority)]++
		} else {
			a.skip(t, SkipUnknownPriority, zap.String("priority", string(t.Priority)))
		}

		res.ByType[labelOrUnassigned(t.Type)]++
		res.ByCategory[labelOrUnassigned(t.Category)]++
		res.ByStation[labelOrUnassigned(t.Station)]++
		res.ByClient[labelOrUnassigned(t.Client)]++

		if t.CreatedAt.IsZero() {
			a.skip(t, SkipMissingCreatedAt)
		} else {
			buckets[BucketLabel(t.CreatedAt, groupBy)]++
		}

		closed := t.Status == domain.TicketStatusClosed
		switch {
		case closed != (t.ClosedAt != nil):
			a.skip(t, SkipClosedAtMismatch, zap.String("status", string(t.Status)))
		case closed:
			d, ok := t.ResolutionTime()
			if !ok || d.Milliseconds() <= 0 {
				a.skip(t, SkipInvalidResolution, zap.Duration("duration", d))
				continue
			}
			res.Resolved++
			resolvedMs += d.Milliseconds()
		}
	}

	if res.Resolved > 0 {
		res.AverageResolutionTimeHours = float64(resolvedMs) / float64(res.Resolved) / msPerHour
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		res.TimeSeries = append(res.TimeSeries, TimePoint{Label: label, Count: buckets[label]})
	}

	return res
}

func (a *Aggregator) skip(t *domain.Ticket, reason string, fields ...zap.Field) {
	a.logger.Debug("ticket excluded from aggregate",
		append([]zap.Field{zap.String("ticket_id", t.ID), zap.String("reason", reason)}, fields...)...)
	if a.onSkip != nil {
		a.onSkip(reason)
	}
}

func labelOrUnassigned(label string) string {
	if label == "" {
		return UnassignedLabel
	}
	return label
}

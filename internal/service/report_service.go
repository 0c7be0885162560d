package service

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/report"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

const (
	scopeReport  = "report"
	scopeSummary = "summary"

	// ExportTitle heads the PDF export.
	ExportTitle = "Ticket report"
)

// ReportCache is the subset of the Redis cache the report service needs.
type ReportCache interface {
	Get(ctx context.Context, scope string, q report.Query) (*report.Result, string, error)
	Set(ctx context.Context, key string, res report.Result) error
}

// ReportService loads tickets and turns them into report aggregates.
type ReportService struct {
	tickets    repository.TicketRepository
	cache      ReportCache
	aggregator *report.Aggregator
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// ReportDependencies bundles collaborators for the report service.
type ReportDependencies struct {
	TicketRepo repository.TicketRepository
	Cache      ReportCache
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewReportService constructs the service. Cache and Metrics are optional.
func NewReportService(deps ReportDependencies) *ReportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ReportService{
		tickets:    deps.TicketRepo,
		cache:      deps.Cache,
		aggregator: report.NewAggregator(logger, deps.Metrics.RecordReportSkip),
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
	}
}

// Generate builds the report for q, serving it from cache when possible.
func (s *ReportService) Generate(ctx context.Context, q report.Query) (report.Result, error) {
	return s.generate(ctx, scopeReport, q)
}

// Summary aggregates every ticket with monthly buckets.
func (s *ReportService) Summary(ctx context.Context) (report.Result, error) {
	return s.generate(ctx, scopeSummary, report.Query{GroupBy: report.DefaultGroupBy})
}

// ExportCSV writes the report for q as CSV.
func (s *ReportService) ExportCSV(ctx context.Context, q report.Query, w io.Writer) error {
	res, err := s.Generate(ctx, q)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, res)
}

// ExportPDF writes the report for q as a PDF document.
func (s *ReportService) ExportPDF(ctx context.Context, q report.Query, w io.Writer) error {
	res, err := s.Generate(ctx, q)
	if err != nil {
		return err
	}
	return report.WritePDF(w, res, ExportTitle, s.now())
}

func (s *ReportService) generate(ctx context.Context, scope string, q report.Query) (report.Result, error) {
	q = q.Normalize()

	var cacheKey string
	if s.cache != nil {
		cached, key, err := s.cache.Get(ctx, scope, q)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheLookup(cached != nil)
		if cached != nil {
			return *cached, nil
		}
		cacheKey = key
	}

	tickets, err := s.tickets.ListAll(ctx, ticketFilterFor(q))
	if err != nil {
		return report.Result{}, apperrors.MapError(err)
	}

	res := s.aggregator.Aggregate(report.Filter(tickets, q), q.GroupBy)
	s.metrics.RecordReport(string(res.GroupBy))

	if s.cache != nil && cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, res); err != nil {
			s.logger.Warn("report cache write failed", zap.Error(err))
		}
	}
	return res, nil
}

// ticketFilterFor pushes the report filters down to SQL. report.Filter still runs
// afterwards, so this only needs to be a superset.
func ticketFilterFor(q report.Query) repository.TicketFilter {
	filter := repository.TicketFilter{
		Type:        q.Type,
		Category:    q.Category,
		AssignedTo:  q.AssignedUser,
		CreatedFrom: q.StartDate,
		CreatedTo:   q.EndDate,
	}
	if q.Status != nil {
		filter.Statuses = []domain.TicketStatus{*q.Status}
	}
	return filter
}

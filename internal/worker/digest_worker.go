package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/mail"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/report"
)

// TemplateDigest labels digest emails.
const TemplateDigest = "report_digest"

const (
	digestDays    = 7
	digestTimeout = 2 * time.Minute
)

// ReportGenerator produces report results.
type ReportGenerator interface {
	Generate(ctx context.Context, q report.Query) (report.Result, error)
}

// DigestWorker mails a daily-bucketed report of the previous week on a cron schedule.
type DigestWorker struct {
	cron       *cron.Cron
	schedule   string
	recipients []string
	reports    ReportGenerator
	mailer     mail.Mailer
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewDigestWorker builds a worker. Nothing runs until Start.
func NewDigestWorker(cfg config.DigestConfig, reports ReportGenerator, mailer mail.Mailer, metrics *observability.Metrics, logger *zap.Logger) *DigestWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestWorker{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		schedule:   cfg.Schedule,
		recipients: cfg.Recipients,
		reports:    reports,
		mailer:     mailer,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Start registers the digest job and starts the scheduler.
func (w *DigestWorker) Start() error {
	if len(w.recipients) == 0 {
		return errors.New("digest enabled without recipients")
	}
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
		defer cancel()
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error("report digest failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", w.schedule, err)
	}
	w.cron.Start()
	w.logger.Info("report digest scheduled", zap.String("schedule", w.schedule))
	return nil
}

// Stop halts the scheduler; the returned context is done once a running job finishes.
func (w *DigestWorker) Stop() context.Context {
	return w.cron.Stop()
}

// RunOnce generates and mails one digest.
func (w *DigestWorker) RunOnce(ctx context.Context) error {
	start, end := DigestWindow(w.now())
	res, err := w.reports.Generate(ctx, report.Query{
		StartDate: &start,
		EndDate:   &end,
		GroupBy:   report.GroupByDay,
	})
	if err != nil {
		return fmt.Errorf("generate digest report: %w", err)
	}

	err = w.mailer.Send(ctx, mail.Message{
		To:       w.recipients,
		Subject:  fmt.Sprintf("Ticket digest %s to %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
		Body:     FormatDigest(res, start, end),
		Template: TemplateDigest,
	})
	w.metrics.RecordEmail(TemplateDigest, err)
	if err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	w.logger.Info("report digest sent", zap.Int("tickets", res.Total), zap.Int("recipients", len(w.recipients)))
	return nil
}

// DigestWindow covers the seven whole UTC days before now's day.
func DigestWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -digestDays), today.Add(-time.Nanosecond)
}

// FormatDigest renders a plain-text summary of res.
func FormatDigest(res report.Result, start, end time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tickets created %s to %s\n\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total: %d\n", res.Total)
	fmt.Fprintf(&b, "Resolved: %d\n", res.Resolved)
	fmt.Fprintf(&b, "Average resolution time: %.1f hours\n", res.AverageResolutionTimeHours)

	writeCounts(&b, "By status", res.ByStatus)
	writeCounts(&b, "By priority", res.ByPriority)

	b.WriteString("\nPer day:\n")
	if len(res.TimeSeries) == 0 {
		b.WriteString("  (no tickets)\n")
	}
	for _, p := range res.TimeSeries {
		fmt.Fprintf(&b, "  %s  %d\n", p.Label, p.Count)
	}
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  %-12s %d\n", k, counts[k])
	}
}

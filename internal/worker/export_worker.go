package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/events"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/metrics"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/session"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/sheets"
)

// allYears marks a change that may affect every exported year.
const allYears = 0

// ExportWorker keeps the yearly report sheets in line with the ledger. It
// collects the years touched by change notifications and rewrites them once
// no further change arrived for the debounce window.
type ExportWorker struct {
	sess     *session.Session
	writer   sheets.ReportWriter
	notifier events.Notifier
	metrics  *metrics.Metrics
	debounce time.Duration
	interval time.Duration

	mu      sync.Mutex
	pending map[int]struct{}
	kick    chan struct{}
}

type Options struct {
	Metrics *metrics.Metrics
	// Debounce is the quiet period before pending years are exported.
	Debounce time.Duration
	// Interval triggers a full export periodically; zero disables it.
	Interval time.Duration
}

// NewExportWorker builds a worker reading the ledger through sess, which
// should be a read-only session the worker owns.
func NewExportWorker(sess *session.Session, writer sheets.ReportWriter, notifier events.Notifier, opts Options) *ExportWorker {
	if notifier == nil {
		notifier = events.Nop{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 5 * time.Second
	}
	return &ExportWorker{
		sess:     sess,
		writer:   writer,
		notifier: notifier,
		metrics:  opts.Metrics,
		debounce: opts.Debounce,
		interval: opts.Interval,
		pending:  make(map[int]struct{}),
		kick:     make(chan struct{}, 1),
	}
}

// Run exports every year once, then follows change notifications until ctx
// is done.
func (w *ExportWorker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Performing startup export")
	if err := w.ExportAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup export failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.notifier.Subscribe(ctx, w.HandleChange)
	})
	g.Go(func() error {
		return w.loop(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleChange schedules the years affected by c for export. Category
// changes affect every year.
func (w *ExportWorker) HandleChange(ctx context.Context, c events.Change) error {
	year := c.Year
	if c.Entity == events.EntityCategory {
		year = allYears
	}
	w.mark(year)
	w.metrics.ChangeNotification("in", nil)

	slog.DebugContext(ctx, "Change scheduled for export",
		"entity", c.Entity,
		"op", c.Op,
		"id", c.ID,
		"year", year)
	return nil
}

func (w *ExportWorker) mark(years ...int) {
	w.mu.Lock()
	for _, y := range years {
		w.pending[y] = struct{}{}
	}
	w.mu.Unlock()
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Pending returns the years waiting for export, ascending. Zero stands for
// every year.
func (w *ExportWorker) Pending() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedYears(w.pending)
}

func (w *ExportWorker) loop(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.kick:
			timer.Reset(w.debounce)
		case <-timer.C:
			if err := w.Flush(ctx); err != nil {
				slog.ErrorContext(ctx, "Report export failed", "error", err)
			}
		case <-tick:
			w.mark(allYears)
		}
	}
}

// Flush reloads the ledger and exports every pending year. Years that fail
// stay pending for the next flush.
func (w *ExportWorker) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[int]struct{})
	w.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	if err := w.sess.Load(ctx); err != nil {
		w.requeue(pending)
		return fmt.Errorf("reload ledger: %w", err)
	}

	years := make(map[int]struct{}, len(pending))
	for y := range pending {
		if y == allYears {
			for _, known := range w.sess.Years() {
				years[known] = struct{}{}
			}
			continue
		}
		years[y] = struct{}{}
	}

	failed := make(map[int]struct{})
	var errs []error
	for _, y := range sortedYears(years) {
		if err := w.exportYear(ctx, y); err != nil {
			failed[y] = struct{}{}
			errs = append(errs, err)
		}
	}
	if len(failed) > 0 {
		w.requeue(failed)
	}
	return errors.Join(errs...)
}

func (w *ExportWorker) requeue(years map[int]struct{}) {
	w.mu.Lock()
	for y := range years {
		w.pending[y] = struct{}{}
	}
	w.mu.Unlock()
}

// ExportAll reloads the ledger and exports every year with transactions.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	w.mark(allYears)
	return w.Flush(ctx)
}

func (w *ExportWorker) exportYear(ctx context.Context, year int) error {
	start := time.Now()
	r := sheets.YearReport{
		Year:    year,
		Income:  w.sess.CategoryHierarchyReport(year, core.Income),
		Expense: w.sess.CategoryHierarchyReport(year, core.Expense),
	}
	err := w.writer.WriteYearReport(ctx, r)
	w.metrics.Export(err)
	if err != nil {
		return fmt.Errorf("export %d: %w", year, err)
	}
	slog.InfoContext(ctx, "Exported year report",
		"year", year,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func sortedYears(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for y := range set {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

package service

import (
	"booksync/internal/config"
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ImportWorker copies new and updated entries from an OPDS catalog into the
// catalog store.
type ImportWorker struct {
	cfg     config.OPDSConfig
	src     ports.CatalogSource
	catalog ports.CatalogWriter
	state   ports.CursorStore
	logger  *zap.Logger
	clock   clockwork.Clock
}

type ImportOpt func(*ImportWorker)

func WithImportLogger(logger *zap.Logger) ImportOpt {
	return func(w *ImportWorker) {
		w.logger = logger
	}
}

func WithImportClock(clock clockwork.Clock) ImportOpt {
	return func(w *ImportWorker) {
		w.clock = clock
	}
}

func NewImportWorker(
	cfg config.OPDSConfig,
	src ports.CatalogSource,
	catalog ports.CatalogWriter,
	state ports.CursorStore,
	opts ...ImportOpt,
) *ImportWorker {
	w := &ImportWorker{
		cfg:     cfg,
		src:     src,
		catalog: catalog,
		state:   state,
		logger:  zap.NewNop(),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cfg.Concurrency < 1 {
		w.cfg.Concurrency = 1
	}
	return w
}

// ImportReport summarizes one Run.
type ImportReport struct {
	Fetched   int
	Imported  int
	Failed    int
	Watermark int64
}

// importKey identifies one version of an entry, so a later update of an
// already imported book is imported again.
func importKey(e models.CatalogEntry) string {
	return e.UUID + "@" + strconv.FormatInt(e.LastModified.UnixNano(), 10)
}

// Run executes one import batch.
func (w *ImportWorker) Run(ctx context.Context) (ImportReport, error) {
	// Config takes precedence if set to a non-zero value, otherwise use state
	since := w.cfg.SinceTimestamp
	if since == 0 {
		since = w.state.GetWatermark()
	}
	report := ImportReport{Watermark: since}

	w.logger.Info("starting import", zap.Int64("since", since), zap.Time("since_time", time.Unix(since, 0).UTC()))

	entries, err := w.src.FetchNewBooks(ctx, since)
	if err != nil {
		return report, fmt.Errorf("failed to fetch books: %w", err)
	}
	report.Fetched = len(entries)
	if len(entries) == 0 {
		w.logger.Info("no new catalog entries")
		return report, nil
	}

	var (
		actionable []models.CatalogEntry
		maxSuccess = since
		minFailure = int64(math.MaxInt64)
	)
	for _, e := range entries {
		if w.state.IsProcessed(importKey(e)) {
			w.logger.Debug("skipping already imported entry", zap.String("uuid", e.UUID), zap.String("title", e.Title))
			if ts := e.LastModified.Unix(); ts > maxSuccess {
				maxSuccess = ts
			}
			continue
		}
		actionable = append(actionable, e)
	}

	if w.cfg.BatchSize > 0 && len(actionable) > w.cfg.BatchSize {
		w.logger.Info("limiting batch", zap.Int("batch_size", w.cfg.BatchSize), zap.Int("available", len(actionable)))
		// Entries left for a later run hold the watermark back like failures do.
		for _, e := range actionable[w.cfg.BatchSize:] {
			if ts := e.LastModified.Unix(); ts < minFailure {
				minFailure = ts
			}
		}
		actionable = actionable[:w.cfg.BatchSize]
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		sem          = make(chan struct{}, w.cfg.Concurrency)
		delay        = time.Duration(w.cfg.DelayMS) * time.Millisecond
		cancelledErr error
	)

	for _, entry := range actionable {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			cancelledErr = ctx.Err()
		}
		if cancelledErr != nil {
			break
		}

		// Politeness delay so the store is not hammered.
		if delay > 0 {
			w.clock.Sleep(delay)
		}

		wg.Add(1)
		go func(e models.CatalogEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			ts := e.LastModified.Unix()
			if err := w.catalog.UpsertBook(ctx, &e); err != nil {
				w.logger.Error("failed to import entry", zap.String("uuid", e.UUID), zap.String("title", e.Title), zap.Error(err))
				mu.Lock()
				report.Failed++
				if ts < minFailure {
					minFailure = ts
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			defer mu.Unlock()
			report.Imported++
			if err := w.state.MarkProcessed(importKey(e)); err != nil {
				w.logger.Warn("failed to mark entry imported", zap.String("uuid", e.UUID), zap.Error(err))
			}
			if ts > maxSuccess {
				maxSuccess = ts
			}
		}(entry)
	}

	wg.Wait()

	// Entries that failed must stay above the watermark so the next run
	// fetches them again.
	next := maxSuccess
	if minFailure != math.MaxInt64 && minFailure-1 < next {
		next = minFailure - 1
	}
	if next > since {
		if err := w.state.UpdateWatermark(next); err != nil {
			w.logger.Warn("failed to update watermark", zap.Error(err))
		}
	}

	if err := w.state.Save(); err != nil {
		return report, fmt.Errorf("failed to save state file: %w", err)
	}
	report.Watermark = w.state.GetWatermark()

	w.logger.Info("import complete",
		zap.Int("imported", report.Imported),
		zap.Int("failed", report.Failed),
		zap.Int64("watermark", report.Watermark),
	)
	if cancelledErr != nil {
		return report, cancelledErr
	}
	return report, nil
}

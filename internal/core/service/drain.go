package service

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrTooManyCycles is returned when a drain keeps reporting more data past
// its cycle limit.
var ErrTooManyCycles = errors.New("sync did not drain within the cycle limit")

// Syncer runs a single sync cycle.
type Syncer interface {
	Sync(ctx context.Context, req models.SyncRequest) (models.SyncResult, error)
}

// DrainWorker plays the client side of the protocol: it repeats cycles until
// the server reports nothing more, handing each batch to the sink and saving
// the cursor only after the sink accepted it.
type DrainWorker struct {
	syncer    Syncer
	cursors   ports.CursorStore
	sink      ports.EntrySink
	logger    *zap.Logger
	maxCycles int
}

type DrainOpt func(*DrainWorker)

func WithDrainLogger(logger *zap.Logger) DrainOpt {
	return func(d *DrainWorker) {
		d.logger = logger
	}
}

// WithMaxCycles bounds a single Drain call. Zero means no limit.
func WithMaxCycles(n int) DrainOpt {
	return func(d *DrainWorker) {
		d.maxCycles = n
	}
}

func NewDrainWorker(syncer Syncer, cursors ports.CursorStore, sink ports.EntrySink, opts ...DrainOpt) *DrainWorker {
	d := &DrainWorker{
		syncer:  syncer,
		cursors: cursors,
		sink:    sink,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DrainReport summarizes a Drain call.
type DrainReport struct {
	Cycles  int
	Entries int
	Cursor  models.WatermarkCursor
}

// Drain syncs the device's user until caught up. The request cursor is
// ignored; the stored cursor is used instead.
func (d *DrainWorker) Drain(ctx context.Context, req models.SyncRequest) (DrainReport, error) {
	req.Cursor = d.cursors.LoadCursor(req.UserID)
	report := DrainReport{Cursor: req.Cursor}

	for {
		if d.maxCycles > 0 && report.Cycles >= d.maxCycles {
			return report, ErrTooManyCycles
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := d.syncer.Sync(ctx, req)
		if err != nil {
			return report, fmt.Errorf("sync cycle %d failed: %w", report.Cycles+1, err)
		}
		report.Cycles++

		if err := d.sink.Deliver(ctx, result); err != nil {
			return report, fmt.Errorf("failed to deliver cycle %d: %w", report.Cycles, err)
		}
		if err := d.cursors.SaveCursor(req.UserID, result.Cursor); err != nil {
			return report, fmt.Errorf("failed to save cursor: %w", err)
		}
		report.Entries += len(result.Entries)
		report.Cursor = result.Cursor
		req.Cursor = result.Cursor

		d.logger.Debug("drained cycle",
			zap.Int("cycle", report.Cycles),
			zap.Int("entries", len(result.Entries)),
			zap.Bool("more", result.MoreAvailable),
		)

		if !result.MoreAvailable {
			return report, nil
		}
	}
}

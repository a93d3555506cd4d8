package service

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"fmt"
	"sort"
)

type standaloneStates struct {
	entries []models.SyncEntry
	// until is the reading-state position the emitted entries reach; it is
	// the zero cursor when nothing was emitted.
	until models.WatermarkCursor
	// total counts qualifying states before the cap was applied.
	total int
}

// capped reports whether qualifying states were left for a later cycle.
func (s standaloneStates) capped() bool {
	return s.total > len(s.entries)
}

type collector struct {
	states ports.ReadingStateStore
}

// collect gathers reading-state changes that were not already attached to a
// book record in this cycle.
func (c *collector) collect(
	ctx context.Context,
	userID int64,
	snapshot models.WatermarkCursor,
	covered models.BookIDSet,
	limit int,
) (standaloneStates, error) {
	states, err := c.states.FindByUser(ctx, userID, snapshot.ReadingStateSince())
	if err != nil {
		return standaloneStates{}, fmt.Errorf("failed to load reading states for user %d: %w", userID, err)
	}

	pending := make([]models.ReadingState, 0, len(states))
	for _, s := range states {
		if covered.Has(s.BookID) {
			continue
		}
		// Stores are expected to filter by since, but the snapshot is what counts.
		if snapshot.CoversReadingState(s.LastModified, s.BookID) {
			continue
		}
		pending = append(pending, s)
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.Before(b.LastModified)
		}
		return a.BookID < b.BookID
	})

	out := standaloneStates{total: len(pending)}
	if len(pending) > limit {
		last, next := pending[limit-1], pending[limit]
		out.until = models.WatermarkCursor{ReadingState: last.LastModified}
		// The cap split an instant; only the states up to this book are out.
		if next.LastModified.Equal(last.LastModified) {
			out.until.ReadingStateID = last.BookID
		}
		pending = pending[:limit]
	} else if len(pending) > 0 {
		out.until = models.WatermarkCursor{ReadingState: pending[len(pending)-1].LastModified}
	}

	out.entries = make([]models.SyncEntry, 0, len(pending))
	for i := range pending {
		state := pending[i]
		out.entries = append(out.entries, models.SyncEntry{
			Kind:         models.KindChangedReadingState,
			ReadingState: &state,
		})
	}

	return out, nil
}

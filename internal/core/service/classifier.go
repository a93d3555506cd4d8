package service

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"fmt"
)

type classification struct {
	entries []models.SyncEntry
	// maxima holds the largest timestamps seen in the batch, not yet applied
	// to any cursor.
	maxima models.WatermarkCursor
	// covered lists books whose reading state rode along with the book record.
	covered models.BookIDSet
}

type classifier struct {
	states  ports.ReadingStateStore
	archive ports.ArchiveStore
}

// classify labels each candidate against the snapshot only, so the labels do
// not depend on the order candidates are processed in.
func (c *classifier) classify(
	ctx context.Context,
	userID int64,
	candidates []models.CatalogEntry,
	snapshot models.WatermarkCursor,
	deliveries *deliveryCycle,
) (classification, error) {
	out := classification{
		entries: make([]models.SyncEntry, 0, len(candidates)),
		covered: models.NewBookIDSet(),
	}

	for i := range candidates {
		book := candidates[i]

		kind := models.KindChangedBook
		if book.CreatedAt.After(snapshot.BooksCreated) {
			kind = models.KindNewBook
		}

		flag, err := c.archive.FindArchiveFlag(ctx, userID, book.ID)
		if err != nil {
			return classification{}, fmt.Errorf("failed to load archive flag for book %d: %w", book.ID, err)
		}

		entry := models.SyncEntry{
			Kind:     kind,
			Book:     &book,
			Archived: flag != nil && flag.IsArchived,
		}

		state, err := c.states.FindByUserAndBook(ctx, userID, book.ID)
		if err != nil {
			return classification{}, fmt.Errorf("failed to load reading state for book %d: %w", book.ID, err)
		}
		if state != nil && !snapshot.CoversReadingState(state.LastModified, book.ID) {
			entry.ReadingState = state
			out.covered.Add(book.ID)
			out.maxima = out.maxima.Advance(models.WatermarkCursor{ReadingState: state.LastModified})
		}

		out.maxima = out.maxima.Advance(models.WatermarkCursor{
			BooksModified: book.LastModified,
			BooksCreated:  book.CreatedAt,
		})
		out.entries = append(out.entries, entry)

		if err := deliveries.markDelivered(ctx, book.ID); err != nil {
			return classification{}, err
		}
	}

	return out, nil
}

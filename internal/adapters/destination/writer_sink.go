package destination

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

var _ ports.EntrySink = (*WriterSink)(nil)

// WriterSink writes each delivered entry as one JSON line.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

type line struct {
	Kind         string               `json:"kind"`
	BookID       int64                `json:"book_id"`
	Archived     bool                 `json:"archived,omitempty"`
	Book         *models.CatalogEntry `json:"book,omitempty"`
	ReadingState *models.ReadingState `json:"reading_state,omitempty"`
}

func (s *WriterSink) Deliver(ctx context.Context, result models.SyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range result.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		l := line{
			Kind:         e.Kind.String(),
			BookID:       e.BookID(),
			Archived:     e.Archived,
			Book:         e.Book,
			ReadingState: e.ReadingState,
		}
		if err := s.enc.Encode(l); err != nil {
			return fmt.Errorf("failed to write entry for book %d: %w", l.BookID, err)
		}
	}
	return nil
}

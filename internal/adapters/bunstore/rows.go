package bunstore

import (
	"booksync/internal/core/domain/models"
	"encoding/json"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type bookRow struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID           int64     `bun:",pk,autoincrement"`
	UUID         string    `bun:"uuid,unique,notnull"`
	LibraryID    int64     `bun:",notnull"`
	Title        string    `bun:",notnull"`
	Author       string    `bun:",nullzero"`
	Description  string    `bun:",nullzero"`
	Formats      string    `bun:",nullzero"` // comma separated
	LastModified time.Time `bun:",notnull"`
	CreatedAt    time.Time `bun:",notnull"`
}

type readingStateRow struct {
	bun.BaseModel `bun:"table:reading_states,alias:rs"`

	UserID            int64     `bun:",pk"`
	BookID            int64     `bun:",pk"`
	Status            int       `bun:",notnull"`
	LastModified      time.Time `bun:",notnull"`
	PriorityTimestamp time.Time `bun:",nullzero"`
	Bookmark          string    `bun:",nullzero"` // JSON
	Statistics        string    `bun:",nullzero"` // JSON
}

type deliveryRow struct {
	bun.BaseModel `bun:"table:delivery_records,alias:dr"`

	UserID      int64     `bun:",pk"`
	BookID      int64     `bun:",pk"`
	DeliveredAt time.Time `bun:",notnull"`
}

type archiveRow struct {
	bun.BaseModel `bun:"table:archive_flags,alias:af"`

	UserID       int64     `bun:",pk"`
	BookID       int64     `bun:",pk"`
	IsArchived   bool      `bun:",notnull"`
	LastModified time.Time `bun:",notnull"`
}

type shelfRow struct {
	bun.BaseModel `bun:"table:shelves,alias:s"`

	ID          int64  `bun:",pk,autoincrement"`
	UserID      int64  `bun:",notnull"`
	LibraryID   int64  `bun:",notnull"`
	Name        string `bun:",notnull"`
	SyncEnabled bool   `bun:",notnull"`
}

type shelfBookRow struct {
	bun.BaseModel `bun:"table:shelf_books,alias:sb"`

	ShelfID int64 `bun:",pk"`
	BookID  int64 `bun:",pk"`
}

type deviceRow struct {
	bun.BaseModel `bun:"table:devices,alias:dv"`

	Token          string    `bun:",pk"`
	Name           string    `bun:",nullzero"`
	UserID         int64     `bun:",notnull"`
	LibraryID      int64     `bun:",notnull"`
	ScopeToShelves bool      `bun:",notnull"`
	CreatedAt      time.Time `bun:",notnull"`
}

// dbTime normalizes timestamps to what the column can hold so values read
// back compare equal to what was written.
func dbTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

func toBookRow(e *models.CatalogEntry) *bookRow {
	formats := make([]string, 0, len(e.Formats))
	for _, f := range e.Formats {
		formats = append(formats, string(f))
	}
	return &bookRow{
		ID:           e.ID,
		UUID:         e.UUID,
		LibraryID:    e.LibraryID,
		Title:        e.Title,
		Author:       e.Author,
		Description:  e.Description,
		Formats:      strings.Join(formats, ","),
		LastModified: dbTime(e.LastModified),
		CreatedAt:    dbTime(e.CreatedAt),
	}
}

func (r *bookRow) entry() models.CatalogEntry {
	var formats []models.Format
	for _, s := range strings.Split(r.Formats, ",") {
		if s == "" {
			continue
		}
		formats = append(formats, models.Format(s))
	}
	return models.CatalogEntry{
		ID:           r.ID,
		UUID:         r.UUID,
		LibraryID:    r.LibraryID,
		Title:        r.Title,
		Author:       r.Author,
		Description:  r.Description,
		Formats:      formats,
		LastModified: r.LastModified.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func toReadingStateRow(s *models.ReadingState) (*readingStateRow, error) {
	row := &readingStateRow{
		UserID:            s.UserID,
		BookID:            s.BookID,
		Status:            int(s.Status),
		LastModified:      dbTime(s.LastModified),
		PriorityTimestamp: dbTime(s.PriorityTimestamp),
	}
	if s.Bookmark != nil {
		b := *s.Bookmark
		b.LastModified = dbTime(b.LastModified)
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		row.Bookmark = string(raw)
	}
	if s.Statistics != nil {
		st := *s.Statistics
		st.LastModified = dbTime(st.LastModified)
		raw, err := json.Marshal(st)
		if err != nil {
			return nil, err
		}
		row.Statistics = string(raw)
	}
	return row, nil
}

func (r *readingStateRow) state() (models.ReadingState, error) {
	out := models.ReadingState{
		UserID:       r.UserID,
		BookID:       r.BookID,
		Status:       models.ReadStatus(r.Status),
		LastModified: r.LastModified.UTC(),
	}
	if !r.PriorityTimestamp.IsZero() {
		out.PriorityTimestamp = r.PriorityTimestamp.UTC()
	}
	if r.Bookmark != "" {
		out.Bookmark = new(models.Bookmark)
		if err := json.Unmarshal([]byte(r.Bookmark), out.Bookmark); err != nil {
			return models.ReadingState{}, err
		}
	}
	if r.Statistics != "" {
		out.Statistics = new(models.Statistics)
		if err := json.Unmarshal([]byte(r.Statistics), out.Statistics); err != nil {
			return models.ReadingState{}, err
		}
	}
	return out, nil
}

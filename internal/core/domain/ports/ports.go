package ports

import (
	"booksync/internal/core/domain/models"
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// CatalogStore lists a library's books one page at a time. Pages are
// zero-based and ordered by book id.
type CatalogStore interface {
	ListBooks(ctx context.Context, libraryID int64, page, pageSize int) ([]models.CatalogEntry, error)
}

type CatalogWriter interface {
	// UpsertBook inserts or updates a book by UUID and fills in its ID.
	UpsertBook(ctx context.Context, book *models.CatalogEntry) error
	GetBook(ctx context.Context, bookID int64) (*models.CatalogEntry, error)
}

type ReadingStateStore interface {
	// FindByUser returns the user's reading states modified strictly after since.
	FindByUser(ctx context.Context, userID int64, since time.Time) ([]models.ReadingState, error)
	// FindByUserAndBook returns nil, nil when the user has no state for the book.
	FindByUserAndBook(ctx context.Context, userID, bookID int64) (*models.ReadingState, error)
}

type ReadingStateWriter interface {
	UpsertReadingState(ctx context.Context, state *models.ReadingState) error
}

type DeliveryStore interface {
	FindDeliveredIDs(ctx context.Context, userID int64) (models.BookIDSet, error)
	UpsertDelivered(ctx context.Context, userID, bookID int64, now time.Time) error
}

type ArchiveStore interface {
	// FindArchiveFlag returns nil, nil when the book was never archived or restored.
	FindArchiveFlag(ctx context.Context, userID, bookID int64) (*models.ArchiveFlag, error)
}

type ArchiveWriter interface {
	SetArchived(ctx context.Context, userID, bookID int64, archived bool, now time.Time) error
}

type ShelfStore interface {
	// MemberBookIDs returns the ids of books on the user's sync-enabled shelves.
	MemberBookIDs(ctx context.Context, userID, libraryID int64) (models.BookIDSet, error)
}

type ShelfWriter interface {
	CreateShelf(ctx context.Context, userID, libraryID int64, name string, syncEnabled bool) (int64, error)
	AddToShelf(ctx context.Context, shelfID, bookID int64) error
}

type DeviceStore interface {
	RegisterDevice(ctx context.Context, device *models.Device) error
	// ResolveDevice returns ErrNotFound for unknown tokens.
	ResolveDevice(ctx context.Context, token string) (*models.Device, error)
}

// CatalogKey scopes a cached catalog listing to a single user and library.
type CatalogKey struct {
	UserID    int64
	LibraryID int64
}

// CatalogCache holds whole catalog listings, never individual pages.
type CatalogCache interface {
	Get(key CatalogKey) ([]models.CatalogEntry, bool)
	Add(key CatalogKey, entries []models.CatalogEntry)
}

// CursorStore persists client-side sync cursors and the import watermark.
type CursorStore interface {
	LoadCursor(userID int64) models.WatermarkCursor
	SaveCursor(userID int64, cursor models.WatermarkCursor) error
	GetWatermark() int64
	UpdateWatermark(timestamp int64) error
	IsProcessed(uuid string) bool
	MarkProcessed(uuid string) error
	Save() error
}

// CatalogSource yields catalog entries published or updated after since.
type CatalogSource interface {
	FetchNewBooks(ctx context.Context, since int64) ([]models.CatalogEntry, error)
}

// EntrySink receives the entries of each successful cycle.
type EntrySink interface {
	Deliver(ctx context.Context, result models.SyncResult) error
}

// Package bunstore persists the catalog and per-user sync state with bun.
package bunstore

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

var (
	_ ports.CatalogStore       = (*BunStore)(nil)
	_ ports.CatalogWriter      = (*BunStore)(nil)
	_ ports.ReadingStateStore  = (*BunStore)(nil)
	_ ports.ReadingStateWriter = (*BunStore)(nil)
	_ ports.DeliveryStore      = (*BunStore)(nil)
	_ ports.ArchiveStore       = (*BunStore)(nil)
	_ ports.ArchiveWriter      = (*BunStore)(nil)
	_ ports.ShelfStore         = (*BunStore)(nil)
	_ ports.ShelfWriter        = (*BunStore)(nil)
	_ ports.DeviceStore        = (*BunStore)(nil)
)

type BunStore struct {
	db *bun.DB
}

// Open connects to a SQLite database and prepares the schema.
func Open(dsn string) (*BunStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps shared
	// in-memory databases alive for the life of the store.
	sqldb.SetMaxOpenConns(1)

	store, err := NewBunStore(sqldb, sqlitedialect.New())
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return store, nil
}

func NewBunStore(db *sql.DB, dialect schema.Dialect) (*BunStore, error) {
	bunDB := bun.NewDB(db, dialect)
	store := &BunStore{db: bunDB}

	ctx := context.Background()
	tables := []struct {
		name  string
		model interface{}
	}{
		{"books", (*bookRow)(nil)},
		{"reading_states", (*readingStateRow)(nil)},
		{"delivery_records", (*deliveryRow)(nil)},
		{"archive_flags", (*archiveRow)(nil)},
		{"shelves", (*shelfRow)(nil)},
		{"shelf_books", (*shelfBookRow)(nil)},
		{"devices", (*deviceRow)(nil)},
	}
	for _, t := range tables {
		if _, err := bunDB.NewCreateTable().Model(t.model).IfNotExists().Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	if _, err := bunDB.NewCreateIndex().Model((*bookRow)(nil)).
		Index("idx_books_library_id").IfNotExists().Column("library_id", "id").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create books index: %w", err)
	}

	return store, nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

// CatalogStore Implementation
func (s *BunStore) ListBooks(ctx context.Context, libraryID int64, page, pageSize int) ([]models.CatalogEntry, error) {
	var rows []bookRow
	if err := s.db.NewSelect().Model(&rows).
		Where("library_id = ?", libraryID).
		Order("id ASC").
		Limit(pageSize).
		Offset(page * pageSize).
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]models.CatalogEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].entry())
	}
	return out, nil
}

// CatalogWriter Implementation
func (s *BunStore) UpsertBook(ctx context.Context, book *models.CatalogEntry) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := toBookRow(book)

		var existing int64
		err := tx.NewSelect().Model((*bookRow)(nil)).Column("id").Where("uuid = ?", book.UUID).Scan(ctx, &existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			row.ID = 0
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			row.ID = existing
			if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
				return err
			}
		}
		book.ID = row.ID
		return nil
	})
}

func (s *BunStore) GetBook(ctx context.Context, bookID int64) (*models.CatalogEntry, error) {
	row := new(bookRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", bookID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	entry := row.entry()
	return &entry, nil
}

// ReadingStateStore Implementation
func (s *BunStore) FindByUser(ctx context.Context, userID int64, since time.Time) ([]models.ReadingState, error) {
	var rows []readingStateRow
	q := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("book_id ASC")
	if !since.IsZero() {
		q = q.Where("last_modified > ?", dbTime(since))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]models.ReadingState, 0, len(rows))
	for i := range rows {
		st, err := rows[i].state()
		if err != nil {
			return nil, fmt.Errorf("corrupt reading state for book %d: %w", rows[i].BookID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *BunStore) FindByUserAndBook(ctx context.Context, userID, bookID int64) (*models.ReadingState, error) {
	row := new(readingStateRow)
	if err := s.db.NewSelect().Model(row).Where("user_id = ? AND book_id = ?", userID, bookID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st, err := row.state()
	if err != nil {
		return nil, fmt.Errorf("corrupt reading state for book %d: %w", bookID, err)
	}
	return &st, nil
}

// ReadingStateWriter Implementation
func (s *BunStore) UpsertReadingState(ctx context.Context, state *models.ReadingState) error {
	row, err := toReadingStateRow(state)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(row).
		On("CONFLICT (user_id, book_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("last_modified = EXCLUDED.last_modified").
		Set("priority_timestamp = EXCLUDED.priority_timestamp").
		Set("bookmark = EXCLUDED.bookmark").
		Set("statistics = EXCLUDED.statistics").
		Exec(ctx)
	return err
}

// DeliveryStore Implementation
func (s *BunStore) FindDeliveredIDs(ctx context.Context, userID int64) (models.BookIDSet, error) {
	var ids []int64
	if err := s.db.NewSelect().Model((*deliveryRow)(nil)).Column("book_id").Where("user_id = ?", userID).Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return models.NewBookIDSet(ids...), nil
}

func (s *BunStore) UpsertDelivered(ctx context.Context, userID, bookID int64, now time.Time) error {
	row := &deliveryRow{UserID: userID, BookID: bookID, DeliveredAt: dbTime(now)}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id, book_id) DO UPDATE").
		Set("delivered_at = EXCLUDED.delivered_at").
		Exec(ctx)
	return err
}

// ArchiveStore Implementation
func (s *BunStore) FindArchiveFlag(ctx context.Context, userID, bookID int64) (*models.ArchiveFlag, error) {
	row := new(archiveRow)
	if err := s.db.NewSelect().Model(row).Where("user_id = ? AND book_id = ?", userID, bookID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &models.ArchiveFlag{
		UserID:       row.UserID,
		BookID:       row.BookID,
		IsArchived:   row.IsArchived,
		LastModified: row.LastModified.UTC(),
	}, nil
}

func (s *BunStore) SetArchived(ctx context.Context, userID, bookID int64, archived bool, now time.Time) error {
	row := &archiveRow{UserID: userID, BookID: bookID, IsArchived: archived, LastModified: dbTime(now)}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id, book_id) DO UPDATE").
		Set("is_archived = EXCLUDED.is_archived").
		Set("last_modified = EXCLUDED.last_modified").
		Exec(ctx)
	return err
}

// ShelfStore Implementation
func (s *BunStore) MemberBookIDs(ctx context.Context, userID, libraryID int64) (models.BookIDSet, error) {
	var ids []int64
	if err := s.db.NewSelect().Model((*shelfBookRow)(nil)).
		ColumnExpr("DISTINCT sb.book_id").
		Join("JOIN shelves AS s ON s.id = sb.shelf_id").
		Where("s.user_id = ?", userID).
		Where("s.library_id = ?", libraryID).
		Where("s.sync_enabled = ?", true).
		Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return models.NewBookIDSet(ids...), nil
}

// ShelfWriter Implementation
func (s *BunStore) CreateShelf(ctx context.Context, userID, libraryID int64, name string, syncEnabled bool) (int64, error) {
	row := &shelfRow{UserID: userID, LibraryID: libraryID, Name: name, SyncEnabled: syncEnabled}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *BunStore) AddToShelf(ctx context.Context, shelfID, bookID int64) error {
	_, err := s.db.NewInsert().Model(&shelfBookRow{ShelfID: shelfID, BookID: bookID}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

// DeviceStore Implementation
func (s *BunStore) RegisterDevice(ctx context.Context, device *models.Device) error {
	row := &deviceRow{
		Token:          device.Token,
		Name:           device.Name,
		UserID:         device.UserID,
		LibraryID:      device.LibraryID,
		ScopeToShelves: device.ScopeToShelves,
		CreatedAt:      dbTime(device.CreatedAt),
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (s *BunStore) ResolveDevice(ctx context.Context, token string) (*models.Device, error) {
	row := new(deviceRow)
	if err := s.db.NewSelect().Model(row).Where("token = ?", token).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return &models.Device{
		Token:          row.Token,
		Name:           row.Name,
		UserID:         row.UserID,
		LibraryID:      row.LibraryID,
		ScopeToShelves: row.ScopeToShelves,
		CreatedAt:      row.CreatedAt.UTC(),
	}, nil
}

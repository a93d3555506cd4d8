package service

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrShelvesUnavailable = errors.New("shelf scoping requested but no shelf store is configured")

// SyncConfig bounds a single cycle.
type SyncConfig struct {
	// BookCap is the maximum number of book records per cycle.
	BookCap int
	// ReadingStateCap is the maximum number of standalone reading-state records per cycle.
	ReadingStateCap int
	// CatalogPageSize is the number of catalog entries read per store call. It is
	// unrelated to BookCap.
	CatalogPageSize int
	// CatalogMaxPages stops catalog paging after this many pages. Zero reads
	// until the store returns a short page.
	CatalogMaxPages int
	// ReadableFormats is the device's format set.
	ReadableFormats []models.Format
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		BookCap:         100,
		ReadingStateCap: 100,
		CatalogPageSize: 1000,
		ReadableFormats: DefaultReadableFormats(),
	}
}

// SyncStores groups the collaborators a cycle reads from and writes to.
// Shelves may be nil when no device uses shelf scoping.
type SyncStores struct {
	Catalog   ports.CatalogStore
	States    ports.ReadingStateStore
	Delivered ports.DeliveryStore
	Archive   ports.ArchiveStore
	Shelves   ports.ShelfStore
}

type Opt func(*SyncService)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *SyncService) {
		s.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *SyncService) {
		s.clock = clock
	}
}

func WithConfig(cfg SyncConfig) Opt {
	return func(s *SyncService) {
		s.cfg = cfg
	}
}

// WithCatalogCache lets cycles reuse the catalog listing read by an earlier
// cycle of the same user and library.
func WithCatalogCache(cache ports.CatalogCache) Opt {
	return func(s *SyncService) {
		s.cache = cache
	}
}

// SyncService runs sync cycles. It keeps no state between calls.
type SyncService struct {
	cfg     SyncConfig
	stores  SyncStores
	logger  *zap.Logger
	clock   clockwork.Clock
	cache   ports.CatalogCache
	formats FormatSet

	keeper     *Bookkeeper
	classifier *classifier
	collector  *collector
}

func NewSyncService(stores SyncStores, opts ...Opt) *SyncService {
	s := &SyncService{
		cfg:    DefaultSyncConfig(),
		stores: stores,
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	defaults := DefaultSyncConfig()
	if s.cfg.BookCap <= 0 {
		s.cfg.BookCap = defaults.BookCap
	}
	if s.cfg.ReadingStateCap <= 0 {
		s.cfg.ReadingStateCap = defaults.ReadingStateCap
	}
	if s.cfg.CatalogPageSize <= 0 {
		s.cfg.CatalogPageSize = defaults.CatalogPageSize
	}
	if len(s.cfg.ReadableFormats) == 0 {
		s.cfg.ReadableFormats = defaults.ReadableFormats
	}
	s.formats = NewFormatSet(s.cfg.ReadableFormats...)
	s.keeper = NewBookkeeper(stores.Delivered, s.clock)
	s.classifier = &classifier{states: stores.States, archive: stores.Archive}
	s.collector = &collector{states: stores.States}
	return s
}

// Sync runs one cycle. On error nothing about the returned result is
// meaningful and the caller must keep its previous cursor; delivery records
// written before the failure are left in place.
func (s *SyncService) Sync(ctx context.Context, req models.SyncRequest) (models.SyncResult, error) {
	start := s.clock.Now()
	snapshot := req.Cursor.Snapshot()
	logger := s.logger.With(zap.Int64("user", req.UserID), zap.Int64("library", req.LibraryID))

	catalog, err := s.loadCatalog(ctx, req, logger)
	if err != nil {
		return models.SyncResult{}, err
	}

	delivered, err := s.stores.Delivered.FindDeliveredIDs(ctx, req.UserID)
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to load delivery history: %w", err)
	}

	var shelf models.BookIDSet
	if req.ScopeToShelves {
		if s.stores.Shelves == nil {
			return models.SyncResult{}, ErrShelvesUnavailable
		}
		shelf, err = s.stores.Shelves.MemberBookIDs(ctx, req.UserID, req.LibraryID)
		if err != nil {
			return models.SyncResult{}, fmt.Errorf("failed to load shelf membership: %w", err)
		}
		if shelf == nil {
			shelf = models.NewBookIDSet()
		}
	}

	eligible, invalid := FilterEligible(catalog, delivered, shelf, snapshot, s.formats)
	if invalid > 0 {
		logger.Debug("skipped catalog entries without id", zap.Int("count", invalid))
	}

	batch := eligible
	if len(batch) > s.cfg.BookCap {
		batch = batch[:s.cfg.BookCap]
	}

	books, err := s.classifier.classify(ctx, req.UserID, batch, snapshot, s.keeper.cycle(req.UserID))
	if err != nil {
		return models.SyncResult{}, err
	}

	standalone, err := s.collector.collect(ctx, req.UserID, snapshot, books.covered, s.cfg.ReadingStateCap)
	if err != nil {
		return models.SyncResult{}, err
	}

	result := models.SyncResult{
		Entries:       append(books.entries, standalone.entries...),
		Cursor:        snapshot.Advance(reached(eligible, batch, books, standalone)),
		MoreAvailable: len(eligible) > len(batch) || standalone.capped(),
	}

	logger.Info("sync cycle complete",
		zap.Int("catalog", len(catalog)),
		zap.Int("eligible", len(eligible)),
		zap.Int("books", len(books.entries)),
		zap.Int("reading_states", len(standalone.entries)),
		zap.Bool("more", result.MoreAvailable),
		zap.Time("books_modified", result.Cursor.BooksModified),
		zap.Duration("took", s.clock.Since(start)),
	)

	return result, nil
}

// reached is the cursor position the cycle's entries cover. It never passes
// a change that was left for a later cycle.
func reached(eligible, batch []models.CatalogEntry, books classification, standalone standaloneStates) models.WatermarkCursor {
	out := models.WatermarkCursor{BooksCreated: books.maxima.BooksCreated}

	if n := len(batch); n > 0 {
		last := batch[n-1]
		out.BooksModified = last.LastModified
		// The cap split a group of books changed at the same instant.
		if len(eligible) > n && eligible[n].LastModified.Equal(last.LastModified) {
			out.BooksModifiedID = last.ID
		}
	}

	states := standalone.until
	// Attached states may only raise the watermark when no standalone state
	// was left out; otherwise they are sent again on their own next cycle.
	if !standalone.capped() {
		states = states.Advance(models.WatermarkCursor{ReadingState: books.maxima.ReadingState})
	}
	out.ReadingState, out.ReadingStateID = states.ReadingState, states.ReadingStateID

	return out
}

// loadCatalog returns the library's full listing. With a cache configured the
// listing is cached as a whole, so a cycle never mixes pages read at
// different times.
func (s *SyncService) loadCatalog(ctx context.Context, req models.SyncRequest, logger *zap.Logger) ([]models.CatalogEntry, error) {
	key := ports.CatalogKey{UserID: req.UserID, LibraryID: req.LibraryID}
	if s.cache != nil {
		if entries, ok := s.cache.Get(key); ok {
			return entries, nil
		}
	}

	all, err := s.listCatalog(ctx, req.LibraryID, logger)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(key, all)
	}
	return all, nil
}

func (s *SyncService) listCatalog(ctx context.Context, libraryID int64, logger *zap.Logger) ([]models.CatalogEntry, error) {
	var all []models.CatalogEntry
	size := s.cfg.CatalogPageSize

	for page := 0; ; page++ {
		entries, err := s.stores.Catalog.ListBooks(ctx, libraryID, page, size)
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog page %d: %w", page, err)
		}
		all = append(all, entries...)

		if len(entries) < size {
			return all, nil
		}
		if s.cfg.CatalogMaxPages > 0 && page+1 >= s.cfg.CatalogMaxPages {
			logger.Warn("catalog paging stopped at page limit; raise the page size or the limit",
				zap.Int("pages", page+1),
				zap.Int("page_size", size),
			)
			return all, nil
		}
	}
}

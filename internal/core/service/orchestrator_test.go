package service_test

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"booksync/internal/core/service"
	"booksync/internal/testutil/memstore"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser    int64 = 7
	testLibrary int64 = 1
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func book(id int64, modified, created time.Time, formats ...models.Format) models.CatalogEntry {
	if len(formats) == 0 {
		formats = []models.Format{models.FormatEPUB}
	}
	return models.CatalogEntry{
		ID:           id,
		UUID:         fmt.Sprintf("urn:book:%d", id),
		LibraryID:    testLibrary,
		Title:        "Book",
		Formats:      formats,
		LastModified: modified,
		CreatedAt:    created,
	}
}

type fixture struct {
	store *memstore.Store
	clock clockwork.FakeClock
	svc   *service.SyncService
}

func newFixture(t *testing.T, cfg service.SyncConfig, opts ...service.Opt) *fixture {
	t.Helper()
	store := memstore.New()
	clock := clockwork.NewFakeClockAt(at(100000))
	opts = append([]service.Opt{service.WithConfig(cfg), service.WithClock(clock)}, opts...)
	svc := service.NewSyncService(service.SyncStores{
		Catalog:   store,
		States:    store,
		Delivered: store,
		Archive:   store,
		Shelves:   store,
	}, opts...)
	return &fixture{store: store, clock: clock, svc: svc}
}

func (f *fixture) sync(t *testing.T, cursor models.WatermarkCursor) models.SyncResult {
	t.Helper()
	res, err := f.svc.Sync(context.Background(), models.SyncRequest{
		UserID:    testUser,
		LibraryID: testLibrary,
		Cursor:    cursor,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) deliver(t *testing.T, bookID int64) {
	t.Helper()
	require.NoError(t, f.store.UpsertDelivered(context.Background(), testUser, bookID, at(1)))
}

func (f *fixture) setState(t *testing.T, bookID int64, modified time.Time) {
	t.Helper()
	require.NoError(t, f.store.UpsertReadingState(context.Background(), &models.ReadingState{
		UserID:       testUser,
		BookID:       bookID,
		Status:       models.StatusReading,
		LastModified: modified,
		Bookmark:     &models.Bookmark{ProgressPercent: 42, LastModified: modified},
	}))
}

func TestSync_LargeFirstSyncIsSplitAcrossCycles(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	for i := 1; i <= 150; i++ {
		f.store.PutBook(book(int64(i), at(i), at(i)))
	}

	first := f.sync(t, models.WatermarkCursor{})
	require.Len(t, first.Entries, 100)
	assert.True(t, first.MoreAvailable)
	for i, e := range first.Entries {
		assert.Equal(t, models.KindNewBook, e.Kind)
		assert.Equal(t, int64(i+1), e.Book.ID, "entries must be ordered oldest change first")
	}
	assert.True(t, first.Cursor.BooksModified.Equal(at(100)))
	assert.True(t, first.Cursor.BooksCreated.Equal(at(100)))

	second := f.sync(t, first.Cursor)
	require.Len(t, second.Entries, 50)
	assert.False(t, second.MoreAvailable)
	assert.Equal(t, int64(101), second.Entries[0].Book.ID)
	assert.Equal(t, int64(150), second.Entries[49].Book.ID)
	for _, e := range second.Entries {
		assert.Equal(t, models.KindNewBook, e.Kind)
	}
	assert.True(t, second.Cursor.BooksModified.Equal(at(150)))
}

func TestSync_MetadataChangeOfDeliveredBook(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(1, at(20), at(5)))
	f.deliver(t, 1)

	res := f.sync(t, models.WatermarkCursor{BooksModified: at(10), BooksCreated: at(5)})
	require.Len(t, res.Entries, 1)
	assert.Equal(t, models.KindChangedBook, res.Entries[0].Kind)
	assert.Nil(t, res.Entries[0].ReadingState)
	assert.True(t, res.Cursor.BooksModified.Equal(at(20)))
}

func TestSync_ReadingStateOnlyChange(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(3, at(10), at(5)))
	f.deliver(t, 3)
	f.setState(t, 3, at(30))

	res := f.sync(t, models.WatermarkCursor{BooksModified: at(10), BooksCreated: at(5), ReadingState: at(15)})
	require.Len(t, res.Entries, 1)
	entry := res.Entries[0]
	assert.Equal(t, models.KindChangedReadingState, entry.Kind)
	assert.Nil(t, entry.Book)
	require.NotNil(t, entry.ReadingState)
	assert.Equal(t, int64(3), entry.ReadingState.BookID)
	assert.True(t, res.Cursor.ReadingState.Equal(at(30)))
	assert.False(t, res.MoreAvailable)
}

func TestSync_ShelfScopeExcludesNonMembers(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(4, at(10), at(10)))
	f.store.PutBook(book(5, at(11), at(11)))
	f.store.SetShelf(testUser, testLibrary, 5)

	res, err := f.svc.Sync(context.Background(), models.SyncRequest{
		UserID:         testUser,
		LibraryID:      testLibrary,
		ScopeToShelves: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, int64(5), res.Entries[0].Book.ID)

	_, delivered := f.store.DeliveredAt(testUser, 4)
	assert.False(t, delivered, "excluded books must not be marked delivered")
}

func TestSync_CreatedAtEqualToWatermarkIsChanged(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(1, at(50), at(40)))
	f.store.PutBook(book(2, at(51), at(40)))

	res := f.sync(t, models.WatermarkCursor{BooksCreated: at(40)})
	require.Len(t, res.Entries, 2)
	for _, e := range res.Entries {
		assert.Equal(t, models.KindChangedBook, e.Kind)
	}
}

func TestSync_SecondCallWithAdvancedCursorIsEmpty(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	for i := 1; i <= 10; i++ {
		f.store.PutBook(book(int64(i), at(i), at(i)))
		f.setState(t, int64(i), at(200+i))
	}
	f.setState(t, 99, at(300)) // state for a book outside the catalog page

	first := f.sync(t, models.WatermarkCursor{})
	require.Len(t, first.Entries, 11)

	second := f.sync(t, first.Cursor)
	assert.Empty(t, second.Entries)
	assert.False(t, second.MoreAvailable)
	assert.Equal(t, first.Cursor, second.Cursor)
}

func TestSync_NoBookAppearsTwiceInOneCycle(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(1, at(10), at(10)))
	f.store.PutBook(book(2, at(11), at(11)))
	f.setState(t, 1, at(20))
	f.setState(t, 2, at(21))
	f.setState(t, 3, at(22))

	res := f.sync(t, models.WatermarkCursor{})

	books := models.NewBookIDSet()
	for _, e := range res.Entries {
		if e.Kind != models.KindChangedReadingState {
			books.Add(e.Book.ID)
			assert.NotNil(t, e.ReadingState, "state of book %d should ride along", e.Book.ID)
		}
	}
	var standalone []int64
	for _, e := range res.Entries {
		if e.Kind == models.KindChangedReadingState {
			assert.False(t, books.Has(e.BookID()), "book %d emitted twice", e.BookID())
			standalone = append(standalone, e.BookID())
		}
	}
	assert.Equal(t, []int64{3}, standalone)
	assert.True(t, res.Cursor.ReadingState.Equal(at(22)))
}

func TestSync_BookEntriesPrecedeStandaloneStates(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(1, at(10), at(10)))
	f.setState(t, 8, at(5))

	res := f.sync(t, models.WatermarkCursor{})
	require.Len(t, res.Entries, 2)
	assert.Equal(t, models.KindNewBook, res.Entries[0].Kind)
	assert.Equal(t, models.KindChangedReadingState, res.Entries[1].Kind)
}

func TestSync_CursorNeverRegresses(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 3, ReadingStateCap: 2, CatalogPageSize: 4})
	for i := 1; i <= 12; i++ {
		f.store.PutBook(book(int64(i), at(i), at(i)))
	}

	cursor := models.WatermarkCursor{}
	for cycle := 0; cycle < 10; cycle++ {
		// Mutations between cycles, some with timestamps older than the cursor.
		f.setState(t, int64(cycle+1), at(500+cycle))
		if cycle%3 == 0 {
			f.store.PutBook(book(int64(cycle+1), at(1000+cycle), at(cycle+1)))
		}
		f.store.PutBook(book(int64(100+cycle), at(cycle), at(cycle)))

		res := f.sync(t, cursor)
		assert.True(t, res.Cursor.Covers(cursor), "cycle %d regressed: %+v -> %+v", cycle, cursor, res.Cursor)
		cursor = res.Cursor
	}
}

func TestSync_EveryEligibleBookArrivesWithinBoundedCycles(t *testing.T) {
	const n, limit = 250, 100
	f := newFixture(t, service.SyncConfig{BookCap: limit, ReadingStateCap: limit, CatalogPageSize: 64})
	for i := 1; i <= n; i++ {
		// Several books share a modification time.
		f.store.PutBook(book(int64(i), at(i/3), at(i/3)))
	}

	seen := models.NewBookIDSet()
	cursor := models.WatermarkCursor{}
	cycles := (n + limit - 1) / limit
	for c := 0; c < cycles; c++ {
		res := f.sync(t, cursor)
		for _, e := range res.Entries {
			assert.False(t, seen.Has(e.BookID()), "book %d delivered twice", e.BookID())
			seen.Add(e.BookID())
		}
		cursor = res.Cursor
		if c == cycles-1 {
			assert.False(t, res.MoreAvailable)
		}
	}
	assert.Equal(t, n, seen.Len())
}

func TestSync_MoreAvailableMatchesCaps(t *testing.T) {
	cases := []struct {
		name   string
		books  int
		states int
		more   bool
	}{
		{"exactly one batch of books", 5, 0, false},
		{"one book too many", 6, 0, true},
		{"exactly one batch of states", 0, 3, false},
		{"one state too many", 0, 4, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, service.SyncConfig{BookCap: 5, ReadingStateCap: 3, CatalogPageSize: 100})
			for i := 1; i <= tc.books; i++ {
				f.store.PutBook(book(int64(i), at(i), at(i)))
			}
			for i := 1; i <= tc.states; i++ {
				f.setState(t, int64(1000+i), at(i))
			}

			res := f.sync(t, models.WatermarkCursor{})
			assert.Equal(t, tc.more, res.MoreAvailable)
		})
	}
}

func TestSync_StandaloneStatesAreCappedAndResumed(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 10, ReadingStateCap: 2, CatalogPageSize: 10})
	f.setState(t, 1, at(30))
	f.setState(t, 2, at(10))
	f.setState(t, 3, at(20))

	first := f.sync(t, models.WatermarkCursor{})
	require.Len(t, first.Entries, 2)
	assert.Equal(t, int64(2), first.Entries[0].BookID())
	assert.Equal(t, int64(3), first.Entries[1].BookID())
	assert.True(t, first.MoreAvailable)
	assert.True(t, first.Cursor.ReadingState.Equal(at(20)))

	second := f.sync(t, first.Cursor)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, int64(1), second.Entries[0].BookID())
	assert.False(t, second.MoreAvailable)
}

func TestSync_SkipsEntriesWithoutIDAndUnreadableFormats(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(0, at(1), at(1)))
	f.store.PutBook(book(1, at(2), at(2), models.FormatPDF))
	f.store.PutBook(book(2, at(3), at(3), models.FormatPDF, models.FormatKEPUB))

	res := f.sync(t, models.WatermarkCursor{})
	require.Len(t, res.Entries, 1)
	assert.Equal(t, int64(2), res.Entries[0].Book.ID)
}

func TestSync_ReadableFormatsAreConfigurable(t *testing.T) {
	cfg := service.DefaultSyncConfig()
	cfg.ReadableFormats = []models.Format{models.FormatPDF}
	f := newFixture(t, cfg)
	f.store.PutBook(book(1, at(1), at(1), models.FormatPDF))
	f.store.PutBook(book(2, at(2), at(2), models.FormatEPUB))

	res := f.sync(t, models.WatermarkCursor{})
	require.Len(t, res.Entries, 1)
	assert.Equal(t, int64(1), res.Entries[0].Book.ID)
}

func TestSync_AnnotatesArchivedBooks(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(1, at(1), at(1)))
	f.store.PutBook(book(2, at(2), at(2)))
	require.NoError(t, f.store.SetArchived(context.Background(), testUser, 2, true, at(3)))

	res := f.sync(t, models.WatermarkCursor{})
	require.Len(t, res.Entries, 2)
	assert.False(t, res.Entries[0].Archived)
	assert.True(t, res.Entries[1].Archived)
}

func TestSync_MarksProcessedBooksDeliveredAtClockTime(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 1, ReadingStateCap: 1, CatalogPageSize: 10})
	f.store.PutBook(book(1, at(1), at(1)))
	f.store.PutBook(book(2, at(2), at(2)))

	f.sync(t, models.WatermarkCursor{})

	deliveredAt, ok := f.store.DeliveredAt(testUser, 1)
	require.True(t, ok)
	assert.True(t, deliveredAt.Equal(f.clock.Now()))
	_, ok = f.store.DeliveredAt(testUser, 2)
	assert.False(t, ok, "books beyond the cap are not delivered")
	assert.Equal(t, 1, f.store.Calls("UpsertDelivered"))
}

func TestSync_PagesThroughCatalog(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 100, ReadingStateCap: 100, CatalogPageSize: 10})
	for i := 1; i <= 35; i++ {
		f.store.PutBook(book(int64(i), at(i), at(i)))
	}

	res := f.sync(t, models.WatermarkCursor{})
	assert.Len(t, res.Entries, 35)
	assert.Equal(t, 4, f.store.Calls("ListBooks"))
}

func TestSync_CatalogMaxPagesLimitsReads(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 100, ReadingStateCap: 100, CatalogPageSize: 10, CatalogMaxPages: 2})
	for i := 1; i <= 35; i++ {
		f.store.PutBook(book(int64(i), at(i), at(i)))
	}

	res := f.sync(t, models.WatermarkCursor{})
	assert.Len(t, res.Entries, 20)
	assert.Equal(t, 2, f.store.Calls("ListBooks"))
}

type recordingCache struct {
	listings map[ports.CatalogKey][]models.CatalogEntry
	hits     int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{listings: make(map[ports.CatalogKey][]models.CatalogEntry)}
}

func (c *recordingCache) Get(key ports.CatalogKey) ([]models.CatalogEntry, bool) {
	entries, ok := c.listings[key]
	if ok {
		c.hits++
	}
	return entries, ok
}

func (c *recordingCache) Add(key ports.CatalogKey, entries []models.CatalogEntry) {
	c.listings[key] = entries
}

func TestSync_UsesInjectedCatalogCache(t *testing.T) {
	cache := newRecordingCache()
	f := newFixture(t, service.DefaultSyncConfig(), service.WithCatalogCache(cache))
	f.store.PutBook(book(1, at(1), at(1)))

	first := f.sync(t, models.WatermarkCursor{})
	require.Len(t, first.Entries, 1)

	// A book added after the listing was cached stays invisible until the entry expires.
	f.store.PutBook(book(2, at(2), at(2)))
	second := f.sync(t, first.Cursor)

	assert.Empty(t, second.Entries)
	assert.Equal(t, 1, f.store.Calls("ListBooks"))
	assert.Equal(t, 1, cache.hits)
}

func TestSync_CachesWholeCatalogListing(t *testing.T) {
	cache := newRecordingCache()
	f := newFixture(t, service.SyncConfig{BookCap: 10, ReadingStateCap: 10, CatalogPageSize: 2}, service.WithCatalogCache(cache))
	for i := 1; i <= 5; i++ {
		f.store.PutBook(book(int64(i), at(i), at(i)))
	}

	first := f.sync(t, models.WatermarkCursor{})
	require.Len(t, first.Entries, 5)
	assert.Equal(t, 3, f.store.Calls("ListBooks"))

	key := ports.CatalogKey{UserID: testUser, LibraryID: testLibrary}
	require.Len(t, cache.listings, 1)
	assert.Len(t, cache.listings[key], 5)

	// Edits on different pages stay invisible together, so one page can never
	// push the cursor past an edit another page has not shown yet.
	f.store.PutBook(book(1, at(50), at(1)))
	f.store.PutBook(book(5, at(40), at(5)))
	second := f.sync(t, first.Cursor)
	assert.Empty(t, second.Entries)
	assert.Equal(t, 3, f.store.Calls("ListBooks"))

	delete(cache.listings, key)
	third := f.sync(t, second.Cursor)
	require.Len(t, third.Entries, 2)
	assert.Equal(t, int64(5), third.Entries[0].Book.ID)
	assert.Equal(t, int64(1), third.Entries[1].Book.ID)
}

// drain runs cycles until nothing more is available and returns every entry.
func (f *fixture) drain(t *testing.T, cursor models.WatermarkCursor, maxCycles int) ([]models.SyncEntry, models.WatermarkCursor) {
	t.Helper()
	var all []models.SyncEntry
	for i := 0; i < maxCycles; i++ {
		res := f.sync(t, cursor)
		require.True(t, res.Cursor.Covers(cursor), "cursor regressed: %+v -> %+v", cursor, res.Cursor)
		all = append(all, res.Entries...)
		cursor = res.Cursor
		if !res.MoreAvailable {
			return all, cursor
		}
	}
	t.Fatalf("still more available after %d cycles", maxCycles)
	return nil, cursor
}

func bookIDs(entries []models.SyncEntry, kind models.EntryKind) []int64 {
	var out []int64
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e.BookID())
		}
	}
	return out
}

func TestSync_CapInsideTimestampTieKeepsDeliveredBooks(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 2, ReadingStateCap: 10, CatalogPageSize: 10})
	for i := int64(1); i <= 3; i++ {
		f.store.PutBook(book(i, at(10), at(1)))
	}
	f.deliver(t, 3)

	first := f.sync(t, models.WatermarkCursor{BooksModified: at(5), BooksCreated: at(1)})
	require.Len(t, first.Entries, 2)
	assert.True(t, first.MoreAvailable)
	assert.True(t, first.Cursor.BooksModified.Equal(at(10)))
	assert.Equal(t, int64(2), first.Cursor.BooksModifiedID)

	second := f.sync(t, first.Cursor)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, int64(3), second.Entries[0].Book.ID)
	assert.Equal(t, models.KindChangedBook, second.Entries[0].Kind)
	assert.False(t, second.MoreAvailable)
	assert.True(t, second.Cursor.BooksModified.Equal(at(10)))
	assert.Zero(t, second.Cursor.BooksModifiedID)

	assert.Empty(t, f.sync(t, second.Cursor).Entries)
}

func TestSync_TieLargerThanCapDrainsEveryBookOnce(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 2, ReadingStateCap: 10, CatalogPageSize: 10})
	for i := int64(1); i <= 5; i++ {
		f.store.PutBook(book(i, at(10), at(1)))
		f.deliver(t, i)
	}

	entries, cursor := f.drain(t, models.WatermarkCursor{BooksModified: at(5), BooksCreated: at(1)}, 3)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, bookIDs(entries, models.KindChangedBook))
	assert.True(t, cursor.BooksModified.Equal(at(10)))
	assert.Zero(t, cursor.BooksModifiedID)
}

func TestSync_CappedStandaloneStatesHoldBackAttachedStates(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 10, ReadingStateCap: 2, CatalogPageSize: 10})
	f.store.PutBook(book(1, at(1), at(1)))
	f.setState(t, 1, at(500))
	f.setState(t, 11, at(100))
	f.setState(t, 12, at(101))
	f.setState(t, 13, at(102))

	first := f.sync(t, models.WatermarkCursor{})
	require.Len(t, first.Entries, 3)
	require.NotNil(t, first.Entries[0].ReadingState)
	assert.Equal(t, []int64{11, 12}, bookIDs(first.Entries, models.KindChangedReadingState))
	assert.True(t, first.MoreAvailable)
	assert.True(t, first.Cursor.ReadingState.Equal(at(101)))

	// The attached state of book 1 is sent again on its own; nothing is lost.
	rest, cursor := f.drain(t, first.Cursor, 3)
	assert.Equal(t, []int64{13, 1}, bookIDs(rest, models.KindChangedReadingState))
	assert.Empty(t, bookIDs(rest, models.KindChangedBook))
	assert.True(t, cursor.ReadingState.Equal(at(500)))
}

func TestSync_StandaloneCapInsideTimestampTie(t *testing.T) {
	f := newFixture(t, service.SyncConfig{BookCap: 10, ReadingStateCap: 2, CatalogPageSize: 10})
	for _, id := range []int64{11, 12, 13, 14, 15} {
		f.setState(t, id, at(100))
	}

	first := f.sync(t, models.WatermarkCursor{})
	assert.Equal(t, []int64{11, 12}, bookIDs(first.Entries, models.KindChangedReadingState))
	assert.True(t, first.MoreAvailable)
	assert.True(t, first.Cursor.ReadingState.Equal(at(100)))
	assert.Equal(t, int64(12), first.Cursor.ReadingStateID)

	rest, cursor := f.drain(t, first.Cursor, 2)
	assert.Equal(t, []int64{13, 14, 15}, bookIDs(rest, models.KindChangedReadingState))
	assert.Zero(t, cursor.ReadingStateID)

	assert.Empty(t, f.sync(t, cursor).Entries)
}

func TestSync_StorageFailuresAbortCycle(t *testing.T) {
	methods := []string{"ListBooks", "FindDeliveredIDs", "FindArchiveFlag", "FindByUserAndBook", "UpsertDelivered", "FindByUser"}
	boom := errors.New("disk on fire")

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			f := newFixture(t, service.DefaultSyncConfig())
			f.store.PutBook(book(1, at(1), at(1)))
			f.store.FailOn(method, boom)

			res, err := f.svc.Sync(context.Background(), models.SyncRequest{UserID: testUser, LibraryID: testLibrary})
			require.ErrorIs(t, err, boom)
			assert.Equal(t, models.SyncResult{}, res)
		})
	}
}

func TestSync_ScopeWithoutShelfStore(t *testing.T) {
	store := memstore.New()
	svc := service.NewSyncService(service.SyncStores{
		Catalog:   store,
		States:    store,
		Delivered: store,
		Archive:   store,
	})

	_, err := svc.Sync(context.Background(), models.SyncRequest{UserID: testUser, LibraryID: testLibrary, ScopeToShelves: true})
	assert.ErrorIs(t, err, service.ErrShelvesUnavailable)
}

func TestSync_IsolatesUsers(t *testing.T) {
	f := newFixture(t, service.DefaultSyncConfig())
	f.store.PutBook(book(1, at(1), at(1)))
	require.NoError(t, f.store.UpsertDelivered(context.Background(), testUser+1, 1, at(1)))

	res := f.sync(t, models.WatermarkCursor{BooksModified: at(5)})
	require.Len(t, res.Entries, 1, "another user's delivery must not suppress this user's")
}

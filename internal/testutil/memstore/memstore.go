// Package memstore is an in-memory implementation of the storage ports for tests.
package memstore

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"sort"
	"sync"
	"time"
)

var (
	_ ports.CatalogStore       = (*Store)(nil)
	_ ports.CatalogWriter      = (*Store)(nil)
	_ ports.ReadingStateStore  = (*Store)(nil)
	_ ports.ReadingStateWriter = (*Store)(nil)
	_ ports.DeliveryStore      = (*Store)(nil)
	_ ports.ArchiveStore       = (*Store)(nil)
	_ ports.ArchiveWriter      = (*Store)(nil)
	_ ports.ShelfStore         = (*Store)(nil)
	_ ports.DeviceStore        = (*Store)(nil)
)

type userBook struct {
	user, book int64
}

type Store struct {
	mu sync.Mutex

	books     map[int64]models.CatalogEntry
	nextID    int64
	states    map[userBook]models.ReadingState
	delivered map[userBook]time.Time
	archive   map[userBook]models.ArchiveFlag
	shelves   map[userBook]models.BookIDSet // (user, library) -> members
	devices   map[string]models.Device

	failures map[string]error
	calls    map[string]int
}

func New() *Store {
	return &Store{
		books:     make(map[int64]models.CatalogEntry),
		states:    make(map[userBook]models.ReadingState),
		delivered: make(map[userBook]time.Time),
		archive:   make(map[userBook]models.ArchiveFlag),
		shelves:   make(map[userBook]models.BookIDSet),
		devices:   make(map[string]models.Device),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

// FailOn makes every later call of the named method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// Calls returns how many times the named method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Store) enter(method string) error {
	s.calls[method]++
	return s.failures[method]
}

// PutBook stores a book as-is, including entries without a valid id.
func (s *Store) PutBook(book models.CatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := book.ID
	if key <= 0 {
		// Keep invalid entries addressable without colliding with real ids.
		key = -int64(len(s.books)) - 1
	}
	s.books[key] = book
	if book.ID > s.nextID {
		s.nextID = book.ID
	}
}

func (s *Store) ListBooks(ctx context.Context, libraryID int64, page, pageSize int) ([]models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListBooks"); err != nil {
		return nil, err
	}

	var all []models.CatalogEntry
	for _, b := range s.books {
		if b.LibraryID == libraryID {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	from := page * pageSize
	if from >= len(all) {
		return nil, nil
	}
	to := from + pageSize
	if to > len(all) {
		to = len(all)
	}
	return append([]models.CatalogEntry(nil), all[from:to]...), nil
}

func (s *Store) UpsertBook(ctx context.Context, book *models.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertBook"); err != nil {
		return err
	}
	for id, b := range s.books {
		if b.UUID == book.UUID && book.UUID != "" {
			book.ID = id
			s.books[id] = *book
			return nil
		}
	}
	s.nextID++
	book.ID = s.nextID
	s.books[book.ID] = *book
	return nil
}

func (s *Store) GetBook(ctx context.Context, bookID int64) (*models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetBook"); err != nil {
		return nil, err
	}
	b, ok := s.books[bookID]
	if !ok || bookID <= 0 {
		return nil, ports.ErrNotFound
	}
	return &b, nil
}

func (s *Store) FindByUser(ctx context.Context, userID int64, since time.Time) ([]models.ReadingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindByUser"); err != nil {
		return nil, err
	}
	var out []models.ReadingState
	for k, st := range s.states {
		if k.user == userID && st.LastModified.After(since) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (s *Store) FindByUserAndBook(ctx context.Context, userID, bookID int64) (*models.ReadingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindByUserAndBook"); err != nil {
		return nil, err
	}
	st, ok := s.states[userBook{userID, bookID}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) UpsertReadingState(ctx context.Context, state *models.ReadingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertReadingState"); err != nil {
		return err
	}
	s.states[userBook{state.UserID, state.BookID}] = *state
	return nil
}

func (s *Store) FindDeliveredIDs(ctx context.Context, userID int64) (models.BookIDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindDeliveredIDs"); err != nil {
		return nil, err
	}
	ids := models.NewBookIDSet()
	for k := range s.delivered {
		if k.user == userID {
			ids.Add(k.book)
		}
	}
	return ids, nil
}

func (s *Store) UpsertDelivered(ctx context.Context, userID, bookID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertDelivered"); err != nil {
		return err
	}
	s.delivered[userBook{userID, bookID}] = now
	return nil
}

// DeliveredAt returns when the book was last handed to the user.
func (s *Store) DeliveredAt(userID, bookID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.delivered[userBook{userID, bookID}]
	return t, ok
}

func (s *Store) FindArchiveFlag(ctx context.Context, userID, bookID int64) (*models.ArchiveFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindArchiveFlag"); err != nil {
		return nil, err
	}
	f, ok := s.archive[userBook{userID, bookID}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *Store) SetArchived(ctx context.Context, userID, bookID int64, archived bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetArchived"); err != nil {
		return err
	}
	s.archive[userBook{userID, bookID}] = models.ArchiveFlag{
		UserID:       userID,
		BookID:       bookID,
		IsArchived:   archived,
		LastModified: now,
	}
	return nil
}

// SetShelf replaces the user's sync-enabled shelf membership for a library.
func (s *Store) SetShelf(userID, libraryID int64, bookIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shelves[userBook{userID, libraryID}] = models.NewBookIDSet(bookIDs...)
}

func (s *Store) MemberBookIDs(ctx context.Context, userID, libraryID int64) (models.BookIDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MemberBookIDs"); err != nil {
		return nil, err
	}
	out := models.NewBookIDSet()
	for id := range s.shelves[userBook{userID, libraryID}] {
		out.Add(id)
	}
	return out, nil
}

func (s *Store) RegisterDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RegisterDevice"); err != nil {
		return err
	}
	s.devices[device.Token] = *device
	return nil
}

func (s *Store) ResolveDevice(ctx context.Context, token string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ResolveDevice"); err != nil {
		return nil, err
	}
	d, ok := s.devices[token]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &d, nil
}

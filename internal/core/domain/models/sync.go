package models

// EntryKind tells a device what to do with a SyncEntry.
type EntryKind int

const (
	KindNewBook EntryKind = iota
	KindChangedBook
	KindChangedReadingState
)

// String returns the name devices and logs know the kind by.
func (k EntryKind) String() string {
	switch k {
	case KindNewBook:
		return "NewBook"
	case KindChangedBook:
		return "ChangedBook"
	case KindChangedReadingState:
		return "ChangedReadingState"
	default:
		return "Unknown"
	}
}

// SyncRequest identifies one cycle.
type SyncRequest struct {
	UserID         int64
	LibraryID      int64
	Cursor         WatermarkCursor
	ScopeToShelves bool
}

// SyncEntry is one classified change. Book is nil for ChangedReadingState
// entries; ReadingState is nil when no progress change accompanies a book.
type SyncEntry struct {
	Kind         EntryKind
	Book         *CatalogEntry
	Archived     bool
	ReadingState *ReadingState
}

// BookID returns the id of the book the entry refers to.
func (e SyncEntry) BookID() int64 {
	if e.Book != nil {
		return e.Book.ID
	}
	if e.ReadingState != nil {
		return e.ReadingState.BookID
	}
	return 0
}

// SyncResult is the outcome of a successful cycle. Cursor must only be
// persisted once the caller has delivered Entries.
type SyncResult struct {
	Entries       []SyncEntry
	Cursor        WatermarkCursor
	MoreAvailable bool
}

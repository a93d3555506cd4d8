package models

import (
	"strings"
	"time"
)

type Format string

const (
	FormatEPUB  Format = "EPUB"
	FormatKEPUB Format = "KEPUB"
	FormatPDF   Format = "PDF"
	FormatMOBI  Format = "MOBI"
	FormatAZW3  Format = "AZW3"
	FormatCBZ   Format = "CBZ"
)

var knownFormats = map[Format]bool{
	FormatEPUB:  true,
	FormatKEPUB: true,
	FormatPDF:   true,
	FormatMOBI:  true,
	FormatAZW3:  true,
	FormatCBZ:   true,
}

// ParseFormat normalizes a format name. The second result is false for
// formats the catalog does not know about.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	return f, knownFormats[f]
}

// CatalogEntry is a book as the catalog store reports it.
type CatalogEntry struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	LibraryID    int64     `json:"library_id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Description  string    `json:"description,omitempty"`
	Formats      []Format  `json:"formats"`
	LastModified time.Time `json:"last_modified"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasValidID reports whether the entry carries a usable identifier.
func (e CatalogEntry) HasValidID() bool {
	return e.ID > 0
}

type ReadStatus int

const (
	StatusReadyToRead ReadStatus = 0
	StatusReading     ReadStatus = 1
	StatusFinished    ReadStatus = 2
)

func (s ReadStatus) String() string {
	switch s {
	case StatusReading:
		return "Reading"
	case StatusFinished:
		return "Finished"
	default:
		return "ReadyToRead"
	}
}

type Bookmark struct {
	Location                     string    `json:"location,omitempty"`
	LocationType                 string    `json:"location_type,omitempty"`
	LocationSource               string    `json:"location_source,omitempty"`
	ProgressPercent              float64   `json:"progress_percent"`
	ContentSourceProgressPercent float64   `json:"content_source_progress_percent"`
	LastModified                 time.Time `json:"last_modified"`
}

type Statistics struct {
	SpentReadingMinutes  int       `json:"spent_reading_minutes"`
	RemainingTimeMinutes int       `json:"remaining_time_minutes"`
	LastModified         time.Time `json:"last_modified"`
}

// ReadingState is the per (user, book) progress record.
type ReadingState struct {
	UserID            int64       `json:"user_id"`
	BookID            int64       `json:"book_id"`
	Status            ReadStatus  `json:"status"`
	LastModified      time.Time   `json:"last_modified"`
	PriorityTimestamp time.Time   `json:"priority_timestamp"`
	Bookmark          *Bookmark   `json:"bookmark,omitempty"`
	Statistics        *Statistics `json:"statistics,omitempty"`
}

// DeliveryRecord marks that a book has been handed to a user at least once.
type DeliveryRecord struct {
	UserID      int64     `json:"user_id"`
	BookID      int64     `json:"book_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type ArchiveFlag struct {
	UserID       int64     `json:"user_id"`
	BookID       int64     `json:"book_id"`
	IsArchived   bool      `json:"is_archived"`
	LastModified time.Time `json:"last_modified"`
}

// Device binds an opaque auth token to the user and library it syncs.
type Device struct {
	Token          string    `json:"token"`
	Name           string    `json:"name"`
	UserID         int64     `json:"user_id"`
	LibraryID      int64     `json:"library_id"`
	ScopeToShelves bool      `json:"scope_to_shelves"`
	CreatedAt      time.Time `json:"created_at"`
}

// BookIDSet is a set of book ids.
type BookIDSet map[int64]struct{}

func NewBookIDSet(ids ...int64) BookIDSet {
	s := make(BookIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s BookIDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s BookIDSet) Add(id int64) {
	s[id] = struct{}{}
}

func (s BookIDSet) Len() int {
	return len(s)
}

package models

import "time"

// WatermarkCursor bounds the state already delivered to a user. Every field
// only ever moves forward between cycles.
//
// BooksModified and ReadingState are positions rather than bare timestamps:
// when a batch was cut inside a group of changes sharing one timestamp, the
// matching ID field holds the last book id handed out at that instant, and
// only changes at that instant with a larger id are still pending. A zero ID
// means everything at the instant was delivered.
type WatermarkCursor struct {
	BooksModified   time.Time `json:"books_modified"`
	BooksModifiedID int64     `json:"books_modified_id,omitempty"`
	BooksCreated    time.Time `json:"books_created"`
	ReadingState    time.Time `json:"reading_state"`
	ReadingStateID  int64     `json:"reading_state_id,omitempty"`
}

// Snapshot returns the copy a cycle uses for every comparison it makes.
func (c WatermarkCursor) Snapshot() WatermarkCursor {
	return c
}

// Advance returns the component-wise maximum of c and candidate.
func (c WatermarkCursor) Advance(candidate WatermarkCursor) WatermarkCursor {
	out := c
	if comparePosition(candidate.BooksModified, candidate.BooksModifiedID, c.BooksModified, c.BooksModifiedID) > 0 {
		out.BooksModified, out.BooksModifiedID = candidate.BooksModified, candidate.BooksModifiedID
	}
	if candidate.BooksCreated.After(c.BooksCreated) {
		out.BooksCreated = candidate.BooksCreated
	}
	if comparePosition(candidate.ReadingState, candidate.ReadingStateID, c.ReadingState, c.ReadingStateID) > 0 {
		out.ReadingState, out.ReadingStateID = candidate.ReadingState, candidate.ReadingStateID
	}
	return out
}

// Covers reports whether every watermark of c is at or past other's.
func (c WatermarkCursor) Covers(other WatermarkCursor) bool {
	return comparePosition(c.BooksModified, c.BooksModifiedID, other.BooksModified, other.BooksModifiedID) >= 0 &&
		!c.BooksCreated.Before(other.BooksCreated) &&
		comparePosition(c.ReadingState, c.ReadingStateID, other.ReadingState, other.ReadingStateID) >= 0
}

// CoversBook reports whether a book change at modified was already handed out.
func (c WatermarkCursor) CoversBook(modified time.Time, bookID int64) bool {
	return comparePosition(modified, bookID, c.BooksModified, c.BooksModifiedID) <= 0
}

// CoversReadingState reports whether a reading-state change of the book at
// modified was already handed out.
func (c WatermarkCursor) CoversReadingState(modified time.Time, bookID int64) bool {
	return comparePosition(modified, bookID, c.ReadingState, c.ReadingStateID) <= 0
}

// ReadingStateSince is the exclusive lower bound to query reading states from.
// It steps back below the watermark while changes at that instant are pending.
func (c WatermarkCursor) ReadingStateSince() time.Time {
	if c.ReadingStateID != 0 {
		return c.ReadingState.Add(-time.Nanosecond)
	}
	return c.ReadingState
}

// IsZero reports whether nothing has been delivered under c yet.
func (c WatermarkCursor) IsZero() bool {
	return c.BooksModified.IsZero() && c.BooksCreated.IsZero() && c.ReadingState.IsZero() &&
		c.BooksModifiedID == 0 && c.ReadingStateID == 0
}

// comparePosition orders (time, id) positions. An id of zero stands for the
// end of its instant.
func comparePosition(a time.Time, aID int64, b time.Time, bID int64) int {
	if c := a.Compare(b); c != 0 {
		return c
	}
	switch {
	case aID == bID:
		return 0
	case aID == 0:
		return 1
	case bID == 0:
		return -1
	case aID < bID:
		return -1
	default:
		return 1
	}
}

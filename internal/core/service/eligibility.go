package service

import (
	"booksync/internal/core/domain/models"
	"sort"
)

// FormatSet is the set of formats a device can open.
type FormatSet map[models.Format]struct{}

func NewFormatSet(formats ...models.Format) FormatSet {
	s := make(FormatSet, len(formats))
	for _, f := range formats {
		s[f] = struct{}{}
	}
	return s
}

// DefaultReadableFormats is what an e-reader opens natively.
func DefaultReadableFormats() []models.Format {
	return []models.Format{models.FormatEPUB, models.FormatKEPUB}
}

func (s FormatSet) readsAny(formats []models.Format) bool {
	for _, f := range formats {
		if _, ok := s[f]; ok {
			return true
		}
	}
	return false
}

// FilterEligible picks the catalog entries a cycle should consider and orders
// them oldest change first. A nil shelf set means no shelf scoping; a non-nil
// empty set excludes everything. The second result counts entries dropped
// because they have no usable id.
func FilterEligible(
	entries []models.CatalogEntry,
	delivered models.BookIDSet,
	shelf models.BookIDSet,
	snapshot models.WatermarkCursor,
	formats FormatSet,
) ([]models.CatalogEntry, int) {
	var (
		eligible []models.CatalogEntry
		invalid  int
	)

	for _, e := range entries {
		if !e.HasValidID() {
			invalid++
			continue
		}
		if !formats.readsAny(e.Formats) {
			continue
		}
		if shelf != nil && !shelf.Has(e.ID) {
			continue
		}
		// Delivered and unchanged since the last watermark.
		if delivered.Has(e.ID) && snapshot.CoversBook(e.LastModified, e.ID) {
			continue
		}
		eligible = append(eligible, e)
	}

	// The cap is applied to this order, so the cursor can never move past an
	// entry that was not processed.
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.Before(b.LastModified)
		}
		return a.ID < b.ID
	})

	return eligible, invalid
}

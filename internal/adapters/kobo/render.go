package kobo

import (
	"booksync/internal/core/domain/models"
	"strconv"
	"time"
)

// Wire shapes follow the Kobo store API closely enough for stock readers.

type bookEntitlement struct {
	Accessibility       string    `json:"Accessibility"`
	ActivePeriod        period    `json:"ActivePeriod"`
	Created             time.Time `json:"Created"`
	CrossRevisionID     string    `json:"CrossRevisionId"`
	ID                  string    `json:"Id"`
	IsHiddenFromArchive bool      `json:"IsHiddenFromArchive"`
	IsLocked            bool      `json:"IsLocked"`
	IsRemoved           bool      `json:"IsRemoved"`
	LastModified        time.Time `json:"LastModified"`
	OriginCategory      string    `json:"OriginCategory"`
	RevisionID          string    `json:"RevisionId"`
	Status              string    `json:"Status"`
}

type period struct {
	From time.Time `json:"From"`
}

type bookMetadata struct {
	Contributors    []string `json:"Contributors"`
	CrossRevisionID string   `json:"CrossRevisionId"`
	Description     string   `json:"Description,omitempty"`
	EntitlementID   string   `json:"EntitlementId"`
	Formats         []string `json:"Formats"`
	Language        string   `json:"Language"`
	RevisionID      string   `json:"RevisionId"`
	Title           string   `json:"Title"`
	WorkID          string   `json:"WorkId"`
}

type statusInfo struct {
	LastModified time.Time `json:"LastModified"`
	Status       string    `json:"Status"`
}

type statistics struct {
	LastModified         time.Time `json:"LastModified"`
	SpentReadingMinutes  int       `json:"SpentReadingMinutes,omitempty"`
	RemainingTimeMinutes int       `json:"RemainingTimeMinutes,omitempty"`
}

type location struct {
	Value  string `json:"Value"`
	Type   string `json:"Type"`
	Source string `json:"Source"`
}

type bookmark struct {
	LastModified                 time.Time `json:"LastModified"`
	ProgressPercent              float64   `json:"ProgressPercent,omitempty"`
	ContentSourceProgressPercent float64   `json:"ContentSourceProgressPercent,omitempty"`
	Location                     *location `json:"Location,omitempty"`
}

type readingState struct {
	EntitlementID     string      `json:"EntitlementId"`
	Created           time.Time   `json:"Created"`
	LastModified      time.Time   `json:"LastModified"`
	PriorityTimestamp time.Time   `json:"PriorityTimestamp"`
	StatusInfo        statusInfo  `json:"StatusInfo"`
	Statistics        *statistics `json:"Statistics,omitempty"`
	CurrentBookmark   *bookmark   `json:"CurrentBookmark,omitempty"`
}

type entitlement struct {
	BookEntitlement bookEntitlement `json:"BookEntitlement"`
	BookMetadata    bookMetadata    `json:"BookMetadata"`
	ReadingState    *readingState   `json:"ReadingState,omitempty"`
}

type changedReadingState struct {
	ReadingState readingState `json:"ReadingState"`
}

// syncItem holds exactly one of its fields.
type syncItem struct {
	NewEntitlement      *entitlement         `json:"NewEntitlement,omitempty"`
	ChangedEntitlement  *entitlement         `json:"ChangedEntitlement,omitempty"`
	ChangedReadingState *changedReadingState `json:"ChangedReadingState,omitempty"`
}

func entitlementID(bookID int64) string {
	return strconv.FormatInt(bookID, 10)
}

func renderEntries(entries []models.SyncEntry) []syncItem {
	items := make([]syncItem, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case models.KindNewBook:
			items = append(items, syncItem{NewEntitlement: renderEntitlement(e)})
		case models.KindChangedBook:
			items = append(items, syncItem{ChangedEntitlement: renderEntitlement(e)})
		case models.KindChangedReadingState:
			items = append(items, syncItem{ChangedReadingState: &changedReadingState{
				ReadingState: renderReadingState(e.ReadingState),
			}})
		}
	}
	return items
}

func renderEntitlement(e models.SyncEntry) *entitlement {
	b := e.Book
	id := entitlementID(b.ID)
	formats := make([]string, 0, len(b.Formats))
	for _, f := range b.Formats {
		formats = append(formats, string(f))
	}
	out := &entitlement{
		BookEntitlement: bookEntitlement{
			Accessibility:       "Full",
			ActivePeriod:        period{From: b.CreatedAt},
			Created:             b.CreatedAt,
			CrossRevisionID:     b.UUID,
			ID:                  id,
			IsHiddenFromArchive: false,
			IsRemoved:           e.Archived,
			LastModified:        b.LastModified,
			OriginCategory:      "Imported",
			RevisionID:          b.UUID,
			Status:              "Active",
		},
		BookMetadata: bookMetadata{
			Contributors:    []string{b.Author},
			CrossRevisionID: b.UUID,
			Description:     b.Description,
			EntitlementID:   id,
			Formats:         formats,
			Language:        "en",
			RevisionID:      b.UUID,
			Title:           b.Title,
			WorkID:          b.UUID,
		},
	}
	if e.ReadingState != nil {
		rs := renderReadingState(e.ReadingState)
		out.ReadingState = &rs
	}
	return out
}

func renderReadingState(s *models.ReadingState) readingState {
	out := readingState{
		EntitlementID:     entitlementID(s.BookID),
		Created:           s.LastModified,
		LastModified:      s.LastModified,
		PriorityTimestamp: s.PriorityTimestamp,
		StatusInfo: statusInfo{
			LastModified: s.LastModified,
			Status:       s.Status.String(),
		},
	}
	if out.PriorityTimestamp.IsZero() {
		out.PriorityTimestamp = s.LastModified
	}
	if s.Statistics != nil {
		out.Statistics = &statistics{
			LastModified:         s.Statistics.LastModified,
			SpentReadingMinutes:  s.Statistics.SpentReadingMinutes,
			RemainingTimeMinutes: s.Statistics.RemainingTimeMinutes,
		}
	}
	if s.Bookmark != nil {
		bm := &bookmark{
			LastModified:                 s.Bookmark.LastModified,
			ProgressPercent:              s.Bookmark.ProgressPercent,
			ContentSourceProgressPercent: s.Bookmark.ContentSourceProgressPercent,
		}
		if s.Bookmark.Location != "" {
			bm.Location = &location{
				Value:  s.Bookmark.Location,
				Type:   s.Bookmark.LocationType,
				Source: s.Bookmark.LocationSource,
			}
		}
		out.CurrentBookmark = bm
	}
	return out
}

func parseStatus(s string) (models.ReadStatus, bool) {
	switch s {
	case "ReadyToRead":
		return models.StatusReadyToRead, true
	case "Reading":
		return models.StatusReading, true
	case "Finished":
		return models.StatusFinished, true
	}
	return 0, false
}

// readingStateUpdate is the body of a state PUT. Every section is optional.
type readingStateUpdate struct {
	ReadingStates []struct {
		StatusInfo *struct {
			Status string `json:"Status"`
		} `json:"StatusInfo"`
		Statistics *struct {
			SpentReadingMinutes  int `json:"SpentReadingMinutes"`
			RemainingTimeMinutes int `json:"RemainingTimeMinutes"`
		} `json:"Statistics"`
		CurrentBookmark *struct {
			ProgressPercent              float64   `json:"ProgressPercent"`
			ContentSourceProgressPercent float64   `json:"ContentSourceProgressPercent"`
			Location                     *location `json:"Location"`
		} `json:"CurrentBookmark"`
	} `json:"ReadingStates"`
}

type updateResult struct {
	EntitlementID         string `json:"EntitlementId"`
	CurrentBookmarkResult result `json:"CurrentBookmarkResult"`
	StatisticsResult      result `json:"StatisticsResult"`
	StatusInfoResult      result `json:"StatusInfoResult"`
}

type result struct {
	Result string `json:"Result"`
}

type updateResponse struct {
	RequestResult string         `json:"RequestResult"`
	UpdateResults []updateResult `json:"UpdateResults"`
}

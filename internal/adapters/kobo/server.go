// Package kobo serves the device-facing sync API.
package kobo

import (
	"booksync/internal/adapters/synctoken"
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"booksync/internal/core/service"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	HeaderSyncToken = "X-Kobo-SyncToken"
	HeaderSync      = "X-Kobo-Sync"
)

// ReadingStates is the reading-state storage the handlers read and write.
type ReadingStates interface {
	ports.ReadingStateStore
	ports.ReadingStateWriter
}

// Deps are the collaborators of the device API.
type Deps struct {
	Syncer  service.Syncer
	Devices ports.DeviceStore
	Catalog ports.CatalogWriter
	States  ReadingStates
	Archive ports.ArchiveWriter
}

type Server struct {
	deps    Deps
	logger  *zap.Logger
	clock   clockwork.Clock
	timeout time.Duration
}

type Opt func(*Server)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithRequestTimeout bounds the storage work of each request.
func WithRequestTimeout(d time.Duration) Opt {
	return func(s *Server) {
		s.timeout = d
	}
}

func NewServer(deps Deps, opts ...Opt) *Server {
	s := &Server{
		deps:   deps,
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /kobo/{auth}/v1/library/sync", s.withDevice(s.handleSync))
	mux.HandleFunc("GET /kobo/{auth}/v1/library/{bookID}/state", s.withDevice(s.handleGetState))
	mux.HandleFunc("PUT /kobo/{auth}/v1/library/{bookID}/state", s.withDevice(s.handlePutState))
	mux.HandleFunc("DELETE /kobo/{auth}/v1/library/{bookID}", s.withDevice(s.handleArchive))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s.withTimeout(mux)
}

type deviceHandler func(w http.ResponseWriter, r *http.Request, device *models.Device)

func (s *Server) withTimeout(next http.Handler) http.Handler {
	if s.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withDevice(next deviceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := s.deps.Devices.ResolveDevice(r.Context(), r.PathValue("auth"))
		if errors.Is(err, ports.ErrNotFound) {
			http.Error(w, "unknown device", http.StatusUnauthorized)
			return
		}
		if err != nil {
			s.logger.Error("failed to resolve device", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next(w, r, device)
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, device *models.Device) {
	logger := s.logger.With(zap.Int64("user", device.UserID), zap.String("device", device.Name))

	cursor, err := synctoken.Decode(r.Header.Get(HeaderSyncToken))
	if err != nil {
		logger.Warn("discarding sync token, running full sync", zap.Error(err))
	}

	result, err := s.deps.Syncer.Sync(r.Context(), models.SyncRequest{
		UserID:         device.UserID,
		LibraryID:      device.LibraryID,
		Cursor:         cursor,
		ScopeToShelves: device.ScopeToShelves,
	})
	if err != nil {
		logger.Error("sync cycle failed", zap.Error(err))
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	token, err := synctoken.Encode(result.Cursor)
	if err != nil {
		logger.Error("failed to encode sync token", zap.Error(err))
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set(HeaderSyncToken, token)
	if result.MoreAvailable {
		w.Header().Set(HeaderSync, "continue")
	}
	s.writeJSON(w, http.StatusOK, renderEntries(result.Entries))
}

// book resolves the {bookID} path value, writing the error response itself
// when it returns false.
func (s *Server) book(w http.ResponseWriter, r *http.Request) (*models.CatalogEntry, bool) {
	id, err := strconv.ParseInt(r.PathValue("bookID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return nil, false
	}
	book, err := s.deps.Catalog.GetBook(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		http.Error(w, "book not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load book", zap.Int64("book", id), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return book, true
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request, device *models.Device) {
	book, ok := s.book(w, r)
	if !ok {
		return
	}
	state, err := s.deps.States.FindByUserAndBook(r.Context(), device.UserID, book.ID)
	if err != nil {
		s.logger.Error("failed to load reading state", zap.Int64("book", book.ID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if state == nil {
		state = &models.ReadingState{UserID: device.UserID, BookID: book.ID, LastModified: book.LastModified}
	}
	s.writeJSON(w, http.StatusOK, []readingState{renderReadingState(state)})
}

func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request, device *models.Device) {
	book, ok := s.book(w, r)
	if !ok {
		return
	}

	var body readingStateUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.ReadingStates) == 0 {
		http.Error(w, "invalid reading state payload", http.StatusBadRequest)
		return
	}
	update := body.ReadingStates[0]

	var status models.ReadStatus
	if update.StatusInfo != nil {
		var ok bool
		if status, ok = parseStatus(update.StatusInfo.Status); !ok {
			http.Error(w, "unknown reading status", http.StatusBadRequest)
			return
		}
	}

	state, err := s.deps.States.FindByUserAndBook(r.Context(), device.UserID, book.ID)
	if err != nil {
		s.logger.Error("failed to load reading state", zap.Int64("book", book.ID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if state == nil {
		state = &models.ReadingState{UserID: device.UserID, BookID: book.ID}
	}

	now := s.clock.Now().UTC()
	state.LastModified = now
	state.PriorityTimestamp = now
	if update.StatusInfo != nil {
		state.Status = status
	}
	if update.Statistics != nil {
		state.Statistics = &models.Statistics{
			SpentReadingMinutes:  update.Statistics.SpentReadingMinutes,
			RemainingTimeMinutes: update.Statistics.RemainingTimeMinutes,
			LastModified:         now,
		}
	}
	if bm := update.CurrentBookmark; bm != nil {
		state.Bookmark = &models.Bookmark{
			ProgressPercent:              bm.ProgressPercent,
			ContentSourceProgressPercent: bm.ContentSourceProgressPercent,
			LastModified:                 now,
		}
		if bm.Location != nil {
			state.Bookmark.Location = bm.Location.Value
			state.Bookmark.LocationType = bm.Location.Type
			state.Bookmark.LocationSource = bm.Location.Source
		}
	}

	if err := s.deps.States.UpsertReadingState(r.Context(), state); err != nil {
		s.logger.Error("failed to store reading state", zap.Int64("book", book.ID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	success := result{Result: "Success"}
	s.writeJSON(w, http.StatusOK, updateResponse{
		RequestResult: "Success",
		UpdateResults: []updateResult{{
			EntitlementID:         entitlementID(book.ID),
			CurrentBookmarkResult: success,
			StatisticsResult:      success,
			StatusInfoResult:      success,
		}},
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, device *models.Device) {
	book, ok := s.book(w, r)
	if !ok {
		return
	}
	if err := s.deps.Archive.SetArchived(r.Context(), device.UserID, book.ID, true, s.clock.Now().UTC()); err != nil {
		s.logger.Error("failed to archive book", zap.Int64("book", book.ID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

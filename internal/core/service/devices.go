package service

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// RegisterDevice issues a fresh auth token binding a device to a user and
// library.
func RegisterDevice(ctx context.Context, store ports.DeviceStore, clock clockwork.Clock, name string, userID, libraryID int64, scopeToShelves bool) (*models.Device, error) {
	if userID <= 0 || libraryID <= 0 {
		return nil, fmt.Errorf("user and library ids must be positive")
	}
	device := &models.Device{
		Token:          uuid.NewString(),
		Name:           name,
		UserID:         userID,
		LibraryID:      libraryID,
		ScopeToShelves: scopeToShelves,
		CreatedAt:      clock.Now().UTC(),
	}
	if err := store.RegisterDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}
	return device, nil
}

// Package synctoken converts the watermark cursor to and from the opaque
// token that devices echo back on their next sync.
package synctoken

import (
	"booksync/internal/core/domain/models"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is bumped whenever the token payload changes shape.
const Version = 1

var (
	ErrInvalidToken    = errors.New("malformed sync token")
	ErrVersionMismatch = errors.New("sync token version mismatch")
)

type payload struct {
	Version int                    `json:"v"`
	Cursor  models.WatermarkCursor `json:"c"`
}

func Encode(cursor models.WatermarkCursor) (string, error) {
	raw, err := json.Marshal(payload{Version: Version, Cursor: cursor})
	if err != nil {
		return "", fmt.Errorf("failed to encode sync token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a token produced by Encode. An empty token is a fresh device
// and yields the zero cursor with no error. Any other failure also yields the
// zero cursor, alongside the reason, so the caller can fall back to a full
// resync.
func Decode(token string) (models.WatermarkCursor, error) {
	if token == "" {
		return models.WatermarkCursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return models.WatermarkCursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.WatermarkCursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if p.Version != Version {
		return models.WatermarkCursor{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, p.Version, Version)
	}
	return p.Cursor, nil
}

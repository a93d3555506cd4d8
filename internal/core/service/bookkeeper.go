package service

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/core/domain/ports"
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
)

// Bookkeeper records that books were handed to a user.
type Bookkeeper struct {
	store ports.DeliveryStore
	clock clockwork.Clock
}

func NewBookkeeper(store ports.DeliveryStore, clock clockwork.Clock) *Bookkeeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bookkeeper{store: store, clock: clock}
}

// MarkDelivered stamps the delivery record of the book with the current time.
func (b *Bookkeeper) MarkDelivered(ctx context.Context, userID, bookID int64) error {
	if err := b.store.UpsertDelivered(ctx, userID, bookID, b.clock.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark book %d delivered to user %d: %w", bookID, userID, err)
	}
	return nil
}

// cycle returns a guard that marks each book at most once.
func (b *Bookkeeper) cycle(userID int64) *deliveryCycle {
	return &deliveryCycle{keeper: b, userID: userID, marked: models.NewBookIDSet()}
}

type deliveryCycle struct {
	keeper *Bookkeeper
	userID int64
	marked models.BookIDSet
}

func (c *deliveryCycle) markDelivered(ctx context.Context, bookID int64) error {
	if c.marked.Has(bookID) {
		return nil
	}
	if err := c.keeper.MarkDelivered(ctx, c.userID, bookID); err != nil {
		return err
	}
	c.marked.Add(bookID)
	return nil
}

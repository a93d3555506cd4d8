package service

import (
	"booksync/internal/core/domain/models"
	"booksync/internal/testutil/memstore"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func ts(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func TestClassify_LabelsDoNotDependOnOrder(t *testing.T) {
	store := memstore.New()
	keeper := NewBookkeeper(store, clockwork.NewFakeClockAt(ts(1000)))
	c := &classifier{states: store, archive: store}
	snapshot := models.WatermarkCursor{BooksCreated: ts(50)}

	var candidates []models.CatalogEntry
	for i := 1; i <= 40; i++ {
		candidates = append(candidates, models.CatalogEntry{
			ID:           int64(i),
			Formats:      []models.Format{models.FormatEPUB},
			LastModified: ts(100 + i),
			CreatedAt:    ts(26 + i*2), // straddles the created watermark
		})
	}

	labels := func(entries []models.SyncEntry) map[int64]models.EntryKind {
		out := make(map[int64]models.EntryKind, len(entries))
		for _, e := range entries {
			out[e.Book.ID] = e.Kind
		}
		return out
	}

	want, err := c.classify(context.Background(), 1, candidates, snapshot, keeper.cycle(1))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 5; round++ {
		shuffled := append([]models.CatalogEntry(nil), candidates...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := c.classify(context.Background(), 1, shuffled, snapshot, keeper.cycle(1))
		require.NoError(t, err)
		assert.Equal(t, labels(want.entries), labels(got.entries))
		assert.Equal(t, want.maxima, got.maxima)
	}

	// Book 12 was created exactly at the watermark.
	assert.Equal(t, models.KindChangedBook, labels(want.entries)[12])
	assert.Equal(t, models.KindNewBook, labels(want.entries)[13])
}

func TestClassify_AttachesOnlyNewerReadingStates(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.UpsertReadingState(ctx, &models.ReadingState{UserID: 1, BookID: 1, LastModified: ts(10)}))
	require.NoError(t, store.UpsertReadingState(ctx, &models.ReadingState{UserID: 1, BookID: 2, LastModified: ts(30)}))

	keeper := NewBookkeeper(store, clockwork.NewFakeClock())
	c := &classifier{states: store, archive: store}
	candidates := []models.CatalogEntry{
		{ID: 1, LastModified: ts(40), CreatedAt: ts(1)},
		{ID: 2, LastModified: ts(41), CreatedAt: ts(2)},
		{ID: 3, LastModified: ts(42), CreatedAt: ts(3)},
	}

	out, err := c.classify(ctx, 1, candidates, models.WatermarkCursor{ReadingState: ts(20)}, keeper.cycle(1))
	require.NoError(t, err)

	require.Len(t, out.entries, 3)
	assert.Nil(t, out.entries[0].ReadingState)
	require.NotNil(t, out.entries[1].ReadingState)
	assert.Nil(t, out.entries[2].ReadingState)
	assert.Equal(t, models.NewBookIDSet(2), out.covered)
	assert.True(t, out.maxima.ReadingState.Equal(ts(30)))
	assert.True(t, out.maxima.BooksModified.Equal(ts(42)))
	assert.True(t, out.maxima.BooksCreated.Equal(ts(3)))
}

func TestDeliveryCycle_MarksEachBookOnce(t *testing.T) {
	store := memstore.New()
	keeper := NewBookkeeper(store, clockwork.NewFakeClockAt(ts(5)))
	cycle := keeper.cycle(9)

	ctx := context.Background()
	require.NoError(t, cycle.markDelivered(ctx, 1))
	require.NoError(t, cycle.markDelivered(ctx, 1))
	require.NoError(t, cycle.markDelivered(ctx, 2))

	assert.Equal(t, 2, store.Calls("UpsertDelivered"))
	at, ok := store.DeliveredAt(9, 1)
	require.True(t, ok)
	assert.True(t, at.Equal(ts(5)))

	// A new cycle may mark the same book again.
	require.NoError(t, keeper.cycle(9).markDelivered(ctx, 1))
	assert.Equal(t, 3, store.Calls("UpsertDelivered"))
}

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	Clear()
	t.Cleanup(Clear)
	Register(*gastosDef())
	return NewService(store, nil, ServiceConfig{Logger: discardLogger(), ChangesLimit: 10})
}

func TestService_Sync(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	report, err := svc.Sync(context.Background(), BatchRequest{
		Entity:  "gastos",
		Records: []*Record{gasto(1, "1", "2024-01-01 10:00:00")},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, DefaultChunkSize, svc.ChunkSize())
	assert.Equal(t, 0, svc.LimiterStatus().Active)
}

func TestService_SyncRejects(t *testing.T) {
	svc := newTestService(t, newFakeStore())

	_, err := svc.Sync(context.Background(), BatchRequest{Entity: "nope", Records: []*Record{gasto(1, "1", "")}})
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = svc.Sync(context.Background(), BatchRequest{Entity: "gastos"})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestService_SyncIgnoresCallerCancellation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	store.beforeInsert = func(s *fakeStore, def *EntityDefinition, rec *Record) error {
		cancel()
		return nil
	}

	report, err := svc.Sync(ctx, BatchRequest{
		Entity:  "gastos",
		Records: []*Record{gasto(1, "1", ""), gasto(2, "2", "")},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
}

func TestService_ChangesPagination(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	for i := 1; i <= 15; i++ {
		store.seed("gastos", gasto(fmt.Sprint(i), "1", fmt.Sprintf("2024-01-01 10:00:%02d.000", i)))
	}
	ctx := context.Background()

	page, err := svc.Changes(ctx, ChangesRequest{Entity: "gastos", Since: "2024-01-01T10:00:02Z"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 10:00:02.000", page.Since)
	assert.Equal(t, 10, page.Count)
	assert.True(t, page.HasMore)
	assert.Equal(t, "2024-01-01 10:00:12.000", page.Until)
	require.NotEmpty(t, page.Next)

	page, err = svc.Changes(ctx, ChangesRequest{Entity: "gastos", Cursor: page.Next, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.False(t, page.HasMore)
	first, _ := page.Records[0].Get("id_ga")
	assert.Equal(t, "13", first)
}

// pullAll follows cursors until the last page and returns the ids seen.
func pullAll(t *testing.T, svc *Service, limit int) []string {
	t.Helper()
	var ids []string
	req := ChangesRequest{Entity: "gastos", Limit: limit}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 20, "pagination does not terminate")
		page, err := svc.Changes(context.Background(), req)
		require.NoError(t, err)
		for _, rec := range page.Records {
			id, _ := rec.Get("id_ga")
			ids = append(ids, fmt.Sprint(id))
		}
		if !page.HasMore {
			return ids
		}
		req.Cursor = page.Next
	}
}

func TestService_ChangesTiesAcrossPages(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	for i := 1; i <= 3; i++ {
		store.seed("gastos", gasto(i, "1", "2024-01-01 00:00:00"))
	}
	store.seed("gastos", gasto(4, "1", "2024-01-01 00:00:01"))

	assert.Equal(t, []string{"1", "2", "3", "4"}, pullAll(t, svc, 2))
}

func TestService_ChangesSubMillisecondTimestamps(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	store.seed("gastos",
		gasto(1, "1", "2024-01-01 00:00:00.123456"),
		gasto(2, "1", "2024-01-01 00:00:00.123789"),
		gasto(3, "1", "2024-01-01 00:00:00.5"),
	)

	assert.Equal(t, []string{"1", "2", "3"}, pullAll(t, svc, 1))
}

func TestService_ChangesCursor(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	ctx := context.Background()

	page, err := svc.Changes(ctx, ChangesRequest{Entity: "gastos"})
	require.NoError(t, err)
	assert.Zero(t, page.Count)
	assert.Empty(t, page.Next)

	_, err = svc.Changes(ctx, ChangesRequest{Entity: "gastos", Cursor: "%%%"})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	token, err := EncodeCursor(Position{Timestamp: "2024-01-01 00:00:00", Key: []any{"1", "2"}})
	require.NoError(t, err)
	_, err = svc.Changes(ctx, ChangesRequest{Entity: "gastos", Cursor: token})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCursorRoundTrip(t *testing.T) {
	def := gastosDef()
	rec := gasto(json.Number("42"), "1", "2024-01-01 00:00:00.123456")

	pos := PositionOf(def, rec)
	assert.Equal(t, Position{Timestamp: "2024-01-01 00:00:00.123456", Key: []any{"42"}}, pos)

	token, err := EncodeCursor(pos)
	require.NoError(t, err)
	got, err := DecodeCursor(token, def)
	require.NoError(t, err)
	assert.Equal(t, pos, *got)
}

func TestService_ChangesUnknownEntity(t *testing.T) {
	svc := newTestService(t, newFakeStore())

	_, err := svc.Changes(context.Background(), ChangesRequest{Entity: "nope"})
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestService_Entities(t *testing.T) {
	svc := newTestService(t, newFakeStore())

	entities := svc.Entities()
	require.Len(t, entities, 1)
	assert.Equal(t, "gastos", entities[0].Key)
	assert.Equal(t, [][]string{{"id_ga"}}, entities[0].IdentityKeys)
	assert.Equal(t, "lenient", entities[0].Mode)
	assert.NoError(t, svc.Ping(context.Background()))
}

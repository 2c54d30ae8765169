package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrycache/scrycache/model"
)

// recordingStore notes each method invocation and returns canned values.
type recordingStore struct {
	calls []string
}

func (r *recordingStore) note(op string) { r.calls = append(r.calls, op) }

func (r *recordingStore) UpsertCards(ctx context.Context, cards []*model.Card) error {
	r.note("UpsertCards")
	return nil
}

func (r *recordingStore) GetCard(ctx context.Context, id string) (*model.Card, error) {
	r.note("GetCard")
	return &model.Card{ID: id}, nil
}

func (r *recordingStore) GetCards(ctx context.Context, ids []string) ([]*model.Card, error) {
	r.note("GetCards")
	return make([]*model.Card, len(ids)), nil
}

func (r *recordingStore) SearchByName(ctx context.Context, name string, limit int) ([]*model.Card, error) {
	r.note("SearchByName")
	return nil, nil
}

func (r *recordingStore) Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error) {
	r.note("Autocomplete")
	return []string{prefix}, nil
}

func (r *recordingStore) ExecutePredicate(ctx context.Context, sql string, params []interface{}) ([]*model.Card, error) {
	r.note("ExecutePredicate")
	return nil, nil
}

func (r *recordingStore) CountPredicate(ctx context.Context, sql string, params []interface{}) (int64, error) {
	r.note("CountPredicate")
	return 7, nil
}

func (r *recordingStore) GetResultSet(ctx context.Context, fingerprint string) (*ResultSet, error) {
	r.note("GetResultSet")
	return &ResultSet{IDs: []string{fingerprint}}, nil
}

func (r *recordingStore) PutResultSet(ctx context.Context, fingerprint string, ids []string, ttlHours int) error {
	r.note("PutResultSet")
	return nil
}

func (r *recordingStore) GCResultSets(ctx context.Context, olderThanHours int) (int64, error) {
	r.note("GCResultSets")
	return 3, nil
}

func (r *recordingStore) RecordImport(ctx context.Context, totalCards int, source string) error {
	r.note("RecordImport")
	return nil
}

func (r *recordingStore) LastImportTimestamp(ctx context.Context) (*time.Time, error) {
	r.note("LastImportTimestamp")
	return nil, nil
}

func (r *recordingStore) CardCount(ctx context.Context) (int64, error) {
	r.note("CardCount")
	return 42, nil
}

func (r *recordingStore) ResultSetCount(ctx context.Context) (int64, error) {
	r.note("ResultSetCount")
	return 5, nil
}

func (r *recordingStore) AnyCards(ctx context.Context) (bool, error) {
	r.note("AnyCards")
	return true, nil
}

func (r *recordingStore) Ping(ctx context.Context) error {
	r.note("Ping")
	return nil
}

func (r *recordingStore) Close() error {
	r.note("Close")
	return nil
}

func TestInstrumentedForwardsEveryMethod(t *testing.T) {
	var ctx = context.Background()
	var inner = &recordingStore{}
	var wrapped Store = NewInstrumented(inner)

	require.NoError(t, wrapped.UpsertCards(ctx, nil))

	card, err := wrapped.GetCard(ctx, "some-id")
	require.NoError(t, err)
	require.Equal(t, "some-id", card.ID)

	cards, err := wrapped.GetCards(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, cards, 2)

	_, err = wrapped.SearchByName(ctx, "bolt", 10)
	require.NoError(t, err)

	names, err := wrapped.Autocomplete(ctx, "li", 20)
	require.NoError(t, err)
	require.Equal(t, []string{"li"}, names)

	_, err = wrapped.ExecutePredicate(ctx, "1=1", nil)
	require.NoError(t, err)

	count, err := wrapped.CountPredicate(ctx, "1=1", nil)
	require.NoError(t, err)
	require.Equal(t, int64(7), count)

	rs, err := wrapped.GetResultSet(ctx, "fp")
	require.NoError(t, err)
	require.Equal(t, []string{"fp"}, rs.IDs)

	require.NoError(t, wrapped.PutResultSet(ctx, "fp", []string{"a"}, 24))

	removed, err := wrapped.GCResultSets(ctx, 24)
	require.NoError(t, err)
	require.Equal(t, int64(3), removed)

	require.NoError(t, wrapped.RecordImport(ctx, 1000, "uri"))

	_, err = wrapped.LastImportTimestamp(ctx)
	require.NoError(t, err)

	total, err := wrapped.CardCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(42), total)

	sets, err := wrapped.ResultSetCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), sets)

	any, err := wrapped.AnyCards(ctx)
	require.NoError(t, err)
	require.True(t, any)

	require.NoError(t, wrapped.Ping(ctx))
	require.NoError(t, wrapped.Close())

	require.Equal(t, []string{
		"UpsertCards", "GetCard", "GetCards", "SearchByName", "Autocomplete",
		"ExecutePredicate", "CountPredicate", "GetResultSet", "PutResultSet",
		"GCResultSets", "RecordImport", "LastImportTimestamp", "CardCount",
		"ResultSetCount", "AnyCards", "Ping", "Close",
	}, inner.calls)
}

package store

import (
	"context"
	"time"

	"github.com/scrycache/scrycache/model"
)

// Instrumented wraps a Store, counting and timing every query by its
// coarse type (select, insert, delete). Count gauges refresh whenever a
// caller reads the corresponding count.
type Instrumented struct {
	inner Store
}

func NewInstrumented(inner Store) *Instrumented {
	return &Instrumented{inner: inner}
}

func (s *Instrumented) observe(queryType string, start time.Time) {
	queriesTotal.WithLabelValues(queryType).Inc()
	queryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

func (s *Instrumented) UpsertCards(ctx context.Context, cards []*model.Card) error {
	defer s.observe("insert", time.Now())
	return s.inner.UpsertCards(ctx, cards)
}

func (s *Instrumented) GetCard(ctx context.Context, id string) (*model.Card, error) {
	defer s.observe("select", time.Now())
	return s.inner.GetCard(ctx, id)
}

func (s *Instrumented) GetCards(ctx context.Context, ids []string) ([]*model.Card, error) {
	defer s.observe("select", time.Now())
	return s.inner.GetCards(ctx, ids)
}

func (s *Instrumented) SearchByName(ctx context.Context, name string, limit int) ([]*model.Card, error) {
	defer s.observe("select", time.Now())
	return s.inner.SearchByName(ctx, name, limit)
}

func (s *Instrumented) Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error) {
	defer s.observe("select", time.Now())
	return s.inner.Autocomplete(ctx, prefix, limit)
}

func (s *Instrumented) ExecutePredicate(ctx context.Context, sql string, params []interface{}) ([]*model.Card, error) {
	defer s.observe("select", time.Now())
	return s.inner.ExecutePredicate(ctx, sql, params)
}

func (s *Instrumented) CountPredicate(ctx context.Context, sql string, params []interface{}) (int64, error) {
	defer s.observe("select", time.Now())
	return s.inner.CountPredicate(ctx, sql, params)
}

func (s *Instrumented) GetResultSet(ctx context.Context, fingerprint string) (*ResultSet, error) {
	defer s.observe("select", time.Now())
	return s.inner.GetResultSet(ctx, fingerprint)
}

func (s *Instrumented) PutResultSet(ctx context.Context, fingerprint string, ids []string, ttlHours int) error {
	defer s.observe("insert", time.Now())
	return s.inner.PutResultSet(ctx, fingerprint, ids, ttlHours)
}

func (s *Instrumented) GCResultSets(ctx context.Context, olderThanHours int) (int64, error) {
	defer s.observe("delete", time.Now())
	return s.inner.GCResultSets(ctx, olderThanHours)
}

func (s *Instrumented) RecordImport(ctx context.Context, totalCards int, source string) error {
	defer s.observe("insert", time.Now())
	return s.inner.RecordImport(ctx, totalCards, source)
}

func (s *Instrumented) LastImportTimestamp(ctx context.Context) (*time.Time, error) {
	defer s.observe("select", time.Now())
	return s.inner.LastImportTimestamp(ctx)
}

func (s *Instrumented) CardCount(ctx context.Context) (int64, error) {
	defer s.observe("select", time.Now())
	n, err := s.inner.CardCount(ctx)
	if err == nil {
		cardsTotal.Set(float64(n))
	}
	return n, err
}

func (s *Instrumented) ResultSetCount(ctx context.Context) (int64, error) {
	defer s.observe("select", time.Now())
	n, err := s.inner.ResultSetCount(ctx)
	if err == nil {
		resultSetsTotal.Set(float64(n))
	}
	return n, err
}

func (s *Instrumented) AnyCards(ctx context.Context) (bool, error) {
	defer s.observe("select", time.Now())
	return s.inner.AnyCards(ctx)
}

func (s *Instrumented) Ping(ctx context.Context) error {
	defer s.observe("select", time.Now())
	return s.inner.Ping(ctx)
}

func (s *Instrumented) Close() error {
	return s.inner.Close()
}

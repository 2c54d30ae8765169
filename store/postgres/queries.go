package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pgx "github.com/jackc/pgx/v4"

	"github.com/scrycache/scrycache/model"
	"github.com/scrycache/scrycache/store"
)

const upsertCardSQL = `
INSERT INTO cards (
	id, oracle_id, name, mana_cost, cmc, type_line, oracle_text,
	colors, color_identity, set_code, set_name, collector_number,
	rarity, power, toughness, loyalty, keywords, prices, image_uris,
	card_faces, legalities, released_at, raw_json
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19, $20, $21, $22, $23
)
ON CONFLICT (id) DO UPDATE SET
	oracle_id = EXCLUDED.oracle_id,
	name = EXCLUDED.name,
	mana_cost = EXCLUDED.mana_cost,
	cmc = EXCLUDED.cmc,
	type_line = EXCLUDED.type_line,
	oracle_text = EXCLUDED.oracle_text,
	colors = EXCLUDED.colors,
	color_identity = EXCLUDED.color_identity,
	set_code = EXCLUDED.set_code,
	set_name = EXCLUDED.set_name,
	collector_number = EXCLUDED.collector_number,
	rarity = EXCLUDED.rarity,
	power = EXCLUDED.power,
	toughness = EXCLUDED.toughness,
	loyalty = EXCLUDED.loyalty,
	keywords = EXCLUDED.keywords,
	prices = EXCLUDED.prices,
	image_uris = EXCLUDED.image_uris,
	card_faces = EXCLUDED.card_faces,
	legalities = EXCLUDED.legalities,
	released_at = EXCLUDED.released_at,
	raw_json = EXCLUDED.raw_json,
	updated_at = NOW()`

func (s *Store) UpsertCards(ctx context.Context, cards []*model.Card) error {
	if len(cards) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify("upsert_cards", err)
	}
	defer tx.Rollback(ctx)

	var batch = &pgx.Batch{}
	for _, card := range cards {
		batch.Queue(upsertCardSQL,
			card.ID,
			card.OracleID,
			card.Name,
			card.ManaCost,
			card.CMC,
			card.TypeLine,
			card.OracleText,
			card.Colors,
			card.ColorIdentity,
			card.SetCode,
			card.SetName,
			card.CollectorNumber,
			card.Rarity,
			card.Power,
			card.Toughness,
			card.Loyalty,
			card.Keywords,
			jsonbArg(card.Prices),
			jsonbArg(card.ImageURIs),
			jsonbArg(card.CardFaces),
			jsonbArg(card.Legalities),
			dateArg(card.ReleasedAt),
			[]byte(card.RawJSON),
		)
	}

	var results = tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err = results.Exec(); err != nil {
			results.Close()
			return classify("upsert_cards", err)
		}
	}
	if err = results.Close(); err != nil {
		return classify("upsert_cards", err)
	}
	return classify("upsert_cards", tx.Commit(ctx))
}

func (s *Store) GetCard(ctx context.Context, id string) (*model.Card, error) {
	card, err := scanCard(s.pool.QueryRow(ctx, "SELECT * FROM cards WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get_card", err)
	}
	return card, nil
}

func (s *Store) GetCards(ctx context.Context, ids []string) ([]*model.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, "SELECT * FROM cards WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, classify("get_cards", err)
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, classify("get_cards", err)
	}
	return cards, nil
}

func (s *Store) SearchByName(ctx context.Context, name string, limit int) ([]*model.Card, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT * FROM cards
		WHERE to_tsvector('english', name) @@ plainto_tsquery('english', $1)
		ORDER BY name
		LIMIT $2`,
		name, limit)
	if err != nil {
		return nil, classify("search_by_name", err)
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, classify("search_by_name", err)
	}
	return cards, nil
}

func (s *Store) Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT name FROM cards
		WHERE name ILIKE $1
		ORDER BY name
		LIMIT $2`,
		prefix+"%", limit)
	if err != nil {
		return nil, classify("autocomplete", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, classify("autocomplete", err)
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, classify("autocomplete", err)
	}
	return names, nil
}

func (s *Store) ExecutePredicate(ctx context.Context, query string, params []interface{}) ([]*model.Card, error) {
	rows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, classify("execute_predicate", err)
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, classify("execute_predicate", err)
	}
	return cards, nil
}

func (s *Store) CountPredicate(ctx context.Context, query string, params []interface{}) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, query, params...).Scan(&count); err != nil {
		return 0, classify("count_predicate", err)
	}
	return count, nil
}

func (s *Store) GetResultSet(ctx context.Context, fingerprint string) (*store.ResultSet, error) {
	var idsJSON string
	var ttlHours int
	var err = s.pool.QueryRow(ctx, `
		UPDATE query_cache SET last_accessed = NOW()
		WHERE query_hash = $1
		  AND last_accessed + ttl_hours * INTERVAL '1 hour' > NOW()
		RETURNING card_ids, ttl_hours`,
		fingerprint).Scan(&idsJSON, &ttlHours)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get_result_set", err)
	}

	var ids []string
	if err = json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return nil, store.Failed(store.Internal, "get_result_set",
			fmt.Errorf("decoding cached ids: %w", err))
	}
	return &store.ResultSet{IDs: ids, TTLHours: ttlHours}, nil
}

func (s *Store) PutResultSet(ctx context.Context, fingerprint string, ids []string, ttlHours int) error {
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return store.Failed(store.Internal, "put_result_set", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO query_cache (query_hash, card_ids, ttl_hours)
		VALUES ($1, $2, $3)
		ON CONFLICT (query_hash) DO UPDATE SET
			card_ids = EXCLUDED.card_ids,
			ttl_hours = EXCLUDED.ttl_hours,
			created_at = NOW(),
			last_accessed = NOW()`,
		fingerprint, string(idsJSON), ttlHours)
	if err != nil {
		return classify("put_result_set", err)
	}
	return nil
}

func (s *Store) GCResultSets(ctx context.Context, olderThanHours int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM query_cache WHERE last_accessed < NOW() - INTERVAL '1 hour' * $1",
		olderThanHours)
	if err != nil {
		return 0, classify("gc_result_sets", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) RecordImport(ctx context.Context, totalCards int, source string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO bulk_data_metadata (total_cards, source) VALUES ($1, $2)",
		totalCards, source)
	if err != nil {
		return classify("record_import", err)
	}
	return nil
}

func (s *Store) LastImportTimestamp(ctx context.Context) (*time.Time, error) {
	var stamp time.Time
	var err = s.pool.QueryRow(ctx,
		"SELECT imported_at FROM bulk_data_metadata ORDER BY imported_at DESC LIMIT 1").
		Scan(&stamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("last_import_timestamp", err)
	}
	stamp = stamp.UTC()
	return &stamp, nil
}

func (s *Store) CardCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM cards").Scan(&count); err != nil {
		return 0, classify("card_count", err)
	}
	return count, nil
}

func (s *Store) ResultSetCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM query_cache").Scan(&count); err != nil {
		return 0, classify("result_set_count", err)
	}
	return count, nil
}

func (s *Store) AnyCards(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM cards)").Scan(&exists); err != nil {
		return false, classify("any_cards", err)
	}
	return exists, nil
}

// rowScanner lets scanCard serve both QueryRow and Rows results.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func collectCards(rows pgx.Rows) ([]*model.Card, error) {
	defer rows.Close()
	var cards []*model.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// scanCard reads a full cards row in schema column order.
func scanCard(row rowScanner) (*model.Card, error) {
	var id, name string
	var cmc sql.NullFloat64
	var colors, colorIdentity, keywords []string
	var oracleID, manaCost, typeLine, oracleText, setCode, setName,
		collectorNumber, rarity, power, toughness, loyalty, prices,
		imageURIs, cardFaces, legalities, rawJSON sql.NullString
	var releasedAt, createdAt, updatedAt sql.NullTime
	if err := row.Scan(
		&id, &oracleID, &name, &manaCost, &cmc, &typeLine, &oracleText,
		&colors, &colorIdentity, &setCode, &setName, &collectorNumber,
		&rarity, &power, &toughness, &loyalty, &keywords, &prices,
		&imageURIs, &cardFaces, &legalities, &releasedAt, &rawJSON,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	return &model.Card{
		ID:              id,
		OracleID:        nullString(oracleID),
		Name:            name,
		ManaCost:        nullString(manaCost),
		CMC:             nullFloat(cmc),
		TypeLine:        nullString(typeLine),
		OracleText:      nullString(oracleText),
		Colors:          colors,
		ColorIdentity:   colorIdentity,
		SetCode:         nullString(setCode),
		SetName:         nullString(setName),
		CollectorNumber: nullString(collectorNumber),
		Rarity:          nullString(rarity),
		Power:           nullString(power),
		Toughness:       nullString(toughness),
		Loyalty:         nullString(loyalty),
		Keywords:        keywords,
		Prices:          rawValue(prices),
		ImageURIs:       rawValue(imageURIs),
		CardFaces:       rawValue(cardFaces),
		Legalities:      rawValue(legalities),
		ReleasedAt:      dateValue(releasedAt),
		RawJSON:         rawValue(rawJSON),
		CreatedAt:       timeValue(createdAt),
		UpdatedAt:       timeValue(updatedAt),
	}, nil
}

// jsonbArg passes raw JSON through to a JSONB column, with empty meaning
// SQL NULL.
func jsonbArg(v json.RawMessage) interface{} {
	if len(v) == 0 {
		return nil
	}
	return []byte(v)
}

func dateArg(d *model.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.Time
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	var s = v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	var f = v.Float64
	return &f
}

func rawValue(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}

func dateValue(v sql.NullTime) *model.Date {
	if !v.Valid {
		return nil
	}
	return &model.Date{Time: v.Time}
}

func timeValue(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	var t = v.Time.UTC()
	return &t
}

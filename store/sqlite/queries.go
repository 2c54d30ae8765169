package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrycache/scrycache/model"
	"github.com/scrycache/scrycache/store"
)

// timestampLayout is the text form CURRENT_TIMESTAMP produces.
const timestampLayout = "2006-01-02 15:04:05"

// idChunkSize keeps IN-list lookups under the engine's parameter limit.
const idChunkSize = 500

const upsertCardSQL = `
INSERT INTO cards (
	id, oracle_id, name, mana_cost, cmc, type_line, oracle_text,
	colors, color_identity, set_code, set_name, collector_number,
	rarity, power, toughness, loyalty, keywords, prices, image_uris,
	card_faces, legalities, released_at, raw_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	oracle_id = excluded.oracle_id,
	name = excluded.name,
	mana_cost = excluded.mana_cost,
	cmc = excluded.cmc,
	type_line = excluded.type_line,
	oracle_text = excluded.oracle_text,
	colors = excluded.colors,
	color_identity = excluded.color_identity,
	set_code = excluded.set_code,
	set_name = excluded.set_name,
	collector_number = excluded.collector_number,
	rarity = excluded.rarity,
	power = excluded.power,
	toughness = excluded.toughness,
	loyalty = excluded.loyalty,
	keywords = excluded.keywords,
	prices = excluded.prices,
	image_uris = excluded.image_uris,
	card_faces = excluded.card_faces,
	legalities = excluded.legalities,
	released_at = excluded.released_at,
	raw_json = excluded.raw_json,
	updated_at = CURRENT_TIMESTAMP`

func (s *Store) UpsertCards(ctx context.Context, cards []*model.Card) error {
	if len(cards) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("upsert_cards", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCardSQL)
	if err != nil {
		return classify("upsert_cards", err)
	}
	defer stmt.Close()

	for _, card := range cards {
		if _, err = stmt.ExecContext(ctx,
			card.ID,
			card.OracleID,
			card.Name,
			card.ManaCost,
			card.CMC,
			card.TypeLine,
			card.OracleText,
			encodeStrings(card.Colors),
			encodeStrings(card.ColorIdentity),
			card.SetCode,
			card.SetName,
			card.CollectorNumber,
			card.Rarity,
			card.Power,
			card.Toughness,
			card.Loyalty,
			encodeStrings(card.Keywords),
			encodeRaw(card.Prices),
			encodeRaw(card.ImageURIs),
			encodeRaw(card.CardFaces),
			encodeRaw(card.Legalities),
			encodeDate(card.ReleasedAt),
			string(card.RawJSON),
		); err != nil {
			return classify("upsert_cards", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return classify("upsert_cards", err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, id string) (*model.Card, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx, "SELECT * FROM cards WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
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
	var out []*model.Card
	for start := 0; start < len(ids); start += idChunkSize {
		var end = start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		var chunk = ids[start:end]

		var placeholders = strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		var args = make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf("SELECT * FROM cards WHERE id IN (%s)", placeholders), args...)
		if err != nil {
			return nil, classify("get_cards", err)
		}
		cards, err := collectCards(rows)
		if err != nil {
			return nil, classify("get_cards", err)
		}
		out = append(out, cards...)
	}
	return out, nil
}

func (s *Store) SearchByName(ctx context.Context, name string, limit int) ([]*model.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT * FROM cards WHERE name LIKE ? COLLATE NOCASE ORDER BY name LIMIT ?",
		"%"+name+"%", limit)
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
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT name FROM cards WHERE name LIKE ? COLLATE NOCASE ORDER BY name LIMIT ?",
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
	rows, err := s.db.QueryContext(ctx, query, params...)
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
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&count); err != nil {
		return 0, classify("count_predicate", err)
	}
	return count, nil
}

func (s *Store) GetResultSet(ctx context.Context, fingerprint string) (*store.ResultSet, error) {
	var idsJSON string
	var ttlHours int
	var err = s.db.QueryRowContext(ctx, `
		UPDATE query_cache SET last_accessed = CURRENT_TIMESTAMP
		WHERE query_hash = ?
		  AND datetime(last_accessed, '+' || ttl_hours || ' hours') > datetime('now')
		RETURNING card_ids, ttl_hours`,
		fingerprint).Scan(&idsJSON, &ttlHours)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_cache (query_hash, card_ids, ttl_hours, last_accessed)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(query_hash) DO UPDATE SET
			card_ids = excluded.card_ids,
			ttl_hours = excluded.ttl_hours,
			created_at = CURRENT_TIMESTAMP,
			last_accessed = CURRENT_TIMESTAMP`,
		fingerprint, string(idsJSON), ttlHours)
	if err != nil {
		return classify("put_result_set", err)
	}
	return nil
}

func (s *Store) GCResultSets(ctx context.Context, olderThanHours int) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM query_cache WHERE last_accessed < datetime('now', '-' || ? || ' hours')",
		olderThanHours)
	if err != nil {
		return 0, classify("gc_result_sets", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classify("gc_result_sets", err)
	}
	return affected, nil
}

func (s *Store) RecordImport(ctx context.Context, totalCards int, source string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO bulk_data_metadata (total_cards, source) VALUES (?, ?)",
		totalCards, source)
	if err != nil {
		return classify("record_import", err)
	}
	return nil
}

func (s *Store) LastImportTimestamp(ctx context.Context) (*time.Time, error) {
	var stamp string
	var err = s.db.QueryRowContext(ctx,
		"SELECT imported_at FROM bulk_data_metadata ORDER BY imported_at DESC LIMIT 1").
		Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("last_import_timestamp", err)
	}
	parsed, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return nil, store.Failed(store.Internal, "last_import_timestamp", err)
	}
	return &parsed, nil
}

func (s *Store) CardCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cards").Scan(&count); err != nil {
		return 0, classify("card_count", err)
	}
	return count, nil
}

func (s *Store) ResultSetCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_cache").Scan(&count); err != nil {
		return 0, classify("result_set_count", err)
	}
	return count, nil
}

func (s *Store) AnyCards(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM cards)").Scan(&exists); err != nil {
		return false, classify("any_cards", err)
	}
	return exists, nil
}

// rowScanner lets scanCard serve both QueryRow and Rows results.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func collectCards(rows *sql.Rows) ([]*model.Card, error) {
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
	var id, name, rawJSON string
	var cmc sql.NullFloat64
	var oracleID, manaCost, typeLine, oracleText, colors, colorIdentity,
		setCode, setName, collectorNumber, rarity, power, toughness,
		loyalty, keywords, prices, imageURIs, cardFaces, legalities,
		releasedAt, createdAt, updatedAt sql.NullString
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
		Colors:          decodeStrings(colors),
		ColorIdentity:   decodeStrings(colorIdentity),
		SetCode:         nullString(setCode),
		SetName:         nullString(setName),
		CollectorNumber: nullString(collectorNumber),
		Rarity:          nullString(rarity),
		Power:           nullString(power),
		Toughness:       nullString(toughness),
		Loyalty:         nullString(loyalty),
		Keywords:        decodeStrings(keywords),
		Prices:          decodeRaw(prices),
		ImageURIs:       decodeRaw(imageURIs),
		CardFaces:       decodeRaw(cardFaces),
		Legalities:      decodeRaw(legalities),
		ReleasedAt:      decodeDate(releasedAt),
		RawJSON:         json.RawMessage(rawJSON),
		CreatedAt:       decodeTimestamp(createdAt),
		UpdatedAt:       decodeTimestamp(updatedAt),
	}, nil
}

func encodeStrings(v []string) interface{} {
	if v == nil {
		return nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(encoded)
}

func encodeRaw(v json.RawMessage) interface{} {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}

func encodeDate(d *model.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
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

// decodeStrings drops undecodable values rather than failing the row,
// mirroring the leniency of the ingest projection.
func decodeStrings(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil
	}
	return out
}

func decodeRaw(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}

func decodeDate(v sql.NullString) *model.Date {
	if !v.Valid {
		return nil
	}
	date, err := model.ParseDate(v.String)
	if err != nil {
		return nil
	}
	return &date
}

func decodeTimestamp(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	parsed, err := time.Parse(timestampLayout, v.String)
	if err != nil {
		return nil
	}
	return &parsed
}

// Package model defines the card record shared by the store, caches,
// upstream client, and API layers.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Card is one printing of a card. Scalar fields are projections of
// RawJSON and must be reconstructible from it; RawJSON is the upstream
// record stored verbatim.
type Card struct {
	ID              string          `json:"id"`
	OracleID        *string         `json:"oracle_id"`
	Name            string          `json:"name"`
	ManaCost        *string         `json:"mana_cost"`
	CMC             *float64        `json:"cmc"`
	TypeLine        *string         `json:"type_line"`
	OracleText      *string         `json:"oracle_text"`
	Colors          []string        `json:"colors"`
	ColorIdentity   []string        `json:"color_identity"`
	SetCode         *string         `json:"set_code"`
	SetName         *string         `json:"set_name"`
	CollectorNumber *string         `json:"collector_number"`
	Rarity          *string         `json:"rarity"`
	Power           *string         `json:"power"`
	Toughness       *string         `json:"toughness"`
	Loyalty         *string         `json:"loyalty"`
	Keywords        []string        `json:"keywords"`
	Prices          json.RawMessage `json:"prices"`
	ImageURIs       json.RawMessage `json:"image_uris"`
	CardFaces       json.RawMessage `json:"card_faces"`
	Legalities      json.RawMessage `json:"legalities"`
	ReleasedAt      *Date           `json:"released_at"`
	RawJSON         json.RawMessage `json:"raw_json"`
	CreatedAt       *time.Time      `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at"`
}

// FromScryfallJSON projects an upstream card record into a Card. The id
// must be a UUID and the name must be present; every other field is
// extracted leniently, with malformed values dropped rather than failing
// the record.
func FromScryfallJSON(raw json.RawMessage) (*Card, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding card record: %w", err)
	}

	var card = &Card{RawJSON: raw}

	var idText, ok = stringField(fields, "id")
	if !ok {
		return nil, fmt.Errorf("missing or invalid %q field", "id")
	}
	id, err := uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("missing or invalid %q field", "id")
	}
	card.ID = id.String()

	if s, ok := stringField(fields, "oracle_id"); ok {
		if oracleID, err := uuid.Parse(s); err == nil {
			var v = oracleID.String()
			card.OracleID = &v
		}
	}

	if card.Name, ok = stringField(fields, "name"); !ok {
		return nil, fmt.Errorf("missing %q field", "name")
	}

	card.ManaCost = optString(fields, "mana_cost")
	card.CMC = optFloat(fields, "cmc")
	card.TypeLine = optString(fields, "type_line")
	card.OracleText = optString(fields, "oracle_text")
	card.Colors = optStrings(fields, "colors")
	card.ColorIdentity = optStrings(fields, "color_identity")
	card.SetCode = optString(fields, "set")
	card.SetName = optString(fields, "set_name")
	card.CollectorNumber = optString(fields, "collector_number")
	card.Rarity = optString(fields, "rarity")
	card.Power = optString(fields, "power")
	card.Toughness = optString(fields, "toughness")
	card.Loyalty = optString(fields, "loyalty")
	card.Keywords = optStrings(fields, "keywords")
	card.Prices = fields["prices"]
	card.ImageURIs = fields["image_uris"]
	card.CardFaces = fields["card_faces"]
	card.Legalities = fields["legalities"]

	if s, ok := stringField(fields, "released_at"); ok {
		if date, err := ParseDate(s); err == nil {
			card.ReleasedAt = &date
		}
	}

	return card, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func optString(fields map[string]json.RawMessage, key string) *string {
	if s, ok := stringField(fields, key); ok {
		return &s
	}
	return nil
}

func optFloat(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

// optStrings keeps string elements and drops anything else, rather than
// rejecting the whole array.
func optStrings(fields map[string]json.RawMessage, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	var out = make([]string, 0, len(elems))
	for _, elem := range elems {
		var s string
		if err := json.Unmarshal(elem, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

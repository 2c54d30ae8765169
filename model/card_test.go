package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

var boltJSON = json.RawMessage(`{
	"id": "550c74d4-1fcb-406a-b02a-639a760a4380",
	"oracle_id": "39ce6789-1c18-4d61-bbb9-e6c1e6e1e1c1",
	"name": "Lightning Bolt",
	"mana_cost": "{R}",
	"cmc": 1.0,
	"type_line": "Instant",
	"oracle_text": "Lightning Bolt deals 3 damage to any target.",
	"colors": ["R"],
	"color_identity": ["R"],
	"set": "lea",
	"set_name": "Limited Edition Alpha",
	"collector_number": "161",
	"rarity": "common",
	"keywords": [],
	"prices": {"usd": "450.00"},
	"released_at": "1993-08-05"
}`)

func TestFromScryfallJSON(t *testing.T) {
	card, err := FromScryfallJSON(boltJSON)
	require.NoError(t, err)

	require.Equal(t, "550c74d4-1fcb-406a-b02a-639a760a4380", card.ID)
	require.NotNil(t, card.OracleID)
	require.Equal(t, "39ce6789-1c18-4d61-bbb9-e6c1e6e1e1c1", *card.OracleID)
	require.Equal(t, "Lightning Bolt", card.Name)
	require.Equal(t, "{R}", *card.ManaCost)
	require.Equal(t, 1.0, *card.CMC)
	require.Equal(t, "Instant", *card.TypeLine)
	require.Equal(t, []string{"R"}, card.Colors)
	require.Equal(t, []string{"R"}, card.ColorIdentity)
	require.Equal(t, "lea", *card.SetCode)
	require.Equal(t, "161", *card.CollectorNumber)
	require.Equal(t, "common", *card.Rarity)
	require.Empty(t, card.Keywords)
	require.JSONEq(t, `{"usd": "450.00"}`, string(card.Prices))
	require.Equal(t, "1993-08-05", card.ReleasedAt.String())
	require.Equal(t, []byte(boltJSON), []byte(card.RawJSON))
	require.Nil(t, card.CreatedAt)
	require.Nil(t, card.UpdatedAt)
}

func TestFromScryfallJSONRequiredFields(t *testing.T) {
	_, err := FromScryfallJSON(json.RawMessage(`{"name": "No ID"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), `"id"`)

	_, err = FromScryfallJSON(json.RawMessage(`{"id": "not-a-uuid", "name": "Bad ID"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), `"id"`)

	_, err = FromScryfallJSON(json.RawMessage(
		`{"id": "550c74d4-1fcb-406a-b02a-639a760a4380"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), `"name"`)
}

func TestFromScryfallJSONLenientFields(t *testing.T) {
	card, err := FromScryfallJSON(json.RawMessage(`{
		"id": "550c74d4-1fcb-406a-b02a-639a760a4380",
		"name": "Odd Shapes",
		"cmc": "three",
		"colors": ["R", 7, "G"],
		"oracle_id": "not-a-uuid",
		"released_at": "08/05/1993"
	}`))
	require.NoError(t, err)

	require.Nil(t, card.CMC)
	require.Equal(t, []string{"R", "G"}, card.Colors)
	require.Nil(t, card.OracleID)
	require.Nil(t, card.ReleasedAt)
}

func TestCardJSONShape(t *testing.T) {
	card, err := FromScryfallJSON(boltJSON)
	require.NoError(t, err)

	encoded, err := json.Marshal(card)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &fields))

	// The upstream "set" key is projected to set_code.
	require.Equal(t, `"lea"`, string(fields["set_code"]))
	require.Equal(t, `"1993-08-05"`, string(fields["released_at"]))
	// Absent optionals serialize as explicit nulls.
	require.Equal(t, "null", string(fields["power"]))
	require.Contains(t, fields, "raw_json")
}

func TestDateRoundTrip(t *testing.T) {
	date, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, "2024-02-29", date.String())

	encoded, err := json.Marshal(date)
	require.NoError(t, err)
	require.Equal(t, `"2024-02-29"`, string(encoded))

	var decoded Date
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, date, decoded)

	_, err = ParseDate("02/29/2024")
	require.Error(t, err)
}

package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	var cases = []struct {
		raw    string
		expect []string
	}{
		{"name:lightning c:red", []string{"name:lightning", "c:red"}},
		{`name:"Lightning Bolt"`, []string{`name:"Lightning Bolt"`}},
		{"(c:red or c:blue) t:creature", []string{"(", "c:red", "or", "c:blue", ")", "t:creature"}},
		{`o:"enters the battlefield" cmc:<=3`, []string{`o:"enters the battlefield"`, "cmc:<=3"}},
		{`o:"(tap)"`, []string{`o:"(tap)"`}},
		{"  c:red   t:goblin  ", []string{"c:red", "t:goblin"}},
		{"", nil},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expect, Tokenize(tc.raw), "raw: %q", tc.raw)
	}
}

func TestParseSimpleFilter(t *testing.T) {
	node, err := Parse("name:lightning")
	require.NoError(t, err)
	require.Equal(t, Filter{Field: "name", Op: OpContains, Value: "lightning"}, node)
}

func TestParseBareword(t *testing.T) {
	node, err := Parse("goblin")
	require.NoError(t, err)
	require.Equal(t, Filter{Field: "name", Op: OpContains, Value: "goblin"}, node)

	node, err = Parse(`"Lightning Bolt"`)
	require.NoError(t, err)
	require.Equal(t, Filter{Field: "name", Op: OpContains, Value: "Lightning Bolt"}, node)
}

func TestParseQuotedValue(t *testing.T) {
	node, err := Parse(`o:"enters the battlefield"`)
	require.NoError(t, err)
	require.Equal(t, Filter{Field: "oracle", Op: OpContains, Value: "enters the battlefield"}, node)
}

func TestParseAliases(t *testing.T) {
	var cases = []struct {
		raw   string
		field string
	}{
		{"c:red", "color"},
		{"id:wu", "color_identity"},
		{"identity:wu", "color_identity"},
		{"t:creature", "type"},
		{"type_line:creature", "type"},
		{"o:haste", "oracle"},
		{"oracle_text:haste", "oracle"},
		{"s:neo", "set"},
		{"r:rare", "rarity"},
		{"pow:2", "power"},
		{"tou:3", "toughness"},
		{"loy:4", "loyalty"},
		{"mana:3", "cmc"},
		{"NAME:fog", "name"},
	}
	for _, tc := range cases {
		node, err := Parse(tc.raw)
		require.NoError(t, err, "raw: %q", tc.raw)
		require.Equal(t, tc.field, node.(Filter).Field, "raw: %q", tc.raw)
	}
}

func TestParseImplicitAnd(t *testing.T) {
	node, err := Parse("c:red t:creature")
	require.NoError(t, err)
	require.Equal(t, And{Children: []Node{
		Filter{Field: "color", Op: OpContains, Value: "red"},
		Filter{Field: "type", Op: OpContains, Value: "creature"},
	}}, node)

	// An explicit "and" keyword parses identically.
	explicit, err := Parse("c:red and t:creature")
	require.NoError(t, err)
	require.Equal(t, node, explicit)
}

func TestParseOrFlattens(t *testing.T) {
	node, err := Parse("c:red or c:blue or c:green")
	require.NoError(t, err)
	require.Equal(t, Or{Children: []Node{
		Filter{Field: "color", Op: OpContains, Value: "red"},
		Filter{Field: "color", Op: OpContains, Value: "blue"},
		Filter{Field: "color", Op: OpContains, Value: "green"},
	}}, node)
}

func TestParsePrecedence(t *testing.T) {
	// AND binds tighter than OR.
	node, err := Parse("t:creature c:red or c:blue")
	require.NoError(t, err)
	require.Equal(t, Or{Children: []Node{
		And{Children: []Node{
			Filter{Field: "type", Op: OpContains, Value: "creature"},
			Filter{Field: "color", Op: OpContains, Value: "red"},
		}},
		Filter{Field: "color", Op: OpContains, Value: "blue"},
	}}, node)
}

func TestParseParens(t *testing.T) {
	node, err := Parse("(c:red or c:blue) t:creature")
	require.NoError(t, err)
	require.Equal(t, And{Children: []Node{
		Or{Children: []Node{
			Filter{Field: "color", Op: OpContains, Value: "red"},
			Filter{Field: "color", Op: OpContains, Value: "blue"},
		}},
		Filter{Field: "type", Op: OpContains, Value: "creature"},
	}}, node)
}

func TestParseNot(t *testing.T) {
	node, err := Parse("not c:red")
	require.NoError(t, err)
	require.Equal(t, Not{Child: Filter{Field: "color", Op: OpContains, Value: "red"}}, node)

	node, err = Parse("- t:land")
	require.NoError(t, err)
	require.Equal(t, Not{Child: Filter{Field: "type", Op: OpContains, Value: "land"}}, node)

	node, err = Parse("not (c:red or c:blue)")
	require.NoError(t, err)
	require.Equal(t, Not{Child: Or{Children: []Node{
		Filter{Field: "color", Op: OpContains, Value: "red"},
		Filter{Field: "color", Op: OpContains, Value: "blue"},
	}}}, node)
}

func TestParseOperators(t *testing.T) {
	var cases = []struct {
		raw   string
		op    Op
		value string
	}{
		{"cmc:>=3", OpGreaterOrEqual, "3"},
		{"cmc:<=3", OpLessOrEqual, "3"},
		{"cmc:>2", OpGreater, "2"},
		{"cmc:<5", OpLess, "5"},
		{"cmc:!=4", OpNotEqual, "4"},
		{"name:=Fog", OpEqual, "Fog"},
		{"o:/draw . cards?/", OpRegex, "draw . cards?"},
		{"name:lightning", OpContains, "lightning"},
		// A lone slash pair too short for a regex stays a contains match.
		{"o://", OpContains, "//"},
	}
	for _, tc := range cases {
		node, err := Parse(tc.raw)
		require.NoError(t, err, "raw: %q", tc.raw)
		var filter = node.(Filter)
		require.Equal(t, tc.op, filter.Op, "raw: %q", tc.raw)
		require.Equal(t, tc.value, filter.Value, "raw: %q", tc.raw)
	}
}

func TestParseValueWithColon(t *testing.T) {
	// Only the first colon separates field from value.
	node, err := Parse("o:/^{T}:/")
	require.NoError(t, err)
	require.Equal(t, Filter{Field: "oracle", Op: OpRegex, Value: "^{T}:"}, node)
}

func TestParseEmptyQuery(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
	_, err = Parse("   ")
	require.Error(t, err)
}

func TestParseDanglingOperator(t *testing.T) {
	_, err := Parse("c:red or")
	require.Error(t, err)
	_, err = Parse("not")
	require.Error(t, err)
}

func TestParseMissingCloseParen(t *testing.T) {
	// The parser itself tolerates a missing close; the validator's
	// balance check rejects it before parsing in the planning path.
	node, err := Parse("(c:red or c:blue")
	require.NoError(t, err)
	require.IsType(t, Or{}, node)
}

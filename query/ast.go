// Package query implements the card search language: a tokenizer and
// recursive-descent parser producing a boolean AST, a validator that bounds
// query complexity, and a translator from AST to parameterized SQL.
package query

import "strings"

// Op is a filter comparison operator.
type Op string

const (
	OpEqual          Op = "="
	OpNotEqual       Op = "!="
	OpGreater        Op = ">"
	OpLess           Op = "<"
	OpGreaterOrEqual Op = ">="
	OpLessOrEqual    Op = "<="
	OpContains       Op = ":"
	OpRegex          Op = "~"
)

// Node is a node of the parsed query AST.
type Node interface {
	isNode()
}

// And matches cards satisfying every child.
type And struct {
	Children []Node
}

// Or matches cards satisfying at least one child.
type Or struct {
	Children []Node
}

// Not inverts its child.
type Not struct {
	Child Node
}

// Filter is a leaf comparison of one card field against a value.
type Filter struct {
	Field string
	Op    Op
	Value string
}

func (And) isNode()    {}
func (Or) isNode()     {}
func (Not) isNode()    {}
func (Filter) isNode() {}

// fieldAliases maps accepted aliases to canonical field names.
var fieldAliases = map[string]string{
	"c":           "color",
	"id":          "color_identity",
	"identity":    "color_identity",
	"t":           "type",
	"type_line":   "type",
	"o":           "oracle",
	"oracle_text": "oracle",
	"s":           "set",
	"r":           "rarity",
	"pow":         "power",
	"tou":         "toughness",
	"loy":         "loyalty",
	"mana":        "cmc",
}

// canonicalField lower-cases a field name and resolves aliases.
func canonicalField(field string) string {
	var f = strings.ToLower(field)
	if canonical, ok := fieldAliases[f]; ok {
		return canonical
	}
	return f
}

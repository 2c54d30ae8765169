package query

import (
	"fmt"
	"strings"
	"unicode"
)

// Limits bounds accepted query complexity.
type Limits struct {
	MaxQueryLength  int
	MaxNestingDepth int
	MaxOrClauses    int
	MaxResults      int
}

// DefaultLimits returns the stock production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxQueryLength:  1000,
		MaxNestingDepth: 5,
		MaxOrClauses:    10,
		MaxResults:      1000,
	}
}

// validFields is the closed set of canonical filter fields.
var validFields = map[string]struct{}{
	"name":           {},
	"type":           {},
	"oracle":         {},
	"color":          {},
	"color_identity": {},
	"cmc":            {},
	"power":          {},
	"toughness":      {},
	"loyalty":        {},
	"set":            {},
	"rarity":         {},
}

// numericFields admit the ordering operators >, <, >=, <=.
var numericFields = map[string]struct{}{
	"cmc":       {},
	"power":     {},
	"toughness": {},
	"loyalty":   {},
}

const validColors = "wubrgc"

// Validator rejects queries exceeding the configured limits or using
// fields and operators outside the supported language.
type Validator struct {
	limits Limits
}

func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

func (v *Validator) Limits() Limits { return v.limits }

// ValidateString performs the cheap pre-parse checks: raw length and
// balanced parentheses.
func (v *Validator) ValidateString(raw string) error {
	if len(raw) > v.limits.MaxQueryLength {
		return &ValidationError{Err: fmt.Errorf("query too long: maximum %d characters allowed, got %d",
			v.limits.MaxQueryLength, len(raw))}
	}

	var depth int
	for _, ch := range raw {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return &ParseError{Err: fmt.Errorf("unbalanced parentheses: too many closing parentheses")}
			}
		}
	}
	if depth != 0 {
		return &ParseError{Err: fmt.Errorf("unbalanced parentheses: %d unclosed parentheses", depth)}
	}
	return nil
}

// ValidateAST checks nesting depth, OR-clause count, and every filter leaf.
func (v *Validator) ValidateAST(node Node) error {
	if d := depth(node); d > v.limits.MaxNestingDepth {
		return &ValidationError{Err: fmt.Errorf("query too complex: maximum nesting depth is %d, got %d",
			v.limits.MaxNestingDepth, d)}
	}
	if n := countOr(node); n > v.limits.MaxOrClauses {
		return &ValidationError{Err: fmt.Errorf("query too complex: maximum %d OR clauses allowed, got %d",
			v.limits.MaxOrClauses, n)}
	}
	if err := v.validateNode(node); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func (v *Validator) validateNode(node Node) error {
	switch n := node.(type) {
	case And:
		for _, child := range n.Children {
			if err := v.validateNode(child); err != nil {
				return err
			}
		}
	case Or:
		for _, child := range n.Children {
			if err := v.validateNode(child); err != nil {
				return err
			}
		}
	case Not:
		return v.validateNode(n.Child)
	case Filter:
		return v.validateFilter(n)
	}
	return nil
}

func (v *Validator) validateFilter(f Filter) error {
	var field = strings.ToLower(f.Field)

	if _, ok := validFields[field]; !ok {
		var allowed = []string{
			"name", "type", "oracle", "color", "color_identity",
			"cmc", "power", "toughness", "loyalty", "set", "rarity",
		}
		return fmt.Errorf("invalid field name %q: expected one of [%s]",
			f.Field, strings.Join(allowed, ", "))
	}

	if _, numeric := numericFields[field]; !numeric {
		switch f.Op {
		case OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual:
			return fmt.Errorf("operator %q not valid for text field %q: numeric operators (>, <, >=, <=) only work with cmc, power, toughness, loyalty",
				f.Op, f.Field)
		}
	}

	if field == "color" || field == "color_identity" {
		for _, ch := range f.Value {
			if !strings.ContainsRune(validColors, unicode.ToLower(ch)) {
				return fmt.Errorf("invalid color code %q in value %q: valid colors are %s",
					ch, f.Value, validColors)
			}
		}
	}
	return nil
}

// depth counts a Filter leaf as 1 and each internal node as 1 + its
// deepest child.
func depth(node Node) int {
	switch n := node.(type) {
	case And:
		return 1 + maxChildDepth(n.Children)
	case Or:
		return 1 + maxChildDepth(n.Children)
	case Not:
		return 1 + depth(n.Child)
	default:
		return 1
	}
}

func maxChildDepth(children []Node) int {
	var max int
	for _, child := range children {
		if d := depth(child); d > max {
			max = d
		}
	}
	return max
}

// countOr totals Or nodes across the whole tree, each counting once.
func countOr(node Node) int {
	switch n := node.(type) {
	case Or:
		var total = 1
		for _, child := range n.Children {
			total += countOr(child)
		}
		return total
	case And:
		var total int
		for _, child := range n.Children {
			total += countOr(child)
		}
		return total
	case Not:
		return countOr(n.Child)
	default:
		return 0
	}
}

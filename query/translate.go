package query

import (
	"fmt"
	"strings"
)

// Dialect holds the per-engine SQL fragments the translator composes.
// Placeholder follows the generator convention of taking a zero-based
// parameter index.
type Dialect struct {
	// Name identifies the dialect in logs and snapshots.
	Name string
	// Placeholder renders the parameter at the given zero-based index.
	Placeholder func(int) string
	// TextContains renders a case-insensitive full-text-style match.
	TextContains func(column, placeholder string) string
	// TextEquals renders case-insensitive equality.
	TextEquals func(column, placeholder string) string
	// TextRegex renders a regular-expression match.
	TextRegex func(column, placeholder string) string
	// TextFallback renders the substring match used for operators with no
	// better text interpretation.
	TextFallback func(column, placeholder string) string
	// NumericColumn renders a column coerced for numeric comparison.
	NumericColumn func(column string) string
	// NumericParam renders a placeholder coerced for numeric comparison.
	NumericParam func(placeholder string) string
	// ColorMember renders a membership test of one color code within a
	// multi-valued color column.
	ColorMember func(column, placeholder string) string
	// NoColor renders the predicate matching cards with no colors at all.
	NoColor func(column string) string
}

// PostgresParameterPlaceholder returns $N style parameters where N is the
// parameter number starting at 1.
func PostgresParameterPlaceholder(parameterIndex int) string {
	return fmt.Sprintf("$%d", parameterIndex+1)
}

// QuestionMarkPlaceholder returns the constant string "?".
func QuestionMarkPlaceholder(_ int) string {
	return "?"
}

// PostgresDialect returns the Dialect of the Postgres engine. Colors are
// stored as text arrays and regex uses the native ~ operator.
func PostgresDialect() Dialect {
	return Dialect{
		Name:        "postgres",
		Placeholder: PostgresParameterPlaceholder,
		TextContains: func(col, ph string) string {
			return fmt.Sprintf("to_tsvector('english', %s) @@ plainto_tsquery('english', %s)", col, ph)
		},
		TextEquals: func(col, ph string) string {
			return fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, ph)
		},
		TextRegex: func(col, ph string) string {
			return fmt.Sprintf("%s ~ %s", col, ph)
		},
		TextFallback: func(col, ph string) string {
			return fmt.Sprintf("%s ILIKE '%%' || %s || '%%'", col, ph)
		},
		NumericColumn: func(col string) string {
			if col == "cmc" {
				return col
			}
			return col + "::numeric"
		},
		NumericParam: func(ph string) string {
			return ph + "::numeric"
		},
		ColorMember: func(col, ph string) string {
			return fmt.Sprintf("%s = ANY(%s)", ph, col)
		},
		NoColor: func(col string) string {
			return fmt.Sprintf("(%s IS NULL OR %s = '{}')", col, col)
		},
	}
}

// SQLiteDialect returns the Dialect of the SQLite engine. Colors are
// stored as JSON arrays and regex relies on a registered REGEXP function.
func SQLiteDialect() Dialect {
	return Dialect{
		Name:        "sqlite",
		Placeholder: QuestionMarkPlaceholder,
		TextContains: func(col, ph string) string {
			return fmt.Sprintf("LOWER(%s) LIKE '%%' || LOWER(%s) || '%%'", col, ph)
		},
		TextEquals: func(col, ph string) string {
			return fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, ph)
		},
		TextRegex: func(col, ph string) string {
			return fmt.Sprintf("%s REGEXP %s", col, ph)
		},
		TextFallback: func(col, ph string) string {
			return fmt.Sprintf("LOWER(%s) LIKE '%%' || LOWER(%s) || '%%'", col, ph)
		},
		NumericColumn: func(col string) string {
			if col == "cmc" {
				return col
			}
			return fmt.Sprintf("CAST(%s AS REAL)", col)
		},
		NumericParam: func(ph string) string {
			return fmt.Sprintf("CAST(%s AS REAL)", ph)
		},
		ColorMember: func(col, ph string) string {
			return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value = %s)", col, ph)
		},
		NoColor: func(col string) string {
			return fmt.Sprintf("(%s IS NULL OR %s = '[]' OR %s = '')", col, col, col)
		},
	}
}

// Translator renders an AST into parameterized SQL for one dialect.
type Translator struct {
	Dialect Dialect
}

// Predicate renders the WHERE predicate of a node together with its
// ordered parameter list.
func (t *Translator) Predicate(node Node) (string, []interface{}, error) {
	var params []interface{}
	clause, err := t.render(node, &params)
	if err != nil {
		return "", nil, err
	}
	return clause, params, nil
}

// SearchSQL renders the unpaginated search form, capped at limit rows.
func (t *Translator) SearchSQL(node Node, limit int) (string, []interface{}, error) {
	pred, params, err := t.Predicate(node)
	if err != nil {
		return "", nil, err
	}
	var sql = fmt.Sprintf("SELECT * FROM cards WHERE %s ORDER BY name ASC, id ASC LIMIT %s",
		pred, t.Dialect.Placeholder(len(params)))
	params = append(params, limit)
	return sql, params, nil
}

// CountSQL renders the counting form of a search.
func (t *Translator) CountSQL(node Node) (string, []interface{}, error) {
	pred, params, err := t.Predicate(node)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM cards WHERE %s", pred), params, nil
}

// PageSQL renders the page-fetch form. Ordering is by name ascending with
// id as tie-break so page cuts are stable.
func (t *Translator) PageSQL(node Node, page, pageSize int) (string, []interface{}, error) {
	pred, params, err := t.Predicate(node)
	if err != nil {
		return "", nil, err
	}
	var limitPh = t.Dialect.Placeholder(len(params))
	var offsetPh = t.Dialect.Placeholder(len(params) + 1)
	var sql = fmt.Sprintf("SELECT * FROM cards WHERE %s ORDER BY name ASC, id ASC LIMIT %s OFFSET %s",
		pred, limitPh, offsetPh)
	params = append(params, pageSize, (page-1)*pageSize)
	return sql, params, nil
}

func (t *Translator) render(node Node, params *[]interface{}) (string, error) {
	switch n := node.(type) {
	case And:
		var clauses []string
		for _, child := range n.Children {
			clause, err := t.render(child, params)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		}
		return "(" + strings.Join(clauses, " AND ") + ")", nil
	case Or:
		var clauses []string
		for _, child := range n.Children {
			clause, err := t.render(child, params)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		}
		return "(" + strings.Join(clauses, " OR ") + ")", nil
	case Not:
		clause, err := t.render(n.Child, params)
		if err != nil {
			return "", err
		}
		return "NOT (" + clause + ")", nil
	case Filter:
		return t.renderFilter(n, params), nil
	default:
		return "", fmt.Errorf("unknown query node %T", node)
	}
}

func (t *Translator) renderFilter(f Filter, params *[]interface{}) string {
	switch canonicalField(f.Field) {
	case "name":
		return t.textClause("name", f, params)
	case "oracle":
		return t.textClause("oracle_text", f, params)
	case "type":
		return t.textClause("type_line", f, params)
	case "color":
		return t.colorClause("colors", f, params)
	case "color_identity":
		return t.colorClause("color_identity", f, params)
	case "set":
		var ph = t.push(params, strings.ToLower(f.Value))
		return fmt.Sprintf("set_code = %s", ph)
	case "rarity":
		var ph = t.push(params, strings.ToLower(f.Value))
		return fmt.Sprintf("rarity = %s", ph)
	case "cmc":
		return t.numericClause("cmc", f, params)
	case "power":
		return t.numericClause("power", f, params)
	case "toughness":
		return t.numericClause("toughness", f, params)
	case "loyalty":
		return t.numericClause("loyalty", f, params)
	default:
		// Unknown fields search names; the validator rejects them first.
		return t.textClause("name", f, params)
	}
}

// push appends a parameter and returns its rendered placeholder.
func (t *Translator) push(params *[]interface{}, value interface{}) string {
	var ph = t.Dialect.Placeholder(len(*params))
	*params = append(*params, value)
	return ph
}

func (t *Translator) textClause(col string, f Filter, params *[]interface{}) string {
	var ph = t.push(params, f.Value)
	switch f.Op {
	case OpEqual:
		return t.Dialect.TextEquals(col, ph)
	case OpContains:
		return t.Dialect.TextContains(col, ph)
	case OpRegex:
		return t.Dialect.TextRegex(col, ph)
	default:
		return t.Dialect.TextFallback(col, ph)
	}
}

func (t *Translator) numericClause(col string, f Filter, params *[]interface{}) string {
	var op string
	switch f.Op {
	case OpNotEqual:
		op = "!="
	case OpGreater:
		op = ">"
	case OpLess:
		op = "<"
	case OpGreaterOrEqual:
		op = ">="
	case OpLessOrEqual:
		op = "<="
	default:
		op = "="
	}
	var ph = t.push(params, f.Value)
	return fmt.Sprintf("%s %s %s", t.Dialect.NumericColumn(col), op, t.Dialect.NumericParam(ph))
}

// colorClause decodes the value into color codes and requires every listed
// color present (or, under !=, every listed color absent). The code C is
// the colorless predicate rather than a stored value, since color columns
// only ever hold W, U, B, R and G. An empty or all-invalid value matches
// only colorless cards.
func (t *Translator) colorClause(col string, f Filter, params *[]interface{}) string {
	var codes = decodeColors(f.Value)
	if len(codes) == 0 {
		return t.Dialect.NoColor(col)
	}

	var atoms []string
	for _, code := range codes {
		if code == "C" {
			atoms = append(atoms, t.Dialect.NoColor(col))
			continue
		}
		var ph = t.push(params, code)
		atoms = append(atoms, t.Dialect.ColorMember(col, ph))
	}

	if f.Op == OpNotEqual {
		return "NOT (" + strings.Join(atoms, " OR ") + ")"
	}
	if len(atoms) == 1 {
		return atoms[0]
	}
	return "(" + strings.Join(atoms, " AND ") + ")"
}

// decodeColors maps a value string to ordered uppercase color codes,
// skipping whitespace and anything outside wubrgc.
func decodeColors(value string) []string {
	var codes []string
	for _, ch := range strings.ToLower(value) {
		switch ch {
		case 'w':
			codes = append(codes, "W")
		case 'u':
			codes = append(codes, "U")
		case 'b':
			codes = append(codes, "B")
		case 'r':
			codes = append(codes, "R")
		case 'g':
			codes = append(codes, "G")
		case 'c':
			codes = append(codes, "C")
		}
	}
	return codes
}

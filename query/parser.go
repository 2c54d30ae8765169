package query

import (
	"errors"
	"strings"
)

var (
	errUnexpectedEnd  = errors.New("unexpected end of query")
	errExpectedFilter = errors.New("expected a filter term")
)

// Tokenize splits a raw query into tokens. Whitespace separates tokens
// except inside double quotes; parentheses are standalone tokens outside
// quotes; quote characters are preserved in the token they open or close.
func Tokenize(raw string) []string {
	var tokens []string
	var current strings.Builder
	var inQuotes bool

	for _, ch := range raw {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case ch == ' ' && !inQuotes:
			if current.Len() != 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		case (ch == '(' || ch == ')') && !inQuotes:
			if current.Len() != 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(ch))
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() != 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

type parser struct {
	tokens []string
	pos    int
}

// Parse builds the AST of a raw query.
//
// Grammar (OR binds weakest; AND is implicit juxtaposition):
//
//	expr   := or
//	or     := and ( 'or' and )*
//	and    := term ( ['and'] term )*
//	term   := '(' expr ')' | ('not'|'-') term | filter
//	filter := bareword | FIELD OP VALUE
func Parse(raw string) (Node, error) {
	var p = &parser{tokens: Tokenize(raw)}
	var node, err = p.parseOr()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return node, nil
}

func (p *parser) current() (string, bool) {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos], true
	}
	return "", false
}

func (p *parser) advance() { p.pos++ }

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for {
		tok, ok := p.current()
		if !ok || !strings.EqualFold(tok, "or") {
			break
		}
		p.advance()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if or, isOr := left.(Or); isOr {
			or.Children = append(or.Children, right)
			left = or
		} else {
			left = Or{Children: []Node{left, right}}
		}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	var terms []Node

	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms = append(terms, term)

	for {
		tok, ok := p.current()
		if !ok || tok == ")" || strings.EqualFold(tok, "or") {
			break
		}
		if strings.EqualFold(tok, "and") {
			p.advance()
		}
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}

	if len(terms) == 1 {
		return terms[0], nil
	}
	return And{Children: terms}, nil
}

func (p *parser) parseTerm() (Node, error) {
	tok, ok := p.current()
	if !ok {
		return nil, errUnexpectedEnd
	}

	if tok == "(" {
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok, ok := p.current(); ok && tok == ")" {
			p.advance()
		}
		return expr, nil
	}

	if strings.EqualFold(tok, "not") || tok == "-" {
		p.advance()
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return Not{Child: term}, nil
	}

	return p.parseFilter()
}

func (p *parser) parseFilter() (Node, error) {
	tok, ok := p.current()
	if !ok {
		return nil, errExpectedFilter
	}
	p.advance()

	field, rest, found := strings.Cut(tok, ":")
	if !found {
		// A bareword is a name-contains search.
		return Filter{
			Field: "name",
			Op:    OpContains,
			Value: strings.Trim(tok, `"`),
		}, nil
	}

	op, value := sniffOperator(rest)
	return Filter{
		Field: canonicalField(field),
		Op:    op,
		Value: strings.Trim(value, `"`),
	}, nil
}

// sniffOperator inspects the prefix of the text after "field:" to select
// the comparison operator. Two-character operators are checked before
// their one-character prefixes; /…/ selects regex; anything else is a
// contains match over the whole remainder.
func sniffOperator(s string) (Op, string) {
	switch {
	case strings.HasPrefix(s, ">="):
		return OpGreaterOrEqual, s[2:]
	case strings.HasPrefix(s, "<="):
		return OpLessOrEqual, s[2:]
	case strings.HasPrefix(s, ">"):
		return OpGreater, s[1:]
	case strings.HasPrefix(s, "<"):
		return OpLess, s[1:]
	case strings.HasPrefix(s, "!="):
		return OpNotEqual, s[2:]
	case strings.HasPrefix(s, "="):
		return OpEqual, s[1:]
	case len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/"):
		return OpRegex, s[1 : len(s)-1]
	default:
		return OpContains, s
	}
}

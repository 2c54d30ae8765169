package query

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultPlanCacheSize bounds the number of parsed queries retained.
const defaultPlanCacheSize = 1024

// Planner parses and validates query text, memoizing successful plans by
// their raw text so repeated searches skip the parser entirely.
type Planner struct {
	validator *Validator
	plans     *lru.Cache[string, Node]
}

// NewPlanner returns a Planner over the given validator. A non-positive
// cacheSize selects the default.
func NewPlanner(validator *Validator, cacheSize int) *Planner {
	if cacheSize <= 0 {
		cacheSize = defaultPlanCacheSize
	}
	var plans, err = lru.New[string, Node](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Planner{validator: validator, plans: plans}
}

// Plan returns the validated AST of a raw query, from cache when the same
// text has planned successfully before. Failed plans are not cached.
func (p *Planner) Plan(raw string) (Node, error) {
	if node, ok := p.plans.Get(raw); ok {
		return node, nil
	}
	if err := p.validator.ValidateString(raw); err != nil {
		return nil, err
	}
	node, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err = p.validator.ValidateAST(node); err != nil {
		return nil, err
	}
	p.plans.Add(raw, node)
	return node, nil
}

// Limits exposes the validator's limits for page-size clamping by callers.
func (p *Planner) Limits() Limits {
	return p.validator.Limits()
}

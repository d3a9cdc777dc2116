// Package matcher evaluates watch criteria against a listing's attribute
// tree.
//
// Comparison rules:
//
//	range         numeric actual >= min and/or <= max (inclusive)
//	exact_or_set  numeric equality when both sides are numbers, otherwise
//	              slug-normalized equality; a sequence actual matches when
//	              any of its items equals any expected value
//	word_search   whole-token or prefix ("talo*") match over the field's text
//
// Rules combine with AND (all must match) or OR (at least one). A rule that
// failed to parse never matches but does not stop evaluation.
package matcher

import (
	"fmt"
	"slices"
	"strings"

	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/slug"
)

// Logic combines per-rule verdicts.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ParseLogic converts a raw string to a Logic; empty defaults to AND.
func ParseLogic(s string) (Logic, error) {
	switch Logic(strings.ToUpper(strings.TrimSpace(s))) {
	case "", LogicAnd:
		return LogicAnd, nil
	case LogicOr:
		return LogicOr, nil
	}
	return "", fmt.Errorf("unknown logic %q", s)
}

// RuleResult is the verdict for one rule.
type RuleResult struct {
	Rule    Rule
	Matched bool
	Actual  model.Value
}

// Result is the verdict for one listing.
type Result struct {
	Matched      bool
	PerCriterion []RuleResult
}

// Matcher evaluates rules. The zero value is not usable; call New.
type Matcher struct {
	leaf LeafFunc
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLeaf replaces the file descriptor heuristic.
func WithLeaf(leaf LeafFunc) Option {
	return func(m *Matcher) {
		if leaf != nil {
			m.leaf = leaf
		}
	}
}

// New returns a Matcher using DefaultLeaf unless overridden.
func New(opts ...Option) *Matcher {
	m := &Matcher{leaf: DefaultLeaf}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Leaf returns the descriptor predicate in use.
func (m *Matcher) Leaf() LeafFunc { return m.leaf }

// Evaluate checks attrs against rules. Zero rules never match; callers
// are expected to short-circuit such watches before getting here.
func (m *Matcher) Evaluate(attrs model.Value, rules []Rule, logic Logic) Result {
	return m.evaluate(attrs, "", rules, logic)
}

// EvaluateListing is Evaluate with the listing title made available to
// word searches over WordSearchField.
func (m *Matcher) EvaluateListing(l model.Listing, rules []Rule, logic Logic) Result {
	return m.evaluate(l.Attributes, l.Title, rules, logic)
}

func (m *Matcher) evaluate(attrs model.Value, title string, rules []Rule, logic Logic) Result {
	res := Result{PerCriterion: make([]RuleResult, 0, len(rules))}
	matched := 0
	for _, r := range rules {
		rr := m.evaluateRule(attrs, title, r)
		if rr.Matched {
			matched++
		}
		res.PerCriterion = append(res.PerCriterion, rr)
	}
	if len(rules) == 0 {
		return res
	}
	if logic == LogicOr {
		res.Matched = matched >= 1
	} else {
		res.Matched = matched == len(rules)
	}
	return res
}

func (m *Matcher) evaluateRule(attrs model.Value, title string, r Rule) RuleResult {
	rr := RuleResult{Rule: r}
	if r.Err != nil {
		return rr
	}
	if r.Kind == model.KindWordSearch && r.Field == model.WordSearchField {
		rr.Actual = attrs
		rr.Matched = matchWords(append(texts(attrs, m.leaf, nil), title), r.Terms)
		return rr
	}

	rr.Actual = Resolve(attrs, r.Field, m.leaf)
	if rr.Actual.IsAbsent() {
		return rr
	}
	switch r.Kind {
	case model.KindRange:
		rr.Matched = matchRange(rr.Actual, r.Min, r.Max)
	case model.KindExactOrSet:
		rr.Matched = m.matchExact(rr.Actual, r)
	case model.KindWordSearch:
		rr.Matched = matchWords(texts(rr.Actual, m.leaf, nil), r.Terms)
	}
	return rr
}

func matchRange(actual model.Value, minBound, maxBound *float64) bool {
	if minBound == nil && maxBound == nil {
		return false
	}
	n, ok := actual.Float()
	if !ok {
		return false
	}
	if minBound != nil && n < *minBound {
		return false
	}
	if maxBound != nil && n > *maxBound {
		return false
	}
	return true
}

func (m *Matcher) matchExact(actual model.Value, r Rule) bool {
	expected := r.AnyOf
	if len(expected) == 0 {
		expected = []string{r.Value}
	}
	want := make(map[string]struct{}, len(expected))
	var wantNums []float64
	for _, e := range expected {
		if f, ok := model.ParseNumber(e); ok {
			wantNums = append(wantNums, f)
			continue
		}
		if s := slug.String(e); s != "" {
			want[s] = struct{}{}
		}
	}

	var candidates []model.Value
	switch actual.Kind() {
	case model.KindSequence:
		candidates = actual.Items()
	case model.KindMapping:
		return false
	default:
		candidates = []model.Value{actual}
	}
	for _, c := range candidates {
		if !c.IsScalar() {
			continue
		}
		// Numbers compare by value so "1.5" never equals 15.
		if f, ok := c.Float(); ok {
			if slices.Contains(wantNums, f) {
				return true
			}
			continue
		}
		s := slug.Normalize(c)
		if s == "" {
			continue
		}
		if _, ok := want[s]; ok {
			return true
		}
	}
	return false
}

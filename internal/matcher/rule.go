package matcher

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/slug"
)

// Wildcard marks a word search term as a prefix.
const Wildcard = "*"

// Rule is a criterion in the flattened form the matcher evaluates.
type Rule struct {
	Field string
	Kind  model.CriterionKind

	// range
	Min *float64
	Max *float64

	// exact_or_set: Value when a single value was given, AnyOf otherwise.
	Value string
	AnyOf []string

	// word_search
	Terms []string

	// Err is set for a malformed criterion; such a rule never matches.
	Err error
}

// Expected returns the flattened field-path to expected-value pairs this
// rule stands for, e.g. {"hinta_min": 40000, "hinta_max": 100000}.
func (r Rule) Expected() map[string]any {
	out := map[string]any{}
	switch r.Kind {
	case model.KindRange:
		if r.Min != nil {
			out[r.Field+"_min"] = *r.Min
		}
		if r.Max != nil {
			out[r.Field+"_max"] = *r.Max
		}
	case model.KindExactOrSet:
		if len(r.AnyOf) > 0 {
			out[r.Field] = r.AnyOf
		} else {
			out[r.Field] = r.Value
		}
	case model.KindWordSearch:
		out[r.Field] = strings.Join(r.Terms, " ")
	}
	return out
}

// Flatten converts stored criteria into rules. Every criterion yields
// exactly one rule, in order; malformed ones carry Err and the joined
// errors are returned alongside so callers can decide how strict to be.
func Flatten(criteria []model.Criterion) ([]Rule, error) {
	rules := make([]Rule, 0, len(criteria))
	var errs []error
	for i, c := range criteria {
		r := flattenOne(i, c)
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
		rules = append(rules, r)
	}
	return rules, errors.Join(errs...)
}

// Validate reports every malformed criterion.
func Validate(criteria []model.Criterion) error {
	_, err := Flatten(criteria)
	return err
}

func flattenOne(i int, c model.Criterion) Rule {
	field := strings.TrimSpace(c.FieldPath)
	r := Rule{Field: field, Kind: c.Kind}
	invalid := func(reason string) Rule {
		r.Err = &model.CriteriaError{Index: i, Field: field, Reason: reason}
		return r
	}
	if field == "" {
		return invalid("missing field path")
	}

	values := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return invalid("missing values")
	}

	switch c.Kind {
	case model.KindRange:
		return flattenRange(r, values, invalid)
	case model.KindExactOrSet:
		for _, v := range values {
			if slug.String(v) == "" {
				return invalid("value " + strconv.Quote(v) + " has no comparable characters")
			}
		}
		if len(values) == 1 {
			r.Value = values[0]
		} else {
			r.AnyOf = values
		}
		return r
	case model.KindWordSearch:
		for _, v := range values {
			for _, term := range strings.Fields(v) {
				if slug.String(strings.TrimSuffix(term, Wildcard)) == "" {
					continue
				}
				r.Terms = append(r.Terms, term)
			}
		}
		if len(r.Terms) == 0 {
			return invalid("no searchable terms")
		}
		return r
	}
	return invalid("unknown kind " + strconv.Quote(string(c.Kind)))
}

type boundSide int

const (
	sideBare boundSide = iota
	sideMin
	sideMax
)

func flattenRange(r Rule, values []string, invalid func(string) Rule) Rule {
	if len(values) > 2 {
		return invalid("range takes one or two bounds")
	}
	nums := make([]float64, 0, 2)
	sides := make([]boundSide, 0, 2)
	for _, v := range values {
		side, num, ok := parseBound(v)
		if !ok {
			return invalid("bound " + strconv.Quote(v) + " is not numeric")
		}
		nums = append(nums, num)
		sides = append(sides, side)
	}

	if len(nums) == 2 {
		sort.Float64s(nums)
		r.Min, r.Max = &nums[0], &nums[1]
		return r
	}
	if sides[0] == sideMax {
		r.Max = &nums[0]
	} else {
		r.Min = &nums[0]
	}
	return r
}

// parseBound reads "min:N", "max:N", ">N", ">=N", "<N", "<=N" or a bare "N".
func parseBound(v string) (boundSide, float64, bool) {
	s := strings.ToLower(strings.TrimSpace(v))
	side := sideBare
	switch {
	case strings.HasPrefix(s, "min:"):
		side, s = sideMin, s[len("min:"):]
	case strings.HasPrefix(s, "max:"):
		side, s = sideMax, s[len("max:"):]
	case strings.HasPrefix(s, ">="):
		side, s = sideMin, s[2:]
	case strings.HasPrefix(s, "<="):
		side, s = sideMax, s[2:]
	case strings.HasPrefix(s, ">"):
		side, s = sideMin, s[1:]
	case strings.HasPrefix(s, "<"):
		side, s = sideMax, s[1:]
	}
	n, ok := model.ParseNumber(s)
	return side, n, ok
}

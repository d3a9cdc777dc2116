package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/watch-service/internal/matcher"
	"jobmate/watch-service/internal/model"
)

func attrs(t *testing.T, m map[string]any) model.Value {
	t.Helper()
	return model.FromAny(m)
}

func rules(t *testing.T, criteria ...model.Criterion) []matcher.Rule {
	t.Helper()
	rs, err := matcher.Flatten(criteria)
	require.NoError(t, err)
	return rs
}

func TestEvaluate_RangeMinMax(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "hinta", Kind: model.KindRange, Values: []string{"40000", "100000"}})

	assert.True(t, m.Evaluate(attrs(t, map[string]any{"hinta": 50000}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"hinta": 300000}), rs, matcher.LogicAnd).Matched)
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"hinta": 40000}), rs, matcher.LogicAnd).Matched, "bounds are inclusive")
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"hinta": "100 000"}), rs, matcher.LogicAnd).Matched, "numeric strings count")
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"hinta": "kysy"}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{}), rs, matcher.LogicAnd).Matched)
}

func TestEvaluate_RangeSingleBound(t *testing.T) {
	m := matcher.New()
	a := attrs(t, map[string]any{"pinta_ala": 60})

	cases := []struct {
		value string
		want  bool
	}{
		{"50", true}, // bare single value is a minimum
		{"70", false},
		{"min:60", true},
		{"max:59", false},
		{"<=60", true},
		{"<50", false},
		{">=61", false},
		{">10", true},
	}
	for _, tc := range cases {
		rs := rules(t, model.Criterion{FieldPath: "pinta_ala", Kind: model.KindRange, Values: []string{tc.value}})
		assert.Equal(t, tc.want, m.Evaluate(a, rs, matcher.LogicAnd).Matched, "bound %q", tc.value)
	}
}

func TestEvaluate_OrSetWithNormalization(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "sijainti", Kind: model.KindExactOrSet, Values: []string{"Helsinki", "Espoo"}})

	assert.True(t, m.Evaluate(attrs(t, map[string]any{"sijainti": "Helsinki"}), rs, matcher.LogicAnd).Matched)
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"sijainti": "HELSINKI "}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"sijainti": "Tampere"}), rs, matcher.LogicAnd).Matched)

	alue := rules(t, model.Criterion{FieldPath: "alue", Kind: model.KindExactOrSet, Values: []string{"Etelä Suomi", "Lappi"}})
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"alue": "Etelä\u00a0Suomi"}), alue, matcher.LogicAnd).Matched, "non-breaking space")
}

func TestEvaluate_ExactNumbersCompareByValue(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "huoneet", Kind: model.KindExactOrSet, Values: []string{"1.5", "3"}})

	assert.True(t, m.Evaluate(attrs(t, map[string]any{"huoneet": 1.5}), rs, matcher.LogicAnd).Matched)
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"huoneet": "1,5"}), rs, matcher.LogicAnd).Matched)
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"huoneet": 3}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"huoneet": 15}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"huoneet": "15"}), rs, matcher.LogicAnd).Matched)
}

func TestEvaluate_ExactAgainstSequence(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "varusteet", Kind: model.KindExactOrSet, Values: []string{"Sauna", "Parveke"}})

	assert.True(t, m.Evaluate(attrs(t, map[string]any{"varusteet": []any{"hissi", "sauna"}}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"varusteet": []any{"hissi"}}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"varusteet": []any{}}), rs, matcher.LogicAnd).Matched)
}

func TestEvaluate_ExactDiacritics(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "kunta", Kind: model.KindExactOrSet, Values: []string{"Järvenpää"}})
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"kunta": "jarvenpaa"}), rs, matcher.LogicAnd).Matched)
}

func TestEvaluate_WordSearchWildcard(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "kuvaus", Kind: model.KindWordSearch, Values: []string{"talo*"}})

	for _, text := range []string{"Hieno talot rivissä", "Asunto talossa", "Talo!"} {
		assert.True(t, m.Evaluate(attrs(t, map[string]any{"kuvaus": text}), rs, matcher.LogicAnd).Matched, text)
	}
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"kuvaus": "ravintola"}), rs, matcher.LogicAnd).Matched)
}

func TestEvaluate_WordSearchWholeTokenAndAny(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "kuvaus", Kind: model.KindWordSearch, Values: []string{"sauna parveke"}})

	assert.True(t, m.Evaluate(attrs(t, map[string]any{"kuvaus": "Oma SAUNA"}), rs, matcher.LogicAnd).Matched)
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"kuvaus": "lasitettu parveke"}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"kuvaus": "saunallinen"}), rs, matcher.LogicAnd).Matched, "no wildcard means whole tokens")
	assert.True(t, m.Evaluate(attrs(t, map[string]any{"kuvaus": []any{"hissi", "sauna"}}), rs, matcher.LogicAnd).Matched)

	for _, text := range []string{"Parveke,sauna", "Hissi/sauna", "Kaunis koti.Sauna"} {
		assert.True(t, m.Evaluate(attrs(t, map[string]any{"kuvaus": text}), rs, matcher.LogicAnd).Matched, "punctuation separates tokens in %q", text)
	}
}

func TestEvaluate_WordSearchSentinelIncludesTitle(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: model.WordSearchField, Kind: model.KindWordSearch, Values: []string{"rantatontti"}})

	l := model.Listing{ID: "1", Title: "Upea rantatontti", Attributes: attrs(t, map[string]any{"hinta": 1})}
	assert.True(t, m.EvaluateListing(l, rs, matcher.LogicAnd).Matched)

	l = model.Listing{ID: "2", Title: "Tontti", Attributes: attrs(t, map[string]any{"lisatiedot": map[string]any{"teksti": "Rantatontti järven äärellä"}})}
	assert.True(t, m.EvaluateListing(l, rs, matcher.LogicAnd).Matched)

	l = model.Listing{ID: "3", Title: "Tontti", Attributes: attrs(t, map[string]any{"kuva": map[string]any{"id": 1, "url": "x", "alt": "rantatontti"}})}
	assert.False(t, m.EvaluateListing(l, rs, matcher.LogicAnd).Matched, "file descriptors are not searched")
}

func TestEvaluate_AndOrLogic(t *testing.T) {
	m := matcher.New()
	rs := rules(t,
		model.Criterion{FieldPath: "tyyppi", Kind: model.KindExactOrSet, Values: []string{"Asunto"}},
		model.Criterion{FieldPath: "hinta", Kind: model.KindRange, Values: []string{"max:100000"}},
	)
	a := attrs(t, map[string]any{"tyyppi": "asunto", "hinta": 150000})

	and := m.Evaluate(a, rs, matcher.LogicAnd)
	assert.False(t, and.Matched)
	require.Len(t, and.PerCriterion, 2)
	assert.True(t, and.PerCriterion[0].Matched)
	assert.False(t, and.PerCriterion[1].Matched)
	v, _ := and.PerCriterion[1].Actual.Float()
	assert.Equal(t, 150000.0, v)

	assert.True(t, m.Evaluate(a, rs, matcher.LogicOr).Matched)
}

func TestEvaluate_ZeroRulesNeverMatch(t *testing.T) {
	m := matcher.New()
	a := attrs(t, map[string]any{"x": 1})
	assert.False(t, m.Evaluate(a, nil, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(a, nil, matcher.LogicOr).Matched)
}

func TestEvaluate_InvalidRuleDegradesToNoMatch(t *testing.T) {
	m := matcher.New()
	rs, err := matcher.Flatten([]model.Criterion{
		{FieldPath: "tyyppi", Kind: model.KindExactOrSet, Values: []string{"Asunto"}},
		{FieldPath: "hinta", Kind: model.KindRange, Values: []string{"halpa"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidCriteria)
	require.Len(t, rs, 2)

	a := attrs(t, map[string]any{"tyyppi": "Asunto", "hinta": 1})
	assert.True(t, m.Evaluate(a, rs, matcher.LogicOr).Matched, "bad criterion must not hide other matches")
	assert.False(t, m.Evaluate(a, rs, matcher.LogicAnd).Matched)
}

func TestEvaluate_NestedPath(t *testing.T) {
	m := matcher.New()
	rs := rules(t, model.Criterion{FieldPath: "osoite.kaupunki", Kind: model.KindExactOrSet, Values: []string{"Espoo"}})

	assert.True(t, m.Evaluate(attrs(t, map[string]any{"osoite": map[string]any{"kaupunki": "ESPOO"}}), rs, matcher.LogicAnd).Matched)
	assert.False(t, m.Evaluate(attrs(t, map[string]any{"osoite": "Espoo"}), rs, matcher.LogicAnd).Matched)
}

func TestParseLogic(t *testing.T) {
	for in, want := range map[string]matcher.Logic{"": matcher.LogicAnd, "and": matcher.LogicAnd, " OR ": matcher.LogicOr} {
		got, err := matcher.ParseLogic(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := matcher.ParseLogic("XOR")
	assert.Error(t, err)
}

package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/watch-service/internal/matcher"
	"jobmate/watch-service/internal/model"
)

func TestFlatten_RangeTwoValuesAreSorted(t *testing.T) {
	rs, err := matcher.Flatten([]model.Criterion{
		{FieldPath: "hinta", Kind: model.KindRange, Values: []string{"100000", "40000"}},
	})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, map[string]any{"hinta_min": 40000.0, "hinta_max": 100000.0}, rs[0].Expected())
}

func TestFlatten_RangeSingleTagged(t *testing.T) {
	rs, err := matcher.Flatten([]model.Criterion{
		{FieldPath: "hinta", Kind: model.KindRange, Values: []string{"max:90000"}},
		{FieldPath: "huoneet", Kind: model.KindRange, Values: []string{"3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"hinta_max": 90000.0}, rs[0].Expected())
	assert.Equal(t, map[string]any{"huoneet_min": 3.0}, rs[1].Expected())
}

func TestFlatten_ExactSingleBecomesScalar(t *testing.T) {
	rs, err := matcher.Flatten([]model.Criterion{
		{FieldPath: "tyyppi", Kind: model.KindExactOrSet, Values: []string{"Asunto"}},
		{FieldPath: "sijainti", Kind: model.KindExactOrSet, Values: []string{"Helsinki", " ", "Espoo"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Asunto", rs[0].Value)
	assert.Nil(t, rs[0].AnyOf)
	assert.Equal(t, []string{"Helsinki", "Espoo"}, rs[1].AnyOf)
	assert.Equal(t, map[string]any{"sijainti": []string{"Helsinki", "Espoo"}}, rs[1].Expected())
}

func TestFlatten_InvalidShapes(t *testing.T) {
	cases := []model.Criterion{
		{FieldPath: "", Kind: model.KindExactOrSet, Values: []string{"a"}},
		{FieldPath: "x", Kind: model.KindExactOrSet},
		{FieldPath: "x", Kind: model.KindExactOrSet, Values: []string{"  "}},
		{FieldPath: "x", Kind: model.KindExactOrSet, Values: []string{"!!!"}},
		{FieldPath: "x", Kind: model.KindRange, Values: []string{"1", "2", "3"}},
		{FieldPath: "x", Kind: model.KindRange, Values: []string{"min:abc"}},
		{FieldPath: "x", Kind: model.KindWordSearch, Values: []string{"*"}},
		{FieldPath: "x", Kind: "fuzzy", Values: []string{"a"}},
	}
	for _, c := range cases {
		rs, err := matcher.Flatten([]model.Criterion{c})
		assert.ErrorIs(t, err, model.ErrInvalidCriteria, "criterion %+v", c)
		require.Len(t, rs, 1)
		assert.Error(t, rs[0].Err)
	}
	assert.NoError(t, matcher.Validate(nil))
}

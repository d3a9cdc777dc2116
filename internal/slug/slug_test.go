package slug_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/slug"
)

var slugShape = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"Helsinki", "helsinki"},
		{"HELSINKI ", "helsinki"},
		{"  Järvenpää  ", "jarvenpaa"},
		{"Åbo Akademi", "abo-akademi"},
		{"Mäntsälä, Etelä-Suomi", "mantsala-etela-suomi"},
		{"Crème Brûlée", "creme-brulee"},
		{"Ærø Straße", "aero-strasse"},
		{"a   -  b", "a-b"},
		{"Etelä\u00a0Suomi", "etela-suomi"},
		{"Itä\u2009–\u202fSuomi", "ita-suomi"},
		{"--x--", "x"},
		{"100 m²", "100-m"},
		{"!!!", ""},
		{"", ""},
		{50000.0, "50000"},
		{42, "42"},
		{true, "true"},
		{model.String("Espoo"), "espoo"},
		{model.Number(3), "3"},
		{struct{}{}, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, slug.Normalize(tc.in), "Normalize(%#v)", tc.in)
	}
}

func TestNormalize_IdempotentAndShaped(t *testing.T) {
	inputs := []string{
		"Helsinki", "HELSINKI ", "Ääkkönen Öljy", "foo_bar baz", "  ", "ÅÄÖ åäö",
		"omakotitalo / paritalo", "Ωmega", "日本語 text", "x\t\ny", "üÜ-ßẞ", "-a-",
	}
	for _, s := range inputs {
		once := slug.String(s)
		assert.Equal(t, once, slug.String(once), "not idempotent for %q", s)
		if once != "" {
			assert.Regexp(t, slugShape, once, "bad shape for %q", s)
		}
	}
}

func TestEqual_IgnoresCaseAndDiacritics(t *testing.T) {
	assert.True(t, slug.Equal("Helsinki", "HELSINKI "))
	assert.True(t, slug.Equal("Järvenpää", "jarvenpaa"))
	assert.False(t, slug.Equal("Helsinki", "Tampere"))
	assert.True(t, slug.Equal("Etelä\u00a0Suomi", "Etelä Suomi"))
}

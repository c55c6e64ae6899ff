package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogFilters(t *testing.T) {
	env, err := NewEnvironment()
	require.NoError(t, err)

	tests := []struct {
		name          string
		expression    string
		category      string
		subcategories []string
		want          bool
	}{
		{name: "equality", expression: `category == "Music"`, category: "Music", want: true},
		{name: "inequality", expression: `category != "Music"`, category: "Music", want: false},
		{name: "membership", expression: `"physics" in subcategories`, category: "Science", subcategories: []string{"science", "physics"}, want: true},
		{name: "exists macro", expression: `subcategories.exists(s, s.startsWith("geo"))`, category: "Geography", subcategories: []string{"geography"}, want: true},
		{name: "nil subcategories", expression: `size(subcategories) == 0`, category: "General", want: true},
		{name: "string functions", expression: `!category.contains("&")`, category: "Arts & Literature", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			program, err := env.Compile(tc.expression)
			require.NoError(t, err)
			require.True(t, program.Valid())
			got, err := program.Match(tc.category, tc.subcategories)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	env, err := NewEnvironment()
	require.NoError(t, err)

	tests := []struct {
		name       string
		expression string
		want       string
	}{
		{name: "empty", expression: "  ", want: "expression required"},
		{name: "syntax", expression: `category ==`, want: "compile"},
		{name: "unknown variable", expression: `difficulty == "easy"`, want: "compile"},
		{name: "non bool", expression: `category + "x"`, want: "must return bool"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Compile(tc.expression)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestZeroProgram(t *testing.T) {
	var program Program
	require.False(t, program.Valid())
	_, err := program.Match("Music", nil)
	require.Error(t, err)
}

func TestProgramSource(t *testing.T) {
	env, err := NewEnvironment()
	require.NoError(t, err)
	program, err := env.Compile(`  true `)
	require.NoError(t, err)
	require.Equal(t, "true", program.Source())
}

package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animagen/animagen/internal/model"
)

func TestDefault_AllStylesPresent(t *testing.T) {
	t.Parallel()

	b := Default()
	assert.Equal(t, "embedded", b.Source())
	assert.Equal(t, []string{"creative", "educational", "mathematical", "presentation", "scientific"}, b.Styles())
}

func TestSystemPrompt_RendersStyleAndDuration(t *testing.T) {
	t.Parallel()

	got := Default().SystemPrompt(model.StyleMathematical, 15)

	assert.Contains(t, got, "approximately 15 seconds")
	assert.Contains(t, got, "Animation Style: mathematical")
	assert.Contains(t, got, `"estimated_duration": 15`)
	assert.Contains(t, got, "- Include step-by-step derivations or proofs")
	assert.NotContains(t, got, "Use vibrant colors")
}

func TestSystemPrompt_UnknownStyleFallsBack(t *testing.T) {
	t.Parallel()

	got := Default().SystemPrompt("noir", 10)

	assert.Contains(t, got, "Animation Style: educational")
	assert.Contains(t, got, "- Build concepts progressively")
}

func TestUserPrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "User Request: draw a triangle", Default().UserPrompt("draw a triangle"))
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "base: [unterminated"},
		{"empty base", "base: ''\nstyles:\n  educational: [a]\n"},
		{"missing educational", "base: hi\nstyles:\n  creative: [a]\n"},
		{"bad template", "base: '{{.Style'\nstyles:\n  educational: [a]\n"},
		{"unknown field", "base: '{{.Colour}}'\nstyles:\n  educational: [a]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.yaml), "test")
			assert.ErrorIs(t, err, ErrInvalidCatalogue)
		})
	}
}

func TestLoad_OverrideFromDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	custom := "base: 'Make a {{.Style}} scene lasting {{.Duration}}s.'\nstyles:\n  educational:\n    - Keep it simple\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, CatalogueFile), []byte(custom), 0o644))

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, CatalogueFile), b.Source())

	got := b.SystemPrompt(model.StyleEducational, 8)
	assert.True(t, strings.HasPrefix(got, "Make a educational scene lasting 8s."), got)
	assert.Contains(t, got, "- Keep it simple")
}

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	t.Parallel()

	b, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "embedded", b.Source())

	b, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "embedded", b.Source())
}

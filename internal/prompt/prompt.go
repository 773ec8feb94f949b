// Package prompt builds the instructions sent to the language model.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/animagen/animagen/internal/model"
)

// CatalogueFile is the override file looked up in the template directory.
const CatalogueFile = "styles.yaml"

//go:embed styles.yaml
var defaultCatalogue []byte

// ErrInvalidCatalogue is returned when a catalogue cannot be used.
var ErrInvalidCatalogue = errors.New("invalid prompt catalogue")

// Catalogue is the YAML shape of a prompt catalogue.
type Catalogue struct {
	Base   string              `yaml:"base"`
	Styles map[string][]string `yaml:"styles"`
}

// Builder renders system and user prompts from a catalogue.
type Builder struct {
	base   *template.Template
	styles map[string][]string
	source string
}

// Default returns a Builder over the embedded catalogue.
func Default() *Builder {
	b, err := Parse(defaultCatalogue, "embedded")
	if err != nil {
		panic(fmt.Sprintf("embedded prompt catalogue: %v", err))
	}
	return b
}

// Load reads dir/styles.yaml when it exists, otherwise the embedded catalogue.
func Load(dir string) (*Builder, error) {
	if dir == "" {
		return Default(), nil
	}

	path := filepath.Join(dir, CatalogueFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return Parse(data, path)
}

// Parse builds a Builder from YAML. The catalogue must define a base prompt
// and the educational style, which unknown styles fall back to.
func Parse(data []byte, source string) (*Builder, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}
	if strings.TrimSpace(c.Base) == "" {
		return nil, fmt.Errorf("%w: base prompt is empty", ErrInvalidCatalogue)
	}
	if len(c.Styles[string(model.StyleEducational)]) == 0 {
		return nil, fmt.Errorf("%w: %s style is required", ErrInvalidCatalogue, model.StyleEducational)
	}

	tmpl, err := template.New("base").Option("missingkey=error").Parse(c.Base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}

	b := &Builder{base: tmpl, styles: c.Styles, source: source}
	if err := b.render(&strings.Builder{}, model.StyleEducational, model.DefaultDuration); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}

	return b, nil
}

// Source names where the catalogue was loaded from.
func (b *Builder) Source() string {
	return b.source
}

// Styles lists the styles defined by the catalogue.
func (b *Builder) Styles() []string {
	names := make([]string, 0, len(b.styles))
	for name := range b.styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SystemPrompt renders the base instructions plus the style's guidelines.
func (b *Builder) SystemPrompt(style model.AnimationStyle, duration int) string {
	guidelines, ok := b.styles[string(style)]
	if !ok {
		style = model.StyleEducational
		guidelines = b.styles[string(style)]
	}

	var sb strings.Builder
	_ = b.render(&sb, style, duration) // checked by Parse

	sb.WriteString("\n")
	for _, g := range guidelines {
		sb.WriteString("- ")
		sb.WriteString(g)
		sb.WriteString("\n")
	}

	return sb.String()
}

func (b *Builder) render(sb *strings.Builder, style model.AnimationStyle, duration int) error {
	data := struct {
		Style    string
		Duration int
	}{Style: string(style), Duration: duration}
	return b.base.Execute(sb, data)
}

// UserPrompt formats the user's request.
func (b *Builder) UserPrompt(prompt string) string {
	return "User Request: " + prompt
}

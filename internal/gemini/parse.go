package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/animagen/animagen/internal/model"
)

// Parse errors.
var (
	ErrMissingField = errors.New("missing required field")
	ErrNoContent    = errors.New("no JSON or code block found in response")
)

const (
	fallbackRefinedPrompt = "Refined prompt extraction failed"
	explanationLimit      = 500
)

var requiredFields = []string{"refined_prompt", "manim_code", "explanation"}

// ParseResponse extracts a RefinedPrompt from model output.
// The JSON object spanning the first '{' to the last '}' is preferred. When
// that is not valid JSON, the first fenced code block is used instead.
// OriginalPrompt is left for the caller to fill.
func ParseResponse(text string) (*model.RefinedPrompt, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return fallbackParse(text)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return fallbackParse(text)
	}

	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}

	rp := &model.RefinedPrompt{
		RefinedPrompt:     rawString(fields["refined_prompt"]),
		ManimCode:         rawString(fields["manim_code"]),
		Explanation:       rawString(fields["explanation"]),
		EstimatedDuration: rawDuration(fields["estimated_duration"], model.DefaultDuration),
	}

	if raw, ok := fields["key_elements"]; ok {
		var elems []string
		if err := json.Unmarshal(raw, &elems); err == nil {
			rp.KeyElements = elems
		}
	}

	if strings.TrimSpace(rp.ManimCode) == "" {
		return nil, fmt.Errorf("%w: manim_code is empty", ErrMissingField)
	}

	return rp, nil
}

func fallbackParse(text string) (*model.RefinedPrompt, error) {
	code, ok := extractCodeBlock(text)
	if !ok {
		return nil, ErrNoContent
	}

	return &model.RefinedPrompt{
		RefinedPrompt:     fallbackRefinedPrompt,
		ManimCode:         code,
		Explanation:       truncate(text, explanationLimit),
		EstimatedDuration: model.DefaultDuration,
		KeyElements:       []string{"animation", "visual", "content"},
	}, nil
}

// extractCodeBlock returns the body of the first ```python block, or of the
// first ``` block when no python block exists.
func extractCodeBlock(text string) (string, bool) {
	start := strings.Index(text, "```python")
	if start == -1 {
		start = strings.Index(text, "```")
	}
	if start == -1 {
		return "", false
	}

	rel := strings.Index(text[start+3:], "```")
	if rel == -1 {
		return "", false
	}
	end := start + 3 + rel

	code := strings.TrimSpace(strings.Trim(text[start:end+3], "`"))
	code = strings.TrimPrefix(code, "python\n")
	if strings.TrimSpace(code) == "" {
		return "", false
	}
	return code, true
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// rawDuration accepts 12, 12.5 or "12" seconds and clamps the result to
// 1..model.MaxDuration. Anything else yields def.
func rawDuration(raw json.RawMessage, def int) int {
	if len(raw) == 0 {
		return def
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return def
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return def
		}
	}
	if math.IsNaN(f) || f <= 0 {
		return def
	}
	return int(max(1, min(f, model.MaxDuration)))
}

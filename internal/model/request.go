package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AnimationStyle selects the visual register of the generated scene.
type AnimationStyle string

const (
	StyleMathematical AnimationStyle = "mathematical"
	StyleEducational  AnimationStyle = "educational"
	StyleScientific   AnimationStyle = "scientific"
	StylePresentation AnimationStyle = "presentation"
	StyleCreative     AnimationStyle = "creative"
)

// AnimationQuality maps to manim render presets.
type AnimationQuality string

const (
	QualityLow        AnimationQuality = "low_quality"
	QualityMedium     AnimationQuality = "medium_quality"
	QualityHigh       AnimationQuality = "high_quality"
	QualityProduction AnimationQuality = "production_quality"
)

// ManimFlag returns the value for manim's -q flag.
func (q AnimationQuality) ManimFlag() string {
	switch q {
	case QualityLow:
		return "l"
	case QualityHigh:
		return "h"
	case QualityProduction:
		return "p"
	default:
		return "m"
	}
}

// Resolution returns the media folder manim writes videos into for this quality.
func (q AnimationQuality) Resolution() string {
	switch q {
	case QualityLow:
		return "480p15"
	case QualityHigh:
		return "1080p60"
	case QualityProduction:
		return "1440p60"
	default:
		return "720p30"
	}
}

// Request defaults and bounds.
const (
	DefaultDuration   = 10
	MinDuration       = 5
	MaxDuration       = 30
	DefaultBackground = "#000000"
)

// ErrValidation wraps request validation failures.
var ErrValidation = errors.New("validation failed")

// AnimationRequest is a client request to generate an animation.
type AnimationRequest struct {
	Prompt          string           `json:"prompt" validate:"required,min=10,max=2000"`
	Style           AnimationStyle   `json:"style" validate:"oneof=mathematical educational scientific presentation creative"`
	Quality         AnimationQuality `json:"quality" validate:"oneof=low_quality medium_quality high_quality production_quality"`
	Duration        int              `json:"duration" validate:"min=5,max=30"`
	BackgroundColor string           `json:"background_color" validate:"len=7,hexcolor"`
	IncludeAudio    bool             `json:"include_audio"`
	CallbackURL     string           `json:"callback_url,omitempty" validate:"omitempty,url,max=1024"`
}

var validate = validator.New()

// ApplyDefaults fills unset optional fields.
func (r *AnimationRequest) ApplyDefaults() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Style == "" {
		r.Style = StyleEducational
	}
	if r.Quality == "" {
		r.Quality = QualityMedium
	}
	if r.Duration == 0 {
		r.Duration = DefaultDuration
	}
	if r.BackgroundColor == "" {
		r.BackgroundColor = DefaultBackground
	}
}

// Validate checks the request against its field constraints.
func (r *AnimationRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			messages = append(messages, fieldMessage(fieldErr))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Prompt":
		return "prompt must be between 10 and 2000 characters"
	case "Style":
		return "style must be one of mathematical, educational, scientific, presentation, creative"
	case "Quality":
		return "quality must be one of low_quality, medium_quality, high_quality, production_quality"
	case "Duration":
		return fmt.Sprintf("duration must be between %d and %d seconds", MinDuration, MaxDuration)
	case "BackgroundColor":
		return "background_color must be in hex format (#RRGGBB)"
	case "CallbackURL":
		return "callback_url must be a valid URL"
	}
	return fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag())
}

// Package gemini turns a user prompt into a refined prompt and Manim scene code.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/prompt"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from Gemini")

// Generator produces scene code for an animation request.
type Generator interface {
	Generate(ctx context.Context, userPrompt string, style model.AnimationStyle, duration int) (*model.RefinedPrompt, error)
}

// contentGenerator is the subset of *genai.Models used by Client.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds model parameters.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

// Client calls the Gemini API.
type Client struct {
	models  contentGenerator
	prompts *prompt.Builder
	cfg     Config
	logger  *slog.Logger
}

// New creates a Gemini client.
func New(ctx context.Context, cfg Config, prompts *prompt.Builder, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Info("initialized Gemini client", "model", cfg.Model)
	return newClient(client.Models, cfg, prompts, logger), nil
}

func newClient(models contentGenerator, cfg Config, prompts *prompt.Builder, logger *slog.Logger) *Client {
	if prompts == nil {
		prompts = prompt.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		models:  models,
		prompts: prompts,
		cfg:     cfg,
		logger:  logger.With("component", "gemini"),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Generate refines the prompt and writes scene code for it.
func (c *Client) Generate(ctx context.Context, userPrompt string, style model.AnimationStyle, duration int) (*model.RefinedPrompt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Info("processing prompt with Gemini", "prompt", preview(userPrompt), "style", style)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.prompts.SystemPrompt(style, duration), genai.RoleUser),
		Temperature:       genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType:  "application/json",
	}
	if c.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = c.cfg.MaxTokens
	}

	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, genai.Text(c.prompts.UserPrompt(userPrompt)), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	result, err := ParseResponse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}
	result.OriginalPrompt = userPrompt

	c.logger.Info("generated refined prompt and scene code", "code_bytes", len(result.ManimCode))
	return result, nil
}

// SDKVersion reports the linked genai module version.
func SDKVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == "google.golang.org/genai" {
			return dep.Version
		}
	}
	return "unknown"
}

func preview(s string) string {
	return truncate(s, 100)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/animagen/animagen/internal/client"
)

const (
	defaultServer = "http://localhost:8000"
	serverEnv     = "ANIMAGEN_SERVER"
	apiKeyEnv     = "ANIMAGEN_API_KEY"
)

type rootOptions struct {
	server string
	apiKey string
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.server, o.apiKey, nil)
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "animagen",
		Short: "Generate mathematical animations from text prompts",
		Long: `animagen talks to an animation API server.

A prompt is refined by Gemini into a Manim scene, rendered in the background,
and downloaded once complete:

  animagen generate "Show the Pythagorean theorem with squares" --wait
  animagen download <task-id> -o theorem.mp4`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv(serverEnv)
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "API base URL (env "+serverEnv+")")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv(apiKeyEnv), "admin API key (env "+apiKeyEnv+")")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newStatusCmd(opts),
		newWaitCmd(opts),
		newDownloadCmd(opts),
		newPromptCmd(opts),
		newEventsCmd(opts),
		newListCmd(opts),
		newCleanupCmd(opts),
		newStatsCmd(opts),
	)

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

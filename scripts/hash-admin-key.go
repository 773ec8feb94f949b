package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/animagen/animagen/internal/auth"
	"github.com/animagen/animagen/internal/webhook"
)

type output struct {
	Key           string `json:"key"`
	KeyHash       string `json:"key_hash"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

func main() {
	var (
		key         = flag.String("key", "", "Existing admin key to hash (default: generate a new one)")
		withWebhook = flag.Bool("webhook-secret", false, "Also generate a callback signing secret")
		format      = flag.String("format", "env", "Output format: env, plain or json")
	)
	flag.Parse()

	var out output
	if *key != "" {
		if err := auth.ValidateKeyFormat(*key); err != nil {
			fmt.Fprintln(os.Stderr, "invalid key:", err)
			os.Exit(1)
		}
		hash, err := auth.HashAdminKey(*key)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hash key:", err)
			os.Exit(1)
		}
		out.Key, out.KeyHash = *key, hash
	} else {
		generated, err := auth.GenerateAdminKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate admin key:", err)
			os.Exit(1)
		}
		out.Key, out.KeyHash = generated.Plaintext, generated.Hash
	}

	if *withWebhook {
		secret, err := webhook.GenerateSecret()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate webhook secret:", err)
			os.Exit(1)
		}
		out.WebhookSecret = secret
	}

	switch strings.ToLower(*format) {
	case "env":
		fmt.Printf("# admin key (store it, it is not recoverable): %s\n", out.Key)
		fmt.Printf("ADMIN_API_KEY_HASH='%s'\n", out.KeyHash)
		if out.WebhookSecret != "" {
			fmt.Printf("WEBHOOK_SIGNING_SECRET='%s'\n", out.WebhookSecret)
		}
	case "plain":
		fmt.Println(out.Key)
		fmt.Println(out.KeyHash)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use env, plain or json")
		os.Exit(1)
	}
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/animagen/animagen/internal/auth"
	"github.com/animagen/animagen/internal/cache"
)

const (
	// minAuthFailureDuration pads rejected attempts so timing reveals nothing.
	minAuthFailureDuration = 200 * time.Millisecond
)

// KeyVerificationCache remembers recent successful argon2 verifications.
type KeyVerificationCache interface {
	IsAdminKeyVerified(ctx context.Context, cacheKey string) bool
	MarkAdminKeyVerified(ctx context.Context, cacheKey string) error
}

// AdminAuthConfig holds configuration for the admin auth middleware.
type AdminAuthConfig struct {
	Logger *slog.Logger
	// KeyHash is the argon2id PHC hash of the admin key. Empty leaves routes open.
	KeyHash string
	// Cache is optional.
	Cache KeyVerificationCache
}

// AdminAuth returns a middleware that requires the admin API key.
// The key is read from "Authorization: Bearer <key>" or "X-API-Key".
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.KeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			reject := func(reason string) {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				if elapsed := time.Since(startTime); elapsed < minAuthFailureDuration {
					time.Sleep(minAuthFailureDuration - elapsed)
				}
				writeAuthError(w)
			}

			key := extractAPIKey(r)
			if key == "" {
				reject("missing_key")
				return
			}

			if err := auth.ValidateKeyFormat(key); err != nil {
				reject("invalid_format")
				return
			}

			cacheKey := cache.AdminKeyCacheKey(key, cfg.KeyHash)
			cacheHit := cfg.Cache != nil && cfg.Cache.IsAdminKeyVerified(r.Context(), cacheKey)

			if !cacheHit {
				match, err := auth.VerifyAdminKey(key, cfg.KeyHash)
				if err != nil {
					cfg.Logger.Error("admin key hash is invalid", slog.String("error", err.Error()))
					reject("invalid_hash")
					return
				}
				if !match {
					reject("invalid_key")
					return
				}
				if cfg.Cache != nil {
					_ = cfg.Cache.MarkAdminKeyVerified(r.Context(), cacheKey)
				}
			}

			cfg.Logger.Info("authentication successful",
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.Bool("cache_hit", cacheHit),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			next.ServeHTTP(w, r.WithContext(auth.ContextWithAdmin(r.Context())))
		})
	}
}

// extractAPIKey extracts the API key from the request.
// Supports both "Authorization: Bearer <key>" and "X-API-Key: <key>" headers.
func extractAPIKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="animagen"`)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
}

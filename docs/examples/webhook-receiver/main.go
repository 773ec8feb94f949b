// Command webhook-receiver accepts animagen task callbacks, verifies their
// signature and downloads finished videos.
//
//	export ANIMAGEN_WEBHOOK_SECRET=whsec_...
//	go run . -addr :9000 -out ./videos
//
// Then generate with "callback_url": "http://your-host:9000/webhook".
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	signatureHeader = "X-Animagen-Signature"
	tolerance       = 5 * time.Minute
	maxBody         = 64 << 10
)

// Callback is the body animagen posts when a task completes or fails.
type Callback struct {
	Event      string    `json:"event"`
	DeliveryID string    `json:"delivery_id"`
	Timestamp  time.Time `json:"timestamp"`
	Task       struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Message      string `json:"message"`
		DownloadURL  string `json:"download_url"`
		ErrorMessage string `json:"error_message"`
	} `json:"task"`
}

type receiver struct {
	secret string
	outDir string
	client *http.Client

	mu   sync.Mutex
	seen map[string]time.Time // delivery ID -> first receipt
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	out := flag.String("out", "videos", "directory for downloaded videos")
	flag.Parse()

	secret := os.Getenv("ANIMAGEN_WEBHOOK_SECRET")
	if secret == "" {
		slog.Error("ANIMAGEN_WEBHOOK_SECRET is required")
		os.Exit(1)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		slog.Error("create output directory", "error", err)
		os.Exit(1)
	}

	rcv := &receiver{
		secret: secret,
		outDir: *out,
		client: &http.Client{Timeout: 5 * time.Minute},
		seen:   make(map[string]time.Time),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", rcv.handle)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	slog.Info("listening", "addr", *addr, "videos", *out)
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func (rcv *receiver) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := verify(r.Header.Get(signatureHeader), body, rcv.secret, time.Now()); err != nil {
		slog.Warn("rejected callback", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// Retries reuse the delivery ID; acknowledge them without reprocessing.
	if !rcv.firstDelivery(cb.DeliveryID) {
		w.WriteHeader(http.StatusOK)
		return
	}

	log := slog.With("task_id", cb.Task.ID, "delivery_id", cb.DeliveryID, "event", cb.Event)
	switch cb.Task.Status {
	case "completed":
		log.Info("animation ready", "download_url", cb.Task.DownloadURL)
		go rcv.download(log, cb.Task.ID, cb.Task.DownloadURL)
	case "failed":
		log.Warn("animation failed", "error", cb.Task.ErrorMessage)
	default:
		log.Info("callback", "status", cb.Task.Status, "message", cb.Task.Message)
	}

	// Answer quickly; animagen treats slow receivers as failed deliveries.
	w.WriteHeader(http.StatusOK)
}

func (rcv *receiver) firstDelivery(id string) bool {
	rcv.mu.Lock()
	defer rcv.mu.Unlock()

	now := time.Now()
	for k, at := range rcv.seen {
		if now.Sub(at) > time.Hour {
			delete(rcv.seen, k)
		}
	}
	if _, dup := rcv.seen[id]; dup {
		return false
	}
	rcv.seen[id] = now
	return true
}

func (rcv *receiver) download(log *slog.Logger, taskID, url string) {
	if url == "" {
		return
	}
	resp, err := rcv.client.Get(url)
	if err != nil {
		log.Error("download failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Error("download failed", "http_status", resp.StatusCode)
		return
	}

	path := filepath.Join(rcv.outDir, "animation_"+filepath.Base(taskID)+".mp4")
	f, err := os.Create(path)
	if err != nil {
		log.Error("create file", "error", err)
		return
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Error("save video", "error", err)
		_ = os.Remove(path)
		return
	}
	log.Info("saved video", "path", path, "bytes", n)
}

// verify checks a "t=<unix>,v1=<hex>" header. The MAC covers
// "<unix>.<body>".
func verify(header string, body []byte, secret string, now time.Time) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return errors.New("malformed signature header")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q", ts)
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("timestamp outside %s window", tolerance)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	if !hmac.Equal([]byte(sig), []byte(hex.EncodeToString(mac.Sum(nil)))) {
		return errors.New("signature mismatch")
	}
	return nil
}

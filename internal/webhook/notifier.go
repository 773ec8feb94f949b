package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/animagen/animagen/internal/metrics"
	"github.com/animagen/animagen/internal/model"
)

// Callback event names.
const (
	EventCompleted = "animation.completed"
	EventFailed    = "animation.failed"
)

// Payload is the JSON body POSTed to a callback URL.
type Payload struct {
	Event      string      `json:"event"`
	DeliveryID string      `json:"delivery_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Task       TaskPayload `json:"task"`
}

// TaskPayload is the task snapshot carried by a callback.
type TaskPayload struct {
	ID           string           `json:"id"`
	Status       model.TaskStatus `json:"status"`
	Progress     int              `json:"progress"`
	Message      string           `json:"message"`
	DownloadURL  string           `json:"download_url,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// Options configures a Notifier.
type Options struct {
	BaseURL     string
	Signer      *Signer
	MaxAttempts int
	Client      *http.Client
	// BlockPrivateNetworks refuses connections to non-public addresses.
	// Ignored when Client is set.
	BlockPrivateNetworks bool
	// Delay overrides DefaultBackoff.Delay.
	Delay func(attempt int) time.Duration
}

// Notifier delivers terminal task callbacks in the background.
type Notifier struct {
	client      *http.Client
	signer      *Signer
	baseURL     string
	maxAttempts int
	delay       func(attempt int) time.Duration
	logger      *slog.Logger
	metrics     metrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewNotifier creates a callback notifier.
func NewNotifier(opts Options, logger *slog.Logger, recorder metrics.Recorder) *Notifier {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(opts.BlockPrivateNetworks)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Delay == nil {
		opts.Delay = DefaultBackoff.Delay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		client:      opts.Client,
		signer:      opts.Signer,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		maxAttempts: opts.MaxAttempts,
		delay:       opts.Delay,
		logger:      logger.With("component", "webhook.notifier"),
		metrics:     recorder,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Notify schedules a callback for a terminal task. Tasks without a callback
// URL, and non-terminal tasks, are ignored.
func (n *Notifier) Notify(task *model.Task) {
	if task == nil || task.Request.CallbackURL == "" || !task.Status.IsTerminal() {
		return
	}

	payload := n.buildPayload(task)
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to encode callback payload", "task_id", task.ID, "error", err)
		return
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.logger.Warn("notifier closed, dropping callback", "task_id", task.ID)
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		n.deliver(task.Request.CallbackURL, payload, body)
	}()
}

func (n *Notifier) buildPayload(task *model.Task) Payload {
	event := EventCompleted
	if task.Status == model.TaskStatusFailed {
		event = EventFailed
	}

	tp := TaskPayload{
		ID:           task.ID,
		Status:       task.Status,
		Progress:     task.Progress,
		Message:      task.Message,
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt,
		CompletedAt:  task.CompletedAt,
	}
	if task.FileURL != "" {
		tp.DownloadURL = n.baseURL + task.FileURL
	}

	return Payload{
		Event:      event,
		DeliveryID: ulid.Make().String(),
		Timestamp:  time.Now().UTC(),
		Task:       tp,
	}
}

// deliver attempts a callback until it succeeds, attempts run out, or the
// notifier is closed.
func (n *Notifier) deliver(target string, payload Payload, body []byte) {
	var lastErr error
	for attempt := 0; attempt < n.maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(n.delay(attempt - 1))
			select {
			case <-n.ctx.Done():
				timer.Stop()
				n.logger.Warn("callback abandoned on shutdown",
					"delivery_id", payload.DeliveryID,
					"task_id", payload.Task.ID,
					"attempt", attempt,
				)
				n.metrics.IncCallbackDelivery("failed")
				return
			case <-timer.C:
			}
		}

		status, err := n.send(target, payload, body)
		if err == nil {
			n.logger.Info("callback delivered",
				"delivery_id", payload.DeliveryID,
				"task_id", payload.Task.ID,
				"target_host", ExtractHost(target),
				"http_status", status,
				"attempt", attempt+1,
			)
			n.metrics.IncCallbackDelivery("delivered")
			return
		}

		lastErr = err
		n.logger.Warn("callback delivery failed",
			"delivery_id", payload.DeliveryID,
			"task_id", payload.Task.ID,
			"attempt", attempt+1,
			"final", attempt+1 >= n.maxAttempts,
			"error", err,
		)
	}

	n.logger.Error("callback delivery exhausted",
		"delivery_id", payload.DeliveryID,
		"task_id", payload.Task.ID,
		"target_host", ExtractHost(target),
		"error", lastErr,
	)
	n.metrics.IncCallbackDelivery("failed")
}

func (n *Notifier) send(target string, payload Payload, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(n.ctx, ClientTimeout)
	defer cancel()

	req, err := newDeliveryRequest(ctx, target, payload, body, n.signer)
	if err != nil {
		return 0, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Close stops accepting callbacks and waits for in-flight deliveries. When
// ctx expires first, pending retries are abandoned.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		n.cancel()
		<-done
		err = ctx.Err()
	}

	n.cancel()
	n.client.CloseIdleConnections()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("webhook notifier close: %w", err)
	}
	return nil
}

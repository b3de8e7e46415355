package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lattice-run/coderunner/pkg/types"
)

// webhookTimeout bounds a single delivery attempt (spec.md §5's
// recommended 5s), after which the result is considered lost.
const webhookTimeout = 5 * time.Second

// userAgentPrefix, followed by the worker ID, identifies the worker in
// callback requests.
const userAgentPrefix = "coderunner-worker/"

// Webhook delivers a Result to a job's callback_url over HTTP, exactly
// once per attempt — no retries. Receiver response bodies are ignored
// beyond logging a non-2xx status.
type Webhook struct {
	client    *http.Client
	userAgent string
}

// NewWebhook returns a Webhook with a bounded client timeout, tagging
// every request with workerID so receivers can tell which worker pod
// delivered it.
func NewWebhook(workerID string) *Webhook {
	return &Webhook{
		client:    &http.Client{Timeout: webhookTimeout},
		userAgent: userAgentPrefix + workerID,
	}
}

// webhookPayload is the wire shape spec.md §6 specifies for the
// callback body — notably `execution_time`, not the `execution_time_ms`
// json tag Result itself carries for its internal/log use.
type webhookPayload struct {
	Token           string       `json:"token"`
	Stdout          string       `json:"stdout"`
	Stderr          string       `json:"stderr"`
	Status          types.Status `json:"status"`
	ExecutionTimeMS float64      `json:"execution_time"`
	ExitCode        int          `json:"exit_code"`
}

// Deliver POSTs result as JSON to callbackURL.
func (w *Webhook) Deliver(ctx context.Context, callbackURL string, result *types.Result) error {
	body := webhookPayload{
		Token:           result.Token,
		Stdout:          result.Stdout,
		Stderr:          result.Stderr,
		Status:          result.Status,
		ExecutionTimeMS: result.ExecutionTimeMS,
		ExitCode:        result.ExitCode,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: marshaling result for %s: %w", result.Token, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: delivering to %s: %w", callbackURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s responded with status %d", callbackURL, resp.StatusCode)
	}

	return nil
}

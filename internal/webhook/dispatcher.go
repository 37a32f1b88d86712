package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tachyontex/tachyon-tex/pkg/logger"
)

// Event is the payload delivered to subscribers on a matching compile
// outcome. Cache hits trigger compile.success events too, carrying
// OriginalCompileMs.
type Event struct {
	Type              string `json:"type"`
	Fingerprint       string `json:"fingerprint"`
	CompileMs         int64  `json:"compile_time_ms"`
	OriginalCompileMs int64  `json:"original_compile_time_ms,omitempty"`
	PDFURL            string `json:"pdf_url,omitempty"`
	Error             string `json:"error,omitempty"`
}

const (
	EventCompileSuccess = "compile.success"
	EventCompileError   = "compile.error"
)

const (
	retryBaseDelay = time.Second
	retryCapDelay  = 60 * time.Second
	maxAttempts    = 5
	suppressionTTL = 5 * time.Minute
)

// Dispatcher fans events out to every matching subscription through a
// bounded worker pool (golang.org/x/sync/errgroup with SetLimit), retrying
// non-2xx responses with exponential backoff. Never returns an error to the
// caller: delivery failures are logged, not propagated, so a broken
// subscriber can never block or fail the originating compile response.
type Dispatcher struct {
	repo       Repository
	suppressed Suppression
	client     *http.Client
	workers    int
}

// NewDispatcher builds a Dispatcher with the given subscription repository,
// suppression list, and worker pool size (spec's bounded worker pool).
func NewDispatcher(repo Repository, suppressed Suppression, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		repo:       repo,
		suppressed: suppressed,
		client:     &http.Client{Timeout: 10 * time.Second},
		workers:    workers,
	}
}

// Dispatch delivers event to every subscription whose Events set contains
// event.Type. Runs fully detached from the caller's request lifecycle: pass
// a context.Background()-derived ctx with its own timeout, not the
// originating request's ctx, so a client disconnect never cancels delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	subs, err := d.repo.List(ctx)
	if err != nil {
		logger.Errorf("webhook: list subscriptions: %v", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(d.workers)

	for _, sub := range subs {
		sub := sub
		if !sub.Wants(event.Type) {
			continue
		}
		g.Go(func() error {
			d.deliver(ctx, sub, event)
			return nil
		})
	}
	_ = g.Wait()
}

// deliver sends event to sub.URL, retrying on non-2xx with exponential
// backoff (base 1s, cap 60s, max 5 attempts). Exhausting the retry budget
// suppresses the URL for a cooldown window.
func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, event Event) {
	if suppressed, err := d.suppressed.IsSuppressed(ctx, sub.URL); err == nil && suppressed {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("webhook: marshal event for %s: %v", sub.URL, err)
		return
	}

	delay := retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.post(ctx, sub.URL, body); err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
				delay *= 2
				if delay > retryCapDelay {
					delay = retryCapDelay
				}
			}
			continue
		}
		return
	}

	logger.Warnf("webhook: %s exhausted %d attempts, suppressing for %s: %v", sub.URL, maxAttempts, suppressionTTL, lastErr)
	if err := d.suppressed.Suppress(ctx, sub.URL, suppressionTTL); err != nil {
		logger.Errorf("webhook: suppress %s: %v", sub.URL, err)
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s returned %d", url, resp.StatusCode)
	}
	return nil
}

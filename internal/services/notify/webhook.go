package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/notify"
	"github.com/scottbadams/ITWebsiteMonitor/internal/obs/retry"
)

var (
	ErrWebhook = errors.New("webhook failure")

	// errTransient marks failures worth retrying within one Send: connection
	// errors and 5xx/429 answers. It wraps ErrWebhook so callers only see the
	// public sentinel.
	errTransient = fmt.Errorf("transient %w", ErrWebhook)
)

type WebhookSender struct {
	client *http.Client
	policy retry.Policy
	log    *zap.Logger
}

var _ notify.WebhookSender = (*WebhookSender)(nil)

func NewWebhookSender(cfg config.WebhookCfg, log *zap.Logger) *WebhookSender {
	l := log.With(zap.String("component", "webhook"))
	return &WebhookSender{
		client: &http.Client{Timeout: cfg.Timeout},
		policy: retry.Policy{
			Name:      "webhook",
			Attempts:  3,
			Backoff:   retry.ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.2},
			Retryable: func(err error) bool { return errors.Is(err, errTransient) },
			OnAttempt: func(attempt int, err error) {
				l.Debug("webhook attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			},
		},
		log: l,
	}
}

// Send posts the payload, retrying transient failures with jittered backoff.
// A definitive rejection (4xx other than 429) fails immediately; the alert
// evaluator retries whole notifications on its own tick.
func (s *WebhookSender) Send(ctx context.Context, url string, p *notify.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", ErrWebhook, err)
	}

	start := time.Now()
	err = retry.Do(ctx, func() error { return s.post(ctx, url, body) }, s.policy)
	if err != nil {
		s.log.Warn("webhook delivery failed", zap.String("url", url), zap.Error(err))
		return err
	}
	s.log.Debug("webhook delivered", zap.String("url", url), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *WebhookSender) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrWebhook, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", errTransient, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned %d: %s", errTransient, url, resp.StatusCode, string(snippet))
	}
	return fmt.Errorf("%w: %s returned %d: %s", ErrWebhook, url, resp.StatusCode, string(snippet))
}

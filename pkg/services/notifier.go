package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/autoflow-hq/core/internal/config"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models"
)

// RunNotifier posts run completion events to a configured webhook URL. The
// circuit breaker keeps a dead endpoint from slowing every execution.
type RunNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewRunNotifier creates a notifier from config. Returns nil when no webhook
// URL is configured.
func NewRunNotifier(cfg *config.Config, log *logger.Logger) *RunNotifier {
	if cfg.Notifier.WebhookURL == "" {
		return nil
	}
	if log == nil {
		log = logger.New("run-notifier")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "run-webhook",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Run webhook circuit breaker state change")
		},
	})

	return &RunNotifier{
		url: cfg.Notifier.WebhookURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.Notifier.Timeout) * time.Second,
		},
		breaker: breaker,
		logger:  log,
	}
}

// NotifyCompleted posts the terminal run to the webhook. Delivery failures
// are logged and never surfaced to the execution path.
func (n *RunNotifier) NotifyCompleted(ctx context.Context, run *models.PipelineRun) {
	payload, err := json.Marshal(map[string]any{
		"event": "run.completed",
		"run":   run,
	})
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to encode run notification")
		return
	}

	_, err = n.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		n.logger.Error().Err(err).
			Str("run_id", run.ID.String()).
			Str("action", "notify_failed").
			Msg("Failed to deliver run notification")
	}
}

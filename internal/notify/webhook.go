package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mediabatch/internal/domain"
	"mediabatch/internal/infra"
)

// Payload is the JSON body delivered to the webhook endpoint for each
// processed request.
type Payload struct {
	JobID                 string         `json:"job_id"`
	JobStatus             string         `json:"job_status"`
	OutputURL             string         `json:"output_url,omitempty"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds,omitempty"`
	FileSizeBytes         int64          `json:"file_size_bytes,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	Timestamp             time.Time      `json:"timestamp"`
}

// Webhook posts per-outcome notifications to a configured URL. Delivery is
// best-effort: failures are logged and swallowed, never surfaced into the
// batch run.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     infra.Logger
}

// NewWebhook builds a notifier for url. A nil client gets a bounded-timeout
// default.
func NewWebhook(url string, httpClient *http.Client, logger infra.Logger) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, httpClient: httpClient, logger: logger}
}

// Notify delivers one outcome. Cancellation of the batch context does not
// abort delivery of outcomes already produced.
func (w *Webhook) Notify(ctx context.Context, outcome domain.Outcome) {
	payload := Payload{
		JobID:                 outcome.RequestID,
		JobStatus:             string(outcome.Status),
		OutputURL:             outcome.OutputPath,
		ErrorMessage:          outcome.ErrorMessage,
		ProcessingTimeSeconds: outcome.ProcessingTimeSeconds,
		FileSizeBytes:         outcome.FileSizeBytes,
		Metadata:              outcome.Metadata,
		Timestamp:             outcome.Timestamp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", payload.JobID).Msg("notify: marshal payload failed")
		return
	}

	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", payload.JobID).Msg("notify: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("notify: webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		w.logger.Warn().
			Int("status", resp.StatusCode).
			Str("job_id", payload.JobID).
			Msg("notify: webhook rejected payload")
		return
	}

	w.logger.Debug().Str("job_id", payload.JobID).Msg("notify: webhook delivered")
}

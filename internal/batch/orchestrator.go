package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"mediabatch/internal/domain"
	"mediabatch/internal/infra"
	imageprovider "mediabatch/internal/providers/image"
	videoprovider "mediabatch/internal/providers/video"
	"mediabatch/internal/storage"
)

// RequestSource is the pull-based stream the orchestrator consumes. The
// parser's Stream satisfies it; tests substitute slices.
type RequestSource interface {
	Next() (domain.Request, bool)
	Err() error
}

// Notifier delivers per-outcome notifications. Delivery failures must be
// swallowed by the implementation; notification is best-effort.
type Notifier interface {
	Notify(ctx context.Context, outcome domain.Outcome)
}

// Options bound one batch run.
type Options struct {
	OutputDir   string
	Concurrency int
	RateLimit   int
	Resume      bool
}

// RunnerConfig wires the collaborators a Runner needs.
type RunnerConfig struct {
	Images   imageprovider.Generator
	Videos   videoprovider.Generator
	Store    storage.Store
	Notifier Notifier
	Logger   infra.Logger
}

// Runner orchestrates one batch: it pulls requests one at a time, skips work
// the checkpoint already recorded as done, gates dispatch on the rate limiter
// and a bounded concurrency semaphore, and records every outcome to the
// checkpoint log. Individual request failures never abort the run.
type Runner struct {
	images   imageprovider.Generator
	videos   videoprovider.Generator
	store    storage.Store
	notifier Notifier
	logger   infra.Logger

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	inFlight   atomic.Int64
}

// NewRunner builds a Runner with default retry policy.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		images:      cfg.Images,
		videos:      cfg.Videos,
		store:       cfg.Store,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}
}

// Progress is a point-in-time snapshot of run counters.
type Progress struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
	InFlight   int64 `json:"in_flight"`
}

// Progress returns live counters; safe to call from other goroutines while a
// run is in flight.
func (r *Runner) Progress() Progress {
	return Progress{
		Total:      r.total.Load(),
		Successful: r.successful.Load(),
		Failed:     r.failed.Load(),
		Skipped:    r.skipped.Load(),
		InFlight:   r.inFlight.Load(),
	}
}

// Run processes a request stream to completion and returns the batch summary.
// Only fatal setup problems return an error before processing starts. After
// cancellation no new requests are accepted; in-flight work finishes and its
// outcomes are flushed to the checkpoint, so a subsequent resume sees
// consistent state.
func (r *Runner) Run(ctx context.Context, requests RequestSource, opts Options) (domain.BatchSummary, error) {
	if opts.Concurrency < 1 || opts.Concurrency > 50 {
		return domain.BatchSummary{}, fmt.Errorf("concurrency must be between 1 and 50, got %d", opts.Concurrency)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return domain.BatchSummary{}, fmt.Errorf("create output directory: %w", err)
	}

	statePath := filepath.Join(opts.OutputDir, StateFileName)

	completed := make(map[string]struct{})
	if opts.Resume {
		var err error
		completed, err = LoadCheckpoint(statePath)
		if err != nil {
			return domain.BatchSummary{}, err
		}
		r.logger.Info().
			Int("already_completed", len(completed)).
			Str("checkpoint", statePath).
			Msg("batch: resuming from checkpoint")
	}

	writer, err := NewCheckpointWriter(statePath)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	defer writer.Close()

	limiter, err := NewRateLimiter(opts.RateLimit)
	if err != nil {
		return domain.BatchSummary{}, err
	}

	r.total.Store(0)
	r.successful.Store(0)
	r.failed.Store(0)
	r.skipped.Store(0)
	r.inFlight.Store(0)

	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	var wg sync.WaitGroup
	startedAt := time.Now()

	r.logger.Info().
		Int("concurrency", opts.Concurrency).
		Int("rate_limit_per_minute", opts.RateLimit).
		Bool("resume", opts.Resume).
		Msg("batch: run started")

intake:
	for {
		select {
		case <-ctx.Done():
			r.logger.Warn().Msg("batch: cancelled, no longer accepting requests")
			break intake
		default:
		}

		req, ok := requests.Next()
		if !ok {
			break
		}
		r.total.Add(1)

		if opts.Resume {
			if _, done := completed[req.ID]; done {
				r.skipped.Add(1)
				r.logger.Debug().Str("request_id", req.ID).Msg("batch: skipping completed request")
				continue
			}
		}

		// A request interrupted before dispatch was never observed by this
		// run; keep the summary arithmetic exact.
		if err := limiter.Acquire(ctx); err != nil {
			r.total.Add(-1)
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			r.total.Add(-1)
			break
		}

		wg.Add(1)
		go func(req domain.Request) {
			defer wg.Done()
			defer sem.Release(1)

			r.inFlight.Add(1)
			defer r.inFlight.Add(-1)

			outcome := r.processWithRetry(ctx, req)
			if err := writer.Append(outcome); err != nil {
				r.logger.Error().Err(err).Str("request_id", req.ID).Msg("batch: checkpoint append failed")
			}

			switch outcome.Status {
			case domain.StatusSuccess:
				r.successful.Add(1)
				r.logger.Info().
					Str("request_id", req.ID).
					Str("output", outcome.OutputPath).
					Float64("seconds", outcome.ProcessingTimeSeconds).
					Msg("batch: request succeeded")
			default:
				r.failed.Add(1)
				r.logger.Error().
					Str("request_id", req.ID).
					Str("reason", outcome.ErrorMessage).
					Msg("batch: request failed")
			}

			if r.notifier != nil {
				r.notifier.Notify(ctx, outcome)
			}
		}(req)
	}

	wg.Wait()
	finishedAt := time.Now()

	streamErr := requests.Err()
	if streamErr != nil {
		r.logger.Error().Err(streamErr).Msg("batch: input stream broke mid-run")
	}

	elapsed := finishedAt.Sub(startedAt)
	processed := r.successful.Load() + r.failed.Load()
	throughput := 0.0
	if minutes := elapsed.Minutes(); minutes > 0 {
		throughput = float64(processed) / minutes
	}

	summary := domain.BatchSummary{
		TotalRequests:    int(r.total.Load()),
		Successful:       int(r.successful.Load()),
		Failed:           int(r.failed.Load()),
		Skipped:          int(r.skipped.Load()),
		ProcessingTime:   elapsed,
		CheckpointPath:   statePath,
		ThroughputPerMin: throughput,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
	}

	r.logger.Info().
		Int("total", summary.TotalRequests).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("elapsed", summary.ProcessingTime).
		Msg("batch: run finished")

	return summary, streamErr
}

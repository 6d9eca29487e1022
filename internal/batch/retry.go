package batch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediabatch/internal/domain"
	imageprovider "mediabatch/internal/providers/image"
	videoprovider "mediabatch/internal/providers/video"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
)

// processWithRetry executes one request against the generator and storage
// collaborators and always returns an outcome; every failure is captured,
// never raised. Only transient failures are retried, with randomized
// exponential backoff to avoid hammering the external service in lockstep.
func (r *Runner) processWithRetry(ctx context.Context, req domain.Request) domain.Outcome {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		location, size, format, err := r.processOnce(ctx, req)
		if err == nil {
			return domain.Outcome{
				RequestID:             req.ID,
				Status:                domain.StatusSuccess,
				OutputPath:            location,
				ProcessingTimeSeconds: time.Since(start).Seconds(),
				FileSizeBytes:         size,
				Metadata: map[string]any{
					"format":        format,
					"media_type":    string(req.MediaType),
					"prompt_length": len(req.Prompt),
					"attempts":      attempt,
				},
				Timestamp: time.Now().UTC(),
			}
		}

		lastErr = err
		if !domain.IsTransient(err) || attempt == r.maxAttempts || ctx.Err() != nil {
			break
		}

		delay := r.backoffDelay(attempt)
		r.logger.Warn().
			Err(err).
			Str("request_id", req.ID).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("batch: transient failure, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = fmt.Errorf("%w (cancelled after attempt %d)", err, attempt)
			attempt = r.maxAttempts
		case <-timer.C:
		}
	}

	return domain.Outcome{
		RequestID:             req.ID,
		Status:                domain.StatusFailure,
		ErrorMessage:          lastErr.Error(),
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		Timestamp:             time.Now().UTC(),
	}
}

// processOnce runs the generate-then-store unit of work one time.
func (r *Runner) processOnce(ctx context.Context, req domain.Request) (location string, size int64, format string, err error) {
	var data []byte

	switch req.MediaType {
	case domain.MediaTypeVideo:
		asset, genErr := r.videos.Generate(ctx, videoprovider.GenerateRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Seed:           req.Seed,
			Model:          req.Model,
			RequestID:      req.ID,
		})
		if genErr != nil {
			return "", 0, "", genErr
		}
		data, format = asset.Data, asset.Format
	default:
		asset, genErr := r.images.Generate(ctx, imageprovider.GenerateRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Seed:           req.Seed,
			Quality:        req.Quality,
			AspectRatio:    req.AspectRatio,
			Model:          req.Model,
			RequestID:      req.ID,
		})
		if genErr != nil {
			return "", 0, "", genErr
		}
		data, format = asset.Data, asset.Format
	}

	location, err = r.store.Write(ctx, outputKey(req, format), data)
	if err != nil {
		return "", 0, "", fmt.Errorf("store output: %w", err)
	}
	return location, int64(len(data)), format, nil
}

// backoffDelay doubles the base per attempt, caps it, and keeps at least half
// the delay while randomizing the rest.
func (r *Runner) backoffDelay(attempt int) time.Duration {
	delay := r.backoffBase << (attempt - 1)
	if delay > r.backoffCap {
		delay = r.backoffCap
	}
	half := delay / 2
	return half + rand.N(half+1)
}

// outputKey derives the storage key for a request: the custom filename when
// one was given, otherwise a cleaned prompt prefix plus a short unique
// suffix. The extension follows the media format.
func outputKey(req domain.Request, format string) string {
	ext := extensionFor(req.MediaType, format)

	base := req.OutputFilename
	if base == "" {
		cleaned := make([]rune, 0, 50)
		for _, c := range req.Prompt {
			if len(cleaned) >= 50 {
				break
			}
			switch {
			case c == ' ':
				cleaned = append(cleaned, '_')
			case c == '-' || c == '_':
				cleaned = append(cleaned, c)
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
				cleaned = append(cleaned, c)
			}
		}
		base = strings.Trim(string(cleaned), "_")
		if base != "" {
			base += "_"
		}
		base += uuid.NewString()[:8]
	}

	if !strings.HasSuffix(strings.ToLower(base), ext) {
		base += ext
	}
	return base
}

func extensionFor(mediaType domain.MediaType, format string) string {
	switch {
	case strings.Contains(format, "jpeg"), strings.Contains(format, "jpg"):
		return ".jpg"
	case strings.Contains(format, "webp"):
		return ".webp"
	case strings.Contains(format, "webm"):
		return ".webm"
	case mediaType == domain.MediaTypeVideo:
		return ".mp4"
	default:
		return ".png"
	}
}

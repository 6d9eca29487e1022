package domain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MediaType enumerates the kinds of media a request can produce.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

const (
	maxPromptLength = 2000
	maxSeed         = 1<<32 - 1
)

var validQualities = map[string]bool{"draft": true, "standard": true, "high": true}

var validAspectRatios = map[string]bool{
	"1:1": true, "16:9": true, "9:16": true, "4:3": true, "3:4": true,
}

const invalidFilenameChars = `<>:"/\|?*`

// Request identifies one unit of generation work parsed from a batch input
// row. Requests are immutable once built; the orchestrator never mutates them.
type Request struct {
	ID             string
	Prompt         string
	MediaType      MediaType
	OutputFilename string
	Seed           *uint64
	NegativePrompt string
	SourceImage    string
	Quality        string
	AspectRatio    string
	Model          string
	RowNumber      int
}

// Validate checks every constraint and returns a FieldErrors naming all
// failing fields, or nil when the request is well-formed.
func (r *Request) Validate() error {
	var errs FieldErrors

	prompt := strings.TrimSpace(r.Prompt)
	switch {
	case prompt == "":
		errs = append(errs, FieldError{Field: "prompt", Message: "must not be empty"})
	case len(prompt) > maxPromptLength:
		errs = append(errs, FieldError{Field: "prompt", Message: fmt.Sprintf("must be at most %d characters", maxPromptLength)})
	}

	if r.MediaType != "" && r.MediaType != MediaTypeImage && r.MediaType != MediaTypeVideo {
		errs = append(errs, FieldError{Field: "media_type", Message: fmt.Sprintf("must be image or video, got %q", r.MediaType)})
	}

	if r.Seed != nil && *r.Seed > maxSeed {
		errs = append(errs, FieldError{Field: "seed", Message: fmt.Sprintf("must be between 0 and %d", uint64(maxSeed))})
	}

	if r.OutputFilename != "" {
		name := filepath.Base(strings.TrimSpace(r.OutputFilename))
		if name == "" || name == "." {
			errs = append(errs, FieldError{Field: "output_filename", Message: "must not be empty"})
		} else if strings.ContainsAny(name, invalidFilenameChars) {
			errs = append(errs, FieldError{Field: "output_filename", Message: fmt.Sprintf("contains invalid characters (%s)", invalidFilenameChars)})
		}
	}

	if r.Quality != "" && !validQualities[r.Quality] {
		errs = append(errs, FieldError{Field: "quality", Message: fmt.Sprintf("must be draft, standard or high, got %q", r.Quality)})
	}

	if r.AspectRatio != "" && !validAspectRatios[r.AspectRatio] {
		errs = append(errs, FieldError{Field: "aspect_ratio", Message: fmt.Sprintf("unsupported ratio %q", r.AspectRatio)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Finalize trims free-text fields, fills defaults, and assigns an ID when the
// row did not carry one. It must only be called on a validated request.
func (r *Request) Finalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	if r.OutputFilename != "" {
		r.OutputFilename = filepath.Base(strings.TrimSpace(r.OutputFilename))
	}
	if r.MediaType == "" {
		r.MediaType = MediaTypeImage
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
}

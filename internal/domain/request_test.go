package domain

import (
	"strings"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	seed := uint64(42)
	hugeSeed := uint64(1) << 33

	tests := []struct {
		name       string
		req        Request
		wantFields []string
	}{
		{
			name: "valid minimal",
			req:  Request{Prompt: "A beautiful sunset"},
		},
		{
			name: "valid full",
			req: Request{
				Prompt:         "A mountain landscape",
				MediaType:      MediaTypeVideo,
				OutputFilename: "mountain",
				Seed:           &seed,
				Quality:        "high",
				AspectRatio:    "16:9",
			},
		},
		{
			name:       "empty prompt",
			req:        Request{Prompt: "   "},
			wantFields: []string{"prompt"},
		},
		{
			name:       "prompt too long",
			req:        Request{Prompt: strings.Repeat("x", 2001)},
			wantFields: []string{"prompt"},
		},
		{
			name:       "seed out of range",
			req:        Request{Prompt: "ok", Seed: &hugeSeed},
			wantFields: []string{"seed"},
		},
		{
			name:       "bad media type",
			req:        Request{Prompt: "ok", MediaType: "audio"},
			wantFields: []string{"media_type"},
		},
		{
			name:       "bad quality",
			req:        Request{Prompt: "ok", Quality: "ultra"},
			wantFields: []string{"quality"},
		},
		{
			name:       "bad aspect ratio",
			req:        Request{Prompt: "ok", AspectRatio: "2:1"},
			wantFields: []string{"aspect_ratio"},
		},
		{
			name:       "filename with invalid characters",
			req:        Request{Prompt: "ok", OutputFilename: "out|put?"},
			wantFields: []string{"output_filename"},
		},
		{
			name:       "multiple failures collected",
			req:        Request{Prompt: "", Quality: "ultra", AspectRatio: "2:1"},
			wantFields: []string{"prompt", "quality", "aspect_ratio"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if len(tc.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			ferrs, ok := err.(FieldErrors)
			if !ok {
				t.Fatalf("Validate() = %T, want FieldErrors", err)
			}
			if len(ferrs) != len(tc.wantFields) {
				t.Fatalf("got %d field errors (%v), want %d", len(ferrs), ferrs, len(tc.wantFields))
			}
			for _, field := range tc.wantFields {
				if !strings.Contains(ferrs.Error(), field) {
					t.Fatalf("error %q does not mention field %q", ferrs.Error(), field)
				}
			}
		})
	}
}

func TestFieldErrorsJoinsWithSemicolon(t *testing.T) {
	errs := FieldErrors{
		{Field: "prompt", Message: "must not be empty"},
		{Field: "seed", Message: "invalid seed value: x"},
	}
	got := errs.Error()
	if !strings.Contains(got, "; ") {
		t.Fatalf("Error() = %q, want semicolon-joined messages", got)
	}
	if !strings.Contains(got, "prompt") || !strings.Contains(got, "seed") {
		t.Fatalf("Error() = %q, want both fields named", got)
	}
}

func TestRequestFinalize(t *testing.T) {
	req := Request{Prompt: "  trimmed prompt  "}
	req.Finalize()

	if req.Prompt != "trimmed prompt" {
		t.Fatalf("Prompt = %q, want trimmed", req.Prompt)
	}
	if req.MediaType != MediaTypeImage {
		t.Fatalf("MediaType = %q, want default image", req.MediaType)
	}
	if req.ID == "" {
		t.Fatal("Finalize did not assign an ID")
	}

	withID := Request{ID: "req1", Prompt: "x", MediaType: MediaTypeVideo}
	withID.Finalize()
	if withID.ID != "req1" {
		t.Fatalf("ID = %q, want existing id preserved", withID.ID)
	}
	if withID.MediaType != MediaTypeVideo {
		t.Fatalf("MediaType = %q, want video preserved", withID.MediaType)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Transient("genai", ErrQuotaExceeded)) {
		t.Fatal("Transient error not classified as transient")
	}
	if IsTransient(Permanent("genai", ErrContentBlocked)) {
		t.Fatal("Permanent error classified as transient")
	}
	if IsTransient(ErrProviderFailure) {
		t.Fatal("unclassified error must default to permanent")
	}
}

func TestBatchSummarySuccessRate(t *testing.T) {
	empty := BatchSummary{}
	if got := empty.SuccessRate(); got != 0 {
		t.Fatalf("SuccessRate() = %v, want 0 for empty run", got)
	}

	s := BatchSummary{TotalRequests: 4, Successful: 3}
	if got := s.SuccessRate(); got != 75 {
		t.Fatalf("SuccessRate() = %v, want 75", got)
	}
}

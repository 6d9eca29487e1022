package domain

import "time"

// Status enumerates the terminal states of one processed request.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Outcome records the result of attempting one request. It doubles as the
// checkpoint record: one JSON object per line of the append-only batch state
// file.
type Outcome struct {
	RequestID             string         `json:"request_id"`
	Status                Status         `json:"status"`
	OutputPath            string         `json:"output_path,omitempty"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds,omitempty"`
	FileSizeBytes         int64          `json:"file_size_bytes,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	Timestamp             time.Time      `json:"timestamp"`
}

// RejectedRow captures an input row that failed parsing or validation. It is
// written to the rejected-rows artifact and never retried automatically.
type RejectedRow struct {
	RowNumber    int
	RawData      map[string]string
	ErrorMessage string
	ErrorType    string
}

const (
	ErrorTypeParse      = "parse_error"
	ErrorTypeValidation = "validation_error"
)

// BatchSummary aggregates the final counts of a run.
type BatchSummary struct {
	TotalRequests    int
	Successful       int
	Failed           int
	Skipped          int
	ProcessingTime   time.Duration
	CheckpointPath   string
	RejectedRowsPath string
	ThroughputPerMin float64
	StartedAt        time.Time
	FinishedAt       time.Time
}

// SuccessRate returns the percentage of successful requests, 0 for an empty
// run.
func (s BatchSummary) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.TotalRequests) * 100
}

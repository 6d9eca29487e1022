package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"mediabatch/internal/domain"
)

// StateFileName is the checkpoint log created inside the output directory.
const StateFileName = "_batch_state.jsonl"

// LoadCheckpoint reads a checkpoint log and returns the ids of requests with
// a successful outcome. Failed and skipped records are not treated as done,
// so a resumed run retries them. Unparsable lines are skipped: a truncated
// tail after a crash must never prevent resuming.
func LoadCheckpoint(path string) (map[string]struct{}, error) {
	completed := make(map[string]struct{})

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return completed, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record domain.Outcome
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		if record.RequestID == "" {
			continue
		}
		if record.Status == domain.StatusSuccess {
			completed[record.RequestID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	return completed, nil
}

// CheckpointWriter appends outcome records to the checkpoint log. Appends are
// serialized so concurrent in-flight tasks never interleave partial lines.
// The log is append-only; it is never rewritten in place.
type CheckpointWriter struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewCheckpointWriter opens the log at path in append mode, creating it if
// absent.
func NewCheckpointWriter(path string) (*CheckpointWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint for append: %w", err)
	}
	return &CheckpointWriter{file: file, path: path}, nil
}

// Path returns the log location.
func (w *CheckpointWriter) Path() string {
	return w.path
}

// Append writes one outcome as a JSON line.
func (w *CheckpointWriter) Append(outcome domain.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal checkpoint record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("append checkpoint record: %w", err)
	}
	return nil
}

// Close flushes and closes the log file.
func (w *CheckpointWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

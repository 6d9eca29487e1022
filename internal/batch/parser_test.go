package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mediabatch/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func collect(t *testing.T, s *Stream) []domain.Request {
	t.Helper()
	var out []domain.Request
	for {
		req, ok := s.Next()
		if !ok {
			break
		}
		out = append(out, req)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return out
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	jsonlContent := writeFile(t, dir, "rows.txt", `{"prompt": "test"}`+"\n")
	csvContent := writeFile(t, dir, "table.txt", "prompt,seed\n\"a sunset\",42\n")
	unknown := writeFile(t, dir, "junk.unknown", "no structure here\n")

	tests := []struct {
		name    string
		path    string
		hint    string
		want    Format
		wantErr bool
	}{
		{name: "hint wins", path: jsonlContent, hint: "csv", want: FormatCSV},
		{name: "json hint maps to jsonl", path: csvContent, hint: "json", want: FormatJSONL},
		{name: "csv extension", path: filepath.Join(dir, "x.csv"), want: FormatCSV},
		{name: "jsonl extension", path: filepath.Join(dir, "x.jsonl"), want: FormatJSONL},
		{name: "json extension", path: filepath.Join(dir, "x.json"), want: FormatJSONL},
		{name: "sniff json object", path: jsonlContent, want: FormatJSONL},
		{name: "sniff csv", path: csvContent, want: FormatCSV},
		{name: "unsupported hint", path: csvContent, hint: "xml", wantErr: true},
		{name: "undetectable", path: unknown, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := detectFormat(tc.path, tc.hint)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrUnknownFormat) {
					t.Fatalf("detectFormat() error = %v, want ErrUnknownFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("detectFormat() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("detectFormat() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseBatchInputMissingFile(t *testing.T) {
	_, err := ParseBatchInput(filepath.Join(t.TempDir(), "absent.csv"), t.TempDir(), "", testLogger())
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want wrapped fs.ErrNotExist", err)
	}
}

func TestParseCSVValid(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "batch.csv", `prompt,output_name,seed
"A beautiful sunset","sunset",42
"A mountain landscape","mountain",123
`)

	s, err := ParseBatchInput(input, dir, "csv", testLogger())
	if err != nil {
		t.Fatalf("ParseBatchInput: %v", err)
	}
	defer s.Close()

	requests := collect(t, s)
	if len(requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(requests))
	}
	if requests[0].Prompt != "A beautiful sunset" {
		t.Fatalf("Prompt = %q", requests[0].Prompt)
	}
	if requests[0].OutputFilename != "sunset" {
		t.Fatalf("OutputFilename = %q, want alias output_name mapped", requests[0].OutputFilename)
	}
	if requests[0].Seed == nil || *requests[0].Seed != 42 {
		t.Fatalf("Seed = %v, want 42", requests[0].Seed)
	}
	if requests[0].RowNumber != 1 || requests[1].RowNumber != 2 {
		t.Fatalf("row numbers = %d,%d, want 1,2", requests[0].RowNumber, requests[1].RowNumber)
	}
	if requests[0].ID == "" {
		t.Fatal("request did not get a generated id")
	}
	if requests[0].MediaType != domain.MediaTypeImage {
		t.Fatalf("MediaType = %q, want default image", requests[0].MediaType)
	}
}

func TestParseJSONLValid(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "batch.jsonl",
		`{"prompt": "A beautiful sunset", "output_filename": "sunset", "seed": 42}
{"text": "A forest", "negative": "no cars", "media_type": "video"}
`)

	s, err := ParseBatchInput(input, dir, "", testLogger())
	if err != nil {
		t.Fatalf("ParseBatchInput: %v", err)
	}
	defer s.Close()

	requests := collect(t, s)
	if len(requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(requests))
	}
	if requests[0].Seed == nil || *requests[0].Seed != 42 {
		t.Fatalf("Seed = %v, want numeric json seed parsed", requests[0].Seed)
	}
	if requests[1].Prompt != "A forest" {
		t.Fatalf("Prompt = %q, want text alias mapped", requests[1].Prompt)
	}
	if requests[1].NegativePrompt != "no cars" {
		t.Fatalf("NegativePrompt = %q, want negative alias mapped", requests[1].NegativePrompt)
	}
	if requests[1].MediaType != domain.MediaTypeVideo {
		t.Fatalf("MediaType = %q, want video", requests[1].MediaType)
	}
}

func TestParseJSONLLargeNumericSeeds(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "seeds.jsonl",
		`{"prompt": "A beautiful sunset", "seed": 1000000}
{"prompt": "Another prompt", "seed": 4294967295}
`)

	s, err := ParseBatchInput(input, dir, "jsonl", testLogger())
	if err != nil {
		t.Fatalf("ParseBatchInput: %v", err)
	}
	defer s.Close()

	requests := collect(t, s)
	if len(requests) != 2 {
		t.Fatalf("got %d requests, want 2 (rejected: %d)", len(requests), s.RejectedCount())
	}
	if requests[0].Seed == nil || *requests[0].Seed != 1000000 {
		t.Fatalf("Seed = %v, want 1000000", requests[0].Seed)
	}
	if requests[1].Seed == nil || *requests[1].Seed != 4294967295 {
		t.Fatalf("Seed = %v, want 4294967295", requests[1].Seed)
	}
	if s.RejectedCount() != 0 {
		t.Fatalf("RejectedCount() = %d, want 0", s.RejectedCount())
	}
}

func TestParseCSVRejectsInvalidRows(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	input := writeFile(t, dir, "mixed.csv", `prompt,output_name,seed
"A","a",1
"","b",2
"C","c",x
`)

	s, err := ParseBatchInput(input, outDir, "csv", testLogger())
	if err != nil {
		t.Fatalf("ParseBatchInput: %v", err)
	}
	defer s.Close()

	requests := collect(t, s)
	if len(requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(requests))
	}
	if requests[0].Prompt != "A" || requests[0].RowNumber != 1 {
		t.Fatalf("unexpected surviving request: %+v", requests[0])
	}
	if s.RejectedCount() != 2 {
		t.Fatalf("RejectedCount() = %d, want 2", s.RejectedCount())
	}

	rejectedPath := filepath.Join(outDir, "mixed.rejected.csv")
	if s.RejectedPath() != rejectedPath {
		t.Fatalf("RejectedPath() = %q, want %q", s.RejectedPath(), rejectedPath)
	}
	data, err := os.ReadFile(rejectedPath)
	if err != nil {
		t.Fatalf("rejected artifact missing: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "prompt") {
		t.Fatalf("rejected artifact does not mention prompt error:\n%s", content)
	}
	if !strings.Contains(content, "invalid seed value: x") {
		t.Fatalf("rejected artifact does not mention seed error:\n%s", content)
	}

	records, err := csv.NewReader(strings.NewReader(content)).ReadAll()
	if err != nil {
		t.Fatalf("rejected artifact is not valid csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("artifact has %d records, want header plus 2 rows", len(records))
	}
	if got := records[0]; got[0] != "row_number" || got[3] != "error_type" {
		t.Fatalf("artifact header = %v", got)
	}
	if records[1][0] != "2" || records[2][0] != "3" {
		t.Fatalf("rejected row numbers = %q,%q, want 2,3", records[1][0], records[2][0])
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(records[2][1]), &raw); err != nil {
		t.Fatalf("raw_data column is not json: %v", err)
	}
	if raw["seed"] != "x" {
		t.Fatalf("raw_data = %v, want original seed value preserved", raw)
	}
	if records[2][3] != domain.ErrorTypeValidation {
		t.Fatalf("error_type = %q, want %q", records[2][3], domain.ErrorTypeValidation)
	}
}

func TestParseJSONLRejectsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "bad.jsonl",
		`{"prompt": "Valid prompt", "output_filename": "valid"}
invalid json line
{"prompt": "Another valid prompt"}
{"prompt": ""}
`)

	s, err := ParseBatchInput(input, dir, "jsonl", testLogger())
	if err != nil {
		t.Fatalf("ParseBatchInput: %v", err)
	}
	defer s.Close()

	requests := collect(t, s)
	if len(requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(requests))
	}
	if s.RejectedCount() != 2 {
		t.Fatalf("RejectedCount() = %d, want 2", s.RejectedCount())
	}

	data, err := os.ReadFile(filepath.Join(dir, "bad.rejected.csv"))
	if err != nil {
		t.Fatalf("rejected artifact missing: %v", err)
	}
	if !strings.Contains(string(data), "parse_error") || !strings.Contains(string(data), "validation_error") {
		t.Fatalf("artifact should carry both error types:\n%s", data)
	}
}

func TestParseNoRejectedArtifactForCleanInput(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "clean.csv", "prompt\n\"fine\"\n")

	s, err := ParseBatchInput(input, dir, "", testLogger())
	if err != nil {
		t.Fatalf("ParseBatchInput: %v", err)
	}
	defer s.Close()

	collect(t, s)
	if s.RejectedPath() != "" {
		t.Fatalf("RejectedPath() = %q, want empty for clean input", s.RejectedPath())
	}
	if _, err := os.Stat(filepath.Join(dir, "clean.rejected.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("rejected artifact must be created lazily, only on first rejection")
	}
}

func TestNormalizeRowDropsEmptyValues(t *testing.T) {
	req, errs := normalizeRow(map[string]string{
		"prompt":      "Valid prompt",
		"output_name": "",
		"seed":        "",
		"quality":     "   ",
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected field errors: %v", errs)
	}
	if req.OutputFilename != "" || req.Seed != nil || req.Quality != "" {
		t.Fatalf("empty values must be treated as absent: %+v", req)
	}
}

package batch

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mediabatch/internal/domain"
	"mediabatch/internal/infra"
)

// Format identifies a supported batch input format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// fieldAliases maps the heterogeneous field names seen in the wild onto the
// canonical request schema.
var fieldAliases = map[string]string{
	"id":               "id",
	"request_id":       "id",
	"prompt":           "prompt",
	"text":             "prompt",
	"output_filename":  "output_filename",
	"output_name":      "output_filename",
	"filename":         "output_filename",
	"seed":             "seed",
	"random_seed":      "seed",
	"negative_prompt":  "negative_prompt",
	"negative":         "negative_prompt",
	"media_type":       "media_type",
	"media":            "media_type",
	"source_image":     "source_image",
	"source_image_url": "source_image",
	"source":           "source_image",
	"quality":          "quality",
	"aspect_ratio":     "aspect_ratio",
	"ratio":            "aspect_ratio",
	"model":            "model",
	"image_model":      "model",
}

// Stream is a lazy, finite, forward-only sequence of validated requests read
// from a batch input file. Rows that fail parsing or validation are diverted
// to the rejected-rows artifact and never abort the stream.
type Stream struct {
	format    Format
	inputPath string
	file      *os.File

	csvReader *csv.Reader
	header    []string
	scanner   *bufio.Scanner

	rowNum int

	rejectedPath  string
	rejectedFile  *os.File
	rejectedCSV   *csv.Writer
	rejectedCount int

	logger infra.Logger
	err    error
}

// ParseBatchInput opens inputPath and returns a Stream of validated requests.
// The rejected-rows artifact is written next to outputDir, named after the
// input file's stem, and created lazily on the first rejection. Fatal setup
// problems (missing file, undetectable format) fail here, before anything is
// yielded.
func ParseBatchInput(inputPath, outputDir, formatHint string, logger infra.Logger) (*Stream, error) {
	format, err := detectFormat(inputPath, formatHint)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("open batch input: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	s := &Stream{
		format:       format,
		inputPath:    inputPath,
		file:         file,
		rejectedPath: filepath.Join(outputDir, stem+".rejected.csv"),
		logger:       logger,
	}

	switch format {
	case FormatCSV:
		s.csvReader = csv.NewReader(file)
		s.csvReader.FieldsPerRecord = -1
		header, err := s.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s, nil
			}
			file.Close()
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		s.header = make([]string, len(header))
		for i, h := range header {
			s.header[i] = strings.ToLower(strings.TrimSpace(h))
		}
	case FormatJSONL:
		s.scanner = bufio.NewScanner(file)
		s.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	}

	return s, nil
}

// detectFormat prefers the explicit hint, then the file extension, then
// sniffs the first non-empty line.
func detectFormat(inputPath, hint string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "csv":
		return FormatCSV, nil
	case "jsonl", "json":
		return FormatJSONL, nil
	case "":
	default:
		return "", fmt.Errorf("%w: unsupported format hint %q", domain.ErrUnknownFormat, hint)
	}

	switch strings.ToLower(filepath.Ext(inputPath)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".json":
		return FormatJSONL, nil
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open batch input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var probe map[string]any
		if json.Unmarshal([]byte(line), &probe) == nil {
			return FormatJSONL, nil
		}
		if strings.Contains(line, ",") {
			return FormatCSV, nil
		}
		break
	}

	return "", fmt.Errorf("%w: %s", domain.ErrUnknownFormat, inputPath)
}

// Next returns the next valid request. It returns false once the input is
// exhausted or an unrecoverable read error occurred (see Err).
func (s *Stream) Next() (domain.Request, bool) {
	for {
		raw, ok := s.readRow()
		if !ok {
			return domain.Request{}, false
		}
		if raw == nil {
			// Row already rejected at the read layer.
			continue
		}

		req, ferrs := normalizeRow(raw)
		if ferrs == nil {
			ferrs, _ = req.Validate().(domain.FieldErrors)
		}
		if len(ferrs) > 0 {
			s.reject(raw, ferrs.Error(), domain.ErrorTypeValidation)
			continue
		}

		req.Finalize()
		req.RowNumber = s.rowNum
		return req, true
	}
}

// readRow pulls one raw record. A nil map with ok=true means the row was
// malformed and has been rejected already.
func (s *Stream) readRow() (map[string]string, bool) {
	switch s.format {
	case FormatCSV:
		if s.csvReader == nil {
			return nil, false
		}
		record, err := s.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, false
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				s.rowNum++
				s.reject(map[string]string{}, err.Error(), domain.ErrorTypeParse)
				return nil, true
			}
			s.err = fmt.Errorf("read csv row: %w", err)
			return nil, false
		}
		s.rowNum++
		raw := make(map[string]string, len(s.header))
		for i, value := range record {
			if i < len(s.header) {
				raw[s.header[i]] = value
			}
		}
		return raw, true

	case FormatJSONL:
		for s.scanner.Scan() {
			line := strings.TrimSpace(s.scanner.Text())
			if line == "" {
				continue
			}
			s.rowNum++
			// UseNumber keeps numeric values as literal text; plain decoding
			// turns an integer seed into a float64 that fmt.Sprint renders in
			// exponent notation, corrupting values like 4294967295.
			dec := json.NewDecoder(strings.NewReader(line))
			dec.UseNumber()
			var fields map[string]any
			if err := dec.Decode(&fields); err != nil {
				s.reject(map[string]string{"line": line}, fmt.Sprintf("invalid JSON: %v", err), domain.ErrorTypeParse)
				return nil, true
			}
			raw := make(map[string]string, len(fields))
			for k, v := range fields {
				if v == nil {
					raw[strings.ToLower(strings.TrimSpace(k))] = ""
					continue
				}
				raw[strings.ToLower(strings.TrimSpace(k))] = fmt.Sprint(v)
			}
			return raw, true
		}
		if err := s.scanner.Err(); err != nil {
			s.err = fmt.Errorf("read jsonl row: %w", err)
		}
		return nil, false
	}

	return nil, false
}

// normalizeRow maps aliased field names onto the canonical schema, dropping
// empty and whitespace-only values, and parses typed fields. Field-level
// parse problems are reported as FieldErrors; unknown columns are ignored.
func normalizeRow(raw map[string]string) (domain.Request, domain.FieldErrors) {
	var req domain.Request
	var errs domain.FieldErrors

	for key, value := range raw {
		canonical, ok := fieldAliases[key]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch canonical {
		case "id":
			req.ID = value
		case "prompt":
			req.Prompt = value
		case "output_filename":
			req.OutputFilename = value
		case "seed":
			seed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				errs = append(errs, domain.FieldError{Field: "seed", Message: fmt.Sprintf("invalid seed value: %s", value)})
				continue
			}
			req.Seed = &seed
		case "negative_prompt":
			req.NegativePrompt = value
		case "media_type":
			req.MediaType = domain.MediaType(strings.ToLower(value))
		case "source_image":
			req.SourceImage = value
		case "quality":
			req.Quality = strings.ToLower(value)
		case "aspect_ratio":
			req.AspectRatio = value
		case "model":
			req.Model = value
		}
	}

	return req, errs
}

// reject appends one row to the rejected-rows artifact, creating it on first
// use.
func (s *Stream) reject(raw map[string]string, message, errorType string) {
	s.rejectedCount++

	row := domain.RejectedRow{
		RowNumber:    s.rowNum,
		RawData:      raw,
		ErrorMessage: message,
		ErrorType:    errorType,
	}

	s.logger.Warn().
		Int("row", row.RowNumber).
		Str("error_type", row.ErrorType).
		Str("reason", row.ErrorMessage).
		Msg("batch: rejected input row")

	if s.rejectedCSV == nil {
		if err := s.openRejectedFile(); err != nil {
			s.logger.Error().Err(err).Msg("batch: cannot write rejected-rows artifact")
			return
		}
	}

	rawJSON, _ := json.Marshal(row.RawData)
	record := []string{strconv.Itoa(row.RowNumber), string(rawJSON), row.ErrorMessage, row.ErrorType}
	if err := s.rejectedCSV.Write(record); err != nil {
		s.logger.Error().Err(err).Msg("batch: cannot append rejected row")
	}
	s.rejectedCSV.Flush()
}

func (s *Stream) openRejectedFile() error {
	if err := os.MkdirAll(filepath.Dir(s.rejectedPath), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(s.rejectedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.rejectedFile = file
	s.rejectedCSV = csv.NewWriter(file)
	return s.rejectedCSV.Write([]string{"row_number", "raw_data", "error_message", "error_type"})
}

// Err reports an unrecoverable read error, if any. Per-row rejections are not
// errors.
func (s *Stream) Err() error {
	return s.err
}

// RejectedCount returns the number of rows diverted to the rejected artifact.
func (s *Stream) RejectedCount() int {
	return s.rejectedCount
}

// RejectedPath returns the artifact path when at least one row was rejected,
// empty otherwise.
func (s *Stream) RejectedPath() string {
	if s.rejectedCount == 0 {
		return ""
	}
	return s.rejectedPath
}

// Close releases the underlying files.
func (s *Stream) Close() error {
	if s.rejectedCSV != nil {
		s.rejectedCSV.Flush()
	}
	if s.rejectedFile != nil {
		s.rejectedFile.Close()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

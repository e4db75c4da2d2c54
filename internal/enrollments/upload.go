package enrollments

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Upload errors mapped to HTTP codes by the API layer.
var (
	// ErrUploadTooLarge means the uploaded file exceeds the byte threshold.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
	// ErrBadUpload means the CSV header or a row is malformed.
	ErrBadUpload = errors.New("malformed enrollment csv")
)

var uploadColumns = []string{"student_key", "status"}

// ParseUpload reads an uploaded enrollment CSV into the same request shape
// the JSON write path consumes. The header must contain student_key and
// status columns (extra columns are ignored); every row must fill both.
func ParseUpload(r io.Reader, maxBytes int64) ([]WriteRequest, error) {
	limited := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrUploadTooLarge, maxBytes)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", ErrBadUpload, err)
	}

	columns := map[string]int{}
	for i, name := range header {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range uploadColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: header missing column %q", ErrBadUpload, required)
		}
	}

	var requests []WriteRequest
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadUpload, line, err)
		}
		req := WriteRequest{
			StudentKey: strings.TrimSpace(record[columns["student_key"]]),
			Status:     strings.TrimSpace(record[columns["status"]]),
		}
		if req.StudentKey == "" || req.Status == "" {
			return nil, fmt.Errorf("%w: line %d: missing required field", ErrBadUpload, line)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

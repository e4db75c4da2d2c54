// Package export serializes job results into the downloadable artifact
// formats exposed by the jobs API.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Supported artifact formats. The format token doubles as the artifact file
// extension.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrUnsupportedFormat is returned for format tokens outside the supported
// set. Callers surface it as 404: the representation does not exist.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Row is a record with stable field ordering. Plain maps would lose the
// first-seen column order the CSV header derives from.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: map[string]any{}}
}

// Set assigns a field, remembering insertion order for new keys.
func (r *Row) Set(key string, value any) *Row {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// Get returns a field value and whether it is present.
func (r *Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns field names in insertion order.
func (r *Row) Keys() []string {
	return r.keys
}

// MarshalJSON emits the row as a JSON object with fields in insertion order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Serialize renders rows in the requested format.
func Serialize(rows []*Row, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return serializeJSON(rows)
	case FormatCSV:
		return serializeCSV(rows)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ContentType returns the MIME type for a supported format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

func serializeJSON(rows []*Row) ([]byte, error) {
	if rows == nil {
		rows = []*Row{}
	}
	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}
	return out, nil
}

// serializeCSV writes a header row from the union of keys across all rows in
// first-seen order, then one line per row. Missing keys render as empty
// fields; quoting follows RFC 4180 via encoding/csv.
func serializeCSV(rows []*Row) ([]byte, error) {
	var header []string
	seen := map[string]bool{}
	for _, row := range rows {
		for _, k := range row.Keys() {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, k := range header {
			v, ok := row.Get(k)
			if !ok {
				record[i] = ""
				continue
			}
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// formatCell renders one CSV cell. Booleans keep the literal True/False
// tokens consumers of these reports already depend on.
func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

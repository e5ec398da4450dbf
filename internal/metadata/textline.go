package metadata

import (
	"bytes"
	"fmt"
)

// LineError reports a line that could not be decoded. Line is 1-based.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// TextLine encodes the record as a single JSON object terminated by a newline.
func (m Metadata) TextLine() (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	data, err := jsonMarshal(m)
	if err != nil {
		return "", fmt.Errorf("metadata: encode %s: %w", m.Kind(), err)
	}
	return string(data) + "\n", nil
}

// ParseLine decodes one record. Surrounding whitespace is ignored.
func ParseLine(line []byte) (Metadata, error) {
	var m Metadata
	if err := jsonUnmarshal(bytes.TrimSpace(line), &m); err != nil {
		return Metadata{}, err
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// DecodeLines decodes a newline-delimited sequence of records, skipping empty
// lines. Records keep their order in data. The first bad line stops decoding
// and is returned as a *LineError.
func DecodeLines(data []byte) ([]Metadata, error) {
	var records []Metadata
	for i, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		m, err := ParseLine(line)
		if err != nil {
			return nil, &LineError{Line: i + 1, Err: err}
		}
		records = append(records, m)
	}
	return records, nil
}

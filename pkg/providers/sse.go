package providers

import (
	"bufio"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE or NDJSON line.
const maxLineSize = 1 << 20

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// SSEReader reads the data payloads of a Server-Sent Events stream.
// Comment, event and id lines are skipped. Consecutive data lines of one
// event are joined with a newline.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader creates a reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{scanner: newLineScanner(r)}
}

// Next returns the next event's data. It returns io.EOF when the stream
// ends.
func (s *SSEReader) Next() (string, error) {
	var data []string
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")

		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(line, "data:")
		payload = strings.TrimPrefix(payload, " ")
		data = append(data, payload)
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}

// NDJSONReader reads newline-delimited JSON records, skipping blank lines.
type NDJSONReader struct {
	scanner *bufio.Scanner
}

// NewNDJSONReader creates a reader over r.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	return &NDJSONReader{scanner: newLineScanner(r)}
}

// Next returns the next record. It returns io.EOF when the stream ends.
func (n *NDJSONReader) Next() ([]byte, error) {
	for n.scanner.Scan() {
		line := strings.TrimSpace(n.scanner.Text())
		if line == "" {
			continue
		}
		return []byte(line), nil
	}
	if err := n.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

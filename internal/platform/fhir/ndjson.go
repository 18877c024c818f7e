package fhir

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// maxNDJSONLine bounds a single resource line. Bulk exports put whole
// resources on one line, and some (Bundles, DocumentReferences with inline
// attachments) are large.
const maxNDJSONLine = 64 << 20

// NDJSONReader reads resources in NDJSON (Newline Delimited JSON) format, the
// format produced by FHIR Bulk Data exports. Blank lines are skipped.
type NDJSONReader struct {
	s    *bufio.Scanner
	line int
}

// NewNDJSONReader creates a new NDJSONReader that reads from r.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 1<<20), maxNDJSONLine)
	return &NDJSONReader{s: s}
}

// Next returns the next non-blank line and its 1-based line number. It
// returns io.EOF when the input is exhausted. The returned slice is a copy.
func (n *NDJSONReader) Next() ([]byte, int, error) {
	for n.s.Scan() {
		n.line++
		b := bytes.TrimSpace(n.s.Bytes())
		if len(b) == 0 {
			continue
		}
		return append([]byte(nil), b...), n.line, nil
	}
	if err := n.s.Err(); err != nil {
		return nil, n.line, fmt.Errorf("read ndjson line %d: %w", n.line+1, err)
	}
	return nil, n.line, io.EOF
}

package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

// NDJSONSource reads resources from bulk-export files. Path may be a single
// file or a directory; in a directory every *.ndjson file is read in name
// order.
type NDJSONSource struct {
	path string
}

func NewNDJSONSource(path string) *NDJSONSource {
	return &NDJSONSource{path: path}
}

func (s *NDJSONSource) files() ([]string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if !info.IsDir() {
		return []string{s.path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.path, "*.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.path, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *NDJSONSource) Iterate(ctx context.Context, fn func(Record) error) error {
	files, err := s.files()
	if err != nil {
		return err
	}
	for _, name := range files {
		if err := s.iterateFile(ctx, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *NDJSONSource) iterateFile(ctx context.Context, name string, fn func(Record) error) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := fhir.NewNDJSONReader(f)
	base := filepath.Base(name)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, n, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", base, err)
		}
		if err := fn(Record{Raw: line, Origin: fmt.Sprintf("%s:%d", base, n)}); err != nil {
			return err
		}
	}
}

// GetResource scans the files for a resource with the given type and logical
// id. It is meant for single re-index requests, not for bulk access.
func (s *NDJSONSource) GetResource(ctx context.Context, resourceType, id string) ([]byte, error) {
	var found []byte
	stop := errors.New("found")
	err := s.Iterate(ctx, func(rec Record) error {
		doc, err := fhir.ParseDocument(rec.Raw, "")
		if err != nil {
			return nil
		}
		if doc.ResourceType == resourceType && doc.LogicalID == id {
			found = rec.Raw
			return stop
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%s/%s: %w", resourceType, id, ErrNotFound)
	}
	return found, nil
}

// Package filestore keeps verifications and advertisement submissions in JSON files.
// It backs local development and tests; production deployments use postgres or dynamo.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// jsonFile reads and atomically rewrites one JSON document. Callers serialise access.
type jsonFile struct {
	path string
}

func newJSONFile(dir, name string) (*jsonFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &jsonFile{path: filepath.Join(dir, name)}, nil
}

// load decodes the file into v. A missing file leaves v untouched.
func (f *jsonFile) load(v any) error {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	return nil
}

// save writes v to a temp file and renames it over the target, so a crash leaves either
// the old or the new document.
func (f *jsonFile) save(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

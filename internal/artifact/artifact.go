// Package artifact implements the stage boundary contract: every stage reads
// one JSON document and writes one JSON document carrying the recurring
// {doc_id, stage, version} envelope. Writes are atomic (temp file + rename)
// so a partially written artifact is never observable.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Envelope is embedded in every stage output.
type Envelope struct {
	DocID   string `json:"doc_id"`
	Stage   string `json:"stage"`
	Version string `json:"version"`
}

// NewEnvelope builds an envelope for a stage. An empty docID mints a new one.
func NewEnvelope(docID, stage, version string) Envelope {
	if docID == "" {
		docID = uuid.NewString()
	}
	return Envelope{DocID: docID, Stage: stage, Version: version}
}

// Store reads and writes stage artifacts under a base directory, one file per
// stage: <base>/<stage>.json.
type Store struct {
	Dir string
}

// Path returns the on-disk location of a stage's artifact.
func (s *Store) Path(stage string) string {
	return filepath.Join(s.Dir, stage+".json")
}

// Write marshals v with indentation and renames it into place. Deterministic
// for identical inputs: encoding/json emits struct fields in declaration
// order, so re-running a stage with unchanged inputs produces identical bytes.
func (s *Store) Write(stage string, v any) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s artifact: %w", stage, err)
	}
	tmp, err := os.CreateTemp(s.Dir, stage+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s artifact: %w", stage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(stage)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish %s artifact: %w", stage, err)
	}
	return nil
}

// Read unmarshals a stage's artifact into v.
func (s *Store) Read(stage string, v any) error {
	data, err := os.ReadFile(s.Path(stage))
	if err != nil {
		return fmt.Errorf("read %s artifact: %w", stage, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s artifact: %w", stage, err)
	}
	return nil
}

// Exists reports whether a stage has already produced its artifact. A missing
// artifact is the observable "stage not yet run" state, not an error.
func (s *Store) Exists(stage string) bool {
	_, err := os.Stat(s.Path(stage))
	return err == nil
}

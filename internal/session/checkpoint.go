// checkpoint.go persists the full session record to the session directory.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const checkpointFile = "checkpoint.json"

// SaveCheckpoint writes a full serialized snapshot of the session to
// dir/checkpoint.json. The write goes through a temp file and a rename so
// a crash mid-write can never corrupt the previous checkpoint.
func SaveCheckpoint(dir string, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	path := filepath.Join(dir, checkpointFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}

	return nil
}

// LoadCheckpoint reads and validates the checkpoint in dir. Returns
// nil, nil when no checkpoint exists.
func LoadCheckpoint(dir string) (*Session, error) {
	path := filepath.Join(dir, checkpointFile)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint: %w", err)
	}

	return &s, nil
}

// ClearCheckpoint removes the checkpoint file. Missing files are not an
// error.
func ClearCheckpoint(dir string) error {
	path := filepath.Join(dir, checkpointFile)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}

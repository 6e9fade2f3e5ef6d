package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileLedger keeps the quota state in a small JSON file next to the
// other operator state. A missing file reads as the zero state.
type FileLedger struct {
	path string
}

var _ Ledger = (*FileLedger)(nil)

func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

func (l *FileLedger) Load() (State, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse quota state %s: %w", l.path, err)
	}
	return st, nil
}

// Save writes through a temp file and renames it into place. A crash
// mid-write must never leave truncated JSON behind: Load would reject
// it and every later run would skip admission checks.
func (l *FileLedger) Save(st State) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".quota-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

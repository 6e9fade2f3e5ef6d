package persistence

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"shorts-uploader/internal/jobs"
)

// CSVStore backs the pending-job list with a flat CSV file. Mutation is
// backup-then-rewrite: the full prior contents land in a `.backup`
// sibling before the store file is replaced through a temp file and
// rename, so a crash mid-write never loses the list.
type CSVStore struct {
	path string
}

var _ jobs.Store = (*CSVStore)(nil)

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the store file location.
func (s *CSVStore) Path() string {
	return s.path
}

// BackupPath returns where the pre-mutation snapshot is written.
func (s *CSVStore) BackupPath() string {
	return s.path + ".backup"
}

func (s *CSVStore) Load(ctx context.Context) ([]jobs.Job, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open upload list: %w", err)
	}
	defer f.Close()

	list, err := jobs.ParseList(f)
	if err != nil {
		return nil, fmt.Errorf("parse upload list %s: %w", s.path, err)
	}
	return list, nil
}

func (s *CSVStore) RemoveFirst(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	prior, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read upload list: %w", err)
	}

	list, err := jobs.ParseList(bytes.NewReader(prior))
	if err != nil {
		return fmt.Errorf("parse upload list %s: %w", s.path, err)
	}
	if n > len(list) {
		n = len(list)
	}

	// Snapshot first. If anything after this point fails the operator
	// can restore the pre-run state from the backup by hand.
	if err := os.WriteFile(s.BackupPath(), prior, 0o644); err != nil {
		return fmt.Errorf("write backup %s: %w", s.BackupPath(), err)
	}

	var buf bytes.Buffer
	if err := jobs.WriteList(&buf, list[n:]); err != nil {
		return fmt.Errorf("encode remaining jobs: %w", err)
	}
	if err := writeFileAtomic(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("rewrite upload list: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers only ever observe complete contents.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".uploadlist-*")
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
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

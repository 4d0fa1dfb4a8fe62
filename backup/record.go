package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasjlepore/fitsync/fitfile"
)

// ErrNoPathRecord reports that no backup path has been saved yet.
var ErrNoPathRecord = errors.New("no backup path record")

// PathRecord is the persisted backup location.
type PathRecord struct {
	BackupPath string `json:"backup_path"`
}

// LoadPathRecord reads the record at path. The recorded directory must still
// exist.
func LoadPathRecord(path string) (*PathRecord, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoPathRecord
	}
	if err != nil {
		return nil, fmt.Errorf("read backup path record: %w", err)
	}

	var rec PathRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode backup path record %s: %w", path, err)
	}
	if rec.BackupPath == "" {
		return nil, ErrNoPathRecord
	}
	if err := CheckDir(rec.BackupPath); err != nil {
		return &rec, err
	}
	return &rec, nil
}

// SavePathRecord stores dir as an absolute path in the record at path.
func SavePathRecord(path, dir string) (*PathRecord, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve backup directory: %w", err)
	}
	if err := CheckDir(abs); err != nil {
		return nil, err
	}

	rec := &PathRecord{BackupPath: abs}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup path record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create record directory: %w", err)
	}
	if err := fitfile.WriteFileAtomic(path, append(raw, '\n')); err != nil {
		return nil, fmt.Errorf("write backup path record: %w", err)
	}
	return rec, nil
}

// Package backup names and writes timestamped copies of rewritten activities.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lucasjlepore/fitsync/fitfile"
	"github.com/lucasjlepore/fitsync/locate"
)

// TimeLayout is the timestamp embedded in backup names.
const TimeLayout = "2006-01-02_150405"

// ErrBackupDirMissing reports a backup directory that does not exist.
var ErrBackupDirMissing = errors.New("backup directory does not exist")

// Entry describes one archived file.
type Entry struct {
	Source *locate.ActivityFile `json:"source"`
	Name   string               `json:"name"`
	Dir    string               `json:"dir"`
	Path   string               `json:"path"`
	Size   int                  `json:"size"`
	SHA256 string               `json:"sha256"`
}

// Name returns <BaseName>-<version>_<YYYY-MM-DD_HHMMSS><ext> for af at ts.
func Name(af *locate.ActivityFile, ts time.Time) string {
	ext := af.Ext
	if ext == "" {
		ext = locate.DefaultExt
	}
	return fmt.Sprintf("%s_%s%s", af.Stem(), ts.Format(TimeLayout), ext)
}

// Archiver writes backups into Dir. It never creates Dir.
type Archiver struct {
	Dir string
}

// Archive writes data under Name(af, ts), replacing any file of that name.
func (a Archiver) Archive(af *locate.ActivityFile, ts time.Time, data []byte) (*Entry, error) {
	if af == nil {
		return nil, fmt.Errorf("archive: no source file")
	}
	if err := CheckDir(a.Dir); err != nil {
		return nil, err
	}

	name := Name(af, ts)
	path := filepath.Join(a.Dir, name)
	if err := fitfile.WriteFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	sum := sha256.Sum256(data)
	return &Entry{
		Source: af,
		Name:   name,
		Dir:    a.Dir,
		Path:   path,
		Size:   len(data),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// CheckDir returns ErrBackupDirMissing unless dir is an existing directory.
func CheckDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: no directory configured", ErrBackupDirMissing)
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrBackupDirMissing, dir)
	}
	if err != nil {
		return fmt.Errorf("stat backup directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup path %s is not a directory", dir)
	}
	return nil
}

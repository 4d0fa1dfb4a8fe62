// Package locate finds the newest versioned activity export in a directory.
package locate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseName is the export name used by the MyWhoosh application.
const DefaultBaseName = "MyNewActivity"

// DefaultExt is the activity file extension.
const DefaultExt = ".fit"

// Version is the application version triple embedded in an export name.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 ordering v against o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// ActivityFile is one export discovered on disk. It is never modified.
type ActivityFile struct {
	BaseName string    `json:"base_name"`
	Version  Version   `json:"version"`
	Ext      string    `json:"ext"`
	Path     string    `json:"path"`
	ModTime  time.Time `json:"mod_time"`
}

// Name returns the file name without directory.
func (a *ActivityFile) Name() string {
	return filepath.Base(a.Path)
}

// Stem returns the file name without extension, e.g. MyNewActivity-3.9.1.
// The name on disk is kept as is, so MyNewActivity-3.08.5 stays zero-padded.
func (a *ActivityFile) Stem() string {
	if a.Path != "" {
		return strings.TrimSuffix(a.Name(), filepath.Ext(a.Path))
	}
	return a.BaseName + "-" + a.Version.String()
}

// Pattern describes export names of the form <BaseName>-<major>.<minor>.<patch><Ext>.
type Pattern struct {
	BaseName string
	Ext      string
}

// DefaultPattern matches MyNewActivity-x.y.z.fit.
func DefaultPattern() Pattern {
	return Pattern{BaseName: DefaultBaseName, Ext: DefaultExt}
}

func (p Pattern) regexp() (*regexp.Regexp, error) {
	if strings.TrimSpace(p.BaseName) == "" {
		return nil, fmt.Errorf("base name is required")
	}
	ext := p.Ext
	if ext == "" {
		ext = DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return regexp.Compile(`^` + regexp.QuoteMeta(p.BaseName) + `-(\d+)\.(\d+)\.(\d+)(?i:` + regexp.QuoteMeta(ext) + `)$`)
}

// Match parses name against the pattern.
func (p Pattern) Match(name string) (Version, bool) {
	re, err := p.regexp()
	if err != nil {
		return Version{}, false
	}
	return matchVersion(re, name)
}

func matchVersion(re *regexp.Regexp, name string) (Version, bool) {
	m := re.FindStringSubmatch(name)
	if m == nil {
		return Version{}, false
	}
	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Version{}, false
		}
		parts[i] = n
	}
	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, true
}

// Locate returns the export with the highest version in dir, breaking ties by
// the newest modification time. It returns nil without error when nothing
// matches; an empty export directory is normal between activities.
func Locate(dir string, p Pattern) (*ActivityFile, error) {
	re, err := p.regexp()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read export directory: %w", err)
	}

	var best *ActivityFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		v, ok := matchVersion(re, entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		candidate := &ActivityFile{
			BaseName: p.BaseName,
			Version:  v,
			Ext:      filepath.Ext(entry.Name()),
			Path:     filepath.Join(dir, entry.Name()),
			ModTime:  info.ModTime(),
		}
		if best == nil || newer(candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

func newer(a, b *ActivityFile) bool {
	if c := a.Version.Compare(b.Version); c != 0 {
		return c > 0
	}
	return a.ModTime.After(b.ModTime)
}

// Locator binds a directory and pattern so the orchestrator can hold it as a
// collaborator.
type Locator struct {
	Dir     string
	Pattern Pattern
}

// Locate runs Locate on the configured directory.
func (l Locator) Locate() (*ActivityFile, error) {
	return Locate(l.Dir, l.Pattern)
}

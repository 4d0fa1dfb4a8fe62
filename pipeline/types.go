package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/lucasjlepore/fitsync/backup"
	"github.com/lucasjlepore/fitsync/fitfile"
	"github.com/lucasjlepore/fitsync/ledger"
	"github.com/lucasjlepore/fitsync/locate"
	"github.com/lucasjlepore/fitsync/rewrite"
)

// State is a step of one sync run.
type State int

const (
	Idle State = iota
	Locating
	Authenticating
	Rewriting
	Archiving
	Uploading
	Done
	Failed
)

var stateNames = [...]string{"idle", "locating", "authenticating", "rewriting", "archiving", "uploading", "done", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Outcome is the terminal result of a run.
type Outcome int

const (
	Uploaded Outcome = iota
	Duplicate
	NoSourceFile
	AuthFailed
	RewriteFailed
	UploadFailed
)

var outcomeNames = [...]string{"uploaded", "duplicate", "no_source_file", "auth_failed", "rewrite_failed", "upload_failed"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Success reports whether the activity is on the platform after the run.
func (o Outcome) Success() bool {
	return o == Uploaded || o == Duplicate
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case Uploaded, Duplicate:
		return 0
	case NoSourceFile:
		return 2
	case AuthFailed:
		return 3
	case RewriteFailed:
		return 4
	default:
		return 5
	}
}

// UploadStatus is a successful upload response.
type UploadStatus int

const (
	UploadSuccess UploadStatus = iota
	UploadDuplicate
)

// Session is an authenticated platform session, passed from the
// Authenticator to the Uploader unchanged.
type Session interface {
	Account() string
}

// Locator finds the newest source activity. A nil file means none exists.
type Locator interface {
	Locate() (*locate.ActivityFile, error)
}

// Authenticator resumes a platform session.
type Authenticator interface {
	Authenticate(ctx context.Context) (Session, error)
}

// Rewriter sanitizes a decoded activity.
type Rewriter interface {
	Rewrite(r io.Reader) (*rewrite.Result, error)
}

// Builder serializes messages back to FIT bytes.
type Builder interface {
	Build(h fitfile.Header, msgs []fitfile.Message) ([]byte, error)
}

// Verifier checks rebuilt bytes before anything is written.
type Verifier interface {
	Verify(data []byte) (*fitfile.Summary, error)
}

// Archiver stores the rebuilt file.
type Archiver interface {
	Archive(af *locate.ActivityFile, ts time.Time, data []byte) (*backup.Entry, error)
}

// Uploader sends the rebuilt file to the platform.
type Uploader interface {
	Upload(ctx context.Context, s Session, name string, data []byte) (UploadStatus, error)
}

// Ledger is the optional run history.
type Ledger interface {
	Record(ctx context.Context, e ledger.Entry) error
	UploadedBefore(ctx context.Context, sha256 string) (bool, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(h fitfile.Header, msgs []fitfile.Message) ([]byte, error)

func (f BuilderFunc) Build(h fitfile.Header, msgs []fitfile.Message) ([]byte, error) {
	return f(h, msgs)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(data []byte) (*fitfile.Summary, error)

func (f VerifierFunc) Verify(data []byte) (*fitfile.Summary, error) {
	return f(data)
}

// Result describes one run.
type Result struct {
	RunID           string               `json:"run_id"`
	StartedAt       time.Time            `json:"started_at"`
	Duration        time.Duration        `json:"duration"`
	Outcome         Outcome              `json:"outcome"`
	States          []State              `json:"states"`
	Source          *locate.ActivityFile `json:"source,omitempty"`
	SourceSHA256    string               `json:"source_sha256,omitempty"`
	Stats           *rewrite.Stats       `json:"stats,omitempty"`
	Verified        *fitfile.Summary     `json:"verified,omitempty"`
	Backup          *backup.Entry        `json:"backup,omitempty"`
	ExportPath      string               `json:"export_path,omitempty"`
	AlreadyUploaded bool                 `json:"already_uploaded,omitempty"`
	Err             error                `json:"-"`
}

// State returns the terminal state of the run.
func (r *Result) State() State {
	if len(r.States) == 0 {
		return Idle
	}
	return r.States[len(r.States)-1]
}

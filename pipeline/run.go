package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/lucasjlepore/fitsync/export"
	"github.com/lucasjlepore/fitsync/fitfile"
	"github.com/lucasjlepore/fitsync/ledger"
)

// ErrNoSourceFile is the run error when the export directory holds no activity.
var ErrNoSourceFile = errors.New("no activity file found")

// Orchestrator runs one locate, authenticate, rewrite, archive and upload
// cycle. Verifier, Ledger and ExportFormat are optional.
type Orchestrator struct {
	Locator       Locator
	Authenticator Authenticator
	Rewriter      Rewriter
	Builder       Builder
	Verifier      Verifier
	Archiver      Archiver
	Uploader      Uploader
	Ledger        Ledger

	// ExportFormat is "", "parquet" or "csv".
	ExportFormat string

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Validate reports a missing required collaborator or an unsupported export
// format.
func (o *Orchestrator) Validate() error {
	_, err := o.validate()
	return err
}

// validate returns the normalized export format.
func (o *Orchestrator) validate() (string, error) {
	switch {
	case o.Locator == nil:
		return "", errors.New("pipeline: locator is required")
	case o.Authenticator == nil:
		return "", errors.New("pipeline: authenticator is required")
	case o.Rewriter == nil:
		return "", errors.New("pipeline: rewriter is required")
	case o.Builder == nil:
		return "", errors.New("pipeline: builder is required")
	case o.Archiver == nil:
		return "", errors.New("pipeline: archiver is required")
	case o.Uploader == nil:
		return "", errors.New("pipeline: uploader is required")
	}
	return export.NormalizeFormat(o.ExportFormat)
}

type run struct {
	o      *Orchestrator
	logger *slog.Logger
	res    *Result
}

func (r *run) enter(s State) {
	r.res.States = append(r.res.States, s)
	r.logger.Debug("state", "state", s.String())
}

func (r *run) fail(outcome Outcome, err error) *Result {
	r.res.Outcome = outcome
	r.res.Err = err
	r.enter(Failed)
	r.logger.Error("sync failed", "outcome", outcome.String(), "error", err)
	return r.res
}

func (r *run) done(outcome Outcome) *Result {
	r.res.Outcome = outcome
	r.enter(Done)
	r.logger.Info("sync finished", "outcome", outcome.String())
	return r.res
}

// Run executes one sync and always returns exactly one outcome. The source
// file is only ever read.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	newID := o.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := now()
	res := &Result{RunID: newID(), StartedAt: started}
	r := &run{o: o, logger: logger.With("run_id", res.RunID), res: res}
	r.enter(Idle)

	out := r.execute(ctx)
	out.Duration = now().Sub(started)
	o.record(ctx, r.logger, out)
	return out
}

func (r *run) execute(ctx context.Context) *Result {
	o, res := r.o, r.res
	format, err := o.validate()
	if err != nil {
		return r.fail(RewriteFailed, err)
	}

	r.enter(Locating)
	af, err := o.Locator.Locate()
	if err != nil {
		return r.fail(NoSourceFile, fmt.Errorf("locate activity: %w", err))
	}
	if af == nil {
		return r.fail(NoSourceFile, ErrNoSourceFile)
	}
	res.Source = af
	r.logger = r.logger.With("source", af.Path)
	r.logger.Info("found activity", "version", af.Version.String(), "modified", af.ModTime)

	r.enter(Authenticating)
	session, err := o.Authenticator.Authenticate(ctx)
	if err != nil {
		return r.fail(AuthFailed, fmt.Errorf("authenticate: %w", err))
	}
	if session == nil {
		return r.fail(AuthFailed, errors.New("authenticate: no session"))
	}
	r.logger.Info("authenticated", "account", session.Account())

	r.enter(Rewriting)
	source, err := os.ReadFile(af.Path)
	if err != nil {
		return r.fail(RewriteFailed, fmt.Errorf("read activity: %w", err))
	}
	sum := sha256.Sum256(source)
	res.SourceSHA256 = hex.EncodeToString(sum[:])
	if o.Ledger != nil {
		seen, err := o.Ledger.UploadedBefore(ctx, res.SourceSHA256)
		if err != nil {
			r.logger.Warn("ledger lookup failed", "error", err)
		}
		if seen {
			res.AlreadyUploaded = true
			r.logger.Info("activity was uploaded by an earlier run")
		}
	}

	rewritten, err := o.Rewriter.Rewrite(bytes.NewReader(source))
	if err != nil {
		return r.fail(RewriteFailed, fmt.Errorf("rewrite activity: %w", err))
	}
	res.Stats = &rewritten.Stats
	r.logger.Info("rewrote activity",
		"records", rewritten.Stats.Records,
		"temperature_removed", rewritten.Stats.TemperatureRemoved,
		"sessions_updated", rewritten.Stats.SessionsUpdated,
		"avg_cadence", rewritten.Stats.AvgCadence,
		"avg_power", rewritten.Stats.AvgPower,
		"avg_heart_rate", rewritten.Stats.AvgHeartRate)

	data, err := o.Builder.Build(rewritten.Header, rewritten.Messages)
	if err != nil {
		return r.fail(RewriteFailed, fmt.Errorf("build activity: %w", err))
	}
	if o.Verifier != nil {
		summary, err := o.Verifier.Verify(data)
		if err != nil {
			return r.fail(RewriteFailed, fmt.Errorf("verify rebuilt activity: %w", err))
		}
		res.Verified = summary
	}

	r.enter(Archiving)
	entry, err := o.Archiver.Archive(af, r.res.StartedAt, data)
	if err != nil {
		return r.fail(RewriteFailed, fmt.Errorf("archive activity: %w", err))
	}
	res.Backup = entry
	r.logger.Info("archived activity", "backup", entry.Path, "bytes", entry.Size)

	if format != "" {
		path := export.PathFor(entry.Path, format)
		if err := export.Write(path, format, rewritten.Messages); err != nil {
			r.logger.Warn("sample export failed", "path", path, "error", err)
		} else {
			res.ExportPath = path
		}
	}

	r.enter(Uploading)
	status, err := o.Uploader.Upload(ctx, session, entry.Name, data)
	if err != nil {
		return r.fail(UploadFailed, fmt.Errorf("upload activity: %w", err))
	}
	if status == UploadDuplicate {
		r.logger.Info("activity already exists on the platform")
		return r.done(Duplicate)
	}
	return r.done(Uploaded)
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, res *Result) {
	if o.Ledger == nil {
		return
	}
	e := ledger.Entry{
		RunID:        res.RunID,
		StartedAt:    res.StartedAt,
		SourceSHA256: res.SourceSHA256,
		Outcome:      res.Outcome.String(),
	}
	if res.Source != nil {
		e.SourcePath = res.Source.Path
	}
	if res.Backup != nil {
		e.BackupPath = res.Backup.Path
	}
	if res.Err != nil {
		e.Detail = res.Err.Error()
	}
	if err := o.Ledger.Record(ctx, e); err != nil {
		logger.Warn("ledger record failed", "error", err)
	}
}

// Build adapts fitfile.Build to Builder.
var Build = BuilderFunc(fitfile.Build)

// Verify adapts fitfile.Verify to Verifier.
var Verify = VerifierFunc(fitfile.Verify)

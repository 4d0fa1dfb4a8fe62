package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lucasjlepore/fitsync/backup"
	"github.com/lucasjlepore/fitsync/garmin"
	"github.com/lucasjlepore/fitsync/ledger"
	"github.com/lucasjlepore/fitsync/locate"
	"github.com/lucasjlepore/fitsync/pipeline"
	"github.com/lucasjlepore/fitsync/rewrite"
)

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Process and upload the newest activity once (default command)",
		Args:  cobra.NoArgs,
		RunE:  a.runSync,
	}
}

func (a *app) runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, closer, err := a.orchestrator()
	if err != nil {
		return err
	}
	defer closer()

	res := orch.Run(ctx)
	printSummary(a.stdout, res)
	if code := res.Outcome.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// orchestrator wires the configured collaborators. The returned func closes
// the ledger.
func (a *app) orchestrator() (*pipeline.Orchestrator, func(), error) {
	cfg := a.cfg
	if err := cfg.RequireSourceDir(); err != nil {
		return nil, nil, err
	}
	backupDir, err := cfg.ResolveBackupDir()
	if err != nil {
		return nil, nil, err
	}

	orch := &pipeline.Orchestrator{
		Locator:       locate.Locator{Dir: cfg.SourceDir, Pattern: cfg.Pattern},
		Authenticator: &garmin.TokenAuthenticator{TokensDir: cfg.TokensDir, Token: cfg.Token},
		Rewriter:      rewrite.Rewriter{},
		Builder:       pipeline.Build,
		Archiver:      backup.Archiver{Dir: backupDir},
		Uploader:      garmin.NewClient(cfg.UploadURL),
		ExportFormat:  cfg.ExportFormat,
		Logger:        a.logger,
	}
	if cfg.Verify {
		orch.Verifier = pipeline.Verify
	}

	closer := func() {}
	if cfg.LedgerPath != "" {
		store, err := openLedger(cfg.LedgerPath)
		if err != nil {
			a.logger.Warn("run history disabled", "error", err)
		} else {
			orch.Ledger = store
			closer = func() { _ = store.Close() }
		}
	}
	return orch, closer, nil
}

func openLedger(path string) (*ledger.SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return ledger.Open(path)
}

func printSummary(w io.Writer, res *pipeline.Result) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	label := green(res.Outcome.String())
	switch {
	case res.Outcome == pipeline.Duplicate:
		label = yellow(res.Outcome.String())
	case !res.Outcome.Success():
		label = red(res.Outcome.String())
	}

	fmt.Fprintf(w, "outcome:      %s\n", label)
	if res.Source != nil {
		fmt.Fprintf(w, "source:       %s\n", res.Source.Path)
	}
	if s := res.Stats; s != nil {
		fmt.Fprintf(w, "records:      %d (%d temperature fields removed)\n", s.Records, s.TemperatureRemoved)
		fmt.Fprintf(w, "averages:     cadence %.1f rpm, power %.1f W, heart rate %.1f bpm\n", s.AvgCadence, s.AvgPower, s.AvgHeartRate)
	}
	if res.Backup != nil {
		fmt.Fprintf(w, "backup:       %s\n", res.Backup.Path)
	}
	if res.ExportPath != "" {
		fmt.Fprintf(w, "samples:      %s\n", res.ExportPath)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "error:        %s\n", red(res.Err.Error()))
	}
	fmt.Fprintf(w, "run:          %s (%s)\n", res.RunID, res.Duration.Round(time.Millisecond))
}

// syncOnce runs the orchestrator and prints its summary, for watch mode.
func (a *app) syncOnce(orch *pipeline.Orchestrator) func(ctx context.Context) {
	return func(ctx context.Context) {
		printSummary(a.stdout, orch.Run(ctx))
	}
}

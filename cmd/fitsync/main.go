// Command fitsync sanitizes the newest MyWhoosh activity export, keeps a
// timestamped backup and uploads it to Garmin Connect.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lucasjlepore/fitsync/config"
)

// Linker flags.
var (
	version = "dev"
	commit  = "none"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app holds state shared by the subcommands of one invocation.
type app struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	logger     *slog.Logger
	logFile    io.Closer
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, color.New(color.FgRed).Sprint("error: ")+ee.err.Error())
		}
		return ee.code
	}
	fmt.Fprintln(stderr, color.New(color.FgRed).Sprint("error: ")+err.Error())
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fitsync",
		Short: "Sanitize MyWhoosh activities and upload them to Garmin Connect",
		Long: `fitsync picks the newest MyWhoosh export (MyNewActivity-x.y.z.fit), strips
record temperatures, recomputes the session averages, stores a timestamped
backup and uploads the result to Garmin Connect.

Running it again is safe: an activity that is already on the account is
reported as a duplicate and counts as success.`,
		Version:           fmt.Sprintf("%s (%s)", version, commit),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runSync,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is "+filepath.Join(config.Dir(), "config.yaml")+")")
	flags.String("source-dir", "", "directory MyWhoosh writes activity exports to")
	flags.String("backup-dir", "", "directory for sanitized backups (overrides the saved backup path)")
	flags.String("export", "", "also write per-sample data next to the backup: parquet or csv")
	flags.String("ledger", "", "run history database (empty string disables)")
	flags.String("log-file", "", "log file path")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Bool("no-verify", false, "skip decoding the rebuilt file with an independent reader")

	root.AddCommand(a.syncCmd(), a.watchCmd(), a.historyCmd(), a.backupDirCmd())
	return root
}

var flagKeys = map[string]string{
	"source-dir": "source_dir",
	"backup-dir": "backup_dir",
	"export":     "export.format",
	"ledger":     "ledger.path",
	"log-file":   "log.file",
	"log-level":  "log.level",
}

// setup loads the configuration and the logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.v = config.New(a.configFile)
	for flag, key := range flagKeys {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	if noVerify, _ := cmd.Flags().GetBool("no-verify"); noVerify {
		a.v.Set("verify", false)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := newLogger(cfg, a.stderr)
	if err != nil {
		return err
	}
	a.logger, a.logFile = logger, closer
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("using config file", "path", used)
	}
	return nil
}

// newLogger writes text logs to stderr and, when configured, appends them to
// the log file.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFile == "" {
		return slog.New(slog.NewTextHandler(stderr, opts)), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(io.MultiWriter(stderr, f), opts)), f, nil
}

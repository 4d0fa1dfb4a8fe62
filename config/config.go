// Package config resolves fitsync settings from defaults, a YAML file,
// FITSYNC_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lucasjlepore/fitsync/backup"
	"github.com/lucasjlepore/fitsync/export"
	"github.com/lucasjlepore/fitsync/locate"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "FITSYNC"

// DefaultBackupDir is used when neither backup_dir nor a path record is set.
const DefaultBackupDir = "MyWhooshFitBackup"

// Raw holds the unvalidated values viper unmarshals into.
type Raw struct {
	SourceDir    string `mapstructure:"source_dir"`
	BaseName     string `mapstructure:"base_name"`
	Extension    string `mapstructure:"extension"`
	BackupDir    string `mapstructure:"backup_dir"`
	BackupRecord string `mapstructure:"backup_record"`
	Verify       bool   `mapstructure:"verify"`
	Export       struct {
		Format string `mapstructure:"format"`
	} `mapstructure:"export"`
	Ledger struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"ledger"`
	Garmin struct {
		TokensDir string `mapstructure:"tokens_dir"`
		Token     string `mapstructure:"token"`
		UploadURL string `mapstructure:"upload_url"`
	} `mapstructure:"garmin"`
	Watch struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"watch"`
	Log struct {
		File  string `mapstructure:"file"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Config is the validated configuration.
type Config struct {
	SourceDir     string
	Pattern       locate.Pattern
	BackupDir     string
	BackupRecord  string
	Verify        bool
	ExportFormat  string
	LedgerPath    string
	TokensDir     string
	Token         string
	UploadURL     string
	WatchDebounce time.Duration
	LogFile       string
	LogLevel      slog.Level
}

// Dir returns the fitsync configuration directory.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fitsync")
	}
	return ".fitsync"
}

// SetDefaults registers defaults on v.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("source_dir", DefaultSourceDir())
	v.SetDefault("base_name", locate.DefaultBaseName)
	v.SetDefault("extension", locate.DefaultExt)
	v.SetDefault("backup_dir", "")
	v.SetDefault("backup_record", filepath.Join(Dir(), "backup_path.json"))
	v.SetDefault("verify", true)
	v.SetDefault("export.format", "")
	v.SetDefault("ledger.path", filepath.Join(Dir(), "history.db"))
	v.SetDefault("garmin.tokens_dir", filepath.Join(home, ".garth"))
	v.SetDefault("garmin.token", "")
	v.SetDefault("garmin.upload_url", "https://connectapi.garmin.com")
	v.SetDefault("watch.debounce", 5*time.Second)
	v.SetDefault("log.file", filepath.Join(Dir(), "fitsync.log"))
	v.SetDefault("log.level", "info")
}

// New returns a viper instance reading configFile, or config.yaml from Dir()
// and the working directory when configFile is empty.
func New(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the config file if one exists and validates the merged values.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	var raw Raw
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	return Validate(&raw)
}

// Validate turns raw values into a Config.
func Validate(raw *Raw) (*Config, error) {
	cfg := &Config{
		SourceDir:     expandHome(strings.TrimSpace(raw.SourceDir)),
		Pattern:       locate.Pattern{BaseName: strings.TrimSpace(raw.BaseName), Ext: strings.TrimSpace(raw.Extension)},
		BackupDir:     expandHome(strings.TrimSpace(raw.BackupDir)),
		BackupRecord:  expandHome(strings.TrimSpace(raw.BackupRecord)),
		Verify:        raw.Verify,
		LedgerPath:    expandHome(strings.TrimSpace(raw.Ledger.Path)),
		TokensDir:     expandHome(strings.TrimSpace(raw.Garmin.TokensDir)),
		Token:         strings.TrimSpace(raw.Garmin.Token),
		UploadURL:     strings.TrimSpace(raw.Garmin.UploadURL),
		WatchDebounce: raw.Watch.Debounce,
		LogFile:       expandHome(strings.TrimSpace(raw.Log.File)),
	}
	if cfg.Pattern.BaseName == "" {
		return nil, errors.New("base_name must not be empty")
	}
	if cfg.Pattern.Ext == "" {
		cfg.Pattern.Ext = locate.DefaultExt
	}
	if !strings.HasPrefix(cfg.Pattern.Ext, ".") {
		cfg.Pattern.Ext = "." + cfg.Pattern.Ext
	}
	if cfg.WatchDebounce < 0 {
		return nil, fmt.Errorf("watch.debounce must not be negative, got %s", cfg.WatchDebounce)
	}

	format, err := export.NormalizeFormat(raw.Export.Format)
	if err != nil {
		return nil, err
	}
	cfg.ExportFormat = format

	level := strings.TrimSpace(raw.Log.Level)
	if level == "" {
		level = "info"
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", raw.Log.Level, err)
	}
	return cfg, nil
}

// RequireSourceDir checks that the export directory is configured.
func (c *Config) RequireSourceDir() error {
	if c.SourceDir == "" {
		return errors.New("source_dir is not set and no MyWhoosh data directory was found; set it in the config file or FITSYNC_SOURCE_DIR")
	}
	return nil
}

// ResolveBackupDir picks backup_dir, then the saved path record, then
// DefaultBackupDir, which is created when missing. A stale path record is an
// error so the user can choose a new directory.
func (c *Config) ResolveBackupDir() (string, error) {
	if c.BackupDir != "" {
		return c.BackupDir, nil
	}
	rec, err := backup.LoadPathRecord(c.BackupRecord)
	switch {
	case err == nil:
		return rec.BackupPath, nil
	case errors.Is(err, backup.ErrNoPathRecord):
	default:
		return "", fmt.Errorf("%w; run `fitsync backup-dir <path>` to choose a new one", err)
	}

	dir, err := filepath.Abs(DefaultBackupDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	return dir, nil
}

// DefaultSourceDir returns the MyWhoosh export directory for this platform,
// or "" when it cannot be found.
func DefaultSourceDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{filepath.Join(home, "Library", "Containers", "com.whoosh.whooshgame",
			"Data", "Library", "Application Support", "Epic", "MyWhoosh", "Content", "Data")}
	case "windows":
		matches, _ := filepath.Glob(filepath.Join(home, "AppData", "Local", "Packages",
			"MyWhooshTechnologyService.MyWhoosh_*", "LocalCache", "Local", "MyWhoosh", "Content", "Data"))
		candidates = matches
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

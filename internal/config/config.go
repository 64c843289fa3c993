// Package config loads and persists the strata configuration surface.
//
// Values come from, in increasing precedence: built-in defaults, the
// config.yaml file in the data directory, and STRATA_* environment
// variables (e.g. STRATA_MIN_TASKS_PER_WORKSTREAM=3).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file inside the data directory.
	FileName = "config.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "STRATA"
	// DatabaseFile is the SQLite task store inside the data directory.
	DatabaseFile = "tasks.db"
	// BackupDirName holds pre-migration backups.
	BackupDirName = "backups"
	// LockFile marks a running migration across processes.
	LockFile = ".migration.lock"
)

// Config is the full tunable surface.
type Config struct {
	DataDir string `yaml:"data_dir"`

	AutoMigrate         bool `yaml:"auto_migrate"`
	Interactive         bool `yaml:"interactive"`
	AutoBackup          bool `yaml:"auto_backup"`
	BackupRetentionDays int  `yaml:"backup_retention_days"`

	MinTasksPerWorkstream  int  `yaml:"min_tasks_per_workstream"`
	MaxWorkstreamsPerPhase int  `yaml:"max_workstreams_per_phase"`
	PreserveHierarchies    bool `yaml:"preserve_hierarchies"`

	// RequireAgentHandoff forces every active agent in a phase to be
	// deactivated before the phase can be advanced.
	RequireAgentHandoff bool          `yaml:"require_agent_handoff"`
	SimilarityTimeout   time.Duration `yaml:"similarity_timeout"`
	AdminID             string        `yaml:"admin_id"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in defaults.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:                filepath.Join(home, ".strata"),
		AutoMigrate:            true,
		Interactive:            true,
		AutoBackup:             true,
		BackupRetentionDays:    7,
		MinTasksPerWorkstream:  5,
		MaxWorkstreamsPerPhase: 7,
		PreserveHierarchies:    true,
		RequireAgentHandoff:    false,
		SimilarityTimeout:      2 * time.Second,
		AdminID:                "admin",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// DatabasePath returns the task store path.
func (c Config) DatabasePath() string { return filepath.Join(c.DataDir, DatabaseFile) }

// BackupDir returns the directory holding migration backups.
func (c Config) BackupDir() string { return filepath.Join(c.DataDir, BackupDirName) }

// LockPath returns the cross-process migration lock path.
func (c Config) LockPath() string { return filepath.Join(c.DataDir, LockFile) }

// Validate returns an error if any value is out of range.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.BackupRetentionDays < 0 {
		return fmt.Errorf("backup_retention_days must be >= 0, got %d", c.BackupRetentionDays)
	}
	if c.MinTasksPerWorkstream < 1 {
		return fmt.Errorf("min_tasks_per_workstream must be >= 1, got %d", c.MinTasksPerWorkstream)
	}
	if c.MaxWorkstreamsPerPhase < 1 {
		return fmt.Errorf("max_workstreams_per_phase must be >= 1, got %d", c.MaxWorkstreamsPerPhase)
	}
	if c.SimilarityTimeout < 0 {
		return fmt.Errorf("similarity_timeout must not be negative")
	}
	if strings.TrimSpace(c.AdminID) == "" {
		return fmt.Errorf("admin_id must not be empty")
	}
	return nil
}

// newViper builds a viper instance seeded with defaults and env bindings.
func newViper(dir string) *viper.Viper {
	def := Default()
	if dir != "" {
		def.DataDir = dir
	}

	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(def.DataDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("auto_migrate", def.AutoMigrate)
	v.SetDefault("interactive", def.Interactive)
	v.SetDefault("auto_backup", def.AutoBackup)
	v.SetDefault("backup_retention_days", def.BackupRetentionDays)
	v.SetDefault("min_tasks_per_workstream", def.MinTasksPerWorkstream)
	v.SetDefault("max_workstreams_per_phase", def.MaxWorkstreamsPerPhase)
	v.SetDefault("preserve_hierarchies", def.PreserveHierarchies)
	v.SetDefault("require_agent_handoff", def.RequireAgentHandoff)
	v.SetDefault("similarity_timeout", def.SimilarityTimeout)
	v.SetDefault("admin_id", def.AdminID)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	return v
}

// Load reads config.yaml from dir (the default data dir when empty) and
// applies environment overrides. A missing file yields the defaults.
func Load(dir string) (Config, error) {
	v := newViper(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading %s: %w", FileName, err)
		}
	}

	cfg := Config{
		DataDir:                v.GetString("data_dir"),
		AutoMigrate:            v.GetBool("auto_migrate"),
		Interactive:            v.GetBool("interactive"),
		AutoBackup:             v.GetBool("auto_backup"),
		BackupRetentionDays:    v.GetInt("backup_retention_days"),
		MinTasksPerWorkstream:  v.GetInt("min_tasks_per_workstream"),
		MaxWorkstreamsPerPhase: v.GetInt("max_workstreams_per_phase"),
		PreserveHierarchies:    v.GetBool("preserve_hierarchies"),
		RequireAgentHandoff:    v.GetBool("require_agent_handoff"),
		SimilarityTimeout:      v.GetDuration("similarity_timeout"),
		AdminID:                v.GetString("admin_id"),
		LogLevel:               v.GetString("log_level"),
		LogFormat:              v.GetString("log_format"),
	}
	// The file lives inside the data dir, so a data_dir key in it only
	// matters when the caller did not pin one.
	if dir != "" && os.Getenv(EnvPrefix+"_DATA_DIR") == "" {
		cfg.DataDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as config.yaml inside cfg.DataDir.
func Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	data, err := yaml.Marshal(fileView(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path := filepath.Join(cfg.DataDir, FileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// fileView renders durations as strings so the YAML stays human-editable.
func fileView(cfg Config) map[string]any {
	m := Values(cfg)
	m["similarity_timeout"] = cfg.SimilarityTimeout.String()
	return m
}

// Values returns every key with its current value.
func Values(cfg Config) map[string]any {
	return map[string]any{
		"data_dir":                  cfg.DataDir,
		"auto_migrate":              cfg.AutoMigrate,
		"interactive":               cfg.Interactive,
		"auto_backup":               cfg.AutoBackup,
		"backup_retention_days":     cfg.BackupRetentionDays,
		"min_tasks_per_workstream":  cfg.MinTasksPerWorkstream,
		"max_workstreams_per_phase": cfg.MaxWorkstreamsPerPhase,
		"preserve_hierarchies":      cfg.PreserveHierarchies,
		"require_agent_handoff":     cfg.RequireAgentHandoff,
		"similarity_timeout":        cfg.SimilarityTimeout,
		"admin_id":                  cfg.AdminID,
		"log_level":                 cfg.LogLevel,
		"log_format":                cfg.LogFormat,
	}
}

// Keys returns the sorted list of configuration keys.
func Keys() []string {
	m := Values(Config{})
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value and assigns it to key on cfg.
func Set(cfg *Config, key, value string) error {
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("%s expects true/false, got %q", key, value)
		}
		return b, nil
	}
	parseInt := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s expects an integer, got %q", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "data_dir":
		cfg.DataDir = value
	case "auto_migrate":
		cfg.AutoMigrate, err = parseBool()
	case "interactive":
		cfg.Interactive, err = parseBool()
	case "auto_backup":
		cfg.AutoBackup, err = parseBool()
	case "backup_retention_days":
		cfg.BackupRetentionDays, err = parseInt()
	case "min_tasks_per_workstream":
		cfg.MinTasksPerWorkstream, err = parseInt()
	case "max_workstreams_per_phase":
		cfg.MaxWorkstreamsPerPhase, err = parseInt()
	case "preserve_hierarchies":
		cfg.PreserveHierarchies, err = parseBool()
	case "require_agent_handoff":
		cfg.RequireAgentHandoff, err = parseBool()
	case "similarity_timeout":
		cfg.SimilarityTimeout, err = time.ParseDuration(value)
	case "admin_id":
		cfg.AdminID = value
	case "log_level":
		cfg.LogLevel = value
	case "log_format":
		cfg.LogFormat = value
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	if err != nil {
		return err
	}
	return cfg.Validate()
}

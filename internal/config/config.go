// Package config loads periodetl settings from config.toml, PERIODETL_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"periodetl/internal/domain"
)

// Keys of the settings that flags bind to.
const (
	KeyFamily        = "family"
	KeyWorkDir       = "work_dir"
	KeyVaultLocation = "vault_location"
	KeyLogLevel      = "log.level"
	KeyLogPretty     = "log.pretty"
	KeyFailFast      = "run.fail_fast"
	KeySkipLoaded    = "run.skip_loaded"
	KeySchedule      = "watch.schedule"
	KeyMetricsAddr   = "watch.metrics_addr"
	KeyStoreDriver   = "store.driver"
	KeyStoreHost     = "store.host"
)

// FileName is the config file looked up in the working directory.
const FileName = "config.toml"

const envPrefix = "PERIODETL"

// Config is the resolved configuration of one invocation.
type Config struct {
	Family        string                    `mapstructure:"family" validate:"required,excludesall=/\\"`
	WorkDir       string                    `mapstructure:"work_dir" validate:"required"`
	VaultLocation string                    `mapstructure:"vault_location"`
	Store         domain.DatabaseConnection `mapstructure:"store"`
	Log           LogConfig                 `mapstructure:"log"`
	Run           RunConfig                 `mapstructure:"run"`
	Watch         WatchConfig               `mapstructure:"watch"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

type RunConfig struct {
	FailFast   bool `mapstructure:"fail_fast"`
	SkipLoaded bool `mapstructure:"skip_loaded"`
}

type WatchConfig struct {
	Schedule    string        `mapstructure:"schedule"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Debounce    time.Duration `mapstructure:"debounce"`
}

// ConfDir is where the manifest and field references live.
func (c *Config) ConfDir() string { return filepath.Join(c.WorkDir, "conf") }

// ManifestPath is the dataset manifest.
func (c *Config) ManifestPath() string { return filepath.Join(c.ConfDir(), "datasets.csv") }

// OutputDir holds per-period artifacts and the file-based stores.
func (c *Config) OutputDir() string { return filepath.Join(c.WorkDir, "output") }

// StatePath is the SQLite file holding run history.
func (c *Config) StatePath() string { return filepath.Join(c.OutputDir(), "periodetl.db") }

// SourceRoot is the directory raw source paths are resolved against.
func (c *Config) SourceRoot() string {
	if c.VaultLocation == "" {
		return c.WorkDir
	}
	if filepath.IsAbs(c.VaultLocation) {
		return c.VaultLocation
	}
	return filepath.Join(c.WorkDir, c.VaultLocation)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyFamily, "combined")
	v.SetDefault(KeyWorkDir, ".")
	v.SetDefault(KeyVaultLocation, "")
	v.SetDefault(KeyStoreDriver, string(domain.DatabaseDriverSQLite))
	v.SetDefault(KeyStoreHost, "")
	v.SetDefault("store.port", 0)
	v.SetDefault("store.database", "")
	v.SetDefault("store.username", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.sslmode", "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyFailFast, false)
	v.SetDefault(KeySkipLoaded, false)
	v.SetDefault(KeySchedule, "")
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault("watch.debounce", "500ms")
}

// Load resolves the configuration. It reads <dir>/config.toml when present,
// then applies environment variables and the flags in fs that were set.
// fs may be nil.
func Load(dir string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(strings.TrimSuffix(FileName, ".toml"))
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read %s: %w", FileName, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.WorkDir == "." || cfg.WorkDir == "" {
		cfg.WorkDir = dir
	}
	if cfg.Store.Driver == domain.DatabaseDriverSQLite && cfg.Store.Host == "" {
		cfg.Store.Host = filepath.Join(cfg.OutputDir(), cfg.Family+".db")
	}
	if cfg.Store.Driver == domain.DatabaseDriverCSV && cfg.Store.Host == "" {
		cfg.Store.Host = cfg.OutputDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"family":       KeyFamily,
	"dir":          KeyWorkDir,
	"vault":        KeyVaultLocation,
	"log-level":    KeyLogLevel,
	"pretty":       KeyLogPretty,
	"fail-fast":    KeyFailFast,
	"skip-loaded":  KeySkipLoaded,
	"schedule":     KeySchedule,
	"metrics-addr": KeyMetricsAddr,
	"store":        KeyStoreDriver,
	"store-host":   KeyStoreHost,
}

// bindFlags binds every flag of fs listed in flagKeys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and the cron schedule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return fmt.Errorf("invalid config: watch.schedule: %w", err)
		}
	}
	return nil
}

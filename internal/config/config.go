// Package config loads sqlscope settings.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, an optional .env file, then SQLSCOPE_* environment
// variables. Command line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/filestore"
	"github.com/koustreak/sqlscope/internal/guard"
	"github.com/koustreak/sqlscope/internal/logger"
	"go.yaml.in/yaml/v3"
)

const EnvPrefix = "SQLSCOPE_"

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Stats    StatsConfig    `yaml:"stats"`
	Export   ExportConfig   `yaml:"export"`
	Server   ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	// Path, when set, is connected at startup.
	Path         string        `yaml:"path"`
	Policy       string        `yaml:"policy"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

type StatsConfig struct {
	Workers          int           `yaml:"workers"`
	DefaultLimit     int           `yaml:"default_limit"`
	MaxLimit         int           `yaml:"max_limit"`
	FullScanRowLimit int64         `yaml:"full_scan_row_limit"`
	SampleSize       int           `yaml:"sample_size"`
	SchemaCacheTTL   time.Duration `yaml:"schema_cache_ttl"`
}

type ExportConfig struct {
	Dir     string        `yaml:"dir"`
	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig enables uploading exports when Endpoint is set.
type StorageConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	UseSSL     bool          `yaml:"use_ssl"`
	Region     string        `yaml:"region"`
	Bucket     string        `yaml:"bucket"`
	Prefix     string        `yaml:"prefix"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type ServerConfig struct {
	Transport         string        `yaml:"transport"`
	ListenAddr        string        `yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	db := database.DefaultConfig("")
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Policy:       guard.PolicySelectOnly.String(),
			QueryTimeout: 30 * time.Second,
			BusyTimeout:  db.BusyTimeout,
			MaxOpenConns: db.MaxOpenConns,
		},
		Stats: StatsConfig{
			Workers:        4,
			DefaultLimit:   10,
			MaxLimit:       1000,
			SampleSize:     1000,
			SchemaCacheTTL: 30 * time.Second,
		},
		Export: ExportConfig{Dir: "."},
		Server: ServerConfig{
			Transport:         TransportStdio,
			ListenAddr:        "127.0.0.1:8010",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
	}
}

// Load builds the configuration from path (optional YAML file), envFile
// (optional; ".env" in the working directory is tried when empty) and the
// process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.Wrap(errs.ErrKindNotFound, "config file not found", err)
		}
		return errs.Wrap(errs.ErrKindIOFailure, "failed to open config file", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// loadDotEnv sets variables from the .env file without overriding ones
// already present in the environment.
func loadDotEnv(envFile string) error {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	err := godotenv.Load(envFile)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("failed to load env file %s", envFile), err)
}

// ApplyEnv overrides settings from SQLSCOPE_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var firstErr error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	parse := func(name string, set func(string) error) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || firstErr != nil {
			return
		}
		if err := set(v); err != nil {
			firstErr = errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("invalid %s%s", EnvPrefix, name), err)
		}
	}
	integer := func(name string, dst *int) {
		parse(name, func(v string) (err error) { *dst, err = strconv.Atoi(v); return })
	}
	duration := func(name string, dst *time.Duration) {
		parse(name, func(v string) (err error) { *dst, err = time.ParseDuration(v); return })
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("DB_PATH", &c.Database.Path)
	str("GUARD_POLICY", &c.Database.Policy)
	duration("QUERY_TIMEOUT", &c.Database.QueryTimeout)
	duration("BUSY_TIMEOUT", &c.Database.BusyTimeout)
	integer("MAX_OPEN_CONNS", &c.Database.MaxOpenConns)

	integer("STATS_WORKERS", &c.Stats.Workers)
	integer("STATS_MAX_LIMIT", &c.Stats.MaxLimit)
	integer("STATS_SAMPLE_SIZE", &c.Stats.SampleSize)
	parse("STATS_FULL_SCAN_ROW_LIMIT", func(v string) (err error) {
		c.Stats.FullScanRowLimit, err = strconv.ParseInt(v, 10, 64)
		return
	})

	str("EXPORT_DIR", &c.Export.Dir)
	str("STORAGE_ENDPOINT", &c.Export.Storage.Endpoint)
	str("STORAGE_ACCESS_KEY", &c.Export.Storage.AccessKey)
	str("STORAGE_SECRET_KEY", &c.Export.Storage.SecretKey)
	str("STORAGE_REGION", &c.Export.Storage.Region)
	str("STORAGE_BUCKET", &c.Export.Storage.Bucket)
	str("STORAGE_PREFIX", &c.Export.Storage.Prefix)
	parse("STORAGE_USE_SSL", func(v string) (err error) {
		c.Export.Storage.UseSSL, err = strconv.ParseBool(v)
		return
	})
	duration("STORAGE_PRESIGN_TTL", &c.Export.Storage.PresignTTL)

	str("TRANSPORT", &c.Server.Transport)
	str("LISTEN_ADDR", &c.Server.ListenAddr)

	return firstErr
}

func (c *Config) Validate() error {
	if !logger.ValidLevel(c.Log.Level) {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid log format %q (want json or console)", c.Log.Format)
	}
	if _, err := guard.ParsePolicy(c.Database.Policy); err != nil {
		return err
	}
	if c.Database.QueryTimeout < 0 || c.Database.BusyTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "timeouts must not be negative")
	}
	if c.Database.MaxOpenConns < 1 {
		return errs.New(errs.ErrKindInvalidInput, "max_open_conns must be at least 1")
	}
	if c.Stats.Workers < 1 {
		return errs.New(errs.ErrKindInvalidInput, "stats workers must be at least 1")
	}
	if c.Stats.DefaultLimit < 1 || c.Stats.DefaultLimit > c.Stats.MaxLimit {
		return errs.Newf(errs.ErrKindInvalidInput, "stats default_limit must be between 1 and max_limit (%d)", c.Stats.MaxLimit)
	}
	if c.Stats.FullScanRowLimit < 0 || c.Stats.SampleSize < 1 {
		return errs.New(errs.ErrKindInvalidInput, "stats full_scan_row_limit must not be negative and sample_size must be positive")
	}
	if c.Export.Storage.Enabled() {
		if err := c.StoreConfig().Validate(); err != nil {
			return err
		}
	}
	switch c.Server.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.Server.ListenAddr == "" {
			return errs.New(errs.ErrKindInvalidInput, "listen_addr is required for the http transport")
		}
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "invalid transport %q (want stdio or http)", c.Server.Transport)
	}
	return nil
}

// Enabled reports whether exports are uploaded.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != ""
}

// GuardPolicy returns the parsed statement policy. Call after Validate.
func (c *Config) GuardPolicy() guard.Policy {
	p, _ := guard.ParsePolicy(c.Database.Policy)
	return p
}

// DatabaseConfig returns the pool settings every connected file is opened
// with. The file is opened read-only under the select-only policy.
func (c *Config) DatabaseConfig() *database.Config {
	db := database.DefaultConfig("")
	db.ReadOnly = c.GuardPolicy() == guard.PolicySelectOnly
	db.BusyTimeout = c.Database.BusyTimeout
	db.MaxOpenConns = c.Database.MaxOpenConns
	if db.MaxIdleConns > db.MaxOpenConns {
		db.MaxIdleConns = db.MaxOpenConns
	}
	return db
}

func (c *Config) StoreConfig() *filestore.Config {
	s := c.Export.Storage
	cfg := filestore.DefaultConfig(s.Endpoint, s.AccessKey, s.SecretKey)
	cfg.UseSSL = s.UseSSL
	cfg.Region = s.Region
	cfg.Bucket = s.Bucket
	return cfg
}

func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}

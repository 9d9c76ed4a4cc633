// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package config loads a RunConfig: the fully-resolved plan a migration run
// consumes, layered from CLI flags, environment variables, and a YAML file,
// in that priority order (flags beat env, env beats file, file beats
// defaults) — the same layering the teacher used for its single-table
// MariaDB-to-Aurora config, generalized to a run carrying any number of
// items and a richer per-item settings block.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionKind names the backend a ConnectionConfig dials.
type ConnectionKind string

const (
	ConnMySQL    ConnectionKind = "mysql"
	ConnPostgres ConnectionKind = "postgres"
	ConnCSV      ConnectionKind = "csv"
	ConnCSVS3    ConnectionKind = "csv_s3"
)

// ConnectionConfig describes one endpoint — source or destination.
type ConnectionConfig struct {
	Kind     ConnectionKind `yaml:"kind"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	User     string         `yaml:"user"`
	Password string         `yaml:"password"`
	Database string         `yaml:"database"`

	// SecretsManagerSecret, when set, resolves Password at connect time via
	// internal/util instead of reading it from this file (see spec.md §2.3).
	SecretsManagerSecret string `yaml:"secrets_manager_secret"`
	AWSRegion            string `yaml:"aws_region"`

	// S3Bucket/S3Prefix apply only to ConnCSVS3.
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
}

// Settings is the per-item settings block CollectSettings turns into
// phase-ordered runtime.Setting values (see internal/runtime).
type Settings struct {
	BatchSize            uint64 `yaml:"batch_size"`
	IgnoreConstraints    bool   `yaml:"ignore_constraints"`
	CopyColumnsMapOnly   bool   `yaml:"copy_columns_map_only"`
	InferSchema          bool   `yaml:"infer_schema"`
	CreateMissingTables  bool   `yaml:"create_missing_tables"`
	CreateMissingColumns bool   `yaml:"create_missing_columns"`
	CascadeSchema        bool   `yaml:"cascade_schema"`

	CSVDelimiter string `yaml:"csv_delimiter"`
	CSVHeader    bool   `yaml:"csv_header"`
	CSVIDColumn  string `yaml:"csv_id_column"`
}

// ItemSpec names one source object (table, CSV file) to migrate and how.
type ItemSpec struct {
	Name       string   `yaml:"name"`
	DestTable  string   `yaml:"dest_table"`
	PKColumn   string   `yaml:"pk_column"`   // drives the default pagination.PkStrategy
	HashColumn string   `yaml:"hash_column"` // non-empty enables internal/runtime.FanOut
	Parts      int      `yaml:"parts"`       // part count passed to segment.SplitHashSpace; default 1 without hash_column, must be in [1, 256] with it
	Settings   Settings `yaml:"settings"`
}

// RetryConfig tunes internal/retry's backoff policy for transient source and
// sink failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// RunConfig is the already-resolved plan internal/runtime consumes: where to
// read from, where to write to, which items to migrate and how each should
// behave. Building a RunConfig from a declarative migration-spec file is out
// of scope (spec.md §1 Non-goals) — RunConfig is the parsed result.
type RunConfig struct {
	RunID       string
	Source      ConnectionConfig
	Destination ConnectionConfig
	Items       []ItemSpec
	Retry       RetryConfig
	DryRun      bool
	Quiet       bool // from the file or WithQuiet; nothing reads it after Load (cmd/migrate picks its log output from its own -quiet flag)

	// ReportBucket, if set, is where a dry run uploads its rendered
	// report.ValidationReport JSON once the run completes. Empty means
	// the report is only logged, not uploaded.
	ReportBucket string
	ReportPrefix string
	ReportRegion string
}

type fileConfig struct {
	Source       ConnectionConfig `yaml:"source"`
	Destination  ConnectionConfig `yaml:"destination"`
	Items        []ItemSpec       `yaml:"items"`
	Retry        RetryConfig      `yaml:"retry"`
	DryRun       bool             `yaml:"dry_run"`
	Quiet        bool             `yaml:"quiet"`
	ReportBucket string           `yaml:"report_bucket"`
	ReportPrefix string           `yaml:"report_prefix"`
	ReportRegion string           `yaml:"report_region"`
}

// Option overrides one field of a RunConfig after file+env layering, used to
// apply CLI flags without this package owning a flag.FlagSet itself (the
// binary in cmd/migrate defines its own flags and passes the ones the
// operator set).
type Option func(*RunConfig)

func WithDryRun(v bool) Option { return func(c *RunConfig) { c.DryRun = v } }
func WithQuiet(v bool) Option  { return func(c *RunConfig) { c.Quiet = v } }
func WithRunID(id string) Option {
	return func(c *RunConfig) {
		if id != "" {
			c.RunID = id
		}
	}
}

// Load reads path as YAML, applies MIGRATOR_* environment overrides
// (connection host, user and password, AWS region, run id, dry run), then
// applies opts (CLI flags), fills in defaults, and validates the result. Priority: opts > environment > file > defaults.
func Load(path string, opts ...Option) (*RunConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := &RunConfig{
		Source:       fc.Source,
		Destination:  fc.Destination,
		Items:        fc.Items,
		Retry:        fc.Retry,
		DryRun:       fc.DryRun,
		Quiet:        fc.Quiet,
		ReportBucket: fc.ReportBucket,
		ReportPrefix: fc.ReportPrefix,
		ReportRegion: fc.ReportRegion,
	}
	applyEnvOverrides(cfg)
	for _, opt := range opts {
		opt(cfg)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *RunConfig) {
	if v := os.Getenv("MIGRATOR_SOURCE_HOST"); v != "" {
		cfg.Source.Host = v
	}
	if v := os.Getenv("MIGRATOR_SOURCE_USER"); v != "" {
		cfg.Source.User = v
	}
	if v := os.Getenv("MIGRATOR_SOURCE_PASSWORD"); v != "" {
		cfg.Source.Password = v
	}
	if v := os.Getenv("MIGRATOR_DEST_HOST"); v != "" {
		cfg.Destination.Host = v
	}
	if v := os.Getenv("MIGRATOR_DEST_USER"); v != "" {
		cfg.Destination.User = v
	}
	if v := os.Getenv("MIGRATOR_DEST_PASSWORD"); v != "" {
		cfg.Destination.Password = v
	}
	if v := os.Getenv("MIGRATOR_AWS_REGION"); v != "" {
		cfg.Source.AWSRegion = v
		cfg.Destination.AWSRegion = v
	}
	if v := os.Getenv("MIGRATOR_RUN_ID"); v != "" {
		cfg.RunID = v
	}
	if v := os.Getenv("MIGRATOR_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DryRun = b
		}
	}
}

func applyDefaults(cfg *RunConfig) {
	if cfg.Destination.Kind == "" {
		cfg.Destination.Kind = ConnPostgres
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	for i := range cfg.Items {
		item := &cfg.Items[i]
		if item.DestTable == "" {
			item.DestTable = item.Name
		}
		if item.PKColumn == "" {
			item.PKColumn = "id"
		}
		if item.Parts == 0 && item.HashColumn == "" {
			item.Parts = 1
		}
		if item.Settings.BatchSize == 0 {
			item.Settings.BatchSize = 1000
		}
		if item.Settings.CSVDelimiter == "" {
			item.Settings.CSVDelimiter = ","
		}
	}
}

func validate(cfg *RunConfig) error {
	if cfg.Source.Kind == "" {
		return fmt.Errorf("config: source.kind is required")
	}
	if cfg.Source.Kind != ConnCSV && cfg.Source.Kind != ConnCSVS3 && cfg.Source.Host == "" {
		return fmt.Errorf("config: source.host is required for kind %q", cfg.Source.Kind)
	}
	if cfg.Destination.Host == "" {
		return fmt.Errorf("config: destination.host is required")
	}
	if len(cfg.Items) == 0 {
		return fmt.Errorf("config: at least one item is required")
	}
	for _, item := range cfg.Items {
		if item.Name == "" {
			return fmt.Errorf("config: item name is required")
		}
		if item.HashColumn != "" && (item.Parts < 1 || item.Parts > 256) {
			return fmt.Errorf("config: item %s: parts must be in [1, 256] when hash_column is set, got %d", item.Name, item.Parts)
		}
	}
	if cfg.Source.Kind == ConnCSVS3 || cfg.Destination.Kind == ConnCSVS3 {
		if cfg.Source.S3Bucket == "" && cfg.Destination.S3Bucket == "" {
			return fmt.Errorf("config: s3_bucket is required for kind %q", ConnCSVS3)
		}
	}
	return nil
}

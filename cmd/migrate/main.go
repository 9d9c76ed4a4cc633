// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Command migrate drives one migration run: it loads a RunConfig from a
// YAML file (with CLI flags and MIGRATOR_* environment variables layered
// on top), builds each configured item's source/sink/pipeline, and hands
// the whole run to internal/migration.Run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/config"
	"github.com/dataforge/migrator/internal/dialect"
	fislog "github.com/dataforge/migrator/internal/log"
	"github.com/dataforge/migrator/internal/migration"
	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/report"
	"github.com/dataforge/migrator/internal/runtime"
	"github.com/dataforge/migrator/internal/s3"
	"github.com/dataforge/migrator/internal/schema"
	"github.com/dataforge/migrator/internal/sink"
	"github.com/dataforge/migrator/internal/source"
	"github.com/dataforge/migrator/internal/state"
	"github.com/dataforge/migrator/internal/store"
	"github.com/dataforge/migrator/internal/transform"
	"github.com/dataforge/migrator/internal/util"
)

func main() {
	var (
		configPath      = flag.String("config", "", "path to the migration run's YAML config file (required)")
		dryRun          = flag.Bool("dry-run", false, "validate every row without writing to the destination")
		quiet           = flag.Bool("quiet", false, "write logs to a file under -log-dir instead of stdout")
		runID           = flag.String("run-id", "", "run id whose checkpoints are used and resumed (default \"default\")")
		logDir          = flag.String("log-dir", "logs", "directory log files are written to")
		debug           = flag.Bool("debug", false, "enable debug-level logging")
		stateDir        = flag.String("state-dir", "state", "directory the bbolt checkpoint/WAL store lives in")
		maxParallelItem = flag.Int("max-parallel-items", migration.DefaultMaxParallelItems, "maximum number of items migrated concurrently")
	)
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "migrate: -config is required")
		os.Exit(2)
	}

	log, err := fislog.NewLogger(*logDir, "migrate", *debug, !*quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	var opts []config.Option
	if flagSet("dry-run") {
		opts = append(opts, config.WithDryRun(*dryRun))
	}
	if flagSet("quiet") {
		opts = append(opts, config.WithQuiet(*quiet))
	}
	if *runID != "" {
		opts = append(opts, config.WithRunID(*runID))
	}

	cfg, err := config.Load(*configPath, opts...)
	if err != nil {
		log.Fatal("migrate: load config", zap.Error(err))
	}

	// No CLI flags carry AWS keys directly; when the environment has no keys
	// either, this copies the vault-injected files into it.
	util.LoadAWSCredentials("", "", "")

	if err := os.MkdirAll(*stateDir, 0o755); err != nil {
		log.Fatal("migrate: create state dir", zap.Error(err))
	}
	checkpoints, err := state.Open(fmt.Sprintf("%s/%s.db", *stateDir, runIDOrDefault(cfg.RunID)))
	if err != nil {
		log.Fatal("migrate: open checkpoint store", zap.Error(err))
	}
	defer checkpoints.Close() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var reportBuilder *report.Builder
	if cfg.DryRun {
		reportBuilder = report.NewBuilder(string(cfg.Source.Kind), string(cfg.Destination.Kind))
	}

	itemBuilder := newItemBuilder(cfg, checkpoints, reportBuilder, log)
	if err := migration.Run(ctx, cfg, *maxParallelItem, itemBuilder, log); err != nil {
		log.Error("migrate: run failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("migrate: run completed", zap.String("run_id", cfg.RunID))

	if reportBuilder != nil {
		if err := publishReport(ctx, cfg, reportBuilder.Build(), log); err != nil {
			log.Error("migrate: publish dry-run report", zap.Error(err))
			os.Exit(1)
		}
	}
}

// publishReport renders rpt as JSON, logs its headline, and — when
// cfg.ReportBucket is set — uploads the full document to S3 via the same
// internal/s3.Uploader a live run's dry-run staging would use.
func publishReport(ctx context.Context, cfg *config.RunConfig, rpt report.ValidationReport, log *zap.Logger) error {
	body, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal validation report: %w", err)
	}
	log.Info("migrate: dry-run report",
		zap.String("status", string(rpt.Summary.Status)),
		zap.Int("records_sampled", rpt.Summary.RecordsSampled),
		zap.Int("findings", len(rpt.Findings)))

	if cfg.ReportBucket == "" {
		return nil
	}
	uploader, err := s3.NewUploader(ctx, config.ConnectionConfig{
		Kind:      config.ConnCSVS3,
		S3Bucket:  cfg.ReportBucket,
		S3Prefix:  cfg.ReportPrefix,
		AWSRegion: cfg.ReportRegion,
	}, log)
	if err != nil {
		return fmt.Errorf("build report uploader: %w", err)
	}
	key := fmt.Sprintf("%s/validation-report.json", runIDOrDefault(cfg.RunID))
	if cfg.ReportPrefix != "" {
		key = cfg.ReportPrefix + "/" + key
	}
	if err := uploader.UploadBytes(ctx, body, key); err != nil {
		return fmt.Errorf("upload validation report: %w", err)
	}
	log.Info("migrate: uploaded dry-run report", zap.String("key", key))
	return nil
}

func runIDOrDefault(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

// flagSet reports whether name was explicitly set on the command line, so
// an unset bool flag never overrides a value the YAML file or an
// environment variable already supplied (see internal/config's Option
// layering doc).
func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// newItemBuilder returns a migration.ItemBuilder that wires a real
// source/sink/pipeline for item against cfg's source and destination
// connections. rpt is nil unless cfg.DryRun, in which case every item's
// ValidationConsumer feeds the same report.Builder.
func newItemBuilder(cfg *config.RunConfig, st *state.Store, rpt *report.Builder, log *zap.Logger) migration.ItemBuilder {
	return func(ctx context.Context, item config.ItemSpec) (*runtime.ItemRuntime, error) {
		src, strategy, err := buildSource(ctx, cfg, item, log)
		if err != nil {
			return nil, fmt.Errorf("build source for %s: %w", item.Name, err)
		}

		if rpt != nil && cfg.Source.Kind != config.ConnMySQL && cfg.Source.Kind != config.ConnPostgres {
			rpt.AddFinding(report.UnsupportedSourceFinding(string(cfg.Source.Kind)))
		}

		destPassword, err := resolvePassword(ctx, cfg.Destination)
		if err != nil {
			return nil, fmt.Errorf("resolve destination password: %w", err)
		}
		destDSN, err := store.BuildDSN(cfg.Destination, destPassword)
		if err != nil {
			return nil, fmt.Errorf("build destination dsn: %w", err)
		}
		pgSink, err := sink.NewPostgresSink(ctx, destDSN, log)
		if err != nil {
			return nil, fmt.Errorf("open destination sink: %w", err)
		}

		destEntity := model.Entity{Kind: model.EntityTable, Schema: cfg.Destination.Database, Name: item.DestTable}

		sourceMeta, err := src.Describe(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe source %s: %w", item.Name, err)
		}
		destMeta, destExists, err := pgSink.DescribeTable(ctx, destEntity)
		if err != nil {
			return nil, fmt.Errorf("describe destination %s: %w", destEntity, err)
		}

		copyColumns := runtime.CopyColumnsAll
		if item.Settings.CopyColumnsMapOnly {
			copyColumns = runtime.CopyColumnsMapOnly
		}

		ic := &runtime.ItemContext{
			Source:          src,
			Sink:            pgSink,
			SchemaPlanner:   schema.NewPlanner(dialect.NewPostgres()),
			DestEntity:      destEntity,
			SourceMeta:      sourceMeta,
			DestMeta:        destMeta,
			DestTableExists: destExists,
			Log:             log,
		}

		settings := runtime.CollectSettings(runtime.ItemSettingsConfig{
			BatchSize:            item.Settings.BatchSize,
			IgnoreConstraints:    item.Settings.IgnoreConstraints,
			CopyColumns:          copyColumns,
			InferSchema:          item.Settings.InferSchema,
			CreateMissingTables:  item.Settings.CreateMissingTables,
			CreateMissingColumns: item.Settings.CreateMissingColumns,
			CascadeSchema:        item.Settings.CascadeSchema,
		})

		return &runtime.ItemRuntime{
			Context:  ic,
			Settings: settings,
			Strategy: strategy,
			Pipeline: transform.NewPipeline(),
			Store:    st,
			RunID:    runIDOrDefault(cfg.RunID),
			ItemID:   item.Name,
			DryRun:   cfg.DryRun,
			Report:   rpt,
			Log:      log,
		}, nil
	}
}

// buildSource opens item's source connector and its default pagination
// strategy (PkStrategy for SQL tables, DefaultStrategy for CSV, which
// runtime.FanOut further restricts to a hash range when item.HashColumn is
// set).
func buildSource(ctx context.Context, cfg *config.RunConfig, item config.ItemSpec, log *zap.Logger) (source.Source, pagination.Strategy, error) {
	entity := model.Entity{Kind: model.EntityTable, Schema: cfg.Source.Database, Name: item.Name}

	switch cfg.Source.Kind {
	case config.ConnMySQL, config.ConnPostgres:
		password, err := resolvePassword(ctx, cfg.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve source password: %w", err)
		}
		dsn, err := store.BuildDSN(cfg.Source, password)
		if err != nil {
			return nil, nil, err
		}
		strategy := pagination.PkStrategy{Col: pagination.QualCol{Table: item.Name, Column: item.PKColumn}}
		var src source.Source
		if cfg.Source.Kind == config.ConnMySQL {
			src, err = source.NewMySQLSource(ctx, dsn, entity, strategy, log)
		} else {
			src, err = source.NewPostgresSource(ctx, dsn, entity, strategy, log)
		}
		if err != nil {
			return nil, nil, err
		}
		return src, strategy, nil

	case config.ConnCSV:
		strategy := pagination.DefaultStrategy{PageSize: item.Settings.BatchSize}
		return source.NewLocalCSVSource(item.Name, func(path string) (io.ReadCloser, error) { return os.Open(path) }, strategy, log), strategy, nil

	case config.ConnCSVS3:
		downloader, err := s3.NewDownloader(ctx, cfg.Source, log)
		if err != nil {
			return nil, nil, fmt.Errorf("build s3 downloader: %w", err)
		}
		strategy := pagination.DefaultStrategy{PageSize: item.Settings.BatchSize}
		key := item.Name
		if cfg.Source.S3Prefix != "" {
			key = cfg.Source.S3Prefix + "/" + item.Name
		}
		return source.NewS3CSVSource(downloader, key, strategy, log), strategy, nil

	default:
		return nil, nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
}

// resolvePassword resolves conn's password through internal/util: an
// explicit SecretsManagerSecret takes priority over a plaintext password
// sitting in the config file, following the same priority the teacher used
// for its Aurora credential.
func resolvePassword(ctx context.Context, conn config.ConnectionConfig) (string, error) {
	if conn.SecretsManagerSecret == "" {
		return conn.Password, nil
	}
	return util.ResolveDBPassword(ctx, conn.SecretsManagerSecret, conn.AWSRegion)
}

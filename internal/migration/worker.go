// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package migration orchestrates a RunConfig's items: it drives each item's
// internal/runtime.ItemRuntime, bounding how many run concurrently, the way
// the teacher's ProcessSegments bounded concurrent per-segment export jobs
// — but expressed as an errgroup concurrency limit instead of a manual
// batch-then-wg.Wait() loop, and fanning out hash-partitioned items across
// internal/segment parts instead of CSV-exporting them to S3.
package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dataforge/migrator/internal/config"
	"github.com/dataforge/migrator/internal/runtime"
	"github.com/dataforge/migrator/internal/segment"
)

// DefaultMaxParallelItems bounds how many items Run drives concurrently
// when maxParallel is left at zero, matching the teacher's default
// max-parallel-segments of 8.
const DefaultMaxParallelItems = 8

// ItemBuilder constructs the fully-wired ItemRuntime for one item spec,
// opening its source/sink connections, schema planner and validator. The
// caller (cmd/migrate) owns connection lifecycles; Run only orchestrates.
// A builder's returned ItemRuntime may be fanned out across several
// concurrently-running parts (see Run) — its Source and Sink must tolerate
// concurrent use by more than one goroutine, as database/sql- and
// pgxpool-backed implementations already do.
type ItemBuilder func(ctx context.Context, item config.ItemSpec) (*runtime.ItemRuntime, error)

// Run drives every item in cfg.Items through build, running up to
// maxParallel (DefaultMaxParallelItems if <= 0) concurrently. An item whose
// HashColumn is set fans out across item.Parts hash-range parts via
// runtime.FanOut, sharing the one ItemRuntime build produced across every
// part and differing only by PartID and the hash-bounded predicate FanOut
// layers onto the pagination strategy. The first item (or part) to fail
// cancels the rest; Run returns that error.
func Run(ctx context.Context, cfg *config.RunConfig, maxParallel int, build ItemBuilder, log *zap.Logger) error {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelItems
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallel)

	for _, item := range cfg.Items {
		item := item
		group.Go(func() error {
			log.Info("processing item", zap.String("item", item.Name))

			base, err := build(gctx, item)
			if err != nil {
				return fmt.Errorf("migration: build item %s: %w", item.Name, err)
			}

			if item.HashColumn == "" {
				if err := base.Run(gctx); err != nil {
					return fmt.Errorf("migration: item %s: %w", item.Name, err)
				}
				log.Info("item completed", zap.String("item", item.Name))
				return nil
			}

			// Settings (schema creation, batch size, ...) apply once per item,
			// against the shared Context, before any part starts reading —
			// running CreateMissingTablesSetting once per part concurrently
			// would race on the same DDL.
			if err := runtime.ApplySettings(gctx, base.Settings, base.Context); err != nil {
				return fmt.Errorf("migration: apply settings for item %s: %w", item.Name, err)
			}

			err = runtime.FanOut(gctx, item.Parts, item.HashColumn, func(part segment.Part) *runtime.ItemRuntime {
				r := *base       // shallow copy: shares Context (and its Source/Sink), differs by PartID/Strategy
				r.Settings = nil // already applied once above
				return &r
			})
			if err != nil {
				return fmt.Errorf("migration: item %s: %w", item.Name, err)
			}
			log.Info("item completed", zap.String("item", item.Name), zap.Int("parts", item.Parts))
			return nil
		})
	}

	return group.Wait()
}

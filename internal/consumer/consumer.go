// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package consumer implements the write side of a migration item's
// producer/consumer pipeline. LiveConsumer writes batches to the
// destination sink; ValidationConsumer runs the same transform-validation
// rules a live run would but never writes, for dry-run mode (see
// internal/report for how its results become a DryRunReport).
package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/batch"
	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/report"
	"github.com/dataforge/migrator/internal/sink"
	"github.com/dataforge/migrator/internal/state"
	"github.com/dataforge/migrator/internal/transform"
)

// Consumer drains a producer's batch channel. Run returns once batches is
// closed and every received batch has been handled, or the first error it
// hits.
type Consumer interface {
	Run(ctx context.Context, batches <-chan batch.Batch) error
}

// LiveConsumer writes each batch to Sink and advances the durable
// checkpoint to record it as committed.
type LiveConsumer struct {
	Sink   sink.Sink
	Table  model.FieldMetadata
	Store  *state.Store
	RunID  string
	ItemID string
	PartID int
	Log    *zap.Logger
}

// Run disables table's triggers for the full span of the write loop —
// acquired once before the first batch, released once after the last —
// rather than per batch, so a concurrently running trigger-dependent
// process never observes them toggled back on between two batches of the
// same item.
func (c *LiveConsumer) Run(ctx context.Context, batches <-chan batch.Batch) error {
	var rowsDone uint64
	return c.Sink.WithTriggersDisabled(ctx, c.Table.Entity.Name, func(ctx context.Context) error {
		for b := range batches {
			if b.IsEmpty() {
				continue
			}
			if _, err := c.Store.AppendWAL(state.BatchBeginWrite(c.RunID, c.ItemID, c.PartID, b.ID, time.Now())); err != nil {
				return fmt.Errorf("consumer: append WAL batch_begin_write: %w", err)
			}

			if err := c.Sink.WriteBatch(ctx, c.Table, b.Rows); err != nil {
				return fmt.Errorf("consumer: write batch %s: %w", b.ID, err)
			}
			rowsDone += uint64(len(b.Rows))

			if err := c.Store.PutCheckpoint(state.Checkpoint{
				RunID:         c.RunID,
				ItemID:        c.ItemID,
				PartID:        c.PartID,
				Stage:         state.StageCommitted,
				SrcOffset:     b.Next,
				PendingOffset: pagination.Cursor{},
				BatchID:       b.ID,
				RowsDone:      rowsDone,
				UpdatedAt:     time.Now(),
			}); err != nil {
				return fmt.Errorf("consumer: checkpoint committed batch %s: %w", b.ID, err)
			}
			if _, err := c.Store.AppendWAL(state.BatchCommit(c.RunID, c.ItemID, c.PartID, b.ID, time.Now())); err != nil {
				return fmt.Errorf("consumer: append WAL batch_commit: %w", err)
			}

			c.Log.Info("consumer: committed batch",
				zap.String("item", c.ItemID), zap.Int("part", c.PartID),
				zap.String("batch", b.ID), zap.Int("rows", len(b.Rows)), zap.Uint64("rows_done", rowsDone))
		}
		return nil
	})
}

// ValidationConsumer runs a dry run: every batch's rows are validated
// against the item's rules but never written, matching the original's
// ValidationConsumer, which logs and returns immediately without touching
// the destination.
type ValidationConsumer struct {
	Validator transform.PipelineValidator
	// Report, if non-nil, receives every row's ValidationResult so a
	// dry run's internal/report.Builder can fold it into a
	// report.ValidationReport once every item finishes.
	Report *report.Builder
	Log    *zap.Logger

	results []transform.ValidationResult
}

func (c *ValidationConsumer) Run(ctx context.Context, batches <-chan batch.Batch) error {
	for b := range batches {
		for _, row := range b.Rows {
			result, err := c.Validator.Validate(row)
			if err != nil {
				return fmt.Errorf("consumer: validate row in batch %s: %w", b.ID, err)
			}
			if c.Report != nil {
				c.Report.RecordValidation(row, result)
			}
			if !result.Pass {
				c.results = append(c.results, result)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	c.Log.Info("consumer: validation run complete, no data written", zap.Int("failures", len(c.results)))
	return nil
}

// Results returns every failing ValidationResult accumulated across the run.
func (c *ValidationConsumer) Results() []transform.ValidationResult { return c.results }

// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package producer implements the read side of a migration item's
// producer/consumer pipeline: it fetches pages from a source, runs each row
// through the transform pipeline, and hands off the result as a
// checkpointed batch for a consumer (internal/consumer) to write.
package producer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/batch"
	"github.com/dataforge/migrator/internal/errs"
	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/report"
	"github.com/dataforge/migrator/internal/source"
	"github.com/dataforge/migrator/internal/state"
	"github.com/dataforge/migrator/internal/transform"
)

// Producer reads one migration item's source, page by page, persisting a
// checkpoint and WAL entry before handing each page off as a batch.
type Producer struct {
	Source   source.Source
	Strategy pagination.Strategy
	Pipeline transform.TransformPipeline
	Store    *state.Store
	RunID    string
	ItemID   string
	PartID   int
	PageSize uint64
	// Report, if set, receives a NonResumableStrategyFinding when resume
	// rejects a checkpoint (see resume).
	Report *report.Builder
	Log    *zap.Logger
}

// Run fetches pages until the source is exhausted or ctx is canceled,
// streaming each transformed batch on the returned channel. The error
// channel receives at most one error and is closed alongside the batch
// channel; a caller should drain both until closed.
func (p *Producer) Run(ctx context.Context) (<-chan batch.Batch, <-chan error) {
	out := make(chan batch.Batch)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if err := p.run(ctx, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (p *Producer) run(ctx context.Context, out chan<- batch.Batch) error {
	cursor, rowsDone, err := p.resume()
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return errs.New(errs.KindShutdown, err)
		}

		result, err := p.Source.Fetch(ctx, cursor, p.PageSize)
		if err != nil {
			return fmt.Errorf("producer: fetch item %s part %d: %w", p.ItemID, p.PartID, err)
		}
		if len(result.Rows) == 0 {
			return p.finish(rowsDone)
		}

		rows := make([]model.Row, 0, len(result.Rows))
		for _, row := range result.Rows {
			transformed, err := p.Pipeline.Apply(row)
			if err != nil {
				return errs.New(errs.KindTransform, fmt.Errorf("producer: transform row in item %s: %w", p.ItemID, err))
			}
			rows = append(rows, transformed)
		}

		b := batch.New(p.RunID, p.ItemID, p.PartID, cursor, result.Next, rows, time.Now())
		rowsDone += uint64(len(b.Rows))

		if _, err := p.Store.AppendWAL(state.BatchBegin(p.RunID, p.ItemID, p.PartID, b.ID, time.Now())); err != nil {
			return fmt.Errorf("producer: append WAL batch_begin: %w", err)
		}
		if err := p.Store.PutCheckpoint(state.Checkpoint{
			RunID:         p.RunID,
			ItemID:        p.ItemID,
			PartID:        p.PartID,
			Stage:         state.StageRead,
			SrcOffset:     cursor,
			PendingOffset: result.Next,
			BatchID:       b.ID,
			RowsDone:      rowsDone,
			UpdatedAt:     time.Now(),
		}); err != nil {
			return fmt.Errorf("producer: checkpoint batch %s: %w", b.ID, err)
		}

		select {
		case out <- b:
		case <-ctx.Done():
			return errs.New(errs.KindShutdown, ctx.Err())
		}

		if result.Done {
			return p.finish(rowsDone)
		}
		cursor = result.Next
	}
}

func (p *Producer) finish(rowsDone uint64) error {
	p.Log.Info("producer: source exhausted",
		zap.String("item", p.ItemID), zap.Int("part", p.PartID), zap.Uint64("rows", rowsDone))
	_, err := p.Store.AppendWAL(state.ItemDone(p.RunID, p.ItemID, time.Now()))
	return err
}

// resume loads this (run, item, part)'s last checkpoint, if any, and
// validates its src cursor against the strategy before resuming from it —
// an offset-based or cursor-kind-mismatched checkpoint is rejected so the
// runtime can surface it as a finding rather than silently skipping or
// repeating rows. Resume always starts from SrcOffset, the cursor of the
// batch a stage=read checkpoint names, never PendingOffset: the consumer
// only reaches StageCommitted after its own sink write finishes, so a crash
// between this checkpoint and that write must re-fetch and re-send the same
// batch rather than skip past it, per the replay-safety invariant.
func (p *Producer) resume() (pagination.Cursor, uint64, error) {
	cp, found, err := p.Store.GetCheckpoint(p.RunID, p.ItemID, p.PartID)
	if err != nil {
		return pagination.Cursor{}, 0, fmt.Errorf("producer: load checkpoint: %w", err)
	}
	if !found {
		return pagination.None(), 0, nil
	}
	resumeFrom := cp.SrcOffset
	if err := p.Strategy.Resume(resumeFrom); err != nil {
		if p.Report != nil {
			p.Report.AddFinding(report.NonResumableStrategyFinding(p.Strategy.Name()))
		}
		return pagination.Cursor{}, 0, errs.New(errs.KindState, fmt.Errorf("producer: resume item %s part %d: %w", p.ItemID, p.PartID, err))
	}
	p.Log.Info("producer: resuming from checkpoint",
		zap.String("item", p.ItemID), zap.Int("part", p.PartID),
		zap.String("cursor", resumeFrom.String()), zap.Uint64("rows_done", cp.RowsDone))
	return resumeFrom, cp.RowsDone, nil
}

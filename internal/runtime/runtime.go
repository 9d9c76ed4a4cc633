// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package runtime orchestrates one migration item end to end: it applies
// the item's settings in dependency order (see phase.go), wires a producer
// and consumer pair around a channel, and runs them concurrently until the
// source is exhausted or the first error occurs.
package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dataforge/migrator/internal/consumer"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/producer"
	"github.com/dataforge/migrator/internal/report"
	"github.com/dataforge/migrator/internal/state"
	"github.com/dataforge/migrator/internal/transform"
)

// ItemRuntime runs a single migration item: settings application, then the
// producer/consumer pipeline, matching spec.md §4.10's single-item scope.
type ItemRuntime struct {
	Context  *ItemContext
	Settings []Setting

	Strategy  pagination.Strategy
	Pipeline  transform.TransformPipeline
	Store     *state.Store
	RunID     string
	ItemID    string
	PartID    int
	DryRun    bool
	Validator transform.PipelineValidator
	// Report, if set, is the shared dry-run report builder every item's
	// ValidationConsumer feeds into (see cmd/migrate).
	Report *report.Builder

	Log *zap.Logger
}

// Run applies settings, then drives the producer and a consumer (live or
// validation, depending on DryRun) concurrently via an errgroup: the first
// of the two to fail cancels ctx for the other, and Run returns that error.
func (r *ItemRuntime) Run(ctx context.Context) error {
	if err := ApplySettings(ctx, r.Settings, r.Context); err != nil {
		return err
	}

	p := &producer.Producer{
		Source:   r.Context.Source,
		Strategy: r.Strategy,
		Pipeline: r.Pipeline,
		Store:    r.Store,
		RunID:    r.RunID,
		ItemID:   r.ItemID,
		PartID:   r.PartID,
		PageSize: r.pageSize(),
		Report:   r.Report,
		Log:      r.Log,
	}

	group, gctx := errgroup.WithContext(ctx)
	batches, producerErrs := p.Run(gctx)

	c := r.consumer()
	group.Go(func() error { return c.Run(gctx, batches) })
	group.Go(func() error {
		if err := <-producerErrs; err != nil {
			return fmt.Errorf("runtime: producer: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("runtime: item %s: %w", r.ItemID, err)
	}
	return nil
}

func (r *ItemRuntime) pageSize() uint64 {
	if r.Context.BatchSize > 0 {
		return r.Context.BatchSize
	}
	return 1000
}

func (r *ItemRuntime) consumer() consumer.Consumer {
	if r.DryRun {
		return &consumer.ValidationConsumer{Validator: r.Validator, Report: r.Report, Log: r.Log}
	}
	return &consumer.LiveConsumer{
		Sink:   r.Context.Sink,
		Table:  r.Context.DestMeta,
		Store:  r.Store,
		RunID:  r.RunID,
		ItemID: r.ItemID,
		PartID: r.PartID,
		Log:    r.Log,
	}
}

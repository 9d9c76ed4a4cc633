// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package runtime

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dataforge/migrator/internal/dialect"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/segment"
)

// hashPartitionedStrategy layers a hash-byte-range restriction on top of a
// base pagination.Strategy's own predicate, so a single item's rows can be
// split across several concurrently-running parts (see FanOut) without
// inventing a new pagination scheme per part.
type hashPartitionedStrategy struct {
	pagination.Strategy
	HashColumn string
	Part       segment.Part
}

// Predicate ANDs the wrapped strategy's cursor predicate with a bound on the
// first two hex digits of HashColumn, restricting this part's fetch to rows
// whose hash falls in [Part.StartHex, Part.EndHex).
func (s hashPartitionedStrategy) Predicate(d dialect.Dialect, cursor pagination.Cursor, argOffset int) (string, []any, error) {
	base, args, err := s.Strategy.Predicate(d, cursor, argOffset)
	if err != nil {
		return "", nil, err
	}
	col := d.QuoteIdent(s.HashColumn)
	hashPred := fmt.Sprintf("substr(%s, 1, 2) >= %s AND substr(%s, 1, 2) < %s",
		col, d.Placeholder(argOffset+len(args)+1), col, d.Placeholder(argOffset+len(args)+2))
	args = append(args, s.Part.StartHex, s.Part.EndHex)

	if base == "" {
		return hashPred, args, nil
	}
	return fmt.Sprintf("(%s) AND (%s)", base, hashPred), args, nil
}

// FanOut splits a migration item into n disjoint hash-range parts (see
// internal/segment) and runs one ItemRuntime per part concurrently, each
// restricted to its own slice of hashColumn and checkpointed under its own
// PartID. build constructs the ItemRuntime for a given part — typically
// cloning a shared Source/Sink/Pipeline configuration and pointing Context
// at a part-specific connection or read replica. The first part to fail
// cancels the rest; FanOut returns that error.
func FanOut(ctx context.Context, n int, hashColumn string, build func(part segment.Part) *ItemRuntime) error {
	parts, err := segment.SplitHashSpace(n)
	if err != nil {
		return fmt.Errorf("runtime: fan out: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		part := part
		r := build(part)
		r.PartID = part.Index
		r.Strategy = hashPartitionedStrategy{Strategy: r.Strategy, HashColumn: hashColumn, Part: part}
		group.Go(func() error { return r.Run(gctx) })
	}
	return group.Wait()
}

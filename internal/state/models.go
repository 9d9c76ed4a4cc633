// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package state implements the durable, crash-recoverable checkpoint and
// write-ahead log store the runtime uses to resume an interrupted migration
// item from its last committed batch rather than from scratch.
package state

import (
	"time"

	"github.com/dataforge/migrator/internal/pagination"
)

// Stage is a checkpoint's position in a batch's commit protocol.
type Stage int

const (
	StageRead Stage = iota
	StageCommitted
	StageValidated
)

func (s Stage) String() string {
	switch s {
	case StageRead:
		return "read"
	case StageCommitted:
		return "committed"
	case StageValidated:
		return "validated"
	default:
		return "unknown"
	}
}

// Checkpoint is the durable progress marker for one (run, item, part).
// SrcOffset is the cursor internal/producer.Producer.resume always resumes
// from: the cursor a stage=read checkpoint was fetched with (so a crash
// before the consumer's sink write commits re-fetches and re-sends the same
// batch) or, once StageCommitted is reached, the next cursor past it.
// PendingOffset is the cursor of a batch that has been fetched and is in
// flight to the sink but not yet confirmed committed — it records how far a
// crashed run got for diagnostics and the WAL (see internal/batch.ID) but
// is never itself resumed from, since the consumer's commit is the only
// confirmation that batch was durably written.
type Checkpoint struct {
	RunID         string
	ItemID        string
	PartID        int
	Stage         Stage
	SrcOffset     pagination.Cursor
	PendingOffset pagination.Cursor
	BatchID       string
	RowsDone      uint64
	UpdatedAt     time.Time
}

// WALKind tags a WALEntry's variant.
type WALKind int

const (
	WALRunStart WALKind = iota
	WALItemStart
	WALBatchBegin
	WALBatchBeginWrite
	WALBatchCommit
	WALItemDone
	WALRunDone
	WALHeartbeat
)

func (k WALKind) String() string {
	switch k {
	case WALRunStart:
		return "run_start"
	case WALItemStart:
		return "item_start"
	case WALBatchBegin:
		return "batch_begin"
	case WALBatchBeginWrite:
		return "batch_begin_write"
	case WALBatchCommit:
		return "batch_commit"
	case WALItemDone:
		return "item_done"
	case WALRunDone:
		return "run_done"
	case WALHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// WALEntry is one append-only log record. Only the fields relevant to Kind
// are meaningful:
//
//   - RunStart: SpecID
//   - ItemStart, ItemDone: ItemID
//   - BatchBegin, BatchBeginWrite, BatchCommit: ItemID, PartID, BatchID
//   - RunDone: (run id only, carried in RunID)
//   - Heartbeat: ItemID, PartID (liveness ping from a running producer/consumer)
//
// Seq is assigned by the store on Append and is strictly increasing within
// a run, giving WAL entries a stable replay order.
type WALEntry struct {
	Kind    WALKind
	Seq     uint64
	RunID   string
	ItemID  string
	PartID  int
	BatchID string
	SpecID  string
	Ts      time.Time
}

func RunStart(runID, specID string, ts time.Time) WALEntry {
	return WALEntry{Kind: WALRunStart, RunID: runID, SpecID: specID, Ts: ts}
}

func ItemStart(runID, itemID string, ts time.Time) WALEntry {
	return WALEntry{Kind: WALItemStart, RunID: runID, ItemID: itemID, Ts: ts}
}

func BatchBegin(runID, itemID string, partID int, batchID string, ts time.Time) WALEntry {
	return WALEntry{Kind: WALBatchBegin, RunID: runID, ItemID: itemID, PartID: partID, BatchID: batchID, Ts: ts}
}

func BatchBeginWrite(runID, itemID string, partID int, batchID string, ts time.Time) WALEntry {
	return WALEntry{Kind: WALBatchBeginWrite, RunID: runID, ItemID: itemID, PartID: partID, BatchID: batchID, Ts: ts}
}

func BatchCommit(runID, itemID string, partID int, batchID string, ts time.Time) WALEntry {
	return WALEntry{Kind: WALBatchCommit, RunID: runID, ItemID: itemID, PartID: partID, BatchID: batchID, Ts: ts}
}

func ItemDone(runID, itemID string, ts time.Time) WALEntry {
	return WALEntry{Kind: WALItemDone, RunID: runID, ItemID: itemID, Ts: ts}
}

func RunDone(runID string, ts time.Time) WALEntry {
	return WALEntry{Kind: WALRunDone, RunID: runID, Ts: ts}
}

func Heartbeat(runID, itemID string, partID int, ts time.Time) WALEntry {
	return WALEntry{Kind: WALHeartbeat, RunID: runID, ItemID: itemID, PartID: partID, Ts: ts}
}

// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package state

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketState  = []byte("state")
	bucketWALSeq = []byte("wal_seq")
)

// Store is a single-file, crash-safe checkpoint and WAL store backed by
// bbolt. Keys in bucketState follow the layout chk:{run}:{item}:{part} for
// checkpoints and wal:{run}:{seq} for WAL entries (seq zero-padded so
// bbolt's byte-lexicographic cursor order matches numeric order), which lets
// ScanWAL do a prefix scan instead of a full-bucket walk.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures its
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketState); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketWALSeq)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func checkpointKey(runID, itemID string, partID int) []byte {
	return []byte(fmt.Sprintf("chk:%s:%s:%d", runID, itemID, partID))
}

func walKeyPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("wal:%s:", runID))
}

func walKey(runID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("wal:%s:%020d", runID, seq))
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// PutCheckpoint durably writes (overwrites) the checkpoint for
// (cp.RunID, cp.ItemID, cp.PartID).
func (s *Store) PutCheckpoint(cp Checkpoint) error {
	data, err := encode(cp)
	if err != nil {
		return fmt.Errorf("state: encode checkpoint: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put(checkpointKey(cp.RunID, cp.ItemID, cp.PartID), data)
	})
}

// GetCheckpoint returns the checkpoint for (runID, itemID, partID), or
// found=false if none has been written yet.
func (s *Store) GetCheckpoint(runID, itemID string, partID int) (cp Checkpoint, found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketState).Get(checkpointKey(runID, itemID, partID))
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &cp)
	})
	return cp, found, err
}

// AppendWAL assigns the next sequence number for entry.RunID and durably
// appends entry, returning the assigned sequence.
func (s *Store) AppendWAL(entry WALEntry) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		seqBucket := tx.Bucket(bucketWALSeq)
		cur := seqBucket.Get([]byte(entry.RunID))
		if cur != nil {
			seq = beUint64(cur) + 1
		}
		if err := seqBucket.Put([]byte(entry.RunID), beBytes(seq)); err != nil {
			return err
		}
		entry.Seq = seq
		data, err := encode(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketState).Put(walKey(entry.RunID, seq), data)
	})
	return seq, err
}

// ScanWAL returns every WAL entry for runID, in ascending sequence order.
func (s *Store) ScanWAL(runID string) ([]WALEntry, error) {
	var entries []WALEntry
	prefix := walKeyPrefix(runID)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketState).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var entry WALEntry
			if err := decode(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// ScanCheckpoints returns every checkpoint for runID across all items and
// parts, used by the runtime to resume a run after a crash.
func (s *Store) ScanCheckpoints(runID string) ([]Checkpoint, error) {
	var checkpoints []Checkpoint
	prefix := []byte(fmt.Sprintf("chk:%s:", runID))
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketState).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var cp Checkpoint
			if err := decode(v, &cp); err != nil {
				return err
			}
			checkpoints = append(checkpoints, cp)
		}
		return nil
	})
	return checkpoints, err
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

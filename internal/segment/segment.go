// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package segment splits a migration item into parts: disjoint byte-range
// slices of a hash column's first octet, each assigned its own PartID so
// internal/runtime can checkpoint and fetch them independently (see
// internal/state's chk:{run}:{item}:{part} key layout). An item with no
// natural hash column runs as a single part covering the whole range.
package segment

import (
	"fmt"
	"math/big"
)

// Part is one [StartHex, EndHex) slice of the hash space a migration item's
// rows are distributed across, identified by Index — the value stored as
// PartID everywhere else in the pipeline (producer, consumer, state).
type Part struct {
	Index    int    // PartID, 0-based
	StartHex string // inclusive lower bound of the first hash byte
	EndHex   string // exclusive upper bound ("100" for the last part, to include ff)
}

// SplitHashSpace divides the hash byte range [0x00, 0xFF] into n parts as
// evenly as sizes allow, distributing the 256 % n leftover values across the
// first parts so no part differs from another by more than one hash value.
func SplitHashSpace(n int) ([]Part, error) {
	if n <= 0 {
		return nil, fmt.Errorf("segment: part count must be positive, got %d", n)
	}
	if n > 256 {
		return nil, fmt.Errorf("segment: part count cannot exceed 256, got %d", n)
	}

	parts := make([]Part, n)
	size, remainder := 256/n, 256%n

	start := 0
	for i := 0; i < n; i++ {
		width := size
		if i < remainder {
			width++
		}
		end := start + width
		if end > 256 {
			end = 256
		}
		parts[i] = Part{Index: i, StartHex: hexByte(start), EndHex: hexByte(end)}
		start = end
	}

	// The last part's nominal end (0xff) must be exclusive-past-ff so its
	// upper bound actually includes the ff byte; every other part's end is
	// already the next part's start and needs no adjustment.
	if last := &parts[n-1]; last.EndHex == "ff" {
		last.EndHex = "100"
	}
	return parts, nil
}

func hexByte(val int) string {
	if val >= 256 {
		return "100"
	}
	return fmt.Sprintf("%02x", val)
}

// PartRange returns the [StartHex, EndHex) bounds of part index out of n
// total parts, without requiring the caller to hold the full []Part slice.
func PartRange(index, n int) (start, end string, err error) {
	if index < 0 || index >= n {
		return "", "", fmt.Errorf("segment: part index %d out of range [0, %d)", index, n)
	}
	parts, err := SplitHashSpace(n)
	if err != nil {
		return "", "", err
	}
	return parts[index].StartHex, parts[index].EndHex, nil
}

// Contains reports whether hash's leading byte falls within part's range.
func Contains(hash string, part Part) bool {
	if len(hash) < 2 {
		return false
	}
	prefix := hash[:2]
	return prefix >= part.StartHex && prefix < part.EndHex
}

// HexByteToInt parses a 2-digit hex byte string to its integer value.
func HexByteToInt(hexStr string) (int, error) {
	val, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return 0, fmt.Errorf("segment: invalid hex byte %q", hexStr)
	}
	return int(val.Int64()), nil
}

// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import "bytes"

// Grounded on pkg/storage/engine/mvcc.go's MVCCFindSplitKey, but
// reimplemented in Go per §4.6 rather than delegating to a C++
// FindSplitKey primitive: the teacher's version plumbs a "minimum split
// key" and row-boundary logic down into RocksDB's own scan; this layer
// has no SQL row concept (a non-goal), so the scan and candidate
// selection both live here.

// IsValidSplitKeyFunc reports whether key is an acceptable split point —
// e.g. not inside a reserved keyspan. A nil func accepts every key.
type IsValidSplitKeyFunc func(key []byte) bool

// FindSplitKey scans [start, end) accumulating byte size — len(key)+1 per
// user key, 12+len(value) per version — and returns the user key whose
// cumulative size is closest to targetSize, subject to: it is not the
// very first key seen, it is ≥ minSplit, and isValid(key) (if non-nil)
// returns true. It returns an empty key if no candidate qualifies.
func FindSplitKey(
	iter Iterator, start, end, minSplit []byte, targetSize int64, isValid IsValidSplitKeyFunc,
) ([]byte, error) {
	if !iter.SeekGE(EncodeKey(start, 0, 0)) {
		return nil, iter.Error()
	}

	const diffUnset = -1
	var (
		sizeSoFar int64
		best      []byte
		bestDiff  int64 = diffUnset
		prevDiff  int64 = diffUnset
		prevKey   []byte
		seenFirst bool
	)

	for iter.Valid() {
		userKey, tsBytes, err := Split(iter.Key())
		if err != nil {
			return nil, err
		}
		if end != nil && bytes.Compare(userKey, end) >= 0 {
			break
		}

		isNewKey := !bytes.Equal(userKey, prevKey)
		if isNewKey {
			sizeSoFar += int64(len(userKey)) + 1
		}
		if len(tsBytes) != 0 {
			sizeSoFar += mvccVersionTimestampSize + int64(len(iter.Value()))
		}
		prevKey = append(prevKey[:0], userKey...)

		if isNewKey {
			if !seenFirst {
				seenFirst = true
			} else {
				diff := targetSize - sizeSoFar
				if diff < 0 {
					diff = -diff
				}
				qualifies := (minSplit == nil || bytes.Compare(userKey, minSplit) >= 0) &&
					(isValid == nil || isValid(userKey))
				if qualifies && (bestDiff == diffUnset || diff < bestDiff) {
					bestDiff = diff
					best = append([]byte(nil), userKey...)
				}
				if prevDiff != diffUnset && diff > prevDiff && best != nil {
					// The gap to target started widening; since size only
					// grows monotonically, no later key can beat the
					// candidate already found.
					break
				}
				prevDiff = diff
			}
		}

		if !iter.Next() {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return best, nil
}

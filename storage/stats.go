// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"bytes"

	"github.com/latticedb/lattice/storage/enginepb"
	"github.com/pkg/errors"
)

// Grounded on pkg/storage/engine/mvcc.go's ComputeStatsGo: a single
// forward pass accumulating the running aggregates of §4.5. The pass is
// driven by this package's own Iterator, not a SimpleIterator, since the
// MVCC core no longer depends on the teacher's cgo-backed engine.

// ComputeStats scans [start, end) accumulating MVCCStats, per §4.5. Keys
// ordering less than localMax are classified as system bytes and
// excluded from live/GC accounting; pass nil to treat every key as a
// regular (non-system) key.
func ComputeStats(iter Iterator, start, end []byte, localMax []byte, nowNanos int64) (enginepb.MVCCStats, error) {
	var ms enginepb.MVCCStats
	var meta enginepb.MVCCMetadata
	var prevKey []byte
	first := false

	// Values accrue GCBytesAge from the timestamp at which they are
	// shadowed (overwritten), except deletion tombstones, which accrue
	// from their own timestamp. Scanning in storage order visits a key's
	// versions newest-first, so accrueGCAgeNanos tracks the point at
	// which the version we're about to look at began aging.
	var accrueGCAgeNanos int64

	if !iter.SeekGE(EncodeKey(start, 0, 0)) {
		if err := iter.Error(); err != nil {
			return ms, err
		}
		ms.LastUpdateNanos = nowNanos
		return ms, nil
	}
	for ; iter.Valid(); iter.Next() {
		userKey, _, err := Split(iter.Key())
		if err != nil {
			return ms, err
		}
		if end != nil && bytes.Compare(userKey, end) >= 0 {
			break
		}

		cur, err := DecodeMVCCKey(iter.Key())
		if err != nil {
			return ms, err
		}
		unsafeValue := iter.Value()

		isSys := localMax != nil && bytes.Compare(userKey, localMax) < 0
		isValue := cur.IsValue()
		implicitMeta := isValue && !bytes.Equal(userKey, prevKey)
		prevKey = append(prevKey[:0], userKey...)

		if implicitMeta {
			// No explicit meta row precedes this key's versions; synthesize
			// one so the rest of the pass can treat it uniformly.
			meta.Reset()
			meta.KeyBytes = mvccVersionTimestampSize
			meta.ValBytes = int64(len(unsafeValue))
			meta.Deleted = len(unsafeValue) == 0
			meta.Timestamp = cur.Timestamp
		}

		if !isValue || implicitMeta {
			metaKeySize := int64(len(userKey)) + 1
			var metaValSize int64
			if !implicitMeta {
				metaValSize = int64(len(unsafeValue))
			}
			totalBytes := metaKeySize + metaValSize
			first = true

			if !implicitMeta {
				if err := meta.Unmarshal(unsafeValue); err != nil {
					return ms, errors.Wrap(err, "unable to decode MVCCMetadata")
				}
			}

			if isSys {
				ms.SysBytes += totalBytes
				ms.SysCount++
			} else {
				if !meta.Deleted {
					ms.LiveBytes += totalBytes
					ms.LiveCount++
				} else {
					ms.GCBytesAge += totalBytes * (nowNanos/1e9 - meta.Timestamp.WallTime/1e9)
				}
				ms.KeyBytes += metaKeySize
				ms.ValBytes += metaValSize
				ms.KeyCount++
				if meta.IsInline() {
					ms.ValCount++
				}
			}
			if !implicitMeta {
				continue
			}
		}

		totalBytes := int64(len(unsafeValue)) + mvccVersionTimestampSize
		if isSys {
			ms.SysBytes += totalBytes
			continue
		}
		if first {
			first = false
			if !meta.Deleted {
				ms.LiveBytes += totalBytes
			} else {
				ms.GCBytesAge += totalBytes * (nowNanos/1e9 - meta.Timestamp.WallTime/1e9)
			}
			if meta.Txn != nil {
				ms.IntentBytes += totalBytes
				ms.IntentCount++
				ms.IntentAge += nowNanos/1e9 - meta.Timestamp.WallTime/1e9
			}
			accrueGCAgeNanos = meta.Timestamp.WallTime
		} else {
			isTombstone := len(unsafeValue) == 0
			if isTombstone {
				ms.GCBytesAge += totalBytes * (nowNanos/1e9 - cur.Timestamp.WallTime/1e9)
			} else {
				ms.GCBytesAge += totalBytes * (nowNanos/1e9 - accrueGCAgeNanos/1e9)
			}
			accrueGCAgeNanos = cur.Timestamp.WallTime
		}
		ms.KeyBytes += mvccVersionTimestampSize
		ms.ValBytes += int64(len(unsafeValue))
		ms.ValCount++
	}
	if err := iter.Error(); err != nil {
		return ms, err
	}

	ms.LastUpdateNanos = nowNanos
	return ms, nil
}

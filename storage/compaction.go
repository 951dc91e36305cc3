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
	"sort"

	"github.com/cockroachdb/pebble"
)

// Grounded on the teacher's debug tooling pattern of driving engine
// primitives directly from a thin planning layer (cli/debug.go calling
// engine.MVCCGet etc.), generalized here into the bounded CompactRange
// planner described in §4.7. pebble has no separate
// bottommost_level_compaction=kForce knob; db.Compact always compacts a
// key span all the way to the bottom of the LSM, so parallelize=true is
// this layer's equivalent of "force."
const compactionChunkBytes = 128 << 20

// CompactionPlan is one bounded compaction call issued against the
// bottommost level.
type CompactionPlan struct {
	Start, End []byte
}

// PlanCompaction enumerates db's bottommost-level SSTables intersecting
// [start, end), sorts them by smallest key, and groups them into chunks
// of roughly compactionChunkBytes each, threading the previous chunk's
// largest key through as the next chunk's lower bound. If the bottommost
// level holds no data in the range, it falls back to a single
// whole-range plan.
func PlanCompaction(db *pebble.DB, start, end []byte) ([]CompactionPlan, error) {
	levels, err := db.SSTables()
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return []CompactionPlan{{Start: start, End: end}}, nil
	}
	bottom := levels[len(levels)-1]

	type span struct {
		smallest, largest []byte
		size              uint64
	}
	var spans []span
	for _, info := range bottom {
		smallest := info.Smallest.UserKey
		largest := info.Largest.UserKey
		if end != nil && bytes.Compare(smallest, end) >= 0 {
			continue
		}
		if start != nil && bytes.Compare(largest, start) < 0 {
			continue
		}
		spans = append(spans, span{smallest: smallest, largest: largest, size: info.Size})
	}
	if len(spans) == 0 {
		return []CompactionPlan{{Start: start, End: end}}, nil
	}
	sort.Slice(spans, func(i, j int) bool {
		return bytes.Compare(spans[i].smallest, spans[j].smallest) < 0
	})

	var plans []CompactionPlan
	lower := start
	var chunkSize uint64
	for i, s := range spans {
		chunkSize += s.size
		last := i == len(spans)-1
		if chunkSize >= compactionChunkBytes || last {
			upper := append([]byte(nil), s.largest...)
			if last {
				upper = end
			}
			plans = append(plans, CompactionPlan{Start: lower, End: upper})
			lower = upper
			chunkSize = 0
		}
	}
	return plans, nil
}

// RunCompaction issues every plan in order via db.Compact.
func RunCompaction(db *pebble.DB, plans []CompactionPlan) error {
	for _, p := range plans {
		if err := db.Compact(p.Start, p.End, true); err != nil {
			return err
		}
	}
	return nil
}

// CompactRange plans and runs a bounded compaction over [start, end) on
// s's backing store, per §4.7.
func (s *Store) CompactRange(start, end []byte) error {
	plans, err := PlanCompaction(s.db, start, end)
	if err != nil {
		return err
	}
	return RunCompaction(s.db, plans)
}

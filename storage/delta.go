// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import "sort"

// deltaKind distinguishes the three operation types that can accumulate
// against one key inside an indexed batch.
type deltaKind int

const (
	deltaPut deltaKind = iota
	deltaMerge
	deltaDelete
)

// deltaOp is one buffered operation against a single key, in the order it
// was applied to the batch.
type deltaOp struct {
	kind  deltaKind
	value []byte
}

// indexedDelta is this package's own read-your-writes index over a batch's
// buffered operations, grounded on RocksDB's WriteBatchWithIndex: keys are
// kept in MVCC sort order, and each key retains every operation applied to
// it in insertion order so merge replay can walk them. DeleteRange cannot
// be represented here (see §4.3.1); it is tracked only as a flag that
// makes reads/iteration fail fast.
type indexedDelta struct {
	keys           [][]byte
	ops            [][]deltaOp
	hasDeleteRange bool
}

func (d *indexedDelta) find(key []byte) (idx int, found bool) {
	idx = sort.Search(len(d.keys), func(i int) bool {
		return Compare(d.keys[i], key) >= 0
	})
	found = idx < len(d.keys) && Compare(d.keys[idx], key) == 0
	return idx, found
}

func (d *indexedDelta) append(key []byte, op deltaOp) {
	idx, found := d.find(key)
	if found {
		d.ops[idx] = append(d.ops[idx], op)
		return
	}
	d.keys = append(d.keys, nil)
	copy(d.keys[idx+1:], d.keys[idx:])
	d.keys[idx] = append([]byte(nil), key...)

	d.ops = append(d.ops, nil)
	copy(d.ops[idx+1:], d.ops[idx:])
	d.ops[idx] = []deltaOp{op}
}

func (d *indexedDelta) Put(key, value []byte) {
	d.append(key, deltaOp{kind: deltaPut, value: append([]byte(nil), value...)})
}

func (d *indexedDelta) Merge(key, value []byte) {
	d.append(key, deltaOp{kind: deltaMerge, value: append([]byte(nil), value...)})
}

func (d *indexedDelta) Delete(key []byte) {
	d.append(key, deltaOp{kind: deltaDelete})
}

func (d *indexedDelta) DeleteRange(start, end []byte) {
	d.hasDeleteRange = true
}

// deltaIterator walks an indexedDelta's (key, op) pairs in sort-key order,
// visiting every op for a key (in insertion order) before moving to the
// next key. It mirrors RocksDB's WBWIIterator: Entry() exposes the op the
// cursor currently sits on.
type deltaIterator struct {
	d      *indexedDelta
	keyIdx int
	opIdx  int
}

func newDeltaIterator(d *indexedDelta) *deltaIterator {
	return &deltaIterator{d: d, keyIdx: -1}
}

func (it *deltaIterator) Valid() bool {
	return it.keyIdx >= 0 && it.keyIdx < len(it.d.keys)
}

func (it *deltaIterator) SeekToFirst() bool {
	it.keyIdx, it.opIdx = 0, 0
	return it.Valid()
}

func (it *deltaIterator) SeekToLast() bool {
	it.keyIdx = len(it.d.keys) - 1
	if it.keyIdx >= 0 {
		it.opIdx = len(it.d.ops[it.keyIdx]) - 1
	}
	return it.Valid()
}

func (it *deltaIterator) Seek(key []byte) bool {
	idx, _ := it.d.find(key)
	it.keyIdx, it.opIdx = idx, 0
	return it.Valid()
}

func (it *deltaIterator) Next() {
	if !it.Valid() {
		return
	}
	it.opIdx++
	if it.opIdx >= len(it.d.ops[it.keyIdx]) {
		it.keyIdx++
		it.opIdx = 0
	}
}

func (it *deltaIterator) Prev() {
	if it.keyIdx < 0 {
		return
	}
	if it.keyIdx >= len(it.d.keys) {
		it.keyIdx = len(it.d.keys) - 1
		if it.keyIdx >= 0 {
			it.opIdx = len(it.d.ops[it.keyIdx]) - 1
		}
		return
	}
	it.opIdx--
	if it.opIdx < 0 {
		it.keyIdx--
		if it.keyIdx >= 0 {
			it.opIdx = len(it.d.ops[it.keyIdx]) - 1
		}
	}
}

func (it *deltaIterator) Key() []byte {
	return it.d.keys[it.keyIdx]
}

func (it *deltaIterator) Entry() deltaOp {
	return it.d.ops[it.keyIdx][it.opIdx]
}

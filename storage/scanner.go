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
	"github.com/latticedb/lattice/storage/hlc"
)

// Grounded on pkg/storage/engine/mvcc.go's mvccGetInternal/MVCCScan: this
// file is the Go state machine described in §4.4. Unlike the teacher's
// RocksDB-backed scanner, it drives the package's own Iterator interface
// (either a pebble iterator or the overlay iterator) and classifies each
// row under the ten cases of §4.4.1.

// KeyValue is one resolved (user key, value) pair returned by MVCCGet or
// MVCCScan. Timestamp is the committed version's timestamp, or the zero
// Timestamp for an inline value.
type KeyValue struct {
	Key       []byte
	Value     []byte
	Timestamp hlc.Timestamp
}

// ScanOptions configures MVCCGet/MVCCScan, per §4.4's inputs.
type ScanOptions struct {
	// Txn identifies the reading transaction, for own-intent and
	// uncertainty handling. Nil for a non-transactional read.
	Txn *enginepb.TxnMeta
	// Consistent, when true, causes a foreign intent to be recorded and
	// the scan to continue (case 7); the final result carries a
	// *WriteIntentError. When false, a foreign intent is recorded but the
	// scan resolves the most recent value older than the intent (case 6).
	Consistent bool
	// Reverse drives the scan from end towards start.
	Reverse bool
	// MaxKeys bounds the number of rows returned; 0 means unlimited. One
	// extra row beyond MaxKeys is consumed internally and reported via
	// ResumeKey, per §4.4.1's "max_keys + 1" termination rule.
	MaxKeys int64
}

// ScanResult is the output of MVCCScan.
type ScanResult struct {
	KVs []KeyValue
	// Intents accumulates every foreign intent observed during the scan,
	// whether ignored (inconsistent read) or blocking (consistent read).
	Intents []Intent
	// ResumeKey is set when MaxKeys was reached before the end of range;
	// callers resume a subsequent scan starting at this key.
	ResumeKey []byte
}

// stepper implements §4.4.2's adaptive next-vs-seek heuristic for
// advancing past a user key's row block during a scan: a bounded linear
// walk via Next(), widened on success and narrowed on failure, falling
// back to an encoded seek when the budget is exhausted.
type stepper struct {
	budget int
}

const (
	stepBudgetMin  = 1
	stepBudgetMax  = 10
	stepBudgetInit = 5
)

func newStepper() *stepper {
	return &stepper{budget: stepBudgetInit}
}

// advancePastKey advances iter forward past every row belonging to
// userKey, landing on the first row of a different user key (or an
// invalid iterator at end of range). It returns false if the iterator
// ran out.
func (s *stepper) advancePastKey(iter Iterator, userKey []byte) bool {
	for i := 0; i < s.budget; i++ {
		if !iter.Next() {
			return false
		}
		cur, _, err := Split(iter.Key())
		if err != nil {
			return false
		}
		if !bytes.Equal(cur, userKey) {
			if s.budget < stepBudgetMax {
				s.budget++
			}
			return true
		}
	}
	if s.budget > stepBudgetMin {
		s.budget--
	}
	return iter.SeekGE(EncodeKey(nextUserKey(userKey), 0, 0))
}

// peekIterator adds a one-entry backward lookback buffer on top of an
// Iterator, used by the reverse scanner to confirm a user-key boundary
// (§4.4.3, §9). peekPrev saves the current entry and steps back; the
// caller must resolve the peek with exactly one of commitPeek (accept
// the new position) or cancelPeek (restore the saved one) before any
// further movement.
type peekIterator struct {
	Iterator
	peeking   bool
	savedKey  []byte
	savedVal  []byte
}

func (p *peekIterator) peekPrev() (key, value []byte, ok bool) {
	p.savedKey = append(p.savedKey[:0], p.Iterator.Key()...)
	p.savedVal = append(p.savedVal[:0], p.Iterator.Value()...)
	p.peeking = true
	if !p.Iterator.Prev() {
		return nil, nil, false
	}
	return p.Iterator.Key(), p.Iterator.Value(), true
}

func (p *peekIterator) commitPeek() {
	p.peeking = false
}

// cancelPeek restores the iterator to the position saved by the last
// peekPrev, undoing its Prev() with a single Next(). Moving the iterator
// by any other means while a peek is active would violate the "moving
// the iterator clears the peek" invariant; this package never does so.
func (p *peekIterator) cancelPeek() {
	if !p.peeking {
		return
	}
	p.peeking = false
	p.Iterator.Next()
}

// resolveAtCursor applies §4.4.1's ten-case classification to the user
// key at iter's current position, re-seeking iter within that key's row
// block as the cases require. It returns the resolved value (nil if the
// key has none visible to this read), any intent encountered (foreign,
// to be reported, regardless of whether a value was also resolved), and
// a terminal error for uncertainty or epoch-mismatch conditions.
func resolveAtCursor(
	iter Iterator, userKey []byte, timestamp hlc.Timestamp, txn *enginepb.TxnMeta, consistent bool,
) (*KeyValue, *Intent, error) {
	var pendingIntent *Intent
	for {
		if !iter.Valid() {
			return nil, pendingIntent, nil
		}
		cur, err := DecodeMVCCKey(iter.Key())
		if err != nil {
			return nil, pendingIntent, err
		}
		if !bytes.Equal(cur.Key, userKey) {
			return nil, pendingIntent, nil
		}

		if cur.IsValue() {
			// Cases 1-3: positioned at a version row.
			if !timestamp.Less(cur.Timestamp) {
				// Case 1: timestamp >= v_ts.
				return &KeyValue{
					Key:       userKey,
					Value:     append([]byte(nil), iter.Value()...),
					Timestamp: cur.Timestamp,
				}, pendingIntent, nil
			}
			if txn != nil && cur.Timestamp.LessEq(txn.MaxTimestamp) {
				// Case 2.
				return nil, pendingIntent, &UncertaintyError{
					ReadTimestamp:     timestamp,
					ExistingTimestamp: cur.Timestamp,
				}
			}
			// Case 3: seek to the next version at or older than timestamp.
			if !seekVersion(iter, userKey, timestamp) {
				return nil, pendingIntent, nil
			}
			continue
		}

		// Meta row.
		var meta enginepb.MVCCMetadata
		if err := meta.Unmarshal(iter.Value()); err != nil {
			return nil, pendingIntent, errCorrupt("corrupt MVCCMetadata at %x: %v", userKey, err)
		}
		if meta.IsInline() {
			// Case 4.
			return &KeyValue{Key: userKey, Value: append([]byte(nil), meta.RawBytes...)}, pendingIntent, nil
		}
		if meta.Txn == nil {
			return nil, pendingIntent, errCorrupt("meta key %x carries neither inline value nor intent", userKey)
		}

		intentTS := meta.Timestamp
		ownIntent := txn != nil && bytes.Equal(meta.Txn.ID, txn.ID)

		switch {
		case !ownIntent && timestamp.Less(intentTS):
			// Case 5: intent is ahead of our read; ignore it.
			if !seekVersion(iter, userKey, timestamp) {
				return nil, pendingIntent, nil
			}
			continue

		case !ownIntent && !consistent:
			// Case 6: inconsistent read records the intent but still
			// resolves the most recent committed version.
			pendingIntent = &Intent{Key: append([]byte(nil), userKey...), Txn: meta.Txn.Clone()}
			next := MVCCKey{Key: userKey, Timestamp: intentTS}.Next()
			if !seekVersion(iter, userKey, next.Timestamp) {
				return nil, pendingIntent, nil
			}
			continue

		case !ownIntent:
			// Case 7: consistent read blocked on a foreign intent; record
			// it and move on without resolving a value for this key.
			return nil, &Intent{Key: append([]byte(nil), userKey...), Txn: meta.Txn.Clone()}, nil

		case txn.Epoch == meta.Txn.Epoch:
			// Case 8: own intent, same epoch — read the provisional value
			// directly. This resolves here rather than looping back through
			// cases 1-3: re-classifying against the read timestamp would
			// wrongly flag the txn's own write as uncertain whenever
			// intent_ts falls inside the txn's own uncertainty interval.
			if !seekVersion(iter, userKey, intentTS) {
				return nil, pendingIntent, errCorrupt("own intent at %x has no corresponding version", userKey)
			}
			return &KeyValue{
				Key:       userKey,
				Value:     append([]byte(nil), iter.Value()...),
				Timestamp: intentTS,
			}, pendingIntent, nil

		case txn.Epoch < meta.Txn.Epoch:
			// Case 9: stale reader epoch, must restart.
			return nil, pendingIntent, &EpochMismatchError{IntentEpoch: meta.Txn.Epoch, ReadEpoch: txn.Epoch}

		default:
			// Case 10: own intent from an earlier epoch than the reader;
			// ignore it and read the version strictly older than it.
			next := MVCCKey{Key: userKey, Timestamp: intentTS}.Next()
			if !seekVersion(iter, userKey, next.Timestamp) {
				return nil, pendingIntent, nil
			}
			continue
		}
	}
}

// seekVersion positions iter at the newest version of userKey at or
// before ts, returning false if no such version exists (iter then sits
// on whatever followed — a different key, a meta row, or end of range).
func seekVersion(iter Iterator, userKey []byte, ts hlc.Timestamp) bool {
	if !iter.SeekGE(EncodeKey(userKey, ts.WallTime, ts.Logical)) {
		return false
	}
	cur, err := DecodeMVCCKey(iter.Key())
	if err != nil {
		return false
	}
	return bytes.Equal(cur.Key, userKey) && cur.IsValue()
}

// MVCCGet resolves a single key at timestamp, per §4.4.4. It returns the
// resolved value (nil if not found), any intents observed (at most one,
// by the invariant that a key carries at most one intent), and an error
// for uncertainty, epoch-mismatch, or corruption.
func MVCCGet(iter Iterator, key []byte, timestamp hlc.Timestamp, opts ScanOptions) (*KeyValue, []Intent, error) {
	if !iter.SeekGE(EncodeKey(key, 0, 0)) {
		return nil, nil, iter.Error()
	}
	cur, _, err := Split(iter.Key())
	if err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(cur, key) {
		return nil, nil, nil
	}
	kv, intent, err := resolveAtCursor(iter, key, timestamp, opts.Txn, opts.Consistent)
	if err != nil {
		return nil, nil, err
	}
	var intents []Intent
	if intent != nil {
		intents = append(intents, *intent)
		if opts.Consistent {
			return kv, intents, &WriteIntentError{Intents: intents}
		}
	}
	return kv, intents, nil
}

// MVCCScan resolves every key in [start, end) at timestamp (in reverse,
// the same range walked backward from end), per §4.4.1/§4.4.3.
func MVCCScan(iter Iterator, start, end []byte, timestamp hlc.Timestamp, opts ScanOptions) (ScanResult, error) {
	if opts.Reverse {
		return mvccScanReverse(iter, start, end, timestamp, opts)
	}
	return mvccScanForward(iter, start, end, timestamp, opts)
}

func mvccScanForward(
	iter Iterator, start, end []byte, timestamp hlc.Timestamp, opts ScanOptions,
) (ScanResult, error) {
	var res ScanResult
	step := newStepper()

	if !iter.SeekGE(EncodeKey(start, 0, 0)) {
		return res, iter.Error()
	}
	for {
		if !iter.Valid() {
			break
		}
		userKeyRaw, _, err := Split(iter.Key())
		if err != nil {
			return res, err
		}
		if end != nil && bytes.Compare(userKeyRaw, end) >= 0 {
			break
		}
		userKey := append([]byte(nil), userKeyRaw...)

		kv, intent, err := resolveAtCursor(iter, userKey, timestamp, opts.Txn, opts.Consistent)
		if err != nil {
			return res, err
		}
		if intent != nil {
			res.Intents = append(res.Intents, *intent)
		}
		if kv != nil {
			res.KVs = append(res.KVs, *kv)
			if opts.MaxKeys > 0 && int64(len(res.KVs)) > opts.MaxKeys {
				res.ResumeKey = res.KVs[len(res.KVs)-1].Key
				res.KVs = res.KVs[:opts.MaxKeys]
				break
			}
		}
		if !step.advancePastKey(iter, userKey) {
			break
		}
	}
	if len(res.Intents) > 0 && opts.Consistent {
		return res, &WriteIntentError{Intents: res.Intents}
	}
	return res, nil
}

func mvccScanReverse(
	iter Iterator, start, end []byte, timestamp hlc.Timestamp, opts ScanOptions,
) (ScanResult, error) {
	var res ScanResult
	pit := &peekIterator{Iterator: iter}

	ok := pit.SeekLT(EncodeKey(end, 0, 0))
	for {
		if !ok {
			if err := pit.Error(); err != nil {
				return res, err
			}
			break
		}
		userKeyRaw, _, err := Split(pit.Key())
		if err != nil {
			return res, err
		}
		if bytes.Compare(userKeyRaw, start) < 0 {
			break
		}
		userKey := append([]byte(nil), userKeyRaw...)

		// SeekLT from an arbitrary upper bound can land mid-chain on an
		// older version rather than the canonical meta/newest row,
		// because versions sort newest-first within a key's block. Walk
		// backward one row at a time, confirming with a peek that we're
		// still inside userKey's block, until we reach its start.
		for {
			_, _, moved := pit.peekPrev()
			if !moved {
				pit.cancelPeek()
				break
			}
			peeked, _, derr := Split(pit.Key())
			if derr != nil {
				pit.cancelPeek()
				break
			}
			if !bytes.Equal(peeked, userKey) {
				pit.cancelPeek()
				break
			}
			pit.commitPeek()
		}

		kv, intent, err := resolveAtCursor(pit, userKey, timestamp, opts.Txn, opts.Consistent)
		if err != nil {
			return res, err
		}
		if intent != nil {
			res.Intents = append(res.Intents, *intent)
		}
		if kv != nil {
			res.KVs = append(res.KVs, *kv)
			if opts.MaxKeys > 0 && int64(len(res.KVs)) > opts.MaxKeys {
				res.ResumeKey = res.KVs[len(res.KVs)-1].Key
				res.KVs = res.KVs[:opts.MaxKeys]
				break
			}
		}

		ok = pit.SeekLT(EncodeKey(userKey, 0, 0))
	}
	if len(res.Intents) > 0 && opts.Consistent {
		return res, &WriteIntentError{Intents: res.Intents}
	}
	return res, nil
}

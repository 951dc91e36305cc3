// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"github.com/latticedb/lattice/storage/enginepb"
	"github.com/latticedb/lattice/storage/hlc"
)

// Grounded on pkg/storage/engine/mvcc.go's MVCCPut/MVCCDelete/MVCCMerge:
// the write side of §2's data flow ("writes encode keys and forward to
// the backing"). A committed, non-transactional write costs exactly one
// version-key Put; a transactional write additionally installs a meta
// key carrying the intent, per §3's invariants.

// MVCCPut writes value as the version of key at timestamp. If txn is
// non-nil the write is provisional: a meta key recording the intent is
// written alongside the version key, per §3's intent invariant (the
// version key's timestamp equals meta.Timestamp).
func MVCCPut(eng Engine, key []byte, timestamp hlc.Timestamp, value []byte, txn *enginepb.TxnMeta) error {
	return mvccPutInternal(eng, key, timestamp, MakeValue(value), false, txn)
}

// MVCCDelete writes a tombstone (a zero-length version value) for key at
// timestamp. Per §4.5, a tombstone's GC age accrues from its own
// timestamp rather than from a prior version's.
func MVCCDelete(eng Engine, key []byte, timestamp hlc.Timestamp, txn *enginepb.TxnMeta) error {
	return mvccPutInternal(eng, key, timestamp, nil, true, txn)
}

func mvccPutInternal(
	eng Engine, key []byte, timestamp hlc.Timestamp, value []byte, deleted bool, txn *enginepb.TxnMeta,
) error {
	versionKey := EncodeMVCCKey(MVCCKey{Key: key, Timestamp: timestamp})
	if err := eng.Put(versionKey, value); err != nil {
		return err
	}
	if txn == nil {
		return nil
	}
	meta := &enginepb.MVCCMetadata{
		Txn:       txn,
		Timestamp: timestamp,
		Deleted:   deleted,
		KeyBytes:  mvccVersionTimestampSize,
		ValBytes:  int64(len(value)),
	}
	metaBytes, err := meta.Marshal()
	if err != nil {
		return err
	}
	return eng.Put(EncodeMVCCKey(MakeMetadataKey(key)), metaBytes)
}

// MVCCPutInline writes value directly into key's meta record with no
// corresponding version key, per §3's inline-value definition. Reads of
// an inline key return its bytes regardless of read timestamp.
func MVCCPutInline(eng Engine, key []byte, value []byte) error {
	meta := &enginepb.MVCCMetadata{RawBytes: MakeValue(value)}
	metaBytes, err := meta.Marshal()
	if err != nil {
		return err
	}
	return eng.Put(EncodeMVCCKey(MakeMetadataKey(key)), metaBytes)
}

// MVCCMerge submits value as a merge operand against key's accumulated
// MVCCMetadata at timestamp, per §4.2. The LSM's merge operator combines
// it with prior operands lazily, on read or compaction.
func MVCCMerge(eng Engine, key []byte, timestamp hlc.Timestamp, value []byte) error {
	meta := &enginepb.MVCCMetadata{RawBytes: MakeValue(value), Timestamp: timestamp}
	operand, err := meta.Marshal()
	if err != nil {
		return err
	}
	return eng.Merge(EncodeMVCCKey(MakeMetadataKey(key)), operand)
}

// MVCCResolveWriteIntent commits or aborts the intent recorded in the
// meta key for key, per the txn's disposition. Committing simply
// removes the meta key (the version key it pointed at, written at
// meta.Timestamp, is already the committed value). Aborting removes
// both the meta key and the provisional version key.
func MVCCResolveWriteIntent(eng Engine, key []byte, txn *enginepb.TxnMeta, commit bool) error {
	metaKey := EncodeMVCCKey(MakeMetadataKey(key))
	raw, err := eng.Get(metaKey)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	var meta enginepb.MVCCMetadata
	if err := meta.Unmarshal(raw); err != nil {
		return errCorrupt("corrupt MVCCMetadata at %x: %v", key, err)
	}
	if meta.Txn == nil {
		return nil
	}
	if err := eng.Delete(metaKey); err != nil {
		return err
	}
	if !commit {
		versionKey := EncodeMVCCKey(MVCCKey{Key: key, Timestamp: meta.Timestamp})
		return eng.Delete(versionKey)
	}
	return nil
}

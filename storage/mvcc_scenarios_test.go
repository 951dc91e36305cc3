// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"testing"

	"github.com/latticedb/lattice/storage/enginepb"
	"github.com/latticedb/lattice/storage/hlc"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func newIter(t *testing.T, eng Engine) Iterator {
	t.Helper()
	it, err := eng.NewIter(IterOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, it.Close()) })
	return it
}

func mustGet(t *testing.T, eng Engine, key []byte, ts hlc.Timestamp, opts ScanOptions) (*KeyValue, []Intent, error) {
	t.Helper()
	it := newIter(t, eng)
	return MVCCGet(it, key, ts, opts)
}

func txnMeta(id string, epoch uint32, maxTS hlc.Timestamp) *enginepb.TxnMeta {
	return &enginepb.TxnMeta{ID: []byte(id), Epoch: epoch, MaxTimestamp: maxTS}
}

// Scenario A: a simple non-transactional read at a timestamp returns the
// newest committed version at or before it.
func TestScenarioSimpleReadAtTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 1}, []byte("v1"), nil))
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 5}, []byte("v5"), nil))
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 9}, []byte("v9"), nil))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 6}, ScanOptions{Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.NotNil(t, kv)
	require.Equal(t, []byte("v5"), ValueDataBytes(kv.Value))
	require.Equal(t, hlc.Timestamp{WallTime: 5}, kv.Timestamp)
}

func TestScenarioReadBeforeAnyVersionReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 5}, []byte("v5"), nil))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 1}, ScanOptions{Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.Nil(t, kv)
}

// Scenario B: a read timestamp falling inside a transaction's own
// uncertainty interval and observing a newer committed version errors.
func TestScenarioUncertainty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 8}, []byte("v8"), nil))

	txn := txnMeta("txn-a", 1, hlc.Timestamp{WallTime: 10})
	_, _, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 4}, ScanOptions{Txn: txn, Consistent: true})
	require.Error(t, err)
	var uerr *UncertaintyError
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, hlc.Timestamp{WallTime: 8}, uerr.ExistingTimestamp)
}

func TestScenarioNoUncertaintyOutsideInterval(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 20}, []byte("v20"), nil))

	txn := txnMeta("txn-a", 1, hlc.Timestamp{WallTime: 10})
	kv, _, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 4}, ScanOptions{Txn: txn, Consistent: true})
	require.NoError(t, err)
	require.Nil(t, kv) // version at 20 is beyond MaxTimestamp, so it is invisible, not uncertain
}

// Scenario C: a transaction reading its own intent.
func TestScenarioOwnIntentSameEpoch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 3}, []byte("v3"), nil))
	txn := txnMeta("txn-x", 2, hlc.Timestamp{WallTime: 6})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), txn))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 4}, ScanOptions{Txn: txn, Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.NotNil(t, kv)
	require.Equal(t, []byte("v7"), ValueDataBytes(kv.Value))
	require.Equal(t, hlc.Timestamp{WallTime: 7}, kv.Timestamp)
}

func TestScenarioOwnIntentNewerEpochRestarts(t *testing.T) {
	s := newTestStore(t)
	writer := txnMeta("txn-x", 1, hlc.Timestamp{WallTime: 6})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), writer))

	reader := txnMeta("txn-x", 0, hlc.Timestamp{WallTime: 6})
	_, _, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 4}, ScanOptions{Txn: reader, Consistent: true})
	require.Error(t, err)
	var eerr *EpochMismatchError
	require.ErrorAs(t, err, &eerr)
}

func TestScenarioOwnIntentOlderEpochIgnoredFallsThrough(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 3}, []byte("v3"), nil))
	writer := txnMeta("txn-x", 1, hlc.Timestamp{WallTime: 6})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), writer))

	reader := txnMeta("txn-x", 3, hlc.Timestamp{WallTime: 6})
	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 4}, ScanOptions{Txn: reader, Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.NotNil(t, kv)
	require.Equal(t, []byte("v3"), ValueDataBytes(kv.Value))
}

func TestScenarioOwnIntentOlderEpochNoOlderVersionNotFound(t *testing.T) {
	s := newTestStore(t)
	writer := txnMeta("txn-x", 1, hlc.Timestamp{WallTime: 6})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), writer))

	reader := txnMeta("txn-x", 3, hlc.Timestamp{WallTime: 6})
	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 4}, ScanOptions{Txn: reader, Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.Nil(t, kv)
}

// Scenario D: a foreign intent under both consistent and inconsistent reads.
func TestScenarioForeignIntentConsistentReadBlocks(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 3}, []byte("v3"), nil))
	other := txnMeta("txn-other", 1, hlc.Timestamp{WallTime: 10})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), other))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 8}, ScanOptions{Consistent: true})
	require.Error(t, err)
	var wie *WriteIntentError
	require.ErrorAs(t, err, &wie)
	require.Len(t, intents, 1)
	require.Nil(t, kv)
}

func TestScenarioForeignIntentInconsistentReadResolvesOlderVersion(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 3}, []byte("v3"), nil))
	other := txnMeta("txn-other", 1, hlc.Timestamp{WallTime: 10})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), other))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 8}, ScanOptions{Consistent: false})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, []byte("txn-other"), intents[0].Txn.ID)
	require.NotNil(t, kv)
	require.Equal(t, []byte("v3"), ValueDataBytes(kv.Value))
}

func TestScenarioIntentAheadOfReadIsIgnored(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 3}, []byte("v3"), nil))
	other := txnMeta("txn-other", 1, hlc.Timestamp{WallTime: 20})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 15}, []byte("v15"), other))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 4}, ScanOptions{Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.NotNil(t, kv)
	require.Equal(t, []byte("v3"), ValueDataBytes(kv.Value))
}

func TestMVCCScanForwardMultipleKeys(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("a"), hlc.Timestamp{WallTime: 1}, []byte("va"), nil))
	require.NoError(t, MVCCPut(s, []byte("b"), hlc.Timestamp{WallTime: 1}, []byte("vb"), nil))
	require.NoError(t, MVCCPut(s, []byte("c"), hlc.Timestamp{WallTime: 1}, []byte("vc"), nil))

	it := newIter(t, s)
	res, err := MVCCScan(it, []byte("a"), []byte("z"), hlc.Timestamp{WallTime: 5}, ScanOptions{Consistent: true})
	require.NoError(t, err)
	require.Len(t, res.KVs, 3)
	require.Equal(t, []byte("a"), res.KVs[0].Key)
	require.Equal(t, []byte("b"), res.KVs[1].Key)
	require.Equal(t, []byte("c"), res.KVs[2].Key)
}

func TestMVCCScanReverseMultipleKeys(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("a"), hlc.Timestamp{WallTime: 1}, []byte("va"), nil))
	require.NoError(t, MVCCPut(s, []byte("b"), hlc.Timestamp{WallTime: 1}, []byte("vb"), nil))
	require.NoError(t, MVCCPut(s, []byte("c"), hlc.Timestamp{WallTime: 1}, []byte("vc"), nil))

	it := newIter(t, s)
	res, err := MVCCScan(it, []byte("a"), []byte("z"), hlc.Timestamp{WallTime: 5}, ScanOptions{Consistent: true, Reverse: true})
	require.NoError(t, err)
	require.Len(t, res.KVs, 3)
	require.Equal(t, []byte("c"), res.KVs[0].Key)
	require.Equal(t, []byte("b"), res.KVs[1].Key)
	require.Equal(t, []byte("a"), res.KVs[2].Key)
}

func TestMVCCScanMaxKeysSetsResumeKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("a"), hlc.Timestamp{WallTime: 1}, []byte("va"), nil))
	require.NoError(t, MVCCPut(s, []byte("b"), hlc.Timestamp{WallTime: 1}, []byte("vb"), nil))
	require.NoError(t, MVCCPut(s, []byte("c"), hlc.Timestamp{WallTime: 1}, []byte("vc"), nil))

	it := newIter(t, s)
	res, err := MVCCScan(it, []byte("a"), []byte("z"), hlc.Timestamp{WallTime: 5}, ScanOptions{Consistent: true, MaxKeys: 2})
	require.NoError(t, err)
	require.Len(t, res.KVs, 2)
	require.Equal(t, []byte("c"), res.ResumeKey)
}

func TestMVCCResolveWriteIntentCommit(t *testing.T) {
	s := newTestStore(t)
	txn := txnMeta("txn-x", 1, hlc.Timestamp{WallTime: 6})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), txn))
	require.NoError(t, MVCCResolveWriteIntent(s, []byte("k"), txn, true))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 100}, ScanOptions{Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.NotNil(t, kv)
	require.Equal(t, []byte("v7"), ValueDataBytes(kv.Value))
}

func TestMVCCResolveWriteIntentAbort(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 3}, []byte("v3"), nil))
	txn := txnMeta("txn-x", 1, hlc.Timestamp{WallTime: 6})
	require.NoError(t, MVCCPut(s, []byte("k"), hlc.Timestamp{WallTime: 7}, []byte("v7"), txn))
	require.NoError(t, MVCCResolveWriteIntent(s, []byte("k"), txn, false))

	kv, intents, err := mustGet(t, s, []byte("k"), hlc.Timestamp{WallTime: 100}, ScanOptions{Consistent: true})
	require.NoError(t, err)
	require.Empty(t, intents)
	require.NotNil(t, kv)
	require.Equal(t, []byte("v3"), ValueDataBytes(kv.Value))
}

func TestMVCCPutInlineIgnoresTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, MVCCPutInline(s, []byte("cfg"), []byte("value")))

	kv, _, err := mustGet(t, s, []byte("cfg"), hlc.Timestamp{}, ScanOptions{Consistent: true})
	require.NoError(t, err)
	require.NotNil(t, kv)
	require.Equal(t, []byte("value"), ValueDataBytes(kv.Value))
}

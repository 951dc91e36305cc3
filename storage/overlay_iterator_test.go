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
	"github.com/stretchr/testify/require"
)

// Scenario E: a merge operand buffered in an indexed batch composes with a
// value already committed to the base store, visible through both the
// batch's point Get and its iterator, without touching the base store.
func TestIndexedBatchMergeOverBaseValue(t *testing.T) {
	s := newTestStore(t)

	key := EncodeMVCCKey(MakeMetadataKey([]byte("k")))
	require.NoError(t, s.Put(key, metaBytes(t, MakeValue([]byte("base")))))

	batch := s.NewIndexedBatch()
	t.Cleanup(func() { require.NoError(t, batch.Close()) })

	operand := metaBytes(t, MakeValue([]byte("-delta")))
	require.NoError(t, batch.Merge(key, operand))

	got, err := batch.Get(key)
	require.NoError(t, err)
	m := decodeMeta(t, got)
	require.Equal(t, []byte("base-delta"), ValueDataBytes(m.RawBytes))

	// The base store itself is untouched until the batch commits.
	baseRaw, err := s.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("base"), ValueDataBytes(decodeMeta(t, baseRaw).RawBytes))

	it := newIter(t, batch)
	require.True(t, it.SeekGE(key))
	require.True(t, Equal(it.Key(), key))
	overlaid := decodeMeta(t, it.Value())
	require.Equal(t, []byte("base-delta"), ValueDataBytes(overlaid.RawBytes))
}

func TestIndexedBatchPutShadowsBaseValue(t *testing.T) {
	s := newTestStore(t)
	key := EncodeMVCCKey(MakeMetadataKey([]byte("k")))
	require.NoError(t, s.Put(key, []byte("base-raw")))

	batch := s.NewIndexedBatch()
	t.Cleanup(func() { require.NoError(t, batch.Close()) })
	require.NoError(t, batch.Put(key, []byte("overridden")))

	got, err := batch.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("overridden"), got)
}

func TestIndexedBatchDeleteShadowsBaseValue(t *testing.T) {
	s := newTestStore(t)
	key := EncodeMVCCKey(MakeMetadataKey([]byte("k")))
	require.NoError(t, s.Put(key, []byte("base-raw")))

	batch := s.NewIndexedBatch()
	t.Cleanup(func() { require.NoError(t, batch.Close()) })
	require.NoError(t, batch.Delete(key))

	got, err := batch.Get(key)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIndexedBatchIteratesInsertedKeyNotInBase(t *testing.T) {
	s := newTestStore(t)
	baseKey := EncodeMVCCKey(MakeMetadataKey([]byte("a")))
	require.NoError(t, s.Put(baseKey, []byte("base-a")))

	batch := s.NewIndexedBatch()
	t.Cleanup(func() { require.NoError(t, batch.Close()) })
	newKey := EncodeMVCCKey(MakeMetadataKey([]byte("b")))
	require.NoError(t, batch.Put(newKey, []byte("new-b")))

	it := newIter(t, batch)
	require.True(t, it.First())
	require.True(t, Equal(it.Key(), baseKey))
	require.True(t, it.Next())
	require.True(t, Equal(it.Key(), newKey))
	require.False(t, it.Next())
}

func TestIndexedBatchGetRejectsPendingDeleteRange(t *testing.T) {
	s := newTestStore(t)
	batch := s.NewIndexedBatch()
	t.Cleanup(func() { require.NoError(t, batch.Close()) })

	start := EncodeMVCCKey(MakeMetadataKey([]byte("a")))
	end := EncodeMVCCKey(MakeMetadataKey([]byte("z")))
	require.NoError(t, batch.DeleteRange(start, end))

	_, err := batch.Get(start)
	require.Error(t, err)
	var uerr *UnsupportedOperationError
	require.ErrorAs(t, err, &uerr)
}

// Sanity check that the merge accumulator used by the overlay iterator
// agrees with the LSM's own full-merge semantics for time-series payloads.
func TestIndexedBatchMergeTimeSeriesOverBase(t *testing.T) {
	s := newTestStore(t)
	key := EncodeMVCCKey(MakeMetadataKey([]byte("ts")))
	require.NoError(t, s.Put(key, tsMetaBytes(t, 0, 10,
		enginepb.InternalTimeSeriesSample{Offset: 0, Count: 1, Sum: 1})))

	batch := s.NewIndexedBatch()
	t.Cleanup(func() { require.NoError(t, batch.Close()) })
	operand := tsMetaBytes(t, 0, 10, enginepb.InternalTimeSeriesSample{Offset: 1, Count: 1, Sum: 2})
	require.NoError(t, batch.Merge(key, operand))

	got, err := batch.Get(key)
	require.NoError(t, err)
	ts := decodeTS(t, got)
	require.Equal(t, []enginepb.InternalTimeSeriesSample{
		{Offset: 0, Count: 1, Sum: 1},
		{Offset: 1, Count: 1, Sum: 2},
	}, ts.Samples)
}

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

func metaBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	m := enginepb.MVCCMetadata{RawBytes: raw}
	b, err := m.Marshal()
	require.NoError(t, err)
	return b
}

func decodeMeta(t *testing.T, b []byte) enginepb.MVCCMetadata {
	t.Helper()
	var m enginepb.MVCCMetadata
	require.NoError(t, m.Unmarshal(b))
	return m
}

func TestFullMergeBytesConcatenation(t *testing.T) {
	existing := metaBytes(t, MakeValue([]byte("a")))
	op1 := metaBytes(t, MakeValue([]byte("b")))
	op2 := metaBytes(t, MakeValue([]byte("c")))

	merged, err := FullMerge(existing, [][]byte{op1, op2})
	require.NoError(t, err)

	m := decodeMeta(t, merged)
	require.Equal(t, []byte("abc"), ValueDataBytes(m.RawBytes))
}

func TestFullMergeBytesConcatenationIsAssociative(t *testing.T) {
	existing := metaBytes(t, MakeValue([]byte("a")))
	op1 := metaBytes(t, MakeValue([]byte("b")))
	op2 := metaBytes(t, MakeValue([]byte("c")))

	left, err := FullMerge(existing, [][]byte{op1, op2})
	require.NoError(t, err)

	partial, err := PartialMerge([][]byte{op1, op2})
	require.NoError(t, err)
	right, err := FullMerge(existing, [][]byte{partial})
	require.NoError(t, err)

	require.Equal(t, decodeMeta(t, left).RawBytes, decodeMeta(t, right).RawBytes)
}

func TestFullMergeNoExisting(t *testing.T) {
	op1 := metaBytes(t, MakeValue([]byte("x")))
	merged, err := FullMerge(nil, [][]byte{op1})
	require.NoError(t, err)

	m := decodeMeta(t, merged)
	require.Equal(t, []byte("x"), ValueDataBytes(m.RawBytes))
}

func TestFullMergeRejectsMixedValueTypes(t *testing.T) {
	tsVal, err := SerializeTimeSeriesToValue(&enginepb.InternalTimeSeriesData{
		StartTimestampNanos: 0,
		SampleDurationNanos: 10,
		Samples:             []enginepb.InternalTimeSeriesSample{{Offset: 0, Count: 1, Sum: 1}},
	})
	require.NoError(t, err)
	existing := metaBytes(t, tsVal)
	op := metaBytes(t, MakeValue([]byte("not-a-time-series")))

	_, err = FullMerge(existing, [][]byte{op})
	require.Error(t, err)
}

func tsMetaBytes(t *testing.T, start, duration int64, samples ...enginepb.InternalTimeSeriesSample) []byte {
	t.Helper()
	v, err := SerializeTimeSeriesToValue(&enginepb.InternalTimeSeriesData{
		StartTimestampNanos: start,
		SampleDurationNanos: duration,
		Samples:             samples,
	})
	require.NoError(t, err)
	return metaBytes(t, v)
}

func decodeTS(t *testing.T, merged []byte) enginepb.InternalTimeSeriesData {
	t.Helper()
	m := decodeMeta(t, merged)
	var ts enginepb.InternalTimeSeriesData
	require.NoError(t, ParseProtoFromValue(m.RawBytes, &ts))
	return ts
}

func TestFullMergeTimeSeriesDedupesByOffsetLastWriteWins(t *testing.T) {
	existing := tsMetaBytes(t, 0, 10,
		enginepb.InternalTimeSeriesSample{Offset: 0, Count: 1, Sum: 1},
		enginepb.InternalTimeSeriesSample{Offset: 2, Count: 1, Sum: 2},
	)
	op := tsMetaBytes(t, 0, 10,
		enginepb.InternalTimeSeriesSample{Offset: 1, Count: 1, Sum: 3},
		enginepb.InternalTimeSeriesSample{Offset: 2, Count: 5, Sum: 99}, // overwrites offset 2
	)

	merged, err := FullMerge(existing, [][]byte{op})
	require.NoError(t, err)

	ts := decodeTS(t, merged)
	require.Equal(t, []enginepb.InternalTimeSeriesSample{
		{Offset: 0, Count: 1, Sum: 1},
		{Offset: 1, Count: 1, Sum: 3},
		{Offset: 2, Count: 5, Sum: 99},
	}, ts.Samples)
}

func TestFullMergeTimeSeriesConsolidatesSingleOperand(t *testing.T) {
	op := tsMetaBytes(t, 0, 10,
		enginepb.InternalTimeSeriesSample{Offset: 3, Count: 1, Sum: 1},
		enginepb.InternalTimeSeriesSample{Offset: 1, Count: 1, Sum: 2},
		enginepb.InternalTimeSeriesSample{Offset: 1, Count: 1, Sum: 5}, // duplicate offset, later wins
	)

	merged, err := FullMerge(nil, [][]byte{op})
	require.NoError(t, err)

	ts := decodeTS(t, merged)
	require.Equal(t, []enginepb.InternalTimeSeriesSample{
		{Offset: 1, Count: 1, Sum: 5},
		{Offset: 3, Count: 1, Sum: 1},
	}, ts.Samples)
}

func TestFullMergeTimeSeriesRejectsMismatchedStart(t *testing.T) {
	existing := tsMetaBytes(t, 0, 10, enginepb.InternalTimeSeriesSample{Offset: 0, Count: 1, Sum: 1})
	op := tsMetaBytes(t, 100, 10, enginepb.InternalTimeSeriesSample{Offset: 0, Count: 1, Sum: 1})

	_, err := FullMerge(existing, [][]byte{op})
	require.Error(t, err)
}

func TestPartialMergeTimeSeriesConcatenatesWithoutDedup(t *testing.T) {
	op1 := tsMetaBytes(t, 0, 10, enginepb.InternalTimeSeriesSample{Offset: 0, Count: 1, Sum: 1})
	op2 := tsMetaBytes(t, 0, 10, enginepb.InternalTimeSeriesSample{Offset: 0, Count: 1, Sum: 2})

	merged, err := PartialMerge([][]byte{op1, op2})
	require.NoError(t, err)

	ts := decodeTS(t, merged)
	require.Len(t, ts.Samples, 2)
}

func TestValueMergerMatchesFullMerge(t *testing.T) {
	existing := metaBytes(t, MakeValue([]byte("a")))
	op1 := metaBytes(t, MakeValue([]byte("b")))
	op2 := metaBytes(t, MakeValue([]byte("c")))

	vm := newValueMerger(existing)
	require.NoError(t, vm.MergeNewer(op1))
	require.NoError(t, vm.MergeNewer(op2))
	got, _, err := vm.Finish(true)
	require.NoError(t, err)

	want, err := FullMerge(existing, [][]byte{op1, op2})
	require.NoError(t, err)

	require.Equal(t, decodeMeta(t, want).RawBytes, decodeMeta(t, got).RawBytes)
}

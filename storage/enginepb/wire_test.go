// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package enginepb

import (
	"testing"

	"github.com/latticedb/lattice/storage/hlc"
	"github.com/stretchr/testify/require"
)

func TestTxnMetaMarshalRoundTrip(t *testing.T) {
	orig := &TxnMeta{
		ID:           []byte("txn-1234"),
		Epoch:        3,
		MaxTimestamp: hlc.Timestamp{WallTime: 100, Logical: 7},
		Sequence:     42,
	}
	data, err := orig.Marshal()
	require.NoError(t, err)

	var got TxnMeta
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, orig.ID, got.ID)
	require.Equal(t, orig.Epoch, got.Epoch)
	require.Equal(t, orig.MaxTimestamp, got.MaxTimestamp)
	require.Equal(t, orig.Sequence, got.Sequence)
}

func TestTxnMetaMarshalEmpty(t *testing.T) {
	orig := &TxnMeta{}
	data, err := orig.Marshal()
	require.NoError(t, err)

	var got TxnMeta
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, TxnMeta{}, got)
}

func TestTxnMetaClone(t *testing.T) {
	orig := &TxnMeta{ID: []byte("abc"), Epoch: 1}
	clone := orig.Clone()
	clone.ID[0] = 'z'
	require.Equal(t, byte('a'), orig.ID[0])
	require.Nil(t, (*TxnMeta)(nil).Clone())
}

func TestMVCCMetadataMarshalRoundTripInlineValue(t *testing.T) {
	orig := &MVCCMetadata{
		Timestamp: hlc.Timestamp{WallTime: 55},
		KeyBytes:  10,
		ValBytes:  20,
		RawBytes:  []byte("hello world"),
	}
	data, err := orig.Marshal()
	require.NoError(t, err)

	var got MVCCMetadata
	require.NoError(t, got.Unmarshal(data))
	require.Nil(t, got.Txn)
	require.Equal(t, orig.Timestamp, got.Timestamp)
	require.Equal(t, orig.KeyBytes, got.KeyBytes)
	require.Equal(t, orig.ValBytes, got.ValBytes)
	require.Equal(t, orig.RawBytes, got.RawBytes)
	require.Nil(t, got.MergeTimestamp)
	require.True(t, got.IsInline())
}

func TestMVCCMetadataMarshalRoundTripIntent(t *testing.T) {
	orig := &MVCCMetadata{
		Txn: &TxnMeta{
			ID:           []byte("txn-99"),
			Epoch:        2,
			MaxTimestamp: hlc.Timestamp{WallTime: 200},
			Sequence:     1,
		},
		Timestamp: hlc.Timestamp{WallTime: 150, Logical: 3},
		Deleted:   true,
		KeyBytes:  5,
		ValBytes:  0,
	}
	data, err := orig.Marshal()
	require.NoError(t, err)

	var got MVCCMetadata
	require.NoError(t, got.Unmarshal(data))
	require.NotNil(t, got.Txn)
	require.Equal(t, orig.Txn.ID, got.Txn.ID)
	require.Equal(t, orig.Txn.Epoch, got.Txn.Epoch)
	require.Equal(t, orig.Txn.MaxTimestamp, got.Txn.MaxTimestamp)
	require.Equal(t, orig.Timestamp, got.Timestamp)
	require.True(t, got.Deleted)
	require.False(t, got.IsInline())
}

func TestMVCCMetadataMarshalRoundTripMergeTimestamp(t *testing.T) {
	mergeTS := hlc.Timestamp{WallTime: 77, Logical: 2}
	orig := &MVCCMetadata{
		RawBytes:       []byte("v"),
		MergeTimestamp: &mergeTS,
	}
	data, err := orig.Marshal()
	require.NoError(t, err)

	var got MVCCMetadata
	require.NoError(t, got.Unmarshal(data))
	require.NotNil(t, got.MergeTimestamp)
	require.Equal(t, mergeTS, *got.MergeTimestamp)
}

func TestMVCCMetadataReset(t *testing.T) {
	m := &MVCCMetadata{RawBytes: []byte("x")}
	m.Reset()
	require.Equal(t, MVCCMetadata{}, *m)
}

func TestInternalTimeSeriesDataMarshalRoundTrip(t *testing.T) {
	orig := &InternalTimeSeriesData{
		StartTimestampNanos: 1000,
		SampleDurationNanos: 10,
		Samples: []InternalTimeSeriesSample{
			{Offset: 0, Count: 1, Sum: 3.5},
			{Offset: 1, Count: 2, Sum: -1.25},
			{Offset: 5, Count: 0, Sum: 0},
		},
	}
	data, err := orig.Marshal()
	require.NoError(t, err)

	var got InternalTimeSeriesData
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, orig.StartTimestampNanos, got.StartTimestampNanos)
	require.Equal(t, orig.SampleDurationNanos, got.SampleDurationNanos)
	require.Equal(t, orig.Samples, got.Samples)
}

func TestInternalTimeSeriesSampleMarshalRoundTrip(t *testing.T) {
	orig := &InternalTimeSeriesSample{Offset: -3, Count: 9, Sum: 12.75}
	data, err := orig.Marshal()
	require.NoError(t, err)

	var got InternalTimeSeriesSample
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, *orig, got)
}

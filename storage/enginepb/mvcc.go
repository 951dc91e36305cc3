// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Package enginepb holds the wire-format structures that the MVCC layer
// stores inside the underlying key-value engine: metadata records,
// transaction descriptors, aggregate statistics, and the time-series
// envelope consumed by the merge operator.
package enginepb

import (
	"github.com/latticedb/lattice/storage/hlc"
	"github.com/pkg/errors"
)

// ValueType tags the kind of payload carried by a value envelope
// (see storage.ValueTag/SetValueTag). Only the tags the MVCC layer treats
// specially are enumerated; everything else round-trips as opaque bytes.
type ValueType byte

const (
	// ValueType_UNKNOWN is the zero value; never written deliberately.
	ValueType_UNKNOWN ValueType = 0
	// ValueType_BYTES tags a plain byte-string payload.
	ValueType_BYTES ValueType = 1
	// ValueType_TIMESERIES tags an InternalTimeSeriesData payload.
	ValueType_TIMESERIES ValueType = 2
)

// TxnMeta identifies the transaction that owns an intent.
type TxnMeta struct {
	ID           []byte
	Epoch        uint32
	MaxTimestamp hlc.Timestamp
	Sequence     int32
}

// Clone returns a deep copy of m.
func (m *TxnMeta) Clone() *TxnMeta {
	if m == nil {
		return nil
	}
	c := *m
	c.ID = append([]byte(nil), m.ID...)
	return &c
}

// MVCCMetadata is the payload stored at a meta key (timestamp == zero).
// It is either an intent (Txn != nil) describing an uncommitted write, or
// an inline value (RawBytes set, Txn nil) with no corresponding version
// key.
type MVCCMetadata struct {
	Txn            *TxnMeta
	Timestamp      hlc.Timestamp
	Deleted        bool
	KeyBytes       int64
	ValBytes       int64
	RawBytes       []byte
	MergeTimestamp *hlc.Timestamp
}

// IsInline returns true if the metadata is a meta key carrying an inline
// value rather than pointing at a version key.
func (m *MVCCMetadata) IsInline() bool {
	return m.Txn == nil && m.RawBytes != nil
}

// Reset zeroes m in place for reuse.
func (m *MVCCMetadata) Reset() {
	*m = MVCCMetadata{}
}

const (
	fieldMetaTxn            = 1
	fieldMetaTimestampWall  = 2
	fieldMetaTimestampLog   = 3
	fieldMetaDeleted        = 4
	fieldMetaKeyBytes       = 5
	fieldMetaValBytes       = 6
	fieldMetaRawBytes       = 7
	fieldMetaMergeTSWall    = 8
	fieldMetaMergeTSLog     = 9
	fieldMetaMergeTSPresent = 10

	fieldTxnID       = 1
	fieldTxnEpoch    = 2
	fieldTxnMaxWall  = 3
	fieldTxnMaxLog   = 4
	fieldTxnSequence = 5
)

// Marshal encodes m in proto3 wire format.
func (m *MVCCMetadata) Marshal() ([]byte, error) {
	var b []byte
	if m.Txn != nil {
		txnBytes, err := m.Txn.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytesField(b, fieldMetaTxn, txnBytes)
	}
	if m.Timestamp.WallTime != 0 {
		b = appendZigZagField(b, fieldMetaTimestampWall, m.Timestamp.WallTime)
	}
	if m.Timestamp.Logical != 0 {
		b = appendVarintField(b, fieldMetaTimestampLog, uint64(m.Timestamp.Logical))
	}
	if m.Deleted {
		b = appendVarintField(b, fieldMetaDeleted, 1)
	}
	if m.KeyBytes != 0 {
		b = appendZigZagField(b, fieldMetaKeyBytes, m.KeyBytes)
	}
	if m.ValBytes != 0 {
		b = appendZigZagField(b, fieldMetaValBytes, m.ValBytes)
	}
	if m.RawBytes != nil {
		b = appendBytesField(b, fieldMetaRawBytes, m.RawBytes)
	}
	if m.MergeTimestamp != nil {
		b = appendVarintField(b, fieldMetaMergeTSPresent, 1)
		b = appendZigZagField(b, fieldMetaMergeTSWall, m.MergeTimestamp.WallTime)
		if m.MergeTimestamp.Logical != 0 {
			b = appendVarintField(b, fieldMetaMergeTSLog, uint64(m.MergeTimestamp.Logical))
		}
	}
	return b, nil
}

// Unmarshal decodes m from proto3 wire format, as produced by Marshal.
func (m *MVCCMetadata) Unmarshal(data []byte) error {
	m.Reset()
	var mergeTS hlc.Timestamp
	var haveMergeTS bool
	err := forEachField(data, func(field, wireType int, rest []byte) ([]byte, error) {
		switch field {
		case fieldMetaTxn:
			v, next, err := readBytesField(wireType, rest)
			if err != nil {
				return nil, err
			}
			txn := &TxnMeta{}
			if err := txn.Unmarshal(v); err != nil {
				return nil, err
			}
			m.Txn = txn
			return next, nil
		case fieldMetaTimestampWall:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.Timestamp.WallTime = zigzagDecode(v)
			return next, nil
		case fieldMetaTimestampLog:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.Timestamp.Logical = int32(v)
			return next, nil
		case fieldMetaDeleted:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.Deleted = v != 0
			return next, nil
		case fieldMetaKeyBytes:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.KeyBytes = zigzagDecode(v)
			return next, nil
		case fieldMetaValBytes:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.ValBytes = zigzagDecode(v)
			return next, nil
		case fieldMetaRawBytes:
			v, next, err := readBytesField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.RawBytes = append([]byte(nil), v...)
			return next, nil
		case fieldMetaMergeTSPresent:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			haveMergeTS = v != 0
			return next, nil
		case fieldMetaMergeTSWall:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			mergeTS.WallTime = zigzagDecode(v)
			return next, nil
		case fieldMetaMergeTSLog:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			mergeTS.Logical = int32(v)
			return next, nil
		default:
			return skipField(wireType, rest)
		}
	})
	if err != nil {
		return errors.Wrap(err, "corrupt MVCCMetadata")
	}
	if haveMergeTS {
		m.MergeTimestamp = &mergeTS
	}
	return nil
}

// Marshal encodes m in proto3 wire format.
func (m *TxnMeta) Marshal() ([]byte, error) {
	var b []byte
	if len(m.ID) > 0 {
		b = appendBytesField(b, fieldTxnID, m.ID)
	}
	if m.Epoch != 0 {
		b = appendVarintField(b, fieldTxnEpoch, uint64(m.Epoch))
	}
	if m.MaxTimestamp.WallTime != 0 {
		b = appendZigZagField(b, fieldTxnMaxWall, m.MaxTimestamp.WallTime)
	}
	if m.MaxTimestamp.Logical != 0 {
		b = appendVarintField(b, fieldTxnMaxLog, uint64(m.MaxTimestamp.Logical))
	}
	if m.Sequence != 0 {
		b = appendZigZagField(b, fieldTxnSequence, int64(m.Sequence))
	}
	return b, nil
}

// Unmarshal decodes m from proto3 wire format, as produced by Marshal.
func (m *TxnMeta) Unmarshal(data []byte) error {
	*m = TxnMeta{}
	return forEachField(data, func(field, wireType int, rest []byte) ([]byte, error) {
		switch field {
		case fieldTxnID:
			v, next, err := readBytesField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.ID = append([]byte(nil), v...)
			return next, nil
		case fieldTxnEpoch:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.Epoch = uint32(v)
			return next, nil
		case fieldTxnMaxWall:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.MaxTimestamp.WallTime = zigzagDecode(v)
			return next, nil
		case fieldTxnMaxLog:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.MaxTimestamp.Logical = int32(v)
			return next, nil
		case fieldTxnSequence:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			m.Sequence = int32(zigzagDecode(v))
			return next, nil
		default:
			return skipField(wireType, rest)
		}
	})
}

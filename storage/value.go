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
)

// Value envelope layout: a 4-byte checksum, a 1-byte type tag, then the
// payload. checksumSize+tagSize is the header every stored value carries,
// whether it's a plain byte string or a serialized protobuf.
const (
	checksumSize = 4
	tagPos       = checksumSize
	headerSize   = tagPos + 1
)

// MakeValue wraps data in a value envelope tagged as BYTES, with the
// checksum bytes left zero. This package never computes or verifies the
// checksum.
func MakeValue(data []byte) []byte {
	v := make([]byte, headerSize+len(data))
	v[tagPos] = byte(enginepb.ValueType_BYTES)
	copy(v[headerSize:], data)
	return v
}

// ValueTag returns the type tag of a value envelope, or ValueType_UNKNOWN
// if v is too short to carry one.
func ValueTag(v []byte) enginepb.ValueType {
	if len(v) < headerSize {
		return enginepb.ValueType_UNKNOWN
	}
	return enginepb.ValueType(v[tagPos])
}

// SetValueTag overwrites the type tag in place. v must be at least
// headerSize bytes.
func SetValueTag(v []byte, tag enginepb.ValueType) {
	v[tagPos] = byte(tag)
}

// ValueDataBytes strips the envelope header, returning the payload. It
// returns nil if v is too short to carry a header.
func ValueDataBytes(v []byte) []byte {
	if len(v) < headerSize {
		return nil
	}
	return v[headerSize:]
}

// IsTimeSeriesData reports whether v's tag marks it as time-series data.
func IsTimeSeriesData(v []byte) bool {
	return ValueTag(v) == enginepb.ValueType_TIMESERIES
}

// SerializeProtoToValue marshals msg into a freshly-tagged BYTES envelope.
func SerializeProtoToValue(msg marshaler) ([]byte, error) {
	payload, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	v := make([]byte, headerSize, headerSize+len(payload))
	v[tagPos] = byte(enginepb.ValueType_BYTES)
	return append(v, payload...), nil
}

// SerializeTimeSeriesToValue marshals ts into a TIMESERIES-tagged envelope.
func SerializeTimeSeriesToValue(ts *enginepb.InternalTimeSeriesData) ([]byte, error) {
	v, err := SerializeProtoToValue(ts)
	if err != nil {
		return nil, err
	}
	SetValueTag(v, enginepb.ValueType_TIMESERIES)
	return v, nil
}

// ParseProtoFromValue unmarshals the payload of v into msg.
func ParseProtoFromValue(v []byte, msg unmarshaler) error {
	if len(v) < headerSize {
		return errCorruptValue("value too short to carry a header")
	}
	return msg.Unmarshal(ValueDataBytes(v))
}

type marshaler interface {
	Marshal() ([]byte, error)
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package enginepb

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// MVCCMetadata and its neighbors are simple enough that we hand-roll their
// Marshal/Unmarshal rather than pulling in the full gogoproto code
// generator, but the tag/varint/bytes primitives themselves come from
// protowire rather than being reimplemented: the wire format produced is
// standard proto3 and interoperates with anything that has the matching
// .proto.

const (
	wireVarint  = int(protowire.VarintType)
	wireFixed64 = int(protowire.Fixed64Type)
	wireBytes   = int(protowire.BytesType)
	wireFixed32 = int(protowire.Fixed32Type)
)

func appendVarint(b []byte, v uint64) []byte {
	return protowire.AppendVarint(b, v)
}

func appendTag(b []byte, field int, wireType int) []byte {
	return protowire.AppendTag(b, protowire.Number(field), protowire.Type(wireType))
}

func appendBytesField(b []byte, field int, data []byte) []byte {
	b = appendTag(b, field, wireBytes)
	return protowire.AppendBytes(b, data)
}

func appendVarintField(b []byte, field int, v uint64) []byte {
	b = appendTag(b, field, wireVarint)
	return protowire.AppendVarint(b, v)
}

func appendZigZagField(b []byte, field int, v int64) []byte {
	return appendVarintField(b, field, protowire.EncodeZigZag(v))
}

func appendFixed64Field(b []byte, field int, v uint64) []byte {
	b = appendTag(b, field, wireFixed64)
	return protowire.AppendFixed64(b, v)
}

func readFixed64Field(wireType int, data []byte) (val uint64, rest []byte, err error) {
	if wireType != wireFixed64 {
		return 0, nil, errors.Errorf("enginepb: expected fixed64 wire type, got %d", wireType)
	}
	v, n := protowire.ConsumeFixed64(data)
	if n < 0 {
		return 0, nil, errors.Wrap(protowire.ParseError(n), "enginepb: truncated fixed64 field")
	}
	return v, data[n:], nil
}

func decodeVarint(b []byte) (v uint64, n int, err error) {
	v, n = protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, errors.Wrap(protowire.ParseError(n), "enginepb: malformed varint")
	}
	return v, n, nil
}

func zigzagDecode(v uint64) int64 {
	return protowire.DecodeZigZag(v)
}

// tagField splits a decoded tag into its field number and wire type.
func tagField(tag uint64) (field int, wireType int) {
	num, typ := protowire.DecodeTag(tag)
	return int(num), int(typ)
}

// forEachField walks the tag/value pairs of a marshaled message, invoking
// fn with the field number, wire type, and remaining buffer positioned
// just after the tag. fn must consume exactly the bytes belonging to that
// field and return the buffer positioned at the next tag.
func forEachField(data []byte, fn func(field, wireType int, rest []byte) ([]byte, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "enginepb: malformed tag")
		}
		data = data[n:]
		var err error
		data, err = fn(int(num), int(typ), data)
		if err != nil {
			return err
		}
	}
	return nil
}

func readBytesField(wireType int, data []byte) (val, rest []byte, err error) {
	if wireType != wireBytes {
		return nil, nil, errors.Errorf("enginepb: expected bytes wire type, got %d", wireType)
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, nil, errors.Wrap(protowire.ParseError(n), "enginepb: truncated bytes field")
	}
	return v, data[n:], nil
}

func readVarintField(wireType int, data []byte) (val uint64, rest []byte, err error) {
	if wireType != wireVarint {
		return 0, nil, errors.Errorf("enginepb: expected varint wire type, got %d", wireType)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, nil, errors.Wrap(protowire.ParseError(n), "enginepb: truncated varint field")
	}
	return v, data[n:], nil
}

func float64bits(f float64) uint64 {
	return math.Float64bits(f)
}

func float64frombits(v uint64) float64 {
	return math.Float64frombits(v)
}

func skipField(wireType int, data []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(0, protowire.Type(wireType), data)
	if n < 0 {
		return nil, errors.Wrap(protowire.ParseError(n), "enginepb: malformed field")
	}
	return data[n:], nil
}

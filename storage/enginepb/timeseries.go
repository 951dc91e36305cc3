// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package enginepb

// InternalTimeSeriesSample is a single observation within a time series.
// Offset is the sample's position, in multiples of SampleDurationNanos,
// from the series' StartTimestampNanos; it is the key that the merge
// operator deduplicates on.
type InternalTimeSeriesSample struct {
	Offset int32
	Count  uint32
	Sum    float64
}

// InternalTimeSeriesData is the payload of a TIMESERIES-tagged value
// envelope that holds time-series samples. Samples are order-irrelevant at
// rest; consolidation (see storage.consolidateTimeSeriesValue) requires a stable
// sort by Offset with last-write-wins on ties.
type InternalTimeSeriesData struct {
	StartTimestampNanos int64
	SampleDurationNanos int64
	Samples             []InternalTimeSeriesSample
}

const (
	fieldTSDStart    = 1
	fieldTSDDuration = 2
	fieldTSDSamples  = 3

	fieldSampleOffset = 1
	fieldSampleCount  = 2
	fieldSampleSum    = 3
)

// Marshal encodes ts in proto3 wire format.
func (ts *InternalTimeSeriesData) Marshal() ([]byte, error) {
	var b []byte
	if ts.StartTimestampNanos != 0 {
		b = appendZigZagField(b, fieldTSDStart, ts.StartTimestampNanos)
	}
	if ts.SampleDurationNanos != 0 {
		b = appendZigZagField(b, fieldTSDDuration, ts.SampleDurationNanos)
	}
	for _, s := range ts.Samples {
		sb, err := s.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytesField(b, fieldTSDSamples, sb)
	}
	return b, nil
}

// Unmarshal decodes ts from proto3 wire format, as produced by Marshal.
func (ts *InternalTimeSeriesData) Unmarshal(data []byte) error {
	*ts = InternalTimeSeriesData{}
	return forEachField(data, func(field, wireType int, rest []byte) ([]byte, error) {
		switch field {
		case fieldTSDStart:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			ts.StartTimestampNanos = zigzagDecode(v)
			return next, nil
		case fieldTSDDuration:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			ts.SampleDurationNanos = zigzagDecode(v)
			return next, nil
		case fieldTSDSamples:
			v, next, err := readBytesField(wireType, rest)
			if err != nil {
				return nil, err
			}
			var s InternalTimeSeriesSample
			if err := s.Unmarshal(v); err != nil {
				return nil, err
			}
			ts.Samples = append(ts.Samples, s)
			return next, nil
		default:
			return skipField(wireType, rest)
		}
	})
}

// Marshal encodes s in proto3 wire format.
func (s *InternalTimeSeriesSample) Marshal() ([]byte, error) {
	var b []byte
	if s.Offset != 0 {
		b = appendZigZagField(b, fieldSampleOffset, int64(s.Offset))
	}
	if s.Count != 0 {
		b = appendVarintField(b, fieldSampleCount, uint64(s.Count))
	}
	if s.Sum != 0 {
		b = appendFixed64Field(b, fieldSampleSum, float64bits(s.Sum))
	}
	return b, nil
}

// Unmarshal decodes s from proto3 wire format, as produced by Marshal.
func (s *InternalTimeSeriesSample) Unmarshal(data []byte) error {
	*s = InternalTimeSeriesSample{}
	return forEachField(data, func(field, wireType int, rest []byte) ([]byte, error) {
		switch field {
		case fieldSampleOffset:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			s.Offset = int32(zigzagDecode(v))
			return next, nil
		case fieldSampleCount:
			v, next, err := readVarintField(wireType, rest)
			if err != nil {
				return nil, err
			}
			s.Count = uint32(v)
			return next, nil
		case fieldSampleSum:
			v, next, err := readFixed64Field(wireType, rest)
			if err != nil {
				return nil, err
			}
			s.Sum = float64frombits(v)
			return next, nil
		default:
			return skipField(wireType, rest)
		}
	})
}

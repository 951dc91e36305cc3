// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"context"
	"io"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/latticedb/lattice/internal/log"
	"github.com/latticedb/lattice/storage/enginepb"
)

// mergeOperatorName identifies this package's merge semantics to the
// engine; changing the encoding requires bumping this so mismatched
// binaries refuse to share a store.
const mergeOperatorName = "lattice.mvcc_merge_operator"

// merger adapts mergeValues (via valueMerger) to pebble's Merger contract. A single
// instance is installed into pebble.Options and used for every key.
var merger = &pebble.Merger{
	Merge: func(key, value []byte) (pebble.ValueMerger, error) {
		return newValueMerger(value), nil
	},
	Name: mergeOperatorName,
}

// valueMerger accumulates MVCCMetadata operands for a single key across
// MergeNewer/MergeOlder calls, then serializes the result on Finish. It
// implements pebble.ValueMerger.
type valueMerger struct {
	meta enginepb.MVCCMetadata
	err  error
}

func newValueMerger(firstOperand []byte) *valueMerger {
	vm := &valueMerger{}
	if err := vm.meta.Unmarshal(firstOperand); err != nil {
		vm.err = err
	}
	return vm
}

// MergeNewer folds in an operand that is newer than the accumulator,
// i.e. logically applied after it — the same direction as full-merge in
// the spec's accumulator walk.
func (vm *valueMerger) MergeNewer(value []byte) error {
	if vm.err != nil {
		return vm.err
	}
	var operand enginepb.MVCCMetadata
	if err := operand.Unmarshal(value); err != nil {
		vm.err = err
		return err
	}
	if err := mergeValues(&vm.meta, &operand, false); err != nil {
		vm.err = err
		return err
	}
	return nil
}

// MergeOlder folds in an operand that is older than the accumulator. The
// spec's merge is order-sensitive only for byte concatenation (ordering
// within the operand stream), so we swap operands and re-merge rather than
// maintain two accumulator representations.
func (vm *valueMerger) MergeOlder(value []byte) error {
	if vm.err != nil {
		return vm.err
	}
	var operand enginepb.MVCCMetadata
	if err := operand.Unmarshal(value); err != nil {
		vm.err = err
		return err
	}
	merged := operand
	if err := mergeValues(&merged, &vm.meta, false); err != nil {
		vm.err = err
		return err
	}
	vm.meta = merged
	return nil
}

// Finish serializes the accumulated MVCCMetadata. The accumulator itself is
// built up with partial-merge semantics (MergeNewer/MergeOlder never sort or
// dedupe time-series samples, per §4.2); only once includesBase confirms an
// actual base value anchors the chain do we owe the full-merge consolidation
// pass, matching FullMerge's own single-operand consolidation step.
func (vm *valueMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	if vm.err != nil {
		return nil, nil, vm.err
	}
	if includesBase && IsTimeSeriesData(vm.meta.RawBytes) {
		if err := consolidateTimeSeriesValue(&vm.meta); err != nil {
			return nil, nil, err
		}
	}
	b, err := vm.meta.Marshal()
	if err != nil {
		return nil, nil, err
	}
	return b, nil, nil
}

// FullMerge applies full-merge semantics across an optional existing value
// and an ordered sequence of operands, returning the merged MVCCMetadata
// bytes. It mirrors the LSM's FullMerge callback contract described in
// §4.2, and is exposed directly for callers (tests, the engine façade read
// path) that need merge semantics outside of pebble's ValueMerger flow.
func FullMerge(existing []byte, operands [][]byte) ([]byte, error) {
	var meta enginepb.MVCCMetadata
	if existing != nil {
		if err := meta.Unmarshal(existing); err != nil {
			log.Warningf(context.Background(), "corrupted existing value: %v", err)
			return nil, errCorrupt("corrupted existing value: %v", err)
		}
	}
	for _, operand := range operands {
		var opMeta enginepb.MVCCMetadata
		if err := opMeta.Unmarshal(operand); err != nil {
			log.Warningf(context.Background(), "corrupted operand value: %v", err)
			return nil, errCorrupt("corrupted operand value: %v", err)
		}
		if err := mergeValues(&meta, &opMeta, true); err != nil {
			return nil, err
		}
	}
	return meta.Marshal()
}

// PartialMerge combines two or more operands (no existing value) into a
// single equivalent operand, per §4.2's partial-merge contract.
func PartialMerge(operands [][]byte) ([]byte, error) {
	var meta enginepb.MVCCMetadata
	for _, operand := range operands {
		var opMeta enginepb.MVCCMetadata
		if err := opMeta.Unmarshal(operand); err != nil {
			log.Warningf(context.Background(), "corrupted operand value: %v", err)
			return nil, errCorrupt("corrupted operand value: %v", err)
		}
		if err := mergeValues(&meta, &opMeta, false); err != nil {
			return nil, err
		}
	}
	return meta.Marshal()
}

// mergeValues applies operand's raw_bytes onto accumulator per §4.2:
//   - if the accumulator already carries raw_bytes, either concatenate
//     (non-time-series) or merge time-series samples;
//   - otherwise adopt the operand's raw_bytes wholesale, and on a
//     full-merge consolidate if it turns out to be time-series.
func mergeValues(accumulator, operand *enginepb.MVCCMetadata, fullMerge bool) error {
	if accumulator.RawBytes != nil {
		if operand.RawBytes == nil {
			return errCorrupt("inconsistent value types for merge (left = bytes, right = ?)")
		}
		leftTS := IsTimeSeriesData(accumulator.RawBytes)
		rightTS := IsTimeSeriesData(operand.RawBytes)
		if leftTS || rightTS {
			if !leftTS || !rightTS {
				return errCorrupt("inconsistent value types for merging time series data")
			}
			return mergeTimeSeriesValues(accumulator, operand.RawBytes, fullMerge)
		}
		accumulator.RawBytes = append(accumulator.RawBytes, ValueDataBytes(operand.RawBytes)...)
		return nil
	}
	accumulator.RawBytes = append([]byte(nil), operand.RawBytes...)
	if operand.MergeTimestamp != nil {
		ts := *operand.MergeTimestamp
		accumulator.MergeTimestamp = &ts
	}
	if fullMerge && IsTimeSeriesData(accumulator.RawBytes) {
		return consolidateTimeSeriesValue(accumulator)
	}
	return nil
}

// mergeTimeSeriesValues merges right's time-series payload into
// accumulator's, which must already carry a time-series envelope. See
// §4.2: full-merge interleaves and dedupes by offset (right wins ties);
// partial-merge just concatenates the sample arrays unsorted.
func mergeTimeSeriesValues(accumulator *enginepb.MVCCMetadata, right []byte, fullMerge bool) error {
	var leftTS, rightTS enginepb.InternalTimeSeriesData
	if err := ParseProtoFromValue(accumulator.RawBytes, &leftTS); err != nil {
		return errCorrupt("left InternalTimeSeriesData could not be parsed: %v", err)
	}
	if err := ParseProtoFromValue(right, &rightTS); err != nil {
		return errCorrupt("right InternalTimeSeriesData could not be parsed: %v", err)
	}
	if leftTS.StartTimestampNanos != rightTS.StartTimestampNanos {
		return errCorrupt("time series merge failed due to mismatched start timestamps")
	}
	if leftTS.SampleDurationNanos != rightTS.SampleDurationNanos {
		return errCorrupt("time series merge failed due to mismatched sample durations")
	}

	if !fullMerge {
		leftTS.Samples = append(leftTS.Samples, rightTS.Samples...)
		v, err := SerializeTimeSeriesToValue(&leftTS)
		if err != nil {
			return err
		}
		accumulator.RawBytes = v
		return nil
	}

	sortSamplesByOffset(rightTS.Samples)

	merged := enginepb.InternalTimeSeriesData{
		StartTimestampNanos: leftTS.StartTimestampNanos,
		SampleDurationNanos: leftTS.SampleDurationNanos,
	}
	li, ri := 0, 0
	for li < len(leftTS.Samples) || ri < len(rightTS.Samples) {
		var nextOffset int32
		switch {
		case li == len(leftTS.Samples):
			nextOffset = rightTS.Samples[ri].Offset
		case ri == len(rightTS.Samples):
			nextOffset = leftTS.Samples[li].Offset
		case leftTS.Samples[li].Offset <= rightTS.Samples[ri].Offset:
			nextOffset = leftTS.Samples[li].Offset
		default:
			nextOffset = rightTS.Samples[ri].Offset
		}
		var latest enginepb.InternalTimeSeriesSample
		for li < len(leftTS.Samples) && leftTS.Samples[li].Offset == nextOffset {
			latest = leftTS.Samples[li]
			li++
		}
		for ri < len(rightTS.Samples) && rightTS.Samples[ri].Offset == nextOffset {
			latest = rightTS.Samples[ri]
			ri++
		}
		merged.Samples = append(merged.Samples, latest)
	}

	v, err := SerializeTimeSeriesToValue(&merged)
	if err != nil {
		return err
	}
	accumulator.RawBytes = v
	return nil
}

// consolidateTimeSeriesValue sorts val's samples by offset and keeps only
// the last sample observed at each offset, per §4.2's single-value
// consolidation rule.
func consolidateTimeSeriesValue(meta *enginepb.MVCCMetadata) error {
	var ts enginepb.InternalTimeSeriesData
	if err := ParseProtoFromValue(meta.RawBytes, &ts); err != nil {
		return errCorrupt("InternalTimeSeriesData could not be parsed: %v", err)
	}
	sortSamplesByOffset(ts.Samples)

	consolidated := enginepb.InternalTimeSeriesData{
		StartTimestampNanos: ts.StartTimestampNanos,
		SampleDurationNanos: ts.SampleDurationNanos,
	}
	i := 0
	for i < len(ts.Samples) {
		offset := ts.Samples[i].Offset
		var latest enginepb.InternalTimeSeriesSample
		for i < len(ts.Samples) && ts.Samples[i].Offset == offset {
			latest = ts.Samples[i]
			i++
		}
		consolidated.Samples = append(consolidated.Samples, latest)
	}

	v, err := SerializeTimeSeriesToValue(&consolidated)
	if err != nil {
		return err
	}
	meta.RawBytes = v
	return nil
}

func sortSamplesByOffset(samples []enginepb.InternalTimeSeriesSample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Offset < samples[j].Offset
	})
}

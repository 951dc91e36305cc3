// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Package hlc provides the hybrid-logical-clock timestamp type used to
// version MVCC keys. It deliberately does not provide a clock source —
// callers supply timestamps from wherever their coordination layer gets
// them.
package hlc

import (
	"fmt"
	"math"
)

// Timestamp is a hybrid-logical-clock timestamp: a physical wall time in
// nanoseconds since the Unix epoch, plus a logical counter used to order
// events that share a wall time. The zero Timestamp is the sentinel used
// for meta keys and inline values.
type Timestamp struct {
	WallTime int64
	Logical  int32
}

// MaxTimestamp sorts after every other representable Timestamp.
var MaxTimestamp = Timestamp{WallTime: math.MaxInt64, Logical: math.MaxInt32}

// IsEmpty returns true for the zero Timestamp.
func (t Timestamp) IsEmpty() bool {
	return t == Timestamp{}
}

// Less returns whether t sorts strictly before s.
func (t Timestamp) Less(s Timestamp) bool {
	return t.WallTime < s.WallTime || (t.WallTime == s.WallTime && t.Logical < s.Logical)
}

// LessEq returns whether t sorts at or before s.
func (t Timestamp) LessEq(s Timestamp) bool {
	return !s.Less(t)
}

// Forward moves t ahead to s if s is later, returning the later of the two.
func (t Timestamp) Forward(s Timestamp) Timestamp {
	if t.Less(s) {
		return s
	}
	return t
}

// Next returns the smallest timestamp strictly greater than t.
func (t Timestamp) Next() Timestamp {
	if t.Logical == math.MaxInt32 {
		return Timestamp{WallTime: t.WallTime + 1}
	}
	return Timestamp{WallTime: t.WallTime, Logical: t.Logical + 1}
}

// Prev returns the largest timestamp strictly less than t. Prev panics if
// called on the zero Timestamp, which has no predecessor.
func (t Timestamp) Prev() Timestamp {
	switch {
	case t.Logical > 0:
		return Timestamp{WallTime: t.WallTime, Logical: t.Logical - 1}
	case t.WallTime == 0:
		panic("hlc: no previous timestamp for zero timestamp")
	default:
		return Timestamp{WallTime: t.WallTime - 1, Logical: math.MaxInt32}
	}
}

// String formats the timestamp as "seconds.nanoseconds,logical", with the
// wall time split into whole seconds and a nine-digit nanosecond part.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d,%d", t.WallTime/1e9, t.WallTime%1e9, t.Logical)
}

// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package enginepb

// MVCCStats aggregates byte and count statistics over an MVCC keyspace.
// It is accumulated by a single forward pass (see storage.ComputeStats)
// and can be combined across sub-ranges with Add, or extrapolated
// forward in time with AgeTo.
type MVCCStats struct {
	LastUpdateNanos   int64
	IntentAge         int64
	GCBytesAge        int64
	LiveBytes         int64
	LiveCount         int64
	KeyBytes          int64
	KeyCount          int64
	ValBytes          int64
	ValCount          int64
	IntentBytes       int64
	IntentCount       int64
	SysBytes          int64
	SysCount          int64
	ContainsEstimates bool
}

// Add accumulates the counters of other into ms. ContainsEstimates is
// sticky: once either operand carries estimates, so does the sum.
func (ms *MVCCStats) Add(other MVCCStats) {
	ms.LastUpdateNanos = maxInt64(ms.LastUpdateNanos, other.LastUpdateNanos)
	ms.IntentAge += other.IntentAge
	ms.GCBytesAge += other.GCBytesAge
	ms.LiveBytes += other.LiveBytes
	ms.LiveCount += other.LiveCount
	ms.KeyBytes += other.KeyBytes
	ms.KeyCount += other.KeyCount
	ms.ValBytes += other.ValBytes
	ms.ValCount += other.ValCount
	ms.IntentBytes += other.IntentBytes
	ms.IntentCount += other.IntentCount
	ms.SysBytes += other.SysBytes
	ms.SysCount += other.SysCount
	ms.ContainsEstimates = ms.ContainsEstimates || other.ContainsEstimates
}

// Subtract subtracts other's counters from ms. LastUpdateNanos and
// ContainsEstimates combine as in Add (max and OR), not inversely.
func (ms *MVCCStats) Subtract(other MVCCStats) {
	ms.LastUpdateNanos = maxInt64(ms.LastUpdateNanos, other.LastUpdateNanos)
	ms.IntentAge -= other.IntentAge
	ms.GCBytesAge -= other.GCBytesAge
	ms.LiveBytes -= other.LiveBytes
	ms.LiveCount -= other.LiveCount
	ms.KeyBytes -= other.KeyBytes
	ms.KeyCount -= other.KeyCount
	ms.ValBytes -= other.ValBytes
	ms.ValCount -= other.ValCount
	ms.IntentBytes -= other.IntentBytes
	ms.IntentCount -= other.IntentCount
	ms.SysBytes -= other.SysBytes
	ms.SysCount -= other.SysCount
	ms.ContainsEstimates = ms.ContainsEstimates || other.ContainsEstimates
}

// AgeTo extrapolates the age-based counters (GCBytesAge, IntentAge)
// forward to nowNanos, then advances LastUpdateNanos. It is a no-op if
// nowNanos is not after LastUpdateNanos.
func (ms *MVCCStats) AgeTo(nowNanos int64) {
	if ms.LastUpdateNanos >= nowNanos {
		return
	}
	diffSeconds := nowNanos/1e9 - ms.LastUpdateNanos/1e9
	ms.GCBytesAge += ms.gcBytes() * diffSeconds
	ms.IntentAge += ms.IntentCount * diffSeconds
	ms.LastUpdateNanos = nowNanos
}

func (ms *MVCCStats) gcBytes() int64 {
	return ms.KeyBytes + ms.ValBytes - ms.LiveBytes
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

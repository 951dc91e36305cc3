// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"bytes"

	"github.com/cockroachdb/pebble"
)

// Property names under which the time-bound collector stores an SST's
// observed MVCC timestamp range. Consumers read these back via
// pebble.TableInfo.Properties.UserProperties.
const (
	tsMinProperty = "crdb.ts.min"
	tsMaxProperty = "crdb.ts.max"
)

// timeBoundCollector records the minimum and maximum raw timestamp bytes
// (sentinel-stripped) observed across all keys written to one SST, per
// §4.8. It implements pebble.TablePropertyCollector.
type timeBoundCollector struct {
	tsMin, tsMax []byte
}

func newTimeBoundCollector() pebble.TablePropertyCollector {
	return &timeBoundCollector{}
}

// Name identifies this collector to pebble's table-building metadata.
func (c *timeBoundCollector) Name() string {
	return "lattice.TimeBoundTblPropCollector"
}

// Add observes one key written to the SST being built.
func (c *timeBoundCollector) Add(key pebble.InternalKey, _ []byte) error {
	_, tsBytes, err := Split(key.UserKey)
	if err != nil || len(tsBytes) == 0 {
		return nil
	}
	// tsBytes includes the leading 0x00 sentinel; strip it before recording,
	// matching the raw 9/13-byte on-disk property format from §6.
	ts := tsBytes[1:]
	if c.tsMax == nil || bytes.Compare(ts, c.tsMax) > 0 {
		c.tsMax = append([]byte(nil), ts...)
	}
	if c.tsMin == nil || bytes.Compare(ts, c.tsMin) < 0 {
		c.tsMin = append([]byte(nil), ts...)
	}
	return nil
}

// Finish writes the accumulated min/max into the SST's user properties.
func (c *timeBoundCollector) Finish(userProps map[string]string) error {
	userProps[tsMinProperty] = string(c.tsMin)
	userProps[tsMaxProperty] = string(c.tsMax)
	return nil
}

// timeBoundFilter returns a pebble table filter that includes an SST iff
// its recorded [tsMin, tsMax] property range intersects [queryMin,
// queryMax], or if the SST carries no recorded range at all (conservative
// inclusion for tables written before this collector existed).
func timeBoundFilter(queryMin, queryMax []byte) func(userProps map[string]string) bool {
	return func(userProps map[string]string) bool {
		tblMin, ok := userProps[tsMinProperty]
		if !ok || tblMin == "" {
			return true
		}
		tblMax, ok := userProps[tsMaxProperty]
		if !ok || tblMax == "" {
			return true
		}
		return string(queryMax) >= tblMin && string(queryMin) <= tblMax
	}
}

// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// Options configures Open. It mirrors the teacher's RocksDBConfig: a flat
// struct of tuning knobs translated wholesale into the backing engine's
// own options rather than exposed as a builder.
type Options struct {
	// Dir is the data directory. Empty means an in-memory store.
	Dir string
	// Cache is a shared block cache handle; nil gets a private cache sized
	// by pebble's defaults.
	Cache *Cache
	// NumCPU bounds compaction/flush parallelism; translated to
	// max(NumCPU, 2) threads and max(NumCPU/2, 1) sub-compactions.
	NumCPU int
	// WALTTLSeconds is the WAL retention window used by replication
	// follower reads. Open accepts it but does not pass it to the pebble
	// backing; no WAL retention is applied from this value.
	WALTTLSeconds int
	// LoggingEnabled forwards the engine's internal log output.
	LoggingEnabled bool
	// MaxOpenFiles bounds the file descriptor budget.
	MaxOpenFiles int
	// BlockSize is the target uncompressed size of a table block.
	BlockSize int
	// MustExist refuses to create a missing store.
	MustExist bool
	// UseSwitchingEnv wraps the environment in a redirection layer. Not
	// implemented by the pebble backing; Open rejects it.
	UseSwitchingEnv bool
	// ExtraOptions is an opaque hook reserved for enterprise features. Open
	// rejects any non-empty value (see §6).
	ExtraOptions []byte
}

func (o Options) validate() error {
	if len(o.ExtraOptions) != 0 {
		return errors.New("storage: non-empty ExtraOptions is not supported")
	}
	if o.UseSwitchingEnv {
		return errUnsupported("UseSwitchingEnv")
	}
	if o.MustExist && o.Dir == "" {
		return errors.New("storage: MustExist requires a non-empty Dir")
	}
	return nil
}

func (o Options) numCPU() int {
	if o.NumCPU < 2 {
		return 2
	}
	return o.NumCPU
}

func (o Options) maxConcurrentCompactions() int {
	n := o.numCPU() / 2
	if n < 1 {
		return 1
	}
	return n
}

// toPebbleOptions translates o into pebble's own Options, wiring in the
// MVCC comparer, merger, and time-bound table property collector. The
// returned *pebble.Options is ready to pass to pebble.Open.
func (o Options) toPebbleOptions() *pebble.Options {
	popts := &pebble.Options{
		Comparer:                comparer,
		Merger:                  merger,
		MaxConcurrentCompactions: func() int { return o.maxConcurrentCompactions() },
		ErrorIfNotExists:        o.MustExist,
		TablePropertyCollectors: []func() pebble.TablePropertyCollector{
			newTimeBoundCollector,
		},
	}
	if o.Cache != nil {
		popts.Cache = o.Cache.pc
	}
	popts.EnsureDefaults()
	if o.BlockSize > 0 {
		for i := range popts.Levels {
			popts.Levels[i].BlockSize = o.BlockSize
		}
	}
	if o.MaxOpenFiles > 0 {
		popts.MaxOpenFiles = o.MaxOpenFiles
	}
	if !o.LoggingEnabled {
		popts.Logger = discardLogger{}
	}
	return popts
}

type discardLogger struct{}

func (discardLogger) Infof(string, ...interface{})  {}
func (discardLogger) Errorf(string, ...interface{}) {}
func (discardLogger) Fatalf(string, ...interface{}) {}

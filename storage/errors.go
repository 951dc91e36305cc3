// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"fmt"

	"github.com/latticedb/lattice/storage/enginepb"
	"github.com/latticedb/lattice/storage/hlc"
	"github.com/pkg/errors"
)

// CorruptionError marks a key decode or MVCCMetadata parse failure, or a
// mismatched time-series envelope pair during merge. It is never retried
// or recovered by this layer.
type CorruptionError struct {
	msg string
}

func (e *CorruptionError) Error() string { return "corruption: " + e.msg }

func errCorrupt(format string, args ...interface{}) error {
	return &CorruptionError{msg: fmt.Sprintf(format, args...)}
}

func errCorruptValue(msg string) error {
	return &CorruptionError{msg: msg}
}

// UnsupportedOperationError marks an operation the current engine façade
// variant does not implement: writes on a Snapshot, reads/iteration on a
// WriteOnlyBatch, iteration on a batch with a pending DeleteRange, or
// Prev on the overlay iterator.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return "unsupported operation: " + e.Op
}

func errUnsupported(op string) error {
	return &UnsupportedOperationError{Op: op}
}

// WriteIntentError is returned when a consistent scan encounters one or
// more foreign intents. The offending intents are attached so the caller
// can resolve them and retry.
type WriteIntentError struct {
	Intents []Intent
}

func (e *WriteIntentError) Error() string {
	return fmt.Sprintf("conflicting intents on %d key(s)", len(e.Intents))
}

// Intent identifies a single uncommitted write encountered during a scan.
type Intent struct {
	Key []byte
	Txn *enginepb.TxnMeta
}

// UncertaintyError is returned when a reading transaction observes a
// committed version inside its uncertainty interval (read_ts, max_ts].
type UncertaintyError struct {
	ReadTimestamp     hlc.Timestamp
	ExistingTimestamp hlc.Timestamp
}

func (e *UncertaintyError) Error() string {
	return fmt.Sprintf("uncertain read: observed version at %s while reading at %s",
		e.ExistingTimestamp, e.ReadTimestamp)
}

// EpochMismatchError is returned when a transaction reads its own intent
// but the intent's epoch is newer than the reading transaction's epoch,
// indicating the transaction must restart.
type EpochMismatchError struct {
	IntentEpoch uint32
	ReadEpoch   uint32
}

func (e *EpochMismatchError) Error() string {
	return fmt.Sprintf("epoch mismatch: intent epoch %d > read epoch %d", e.IntentEpoch, e.ReadEpoch)
}

// wrapf is a thin alias kept local so call sites read like the teacher's
// errors.Wrapf without importing pkg/errors everywhere by name.
func wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Package log provides the small leveled logger used by the merge
// operator. It does not buffer or rotate output; SetOutput redirects it
// to any io.Writer.
package log

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// Severity orders the leveled calls below. Every call is written
// regardless of verbosity; verbosity only gates V.
type Severity int32

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "I"
	case SeverityWarning:
		return "W"
	case SeverityError:
		return "E"
	case SeverityFatal:
		return "F"
	default:
		return "?"
	}
}

var (
	mu       sync.Mutex
	out      io.Writer = os.Stderr
	verbosity         = int32(0)
	std      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// SetOutput redirects all subsequent log output, for example to
// io.Discard to silence it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	std.SetOutput(w)
}

// SetVerbosity sets the highest V level (see V) that is enabled.
func SetVerbosity(level int32) {
	atomic.StoreInt32(&verbosity, level)
}

// V reports whether logging at the given verbosity level is enabled,
// mirroring the teacher's log.V(n) gate used to avoid formatting costs
// on the hot path when verbose logging is off.
func V(level int32) bool {
	return atomic.LoadInt32(&verbosity) >= level
}

func output(sev Severity, ctx context.Context, format string, args ...interface{}) {
	mu.Lock()
	w := out
	mu.Unlock()
	_ = ctx // call sites carry a context for future tracing; unused today
	std.SetOutput(w)
	std.Printf("%s: %s", sev, fmt.Sprintf(format, args...))
}

// Infof logs at informational severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	output(SeverityInfo, ctx, format, args...)
}

// Warningf logs at warning severity. The merge operator uses this for
// conditions that are recoverable by the caller but worth surfacing.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(SeverityWarning, ctx, format, args...)
}

// Errorf logs at error severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	output(SeverityError, ctx, format, args...)
}

// Fatalf logs at fatal severity and terminates the process, matching the
// teacher's use of log.Fatalf for invariant violations that indicate a
// corrupted on-disk state rather than a recoverable error.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	output(SeverityFatal, ctx, format, args...)
	os.Exit(1)
}

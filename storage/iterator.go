// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import "github.com/cockroachdb/pebble"

// Iterator is this package's narrowed view of the LSM's iterator surface
// (§6): seek/step primitives plus validity and status. Keys and values
// returned by Key/Value are only valid until the next call that moves the
// iterator; callers that need to retain them must copy.
type Iterator interface {
	SeekGE(key []byte) bool
	SeekLT(key []byte) bool
	First() bool
	Last() bool
	Next() bool
	Prev() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// pebbleIterator adapts *pebble.Iterator to the Iterator interface.
type pebbleIterator struct {
	it *pebble.Iterator
}

func (p *pebbleIterator) SeekGE(key []byte) bool { return p.it.SeekGE(key) }
func (p *pebbleIterator) SeekLT(key []byte) bool { return p.it.SeekLT(key) }
func (p *pebbleIterator) First() bool            { return p.it.First() }
func (p *pebbleIterator) Last() bool             { return p.it.Last() }
func (p *pebbleIterator) Next() bool             { return p.it.Next() }
func (p *pebbleIterator) Prev() bool             { return p.it.Prev() }
func (p *pebbleIterator) Valid() bool            { return p.it.Valid() }
func (p *pebbleIterator) Key() []byte            { return p.it.Key() }
func (p *pebbleIterator) Value() []byte          { return p.it.Value() }
func (p *pebbleIterator) Error() error           { return p.it.Error() }
func (p *pebbleIterator) Close() error           { return p.it.Close() }

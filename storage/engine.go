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
	"github.com/cockroachdb/pebble/vfs"
)

// Stats mirrors the subset of the LSM's own metrics this layer forwards
// to callers, per §4.9's GetStats.
type Stats struct {
	KeyCount     int64
	LiveFileSize int64
	NumSSTables  int64
}

// CompactionStats mirrors the subset forwarded by GetCompactionStats.
type CompactionStats string

// Engine is the common operation surface over the four backing variants
// described in §4.9: Store, IndexedBatch, WriteOnlyBatch, and Snapshot.
// Each variant implements every method; unsupported combinations return
// an *UnsupportedOperationError rather than being excluded at the type
// level, matching the spec's "tagged variant" redesign in §9.
type Engine interface {
	Put(key, value []byte) error
	Merge(key, value []byte) error
	Delete(key []byte) error
	DeleteRange(start, end []byte) error
	Get(key []byte) ([]byte, error)
	NewIter(opts IterOptions) (Iterator, error)
	CommitBatch(sync bool) error
	ApplyBatchRepr(repr []byte) error
	BatchRepr() ([]byte, error)
	EnvWriteFile(path string, contents []byte) error
	GetStats() (Stats, error)
	GetCompactionStats() (CompactionStats, error)
	Close() error
}

// IterOptions controls NewIter, per §6's iterator surface.
type IterOptions struct {
	// PrefixSameAsStart bounds iteration to keys sharing the start key's
	// user-key prefix (pebble's prefix_same_as_start read option).
	PrefixSameAsStart bool
	// LowerBound and UpperBound are encoded MVCC keys bounding iteration.
	LowerBound, UpperBound []byte
	// MinTimestamp/MaxTimestamp, if both non-nil, install the time-bound
	// table filter described in §4.8.
	MinTimestamp, MaxTimestamp []byte
}

func (o IterOptions) toPebble() *pebble.IterOptions {
	popts := &pebble.IterOptions{
		LowerBound: o.LowerBound,
		UpperBound: o.UpperBound,
	}
	if o.MinTimestamp != nil && o.MaxTimestamp != nil {
		popts.TableFilter = timeBoundFilter(o.MinTimestamp, o.MaxTimestamp)
	}
	return popts
}

// Open opens (or creates) a store at opts.Dir, wiring the MVCC comparer,
// merger, and time-bound property collector into the backing pebble
// instance.
func Open(opts Options) (*Store, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Cache != nil {
		opts.Cache.reserveWriteBuffer()
	}
	popts := opts.toPebbleOptions()
	dir := opts.Dir
	if dir == "" {
		// An empty Dir means an in-memory store (used by tests): install
		// pebble's in-memory vfs explicitly rather than leaving FS unset,
		// since EnsureDefaults would otherwise fill it in with the real
		// OS filesystem and "" would resolve to the process's cwd.
		popts.FS = vfs.NewMem()
		dir = "" // pebble's mem FS ignores the directory name entirely.
	}
	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: opts.Cache, fs: popts.FS}, nil
}

// Store is the direct-to-LSM engine façade variant. CommitBatch and
// BatchRepr are unsupported; writes go straight to the default column
// family.
type Store struct {
	db    *pebble.DB
	cache *Cache
	fs    vfs.FS
}

var _ Engine = (*Store)(nil)

func (s *Store) Put(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

func (s *Store) Merge(key, value []byte) error {
	return s.db.Merge(key, value, pebble.NoSync)
}

func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

func (s *Store) DeleteRange(start, end []byte) error {
	return s.db.DeleteRange(start, end, pebble.NoSync)
}

func (s *Store) Get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

func (s *Store) NewIter(opts IterOptions) (Iterator, error) {
	it, err := s.db.NewIter(opts.toPebble())
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it}, nil
}

func (s *Store) CommitBatch(sync bool) error {
	return errUnsupported("CommitBatch on Store")
}

func (s *Store) ApplyBatchRepr(repr []byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.SetRepr(repr); err != nil {
		return err
	}
	return s.db.Apply(batch, pebble.NoSync)
}

func (s *Store) BatchRepr() ([]byte, error) {
	return nil, errUnsupported("BatchRepr on Store")
}

func (s *Store) EnvWriteFile(path string, contents []byte) error {
	f, err := s.fs.OpenReadWrite(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(contents)
	return err
}

func (s *Store) GetStats() (Stats, error) {
	m := s.db.Metrics()
	return Stats{
		KeyCount:     int64(m.Keys.RangeKeySetsCount),
		LiveFileSize: int64(m.DiskSpaceUsage()),
		NumSSTables:  m.Total().NumFiles,
	}, nil
}

func (s *Store) GetCompactionStats() (CompactionStats, error) {
	return CompactionStats(s.db.Metrics().String()), nil
}

func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}

// NewIndexedBatch returns an IndexedBatch backed by s, per §4.9.
func (s *Store) NewIndexedBatch() *IndexedBatch {
	return &IndexedBatch{db: s.db, batch: s.db.NewBatch(), delta: &indexedDelta{}}
}

// NewWriteOnlyBatch returns a WriteOnlyBatch backed by s, per §4.9.
func (s *Store) NewWriteOnlyBatch() *WriteOnlyBatch {
	return &WriteOnlyBatch{db: s.db, batch: s.db.NewBatch()}
}

// NewSnapshot captures a read view of s at this instant, per §4.9.
func (s *Store) NewSnapshot() *Snapshot {
	return &Snapshot{snap: s.db.NewSnapshot()}
}

// IndexedBatch buffers writes into an indexed write batch; reads overlay
// the batch on a snapshot-like view of the store via the overlay
// iterator. It rejects reads/iteration while any DeleteRange is pending,
// per §4.3.1.
type IndexedBatch struct {
	db    *pebble.DB
	batch *pebble.Batch
	delta *indexedDelta
}

var _ Engine = (*IndexedBatch)(nil)

func (b *IndexedBatch) Put(key, value []byte) error {
	b.delta.Put(key, value)
	return b.batch.Set(key, value, nil)
}

func (b *IndexedBatch) Merge(key, value []byte) error {
	b.delta.Merge(key, value)
	return b.batch.Merge(key, value, nil)
}

func (b *IndexedBatch) Delete(key []byte) error {
	b.delta.Delete(key)
	return b.batch.Delete(key, nil)
}

func (b *IndexedBatch) DeleteRange(start, end []byte) error {
	b.delta.DeleteRange(start, end)
	return b.batch.DeleteRange(start, end, nil)
}

func (b *IndexedBatch) Get(key []byte) ([]byte, error) {
	if b.delta.hasDeleteRange {
		return nil, errUnsupported("Get on batch with pending DeleteRange")
	}
	base, err := b.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer base.Close()
	delta := newDeltaIterator(b.delta)
	it := newOverlayIterator(&pebbleIterator{it: base}, delta, false)
	if !it.SeekGE(key) || !Equal(it.Key(), key) {
		return nil, nil
	}
	return append([]byte(nil), it.Value()...), nil
}

func (b *IndexedBatch) NewIter(opts IterOptions) (Iterator, error) {
	if b.delta.hasDeleteRange {
		return nil, errUnsupported("NewIter on batch with pending DeleteRange")
	}
	base, err := b.db.NewIter(opts.toPebble())
	if err != nil {
		return nil, err
	}
	delta := newDeltaIterator(b.delta)
	return newOverlayIterator(&pebbleIterator{it: base}, delta, opts.PrefixSameAsStart), nil
}

func (b *IndexedBatch) CommitBatch(sync bool) error {
	opts := pebble.NoSync
	if sync {
		opts = pebble.Sync
	}
	return b.batch.Commit(opts)
}

func (b *IndexedBatch) ApplyBatchRepr(repr []byte) error {
	return b.batch.SetRepr(repr)
}

func (b *IndexedBatch) BatchRepr() ([]byte, error) {
	return b.batch.Repr(), nil
}

func (b *IndexedBatch) EnvWriteFile(path string, contents []byte) error {
	return errUnsupported("EnvWriteFile on IndexedBatch")
}

func (b *IndexedBatch) GetStats() (Stats, error) {
	return Stats{}, errUnsupported("GetStats on IndexedBatch")
}

func (b *IndexedBatch) GetCompactionStats() (CompactionStats, error) {
	return "", errUnsupported("GetCompactionStats on IndexedBatch")
}

func (b *IndexedBatch) Close() error {
	return b.batch.Close()
}

// WriteOnlyBatch buffers writes into a plain (unindexed) write batch;
// Get/NewIter are unsupported, per §4.9.
type WriteOnlyBatch struct {
	db    *pebble.DB
	batch *pebble.Batch
}

var _ Engine = (*WriteOnlyBatch)(nil)

func (b *WriteOnlyBatch) Put(key, value []byte) error   { return b.batch.Set(key, value, nil) }
func (b *WriteOnlyBatch) Merge(key, value []byte) error { return b.batch.Merge(key, value, nil) }
func (b *WriteOnlyBatch) Delete(key []byte) error        { return b.batch.Delete(key, nil) }
func (b *WriteOnlyBatch) DeleteRange(start, end []byte) error {
	return b.batch.DeleteRange(start, end, nil)
}

func (b *WriteOnlyBatch) Get(key []byte) ([]byte, error) {
	return nil, errUnsupported("Get on WriteOnlyBatch")
}

func (b *WriteOnlyBatch) NewIter(opts IterOptions) (Iterator, error) {
	return nil, errUnsupported("NewIter on WriteOnlyBatch")
}

func (b *WriteOnlyBatch) CommitBatch(sync bool) error {
	opts := pebble.NoSync
	if sync {
		opts = pebble.Sync
	}
	return b.batch.Commit(opts)
}

func (b *WriteOnlyBatch) ApplyBatchRepr(repr []byte) error {
	return b.batch.SetRepr(repr)
}

func (b *WriteOnlyBatch) BatchRepr() ([]byte, error) {
	return b.batch.Repr(), nil
}

func (b *WriteOnlyBatch) EnvWriteFile(path string, contents []byte) error {
	return errUnsupported("EnvWriteFile on WriteOnlyBatch")
}

func (b *WriteOnlyBatch) GetStats() (Stats, error) {
	return Stats{}, errUnsupported("GetStats on WriteOnlyBatch")
}

func (b *WriteOnlyBatch) GetCompactionStats() (CompactionStats, error) {
	return "", errUnsupported("GetCompactionStats on WriteOnlyBatch")
}

func (b *WriteOnlyBatch) Close() error {
	return b.batch.Close()
}

// Snapshot captures a read view of the store at creation time; all writes
// are unsupported, per §4.9.
type Snapshot struct {
	snap *pebble.Snapshot
}

var _ Engine = (*Snapshot)(nil)

func (s *Snapshot) Put(key, value []byte) error        { return errUnsupported("Put on Snapshot") }
func (s *Snapshot) Merge(key, value []byte) error       { return errUnsupported("Merge on Snapshot") }
func (s *Snapshot) Delete(key []byte) error             { return errUnsupported("Delete on Snapshot") }
func (s *Snapshot) DeleteRange(start, end []byte) error { return errUnsupported("DeleteRange on Snapshot") }

func (s *Snapshot) Get(key []byte) ([]byte, error) {
	v, closer, err := s.snap.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

func (s *Snapshot) NewIter(opts IterOptions) (Iterator, error) {
	it, err := s.snap.NewIter(opts.toPebble())
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it}, nil
}

func (s *Snapshot) CommitBatch(sync bool) error    { return errUnsupported("CommitBatch on Snapshot") }
func (s *Snapshot) ApplyBatchRepr(repr []byte) error { return errUnsupported("ApplyBatchRepr on Snapshot") }
func (s *Snapshot) BatchRepr() ([]byte, error)       { return nil, errUnsupported("BatchRepr on Snapshot") }
func (s *Snapshot) EnvWriteFile(path string, contents []byte) error {
	return errUnsupported("EnvWriteFile on Snapshot")
}
func (s *Snapshot) GetStats() (Stats, error) {
	return Stats{}, errUnsupported("GetStats on Snapshot")
}
func (s *Snapshot) GetCompactionStats() (CompactionStats, error) {
	return "", errUnsupported("GetCompactionStats on Snapshot")
}
func (s *Snapshot) Close() error { return s.snap.Close() }

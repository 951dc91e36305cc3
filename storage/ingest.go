// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

// Grounded on the teacher's sst_writer.go/storage.go IngestExternalFiles
// glue: a thin pass-through onto the LSM's own bulk-load primitive. This
// package writes no SSTables itself (that's a non-goal — the SQL bulk
// import layer builds them); it only hands already-built files to the
// backing store and reports how many files/bytes they added, for callers
// such as a restore or IMPORT job driver.

// IngestStats summarizes one IngestExternalFiles call.
type IngestStats struct {
	Files int
	Bytes int64
}

// IngestExternalFiles hands paths (already-built, sorted SSTables whose
// keys fall inside this store's MVCC keyspace) to the backing LSM for a
// direct link-or-copy ingest, bypassing the normal write path and its
// memtable. Per §6, the SSTs must already use this package's comparator;
// pebble validates that their key range does not overlap an
// in-progress compaction incompatibly and rejects the ingest otherwise.
func (s *Store) IngestExternalFiles(paths []string) (IngestStats, error) {
	if len(paths) == 0 {
		return IngestStats{}, nil
	}
	var stats IngestStats
	for _, p := range paths {
		info, err := s.fs.Stat(p)
		if err != nil {
			return IngestStats{}, err
		}
		stats.Bytes += info.Size()
	}
	if err := s.db.Ingest(paths); err != nil {
		return IngestStats{}, err
	}
	stats.Files = len(paths)
	return stats, nil
}

func mustSSTables(s *Store) [][]SSTableInfo {
	levels, err := s.SSTables()
	if err != nil {
		return nil
	}
	return levels
}

// SSTableInfo is the subset of per-file metadata this package exposes
// from the backing LSM's table listing.
type SSTableInfo struct {
	Smallest, Largest []byte
	Size              uint64
}

// SSTables lists every SSTable backing s, grouped by LSM level, smallest
// key first within a level.
func (s *Store) SSTables() ([][]SSTableInfo, error) {
	levels, err := s.db.SSTables()
	if err != nil {
		return nil, err
	}
	out := make([][]SSTableInfo, len(levels))
	for i, level := range levels {
		infos := make([]SSTableInfo, len(level))
		for j, info := range level {
			infos[j] = SSTableInfo{
				Smallest: info.Smallest.UserKey,
				Largest:  info.Largest.UserKey,
				Size:     info.Size,
			}
		}
		out[i] = infos
	}
	return out, nil
}

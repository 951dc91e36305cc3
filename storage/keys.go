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
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/latticedb/lattice/storage/hlc"
)

// mvccVersionTimestampSize is the on-disk size charged to every version
// key for statistics purposes; it is an approximation since the encoded
// timestamp is actually 9 or 13 bytes, but stats accounting has always
// used the logical-timestamp-present size.
const mvccVersionTimestampSize int64 = 12

// MVCCKey is a versioned key: a user key plus an HLC timestamp. The zero
// Timestamp marks a meta key.
type MVCCKey struct {
	Key       []byte
	Timestamp hlc.Timestamp
}

// MakeMetadataKey creates the meta-key MVCCKey for key (zero timestamp).
func MakeMetadataKey(key []byte) MVCCKey {
	return MVCCKey{Key: key}
}

// IsValue reports whether k carries a non-zero timestamp, i.e. is a
// version key rather than a meta key.
func (k MVCCKey) IsValue() bool {
	return !k.Timestamp.IsEmpty()
}

// Next returns the MVCCKey that immediately follows k in sort order: the
// next-older version at the same user key, or the meta key of the next
// user key if k has no predecessor timestamp.
func (k MVCCKey) Next() MVCCKey {
	if k.Timestamp.IsEmpty() {
		return MVCCKey{Key: nextUserKey(k.Key)}
	}
	return MVCCKey{Key: k.Key, Timestamp: k.Timestamp.Prev()}
}

// Less reports whether k sorts before l under the MVCC comparator.
func (k MVCCKey) Less(l MVCCKey) bool {
	if c := bytes.Compare(k.Key, l.Key); c != 0 {
		return c < 0
	}
	if !k.IsValue() {
		return l.IsValue()
	} else if !l.IsValue() {
		return false
	}
	return l.Timestamp.Less(k.Timestamp)
}

// Equal reports whether k and l are the same MVCCKey.
func (k MVCCKey) Equal(l MVCCKey) bool {
	return bytes.Equal(k.Key, l.Key) && k.Timestamp == l.Timestamp
}

// EncodedSize returns the number of bytes k occupies once encoded. Version
// keys are charged the fixed mvccVersionTimestampSize regardless of
// whether the encoded timestamp is 9 or 13 bytes, matching the stats
// accounting convention.
func (k MVCCKey) EncodedSize() int {
	n := len(k.Key) + 1
	if k.IsValue() {
		n += int(mvccVersionTimestampSize)
	}
	return n
}

// String formats k for diagnostics.
func (k MVCCKey) String() string {
	if !k.IsValue() {
		return fmt.Sprintf("%x", k.Key)
	}
	return fmt.Sprintf("%x/%s", k.Key, k.Timestamp)
}

func nextUserKey(key []byte) []byte {
	return append(append([]byte(nil), key...), 0x00)
}

// EncodeKey encodes an MVCC key to its sort-key bytes:
//
//	<user-key> [ 0x00 <wall:be64> [<logical:be32>] ] <ts-len:u8>
//
// ts-len is 0 for a meta key, 9 for a wall-time-only version, or 13 when a
// non-zero logical component is also present.
func EncodeKey(key []byte, wall int64, logical int32) []byte {
	hasTS := wall != 0 || logical != 0
	size := len(key) + 1
	if hasTS {
		size += 1 + 12
	}
	buf := make([]byte, 0, size)
	buf = append(buf, key...)
	if hasTS {
		buf = append(buf, 0x00)
		buf = appendTimestamp(buf, wall, logical)
	}
	return append(buf, byte(len(buf)-len(key)))
}

// EncodeMVCCKey encodes k to its sort-key bytes.
func EncodeMVCCKey(k MVCCKey) []byte {
	return EncodeKey(k.Key, k.Timestamp.WallTime, k.Timestamp.Logical)
}

func appendTimestamp(buf []byte, wall int64, logical int32) []byte {
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(wall))
	buf = append(buf, tsBuf[:]...)
	if logical != 0 {
		var lBuf [4]byte
		binary.BigEndian.PutUint32(lBuf[:], uint32(logical))
		buf = append(buf, lBuf[:]...)
	}
	return buf
}

// Split splits buf into its user-key and raw timestamp region (the bytes
// from the 0x00 sentinel up to, but excluding, the trailing length byte).
// The timestamp region is empty for a meta key. Split fails if buf
// is empty or its trailing length byte is inconsistent with the buffer.
func Split(buf []byte) (userKey, tsBytes []byte, err error) {
	if len(buf) == 0 {
		return nil, nil, errCorrupt("empty key")
	}
	tsLen := int(buf[len(buf)-1])
	if tsLen >= len(buf) {
		return nil, nil, errCorrupt("timestamp length %d exceeds key length %d", tsLen, len(buf))
	}
	keyPartLen := len(buf) - tsLen - 1
	userKey = buf[:keyPartLen]
	if tsLen == 0 {
		return userKey, nil, nil
	}
	// tsBytes spans the sentinel through the end, excluding the length byte;
	// callers that need just the wall/logical region strip the sentinel.
	tsBytes = buf[keyPartLen : len(buf)-1]
	return userKey, tsBytes, nil
}

// Prefix returns user_key ∥ 0x00 for the encoded key buf, suitable for
// per-user-key bloom filters and prefix-bounded iteration. It succeeds for
// both meta and version keys.
func Prefix(buf []byte) ([]byte, error) {
	userKey, _, err := Split(buf)
	if err != nil {
		return nil, err
	}
	return nextUserKey(userKey), nil
}

// DecodeKey decodes buf produced by EncodeKey, returning the user key and
// the timestamp components. DecodeKey fails under the same conditions as
// Split, plus when the timestamp region itself does not parse (wrong
// length for a wall-only or wall+logical encoding).
func DecodeKey(buf []byte) (userKey []byte, wall int64, logical int32, err error) {
	userKey, tsBytes, err := Split(buf)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(tsBytes) == 0 {
		return userKey, 0, 0, nil
	}
	if len(tsBytes) != 9 && len(tsBytes) != 13 {
		return nil, 0, 0, errCorrupt("malformed timestamp region of length %d", len(tsBytes))
	}
	// tsBytes[0] is the 0x00 sentinel.
	body := tsBytes[1:]
	wall = int64(binary.BigEndian.Uint64(body[:8]))
	if len(body) > 8 {
		logical = int32(binary.BigEndian.Uint32(body[8:12]))
	}
	return userKey, wall, logical, nil
}

// DecodeMVCCKey decodes buf into an MVCCKey.
func DecodeMVCCKey(buf []byte) (MVCCKey, error) {
	userKey, wall, logical, err := DecodeKey(buf)
	if err != nil {
		return MVCCKey{}, err
	}
	return MVCCKey{Key: userKey, Timestamp: hlc.Timestamp{WallTime: wall, Logical: logical}}, nil
}

// Compare implements the MVCC total order over encoded sort-keys: user-key
// ascending, then timestamp descending (newer first), with the empty
// (meta) timestamp sorting before any version of the same user key.
func Compare(a, b []byte) int {
	keyA, tsA, errA := Split(a)
	keyB, tsB, errB := Split(b)
	if errA != nil || errB != nil {
		// Corrupted input: fall back to a total order so the LSM never
		// panics, but this should never be reached in practice.
		return bytes.Compare(a, b)
	}
	if c := bytes.Compare(keyA, keyB); c != 0 {
		return c
	}
	if len(tsA) == 0 {
		if len(tsB) == 0 {
			return 0
		}
		return -1
	} else if len(tsB) == 0 {
		return 1
	}
	// Reverse comparison: newer (lexicographically larger) timestamp bytes
	// sort first.
	return bytes.Compare(tsB, tsA)
}

// Equal reports whether a and b are byte-identical encoded keys.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// comparer adapts Compare/Equal/Split/Prefix to pebble's base.Comparer
// contract so the engine's keyspace orders and filters exactly as this
// package's codec requires.
var comparer = &pebble.Comparer{
	Compare:        Compare,
	Equal:          Equal,
	AbbreviatedKey: pebble.DefaultComparer.AbbreviatedKey,
	FormatKey:      pebble.DefaultComparer.FormatKey,
	Separator:      pebble.DefaultComparer.Separator,
	Successor:      pebble.DefaultComparer.Successor,
	Split: func(key []byte) int {
		userKey, _, err := Split(key)
		if err != nil {
			return len(key)
		}
		// +1 includes the NUL prefix guard, matching Prefix's user_key∥0x00
		// convention so pebble's own prefix bloom filters agree with ours.
		if len(userKey)+1 > len(key) {
			return len(key)
		}
		return len(userKey) + 1
	},
	Name: "lattice.mvcc_comparator",
}

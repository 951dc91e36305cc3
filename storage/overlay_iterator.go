// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

// overlayIterator presents a single forward iterator over the union of a
// base iterator and an indexed batch's buffered operations, replaying
// merge records against the base value where one exists. Grounded on
// db.cc's BaseDeltaIterator / ProcessDeltaKey (§4.3, §4.3.1). Reverse
// iteration is not supported.
type overlayIterator struct {
	base              Iterator
	delta             *deltaIterator
	prefixSameAsStart bool
	prefixStartKey    []byte

	currentAtBase bool
	equalKeys     bool

	deltaKey     []byte
	mergedValue  []byte
	mergedIsDrop bool // true if the delta's accumulated result is a deletion

	err error
}

func newOverlayIterator(base Iterator, delta *deltaIterator, prefixSameAsStart bool) *overlayIterator {
	return &overlayIterator{base: base, delta: delta, prefixSameAsStart: prefixSameAsStart}
}

func (o *overlayIterator) baseValid() bool  { return o.base.Valid() }
func (o *overlayIterator) deltaValid() bool { return o.delta.Valid() }

func (o *overlayIterator) Valid() bool {
	if o.err != nil {
		return false
	}
	if o.currentAtBase {
		return o.baseValid()
	}
	return o.deltaValid()
}

func (o *overlayIterator) Key() []byte {
	if o.currentAtBase {
		return o.base.Key()
	}
	return o.deltaKey
}

func (o *overlayIterator) Value() []byte {
	if o.currentAtBase {
		return o.base.Value()
	}
	return o.mergedValue
}

func (o *overlayIterator) Error() error {
	if o.err != nil {
		return o.err
	}
	if err := o.base.Error(); err != nil {
		return err
	}
	return nil
}

func (o *overlayIterator) Close() error {
	err := o.base.Close()
	return err
}

func (o *overlayIterator) SeekLT(key []byte) bool {
	o.err = errUnsupported("Prev/SeekLT on overlay iterator")
	return false
}

func (o *overlayIterator) Prev() bool {
	o.err = errUnsupported("Prev on overlay iterator")
	return false
}

func (o *overlayIterator) First() bool {
	o.prefixStartKey = nil
	o.base.First()
	o.delta.SeekToFirst()
	o.updateCurrent(false)
	o.maybeSavePrefixStart()
	return o.Valid()
}

func (o *overlayIterator) Last() bool {
	o.prefixStartKey = nil
	o.base.Last()
	o.delta.SeekToLast()
	o.updateCurrent(false)
	o.maybeSavePrefixStart()
	return o.Valid()
}

func (o *overlayIterator) SeekGE(key []byte) bool {
	if o.prefixSameAsStart {
		o.prefixStartKey, _ = Prefix(key)
	}
	o.base.SeekGE(key)
	o.delta.Seek(key)
	o.updateCurrent(o.prefixSameAsStart)
	if o.prefixSameAsStart {
		if o.Valid() {
			o.prefixStartKey, _ = Prefix(o.Key())
		} else {
			o.prefixStartKey = nil
		}
	}
	return o.Valid()
}

func (o *overlayIterator) Next() bool {
	if !o.Valid() {
		o.err = errUnsupported("Next on invalid overlay iterator")
		return false
	}
	o.advance()
	return o.Valid()
}

func (o *overlayIterator) advance() {
	if o.equalKeys {
		o.advanceBase()
		o.advanceDelta()
	} else if o.currentAtBase {
		o.advanceBase()
	} else {
		o.advanceDelta()
	}
	o.updateCurrent(o.prefixSameAsStart)
}

func (o *overlayIterator) advanceBase() { o.base.Next() }

func (o *overlayIterator) advanceDelta() {
	o.delta.Next()
	o.clearMerged()
}

func (o *overlayIterator) clearMerged() {
	o.mergedValue = nil
	o.mergedIsDrop = false
}

func (o *overlayIterator) checkPrefix(key []byte) bool {
	p, err := Prefix(key)
	if err != nil {
		return true
	}
	return !Equal(p, o.prefixStartKey)
}

func (o *overlayIterator) maybeSavePrefixStart() {
	if !o.prefixSameAsStart {
		return
	}
	if o.Valid() {
		o.prefixStartKey, _ = Prefix(o.Key())
	} else {
		o.prefixStartKey = nil
	}
}

// updateCurrent is the work horse described in §4.3's Transitions table:
// it walks base/delta, overlaying delta state on base, skipping deleted
// keys, until it lands on the next key to present (or both sides are
// exhausted).
func (o *overlayIterator) updateCurrent(checkPrefix bool) {
	o.clearMerged()

	for {
		o.equalKeys = false

		if !o.baseValid() {
			if !o.deltaValid() {
				return
			}
			if checkPrefix && o.checkPrefix(o.delta.Key()) {
				o.currentAtBase = true
				return
			}
			if drop := o.processDelta(); !drop {
				o.currentAtBase = false
				return
			}
			o.advanceDelta()
			continue
		}

		if !o.deltaValid() {
			o.currentAtBase = true
			return
		}

		cmp := Compare(o.delta.Key(), o.base.Key())
		if cmp > 0 {
			o.currentAtBase = true
			return
		}
		if cmp == 0 {
			o.equalKeys = true
		}
		if drop := o.processDelta(); !drop {
			o.currentAtBase = false
			return
		}
		o.advanceDelta()
		if o.equalKeys {
			o.advanceBase()
		}
	}
}

// processDelta consumes every delta op for the key the delta iterator
// currently points at (§4.3.1), leaving the delta iterator positioned one
// step before the next distinct key (so the outer advance logic sees it
// again on the next Next() call). It returns true if the net effect is a
// deletion.
func (o *overlayIterator) processDelta() bool {
	o.deltaKey = append(o.deltaKey[:0], o.delta.Key()...)

	var value []byte
	isDrop := true
	count := 0
	for o.delta.Valid() && Equal(o.delta.Key(), o.deltaKey) {
		op := o.delta.Entry()
		switch op.kind {
		case deltaPut:
			value = append([]byte(nil), op.value...)
			isDrop = false
		case deltaMerge:
			var existing []byte
			haveExisting := false
			if count == 0 {
				if o.equalKeys {
					existing = o.base.Value()
					haveExisting = true
				}
			} else if !isDrop {
				existing = value
				haveExisting = true
			}
			if haveExisting {
				merged, err := FullMerge(existing, [][]byte{op.value})
				if err != nil {
					o.err = err
					return true
				}
				value = merged
			} else {
				value = append([]byte(nil), op.value...)
			}
			isDrop = false
		case deltaDelete:
			value = nil
			isDrop = true
		}
		count++
		o.delta.Next()
	}

	// Back the delta iterator up one step so the outer loop re-sees the
	// next key on its own Next() call.
	o.delta.Prev()

	o.mergedValue = value
	o.mergedIsDrop = isDrop
	return isDrop
}

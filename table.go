// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fixedmap

import (
	"fmt"
	"strings"
)

// Each slot carries a state tag:
//
//	  empty: never used, or cleared by a cuckoo delete
//	   full: holds an entry
//	deleted: tombstone left by a double hashing delete
//
// A deleted slot is free for insertion but does not terminate a probe.
type slotState uint8

const (
	slotEmpty slotState = iota
	slotFull
	slotDeleted
)

func (s slotState) String() string {
	switch s {
	case slotEmpty:
		return "empty"
	case slotFull:
		return "full"
	case slotDeleted:
		return "deleted"
	}
	return fmt.Sprintf("slotState(%d)", uint8(s))
}

// entry is a key/value pair moving through an eviction chain.
type entry[V any] struct {
	key   string
	value V
}

// Slot holds one table entry and its state. Slots are only exposed so that
// an Allocator can provide their backing memory.
type Slot[V any] struct {
	entry[V]
	state slotState
}

func (s *Slot[V]) full() bool {
	return s.state == slotFull
}

func (s *Slot[V]) fill(e entry[V]) {
	s.entry = e
	s.state = slotFull
}

// clear empties the slot, leaving a tombstone if asked to.
func (s *Slot[V]) clear(tombstone bool) {
	s.entry = entry[V]{}
	if tombstone {
		s.state = slotDeleted
	} else {
		s.state = slotEmpty
	}
}

// table is the fixed-length slot array shared by a Map and its resolver.
// len(slots) never changes after construction, although a cuckoo rebuild
// swaps in a new array of the same length.
type table[V any] struct {
	slots     []Slot[V]
	allocator Allocator[V]
}

func makeTable[V any](size int, allocator Allocator[V]) table[V] {
	return table[V]{slots: allocator.AllocSlots(size), allocator: allocator}
}

// replace swaps in slots, which must come from t.allocator, and frees the
// previous array.
func (t *table[V]) replace(slots []Slot[V]) {
	old := t.slots
	t.slots = slots
	t.allocator.FreeSlots(old)
}

// release frees the slot array. The table is unusable afterwards.
func (t *table[V]) release() {
	if t.slots == nil {
		return
	}
	t.allocator.FreeSlots(t.slots)
	t.slots = nil
}

func (t *table[V]) size() uint64 {
	return uint64(len(t.slots))
}

func (t *table[V]) at(i uint64) *Slot[V] {
	return &t.slots[i]
}

// load scans every slot and returns the fraction that are full.
func (t *table[V]) load() float64 {
	if len(t.slots) == 0 {
		return 0
	}
	var used int
	for i := range t.slots {
		if t.slots[i].full() {
			used++
		}
	}
	return float64(used) / float64(len(t.slots))
}

// all calls yield for every full slot in slot order until yield returns
// false.
func (t *table[V]) all(yield func(i uint64, e entry[V]) bool) {
	slots := t.slots
	for i := range slots {
		if slots[i].full() && !yield(uint64(i), slots[i].entry) {
			return
		}
	}
}

func (t *table[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "size=%d  load=%.3f\n", len(t.slots), t.load())
	for i := range t.slots {
		s := &t.slots[i]
		if s.full() {
			fmt.Fprintf(&buf, "  %4d: %q=%v\n", i, s.key, s.value)
		} else {
			fmt.Fprintf(&buf, "  %4d: %s\n", i, s.state)
		}
	}
	return buf.String()
}

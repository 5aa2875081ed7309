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

	"github.com/cockroachdb/errors"
)

// doubleHashing resolves collisions by open addressing. The start slot comes
// from the primary hash and the stride from the secondary hash, so two keys
// colliding on their start slot usually diverge on the next probe.
//
// Deletion leaves a tombstone: clearing the slot to empty would end the
// probe of any key that was placed beyond it.
type doubleHashing[V any] struct {
	t    *table[V]
	hash *hashSet
}

func (d *doubleHashing[V]) probe(key string) probeSeq {
	start, stride := d.hash.hash(key)
	return makeProbeSeq(start, stride, d.t.size())
}

// lookup walks the probe sequence until it reaches key, an empty slot, or
// the end of the cycle.
func (d *doubleHashing[V]) lookup(key string) (uint64, bool) {
	seq := d.probe(key)
	if debug {
		fmt.Printf("lookup(%q): %s\n", key, seq)
	}
	for ; !seq.done(); seq = seq.next() {
		s := d.t.at(seq.offset)
		switch s.state {
		case slotEmpty:
			return 0, false
		case slotFull:
			if s.key == key {
				return seq.offset, true
			}
		}
	}
	return 0, false
}

// insert places key at the first vacancy of its probe sequence, or
// overwrites the value if key is already present. A tombstone is only
// reused once the walk has proven key absent up to the next empty slot.
func (d *doubleHashing[V]) insert(key string, value V) error {
	seq := d.probe(key)
	if debug {
		fmt.Printf("insert(%q): %s\n", key, seq)
	}

	var tombstone *Slot[V]
	for ; !seq.done(); seq = seq.next() {
		s := d.t.at(seq.offset)
		switch s.state {
		case slotFull:
			if s.key == key {
				if debug {
					fmt.Printf("insert(updating): index=%d key=%q\n", seq.offset, key)
				}
				s.value = value
				return nil
			}
		case slotDeleted:
			if tombstone == nil {
				tombstone = s
			}
		case slotEmpty:
			if tombstone != nil {
				s = tombstone
			}
			if debug {
				fmt.Printf("insert(placing): index=%d key=%q\n", seq.offset, key)
			}
			s.fill(entry[V]{key: key, value: value})
			return nil
		}
	}

	if tombstone != nil {
		tombstone.fill(entry[V]{key: key, value: value})
		return nil
	}
	return errors.Wrapf(ErrCapacityExhausted, "set %q: no vacancy in %d probes", key, d.t.size())
}

func (d *doubleHashing[V]) remove(i uint64) {
	d.t.at(i).clear(true /* tombstone */)
}

// validate checks that every entry is reachable through its own probe
// sequence and that no key is stored twice.
func (d *doubleHashing[V]) validate() error {
	seen := make(map[string]uint64)
	var err error
	d.t.all(func(i uint64, e entry[V]) bool {
		if j, ok := seen[e.key]; ok {
			err = errors.Newf("key %q stored at %d and %d", e.key, j, i)
			return false
		}
		seen[e.key] = i
		if j, ok := d.lookup(e.key); !ok || j != i {
			err = errors.Newf("key %q at %d not reachable by probing (found=%t at %d)", e.key, i, ok, j)
			return false
		}
		return true
	})
	return err
}

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
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// outcomeKind is the result of one step of an eviction chain.
type outcomeKind uint8

const (
	placed outcomeKind = iota
	evicted
	failed
)

func (k outcomeKind) String() string {
	switch k {
	case placed:
		return "placed"
	case evicted:
		return "evicted"
	case failed:
		return "failed"
	}
	return fmt.Sprintf("outcomeKind(%d)", uint8(k))
}

// outcome carries the entry pushed out of the table: the previous occupant
// for evicted, the entry left homeless for failed.
type outcome[V any] struct {
	kind   outcomeKind
	kicked entry[V]
}

// displacement records one eviction so that a failed chain can be undone.
type displacement[V any] struct {
	index uint64
	prev  entry[V]
}

// cuckoo resolves collisions with two candidate slots per key. Insertion
// always targets the first candidate and evicts an unrelated occupant, which
// then moves to its own alternate candidate, and so on. A chain longer than
// maxDisplacements is abandoned and the whole table is rebuilt under fresh
// modifiers.
type cuckoo[V any] struct {
	t                *table[V]
	hash             *hashSet
	rand             *rand.Rand
	logger           *zap.Logger
	stats            *Stats
	maxDisplacements int
	maxRebuilds      int
}

func (c *cuckoo[V]) lookup(key string) (uint64, bool) {
	cand := makeCandidates(c.hash, key)
	for _, i := range [2]uint64{cand.first, cand.second} {
		if s := c.t.at(i); s.full() && s.key == key {
			return i, true
		}
	}
	return 0, false
}

func (c *cuckoo[V]) insert(key string, value V) error {
	if i, ok := c.lookup(key); ok {
		c.t.at(i).value = value
		return nil
	}

	var journal []displacement[V]
	e := entry[V]{key: key, value: value}
	o := c.displace(c.t.slots, e, makeCandidates(c.hash, key).first, &journal)
	if o.kind == placed {
		return nil
	}

	if debug {
		fmt.Printf("insert(%q): chain %s after %d evictions, kicked %q\n",
			key, o.kind, len(journal), o.kicked.key)
	}
	if err := c.rebuild(o.kicked); err != nil {
		// Walk the chain back: each evicted occupant returns to the slot it
		// was pushed out of, which also drops the new key.
		for j := len(journal) - 1; j >= 0; j-- {
			c.t.at(journal[j].index).fill(journal[j].prev)
		}
		c.checkInvariants()
		return errors.Wrapf(err, "set %q", key)
	}
	c.checkInvariants()
	return nil
}

// place puts e into s, returning the occupant it displaced, if any.
func place[V any](s *Slot[V], e entry[V]) outcome[V] {
	if !s.full() || s.key == e.key {
		s.fill(e)
		return outcome[V]{kind: placed}
	}
	prev := s.entry
	s.fill(e)
	return outcome[V]{kind: evicted, kicked: prev}
}

// displace runs an eviction chain in slots starting with e at slot i. Every
// placement attempt counts against maxDisplacements. If journal is non-nil
// each eviction is appended to it.
func (c *cuckoo[V]) displace(
	slots []Slot[V], e entry[V], i uint64, journal *[]displacement[V],
) outcome[V] {
	for n := 1; ; n++ {
		if n > c.maxDisplacements {
			return outcome[V]{kind: failed, kicked: e}
		}
		o := place(&slots[i], e)
		if o.kind == placed {
			return o
		}
		if journal != nil {
			*journal = append(*journal, displacement[V]{index: i, prev: o.kicked})
		}
		c.stats.Displacements++
		e = o.kicked
		i = makeCandidates(c.hash, e.key).alternate(i)
	}
}

// rebuild re-inserts every resident entry plus kicked under freshly drawn
// modifiers into a new slot array. Attempts repeat with new modifiers up to
// maxRebuilds times. The live slots and modifiers are only replaced when an
// attempt places every entry; otherwise both are left untouched.
func (c *cuckoo[V]) rebuild(kicked entry[V]) error {
	entries := make([]entry[V], 0, c.t.size())
	c.t.all(func(_ uint64, e entry[V]) bool {
		entries = append(entries, e)
		return true
	})
	entries = append(entries, kicked)

	prev := c.hash.mods
	cause := errors.Wrapf(errDisplacementLimit, "placing %q", kicked.key)
	for attempt := 1; attempt <= c.maxRebuilds; attempt++ {
		c.stats.RebuildAttempts++
		c.hash.reseed(c.rand)
		c.logger.Debug("rebuilding table",
			zap.Uint64("capacity", c.t.size()),
			zap.Int("entries", len(entries)),
			zap.Int("attempt", attempt),
			zap.String("key", kicked.key),
			zap.Stringer("modifiers", c.hash.mods),
			zap.NamedError("cause", cause))

		slots := c.t.allocator.AllocSlots(len(c.t.slots))
		if cause = c.fill(slots, entries); cause == nil {
			c.t.replace(slots)
			c.stats.Rebuilds++
			return nil
		}
		c.t.allocator.FreeSlots(slots)
	}

	c.hash.mods = prev
	c.stats.RebuildFailures++
	c.logger.Warn("giving up rebuilding table",
		zap.Uint64("capacity", c.t.size()),
		zap.Int("entries", len(entries)),
		zap.Int("attempts", c.maxRebuilds),
		zap.String("key", kicked.key),
		zap.NamedError("cause", cause))
	return errors.Wrapf(ErrRebuildLimitExceeded, "%d entries in %d slots after %d attempts",
		len(entries), len(c.t.slots), c.maxRebuilds)
}

// fill inserts entries into slots under the current modifiers. It stops at
// the first entry whose eviction chain fails and returns errDisplacementLimit
// naming the entry left homeless.
func (c *cuckoo[V]) fill(slots []Slot[V], entries []entry[V]) error {
	for _, e := range entries {
		o := c.displace(slots, e, makeCandidates(c.hash, e.key).first, nil)
		if o.kind == failed {
			return errors.Wrapf(errDisplacementLimit, "placing %q", o.kicked.key)
		}
	}
	return nil
}

func (c *cuckoo[V]) remove(i uint64) {
	c.t.at(i).clear(false /* tombstone */)
}

// validate checks that every entry sits at one of its candidates under the
// current modifiers, that no key is stored twice, and that no tombstones
// exist.
func (c *cuckoo[V]) validate() error {
	seen := make(map[string]uint64)
	for i := range c.t.slots {
		s := &c.t.slots[i]
		switch s.state {
		case slotDeleted:
			return errors.Newf("tombstone at %d", i)
		case slotEmpty:
			continue
		}
		if j, ok := seen[s.key]; ok {
			return errors.Newf("key %q stored at %d and %d", s.key, j, i)
		}
		seen[s.key] = uint64(i)
		if cand := makeCandidates(c.hash, s.key); !cand.contains(uint64(i)) {
			return errors.Newf("key %q at %d, candidates are %d and %d",
				s.key, i, cand.first, cand.second)
		}
	}
	return nil
}

func (c *cuckoo[V]) checkInvariants() {
	if invariants {
		if err := c.validate(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, c.t.debugString()))
		}
	}
}

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

// Package fixedmap is a fixed-capacity hash map from string keys to values
// of any type. The table is a flat array of slots allocated once by New and
// never resized; when it cannot take another key, Set says so instead of
// growing.
//
// Two collision resolution strategies share the same slot array and are
// selected with WithStrategy.
//
// # Double hashing
//
// Open addressing where the primary hash picks the start slot and the
// secondary hash picks the probe stride:
//
//	p(i) := primary + i*secondary (mod capacity),  0 <= i < capacity
//
// Set walks p until it finds the key (update), an empty slot (insert) or
// completes the cycle (ErrCapacityExhausted). A zero stride is replaced by
// one. When the stride shares a factor with the capacity the walk covers only
// part of the table, so Set can fail while other slots are still free.
// Delete leaves a tombstone that lookups skip and inserts reuse. The default
// hash pair is DJB.
//
// # Cuckoo hashing
//
// Every key has exactly two candidate slots derived from two hash functions
// perturbed by per-table random Modifiers. Get and Delete inspect those two
// slots and nothing else. Set places the key at its first candidate; an
// unrelated occupant is evicted to its own alternate candidate, possibly
// evicting another entry, and so on. After WithMaxDisplacements placement
// attempts the chain is abandoned and the table is rebuilt: fresh modifiers
// are drawn and every entry is re-inserted into a new slot array. Rebuilds are
// retried up to WithMaxRebuilds times; if all of them fail Set returns
// ErrRebuildLimitExceeded and the map is exactly as it was before the call.
// The default hash pair is CharSum.
//
// # Load
//
// Load scans the whole table and returns the fraction of occupied slots. No
// element count is maintained, so Load is O(capacity).
package fixedmap

import (
	"fmt"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const debug = false

// resolver is a collision resolution strategy bound to a table. The
// indexes it returns are slot positions in that table.
type resolver[V any] interface {
	// lookup returns the slot holding key.
	lookup(key string) (uint64, bool)
	// insert adds key or overwrites its value.
	insert(key string, value V) error
	// remove clears the slot at i, which must be full.
	remove(i uint64)
	validate() error
}

// Stats are cumulative counters of the work done by cuckoo insertion. They
// stay zero under double hashing.
type Stats struct {
	// Displacements counts evictions, including those made while
	// rebuilding.
	Displacements uint64
	// Rebuilds counts rebuilds that placed every entry.
	Rebuilds uint64
	// RebuildAttempts counts modifier draws made while rebuilding.
	RebuildAttempts uint64
	// RebuildFailures counts Set calls that returned
	// ErrRebuildLimitExceeded.
	RebuildFailures uint64
}

// Map is a fixed-capacity map from string keys to values of type V with
// Set, Get, Delete, Load and All operations.
//
// A Map is NOT goroutine-safe.
type Map[V any] struct {
	t        table[V]
	hash     hashSet
	resolver resolver[V]
	strategy Strategy
	logger   *zap.Logger
	stats    Stats
}

// New constructs a Map with room for exactly capacity entries. The capacity
// never changes.
func New[V any](capacity int, options ...Option) (*Map[V], error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}

	s := defaultSettings(capacity)
	for _, op := range options {
		op.apply(&s)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.hasher == nil {
		if s.strategy == Cuckoo {
			s.hasher = CharSum{}
		} else {
			s.hasher = DJB{}
		}
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	var allocator Allocator[V] = defaultAllocator[V]{}
	if s.allocator != nil {
		a, ok := s.allocator.(Allocator[V])
		if !ok {
			return nil, errors.Wrapf(ErrInvalidOption, "allocator %T does not allocate %T slots",
				s.allocator, *new(V))
		}
		allocator = a
	}

	m := &Map[V]{
		t:        makeTable(capacity, allocator),
		hash:     hashSet{fn: s.hasher, size: uint64(capacity)},
		strategy: s.strategy,
		logger:   s.logger,
	}
	m.hash.reseed(s.rand)

	switch s.strategy {
	case Cuckoo:
		m.resolver = &cuckoo[V]{
			t:                &m.t,
			hash:             &m.hash,
			rand:             s.rand,
			logger:           s.logger,
			stats:            &m.stats,
			maxDisplacements: s.maxDisplacements,
			maxRebuilds:      s.maxRebuilds,
		}
	default:
		m.resolver = &doubleHashing[V]{t: &m.t, hash: &m.hash}
	}

	m.logger.Debug("constructing map",
		zap.Int("capacity", capacity),
		zap.Stringer("strategy", m.strategy),
		zap.Stringer("modifiers", m.hash.mods))
	m.checkInvariants()
	return m, nil
}

// Close releases the slot array back to the allocator. It is unnecessary to
// close a map using the default allocator. It is invalid to use a Map after
// it has been closed, though Close itself is idempotent.
func (m *Map[V]) Close() {
	if m.t.slots == nil {
		return
	}
	m.logger.Debug("destructing map",
		zap.Uint64("capacity", m.t.size()),
		zap.Stringer("strategy", m.strategy))
	m.t.release()
}

// Set stores value under key, overwriting the value of an existing entry.
// Any string, including the empty string, is a valid key.
//
// Under DoubleHashing Set fails with ErrCapacityExhausted when the key's
// probe sequence holds no vacancy. Under Cuckoo it fails with
// ErrRebuildLimitExceeded when the key cannot be placed even after
// rebuilding. In both cases the map is unchanged.
func (m *Map[V]) Set(key string, value V) error {
	err := m.resolver.insert(key, value)
	if debug {
		fmt.Printf("set(%q): err=%v\n%s", key, err, m.t.debugString())
	}
	m.checkInvariants()
	return err
}

// Get retrieves the value stored under key, returning ok=false if the key
// is not present.
func (m *Map[V]) Get(key string) (value V, ok bool) {
	i, ok := m.resolver.lookup(key)
	if !ok {
		return value, false
	}
	return m.t.at(i).value, true
}

// Delete removes the entry for key and returns its value, or ok=false if the
// key is not present, in which case the map is unchanged.
func (m *Map[V]) Delete(key string) (value V, ok bool) {
	i, ok := m.resolver.lookup(key)
	if !ok {
		return value, false
	}
	value = m.t.at(i).value
	m.resolver.remove(i)
	m.checkInvariants()
	return value, true
}

// Load returns the fraction of slots holding an entry, in [0, 1]. It scans
// every slot.
func (m *Map[V]) Load() float64 {
	return m.t.load()
}

// Cap returns the number of slots, which is the capacity passed to New.
func (m *Map[V]) Cap() int {
	return len(m.t.slots)
}

// Strategy returns the collision resolution strategy of the map.
func (m *Map[V]) Strategy() Strategy {
	return m.strategy
}

// Stats returns a copy of the map's cumulative counters.
func (m *Map[V]) Stats() Stats {
	return m.stats
}

// All calls yield sequentially for each key and value present in the map, in
// slot order. If yield returns false, iteration stops. The map must not be
// mutated during iteration.
func (m *Map[V]) All(yield func(key string, value V) bool) {
	m.t.all(func(_ uint64, e entry[V]) bool {
		return yield(e.key, e.value)
	})
}

func (m *Map[V]) validate() error {
	if err := m.resolver.validate(); err != nil {
		return errors.Wrapf(err, "%s map", m.strategy)
	}
	return nil
}

func (m *Map[V]) checkInvariants() {
	if invariants {
		if err := m.validate(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, m.t.debugString()))
		}
	}
}

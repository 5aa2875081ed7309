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

const (
	// defaultMinDisplacements is the floor of the default displacement bound
	// so that tiny tables still get a few eviction rounds before rebuilding.
	defaultMinDisplacements = 16
	defaultMaxRebuilds      = 16
)

// Strategy selects the collision resolution scheme of a Map.
type Strategy uint8

const (
	// DoubleHashing is open addressing with a key-derived probe stride.
	DoubleHashing Strategy = iota
	// Cuckoo is two-way cuckoo hashing with rebuild on eviction overflow.
	Cuckoo
)

func (s Strategy) String() string {
	switch s {
	case DoubleHashing:
		return "double"
	case Cuckoo:
		return "cuckoo"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// ParseStrategy maps the names printed by Strategy.String back to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "double", "double-hashing":
		return DoubleHashing, nil
	case "cuckoo":
		return Cuckoo, nil
	}
	return 0, errors.Wrapf(ErrInvalidOption, "unknown strategy %q", name)
}

// Allocator specifies an interface for allocating and releasing the slot
// arrays used by a Map. A Map allocates one array in New and, under Cuckoo,
// one scratch array per rebuild attempt. Every array is passed back to
// FreeSlots exactly once: a failed rebuild attempt frees its scratch array, a
// successful one frees the array it replaced, and Close frees the live one.
// The default allocator utilizes Go's builtin make() and allows the GC to
// reclaim memory.
type Allocator[V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[V], n).
	AllocSlots(n int) []Slot[V]

	// FreeSlots can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocSlots.
	FreeSlots(v []Slot[V])
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) AllocSlots(n int) []Slot[V] {
	return make([]Slot[V], n)
}

func (defaultAllocator[V]) FreeSlots([]Slot[V]) {
}

// settings collects the options applied by New.
type settings struct {
	strategy Strategy
	hasher   Hasher
	// allocator holds an Allocator[V] for the V of the Map being built.
	allocator        any
	rand             *rand.Rand
	logger           *zap.Logger
	maxDisplacements int
	maxRebuilds      int
}

func defaultSettings(capacity int) settings {
	return settings{
		strategy:         DoubleHashing,
		maxDisplacements: max(capacity, defaultMinDisplacements),
		maxRebuilds:      defaultMaxRebuilds,
	}
}

func (s *settings) validate() error {
	switch {
	case s.strategy != DoubleHashing && s.strategy != Cuckoo:
		return errors.Wrapf(ErrInvalidOption, "unknown strategy %s", s.strategy)
	case s.maxDisplacements < 1:
		return errors.Wrapf(ErrInvalidOption, "max displacements %d < 1", s.maxDisplacements)
	case s.maxRebuilds < 0:
		return errors.Wrapf(ErrInvalidOption, "max rebuilds %d < 0", s.maxRebuilds)
	}
	return nil
}

// Option configures a Map while it is being created.
type Option interface {
	apply(s *settings)
}

type strategyOption Strategy

func (op strategyOption) apply(s *settings) {
	s.strategy = Strategy(op)
}

// WithStrategy selects the collision resolution strategy. The default is
// DoubleHashing.
func WithStrategy(strategy Strategy) Option {
	return strategyOption(strategy)
}

type hasherOption struct {
	hasher Hasher
}

func (op hasherOption) apply(s *settings) {
	s.hasher = op.hasher
}

// WithHasher specifies the hash function pair. The default is DJB for
// DoubleHashing and CharSum for Cuckoo.
func WithHasher(hasher Hasher) Option {
	return hasherOption{hasher}
}

type randOption struct {
	rand *rand.Rand
}

func (op randOption) apply(s *settings) {
	s.rand = op.rand
}

// WithRand specifies the random source used to draw hash modifiers. Passing
// a seeded source makes modifier draws, and therefore slot placement,
// reproducible.
func WithRand(r *rand.Rand) Option {
	return randOption{r}
}

type loggerOption struct {
	logger *zap.Logger
}

func (op loggerOption) apply(s *settings) {
	s.logger = op.logger
}

// WithLogger specifies the logger for construction, destruction and rebuild
// events. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return loggerOption{logger}
}

type maxDisplacementsOption int

func (op maxDisplacementsOption) apply(s *settings) {
	s.maxDisplacements = int(op)
}

// WithMaxDisplacements bounds the placement attempts of one cuckoo eviction
// chain before a rebuild is triggered. The default is the capacity, but at
// least 16.
func WithMaxDisplacements(n int) Option {
	return maxDisplacementsOption(n)
}

type maxRebuildsOption int

func (op maxRebuildsOption) apply(s *settings) {
	s.maxRebuilds = int(op)
}

// WithMaxRebuilds bounds the rebuild attempts made by one cuckoo Set before
// it gives up with ErrRebuildLimitExceeded. The default is 16. Zero disables
// rebuilding.
func WithMaxRebuilds(n int) Option {
	return maxRebuildsOption(n)
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(s *settings) {
	s.allocator = op.allocator
}

// WithAllocator specifies the Allocator for the slot arrays of a Map[V]. New
// fails with ErrInvalidOption if V does not match the map's value type.
func WithAllocator[V any](allocator Allocator[V]) Option {
	return allocatorOption[V]{allocator}
}

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

	"github.com/cespare/xxhash/v2"
)

// Modifiers perturb a Hasher so that two tables hashing the same keys, or
// one table before and after a rebuild, place them differently.
type Modifiers struct {
	First  uint64
	Second uint64
}

func (m Modifiers) String() string {
	return fmt.Sprintf("first=%d second=%d", m.First, m.Second)
}

// Hasher computes the pair of hash values a strategy needs for a key. Both
// results must be < size. Under double hashing primary is the start slot and
// secondary the probe stride; under cuckoo hashing they are the two
// candidate slots.
//
// A Hasher must be a pure function of its arguments: the per-table state
// lives in the Modifiers, which the Map owns and redraws on rebuild.
type Hasher interface {
	Hash(key string, mods Modifiers, size uint64) (primary, secondary uint64)
	// Modifiers draws a fresh pair of modifiers for a table of the given
	// size.
	Modifiers(r *rand.Rand, size uint64) Modifiers
}

// DJB is the double-hashing default: the DJB accumulator (hash*33 + c,
// seeded with 5381) for the start slot and the byte sum for the stride.
// Modifiers are ignored.
type DJB struct{}

// Hash implements Hasher.
func (DJB) Hash(key string, _ Modifiers, size uint64) (uint64, uint64) {
	h := uint64(5381)
	var sum uint64
	for i := 0; i < len(key); i++ {
		c := uint64(key[i])
		h = (h << 5) + h + c
		sum += c
	}
	return h % size, sum % size
}

// Modifiers implements Hasher.
func (DJB) Modifiers(*rand.Rand, uint64) Modifiers {
	return Modifiers{}
}

// CharSum is the cuckoo default: the byte sum of the key shifted by each
// modifier. Because both candidates derive from the same sum they always
// differ by (Second-First) mod size, so Modifiers never lets that distance
// be zero.
type CharSum struct{}

// Hash implements Hasher.
func (CharSum) Hash(key string, mods Modifiers, size uint64) (uint64, uint64) {
	var sum uint64
	for i := 0; i < len(key); i++ {
		sum += uint64(key[i])
	}
	return (sum + mods.First) % size, (sum + mods.Second) % size
}

// Modifiers implements Hasher. First is drawn from [0, 2*size) and Second
// from [0, 3*size).
func (CharSum) Modifiers(r *rand.Rand, size uint64) Modifiers {
	m := Modifiers{First: r.Uint64N(2 * size)}
	for {
		m.Second = r.Uint64N(3 * size)
		if size == 1 || (m.Second+size-m.First%size)%size != 0 {
			return m
		}
	}
}

// XXHash hashes the key once with xxhash and derives both values by mixing
// the digest with each modifier.
type XXHash struct{}

// Hash implements Hasher.
func (XXHash) Hash(key string, mods Modifiers, size uint64) (uint64, uint64) {
	h := xxhash.Sum64String(key)
	return fmix64(h^mods.First) % size, fmix64(h^mods.Second) % size
}

// Modifiers implements Hasher.
func (XXHash) Modifiers(r *rand.Rand, _ uint64) Modifiers {
	m := Modifiers{First: r.Uint64(), Second: r.Uint64()}
	for m.Second == m.First {
		m.Second = r.Uint64()
	}
	return m
}

// fmix64 is the murmur3 64-bit finalizer.
func fmix64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

// hashSet binds a Hasher to the modifiers currently in force for one table.
type hashSet struct {
	fn   Hasher
	mods Modifiers
	size uint64
}

func (h *hashSet) hash(key string) (uint64, uint64) {
	return h.fn.Hash(key, h.mods, h.size)
}

func (h *hashSet) reseed(r *rand.Rand) {
	h.mods = h.fn.Modifiers(r, h.size)
}

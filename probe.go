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

import "fmt"

// probeSeq maintains the state for a double hashing probe sequence:
//
//	p(i) := start + i*stride (mod size),  0 <= i < size
//
// The sequence always runs for exactly size steps. When stride and size are
// not coprime it cycles through a subset of the table more than once, so a
// key can be rejected while slots off its sequence are still free.
type probeSeq struct {
	size   uint64
	stride uint64
	offset uint64
	index  uint64
}

func makeProbeSeq(start, stride, size uint64) probeSeq {
	// A zero stride would inspect the start slot size times.
	if stride%size == 0 {
		stride = 1
	}
	return probeSeq{
		size:   size,
		stride: stride % size,
		offset: start % size,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + s.stride) % s.size
	return s
}

func (s probeSeq) done() bool {
	return s.index >= s.size
}

func (s probeSeq) String() string {
	return fmt.Sprintf("size=%d stride=%d offset=%d index=%d", s.size, s.stride, s.offset, s.index)
}

// candidates are the only two slots a key may occupy under cuckoo hashing.
// first and second may coincide.
type candidates struct {
	first, second uint64
}

func makeCandidates(h *hashSet, key string) candidates {
	first, second := h.hash(key)
	return candidates{first: first, second: second}
}

// alternate returns the candidate other than i. A key evicted from its first
// slot moves to its second and vice versa.
func (c candidates) alternate(i uint64) uint64 {
	if i == c.first {
		return c.second
	}
	return c.first
}

func (c candidates) contains(i uint64) bool {
	return i == c.first || i == c.second
}

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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeSeq(t *testing.T) {
	genSeq := func(n int, seq probeSeq) []uint64 {
		var offsets []uint64
		for i := 0; i < n; i++ {
			offsets = append(offsets, seq.offset)
			seq = seq.next()
		}
		return offsets
	}
	genDone := func(seq probeSeq) int {
		var n int
		for ; !seq.done(); seq = seq.next() {
			n++
		}
		return n
	}

	// A stride coprime with the size visits every slot once.
	require.Equal(t, []uint64{0, 7, 4, 1, 8, 5, 2, 9, 6, 3},
		genSeq(10, makeProbeSeq(0, 7, 10)))
	require.Equal(t, 10, genDone(makeProbeSeq(0, 7, 10)))

	// A zero stride becomes a linear probe.
	require.Equal(t, []uint64{4, 5, 6, 7, 8, 9, 0, 1, 2, 3},
		genSeq(10, makeProbeSeq(4, 0, 10)))
	require.Equal(t, []uint64{4, 5, 6}, genSeq(3, makeProbeSeq(4, 10, 10)))

	// A stride sharing a factor with the size revisits a subset.
	require.Equal(t, []uint64{1, 5, 9, 3, 7, 1, 5, 9, 3, 7},
		genSeq(10, makeProbeSeq(1, 4, 10)))
	require.Equal(t, 10, genDone(makeProbeSeq(1, 4, 10)))

	require.Equal(t, []uint64{0}, genSeq(1, makeProbeSeq(0, 0, 1)))
	require.Equal(t, 1, genDone(makeProbeSeq(0, 0, 1)))
}

func TestCandidates(t *testing.T) {
	c := candidates{first: 3, second: 8}
	require.EqualValues(t, 8, c.alternate(3))
	require.EqualValues(t, 3, c.alternate(8))
	require.True(t, c.contains(3))
	require.True(t, c.contains(8))
	require.False(t, c.contains(4))

	same := candidates{first: 2, second: 2}
	require.EqualValues(t, 2, same.alternate(2))
}

func TestDJB(t *testing.T) {
	testCases := []struct {
		key  string
		size uint64
		want [2]uint64
	}{
		{"a", 10, [2]uint64{0, 7}},
		{"b", 10, [2]uint64{1, 8}},
		{"", 10, [2]uint64{1, 0}},
		{"", 7, [2]uint64{5, 0}},
		{"ab", 1000, [2]uint64{208, 195}},
	}
	for _, c := range testCases {
		t.Run(fmt.Sprintf("%q/%d", c.key, c.size), func(t *testing.T) {
			p, s := DJB{}.Hash(c.key, Modifiers{}, c.size)
			require.Equal(t, c.want, [2]uint64{p, s})
		})
	}

	// Modifiers are ignored.
	p, s := DJB{}.Hash("hello", Modifiers{First: 11, Second: 12}, 97)
	p0, s0 := DJB{}.Hash("hello", Modifiers{}, 97)
	require.Equal(t, p0, p)
	require.Equal(t, s0, s)
	require.Equal(t, Modifiers{}, DJB{}.Modifiers(seeded(1), 97))
}

func TestCharSum(t *testing.T) {
	// "a" sums to 97.
	p, s := CharSum{}.Hash("a", Modifiers{First: 3, Second: 5}, 10)
	require.EqualValues(t, 0, p)
	require.EqualValues(t, 2, s)

	// Anagrams share both candidates.
	p1, s1 := CharSum{}.Hash("ab", Modifiers{First: 1, Second: 2}, 13)
	p2, s2 := CharSum{}.Hash("ba", Modifiers{First: 1, Second: 2}, 13)
	require.Equal(t, p1, p2)
	require.Equal(t, s1, s2)

	r := seeded(42)
	for _, size := range []uint64{1, 2, 3, 5, 10, 64, 1000} {
		for i := 0; i < 200; i++ {
			m := CharSum{}.Modifiers(r, size)
			require.Less(t, m.First, 2*size)
			require.Less(t, m.Second, 3*size)
			if size == 1 {
				continue
			}
			require.NotZero(t, (m.Second+size-m.First%size)%size, "size=%d %s", size, m)
			// With a non-zero distance the two candidates never coincide.
			for _, key := range []string{"", "a", "xyz", "hello world"} {
				p, s := CharSum{}.Hash(key, m, size)
				require.NotEqual(t, p, s, "key=%q size=%d %s", key, size, m)
			}
		}
	}
}

func TestXXHash(t *testing.T) {
	r := seeded(7)
	m := XXHash{}.Modifiers(r, 100)
	require.NotEqual(t, m.First, m.Second)

	p1, s1 := XXHash{}.Hash("key", m, 100)
	p2, s2 := XXHash{}.Hash("key", m, 100)
	require.Equal(t, p1, p2)
	require.Equal(t, s1, s2)
	require.Less(t, p1, uint64(100))
	require.Less(t, s1, uint64(100))

	// Fresh modifiers should move at least some keys.
	m2 := XXHash{}.Modifiers(r, 100)
	var moved int
	for i := 0; i < 100; i++ {
		key := fmt.Sprint(i)
		a, _ := XXHash{}.Hash(key, m, 100)
		b, _ := XXHash{}.Hash(key, m2, 100)
		if a != b {
			moved++
		}
	}
	require.Greater(t, moved, 50)
}

func TestHashSetReseed(t *testing.T) {
	h := hashSet{fn: XXHash{}, size: 64}
	require.Equal(t, Modifiers{}, h.mods)
	h.reseed(seeded(3))
	first := h.mods
	require.NotEqual(t, Modifiers{}, first)

	// The same seed draws the same modifiers.
	g := hashSet{fn: XXHash{}, size: 64}
	g.reseed(seeded(3))
	require.Equal(t, first, g.mods)

	p, s := h.hash("k")
	ep, es := XXHash{}.Hash("k", first, 64)
	require.Equal(t, ep, p)
	require.Equal(t, es, s)
}

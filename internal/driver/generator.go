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

package driver

import (
	"math/rand/v2"
	"strings"
)

const lowercase = "abcdefghijklmnopqrstuvwxyz"

// generator produces random lowercase strings.
type generator struct {
	r *rand.Rand
	b strings.Builder
}

func (g *generator) randString(n int) string {
	g.b.Reset()
	g.b.Grow(n)
	for i := 0; i < n; i++ {
		g.b.WriteByte(lowercase[g.r.IntN(len(lowercase))])
	}
	return g.b.String()
}

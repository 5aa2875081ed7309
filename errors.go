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

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidCapacity is returned by New for a capacity <= 0.
	ErrInvalidCapacity = errors.New("fixedmap: capacity must be positive")

	// ErrInvalidOption is returned by New when an option carries an
	// unusable value.
	ErrInvalidOption = errors.New("fixedmap: invalid option")

	// ErrCapacityExhausted is returned by Set under double hashing when a
	// full walk of the key's probe sequence finds neither a vacancy nor the
	// key itself. The table may still have free slots off that sequence.
	ErrCapacityExhausted = errors.New("fixedmap: capacity exhausted along probe path")

	// ErrRebuildLimitExceeded is returned by Set under cuckoo hashing when
	// every rebuild attempt failed to place all entries. The map is left as
	// it was before the call.
	ErrRebuildLimitExceeded = errors.New("fixedmap: rebuild limit exceeded")
)

// errDisplacementLimit marks an eviction chain that ran past the
// displacement bound while refilling a table. It is logged as the cause of
// each rebuild attempt and never reaches the caller.
var errDisplacementLimit = errors.New("fixedmap: displacement limit exceeded")

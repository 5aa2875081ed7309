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
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lni/goutils/leaktest"
)

func TestMain(m *testing.M) {
	// ants starts the background goroutines of its package-level pool from
	// init. Until they are scheduled leaktest does not see them, and the
	// first leak check of the package would then report them.
	if err := waitForGoroutines(5*time.Second,
		"ants/v2.(*Pool).purgeStaleWorkers", "ants/v2.(*Pool).ticktock"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// waitForGoroutines blocks until, for every fn, a goroutine running fn is
// visible to leaktest, so that later leak checks treat it as pre-existing.
func waitForGoroutines(timeout time.Duration, fns ...string) error {
	deadline := time.Now().Add(timeout)
	for {
		var missing []string
		gs := leaktest.GetInterestedGoroutines()
		for _, fn := range fns {
			found := false
			for _, stack := range gs {
				if strings.Contains(stack, fn) {
					found = true
					break
				}
			}
			if !found {
				missing = append(missing, fn)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Newf("goroutines not started after %s: %v", timeout, missing)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

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
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/arcticmatt/fixedmap"
	"github.com/lni/goutils/leaktest"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Capacity = 257
	cfg.Items = 100
	cfg.Trials = 4
	cfg.Workers = 2
	return cfg
}

// withoutElapsed zeroes the only field that differs between identical runs.
func withoutElapsed(reports []Report) []Report {
	out := make([]Report, len(reports))
	for i, r := range reports {
		r.Elapsed = 0
		out[i] = r
	}
	return out
}

func TestGenerator(t *testing.T) {
	g := &generator{r: rand.New(rand.NewPCG(1, 2))}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := g.randString(7)
		require.Len(t, s, 7)
		require.Equal(t, "", strings.Trim(s, lowercase))
		seen[s] = true
	}
	require.Greater(t, len(seen), 90)
	require.Equal(t, "", g.randString(0))

	// Same seed, same strings.
	a := &generator{r: rand.New(rand.NewPCG(5, 5))}
	b := &generator{r: rand.New(rand.NewPCG(5, 5))}
	for i := 0; i < 10; i++ {
		require.Equal(t, a.randString(12), b.randString(12))
	}
}

func TestRun(t *testing.T) {
	defer leaktest.AfterTest(t)()

	for _, strategy := range []string{"double", "cuckoo"} {
		t.Run(strategy, func(t *testing.T) {
			cfg := testConfig()
			cfg.Strategy = strategy
			cfg.Hash = "xxhash"
			cfg.Seed = 7
			reports, err := Run(context.Background(), cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			require.Len(t, reports, cfg.Trials)
			for i, r := range reports {
				require.Equal(t, i, r.Trial)
				require.Equal(t, strategy, r.Strategy.String())
				require.Equal(t, cfg.Capacity, r.Capacity)
				require.Equal(t, cfg.Items, r.Inserted+r.Failed)
				require.Zero(t, r.Failed)
				require.InDelta(t, float64(cfg.Items)/float64(cfg.Capacity), r.Load, 1e-9)
				line := r.String()
				require.Contains(t, line, "strategy="+strategy)
				require.Contains(t, line, "inserted=100")
			}
		})
	}
}

func TestRunDeterministic(t *testing.T) {
	defer leaktest.AfterTest(t)()

	stubs := gostub.Stub(&seedSource, func() uint64 { return 12345 })
	defer stubs.Reset()

	cfg := testConfig()
	cfg.Strategy = "cuckoo"
	cfg.Hash = "xxhash"
	cfg.Capacity = 64
	cfg.Items = 60
	first, err := Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	cfg.Workers = 4
	second, err := Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, withoutElapsed(first), withoutElapsed(second))

	// An explicit seed takes precedence over the seed source.
	cfg.Seed = 12345
	third, err := Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, withoutElapsed(first), withoutElapsed(third))
}

func TestRunOverfill(t *testing.T) {
	defer leaktest.AfterTest(t)()

	cfg := testConfig()
	cfg.Capacity = 13
	cfg.Items = 40
	cfg.Seed = 3

	cfg.Strategy = "double"
	reports, err := Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	for _, r := range reports {
		require.Equal(t, 13, r.Inserted)
		require.Equal(t, 27, r.Failed)
		require.Equal(t, 1.0, r.Load)
	}

	cfg.Strategy = "cuckoo"
	cfg.MaxRebuilds = 2
	reports, err = Run(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	for _, r := range reports {
		require.Equal(t, cfg.Items, r.Inserted+r.Failed)
		require.Positive(t, r.Failed)
		require.LessOrEqual(t, r.Inserted, 13)
		require.EqualValues(t, r.Failed, r.Stats.RebuildFailures)
		require.Equal(t, float64(r.Inserted)/13, r.Load)
	}
}

func TestRunCanceled(t *testing.T) {
	defer leaktest.AfterTest(t)()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testConfig(), zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = "linear"
	_, err := Run(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, fixedmap.ErrInvalidOption)
}

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
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/arcticmatt/fixedmap"
	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// checkEvery is how many Set calls a trial makes between context checks.
const checkEvery = 1024

// seedSource supplies the run seed when Config.Seed is zero.
var seedSource = rand.Uint64

// Report summarizes one trial.
type Report struct {
	Trial    int
	Strategy fixedmap.Strategy
	Capacity int
	// Inserted counts Set calls that succeeded, Failed those that returned
	// ErrCapacityExhausted or ErrRebuildLimitExceeded.
	Inserted int
	Failed   int
	Load     float64
	Elapsed  time.Duration
	Stats    fixedmap.Stats
}

func (r Report) String() string {
	return fmt.Sprintf(
		"trial=%d strategy=%s capacity=%d inserted=%d failed=%d load=%.4f elapsed=%s displacements=%d rebuilds=%d",
		r.Trial, r.Strategy, r.Capacity, r.Inserted, r.Failed, r.Load, r.Elapsed,
		r.Stats.Displacements, r.Stats.Rebuilds)
}

// Run executes cfg.Trials independent trials on a pool of cfg.Workers
// goroutines and returns their reports in trial order. Every trial owns its
// map and random sources, both derived from the run seed, so a fixed seed
// reproduces every report except Elapsed.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) ([]Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = seedSource()
	}
	logger.Info("starting run",
		zap.Uint64("seed", seed),
		zap.Int("trials", cfg.Trials),
		zap.Int("workers", cfg.Workers),
		zap.Int("capacity", cfg.Capacity),
		zap.String("strategy", cfg.Strategy))

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	pool, err := ants.NewPool(cfg.Workers,
		ants.WithDisablePurge(true),
		ants.WithPanicHandler(func(v interface{}) {
			mu.Lock()
			errs = append(errs, errors.Newf("trial panicked: %v", v))
			mu.Unlock()
			wg.Done()
		}))
	if err != nil {
		return nil, errors.Wrap(err, "creating worker pool")
	}
	defer func() {
		if err := pool.ReleaseTimeout(5 * time.Second); err != nil {
			logger.Warn("releasing worker pool", zap.Error(err))
		}
	}()

	reports := make([]Report, cfg.Trials)
	for i := range reports {
		trial := i
		wg.Add(1)
		// A panicking trial never reaches wg.Done here; the pool's panic
		// handler calls it instead.
		err := pool.Submit(func() {
			r, err := runTrial(ctx, &cfg, trial, seed, logger)
			mu.Lock()
			if err != nil {
				errs = append(errs, err)
			} else {
				reports[trial] = r
			}
			mu.Unlock()
			wg.Done()
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, errors.Wrapf(err, "submitting trial %d", trial))
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	var runErr error
	for _, err := range errs {
		runErr = errors.CombineErrors(runErr, err)
	}
	if runErr != nil {
		return nil, runErr
	}
	return reports, nil
}

func runTrial(
	ctx context.Context, cfg *Config, trial int, seed uint64, logger *zap.Logger,
) (Report, error) {
	logger = logger.With(zap.Int("trial", trial))
	keys := &generator{r: rand.New(rand.NewPCG(seed, uint64(2*trial)))}
	opts, err := cfg.mapOptions(rand.New(rand.NewPCG(seed, uint64(2*trial+1))), logger)
	if err != nil {
		return Report{}, err
	}
	m, err := fixedmap.New[string](cfg.Capacity, opts...)
	if err != nil {
		return Report{}, errors.Wrapf(err, "trial %d", trial)
	}
	defer m.Close()

	r := Report{Trial: trial, Strategy: m.Strategy(), Capacity: m.Cap()}
	start := time.Now()
	for n := 0; n < cfg.items(); n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Report{}, errors.Wrapf(err, "trial %d", trial)
			}
		}
		key := keys.randString(cfg.KeyLength)
		value := keys.randString(cfg.ValueLength)
		switch err := m.Set(key, value); {
		case err == nil:
			r.Inserted++
		case errors.Is(err, fixedmap.ErrCapacityExhausted),
			errors.Is(err, fixedmap.ErrRebuildLimitExceeded):
			r.Failed++
			logger.Debug("set failed", zap.String("key", key), zap.Error(err))
		default:
			return Report{}, errors.Wrapf(err, "trial %d", trial)
		}
	}
	r.Elapsed = time.Since(start)
	r.Load = m.Load()
	r.Stats = m.Stats()

	logger.Info("trial finished",
		zap.Int("inserted", r.Inserted),
		zap.Int("failed", r.Failed),
		zap.Float64("load", r.Load),
		zap.Duration("elapsed", r.Elapsed))
	return r, nil
}

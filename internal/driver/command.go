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

// Package driver fills fixedmap tables with random data and reports how
// full they got and how long it took.
package driver

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// NewCommand returns the hashfill command. Settings are layered: defaults,
// then the --config file, then the capacity argument and explicitly set
// flags.
func NewCommand() *cobra.Command {
	def := DefaultConfig()
	cmd := &cobra.Command{
		Use:   "hashfill [capacity]",
		Short: "Fill a fixed-capacity hash map with random keys",
		Long: "Fill a fixed-capacity hash map with random lowercase keys and values,\n" +
			"then print one line per trial with the load factor, fill time and\n" +
			"cuckoo displacement counters.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, args)
			if err != nil {
				return err
			}
			logger, closeLogger, err := NewLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = closeLogger() }()

			reports, err := Run(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			for _, r := range reports {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "TOML config file")
	flags.String("strategy", def.Strategy, "collision resolution: double or cuckoo")
	flags.String("hash", def.Hash, "hash functions: default, djb, charsum or xxhash")
	flags.Int("items", def.Items, "Set calls per trial (0 means capacity)")
	flags.Int("trials", def.Trials, "number of independent trials")
	flags.Int("workers", def.Workers, "trials run concurrently")
	flags.Uint64("seed", def.Seed, "random seed (0 draws one)")
	flags.Int("key-length", def.KeyLength, "length of generated keys")
	flags.Int("value-length", def.ValueLength, "length of generated values")
	flags.Int("max-displacements", def.MaxDisplacements,
		"cuckoo evictions before a rebuild (0 means max(capacity, 16))")
	flags.Int("max-rebuilds", def.MaxRebuilds, "cuckoo rebuild attempts per Set")
	flags.String("log-level", def.Log.Level, "log level")
	return cmd
}

func buildConfig(cmd *cobra.Command, args []string) (Config, error) {
	cfg := DefaultConfig()
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := LoadConfig(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if len(args) == 1 {
		capacity, err := strconv.Atoi(args[0])
		if err != nil {
			return Config{}, errors.Wrapf(err, "capacity %q", args[0])
		}
		cfg.Capacity = capacity
	}

	stringFlags := map[string]*string{
		"strategy":  &cfg.Strategy,
		"hash":      &cfg.Hash,
		"log-level": &cfg.Log.Level,
	}
	for name, dst := range stringFlags {
		if flags.Changed(name) {
			if *dst, err = flags.GetString(name); err != nil {
				return Config{}, err
			}
		}
	}
	intFlags := map[string]*int{
		"items":             &cfg.Items,
		"trials":            &cfg.Trials,
		"workers":           &cfg.Workers,
		"key-length":        &cfg.KeyLength,
		"value-length":      &cfg.ValueLength,
		"max-displacements": &cfg.MaxDisplacements,
		"max-rebuilds":      &cfg.MaxRebuilds,
	}
	for name, dst := range intFlags {
		if flags.Changed(name) {
			if *dst, err = flags.GetInt(name); err != nil {
				return Config{}, err
			}
		}
	}
	if flags.Changed("seed") {
		if cfg.Seed, err = flags.GetUint64("seed"); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

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

	"github.com/BurntSushi/toml"
	"github.com/arcticmatt/fixedmap"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures the driver's logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// Filename, when set, sends logs to a rotated file instead of stderr.
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"`
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`
}

// Config describes a fill run: the map under test and the workload thrown
// at it.
type Config struct {
	Capacity int    `toml:"capacity"`
	Strategy string `toml:"strategy"`
	// Hash is one of default, djb, charsum or xxhash. default picks the
	// strategy's own hasher.
	Hash string `toml:"hash"`
	// Items is the number of Set calls per trial. Zero means Capacity.
	Items   int `toml:"items"`
	Trials  int `toml:"trials"`
	Workers int `toml:"workers"`
	// Seed makes a run reproducible. Zero draws a fresh seed.
	Seed        uint64 `toml:"seed"`
	KeyLength   int    `toml:"key-length"`
	ValueLength int    `toml:"value-length"`
	// MaxDisplacements of zero keeps the map's default.
	MaxDisplacements int `toml:"max-displacements"`
	MaxRebuilds      int `toml:"max-rebuilds"`

	Log LogConfig `toml:"log"`
}

// DefaultConfig fills a 10000 slot double hashing map with random seven
// letter keys and values.
func DefaultConfig() Config {
	return Config{
		Capacity:    10000,
		Strategy:    fixedmap.DoubleHashing.String(),
		Hash:        "default",
		Trials:      1,
		Workers:     1,
		KeyLength:   7,
		ValueLength: 7,
		MaxRebuilds: 16,
		Log: LogConfig{
			Level:   zapcore.InfoLevel.String(),
			Format:  "console",
			MaxSize: 512,
		},
	}
}

// LoadConfig decodes the TOML file at path over cfg. Keys the file sets
// replace the values already in cfg; unknown keys are an error.
func LoadConfig(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Wrapf(err, "loading config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.Newf("config %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Validate checks that every field is in range.
func (c *Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.Newf("capacity %d must be positive", c.Capacity)
	case c.Items < 0:
		return errors.Newf("items %d must not be negative", c.Items)
	case c.Trials < 1:
		return errors.Newf("trials %d must be at least 1", c.Trials)
	case c.Workers < 1:
		return errors.Newf("workers %d must be at least 1", c.Workers)
	case c.KeyLength < 1:
		return errors.Newf("key length %d must be at least 1", c.KeyLength)
	case c.ValueLength < 0:
		return errors.Newf("value length %d must not be negative", c.ValueLength)
	case c.MaxDisplacements < 0:
		return errors.Newf("max displacements %d must not be negative", c.MaxDisplacements)
	case c.MaxRebuilds < 0:
		return errors.Newf("max rebuilds %d must not be negative", c.MaxRebuilds)
	}
	if _, err := fixedmap.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if _, err := parseHasher(c.Hash); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Newf("log format %q must be console or json", c.Log.Format)
	}
	return nil
}

func (c *Config) items() int {
	if c.Items == 0 {
		return c.Capacity
	}
	return c.Items
}

func parseHasher(name string) (fixedmap.Hasher, error) {
	switch name {
	case "default", "":
		return nil, nil
	case "djb":
		return fixedmap.DJB{}, nil
	case "charsum":
		return fixedmap.CharSum{}, nil
	case "xxhash":
		return fixedmap.XXHash{}, nil
	}
	return nil, errors.Wrapf(fixedmap.ErrInvalidOption, "unknown hash %q", name)
}

// mapOptions translates c into options for fixedmap.New. c must be valid.
func (c *Config) mapOptions(r *rand.Rand, logger *zap.Logger) ([]fixedmap.Option, error) {
	strategy, err := fixedmap.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	hasher, err := parseHasher(c.Hash)
	if err != nil {
		return nil, err
	}
	opts := []fixedmap.Option{
		fixedmap.WithStrategy(strategy),
		fixedmap.WithRand(r),
		fixedmap.WithLogger(logger),
		fixedmap.WithMaxRebuilds(c.MaxRebuilds),
	}
	if hasher != nil {
		opts = append(opts, fixedmap.WithHasher(hasher))
	}
	if c.MaxDisplacements > 0 {
		opts = append(opts, fixedmap.WithMaxDisplacements(c.MaxDisplacements))
	}
	return opts, nil
}

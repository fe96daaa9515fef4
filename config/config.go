// Package config loads seg16 settings from a TOML file and the environment.
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/seg16/errors"
	"github.com/wippyai/seg16/memory"
)

// Environment variables that override file settings.
const (
	EnvBackend   = "SEG16_BACKEND"
	EnvBuckets   = "SEG16_BUCKETS"
	EnvLogLevel  = "SEG16_LOG_LEVEL"
	EnvStackSize = "SEG16_STACK_SIZE"
	EnvUserHeap  = "SEG16_USER_HEAP"
)

const (
	maxSegment = 0x10000
	minSegment = 0x40
	maxBuckets = 32766
)

// Config holds all runtime settings.
type Config struct {
	Memory MemoryConfig `toml:"memory"`
	Atoms  AtomConfig   `toml:"atoms"`
	Heap   HeapConfig   `toml:"heap"`
	Stack  StackConfig  `toml:"stack"`
	Log    LogConfig    `toml:"log"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `toml:"-"`
}

// MemoryConfig selects the linear memory backend.
type MemoryConfig struct {
	Backend      string `toml:"backend"`
	InitialPages uint32 `toml:"initial_pages"`
}

// AtomConfig configures atom tables.
type AtomConfig struct {
	Buckets uint16 `toml:"buckets"`
}

// HeapConfig sizes the heap segments created at startup.
type HeapConfig struct {
	UserHeapSize    uint32 `toml:"user_heap_size"`
	DataSegmentSize uint32 `toml:"data_segment_size"`
}

// StackConfig sizes the 16-bit and flat stacks.
type StackConfig struct {
	Size     uint32 `toml:"size"`
	FlatSize uint32 `toml:"flat_size"`
}

// LogConfig configures the zap logger built by Logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Memory: MemoryConfig{Backend: memory.BackendHeap, InitialPages: 1},
		Atoms:  AtomConfig{Buckets: 37},
		Heap:   HeapConfig{UserHeapSize: 0x1000, DataSegmentSize: 0x1000},
		Stack:  StackConfig{Size: 0x2000, FlatSize: 0x1000},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
				Path(path).
				Detail("cannot read config").
				Cause(err).
				Build()
		}
		if err := c.decode(data); err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
				Path(path).
				Detail("parse error").
				Cause(err).
				Build()
		}
		c.Path = path
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes TOML text over the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := c.decode(data); err != nil {
		return nil, errors.ParseFailed("config", err)
	}
	return c, c.Validate()
}

func (c *Config) decode(data []byte) error {
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides settings from SEG16_* environment variables.
// The env package caches the environment, so it is reloaded on every call.
func (c *Config) ApplyEnv() error {
	env.Load()
	if env.Has(EnvBackend) {
		c.Memory.Backend = env.Str(EnvBackend)
	}
	if env.Has(EnvLogLevel) {
		c.Log.Level = env.Str(EnvLogLevel)
	}
	if env.Has(EnvBuckets) {
		n := env.Int(EnvBuckets, -1)
		if n <= 0 || n > maxBuckets {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(EnvBuckets).
				Value(env.Str(EnvBuckets)).
				Detail("bucket count must be in 1..%d", maxBuckets).
				Build()
		}
		c.Atoms.Buckets = uint16(n)
	}
	if env.Has(EnvStackSize) {
		n := env.Int(EnvStackSize, -1)
		if n <= 0 {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(EnvStackSize).
				Value(env.Str(EnvStackSize)).
				Detail("stack size must be positive").
				Build()
		}
		c.Stack.Size = uint32(n)
	}
	if env.Has(EnvUserHeap) {
		n := env.Int(EnvUserHeap, -1)
		if n <= 0 {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(EnvUserHeap).
				Value(env.Str(EnvUserHeap)).
				Detail("user heap size must be positive").
				Build()
		}
		c.Heap.UserHeapSize = uint32(n)
	}
	return nil
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	switch c.Memory.Backend {
	case memory.BackendHeap, memory.BackendWazero, memory.BackendMapped:
	default:
		return errors.Unsupported(errors.PhaseConfig, "memory backend "+c.Memory.Backend)
	}
	if c.Atoms.Buckets == 0 || c.Atoms.Buckets > maxBuckets {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("atoms", "buckets").
			Value(c.Atoms.Buckets).
			Detail("must be in 1..%d", maxBuckets).
			Build()
	}
	sizes := []struct {
		path  []string
		value uint32
	}{
		{[]string{"heap", "user_heap_size"}, c.Heap.UserHeapSize},
		{[]string{"heap", "data_segment_size"}, c.Heap.DataSegmentSize},
		{[]string{"stack", "size"}, c.Stack.Size},
		{[]string{"stack", "flat_size"}, c.Stack.FlatSize},
	}
	for _, s := range sizes {
		if s.value < minSegment || s.value > maxSegment {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(s.path...).
				Value(s.value).
				Detail("segment size must be in %#x..%#x", minSegment, maxSegment).
				Build()
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	return nil
}

// Logger builds a zap logger from the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

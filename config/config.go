// Package config loads engine startup parameters from an INI file,
// following the teacher's own server/conf/config.go in spirit
// (gopkg.in/ini.v1, a Raw *ini.File kept alongside the typed fields),
// but scoped to the core engine rather than the full server.
package config

import (
	"time"

	"github.com/juju/errors"
	"gopkg.in/ini.v1"
)

// Config is the §6 startup(config) argument.
type Config struct {
	Raw *ini.File

	DataDir             string
	LogDir              string
	PageSize            uint32
	BufferPoolSizeBytes uint64

	LogFileSizeBytes uint64
	NumLogFiles      int

	FlushIntervalMillis    int64
	CheckpointIntervalSecs int64

	LockWaitTimeoutMillis  int64
	DeadlockDetectionDepth int

	ChecksumPages bool

	LogLevel string
}

// Default returns the configuration used when the engine is embedded
// without an explicit config file, e.g. in tests.
func Default() Config {
	return Config{
		Raw:                    ini.Empty(),
		DataDir:                "./data",
		LogDir:                 "./data/log",
		PageSize:               16 * 1024,
		BufferPoolSizeBytes:    128 * 1024 * 1024,
		LogFileSizeBytes:       48 * 1024 * 1024,
		NumLogFiles:            2,
		FlushIntervalMillis:    1000,
		CheckpointIntervalSecs: 30,
		LockWaitTimeoutMillis:  50 * 1000,
		DeadlockDetectionDepth: 200,
		ChecksumPages:          true,
		LogLevel:               "info",
	}
}

// Load reads an INI config file under an "[engine]" section, overlaying
// it on Default, the way the teacher's loadConfiguration reads its own
// mysqld/session sections from a single ini.File.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := ini.Load(path)
	if err != nil {
		return cfg, errors.Annotatef(err, "load config %s", path)
	}
	cfg.Raw = raw
	sec := raw.Section("engine")

	cfg.DataDir = valueAsString(sec, "data_dir", cfg.DataDir)
	cfg.LogDir = valueAsString(sec, "log_dir", cfg.LogDir)
	cfg.PageSize = uint32(valueAsInt64(sec, "page_size", int64(cfg.PageSize)))
	cfg.BufferPoolSizeBytes = uint64(valueAsInt64(sec, "buffer_pool_size_bytes", int64(cfg.BufferPoolSizeBytes)))
	cfg.LogFileSizeBytes = uint64(valueAsInt64(sec, "log_file_size_bytes", int64(cfg.LogFileSizeBytes)))
	cfg.NumLogFiles = int(valueAsInt64(sec, "num_log_files", int64(cfg.NumLogFiles)))
	cfg.FlushIntervalMillis = valueAsInt64(sec, "flush_interval_millis", cfg.FlushIntervalMillis)
	cfg.CheckpointIntervalSecs = valueAsInt64(sec, "checkpoint_interval_secs", cfg.CheckpointIntervalSecs)
	cfg.LockWaitTimeoutMillis = valueAsInt64(sec, "lock_wait_timeout_millis", cfg.LockWaitTimeoutMillis)
	cfg.DeadlockDetectionDepth = int(valueAsInt64(sec, "deadlock_detection_depth", int64(cfg.DeadlockDetectionDepth)))
	cfg.ChecksumPages = valueAsBool(sec, "checksum_pages", cfg.ChecksumPages)
	cfg.LogLevel = valueAsString(sec, "log_level", cfg.LogLevel)

	return cfg, nil
}

// valueAsString/valueAsInt64/valueAsBool mirror the teacher's own
// valueAsString helper in server/conf/config.go: a missing key falls
// back to the caller-supplied default rather than erroring, since an
// INI file is expected to set only the keys it wants to override.
func valueAsString(sec *ini.Section, key, def string) string {
	if sec == nil || !sec.HasKey(key) {
		return def
	}
	return sec.Key(key).String()
}

func valueAsInt64(sec *ini.Section, key string, def int64) int64 {
	if sec == nil || !sec.HasKey(key) {
		return def
	}
	v, err := sec.Key(key).Int64()
	if err != nil {
		return def
	}
	return v
}

func valueAsBool(sec *ini.Section, key string, def bool) bool {
	if sec == nil || !sec.HasKey(key) {
		return def
	}
	v, err := sec.Key(key).Bool()
	if err != nil {
		return def
	}
	return v
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMillis) * time.Millisecond
}

func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalSecs) * time.Second
}

func (c Config) LockWaitTimeout() time.Duration {
	return time.Duration(c.LockWaitTimeoutMillis) * time.Millisecond
}

// Package config loads the campusd server configuration from a TOML file.
// Every field has a working default so the server runs with no file at all.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nvelasco/campusd/auth"
)

// Duration is a time.Duration that unmarshals from TOML strings like "15m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full server configuration.
type Config struct {
	Listen  string        `toml:"listen"`
	DataDir string        `toml:"data_dir"`
	Log     LogConfig     `toml:"log"`
	Lockout LockoutConfig `toml:"lockout"`
	Session SessionConfig `toml:"session"`
	Hashing HashingConfig `toml:"hashing"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// LockoutConfig tunes the login attempt throttle.
type LockoutConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Duration    Duration `toml:"duration"`
	ResetWindow Duration `toml:"reset_window"`
}

// SessionConfig tunes session lifetimes.
type SessionConfig struct {
	AbsoluteTimeout Duration `toml:"absolute_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
}

// HashingConfig tunes the Argon2id credential hasher.
type HashingConfig struct {
	Time        uint32 `toml:"time"`
	MemoryKiB   uint32 `toml:"memory_kib"`
	Parallelism uint8  `toml:"parallelism"`
}

// Default returns the built-in configuration.
func Default() Config {
	params := auth.DefaultArgon2idParams()
	return Config{
		Listen:  ":8080",
		DataDir: "./data",
		Log:     LogConfig{Level: "info", Format: "json"},
		Lockout: LockoutConfig{
			MaxAttempts: auth.DefaultMaxAttempts,
			Duration:    Duration(auth.DefaultLockoutDuration),
			ResetWindow: Duration(auth.DefaultAttemptResetWindow),
		},
		Session: SessionConfig{
			AbsoluteTimeout: Duration(auth.DefaultAbsoluteTimeout),
			IdleTimeout:     Duration(auth.DefaultIdleTimeout),
		},
		Hashing: HashingConfig{
			Time:        params.Time,
			MemoryKiB:   params.MemoryKiB,
			Parallelism: params.Parallelism,
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error; a present but unreadable or invalid file is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("loading config %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// Argon2idParams converts the hashing section to hasher parameters.
func (c Config) Argon2idParams() auth.Argon2idParams {
	p := auth.DefaultArgon2idParams()
	p.Time = c.Hashing.Time
	p.MemoryKiB = c.Hashing.MemoryKiB
	p.Parallelism = c.Hashing.Parallelism
	return p
}

func (c Config) validate() error {
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("lockout.max_attempts must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout.duration must be positive")
	}
	if c.Session.IdleTimeout <= 0 || c.Session.AbsoluteTimeout <= 0 {
		return errors.New("session timeouts must be positive")
	}
	if c.Session.IdleTimeout.Std() > c.Session.AbsoluteTimeout.Std() {
		return errors.New("session.idle_timeout must not exceed session.absolute_timeout")
	}
	if c.Hashing.Time < 1 || c.Hashing.MemoryKiB < 8 || c.Hashing.Parallelism < 1 {
		return errors.New("hashing parameters below safe minimums")
	}
	return nil
}

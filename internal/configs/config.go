package configs

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/faanross/simulacra_lsb/internal/chunker"
	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
)

type Config struct {
	Codec   CodecConfig   `toml:"codec"`
	History HistoryConfig `toml:"history"`
	Users   UsersConfig   `toml:"users"`
	Relay   RelayConfig   `toml:"relay"`
}

type CodecConfig struct {
	Workers       int    `toml:"workers"`
	MaxImageBytes int64  `toml:"max_image_bytes"`
	Cipher        string `toml:"cipher"`
	// Generated carriers are this many pixels wide.
	CarrierWidth int `toml:"carrier_width"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type UsersConfig struct {
	Path        string `toml:"path"`
	SessionPath string `toml:"session_path"`
}

type RelayConfig struct {
	DNSAddr        string `toml:"dns_addr"`
	HTTPAddr       string `toml:"http_addr"`
	Domain         string `toml:"domain"`
	Client         string `toml:"client"`
	StoragePath    string `toml:"storage_path"`
	RateLimitMS    int    `toml:"rate_limit_ms"`
	MaxRetries     int    `toml:"max_retries"`
	Encoding       string `toml:"encoding"`
	ChunkSize      int    `toml:"chunk_size"`
	RetentionHours int    `toml:"retention_hours"`
}

// RateLimit is RateLimitMS as a duration.
func (r RelayConfig) RateLimit() time.Duration {
	return time.Duration(r.RateLimitMS) * time.Millisecond
}

// Retention is RetentionHours as a duration.
func (r RelayConfig) Retention() time.Duration {
	return time.Duration(r.RetentionHours) * time.Hour
}

// HTTPURL is the base URL clients use to reach HTTPAddr.
func (r RelayConfig) HTTPURL() string {
	return "http://" + r.HTTPAddr
}

// Default returns the configuration used when no file exists.
func Default(s *Settings) *Config {
	return &Config{
		Codec: CodecConfig{
			Workers:       runtime.NumCPU(),
			MaxImageBytes: raster.DefaultMaxImageBytes,
			Cipher:        scrypto.CipherXOR,
			CarrierWidth:  64,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    s.HistoryPath(),
		},
		Users: UsersConfig{
			Path:        s.UsersPath(),
			SessionPath: s.SessionPath(),
		},
		Relay: RelayConfig{
			DNSAddr:        "127.0.0.1:5353",
			HTTPAddr:       "127.0.0.1:8080",
			Domain:         "relay.simulacra.local",
			Client:         "anon",
			StoragePath:    s.RelayStoragePath(),
			RateLimitMS:    50,
			MaxRetries:     3,
			Encoding:       chunker.EncodingBase32,
			ChunkSize:      chunker.DefaultPayload(chunker.EncodingBase32),
			RetentionHours: 24 * 7,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string, s *Settings) (*Config, error) {
	cfg := Default(s)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	if err := LoadTOML(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if err := SaveTOML(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate rejects values the codec or relay cannot run with.
func (c *Config) Validate() error {
	if c.Codec.Workers < 0 {
		return fmt.Errorf("codec.workers must not be negative")
	}
	if c.Codec.MaxImageBytes < 0 {
		return fmt.Errorf("codec.max_image_bytes must not be negative")
	}
	if c.Codec.CarrierWidth < 1 {
		return fmt.Errorf("codec.carrier_width must be positive")
	}
	if _, err := scrypto.ForCipher(c.Codec.Cipher); err != nil {
		return fmt.Errorf("codec.cipher: %w", err)
	}

	limit := chunker.MaxPayload(c.Relay.Encoding)
	if limit == 0 {
		return fmt.Errorf("relay.encoding %q is not hex or base32", c.Relay.Encoding)
	}
	if c.Relay.ChunkSize < 1 || c.Relay.ChunkSize > limit {
		return fmt.Errorf("relay.chunk_size %d outside 1..%d for %s", c.Relay.ChunkSize, limit, c.Relay.Encoding)
	}
	if c.Relay.Domain == "" {
		return fmt.Errorf("relay.domain is required")
	}
	if c.Relay.RateLimitMS < 0 || c.Relay.MaxRetries < 0 || c.Relay.RetentionHours < 0 {
		return fmt.Errorf("relay durations and retry counts must not be negative")
	}
	return nil
}

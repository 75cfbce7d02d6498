package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the neteqd server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	RTPPort     int
	StatsPort   int
	SampleRate  int
	NetworkType string // udp-normal, udp-video-sync, tcp-normal, tcp-large-jitter, tcp-xlarge-jitter
	LogLevel    string
	LogFormat   string // "text" or "json"
	CORSOrigins string
	JWTSecret   string // hex-encoded 32-byte secret for the stats API
}

// defaults
const (
	defaultDataDir     = "./data"
	defaultRTPPort     = 4000
	defaultStatsPort   = 8080
	defaultSampleRate  = 8000
	defaultNetworkType = "udp-normal"
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
)

// envPrefix is the prefix for all neteqd environment variables.
const envPrefix = "NETEQD_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("neteqd", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the stats database")
	fs.IntVar(&cfg.RTPPort, "rtp-port", defaultRTPPort, "UDP port to receive RTP/RTCP on")
	fs.IntVar(&cfg.StatsPort, "stats-port", defaultStatsPort, "HTTP port for the stats/metrics API")
	fs.IntVar(&cfg.SampleRate, "sample-rate", defaultSampleRate, "decoder sample rate in Hz (8000, 16000, 32000, 48000)")
	fs.StringVar(&cfg.NetworkType, "network-type", defaultNetworkType, "buffer sizing profile (udp-normal, udp-video-sync, tcp-normal, tcp-large-jitter, tcp-xlarge-jitter)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for stats API auth (auto-generated if empty)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":     envPrefix + "DATA_DIR",
		"rtp-port":     envPrefix + "RTP_PORT",
		"stats-port":   envPrefix + "STATS_PORT",
		"sample-rate":  envPrefix + "SAMPLE_RATE",
		"network-type": envPrefix + "NETWORK_TYPE",
		"log-level":    envPrefix + "LOG_LEVEL",
		"log-format":   envPrefix + "LOG_FORMAT",
		"cors-origins": envPrefix + "CORS_ORIGINS",
		"jwt-secret":   envPrefix + "JWT_SECRET",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "rtp-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPort = v
			}
		case "stats-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.StatsPort = v
			}
		case "sample-rate":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SampleRate = v
			}
		case "network-type":
			cfg.NetworkType = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "jwt-secret":
			cfg.JWTSecret = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.RTPPort < 1 || c.RTPPort > 65535 {
		return fmt.Errorf("rtp-port must be between 1 and 65535, got %d", c.RTPPort)
	}
	if c.StatsPort < 1 || c.StatsPort > 65535 {
		return fmt.Errorf("stats-port must be between 1 and 65535, got %d", c.StatsPort)
	}
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("sample-rate must be one of 8000, 16000, 32000, 48000; got %d", c.SampleRate)
	}
	switch c.NetworkType {
	case "udp-normal", "udp-video-sync", "tcp-normal", "tcp-large-jitter", "tcp-xlarge-jitter":
	default:
		return fmt.Errorf("network-type must be one of udp-normal, udp-video-sync, tcp-normal, tcp-large-jitter, tcp-xlarge-jitter; got %q", c.NetworkType)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret used by the
// stats API. If no secret is configured, it generates a random 32-byte key
// and stores the hex-encoded value back in the config for the process
// lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

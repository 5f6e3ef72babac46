package exprtmpl

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config contains all configuration options for the engine
type Config struct {
	// CacheMaxSize is the maximum number of compiled templates to cache. 0 disables caching.
	CacheMaxSize int
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL time.Duration
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string
	// MaxIncludeDepth limits how deeply imports may nest
	MaxIncludeDepth int
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func loadGlobalConfig() {
	configOnce.Do(func() {
		globalConfigMutex.Lock()
		if globalConfig == nil {
			globalConfig = ConfigFromEnvironment()
		}
		globalConfigMutex.Unlock()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize:    100,
		CacheTTL:        0,
		LogLevel:        "info",
		MaxIncludeDepth: 32,
	}
}

// ConfigFromEnvironment creates a configuration from environment variables.
// Unparsable values are ignored.
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	// EXPRTMPL_CACHE_MAX_SIZE
	if val := os.Getenv("EXPRTMPL_CACHE_MAX_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	// EXPRTMPL_CACHE_TTL
	if val := os.Getenv("EXPRTMPL_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = duration
		}
	}

	// EXPRTMPL_LOG_LEVEL
	if val := os.Getenv("EXPRTMPL_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	// EXPRTMPL_MAX_INCLUDE_DEPTH
	if val := os.Getenv("EXPRTMPL_MAX_INCLUDE_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			config.MaxIncludeDepth = depth
		}
	}

	return config
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()
	if overrides == nil {
		return defaults
	}

	config := *overrides
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.MaxIncludeDepth == 0 {
		config.MaxIncludeDepth = defaults.MaxIncludeDepth
	}
	return &config
}

// Validate checks if the configuration is valid. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	errs := NewMultiError()
	if c.CacheMaxSize < 0 {
		errs.Add(errors.New("cache max size cannot be negative"))
	}
	if c.CacheTTL < 0 {
		errs.Add(errors.New("cache TTL cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}
	if !validLogLevels[c.LogLevel] {
		errs.Add(errors.New("invalid log level: " + c.LogLevel))
	}

	if c.MaxIncludeDepth <= 0 {
		errs.Add(errors.New("max include depth must be positive"))
	}
	return errs.Err()
}

// GetGlobalConfig returns a copy of the global configuration
func GetGlobalConfig() *Config {
	loadGlobalConfig()
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	loadGlobalConfig()
	if config == nil {
		config = DefaultConfig()
	}
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// outside the lock, the logger reads the config back
	UpdateLoggerFromConfig()
}

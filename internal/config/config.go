package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the resource store limits.
const (
	DefaultMaxInlineBytes  = 262144
	DefaultTTL             = 7 * 24 * time.Hour
	DefaultMaxTotalBytes   = 1 << 30
	DefaultMaxTotalFiles   = 2000
	DefaultCleanupInterval = 10 * time.Minute

	// MinCleanupInterval is the floor for the background sweep period.
	MinCleanupInterval = 10 * time.Second
)

// Config holds server configuration. It is populated once at startup and
// never mutated afterwards.
type Config struct {
	// WSHost and WSPort form the bridge (websocket) listen address.
	WSHost string
	WSPort int
	// WSPath is the URL path the performer client connects to.
	WSPath string
	// AuthToken is the shared handshake secret. Empty disables auth.
	AuthToken string
	// MaxConnections bounds concurrently connected performers.
	MaxConnections int
	// KickOld, when the connection cap is hit, closes the oldest connection
	// to admit the new one instead of refusing it.
	KickOld bool

	// ResourceHost and ResourcePort form the resource endpoint listen address.
	ResourceHost string
	ResourcePort int
	// ResourcePath is the URL path prefix resources are served under.
	ResourcePath string
	// ResourceDir is the on-disk data root; blob files and the entry index
	// both live under it.
	ResourceDir string
	// IndexPath is the sqlite entry index location.
	IndexPath string
	// BaseURL overrides the externally visible resource endpoint base URL.
	// Empty derives it from the listen address.
	BaseURL string
	// ResourceToken gates the resource endpoint. Empty falls back to
	// AuthToken; both empty leaves the endpoint open.
	ResourceToken string

	// MaxInlineBytes is the inline-vs-stored threshold.
	MaxInlineBytes int64
	// TTL is the stored-file time-to-live. Zero disables TTL eviction.
	TTL time.Duration
	// MaxTotalBytes caps the store size. Zero means unbounded.
	MaxTotalBytes int64
	// MaxTotalFiles caps the store file count. Zero means unbounded.
	MaxTotalFiles int
	// CleanupInterval is the background sweep period.
	CleanupInterval time.Duration

	// MaxMessageLength bounds a single input.message, advertised at handshake.
	MaxMessageLength int

	Debug bool
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	WSPort       *int
	ResourcePort *int
	ResourceDir  *string
	AuthToken    *string
	Debug        *bool
}

// Load loads server configuration from environment variables and applies any
// explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	cfg := &Config{
		WSHost:           envString("STAGELINK_WS_HOST", "0.0.0.0"),
		WSPort:           envInt("STAGELINK_WS_PORT", 9090),
		WSPath:           envString("STAGELINK_WS_PATH", "/bridge"),
		AuthToken:        envString("STAGELINK_AUTH_TOKEN", ""),
		MaxConnections:   envInt("STAGELINK_MAX_CONNECTIONS", 1),
		KickOld:          envBool("STAGELINK_KICK_OLD", true),
		ResourceHost:     envString("STAGELINK_RESOURCE_HOST", "0.0.0.0"),
		ResourcePort:     envInt("STAGELINK_RESOURCE_PORT", 9091),
		ResourcePath:     envString("STAGELINK_RESOURCE_PATH", "/resources"),
		ResourceDir:      envString("STAGELINK_RESOURCE_DIR", "./data/resources"),
		IndexPath:        envString("STAGELINK_INDEX_PATH", ""),
		BaseURL:          envString("STAGELINK_BASE_URL", ""),
		ResourceToken:    envString("STAGELINK_RESOURCE_TOKEN", ""),
		MaxInlineBytes:   envInt64("STAGELINK_MAX_INLINE_BYTES", DefaultMaxInlineBytes),
		TTL:              envSeconds("STAGELINK_RESOURCE_TTL", DefaultTTL),
		MaxTotalBytes:    envInt64("STAGELINK_MAX_TOTAL_BYTES", DefaultMaxTotalBytes),
		MaxTotalFiles:    envInt("STAGELINK_MAX_TOTAL_FILES", DefaultMaxTotalFiles),
		CleanupInterval:  envSeconds("STAGELINK_CLEANUP_INTERVAL", DefaultCleanupInterval),
		MaxMessageLength: envInt("STAGELINK_MAX_MESSAGE_LENGTH", 5000),
		Debug:            envBool("STAGELINK_DEBUG", false),
	}

	if overrides.WSPort != nil {
		cfg.WSPort = *overrides.WSPort
	}
	if overrides.ResourcePort != nil {
		cfg.ResourcePort = *overrides.ResourcePort
	}
	if overrides.ResourceDir != nil {
		cfg.ResourceDir = *overrides.ResourceDir
	}
	if overrides.AuthToken != nil {
		cfg.AuthToken = *overrides.AuthToken
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}

	if cfg.ResourceDir == "" {
		return nil, fmt.Errorf("STAGELINK_RESOURCE_DIR must not be empty")
	}
	if cfg.MaxInlineBytes < 0 || cfg.MaxTotalBytes < 0 || cfg.MaxTotalFiles < 0 || cfg.TTL < 0 {
		return nil, fmt.Errorf("resource limits must not be negative")
	}
	if cfg.MaxConnections < 1 {
		return nil, fmt.Errorf("STAGELINK_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = cfg.ResourceDir + "/index.db"
	}
	cfg.WSPath = normalizePath(cfg.WSPath)
	cfg.ResourcePath = normalizePath(cfg.ResourcePath)
	if cfg.CleanupInterval < MinCleanupInterval {
		cfg.CleanupInterval = MinCleanupInterval
	}

	return cfg, nil
}

// WSAddr returns the bridge listen address.
func (c *Config) WSAddr() string {
	return fmt.Sprintf("%s:%d", c.WSHost, c.WSPort)
}

// ResourceAddr returns the resource endpoint listen address.
func (c *Config) ResourceAddr() string {
	return fmt.Sprintf("%s:%d", c.ResourceHost, c.ResourcePort)
}

// EffectiveResourceToken returns the token gating the resource endpoint,
// falling back to the handshake token when none is set separately.
func (c *Config) EffectiveResourceToken() string {
	if c.ResourceToken != "" {
		return c.ResourceToken
	}
	return c.AuthToken
}

// EffectiveBaseURL returns the externally visible resource endpoint base URL.
// When no explicit base URL is configured it is derived from the listen
// address, substituting a loopback host for wildcard binds so the URL is
// dialable by a local client.
func (c *Config) EffectiveBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	host := c.ResourceHost
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.ResourcePort)
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}

// envSeconds reads an integer number of seconds.
func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

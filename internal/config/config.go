// Package config loads runtime settings with the priority
// CLI flags > .env file > environment variables > defaults.
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paularlott/cli"
)

// Config holds the application configuration.
type Config struct {
	DataDir    string // device inventory location
	ListenAddr string // serve mode bind address
	APIToken   string // bearer token for API and MCP, empty disables auth

	DevicePort     int           // port bulbs listen on
	RequestTimeout time.Duration // per-device request budget
	MaxInFlight    int           // dispatcher concurrency bound

	DiscoveryTimeout    time.Duration // overall discovery window
	DiscoveryQuiescence time.Duration // silence window ending discovery early

	RefreshEnabled  bool   // serve mode: periodically re-query known bulbs
	RefreshSchedule string // cron spec for the refresh job
}

const envFile = ".env"

// Load builds the configuration from defaults, the optional .env file
// and BULBS_* environment variables. CLI flag overrides are applied by
// the caller through the AssignTo bindings in GetFlags.
func Load() *Config {
	cfg := &Config{
		DataDir:             "./data",
		ListenAddr:          ":8080",
		DevicePort:          80,
		RequestTimeout:      2 * time.Second,
		MaxInFlight:         32,
		DiscoveryTimeout:    5 * time.Second,
		DiscoveryQuiescence: time.Second,
		RefreshEnabled:      true,
		RefreshSchedule:     "@every 30s",
	}

	env := environ()
	if _, err := os.Stat(envFile); err == nil {
		loadEnvFile(env, envFile)
	}

	setString(env, "BULBS_DATA_DIR", &cfg.DataDir)
	setString(env, "BULBS_LISTEN_ADDR", &cfg.ListenAddr)
	setString(env, "BULBS_API_TOKEN", &cfg.APIToken)
	setInt(env, "BULBS_DEVICE_PORT", &cfg.DevicePort)
	setDuration(env, "BULBS_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	setInt(env, "BULBS_MAX_IN_FLIGHT", &cfg.MaxInFlight)
	setDuration(env, "BULBS_DISCOVERY_TIMEOUT", &cfg.DiscoveryTimeout)
	setDuration(env, "BULBS_DISCOVERY_QUIESCENCE", &cfg.DiscoveryQuiescence)
	setBool(env, "BULBS_REFRESH_ENABLED", &cfg.RefreshEnabled)
	setString(env, "BULBS_REFRESH_SCHEDULE", &cfg.RefreshSchedule)

	return cfg
}

// IsAPIAuthEnabled reports whether API requests must carry the token.
func (c *Config) IsAPIAuthEnabled() bool {
	return c.APIToken != ""
}

// GetFlags exposes server settings as CLI flags layered on top of the
// environment-derived defaults.
func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Directory for the device inventory database",
			EnvVars: []string{"BULBS_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "listen-addr",
			Usage:   "Address for the HTTP server to listen on",
			EnvVars: []string{"BULBS_LISTEN_ADDR"},
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "Bearer token required for API and MCP access",
			EnvVars: []string{"BULBS_API_TOKEN"},
		},
	}
}

// ApplyFlags overlays non-empty CLI flag values onto the config.
func (c *Config) ApplyFlags(cmd *cli.Command) {
	if v := cmd.GetString("data-dir"); v != "" {
		c.DataDir = v
	}
	if v := cmd.GetString("listen-addr"); v != "" {
		c.ListenAddr = v
	}
	if v := cmd.GetString("api-token"); v != "" {
		c.APIToken = v
	}
}

// environ snapshots the process environment as a map.
func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// loadEnvFile overlays KEY=VALUE lines from a .env file; .env entries
// win over ambient environment variables.
func loadEnvFile(env map[string]string, filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "\"")
	}
}

func setString(env map[string]string, key string, dst *string) {
	if v, ok := env[key]; ok && v != "" {
		*dst = v
	}
}

func setInt(env map[string]string, key string, dst *int) {
	if v, ok := env[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(env map[string]string, key string, dst *bool) {
	if v, ok := env[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(env map[string]string, key string, dst *time.Duration) {
	if v, ok := env[key]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Backend selection values for Config.Backend.
const (
	BackendMemory = "memory"
	BackendCDP    = "cdp"
)

// Config holds all configuration for the web agent.
type Config struct {
	// API settings
	BindAddr         string
	BindCandidates   []string
	PortAutoFallback bool

	// Browser backend selection
	Backend string

	// CDP connection settings (cdp backend only)
	CDPAddress    string
	CDPPort       int
	LaunchBrowser bool
	BrowserPath   string
	Headless      bool
	EvalTimeoutMS int

	// Session limits
	MaxTabs int

	// Workflow behavior
	PresetDir      string
	AbortOnFailure bool

	// Storage settings
	ArtifactDir string
	AuditDir    string

	// Logging
	LogLevel string
	LogFile  string

	// Optional completion notifications
	NotifyEndpoint string
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("AGENT_BIND_ADDR", "127.0.0.1:8177"),
		BindCandidates:   getEnvListOrDefault("AGENT_BIND_CANDIDATES", []string{"127.0.0.1:8178", "127.0.0.1:8179"}),
		PortAutoFallback: getEnvBoolOrDefault("AGENT_PORT_AUTO_FALLBACK", true),
		Backend:          strings.ToLower(getEnvOrDefault("AGENT_BACKEND", BackendCDP)),
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		LaunchBrowser:    getEnvBoolOrDefault("AGENT_LAUNCH_BROWSER", false),
		BrowserPath:      getEnvOrDefault("AGENT_BROWSER_PATH", ""),
		Headless:         getEnvBoolOrDefault("AGENT_HEADLESS", true),
		EvalTimeoutMS:    getEnvIntOrDefault("AGENT_EVAL_TIMEOUT_MS", 30000),
		MaxTabs:          getEnvIntOrDefault("AGENT_MAX_TABS", 32),
		PresetDir:        getEnvOrDefault("AGENT_PRESET_DIR", "./presets"),
		AbortOnFailure:   getEnvBoolOrDefault("AGENT_WORKFLOW_ABORT_ON_FAILURE", false),
		ArtifactDir:      getEnvOrDefault("AGENT_ARTIFACT_DIR", "./artifacts"),
		AuditDir:         getEnvOrDefault("AGENT_AUDIT_DIR", "./audit"),
		LogLevel:         strings.ToLower(getEnvOrDefault("AGENT_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("AGENT_LOG_FILE", "logs/web_agent.log"),
		NotifyEndpoint:   getEnvOrDefault("AGENT_NOTIFY_ENDPOINT", ""),
	}

	if cfg.Backend != BackendMemory && cfg.Backend != BackendCDP {
		return nil, fmt.Errorf("invalid AGENT_BACKEND %q: must be %q or %q", cfg.Backend, BackendMemory, BackendCDP)
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}

	return cfg, nil
}

// CDPURL returns the DevTools endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

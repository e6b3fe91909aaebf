// Package config loads inboxcopilot configuration from the environment, an
// optional .env file and an optional YAML settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Fixed remote identities. They can be overridden through the environment.
const (
	DefaultCopilotAgentID  = "69976a22d3c472bb58ec2613"
	DefaultFollowUpAgentID = "69976a212d97052a26fc9891"
	DefaultScheduleID      = "69976a2d399dfadeac37bbbc"
)

// DefaultNoticeTTL is how long a status notice stays visible.
const DefaultNoticeTTL = 5 * time.Second

// Config holds all application configuration.
type Config struct {
	// AgentBaseURL is the root of the conversational agent service.
	AgentBaseURL string
	// AgentAPIKey authenticates agent calls.
	AgentAPIKey string

	// SchedulerBaseURL is the root of the scheduler service (default: AgentBaseURL).
	SchedulerBaseURL string
	// SchedulerAPIKey authenticates scheduler calls (default: AgentAPIKey).
	SchedulerAPIKey string

	CopilotAgentID  string
	FollowUpAgentID string
	ScheduleID      string

	// SettingsPath points at the YAML settings file ("" = built-in defaults).
	SettingsPath string
	Settings     Settings

	NoticeTTL time.Duration
	Debug     bool
}

// LoadDotEnv loads the given .env files (default: ./.env) into the process
// environment. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables and the settings file.
// It does not validate; call Validate once flags have been applied.
func Load() (*Config, error) {
	cfg := &Config{
		AgentBaseURL:    getEnv("INBOXCOPILOT_AGENT_URL", ""),
		AgentAPIKey:     getEnv("INBOXCOPILOT_API_KEY", ""),
		CopilotAgentID:  getEnv("INBOXCOPILOT_COPILOT_AGENT_ID", DefaultCopilotAgentID),
		FollowUpAgentID: getEnv("INBOXCOPILOT_FOLLOWUP_AGENT_ID", DefaultFollowUpAgentID),
		ScheduleID:      getEnv("INBOXCOPILOT_SCHEDULE_ID", DefaultScheduleID),
		SettingsPath:    getEnv("INBOXCOPILOT_SETTINGS", ""),
		NoticeTTL:       getEnvDuration("INBOXCOPILOT_NOTICE_TTL", DefaultNoticeTTL),
		Debug:           getEnvBool("INBOXCOPILOT_DEBUG", false),
	}
	cfg.SchedulerBaseURL = getEnv("INBOXCOPILOT_SCHEDULER_URL", cfg.AgentBaseURL)
	cfg.SchedulerAPIKey = getEnv("INBOXCOPILOT_SCHEDULER_API_KEY", cfg.AgentAPIKey)

	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.AgentBaseURL == "" {
		return fmt.Errorf("INBOXCOPILOT_AGENT_URL cannot be empty")
	}
	if c.AgentAPIKey == "" {
		return fmt.Errorf("INBOXCOPILOT_API_KEY cannot be empty")
	}
	if c.SchedulerBaseURL == "" {
		return fmt.Errorf("INBOXCOPILOT_SCHEDULER_URL cannot be empty")
	}
	if c.CopilotAgentID == "" || c.FollowUpAgentID == "" {
		return fmt.Errorf("agent identifiers cannot be empty")
	}
	if c.ScheduleID == "" {
		return fmt.Errorf("INBOXCOPILOT_SCHEDULE_ID cannot be empty")
	}
	if c.NoticeTTL <= 0 {
		return fmt.Errorf("INBOXCOPILOT_NOTICE_TTL must be > 0")
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// Package config loads server configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"time"

	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration. Every field has a sensible
// default so a bare `framestack serve` works with no environment at all.
type Config struct {
	// DataDir is where the SQLite database lives. Empty means ~/.framestack.
	DataDir string `envconfig:"DATA_DIR"`

	// IndividualStack and TeamStack name the two stacks of the deployment.
	IndividualStack string `envconfig:"INDIVIDUAL_STACK" default:"individual"`
	TeamStack       string `envconfig:"TEAM_STACK" default:"team"`

	// ActorID identifies the local user in handoff requests, approvals,
	// and notification inboxes.
	ActorID string `envconfig:"ACTOR_ID" default:"local"`

	// ReminderDelay is how long a high or critical priority handoff may
	// wait in review before the reviewer is nudged.
	ReminderDelay time.Duration `envconfig:"REMINDER_DELAY" default:"4h"`

	// PollInterval is the cadence of the handoff status stream.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`

	// NotificationTTL is how long inbox entries live before pruning.
	NotificationTTL time.Duration `envconfig:"NOTIFICATION_TTL" default:"168h"`

	// LogLevel sets the zerolog level (trace, debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from FRAMESTACK_* environment variables and
// fills in defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("framestack", &cfg); err != nil {
		return Config{}, apperr.Operationf(err, "load configuration")
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, apperr.Operationf(err, "resolve home directory")
		}
		cfg.DataDir = filepath.Join(home, ".framestack")
	}

	if cfg.IndividualStack == cfg.TeamStack {
		return Config{}, apperr.Validationf("individual and team stack must differ, both are %q", cfg.IndividualStack)
	}

	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Tones the copilot can be asked to draft in.
var Tones = []string{"professional", "assertive", "friendly", "casual"}

// Bounds for the unanswered threshold.
const (
	MinUnansweredDays = 1
	MaxUnansweredDays = 30
)

// Settings are the user preferences that shape agent instructions.
type Settings struct {
	Tone                string `yaml:"tone"`
	AutoSaveDraft       bool   `yaml:"auto_save_draft"`
	UnansweredDays      int    `yaml:"unanswered_days"`
	CommitmentDetection bool   `yaml:"commitment_detection"`
	QuestionDetection   bool   `yaml:"question_detection"`
}

// DefaultSettings returns the built-in preferences.
func DefaultSettings() Settings {
	return Settings{
		Tone:                "professional",
		AutoSaveDraft:       true,
		UnansweredDays:      3,
		CommitmentDetection: true,
		QuestionDetection:   true,
	}
}

// LoadSettings reads a YAML settings file on top of the defaults. An empty
// path or a missing file yields the defaults. Settings can also be tuned
// with INBOXCOPILOT_TONE and INBOXCOPILOT_UNANSWERED_DAYS.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return s, fmt.Errorf("failed to read settings %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("failed to parse settings %s: %w", path, err)
			}
		}
	}

	s.Tone = getEnv("INBOXCOPILOT_TONE", s.Tone)
	s.UnansweredDays = getEnvInt("INBOXCOPILOT_UNANSWERED_DAYS", s.UnansweredDays)
	return s, nil
}

// Validate checks the settings values.
func (s Settings) Validate() error {
	if !slices.Contains(Tones, s.Tone) {
		return fmt.Errorf("tone %q must be one of %v", s.Tone, Tones)
	}
	if s.UnansweredDays < MinUnansweredDays || s.UnansweredDays > MaxUnansweredDays {
		return fmt.Errorf("unanswered_days must be between %d and %d, got %d",
			MinUnansweredDays, MaxUnansweredDays, s.UnansweredDays)
	}
	return nil
}

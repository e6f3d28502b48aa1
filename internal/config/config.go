// Package config provides the configuration schema, loader, and provider
// registry for the linevox voice data-entry agent.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	VAD         VADConfig         `yaml:"vad"`
	Turn        TurnConfig        `yaml:"turn"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Records     RecordsConfig     `yaml:"records"`
	Fields      []FieldConfig     `yaml:"fields"`
	Training    TrainingConfig    `yaml:"training"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics/status endpoint listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// external service. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Interpreter ProviderEntry `yaml:"interpreter"`
	Speech      ProviderEntry `yaml:"speech"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "anthropic", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// VADConfig holds the voice-activity-detection tuning constants. These are
// environment-dependent and deliberately configurable.
type VADConfig struct {
	// EnergyThreshold is the normalized RMS energy (0..1) a frame must
	// exceed to count as speech.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// ActivationFrames is how many consecutive frames must exceed the
	// threshold before listening starts.
	ActivationFrames int `yaml:"activation_frames"`
}

// TurnConfig holds turn segmentation and intent-execution settings.
type TurnConfig struct {
	// SilenceDelay is the quiet period that closes a turn.
	SilenceDelay Duration `yaml:"silence_delay"`

	// ConfidenceThreshold is the minimum interpreter confidence at which an
	// intent may be executed.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// SampleRate is the capture sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Language is the BCP-47 recognition language tag.
	Language string `yaml:"language"`
}

// PersistenceConfig holds the conversation/pattern mirror settings.
type PersistenceConfig struct {
	// PostgresDSN is the PostgreSQL connection string. Empty disables
	// durable persistence; state then lives in memory only.
	PostgresDSN string `yaml:"postgres_dsn"`

	// DebounceDelay is the quiet period after the last change before a
	// save fires.
	DebounceDelay Duration `yaml:"debounce_delay"`
}

// RecordsConfig holds the line-item store settings.
type RecordsConfig struct {
	// PostgresDSN is the PostgreSQL connection string for line items.
	// Empty selects the in-memory store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// IDFamily is the identifier prefix for allocated lines (e.g., "L").
	IDFamily string `yaml:"id_family"`
}

// FieldConfig declares one custom field of the line-item schema. When the
// fields list is empty, the built-in lumber schema is used.
type FieldConfig struct {
	// Name is the canonical field key.
	Name string `yaml:"name"`

	// Label is the human-readable name used in summaries.
	Label string `yaml:"label"`

	// Kind is one of: text, dimension, number, money. Empty means text.
	Kind string `yaml:"kind"`

	// Required marks fields that must be populated before commit.
	Required bool `yaml:"required"`
}

// TrainingConfig holds the calibration phrase list.
type TrainingConfig struct {
	// Phrases is the ordered target phrase list for calibration sessions.
	// Empty falls back to the built-in list.
	Phrases []string `yaml:"phrases"`
}

// Default returns a Config with workable defaults for everything that has a
// sensible one. Provider entries and DSNs must still come from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		VAD: VADConfig{
			EnergyThreshold:  0.02,
			ActivationFrames: 3,
		},
		Turn: TurnConfig{
			SilenceDelay:        Duration(2 * time.Second),
			ConfidenceThreshold: 0.6,
			SampleRate:          16000,
			Language:            "en-US",
		},
		Persistence: PersistenceConfig{
			DebounceDelay: Duration(1500 * time.Millisecond),
		},
		Records: RecordsConfig{
			IDFamily: "L",
		},
	}
}

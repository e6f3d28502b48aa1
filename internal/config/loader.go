package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"interpreter": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "mock"},
	"speech":      {"deepgram", "mock"},
}

// validFieldKinds are the recognised field kind names.
var validFieldKinds = []string{"", "text", "dimension", "number", "money"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("interpreter", cfg.Providers.Interpreter.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)

	if cfg.Providers.Interpreter.Name == "" {
		slog.Warn("no interpreter provider configured; free-form utterances cannot be understood")
	}
	if cfg.Providers.Speech.Name == "" {
		slog.Warn("no speech provider configured; voice input will not work")
	}

	// VAD tuning
	if cfg.VAD.EnergyThreshold <= 0 || cfg.VAD.EnergyThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.energy_threshold %v is out of range (0, 1)", cfg.VAD.EnergyThreshold))
	}
	if cfg.VAD.ActivationFrames < 1 {
		errs = append(errs, fmt.Errorf("vad.activation_frames %d must be at least 1", cfg.VAD.ActivationFrames))
	}

	// Turn segmentation
	if cfg.Turn.SilenceDelay <= 0 {
		errs = append(errs, fmt.Errorf("turn.silence_delay must be positive"))
	}
	if cfg.Turn.ConfidenceThreshold < 0 || cfg.Turn.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("turn.confidence_threshold %v is out of range [0, 1]", cfg.Turn.ConfidenceThreshold))
	}
	if cfg.Turn.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("turn.sample_rate %d must be positive", cfg.Turn.SampleRate))
	}

	// Persistence
	if cfg.Persistence.DebounceDelay <= 0 {
		errs = append(errs, fmt.Errorf("persistence.debounce_delay must be positive"))
	}
	if cfg.Persistence.PostgresDSN == "" {
		slog.Warn("persistence.postgres_dsn is empty; conversation and learned patterns will not survive restarts")
	}

	// Records
	if cfg.Records.IDFamily == "" {
		errs = append(errs, fmt.Errorf("records.id_family must not be empty"))
	}

	// Custom field schema
	fieldNamesSeen := make(map[string]int, len(cfg.Fields))
	for i, field := range cfg.Fields {
		prefix := fmt.Sprintf("fields[%d]", i)
		if field.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := fieldNamesSeen[field.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of fields[%d]", prefix, field.Name, prev))
			}
			fieldNamesSeen[field.Name] = i
		}
		if !slices.Contains(validFieldKinds, field.Kind) {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: text, dimension, number, money", prefix, field.Kind))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

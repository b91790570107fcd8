package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"assemblyai", "whisper"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "openai-direct"},
	"tts": {"fptai"},
}

const (
	defaultLocale      = "vi"
	defaultSettleDelay = 3 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their documented
// defaults. Threshold fields default individually so a config may override
// just one cutoff.
func ApplyDefaults(cfg *Config) {
	if cfg.Voice.Locale == "" {
		cfg.Voice.Locale = defaultLocale
	}
	if cfg.Voice.SettleDelay <= 0 {
		cfg.Voice.SettleDelay = defaultSettleDelay
	}
	def := DefaultThresholds()
	t := &cfg.Voice.Thresholds
	if t.LocalAccept <= 0 {
		t.LocalAccept = def.LocalAccept
	}
	if t.FallbackAccept <= 0 {
		t.FallbackAccept = def.FallbackAccept
	}
	if t.SimilarityCutoff <= 0 {
		t.SimilarityCutoff = def.SimilarityCutoff
	}
	if t.LongPhraseBonus <= 0 {
		t.LongPhraseBonus = def.LongPhraseBonus
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.FallbackSTT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; transcription will be unavailable and only text input will work")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; unrecognised utterances will not be escalated")
	}
	if cfg.Providers.FallbackSTT.Name != "" && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.fallback_stt is set but providers.stt is not"))
	}

	t := cfg.Voice.Thresholds
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"voice.thresholds.local_accept", t.LocalAccept},
		{"voice.thresholds.fallback_accept", t.FallbackAccept},
		{"voice.thresholds.similarity_cutoff", t.SimilarityCutoff},
	} {
		if c.value < 0 || c.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", c.name, c.value))
		}
	}
	if t.LongPhraseBonus < 1 {
		errs = append(errs, fmt.Errorf("voice.thresholds.long_phrase_bonus %.2f must be >= 1", t.LongPhraseBonus))
	}

	seen := make(map[string]int, len(cfg.Screens))
	for i, sc := range cfg.Screens {
		prefix := fmt.Sprintf("screens[%d]", i)
		if sc.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[sc.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of screens[%d]", prefix, sc.Name, prev))
		}
		seen[sc.Name] = i
		if len(sc.Phrases) == 0 {
			errs = append(errs, fmt.Errorf("%s.phrases must not be empty", prefix))
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

// Package config provides the configuration schema, loader, and provider
// registry for the CareVoice voice gateway.
package config

import "time"

// LogLevel controls log verbosity for the CareVoice server.
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

// Config is the root configuration structure for CareVoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	Screens   []ScreenConfig  `yaml:"screens"`
	Journal   JournalConfig   `yaml:"journal"`
}

// ServerConfig holds network and logging settings for the gateway server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	// STT is the primary transcription service.
	STT ProviderEntry `yaml:"stt"`

	// FallbackSTT is an optional secondary transcriber tried when the
	// primary fails or its circuit breaker is open.
	FallbackSTT ProviderEntry `yaml:"fallback_stt"`

	// LLM backs the fallback intent classifier.
	LLM ProviderEntry `yaml:"llm"`

	// TTS renders spoken feedback.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "assemblyai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// When empty, providers fall back to their conventional environment
	// variable (e.g., ASSEMBLYAI_API_KEY).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// VoiceConfig tunes the voice interaction pipeline.
type VoiceConfig struct {
	// Locale is the BCP-47 language code for recognition and synthesis.
	// Defaults to "vi".
	Locale string `yaml:"locale"`

	// SettleDelay is how long the session rests in Completed or Error
	// before returning to Idle. Defaults to 3s.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// Thresholds holds the tunable scoring cutoffs of the intent pipeline.
	Thresholds Thresholds `yaml:"thresholds"`
}

// Thresholds holds the scoring cutoffs used across the intent pipeline.
// The defaults were carried over from production telemetry; they are
// exposed here for product-level calibration rather than hard-coded.
type Thresholds struct {
	// LocalAccept is the minimum category score the local classifier
	// requires before emitting a result. Default: 0.6.
	LocalAccept float64 `yaml:"local_accept"`

	// FallbackAccept is the minimum confidence required to dispatch a
	// command proposed by the language-model fallback. Default: 0.5.
	FallbackAccept float64 `yaml:"fallback_accept"`

	// SimilarityCutoff is the minimum word-overlap ratio at which a clause
	// counts as a fuzzy match for a trigger phrase. Default: 0.8.
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`

	// LongPhraseBonus multiplies a category score when a matched trigger
	// phrase is longer than ten characters. Default: 1.5.
	LongPhraseBonus float64 `yaml:"long_phrase_bonus"`
}

// DefaultThresholds returns the production-calibrated threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LocalAccept:      0.6,
		FallbackAccept:   0.5,
		SimilarityCutoff: 0.8,
		LongPhraseBonus:  1.5,
	}
}

// ScreenConfig extends the built-in screen vocabulary with additional
// navigation targets or extra spoken aliases for existing ones.
type ScreenConfig struct {
	// Name is the navigation target emitted to the UI (e.g., "Medication").
	Name string `yaml:"name"`

	// Phrases lists spoken phrases that resolve directly to this screen.
	Phrases []string `yaml:"phrases"`
}

// JournalConfig holds settings for the caregiver interaction journal.
type JournalConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the journal store.
	// When empty the journal is kept in memory only.
	PostgresDSN string `yaml:"postgres_dsn"`
}

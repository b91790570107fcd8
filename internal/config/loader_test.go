package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Voice.Locale != "vi" {
		t.Errorf("locale = %q, want vi", cfg.Voice.Locale)
	}
	if cfg.Voice.SettleDelay != 3*time.Second {
		t.Errorf("settle delay = %v, want 3s", cfg.Voice.SettleDelay)
	}
	if cfg.Voice.Thresholds != DefaultThresholds() {
		t.Errorf("thresholds = %+v, want defaults", cfg.Voice.Thresholds)
	}
}

func TestLoadFromReaderFull(t *testing.T) {
	t.Parallel()

	const doc = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  stt:
    name: assemblyai
    api_key: key-1
  fallback_stt:
    name: whisper
    base_url: http://localhost:9000
  llm:
    name: openai
    model: gpt-4o-mini
  tts:
    name: fptai
    options:
      voice: banmai
voice:
  locale: vi
  settle_delay: 5s
  thresholds:
    local_accept: 0.7
screens:
  - name: Medication
    phrases: ["uống thuốc"]
journal:
  postgres_dsn: postgres://localhost/carevoice
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.STT.Name != "assemblyai" || cfg.Providers.STT.APIKey != "key-1" {
		t.Errorf("stt entry = %+v", cfg.Providers.STT)
	}
	if got := cfg.Providers.TTS.Options["voice"]; got != "banmai" {
		t.Errorf("tts voice option = %v, want banmai", got)
	}
	if cfg.Voice.SettleDelay != 5*time.Second {
		t.Errorf("settle delay = %v, want 5s", cfg.Voice.SettleDelay)
	}

	// Partial threshold overrides keep the remaining defaults.
	if cfg.Voice.Thresholds.LocalAccept != 0.7 {
		t.Errorf("local_accept = %v, want 0.7", cfg.Voice.Thresholds.LocalAccept)
	}
	if cfg.Voice.Thresholds.FallbackAccept != 0.5 {
		t.Errorf("fallback_accept = %v, want default 0.5", cfg.Voice.Thresholds.FallbackAccept)
	}

	if len(cfg.Screens) != 1 || cfg.Screens[0].Name != "Medication" {
		t.Errorf("screens = %+v", cfg.Screens)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := LoadFromReader(strings.NewReader("serverr:\n  listen_addr: \":1\"\n")); err == nil {
		t.Fatal("unknown top-level field should fail")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "fallback stt without primary",
			mutate:  func(c *Config) { c.Providers.FallbackSTT.Name = "whisper" },
			wantErr: "fallback_stt",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Voice.Thresholds.LocalAccept = 1.5 },
			wantErr: "local_accept",
		},
		{
			name:    "bonus below one",
			mutate:  func(c *Config) { c.Voice.Thresholds.LongPhraseBonus = 0.5 },
			wantErr: "long_phrase_bonus",
		},
		{
			name: "screen without phrases",
			mutate: func(c *Config) {
				c.Screens = []ScreenConfig{{Name: "Medication"}}
			},
			wantErr: "phrases",
		},
		{
			name: "duplicate screen",
			mutate: func(c *Config) {
				c.Screens = []ScreenConfig{
					{Name: "Medication", Phrases: []string{"uống thuốc"}},
					{Name: "Medication", Phrases: []string{"nhắc thuốc"}},
				}
			},
			wantErr: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.CreateSTT(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

package app

import (
	"os"
	"testing"
	"time"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		envKey   string
		envValue string
		defValue string
		want     string
	}{
		{
			name:     "env set",
			envKey:   "TEST_ENV_VAR",
			envValue: "custom_value",
			defValue: "default",
			want:     "custom_value",
		},
		{
			name:     "env not set",
			envKey:   "TEST_ENV_VAR_NOTSET",
			envValue: "",
			defValue: "default",
			want:     "default",
		},
		{
			name:     "empty default",
			envKey:   "TEST_ENV_VAR_EMPTY",
			envValue: "",
			defValue: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.envKey, tt.envValue)
				defer os.Unsetenv(tt.envKey)
			}

			got := getenv(tt.envKey, tt.defValue)
			if got != tt.want {
				t.Errorf("getenv(%q, %q) = %q, want %q", tt.envKey, tt.defValue, got, tt.want)
			}
		})
	}
}

func TestGetenvIntClamped(t *testing.T) {
	tests := []struct {
		name     string
		envKey   string
		envValue string
		def      int
		min      int
		max      int
		want     int
	}{
		{
			name:     "value within range",
			envKey:   "TEST_INT_NORMAL",
			envValue: "500",
			def:      100,
			min:      0,
			max:      1000,
			want:     500,
		},
		{
			name:     "value below min - clamp to min",
			envKey:   "TEST_INT_LOW",
			envValue: "-100",
			def:      100,
			min:      0,
			max:      1000,
			want:     0,
		},
		{
			name:     "value above max - clamp to max",
			envKey:   "TEST_INT_HIGH",
			envValue: "2000",
			def:      100,
			min:      0,
			max:      1000,
			want:     1000,
		},
		{
			name:     "env not set - use default",
			envKey:   "TEST_INT_NOTSET",
			envValue: "",
			def:      100,
			min:      0,
			max:      1000,
			want:     100,
		},
		{
			name:     "invalid value - use default",
			envKey:   "TEST_INT_INVALID",
			envValue: "not_a_number",
			def:      100,
			min:      0,
			max:      1000,
			want:     100,
		},
		{
			name:     "boundary: exactly min",
			envKey:   "TEST_INT_MIN",
			envValue: "200",
			def:      500,
			min:      200,
			max:      800,
			want:     200,
		},
		{
			name:     "boundary: exactly max",
			envKey:   "TEST_INT_MAX",
			envValue: "800",
			def:      500,
			min:      200,
			max:      800,
			want:     800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.envKey, tt.envValue)
				defer os.Unsetenv(tt.envKey)
			}

			got := getenvIntClamped(tt.envKey, tt.def, tt.min, tt.max)
			if got != tt.want {
				t.Errorf("getenvIntClamped(%q, %d, %d, %d) = %d, want %d",
					tt.envKey, tt.def, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestGetenvFloatClamped(t *testing.T) {
	tests := []struct {
		name     string
		envKey   string
		envValue string
		def      float64
		min      float64
		max      float64
		want     float64
	}{
		{
			name:     "value within range",
			envKey:   "TEST_FLOAT_NORMAL",
			envValue: "0.5",
			def:      0.3,
			min:      0.0,
			max:      1.0,
			want:     0.5,
		},
		{
			name:     "value below min - clamp to min",
			envKey:   "TEST_FLOAT_LOW",
			envValue: "-0.5",
			def:      0.3,
			min:      0.0,
			max:      1.0,
			want:     0.0,
		},
		{
			name:     "value above max - clamp to max",
			envKey:   "TEST_FLOAT_HIGH",
			envValue: "1.5",
			def:      0.3,
			min:      0.0,
			max:      1.0,
			want:     1.0,
		},
		{
			name:     "env not set - use default",
			envKey:   "TEST_FLOAT_NOTSET",
			envValue: "",
			def:      0.75,
			min:      0.0,
			max:      1.0,
			want:     0.75,
		},
		{
			name:     "invalid value - use default",
			envKey:   "TEST_FLOAT_INVALID",
			envValue: "not_a_float",
			def:      0.5,
			min:      0.0,
			max:      1.0,
			want:     0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.envKey, tt.envValue)
				defer os.Unsetenv(tt.envKey)
			}

			got := getenvFloatClamped(tt.envKey, tt.def, tt.min, tt.max)
			if got != tt.want {
				t.Errorf("getenvFloatClamped(%q, %f, %f, %f) = %f, want %f",
					tt.envKey, tt.def, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestParsePhrases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single phrase",
			input: "test",
			want:  []string{"test"},
		},
		{
			name:  "multiple phrases",
			input: "test,mock,sample",
			want:  []string{"test", "mock", "sample"},
		},
		{
			name:  "phrases with spaces are trimmed",
			input: "test, hello world , mock",
			want:  []string{"test", "hello world", "mock"},
		},
		{
			name:  "phrases are lowercased",
			input: "Test,Hello World",
			want:  []string{"test", "hello world"},
		},
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
		{
			name:  "trailing comma",
			input: "test,",
			want:  []string{"test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePhrases(tt.input)

			if len(got) != len(tt.want) {
				t.Errorf("parsePhrases(%q) returned %d phrases, want %d", tt.input, len(got), len(tt.want))
				return
			}

			for i, phrase := range got {
				if phrase != tt.want[i] {
					t.Errorf("parsePhrases(%q)[%d] = %q, want %q", tt.input, i, phrase, tt.want[i])
				}
			}
		})
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	keysToClean := []string{
		"HTTP_ADDR", "PUBLIC_BASE_URL", "DATABASE_URL", "LOG_LEVEL",
		"DEFAULT_LANGUAGE", "STRUCTURING_MODEL",
		"HEARTBEAT_IDLE_SECONDS", "SESSION_DRAIN_GRACE_SECONDS",
		"DISCARD_MIN_CHARS", "DISCARD_MIN_WORDS", "DISCARD_PHRASES",
		"STALE_CONVERSATION_MINUTES", "REAPER_INTERVAL_MINUTES",
		"SENTRY_TRACES_SAMPLE_RATE", "APNS_PRODUCTION",
	}
	for _, key := range keysToClean {
		os.Unsetenv(key)
	}

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.DefaultLanguage != "en" {
		t.Errorf("DefaultLanguage = %q, want %q", cfg.DefaultLanguage, "en")
	}
	if cfg.StructuringModel != "gpt-4o-mini" {
		t.Errorf("StructuringModel = %q, want %q", cfg.StructuringModel, "gpt-4o-mini")
	}
	if cfg.HeartbeatIdle != 30*time.Second {
		t.Errorf("HeartbeatIdle = %v, want %v", cfg.HeartbeatIdle, 30*time.Second)
	}
	if cfg.SessionDrainGrace != 5*time.Second {
		t.Errorf("SessionDrainGrace = %v, want %v", cfg.SessionDrainGrace, 5*time.Second)
	}
	if cfg.StaleConversationAge != 2*time.Hour {
		t.Errorf("StaleConversationAge = %v, want %v", cfg.StaleConversationAge, 2*time.Hour)
	}
	if cfg.ReaperInterval != 30*time.Minute {
		t.Errorf("ReaperInterval = %v, want %v", cfg.ReaperInterval, 30*time.Minute)
	}
	if cfg.SentryTracesRate != 0.2 {
		t.Errorf("SentryTracesRate = %f, want 0.2", cfg.SentryTracesRate)
	}
	if cfg.APNsProduction {
		t.Error("APNsProduction should default to false")
	}

	policy := cfg.DiscardPolicy()
	if policy.MinChars != 10 || policy.MinWords != 3 {
		t.Errorf("discard thresholds = %d chars %d words, want 10 and 3", policy.MinChars, policy.MinWords)
	}
	if len(policy.Denylist) != 5 {
		t.Errorf("denylist = %v, want 5 stock phrases", policy.Denylist)
	}
}

func TestLoadConfigFromEnvCustomValues(t *testing.T) {
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("DEFAULT_LANGUAGE", "cs")
	os.Setenv("HEARTBEAT_IDLE_SECONDS", "60")
	os.Setenv("SESSION_DRAIN_GRACE_SECONDS", "0")
	os.Setenv("DISCARD_PHRASES", "lorem ipsum,placeholder")
	os.Setenv("SENTRY_TRACES_SAMPLE_RATE", "0.5")
	os.Setenv("APNS_PRODUCTION", "true")

	defer func() {
		os.Unsetenv("HTTP_ADDR")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("DEFAULT_LANGUAGE")
		os.Unsetenv("HEARTBEAT_IDLE_SECONDS")
		os.Unsetenv("SESSION_DRAIN_GRACE_SECONDS")
		os.Unsetenv("DISCARD_PHRASES")
		os.Unsetenv("SENTRY_TRACES_SAMPLE_RATE")
		os.Unsetenv("APNS_PRODUCTION")
	}()

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.DefaultLanguage != "cs" {
		t.Errorf("DefaultLanguage = %q, want %q", cfg.DefaultLanguage, "cs")
	}
	if cfg.HeartbeatIdle != 60*time.Second {
		t.Errorf("HeartbeatIdle = %v, want %v", cfg.HeartbeatIdle, 60*time.Second)
	}

	// Zero is below the clamp floor; teardown always gets at least a second.
	if cfg.SessionDrainGrace != 1*time.Second {
		t.Errorf("SessionDrainGrace = %v, want clamp to %v", cfg.SessionDrainGrace, 1*time.Second)
	}

	if cfg.SentryTracesRate != 0.5 {
		t.Errorf("SentryTracesRate = %f, want 0.5", cfg.SentryTracesRate)
	}
	if !cfg.APNsProduction {
		t.Error("APNsProduction = false, want true")
	}

	policy := cfg.DiscardPolicy()
	if len(policy.Denylist) != 2 || policy.Denylist[0] != "lorem ipsum" {
		t.Errorf("denylist = %v", policy.Denylist)
	}
}

package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amywork777/taya-backend/internal/structuring"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	LogLevel    string

	// Speech-to-text
	DeepgramAPIKey string

	// Structuring model
	OpenAIAPIKey     string
	StructuringModel string

	// Capture session behavior
	DefaultLanguage   string
	HeartbeatIdle     time.Duration
	SessionDrainGrace time.Duration

	// Discard thresholds for finished transcripts
	DiscardMinChars int
	DiscardMinWords int
	DiscardPhrases  []string

	// Background reaper for sessions that never finalized
	StaleConversationAge time.Duration
	ReaperInterval       time.Duration

	// APNs push notifications
	APNsKeyPath    string
	APNsKeyID      string
	APNsTeamID     string
	APNsBundleID   string
	APNsProduction bool

	// Operations
	DiscordWebhookURL string
	SentryDSN         string
	SentryTracesRate  float64
	Environment       string
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DeepgramAPIKey: getenv("DEEPGRAM_API_KEY", ""),

		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		StructuringModel: getenv("STRUCTURING_MODEL", "gpt-4o-mini"),

		DefaultLanguage:   getenv("DEFAULT_LANGUAGE", "en"),
		HeartbeatIdle:     time.Duration(getenvIntClamped("HEARTBEAT_IDLE_SECONDS", 30, 5, 300)) * time.Second,
		SessionDrainGrace: time.Duration(getenvIntClamped("SESSION_DRAIN_GRACE_SECONDS", 5, 1, 60)) * time.Second,

		DiscardMinChars: getenvIntClamped("DISCARD_MIN_CHARS", 10, 0, 1000),
		DiscardMinWords: getenvIntClamped("DISCARD_MIN_WORDS", 3, 0, 100),
		DiscardPhrases:  parsePhrases(getenv("DISCARD_PHRASES", "test,testing,hello world,mock,sample")),

		StaleConversationAge: time.Duration(getenvIntClamped("STALE_CONVERSATION_MINUTES", 120, 10, 1440)) * time.Minute,
		ReaperInterval:       time.Duration(getenvIntClamped("REAPER_INTERVAL_MINUTES", 30, 1, 720)) * time.Minute,

		APNsKeyPath:    getenv("APNS_KEY_PATH", ""),
		APNsKeyID:      getenv("APNS_KEY_ID", ""),
		APNsTeamID:     getenv("APNS_TEAM_ID", ""),
		APNsBundleID:   getenv("APNS_BUNDLE_ID", "ai.taya.app"),
		APNsProduction: getenvBool("APNS_PRODUCTION", false),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
		SentryDSN:         getenv("SENTRY_DSN", ""),
		SentryTracesRate:  getenvFloatClamped("SENTRY_TRACES_SAMPLE_RATE", 0.2, 0.0, 1.0),
		Environment:       getenv("ENVIRONMENT", "development"),
	}
}

// DiscardPolicy assembles the transcript discard thresholds from config.
func (c Config) DiscardPolicy() structuring.DiscardPolicy {
	return structuring.DiscardPolicy{
		MinChars: c.DiscardMinChars,
		MinWords: c.DiscardMinWords,
		Denylist: c.DiscardPhrases,
	}
}

// parsePhrases splits a comma-separated denylist, trimming and lowercasing
// each entry.
func parsePhrases(s string) []string {
	if s == "" {
		return nil
	}
	var phrases []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}

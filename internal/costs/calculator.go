// Package costs provides cost calculation for API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These are based on 2026 market rates and can be overridden via environment variables.
var (
	// DeepgramCentsPerMinute is the cost per minute for Deepgram Nova-2 streaming STT.
	// Default: $0.0059/min = 0.59 cents/min
	DeepgramCentsPerMinute = getEnvFloat("COST_DEEPGRAM_CENTS_PER_MIN", 0.59)

	// OpenAICentsPerThousandInputTokens is the cost per 1K input tokens for GPT-4o-mini.
	// Default: $0.15/1M = $0.00015/1K = 0.015 cents/1K tokens
	OpenAICentsPerThousandInputTokens = getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.015)

	// OpenAICentsPerThousandOutputTokens is the cost per 1K output tokens for GPT-4o-mini.
	// Default: $0.60/1M = $0.0006/1K = 0.06 cents/1K tokens
	OpenAICentsPerThousandOutputTokens = getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 0.06)
)

// ConversationMetrics contains the raw metrics from a conversation used for
// cost calculation.
type ConversationMetrics struct {
	AudioSeconds            int // Audio processed by STT
	StructuringInputTokens  int // Tokens sent to the structuring model
	StructuringOutputTokens int // Tokens received from the structuring model
}

// ConversationCosts contains the calculated costs for a conversation in cents.
type ConversationCosts struct {
	STTCostCents         int
	StructuringCostCents int
	TotalCostCents       int
}

// CalculateConversationCosts computes the costs for a conversation based on
// usage metrics.
func CalculateConversationCosts(m ConversationMetrics) ConversationCosts {
	sttMinutes := float64(m.AudioSeconds) / 60.0
	sttCents := sttMinutes * DeepgramCentsPerMinute

	// Structuring costs: per 1K tokens
	inputCents := (float64(m.StructuringInputTokens) / 1000.0) * OpenAICentsPerThousandInputTokens
	outputCents := (float64(m.StructuringOutputTokens) / 1000.0) * OpenAICentsPerThousandOutputTokens

	// Round to nearest cent (we store as integers)
	costs := ConversationCosts{
		STTCostCents:         roundToInt(sttCents),
		StructuringCostCents: roundToInt(inputCents + outputCents),
	}
	costs.TotalCostCents = costs.STTCostCents + costs.StructuringCostCents

	return costs
}

// EstimateTokens approximates the token count of a text. Four characters per
// token is close enough for cost attribution.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

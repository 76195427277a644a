package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *log.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Warn("discord: failed to marshal message", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Warn("discord: failed to create request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Warn("discord: failed to send webhook", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Warn("discord: webhook returned error status", "status", resp.StatusCode)
		}
	}()
}

// NotifyConversationSaved sends a notification when a conversation is saved.
func (d *Discord) NotifyConversationSaved(ctx context.Context, uid, title, category string, durationSeconds int, degraded bool) {
	color := 0x00FF00 // Green
	description := fmt.Sprintf("New conversation saved for `%s`", uid)
	if degraded {
		color = 0xFFA500 // Orange
		description = fmt.Sprintf("New conversation saved for `%s` (heuristic summary, structuring model unavailable)", uid)
	}

	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       title,
			Description: description,
			Color:       color,
			Fields: []embedField{
				{Name: "Category", Value: category, Inline: true},
				{Name: "Duration", Value: fmt.Sprintf("%ds", durationSeconds), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

// NotifySTTOutage sends a notification when the transcription backend is
// refusing connections.
func (d *Discord) NotifySTTOutage(ctx context.Context, detail string) {
	msg := discordMessage{
		Content: "@here", // Ping everyone
		Embeds: []discordEmbed{{
			Title:       "Transcription backend unavailable!",
			Description: "Live sessions are being refused. Check Deepgram status.",
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Detail", Value: detail, Inline: false},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

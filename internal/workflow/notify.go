package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
)

// ComplianceRecord is the audit entry created for a safety message. It holds
// a hash of the message, never the text.
type ComplianceRecord struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	Category          string    `json:"category"`
	Severity          Severity  `json:"severity"`
	MessageHash       string    `json:"message_hash"`
	MessageLength     int       `json:"message_length"`
	Channel           string    `json:"channel"`
	CustomerID        string    `json:"customer_id,omitempty"`
	ProductID         string    `json:"product_id,omitempty"`
	RequiresFDAReport bool      `json:"requires_fda_report"`
	Status            string    `json:"status"`
}

// Notifier announces compliance records to the people who act on them.
type Notifier interface {
	Notify(ctx context.Context, rec ComplianceRecord) error
}

// LogNotifier writes records to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, rec ComplianceRecord) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("compliance escalation",
		"record_id", rec.ID,
		"severity", string(rec.Severity),
		"channel", rec.Channel,
		"requires_fda_report", rec.RequiresFDAReport,
	)
	return nil
}

// SlackNotifier posts records to a Slack channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier builds a notifier for token. apiURL overrides the Slack
// API endpoint when non-empty.
func NewSlackNotifier(token, channel, apiURL string) *SlackNotifier {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackNotifier{api: slack.New(token, opts...), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, rec ComplianceRecord) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(slackText(rec), false))
	if err != nil {
		return fmt.Errorf("post compliance record %s: %w", rec.ID, err)
	}
	return nil
}

func slackText(rec ComplianceRecord) string {
	text := fmt.Sprintf(":rotating_light: *%s safety report* `%s`\nchannel: %s, status: %s",
		rec.Severity, rec.ID, rec.Channel, rec.Status)
	if rec.RequiresFDAReport {
		text += "\nFDA adverse event report required."
	}
	return text
}

package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kvasilopoulos/contact-center/internal/pii"
	"github.com/kvasilopoulos/contact-center/internal/types"
)

// Severity grades a safety report.
type Severity string

const (
	SeverityUrgent   Severity = "urgent"
	SeverityHigh     Severity = "high"
	SeverityStandard Severity = "standard"
)

// Patterns run against the lower-cased message.
var urgentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(emergency|hospital|ambulance|911)\b`),
	regexp.MustCompile(`\b(can't breathe|difficulty breathing|chest pain)\b`),
	regexp.MustCompile(`\b(unconscious|passed out|fainted)\b`),
	regexp.MustCompile(`\b(severe allergic|anaphylaxis|swelling.*throat)\b`),
	regexp.MustCompile(`\b(overdose|too many|too much)\b`),
}

// "ER" only counts in capitals; lower-case "er" is too common.
var emergencyRoom = regexp.MustCompile(`\bER\b`)

var highPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(adverse|reaction|side effect)\b`),
	regexp.MustCompile(`\b(nausea|vomiting|dizziness|headache)\b`),
	regexp.MustCompile(`\b(rash|hives|itching)\b`),
	regexp.MustCompile(`\b(medication|drug|medicine).*(problem|issue|concern)\b`),
}

const summaryLength = 200

// AssessSeverity grades message by the first matching pattern set.
func AssessSeverity(message string) Severity {
	lower := strings.ToLower(message)
	if emergencyRoom.MatchString(message) {
		return SeverityUrgent
	}
	for _, re := range urgentPatterns {
		if re.MatchString(lower) {
			return SeverityUrgent
		}
	}
	for _, re := range highPatterns {
		if re.MatchString(lower) {
			return SeverityHigh
		}
	}
	return SeverityStandard
}

// HashMessage returns the hex SHA-256 of message.
func HashMessage(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// Safety handles health and adverse reaction reports. It always escalates
// regardless of confidence.
type Safety struct {
	redactor *pii.Redactor
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

type SafetyOption func(*Safety)

func WithClock(now func() time.Time) SafetyOption {
	return func(s *Safety) { s.now = now }
}

// NewSafety builds the workflow. A nil notifier logs records instead.
func NewSafety(redactor *pii.Redactor, notifier Notifier, logger *slog.Logger, opts ...SafetyOption) *Safety {
	if logger == nil {
		logger = slog.Default()
	}
	if redactor == nil {
		redactor = pii.NewRedactor()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	s := &Safety{redactor: redactor, notifier: notifier, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (w *Safety) Category() types.Category { return types.CategorySafetyCompliance }

func (w *Safety) Execute(ctx context.Context, in Input) Result {
	hash := HashMessage(in.Message)
	w.logger.Warn("safety compliance workflow triggered", "message_hash", hash, "confidence", in.Confidence)

	severity := AssessSeverity(in.Message)
	rec := w.record(in, severity, hash)
	w.logger.Info("compliance record created",
		"record_id", rec.ID,
		"severity", string(rec.Severity),
		"requires_fda_report", rec.RequiresFDAReport,
	)
	if severity != SeverityStandard {
		if err := w.notifier.Notify(ctx, rec); err != nil {
			w.logger.Error("compliance notification failed", "record_id", rec.ID, "error", err)
		}
	}

	summary := w.redactor.RedactString(truncateRunes(in.Message, summaryLength))
	data := map[string]any{
		"compliance_record_id": rec.ID,
		"severity":             string(severity),
		"redacted_summary":     summary,
	}

	switch severity {
	case SeverityUrgent:
		data["requires_pharmacist_review"] = true
		data["sla_minutes"] = 15
		return Result{
			Action: "urgent_escalation",
			Description: "URGENT: Your message indicates a potential medical emergency. " +
				"If you are experiencing a medical emergency, please call 911 immediately. " +
				"A pharmacist will contact you within 15 minutes for follow-up.",
			Priority:       types.PriorityUrgent,
			ExternalSystem: "urgent_escalation_queue",
			Data:           data,
		}
	case SeverityHigh:
		data["requires_pharmacist_review"] = true
		data["sla_minutes"] = 120
		return Result{
			Action: "pharmacist_review",
			Description: "We take adverse reactions very seriously. " +
				"Your report has been flagged for pharmacist review. " +
				"A healthcare professional will contact you within 2 hours.",
			Priority:       types.PriorityHigh,
			ExternalSystem: "pharmacist_queue",
			Data:           data,
		}
	default:
		data["requires_pharmacist_review"] = false
		data["sla_hours"] = 24
		return Result{
			Action: "compliance_review",
			Description: "Thank you for reporting this. Your concern has been logged " +
				"and will be reviewed by our compliance team within 24 hours. " +
				"If symptoms worsen, please seek medical attention.",
			Priority:       types.PriorityHigh,
			ExternalSystem: "compliance_review_queue",
			Data:           data,
		}
	}
}

func (w *Safety) record(in Input, severity Severity, hash string) ComplianceRecord {
	now := w.now().UTC()
	channel := string(in.Channel)
	if channel == "" {
		channel = metaString(in.Metadata, "channel")
	}
	if channel == "" {
		channel = "unknown"
	}
	return ComplianceRecord{
		ID:                fmt.Sprintf("COMP-%s-%s", now.Format("20060102150405"), hash[:8]),
		Timestamp:         now,
		Category:          string(types.CategorySafetyCompliance),
		Severity:          severity,
		MessageHash:       hash,
		MessageLength:     len([]rune(in.Message)),
		Channel:           channel,
		CustomerID:        metaString(in.Metadata, "customer_id"),
		ProductID:         metaString(in.Metadata, "product_id"),
		RequiresFDAReport: severity == SeverityUrgent || severity == SeverityHigh,
		Status:            "pending_review",
	}
}

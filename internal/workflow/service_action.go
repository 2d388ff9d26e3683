package workflow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kvasilopoulos/contact-center/internal/types"
)

// Intent is the action a service request asks for.
type Intent string

const (
	IntentCancel        Intent = "cancel_order"
	IntentRefund        Intent = "request_refund"
	IntentTrack         Intent = "track_order"
	IntentTicket        Intent = "open_ticket"
	IntentUpdateAccount Intent = "update_account"
	IntentUnknown       Intent = "unknown"
)

type intentRule struct {
	re     *regexp.Regexp
	intent Intent
}

// Ordered by priority, first match wins.
var intentRules = []intentRule{
	{regexp.MustCompile(`\b(cancel|cancellation)\b`), IntentCancel},
	{regexp.MustCompile(`\b(refund|money back|reimburse)\b`), IntentRefund},
	{regexp.MustCompile(`\b(track|tracking|where is|status of|order status)\b`), IntentTrack},
	{regexp.MustCompile(`\b(ticket|support|help|issue|problem|complaint)\b`), IntentTicket},
	{regexp.MustCompile(`\b(update|change|modify|reset).*(account|password|profile|address)\b`), IntentUpdateAccount},
	{regexp.MustCompile(`\b(account|password|profile|address).*(update|change|modify|reset)\b`), IntentUpdateAccount},
}

var orderRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(ORD[-_]?\d{4,10})\b`),
	regexp.MustCompile(`(?i)\b(ORDER[-_#]?\d{4,10})\b`),
	regexp.MustCompile(`#(\d{6,10})\b`),
	regexp.MustCompile(`\b(\d{8,12})\b`),
}

// ExtractIntent returns the first matching intent, or IntentUnknown.
func ExtractIntent(message string) Intent {
	lower := strings.ToLower(message)
	for _, rule := range intentRules {
		if rule.re.MatchString(lower) {
			return rule.intent
		}
	}
	return IntentUnknown
}

// ExtractOrderReference finds an order number in message, upper-cased.
func ExtractOrderReference(message string) string {
	for _, re := range orderRefPatterns {
		if m := re.FindStringSubmatch(message); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

// DetectUpdateType names the account field a request wants changed.
func DetectUpdateType(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "password"):
		return "password"
	case strings.Contains(lower, "address"):
		return "shipping address"
	case strings.Contains(lower, "email"):
		return "email address"
	case strings.Contains(lower, "phone"):
		return "phone number"
	case strings.Contains(lower, "payment"), strings.Contains(lower, "card"):
		return "payment method"
	default:
		return "account information"
	}
}

// ServiceAction turns a service request into a ticket, lookup, refund or
// account change.
type ServiceAction struct {
	logger *slog.Logger
}

func NewServiceAction(logger *slog.Logger) *ServiceAction {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceAction{logger: logger}
}

func (w *ServiceAction) Category() types.Category { return types.CategoryServiceAction }

func (w *ServiceAction) Execute(_ context.Context, in Input) Result {
	if RequiresEscalation(in.Confidence) {
		return lowConfidence(w.Category(),
			"Low confidence classification. Routing to support agent "+
				"to determine the appropriate action.")
	}

	intent := ExtractIntent(in.Message)
	w.logger.Debug("service intent extracted", "intent", string(intent))

	switch intent {
	case IntentTicket:
		return w.ticket(in)
	case IntentTrack:
		return w.track(in)
	case IntentRefund:
		return w.refund(in)
	case IntentCancel:
		return w.cancel(in)
	case IntentUpdateAccount:
		return w.updateAccount(in)
	default:
		return w.unknown(in)
	}
}

func orderReference(in Input) string {
	if ref := ExtractOrderReference(in.Message); ref != "" {
		return ref
	}
	return metaString(in.Metadata, "order_id")
}

func (w *ServiceAction) ticket(in Input) Result {
	return Result{
		Action: "create_ticket",
		Description: "Creating a support ticket for your issue. " +
			"A support representative will contact you within 24 hours.",
		Priority:       types.PriorityMedium,
		ExternalSystem: "ticketing_system",
		Data: map[string]any{
			"ticket_template": map[string]any{
				"subject":         "Customer Support Request",
				"description":     truncateRunes(in.Message, 500),
				"order_reference": nullable(orderReference(in)),
				"customer_id":     nullable(metaString(in.Metadata, "customer_id")),
				"priority":        "normal",
			},
			"estimated_response_time": "24 hours",
		},
	}
}

func (w *ServiceAction) track(in Input) Result {
	ref := orderReference(in)
	if ref == "" {
		return Result{
			Action: "request_order_id",
			Description: "To track your order, please provide your order number. " +
				"You can find it in your confirmation email.",
			Priority: types.PriorityLow,
			Data:     map[string]any{"missing": "order_reference"},
		}
	}
	return Result{
		Action:         "track_order",
		Description:    "Looking up order " + ref + ". You will receive tracking information shortly.",
		Priority:       types.PriorityLow,
		ExternalSystem: "order_management",
		Data: map[string]any{
			"order_reference": ref,
			"action":          "get_tracking_info",
		},
	}
}

func (w *ServiceAction) refund(in Input) Result {
	return Result{
		Action: "initiate_refund",
		Description: "Your refund request has been received. " +
			"Our team will review it within 2-3 business days. " +
			"Refunds are processed to the original payment method.",
		Priority:       types.PriorityMedium,
		ExternalSystem: "refund_system",
		Data: map[string]any{
			"refund_request": map[string]any{
				"order_reference": nullable(orderReference(in)),
				"reason":          truncateRunes(in.Message, 200),
				"status":          "pending_review",
			},
		},
	}
}

func (w *ServiceAction) cancel(in Input) Result {
	return Result{
		Action: "cancel_order",
		Description: "Processing your cancellation request. " +
			"If the order hasn't shipped, it will be cancelled immediately. " +
			"Otherwise, you may need to initiate a return.",
		Priority:       types.PriorityHigh,
		ExternalSystem: "order_management",
		Data: map[string]any{
			"cancellation_request": map[string]any{
				"order_reference": nullable(orderReference(in)),
				"status":          "pending",
			},
		},
	}
}

func (w *ServiceAction) updateAccount(in Input) Result {
	kind := DetectUpdateType(in.Message)
	return Result{
		Action: "update_account",
		Description: "To update your " + kind + ", please verify your identity. " +
			"We've sent a verification link to your registered email.",
		Priority:       types.PriorityMedium,
		ExternalSystem: "identity_verification",
		Data: map[string]any{
			"update_type":           kind,
			"requires_verification": true,
		},
	}
}

func (w *ServiceAction) unknown(in Input) Result {
	return Result{
		Action:         "route_to_support",
		Description:    "We're connecting you with a support representative who can help with your request.",
		Priority:       types.PriorityMedium,
		ExternalSystem: "agent_queue",
		Data: map[string]any{
			"reason":           "unrecognized_action",
			"original_message": truncateRunes(in.Message, 200),
		},
	}
}

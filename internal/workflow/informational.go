package workflow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kvasilopoulos/contact-center/internal/types"
)

// FAQEntry is one knowledge base answer.
type FAQEntry struct {
	Keyword  string
	Question string
	Answer   string
	Category string
}

// DefaultFAQ returns the built-in knowledge base in lookup order.
func DefaultFAQ() []FAQEntry {
	return []FAQEntry{
		{
			Keyword:  "refund",
			Question: "What is your refund policy?",
			Answer: "We offer a 30-day refund policy for most products. " +
				"Prescription medications cannot be returned once dispensed. " +
				"Contact our support team to initiate a refund.",
			Category: "policies",
		},
		{
			Keyword:  "shipping",
			Question: "What are your shipping options?",
			Answer: "We offer standard shipping (5-7 business days), " +
				"express shipping (2-3 business days), and overnight delivery. " +
				"Free shipping on orders over $50.",
			Category: "delivery",
		},
		{
			Keyword:  "prescription",
			Question: "How do I transfer a prescription?",
			Answer: "To transfer a prescription, provide your current pharmacy's information " +
				"and prescription details. We'll handle the transfer within 24-48 hours.",
			Category: "prescriptions",
		},
		{
			Keyword:  "hours",
			Question: "What are your store hours?",
			Answer: "Our online pharmacy is available 24/7. " +
				"Customer support is available Monday-Friday 8am-8pm EST, " +
				"Saturday 9am-5pm EST.",
			Category: "general",
		},
		{
			Keyword:  "privacy",
			Question: "What is your privacy policy?",
			Answer: "We take your privacy seriously. Your health information is protected " +
				"under HIPAA. We never share your personal data with third parties " +
				"without your consent.",
			Category: "policies",
		},
	}
}

type faqRule struct {
	re      *regexp.Regexp
	keyword string
}

var faqRules = []faqRule{
	{regexp.MustCompile(`\bpolicy\b`), "refund"},
	{regexp.MustCompile(`\bdeliver`), "shipping"},
	{regexp.MustCompile(`\bship`), "shipping"},
	{regexp.MustCompile(`\bhour`), "hours"},
	{regexp.MustCompile(`\bopen\b`), "hours"},
	{regexp.MustCompile(`\bprivate\b`), "privacy"},
	{regexp.MustCompile(`\btransfer\b`), "prescription"},
}

// Informational answers questions from the FAQ.
type Informational struct {
	faq    []FAQEntry
	logger *slog.Logger
}

// NewInformational uses DefaultFAQ when faq is empty.
func NewInformational(faq []FAQEntry, logger *slog.Logger) *Informational {
	if len(faq) == 0 {
		faq = DefaultFAQ()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Informational{faq: faq, logger: logger}
}

func (w *Informational) Category() types.Category { return types.CategoryInformational }

func (w *Informational) Execute(_ context.Context, in Input) Result {
	if RequiresEscalation(in.Confidence) {
		return lowConfidence(w.Category(),
			"Low confidence classification. Routing to customer service "+
				"representative for personalized assistance.")
	}

	if entry, ok := w.Search(in.Message); ok {
		return Result{
			Action:      "provide_information",
			Description: "Found relevant FAQ: " + entry.Answer,
			Priority:    types.PriorityLow,
			Data: map[string]any{
				"faq_category":     entry.Category,
				"matched_question": entry.Question,
				"source":           "faq_database",
			},
		}
	}

	return Result{
		Action: "suggest_contact",
		Description: "We couldn't find an exact match for your question. " +
			"Please contact our support team for personalized assistance, " +
			"or browse our help center at help.example.com.",
		Priority: types.PriorityLow,
		Data: map[string]any{
			"suggestion":      "contact_support",
			"help_center_url": "https://help.example.com",
		},
	}
}

// Search matches keywords first, then the looser patterns.
func (w *Informational) Search(message string) (FAQEntry, bool) {
	lower := strings.ToLower(message)
	for _, e := range w.faq {
		if strings.Contains(lower, e.Keyword) {
			w.logger.Debug("faq match", "keyword", e.Keyword)
			return e, true
		}
	}
	for _, rule := range faqRules {
		if !rule.re.MatchString(lower) {
			continue
		}
		for _, e := range w.faq {
			if e.Keyword == rule.keyword {
				return e, true
			}
		}
	}
	return FAQEntry{}, false
}

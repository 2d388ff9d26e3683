// Package pii detects and redacts personal data in customer text before it
// is logged or summarised.
package pii

import "regexp"

// Type names a category of personal data.
type Type string

const (
	TypeSSN           Type = "ssn"
	TypeEmail         Type = "email"
	TypePhone         Type = "phone"
	TypeCreditCard    Type = "credit_card"
	TypeDateOfBirth   Type = "date_of_birth"
	TypeIPAddress     Type = "ip_address"
	TypeMedicalRecord Type = "medical_record"
	TypePassport      Type = "passport"
	TypeDriverLicense Type = "driver_license"
)

// Pattern defines a PII detection pattern and its replacement.
type Pattern struct {
	Type        Type
	Regex       *regexp.Regexp
	Placeholder string
}

// DefaultPatterns returns the built-in PII patterns. Order breaks ties
// between equally long matches at the same offset.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Type:        TypeSSN,
			Regex:       regexp.MustCompile(`\b(?:\d{3}-\d{2}-\d{4}|\d{9})\b`),
			Placeholder: "[SSN_REDACTED]",
		},
		{
			Type:        TypeEmail,
			Regex:       regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`),
			Placeholder: "[EMAIL_REDACTED]",
		},
		{
			Type:        TypePhone,
			Regex:       regexp.MustCompile(`\b(?:\+?1[-.\s]?)?(?:\(?\d{3}\)?[-.\s]?)\d{3}[-.\s]?\d{4}\b`),
			Placeholder: "[PHONE_REDACTED]",
		},
		{
			Type: TypeCreditCard,
			Regex: regexp.MustCompile(`\b(?:` +
				`4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}|` + // Visa
				`5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}|` + // Mastercard
				`3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}|` + // Amex
				`6(?:011|5\d{2})[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}` + // Discover
				`)\b`),
			Placeholder: "[CREDIT_CARD_REDACTED]",
		},
		{
			Type: TypeDateOfBirth,
			Regex: regexp.MustCompile(`(?i)\b(?:DOB|Date of Birth|Born|Birthday)[:.\s]*` +
				`(?:\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2})\b`),
			Placeholder: "[DOB_REDACTED]",
		},
		{
			Type: TypeIPAddress,
			Regex: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}` +
				`(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`),
			Placeholder: "[IP_REDACTED]",
		},
		{
			Type:        TypeMedicalRecord,
			Regex:       regexp.MustCompile(`(?i)\b(?:MRN|Medical Record|Patient ID)[:.\s#]*[A-Z0-9]{6,12}\b`),
			Placeholder: "[MRN_REDACTED]",
		},
		{
			Type:        TypePassport,
			Regex:       regexp.MustCompile(`(?i)\bPassport[:.\s#]*[A-Z0-9]{6,9}\b`),
			Placeholder: "[PASSPORT_REDACTED]",
		},
		{
			Type:        TypeDriverLicense,
			Regex:       regexp.MustCompile(`(?i)\b(?:DL|Driver'?s?\s*License|License\s*#?)[:.\s]*[A-Z0-9]{5,15}\b`),
			Placeholder: "[DL_REDACTED]",
		},
	}
}

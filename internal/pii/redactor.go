package pii

import (
	"sort"
	"strings"
)

// Match is one detected span. Offsets are byte positions.
type Match struct {
	Type        Type
	Original    string
	Start       int
	End         int
	Placeholder string
}

// Redactor scans text with pre-compiled patterns.
type Redactor struct {
	patterns []Pattern
}

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// Detect returns every match of every pattern ordered by start offset, then
// by length descending. Matches may overlap.
func (r *Redactor) Detect(text string) []Match {
	var matches []Match
	for _, p := range r.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Type:        p.Type,
				Original:    text[loc[0]:loc[1]],
				Start:       loc[0],
				End:         loc[1],
				Placeholder: p.Placeholder,
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End-matches[i].Start > matches[j].End-matches[j].Start
	})
	return matches
}

// Redact replaces detected spans with placeholders. Where spans overlap the
// earliest wins, and among equal starts the longest. The returned matches
// are the ones actually replaced.
func (r *Redactor) Redact(text string) (string, []Match) {
	var (
		kept []Match
		b    strings.Builder
		pos  int
	)
	for _, m := range r.Detect(text) {
		if m.Start < pos {
			continue
		}
		b.WriteString(text[pos:m.Start])
		b.WriteString(m.Placeholder)
		pos = m.End
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return text, nil
	}
	b.WriteString(text[pos:])
	return b.String(), kept
}

// RedactString is Redact without the match list.
func (r *Redactor) RedactString(text string) string {
	s, _ := r.Redact(text)
	return s
}

func (r *Redactor) ContainsPII(text string) bool {
	for _, p := range r.patterns {
		if p.Regex.MatchString(text) {
			return true
		}
	}
	return false
}

// Preview redacts text and truncates the result to at most n runes.
// Redaction runs first so a cut can never leave a partial value unmatched.
func (r *Redactor) Preview(text string, n int) string {
	out := r.RedactString(text)
	if n <= 0 {
		return out
	}
	count := 0
	for i := range out {
		if count == n {
			return out[:i] + "..."
		}
		count++
	}
	return out
}

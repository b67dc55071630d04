package catalogue

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Issue describes a single problem found during catalogue preflight
type Issue struct {
	Case    string
	Field   string
	Message string
}

// Error returns a string representation of the issue
func (i Issue) Error() string {
	return fmt.Sprintf("case %q field %s: %s", i.Case, i.Field, i.Message)
}

// ValidationResult contains the outcome of catalogue preflight
type ValidationResult struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// Validate runs preflight checks over a catalogue without mutating it.
// Errors mark content the submission path cannot carry faithfully (header
// fields with line breaks, NUL bytes); warnings flag content that will
// transit as-is but that an endpoint may handle surprisingly.
func Validate(cases []TestCase) ValidationResult {
	result := ValidationResult{Valid: true}

	addError := func(name, field, msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, Issue{Case: name, Field: field, Message: msg})
	}
	addWarning := func(name, field, msg string) {
		result.Warnings = append(result.Warnings, Issue{Case: name, Field: field, Message: msg})
	}

	seen := make(map[string]bool)
	for _, tc := range cases {
		if tc.Name == "" {
			addError("(unnamed)", "name", "case name must not be empty")
		} else if seen[tc.Name] {
			addWarning(tc.Name, "name", "duplicate case name, report attribution will be ambiguous")
		}
		seen[tc.Name] = true

		if !tc.Category.Valid() {
			addError(tc.Name, "category", fmt.Sprintf("unknown category %q", tc.Category))
		}
		if tc.From == "" {
			addError(tc.Name, "from", "sender address must not be empty")
		}
		if tc.To == "" {
			addError(tc.Name, "to", "recipient address must not be empty")
		}
		if tc.Subject == "" {
			addWarning(tc.Name, "subject", "subject is empty")
		}
		if tc.Body == "" {
			addWarning(tc.Name, "body", "body is empty")
		}

		for field, value := range map[string]string{
			"from":    tc.From,
			"to":      tc.To,
			"subject": tc.Subject,
		} {
			if strings.ContainsAny(value, "\r\n") {
				addError(tc.Name, field, "header field contains a line break and cannot be sent verbatim")
			}
		}

		for field, value := range map[string]string{
			"name":    tc.Name,
			"from":    tc.From,
			"to":      tc.To,
			"subject": tc.Subject,
			"body":    tc.Body,
		} {
			if strings.ContainsRune(value, 0) {
				addError(tc.Name, field, "field contains a NUL byte")
			}
		}

		if hasStrayControl(tc.Body) {
			addWarning(tc.Name, "body", "body contains control characters")
		}

		for field, value := range map[string]string{
			"subject": tc.Subject,
			"body":    tc.Body,
		} {
			if !norm.NFC.IsNormalString(value) {
				addWarning(tc.Name, field, "text is not NFC normalized, endpoint comparisons may mismatch")
			}
		}
	}

	return result
}

// hasStrayControl reports control bytes other than tab and line endings
func hasStrayControl(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

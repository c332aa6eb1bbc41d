package contact

import (
	"strings"
	"unicode"
)

// Sanitize strips HTML-significant characters (< > ' " &) and C0/C1 control
// characters, then trims surrounding whitespace.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '<', r == '>', r == '\'', r == '"', r == '&':
			return -1
		case r <= 0x1F, r >= 0x7F && r <= 0x9F:
			return -1
		}
		return r
	}, raw)
	return trim(cleaned)
}

// SanitizeFormData normalizes a form for validation and delivery. Phone keeps
// its formatting; digit extraction happens in IsValidPhone.
func SanitizeFormData(form FormState) FormData {
	return FormData{
		Name:    Sanitize(form.Name),
		Email:   strings.ToLower(trim(form.Email)),
		Phone:   trim(form.Phone),
		Service: form.Service,
		Message: Sanitize(form.Message),
	}
}

// trim removes leading and trailing whitespace, including the BOM that
// browsers treat as whitespace.
func trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}

package contact

// ValidateHoneypot reports whether the hidden bot-trap field was left alone.
// Humans never see the field, so any non-blank value marks automated traffic.
func ValidateHoneypot(value string) bool {
	return trim(value) == ""
}

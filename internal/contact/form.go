package contact

import "time"

// TimestampLayout is the wire format of Payload.Timestamp: UTC with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormState is the raw, user-entered contents of one form session.
type FormState struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Service  string `json:"service"`
	Message  string `json:"message"`
	Honeypot string `json:"honeypot"`
}

// IsEmpty reports whether every field is blank, i.e. the form was reset.
func (f FormState) IsEmpty() bool {
	return f == FormState{}
}

// FormData is the sanitized subset of FormState that is validated and sent.
type FormData struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Message string `json:"message"`
}

// ClientMetadata describes the submitting client.
type ClientMetadata struct {
	UserAgent string `json:"userAgent"`
	Language  string `json:"language"`
}

// Payload is the body delivered to the submission endpoint.
type Payload struct {
	FormData
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	Language  string `json:"language"`
}

// NewPayload stamps sanitized form data with the submission time and client
// metadata.
func NewPayload(data FormData, at time.Time, meta ClientMetadata) Payload {
	return Payload{
		FormData:  data,
		Timestamp: at.UTC().Format(TimestampLayout),
		UserAgent: meta.UserAgent,
		Language:  meta.Language,
	}
}

// SubmittedAt parses the payload timestamp. The zero time is returned for a
// missing or malformed value.
func (p Payload) SubmittedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

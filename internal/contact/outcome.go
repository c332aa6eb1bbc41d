package contact

// OutcomeKind tags the result of one submission cycle.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeSpamRejection     OutcomeKind = "spam_rejection"
	OutcomeRateLimitExceeded OutcomeKind = "rate_limit_exceeded"
	OutcomeValidationFailure OutcomeKind = "validation_failure"
	OutcomeSubmissionFailure OutcomeKind = "submission_failure"
)

// Message keys resolved by the i18n catalog.
const (
	MsgSuccess         = "contact.form.success"
	MsgSpamError       = "contact.form.spamError"
	MsgRateLimitError  = "contact.form.rateLimitError"
	MsgValidationError = "contact.form.validationError"
	MsgSubmitError     = "contact.form.submitError"
)

// Outcome is the tagged result of Orchestrator.Submit. Only the fields that
// belong to Kind are populated.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	MessageKey string      `json:"messageKey"`

	// RateLimitExceeded
	RemainingSeconds int `json:"remainingSeconds,omitempty"`

	// ValidationFailure
	Errors map[Field]ErrorCode `json:"errors,omitempty"`

	// SubmissionFailure
	Err error `json:"-"`

	// Success
	Payload *Payload `json:"payload,omitempty"`
}

// OK reports whether the submission was delivered.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

func spamRejection() Outcome {
	return Outcome{Kind: OutcomeSpamRejection, MessageKey: MsgSpamError}
}

func rateLimitExceeded(remaining int) Outcome {
	return Outcome{Kind: OutcomeRateLimitExceeded, MessageKey: MsgRateLimitError, RemainingSeconds: remaining}
}

func validationFailure(errs map[Field]ErrorCode) Outcome {
	return Outcome{Kind: OutcomeValidationFailure, MessageKey: MsgValidationError, Errors: errs}
}

func submissionFailure(err error) Outcome {
	return Outcome{Kind: OutcomeSubmissionFailure, MessageKey: MsgSubmitError, Err: err}
}

func success(p Payload) Outcome {
	return Outcome{Kind: OutcomeSuccess, MessageKey: MsgSuccess, Payload: &p}
}

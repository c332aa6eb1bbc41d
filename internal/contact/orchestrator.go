package contact

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/core/engine"
	"github.com/padillasconcrete/siteapi/internal/metrics"
)

// DefaultConfirmationDelay is how long a success confirmation stays visible.
const DefaultConfirmationDelay = 5 * time.Second

// ErrSubmitInProgress is returned when Submit is called while a previous
// cycle has not finished.
var ErrSubmitInProgress = errors.New("contact submission already in progress")

var errNoSubmitter = errors.New("contact submitter is not configured")

// State is the orchestrator's position in a submission cycle.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// Limiter is the subset of engine.RateLimiter the orchestrator needs.
type Limiter interface {
	CheckLimit(ctx context.Context) engine.RateLimitResult
	RecordAttempt(ctx context.Context)
}

// Orchestrator runs one contact form session: honeypot, rate limit,
// sanitize, validate, record, submit, then feedback. It is safe for
// concurrent use; overlapping Submit calls are rejected rather than queued.
type Orchestrator struct {
	limiter           Limiter
	submitter         Submitter
	clock             func() time.Time
	meta              ClientMetadata
	logger            *logging.Logger
	confirmationDelay time.Duration

	mu         sync.Mutex
	state      State
	form       FormState
	feedback   *Outcome
	clearTimer *time.Timer
	generation uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfirmationDelay sets how long a success confirmation is kept before
// the orchestrator returns to idle. Zero keeps it until the next cycle.
func WithConfirmationDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d < 0 {
			d = 0
		}
		o.confirmationDelay = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetadata sets the client metadata stamped on every payload.
func WithMetadata(meta ClientMetadata) Option {
	return func(o *Orchestrator) {
		o.meta = meta
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator builds an idle orchestrator. A nil limiter disables rate
// limiting.
func NewOrchestrator(limiter Limiter, submitter Submitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		limiter:           limiter,
		submitter:         submitter,
		clock:             func() time.Time { return time.Now().UTC() },
		confirmationDelay: DefaultConfirmationDelay,
		state:             StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetForm replaces the form contents.
func (o *Orchestrator) SetForm(form FormState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.form = form
}

// Form returns a copy of the current form contents.
func (o *Orchestrator) Form() FormState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.form
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Feedback returns the outcome currently shown to the user, if any.
func (o *Orchestrator) Feedback() (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.feedback == nil {
		return Outcome{}, false
	}
	return *o.feedback, true
}

// Dismiss clears any feedback and returns to idle. It has no effect while a
// cycle is in flight.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight() {
		return
	}
	o.stopTimer()
	o.generation++
	o.feedback = nil
	o.state = StateIdle
}

// Submit runs one submission cycle over the current form. Every user-facing
// result, including delivery failure, is reported as an Outcome; the error
// is only non-nil when the call was rejected because a cycle is in flight.
func (o *Orchestrator) Submit(ctx context.Context) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	o.mu.Lock()
	if o.inFlight() {
		o.mu.Unlock()
		return Outcome{}, ErrSubmitInProgress
	}
	o.stopTimer()
	o.generation++
	o.state = StateChecking
	o.feedback = nil
	form := o.form
	o.mu.Unlock()

	if !ValidateHoneypot(form.Honeypot) {
		return o.finish(spamRejection()), nil
	}

	if o.limiter != nil {
		if result := o.limiter.CheckLimit(ctx); !result.Allowed {
			return o.finish(rateLimitExceeded(result.RemainingSeconds)), nil
		}
	}

	data := SanitizeFormData(form)
	if result := ValidateFormData(data); !result.IsValid {
		return o.finish(validationFailure(result.Errors)), nil
	}

	if o.limiter != nil {
		o.limiter.RecordAttempt(ctx)
	}

	payload := NewPayload(data, o.clock(), o.meta)

	o.mu.Lock()
	o.state = StateSubmitting
	o.mu.Unlock()

	if o.submitter == nil {
		return o.finish(submissionFailure(errNoSubmitter)), nil
	}
	if err := o.submitter.Submit(ctx, payload); err != nil {
		return o.finish(submissionFailure(err)), nil
	}

	return o.finish(success(payload)), nil
}

func (o *Orchestrator) finish(outcome Outcome) Outcome {
	metrics.RecordSubmission(string(outcome.Kind))
	o.log(outcome)

	o.mu.Lock()
	defer o.mu.Unlock()

	feedback := outcome
	o.feedback = &feedback

	if !outcome.OK() {
		o.state = StateFailed
		return outcome
	}

	o.state = StateSuccess
	o.form = FormState{}
	if o.confirmationDelay > 0 {
		gen := o.generation
		o.clearTimer = time.AfterFunc(o.confirmationDelay, func() {
			o.clearConfirmation(gen)
		})
	}
	return outcome
}

func (o *Orchestrator) clearConfirmation(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen || o.state != StateSuccess {
		return
	}
	o.clearTimer = nil
	o.feedback = nil
	o.state = StateIdle
}

// caller holds mu
func (o *Orchestrator) stopTimer() {
	if o.clearTimer != nil {
		o.clearTimer.Stop()
		o.clearTimer = nil
	}
}

// caller holds mu
func (o *Orchestrator) inFlight() bool {
	return o.state == StateChecking || o.state == StateSubmitting
}

func (o *Orchestrator) log(outcome Outcome) {
	if o.logger == nil {
		return
	}
	fields := []zap.Field{zap.String("outcome", string(outcome.Kind))}
	switch outcome.Kind {
	case OutcomeRateLimitExceeded:
		fields = append(fields, zap.Int("remaining_seconds", outcome.RemainingSeconds))
	case OutcomeValidationFailure:
		fields = append(fields, zap.Int("invalid_fields", len(outcome.Errors)))
	case OutcomeSubmissionFailure:
		fields = append(fields, zap.Error(outcome.Err))
		o.logger.Warn("Contact submission failed", fields...)
		return
	}
	o.logger.Debug("Contact submission finished", fields...)
}

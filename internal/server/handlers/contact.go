package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/contact"
	"github.com/padillasconcrete/siteapi/internal/core"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/i18n"
	"github.com/padillasconcrete/siteapi/internal/server/middleware"
)

// contactRequest is the public form payload plus the honeypot field.
type contactRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Service   string `json:"service"`
	Message   string `json:"message"`
	Honeypot  string `json:"honeypot"`
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	Language  string `json:"language"`
}

type contactResponse struct {
	Success    bool   `json:"success"`
	MessageKey string `json:"messageKey"`
	Message    string `json:"message"`
	ID         string `json:"id"`
}

// errDeliveryStore marks a persistence failure so it maps to DATABASE_ERROR.
type errDeliveryStore struct{ err error }

func (e *errDeliveryStore) Error() string { return "store contact message: " + e.err.Error() }
func (e *errDeliveryStore) Unwrap() error { return e.err }

// Contact handles POST /api/contact. Each request runs one orchestrator
// cycle with the attempt log keyed by client address.
func (a *API) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	clientIP := middleware.ClientIP(r)
	meta := contact.ClientMetadata{
		UserAgent: firstNonEmpty(req.UserAgent, r.UserAgent()),
		Language:  firstNonEmpty(req.Language, r.Header.Get("Accept-Language"), a.DefaultLanguage),
	}
	printer := i18n.For(meta.Language)

	var stored *core.ContactMessage
	submitter := contact.SubmitterFunc(func(ctx context.Context, payload contact.Payload) error {
		msg, err := a.deliver(ctx, payload, clientIP)
		if err != nil {
			return err
		}
		stored = msg
		return nil
	})

	orch := contact.NewOrchestrator(a.Limiter.WithKey(clientIP), submitter,
		contact.WithConfirmationDelay(0),
		contact.WithMetadata(meta),
		contact.WithClock(a.now),
		contact.WithLogger(a.Logger),
	)
	orch.SetForm(contact.FormState{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Service:  req.Service,
		Message:  req.Message,
		Honeypot: req.Honeypot,
	})

	outcome, err := orch.Submit(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "contact submission failed"))
		return
	}

	switch outcome.Kind {
	case contact.OutcomeSuccess:
		writeJSON(w, http.StatusCreated, contactResponse{
			Success:    true,
			MessageKey: outcome.MessageKey,
			Message:    printer.T(outcome.MessageKey),
			ID:         stored.ID,
		})
	case contact.OutcomeSpamRejection:
		respondWithError(w, r, apperrors.NewSubmissionRejectedError())
	case contact.OutcomeRateLimitExceeded:
		respondWithError(w, r, apperrors.NewRateLimitedError(
			printer.T(outcome.MessageKey, outcome.RemainingSeconds), outcome.RemainingSeconds))
	case contact.OutcomeValidationFailure:
		fields := make(map[string]interface{}, len(outcome.Errors))
		for field, code := range outcome.Errors {
			fields[string(field)] = string(code)
		}
		respondWithError(w, r, apperrors.WithDetails(
			apperrors.NewValidationError(printer.T(outcome.MessageKey)),
			map[string]interface{}{"errors": fields, "messageKey": outcome.MessageKey}))
	default:
		var storeErr *errDeliveryStore
		if errors.As(outcome.Err, &storeErr) {
			respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), outcome.Err, printer.T(outcome.MessageKey)))
			return
		}
		respondWithError(w, r, apperrors.WrapExternalService(r.Context(), outcome.Err, printer.T(outcome.MessageKey)))
	}
}

// deliver persists the message and notifies the owner. Once the message is
// stored, a notification failure is logged and the submission still counts
// as delivered. Without a message store the notifier is the only channel.
func (a *API) deliver(ctx context.Context, payload contact.Payload, clientIP string) (*core.ContactMessage, error) {
	msg := &core.ContactMessage{
		ID:         uuid.NewString(),
		Name:       payload.Name,
		Email:      payload.Email,
		Phone:      payload.Phone,
		Service:    payload.Service,
		Message:    payload.Message,
		UserAgent:  payload.UserAgent,
		Language:   payload.Language,
		ClientIP:   clientIP,
		Timestamp:  payload.Timestamp,
		ReceivedAt: a.now(),
	}

	if a.Messages == nil {
		if a.Notifier == nil {
			return nil, errors.New("no contact delivery channel is configured")
		}
		if err := a.Notifier.Notify(ctx, *msg); err != nil {
			return nil, fmt.Errorf("notify via %s: %w", a.Notifier.Channel(), err)
		}
		msg.Notified = true
		return msg, nil
	}

	if err := a.Messages.InsertContactMessage(ctx, msg); err != nil {
		return nil, &errDeliveryStore{err: err}
	}
	if a.Notifier == nil {
		return msg, nil
	}
	if err := a.Notifier.Notify(ctx, *msg); err != nil {
		if a.Logger != nil {
			a.Logger.Warn("Contact notification failed",
				zap.String("message_id", msg.ID),
				zap.String("channel", a.Notifier.Channel()),
				zap.Error(err))
		}
		return msg, nil
	}
	if err := a.Messages.MarkContactMessageNotified(ctx, msg.ID); err != nil {
		if a.Logger != nil {
			a.Logger.Warn("Failed to mark contact message notified",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
		return msg, nil
	}
	msg.Notified = true
	return msg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/padillasconcrete/siteapi/internal/core/store"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
)

// ErrorResponder writes an error response for a failed request.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var errorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder routes handler errors through the server's central
// handler. nil restores the default.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	errorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	errorResponder(w, r, err)
}

// storeError maps store sentinels to API envelopes.
func storeError(ctx context.Context, err error, what string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError(what + " not found")
	case errors.Is(err, store.ErrConflict):
		return apperrors.WrapConflict(ctx, err, what+" already exists")
	case errors.Is(err, store.ErrUnknownPhoto):
		return apperrors.WrapInvalidInput(ctx, err, "photo order references unknown photos")
	default:
		return apperrors.WrapDatabaseError(ctx, err, "database error")
	}
}

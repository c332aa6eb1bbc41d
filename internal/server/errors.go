package server

import (
	"net/http"

	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/server/handlers"
	servermw "github.com/padillasconcrete/siteapi/internal/server/middleware"
)

// HandleError writes err as a JSON error envelope. Every error response from
// the router, middleware and handlers goes through it.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// installErrorResponders points handlers and middleware at HandleError.
// They cannot import this package directly.
func installErrorResponders() {
	handlers.SetHTTPErrorResponder(HandleError)
	servermw.SetErrorResponder(HandleError)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/go-playground/validator/v10"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/core/engine"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/media"
	"github.com/padillasconcrete/siteapi/internal/notify"
)

const maxJSONBody = 64 << 10

// MessageStore persists delivered contact messages.
type MessageStore interface {
	InsertContactMessage(ctx context.Context, msg *core.ContactMessage) error
	MarkContactMessageNotified(ctx context.Context, id string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *core.User) error
	UpdateUser(ctx context.Context, user *core.User) error
	DeleteUser(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetUserByUsername(ctx context.Context, username string) (*core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
}

type ProjectStore interface {
	CreateProject(ctx context.Context, project *core.Project) error
	UpdateProject(ctx context.Context, project *core.Project) error
	DeleteProject(ctx context.Context, id string) ([]core.Photo, error)
	GetProject(ctx context.Context, id string) (*core.Project, error)
	ListProjects(ctx context.Context) ([]core.Project, error)
	AddPhoto(ctx context.Context, photo *core.Photo) (*core.Photo, error)
	DeletePhoto(ctx context.Context, projectID, photoID string) (*core.Photo, error)
	ReorderPhotos(ctx context.Context, projectID string, ids []string) error
}

// API holds the dependencies of the /api handlers. Nil stores disable the
// routes that need them.
type API struct {
	Limiter  *engine.RateLimiter
	Messages MessageStore
	Notifier notify.Notifier
	Users    UserStore
	Projects ProjectStore
	Uploader *media.Uploader
	Issuer   *auth.Issuer
	Logger   *logging.Logger

	BcryptCost      int
	DefaultLanguage string
	Clock           func() time.Time
}

func (a *API) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now().UTC()
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a bounded JSON body into dst and runs struct validation.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.NewPayloadTooLargeError("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperrors.NewInvalidInputError("request body is required")
		}
		return apperrors.WrapInvalidInput(r.Context(), err, "malformed JSON body")
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewInvalidInputError(err.Error())
	}
	fields := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		fields[jsonFieldName(fe)] = describeRule(fe)
	}
	return apperrors.WithDetails(apperrors.NewValidationError("request validation failed"), map[string]interface{}{
		"errors": fields,
	})
}

func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.StructField()
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

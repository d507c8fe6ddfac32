package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/svclife/internal/app"
	"github.com/neomorfeo/svclife/internal/domain"
)

// Services bundles the application services exposed over HTTP.
type Services struct {
	Instances  *app.InstanceService
	Controller *app.Controller
	Scheduler  *app.Scheduler
	Tasks      *app.TaskManager
}

// Register adds all lifecycle API routes to the Huma API.
func Register(api huma.API, svc Services) {
	registerInstances(api, svc)
	registerEvents(api, svc)
	registerTasks(api, svc)
}

// ActorHeaders carries the caller's identity. An upstream auth proxy sets
// both headers; they are trusted as-is.
type ActorHeaders struct {
	ActorID   string `header:"X-Actor-ID" required:"false" doc:"Authenticated user ID"`
	ActorRole string `header:"X-Actor-Role" required:"false" doc:"Role of the authenticated user (admin, staff, client, observer)"`
}

// etag renders an instance version as a strong entity tag.
func etag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

// parseIfMatch reads an instance version from an If-Match header. An empty
// header means the caller did not pin a version.
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	raw := strings.Trim(strings.TrimPrefix(header, "W/"), `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 1 {
		return nil, huma.Error400BadRequest(fmt.Sprintf("If-Match must be an instance version tag such as %s", etag(1)))
	}
	return &version, nil
}

// actor returns the identity from the headers, or a 401 when it is missing
// or names an unknown role.
func (h ActorHeaders) actor() (domain.Actor, error) {
	if h.ActorID == "" || h.ActorRole == "" {
		return domain.Actor{}, huma.Error401Unauthorized("X-Actor-ID and X-Actor-Role headers are required")
	}

	role := domain.Role(h.ActorRole)
	if !role.Valid() {
		return domain.Actor{}, huma.Error401Unauthorized("unknown role " + h.ActorRole)
	}

	return domain.Actor{ID: h.ActorID, Role: role}, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInstanceNotFound),
		errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		return huma.Error404NotFound(rootMessage(err))
	case errors.Is(err, domain.ErrEventCompleted),
		errors.Is(err, domain.ErrTaskCompleted):
		return huma.Error409Conflict(rootMessage(err))
	}

	var conflictErr *domain.ConcurrencyConflictError
	if errors.As(err, &conflictErr) {
		return huma.Error409Conflict(conflictErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var authErr *domain.UnauthorizedError
	if errors.As(err, &authErr) {
		return huma.Error403Forbidden(authErr.Error())
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return huma.Error422UnprocessableEntity(valErr.Error())
	}

	var persistErr *domain.PersistenceError
	if errors.As(err, &persistErr) {
		return huma.Error503ServiceUnavailable("storage unavailable")
	}

	return huma.Error500InternalServerError("internal server error")
}

// rootMessage returns the message of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/glabrego/moments-cli/internal/app"
	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/mutation"
)

const problemBase = "https://github.com/glabrego/moments-cli/errors/"

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail"`
	Instance string       `json:"instance,omitempty"`
	Errors   []FieldError `json:"errors,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var problemTypes = map[int]struct {
	slug  string
	title string
}{
	http.StatusBadRequest:          {"bad-request", "Bad Request"},
	http.StatusNotFound:            {"not-found", "Not Found"},
	http.StatusConflict:            {"conflict", "Conflict"},
	http.StatusUnprocessableEntity: {"validation-error", "Validation Error"},
	http.StatusInternalServerError: {"internal-error", "Internal Server Error"},
	http.StatusBadGateway:          {"persistence-failed", "Persistence Failed"},
	http.StatusServiceUnavailable:  {"load-failed", "Service Unavailable"},
}

func (h *Handler) writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string, fields ...FieldError) {
	pt, ok := problemTypes[status]
	if !ok {
		pt.slug, pt.title = "unknown", http.StatusText(status)
	}
	p := Problem{
		Type:     problemBase + pt.slug,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Errors:   fields,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.Error("encode problem response", "path", r.URL.Path, "err", err)
	}
}

// writeError maps domain errors to problem responses. Unknown errors are
// reported as 500 without their details.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		h.writeProblem(w, r, http.StatusUnprocessableEntity, "request failed validation", fieldErrors(verrs)...)
	case errors.Is(err, feed.ErrAlreadyPending):
		h.writeProblem(w, r, http.StatusConflict, "a mutation of this kind is already pending for the item")
	case errors.Is(err, feed.ErrPersistenceFailed):
		h.writeProblem(w, r, http.StatusBadGateway, "the change could not be saved and was rolled back")
	case errors.Is(err, feed.ErrLoadFailed):
		h.writeProblem(w, r, http.StatusServiceUnavailable, "the feed could not be loaded")
	case errors.Is(err, app.ErrUnknownTimeline):
		h.writeProblem(w, r, http.StatusNotFound, "unknown timeline")
	case errors.Is(err, feed.ErrItemNotFound):
		h.writeProblem(w, r, http.StatusNotFound, "item not found")
	case errors.Is(err, feed.ErrInvalidConfiguration), errors.Is(err, mutation.ErrEmptyComment):
		h.writeProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("unhandled error", "path", r.URL.Path, "err", err)
		h.writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}

func fieldErrors(verrs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{Field: strings.ToLower(e.Field()), Message: fieldMessage(e)})
	}
	return out
}

func fieldMessage(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return field + " must be at least " + e.Param()
	case "max", "lte":
		return field + " must be at most " + e.Param()
	case "oneof":
		return field + " must be one of: " + e.Param()
	default:
		return field + " is invalid"
	}
}

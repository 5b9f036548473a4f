package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/glabrego/moments-cli/internal/app"
	"github.com/glabrego/moments-cli/internal/controller"
	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/logging"
	"github.com/glabrego/moments-cli/internal/metrics"
	"github.com/glabrego/moments-cli/internal/mutation"
	"github.com/glabrego/moments-cli/internal/pagination"
)

type Options struct {
	Version         string
	ItemsPerPage    int
	MaxVisiblePages int
	Sort            feed.SortKey
	Logger          *log.Logger
	Metrics         *metrics.Collector
	// AllowedOrigins enables CORS for browser clients when non-empty.
	AllowedOrigins []string
}

// Handler serves the feeds of a Runtime over HTTP. Every GET renders its
// own page from the query string; the shared controllers are not touched.
type Handler struct {
	runtime  *app.Runtime
	opts     Options
	logger   *log.Logger
	validate *validator.Validate
}

func NewHandler(rt *app.Runtime, opts Options) *Handler {
	v := validator.New()
	// Report JSON names in field errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		runtime:  rt,
		opts:     opts,
		logger:   logging.OrDiscard(opts.Logger),
		validate: v,
	}
}

type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Remote    bool            `json:"remote"`
	Timelines []feed.Timeline `json:"timelines"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   h.opts.Version,
		Remote:    h.runtime.Service().HasRemote(),
		Timelines: h.runtime.Timelines(),
	})
}

type feedQuery struct {
	Category  string   `json:"category"`
	Tags      []string `json:"tags" validate:"dive,required,max=64"`
	Attribute string   `json:"attribute"`
	Q         string   `json:"q" validate:"max=200"`
	Sort      string   `json:"sort" validate:"omitempty,oneof=date_desc date_asc score_desc score_asc"`
	Page      int      `json:"page" validate:"gte=1"`
	PerPage   int      `json:"per_page" validate:"gte=1,lte=100"`
}

type feedResponse struct {
	controller.RenderPage
	Facets feed.Facets `json:"facets"`
}

func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	t, err := h.timeline(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, fieldErrs := parseFeedQuery(r, h.opts.ItemsPerPage)
	if len(fieldErrs) > 0 {
		h.writeProblem(w, r, http.StatusUnprocessableEntity, "invalid query parameters", fieldErrs...)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		h.writeError(w, r, err)
		return
	}

	sortKey := h.opts.Sort
	if q.Sort != "" {
		sortKey, _ = feed.ParseSortKey(q.Sort)
	}
	filter := feed.DefaultFilter()
	if q.Category != "" {
		filter.Category = q.Category
	}
	if q.Attribute != "" {
		filter.Attribute = q.Attribute
	}
	filter.RequiredTags = q.Tags
	filter.SearchKeyword = q.Q

	items := t.Items.Items()
	page, err := controller.Render(string(t.Name), items, filter, sortKey, pagination.State{
		ItemsPerPage:    q.PerPage,
		CurrentPage:     q.Page,
		MaxVisiblePages: h.opts.MaxVisiblePages,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page = page.WithLoadError(t.Feed.LoadErr())
	h.writeJSON(w, http.StatusOK, feedResponse{RenderPage: page, Facets: feed.CollectFacets(items)})
}

func parseFeedQuery(r *http.Request, defaultPerPage int) (feedQuery, []FieldError) {
	values := r.URL.Query()
	q := feedQuery{
		Category:  strings.TrimSpace(values.Get("category")),
		Attribute: strings.TrimSpace(values.Get("attribute")),
		Q:         values.Get("q"),
		Sort:      strings.ToLower(strings.TrimSpace(values.Get("sort"))),
		Page:      1,
		PerPage:   defaultPerPage,
	}
	for _, raw := range values["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				q.Tags = append(q.Tags, tag)
			}
		}
	}

	var errs []FieldError
	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, FieldError{Field: "page", Message: "page must be an integer"})
		}
		q.Page = n
	}
	if v := values.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, FieldError{Field: "per_page", Message: "per_page must be an integer"})
		}
		q.PerPage = n
	}
	return q, errs
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	t, err := h.timeline(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := t.Feed.Load(r.Context(), t.Source, r.URL.Query().Get("category")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"total_items": t.Items.Len()})
}

type likeResponse struct {
	Outcome mutation.Outcome `json:"outcome"`
	Item    feed.Item        `json:"item"`
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	name, err := feed.ParseTimeline(chi.URLParam(r, "timeline"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", app.ErrUnknownTimeline, err))
		return
	}
	outcome, item, err := h.runtime.ToggleLike(r.Context(), name, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("toggle like failed", "timeline", name, "item", chi.URLParam(r, "id"), "outcome", outcome, "err", err)
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, likeResponse{Outcome: outcome, Item: item})
}

type commentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type commentResponse struct {
	Outcome mutation.Outcome `json:"outcome"`
	Comment feed.Comment     `json:"comment"`
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	name, err := feed.ParseTimeline(chi.URLParam(r, "timeline"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", app.ErrUnknownTimeline, err))
		return
	}

	var req commentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeProblem(w, r, http.StatusBadRequest, "request body must be JSON with a text field")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	comment, outcome, err := h.runtime.AddComment(r.Context(), name, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		h.logger.Warn("add comment failed", "timeline", name, "item", chi.URLParam(r, "id"), "outcome", outcome, "err", err)
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, commentResponse{Outcome: outcome, Comment: comment})
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	t, err := h.timeline(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	itemID := chi.URLParam(r, "id")
	if _, ok := t.Items.Get(itemID); !ok {
		h.writeError(w, r, feed.ErrItemNotFound)
		return
	}
	comments, err := h.runtime.Service().Comments(r.Context(), t.Name, itemID)
	if err != nil {
		h.logger.Error("list comments", "timeline", t.Name, "item", itemID, "err", err)
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]feed.Comment{"comments": comments})
}

func (h *Handler) timeline(r *http.Request) (*app.Timeline, error) {
	name, err := feed.ParseTimeline(chi.URLParam(r, "timeline"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", app.ErrUnknownTimeline, err)
	}
	return h.runtime.Timeline(name)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		h.logger.Error("encode response", "err", err)
	}
}

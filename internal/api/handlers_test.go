package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glabrego/moments-cli/internal/app"
	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/logging"
	"github.com/glabrego/moments-cli/internal/metrics"
	"github.com/glabrego/moments-cli/internal/mutation"
	"github.com/glabrego/moments-cli/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWithOrigins(t, nil)
}

func newTestServerWithOrigins(t *testing.T, origins []string) *httptest.Server {
	t.Helper()
	ts, _ := newTestEnv(t, origins)
	return ts
}

func newTestEnv(t *testing.T, origins []string) (*httptest.Server, *storage.Repository) {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "moments.db"))
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	seed := []feed.Item{
		{ID: "1", Title: "Kayak at dawn", Category: "travel", Tags: []string{"water"}, CreatedAt: "2026-03-01T08:00:00Z", Score: 3},
		{ID: "2", Title: "Ramen night", Category: "food", Tags: []string{"dinner"}, CreatedAt: "2026-03-02T08:00:00Z", Score: 1, LikeCount: 2},
		{ID: "3", Title: "Harbour walk", Category: "travel", Tags: []string{"water", "city"}, CreatedAt: "2026-03-03T08:00:00Z", Score: 2},
	}
	if err := repo.SaveItems(ctx, feed.TimelineMoments, seed); err != nil {
		t.Fatalf("SaveItems returned error: %v", err)
	}

	collector := metrics.NewCollector("moments")
	svc := app.NewService(nil, repo, app.ServiceOptions{Observer: collector})
	rt, err := app.NewRuntime(svc, app.RuntimeOptions{
		ItemsPerPage:     2,
		MaxVisiblePages:  5,
		PersistTimeout:   5 * time.Second,
		MutationObserver: collector.ObserveMutation,
	})
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if err := rt.Reload(ctx); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	h := NewHandler(rt, Options{
		Version:         "test",
		ItemsPerPage:    2,
		MaxVisiblePages: 5,
		Sort:            feed.DateDesc,
		Metrics:         collector,
		AllowedOrigins:  origins,
	})
	ts := httptest.NewServer(NewRouter(h))
	t.Cleanup(ts.Close)
	return ts, repo
}

func doJSON(t *testing.T, method, url, body string, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp
}

type feedBody struct {
	Feed        string      `json:"feed"`
	Items       []feed.Item `json:"items"`
	Pages       []int       `json:"pages"`
	CurrentPage int         `json:"current_page"`
	TotalPages  int         `json:"total_pages"`
	TotalItems  int         `json:"total_items"`
	Sort        string      `json:"sort"`
	LoadError   string      `json:"load_error"`
	Facets      feed.Facets `json:"facets"`
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body healthResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/health", "", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if body.Status != "ok" || body.Version != "test" || body.Remote {
		t.Fatalf("unexpected health body: %+v", body)
	}
	if len(body.Timelines) != 2 || body.Timelines[0] != feed.TimelineMoments {
		t.Fatalf("unexpected timelines: %v", body.Timelines)
	}
}

func TestGetFeed_DefaultPage(t *testing.T) {
	ts := newTestServer(t)

	var body feedBody
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments", "", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if body.Feed != "moments" || body.TotalItems != 3 || body.TotalPages != 2 || body.CurrentPage != 1 {
		t.Fatalf("unexpected page: %+v", body)
	}
	if len(body.Items) != 2 || body.Items[0].ID != "3" || body.Items[1].ID != "2" {
		t.Fatalf("unexpected items: %+v", body.Items)
	}
	if body.Sort != "date_desc" || body.LoadError != "" {
		t.Fatalf("unexpected sort or load error: %q %q", body.Sort, body.LoadError)
	}
	if strings.Join(body.Facets.Categories, ",") != "food,travel" {
		t.Fatalf("unexpected facets: %+v", body.Facets)
	}
}

func TestGetFeed_FilterSortAndPage(t *testing.T) {
	ts := newTestServer(t)

	var body feedBody
	doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments?category=travel&sort=score_desc&per_page=1&page=2", "", &body)
	if body.TotalItems != 2 || body.TotalPages != 2 || body.CurrentPage != 2 {
		t.Fatalf("unexpected page: %+v", body)
	}
	if len(body.Items) != 1 || body.Items[0].ID != "3" {
		t.Fatalf("unexpected items: %+v", body.Items)
	}

	doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments?tags=water,city", "", &body)
	if body.TotalItems != 1 || body.Items[0].ID != "3" {
		t.Fatalf("tag filter mismatch: %+v", body)
	}

	doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments?q=RAMEN", "", &body)
	if body.TotalItems != 1 || body.Items[0].ID != "2" {
		t.Fatalf("keyword filter mismatch: %+v", body)
	}
}

func TestGetFeed_PageBeyondRangeIsClamped(t *testing.T) {
	ts := newTestServer(t)

	var body feedBody
	doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments?page=9", "", &body)
	if body.CurrentPage != 2 || len(body.Items) != 1 || body.Items[0].ID != "1" {
		t.Fatalf("unexpected clamped page: %+v", body)
	}
}

func TestGetFeed_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		query string
		field string
	}{
		{"sort=random", "sort"},
		{"per_page=0", "per_page"},
		{"per_page=500", "per_page"},
		{"page=abc", "page"},
	}
	for _, tc := range cases {
		var p Problem
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments?"+tc.query, "", &p)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("%s: unexpected status %d", tc.query, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: unexpected content type %q", tc.query, ct)
		}
		if len(p.Errors) == 0 || p.Errors[0].Field != tc.field {
			t.Fatalf("%s: unexpected field errors %+v", tc.query, p.Errors)
		}
	}
}

func TestGetFeed_UnknownTimeline(t *testing.T) {
	ts := newTestServer(t)

	var p Problem
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/photos", "", &p)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if p.Type != problemBase+"not-found" || p.Instance != "/api/v1/feeds/photos" {
		t.Fatalf("unexpected problem: %+v", p)
	}
}

func TestToggleLike(t *testing.T) {
	ts := newTestServer(t)

	var body likeResponse
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/moments/items/2/like", "", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if body.Outcome != mutation.OutcomeCommitted || !body.Item.Liked || body.Item.LikeCount != 3 {
		t.Fatalf("unexpected like response: %+v", body)
	}

	doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/moments/items/2/like", "", &body)
	if body.Item.Liked || body.Item.LikeCount != 2 {
		t.Fatalf("unexpected unlike response: %+v", body)
	}

	var page feedBody
	doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments?q=ramen", "", &page)
	if page.Items[0].LikeCount != 2 {
		t.Fatalf("feed does not reflect the like state: %+v", page.Items[0])
	}

	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	raw, _ := io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(raw), `moments_mutations_total{kind="like",phase="committed",timeline="moments"} 1`) {
		t.Fatalf("mutation metric missing from:\n%s", raw)
	}
}

func TestToggleLike_UnknownItem(t *testing.T) {
	ts := newTestServer(t)

	var p Problem
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/moments/items/99/like", "", &p)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d (%+v)", resp.StatusCode, p)
	}
}

func TestComments(t *testing.T) {
	ts := newTestServer(t)

	var created commentResponse
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/moments/items/1/comments", `{"text":"  lovely light  "}`, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if created.Outcome != mutation.OutcomeCommitted || created.Comment.Text != "lovely light" || created.Comment.ItemID != "1" {
		t.Fatalf("unexpected comment response: %+v", created)
	}

	var list map[string][]feed.Comment
	doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments/items/1/comments", "", &list)
	if len(list["comments"]) != 1 || list["comments"][0].ID != created.Comment.ID {
		t.Fatalf("unexpected comments: %+v", list)
	}

	var page feedBody
	doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments?q=kayak", "", &page)
	if page.Items[0].CommentCount != 1 {
		t.Fatalf("comment count not applied: %+v", page.Items[0])
	}
}

func TestComments_Invalid(t *testing.T) {
	ts := newTestServer(t)

	var p Problem
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/moments/items/1/comments", `{"text":"   "}`, &p)
	if resp.StatusCode != http.StatusUnprocessableEntity || len(p.Errors) != 1 || p.Errors[0].Field != "text" {
		t.Fatalf("unexpected response: %d %+v", resp.StatusCode, p)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/moments/items/1/comments", `not json`, &p)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status for bad body: %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments/items/99/comments", "", &p)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status for missing item: %d", resp.StatusCode)
	}
}

func TestReload(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]int
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/diary/reload", "", &body)
	if resp.StatusCode != http.StatusOK || body["total_items"] != 0 {
		t.Fatalf("unexpected reload response: %d %+v", resp.StatusCode, body)
	}
}

func TestGetFeed_FailedReloadMarksPageStale(t *testing.T) {
	ts, repo := newTestEnv(t, nil)
	if err := repo.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/feeds/moments/reload", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for failed reload, got %d", resp.StatusCode)
	}

	var body feedBody
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/feeds/moments", "", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if body.TotalItems != 3 {
		t.Fatalf("expected last known items, got %+v", body)
	}
	if !strings.Contains(body.LoadError, "load failed") {
		t.Fatalf("expected load_error on a stale page, got %q", body.LoadError)
	}
}

func TestWriteError_LogsThroughHandlerLogger(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(nil, Options{Logger: logging.New(&buf, "debug")})

	rec := httptest.NewRecorder()
	h.writeError(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feeds/moments", nil), errors.New("disk on fire"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Fatalf("internal error leaked to the client: %s", rec.Body.String())
	}
	if out := buf.String(); !strings.Contains(out, "unhandled error") || !strings.Contains(out, "disk on fire") {
		t.Fatalf("expected error in handler log, got %q", out)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := NewHandler(nil, Options{})
	handler := h.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Type != problemBase+"internal-error" {
		t.Fatalf("unexpected problem: %+v", p)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	ts := newTestServerWithOrigins(t, []string{"http://localhost:3000"})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/feeds/moments/items/1/like", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q (status %d)", got, resp.StatusCode)
	}
}

func TestRouter_NoCORSWithoutOrigins(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS header, got %q", got)
	}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/mutation"
	"github.com/glabrego/moments-cli/internal/remote"
	"github.com/glabrego/moments-cli/internal/storage"
)

func TestIntegration_RemoteOutageFallsBackToSqlite(t *testing.T) {
	var down atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/moments.json":
			_, _ = w.Write([]byte(`[{"id":"1","title":"Kayak","category":"travel","created_at":"2026-02-01T08:00:00Z","like_count":3},{"id":"2","title":"Ramen","category":"food","created_at":"2026-02-02T08:00:00Z"}]`))
		case "/diary.json":
			_, _ = w.Write([]byte(`[]`))
		case "/moments/1/like.json":
			_ = json.NewEncoder(w).Encode(map[string]int{"like_count": 4})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "moments.db"))
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	svc := NewService(remote.NewClient(ts.URL, "token", ts.Client(), 0), repo, ServiceOptions{})
	rt, err := NewRuntime(svc, RuntimeOptions{ItemsPerPage: 10, MaxVisiblePages: 5, PersistTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	ctx := context.Background()
	if err := rt.Reload(ctx); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	outcome, item, err := rt.ToggleLike(ctx, feed.TimelineMoments, "1")
	if err != nil || outcome != mutation.OutcomeCommitted {
		t.Fatalf("ToggleLike: outcome=%s err=%v", outcome, err)
	}
	if !item.Liked || item.LikeCount != 4 {
		t.Fatalf("unexpected liked item: %+v", item)
	}

	down.Store(true)
	if err := rt.ReloadTimeline(ctx, feed.TimelineMoments, ""); err != nil {
		t.Fatalf("reload during outage should use the cache: %v", err)
	}
	moments, _ := rt.Timeline(feed.TimelineMoments)
	page := moments.Feed.Page()
	if page.TotalItems != 2 || page.Items[0].ID != "2" {
		t.Fatalf("unexpected cached page: %+v", page)
	}
	if got := page.Items[1]; !got.Liked || got.LikeCount != 4 {
		t.Fatalf("mirrored like missing from cache: %+v", got)
	}

	_, _, err = rt.ToggleLike(ctx, feed.TimelineMoments, "2")
	if !errors.Is(err, feed.ErrPersistenceFailed) {
		t.Fatalf("expected like to fail during outage, got %v", err)
	}
}

func TestIntegration_LocalSourceAgainstSqlite(t *testing.T) {
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "moments.db"))
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()
	if err := repo.SaveItems(ctx, feed.TimelineDiary, []feed.Item{
		{ID: "1", Title: "Soup", Category: "food", CreatedAt: "2026-02-01T08:00:00Z"},
		{ID: "2", Title: "Hike", Category: "travel", CreatedAt: "2026-02-02T08:00:00Z", Liked: true},
	}); err != nil {
		t.Fatalf("SaveItems returned error: %v", err)
	}

	src := NewService(nil, repo, ServiceOptions{}).Source(feed.TimelineDiary)

	food, err := src.LoadByCategory(ctx, "food")
	if err != nil || len(food) != 1 || food[0].ID != "1" {
		t.Fatalf("LoadByCategory: items=%+v err=%v", food, err)
	}

	count, err := src.Like(ctx, "1")
	if err != nil || count != 1 {
		t.Fatalf("Like: count=%d err=%v", count, err)
	}
	if count, err = src.Like(ctx, "1"); err != nil || count != 1 {
		t.Fatalf("second Like should be a no-op: count=%d err=%v", count, err)
	}
	if count, err = src.Unlike(ctx, "2"); err != nil || count != 0 {
		t.Fatalf("Unlike should floor at zero: count=%d err=%v", count, err)
	}

	comment, err := src.AddComment(ctx, "1", "warming")
	if err != nil || comment.ID == "" || comment.ItemID != "1" {
		t.Fatalf("AddComment: comment=%+v err=%v", comment, err)
	}
	if _, err := src.AddComment(ctx, "missing", "x"); !errors.Is(err, feed.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	all, err := src.LoadAll(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("LoadAll: items=%+v err=%v", all, err)
	}
	for _, item := range all {
		if item.ID == "1" && (!item.Liked || item.LikeCount != 1 || item.CommentCount != 1) {
			t.Fatalf("mutations not persisted: %+v", item)
		}
	}

	moments, err := repo.ListItems(ctx, feed.TimelineMoments, feed.All)
	if err != nil || len(moments) != 0 {
		t.Fatalf("source wrote outside its timeline: items=%+v err=%v", moments, err)
	}
}

func TestIntegration_LiveRemote(t *testing.T) {
	if os.Getenv("MOMENTS_INTEGRATION") != "1" {
		t.Skip("set MOMENTS_INTEGRATION=1 to run integration tests")
	}
	baseURL := os.Getenv("MOMENTS_REMOTE_BASE_URL")
	if baseURL == "" {
		t.Skip("MOMENTS_REMOTE_BASE_URL is required")
	}

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "moments-integration.db"))
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	client := remote.NewClient(baseURL, os.Getenv("MOMENTS_REMOTE_TOKEN"), nil, 2)
	svc := NewService(client, repo, ServiceOptions{})
	items, err := svc.Load(ctx, feed.TimelineMoments, feed.All)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(items) == 0 {
		t.Skip("remote timeline is empty")
	}

	// Toggle twice so the account ends where it started.
	rt, err := NewRuntime(svc, RuntimeOptions{ItemsPerPage: 10, MaxVisiblePages: 5})
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if err := rt.ReloadTimeline(ctx, feed.TimelineMoments, ""); err != nil {
		t.Fatalf("ReloadTimeline returned error: %v", err)
	}
	id := items[0].ID
	for i := 0; i < 2; i++ {
		if _, _, err := rt.ToggleLike(ctx, feed.TimelineMoments, id); err != nil {
			t.Fatalf("ToggleLike %d returned error: %v", i, err)
		}
	}
}

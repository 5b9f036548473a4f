package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/storage/migrations"
)

// Repository is the local sqlite copy of every timeline. It serves as the
// offline fallback data source and as persistence when no remote store is
// configured.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, now: time.Now}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveItems upserts items into timeline. Like and comment state is taken
// from the items as given.
func (r *Repository) SaveItems(ctx context.Context, timeline feed.Timeline, items []feed.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO items (timeline, id, title, author, body, category, tags, attribute, created_at, score, like_count, liked, comment_count, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(timeline, id) DO UPDATE SET
  title=excluded.title,
  author=excluded.author,
  body=excluded.body,
  category=excluded.category,
  tags=excluded.tags,
  attribute=excluded.attribute,
  created_at=excluded.created_at,
  score=excluded.score,
  like_count=excluded.like_count,
  liked=excluded.liked,
  comment_count=excluded.comment_count,
  fetched_at=excluded.fetched_at
`)
	if err != nil {
		return fmt.Errorf("prepare save statement: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC().Format(time.RFC3339Nano)
	for _, item := range items {
		tags, err := json.Marshal(nonNil(item.Tags))
		if err != nil {
			return fmt.Errorf("encode tags for item %s: %w", item.ID, err)
		}
		_, err = stmt.ExecContext(
			ctx,
			string(timeline),
			item.ID,
			item.Title,
			item.Author,
			item.Body,
			item.Category,
			string(tags),
			item.Attribute,
			item.CreatedAt,
			item.Score,
			max(item.LikeCount, 0),
			item.Liked,
			max(item.CommentCount, 0),
			now,
		)
		if err != nil {
			return fmt.Errorf("save item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListItems returns the cached items of timeline, newest first. An empty
// category or feed.All lists every category.
func (r *Repository) ListItems(ctx context.Context, timeline feed.Timeline, category string) ([]feed.Item, error) {
	query := `
SELECT id, title, author, body, category, tags, attribute, created_at, score, like_count, liked, comment_count
FROM items
WHERE timeline = ?`
	args := []any{string(timeline)}
	if category != "" && category != feed.All {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]feed.Item, 0, 32)
	for rows.Next() {
		item := feed.Item{Timeline: timeline}
		var tags string
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Author,
			&item.Body,
			&item.Category,
			&tags,
			&item.Attribute,
			&item.CreatedAt,
			&item.Score,
			&item.LikeCount,
			&item.Liked,
			&item.CommentCount,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// SetLiked moves the like state of an item by one step. Setting the state
// the item already has is a no-op. It returns the resulting like count.
func (r *Repository) SetLiked(ctx context.Context, timeline feed.Timeline, itemID string, liked bool) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		current bool
		count   int
	)
	err = tx.QueryRowContext(ctx, `SELECT liked, like_count FROM items WHERE timeline = ? AND id = ?`, string(timeline), itemID).Scan(&current, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("set liked %s: %w", itemID, feed.ErrItemNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read like state %s: %w", itemID, err)
	}
	if current == liked {
		return count, tx.Commit()
	}

	if liked {
		count++
	} else if count > 0 {
		count--
	}
	if _, err := tx.ExecContext(ctx, `UPDATE items SET liked = ?, like_count = ? WHERE timeline = ? AND id = ?`, liked, count, string(timeline), itemID); err != nil {
		return 0, fmt.Errorf("update like state %s: %w", itemID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return count, nil
}

// MirrorLike records a like state confirmed by the remote store.
func (r *Repository) MirrorLike(ctx context.Context, timeline feed.Timeline, itemID string, liked bool, count int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE items SET liked = ?, like_count = ? WHERE timeline = ? AND id = ?`, liked, max(count, 0), string(timeline), itemID)
	if err != nil {
		return fmt.Errorf("mirror like %s: %w", itemID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mirror like %s: %w", itemID, feed.ErrItemNotFound)
	}
	return nil
}

// AddComment stores a new comment and bumps the item's comment count.
func (r *Repository) AddComment(ctx context.Context, timeline feed.Timeline, itemID, text string) (feed.Comment, error) {
	comment := feed.Comment{
		ID:        ulid.Make().String(),
		ItemID:    itemID,
		Text:      text,
		CreatedAt: r.now().UTC(),
	}
	if err := r.SaveComment(ctx, timeline, comment); err != nil {
		return feed.Comment{}, err
	}
	return comment, nil
}

// SaveComment stores comment, typically one already accepted by the remote
// store. Saving the same comment twice changes nothing.
func (r *Repository) SaveComment(ctx context.Context, timeline feed.Timeline, comment feed.Comment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE timeline = ? AND id = ?`, string(timeline), comment.ItemID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("save comment on %s: %w", comment.ItemID, feed.ErrItemNotFound)
	}
	if err != nil {
		return fmt.Errorf("read item %s: %w", comment.ItemID, err)
	}

	if comment.ID == "" {
		comment.ID = ulid.Make().String()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = r.now().UTC()
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO comments (id, timeline, item_id, text, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, comment.ID, string(timeline), comment.ItemID, comment.Text, comment.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE items SET comment_count = comment_count + 1 WHERE timeline = ? AND id = ?`, string(timeline), comment.ItemID); err != nil {
			return fmt.Errorf("update comment count %s: %w", comment.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListComments returns the comments on an item, oldest first.
func (r *Repository) ListComments(ctx context.Context, timeline feed.Timeline, itemID string) ([]feed.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, item_id, text, created_at
FROM comments
WHERE timeline = ? AND item_id = ?
ORDER BY created_at, id
`, string(timeline), itemID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]feed.Comment, 0, 8)
	for rows.Next() {
		var (
			c         feed.Comment
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.ItemID, &c.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse comment created_at %q: %w", createdAt, err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return comments, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Package blog stores generated posts and their images, and publishes them.
// It is the content store behind the generation gateway's ContentRef handles.
package blog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itgyani/blogpulse/errors"
)

// Status is a post's publication state
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Post is one generated blog post
type Post struct {
	ID              string     `json:"id"`
	SeriesID        string     `json:"series_id,omitempty"`
	JobID           string     `json:"job_id,omitempty"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	Category        string     `json:"category,omitempty"`
	Content         string     `json:"content"`
	MetaDescription string     `json:"meta_description,omitempty"`
	Excerpt         string     `json:"excerpt,omitempty"`
	ReadingMinutes  int        `json:"reading_minutes"`
	Tags            []string   `json:"tags,omitempty"`
	Model           string     `json:"model,omitempty"`
	Status          Status     `json:"status"`
	ImageIDs        []string   `json:"image_ids,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

// Image is a stored post image
type Image struct {
	ID          string    `json:"id"`
	PostID      string    `json:"post_id"`
	Position    int       `json:"position"`
	Prompt      string    `json:"prompt,omitempty"`
	ContentType string    `json:"content_type"`
	Model       string    `json:"model,omitempty"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats counts stored content
type Stats struct {
	Drafts    int `json:"drafts"`
	Published int `json:"published"`
	Images    int `json:"images"`
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists posts in SQLite (posts and post_images tables)
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// NewStore creates a store over a migrated database. A nil clock means time.Now.
func NewStore(db *sql.DB, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: db, clock: clock}
}

const postColumns = `id, series_id, job_id, title, slug, category, content,
	meta_description, excerpt, reading_minutes, tags, model, status, created_at, published_at`

// SavePost inserts p as a draft, filling ID, Slug, Status and CreatedAt when empty
func (s *Store) SavePost(ctx context.Context, p *Post) error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return errors.NewValidationError("post title cannot be empty")
	}
	if strings.TrimSpace(p.Content) == "" {
		return errors.NewValidationError("post content cannot be empty")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock()
	}
	tags, err := json.Marshal(nonNil(p.Tags))
	if err != nil {
		return errors.Wrap(err, "failed to encode tags")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SeriesID, p.JobID, p.Title, p.Slug, p.Category, p.Content,
		p.MetaDescription, p.Excerpt, p.ReadingMinutes, string(tags), p.Model,
		string(p.Status), formatTime(p.CreatedAt), formatTimePtr(p.PublishedAt))
	if err != nil {
		return errors.Wrapf(err, "failed to save post %q", p.Title)
	}
	return nil
}

// AddImage appends an image to a post and returns the image ID
func (s *Store) AddImage(ctx context.Context, postID string, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", errors.NewValidationError("image data cannot be empty")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_images (id, post_id, position, prompt, content_type, model, data, created_at)
		VALUES (?, ?, (SELECT COUNT(*) FROM post_images WHERE post_id = ?), ?, ?, ?, ?, ?)`,
		id, postID, postID, img.Prompt, img.ContentType, img.Model, img.Data, formatTime(s.clock()))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return "", errors.NewNotFoundError("post %s not found", postID)
		}
		return "", errors.Wrap(err, "failed to save image")
	}
	return id, nil
}

// GetPost returns a post with its image IDs
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("post %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM post_images WHERE post_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query images")
	}
	defer rows.Close()
	for rows.Next() {
		var imageID string
		if err := rows.Scan(&imageID); err != nil {
			return nil, errors.Wrap(err, "failed to scan image id")
		}
		p.ImageIDs = append(p.ImageIDs, imageID)
	}
	return p, errors.Wrap(rows.Err(), "failed to iterate images")
}

// GetImage returns one image including its bytes
func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	var (
		img       Image
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, position, prompt, content_type, model, data, created_at
		FROM post_images WHERE id = ?`, id).
		Scan(&img.ID, &img.PostID, &img.Position, &img.Prompt, &img.ContentType, &img.Model, &img.Data, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("image %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load image")
	}
	if img.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &img, nil
}

// ListPosts returns posts newest first, optionally filtered by status.
// limit <= 0 means no limit.
func (s *Store) ListPosts(ctx context.Context, status *Status, limit int) ([]*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query posts")
	}
	defer rows.Close()

	posts := []*Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, errors.Wrap(rows.Err(), "failed to iterate posts")
}

// Publish marks a post published. Publishing twice is a no-op.
// Store satisfies generation.Publisher with this method.
func (s *Store) Publish(ctx context.Context, postID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, published_at = ? WHERE id = ? AND status = ?`,
		string(StatusPublished), formatTime(s.clock()), postID, string(StatusDraft))
	if err != nil {
		return errors.Wrapf(err, "failed to publish post %s", postID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM posts WHERE id = ?`, postID).Scan(&status)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError("post %s not found", postID)
	}
	return errors.Wrapf(err, "failed to check post %s", postID)
}

// DeletePost removes a draft and its images. Published posts are kept and
// reported as a ConflictError.
func (s *Store) DeletePost(ctx context.Context, postID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM posts WHERE id = ?`, postID).Scan(&status)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError("post %s not found", postID)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to check post %s", postID)
	}
	if Status(status) != StatusDraft {
		return errors.NewConflictError("post %s is %s, only drafts can be deleted", postID, status)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_images WHERE post_id = ?`, postID); err != nil {
		return errors.Wrapf(err, "failed to delete images of post %s", postID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, postID); err != nil {
		return errors.Wrapf(err, "failed to delete post %s", postID)
	}
	return errors.Wrap(tx.Commit(), "failed to commit post deletion")
}

// Stats counts drafts, published posts and images
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM posts WHERE status = ?),
			(SELECT COUNT(*) FROM posts WHERE status = ?),
			(SELECT COUNT(*) FROM post_images)`,
		string(StatusDraft), string(StatusPublished)).
		Scan(&st.Drafts, &st.Published, &st.Images)
	return st, errors.Wrap(err, "failed to count posts")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		p            Post
		tags, status string
		createdAt    string
		publishedAt  sql.NullString
	)
	err := row.Scan(&p.ID, &p.SeriesID, &p.JobID, &p.Title, &p.Slug, &p.Category, &p.Content,
		&p.MetaDescription, &p.Excerpt, &p.ReadingMinutes, &tags, &p.Model, &status, &createdAt, &publishedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan post")
	}

	p.Status = Status(status)
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, errors.Wrapf(err, "post %s has corrupt tags", p.ID)
	}
	if len(p.Tags) == 0 {
		p.Tags = nil
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if publishedAt.Valid && publishedAt.String != "" {
		t, err := parseTime(publishedAt.String)
		if err != nil {
			return nil, err
		}
		p.PublishedAt = &t
	}
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid stored time %q", s)
	}
	return t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

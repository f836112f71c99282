package blog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itgyani/blogpulse/errors"
	bptest "github.com/itgyani/blogpulse/internal/testing"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	return NewStore(bptest.CreateTestDB(t), func() time.Time { return now })
}

func TestSavePostAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := &Post{
		SeriesID: "s1",
		JobID:    "j1",
		Title:    "  Go Generics in Practice! ",
		Category: "engineering",
		Content:  "# Intro\nGenerics arrived in Go 1.18.",
		Tags:     []string{"go", "generics"},
		Model:    "openai/gpt-4o-mini",
	}
	require.NoError(t, store.SavePost(ctx, post))
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "go-generics-in-practice", post.Slug)
	assert.Equal(t, StatusDraft, post.Status)

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Generics in Practice!", got.Title)
	assert.Equal(t, []string{"go", "generics"}, got.Tags)
	assert.Equal(t, "s1", got.SeriesID)
	assert.Equal(t, StatusDraft, got.Status)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Nil(t, got.PublishedAt)
	assert.Empty(t, got.ImageIDs)
}

func TestSavePostValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SavePost(ctx, &Post{Title: " ", Content: "body"})
	assert.True(t, errors.IsValidationError(err))
	err = store.SavePost(ctx, &Post{Title: "Title", Content: "\n"})
	assert.True(t, errors.IsValidationError(err))
}

func TestGetPostNotFound(t *testing.T) {
	_, err := newTestStore(t).GetPost(context.Background(), "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestImages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	post := &Post{Title: "Pictures", Content: "body"}
	require.NoError(t, store.SavePost(ctx, post))

	first, err := store.AddImage(ctx, post.ID, Image{Prompt: "one", ContentType: "image/png", Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	second, err := store.AddImage(ctx, post.ID, Image{Prompt: "two", ContentType: "image/jpeg", Data: []byte{4}})
	require.NoError(t, err)

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, got.ImageIDs)

	img, err := store.GetImage(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Position)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, []byte{4}, img.Data)

	_, err = store.AddImage(ctx, "missing", Image{ContentType: "image/png", Data: []byte{1}})
	assert.True(t, errors.IsNotFoundError(err))
	_, err = store.AddImage(ctx, post.ID, Image{ContentType: "image/png"})
	assert.True(t, errors.IsValidationError(err))
	_, err = store.GetImage(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestPublish(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	post := &Post{Title: "Ship it", Content: "body"}
	require.NoError(t, store.SavePost(ctx, post))

	require.NoError(t, store.Publish(ctx, post.ID))
	require.NoError(t, store.Publish(ctx, post.ID), "publishing twice is a no-op")

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, now.Equal(*got.PublishedAt))

	assert.True(t, errors.IsNotFoundError(store.Publish(ctx, "missing")))
}

func TestDeletePost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	draft := &Post{Title: "Abandoned", Content: "body"}
	require.NoError(t, store.SavePost(ctx, draft))
	imageID, err := store.AddImage(ctx, draft.ID, Image{ContentType: "image/png", Data: []byte{1}})
	require.NoError(t, err)

	require.NoError(t, store.DeletePost(ctx, draft.ID))
	_, err = store.GetPost(ctx, draft.ID)
	assert.True(t, errors.IsNotFoundError(err))
	_, err = store.GetImage(ctx, imageID)
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(store.DeletePost(ctx, draft.ID)))

	published := &Post{Title: "Live", Content: "body"}
	require.NoError(t, store.SavePost(ctx, published))
	require.NoError(t, store.Publish(ctx, published.ID))
	assert.True(t, errors.IsConflictError(store.DeletePost(ctx, published.ID)))
}

func TestListPostsAndStats(t *testing.T) {
	db := bptest.CreateTestDB(t)
	clock := now
	store := NewStore(db, func() time.Time { return clock })
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		p := &Post{Title: title, Content: "body"}
		require.NoError(t, store.SavePost(ctx, p))
		ids = append(ids, p.ID)
		clock = clock.Add(time.Minute)
	}
	require.NoError(t, store.Publish(ctx, ids[0]))
	_, err := store.AddImage(ctx, ids[1], Image{ContentType: "image/png", Data: []byte{1}})
	require.NoError(t, err)

	all, err := store.ListPosts(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Title, "newest first")

	drafts := StatusDraft
	got, err := store.ListPosts(ctx, &drafts, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "third", got[0].Title)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Drafts: 2, Published: 1, Images: 1}, stats)
}

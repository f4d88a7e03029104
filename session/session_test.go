package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStorePutAndGet(t *testing.T) {
	s := NewStore()
	conv := uuid.New()

	id := s.Put(ImageSession{
		ConversationID: conv,
		Prompt:         "a red square",
		Images:         []string{"v0.png", "v1.png"},
	})
	require.NotEqual(t, uuid.Nil, id)

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, "a red square", got.Prompt)
	require.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(uuid.New())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreListByConversation(t *testing.T) {
	s := NewStore()
	conv := uuid.New()

	first := s.Put(ImageSession{ConversationID: conv, Prompt: "first"})
	second := s.Put(ImageSession{ConversationID: conv, Prompt: "second"})
	s.Put(ImageSession{ConversationID: uuid.New(), Prompt: "other"})

	got, err := s.ListSessionsByConversation(context.Background(), conv)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := []uuid.UUID{got[0].ID, got[1].ID}
	require.Contains(t, ids, first)
	require.Contains(t, ids, second)
}

func TestStoreSelectVersion(t *testing.T) {
	s := NewStore()
	id := s.Put(ImageSession{
		ConversationID: uuid.New(),
		Images:         []string{"v0.png", "v1.png", "v2.png"},
	})

	require.NoError(t, s.SelectVersion(context.Background(), id, 2))
	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, 2, got.SelectedVersion)
	require.Equal(t, "v2.png", got.ImageURL())

	require.ErrorIs(t, s.SelectVersion(context.Background(), id, 3), ErrVersionOutOfRange)
	require.ErrorIs(t, s.SelectVersion(context.Background(), id, -1), ErrVersionOutOfRange)
	require.ErrorIs(t, s.SelectVersion(context.Background(), uuid.New(), 0), ErrSessionNotFound)
}

func TestStorePushUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	conv := uuid.New()

	// Push with a fresh id creates the session.
	id := uuid.New()
	require.NoError(t, s.PushUpdate(ctx, ImageSession{
		ID: id, ConversationID: conv, Prompt: "from store", Images: []string{"a.png"},
	}))
	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, "from store", got.Prompt)

	// A second push without images keeps the history.
	require.NoError(t, s.PushUpdate(ctx, ImageSession{ID: id, Prompt: "edited"}))
	got, err = s.Get(id)
	require.NoError(t, err)
	require.Equal(t, "edited", got.Prompt)
	require.Equal(t, []string{"a.png"}, got.Images)

	require.Error(t, s.PushUpdate(ctx, ImageSession{}))
}

func TestImageURL(t *testing.T) {
	require.Equal(t, "", ImageSession{}.ImageURL())
	require.Equal(t, "a", ImageSession{Images: []string{"a", "b"}}.ImageURL())
	require.Equal(t, "b", ImageSession{Images: []string{"a", "b"}, SelectedVersion: 1}.ImageURL())
	require.Equal(t, "a", ImageSession{Images: []string{"a", "b"}, SelectedVersion: 9}.ImageURL())
}

func TestStoreContextCancelled(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListSessionsByConversation(ctx, uuid.New())
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, s.SelectVersion(ctx, uuid.New(), 0), context.Canceled)
}

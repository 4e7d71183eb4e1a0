package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converselabs/contextd/internal/storage"
	"github.com/converselabs/contextd/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "morning chat")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	assert.Equal(t, 0, session.MessageCount)

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "morning chat", got.Name)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	require.NoError(t, store.DeleteSession(ctx, session.ID))

	_, err = store.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.DeleteSession(ctx, session.ID), storage.ErrNotFound)
}

func TestAddMessage_BumpsMessageCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.AddMessage(ctx, session.ID, "user", "hello")
		require.NoError(t, err)
	}

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
}

func TestAddMessage_UnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddMessage(context.Background(), "no-such-session", "user", "hello")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListMessages_NewestFirstWithEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "")
	require.NoError(t, err)

	first, err := store.AddMessage(ctx, session.ID, "user", "first")
	require.NoError(t, err)
	second, err := store.AddMessage(ctx, session.ID, "assistant", "second")
	require.NoError(t, err)

	vector := []float64{0.25, -1.5, 3.0}
	require.NoError(t, store.StoreEmbedding(ctx, first.ID, vector))

	messages, err := store.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, second.ID, messages[0].ID, "newest message first")
	assert.Nil(t, messages[0].Embedding)
	assert.Equal(t, first.ID, messages[1].ID)
	assert.Equal(t, vector, messages[1].Embedding)
}

func TestStoreEmbedding_ReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "")
	require.NoError(t, err)
	message, err := store.AddMessage(ctx, session.ID, "user", "hello")
	require.NoError(t, err)

	require.NoError(t, store.StoreEmbedding(ctx, message.ID, []float64{1, 2}))
	require.NoError(t, store.StoreEmbedding(ctx, message.ID, []float64{3, 4, 5}))

	messages, err := store.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, []float64{3, 4, 5}, messages[0].Embedding)
}

func TestUpsertEntity_MentionCountInvariant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "")
	require.NoError(t, err)

	metadata := map[string]string{"source": "analyzer"}

	first, err := store.UpsertEntity(ctx, session.ID, types.EntityPerson, "Ada", 0.9, metadata)
	require.NoError(t, err)
	assert.Equal(t, 1, first.MentionCount)
	assert.Equal(t, first.FirstMentionedAt, first.LastMentionedAt)
	assert.Equal(t, metadata, first.Metadata)

	var last *types.EntityRecord
	for i := 2; i <= 5; i++ {
		last, err = store.UpsertEntity(ctx, session.ID, types.EntityPerson, "Ada", 0.1, map[string]string{"source": "other"})
		require.NoError(t, err)
		assert.Equal(t, i, last.MentionCount, "mention count equals number of upserts")
	}

	assert.Equal(t, first.ID, last.ID, "same triple resolves to the same row")
	assert.Equal(t, first.FirstMentionedAt, last.FirstMentionedAt, "first_mentioned_at never moves")
	assert.False(t, last.LastMentionedAt.Before(first.LastMentionedAt), "last_mentioned_at is monotonically non-decreasing")
	assert.InDelta(t, 0.9, last.Confidence, 1e-9, "confidence keeps its original value")
	assert.Equal(t, metadata, last.Metadata, "stored metadata is untouched on merge")
}

func TestUpsertEntity_TripleIsCaseSensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "")
	require.NoError(t, err)

	_, err = store.UpsertEntity(ctx, session.ID, types.EntityPlace, "Paris", 0.8, nil)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, session.ID, types.EntityPlace, "paris", 0.8, nil)
	require.NoError(t, err)

	records, err := store.ListEntities(ctx, session.ID, types.EntityPlace)
	require.NoError(t, err)
	assert.Len(t, records, 2, "value comparison is case-sensitive")
}

func TestListEntities_OrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "")
	require.NoError(t, err)

	// "Rome" mentioned three times, "Oslo" once, one person.
	for i := 0; i < 3; i++ {
		_, err = store.UpsertEntity(ctx, session.ID, types.EntityPlace, "Rome", 0.8, nil)
		require.NoError(t, err)
	}
	_, err = store.UpsertEntity(ctx, session.ID, types.EntityPlace, "Oslo", 0.8, nil)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, session.ID, types.EntityPerson, "Ada", 0.9, nil)
	require.NoError(t, err)

	places, err := store.ListEntities(ctx, session.ID, types.EntityPlace)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "Rome", places[0].Value, "higher mention count sorts first")
	assert.Equal(t, "Oslo", places[1].Value)

	all, err := store.ListEntities(ctx, session.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestContextEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "")
	require.NoError(t, err)
	message, err := store.AddMessage(ctx, session.ID, "user", "my favorite color is blue")
	require.NoError(t, err)

	stored, err := store.AddContext(ctx, &types.ContextEntry{
		SessionID:       session.ID,
		Key:             "favorite_color",
		Value:           "blue",
		Confidence:      0.9,
		SourceMessageID: message.ID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "fact", stored.Type, "type defaults to fact")

	_, err = store.AddContext(ctx, &types.ContextEntry{
		SessionID: session.ID,
		Type:      "preference",
		Key:       "preference_sushi",
		Value:     "sushi",
	})
	require.NoError(t, err)

	all, err := store.ListContext(ctx, session.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	facts, err := store.ListContext(ctx, session.ID, "fact")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "favorite_color", facts[0].Key)
	assert.Equal(t, message.ID, facts[0].SourceMessageID)
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	vector := []float64{0.0, -1.25, 3.5e10, 1e-300}

	decoded, err := deserializeVector(serializeVector(vector), len(vector))
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)

	_, err = deserializeVector([]byte{1, 2, 3}, 2)
	assert.Error(t, err, "truncated buffer must not decode")
}

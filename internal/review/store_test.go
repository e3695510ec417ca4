package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

func TestStore_CreateIsUniquePerGroup(t *testing.T) {
	s := NewStore()

	sess, err := s.Create(models.NewsGroup{GroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, StateGenerating, sess.State)
	assert.NotEmpty(t, sess.ID)

	_, err = s.Create(models.NewsGroup{GroupID: "g1"})
	assert.ErrorIs(t, err, ErrSessionExists)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AcquireRules(t *testing.T) {
	s := NewStore()

	_, err := s.Acquire("missing")
	assert.ErrorIs(t, err, ErrStaleSession)

	sess, err := s.Create(models.NewsGroup{GroupID: "g1"})
	require.NoError(t, err)

	// Held by the creator.
	_, err = s.Acquire("g1", StateGenerating)
	assert.ErrorIs(t, err, ErrStaleSession)

	sess.State = StateAwaitingDecision
	s.Release(sess)

	_, err = s.Acquire("g1", StateAwaitingScheduleTime)
	assert.ErrorIs(t, err, ErrStaleSession)

	held, err := s.Acquire("g1", StateAwaitingDecision)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, held.ID)

	_, err = s.Acquire("g1", StateAwaitingDecision)
	assert.ErrorIs(t, err, ErrStaleSession)

	held.State = StatePublished
	s.Release(held)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Get("g1")
	assert.False(t, ok)
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	s := NewStore()
	sess, err := s.Create(models.NewsGroup{GroupID: "g1"})
	require.NoError(t, err)
	sess.State = StateAwaitingDecision
	sess.ImageURL = "http://img/1"
	s.Release(sess)

	held, err := s.Acquire("g1")
	require.NoError(t, err)
	held.ImageURL = "http://img/2"

	snap, ok := s.Get("g1")
	require.True(t, ok)
	assert.Equal(t, "http://img/1", snap.ImageURL)

	s.Release(held)
	snap, _ = s.Get("g1")
	assert.Equal(t, "http://img/2", snap.ImageURL)
}

func TestStore_ListOldestFirst(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, id := range []string{"c", "a", "b"} {
		_, err := s.Create(models.NewsGroup{GroupID: id})
		require.NoError(t, err)
	}

	var ids []string
	for _, sess := range s.List() {
		ids = append(ids, sess.GroupID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	s.Delete("a")
	assert.Equal(t, 2, s.Len())
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

// memRepo is an in-memory MessageRepository for tests.
type memRepo struct {
	mu        sync.Mutex
	msgs      map[domain.SessionID][]domain.Message
	appendErr error
}

func newMemRepo() *memRepo {
	return &memRepo{msgs: make(map[domain.SessionID][]domain.Message)}
}

func (r *memRepo) AppendMessage(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.msgs[msg.SessionID] = append(r.msgs[msg.SessionID], msg)
	return nil
}

func (r *memRepo) ListMessages(_ context.Context, id domain.SessionID, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.msgs[id]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *memRepo) ListSessions(_ context.Context) ([]domain.SessionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SessionID
	for id := range r.msgs {
		out = append(out, id)
	}
	return out, nil
}

func (r *memRepo) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestConversationStore_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore(testLogger(), nil, 4)
	sid := domain.SessionID("s1")

	for i := 1; i <= 15; i++ {
		stored, err := store.Append(ctx, domain.NewMessage(sid, domain.RoleUser, fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, i, stored.Seq)
	}

	recent := store.Recent(ctx, sid, 10)
	require.Len(t, recent, 10)
	assert.Equal(t, "m6", recent[0].Content)
	assert.Equal(t, "m15", recent[9].Content)

	// Full history is retained even though only K are handed out.
	all, err := store.History(ctx, sid, 0)
	require.NoError(t, err)
	assert.Len(t, all, 15)

	assert.Empty(t, store.Recent(ctx, sid, 0))
	assert.Empty(t, store.Recent(ctx, "unknown", 10))
}

func TestConversationStore_RecentBefore(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore(testLogger(), nil, 0)
	sid := domain.SessionID("s1")

	var last domain.Message
	for i := 1; i <= 5; i++ {
		last, _ = store.Append(ctx, domain.NewMessage(sid, domain.RoleUser, fmt.Sprintf("m%d", i)))
	}

	window := store.RecentBefore(ctx, sid, last.Seq, 3)
	require.Len(t, window, 3)
	assert.Equal(t, "m2", window[0].Content)
	assert.Equal(t, "m4", window[2].Content)
}

func TestConversationStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore(testLogger(), nil, 0)

	_, err := store.Append(ctx, domain.Message{Content: "orphan"})
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

	_, err = store.History(ctx, "nope", 0)
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestConversationStore_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore(testLogger(), nil, 8)

	const sessions = 20
	const perSession = 50

	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		sid := domain.SessionID(fmt.Sprintf("session-%d", s))
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perSession/2; i++ {
					_, err := store.Append(ctx, domain.NewMessage(sid, domain.RoleUser, "x"))
					assert.NoError(t, err)
					_ = store.Recent(ctx, sid, 10)
				}
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, sessions, store.SessionCount())
	for s := 0; s < sessions; s++ {
		msgs, err := store.History(ctx, domain.SessionID(fmt.Sprintf("session-%d", s)), 0)
		require.NoError(t, err)
		require.Len(t, msgs, perSession)
		for i, m := range msgs {
			assert.Equal(t, i+1, m.Seq)
		}
	}
}

func TestConversationStore_WriteThroughAndReload(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	sid := domain.SessionID("persisted")

	first := NewConversationStore(testLogger(), repo, 0)
	_, _ = first.Append(ctx, domain.NewMessage(sid, domain.RoleUser, "hello"))
	_, _ = first.Append(ctx, domain.NewMessage(sid, domain.RoleAgent, "hi"))

	// A fresh store (process restart) sees the persisted history.
	second := NewConversationStore(testLogger(), repo, 0)
	msgs, err := second.History(ctx, sid, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)

	stored, err := second.Append(ctx, domain.NewMessage(sid, domain.RoleUser, "again"))
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Seq)
}

func TestConversationStore_ReadsOfUnknownSessionsDoNotGrowMemory(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	store := NewConversationStore(testLogger(), repo, 0)

	for i := range 50 {
		id := domain.SessionID(fmt.Sprintf("ghost-%d", i))
		_, err := store.History(ctx, id, 0)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.Empty(t, store.Recent(ctx, id, 5))
	}
	assert.Equal(t, 0, store.SessionCount())

	_, _ = NewConversationStore(testLogger(), repo, 0).Append(ctx, domain.NewMessage("known", domain.RoleUser, "hello"))
	msgs, err := store.History(ctx, "known", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, store.SessionCount())

	stored, err := store.Append(ctx, domain.NewMessage("known", domain.RoleAgent, "hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Seq)
}

func TestConversationStore_PersistFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	repo.appendErr = errors.New("disk full")
	store := NewConversationStore(testLogger(), repo, 0)

	_, err := store.Append(ctx, domain.NewMessage("s", domain.RoleUser, "still here"))
	require.NoError(t, err)
	assert.Len(t, store.Recent(ctx, "s", 5), 1)
}

func TestFormatHistory(t *testing.T) {
	out := FormatHistory([]domain.Message{
		{Role: domain.RoleUser, Content: "show incidents"},
		{Role: domain.RoleAgent, Content: "3 open"},
	})
	assert.Equal(t, "User: show incidents\nAssistant: 3 open\n", out)
	assert.Empty(t, FormatHistory(nil))
}

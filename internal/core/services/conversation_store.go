package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
)

const defaultStoreShards = 32

// sessionLog is the ordered history of one session. Its own mutex keeps
// appends to one session ordered without touching any other session.
type sessionLog struct {
	mu     sync.RWMutex
	msgs   []domain.Message
	loaded bool // history already pulled from the repository
}

type storeShard struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*sessionLog
}

// ConversationStore keeps per-session message history in memory, sharded by
// session id. When a repository is configured every appended message is
// written through to it, and sessions unknown in memory are loaded on first
// access.
type ConversationStore struct {
	logger *slog.Logger
	repo   ports.MessageRepository // optional
	shards []*storeShard
}

// NewConversationStore creates a store. repo may be nil for memory-only
// history; shards <= 0 selects the default.
func NewConversationStore(logger *slog.Logger, repo ports.MessageRepository, shards int) *ConversationStore {
	if shards <= 0 {
		shards = defaultStoreShards
	}
	s := &ConversationStore{
		logger: logger,
		repo:   repo,
		shards: make([]*storeShard, shards),
	}
	for i := range s.shards {
		s.shards[i] = &storeShard{sessions: make(map[domain.SessionID]*sessionLog)}
	}
	return s
}

func (s *ConversationStore) shardFor(id domain.SessionID) *storeShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// session returns the log for id, creating it when create is set. The shard
// lock is held only for the map access.
func (s *ConversationStore) session(id domain.SessionID, create bool) *sessionLog {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	log, ok := sh.sessions[id]
	if !ok && create {
		log = &sessionLog{}
		sh.sessions[id] = log
	}
	return log
}

// hydrateLocked loads persisted history once. Caller holds log.mu for writing.
func (s *ConversationStore) hydrateLocked(ctx context.Context, id domain.SessionID, log *sessionLog) {
	if log.loaded {
		return
	}
	log.loaded = true
	if s.repo == nil {
		return
	}
	msgs, err := s.repo.ListMessages(ctx, id, 0)
	if err != nil {
		s.logger.Warn("failed to load session history", "session_id", string(id), "error", err)
		return
	}
	log.msgs = append(msgs, log.msgs...)
}

// Append stores msg at the end of its session, assigning Seq. Sessions are
// created implicitly. The stored copy is returned.
func (s *ConversationStore) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.SessionID == "" {
		return domain.Message{}, fmt.Errorf("append message: %w", domain.ErrSessionNotFound)
	}

	log := s.session(msg.SessionID, true)

	log.mu.Lock()
	s.hydrateLocked(ctx, msg.SessionID, log)
	msg.Seq = len(log.msgs) + 1
	if n := len(log.msgs); n > 0 && log.msgs[n-1].Seq >= msg.Seq {
		msg.Seq = log.msgs[n-1].Seq + 1
	}
	log.msgs = append(log.msgs, msg)
	log.mu.Unlock()

	// Persist outside the session lock.
	if s.repo != nil {
		if err := s.repo.AppendMessage(ctx, msg); err != nil {
			s.logger.Warn("failed to persist message", "session_id", string(msg.SessionID), "seq", msg.Seq, "error", err)
		}
	}
	return msg, nil
}

// Recent returns up to k of the session's latest messages, oldest first.
// k <= 0 returns nothing. Unknown sessions yield an empty slice.
func (s *ConversationStore) Recent(ctx context.Context, id domain.SessionID, k int) []domain.Message {
	return s.RecentBefore(ctx, id, 0, k)
}

// RecentBefore is Recent restricted to messages with Seq < beforeSeq.
// beforeSeq <= 0 means no upper bound.
func (s *ConversationStore) RecentBefore(ctx context.Context, id domain.SessionID, beforeSeq, k int) []domain.Message {
	if k <= 0 {
		return []domain.Message{}
	}
	log := s.loadedSession(ctx, id)
	if log == nil {
		return []domain.Message{}
	}

	log.mu.RLock()
	defer log.mu.RUnlock()

	end := len(log.msgs)
	if beforeSeq > 0 {
		for end > 0 && log.msgs[end-1].Seq >= beforeSeq {
			end--
		}
	}
	start := max(0, end-k)
	out := make([]domain.Message, end-start)
	copy(out, log.msgs[start:end])
	return out
}

// History returns the full stored history (limit <= 0) or its last limit
// messages. Unknown sessions return ErrSessionNotFound.
func (s *ConversationStore) History(ctx context.Context, id domain.SessionID, limit int) ([]domain.Message, error) {
	log := s.loadedSession(ctx, id)
	if log == nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}

	log.mu.RLock()
	defer log.mu.RUnlock()
	if len(log.msgs) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}

	start := 0
	if limit > 0 && limit < len(log.msgs) {
		start = len(log.msgs) - limit
	}
	out := make([]domain.Message, len(log.msgs)-start)
	copy(out, log.msgs[start:])
	return out, nil
}

// loadedSession returns a hydrated session or nil. With a repository, a
// session absent from memory is looked up there; reads only add an entry
// when the repository actually holds messages for id.
func (s *ConversationStore) loadedSession(ctx context.Context, id domain.SessionID) *sessionLog {
	if log := s.session(id, false); log != nil {
		log.mu.Lock()
		s.hydrateLocked(ctx, id, log)
		log.mu.Unlock()
		return log
	}
	if s.repo == nil {
		return nil
	}

	msgs, err := s.repo.ListMessages(ctx, id, 0)
	if err != nil {
		s.logger.Warn("failed to load session history", "session_id", string(id), "error", err)
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	log, ok := sh.sessions[id]
	if !ok {
		log = &sessionLog{msgs: msgs, loaded: true}
		sh.sessions[id] = log
		sh.mu.Unlock()
		return log
	}
	sh.mu.Unlock()

	// An Append raced us in; its entry hydrates itself.
	log.mu.Lock()
	s.hydrateLocked(ctx, id, log)
	log.mu.Unlock()
	return log
}

// SessionCount returns the number of sessions held in memory.
func (s *ConversationStore) SessionCount() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

// FormatHistory renders messages as a prompt transcript.
func FormatHistory(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(msgs) * 120)
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleUser:
			sb.WriteString("User: ")
		case domain.RoleAgent:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

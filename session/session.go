// Package session models external image generation sessions and
// provides an in-memory store implementing the source contract the
// synchronization engine reads from.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/canvas"
)

// ImageSession is one externally managed image generation record: a
// prompt, the produced image versions, and which version is displayed.
type ImageSession struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	Prompt          string
	Images          []string
	SelectedVersion int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ImageURL returns the URL of the selected version, or the first image
// when the index is out of range, or "" for an empty session.
func (s ImageSession) ImageURL() string {
	if len(s.Images) == 0 {
		return ""
	}
	if s.SelectedVersion >= 0 && s.SelectedVersion < len(s.Images) {
		return s.Images[s.SelectedVersion]
	}
	return s.Images[0]
}

// Store is an in-memory session source. It stands in for the portal's
// session service in tests and the demo binary.
//
// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*ImageSession
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[uuid.UUID]*ImageSession),
		logger:   canvas.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put inserts or replaces a session. A zero ID is assigned one; zero
// timestamps are filled in.
func (s *Store) Put(sess ImageSession) uuid.UUID {
	now := time.Now()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	s.mu.Lock()
	s.sessions[sess.ID] = &sess
	s.mu.Unlock()

	s.logger.Debug("session stored",
		"session_id", sess.ID, "conversation_id", sess.ConversationID,
		"versions", len(sess.Images))
	return sess.ID
}

// Get returns a copy of the session.
func (s *Store) Get(id uuid.UUID) (ImageSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ImageSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return *sess, nil
}

// ListSessionsByConversation returns copies of the conversation's
// sessions ordered by creation time.
func (s *Store) ListSessionsByConversation(ctx context.Context, conversationID uuid.UUID) ([]ImageSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []ImageSession
	for _, sess := range s.sessions {
		if sess.ConversationID == conversationID {
			out = append(out, *sess)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SelectVersion switches the displayed version of a session.
func (s *Store) SelectVersion(ctx context.Context, sessionID uuid.UUID, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if index < 0 || index >= len(sess.Images) {
		return fmt.Errorf("%w: %d of %d versions", ErrVersionOutOfRange, index, len(sess.Images))
	}
	sess.SelectedVersion = index
	sess.UpdatedAt = time.Now()
	return nil
}

// PushUpdate upserts a session from the store side of reconciliation.
// An existing session keeps its creation time and image history when
// the pushed update carries none.
func (s *Store) PushUpdate(ctx context.Context, sess ImageSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.ID == uuid.Nil {
		return fmt.Errorf("%w: push without session id", ErrSessionNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[sess.ID]; ok {
		if sess.Prompt != "" {
			cur.Prompt = sess.Prompt
		}
		if len(sess.Images) > 0 {
			cur.Images = sess.Images
			cur.SelectedVersion = sess.SelectedVersion
		}
		cur.UpdatedAt = time.Now()
		return nil
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	s.sessions[sess.ID] = &sess
	return nil
}

// Len reports the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

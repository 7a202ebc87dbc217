// Package memory provides an in-memory SessionStore for testing and
// lightweight deployments. Sessions are lost when the process restarts.
// Optional LRU eviction bounds memory usage; only terminal sessions are
// ever evicted, an active session is never dropped mid-flight.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/storage"
)

// entry holds a stored session and its metadata.
type entry struct {
	session  *api.Session
	tenantID string
	lruElem  *list.Element // position in LRU list, nil while active
}

// Store is an in-memory SessionStore with optional LRU eviction of
// terminal sessions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently finished, back = eviction candidate
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.SessionStore at compile time.
var _ storage.SessionStore = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0 the store grows
// without limit; otherwise the least recently finished terminal session
// is evicted when the limit is exceeded.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, session *api.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[session.ID]; exists {
		return storage.ErrConflict
	}

	stored := cloneSession(session)
	s.entries[session.ID] = &entry{
		session:  stored,
		tenantID: storage.GetTenant(ctx),
	}
	return nil
}

// GetSession retrieves a session with its full turn history.
func (s *Store) GetSession(ctx context.Context, id string) (*api.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneSession(e.session), nil
}

// AppendTurn appends a turn to an active session, assigning the next
// contiguous sequence number.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn api.Turn) (api.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, sessionID)
	if err != nil {
		return api.Turn{}, err
	}
	if e.session.Status.Terminal() {
		return api.Turn{}, storage.ErrTerminal
	}

	turn.Seq = len(e.session.Turns) + 1
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	e.session.Turns = append(e.session.Turns, turn)
	e.session.UpdatedAt = time.Now().UTC()
	return turn, nil
}

// History returns the session's turns in sequence order.
func (s *Store) History(ctx context.Context, sessionID string) ([]api.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return append([]api.Turn(nil), e.session.Turns...), nil
}

// SetStatus moves a session to a terminal status. The session becomes an
// eviction candidate once terminal.
func (s *Store) SetStatus(ctx context.Context, sessionID string, status api.SessionStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if e.session.Status.Terminal() {
		return storage.ErrTerminal
	}
	if verr := api.ValidateSessionTransition(e.session.Status, status); verr != nil {
		return verr
	}

	e.session.Status = status
	e.session.Reason = reason
	e.session.UpdatedAt = time.Now().UTC()

	e.lruElem = s.lruList.PushFront(sessionID)
	if s.maxSize > 0 {
		s.evictOverflow()
	}
	return nil
}

// ListSessions returns a paginated list of sessions without turns,
// scoped by tenant when present in the context.
func (s *Store) ListSessions(ctx context.Context, opts storage.ListOptions) (*storage.SessionList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)

	var sessions []*api.Session
	for _, e := range s.entries {
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		if opts.Status != "" && e.session.Status != opts.Status {
			continue
		}
		meta := cloneSession(e.session)
		meta.Turns = nil
		sessions = append(sessions, meta)
	}

	asc := opts.Order == "asc"
	sort.Slice(sessions, func(i, j int) bool {
		if asc {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	// Apply the cursor: everything strictly after the given ID.
	if opts.After != "" {
		idx := -1
		for i, sess := range sessions {
			if sess.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			sessions = sessions[idx+1:]
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(sessions) > limit
	if hasMore {
		sessions = sessions[:limit]
	}

	result := &storage.SessionList{
		Object:  "list",
		Data:    sessions,
		HasMore: hasMore,
	}
	if len(sessions) > 0 {
		result.FirstID = sessions[0].ID
		result.LastID = sessions[len(sessions)-1].ID
	}
	return result, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// lookup finds an entry and applies tenant scoping. Callers hold s.mu.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// evictOverflow removes the least recently finished terminal sessions
// until the store fits its limit. Callers hold s.mu.
func (s *Store) evictOverflow() {
	for len(s.entries) > s.maxSize {
		oldest := s.lruList.Back()
		if oldest == nil {
			return
		}
		s.lruList.Remove(oldest)
		delete(s.entries, oldest.Value.(string))
	}
}

func cloneSession(in *api.Session) *api.Session {
	out := *in
	out.Turns = append([]api.Turn(nil), in.Turns...)
	return &out
}

// Package store owns the per-session datasets and conversation history.
// One dataset per session, hard row ceiling, idle-based eviction.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// Logger defines the logging interface the store depends on.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Session is the scoped state of one uploaded spreadsheet: its dataset and
// append-only conversation history.
type Session struct {
	ID        string
	CreatedAt time.Time

	// askMu serializes questions against this session so history ordering
	// and execution stay well-defined. Different sessions proceed
	// independently.
	askMu sync.Mutex

	mu         sync.Mutex
	ds         *dataset.Dataset
	profile    string
	history    []models.HistoryEntry
	lastActive time.Time
	evicted    bool
}

// Dataset returns the session's dataset without pinning it. Readers that
// touch column data must use AcquireDataset instead.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds
}

// AcquireDataset pins the session's dataset for reading and returns it, or
// nil when the session has been evicted. The pin keeps the Arrow buffers
// alive across a concurrent Evict; the caller must Release the dataset when
// done reading.
func (s *Session) AcquireDataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted || s.ds == nil {
		return nil
	}
	s.ds.Retain()
	return s.ds
}

// Evicted reports whether the session has been released.
func (s *Session) Evicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// Profile returns the dataset profile built at ingest time. It is immutable
// for the lifetime of the session.
func (s *Session) Profile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// History returns a copy of the conversation history in arrival order.
func (s *Session) History() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// AppendHistory appends one (question, answer) pair. History is append-only.
func (s *Session) AppendHistory(entry models.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return
	}
	s.history = append(s.history, entry)
	s.lastActive = time.Now()
}

// LockAsk acquires the per-session ask serialization lock.
func (s *Session) LockAsk() { s.askMu.Lock() }

// UnlockAsk releases the per-session ask serialization lock.
func (s *Session) UnlockAsk() { s.askMu.Unlock() }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// release frees the dataset buffers and history. Idempotent.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return
	}
	s.evicted = true
	if s.ds != nil {
		s.ds.Release()
		s.ds = nil
	}
	s.history = nil
}

// Store holds sessions keyed by identifier. Evicting or replacing a session
// only drops the store's dataset reference; readers that pinned the dataset
// with AcquireDataset keep its buffers alive until they release it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	rowCeiling int
	idleWindow time.Duration
	logger     Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a store and starts the idle-eviction loop when idleWindow > 0.
func New(rowCeiling int, idleWindow time.Duration, logger Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	st := &Store{
		sessions:   make(map[string]*Session),
		rowCeiling: rowCeiling,
		idleWindow: idleWindow,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	if idleWindow > 0 {
		st.wg.Add(1)
		go st.evictionLoop()
	}
	return st
}

// RowCeiling returns the configured hard row limit.
func (st *Store) RowCeiling() int {
	return st.rowCeiling
}

// Load stores a freshly inferred dataset and its profile under the session
// id, replacing any previous dataset for that session. Datasets over the
// ceiling are rejected and released without partial storage.
func (st *Store) Load(sessionID string, ds *dataset.Dataset, profile string) (*Session, error) {
	if ds.RowCount() > st.rowCeiling {
		rows := ds.RowCount()
		ds.Release()
		return nil, errors.ErrCapacityExceeded.
			WithDetail("rows", rows).
			WithDetail("ceiling", st.rowCeiling)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if old, ok := st.sessions[sessionID]; ok {
		old.release()
	}

	now := time.Now()
	sess := &Session{
		ID:         sessionID,
		CreatedAt:  now,
		ds:         ds,
		profile:    profile,
		lastActive: now,
	}
	st.sessions[sessionID] = sess

	st.logger.Info("Dataset loaded",
		"session_id", sessionID,
		"rows", ds.RowCount(),
		"columns", len(ds.Columns()))

	return sess, nil
}

// Get returns the session for an id, refreshing its idle clock.
func (st *Store) Get(sessionID string) (*Session, error) {
	st.mu.RLock()
	sess, ok := st.sessions[sessionID]
	st.mu.RUnlock()
	if !ok {
		return nil, errors.ErrSessionNotFound.WithDetail("session_id", sessionID)
	}
	sess.touch()
	return sess, nil
}

// Evict removes a session and releases everything it held. Idempotent.
func (st *Store) Evict(sessionID string) {
	st.mu.Lock()
	sess, ok := st.sessions[sessionID]
	if ok {
		delete(st.sessions, sessionID)
	}
	st.mu.Unlock()

	if ok {
		sess.release()
		st.logger.Info("Session evicted", "session_id", sessionID)
	}
}

// Len returns the number of resident sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// TotalRows returns the number of resident rows across all sessions.
func (st *Store) TotalRows() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	total := 0
	for _, sess := range st.sessions {
		if ds := sess.ds; ds != nil {
			total += ds.RowCount()
		}
	}
	return total
}

// Close stops the eviction loop and releases every session.
func (st *Store) Close() {
	st.cancel()
	st.wg.Wait()

	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, sess := range sessions {
		sess.release()
	}
}

func (st *Store) evictionLoop() {
	defer st.wg.Done()

	interval := st.idleWindow / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.ctx.Done():
			return
		case <-ticker.C:
			st.evictIdle()
		}
	}
}

func (st *Store) evictIdle() {
	cutoff := time.Now().Add(-st.idleWindow)

	st.mu.RLock()
	var expired []string
	for id, sess := range st.sessions {
		if sess.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	st.mu.RUnlock()

	for _, id := range expired {
		st.logger.Info("Evicting idle session", "session_id", id)
		st.Evict(id)
	}
}

package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
)

const (
	DefaultTTL         = 24 * time.Hour
	DefaultMaxSessions = 1000
)

type entry struct {
	session    *ClarificationSession
	lastAccess atomic.Int64
	removed    atomic.Bool
}

func (e *entry) touch() { e.lastAccess.Store(time.Now().UnixNano()) }

// Manager keeps clarification sessions in process memory. Sessions expire
// after ttl without access, and once more than maxSessions exist the least
// recently used are dropped.
type Manager struct {
	cache       *cache.Cache
	logger      *zap.Logger
	ttl         time.Duration
	maxSessions int

	// serialises create, refresh, delete and eviction
	mu sync.Mutex
}

// NewManager returns an empty session table. Non-positive arguments select
// the defaults.
func NewManager(ttl time.Duration, maxSessions int, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cleanup := 10 * time.Minute
	if ttl < cleanup {
		cleanup = ttl
	}

	m := &Manager{
		cache:       cache.New(ttl, cleanup),
		logger:      logger,
		ttl:         ttl,
		maxSessions: maxSessions,
	}
	m.cache.OnEvicted(func(id string, v interface{}) {
		if e, ok := v.(*entry); ok && !e.removed.Load() {
			metrics.SessionCacheEvictions.WithLabelValues("expired").Inc()
			logger.Debug("Clarification session expired", zap.String("session_id", id))
		}
		metrics.SessionCacheSize.Set(float64(m.cache.ItemCount()))
	})
	return m
}

// CreateSession stores a new session and returns it.
func (m *Manager) CreateSession(originalQuery string, questions []string) *ClarificationSession {
	qs := make([]string, len(questions))
	copy(qs, questions)

	s := &ClarificationSession{
		ID:            uuid.New().String(),
		OriginalQuery: originalQuery,
		Questions:     qs,
		CreatedAt:     time.Now(),
	}
	e := &entry{session: s}
	e.touch()

	m.mu.Lock()
	m.cache.SetDefault(s.ID, e)
	m.evictLocked()
	size := m.cache.ItemCount()
	m.mu.Unlock()

	metrics.SessionsCreated.Inc()
	metrics.SessionCacheSize.Set(float64(size))
	m.logger.Info("Created clarification session",
		zap.String("session_id", s.ID),
		zap.Int("questions", len(qs)),
	)
	return s
}

// GetSession returns the session and extends its lifetime.
func (m *Manager) GetSession(sessionID string) (*ClarificationSession, error) {
	v, ok := m.cache.Get(sessionID)
	if !ok {
		metrics.SessionCacheMisses.Inc()
		return nil, ErrSessionNotFound
	}
	e := v.(*entry)

	// Re-inserting extends the TTL; a session removed since the Get stays gone.
	m.mu.Lock()
	if e.removed.Load() {
		m.mu.Unlock()
		metrics.SessionCacheMisses.Inc()
		return nil, ErrSessionNotFound
	}
	e.touch()
	m.cache.SetDefault(sessionID, e)
	m.mu.Unlock()

	metrics.SessionCacheHits.Inc()
	return e.session, nil
}

// DeleteSession removes a session. Deleting an unknown id is not an error.
func (m *Manager) DeleteSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.cache.Get(sessionID); ok {
		v.(*entry).removed.Store(true)
	}
	m.cache.Delete(sessionID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int { return m.cache.ItemCount() }

// MaxSessions returns the configured bound.
func (m *Manager) MaxSessions() int { return m.maxSessions }

// evictLocked drops least recently used sessions until the table is back
// within bounds. Callers hold m.mu.
func (m *Manager) evictLocked() {
	items := m.cache.Items()
	overflow := len(items) - m.maxSessions
	if overflow <= 0 {
		return
	}

	type accessEntry struct {
		id string
		at int64
		e  *entry
	}
	entries := make([]accessEntry, 0, len(items))
	for id, it := range items {
		e := it.Object.(*entry)
		entries = append(entries, accessEntry{id: id, at: e.lastAccess.Load(), e: e})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at < entries[j].at })

	for i := 0; i < overflow; i++ {
		entries[i].e.removed.Store(true)
		m.cache.Delete(entries[i].id)
		metrics.SessionCacheEvictions.WithLabelValues("capacity").Inc()
		m.logger.Debug("Evicted clarification session", zap.String("session_id", entries[i].id))
	}
}

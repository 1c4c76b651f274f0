package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/shardrouter/internal/metrics"
	"github.com/devrev/shardrouter/internal/session"
	"go.uber.org/zap"
)

// DuplicateSessionError is returned by Create when a session already exists
// for the connection. Double-creation is a programming error in the calling
// layer, never a transient condition.
type DuplicateSessionError struct {
	ConnID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("a session already exists for connection %s", e.ConnID)
}

// HandleMismatchError is returned when a lookup supplies a transport handle
// differing from the one the session was created with. One connection maps
// to one handle for its whole life; a mismatch means that invariant was
// violated by the caller.
type HandleMismatchError struct {
	ConnID string
}

func (e *HandleMismatchError) Error() string {
	return fmt.Sprintf("transport handle differs from the one bound to connection %s", e.ConnID)
}

// SessionInfo is a point-in-time view of one session, for introspection.
type SessionInfo struct {
	ConnID     string    `json:"conn_id"`
	Remote     string    `json:"remote"`
	LastAccess time.Time `json:"last_access"`
}

// AuthFactory builds the opaque authorization attachment bound to each new
// session. The registry holds the attachment, never inspects it.
type AuthFactory func() interface{}

// SessionRegistry is the process-wide association between connection
// identities and their sessions. Only the association table is shared across
// goroutines; a session itself is owned by its connection's handler.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session.ClientSession

	autoSplitPolicy atomic.Bool
	authFactory     AuthFactory
	metrics         *metrics.Metrics
	logger          *zap.Logger
}

// New creates a session registry. The autoSplit argument seeds the
// process-wide auto-split policy read by every session.
func New(autoSplit bool, authFactory AuthFactory, m *metrics.Metrics, logger *zap.Logger) *SessionRegistry {
	r := &SessionRegistry{
		sessions:    make(map[string]*session.ClientSession),
		authFactory: authFactory,
		metrics:     m,
		logger:      logger,
	}
	r.autoSplitPolicy.Store(autoSplit)
	return r
}

// AutoSplitPolicy exposes the process-wide auto-split flag.
func (r *SessionRegistry) AutoSplitPolicy() *atomic.Bool {
	return &r.autoSplitPolicy
}

// GetOrCreate returns the session for the connection, creating one bound to
// the given handle if none exists. A non-nil handle on an existing session
// must be the identical handle the session was created with.
func (r *SessionRegistry) GetOrCreate(connID string, handle session.TransportHandle) (*session.ClientSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		if handle != nil && handle != s.Handle() {
			return nil, &HandleMismatchError{ConnID: connID}
		}
		return s, nil
	}
	return r.createLocked(connID, handle), nil
}

// Create makes a session for the connection, failing if one already exists.
func (r *SessionRegistry) Create(connID string, handle session.TransportHandle) (*session.ClientSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		return nil, &DuplicateSessionError{ConnID: connID}
	}
	return r.createLocked(connID, handle), nil
}

func (r *SessionRegistry) createLocked(connID string, handle session.TransportHandle) *session.ClientSession {
	var auth interface{}
	if r.authFactory != nil {
		auth = r.authFactory()
	}
	s := session.New(connID, handle, &r.autoSplitPolicy, auth)
	s.NewRequest()
	r.sessions[connID] = s

	if r.metrics != nil {
		r.metrics.SessionsCreatedTotal.Inc()
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.logger.Debug("session created",
		zap.String("conn_id", connID),
		zap.String("remote", s.Remote()))
	return s
}

// Get returns the session for the connection, or nil when none exists. A
// non-nil handle is validated like in GetOrCreate.
func (r *SessionRegistry) Get(connID string, handle session.TransportHandle) (*session.ClientSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, nil
	}
	if handle != nil && handle != s.Handle() {
		return nil, &HandleMismatchError{ConnID: connID}
	}
	return s, nil
}

// Exists reports whether a session exists for the connection.
func (r *SessionRegistry) Exists(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[connID]
	return ok
}

// Remove drops the connection's session on disconnect.
func (r *SessionRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return
	}
	s.Disconnect()
	delete(r.sessions, connID)

	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.logger.Debug("session removed", zap.String("conn_id", connID))
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns a point-in-time view of all live sessions.
func (r *SessionRegistry) Snapshot() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionInfo{
			ConnID:     s.ConnID(),
			Remote:     s.Remote(),
			LastAccess: s.LastAccess(),
		})
	}
	return out
}

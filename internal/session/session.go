package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/devrev/shardrouter/internal/model"
)

// TransportHandle is the opaque per-connection handle supplied by the
// transport layer. The session core never drives it; it only records the
// handle identity for validation and asks it for the peer address.
type TransportHandle interface {
	Remote() string
}

// PeerMismatchError is returned when a request arrives on a session with a
// peer address differing from the one the session is pinned to. The session
// must be considered corrupted afterward.
type PeerMismatchError struct {
	Bound string
	New   string
}

func (e *PeerMismatchError) Error() string {
	return fmt.Sprintf("remotes don't match old [%s] new [%s]", e.Bound, e.New)
}

// ClientSession holds the per-connection state of the router: which shards
// the current and the previous request wrote to, at which op-times, plus the
// cumulative set of shards touched since the last acknowledgement check.
//
// A session is owned and mutated by exactly one goroutine, the one handling
// its connection. It carries no locking on purpose; sharing a session across
// goroutines violates the one-session-per-connection design.
type ClientSession struct {
	connID string
	handle TransportHandle
	remote string

	// Two fixed records relabeled current/previous by flipping parity.
	// Rotation never copies or reallocates the records themselves.
	records [2]RequestRecord
	cur     int

	sinceLastAck map[string]struct{}
	lastAccess   time.Time
	autoSplit    bool

	// Process-wide auto-split policy, owned by the registry.
	autoSplitPolicy *atomic.Bool

	// Opaque authorization attachment, held for the transport/auth layers.
	auth interface{}
}

// New creates a session for a connection. The remote address is bound from
// the handle when one is supplied; otherwise it is bound by the first
// NewPeerRequest.
func New(connID string, handle TransportHandle, autoSplitPolicy *atomic.Bool, auth interface{}) *ClientSession {
	s := &ClientSession{
		connID:          connID,
		handle:          handle,
		records:         [2]RequestRecord{newRequestRecord(), newRequestRecord()},
		sinceLastAck:    make(map[string]struct{}),
		autoSplit:       true,
		autoSplitPolicy: autoSplitPolicy,
		auth:            auth,
	}
	if handle != nil {
		s.remote = handle.Remote()
	}
	return s
}

// ConnID returns the connection identity the session is registered under.
func (s *ClientSession) ConnID() string { return s.connID }

// Handle returns the transport handle the session was created with.
func (s *ClientSession) Handle() TransportHandle { return s.handle }

// Remote returns the peer address the session is pinned to, or "" if no
// request has been attributed yet.
func (s *ClientSession) Remote() string { return s.remote }

// LastAccess returns the wall time of the last request boundary.
func (s *ClientSession) LastAccess() time.Time { return s.lastAccess }

// Auth returns the opaque authorization attachment.
func (s *ClientSession) Auth() interface{} { return s.auth }

// NewPeerRequest starts a new request attributed to the given peer. The
// first call binds the session to the peer; later calls with a different
// address fail with PeerMismatchError.
func (s *ClientSession) NewPeerRequest(remote string) error {
	if s.remote == "" {
		s.remote = remote
	} else if s.remote != remote {
		return &PeerMismatchError{Bound: s.remote, New: remote}
	}
	s.NewRequest()
	return nil
}

// NewRequest marks a request boundary: the current record becomes the
// previous one (keeping its accumulated writes) and the new current record
// starts empty.
func (s *ClientSession) NewRequest() {
	s.lastAccess = time.Now()
	s.cur ^= 1
	s.records[s.cur].clear()
}

// AddShardHost notes that the current request wrote to the given shard.
func (s *ClientSession) AddShardHost(host string) {
	s.records[s.cur].addHost(host)
	s.sinceLastAck[host] = struct{}{}
}

// AddHostOpTimes records the op-times writes reached on each host during the
// current request. Last write wins for a host recorded twice in one request.
func (s *ClientSession) AddHostOpTimes(hostOpTimes model.HostOpTimeMap) {
	for host, opTime := range hostOpTimes {
		s.records[s.cur].setOpTime(host, opTime)
	}
}

// PrevWrittenHosts returns the set of shards the previous request wrote to.
// The returned map is owned by the session and must not be mutated.
func (s *ClientSession) PrevWrittenHosts() map[string]struct{} {
	return s.records[s.cur^1].hostsWritten
}

// PrevHostOpTimes returns the host to op-time mapping of the previous
// request. The returned map is owned by the session and must not be mutated.
func (s *ClientSession) PrevHostOpTimes() model.HostOpTimeMap {
	return s.records[s.cur^1].hostOpTimes
}

// SinceLastAck returns all shards written since the last acknowledgement
// check. Independent of rotation; cleared only by ClearSinceLastAck.
func (s *ClientSession) SinceLastAck() map[string]struct{} {
	return s.sinceLastAck
}

// ClearSinceLastAck empties the cumulative touched-shard set.
func (s *ClientSession) ClearSinceLastAck() {
	s.sinceLastAck = make(map[string]struct{})
}

// ClearCurrentRequest discards the current request's write attribution
// without advancing the request boundary.
func (s *ClientSession) ClearCurrentRequest() {
	s.records[s.cur].clear()
}

// DisableForCommand swaps the current/previous roles without clearing either
// side, so an acknowledgement-style command's own bookkeeping does not land
// in the record it is about to read. Calling it again before the next
// NewRequest restores the original binding.
func (s *ClientSession) DisableForCommand() {
	s.cur ^= 1
}

// AutoSplitAllowed reports whether auto-split may be triggered on behalf of
// this session: the session-local flag and the process-wide policy.
func (s *ClientSession) AutoSplitAllowed() bool {
	return s.autoSplit && s.autoSplitPolicy != nil && s.autoSplitPolicy.Load()
}

// DisableAutoSplit clears the session-local auto-split flag for the rest of
// the session's life.
func (s *ClientSession) DisableAutoSplit() {
	s.autoSplit = false
}

// Disconnect releases per-session state when the connection closes.
func (s *ClientSession) Disconnect() {
	s.lastAccess = time.Time{}
}

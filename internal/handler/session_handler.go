package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/devrev/shardrouter/internal/model"
	"github.com/devrev/shardrouter/internal/registry"
	"github.com/devrev/shardrouter/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// connHandle is the transport handle the HTTP surface binds to a session it
// creates. The session core only checks handle identity, never drives it.
type connHandle struct {
	remote string
}

func (h *connHandle) Remote() string { return h.remote }

// SessionHandler exposes session lifecycle and write-attribution operations.
type SessionHandler struct {
	registry *registry.SessionRegistry
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(reg *registry.SessionRegistry, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		registry: reg,
		logger:   logger,
	}
}

// Register mounts the session routes on the router.
func (h *SessionHandler) Register(r *mux.Router) {
	r.HandleFunc("/v1/sessions", h.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions", h.ListSessions).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{id}", h.RemoveSession).Methods(http.MethodDelete)
	r.HandleFunc("/v1/sessions/{id}/request", h.NewRequest).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{id}/writes", h.AddWrites).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{id}/current/clear", h.ClearCurrent).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{id}/autosplit/disable", h.DisableAutoSplit).Methods(http.MethodPost)
}

type createSessionRequest struct {
	ConnID string `json:"conn_id,omitempty"`
}

type createSessionResponse struct {
	ConnID string `json:"conn_id"`
	Remote string `json:"remote"`
}

// CreateSession creates a session for a connection. A missing conn_id is
// minted server-side.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		// An empty body is fine; conn_id is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ConnID == "" {
		req.ConnID = uuid.New().String()
	}

	sess, err := h.registry.Create(req.ConnID, &connHandle{remote: r.RemoteAddr})
	if err != nil {
		var dup *registry.DuplicateSessionError
		if errors.As(err, &dup) {
			writeError(w, http.StatusConflict, "DUPLICATE_SESSION", err.Error(), r)
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), r)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		ConnID: sess.ConnID(),
		Remote: sess.Remote(),
	})
}

// ListSessions returns a point-in-time view of live sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

// RemoveSession drops a session on connection close.
func (h *SessionHandler) RemoveSession(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]
	if !h.registry.Exists(connID) {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "no session for connection "+connID, r)
		return
	}
	h.registry.Remove(connID)
	w.WriteHeader(http.StatusNoContent)
}

type newRequestRequest struct {
	Remote string `json:"remote"`
}

// NewRequest marks a request boundary on the session, attributing the
// request to the given peer when one is supplied.
func (h *SessionHandler) NewRequest(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]

	var req newRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", r)
		return
	}

	sess, err := lookupSession(w, r, h.registry, connID)
	if sess == nil || err != nil {
		return
	}

	if req.Remote == "" {
		sess.NewRequest()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := sess.NewPeerRequest(req.Remote); err != nil {
		var mismatch *session.PeerMismatchError
		if errors.As(err, &mismatch) {
			h.logger.Error("peer mismatch on session",
				zap.String("conn_id", connID),
				zap.String("bound", mismatch.Bound),
				zap.String("new", mismatch.New))
			writeError(w, http.StatusBadRequest, "PEER_MISMATCH", err.Error(), r)
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type addWritesRequest struct {
	Hosts       []string            `json:"hosts,omitempty"`
	HostOpTimes model.HostOpTimeMap `json:"host_op_times,omitempty"`
}

// AddWrites attributes shard writes to the session's current request.
func (h *SessionHandler) AddWrites(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]

	var req addWritesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", r)
		return
	}

	sess, err := lookupSession(w, r, h.registry, connID)
	if sess == nil || err != nil {
		return
	}

	for _, host := range req.Hosts {
		sess.AddShardHost(host)
	}
	if len(req.HostOpTimes) > 0 {
		sess.AddHostOpTimes(req.HostOpTimes)
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearCurrent discards the current request's write attribution.
func (h *SessionHandler) ClearCurrent(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]

	sess, err := lookupSession(w, r, h.registry, connID)
	if sess == nil || err != nil {
		return
	}

	sess.ClearCurrentRequest()
	w.WriteHeader(http.StatusNoContent)
}

// DisableAutoSplit clears the session-local auto-split flag.
func (h *SessionHandler) DisableAutoSplit(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]

	sess, err := lookupSession(w, r, h.registry, connID)
	if sess == nil || err != nil {
		return
	}

	sess.DisableAutoSplit()
	w.WriteHeader(http.StatusNoContent)
}

// lookupSession resolves the session for a connection, writing the error
// response itself when resolution fails.
func lookupSession(w http.ResponseWriter, r *http.Request, reg *registry.SessionRegistry, connID string) (*session.ClientSession, error) {
	sess, err := reg.Get(connID, nil)
	if err != nil {
		var mismatch *registry.HandleMismatchError
		if errors.As(err, &mismatch) {
			writeError(w, http.StatusInternalServerError, "HANDLE_MISMATCH", err.Error(), r)
			return nil, err
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), r)
		return nil, err
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "no session for connection "+connID, r)
		return nil, nil
	}
	return sess, nil
}

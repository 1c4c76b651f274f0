package handler

import (
	"encoding/json"
	"net/http"

	"github.com/devrev/shardrouter/internal/model"
	"github.com/devrev/shardrouter/internal/registry"
	"github.com/devrev/shardrouter/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AckHandler exposes the acknowledgement command: confirm the previous
// request's write concern without re-sending write data.
type AckHandler struct {
	registry   *registry.SessionRegistry
	ackService *service.AckService
	defaultDB  string
	logger     *zap.Logger
}

// NewAckHandler creates a new acknowledgement handler
func NewAckHandler(
	reg *registry.SessionRegistry,
	ackService *service.AckService,
	defaultDB string,
	logger *zap.Logger,
) *AckHandler {
	return &AckHandler{
		registry:   reg,
		ackService: ackService,
		defaultDB:  defaultDB,
		logger:     logger,
	}
}

// Register mounts the acknowledgement route on the router.
func (h *AckHandler) Register(r *mux.Router) {
	r.HandleFunc("/v1/sessions/{id}/get-last-error", h.GetLastError).Methods(http.MethodPost)
}

type getLastErrorRequest struct {
	DB           string         `json:"db,omitempty"`
	WriteConcern model.Document `json:"write_concern,omitempty"`
}

// GetLastError runs the write-concern confirmation for the session's
// previous request. A failed confirmation is a 200 with ok=false; the
// connection keeps serving.
func (h *AckHandler) GetLastError(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]

	var req getLastErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", r)
		return
	}
	if req.DB == "" {
		req.DB = h.defaultDB
	}
	if req.WriteConcern == nil {
		req.WriteConcern = model.Document{}
	}

	sess, err := lookupSession(w, r, h.registry, connID)
	if sess == nil || err != nil {
		return
	}

	h.logger.Debug("running acknowledgement command",
		zap.String("conn_id", connID),
		zap.String("db", req.DB))

	result := h.ackService.LastError(r.Context(), sess, req.DB, req.WriteConcern)
	writeJSON(w, http.StatusOK, result)
}

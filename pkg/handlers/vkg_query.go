package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	"github.com/ekaya-inc/ekaya-vkg/pkg/services"
)

// VKGQueryHandler exposes the query pipeline over HTTP.
type VKGQueryHandler struct {
	pipeline services.Pipeline
	logger   *zap.Logger
}

// NewVKGQueryHandler creates a new VKG query handler.
func NewVKGQueryHandler(pipeline services.Pipeline, logger *zap.Logger) *VKGQueryHandler {
	return &VKGQueryHandler{
		pipeline: pipeline,
		logger:   logger.Named("vkg-query-handler"),
	}
}

// RegisterRoutes registers the query route on the given mux.
func (h *VKGQueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/vkg/query", h.Query)
}

// Query handles POST /api/v1/vkg/query.
// Pipeline failures are returned as a 200 envelope with error set; only
// requests the pipeline rejects outright get a 4xx status.
func (h *VKGQueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.logger.Debug("Rejected query request", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	resp := h.pipeline.Ask(r.Context(), &req)

	status := http.StatusOK
	if resp.ErrorKind == string(services.FaultInvalidInput) {
		status = http.StatusBadRequest
	}
	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// Copyright 2025 Certen Protocol
package server

import (
	"net/http"
	"strconv"

	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
)

// ClaimHandler serves GET /v1/claim/{blockID}: it reports the verifier
// dc_id claimed for blockID at the level given by the "level" query
// parameter, matching pkg/broadcast's claimcheck hash.
type ClaimHandler struct {
	srv *Server
}

// NewClaimHandler builds a ClaimHandler over srv.
func NewClaimHandler(srv *Server) *ClaimHandler {
	return &ClaimHandler{srv: srv}
}

func (h *ClaimHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blockID := r.PathValue("blockID")
	if blockID == "" {
		writeJSONError(w, "block id is required", http.StatusBadRequest)
		return
	}
	level, err := strconv.Atoi(r.URL.Query().Get("level"))
	if err != nil {
		writeJSONError(w, "level query parameter must be an integer", http.StatusBadRequest)
		return
	}

	dcID, ok, err := h.srv.processor.ClaimCheck(r.Context(), blockID, level)
	if err != nil {
		writeJSONError(w, err.Error(), dnerrors.HTTPStatus(err))
		return
	}
	if !ok {
		writeJSONError(w, "no claim check recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"block_id": blockID, "dc_id": dcID})
}

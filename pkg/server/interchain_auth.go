// Copyright 2025 Certen Protocol
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// KeyRegistrar is the write side of authz.KeyLookup: it records a
// peer's key_id/secret_key pair so a later Lookup during request
// verification can find it.
type KeyRegistrar interface {
	Register(ctx context.Context, dcID, keyID, secretKey string) error
}

// interchainAuthRegisterRequest is the body of an interchain-auth
// registration call: a peer offering the shared secret it will sign
// its future requests to us with.
type interchainAuthRegisterRequest struct {
	DCID      string `json:"dc_id"`
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
}

// InterchainAuthRegisterHandler serves POST /v1/interchain-auth-register.
// The call is deliberately unauthenticated (§6.3): it is the mutual
// bootstrap step two chains perform before either can sign requests
// the other's Verifier will accept.
type InterchainAuthRegisterHandler struct {
	srv      *Server
	registry KeyRegistrar
}

// NewInterchainAuthRegisterHandler builds a handler storing registered
// keys via registry. A nil registry makes every call 503.
func NewInterchainAuthRegisterHandler(srv *Server, registry KeyRegistrar) *InterchainAuthRegisterHandler {
	return &InterchainAuthRegisterHandler{srv: srv, registry: registry}
}

func (h *InterchainAuthRegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.registry == nil {
		writeJSONError(w, "interchain auth registration not available", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	var req interchainAuthRegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.DCID == "" || req.KeyID == "" || req.SecretKey == "" {
		writeJSONError(w, "dc_id, key_id, and secret_key are required", http.StatusBadRequest)
		return
	}

	if err := h.registry.Register(r.Context(), req.DCID, req.KeyID, req.SecretKey); err != nil {
		h.srv.logger.Printf("register interchain auth key for %s: %v", req.DCID, err)
		writeJSONError(w, "failed to register key", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

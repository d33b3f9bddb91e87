// Copyright 2025 Certen Protocol
//
// User-facing endpoints named in §6.1 for completeness
// (/v1/transaction*, /v1/block, /v1/verifications/<block_id>,
// /v1/interchains/*, /v1/api-key*, /v1/contract*) but built only as
// thin stubs: the ones with an obvious core collaborator (submitting a
// transaction, reading a block, reading verification progress) wire
// straight to it, and the rest (contract runtime, api-key CRUD,
// interchain registry browsing) report 501 since their business logic
// is out of scope. No search endpoint is registered.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

// L1TransactionQueue is the push side of txproc.TxnSource: it accepts
// a newly submitted transaction for L1 admission.
type L1TransactionQueue interface {
	Push(ctx context.Context, txn *model.Transaction) error
}

// transactionRequest is the body of a transaction submission.
type transactionRequest struct {
	TxnType string          `json:"txn_type"`
	Payload json.RawMessage `json:"payload"`
}

// TransactionHandler serves POST /v1/transaction.
type TransactionHandler struct {
	srv   *Server
	queue L1TransactionQueue
}

// NewTransactionHandler builds a TransactionHandler pushing admitted
// transactions onto queue. A nil queue makes every call 503 (the node
// is not an L1).
func NewTransactionHandler(srv *Server, queue L1TransactionQueue) *TransactionHandler {
	return &TransactionHandler{srv: srv, queue: queue}
}

func (h *TransactionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.queue == nil {
		writeJSONError(w, "this node does not accept transaction submissions", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	var req transactionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.TxnType == "" {
		writeJSONError(w, "txn_type is required", http.StatusBadRequest)
		return
	}

	txn := model.NewTransaction(h.srv.dcID, req.TxnType, req.Payload, h.srv.now().Unix())
	if err := h.queue.Push(r.Context(), txn); err != nil {
		writeJSONError(w, err.Error(), dnerrors.HTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"txn_id": txn.TxnID})
}

// BlockHandler serves GET /v1/block/{blockID}, returning the canonical
// JSON of a block this node has persisted (at whatever level this
// node's BlockDAO writes).
type BlockHandler struct {
	srv *Server
}

// NewBlockHandler builds a BlockHandler reading through srv's BlockDAO.
func NewBlockHandler(srv *Server) *BlockHandler {
	return &BlockHandler{srv: srv}
}

func (h *BlockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.srv.dao == nil {
		writeJSONError(w, "this node has no block storage configured", http.StatusServiceUnavailable)
		return
	}
	blockID := r.PathValue("blockID")
	raw, err := h.srv.dao.GetBlock(r.Context(), blockID)
	if err != nil {
		writeJSONError(w, "block not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// VerificationsHandler serves GET /v1/verifications/{blockID}: the set
// of verifier dc_ids that have responded so far at each level 2..5,
// plus the level the block is currently accepting.
type VerificationsHandler struct {
	srv *Server
}

// NewVerificationsHandler builds a VerificationsHandler over srv.
func NewVerificationsHandler(srv *Server) *VerificationsHandler {
	return &VerificationsHandler{srv: srv}
}

func (h *VerificationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blockID := r.PathValue("blockID")
	ctx := r.Context()

	currentLevel, err := h.srv.processor.CurrentLevel(ctx, blockID)
	if err != nil {
		writeJSONError(w, err.Error(), dnerrors.HTTPStatus(err))
		return
	}
	if currentLevel == 0 {
		writeJSONError(w, "block is not tracked for broadcast", http.StatusNotFound)
		return
	}

	byLevel := make(map[string][]string, 4)
	for level := 2; level <= 5; level++ {
		verifiers, err := h.srv.processor.ReceivedVerifications(ctx, blockID, level)
		if err != nil {
			writeJSONError(w, err.Error(), dnerrors.HTTPStatus(err))
			return
		}
		byLevel[strconv.Itoa(level)] = verifiers
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"block_id":      blockID,
		"current_level": currentLevel,
		"verifications": byLevel,
	})
}

// NotImplementedHandler answers a named-for-completeness endpoint
// whose business logic (contract runtime, api-key CRUD, interchain
// registry browsing) is explicitly out of scope.
func NotImplementedHandler(feature string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, fmt.Sprintf("%s is not implemented on this node", feature), http.StatusNotImplemented)
	}
}

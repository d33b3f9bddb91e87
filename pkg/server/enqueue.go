// Copyright 2025 Certen Protocol
//
// EnqueueHandler is the receiving end of broadcast.Scheduler's outbound
// "/v1/enqueue" POST (pkg/broadcast/processor.go's verificationDTO):
// it decodes the level-tagged payload and pushes it onto whichever
// inbound queue this node's txproc level pulls from. A node only
// wires the queue matching its own level; the others stay nil and the
// handler answers 400 for a level it cannot serve.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
	"github.com/dragonchain-gen2/dragonnet/pkg/txproc"
)

// L2BlockQueue is the push side of txproc.L2BlockSource: it accepts an
// L1 block handed off for level-2 re-validation.
type L2BlockQueue interface {
	Push(ctx context.Context, block txproc.InboundL1Block) error
}

// L3BatchQueue is the push side of txproc.L3BlockSource: it accepts the
// L2 blocks verifying one L1 block, ready for level-3 aggregation.
type L3BatchQueue interface {
	Push(ctx context.Context, batch txproc.InboundL2Batch) error
}

// L4BatchQueue is the push side of txproc.L4BlockSource: it accepts the
// L3 blocks verifying one L1 block, ready for level-4 aggregation.
type L4BatchQueue interface {
	Push(ctx context.Context, batch txproc.InboundL3Batch) error
}

// verificationRequest mirrors pkg/broadcast's verificationDTO wire
// shape so EnqueueHandler can decode what Scheduler.processOne sends.
type verificationRequest struct {
	BlockID string          `json:"block_id"`
	Level   int             `json:"level"`
	Payload json.RawMessage `json:"payload"`
}

// EnqueueHandler serves POST /v1/enqueue.
type EnqueueHandler struct {
	srv *Server
	l2  L2BlockQueue
	l3  L3BatchQueue
	l4  L4BatchQueue
}

// NewEnqueueHandler builds an EnqueueHandler over srv. Any of l2/l3/l4
// may be nil if this node's level doesn't serve that inbound queue.
func NewEnqueueHandler(srv *Server, l2 L2BlockQueue, l3 L3BatchQueue, l4 L4BatchQueue) *EnqueueHandler {
	return &EnqueueHandler{srv: srv, l2: l2, l3: l3, l4: l4}
}

func (h *EnqueueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if err := h.srv.authenticateRequest(r, body); err != nil {
		writeJSONError(w, err.Error(), dnerrors.HTTPStatus(err))
		return
	}

	var req verificationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var enqueueErr error
	switch req.Level {
	case 2:
		enqueueErr = h.enqueueL2(ctx, req.Payload)
	case 3:
		enqueueErr = h.enqueueL3(ctx, req.Payload)
	case 4:
		enqueueErr = h.enqueueL4(ctx, req.Payload)
	default:
		writeJSONError(w, fmt.Sprintf("unsupported verification level %d", req.Level), http.StatusBadRequest)
		return
	}
	if enqueueErr != nil {
		h.srv.logger.Printf("enqueue block %s level %d: %v", req.BlockID, req.Level, enqueueErr)
		writeJSONError(w, enqueueErr.Error(), dnerrors.HTTPStatus(enqueueErr))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "enqueued"})
}

func (h *EnqueueHandler) enqueueL2(ctx context.Context, payload json.RawMessage) error {
	if h.l2 == nil {
		return fmt.Errorf("%w: node does not accept level-2 verification work", dnerrors.ErrBadState)
	}
	var block model.L1Block
	if err := json.Unmarshal(payload, &block); err != nil {
		return fmt.Errorf("%w: decode l1 block: %v", dnerrors.ErrBadRequest, err)
	}
	return h.l2.Push(ctx, txproc.InboundL1Block{OriginDCID: block.DCID, Block: &block})
}

func (h *EnqueueHandler) enqueueL3(ctx context.Context, payload json.RawMessage) error {
	if h.l3 == nil {
		return fmt.Errorf("%w: node does not accept level-3 verification work", dnerrors.ErrBadState)
	}
	var batch txproc.InboundL2Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return fmt.Errorf("%w: decode l2 batch: %v", dnerrors.ErrBadRequest, err)
	}
	return h.l3.Push(ctx, batch)
}

func (h *EnqueueHandler) enqueueL4(ctx context.Context, payload json.RawMessage) error {
	if h.l4 == nil {
		return fmt.Errorf("%w: node does not accept level-4 verification work", dnerrors.ErrBadState)
	}
	var batch txproc.InboundL3Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return fmt.Errorf("%w: decode l3 batch: %v", dnerrors.ErrBadRequest, err)
	}
	return h.l4.Push(ctx, batch)
}

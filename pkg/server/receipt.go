// Copyright 2025 Certen Protocol
//
// Receipt wires txproc.ReceiptSender's HTTP transport: ReceiptHandler
// is the receiving end (POST /v1/receipt, called by a verifier's
// pkg/txproc processor once it signs its block), and HTTPReceiptSender
// is the sending end a verifier node constructs to satisfy
// txproc.ReceiptSender, POSTing a signed request back to the origin
// L1 chain the way broadcast.Scheduler signs its own outbound enqueue
// requests.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/authz"
	"github.com/dragonchain-gen2/dragonnet/pkg/broadcast"
	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
	"github.com/dragonchain-gen2/dragonnet/pkg/txproc"
)

// receiptDTO is the wire form of a txproc.Receipt.
type receiptDTO struct {
	L1DCID       string `json:"l1_dc_id"`
	L1BlockID    int64  `json:"l1_block_id"`
	Level        int    `json:"level"`
	VerifierDCID string `json:"verifier_dc_id"`
	Proof        string `json:"proof"`
}

// ReceiptHandler serves POST /v1/receipt: it records the verifier's
// receipt against the broadcast state machine and, once a level's
// quorum is met, promotes the block to the next level.
type ReceiptHandler struct {
	srv *Server
}

// NewReceiptHandler builds a ReceiptHandler over srv.
func NewReceiptHandler(srv *Server) *ReceiptHandler {
	return &ReceiptHandler{srv: srv}
}

func (h *ReceiptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	var dto receiptDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	blockID := strconv.FormatInt(dto.L1BlockID, 10)
	quorumMet, err := h.srv.processor.RecordVerificationReceipt(ctx, blockID, dto.Level, dto.VerifierDCID)
	if err != nil {
		writeJSONError(w, err.Error(), dnerrors.HTTPStatus(err))
		return
	}
	if quorumMet {
		if err := h.srv.processor.Promote(ctx, blockID, dto.Level); err != nil {
			writeJSONError(w, err.Error(), dnerrors.HTTPStatus(err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "recorded", "quorum_met": quorumMet})
}

// OriginResolver resolves a dc_id's currently registered URL.
// matchmaking.Client satisfies this directly.
type OriginResolver interface {
	GetDragonchainAddress(ctx context.Context, dcID string) (string, error)
}

// HTTPReceiptSender implements txproc.ReceiptSender by POSTing a signed
// request back to the origin L1 chain's "/v1/receipt" endpoint.
type HTTPReceiptSender struct {
	poster    broadcast.Poster
	origin    OriginResolver
	dcID      string
	keyID     string
	secretKey string
	hashAlgo  model.HashAlgo
	now       func() time.Time
}

// NewHTTPReceiptSender builds a sender that signs outbound receipts as
// dcID using keyID/secretKey under hashAlgo, resolving each origin
// chain's URL via origin and delivering through poster.
func NewHTTPReceiptSender(poster broadcast.Poster, origin OriginResolver, dcID, keyID, secretKey string, hashAlgo model.HashAlgo) *HTTPReceiptSender {
	return &HTTPReceiptSender{
		poster:    poster,
		origin:    origin,
		dcID:      dcID,
		keyID:     keyID,
		secretKey: secretKey,
		hashAlgo:  hashAlgo,
		now:       time.Now,
	}
}

const receiptPath = "/v1/receipt"

// SendReceipt implements txproc.ReceiptSender.
func (s *HTTPReceiptSender) SendReceipt(ctx context.Context, r txproc.Receipt) error {
	url, err := s.origin.GetDragonchainAddress(ctx, r.L1DCID)
	if err != nil {
		return fmt.Errorf("resolve origin address for %s: %w", r.L1DCID, err)
	}

	dto := receiptDTO{
		L1DCID:       r.L1DCID,
		L1BlockID:    r.L1BlockID,
		Level:        r.Level,
		VerifierDCID: r.VerifierDCID,
		Proof:        r.Proof,
	}
	body, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal receipt for %s: %w", r.L1DCID, err)
	}

	signed, err := authz.GenerateAuthenticatedRequest(s.keyID, s.secretKey, r.L1DCID, receiptPath, body, s.hashAlgo, s.now())
	if err != nil {
		return fmt.Errorf("sign receipt for %s: %w", r.L1DCID, err)
	}

	status, respBody, err := s.poster.Post(ctx, url+receiptPath, signed.Headers, signed.Body)
	if err != nil {
		return fmt.Errorf("post receipt to %s: %w", url, err)
	}
	if status >= 300 {
		return fmt.Errorf("%w: receipt post to %s returned status %d: %s", dnerrors.ErrRPCError, url, status, respBody)
	}
	return nil
}

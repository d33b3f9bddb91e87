// Copyright 2025 Certen Protocol
//
// Transaction is the unit of business data submitted at L1 (spec §3).

package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Transaction is business data submitted at an L1 node.
type Transaction struct {
	TxnID     string          `json:"txn_id"`
	TxnType   string          `json:"txn_type"`
	DCID      string          `json:"dc_id"`
	BlockID   string          `json:"block_id"`
	Timestamp int64           `json:"timestamp"`
	Tag       string          `json:"tag,omitempty"`
	Invoker   string          `json:"invoker,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	FullHash  string          `json:"full_hash,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// NewTransaction assigns the fields L1 admission is responsible for:
// dc_id, a fresh UUIDv4 txn_id, and the admission timestamp. block_id is
// assigned separately once the enclosing block id is known.
func NewTransaction(dcID, txnType string, payload json.RawMessage, now int64) *Transaction {
	return &Transaction{
		TxnID:     uuid.NewString(),
		TxnType:   txnType,
		DCID:      dcID,
		Timestamp: now,
		Payload:   payload,
	}
}

// Stripped returns the cross-level propagation form of the transaction:
// payload replaced by its hash. The returned value is a copy; the
// receiver is left untouched.
func (t *Transaction) Stripped() *StrippedTransaction {
	return &StrippedTransaction{
		TxnID:       t.TxnID,
		TxnType:     t.TxnType,
		DCID:        t.DCID,
		BlockID:     t.BlockID,
		Timestamp:   t.Timestamp,
		Tag:         t.Tag,
		Invoker:     t.Invoker,
		PayloadHash: hashPayload(t.Payload),
		FullHash:    t.FullHash,
		Signature:   t.Signature,
	}
}

// StrippedTransaction is the form a transaction takes once it leaves L1:
// the payload is replaced by its hash (spec invariant I3).
type StrippedTransaction struct {
	TxnID       string `json:"txn_id"`
	TxnType     string `json:"txn_type"`
	DCID        string `json:"dc_id"`
	BlockID     string `json:"block_id"`
	Timestamp   int64  `json:"timestamp"`
	Tag         string `json:"tag,omitempty"`
	Invoker     string `json:"invoker,omitempty"`
	PayloadHash string `json:"payload_hash"`
	FullHash    string `json:"full_hash"`
	Signature   string `json:"signature,omitempty"`
}

// CanonicalJSON serializes the stripped transaction with stable (sorted)
// key ordering, the form hashed to produce full_hash and covered by the
// block's proof.
func (s *StrippedTransaction) CanonicalJSON() ([]byte, error) {
	return canonicalJSON(map[string]interface{}{
		"txn_id":       s.TxnID,
		"txn_type":     s.TxnType,
		"dc_id":        s.DCID,
		"block_id":     s.BlockID,
		"timestamp":    s.Timestamp,
		"tag":          s.Tag,
		"invoker":      s.Invoker,
		"payload_hash": s.PayloadHash,
	})
}

func hashPayload(payload json.RawMessage) string {
	h := sha256.Sum256(payload)
	return fmt.Sprintf("%x", h)
}

// ComputeFullHash implements invariant I3:
// full_hash(txn) = H(canonical_json(stripped(txn)) || H(payload)).
func ComputeFullHash(t *Transaction) (string, error) {
	stripped := t.Stripped()
	canon, err := stripped.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("canonicalize stripped transaction: %w", err)
	}
	payloadHash := sha256.Sum256(t.Payload)
	h := sha256.New()
	h.Write(canon)
	h.Write(payloadHash[:])
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

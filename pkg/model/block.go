// Copyright 2025 Certen Protocol
//
// Block types for levels L1-L5 (spec §3). Each level's block embeds
// BlockHeader and adds level-specific fields. CanonicalHash produces the
// canonical-form hash that the proof scheme signs or solves a PoW target
// over (§4.2).

package model

import (
	"crypto/sha256"
	"crypto/sha3"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ProofScheme selects how a block's proof field is produced.
type ProofScheme string

const (
	ProofSchemeTrust ProofScheme = "trust"
	ProofSchemeWork  ProofScheme = "work"
)

// HashAlgo selects the hash function used for wire signing (§6.3) and,
// where configured, block hashing.
type HashAlgo string

const (
	HashSHA256    HashAlgo = "SHA256"
	HashSHA3_256  HashAlgo = "SHA3-256"
	HashBLAKE2b   HashAlgo = "BLAKE2b512"
)

// Hash computes the digest of b under the given algorithm.
func Hash(algo HashAlgo, data []byte) ([]byte, error) {
	switch algo {
	case HashSHA256, "":
		h := sha256.Sum256(data)
		return h[:], nil
	case HashSHA3_256:
		h := sha3.Sum256(data)
		return h[:], nil
	case HashBLAKE2b:
		h := blake2b.Sum512(data)
		return h[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// BlockHeader carries the fields common to every level's block.
type BlockHeader struct {
	DCID      string `json:"dc_id"`
	BlockID   int64  `json:"block_id"`
	Level     int    `json:"level"`
	Timestamp int64  `json:"timestamp"`
	PrevProof string `json:"prev_proof"`
	Version   string `json:"version"`
	Proof     string `json:"proof,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
}

// L1Block: business-transaction block produced at level 1.
type L1Block struct {
	BlockHeader
	Transactions []*StrippedTransaction `json:"transactions"`
}

// L2Block: per-transaction re-validation of a single L1 block.
type L2Block struct {
	BlockHeader
	L1DCID         string          `json:"l1_dc_id"`
	L1BlockID      int64           `json:"l1_block_id"`
	L1Proof        string          `json:"l1_proof"`
	CurrentDDSS    float64         `json:"current_ddss"`
	ValidationsMap map[string]bool `json:"validations_dict"`
}

// L2Proof references one L2 block's verification of an L1 block.
type L2Proof struct {
	DCID    string `json:"dc_id"`
	BlockID int64  `json:"block_id"`
	Proof   string `json:"proof"`
}

// L3Block: aggregation of L2 blocks verifying one L1 block, with
// diversity accounting.
type L3Block struct {
	BlockHeader
	L1DCID    string    `json:"l1_dc_id"`
	L1BlockID int64     `json:"l1_block_id"`
	DDSS      float64   `json:"ddss"`
	L2Count   int       `json:"l2_count"`
	Regions   []string  `json:"regions"`
	Clouds    []string  `json:"clouds"`
	L2Proofs  []L2Proof `json:"l2_proofs"`
}

// L3Validation references one L3 block's verification, carried into L4.
type L3Validation struct {
	L3DCID    string `json:"l3_dc_id"`
	L3BlockID int64  `json:"l3_block_id"`
	L3Proof   string `json:"l3_proof"`
	Valid     bool   `json:"valid"`
}

// L4Block: aggregation of L3 blocks verifying one L1 block.
type L4Block struct {
	BlockHeader
	L1DCID        string         `json:"l1_dc_id"`
	L1BlockID     int64          `json:"l1_block_id"`
	L1Proof       string         `json:"l1_proof"`
	L3Validations []L3Validation `json:"l3_validations"`
}

// L4Projection is the form an L4 block takes once staged for L5
// anchoring (§4.3 step 1/4).
type L4Projection struct {
	L1DCID    string `json:"l1_dc_id"`
	L1BlockID int64  `json:"l1_block_id"`
	L4DCID    string `json:"l4_dc_id"`
	L4BlockID int64  `json:"l4_block_id"`
	L4Proof   string `json:"l4_proof"`
	IsInvalid bool   `json:"is_invalid,omitempty"`
}

// L5Block: anchors an aggregate of L4 blocks to an external chain.
type L5Block struct {
	BlockHeader
	L4Blocks        []L4Projection `json:"l4_blocks"`
	TransactionHash []string       `json:"transaction_hash"`
	BlockLastSentAt int64          `json:"block_last_sent_at"`
	Network         string         `json:"network"`
}

// CanonicalFields returns the block's fields as a map, ready for
// canonical-JSON hashing with non-canonical fields (proof, nonce,
// transaction_hash, block_last_sent_at) stripped per §4.2.
func (b *L1Block) CanonicalFields() map[string]interface{} {
	txns := make([]interface{}, len(b.Transactions))
	for i, t := range b.Transactions {
		txns[i] = map[string]interface{}{
			"txn_id":       t.TxnID,
			"txn_type":     t.TxnType,
			"dc_id":        t.DCID,
			"block_id":     t.BlockID,
			"timestamp":    t.Timestamp,
			"payload_hash": t.PayloadHash,
			"full_hash":    t.FullHash,
		}
	}
	return stripNonCanonical(map[string]interface{}{
		"dc_id":        b.DCID,
		"block_id":     b.BlockID,
		"level":        b.Level,
		"timestamp":    b.Timestamp,
		"prev_proof":   b.PrevProof,
		"version":      b.Version,
		"proof":        b.Proof,
		"nonce":        b.Nonce,
		"transactions": txns,
	})
}

func (b *L2Block) CanonicalFields() map[string]interface{} {
	return stripNonCanonical(map[string]interface{}{
		"dc_id":           b.DCID,
		"block_id":        b.BlockID,
		"level":           b.Level,
		"timestamp":       b.Timestamp,
		"prev_proof":      b.PrevProof,
		"version":         b.Version,
		"proof":           b.Proof,
		"nonce":           b.Nonce,
		"l1_dc_id":        b.L1DCID,
		"l1_block_id":     b.L1BlockID,
		"l1_proof":        b.L1Proof,
		"current_ddss":    b.CurrentDDSS,
		"validations_dict": b.ValidationsMap,
	})
}

func (b *L3Block) CanonicalFields() map[string]interface{} {
	proofs := make([]interface{}, len(b.L2Proofs))
	for i, p := range b.L2Proofs {
		proofs[i] = map[string]interface{}{"dc_id": p.DCID, "block_id": p.BlockID, "proof": p.Proof}
	}
	return stripNonCanonical(map[string]interface{}{
		"dc_id":       b.DCID,
		"block_id":    b.BlockID,
		"level":       b.Level,
		"timestamp":   b.Timestamp,
		"prev_proof":  b.PrevProof,
		"version":     b.Version,
		"proof":       b.Proof,
		"nonce":       b.Nonce,
		"l1_dc_id":    b.L1DCID,
		"l1_block_id": b.L1BlockID,
		"ddss":        b.DDSS,
		"l2_count":    b.L2Count,
		"regions":     toInterfaceSlice(b.Regions),
		"clouds":      toInterfaceSlice(b.Clouds),
		"l2_proofs":   proofs,
	})
}

func (b *L4Block) CanonicalFields() map[string]interface{} {
	vals := make([]interface{}, len(b.L3Validations))
	for i, v := range b.L3Validations {
		vals[i] = map[string]interface{}{
			"l3_dc_id": v.L3DCID, "l3_block_id": v.L3BlockID, "l3_proof": v.L3Proof, "valid": v.Valid,
		}
	}
	return stripNonCanonical(map[string]interface{}{
		"dc_id":          b.DCID,
		"block_id":       b.BlockID,
		"level":          b.Level,
		"timestamp":      b.Timestamp,
		"prev_proof":     b.PrevProof,
		"version":        b.Version,
		"proof":          b.Proof,
		"nonce":          b.Nonce,
		"l1_dc_id":       b.L1DCID,
		"l1_block_id":    b.L1BlockID,
		"l1_proof":       b.L1Proof,
		"l3_validations": vals,
	})
}

func (b *L5Block) CanonicalFields() map[string]interface{} {
	blocks := make([]interface{}, len(b.L4Blocks))
	for i, p := range b.L4Blocks {
		blocks[i] = map[string]interface{}{
			"l1_dc_id": p.L1DCID, "l1_block_id": p.L1BlockID,
			"l4_dc_id": p.L4DCID, "l4_block_id": p.L4BlockID,
			"l4_proof": p.L4Proof, "is_invalid": p.IsInvalid,
		}
	}
	return stripNonCanonical(map[string]interface{}{
		"dc_id":      b.DCID,
		"block_id":   b.BlockID,
		"level":      b.Level,
		"timestamp":  b.Timestamp,
		"prev_proof": b.PrevProof,
		"version":    b.Version,
		"proof":      b.Proof,
		"nonce":      b.Nonce,
		"l4_blocks":  blocks,
		"network":    b.Network,
	})
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// CanonicalHash serializes fields canonically and hashes under algo.
func CanonicalHash(algo HashAlgo, fields map[string]interface{}) ([]byte, error) {
	canon, err := canonicalJSON(fields)
	if err != nil {
		return nil, fmt.Errorf("canonicalize block: %w", err)
	}
	return Hash(algo, canon)
}

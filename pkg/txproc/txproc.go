// Copyright 2025 Certen Protocol
//
// Txproc is C7: the level-agnostic tick skeleton (pop inbound work, process
// it, build/sign/persist a block, hand it off) specialized per level in
// level1.go..level4.go (spec §4.2). L5 is the anchor engine (pkg/anchor);
// it shares this package's block-signing helpers but is not itself a
// txproc.Processor.
package txproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
	"github.com/dragonchain-gen2/dragonnet/pkg/store"
)

// DefaultBlockInterval is how often a new block id is minted, absent an
// override (spec §4.2's "default every 5s").
const DefaultBlockInterval = 5 * time.Second

// DefaultWorkDifficultyBits is the leading-zero-bits target a "work"
// scheme chain proves against, absent an override — see DESIGN.md open
// question (e): the concrete bit count is left as a deployment choice,
// and this package settles on a value small enough that a
// verification-network tick (not a mining competition) stays the
// bottleneck.
const DefaultWorkDifficultyBits = 8

// ComputeBlockID assigns the block id a new block belongs in, per
// floor((now - epochOffset) / blockInterval).
func ComputeBlockID(now time.Time, epochOffset int64, blockInterval time.Duration) int64 {
	return (now.Unix() - epochOffset) / int64(blockInterval.Seconds())
}

// lastBlockProof returns the id and proof of the last block this node
// produced (tracked generically via BlockDAO.GetLastBlock/SetLastBlock,
// which is safe because one node's object store only ever holds blocks
// for its own level), or (0, "", nil) if this is the first block.
func lastBlockProof(ctx context.Context, d *dao.BlockDAO) (int64, string, error) {
	lastID, err := d.GetLastBlock(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("get last block id: %w", err)
	}
	if lastID == 0 {
		return 0, "", nil
	}
	raw, err := d.GetBlock(ctx, strconv.FormatInt(lastID, 10))
	if store.IsNotFound(err) {
		return lastID, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("get last block %d: %w", lastID, err)
	}
	var hdr struct {
		Proof string `json:"proof"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return 0, "", fmt.Errorf("decode last block %d header: %w", lastID, err)
	}
	return lastID, hdr.Proof, nil
}

// signBlock hashes fields under hashAlgo and signs the result per scheme,
// returning the proof (and, for the work scheme, the nonce) to set on a
// block header.
func signBlock(ks *keyservice.KeyService, hashAlgo model.HashAlgo, scheme model.ProofScheme, difficultyBits uint, fields map[string]interface{}) (proof, nonce string, err error) {
	hash, err := model.CanonicalHash(hashAlgo, fields)
	if err != nil {
		return "", "", fmt.Errorf("canonical hash: %w", err)
	}
	switch scheme {
	case model.ProofSchemeWork:
		return ks.ProveWork(hashAlgo, hash, difficultyBits)
	case model.ProofSchemeTrust, "":
		return ks.SignHash(hash), "", nil
	default:
		return "", "", fmt.Errorf("unsupported proof scheme %q", scheme)
	}
}

// marshalTxn renders a transaction's at-rest JSON, as stored in a
// block's transaction log.
func marshalTxn(txn *model.Transaction) (json.RawMessage, error) {
	raw, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction %s: %w", txn.TxnID, err)
	}
	return raw, nil
}

// marshalBlock renders a block's at-rest JSON, as stored under its
// object store key.
func marshalBlock(block interface{}) ([]byte, error) {
	raw, err := json.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("marshal block: %w", err)
	}
	return raw, nil
}

// PubKeyLookup resolves the ed25519 public key a chain's blocks are
// signed under, for verifying an inbound block's proof.
type PubKeyLookup interface {
	PublicKeyHex(ctx context.Context, dcID string) (string, bool, error)
}

// verifyBlockProof checks that a block's proof (and, for the work
// scheme, nonce) validates against its own canonical hash under
// signerDCID's registered public key.
func verifyBlockProof(ctx context.Context, keys PubKeyLookup, hashAlgo model.HashAlgo, difficultyBits uint, signerDCID string, fields map[string]interface{}, proof, nonce string) (bool, error) {
	pubKeyHex, ok, err := keys.PublicKeyHex(ctx, signerDCID)
	if err != nil {
		return false, fmt.Errorf("look up public key for %s: %w", signerDCID, err)
	}
	if !ok {
		return false, nil
	}
	hash, err := model.CanonicalHash(hashAlgo, fields)
	if err != nil {
		return false, fmt.Errorf("canonical hash: %w", err)
	}
	if nonce == "" {
		return keyservice.VerifyHash(pubKeyHex, hash, proof)
	}
	if len(proof) <= len(nonce) {
		return false, nil
	}
	sigHex := proof[:len(proof)-len(nonce)]
	return keyservice.VerifyWork(hashAlgo, pubKeyHex, hash, sigHex, nonce, difficultyBits)
}

// Copyright 2025 Certen Protocol
//
// KeyService is C5: per-chain asymmetric key management. Every level
// signs its blocks under the "trust" proof scheme with an ed25519 key;
// L3 and L4 nodes additionally hold a BLS key so their proofs can be
// folded via pkg/crypto/bls when a quorum aggregates (spec §4.2).

package keyservice

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dragonchain-gen2/dragonnet/pkg/crypto/bls"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

// KeyService holds the signing material for one node.
type KeyService struct {
	dcID       string
	keyDir     string
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	blsKeys    *bls.KeyManager // nil unless the node aggregates (L3/L4)
}

// New loads or generates the ed25519 signing key for dcID under keyDir.
// keyDir may be empty, in which case a key is generated in memory and
// never persisted — usable for tests and ephemeral nodes.
func New(dcID, keyDir string) (*KeyService, error) {
	ks := &KeyService{dcID: dcID, keyDir: keyDir}
	if err := ks.loadOrGenerate(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (ks *KeyService) keyPath() string {
	if ks.keyDir == "" {
		return ""
	}
	return filepath.Join(ks.keyDir, ks.dcID+".ed25519")
}

func (ks *KeyService) loadOrGenerate() error {
	path := ks.keyPath()
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			seed, err := hex.DecodeString(string(data))
			if err != nil {
				return fmt.Errorf("decode ed25519 key file: %w", err)
			}
			if len(seed) != ed25519.SeedSize {
				return fmt.Errorf("ed25519 key file has wrong length %d", len(seed))
			}
			ks.privateKey = ed25519.NewKeyFromSeed(seed)
			ks.publicKey = ks.privateKey.Public().(ed25519.PublicKey)
			return nil
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate ed25519 key: %w", err)
	}
	ks.privateKey = priv
	ks.publicKey = pub

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
		seed := priv.Seed()
		if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0600); err != nil {
			return fmt.Errorf("write ed25519 key file: %w", err)
		}
	}
	return nil
}

// EnableAggregation provisions a BLS key pair for this node, deterministically
// derived from its dc_id, for use when folding L2/L3 proofs.
func (ks *KeyService) EnableAggregation(chainID string) error {
	km, err := bls.InitializeValidatorBLSKey(ks.dcID, chainID, ks.blsKeyPath())
	if err != nil {
		return fmt.Errorf("initialize BLS key: %w", err)
	}
	ks.blsKeys = km
	return nil
}

func (ks *KeyService) blsKeyPath() string {
	if ks.keyDir == "" {
		return ""
	}
	return filepath.Join(ks.keyDir, ks.dcID+".bls")
}

// DCID returns the chain/node identifier this key service signs for.
func (ks *KeyService) DCID() string { return ks.dcID }

// PublicKeyHex returns this node's ed25519 public key, hex-encoded, for
// publication in registration/matchmaking records.
func (ks *KeyService) PublicKeyHex() string {
	return hex.EncodeToString(ks.publicKey)
}

// BLSPublicKeyHex returns this node's BLS public key hex, or "" if
// aggregation was never enabled.
func (ks *KeyService) BLSPublicKeyHex() string {
	if ks.blsKeys == nil {
		return ""
	}
	return ks.blsKeys.GetPublicKeyHex()
}

// SignHash signs a precomputed hash (as produced by model.Hash) under the
// "trust" proof scheme and returns the hex-encoded signature, matching the
// on-wire `proof` field for L1-L4 blocks (spec §4.2).
func (ks *KeyService) SignHash(hash []byte) string {
	sig := ed25519.Sign(ks.privateKey, hash)
	return hex.EncodeToString(sig)
}

// VerifyHash checks a hex-encoded signature over hash against pubKeyHex.
func VerifyHash(pubKeyHex string, hash []byte, sigHex string) (bool, error) {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("public key has wrong length %d", len(pub))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), hash, sig), nil
}

// SignBlockFields hashes fields with algo and signs the result, returning
// both the hash and the proof, for callers assembling a BlockHeader.
func (ks *KeyService) SignBlockFields(algo model.HashAlgo, fields map[string]interface{}) (hash []byte, proof string, err error) {
	hash, err = model.CanonicalHash(algo, fields)
	if err != nil {
		return nil, "", fmt.Errorf("canonical hash: %w", err)
	}
	return hash, ks.SignHash(hash), nil
}

// NonceHexLen is the fixed width, in hex characters, of the nonce
// ProveWork appends to a wire proof — always 8 bytes encoded as hex,
// regardless of how large the nonce counter actually grew. Callers
// splitting a wire proof back into signature/nonce use this constant
// rather than guessing the split point.
const NonceHexLen = 16

// ProveWork performs proof-of-work under the "work" scheme: it searches
// for a nonce such that H(hash || nonce) has at least difficultyBits
// leading zero bits, then returns signature||nonce as the wire proof
// (spec §4.2) alongside the nonce alone.
func (ks *KeyService) ProveWork(algo model.HashAlgo, hash []byte, difficultyBits uint) (proof, nonce string, err error) {
	for n := uint64(0); ; n++ {
		nonceHex := hex.EncodeToString(binaryUint64(n))
		combined := make([]byte, 0, len(hash)+len(nonceHex))
		combined = append(combined, hash...)
		combined = append(combined, []byte(nonceHex)...)
		digest, err := model.Hash(algo, combined)
		if err != nil {
			return "", "", fmt.Errorf("hash work attempt: %w", err)
		}
		if leadingZeroBits(digest) >= difficultyBits {
			return ks.SignHash(hash) + nonceHex, nonceHex, nil
		}
	}
}

// VerifyWork checks a "work" scheme proof: that sigHex is a valid
// signature over hash under pubKeyHex, and that H(hash||nonce) meets
// difficultyBits leading zero bits. Callers split a wire proof
// (signature||nonce) into sigHex/nonce themselves, since only they know
// the nonce's fixed hex width.
func VerifyWork(algo model.HashAlgo, pubKeyHex string, hash []byte, sigHex, nonce string, difficultyBits uint) (bool, error) {
	ok, err := VerifyHash(pubKeyHex, hash, sigHex)
	if err != nil || !ok {
		return false, err
	}
	combined := make([]byte, 0, len(hash)+len(nonce))
	combined = append(combined, hash...)
	combined = append(combined, []byte(nonce)...)
	digest, err := model.Hash(algo, combined)
	if err != nil {
		return false, fmt.Errorf("hash work proof: %w", err)
	}
	return leadingZeroBits(digest) >= difficultyBits, nil
}

func binaryUint64(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

func leadingZeroBits(b []byte) uint {
	var count uint
	for _, by := range b {
		if by == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if by&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// AggregateSign produces a BLS signature over hash, for use by L3/L4 nodes
// folding multiple child proofs into one aggregate (spec §4.2, C3.3/C3.4).
func (ks *KeyService) AggregateSign(hash []byte) (*bls.Signature, error) {
	if ks.blsKeys == nil {
		return nil, fmt.Errorf("BLS aggregation not enabled for %s", ks.dcID)
	}
	return ks.blsKeys.Sign(hash)
}

// AggregatePublicKey returns this node's BLS public key for inclusion in
// an aggregate-signature quorum set, or nil if aggregation is not enabled.
func (ks *KeyService) AggregatePublicKey() *bls.PublicKey {
	if ks.blsKeys == nil {
		return nil
	}
	return ks.blsKeys.GetPublicKey()
}

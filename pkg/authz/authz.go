// Copyright 2025 Certen Protocol
//
// Authz is §6.3's request signing/verification scheme: the inter-node
// enqueue and receipt calls carry an
// "Authorization: DC1-HMAC-<HASH> <key_id>:<base64_sig>" header whose
// signature covers a canonical string built from the verb, path,
// receiver dc_id, timestamp, content type, and a hash of the body.
// pkg/server serves claim-check reads and interchain-auth-register
// without verifying one.

package authz

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha3"
	"encoding/base64"
	"fmt"
	"hash"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

// AuthVersion is the only request-signing version this node understands.
const AuthVersion = "DC1-HMAC"

// DefaultClockSkew is how far a request's timestamp may drift from now
// before it is rejected (§6.3).
const DefaultClockSkew = 30 * time.Second

var schemePattern = regexp.MustCompile(`^DC(\d+)-HMAC(?:-(.+))?$`)

// hmacHashFunc returns the constructor for the hash.Hash backing algo's
// HMAC.
func hmacHashFunc(algo model.HashAlgo) (func() hash.Hash, error) {
	switch algo {
	case model.HashSHA256, "":
		return sha256.New, nil
	case model.HashSHA3_256:
		return sha3.New256, nil
	case model.HashBLAKE2b:
		return func() hash.Hash {
			h, _ := blake2b.New512(nil)
			return h
		}, nil
	default:
		return nil, fmt.Errorf("unsupported HMAC hash type %q", algo)
	}
}

// supportedHash maps a wire hash token ("SHA256", "SHA3-256",
// "BLAKE2b512") to the model.HashAlgo it names, rejecting anything else.
func supportedHash(token string) (model.HashAlgo, bool) {
	switch model.HashAlgo(token) {
	case model.HashSHA256, model.HashSHA3_256, model.HashBLAKE2b:
		return model.HashAlgo(token), true
	default:
		return "", false
	}
}

// CanonicalString builds the message an Authorization signature covers:
//
//	VERB\nPATH\nRECEIVER-DC-ID\nTIMESTAMP\nCONTENT-TYPE\nbase64(H(body))
func CanonicalString(verb, fullPath, receiverDCID, timestamp, contentType string, body []byte, algo model.HashAlgo) (string, error) {
	digest, err := model.Hash(algo, body)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		verb,
		fullPath,
		receiverDCID,
		timestamp,
		contentType,
		base64.StdEncoding.EncodeToString(digest),
	}, "\n"), nil
}

// Sign produces the value of an Authorization header for a request
// signed by keyID/secretKey under algo.
func Sign(keyID, secretKey, verb, fullPath, receiverDCID, timestamp, contentType string, body []byte, algo model.HashAlgo) (string, error) {
	msg, err := CanonicalString(verb, fullPath, receiverDCID, timestamp, contentType, body, algo)
	if err != nil {
		return "", err
	}
	newHash, err := hmacHashFunc(algo)
	if err != nil {
		return "", err
	}
	mac := hmac.New(newHash, []byte(secretKey))
	mac.Write([]byte(msg))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s-%s %s:%s", AuthVersion, algo, keyID, sig), nil
}

// SignedRequest is the header/body pair produced for an outbound
// authenticated request, ready to attach to an http.Request.
type SignedRequest struct {
	Headers map[string]string
	Body    []byte
}

// GenerateAuthenticatedRequest builds a signed POST of jsonBody to
// fullPath on receiverDCID, matching the header shape
// generate_authenticated_request produces: Content-Type, timestamp, and
// Authorization, plus a "dragonchain" header naming the receiver unless
// it is the matchmaking service.
func GenerateAuthenticatedRequest(keyID, secretKey, receiverDCID, fullPath string, body []byte, algo model.HashAlgo, now time.Time) (*SignedRequest, error) {
	timestamp := now.UTC().Format(time.RFC3339Nano)
	auth, err := Sign(keyID, secretKey, "POST", fullPath, receiverDCID, timestamp, "application/json", body, algo)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"Content-Type":  "application/json",
		"timestamp":     timestamp,
		"Authorization": auth,
	}
	if receiverDCID != "matchmaking" {
		headers["dragonchain"] = receiverDCID
	}
	return &SignedRequest{Headers: headers, Body: body}, nil
}

// KeyLookup resolves a key_id from an Authorization header to the shared
// secret it signs with, and whether that key is currently allowed to act.
type KeyLookup interface {
	Lookup(ctx context.Context, keyID string) (secretKey string, allowed bool, err error)
}

// ReplayCache rejects a signature that has already been presented once.
type ReplayCache interface {
	// SeenOrRecord reports whether signature was already recorded, and
	// if not, records it for future calls.
	SeenOrRecord(ctx context.Context, signature string) (bool, error)
}

// Verifier checks inbound Authorization headers against this node's own
// dc_id, a key lookup, and an anti-replay cache.
type Verifier struct {
	dcID      string
	keys      KeyLookup
	replay    ReplayCache
	now       func() time.Time
	clockSkew time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the verifier's notion of "now" (for tests).
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithClockSkew overrides the allowed timestamp drift.
func WithClockSkew(d time.Duration) Option {
	return func(v *Verifier) { v.clockSkew = d }
}

// NewVerifier builds a Verifier for a node whose own dc_id is dcID.
func NewVerifier(dcID string, keys KeyLookup, replay ReplayCache, opts ...Option) *Verifier {
	v := &Verifier{
		dcID:      dcID,
		keys:      keys,
		replay:    replay,
		now:       time.Now,
		clockSkew: DefaultClockSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks an inbound Authorization header. receiverDCID is the
// dc_id the request claims to be addressed to (e.g. the "dragonchain"
// header); it must match this verifier's own dc_id.
func (v *Verifier) Verify(ctx context.Context, authHeader, verb, fullPath, receiverDCID, timestamp, contentType string, body []byte) error {
	if receiverDCID != v.dcID {
		return fmt.Errorf("%w: incorrect dragonchain id", dnerrors.ErrUnauthorized)
	}

	schemeToken, credsToken, hasSpace := strings.Cut(authHeader, " ")
	m := schemePattern.FindStringSubmatch(schemeToken)
	if m == nil {
		return fmt.Errorf("%w: malformed authorization header", dnerrors.ErrUnauthorized)
	}
	if m[1] != "1" {
		return fmt.Errorf("%w: unsupported dc authorization version", dnerrors.ErrUnauthorized)
	}
	algo, ok := supportedHash(m[2])
	if !ok {
		return fmt.Errorf("%w: unsupported hmac hash type", dnerrors.ErrUnauthorized)
	}

	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, timestamp)
	}
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", dnerrors.ErrUnauthorized)
	}
	if skew := v.now().Sub(ts); skew > v.clockSkew || skew < -v.clockSkew {
		return fmt.Errorf("%w: timestamp of request too skewed", dnerrors.ErrUnauthorized)
	}

	if !hasSpace {
		return fmt.Errorf("%w: malformed authorization header", dnerrors.ErrUnauthorized)
	}
	keyID, sig, ok := strings.Cut(credsToken, ":")
	if !ok || keyID == "" || sig == "" {
		return fmt.Errorf("%w: malformed authorization header", dnerrors.ErrUnauthorized)
	}

	secretKey, allowed, err := v.keys.Lookup(ctx, keyID)
	if err != nil {
		return fmt.Errorf("look up key %s: %w", keyID, err)
	}
	if !allowed {
		return fmt.Errorf("%w: key %s is not allowed", dnerrors.ErrUnauthorized, keyID)
	}

	expected, err := Sign(keyID, secretKey, verb, fullPath, receiverDCID, timestamp, contentType, body, algo)
	if err != nil {
		return err
	}
	_, expectedCreds, _ := strings.Cut(expected, " ")
	_, expectedSig, _ := strings.Cut(expectedCreds, ":")
	if !hmac.Equal([]byte(sig), []byte(expectedSig)) {
		return fmt.Errorf("%w: invalid hmac authentication", dnerrors.ErrUnauthorized)
	}

	if v.replay != nil {
		seen, err := v.replay.SeenOrRecord(ctx, sig)
		if err != nil {
			return fmt.Errorf("check signature replay: %w", err)
		}
		if seen {
			return fmt.Errorf("%w: request signature has already been used", dnerrors.ErrUnauthorized)
		}
	}

	return nil
}

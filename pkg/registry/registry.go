// Copyright 2025 Certen Protocol
//
// Registry is the coordination-store-backed directory of facts about
// peer chains that pkg/txproc's verification steps need but that
// pkg/matchmaking.Client's level-scoped GetRegistration call doesn't
// expose by dc_id directly: a chain's signing public key (for proof
// verification), its current diversity/stability score (for L2's DDSS
// accounting), and its registered region/cloud (for L3's diversity
// accounting). Built in the same coord-backed, namespaced-key idiom as
// pkg/authz.KeyStore.
package registry

import (
	"context"
	"fmt"
	"strconv"
)

// Coord is the narrow plain-key command surface Registry needs.
type Coord interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Registry records and answers per-chain facts keyed by dc_id.
type Registry struct {
	c Coord
}

// New wraps c as a Registry.
func New(c Coord) *Registry {
	return &Registry{c: c}
}

func pubKeyKey(dcID string) string { return "registry:pubkey:" + dcID }
func ddssKey(dcID string) string   { return "registry:ddss:" + dcID }
func regionKey(dcID string) string { return "registry:region:" + dcID }
func cloudKey(dcID string) string  { return "registry:cloud:" + dcID }

// Record stores dcID's current signing public key, DDSS, region, and
// cloud in one call, the shape a matchmaking registration event or an
// operator bootstrap script would supply.
func (r *Registry) Record(ctx context.Context, dcID, pubKeyHex string, ddss float64, region, cloud string) error {
	if err := r.c.Set(ctx, pubKeyKey(dcID), pubKeyHex); err != nil {
		return fmt.Errorf("record public key for %s: %w", dcID, err)
	}
	if err := r.c.Set(ctx, ddssKey(dcID), strconv.FormatFloat(ddss, 'f', -1, 64)); err != nil {
		return fmt.Errorf("record ddss for %s: %w", dcID, err)
	}
	if err := r.c.Set(ctx, regionKey(dcID), region); err != nil {
		return fmt.Errorf("record region for %s: %w", dcID, err)
	}
	if err := r.c.Set(ctx, cloudKey(dcID), cloud); err != nil {
		return fmt.Errorf("record cloud for %s: %w", dcID, err)
	}
	return nil
}

// PublicKeyHex implements txproc.PubKeyLookup.
func (r *Registry) PublicKeyHex(ctx context.Context, dcID string) (string, bool, error) {
	v, ok, err := r.c.Get(ctx, pubKeyKey(dcID))
	if err != nil {
		return "", false, fmt.Errorf("look up public key for %s: %w", dcID, err)
	}
	return v, ok, nil
}

// CurrentDDSS implements txproc.DDSSLookup. An unrecorded chain reports
// a DDSS of 0 rather than an error, matching a newly onboarded chain
// having no track record yet.
func (r *Registry) CurrentDDSS(ctx context.Context, dcID string) (float64, error) {
	v, ok, err := r.c.Get(ctx, ddssKey(dcID))
	if err != nil {
		return 0, fmt.Errorf("look up ddss for %s: %w", dcID, err)
	}
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ddss for %s: %w", dcID, err)
	}
	return f, nil
}

// Locate implements txproc.NodeLocator.
func (r *Registry) Locate(ctx context.Context, dcID string) (string, string, error) {
	region, _, err := r.c.Get(ctx, regionKey(dcID))
	if err != nil {
		return "", "", fmt.Errorf("look up region for %s: %w", dcID, err)
	}
	cloud, _, err := r.c.Get(ctx, cloudKey(dcID))
	if err != nil {
		return "", "", fmt.Errorf("look up cloud for %s: %w", dcID, err)
	}
	return region, cloud, nil
}

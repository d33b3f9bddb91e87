// Copyright 2025 Certen Protocol
//
// Client is C4: the matchmaking service the broadcast processor consults
// to find a verifying node at a given level, mint claim checks, and
// replace unresponsive chains (spec §4.1, §9 design note).

package matchmaking

import (
	"context"
	"fmt"
)

// Registration describes one candidate verifying node at a level.
type Registration struct {
	DCID   string
	Level  int
	URL    string
	Region string
	Cloud  string
	Funded bool
	PubKey string
}

// Client is implemented by the real matchmaking service client and by
// Fake for tests.
type Client interface {
	// GetRegistration returns a verifying node registered for level,
	// excluding any dc_id already present in exclude (e.g. nodes that
	// already verified this block, or were already found unresponsive).
	GetRegistration(ctx context.Context, level int, exclude []string) (*Registration, error)

	// GetOrCreateClaimCheck returns the previously issued claim check
	// for blockID at level if one exists, else mints and persists a new
	// one, matching broadcast:claimcheck's hash semantics.
	GetOrCreateClaimCheck(ctx context.Context, blockID string, level int) (*Registration, error)

	// OverwriteNoResponseNode replaces a claim-checked node that failed
	// to respond with a freshly selected one, excluding prior.
	OverwriteNoResponseNode(ctx context.Context, blockID string, level int, prior string) (*Registration, error)

	// UpdateFundedFlag records whether dcID currently has sufficient
	// balance on its anchor networks to accept further L5 work.
	UpdateFundedFlag(ctx context.Context, dcID string, funded bool) error

	// GetDragonchainAddress resolves dcID's current registered URL.
	GetDragonchainAddress(ctx context.Context, dcID string) (string, error)
}

// ErrNoCandidates is returned when no eligible node exists for a level.
type ErrNoCandidates struct {
	Level int
}

func (e *ErrNoCandidates) Error() string {
	return fmt.Sprintf("no matchmaking candidates available for level %d", e.Level)
}

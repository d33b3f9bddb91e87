// Copyright 2025 Certen Protocol
//
// Adapter is C3: the contract every external anchor chain must satisfy so
// the L5 anchor engine (pkg/anchor) can treat BTC, ETH, and BNB uniformly
// (spec §4.3, §6.4). Confirmation and retry thresholds are chain-specific
// constants pulled from the original network clients' own defaults.

package interchain

import (
	"context"
	"math/big"
)

// ConfirmationStatus is the result of polling a previously published
// transaction for finality.
type ConfirmationStatus int

const (
	// StatusPending means the transaction is known but not yet final.
	StatusPending ConfirmationStatus = iota
	// StatusConfirmed means the transaction has reached the chain's
	// final confirmation depth.
	StatusConfirmed
	// StatusNotFound means the chain no longer knows about the
	// transaction (dropped from mempool, reorged out).
	StatusNotFound
)

// Adapter is implemented once per external network Dragon Net anchors to.
type Adapter interface {
	// NetworkString identifies the network for the l5_block's "network"
	// field (e.g. "bitcoin mainnet", "ethereum mainnet").
	NetworkString() string

	// Ping verifies connectivity to the underlying RPC endpoint.
	Ping(ctx context.Context) error

	// CheckBalance returns this node's current spendable funds on the
	// network, in the chain's smallest unit.
	CheckBalance(ctx context.Context) (*big.Int, error)

	// GetTransactionFeeEstimate returns the cost, in the chain's
	// smallest unit, to publish one anchor transaction right now.
	GetTransactionFeeEstimate(ctx context.Context) (*big.Int, error)

	// GetCurrentBlock returns the chain's current block height, used to
	// compute how many confirmations a published transaction has.
	GetCurrentBlock(ctx context.Context) (int64, error)

	// SignTransaction signs a raw anchor payload with this node's
	// private key for the network, returning the wire-ready transaction.
	SignTransaction(ctx context.Context, payload []byte) ([]byte, error)

	// PublishL5HashToPublicNetwork broadcasts a signed L5 transaction to
	// the public network, returning the network's transaction id/hash.
	PublishL5HashToPublicNetwork(ctx context.Context, signedTx []byte) (string, error)

	// IsTransactionConfirmed polls txHash's confirmation depth.
	IsTransactionConfirmed(ctx context.Context, txHash string) (ConfirmationStatus, error)

	// ShouldRetryBroadcast decides whether a transaction published at
	// publishedAtBlock and still unconfirmed should be abandoned in
	// favor of a fresh broadcast, based on the chain's block threshold.
	ShouldRetryBroadcast(ctx context.Context, publishedAtBlock int64) (bool, error)

	// GetPrivateKey returns this node's private key material for the
	// network, for export/backup flows only.
	GetPrivateKey() []byte

	// ExportAsAtRest serializes this adapter's durable state (its network
	// name and private key) for persistence alongside the node's object
	// store.
	ExportAsAtRest() ([]byte, error)
}

// chainParams bundles the per-chain constants §4.3 references.
type chainParams struct {
	blockThreshold       int64 // ShouldRetryBroadcast gate
	confirmationsToFinal int64 // blocks needed before StatusConfirmed
}

var params = map[string]chainParams{
	"bitcoin":  {blockThreshold: 10, confirmationsToFinal: 6},
	"ethereum": {blockThreshold: 30, confirmationsToFinal: 12},
	"binance":  {blockThreshold: 3, confirmationsToFinal: 1},
}

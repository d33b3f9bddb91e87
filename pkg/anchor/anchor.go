// Copyright 2025 Certen Protocol
//
// Anchor is C9: the L5 engine that periodically folds every L4 receipt
// staged since its last run into one block, anchors it to an external
// chain through a pkg/interchain.Adapter, and polls until the anchor
// transaction confirms (spec §4.3).

package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/interchain"
	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

// Notifier is told about a newly finalized L5 block, for fanout to
// whichever surface cares (matchmaking, webhooks); a nil Notifier is a
// no-op.
type Notifier interface {
	NotifyFinalized(ctx context.Context, block *model.L5Block) error
}

// FundedFlagSetter records this chain's funded status with matchmaking,
// mirroring update_funded_flag.
type FundedFlagSetter interface {
	UpdateFundedFlag(ctx context.Context, dcID string, funded bool) error
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithBroadcastInterval(d time.Duration) Option {
	return func(e *Engine) { e.broadcastInterval = d }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithFundedFlagSetter(f FundedFlagSetter) Option {
	return func(e *Engine) { e.funded = f }
}

func WithWorkDifficulty(scheme model.ProofScheme, bits uint) Option {
	return func(e *Engine) {
		e.scheme = scheme
		e.difficultyBits = bits
	}
}

// Engine runs C9's tick: stage, decide, assemble, anchor, confirm.
type Engine struct {
	dcID    string
	ks      *keyservice.KeyService
	dao     *dao.BlockDAO
	adapter interchain.Adapter

	notifier Notifier
	funded   FundedFlagSetter

	hashAlgo          model.HashAlgo
	scheme            model.ProofScheme
	difficultyBits    uint
	broadcastInterval time.Duration
	now               func() time.Time
}

// NewEngine builds an L5 anchor engine for dcID, anchoring through
// adapter.
func NewEngine(dcID string, ks *keyservice.KeyService, d *dao.BlockDAO, adapter interchain.Adapter, hashAlgo model.HashAlgo, opts ...Option) *Engine {
	e := &Engine{
		dcID:              dcID,
		ks:                ks,
		dao:               d,
		adapter:           adapter,
		hashAlgo:          hashAlgo,
		scheme:            model.ProofSchemeTrust,
		difficultyBits:    8,
		broadcastInterval: time.Hour,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick runs one full C9 cycle: it confirms any block already in flight,
// and if none is outstanding, decides whether to assemble and broadcast
// a new one.
func (e *Engine) Tick(ctx context.Context) error {
	lcb, err := e.dao.GetLastConfirmedBlock(ctx)
	if err != nil {
		return fmt.Errorf("get last confirmed block: %w", err)
	}
	lastID, err := e.dao.GetLastBlock(ctx)
	if err != nil {
		return fmt.Errorf("get last L5 block id: %w", err)
	}

	if lastID > lcb.BlockID {
		return e.confirmOutstanding(ctx, lastID)
	}
	return e.maybeBroadcast(ctx)
}

// maybeBroadcast decides, per should_broadcast, whether enough time has
// passed and enough is staged and funded to assemble a fresh L5 block.
func (e *Engine) maybeBroadcast(ctx context.Context) error {
	staged, err := e.dao.ListToBroadcast(ctx, dao.PendingToBroadcastBucket)
	if err != nil {
		return fmt.Errorf("list staged L4 receipts: %w", err)
	}
	if len(staged) == 0 {
		return nil
	}

	lastBroadcast, err := e.dao.GetLastBroadcastTime(ctx)
	if err != nil {
		return fmt.Errorf("get last broadcast time: %w", err)
	}
	now := e.now()
	if lastBroadcast != 0 && now.Sub(time.Unix(lastBroadcast, 0)) < e.broadcastInterval {
		return nil
	}

	funded, err := e.checkSolvency(ctx)
	if err != nil {
		return err
	}
	if !funded {
		return nil
	}

	return e.broadcast(ctx, staged)
}

// checkSolvency compares current balance against one anchor's fee
// estimate, reporting the result to matchmaking via FundedFlagSetter.
func (e *Engine) checkSolvency(ctx context.Context) (bool, error) {
	balance, err := e.adapter.CheckBalance(ctx)
	if err != nil {
		return false, fmt.Errorf("check balance: %w", err)
	}
	fee, err := e.adapter.GetTransactionFeeEstimate(ctx)
	if err != nil {
		return false, fmt.Errorf("estimate transaction fee: %w", err)
	}
	funded := balance.Cmp(fee) >= 0

	if e.funded != nil {
		if err := e.funded.UpdateFundedFlag(ctx, e.dcID, funded); err != nil {
			return false, fmt.Errorf("update funded flag: %w", err)
		}
	}
	if !funded {
		return false, nil
	}
	return true, nil
}

// broadcast assembles, signs, persists, and anchors a new L5 block from
// the currently staged L4 projections.
func (e *Engine) broadcast(ctx context.Context, stagedKeys []string) error {
	projections := make([]model.L4Projection, 0, len(stagedKeys))
	for _, key := range stagedKeys {
		raw, err := e.dao.GetToBroadcastItem(ctx, key)
		if err != nil {
			return fmt.Errorf("read staged receipt %s: %w", key, err)
		}
		var proj model.L4Projection
		if err := json.Unmarshal(raw, &proj); err != nil {
			return fmt.Errorf("decode staged receipt %s: %w", key, err)
		}
		projections = append(projections, proj)
	}

	lcb, err := e.dao.GetLastConfirmedBlock(ctx)
	if err != nil {
		return fmt.Errorf("get last confirmed block: %w", err)
	}
	nextID := lcb.BlockID + 1

	now := e.now()
	block := &model.L5Block{
		BlockHeader: model.BlockHeader{
			DCID:      e.dcID,
			BlockID:   nextID,
			Level:     5,
			Timestamp: now.Unix(),
			PrevProof: lcb.Proof,
			Version:   "1",
		},
		L4Blocks:        projections,
		TransactionHash: nil,
		Network:         e.adapter.NetworkString(),
	}
	proof, nonce, err := signBlock(e.ks, e.hashAlgo, e.scheme, e.difficultyBits, block.CanonicalFields())
	if err != nil {
		return fmt.Errorf("sign L5 block %d: %w", nextID, err)
	}
	block.Proof = proof
	block.Nonce = nonce

	payload, err := json.Marshal(block.CanonicalFields())
	if err != nil {
		return fmt.Errorf("marshal L5 payload: %w", err)
	}
	signedTx, err := e.adapter.SignTransaction(ctx, payload)
	if err != nil {
		return fmt.Errorf("sign anchor transaction: %w", err)
	}
	txHash, err := e.adapter.PublishL5HashToPublicNetwork(ctx, signedTx)
	if err != nil {
		var insufficient *dnerrors.InsufficientFunds
		if asInsufficientFunds(err, &insufficient) {
			return err
		}
		return fmt.Errorf("publish anchor transaction: %w", err)
	}
	block.TransactionHash = []string{txHash}

	currentBlock, err := e.adapter.GetCurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("get current block height: %w", err)
	}
	block.BlockLastSentAt = currentBlock

	if err := e.persist(ctx, block); err != nil {
		return err
	}
	if err := e.dao.DrainToBroadcast(ctx, dao.PendingToBroadcastBucket); err != nil {
		return fmt.Errorf("drain staged L4 receipts: %w", err)
	}
	return e.dao.SetLastBroadcastTime(ctx, now.Unix())
}

// confirmOutstanding polls an L5 block already broadcast for finality,
// retrying or finalizing per the adapter's report.
func (e *Engine) confirmOutstanding(ctx context.Context, blockID int64) error {
	blockIDStr := strconv.FormatInt(blockID, 10)
	raw, err := e.dao.GetBlock(ctx, blockIDStr)
	if err != nil {
		return fmt.Errorf("get outstanding L5 block %d: %w", blockID, err)
	}
	var block model.L5Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return fmt.Errorf("decode outstanding L5 block %d: %w", blockID, err)
	}

	if len(block.TransactionHash) == 0 {
		return e.rebroadcastPendingHash(ctx, &block)
	}

	hash := block.TransactionHash[len(block.TransactionHash)-1]
	status, err := e.adapter.IsTransactionConfirmed(ctx, hash)
	switch {
	case err != nil && isTransactionNotFound(err):
		block.TransactionHash = block.TransactionHash[:len(block.TransactionHash)-1]
		if err := e.persist(ctx, &block); err != nil {
			return err
		}
		return e.rebroadcastPendingHash(ctx, &block)
	case err != nil:
		return fmt.Errorf("poll confirmation for %s: %w", hash, err)
	case status == interchain.StatusConfirmed:
		return e.finalize(ctx, &block)
	default:
		retry, err := e.adapter.ShouldRetryBroadcast(ctx, block.BlockLastSentAt)
		if err != nil {
			return fmt.Errorf("check retry eligibility: %w", err)
		}
		if !retry {
			return nil
		}
		return e.rebroadcastPendingHash(ctx, &block)
	}
}

// rebroadcastPendingHash attempts to publish the already-signed block
// again, appending the resulting hash to its transaction_hash list.
func (e *Engine) rebroadcastPendingHash(ctx context.Context, block *model.L5Block) error {
	payload, err := json.Marshal(block.CanonicalFields())
	if err != nil {
		return fmt.Errorf("marshal L5 payload for rebroadcast: %w", err)
	}
	signedTx, err := e.adapter.SignTransaction(ctx, payload)
	if err != nil {
		return fmt.Errorf("sign rebroadcast transaction: %w", err)
	}
	txHash, err := e.adapter.PublishL5HashToPublicNetwork(ctx, signedTx)
	if err != nil {
		return fmt.Errorf("publish rebroadcast transaction: %w", err)
	}
	block.TransactionHash = append(block.TransactionHash, txHash)

	currentBlock, err := e.adapter.GetCurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("get current block height: %w", err)
	}
	block.BlockLastSentAt = currentBlock
	return e.persist(ctx, block)
}

// finalize records block as the most recently confirmed L5 block and
// fans out its completion to any registered Notifier.
func (e *Engine) finalize(ctx context.Context, block *model.L5Block) error {
	if err := e.dao.SetLastConfirmedBlock(ctx, dao.LastConfirmedBlock{BlockID: block.BlockID, Proof: block.Proof}); err != nil {
		return fmt.Errorf("set last confirmed block: %w", err)
	}
	if e.notifier == nil {
		return nil
	}
	if err := e.notifier.NotifyFinalized(ctx, block); err != nil {
		return fmt.Errorf("notify finalized block %d: %w", block.BlockID, err)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, block *model.L5Block) error {
	blockIDStr := strconv.FormatInt(block.BlockID, 10)
	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal L5 block %d: %w", block.BlockID, err)
	}
	if err := e.dao.PutBlock(ctx, blockIDStr, 5, e.dcID, block.Timestamp, raw); err != nil {
		return fmt.Errorf("store L5 block %d: %w", block.BlockID, err)
	}
	return e.dao.SetLastBlock(ctx, block.BlockID)
}

// signBlock hashes fields under hashAlgo and signs per scheme, mirroring
// pkg/txproc's identically named (unexported) helper — kept local here
// since C9 is not itself a txproc.Processor.
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

func isTransactionNotFound(err error) bool {
	for err != nil {
		if err == dnerrors.ErrTransactionNotFound {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func asInsufficientFunds(err error, target **dnerrors.InsufficientFunds) bool {
	for err != nil {
		if v, ok := err.(*dnerrors.InsufficientFunds); ok {
			*target = v
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

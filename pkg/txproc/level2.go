// Copyright 2025 Certen Protocol
//
// Level2Processor is C7's L2 specialization: it re-validates every
// transaction in an inbound L1 block independently, folds in the
// submitting chain's current DDSS score, and reports the result back to
// the origin chain (spec §4.2 "L2").

package txproc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

// InboundL1Block is an L1 block submitted to this node for verification,
// together with the identity of the chain that produced it.
type InboundL1Block struct {
	OriginDCID string
	Block      *model.L1Block
}

// L2BlockSource pops up to max inbound L1 blocks awaiting verification.
type L2BlockSource interface {
	Pop(ctx context.Context, max int) ([]InboundL1Block, error)
}

// TransactionValidator re-checks one stripped transaction's validity
// beyond proof verification (e.g. business-rule checks a contract
// runtime enforces). A nil validator accepts every transaction whose
// hash and signature already check out.
type TransactionValidator interface {
	Validate(ctx context.Context, l1DCID string, txn *model.StrippedTransaction) (bool, error)
}

// DDSSLookup resolves a chain's current Dragon Diversity/Stability Score
// for inclusion in the L2 block that verifies one of its blocks.
type DDSSLookup interface {
	CurrentDDSS(ctx context.Context, dcID string) (float64, error)
}

// Level2Option configures a Level2Processor.
type Level2Option func(*Level2Processor)

func WithLevel2Clock(now func() time.Time) Level2Option {
	return func(p *Level2Processor) { p.now = now }
}

func WithLevel2ProofScheme(scheme model.ProofScheme, difficultyBits uint) Level2Option {
	return func(p *Level2Processor) {
		p.scheme = scheme
		p.difficultyBits = difficultyBits
	}
}

func WithLevel2Validator(v TransactionValidator) Level2Option {
	return func(p *Level2Processor) { p.validator = v }
}

func WithLevel2MaxBatch(n int) Level2Option {
	return func(p *Level2Processor) { p.maxBatch = n }
}

// Level2Processor runs the L2 tick: verify an inbound L1 block, build
// and sign an L2 verification block, persist it, and report it back.
type Level2Processor struct {
	dcID     string
	ks       *keyservice.KeyService
	dao      *dao.BlockDAO
	blocks   L2BlockSource
	keys     PubKeyLookup
	ddss     DDSSLookup
	receipts ReceiptSender
	validator TransactionValidator

	hashAlgo       model.HashAlgo
	scheme         model.ProofScheme
	difficultyBits uint
	maxBatch       int
	now            func() time.Time
}

// NewLevel2Processor builds an L2 processor for dcID.
func NewLevel2Processor(dcID string, ks *keyservice.KeyService, d *dao.BlockDAO, blocks L2BlockSource, keys PubKeyLookup, ddss DDSSLookup, receipts ReceiptSender, hashAlgo model.HashAlgo, opts ...Level2Option) *Level2Processor {
	p := &Level2Processor{
		dcID:           dcID,
		ks:             ks,
		dao:            d,
		blocks:         blocks,
		keys:           keys,
		ddss:           ddss,
		receipts:       receipts,
		hashAlgo:       hashAlgo,
		scheme:         model.ProofSchemeTrust,
		difficultyBits: DefaultWorkDifficultyBits,
		maxBatch:       100,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessOnce runs one L2 tick over the inbound L1 blocks currently
// queued, returning how many were verified.
func (p *Level2Processor) ProcessOnce(ctx context.Context) (int, error) {
	inbound, err := p.blocks.Pop(ctx, p.maxBatch)
	if err != nil {
		return 0, fmt.Errorf("pop inbound L1 blocks: %w", err)
	}
	for _, in := range inbound {
		if err := p.verifyOne(ctx, in); err != nil {
			return 0, fmt.Errorf("verify L1 block %d from %s: %w", in.Block.BlockID, in.OriginDCID, err)
		}
	}
	return len(inbound), nil
}

func (p *Level2Processor) verifyOne(ctx context.Context, in InboundL1Block) error {
	l1 := in.Block

	ok, err := verifyBlockProof(ctx, p.keys, p.hashAlgo, p.difficultyBits, in.OriginDCID, l1.CanonicalFields(), l1.Proof, l1.Nonce)
	if err != nil {
		return fmt.Errorf("verify L1 block proof: %w", err)
	}
	validations := make(map[string]bool, len(l1.Transactions))
	if !ok {
		for _, txn := range l1.Transactions {
			validations[txn.TxnID] = false
		}
	} else {
		for _, txn := range l1.Transactions {
			valid, err := p.validateTxn(ctx, in.OriginDCID, txn)
			if err != nil {
				return fmt.Errorf("validate transaction %s: %w", txn.TxnID, err)
			}
			validations[txn.TxnID] = valid
		}
	}

	ddss, err := p.ddss.CurrentDDSS(ctx, in.OriginDCID)
	if err != nil {
		return fmt.Errorf("look up current DDSS for %s: %w", in.OriginDCID, err)
	}

	now := p.now()
	_, prevProof, err := lastBlockProof(ctx, p.dao)
	if err != nil {
		return err
	}
	nextID, err := p.nextBlockID(ctx)
	if err != nil {
		return err
	}

	block := &model.L2Block{
		BlockHeader: model.BlockHeader{
			DCID:      p.dcID,
			BlockID:   nextID,
			Level:     2,
			Timestamp: now.Unix(),
			PrevProof: prevProof,
			Version:   "1",
		},
		L1DCID:         in.OriginDCID,
		L1BlockID:      l1.BlockID,
		L1Proof:        l1.Proof,
		CurrentDDSS:    ddss,
		ValidationsMap: validations,
	}
	proof, nonce, err := signBlock(p.ks, p.hashAlgo, p.scheme, p.difficultyBits, block.CanonicalFields())
	if err != nil {
		return fmt.Errorf("sign L2 block %d: %w", nextID, err)
	}
	block.Proof = proof
	block.Nonce = nonce

	if err := p.persist(ctx, block); err != nil {
		return err
	}

	return p.receipts.SendReceipt(ctx, Receipt{
		L1DCID:       in.OriginDCID,
		L1BlockID:    l1.BlockID,
		Level:        2,
		VerifierDCID: p.dcID,
		Proof:        block.Proof,
	})
}

func (p *Level2Processor) validateTxn(ctx context.Context, l1DCID string, txn *model.StrippedTransaction) (bool, error) {
	if p.validator == nil {
		return true, nil
	}
	return p.validator.Validate(ctx, l1DCID, txn)
}

func (p *Level2Processor) nextBlockID(ctx context.Context) (int64, error) {
	last, err := p.dao.GetLastBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("get last L2 block id: %w", err)
	}
	return last + 1, nil
}

func (p *Level2Processor) persist(ctx context.Context, block *model.L2Block) error {
	blockIDStr := strconv.FormatInt(block.BlockID, 10)
	atRest, err := marshalBlock(block)
	if err != nil {
		return fmt.Errorf("marshal L2 block %d: %w", block.BlockID, err)
	}
	if err := p.dao.PutBlock(ctx, blockIDStr, 2, p.dcID, block.Timestamp, atRest); err != nil {
		return fmt.Errorf("store L2 block %d: %w", block.BlockID, err)
	}
	if err := p.dao.SetLastBlock(ctx, block.BlockID); err != nil {
		return fmt.Errorf("advance last L2 block to %d: %w", block.BlockID, err)
	}
	return nil
}

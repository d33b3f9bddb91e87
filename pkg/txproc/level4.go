// Copyright 2025 Certen Protocol
//
// Level4Processor is C7's L4 specialization: it folds every distinct L3
// verification of the same L1 block into one validation summary, then
// stages the result for C9's next anchor cycle (spec §4.2 "L4", §4.3
// step 1).

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

// InboundL3Batch is every distinct L3 block seen so far verifying the
// same L1 block.
type InboundL3Batch struct {
	L1DCID    string
	L1BlockID int64
	L3Blocks  []InboundL3Block
}

// InboundL3Block is one L3 verifier's block plus its identity.
type InboundL3Block struct {
	VerifierDCID string
	Block        *model.L3Block
}

// L4BlockSource pops up to max batches of L3 blocks ready for
// aggregation.
type L4BlockSource interface {
	Pop(ctx context.Context, max int) ([]InboundL3Batch, error)
}

// Level4Option configures a Level4Processor.
type Level4Option func(*Level4Processor)

func WithLevel4Clock(now func() time.Time) Level4Option {
	return func(p *Level4Processor) { p.now = now }
}

func WithLevel4ProofScheme(scheme model.ProofScheme, difficultyBits uint) Level4Option {
	return func(p *Level4Processor) {
		p.scheme = scheme
		p.difficultyBits = difficultyBits
	}
}

func WithLevel4MaxBatch(n int) Level4Option {
	return func(p *Level4Processor) { p.maxBatch = n }
}

// Level4Processor runs the L4 tick: validate a batch of distinct L3
// blocks, build and sign an L4 block, persist it, report it to the
// origin chain, and stage it for L5 anchoring.
type Level4Processor struct {
	dcID     string
	ks       *keyservice.KeyService
	dao      *dao.BlockDAO
	batches  L4BlockSource
	keys     PubKeyLookup
	receipts ReceiptSender

	hashAlgo       model.HashAlgo
	scheme         model.ProofScheme
	difficultyBits uint
	maxBatch       int
	now            func() time.Time
}

// NewLevel4Processor builds an L4 processor for dcID.
func NewLevel4Processor(dcID string, ks *keyservice.KeyService, d *dao.BlockDAO, batches L4BlockSource, keys PubKeyLookup, receipts ReceiptSender, hashAlgo model.HashAlgo, opts ...Level4Option) *Level4Processor {
	p := &Level4Processor{
		dcID:           dcID,
		ks:             ks,
		dao:            d,
		batches:        batches,
		keys:           keys,
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

// ProcessOnce runs one L4 tick over the batches currently ready for
// aggregation, returning how many L4 blocks were produced.
func (p *Level4Processor) ProcessOnce(ctx context.Context) (int, error) {
	batches, err := p.batches.Pop(ctx, p.maxBatch)
	if err != nil {
		return 0, fmt.Errorf("pop L3 aggregation batches: %w", err)
	}
	for _, batch := range batches {
		if err := p.aggregateOne(ctx, batch); err != nil {
			return 0, fmt.Errorf("aggregate L3 batch for L1 block %d from %s: %w", batch.L1BlockID, batch.L1DCID, err)
		}
	}
	return len(batches), nil
}

func (p *Level4Processor) aggregateOne(ctx context.Context, batch InboundL3Batch) error {
	seen := map[string]struct{}{}
	validations := make([]model.L3Validation, 0, len(batch.L3Blocks))
	var l1Proof string

	for _, l3 := range batch.L3Blocks {
		dedupKey := batch.L1DCID + "|" + strconv.FormatInt(batch.L1BlockID, 10) + "|" + l3.Block.Proof
		if _, dup := seen[dedupKey]; dup {
			continue
		}
		seen[dedupKey] = struct{}{}

		valid, err := verifyBlockProof(ctx, p.keys, p.hashAlgo, p.difficultyBits, l3.VerifierDCID, l3.Block.CanonicalFields(), l3.Block.Proof, l3.Block.Nonce)
		if err != nil {
			return fmt.Errorf("verify L3 block %d from %s: %w", l3.Block.BlockID, l3.VerifierDCID, err)
		}
		for _, proof := range l3.Block.L2Proofs {
			if proof.DCID == batch.L1DCID {
				l1Proof = proof.Proof
			}
		}
		validations = append(validations, model.L3Validation{
			L3DCID:    l3.VerifierDCID,
			L3BlockID: l3.Block.BlockID,
			L3Proof:   l3.Block.Proof,
			Valid:     valid,
		})
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

	block := &model.L4Block{
		BlockHeader: model.BlockHeader{
			DCID:      p.dcID,
			BlockID:   nextID,
			Level:     4,
			Timestamp: now.Unix(),
			PrevProof: prevProof,
			Version:   "1",
		},
		L1DCID:        batch.L1DCID,
		L1BlockID:     batch.L1BlockID,
		L1Proof:       l1Proof,
		L3Validations: validations,
	}
	proof, nonce, err := signBlock(p.ks, p.hashAlgo, p.scheme, p.difficultyBits, block.CanonicalFields())
	if err != nil {
		return fmt.Errorf("sign L4 block %d: %w", nextID, err)
	}
	block.Proof = proof
	block.Nonce = nonce

	if err := p.persist(ctx, block); err != nil {
		return err
	}

	if err := p.receipts.SendReceipt(ctx, Receipt{
		L1DCID:       batch.L1DCID,
		L1BlockID:    batch.L1BlockID,
		Level:        4,
		VerifierDCID: p.dcID,
		Proof:        block.Proof,
	}); err != nil {
		return fmt.Errorf("send receipt for L4 block %d: %w", block.BlockID, err)
	}

	return p.stageForAnchor(ctx, block)
}

// stageForAnchor projects the finished L4 block and stages it in the
// pending-to-broadcast bucket C9 drains every anchor tick.
func (p *Level4Processor) stageForAnchor(ctx context.Context, block *model.L4Block) error {
	projection := model.L4Projection{
		L1DCID:    block.L1DCID,
		L1BlockID: block.L1BlockID,
		L4DCID:    p.dcID,
		L4BlockID: block.BlockID,
		L4Proof:   block.Proof,
	}
	raw, err := marshalBlock(projection)
	if err != nil {
		return fmt.Errorf("marshal L4 projection: %w", err)
	}
	if err := p.dao.PutToBroadcast(ctx, dao.PendingToBroadcastBucket, block.L1DCID, block.L1BlockID, raw); err != nil {
		return fmt.Errorf("stage L4 block %d for anchoring: %w", block.BlockID, err)
	}
	return nil
}

func (p *Level4Processor) nextBlockID(ctx context.Context) (int64, error) {
	last, err := p.dao.GetLastBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("get last L4 block id: %w", err)
	}
	return last + 1, nil
}

func (p *Level4Processor) persist(ctx context.Context, block *model.L4Block) error {
	blockIDStr := strconv.FormatInt(block.BlockID, 10)
	atRest, err := marshalBlock(block)
	if err != nil {
		return fmt.Errorf("marshal L4 block %d: %w", block.BlockID, err)
	}
	if err := p.dao.PutBlock(ctx, blockIDStr, 4, p.dcID, block.Timestamp, atRest); err != nil {
		return fmt.Errorf("store L4 block %d: %w", block.BlockID, err)
	}
	if err := p.dao.SetLastBlock(ctx, block.BlockID); err != nil {
		return fmt.Errorf("advance last L4 block to %d: %w", block.BlockID, err)
	}
	return nil
}

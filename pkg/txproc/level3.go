// Copyright 2025 Certen Protocol
//
// Level3Processor is C7's L3 specialization: it folds a batch of L2
// verifications of the same L1 block into one aggregate, accounting for
// the diversity (distinct regions/clouds) the network requires (spec
// §4.2 "L3").

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

// InboundL2Batch is every L2 block so far collected that verifies the
// same L1 block, handed to L3 as one aggregation unit.
type InboundL2Batch struct {
	L1DCID    string
	L1BlockID int64
	L2Blocks  []InboundL2Block
}

// InboundL2Block is one L2 verifier's block plus its identity.
type InboundL2Block struct {
	VerifierDCID string
	Block        *model.L2Block
}

// L3BlockSource pops up to max batches of L2 blocks ready for
// aggregation (typically because quorum for that L1 block was reached).
type L3BlockSource interface {
	Pop(ctx context.Context, max int) ([]InboundL2Batch, error)
}

// NodeLocator resolves the physical-diversity facts (region, cloud
// provider) a verifying node registered at matchmaking time, so L3 can
// compute the distinct counts its DDSS accounting needs.
type NodeLocator interface {
	Locate(ctx context.Context, dcID string) (region, cloud string, err error)
}

// Level3Option configures a Level3Processor.
type Level3Option func(*Level3Processor)

func WithLevel3Clock(now func() time.Time) Level3Option {
	return func(p *Level3Processor) { p.now = now }
}

func WithLevel3ProofScheme(scheme model.ProofScheme, difficultyBits uint) Level3Option {
	return func(p *Level3Processor) {
		p.scheme = scheme
		p.difficultyBits = difficultyBits
	}
}

func WithLevel3MaxBatch(n int) Level3Option {
	return func(p *Level3Processor) { p.maxBatch = n }
}

// Level3Processor runs the L3 tick: aggregate a batch of L2
// verifications into one L3 block, sign it, persist it, and report it.
type Level3Processor struct {
	dcID     string
	ks       *keyservice.KeyService
	dao      *dao.BlockDAO
	batches  L3BlockSource
	keys     PubKeyLookup
	locator  NodeLocator
	receipts ReceiptSender

	hashAlgo       model.HashAlgo
	scheme         model.ProofScheme
	difficultyBits uint
	maxBatch       int
	now            func() time.Time
}

// NewLevel3Processor builds an L3 processor for dcID.
func NewLevel3Processor(dcID string, ks *keyservice.KeyService, d *dao.BlockDAO, batches L3BlockSource, keys PubKeyLookup, locator NodeLocator, receipts ReceiptSender, hashAlgo model.HashAlgo, opts ...Level3Option) *Level3Processor {
	p := &Level3Processor{
		dcID:           dcID,
		ks:             ks,
		dao:            d,
		batches:        batches,
		keys:           keys,
		locator:        locator,
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

// ProcessOnce runs one L3 tick over the batches currently ready for
// aggregation, returning how many L3 blocks were produced.
func (p *Level3Processor) ProcessOnce(ctx context.Context) (int, error) {
	batches, err := p.batches.Pop(ctx, p.maxBatch)
	if err != nil {
		return 0, fmt.Errorf("pop L2 aggregation batches: %w", err)
	}
	for _, batch := range batches {
		if err := p.aggregateOne(ctx, batch); err != nil {
			return 0, fmt.Errorf("aggregate L2 batch for L1 block %d from %s: %w", batch.L1BlockID, batch.L1DCID, err)
		}
	}
	return len(batches), nil
}

func (p *Level3Processor) aggregateOne(ctx context.Context, batch InboundL2Batch) error {
	regions := map[string]struct{}{}
	clouds := map[string]struct{}{}
	proofs := make([]model.L2Proof, 0, len(batch.L2Blocks))
	verified := make([]InboundL2Block, 0, len(batch.L2Blocks))

	for _, l2 := range batch.L2Blocks {
		ok, err := verifyBlockProof(ctx, p.keys, p.hashAlgo, p.difficultyBits, l2.VerifierDCID, l2.Block.CanonicalFields(), l2.Block.Proof, l2.Block.Nonce)
		if err != nil {
			return fmt.Errorf("verify L2 block %d from %s: %w", l2.Block.BlockID, l2.VerifierDCID, err)
		}
		if !ok {
			continue
		}
		region, cloud, err := p.locator.Locate(ctx, l2.VerifierDCID)
		if err != nil {
			return fmt.Errorf("locate verifier %s: %w", l2.VerifierDCID, err)
		}
		if region != "" {
			regions[region] = struct{}{}
		}
		if cloud != "" {
			clouds[cloud] = struct{}{}
		}
		proofs = append(proofs, model.L2Proof{DCID: l2.VerifierDCID, BlockID: l2.Block.BlockID, Proof: l2.Block.Proof})
		verified = append(verified, l2)
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

	block := &model.L3Block{
		BlockHeader: model.BlockHeader{
			DCID:      p.dcID,
			BlockID:   nextID,
			Level:     3,
			Timestamp: now.Unix(),
			PrevProof: prevProof,
			Version:   "1",
		},
		L1DCID:    batch.L1DCID,
		L1BlockID: batch.L1BlockID,
		DDSS:      sumDDSS(verified),
		L2Count:   len(proofs),
		Regions:   setKeys(regions),
		Clouds:    setKeys(clouds),
		L2Proofs:  proofs,
	}
	proof, nonce, err := signBlock(p.ks, p.hashAlgo, p.scheme, p.difficultyBits, block.CanonicalFields())
	if err != nil {
		return fmt.Errorf("sign L3 block %d: %w", nextID, err)
	}
	block.Proof = proof
	block.Nonce = nonce

	if err := p.persist(ctx, block); err != nil {
		return err
	}

	return p.receipts.SendReceipt(ctx, Receipt{
		L1DCID:       batch.L1DCID,
		L1BlockID:    batch.L1BlockID,
		Level:        3,
		VerifierDCID: p.dcID,
		Proof:        block.Proof,
	})
}

func sumDDSS(blocks []InboundL2Block) float64 {
	var total float64
	for _, l2 := range blocks {
		total += l2.Block.CurrentDDSS
	}
	return total
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (p *Level3Processor) nextBlockID(ctx context.Context) (int64, error) {
	last, err := p.dao.GetLastBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("get last L3 block id: %w", err)
	}
	return last + 1, nil
}

func (p *Level3Processor) persist(ctx context.Context, block *model.L3Block) error {
	blockIDStr := strconv.FormatInt(block.BlockID, 10)
	atRest, err := marshalBlock(block)
	if err != nil {
		return fmt.Errorf("marshal L3 block %d: %w", block.BlockID, err)
	}
	if err := p.dao.PutBlock(ctx, blockIDStr, 3, p.dcID, block.Timestamp, atRest); err != nil {
		return fmt.Errorf("store L3 block %d: %w", block.BlockID, err)
	}
	if err := p.dao.SetLastBlock(ctx, block.BlockID); err != nil {
		return fmt.Errorf("advance last L3 block to %d: %w", block.BlockID, err)
	}
	return nil
}

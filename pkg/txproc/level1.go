// Copyright 2025 Certen Protocol
//
// Level1Processor is C7's L1 specialization: it admits transactions off
// an inbound queue, assigns them to a block, signs both the transactions
// and the block, persists everything, and schedules the block for
// broadcast verification (spec §4.2 "L1").

package txproc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/broadcast"
	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

// TxnSource pops up to max admitted transactions awaiting block
// assignment (the "mq:<txn_type>" queues of spec §4.2, collapsed here
// into a single source since admission already demultiplexes by type).
type TxnSource interface {
	Pop(ctx context.Context, max int) ([]*model.Transaction, error)
}

// TxnTypeRegistry resolves whether a transaction's declared type is
// registered, and if it names a smart contract, the contract to invoke.
type TxnTypeRegistry interface {
	Resolve(ctx context.Context, txnType string) (contractName string, registered bool, err error)
}

// ContractInvoker enqueues a contract invocation request for a
// transaction whose type (or invoker chain) names a contract. The
// contract runtime itself is out of scope; this is the seam C7 hands
// off across.
type ContractInvoker interface {
	Invoke(ctx context.Context, txn *model.Transaction, contractName string) error
}

// Level1Option configures a Level1Processor.
type Level1Option func(*Level1Processor)

func WithLevel1Clock(now func() time.Time) Level1Option {
	return func(p *Level1Processor) { p.now = now }
}

func WithLevel1BlockInterval(d time.Duration) Level1Option {
	return func(p *Level1Processor) { p.blockInterval = d }
}

func WithLevel1EpochOffset(offset int64) Level1Option {
	return func(p *Level1Processor) { p.epochOffset = offset }
}

func WithLevel1ProofScheme(scheme model.ProofScheme, difficultyBits uint) Level1Option {
	return func(p *Level1Processor) {
		p.scheme = scheme
		p.difficultyBits = difficultyBits
	}
}

func WithLevel1Registry(r TxnTypeRegistry) Level1Option {
	return func(p *Level1Processor) { p.registry = r }
}

func WithLevel1Invoker(i ContractInvoker) Level1Option {
	return func(p *Level1Processor) { p.invoker = i }
}

func WithLevel1MaxBatch(n int) Level1Option {
	return func(p *Level1Processor) { p.maxBatch = n }
}

// Level1Processor runs the L1 tick: admit transactions, build a block,
// sign it, persist it, and schedule it for broadcast.
type Level1Processor struct {
	dcID      string
	ks        *keyservice.KeyService
	dao       *dao.BlockDAO
	scheduler *broadcast.Processor
	txns      TxnSource
	registry  TxnTypeRegistry // nil accepts every txn type
	invoker   ContractInvoker // nil skips contract invocation

	hashAlgo       model.HashAlgo
	scheme         model.ProofScheme
	difficultyBits uint
	blockInterval  time.Duration
	epochOffset    int64
	maxBatch       int
	now            func() time.Time
}

// NewLevel1Processor builds an L1 processor for dcID, signing under
// hashAlgo with ks, persisting via d, and scheduling new blocks with
// scheduler.
func NewLevel1Processor(dcID string, ks *keyservice.KeyService, d *dao.BlockDAO, scheduler *broadcast.Processor, txns TxnSource, hashAlgo model.HashAlgo, opts ...Level1Option) *Level1Processor {
	p := &Level1Processor{
		dcID:          dcID,
		ks:            ks,
		dao:           d,
		scheduler:     scheduler,
		txns:          txns,
		hashAlgo:      hashAlgo,
		scheme:        model.ProofSchemeTrust,
		difficultyBits: DefaultWorkDifficultyBits,
		blockInterval: DefaultBlockInterval,
		maxBatch:      1000,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessOnce runs one L1 tick and returns how many transactions were
// admitted into a new block (0 if the inbound queue was empty).
func (p *Level1Processor) ProcessOnce(ctx context.Context) (int, error) {
	txns, err := p.txns.Pop(ctx, p.maxBatch)
	if err != nil {
		return 0, fmt.Errorf("pop inbound transactions: %w", err)
	}
	if len(txns) == 0 {
		return 0, nil
	}

	now := p.now()
	blockID := ComputeBlockID(now, p.epochOffset, p.blockInterval)
	blockIDStr := strconv.FormatInt(blockID, 10)

	stripped := make([]*model.StrippedTransaction, 0, len(txns))
	records := make([]dao.TransactionRecord, 0, len(txns))
	for _, txn := range txns {
		if err := p.admit(ctx, txn); err != nil {
			return 0, fmt.Errorf("admit transaction %s: %w", txn.TxnID, err)
		}
		txn.DCID = p.dcID
		txn.BlockID = blockIDStr
		if txn.Timestamp == 0 {
			txn.Timestamp = now.Unix()
		}

		fullHash, err := model.ComputeFullHash(txn)
		if err != nil {
			return 0, fmt.Errorf("compute full hash for %s: %w", txn.TxnID, err)
		}
		txn.FullHash = fullHash
		digest, err := hex.DecodeString(fullHash)
		if err != nil {
			return 0, fmt.Errorf("decode full hash for %s: %w", txn.TxnID, err)
		}
		txn.Signature = p.ks.SignHash(digest)

		stripped = append(stripped, txn.Stripped())
		raw, err := marshalTxn(txn)
		if err != nil {
			return 0, fmt.Errorf("marshal transaction %s: %w", txn.TxnID, err)
		}
		records = append(records, dao.TransactionRecord{TxnID: txn.TxnID, Txn: raw})
	}

	_, prevProof, err := lastBlockProof(ctx, p.dao)
	if err != nil {
		return 0, err
	}

	block := &model.L1Block{
		BlockHeader: model.BlockHeader{
			DCID:      p.dcID,
			BlockID:   blockID,
			Level:     1,
			Timestamp: now.Unix(),
			PrevProof: prevProof,
			Version:   "1",
		},
		Transactions: stripped,
	}
	proof, nonce, err := signBlock(p.ks, p.hashAlgo, p.scheme, p.difficultyBits, block.CanonicalFields())
	if err != nil {
		return 0, fmt.Errorf("sign block %d: %w", blockID, err)
	}
	block.Proof = proof
	block.Nonce = nonce

	atRest, err := marshalBlock(block)
	if err != nil {
		return 0, fmt.Errorf("marshal block %d: %w", blockID, err)
	}
	if err := p.dao.PutBlock(ctx, blockIDStr, 1, p.dcID, now.Unix(), atRest); err != nil {
		return 0, fmt.Errorf("store block %d: %w", blockID, err)
	}
	if err := p.dao.SetLastBlock(ctx, blockID); err != nil {
		return 0, fmt.Errorf("advance last block to %d: %w", blockID, err)
	}
	if err := p.dao.PutTransactions(ctx, blockIDStr, records); err != nil {
		return 0, fmt.Errorf("store transactions for block %d: %w", blockID, err)
	}
	if err := p.scheduler.ScheduleForBroadcast(ctx, blockIDStr, now.Unix()); err != nil {
		return 0, fmt.Errorf("schedule block %d for broadcast: %w", blockID, err)
	}

	return len(txns), nil
}

// admit validates a transaction's type and, if it names a contract,
// enqueues an invocation request. An unregistered type is reported as an
// error so the caller can decide whether to drop or dead-letter it.
func (p *Level1Processor) admit(ctx context.Context, txn *model.Transaction) error {
	if p.registry == nil {
		return nil
	}
	contractName, registered, err := p.registry.Resolve(ctx, txn.TxnType)
	if err != nil {
		return fmt.Errorf("resolve transaction type %s: %w", txn.TxnType, err)
	}
	if !registered {
		return fmt.Errorf("transaction type %q is not registered", txn.TxnType)
	}
	if contractName != "" && p.invoker != nil {
		if err := p.invoker.Invoke(ctx, txn, contractName); err != nil {
			return fmt.Errorf("invoke contract %s: %w", contractName, err)
		}
	}
	return nil
}

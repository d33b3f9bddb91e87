// Copyright 2025 Certen Protocol
//
// BlockDAO is C6: typed reads/writes over C1 for the block/verification/
// transaction keyspace (spec §6.2), with the Postgres-backed Index as an
// optional secondary side effect for search (§9 design note — Dragon Net
// indexes by dc_id/timestamp rather than full-text, unlike a governance
// search layer).

package dao

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dragonchain-gen2/dragonnet/pkg/store"
)

// BlockDAO reads and writes blocks, verifications, and transaction logs.
type BlockDAO struct {
	store store.ObjectStore
	index *Index // nil when no Postgres secondary index is configured
}

// NewBlockDAO wraps objectStore. index may be nil.
func NewBlockDAO(objectStore store.ObjectStore, index *Index) *BlockDAO {
	return &BlockDAO{store: objectStore, index: index}
}

// PutBlock persists a block's canonical JSON and records it in the
// secondary index, if configured.
func (d *BlockDAO) PutBlock(ctx context.Context, blockID string, level int, dcID string, timestamp int64, canonicalJSON []byte) error {
	if err := d.store.Put(ctx, BlockKey(blockID), canonicalJSON); err != nil {
		return fmt.Errorf("put block %s: %w", blockID, err)
	}
	if d.index != nil {
		if err := d.index.RecordBlock(ctx, blockID, level, dcID, timestamp); err != nil {
			return fmt.Errorf("index block %s: %w", blockID, err)
		}
	}
	return nil
}

// GetBlock returns blockID's canonical JSON, or a store.IsNotFound error.
func (d *BlockDAO) GetBlock(ctx context.Context, blockID string) ([]byte, error) {
	return d.store.Get(ctx, BlockKey(blockID))
}

// PutVerification stores one higher-level node's verification artifact
// for l1BlockID at level.
func (d *BlockDAO) PutVerification(ctx context.Context, l1BlockID string, level int, verifierDCID string, artifact []byte) error {
	key := VerificationKey(l1BlockID, level, verifierDCID)
	if err := d.store.Put(ctx, key, artifact); err != nil {
		return fmt.Errorf("put verification %s: %w", key, err)
	}
	if d.index != nil {
		if err := d.index.RecordVerification(ctx, l1BlockID, level, verifierDCID); err != nil {
			return fmt.Errorf("index verification %s: %w", key, err)
		}
	}
	return nil
}

// GetVerification returns one verifier's artifact for l1BlockID at level.
func (d *BlockDAO) GetVerification(ctx context.Context, l1BlockID string, level int, verifierDCID string) ([]byte, error) {
	return d.store.Get(ctx, VerificationKey(l1BlockID, level, verifierDCID))
}

// ListVerifiers returns the dc_ids of every verification artifact
// actually present in storage for l1BlockID at level — the "good" list
// the rollback algorithm diffs against the coordination store's set
// (spec §4.1 rollback procedure).
func (d *BlockDAO) ListVerifiers(ctx context.Context, l1BlockID string, level int) ([]string, error) {
	keys, err := d.store.List(ctx, VerificationPrefix(l1BlockID, level))
	if err != nil {
		return nil, fmt.Errorf("list verifications for %s level %d: %w", l1BlockID, level, err)
	}
	dcIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		if dcID, ok := ParseVerificationDCID(k, l1BlockID, level); ok {
			dcIDs = append(dcIDs, dcID)
		}
	}
	return dcIDs, nil
}

// TransactionRecord is one line of a block's transaction log.
type TransactionRecord struct {
	TxnID string          `json:"txn_id"`
	Txn   json.RawMessage `json:"txn"`
}

// PutTransactions writes blockID's full newline-delimited transaction log.
func (d *BlockDAO) PutTransactions(ctx context.Context, blockID string, records []TransactionRecord) error {
	var buf bytes.Buffer
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal transaction record %s: %w", r.TxnID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := d.store.Put(ctx, TransactionKey(blockID), buf.Bytes()); err != nil {
		return fmt.Errorf("put transactions for block %s: %w", blockID, err)
	}
	return nil
}

// GetTransactions reads and parses blockID's transaction log.
func (d *BlockDAO) GetTransactions(ctx context.Context, blockID string) ([]TransactionRecord, error) {
	raw, err := d.store.Get(ctx, TransactionKey(blockID))
	if err != nil {
		return nil, err
	}
	var records []TransactionRecord
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec TransactionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode transaction line: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transaction log for block %s: %w", blockID, err)
	}
	return records, nil
}

// PutToBroadcast stages one L4 receipt for the next L5 assembly cycle.
func (d *BlockDAO) PutToBroadcast(ctx context.Context, l5BlockID, l1DCID string, l1BlockID int64, receipt []byte) error {
	return d.store.Put(ctx, ToBroadcastKey(l5BlockID, l1DCID, l1BlockID), receipt)
}

// ListToBroadcast returns every staged L4 receipt key under l5BlockID.
func (d *BlockDAO) ListToBroadcast(ctx context.Context, l5BlockID string) ([]string, error) {
	return d.store.List(ctx, ToBroadcastPrefix(l5BlockID))
}

// GetToBroadcastItem reads one staged receipt by its full key.
func (d *BlockDAO) GetToBroadcastItem(ctx context.Context, key string) ([]byte, error) {
	return d.store.Get(ctx, key)
}

// DrainToBroadcast removes every staged receipt under l5BlockID after it
// has been folded into an assembled L5 block.
func (d *BlockDAO) DrainToBroadcast(ctx context.Context, l5BlockID string) error {
	return d.store.DeletePrefix(ctx, ToBroadcastPrefix(l5BlockID))
}

// GetLastBlock returns the highest L5 block id produced so far, or 0 if
// none has been produced yet.
func (d *BlockDAO) GetLastBlock(ctx context.Context) (int64, error) {
	raw, err := d.store.Get(ctx, LastBlockKey)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// SetLastBlock records the highest L5 block id produced so far.
func (d *BlockDAO) SetLastBlock(ctx context.Context, blockID int64) error {
	return d.store.Put(ctx, LastBlockKey, []byte(strconv.FormatInt(blockID, 10)))
}

// LastConfirmedBlock is the bookkeeping record for the most recently
// interchain-confirmed L5 block.
type LastConfirmedBlock struct {
	BlockID int64  `json:"block_id"`
	Proof   string `json:"proof"`
}

// GetLastConfirmedBlock returns the most recently confirmed L5 block, or
// the zero value if none has confirmed yet.
func (d *BlockDAO) GetLastConfirmedBlock(ctx context.Context) (LastConfirmedBlock, error) {
	raw, err := d.store.Get(ctx, LastConfirmedBlockKey)
	if store.IsNotFound(err) {
		return LastConfirmedBlock{}, nil
	}
	if err != nil {
		return LastConfirmedBlock{}, err
	}
	var lcb LastConfirmedBlock
	if err := json.Unmarshal(raw, &lcb); err != nil {
		return LastConfirmedBlock{}, fmt.Errorf("decode last confirmed block: %w", err)
	}
	return lcb, nil
}

// SetLastConfirmedBlock records lcb as the most recently confirmed L5 block.
func (d *BlockDAO) SetLastConfirmedBlock(ctx context.Context, lcb LastConfirmedBlock) error {
	raw, err := json.Marshal(lcb)
	if err != nil {
		return fmt.Errorf("encode last confirmed block: %w", err)
	}
	return d.store.Put(ctx, LastConfirmedBlockKey, raw)
}

// GetLastBroadcastTime returns the unix-seconds timestamp of the most
// recent anchor broadcast attempt, or 0 if none has occurred yet.
func (d *BlockDAO) GetLastBroadcastTime(ctx context.Context) (int64, error) {
	raw, err := d.store.Get(ctx, LastBroadcastTimeKey)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// SetLastBroadcastTime records now as the most recent anchor broadcast time.
func (d *BlockDAO) SetLastBroadcastTime(ctx context.Context, now int64) error {
	return d.store.Put(ctx, LastBroadcastTimeKey, []byte(strconv.FormatInt(now, 10)))
}

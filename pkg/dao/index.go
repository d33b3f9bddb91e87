// Copyright 2025 Certen Protocol
//
// Index is the Postgres-backed secondary index BlockDAO writes through
// to, so pkg/server's search endpoints can answer "blocks by dc_id" /
// "blocks in a time range" without scanning the object store.

package dao

import (
	"context"
	"fmt"
)

// Index records block/verification metadata for querying.
type Index struct {
	client *Client
}

// NewIndex wraps client as an Index. client may be nil, in which case
// every method is a no-op — the object store remains the system of
// record regardless of whether the secondary index is configured.
func NewIndex(client *Client) *Index {
	return &Index{client: client}
}

// RecordBlock upserts blockID's index row.
func (i *Index) RecordBlock(ctx context.Context, blockID string, level int, dcID string, blockTS int64) error {
	if i.client == nil {
		return nil
	}
	_, err := i.client.ExecContext(ctx, `
		INSERT INTO block_index (block_id, level, dc_id, block_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (block_id) DO UPDATE SET level = $2, dc_id = $3, block_ts = $4
	`, blockID, level, dcID, blockTS)
	if err != nil {
		return fmt.Errorf("upsert block_index: %w", err)
	}
	return nil
}

// RecordVerification upserts one verification index row.
func (i *Index) RecordVerification(ctx context.Context, l1BlockID string, level int, verifierDCID string) error {
	if i.client == nil {
		return nil
	}
	_, err := i.client.ExecContext(ctx, `
		INSERT INTO verification_index (l1_block_id, level, verifier_dc_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, l1BlockID, level, verifierDCID)
	if err != nil {
		return fmt.Errorf("upsert verification_index: %w", err)
	}
	return nil
}

// BlockSummary is one row of a block search result.
type BlockSummary struct {
	BlockID string
	Level   int
	DCID    string
	BlockTS int64
}

// BlocksByDCID returns every indexed block produced by dcID, most recent
// first, capped at limit.
func (i *Index) BlocksByDCID(ctx context.Context, dcID string, limit int) ([]BlockSummary, error) {
	if i.client == nil {
		return nil, nil
	}
	rows, err := i.client.QueryContext(ctx, `
		SELECT block_id, level, dc_id, block_ts FROM block_index
		WHERE dc_id = $1 ORDER BY block_ts DESC LIMIT $2
	`, dcID, limit)
	if err != nil {
		return nil, fmt.Errorf("query block_index by dc_id: %w", err)
	}
	defer rows.Close()

	var out []BlockSummary
	for rows.Next() {
		var s BlockSummary
		if err := rows.Scan(&s.BlockID, &s.Level, &s.DCID, &s.BlockTS); err != nil {
			return nil, fmt.Errorf("scan block_index row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// BlocksInRange returns every indexed block at level within [fromTS,
// toTS], ascending by timestamp.
func (i *Index) BlocksInRange(ctx context.Context, level int, fromTS, toTS int64) ([]BlockSummary, error) {
	if i.client == nil {
		return nil, nil
	}
	rows, err := i.client.QueryContext(ctx, `
		SELECT block_id, level, dc_id, block_ts FROM block_index
		WHERE level = $1 AND block_ts BETWEEN $2 AND $3 ORDER BY block_ts ASC
	`, level, fromTS, toTS)
	if err != nil {
		return nil, fmt.Errorf("query block_index by range: %w", err)
	}
	defer rows.Close()

	var out []BlockSummary
	for rows.Next() {
		var s BlockSummary
		if err := rows.Scan(&s.BlockID, &s.Level, &s.DCID, &s.BlockTS); err != nil {
			return nil, fmt.Errorf("scan block_index row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Copyright 2025 Certen Protocol
//
// Object store key layout (spec §6.2): block/verification/transaction
// artifacts share one flat keyspace across C6's writers, partitioned by
// prefix so ownership never overlaps.

package dao

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	prefixBlock       = "BLOCK/"
	prefixTransaction = "TRANSACTION/"
	prefixBroadcast   = "BROADCAST/"
	prefixKeys        = "KEYS/"
	prefixInterchains = "INTERCHAINS/"
)

// BlockKey is the canonical storage key for a block at any level.
func BlockKey(blockID string) string {
	return prefixBlock + blockID
}

// VerificationKey is the storage key for one higher-level node's
// verification of l1BlockID at level, e.g. "BLOCK/42-l2-dc-west-1".
func VerificationKey(l1BlockID string, level int, verifierDCID string) string {
	return fmt.Sprintf("%s%s-l%d-%s", prefixBlock, l1BlockID, level, verifierDCID)
}

// VerificationPrefix is the key prefix covering all verifications of
// l1BlockID at level, used by prefix scans (rollback's "good" list).
func VerificationPrefix(l1BlockID string, level int) string {
	return fmt.Sprintf("%s%s-l%d-", prefixBlock, l1BlockID, level)
}

// ParseVerificationDCID extracts the verifier dc_id suffix from a full
// verification key, given the l1BlockID and level it belongs to.
func ParseVerificationDCID(key string, l1BlockID string, level int) (string, bool) {
	prefix := VerificationPrefix(l1BlockID, level)
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return key[len(prefix):], true
}

// TransactionKey is the storage key for a block's newline-delimited
// {txn_id, txn} transaction log.
func TransactionKey(blockID string) string {
	return prefixTransaction + blockID
}

// PendingToBroadcastBucket is the staging bucket L4 receipts land in
// before an L5 block id has been assigned to them. C9 lists and drains
// this bucket every anchor tick; it is never itself an L5 block id.
const PendingToBroadcastBucket = "pending"

// ToBroadcastPrefix is the staging area C9 drains L4 receipts from
// before they are folded into the next L5 block.
func ToBroadcastPrefix(l5BlockID string) string {
	return prefixBroadcast + "TO_BROADCAST/" + l5BlockID + "/"
}

// ToBroadcastKey is one staged L4 receipt under ToBroadcastPrefix.
func ToBroadcastKey(l5BlockID string, l1DCID string, l1BlockID int64) string {
	return ToBroadcastPrefix(l5BlockID) + l1DCID + "-" + strconv.FormatInt(l1BlockID, 10)
}

const (
	// LastBlockKey holds the highest L5 block id produced so far.
	LastBlockKey = prefixBroadcast + "LAST_BLOCK"
	// LastConfirmedBlockKey holds {block_id, proof} of the last
	// interchain-confirmed L5 block.
	LastConfirmedBlockKey = prefixBroadcast + "LAST_CONFIRMED_BLOCK"
	// LastBroadcastTimeKey holds the unix-seconds timestamp of the most
	// recent anchor broadcast attempt.
	LastBroadcastTimeKey = prefixBroadcast + "LAST_BROADCAST_TIME"
	// LastWatchTimeKey holds the unix-seconds timestamp C9's tick last ran.
	LastWatchTimeKey = prefixBroadcast + "LAST_WATCH_TIME"
)

// KeyRecordKey stores a node's own exported signing-key material.
func KeyRecordKey(name string) string {
	return prefixKeys + name
}

// InterchainStateKey stores one adapter's durable state (balance
// snapshots, last seen block) under its network name.
func InterchainStateKey(network string) string {
	return prefixInterchains + network
}

// Copyright 2025 Certen Protocol
//
// Coord is C2: the in-memory coordination store used for broadcast state
// keys, queues, and claim checks (spec §2, §4.1). The interface mirrors
// exactly the redis command shapes `broadcast_functions.py` uses so
// pkg/broadcast can be grounded directly on the original semantics.

package coord

import "context"

// ScoredMember is one member of a sorted set together with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Coord is the minimal command surface the broadcast processor and
// transaction processors need from the coordination store.
type Coord interface {
	// Sorted sets (broadcast:in-flight).
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRem(ctx context.Context, key string, members ...string) error
	// ZRangeByScore returns members scored within [min, max], in score
	// order, capped at limit (0 = unlimited).
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]ScoredMember, error)

	// Sets (broadcast:block:<id>:l<L>).
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SCard(ctx context.Context, key string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	// Plain keys (broadcast:block:<id>:state, broadcast:block:<id>:errors).
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Incr(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error

	// Hashes (broadcast:claimcheck).
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Pipeline batches a set of operations into a single atomic
	// round-trip, matching the rollback procedure's "atomically
	// (pipeline): srem(...), del(...), set(...)" requirement (§4.1).
	Pipeline(ctx context.Context, ops []Op) error
}

// OpKind names a coordination-store command usable inside a Pipeline.
type OpKind int

const (
	OpSRem OpKind = iota
	OpDel
	OpSet
	OpZRem
	OpZAdd
	OpHDel
)

// Op is one pipelined command.
type Op struct {
	Kind    OpKind
	Key     string
	Members []string // SRem
	Value   string   // Set
	Score   float64  // ZAdd
	Member  string   // ZAdd/ZRem (single member)
	Fields  []string // HDel
}

// Copyright 2025 Certen Protocol
//
// Fake is an in-memory Coord used by pkg/broadcast and pkg/txproc tests,
// the way the original broadcast_processor_utest.py stubs redis calls
// against a plain dict.

package coord

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// Fake is a minimal in-memory implementation of Coord. It is not
// concurrency-optimized; it exists for deterministic tests.
type Fake struct {
	mu     sync.Mutex
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64
	hashes map[string]map[string]string
	kv     map[string]string
}

// NewFake returns an empty Fake coordination store.
func NewFake() *Fake {
	return &Fake{
		sets:   make(map[string]map[string]struct{}),
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
		kv:     make(map[string]string),
	}
}

func (f *Fake) ZAdd(_ context.Context, key, member string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.zsets[key] == nil {
		f.zsets[key] = make(map[string]float64)
	}
	f.zsets[key][member] = score
	return nil
}

func (f *Fake) ZRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.zsets[key], m)
	}
	return nil
}

func (f *Fake) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]ScoredMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ScoredMember
	for m, s := range f.zsets[key] {
		if s >= min && s <= max {
			out = append(out, ScoredMember{Member: m, Score: s})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	for _, m := range members {
		f.sets[key][m] = struct{}{}
	}
	return nil
}

func (f *Fake) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

func (f *Fake) SCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sets[key])), nil
}

func (f *Fake) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	return v, ok, nil
}

func (f *Fake) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
	return nil
}

func (f *Fake) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.kv[key], 10, 64)
	n++
	f.kv[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *Fake) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.sets, k)
		delete(f.zsets, k)
		delete(f.hashes, k)
	}
	return nil
}

func (f *Fake) HSet(_ context.Context, key, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashes[key] == nil {
		f.hashes[key] = make(map[string]string)
	}
	f.hashes[key][field] = value
	return nil
}

func (f *Fake) HGet(_ context.Context, key, field string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.hashes[key][field]
	return v, ok, nil
}

func (f *Fake) HDel(_ context.Context, key string, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fld := range fields {
		delete(f.hashes[key], fld)
	}
	return nil
}

func (f *Fake) Pipeline(ctx context.Context, ops []Op) error {
	for _, op := range ops {
		switch op.Kind {
		case OpSRem:
			if err := f.SRem(ctx, op.Key, op.Members...); err != nil {
				return err
			}
		case OpDel:
			if err := f.Del(ctx, op.Key); err != nil {
				return err
			}
		case OpSet:
			if err := f.Set(ctx, op.Key, op.Value); err != nil {
				return err
			}
		case OpZRem:
			if err := f.ZRem(ctx, op.Key, op.Member); err != nil {
				return err
			}
		case OpZAdd:
			if err := f.ZAdd(ctx, op.Key, op.Member, op.Score); err != nil {
				return err
			}
		case OpHDel:
			if err := f.HDel(ctx, op.Key, op.Fields...); err != nil {
				return err
			}
		}
	}
	return nil
}

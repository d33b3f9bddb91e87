// Copyright 2025 Certen Protocol
//
// Fake is an in-memory matchmaking client, the way
// broadcast_processor_utest.py stubs `matchmaking.get_registration` and
// friends with canned responses instead of a live service.

package matchmaking

import (
	"context"
	"strconv"
	"sync"
)

// Fake is a deterministic, in-memory Client for tests.
type Fake struct {
	mu          sync.Mutex
	pool        map[int][]Registration // level -> candidates, in preference order
	claimChecks map[string]Registration // "blockID:level" -> assigned node
	urls        map[string]string       // dcID -> URL
}

// NewFake returns an empty Fake. Use AddCandidate to seed the pool.
func NewFake() *Fake {
	return &Fake{
		pool:        make(map[int][]Registration),
		claimChecks: make(map[string]Registration),
		urls:        make(map[string]string),
	}
}

// AddCandidate registers reg as an eligible verifier at reg.Level.
func (f *Fake) AddCandidate(reg Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool[reg.Level] = append(f.pool[reg.Level], reg)
	f.urls[reg.DCID] = reg.URL
}

func claimKey(blockID string, level int) string {
	return blockID + ":" + strconv.Itoa(level)
}

func excluded(dcID string, exclude []string) bool {
	for _, e := range exclude {
		if e == dcID {
			return true
		}
	}
	return false
}

func (f *Fake) GetRegistration(_ context.Context, level int, exclude []string) (*Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, candidate := range f.pool[level] {
		if !excluded(candidate.DCID, exclude) {
			c := candidate
			return &c, nil
		}
	}
	return nil, &ErrNoCandidates{Level: level}
}

func (f *Fake) GetOrCreateClaimCheck(ctx context.Context, blockID string, level int) (*Registration, error) {
	f.mu.Lock()
	key := claimKey(blockID, level)
	if reg, ok := f.claimChecks[key]; ok {
		f.mu.Unlock()
		r := reg
		return &r, nil
	}
	f.mu.Unlock()

	reg, err := f.GetRegistration(ctx, level, nil)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.claimChecks[key] = *reg
	f.mu.Unlock()
	return reg, nil
}

func (f *Fake) OverwriteNoResponseNode(ctx context.Context, blockID string, level int, prior string) (*Registration, error) {
	reg, err := f.GetRegistration(ctx, level, []string{prior})
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.claimChecks[claimKey(blockID, level)] = *reg
	f.mu.Unlock()
	return reg, nil
}

func (f *Fake) UpdateFundedFlag(_ context.Context, dcID string, funded bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for level, candidates := range f.pool {
		for i, c := range candidates {
			if c.DCID == dcID {
				f.pool[level][i].Funded = funded
			}
		}
	}
	return nil
}

func (f *Fake) GetDragonchainAddress(_ context.Context, dcID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.urls[dcID]
	if !ok {
		return "", &ErrNoCandidates{}
	}
	return url, nil
}

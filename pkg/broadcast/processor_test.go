// Copyright 2025 Certen Protocol

package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/dragonchain-gen2/dragonnet/pkg/coord"
	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/kvdb"
	"github.com/dragonchain-gen2/dragonnet/pkg/matchmaking"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
	"github.com/dragonchain-gen2/dragonnet/pkg/store"
)

type recordedPost struct {
	url     string
	headers map[string]string
	body    []byte
}

type fakePoster struct {
	status int
	err    error
	calls  []recordedPost
}

func (f *fakePoster) Post(_ context.Context, url string, headers map[string]string, body []byte) (int, []byte, error) {
	f.calls = append(f.calls, recordedPost{url: url, headers: headers, body: body})
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.status, nil, nil
}

type insufficientFundsMatchmaking struct {
	matchmaking.Client
}

func (insufficientFundsMatchmaking) GetOrCreateClaimCheck(context.Context, string, int) (*matchmaking.Registration, error) {
	return nil, &dnerrors.InsufficientFunds{ChainID: "dc-verifier", Have: 0, Need: 1000}
}

func noopPayload(context.Context, string, int) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func newTestScheduler(t *testing.T, mm matchmaking.Client, poster Poster, opts ...SchedulerOption) (*Scheduler, *Processor) {
	t.Helper()
	c := coord.NewFake()
	adapter := kvdb.NewKVAdapter(dbm.NewMemDB())
	d := dao.NewBlockDAO(store.NewKVStore(adapter), nil)
	p := NewProcessor(c, d, nil)
	s := NewScheduler(p, mm, poster, "dc-self", "key-1", "sekrit", model.HashSHA256, opts...)
	return s, p
}

func TestProcessDuePostsSignedRequestAndReschedules(t *testing.T) {
	ctx := context.Background()
	mm := matchmaking.NewFake()
	mm.AddCandidate(matchmaking.Registration{DCID: "dc-verifier", Level: 2, URL: "https://verifier.example"})

	poster := &fakePoster{status: 200}
	s, p := newTestScheduler(t, mm, poster, WithClock(func() time.Time { return time.Unix(1000, 0) }))

	if err := p.ScheduleForBroadcast(ctx, "block-1", 0); err != nil {
		t.Fatalf("ScheduleForBroadcast: %v", err)
	}

	if err := s.ProcessDue(ctx, 1000, 10, noopPayload); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}

	if len(poster.calls) != 1 {
		t.Fatalf("got %d POSTs, want 1", len(poster.calls))
	}
	call := poster.calls[0]
	if call.url != "https://verifier.example/v1/enqueue" {
		t.Errorf("POST url = %q, want the verifier's enqueue endpoint", call.url)
	}
	if call.headers["Authorization"] == "" {
		t.Error("POST missing signed Authorization header")
	}
	if call.headers["deadline"] == "" {
		t.Error("POST missing deadline header")
	}

	due, err := p.Due(ctx, 1000+int64(BroadcastReceiptWaitTime.Seconds())+1, 10)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("block not rescheduled after successful POST")
	}
}

func TestProcessDueReplacesNonResponsiveVerifier(t *testing.T) {
	ctx := context.Background()
	mm := matchmaking.NewFake()
	mm.AddCandidate(matchmaking.Registration{DCID: "dc-dead", Level: 2, URL: "https://dead.example"})
	mm.AddCandidate(matchmaking.Registration{DCID: "dc-alive", Level: 2, URL: "https://alive.example"})

	poster := &fakePoster{status: 503}
	s, p := newTestScheduler(t, mm, poster)
	if err := p.ScheduleForBroadcast(ctx, "block-1", 0); err != nil {
		t.Fatalf("ScheduleForBroadcast: %v", err)
	}

	if err := s.ProcessDue(ctx, 1000, 10, noopPayload); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}

	reg, ok, err := p.ClaimCheck(ctx, "block-1", 2)
	if err != nil {
		t.Fatalf("ClaimCheck: %v", err)
	}
	if !ok || reg != "dc-alive" {
		t.Errorf("ClaimCheck after non-response = (%q, %v), want dc-alive replacing dc-dead", reg, ok)
	}
}

func TestProcessDueSleepsWholeBatchOnInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	var slept time.Duration
	poster := &fakePoster{status: 200}
	s, p := newTestScheduler(t, insufficientFundsMatchmaking{}, poster, WithSleep(func(d time.Duration) { slept = d }))

	if err := p.ScheduleForBroadcast(ctx, "block-1", 0); err != nil {
		t.Fatalf("ScheduleForBroadcast: %v", err)
	}
	if err := s.ProcessDue(ctx, 1000, 10, noopPayload); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if slept != InsufficientFundsSleep {
		t.Errorf("slept %v, want %v", slept, InsufficientFundsSleep)
	}
	if len(poster.calls) != 0 {
		t.Error("no POST should be attempted when matchmaking reports insufficient funds")
	}
}

func TestSetL5WaitTimeFallsBackWithoutIntervalLookup(t *testing.T) {
	s, _ := newTestScheduler(t, matchmaking.NewFake(), &fakePoster{status: 200})
	got := s.SetL5WaitTime("chain-without-lookup")
	want := computeL5WaitTime(DefaultBroadcastIntervalHours)
	if got != want {
		t.Errorf("SetL5WaitTime = %d, want %d", got, want)
	}
}

func TestGetL5WaitTimeIsCached(t *testing.T) {
	s, _ := newTestScheduler(t, matchmaking.NewFake(), &fakePoster{status: 200})
	s.mu.Lock()
	s.l5WaitTimes["banana"] = 123
	s.mu.Unlock()
	if got := s.GetL5WaitTime("banana"); got != 123 {
		t.Errorf("GetL5WaitTime = %d, want cached 123", got)
	}
}

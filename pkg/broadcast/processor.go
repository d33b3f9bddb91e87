// Copyright 2025 Certen Protocol
//
// Scheduler is C8's tick loop: it walks the blocks due in
// broadcast:in-flight, finds or mints a claim-checked verifier for each
// one's current level via matchmaking, POSTs a signed verification
// request, and reschedules or sleeps the block depending on the outcome
// (spec §4.1). It is the part of the original process_blocks_for_broadcast
// that actually talks to the network; the state machine it drives lives
// in broadcast.go.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dragonchain-gen2/dragonnet/pkg/authz"
	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/matchmaking"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

// BroadcastReceiptWaitTime is how long a block waits, once a verification
// request has been sent for its current level (levels 2-4), before it
// comes due again. The next attempt re-sends the request to the same
// claim-checked verifier: a verifier that accepted the POST but never
// sent a receipt is not replaced. The verifier is replaced only when the
// POST itself fails (transport error, or status 0 or >= 500). It ships as
// a flat default because the original's per-level deadline is not itself
// spec'd beyond "the broadcast receipt wait time header"; L5 uses the
// chain-specific formula in computeL5WaitTime/GetL5WaitTime instead.
const BroadcastReceiptWaitTime = 30 * time.Second

// InsufficientFundsSleep is how long the scheduler pauses the entire due
// batch after a matchmaking call reports a chain cannot afford to
// participate, matching process_blocks_for_broadcast's sleep(1800).
const InsufficientFundsSleep = 30 * time.Minute

// l5WaitTimeFallback is used when a chain's registered broadcast interval
// cannot be resolved, matching set_l5_wait_time's hardcoded fallback.
const l5WaitTimeFallback = 43200

// Poster sends a signed verification request to url and reports the
// response status and body, or an error if the request could not be
// delivered at all (distinguished from a non-2xx response, which is not
// itself an error — the caller inspects status).
type Poster interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (status int, respBody []byte, err error)
}

// Scheduler drives C8's per-tick processing of due blocks.
type Scheduler struct {
	*Processor
	matchmaking matchmaking.Client
	poster      Poster

	dcID      string
	keyID     string
	secretKey string
	hashAlgo  model.HashAlgo
	now       func() time.Time
	sleep     func(time.Duration)

	gauges *gauges

	mu          sync.Mutex
	l5WaitTimes map[string]int64
}

type gauges struct {
	inFlight      prometheus.Gauge
	verifications *prometheus.GaugeVec
}

func newGauges(reg prometheus.Registerer) *gauges {
	g := &gauges{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dragonnet_broadcast_in_flight_blocks",
			Help: "Number of due blocks picked up by the broadcast scheduler's most recent tick.",
		}),
		verifications: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dragonnet_broadcast_verifications_received",
			Help: "Verifications received for the most recently processed block, by level.",
		}, []string{"level"}),
	}
	if reg != nil {
		reg.MustRegister(g.inFlight, g.verifications)
	}
	return g
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock overrides the scheduler's notion of "now" (for tests).
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithSleep overrides the scheduler's sleep function (for tests, so an
// InsufficientFunds pause doesn't actually block).
func WithSleep(sleep func(time.Duration)) SchedulerOption {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithRegisterer registers the scheduler's prometheus gauges against reg
// instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) SchedulerOption {
	return func(s *Scheduler) { s.gauges = newGauges(reg) }
}

// NewScheduler builds a Scheduler that signs outbound requests as dcID
// using keyID/secretKey under hashAlgo.
func NewScheduler(p *Processor, mm matchmaking.Client, poster Poster, dcID, keyID, secretKey string, hashAlgo model.HashAlgo, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		Processor:   p,
		matchmaking: mm,
		poster:      poster,
		dcID:        dcID,
		keyID:       keyID,
		secretKey:   secretKey,
		hashAlgo:    hashAlgo,
		now:         time.Now,
		sleep:       time.Sleep,
		l5WaitTimes: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gauges == nil {
		s.gauges = newGauges(nil)
	}
	return s
}

// verificationDTO is the body POSTed to a verifier's enqueue endpoint: the
// claim check field name it should respond under, plus the raw block (or
// aggregate, for L3+) it needs to verify.
type verificationDTO struct {
	BlockID string          `json:"block_id"`
	Level   int             `json:"level"`
	Payload json.RawMessage `json:"payload"`
}

// PayloadFunc builds the JSON payload a verification request carries for
// blockID at level, e.g. the raw L1 block for level 2 or an aggregate
// assembled from lower-level verifications for level 3+.
type PayloadFunc func(ctx context.Context, blockID string, level int) (json.RawMessage, error)

// ProcessDue pops up to limit due blocks from in-flight and drives one
// broadcast attempt for each: resolving a claimed verifier, POSTing a
// signed verification request, and rescheduling the block. asOf is the
// "now" used to select due blocks (normally s.now().Unix()).
func (s *Scheduler) ProcessDue(ctx context.Context, asOf int64, limit int64, payload PayloadFunc) error {
	blockIDs, err := s.Due(ctx, asOf, limit)
	if err != nil {
		return err
	}
	s.gauges.inFlight.Set(float64(len(blockIDs)))

	for _, blockID := range blockIDs {
		if err := s.processOne(ctx, blockID, payload); err != nil {
			var insufficient *dnerrors.InsufficientFunds
			if asInsufficientFunds(err, &insufficient) {
				s.sleep(InsufficientFundsSleep)
				return nil
			}
			continue
		}
	}
	return nil
}

func asInsufficientFunds(err error, target **dnerrors.InsufficientFunds) bool {
	for err != nil {
		if t, ok := err.(*dnerrors.InsufficientFunds); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (s *Scheduler) processOne(ctx context.Context, blockID string, payload PayloadFunc) error {
	level, err := s.CurrentLevel(ctx, blockID)
	if err != nil {
		return err
	}
	if level < 2 || level > 5 {
		return s.Remove(ctx, blockID)
	}

	verifiers, err := s.ReceivedVerifications(ctx, blockID, level)
	if err != nil {
		return err
	}
	s.gauges.verifications.WithLabelValues(strconv.Itoa(level)).Set(float64(len(verifiers)))

	reg, err := s.matchmaking.GetOrCreateClaimCheck(ctx, blockID, level)
	if err != nil {
		return fmt.Errorf("get claim check for %s level %d: %w", blockID, level, err)
	}
	if err := s.SetClaimCheck(ctx, blockID, level, reg.DCID); err != nil {
		return err
	}

	body, err := payload(ctx, blockID, level)
	if err != nil {
		return fmt.Errorf("build payload for %s level %d: %w", blockID, level, err)
	}
	dto := verificationDTO{BlockID: blockID, Level: level, Payload: body}
	rawBody, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal verification request for %s: %w", blockID, err)
	}

	const path = "/v1/enqueue"
	now := s.now()
	signed, err := authz.GenerateAuthenticatedRequest(s.keyID, s.secretKey, reg.DCID, path, rawBody, s.hashAlgo, now)
	if err != nil {
		return fmt.Errorf("sign verification request for %s: %w", blockID, err)
	}
	deadline := s.deadlineFor(ctx, reg.DCID, level, now)
	signed.Headers["deadline"] = strconv.FormatInt(deadline, 10)

	status, _, err := s.poster.Post(ctx, reg.URL+path, signed.Headers, signed.Body)
	if err != nil || status >= 500 || status == 0 {
		replacement, rerr := s.matchmaking.OverwriteNoResponseNode(ctx, blockID, level, reg.DCID)
		if rerr != nil {
			return fmt.Errorf("replace non-responsive node for %s level %d: %w", blockID, level, rerr)
		}
		if err := s.SetClaimCheck(ctx, blockID, level, replacement.DCID); err != nil {
			return err
		}
		return s.Reschedule(ctx, blockID, now.Unix()+int64(s.waitTimeFor(level, reg.DCID).Seconds()))
	}

	return s.Reschedule(ctx, blockID, now.Unix()+int64(s.waitTimeFor(level, reg.DCID).Seconds()))
}

// deadlineFor computes the absolute unix deadline a verifier must
// respond by for blockID at level, used as the outbound "deadline"
// header.
func (s *Scheduler) deadlineFor(ctx context.Context, verifierDCID string, level int, now time.Time) int64 {
	return now.Unix() + int64(s.waitTimeFor(level, verifierDCID).Seconds())
}

func (s *Scheduler) waitTimeFor(level int, chainID string) time.Duration {
	if level < 5 {
		return BroadcastReceiptWaitTime
	}
	return time.Duration(s.GetL5WaitTime(chainID)) * time.Second
}

// BroadcastIntervalLookup resolves how often (in hours) the L5 chain
// identified by chainID anchors, so SetL5WaitTime can size a confirmation
// deadline around it. pkg/matchmaking's Client does not itself expose a
// chain's registered interval, so a Scheduler that needs per-chain
// intervals wires one of these in separately; without one, every chain
// falls back to DefaultBroadcastIntervalHours.
type BroadcastIntervalLookup interface {
	BroadcastIntervalHours(ctx context.Context, chainID string) (float64, error)
}

// DefaultBroadcastIntervalHours is used when no BroadcastIntervalLookup
// is configured. A configured lookup that fails for chainID yields
// l5WaitTimeFallback instead.
const DefaultBroadcastIntervalHours = 1.0

// GetL5WaitTime returns the cached L5 confirmation-wait time for chainID
// in seconds, resolving and caching it via SetL5WaitTime on first use,
// matching get_l5_wait_time's cache-or-compute behavior.
func (s *Scheduler) GetL5WaitTime(chainID string) int64 {
	s.mu.Lock()
	if v, ok := s.l5WaitTimes[chainID]; ok {
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()
	return s.SetL5WaitTime(chainID)
}

// SetL5WaitTime resolves chainID's broadcast interval and computes and
// caches the wait time an L5 confirmation poll should use before giving
// up on a broadcast attempt:
//
//	(600 * 6 * 3) + (broadcastIntervalHours * 3600)
//
// which gives six ten-minute confirmation windows, times three, plus the
// registered interval between anchor attempts. If the interval cannot be
// resolved, the hardcoded fallback of 43200 seconds is cached instead,
// matching set_l5_wait_time's exception path.
func (s *Scheduler) SetL5WaitTime(chainID string) int64 {
	hours := DefaultBroadcastIntervalHours
	wait := int64(l5WaitTimeFallback)
	if lookup, ok := s.matchmaking.(BroadcastIntervalLookup); ok {
		if h, err := lookup.BroadcastIntervalHours(context.Background(), chainID); err == nil {
			hours = h
			wait = computeL5WaitTime(hours)
		}
	} else {
		wait = computeL5WaitTime(hours)
	}
	s.mu.Lock()
	s.l5WaitTimes[chainID] = wait
	s.mu.Unlock()
	return wait
}

func computeL5WaitTime(broadcastIntervalHours float64) int64 {
	return (600 * 6 * 3) + int64(broadcastIntervalHours*3600)
}

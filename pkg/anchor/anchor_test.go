// Copyright 2025 Certen Protocol

package anchor

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/interchain"
	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/kvdb"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
	"github.com/dragonchain-gen2/dragonnet/pkg/store"
)

func newTestDAO(t *testing.T) *dao.BlockDAO {
	t.Helper()
	adapter := kvdb.NewKVAdapter(dbm.NewMemDB())
	return dao.NewBlockDAO(store.NewKVStore(adapter), nil)
}

type fakeAdapter struct {
	balance       *big.Int
	fee           *big.Int
	currentBlock  int64
	publishCount  int
	publishErr    error
	confirmStatus interchain.ConfirmationStatus
	confirmErr    error
	shouldRetry   bool
}

func (f *fakeAdapter) NetworkString() string { return "test network" }
func (f *fakeAdapter) Ping(ctx context.Context) error { return nil }
func (f *fakeAdapter) CheckBalance(ctx context.Context) (*big.Int, error) { return f.balance, nil }
func (f *fakeAdapter) GetTransactionFeeEstimate(ctx context.Context) (*big.Int, error) {
	return f.fee, nil
}
func (f *fakeAdapter) GetCurrentBlock(ctx context.Context) (int64, error) { return f.currentBlock, nil }
func (f *fakeAdapter) SignTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}
func (f *fakeAdapter) PublishL5HashToPublicNetwork(ctx context.Context, signedTx []byte) (string, error) {
	f.publishCount++
	if f.publishErr != nil {
		return "", f.publishErr
	}
	return "0xT1", nil
}
func (f *fakeAdapter) IsTransactionConfirmed(ctx context.Context, txHash string) (interchain.ConfirmationStatus, error) {
	return f.confirmStatus, f.confirmErr
}
func (f *fakeAdapter) ShouldRetryBroadcast(ctx context.Context, publishedAtBlock int64) (bool, error) {
	return f.shouldRetry, nil
}
func (f *fakeAdapter) GetPrivateKey() []byte             { return nil }
func (f *fakeAdapter) ExportAsAtRest() ([]byte, error)   { return nil, nil }

type fakeFundedFlagSetter struct {
	lastFunded bool
	calls      int
}

func (f *fakeFundedFlagSetter) UpdateFundedFlag(ctx context.Context, dcID string, funded bool) error {
	f.lastFunded = funded
	f.calls++
	return nil
}

type recordingNotifier struct {
	blocks []*model.L5Block
}

func (n *recordingNotifier) NotifyFinalized(ctx context.Context, block *model.L5Block) error {
	n.blocks = append(n.blocks, block)
	return nil
}

func stageOneReceipt(t *testing.T, d *dao.BlockDAO) {
	t.Helper()
	proj := model.L4Projection{L1DCID: "dc-l1", L1BlockID: 7, L4DCID: "dc-l4", L4BlockID: 1, L4Proof: "l4-proof"}
	raw, err := json.Marshal(proj)
	if err != nil {
		t.Fatalf("marshal projection: %v", err)
	}
	if err := d.PutToBroadcast(context.Background(), dao.PendingToBroadcastBucket, proj.L1DCID, proj.L1BlockID, raw); err != nil {
		t.Fatalf("PutToBroadcast: %v", err)
	}
}

func TestTickAssemblesAndAnchorsWhenFundedAndStaged(t *testing.T) {
	ctx := context.Background()
	ks, _ := keyservice.New("dc-l5", "")
	d := newTestDAO(t)
	stageOneReceipt(t, d)

	funded := &fakeFundedFlagSetter{}
	adapter := &fakeAdapter{balance: big.NewInt(1000), fee: big.NewInt(10), currentBlock: 8754}

	e := NewEngine("dc-l5", ks, d, adapter, model.HashSHA256,
		WithClock(func() time.Time { return time.Unix(5000, 0) }),
		WithFundedFlagSetter(funded))

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if adapter.publishCount != 1 {
		t.Fatalf("publishCount = %d, want 1", adapter.publishCount)
	}
	if !funded.lastFunded {
		t.Error("UpdateFundedFlag recorded funded=false, want true")
	}

	staged, err := d.ListToBroadcast(ctx, dao.PendingToBroadcastBucket)
	if err != nil {
		t.Fatalf("ListToBroadcast: %v", err)
	}
	if len(staged) != 0 {
		t.Errorf("staged receipts after broadcast = %d, want 0", len(staged))
	}

	lastID, err := d.GetLastBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if lastID != 1 {
		t.Errorf("GetLastBlock = %d, want 1", lastID)
	}
}

func TestTickSkipsBroadcastWhenUnfunded(t *testing.T) {
	ctx := context.Background()
	ks, _ := keyservice.New("dc-l5", "")
	d := newTestDAO(t)
	stageOneReceipt(t, d)

	adapter := &fakeAdapter{balance: big.NewInt(1), fee: big.NewInt(100), currentBlock: 1}
	e := NewEngine("dc-l5", ks, d, adapter, model.HashSHA256)

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if adapter.publishCount != 0 {
		t.Errorf("publishCount = %d, want 0 when unfunded", adapter.publishCount)
	}
}

func TestTickSkipsBroadcastWhenNothingStaged(t *testing.T) {
	ctx := context.Background()
	ks, _ := keyservice.New("dc-l5", "")
	d := newTestDAO(t)

	adapter := &fakeAdapter{balance: big.NewInt(1000), fee: big.NewInt(10), currentBlock: 1}
	e := NewEngine("dc-l5", ks, d, adapter, model.HashSHA256)

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if adapter.publishCount != 0 {
		t.Errorf("publishCount = %d, want 0 with nothing staged", adapter.publishCount)
	}
}

func TestTickFinalizesOnConfirmation(t *testing.T) {
	ctx := context.Background()
	ks, _ := keyservice.New("dc-l5", "")
	d := newTestDAO(t)
	stageOneReceipt(t, d)

	notifier := &recordingNotifier{}
	adapter := &fakeAdapter{balance: big.NewInt(1000), fee: big.NewInt(10), currentBlock: 8754}
	e := NewEngine("dc-l5", ks, d, adapter, model.HashSHA256, WithNotifier(notifier))

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick (broadcast): %v", err)
	}

	adapter.confirmStatus = interchain.StatusConfirmed
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick (confirm): %v", err)
	}

	lcb, err := d.GetLastConfirmedBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastConfirmedBlock: %v", err)
	}
	if lcb.BlockID != 1 {
		t.Errorf("GetLastConfirmedBlock.BlockID = %d, want 1", lcb.BlockID)
	}
	if len(notifier.blocks) != 1 {
		t.Fatalf("notifier invoked %d times, want 1", len(notifier.blocks))
	}
}

func TestTickDropsHashAndRebroadcastsOnTransactionNotFound(t *testing.T) {
	ctx := context.Background()
	ks, _ := keyservice.New("dc-l5", "")
	d := newTestDAO(t)
	stageOneReceipt(t, d)

	adapter := &fakeAdapter{balance: big.NewInt(1000), fee: big.NewInt(10), currentBlock: 8754}
	e := NewEngine("dc-l5", ks, d, adapter, model.HashSHA256)

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick (broadcast): %v", err)
	}

	adapter.confirmStatus = interchain.StatusNotFound
	adapter.confirmErr = dnerrors.ErrTransactionNotFound
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick (drop+rebroadcast): %v", err)
	}
	if adapter.publishCount != 2 {
		t.Errorf("publishCount = %d, want 2 after drop-and-rebroadcast", adapter.publishCount)
	}

	raw, err := d.GetBlock(ctx, "1")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	var block model.L5Block
	if err := json.Unmarshal(raw, &block); err != nil {
		t.Fatalf("decode L5 block: %v", err)
	}
	if len(block.TransactionHash) != 1 {
		t.Errorf("TransactionHash = %v, want exactly one hash after drop+rebroadcast", block.TransactionHash)
	}
}

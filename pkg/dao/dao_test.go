package dao

import (
	"context"
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/dragonchain-gen2/dragonnet/pkg/kvdb"
	"github.com/dragonchain-gen2/dragonnet/pkg/store"
)

func newTestDAO(t *testing.T) *BlockDAO {
	t.Helper()
	adapter := kvdb.NewKVAdapter(dbm.NewMemDB())
	return NewBlockDAO(store.NewKVStore(adapter), nil)
}

func TestPutGetBlockRoundtrip(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	if err := d.PutBlock(ctx, "42", 1, "dc-a", 1000, []byte(`{"block_id":42}`)); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, err := d.GetBlock(ctx, "42")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if string(got) != `{"block_id":42}` {
		t.Errorf("GetBlock = %s, want canonical block JSON", got)
	}
}

func TestListVerifiersExtractsDCIDs(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	for _, dcID := range []string{"dc-a", "dc-b", "dc-c"} {
		if err := d.PutVerification(ctx, "42", 2, dcID, []byte("verification")); err != nil {
			t.Fatalf("PutVerification: %v", err)
		}
	}
	// A level-3 verification for the same block must not leak into the
	// level-2 listing.
	if err := d.PutVerification(ctx, "42", 3, "dc-d", []byte("verification")); err != nil {
		t.Fatalf("PutVerification: %v", err)
	}

	got, err := d.ListVerifiers(ctx, "42", 2)
	if err != nil {
		t.Fatalf("ListVerifiers: %v", err)
	}
	want := map[string]bool{"dc-a": true, "dc-b": true, "dc-c": true}
	if len(got) != len(want) {
		t.Fatalf("ListVerifiers = %v, want 3 entries", got)
	}
	for _, g := range got {
		if !want[g] {
			t.Errorf("unexpected verifier %s in level-2 listing", g)
		}
	}
}

func TestTransactionLogRoundtrip(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	records := []TransactionRecord{
		{TxnID: "txn-1", Txn: []byte(`{"a":1}`)},
		{TxnID: "txn-2", Txn: []byte(`{"b":2}`)},
	}
	if err := d.PutTransactions(ctx, "42", records); err != nil {
		t.Fatalf("PutTransactions: %v", err)
	}

	got, err := d.GetTransactions(ctx, "42")
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(got) != 2 || got[0].TxnID != "txn-1" || got[1].TxnID != "txn-2" {
		t.Fatalf("GetTransactions = %+v, want txn-1 then txn-2", got)
	}
}

func TestToBroadcastStagingDrainsByPrefix(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	if err := d.PutToBroadcast(ctx, "l5-1", "dc-a", 100, []byte("receipt-a")); err != nil {
		t.Fatalf("PutToBroadcast: %v", err)
	}
	if err := d.PutToBroadcast(ctx, "l5-1", "dc-b", 101, []byte("receipt-b")); err != nil {
		t.Fatalf("PutToBroadcast: %v", err)
	}

	keys, err := d.ListToBroadcast(ctx, "l5-1")
	if err != nil {
		t.Fatalf("ListToBroadcast: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ListToBroadcast = %v, want 2 staged receipts", keys)
	}

	if err := d.DrainToBroadcast(ctx, "l5-1"); err != nil {
		t.Fatalf("DrainToBroadcast: %v", err)
	}
	keys, err = d.ListToBroadcast(ctx, "l5-1")
	if err != nil {
		t.Fatalf("ListToBroadcast after drain: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("ListToBroadcast after drain = %v, want empty", keys)
	}
}

func TestLastBlockDefaultsToZero(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	n, err := d.GetLastBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if n != 0 {
		t.Errorf("GetLastBlock before any write = %d, want 0", n)
	}

	if err := d.SetLastBlock(ctx, 77); err != nil {
		t.Fatalf("SetLastBlock: %v", err)
	}
	n, err = d.GetLastBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if n != 77 {
		t.Errorf("GetLastBlock = %d, want 77", n)
	}
}

func TestLastConfirmedBlockRoundtrip(t *testing.T) {
	d := newTestDAO(t)
	ctx := context.Background()

	if err := d.SetLastConfirmedBlock(ctx, LastConfirmedBlock{BlockID: 5, Proof: "sig"}); err != nil {
		t.Fatalf("SetLastConfirmedBlock: %v", err)
	}
	got, err := d.GetLastConfirmedBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastConfirmedBlock: %v", err)
	}
	if got.BlockID != 5 || got.Proof != "sig" {
		t.Errorf("GetLastConfirmedBlock = %+v, want {5 sig}", got)
	}
}

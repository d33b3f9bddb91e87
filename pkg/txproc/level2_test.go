// Copyright 2025 Certen Protocol

package txproc

import (
	"context"
	"testing"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

type fakePubKeys struct {
	keys map[string]string
}

func (f fakePubKeys) PublicKeyHex(ctx context.Context, dcID string) (string, bool, error) {
	key, ok := f.keys[dcID]
	return key, ok, nil
}

type fakeDDSS struct{ value float64 }

func (f fakeDDSS) CurrentDDSS(ctx context.Context, dcID string) (float64, error) {
	return f.value, nil
}

type recordingReceiptSender struct {
	receipts []Receipt
}

func (r *recordingReceiptSender) SendReceipt(ctx context.Context, rec Receipt) error {
	r.receipts = append(r.receipts, rec)
	return nil
}

type fakeL2Source struct {
	batches [][]InboundL1Block
}

func (f *fakeL2Source) Pop(ctx context.Context, max int) ([]InboundL1Block, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func signedL1Block(t *testing.T, ks *keyservice.KeyService, dcID string, blockID int64) *model.L1Block {
	t.Helper()
	txn := newTxn("payment", `{"amount":1}`)
	txn.DCID = dcID
	txn.BlockID = "7"
	fullHash, err := model.ComputeFullHash(txn)
	if err != nil {
		t.Fatalf("ComputeFullHash: %v", err)
	}
	txn.FullHash = fullHash

	block := &model.L1Block{
		BlockHeader: model.BlockHeader{
			DCID:      dcID,
			BlockID:   blockID,
			Level:     1,
			Timestamp: 1000,
			Version:   "1",
		},
		Transactions: []*model.StrippedTransaction{txn.Stripped()},
	}
	proof, nonce, err := signBlock(ks, model.HashSHA256, model.ProofSchemeTrust, 0, block.CanonicalFields())
	if err != nil {
		t.Fatalf("signBlock: %v", err)
	}
	block.Proof = proof
	block.Nonce = nonce
	return block
}

func TestLevel2ProcessOnceVerifiesAndReports(t *testing.T) {
	ctx := context.Background()
	l1ks, err := keyservice.New("dc-l1", "")
	if err != nil {
		t.Fatalf("keyservice.New: %v", err)
	}
	l2ks, err := keyservice.New("dc-l2", "")
	if err != nil {
		t.Fatalf("keyservice.New: %v", err)
	}
	d := newTestDAO(t)

	l1Block := signedL1Block(t, l1ks, "dc-l1", 7)
	src := &fakeL2Source{batches: [][]InboundL1Block{{{OriginDCID: "dc-l1", Block: l1Block}}}}
	keys := fakePubKeys{keys: map[string]string{"dc-l1": l1ks.PublicKeyHex()}}
	ddss := fakeDDSS{value: 0.5}
	receipts := &recordingReceiptSender{}

	p := NewLevel2Processor("dc-l2", l2ks, d, src, keys, ddss, receipts, model.HashSHA256,
		WithLevel2Clock(func() time.Time { return time.Unix(2000, 0) }))

	n, err := p.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("ProcessOnce = %d, want 1", n)
	}
	if len(receipts.receipts) != 1 {
		t.Fatalf("receipts sent = %d, want 1", len(receipts.receipts))
	}
	rec := receipts.receipts[0]
	if rec.L1DCID != "dc-l1" || rec.L1BlockID != 7 || rec.Level != 2 {
		t.Errorf("receipt = %+v, want L1DCID=dc-l1 L1BlockID=7 Level=2", rec)
	}

	lastID, err := d.GetLastBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if lastID != 1 {
		t.Errorf("GetLastBlock = %d, want 1 for the first L2 block produced", lastID)
	}
}

func TestLevel2ProcessOnceMarksInvalidOnBadProof(t *testing.T) {
	ctx := context.Background()
	l1ks, _ := keyservice.New("dc-l1", "")
	otherKS, _ := keyservice.New("dc-imposter", "")
	l2ks, _ := keyservice.New("dc-l2", "")
	d := newTestDAO(t)

	l1Block := signedL1Block(t, l1ks, "dc-l1", 7)
	src := &fakeL2Source{batches: [][]InboundL1Block{{{OriginDCID: "dc-l1", Block: l1Block}}}}
	// Registered public key does not match the signer: every txn must be
	// marked invalid rather than erroring out.
	keys := fakePubKeys{keys: map[string]string{"dc-l1": otherKS.PublicKeyHex()}}
	ddss := fakeDDSS{value: 0}
	receipts := &recordingReceiptSender{}

	p := NewLevel2Processor("dc-l2", l2ks, d, src, keys, ddss, receipts, model.HashSHA256)
	if _, err := p.ProcessOnce(ctx); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if len(receipts.receipts) != 1 {
		t.Fatalf("receipts sent = %d, want 1", len(receipts.receipts))
	}
}

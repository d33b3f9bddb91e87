// Copyright 2025 Certen Protocol

package txproc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

type fakeLocator struct {
	byDCID map[string][2]string // dcID -> [region, cloud]
}

func (f fakeLocator) Locate(ctx context.Context, dcID string) (string, string, error) {
	rc := f.byDCID[dcID]
	return rc[0], rc[1], nil
}

type fakeL3Source struct {
	batches []InboundL2Batch
}

func (f *fakeL3Source) Pop(ctx context.Context, max int) ([]InboundL2Batch, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	out := f.batches
	f.batches = nil
	return out, nil
}

func signedL2Block(t *testing.T, ks *keyservice.KeyService, l2DCID, l1DCID string, l2BlockID, l1BlockID int64, ddss float64) *model.L2Block {
	t.Helper()
	block := &model.L2Block{
		BlockHeader: model.BlockHeader{
			DCID:      l2DCID,
			BlockID:   l2BlockID,
			Level:     2,
			Timestamp: 1500,
			Version:   "1",
		},
		L1DCID:         l1DCID,
		L1BlockID:      l1BlockID,
		L1Proof:        "l1-proof",
		CurrentDDSS:    ddss,
		ValidationsMap: map[string]bool{"txn-1": true},
	}
	proof, nonce, err := signBlock(ks, model.HashSHA256, model.ProofSchemeTrust, 0, block.CanonicalFields())
	if err != nil {
		t.Fatalf("signBlock: %v", err)
	}
	block.Proof = proof
	block.Nonce = nonce
	return block
}

func TestLevel3ProcessOnceAggregatesDiversity(t *testing.T) {
	ctx := context.Background()
	l2aKS, _ := keyservice.New("dc-l2-a", "")
	l2bKS, _ := keyservice.New("dc-l2-b", "")
	l3ks, _ := keyservice.New("dc-l3", "")
	d := newTestDAO(t)

	l2a := signedL2Block(t, l2aKS, "dc-l2-a", "dc-l1", 1, 7, 0.5)
	l2b := signedL2Block(t, l2bKS, "dc-l2-b", "dc-l1", 2, 7, 0.3)

	batch := InboundL2Batch{
		L1DCID:    "dc-l1",
		L1BlockID: 7,
		L2Blocks: []InboundL2Block{
			{VerifierDCID: "dc-l2-a", Block: l2a},
			{VerifierDCID: "dc-l2-b", Block: l2b},
		},
	}
	src := &fakeL3Source{batches: []InboundL2Batch{batch}}
	keys := fakePubKeys{keys: map[string]string{
		"dc-l2-a": l2aKS.PublicKeyHex(),
		"dc-l2-b": l2bKS.PublicKeyHex(),
	}}
	locator := fakeLocator{byDCID: map[string][2]string{
		"dc-l2-a": {"us-east", "aws"},
		"dc-l2-b": {"us-west", "gcp"},
	}}
	receipts := &recordingReceiptSender{}

	p := NewLevel3Processor("dc-l3", l3ks, d, src, keys, locator, receipts, model.HashSHA256)
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

	raw, err := d.GetBlock(ctx, "1")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("GetBlock returned empty L3 block")
	}
}

func TestLevel3ProcessOnceSkipsBadProofs(t *testing.T) {
	ctx := context.Background()
	l2aKS, _ := keyservice.New("dc-l2-a", "")
	imposterKS, _ := keyservice.New("dc-imposter", "")
	l3ks, _ := keyservice.New("dc-l3", "")
	d := newTestDAO(t)

	l2a := signedL2Block(t, l2aKS, "dc-l2-a", "dc-l1", 1, 7, 0.5)

	batch := InboundL2Batch{
		L1DCID:    "dc-l1",
		L1BlockID: 7,
		L2Blocks:  []InboundL2Block{{VerifierDCID: "dc-l2-a", Block: l2a}},
	}
	src := &fakeL3Source{batches: []InboundL2Batch{batch}}
	// Registered key doesn't match the actual signer: the L2 proof fails
	// verification and must not be counted toward diversity or DDSS.
	keys := fakePubKeys{keys: map[string]string{"dc-l2-a": imposterKS.PublicKeyHex()}}
	locator := fakeLocator{byDCID: map[string][2]string{"dc-l2-a": {"us-east", "aws"}}}
	receipts := &recordingReceiptSender{}

	p := NewLevel3Processor("dc-l3", l3ks, d, src, keys, locator, receipts, model.HashSHA256)
	if _, err := p.ProcessOnce(ctx); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}

	raw, err := d.GetBlock(ctx, "1")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	var got model.L3Block
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode L3 block: %v", err)
	}
	if got.L2Count != 0 {
		t.Errorf("L2Count = %d, want 0 when the only L2 proof fails verification", got.L2Count)
	}
}

// Copyright 2025 Certen Protocol

package txproc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

type fakeL4Source struct {
	batches []InboundL3Batch
}

func (f *fakeL4Source) Pop(ctx context.Context, max int) ([]InboundL3Batch, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	out := f.batches
	f.batches = nil
	return out, nil
}

func signedL3Block(t *testing.T, ks *keyservice.KeyService, l3DCID, l1DCID string, l3BlockID, l1BlockID int64) *model.L3Block {
	t.Helper()
	block := &model.L3Block{
		BlockHeader: model.BlockHeader{
			DCID:      l3DCID,
			BlockID:   l3BlockID,
			Level:     3,
			Timestamp: 1800,
			Version:   "1",
		},
		L1DCID:    l1DCID,
		L1BlockID: l1BlockID,
		DDSS:      0.8,
		L2Count:   2,
		Regions:   []string{"us-east"},
		Clouds:    []string{"aws"},
		L2Proofs:  []model.L2Proof{{DCID: l1DCID, BlockID: l1BlockID, Proof: "l1-proof"}},
	}
	proof, nonce, err := signBlock(ks, model.HashSHA256, model.ProofSchemeTrust, 0, block.CanonicalFields())
	if err != nil {
		t.Fatalf("signBlock: %v", err)
	}
	block.Proof = proof
	block.Nonce = nonce
	return block
}

func TestLevel4ProcessOnceBuildsValidationsAndStages(t *testing.T) {
	ctx := context.Background()
	l3ks, _ := keyservice.New("dc-l3", "")
	l4ks, _ := keyservice.New("dc-l4", "")
	d := newTestDAO(t)

	l3Block := signedL3Block(t, l3ks, "dc-l3", "dc-l1", 1, 7)
	batch := InboundL3Batch{
		L1DCID:    "dc-l1",
		L1BlockID: 7,
		L3Blocks:  []InboundL3Block{{VerifierDCID: "dc-l3", Block: l3Block}},
	}
	src := &fakeL4Source{batches: []InboundL3Batch{batch}}
	keys := fakePubKeys{keys: map[string]string{"dc-l3": l3ks.PublicKeyHex()}}
	receipts := &recordingReceiptSender{}

	p := NewLevel4Processor("dc-l4", l4ks, d, src, keys, receipts, model.HashSHA256)
	n, err := p.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("ProcessOnce = %d, want 1", n)
	}
	if len(receipts.receipts) != 1 || receipts.receipts[0].Level != 4 {
		t.Fatalf("receipts = %+v, want one level-4 receipt", receipts.receipts)
	}

	raw, err := d.GetBlock(ctx, "1")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	var got model.L4Block
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode L4 block: %v", err)
	}
	if len(got.L3Validations) != 1 || !got.L3Validations[0].Valid {
		t.Errorf("L3Validations = %+v, want one valid entry", got.L3Validations)
	}

	keysStaged, err := d.ListToBroadcast(ctx, dao.PendingToBroadcastBucket)
	if err != nil {
		t.Fatalf("ListToBroadcast: %v", err)
	}
	if len(keysStaged) != 1 {
		t.Fatalf("staged L4 projections = %d, want 1", len(keysStaged))
	}
}

func TestLevel4ProcessOnceDedupsRepeatedL3Proof(t *testing.T) {
	ctx := context.Background()
	l3ks, _ := keyservice.New("dc-l3", "")
	l4ks, _ := keyservice.New("dc-l4", "")
	d := newTestDAO(t)

	l3Block := signedL3Block(t, l3ks, "dc-l3", "dc-l1", 1, 7)
	batch := InboundL3Batch{
		L1DCID:    "dc-l1",
		L1BlockID: 7,
		L3Blocks: []InboundL3Block{
			{VerifierDCID: "dc-l3", Block: l3Block},
			{VerifierDCID: "dc-l3", Block: l3Block}, // duplicate delivery
		},
	}
	src := &fakeL4Source{batches: []InboundL3Batch{batch}}
	keys := fakePubKeys{keys: map[string]string{"dc-l3": l3ks.PublicKeyHex()}}
	receipts := &recordingReceiptSender{}

	p := NewLevel4Processor("dc-l4", l4ks, d, src, keys, receipts, model.HashSHA256)
	if _, err := p.ProcessOnce(ctx); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}

	raw, err := d.GetBlock(ctx, "1")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	var got model.L4Block
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode L4 block: %v", err)
	}
	if len(got.L3Validations) != 1 {
		t.Errorf("L3Validations = %d entries, want 1 after dedup", len(got.L3Validations))
	}
}

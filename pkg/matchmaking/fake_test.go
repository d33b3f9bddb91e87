package matchmaking

import (
	"context"
	"testing"
)

func TestGetRegistrationExcludesGivenNodes(t *testing.T) {
	f := NewFake()
	f.AddCandidate(Registration{DCID: "dc-a", Level: 2, URL: "https://a.example"})
	f.AddCandidate(Registration{DCID: "dc-b", Level: 2, URL: "https://b.example"})

	reg, err := f.GetRegistration(context.Background(), 2, []string{"dc-a"})
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if reg.DCID != "dc-b" {
		t.Errorf("GetRegistration returned %s, want dc-b", reg.DCID)
	}
}

func TestGetRegistrationNoCandidates(t *testing.T) {
	f := NewFake()
	if _, err := f.GetRegistration(context.Background(), 3, nil); err == nil {
		t.Error("GetRegistration = nil error for an empty pool, want ErrNoCandidates")
	}
}

func TestGetOrCreateClaimCheckIsStable(t *testing.T) {
	f := NewFake()
	f.AddCandidate(Registration{DCID: "dc-a", Level: 2, URL: "https://a.example"})
	f.AddCandidate(Registration{DCID: "dc-b", Level: 2, URL: "https://b.example"})

	first, err := f.GetOrCreateClaimCheck(context.Background(), "block-1", 2)
	if err != nil {
		t.Fatalf("GetOrCreateClaimCheck: %v", err)
	}
	second, err := f.GetOrCreateClaimCheck(context.Background(), "block-1", 2)
	if err != nil {
		t.Fatalf("GetOrCreateClaimCheck: %v", err)
	}
	if first.DCID != second.DCID {
		t.Errorf("claim check changed across calls: %s then %s", first.DCID, second.DCID)
	}
}

func TestOverwriteNoResponseNodePicksDifferentNode(t *testing.T) {
	f := NewFake()
	f.AddCandidate(Registration{DCID: "dc-a", Level: 2, URL: "https://a.example"})
	f.AddCandidate(Registration{DCID: "dc-b", Level: 2, URL: "https://b.example"})

	if _, err := f.GetOrCreateClaimCheck(context.Background(), "block-1", 2); err != nil {
		t.Fatalf("GetOrCreateClaimCheck: %v", err)
	}

	replacement, err := f.OverwriteNoResponseNode(context.Background(), "block-1", 2, "dc-a")
	if err != nil {
		t.Fatalf("OverwriteNoResponseNode: %v", err)
	}
	if replacement.DCID != "dc-b" {
		t.Errorf("replacement = %s, want dc-b", replacement.DCID)
	}

	refreshed, err := f.GetOrCreateClaimCheck(context.Background(), "block-1", 2)
	if err != nil {
		t.Fatalf("GetOrCreateClaimCheck: %v", err)
	}
	if refreshed.DCID != "dc-b" {
		t.Errorf("claim check after overwrite = %s, want dc-b", refreshed.DCID)
	}
}

func TestUpdateFundedFlag(t *testing.T) {
	f := NewFake()
	f.AddCandidate(Registration{DCID: "dc-a", Level: 5, URL: "https://a.example"})

	if err := f.UpdateFundedFlag(context.Background(), "dc-a", true); err != nil {
		t.Fatalf("UpdateFundedFlag: %v", err)
	}
	reg, err := f.GetRegistration(context.Background(), 5, nil)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if !reg.Funded {
		t.Error("Funded = false after UpdateFundedFlag(true)")
	}
}

func TestGetDragonchainAddress(t *testing.T) {
	f := NewFake()
	f.AddCandidate(Registration{DCID: "dc-a", Level: 1, URL: "https://a.example"})

	url, err := f.GetDragonchainAddress(context.Background(), "dc-a")
	if err != nil {
		t.Fatalf("GetDragonchainAddress: %v", err)
	}
	if url != "https://a.example" {
		t.Errorf("GetDragonchainAddress = %q, want https://a.example", url)
	}

	if _, err := f.GetDragonchainAddress(context.Background(), "dc-unknown"); err == nil {
		t.Error("GetDragonchainAddress = nil error for unknown node, want error")
	}
}

// Copyright 2025 Certen Protocol

package registry

import (
	"context"
	"testing"

	"github.com/dragonchain-gen2/dragonnet/pkg/coord"
)

func TestRegistryRecordThenLookup(t *testing.T) {
	ctx := context.Background()
	r := New(coord.NewFake())

	if err := r.Record(ctx, "dc-l2-a", "abcd1234", 0.75, "us-east", "aws"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	pubKey, ok, err := r.PublicKeyHex(ctx, "dc-l2-a")
	if err != nil {
		t.Fatalf("PublicKeyHex: %v", err)
	}
	if !ok || pubKey != "abcd1234" {
		t.Errorf("PublicKeyHex = (%q, %v), want (abcd1234, true)", pubKey, ok)
	}

	ddss, err := r.CurrentDDSS(ctx, "dc-l2-a")
	if err != nil {
		t.Fatalf("CurrentDDSS: %v", err)
	}
	if ddss != 0.75 {
		t.Errorf("CurrentDDSS = %v, want 0.75", ddss)
	}

	region, cloud, err := r.Locate(ctx, "dc-l2-a")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if region != "us-east" || cloud != "aws" {
		t.Errorf("Locate = (%q, %q), want (us-east, aws)", region, cloud)
	}
}

func TestRegistryUnknownChainDefaults(t *testing.T) {
	ctx := context.Background()
	r := New(coord.NewFake())

	_, ok, err := r.PublicKeyHex(ctx, "unknown")
	if err != nil {
		t.Fatalf("PublicKeyHex: %v", err)
	}
	if ok {
		t.Error("PublicKeyHex for unrecorded chain returned ok=true")
	}

	ddss, err := r.CurrentDDSS(ctx, "unknown")
	if err != nil {
		t.Fatalf("CurrentDDSS: %v", err)
	}
	if ddss != 0 {
		t.Errorf("CurrentDDSS for unrecorded chain = %v, want 0", ddss)
	}
}

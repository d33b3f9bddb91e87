package interchain

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
)

func TestChainParamsTableMatchesSpecThresholds(t *testing.T) {
	cases := []struct {
		network              string
		blockThreshold       int64
		confirmationsToFinal int64
	}{
		{"bitcoin", 10, 6},
		{"ethereum", 30, 12},
		{"binance", 3, 1},
	}
	for _, c := range cases {
		p, ok := params[c.network]
		if !ok {
			t.Fatalf("no chainParams entry for %s", c.network)
		}
		if p.blockThreshold != c.blockThreshold {
			t.Errorf("%s blockThreshold = %d, want %d", c.network, p.blockThreshold, c.blockThreshold)
		}
		if p.confirmationsToFinal != c.confirmationsToFinal {
			t.Errorf("%s confirmationsToFinal = %d, want %d", c.network, p.confirmationsToFinal, c.confirmationsToFinal)
		}
	}
}

func TestEVMAdapterNetworkString(t *testing.T) {
	privHex := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f36231"

	eth, err := NewEVMAdapter("http://127.0.0.1:8545", 1, privHex, "ethereum")
	if err != nil {
		t.Fatalf("NewEVMAdapter: %v", err)
	}
	if got := eth.NetworkString(); got != "ethereum mainnet" {
		t.Errorf("NetworkString() = %q, want %q", got, "ethereum mainnet")
	}

	bnb, err := NewBNBAdapter("http://127.0.0.1:8545", 56, privHex)
	if err != nil {
		t.Fatalf("NewBNBAdapter: %v", err)
	}
	if got := bnb.NetworkString(); got != "binance smart chain mainnet" {
		t.Errorf("NetworkString() = %q, want %q", got, "binance smart chain mainnet")
	}
}

func TestEVMAdapterAddressIsDeterministic(t *testing.T) {
	privHex := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f36231"
	a, err := NewEVMAdapter("http://127.0.0.1:8545", 1, privHex, "ethereum")
	if err != nil {
		t.Fatalf("NewEVMAdapter: %v", err)
	}
	b, err := NewEVMAdapter("http://127.0.0.1:8545", 1, privHex, "ethereum")
	if err != nil {
		t.Fatalf("NewEVMAdapter: %v", err)
	}
	if a.address() != b.address() {
		t.Error("same private key produced different addresses")
	}
}

func TestBTCAdapterRejectsOversizedOpReturnPayload(t *testing.T) {
	privKeyBytes := make([]byte, 32)
	for i := range privKeyBytes {
		privKeyBytes[i] = byte(i + 1)
	}
	a, err := NewBTCAdapter("http://127.0.0.1:8332", "", "", hex.EncodeToString(privKeyBytes), false)
	if err != nil {
		t.Fatalf("NewBTCAdapter: %v", err)
	}

	oversized := make([]byte, 81)
	if _, err := a.SignTransaction(context.Background(), oversized); err == nil {
		t.Error("SignTransaction accepted an 81-byte OP_RETURN payload, want error")
	}
}

func TestBTCAdapterNetworkString(t *testing.T) {
	privKeyBytes := make([]byte, 32)
	for i := range privKeyBytes {
		privKeyBytes[i] = byte(i + 1)
	}
	mainnet, err := NewBTCAdapter("http://127.0.0.1:8332", "", "", hex.EncodeToString(privKeyBytes), false)
	if err != nil {
		t.Fatalf("NewBTCAdapter: %v", err)
	}
	if !strings.Contains(mainnet.NetworkString(), "mainnet") {
		t.Errorf("NetworkString() = %q, want mainnet", mainnet.NetworkString())
	}

	testnet, err := NewBTCAdapter("http://127.0.0.1:18332", "", "", hex.EncodeToString(privKeyBytes), true)
	if err != nil {
		t.Fatalf("NewBTCAdapter: %v", err)
	}
	if !strings.Contains(testnet.NetworkString(), "testnet") {
		t.Errorf("NetworkString() = %q, want testnet", testnet.NetworkString())
	}
}

func TestBTCAdapterPrivateKeyRoundtrip(t *testing.T) {
	privKeyBytes := make([]byte, 32)
	for i := range privKeyBytes {
		privKeyBytes[i] = byte(i + 1)
	}
	a, err := NewBTCAdapter("http://127.0.0.1:8332", "", "", hex.EncodeToString(privKeyBytes), false)
	if err != nil {
		t.Fatalf("NewBTCAdapter: %v", err)
	}
	if hex.EncodeToString(a.GetPrivateKey()) != hex.EncodeToString(privKeyBytes) {
		t.Error("GetPrivateKey did not round-trip the original key bytes")
	}
}

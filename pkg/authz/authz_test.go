// Copyright 2025 Certen Protocol

package authz

import (
	"context"
	"testing"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/coord"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

type staticKeys struct {
	keyID     string
	secretKey string
	allowed   bool
}

func (s staticKeys) Lookup(ctx context.Context, keyID string) (string, bool, error) {
	if keyID != s.keyID {
		return "", false, nil
	}
	return s.secretKey, s.allowed, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCanonicalStringMatchesExpectedShape(t *testing.T) {
	got, err := CanonicalString("GET", "/somepath", "test_dcid", "timestamp_str", "mimetype", []byte("some content"), model.HashSHA256)
	if err != nil {
		t.Fatalf("CanonicalString: %v", err)
	}
	want := "GET\n/somepath\ntest_dcid\ntimestamp_str\nmimetype\n"
	if got[:len(want)] != want {
		t.Errorf("CanonicalString = %q, want prefix %q", got, want)
	}
}

func TestSignThenVerifySucceeds(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	timestamp := now.Format(time.RFC3339)
	body := []byte(`{"thing":"test"}`)

	auth, err := Sign("key-1", "sekrit", "POST", "/v1/enqueue", "receiver-dc", timestamp, "application/json", body, model.HashSHA256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	v := NewVerifier("receiver-dc", staticKeys{keyID: "key-1", secretKey: "sekrit", allowed: true}, nil, WithClock(fixedClock(now)))
	if err := v.Verify(context.Background(), auth, "POST", "/v1/enqueue", "receiver-dc", timestamp, "application/json", body); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsWrongDragonchainID(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	v := NewVerifier("test_dcid", staticKeys{}, nil, WithClock(fixedClock(now)))
	err := v.Verify(context.Background(), "DC1-HMAC-SHA256 id:sig", "GET", "/path", "not_matching", now.Format(time.RFC3339), "", nil)
	if err == nil {
		t.Fatal("expected error for mismatched dragonchain id")
	}
}

func TestVerifyRejectsUnsupportedVersion(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	v := NewVerifier("test_dcid", staticKeys{}, nil, WithClock(fixedClock(now)))
	err := v.Verify(context.Background(), "DC9-HMAC", "GET", "/path", "test_dcid", now.Format(time.RFC3339), "", nil)
	if err == nil {
		t.Fatal("expected unsupported version error")
	}
}

func TestVerifyRejectsMalformedAuthHeaderWithoutColon(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	v := NewVerifier("test_dcid", staticKeys{}, nil, WithClock(fixedClock(now)))
	err := v.Verify(context.Background(), "DC1-HMAC-SHA256 thing", "GET", "/path", "test_dcid", now.Format(time.RFC3339), "", nil)
	if err == nil {
		t.Fatal("expected malformed header error")
	}
}

func TestVerifyRejectsMalformedAuthHeaderWithoutSpace(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	v := NewVerifier("test_dcid", staticKeys{}, nil, WithClock(fixedClock(now)))
	err := v.Verify(context.Background(), "bad_auth", "GET", "/path", "test_dcid", now.Format(time.RFC3339), "", nil)
	if err == nil {
		t.Fatal("expected malformed header error")
	}
}

func TestVerifyRejectsUnsupportedHash(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	v := NewVerifier("test_dcid", staticKeys{}, nil, WithClock(fixedClock(now)))
	err := v.Verify(context.Background(), "DC1-HMAC-INVALID thing", "GET", "/path", "test_dcid", now.Format(time.RFC3339), "", nil)
	if err == nil {
		t.Fatal("expected unsupported hash error")
	}
}

func TestVerifyRejectsSkewedTimestamp(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	v := NewVerifier("test_dcid", staticKeys{keyID: "id", secretKey: "key", allowed: true}, nil, WithClock(fixedClock(now)))
	err := v.Verify(context.Background(), "DC1-HMAC-SHA256 id:sig", "GET", "/path", "test_dcid", "2019-11-14T09:05:25Z", "", nil)
	if err == nil {
		t.Fatal("expected timestamp skew error")
	}
}

func TestVerifyRejectsInvalidHMAC(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	v := NewVerifier("test_dcid", staticKeys{keyID: "id", secretKey: "key", allowed: true}, nil, WithClock(fixedClock(now)))
	err := v.Verify(context.Background(), "DC1-HMAC-SHA256 id:badsignature", "GET", "/path", "test_dcid", now.Format(time.RFC3339), "", []byte{})
	if err == nil {
		t.Fatal("expected invalid hmac error")
	}
}

func TestVerifyRejectsReplayedSignature(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	timestamp := now.Format(time.RFC3339)
	auth, err := Sign("id", "key", "GET", "/path", "test_dcid", timestamp, "", nil, model.HashSHA256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	replay := NewCoordReplayCache(coord.NewFake())
	v := NewVerifier("test_dcid", staticKeys{keyID: "id", secretKey: "key", allowed: true}, replay, WithClock(fixedClock(now)))

	if err := v.Verify(context.Background(), auth, "GET", "/path", "test_dcid", timestamp, "", nil); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if err := v.Verify(context.Background(), auth, "GET", "/path", "test_dcid", timestamp, "", nil); err == nil {
		t.Fatal("expected replay rejection on second verify")
	}
}

func TestGenerateAuthenticatedRequestOmitsDragonchainHeaderForMatchmaking(t *testing.T) {
	now := time.Date(2018, 11, 14, 9, 5, 25, 0, time.UTC)
	req, err := GenerateAuthenticatedRequest("id", "key", "matchmaking", "/v1/register", []byte(`{}`), model.HashSHA256, now)
	if err != nil {
		t.Fatalf("GenerateAuthenticatedRequest: %v", err)
	}
	if _, ok := req.Headers["dragonchain"]; ok {
		t.Error("matchmaking requests must not carry a dragonchain header")
	}
	if req.Headers["Authorization"] == "" {
		t.Error("expected a non-empty Authorization header")
	}
}

// Copyright 2025 Certen Protocol

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/dragonchain-gen2/dragonnet/pkg/authz"
	"github.com/dragonchain-gen2/dragonnet/pkg/broadcast"
	"github.com/dragonchain-gen2/dragonnet/pkg/coord"
	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/kvdb"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
	"github.com/dragonchain-gen2/dragonnet/pkg/store"
)

const testHashAlgo = model.HashSHA256

func newTestProcessor(t *testing.T) *broadcast.Processor {
	t.Helper()
	c := coord.NewFake()
	adapter := kvdb.NewKVAdapter(dbm.NewMemDB())
	d := dao.NewBlockDAO(store.NewKVStore(adapter), nil)
	return broadcast.NewProcessor(c, d, nil)
}

func newTestDAO(t *testing.T) *dao.BlockDAO {
	t.Helper()
	adapter := kvdb.NewKVAdapter(dbm.NewMemDB())
	return dao.NewBlockDAO(store.NewKVStore(adapter), nil)
}

type fakeKeys struct {
	secrets map[string]string
}

func (f fakeKeys) Lookup(ctx context.Context, keyID string) (string, bool, error) {
	secret, ok := f.secrets[keyID]
	return secret, ok, nil
}

type fakeReplay struct {
	seen map[string]bool
}

func (f *fakeReplay) SeenOrRecord(ctx context.Context, signature string) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[signature] {
		return true, nil
	}
	f.seen[signature] = true
	return false, nil
}

// signedRequest builds an http.Request authenticated as a peer calling
// receiverDCID's server, matching what authz.GenerateAuthenticatedRequest
// produces for pkg/broadcast's real outbound calls.
func signedRequest(t *testing.T, method, path, receiverDCID, keyID, secretKey string, body []byte, now time.Time) *http.Request {
	t.Helper()
	signed, err := authz.GenerateAuthenticatedRequest(keyID, secretKey, receiverDCID, path, body, testHashAlgo, now)
	if err != nil {
		t.Fatalf("GenerateAuthenticatedRequest: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range signed.Headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestHandleHealthReportsOK(t *testing.T) {
	p := newTestProcessor(t)
	v := authz.NewVerifier("dc-l2", fakeKeys{}, nil)
	srv := NewServer("dc-l2", 2, v, p)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["status"] != "ok" {
		t.Errorf("status field = %q, want ok", got["status"])
	}
}

func TestHandleStatusReportsIdentityAndUptime(t *testing.T) {
	p := newTestProcessor(t)
	v := authz.NewVerifier("dc-l2", fakeKeys{}, nil)
	start := time.Unix(1000, 0)
	srv := NewServer("dc-l2", 2, v, p, WithClock(func() time.Time { return start }))
	srv.now = func() time.Time { return time.Unix(1090, 0) }

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.HandleStatus(rec, req)

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["dc_id"] != "dc-l2" {
		t.Errorf("dc_id = %v, want dc-l2", got["dc_id"])
	}
	if got["uptime_seconds"].(float64) != 90 {
		t.Errorf("uptime_seconds = %v, want 90", got["uptime_seconds"])
	}
}

// Copyright 2025 Certen Protocol

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/dragonchain-gen2/dragonnet/pkg/authz"
)

type recordingRegistrar struct {
	registered []interchainAuthRegisterRequest
}

func (r *recordingRegistrar) Register(ctx context.Context, dcID, keyID, secretKey string) error {
	r.registered = append(r.registered, interchainAuthRegisterRequest{DCID: dcID, KeyID: keyID, SecretKey: secretKey})
	return nil
}

func TestInterchainAuthRegisterHandlerStoresKeyUnauthenticated(t *testing.T) {
	p := newTestProcessor(t)
	v := authz.NewVerifier("dc-l1", fakeKeys{}, nil)
	srv := NewServer("dc-l1", 1, v, p)
	registrar := &recordingRegistrar{}
	h := NewInterchainAuthRegisterHandler(srv, registrar)

	body, err := json.Marshal(interchainAuthRegisterRequest{DCID: "dc-l2", KeyID: "key-1", SecretKey: "secret-1"})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", "/v1/interchain-auth-register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(registrar.registered) != 1 || registrar.registered[0].DCID != "dc-l2" {
		t.Fatalf("registered = %+v, want one entry for dc-l2", registrar.registered)
	}
}

func TestInterchainAuthRegisterHandlerUnavailableWithoutRegistry(t *testing.T) {
	p := newTestProcessor(t)
	v := authz.NewVerifier("dc-l1", fakeKeys{}, nil)
	srv := NewServer("dc-l1", 1, v, p)
	h := NewInterchainAuthRegisterHandler(srv, nil)

	req := httptest.NewRequest("POST", "/v1/interchain-auth-register", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

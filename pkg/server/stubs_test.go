// Copyright 2025 Certen Protocol

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/dragonchain-gen2/dragonnet/pkg/authz"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
)

type recordingL1Queue struct {
	got []*model.Transaction
}

func (q *recordingL1Queue) Push(ctx context.Context, txn *model.Transaction) error {
	q.got = append(q.got, txn)
	return nil
}

func TestTransactionHandlerAdmitsAndPushes(t *testing.T) {
	p := newTestProcessor(t)
	v := authz.NewVerifier("dc-l1", fakeKeys{}, nil)
	srv := NewServer("dc-l1", 1, v, p)
	queue := &recordingL1Queue{}
	h := NewTransactionHandler(srv, queue)

	body, err := json.Marshal(transactionRequest{TxnType: "transfer", Payload: json.RawMessage(`{"amount":1}`)})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", "/v1/transaction", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(queue.got) != 1 || queue.got[0].TxnType != "transfer" {
		t.Fatalf("queue.got = %+v, want one transfer transaction", queue.got)
	}
}

func TestTransactionHandlerUnavailableWithoutQueue(t *testing.T) {
	p := newTestProcessor(t)
	v := authz.NewVerifier("dc-l1", fakeKeys{}, nil)
	srv := NewServer("dc-l1", 1, v, p)
	h := NewTransactionHandler(srv, nil)

	req := httptest.NewRequest("POST", "/v1/transaction", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestBlockHandlerReturnsPersistedBlock(t *testing.T) {
	p := newTestProcessor(t)
	d := newTestDAO(t)
	v := authz.NewVerifier("dc-l1", fakeKeys{}, nil)
	srv := NewServer("dc-l1", 1, v, p, WithBlockDAO(d))
	h := NewBlockHandler(srv)

	if err := d.PutBlock(context.Background(), "7", 1, "dc-l1", 100, []byte(`{"block_id":7}`)); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	req := httptest.NewRequest("GET", "/v1/block/7", nil)
	req.SetPathValue("blockID", "7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestVerificationsHandlerReportsCurrentLevelAndVerifiers(t *testing.T) {
	p := newTestProcessor(t)
	ctx := context.Background()
	if err := p.ScheduleForBroadcast(ctx, "7", 1000); err != nil {
		t.Fatalf("ScheduleForBroadcast: %v", err)
	}
	if _, err := p.RecordVerificationReceipt(ctx, "7", 2, "dc-l2-a"); err != nil {
		t.Fatalf("RecordVerificationReceipt: %v", err)
	}

	v := authz.NewVerifier("dc-l1", fakeKeys{}, nil)
	srv := NewServer("dc-l1", 1, v, p)
	h := NewVerificationsHandler(srv)

	req := httptest.NewRequest("GET", "/v1/verifications/7", nil)
	req.SetPathValue("blockID", "7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["current_level"].(float64) != 2 {
		t.Errorf("current_level = %v, want 2 (quorum met but not yet promoted)", got["current_level"])
	}
	verifications, ok := got["verifications"].(map[string]interface{})
	if !ok {
		t.Fatalf("verifications field missing or wrong type: %+v", got)
	}
	level2, ok := verifications["2"].([]interface{})
	if !ok || len(level2) != 1 || level2[0] != "dc-l2-a" {
		t.Errorf("verifications[2] = %v, want [dc-l2-a]", verifications["2"])
	}
}

func TestNotImplementedHandlerReturns501(t *testing.T) {
	h := NotImplementedHandler("smart contract runtime")
	req := httptest.NewRequest("POST", "/v1/contract", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != 501 {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

// Copyright 2025 Certen Protocol

package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPPosterSendsHeadersAndBody(t *testing.T) {
	var gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := NewHTTPPoster()
	status, respBody, err := p.Post(context.Background(), srv.URL, map[string]string{"Authorization": "DC1-HMAC-SHA256 x:y"}, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	if gotHeader != "DC1-HMAC-SHA256 x:y" {
		t.Errorf("server saw Authorization = %q", gotHeader)
	}
	if gotBody != `{"a":1}` {
		t.Errorf("server saw body = %q", gotBody)
	}
	if string(respBody) != `{"ok":true}` {
		t.Errorf("respBody = %q", respBody)
	}
}

func TestHTTPPosterReportsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPPoster()
	status, _, err := p.Post(context.Background(), srv.URL, nil, []byte(`{}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if status != 500 {
		t.Fatalf("status = %d, want 500", status)
	}
}

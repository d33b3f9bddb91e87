// Copyright 2025 Certen Protocol
//
// Server is C10: the HTTP surface every Dragon Net node exposes for the
// inter-node calls C7/C8/C9 need (§6.1) — enqueue, receipt, claim-check,
// interchain-auth-register — plus a thin health/status surface and
// stubs for the user-facing endpoints whose business logic is out of
// scope. It follows the pkg/server idiom of plain handler structs
// built over constructor-injected collaborators, wired onto a stdlib
// http.ServeMux in the composition root rather than a router
// framework.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/dragonchain-gen2/dragonnet/pkg/authz"
	"github.com/dragonchain-gen2/dragonnet/pkg/broadcast"
	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
)

// Server holds the collaborators every handler needs: this node's
// identity, the request verifier, and the broadcast state machine.
// Handlers that need a narrower collaborator (a queue, a key
// registrar) take it by constructor argument instead of living on
// Server, so a node only wires what its level actually uses.
type Server struct {
	dcID      string
	level     int
	verifier  *authz.Verifier
	processor *broadcast.Processor
	dao       *dao.BlockDAO
	logger    *log.Logger
	now       func() time.Time
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server's logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock overrides the server's notion of "now" (for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithBlockDAO wires a BlockDAO so /v1/status and /v1/block can read
// persisted blocks. A node that never serves those reads can omit it.
func WithBlockDAO(d *dao.BlockDAO) Option {
	return func(s *Server) { s.dao = d }
}

// NewServer builds a Server for a node identified by dcID, running at
// level, verifying inbound requests with verifier and tracking
// in-flight blocks via processor.
func NewServer(dcID string, level int, verifier *authz.Verifier, processor *broadcast.Processor, opts ...Option) *Server {
	s := &Server{
		dcID:      dcID,
		level:     level,
		verifier:  verifier,
		processor: processor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[server] ", log.LstdFlags)
	}
	s.startedAt = s.now()
	return s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// HandleHealth reports this process is up, independent of whether it
// can currently reach storage or its peers.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus reports this node's identity, level, and uptime, plus
// the highest L5 block id it has produced when a BlockDAO is wired
// (L5 nodes only — every other level's GetLastBlock tracks its own
// level's block id instead, which isn't a field HandleStatus claims to
// report).
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"dc_id":          s.dcID,
		"level":          s.level,
		"uptime_seconds": int64(s.now().Sub(s.startedAt).Seconds()),
	}
	if s.dao != nil && s.level == 5 {
		if lastID, err := s.dao.GetLastBlock(r.Context()); err == nil {
			resp["last_block_id"] = lastID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// authenticateRequest verifies r's Authorization header names this
// node as receiver and signs correctly over the (already-read) body.
// Handlers that require authentication call this before acting on the
// request.
func (s *Server) authenticateRequest(r *http.Request, body []byte) error {
	return s.verifier.Verify(
		r.Context(),
		r.Header.Get("Authorization"),
		r.Method,
		r.URL.Path,
		r.Header.Get("dragonchain"),
		r.Header.Get("timestamp"),
		r.Header.Get("Content-Type"),
		body,
	)
}

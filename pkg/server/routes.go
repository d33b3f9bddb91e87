// Copyright 2025 Certen Protocol
package server

import "net/http"

// Routes bundles the optional collaborators RegisterRoutes wires onto
// a mux. Every field is optional; a nil collaborator's endpoint is
// either omitted (core endpoints, which a misconfigured deployment
// should fail loudly by 404ing rather than silently accept) or
// registered against a handler that reports its own unavailability
// (the stub endpoints, the same main.go idiom of gating batch API
// registration on whether the database actually connected).
type Routes struct {
	Enqueue             *EnqueueHandler
	Receipt             *ReceiptHandler
	Claim               *ClaimHandler
	InterchainAuthRegister *InterchainAuthRegisterHandler
	Transaction         *TransactionHandler
	Block               *BlockHandler
	Verifications       *VerificationsHandler
}

// RegisterRoutes wires s's health/status endpoints and every non-nil
// handler in routes onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux, routes Routes) {
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /v1/status", s.HandleStatus)

	if routes.Enqueue != nil {
		mux.Handle("POST /v1/enqueue", routes.Enqueue)
	}
	if routes.Receipt != nil {
		mux.Handle("POST /v1/receipt", routes.Receipt)
	}
	if routes.Claim != nil {
		mux.Handle("GET /v1/claim/{blockID}", routes.Claim)
	}
	if routes.InterchainAuthRegister != nil {
		mux.Handle("POST /v1/interchain-auth-register", routes.InterchainAuthRegister)
	}
	if routes.Transaction != nil {
		mux.Handle("POST /v1/transaction", routes.Transaction)
	}
	if routes.Block != nil {
		mux.Handle("GET /v1/block/{blockID}", routes.Block)
	}
	if routes.Verifications != nil {
		mux.Handle("GET /v1/verifications/{blockID}", routes.Verifications)
	}

	mux.HandleFunc("GET /v1/interchains/", NotImplementedHandler("interchain registry browsing"))
	mux.HandleFunc("POST /v1/api-key", NotImplementedHandler("api key management"))
	mux.HandleFunc("GET /v1/api-key/", NotImplementedHandler("api key management"))
	mux.HandleFunc("POST /v1/contract", NotImplementedHandler("smart contract runtime"))
	mux.HandleFunc("GET /v1/contract/", NotImplementedHandler("smart contract runtime"))
}

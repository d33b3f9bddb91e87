// Copyright 2025 Certen Protocol
//
// Binance Smart Chain is EVM-compatible, so it reuses EVMAdapter wholesale;
// this file only supplies the BNB-flavored constructor (spec §6.4
// BINANCE_RPC_URL).

package interchain

// NewBNBAdapter dials a BNB Smart Chain RPC endpoint.
func NewBNBAdapter(rpcURL string, chainID int64, privateKeyHex string) (*EVMAdapter, error) {
	return NewEVMAdapter(rpcURL, chainID, privateKeyHex, "binance")
}

// Copyright 2025 Certen Protocol
//
// EVMAdapter implements Adapter for EVM-compatible chains. Ethereum and
// Binance Smart Chain share this implementation since BNB is EVM-
// compatible; only the network string, chain id, and chainParams differ
// (spec §4.3, §6.4 ETHEREUM_RPC_URL / BINANCE_RPC_URL).

package interchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	ethgo "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
	"github.com/dragonchain-gen2/dragonnet/pkg/ethereum"
)

// EVMAdapter anchors L5 hashes to an EVM chain by embedding them in the
// data field of a zero-value self-transfer, the cheapest payload-bearing
// transaction an EVM chain supports.
type EVMAdapter struct {
	client     *ethereum.Client
	privateKey *ecdsa.PrivateKey
	network    string
	params     chainParams
}

// NewEVMAdapter dials rpcURL and returns an adapter keyed for network
// ("ethereum" or "binance").
func NewEVMAdapter(rpcURL string, chainID int64, privateKeyHex, network string) (*EVMAdapter, error) {
	client, err := ethereum.NewClient(rpcURL, chainID)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", network, err)
	}
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse %s private key: %w", network, err)
	}
	p, ok := params[network]
	if !ok {
		return nil, fmt.Errorf("unknown EVM network %q", network)
	}
	return &EVMAdapter{client: client, privateKey: privateKey, network: network, params: p}, nil
}

func (a *EVMAdapter) NetworkString() string {
	switch a.network {
	case "ethereum":
		return "ethereum mainnet"
	case "binance":
		return "binance smart chain mainnet"
	default:
		return a.network
	}
}

func (a *EVMAdapter) Ping(ctx context.Context) error {
	return a.client.Health(ctx)
}

func (a *EVMAdapter) address() common.Address {
	return crypto.PubkeyToAddress(a.privateKey.PublicKey)
}

func (a *EVMAdapter) CheckBalance(ctx context.Context) (*big.Int, error) {
	return a.client.GetBalance(ctx, a.address())
}

func (a *EVMAdapter) GetTransactionFeeEstimate(ctx context.Context) (*big.Int, error) {
	gasPrice, err := a.client.GetGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	// The estimate covers the base 21000 gas of a transfer only; the
	// calldata gas of the anchored payload is not included.
	const baseGas = 21000
	return new(big.Int).Mul(gasPrice, big.NewInt(baseGas)), nil
}

func (a *EVMAdapter) GetCurrentBlock(ctx context.Context) (int64, error) {
	return a.client.GetLatestBlockNumber(ctx)
}

// SignTransaction builds and signs a zero-value self-transfer carrying
// payload as calldata.
func (a *EVMAdapter) SignTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	from := a.address()
	nonce, err := a.client.GetNonce(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := a.client.GetGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	gasLimit, err := a.client.EstimateGas(ctx, ethgo.CallMsg{From: from, Data: payload})
	if err != nil {
		gasLimit = 60000 // conservative fallback if estimation fails
	}

	tx := types.NewTransaction(nonce, from, big.NewInt(0), gasLimit, gasPrice, payload)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(a.client.GetChainID()), a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal signed transaction: %w", err)
	}
	return raw, nil
}

func (a *EVMAdapter) PublishL5HashToPublicNetwork(ctx context.Context, signedTx []byte) (string, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(signedTx); err != nil {
		return "", fmt.Errorf("unmarshal signed transaction: %w", err)
	}
	if err := a.client.GetClient().SendTransaction(ctx, &tx); err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func (a *EVMAdapter) IsTransactionConfirmed(ctx context.Context, txHash string) (ConfirmationStatus, error) {
	_, isPending, err := a.client.GetClient().TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return StatusNotFound, dnerrors.ErrTransactionNotFound
	}
	if isPending {
		return StatusPending, nil
	}

	txReceipt, err := a.client.GetClient().TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return StatusPending, nil
	}
	current, err := a.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return StatusPending, err
	}
	confirmations := current - int64(txReceipt.BlockNumber.Uint64())
	if confirmations >= a.params.confirmationsToFinal {
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

func (a *EVMAdapter) ShouldRetryBroadcast(ctx context.Context, publishedAtBlock int64) (bool, error) {
	current, err := a.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return false, err
	}
	return current-publishedAtBlock >= a.params.blockThreshold, nil
}

func (a *EVMAdapter) GetPrivateKey() []byte {
	return crypto.FromECDSA(a.privateKey)
}

func (a *EVMAdapter) ExportAsAtRest() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"network":%q,"private_key":"0x%x"}`, a.network, a.GetPrivateKey())), nil
}

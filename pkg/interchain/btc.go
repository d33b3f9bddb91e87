// Copyright 2025 Certen Protocol
//
// BTCAdapter implements Adapter for Bitcoin by speaking a bitcoind-
// compatible JSON-RPC interface directly (no full node libraries beyond
// key/address/transaction encoding). Anchors are embedded in an OP_RETURN
// output (spec §4.3, §6.4 BITCOIN_RPC_URL).

package interchain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"

	"github.com/dragonchain-gen2/dragonnet/pkg/dnerrors"
)

// BTCAdapter anchors L5 hashes to Bitcoin via a bitcoind-compatible JSON-RPC
// node.
type BTCAdapter struct {
	rpc        *btcRPCClient
	privateKey *btcec.PrivateKey
	netParams  *chaincfg.Params
	params     chainParams
}

// NewBTCAdapter connects to a bitcoind-compatible RPC endpoint authenticated
// with user/pass basic auth, signing with privateKeyHex (raw hex only;
// WIF-encoded keys are not accepted).
func NewBTCAdapter(rpcURL, rpcUser, rpcPass, privateKeyHex string, testnet bool) (*BTCAdapter, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse bitcoin private key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(keyBytes)

	net := &chaincfg.MainNetParams
	if testnet {
		net = &chaincfg.TestNet3Params
	}

	return &BTCAdapter{
		rpc:        newBTCRPCClient(rpcURL, rpcUser, rpcPass),
		privateKey: priv,
		netParams:  net,
		params:     params["bitcoin"],
	}, nil
}

func (a *BTCAdapter) NetworkString() string {
	if a.netParams == &chaincfg.TestNet3Params {
		return "bitcoin testnet3"
	}
	return "bitcoin mainnet"
}

func (a *BTCAdapter) address() (*btcutil.AddressPubKeyHash, error) {
	pubKeyHash := btcutil.Hash160(a.privateKey.PubKey().SerializeCompressed())
	return btcutil.NewAddressPubKeyHash(pubKeyHash, a.netParams)
}

func (a *BTCAdapter) Ping(ctx context.Context) error {
	_, err := a.rpc.call(ctx, "getblockcount", nil)
	return err
}

func (a *BTCAdapter) CheckBalance(ctx context.Context) (*big.Int, error) {
	utxos, err := a.listUnspent(ctx)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, u := range utxos {
		total.Add(total, satoshis(u.Amount))
	}
	return total, nil
}

func (a *BTCAdapter) GetTransactionFeeEstimate(ctx context.Context) (*big.Int, error) {
	var result struct {
		FeeRate float64 `json:"feerate"`
	}
	raw, err := a.rpc.call(ctx, "estimatesmartfee", []interface{}{6})
	if err != nil {
		return nil, fmt.Errorf("estimatesmartfee: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode fee estimate: %w", err)
	}
	// feerate is BTC/kB; an anchor transaction with one OP_RETURN output
	// runs roughly 250 vbytes.
	const anchorTxVBytes = 250
	feeRateSatPerByte := result.FeeRate * 1e8 / 1000
	return big.NewInt(int64(feeRateSatPerByte * anchorTxVBytes)), nil
}

func (a *BTCAdapter) GetCurrentBlock(ctx context.Context) (int64, error) {
	raw, err := a.rpc.call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}
	var height int64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, fmt.Errorf("decode block count: %w", err)
	}
	return height, nil
}

// SignTransaction assembles and signs a transaction spending available
// UTXOs, with one OP_RETURN output carrying payload and the remainder
// returned to this node's own address.
func (a *BTCAdapter) SignTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) > 80 {
		return nil, fmt.Errorf("OP_RETURN payload %d bytes exceeds the 80-byte standardness limit", len(payload))
	}
	utxos, err := a.listUnspent(ctx)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return nil, fmt.Errorf("no spendable bitcoin UTXOs")
	}
	fee, err := a.GetTransactionFeeEstimate(ctx)
	if err != nil {
		return nil, err
	}

	addr, err := a.address()
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	changeScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("build change script: %w", err)
	}
	opReturnScript, err := txscript.NullDataScript(payload)
	if err != nil {
		return nil, fmt.Errorf("build OP_RETURN script: %w", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	input := 0
	var total int64
	var prevScripts [][]byte
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("parse utxo txid: %w", err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
		prevScripts = append(prevScripts, changeScript)
		total += satoshis(u.Amount).Int64()
		input++
		if total > fee.Int64() {
			break
		}
	}

	tx.AddTxOut(wire.NewTxOut(0, opReturnScript))
	change := total - fee.Int64()
	if change > 0 {
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	for i := range tx.TxIn {
		sigScript, err := txscript.SignatureScript(tx, i, prevScripts[i], txscript.SigHashAll, a.privateKey, true)
		if err != nil {
			return nil, fmt.Errorf("sign input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *BTCAdapter) PublishL5HashToPublicNetwork(ctx context.Context, signedTx []byte) (string, error) {
	raw, err := a.rpc.call(ctx, "sendrawtransaction", []interface{}{hex.EncodeToString(signedTx)})
	if err != nil {
		return "", fmt.Errorf("sendrawtransaction: %w", err)
	}
	var txid string
	if err := json.Unmarshal(raw, &txid); err != nil {
		return "", fmt.Errorf("decode txid: %w", err)
	}
	return txid, nil
}

func (a *BTCAdapter) IsTransactionConfirmed(ctx context.Context, txHash string) (ConfirmationStatus, error) {
	var result struct {
		Confirmations int64 `json:"confirmations"`
	}
	raw, err := a.rpc.call(ctx, "gettransaction", []interface{}{txHash})
	if err != nil {
		return StatusNotFound, dnerrors.ErrTransactionNotFound
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return StatusPending, fmt.Errorf("decode transaction: %w", err)
	}
	if result.Confirmations >= a.params.confirmationsToFinal {
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

func (a *BTCAdapter) ShouldRetryBroadcast(ctx context.Context, publishedAtBlock int64) (bool, error) {
	current, err := a.GetCurrentBlock(ctx)
	if err != nil {
		return false, err
	}
	return current-publishedAtBlock >= a.params.blockThreshold, nil
}

func (a *BTCAdapter) GetPrivateKey() []byte {
	return a.privateKey.Serialize()
}

func (a *BTCAdapter) ExportAsAtRest() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"network":"bitcoin","private_key":"%s"}`, hex.EncodeToString(a.GetPrivateKey()))), nil
}

type btcUTXO struct {
	TxID   string  `json:"txid"`
	Vout   uint32  `json:"vout"`
	Amount float64 `json:"amount"`
}

func (a *BTCAdapter) listUnspent(ctx context.Context) ([]btcUTXO, error) {
	raw, err := a.rpc.call(ctx, "listunspent", []interface{}{1, 9999999})
	if err != nil {
		return nil, fmt.Errorf("listunspent: %w", err)
	}
	var utxos []btcUTXO
	if err := json.Unmarshal(raw, &utxos); err != nil {
		return nil, fmt.Errorf("decode unspent outputs: %w", err)
	}
	return utxos, nil
}

func satoshis(btc float64) *big.Int {
	return big.NewInt(int64(btc * 1e8))
}

// btcRPCClient is a minimal JSON-RPC 1.0 client for bitcoind.
type btcRPCClient struct {
	url        string
	user, pass string
	httpClient *http.Client
}

func newBTCRPCClient(url, user, pass string) *btcRPCClient {
	return &btcRPCClient{url: url, user: user, pass: pass, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *btcRPCClient) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: "dragonnet", Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

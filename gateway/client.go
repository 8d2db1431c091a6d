// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gateway provides per-chain JSON-RPC handles for the executor. A
// Client wraps one chain endpoint; a Registry keys clients by chain name.
// Simulated reverts surface as RevertError, anything else as a wrapped
// transport error.
package gateway

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// callTimeout bounds every single RPC round trip so a stalled node cannot
// hold a pipeline run beyond its deadline budget.
const callTimeout = 15 * time.Second

// Node describes one configured chain endpoint.
type Node struct {
	ChainName string
	RPCURL    string
	ChainID   uint64
}

// CallMsg is the argument set of a read-only contract call.
type CallMsg struct {
	From     common.Address
	To       common.Address
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

func (m *CallMsg) args() map[string]any {
	arg := map[string]any{
		"to":   m.To,
		"data": hexutil.Bytes(m.Data),
	}
	if (m.From != common.Address{}) {
		arg["from"] = m.From
	}
	if m.Gas > 0 {
		arg["gas"] = hexutil.Uint64(m.Gas)
	}
	if m.GasPrice != nil && m.GasPrice.Sign() > 0 {
		arg["gasPrice"] = (*hexutil.Big)(m.GasPrice)
	}
	return arg
}

// Receipt is the mined-transaction record the executor cares about.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
	Status      hexutil.Uint64 `json:"status"`
}

// Succeeded reports whether the mined transaction executed without revert.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// Client is a JSON-RPC handle to one chain.
type Client struct {
	name    string
	chainID *big.Int
	rpc     *rpc.Client
}

// Dial connects a client to the node's RPC endpoint.
func Dial(node Node) (*Client, error) {
	c, err := rpc.Dial(node.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to dial chain %s", node.ChainName)
	}
	return NewClient(node.ChainName, node.ChainID, c), nil
}

// NewClient wraps an existing RPC client. Used by Dial and by tests.
func NewClient(name string, chainID uint64, rpcClient *rpc.Client) *Client {
	return &Client{
		name:    name,
		chainID: new(big.Int).SetUint64(chainID),
		rpc:     rpcClient,
	}
}

// Name returns the configured chain name.
func (c *Client) Name() string { return c.name }

// ChainID returns the configured numeric chain id.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// BlockNumber returns the chain's latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var num hexutil.Uint64
	if err := c.rpc.CallContext(ctx, &num, "eth_blockNumber"); err != nil {
		return 0, errors.Wrap(err, "unable to fetch block number")
	}
	return uint64(num), nil
}

// Call performs a read-only eth_call at the latest block. A contract revert
// is returned as *RevertError; transport and protocol failures are wrapped
// plainly.
func (c *Client) Call(ctx context.Context, msg *CallMsg) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var out hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &out, "eth_call", msg.args(), "latest"); err != nil {
		if re, ok := asRevert(err); ok {
			return nil, re
		}
		return nil, errors.Wrap(err, "unable to simulate call")
	}
	return out, nil
}

// SendRawTransaction submits a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, signedHex string) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", signedHex); err != nil {
		return common.Hash{}, errors.Wrap(err, "unable to send raw transaction")
	}
	return hash, nil
}

// TransactionReceipt fetches the receipt for a transaction hash. It returns
// ErrNotFound while the transaction is not mined.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var receipt *Receipt
	if err := c.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, errors.Wrap(err, "unable to fetch receipt")
	}
	if receipt == nil {
		return nil, ErrNotFound
	}
	return receipt, nil
}

// PendingNonce returns the account's next nonce including pending txs.
func (c *Client) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var nonce hexutil.Uint64
	if err := c.rpc.CallContext(ctx, &nonce, "eth_getTransactionCount", addr, "pending"); err != nil {
		return 0, errors.Wrap(err, "unable to fetch pending nonce")
	}
	return uint64(nonce), nil
}

// GasPrice returns the node's suggested gas price in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var price hexutil.Big
	if err := c.rpc.CallContext(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, errors.Wrap(err, "unable to fetch gas price")
	}
	return (*big.Int)(&price), nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

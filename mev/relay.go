// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mev

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// EVMRelay submits transaction bundles to a SUAVE-style builder relay over
// JSON-RPC. One relay instance serves every EVM chain it has a builder URL
// for; chains without an explicit entry fall back to the default endpoint.
type EVMRelay struct {
	endpoint string
	builders map[string]string
	auth     string
	c        *http.Client
}

// NewEVMRelay creates a relay client. endpoint is the fallback builder URL
// for chains absent from the per-chain map; auth, when non-empty, is sent as
// a bearer token. Chain names are matched case-insensitively.
func NewEVMRelay(endpoint string, builders map[string]string, auth string) *EVMRelay {
	lowered := make(map[string]string, len(builders))
	for chain, url := range builders {
		lowered[strings.ToLower(chain)] = url
	}
	return &EVMRelay{
		endpoint: endpoint,
		builders: lowered,
		auth:     auth,
		c:        &http.Client{Timeout: 15 * time.Second},
	}
}

// HasBuilder reports whether a builder endpoint serves the chain.
func (r *EVMRelay) HasBuilder(chain string) bool {
	if _, ok := r.builders[strings.ToLower(chain)]; ok {
		return true
	}
	return r.endpoint != ""
}

func (r *EVMRelay) builderURL(chain string) (string, bool) {
	if url, ok := r.builders[strings.ToLower(chain)]; ok {
		return url, true
	}
	if r.endpoint != "" {
		return r.endpoint, true
	}
	return "", false
}

type bundleParams struct {
	Txs               []string       `json:"txs"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	MinTimestamp      uint64         `json:"minTimestamp,omitempty"`
	MaxTimestamp      uint64         `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []string       `json:"revertingTxHashes,omitempty"`
}

type relayRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type relayResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jitoError      `json:"error"`
}

func (r *EVMRelay) call(ctx context.Context, chain, method string, params []any, result any) error {
	url, ok := r.builderURL(chain)
	if !ok {
		return errors.Errorf("no builder configured for chain %s", chain)
	}

	payload, err := json.Marshal(relayRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "unable to marshal %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "unable to build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.auth != "" {
		req.Header.Set("Authorization", "Bearer "+r.auth)
	}

	resp, err := r.c.Do(req)
	if err != nil {
		return errors.Wrapf(err, "unable to reach builder for %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "unable to read %s response", method)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("builder returned status %d for %s", resp.StatusCode, method)
	}

	var rpcResp relayResponse
	if err = json.Unmarshal(body, &rpcResp); err != nil {
		return errors.Wrapf(err, "unable to unmarshal %s response", method)
	}
	if rpcResp.Error != nil {
		return errors.Errorf("builder rejected %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err = json.Unmarshal(rpcResp.Result, result); err != nil {
			return errors.Wrapf(err, "unable to decode %s result", method)
		}
	}
	return nil
}

type sendBundleResult struct {
	BundleHash string `json:"bundleHash"`
}

// SendBundle targets the bundle at the given block and returns the builder's
// bundle hash. Builders that return no hash get a client-generated id
// upstream.
func (r *EVMRelay) SendBundle(ctx context.Context, chain string, rawTxs []string, targetBlock uint64) (string, error) {
	params := []any{bundleParams{
		Txs:         rawTxs,
		BlockNumber: hexutil.Uint64(targetBlock),
	}}
	var result sendBundleResult
	if err := r.call(ctx, chain, "eth_sendBundle", params, &result); err != nil {
		return "", err
	}
	return result.BundleHash, nil
}

// BundleStats is the builder's post-submission record for one bundle.
type BundleStats struct {
	IsHighPriority bool   `json:"isHighPriority"`
	IsSimulated    bool   `json:"isSimulated"`
	SimulatedAt    string `json:"simulatedAt"`
	SubmittedAt    string `json:"submittedAt"`
	ConsideredByBuildersAt []struct {
		Pubkey    string `json:"pubkey"`
		Timestamp string `json:"timestamp"`
	} `json:"consideredByBuildersAt"`
}

// BundleStats queries the builder for a submitted bundle's consideration
// status. Used for diagnostics only; inclusion is decided by the receipt.
func (r *EVMRelay) BundleStats(ctx context.Context, chain, bundleHash string, targetBlock uint64) (*BundleStats, error) {
	params := []any{map[string]any{
		"bundleHash":  bundleHash,
		"blockNumber": hexutil.Uint64(targetBlock),
	}}
	var stats BundleStats
	if err := r.call(ctx, chain, "flashbots_getBundleStats", params, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

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
	"time"

	"github.com/pkg/errors"
)

// JitoClient submits bundles to a Jito block engine over its JSON-RPC
// endpoint. One client serves all Solana submissions.
type JitoClient struct {
	url     string
	tipsURL string
	auth    string
	c       *http.Client
}

// NewJitoClient creates a client for the block engine at url. tipsURL is the
// tip-floor oracle endpoint; auth, when non-empty, is sent as x-jito-auth.
func NewJitoClient(url, tipsURL, auth string) *JitoClient {
	return &JitoClient{
		url:     url,
		tipsURL: tipsURL,
		auth:    auth,
		c:       &http.Client{Timeout: 15 * time.Second},
	}
}

type jitoRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jitoError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jitoResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jitoError      `json:"error"`
}

func (j *JitoClient) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(jitoRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "unable to marshal %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "unable to build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	if j.auth != "" {
		req.Header.Set("x-jito-auth", j.auth)
	}

	resp, err := j.c.Do(req)
	if err != nil {
		return errors.Wrapf(err, "unable to reach block engine for %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "unable to read %s response", method)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("block engine returned status %d for %s", resp.StatusCode, method)
	}

	var rpcResp jitoResponse
	if err = json.Unmarshal(body, &rpcResp); err != nil {
		return errors.Wrapf(err, "unable to unmarshal %s response", method)
	}
	if rpcResp.Error != nil {
		return errors.Errorf("block engine rejected %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if result != nil {
		if err = json.Unmarshal(rpcResp.Result, result); err != nil {
			return errors.Wrapf(err, "unable to decode %s result", method)
		}
	}
	return nil
}

// maxBundleRetries bounds the engine's resubmission attempts for one bundle.
const maxBundleRetries = 5

type bundleOptions struct {
	Encoding      string `json:"encoding"`
	SkipPreflight bool   `json:"skip_preflight"`
	MaxRetries    int    `json:"max_retries"`
}

// SendBundle submits base64-encoded signed transactions as one atomic bundle
// and returns the engine-assigned bundle id. Preflight is skipped; the
// engine simulates the bundle atomically before the auction anyway.
func (j *JitoClient) SendBundle(ctx context.Context, txsBase64 []string) (string, error) {
	var bundleID string
	params := []any{txsBase64, bundleOptions{
		Encoding:      "base64",
		SkipPreflight: true,
		MaxRetries:    maxBundleRetries,
	}}
	if err := j.call(ctx, "sendBundle", params, &bundleID); err != nil {
		return "", err
	}
	return bundleID, nil
}

// TipAccounts fetches the engine's designated tip accounts. A bundle's tip
// transfer must pay one of these to enter the auction.
func (j *JitoClient) TipAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := j.call(ctx, "getTipAccounts", []any{}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// BundleStatus is the engine's inclusion record for one bundle.
type BundleStatus struct {
	BundleID   string `json:"bundle_id"`
	Status     string `json:"status"`
	LandedSlot uint64 `json:"landed_slot"`
}

type bundleStatusesResult struct {
	Value []BundleStatus `json:"value"`
}

// BundleStatus fetches the current status of a bundle. A bundle unknown to
// the engine yields a status of "Invalid".
func (j *JitoClient) BundleStatus(ctx context.Context, bundleID string) (*BundleStatus, error) {
	var result bundleStatusesResult
	if err := j.call(ctx, "getBundleStatuses", []any{[]string{bundleID}}, &result); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return &BundleStatus{BundleID: bundleID, Status: "Invalid"}, nil
	}
	return &result.Value[0], nil
}

// TipEstimate fetches the current tip floor. When the oracle is unreachable
// a conservative static estimate is returned instead of an error, so a dead
// oracle degrades tip sizing rather than blocking submission.
func (j *JitoClient) TipEstimate(ctx context.Context) *TipEstimate {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.tipsURL, nil)
	if err != nil {
		fallback := defaultTipEstimate
		return &fallback
	}

	resp, err := j.c.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("tip oracle unreachable, using static estimate")
		est := defaultTipEstimate
		return &est
	}
	defer resp.Body.Close()

	var est TipEstimate
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || json.NewDecoder(resp.Body).Decode(&est) != nil {
		logger.Warn().Int("status", resp.StatusCode).Msg("bad tip oracle response, using static estimate")
		fallback := defaultTipEstimate
		return &fallback
	}
	if est.Min <= 0 || est.Recommended <= 0 {
		fallback := defaultTipEstimate
		return &fallback
	}
	return &est
}

// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gasbid calls the ML gas-bidding oracle. A bid failure is fatal for
// the current opportunity; the pipeline publishes a failure result rather
// than retrying.
package gasbid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paulwcunningham/FLIS/opportunity"
)

// BidError reports a failed oracle round trip: transport fault, non-2xx
// response, or an undecodable/invalid body.
type BidError struct {
	msg string
}

func (e *BidError) Error() string { return e.msg }

func bidErrorf(format string, args ...any) *BidError {
	return &BidError{msg: fmt.Sprintf(format, args...)}
}

// Bid is the oracle's gas price decision for one opportunity.
type Bid struct {
	GasPriceGwei     decimal.Decimal `json:"gasPriceGwei"`
	GasLimit         uint64          `json:"gasLimit"`
	EstimatedCostUSD decimal.Decimal `json:"estimatedCostUsd"`
}

// Valid reports whether all bid figures are positive.
func (b *Bid) Valid() bool {
	return b.GasPriceGwei.IsPositive() && b.GasLimit > 0 && b.EstimatedCostUSD.IsPositive()
}

type bidRequest struct {
	ChainName      string          `json:"chainName"`
	Asset          string          `json:"asset"`
	Amount         decimal.Decimal `json:"amount"`
	ExpectedProfit decimal.Decimal `json:"expectedProfit"`
}

// Client represents the HTTP client for the gas-bidding oracle.
type Client struct {
	url string
	c   *http.Client
}

// New creates a client for the oracle at baseURL+path.
func New(baseURL, path string) *Client {
	return NewWithHTTP(baseURL, path, &http.Client{Timeout: 15 * time.Second})
}

func NewWithHTTP(baseURL, path string, c *http.Client) *Client {
	return &Client{
		url: baseURL + path,
		c:   c,
	}
}

// GetBid requests a gas bid for the opportunity.
func (c *Client) GetBid(ctx context.Context, opp *opportunity.Opportunity) (*Bid, error) {
	payload, err := json.Marshal(bidRequest{
		ChainName:      opp.ChainName,
		Asset:          opp.Asset,
		Amount:         opp.Amount,
		ExpectedProfit: opp.ExpectedProfit,
	})
	if err != nil {
		return nil, bidErrorf("unable to marshal bid request - %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, bidErrorf("unable to build bid request - %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, bidErrorf("unable to reach gas oracle - %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bidErrorf("unable to read oracle response - %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, bidErrorf("gas oracle returned status %d", resp.StatusCode)
	}

	var bid Bid
	if err = json.Unmarshal(body, &bid); err != nil {
		return nil, bidErrorf("unable to unmarshal gas bid - %v", err)
	}
	if !bid.Valid() {
		return nil, bidErrorf("gas oracle returned non-positive bid: price=%s limit=%d cost=%s",
			bid.GasPriceGwei, bid.GasLimit, bid.EstimatedCostUSD)
	}
	return &bid, nil
}

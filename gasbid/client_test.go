// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gasbid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulwcunningham/FLIS/opportunity"
)

func testOpp() *opportunity.Opportunity {
	return &opportunity.Opportunity{
		ID:             "E1",
		ChainName:      "ethereum",
		Asset:          "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		Amount:         decimal.NewFromInt(10000),
		ExpectedProfit: decimal.NewFromInt(600),
	}
}

func TestClient_GetBid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/gas-bidding", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, `"ethereum"`, string(req["chainName"]))
		assert.JSONEq(t, `"600"`, string(req["expectedProfit"]))

		w.Write([]byte(`{"GasPriceGwei": 50, "GASLIMIT": 300000, "estimatedCostUsd": 25}`))
	}))
	defer ts.Close()

	bid, err := New(ts.URL, "/api/gas-bidding").GetBid(context.Background(), testOpp())
	require.NoError(t, err)

	assert.True(t, bid.GasPriceGwei.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, uint64(300000), bid.GasLimit)
	assert.True(t, bid.EstimatedCostUSD.Equal(decimal.NewFromInt(25)))
}

func TestClient_GetBidNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := New(ts.URL, "/bid").GetBid(context.Background(), testOpp())
	require.Error(t, err)

	var bidErr *BidError
	assert.ErrorAs(t, err, &bidErr)
	assert.ErrorContains(t, err, "status 503")
}

func TestClient_GetBidBadBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "/bid").GetBid(context.Background(), testOpp())
	var bidErr *BidError
	assert.ErrorAs(t, err, &bidErr)
}

func TestClient_GetBidRejectsNonPositive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"gasPriceGwei": 0, "gasLimit": 300000, "estimatedCostUsd": 25}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "/bid").GetBid(context.Background(), testOpp())
	assert.ErrorContains(t, err, "non-positive bid")
}

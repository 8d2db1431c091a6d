// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package opportunity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chainSet map[string]bool

func (s chainSet) HasChain(name string) bool { return s[name] }

func TestUnmarshalCaseInsensitive(t *testing.T) {
	payload := `{
		"Id": "E1",
		"CHAINNAME": "ethereum",
		"Asset": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"amount": 10000,
		"Strategy": "CrossDex",
		"SOURCEDEX": "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		"targetdex": "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
		"MinProfit": 500,
		"ExpectedProfit": 600,
		"UseMev": false,
		"somethingUnknown": true
	}`

	var opp Opportunity
	require.NoError(t, json.Unmarshal([]byte(payload), &opp))

	assert.Equal(t, "E1", opp.ID)
	assert.Equal(t, "ethereum", opp.ChainName)
	assert.Equal(t, StrategyCrossDex, opp.Strategy)
	assert.True(t, opp.Amount.Equal(decimal.NewFromInt(10000)))
	assert.True(t, opp.ExpectedProfit.Equal(decimal.NewFromInt(600)))
	assert.False(t, opp.UseMev)
}

func TestUnmarshalChainAlias(t *testing.T) {
	var opp Opportunity
	require.NoError(t, json.Unmarshal([]byte(`{"id":"E1","chain":"ethereum"}`), &opp))
	assert.Equal(t, "ethereum", opp.ChainName)

	// chainName wins over the alias
	require.NoError(t, json.Unmarshal([]byte(`{"id":"E1","chain":"polygon","chainName":"ethereum"}`), &opp))
	assert.Equal(t, "ethereum", opp.ChainName)
}

func TestPathDecoding(t *testing.T) {
	var fromArray Opportunity
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","path":["0xA","0xB","0xA"]}`), &fromArray))

	var fromString Opportunity
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","path":"0xA, 0xB,0xA"}`), &fromString))

	assert.Equal(t, fromArray.Path, fromString.Path)
	assert.Equal(t, Path{"0xA", "0xB", "0xA"}, fromString.Path)
}

func validOpp() *Opportunity {
	return &Opportunity{
		ID:             "E1",
		ChainName:      "ethereum",
		Asset:          "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		Amount:         decimal.NewFromInt(10000),
		Strategy:       StrategyCrossDex,
		SourceDex:      "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		TargetDex:      "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
		MinProfit:      decimal.NewFromInt(500),
		ExpectedProfit: decimal.NewFromInt(600),
	}
}

func TestValidate(t *testing.T) {
	chains := chainSet{"ethereum": true, "solana": true}

	assert.NoError(t, validOpp().Validate(chains))

	missing := validOpp()
	missing.ID = ""
	assert.ErrorContains(t, missing.Validate(chains), "missing opportunity id")

	unknown := validOpp()
	unknown.ChainName = "dogechain"
	assert.ErrorContains(t, unknown.Validate(chains), "unknown chain")

	noDex := validOpp()
	noDex.TargetDex = ""
	assert.ErrorContains(t, noDex.Validate(chains), "targetDex")

	multi := validOpp()
	multi.Strategy = StrategyMultiHop
	multi.Path = Path{"0xA"}
	assert.ErrorContains(t, multi.Validate(chains), "at least 2")

	tri := validOpp()
	tri.Strategy = StrategyTriangular
	tri.Path = Path{"0xA", "0xB", "0xC"}
	assert.ErrorContains(t, tri.Validate(chains), "same token")

	tri.Path = Path{"0xA", "0xB", "0xa"}
	assert.NoError(t, tri.Validate(chains))

	bogus := validOpp()
	bogus.Strategy = "Quantum"
	assert.ErrorContains(t, bogus.Validate(chains), "unknown strategy")
}

func TestExpiry(t *testing.T) {
	now := time.Now()

	fresh := validOpp()
	fresh.ExpiresAtNanos = now.Add(time.Minute).UnixNano()
	assert.False(t, fresh.Expired(now))

	stale := validOpp()
	stale.ExpiresAtNanos = now.Add(-time.Second).UnixNano()
	assert.True(t, stale.Expired(now))

	fromDeadline := validOpp()
	fromDeadline.Deadline = float64(now.Add(30*time.Second).Unix())
	assert.False(t, fromDeadline.Expired(now))
	assert.True(t, fromDeadline.Expired(now.Add(time.Minute)))

	unbounded := validOpp()
	assert.False(t, unbounded.Expired(now))
	assert.True(t, unbounded.ExpiresAt().IsZero())
}

func TestMaxTip(t *testing.T) {
	explicit := validOpp()
	explicit.MaxMevTip = decimal.RequireFromString("0.5")
	assert.True(t, explicit.MaxTip().Equal(decimal.RequireFromString("0.5")))

	fallback := validOpp()
	fallback.ExpectedProfit = decimal.NewFromInt(2)
	assert.True(t, fallback.MaxTip().Equal(decimal.RequireFromString("0.2")))
}

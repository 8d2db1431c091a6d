// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sim

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulwcunningham/FLIS/gasbid"
	"github.com/paulwcunningham/FLIS/gateway"
	"github.com/paulwcunningham/FLIS/opportunity"
)

func crossDexOpp() *opportunity.Opportunity {
	return &opportunity.Opportunity{
		ID:             "E1",
		ChainName:      "ethereum",
		Asset:          "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		Amount:         decimal.NewFromInt(10000),
		Strategy:       opportunity.StrategyCrossDex,
		SourceDex:      "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		TargetDex:      "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
		MinProfit:      decimal.NewFromInt(500),
		ExpectedProfit: decimal.NewFromInt(600),
	}
}

func TestEncodeCallDeterministic(t *testing.T) {
	first, err := EncodeCall(crossDexOpp())
	require.NoError(t, err)
	second, err := EncodeCall(crossDexOpp())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeCallCrossDexArgs(t *testing.T) {
	opp := crossDexOpp()
	calldata, err := EncodeCall(opp)
	require.NoError(t, err)

	method := executorABI.Methods["executeCrossDexArbitrage"]
	assert.Equal(t, method.ID, calldata[:4])

	args, err := method.Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	require.Len(t, args, 5)

	assert.Equal(t, common.HexToAddress(opp.Asset), args[0])
	assert.Equal(t, ToWei(decimal.NewFromInt(10000)), args[1])
	assert.Equal(t, common.HexToAddress(opp.SourceDex), args[2])
	assert.Equal(t, common.HexToAddress(opp.TargetDex), args[3])
	assert.Equal(t, ToWei(decimal.NewFromInt(500)), args[4])
}

func TestEncodeCallMevRoutedSharesCrossDexEncoding(t *testing.T) {
	cross, err := EncodeCall(crossDexOpp())
	require.NoError(t, err)

	routed := crossDexOpp()
	routed.Strategy = opportunity.StrategyMevRouted
	mev, err := EncodeCall(routed)
	require.NoError(t, err)

	assert.Equal(t, cross, mev)
}

func TestEncodeCallPathStrategies(t *testing.T) {
	opp := crossDexOpp()
	opp.Strategy = opportunity.StrategyTriangular
	opp.Path = opportunity.Path{
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	}

	calldata, err := EncodeCall(opp)
	require.NoError(t, err)

	method := executorABI.Methods["executeTriangularArbitrage"]
	assert.Equal(t, method.ID, calldata[:4])

	args, err := method.Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	path := args[2].([]common.Address)
	assert.Len(t, path, 3)
	assert.Equal(t, path[0], path[2])

	opp.Strategy = opportunity.StrategyMultiHop
	calldata, err = EncodeCall(opp)
	require.NoError(t, err)
	assert.Equal(t, executorABI.Methods["executeMultiHopArbitrage"].ID, calldata[:4])
}

func TestToWei(t *testing.T) {
	assert.Equal(t, big.NewInt(1_000_000_000_000_000_000), ToWei(decimal.NewFromInt(1)))
	assert.Equal(t, big.NewInt(500_000_000_000_000_000), ToWei(decimal.RequireFromString("0.5")))
}

type fakeCaller struct {
	ret []byte
	err error
	msg *gateway.CallMsg
}

func (f *fakeCaller) Call(_ context.Context, msg *gateway.CallMsg) ([]byte, error) {
	f.msg = msg
	return f.ret, f.err
}

func bindings() map[string]common.Address {
	return map[string]common.Address{
		"ethereum": common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
	}
}

func profitWord() []byte {
	return common.LeftPadBytes(big.NewInt(1).Bytes(), 32)
}

func TestSimulateProfitable(t *testing.T) {
	s := New(bindings(), common.HexToAddress("0x01"))
	caller := &fakeCaller{ret: profitWord()}

	bid := &gasbid.Bid{
		GasPriceGwei:     decimal.NewFromInt(50),
		GasLimit:         300000,
		EstimatedCostUSD: decimal.NewFromInt(25),
	}

	outcome, err := s.Simulate(context.Background(), caller, crossDexOpp(), bid)
	require.NoError(t, err)

	assert.True(t, outcome.Feasible)
	// 600 - 25 - 9 = 566
	assert.True(t, outcome.NetProfitUSD.Equal(decimal.NewFromInt(566)), "net=%s", outcome.NetProfitUSD)
	assert.True(t, outcome.FlashLoanFeeUSD.Equal(decimal.NewFromInt(9)))

	// call used bid gas parameters and the binding address
	require.NotNil(t, caller.msg)
	assert.Equal(t, uint64(300000), caller.msg.Gas)
	assert.Equal(t, big.NewInt(50_000_000_000), caller.msg.GasPrice)
	assert.Equal(t, outcome.Contract, caller.msg.To)
	assert.Equal(t, outcome.CallData, caller.msg.Data)
}

func TestSimulateUnprofitable(t *testing.T) {
	s := New(bindings(), common.HexToAddress("0x01"))
	caller := &fakeCaller{ret: profitWord()}

	opp := crossDexOpp()
	opp.Amount = decimal.NewFromInt(100)
	opp.ExpectedProfit = decimal.NewFromInt(5)

	bid := &gasbid.Bid{
		GasPriceGwei:     decimal.NewFromInt(80),
		GasLimit:         400000,
		EstimatedCostUSD: decimal.NewFromInt(40),
	}

	outcome, err := s.Simulate(context.Background(), caller, opp, bid)
	require.NoError(t, err)

	assert.False(t, outcome.Feasible)
	// 5 - 40 - 0.09 = -35.09
	assert.True(t, outcome.NetProfitUSD.Equal(decimal.RequireFromString("-35.09")), "net=%s", outcome.NetProfitUSD)
}

func TestSimulateRevert(t *testing.T) {
	s := New(bindings(), common.HexToAddress("0x01"))
	caller := &fakeCaller{err: &gateway.RevertError{Reason: "profit below minimum"}}

	bid := &gasbid.Bid{GasPriceGwei: decimal.NewFromInt(50), GasLimit: 300000, EstimatedCostUSD: decimal.NewFromInt(25)}

	outcome, err := s.Simulate(context.Background(), caller, crossDexOpp(), bid)
	require.NoError(t, err)

	assert.False(t, outcome.Feasible)
	assert.True(t, outcome.Reverted)
	assert.Equal(t, "profit below minimum", outcome.RevertReason)
}

func TestSimulateEmptyReturn(t *testing.T) {
	s := New(bindings(), common.HexToAddress("0x01"))
	caller := &fakeCaller{ret: nil}

	bid := &gasbid.Bid{GasPriceGwei: decimal.NewFromInt(50), GasLimit: 300000, EstimatedCostUSD: decimal.NewFromInt(25)}

	outcome, err := s.Simulate(context.Background(), caller, crossDexOpp(), bid)
	require.NoError(t, err)

	assert.False(t, outcome.Feasible)
	assert.True(t, outcome.Reverted)
	assert.Equal(t, "empty simulation return", outcome.RevertReason)
}

func TestSimulateTransportError(t *testing.T) {
	s := New(bindings(), common.HexToAddress("0x01"))
	caller := &fakeCaller{err: errors.New("connection reset")}

	bid := &gasbid.Bid{GasPriceGwei: decimal.NewFromInt(50), GasLimit: 300000, EstimatedCostUSD: decimal.NewFromInt(25)}

	_, err := s.Simulate(context.Background(), caller, crossDexOpp(), bid)
	assert.Error(t, err)
}

func TestSimulateMissingBinding(t *testing.T) {
	s := New(bindings(), common.HexToAddress("0x01"))

	opp := crossDexOpp()
	opp.ChainName = "polygon"

	bid := &gasbid.Bid{GasPriceGwei: decimal.NewFromInt(50), GasLimit: 300000, EstimatedCostUSD: decimal.NewFromInt(25)}

	_, err := s.Simulate(context.Background(), &fakeCaller{}, opp, bid)
	assert.ErrorContains(t, err, "no contract binding")
}

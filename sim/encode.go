// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sim

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/paulwcunningham/FLIS/opportunity"
)

// arbitrageABI describes the executor contract's entry points. Parameter
// order and types are part of the contract with the deployed artifact; the
// encoding must stay byte-stable for identical inputs.
const arbitrageABI = `[
	{"type":"function","name":"executeCrossDexArbitrage","stateMutability":"nonpayable","inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"sourceDex","type":"address"},
		{"name":"targetDex","type":"address"},
		{"name":"minProfit","type":"uint256"}],
	 "outputs":[{"name":"profit","type":"uint256"}]},
	{"type":"function","name":"executeMultiHopArbitrage","stateMutability":"nonpayable","inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"minProfit","type":"uint256"}],
	 "outputs":[{"name":"profit","type":"uint256"}]},
	{"type":"function","name":"executeTriangularArbitrage","stateMutability":"nonpayable","inputs":[
		{"name":"asset","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"minProfit","type":"uint256"}],
	 "outputs":[{"name":"profit","type":"uint256"}]}
]`

var executorABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(arbitrageABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// tokenDecimals is the wei scale applied to human-readable amounts.
const tokenDecimals = 18

// ToWei converts a human-scale decimal amount to its wei representation.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(tokenDecimals).BigInt()
}

// EncodeCall builds the calldata for the opportunity's strategy. The switch
// is exhaustive over the strategy variants; MevRouted shares the cross-DEX
// encoding and only differs in how the transaction is routed.
func EncodeCall(opp *opportunity.Opportunity) ([]byte, error) {
	asset := common.HexToAddress(opp.Asset)
	amountWei := ToWei(opp.Amount)
	minProfitWei := ToWei(opp.MinProfit)

	switch opp.Strategy {
	case opportunity.StrategyCrossDex, opportunity.StrategyMevRouted:
		data, err := executorABI.Pack("executeCrossDexArbitrage",
			asset, amountWei,
			common.HexToAddress(opp.SourceDex),
			common.HexToAddress(opp.TargetDex),
			minProfitWei)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode cross-dex call")
		}
		return data, nil

	case opportunity.StrategyMultiHop:
		data, err := executorABI.Pack("executeMultiHopArbitrage",
			asset, amountWei, hexPath(opp.Path), minProfitWei)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode multi-hop call")
		}
		return data, nil

	case opportunity.StrategyTriangular:
		if len(opp.Path) < 3 {
			return nil, errors.New("triangular path must contain at least 3 tokens")
		}
		data, err := executorABI.Pack("executeTriangularArbitrage",
			asset, amountWei, hexPath(opp.Path), minProfitWei)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode triangular call")
		}
		return data, nil

	default:
		return nil, errors.Errorf("unknown strategy %q", opp.Strategy)
	}
}

func hexPath(path opportunity.Path) []common.Address {
	out := make([]common.Address, len(path))
	for i, p := range path {
		out[i] = common.HexToAddress(p)
	}
	return out
}

// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package sim decides whether an opportunity would succeed on-chain and is
// profitable after costs. The same calldata produced here is what the submit
// path must send; callers keep the Outcome's CallData for that purpose.
package sim

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/paulwcunningham/FLIS/gasbid"
	"github.com/paulwcunningham/FLIS/gateway"
	"github.com/paulwcunningham/FLIS/opportunity"
)

// flashLoanFeeRate is the pool's flash-loan premium: 9 bps of the loaned
// amount.
var flashLoanFeeRate = decimal.RequireFromString("0.0009")

// Caller performs a read-only contract call on one chain.
type Caller interface {
	Call(ctx context.Context, msg *gateway.CallMsg) ([]byte, error)
}

// Outcome is the simulation verdict for one opportunity.
type Outcome struct {
	Feasible        bool
	Reverted        bool
	RevertReason    string
	NetProfitUSD    decimal.Decimal
	GasUSD          decimal.Decimal
	FlashLoanFeeUSD decimal.Decimal

	// CallData and Contract are what the submit path must reuse so the
	// submitted transaction matches the simulated one.
	CallData []byte
	Contract common.Address
}

// Simulator resolves contract bindings and runs the read-only gate.
type Simulator struct {
	bindings map[string]common.Address
	from     common.Address
}

// New creates a simulator over the configured per-chain contract bindings.
// from is the executor wallet address used as the call origin.
func New(bindings map[string]common.Address, from common.Address) *Simulator {
	lowered := make(map[string]common.Address, len(bindings))
	for chain, addr := range bindings {
		lowered[strings.ToLower(chain)] = addr
	}
	return &Simulator{bindings: lowered, from: from}
}

// Binding returns the executor contract bound to the chain.
func (s *Simulator) Binding(chainName string) (common.Address, error) {
	addr, ok := s.bindings[strings.ToLower(chainName)]
	if !ok {
		return common.Address{}, errors.Errorf("no contract binding for chain %q", chainName)
	}
	return addr, nil
}

// FlashLoanFee returns the flash-loan premium in USD for the loaned amount.
func FlashLoanFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(flashLoanFeeRate)
}

// Simulate runs the strategy call read-only with the bid's gas parameters
// and computes net profit after gas and the flash-loan fee.
//
// A revert is reported in the Outcome, not as an error: it is a negative
// business result. Errors are reserved for binding/encoding/transport
// failures.
func (s *Simulator) Simulate(ctx context.Context, caller Caller, opp *opportunity.Opportunity, bid *gasbid.Bid) (*Outcome, error) {
	contract, err := s.Binding(opp.ChainName)
	if err != nil {
		return nil, err
	}

	calldata, err := EncodeCall(opp)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		GasUSD:          bid.EstimatedCostUSD,
		FlashLoanFeeUSD: FlashLoanFee(opp.Amount),
		CallData:        calldata,
		Contract:        contract,
	}

	ret, err := caller.Call(ctx, &gateway.CallMsg{
		From:     s.from,
		To:       contract,
		Gas:      bid.GasLimit,
		GasPrice: bid.GasPriceGwei.Shift(9).BigInt(),
		Data:     calldata,
	})
	if err != nil {
		var re *gateway.RevertError
		if errors.As(err, &re) {
			outcome.Reverted = true
			outcome.RevertReason = re.Reason
			return outcome, nil
		}
		return nil, err
	}

	// A successful call whose return cannot be decoded per the function's
	// output type counts as infeasible, same as a revert.
	if len(ret) < 32 {
		outcome.Reverted = true
		outcome.RevertReason = "empty simulation return"
		return outcome, nil
	}

	outcome.NetProfitUSD = opp.ExpectedProfit.Sub(outcome.GasUSD).Sub(outcome.FlashLoanFeeUSD)
	outcome.Feasible = outcome.NetProfitUSD.IsPositive()
	return outcome, nil
}

// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mev

import (
	"github.com/shopspring/decimal"

	"github.com/paulwcunningham/FLIS/opportunity"
)

// TipEstimate is the relay's view of recent landed tips, in lamports.
type TipEstimate struct {
	Min         int64 `json:"min"`
	Median      int64 `json:"median"`
	P75         int64 `json:"p75"`
	P95         int64 `json:"p95"`
	Recommended int64 `json:"recommended"`
}

// defaultTipEstimate is used when the tip oracle is unreachable. Values err
// on the conservative side of recent mainnet tip floors.
var defaultTipEstimate = TipEstimate{
	Min:         1_000,
	Median:      10_000,
	P75:         50_000,
	P95:         200_000,
	Recommended: 25_000,
}

// Lamports converts a SOL-denominated decimal to lamports, truncating.
func Lamports(sol decimal.Decimal) int64 {
	return sol.Shift(9).IntPart()
}

// SizeTip scales the recommended tip by AOI-driven aggressiveness and clamps
// the result to [estimate.Min, opportunity max tip]. With no AOI score the
// multiplier is 0.75; the ceiling always wins over the floor.
func SizeTip(est *TipEstimate, opp *opportunity.Opportunity) int64 {
	mult := decimal.RequireFromString("0.75")
	if opp.AoiScore != nil {
		aoi := *opp.AoiScore
		if aoi < 0 {
			aoi = 0
		} else if aoi > 1 {
			aoi = 1
		}
		mult = decimal.RequireFromString("0.5").Add(decimal.RequireFromString("0.5").Mul(decimal.NewFromFloat(aoi)))
	}

	tip := decimal.NewFromInt(est.Recommended).Mul(mult).IntPart()
	if tip < est.Min {
		tip = est.Min
	}
	if maxTip := Lamports(opp.MaxTip()); tip > maxTip {
		tip = maxTip
	}
	return tip
}

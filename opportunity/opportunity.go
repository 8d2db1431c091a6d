// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package opportunity models the arbitrage opportunity messages consumed from
// the bus. Opportunities are immutable once decoded; the pipeline owns them
// transiently for the duration of one run.
package opportunity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Strategy is the tagged arbitrage variant carried by an opportunity.
type Strategy string

const (
	StrategyCrossDex   Strategy = "CrossDex"
	StrategyMultiHop   Strategy = "MultiHop"
	StrategyTriangular Strategy = "Triangular"
	StrategyMevRouted  Strategy = "MevRouted"
)

// Path is an ordered list of on-chain addresses. Producers emit it either as
// a JSON array or as a single comma separated string; both decode to the same
// value.
type Path []string

// UnmarshalJSON accepts both array and comma separated string encodings.
func (p *Path) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return errors.New("path must be an array or a comma separated string")
	}
	if joined == "" {
		*p = nil
		return nil
	}
	parts := strings.Split(joined, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	*p = parts
	return nil
}

// Opportunity is one arbitrage opportunity as received from the bus.
// JSON field matching is case-insensitive per encoding/json; unknown fields
// are ignored.
type Opportunity struct {
	ID        string `json:"id"`
	ChainName string `json:"chainName"`

	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	Strategy Strategy        `json:"strategy"`

	// Strategy parameters; one set present per variant.
	SourceDex string `json:"sourceDex"`
	TargetDex string `json:"targetDex"`
	Path      Path   `json:"path"`

	MinProfit       decimal.Decimal `json:"minProfit"`
	ExpectedProfit  decimal.Decimal `json:"expectedProfit"`
	ConfidenceScore float64         `json:"confidenceScore"`

	// Deadline is unix seconds; ExpiresAtNanos wins when both are set.
	Deadline       float64 `json:"deadline"`
	ExpiresAtNanos int64   `json:"expiresAtNanos"`

	// Market context, advisory only.
	SpreadBps          float64  `json:"spreadBps"`
	OrderBookImbalance float64  `json:"orderBookImbalance"`
	VolatilityPercent  float64  `json:"volatilityPercent"`
	AoiScore           *float64 `json:"aoiScore"`
	MarketRegime       string   `json:"marketRegime"`

	// MEV preferences.
	UseMev               bool            `json:"useMev"`
	PreferredMevProvider string          `json:"preferredMevProvider"`
	MaxMevTip            decimal.Decimal `json:"maxMevTip"`
	TargetBundlePosition int             `json:"targetBundlePosition"`

	// Risk parameters.
	MaxSlippageBps   int             `json:"maxSlippageBps"`
	MaxGasPriceGwei  decimal.Decimal `json:"maxGasPriceGwei"`
	AllowPartialFill bool            `json:"allowPartialFill"`

	// Source tracking.
	SignalID       string `json:"signalId"`
	StrategyName   string `json:"strategyName"`
	SourceExchange string `json:"sourceExchange"`
	TargetExchange string `json:"targetExchange"`
}

// UnmarshalJSON decodes an opportunity, additionally accepting the short
// "chain" key some producers use instead of "chainName".
func (o *Opportunity) UnmarshalJSON(data []byte) error {
	type alias Opportunity
	aux := struct {
		*alias
		Chain string `json:"chain"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if o.ChainName == "" {
		o.ChainName = aux.Chain
	}
	return nil
}

// ChainResolver reports whether a chain name is configured.
type ChainResolver interface {
	HasChain(name string) bool
}

// Validate checks the invariants an opportunity must hold before a pipeline
// run is created for it.
func (o *Opportunity) Validate(resolver ChainResolver) error {
	if o.ID == "" {
		return errors.New("missing opportunity id")
	}
	if o.ChainName == "" {
		return errors.New("missing chain name")
	}
	if resolver != nil && !resolver.HasChain(o.ChainName) {
		return errors.Errorf("unknown chain %q", o.ChainName)
	}
	if o.Asset == "" {
		return errors.New("missing asset address")
	}
	if !o.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}

	switch o.Strategy {
	case StrategyCrossDex:
		if o.SourceDex == "" || o.TargetDex == "" {
			return errors.New("cross-dex strategy requires sourceDex and targetDex")
		}
	case StrategyMevRouted:
		// MevRouted reuses the cross-dex entry point when a DEX pair is given.
		if o.SourceDex == "" || o.TargetDex == "" {
			return errors.New("mev-routed strategy requires sourceDex and targetDex")
		}
	case StrategyMultiHop:
		if len(o.Path) < 2 {
			return errors.New("multi-hop strategy requires a path of at least 2 tokens")
		}
	case StrategyTriangular:
		if len(o.Path) < 3 {
			return errors.New("triangular strategy requires a path of at least 3 tokens")
		}
		if !strings.EqualFold(o.Path[0], o.Path[len(o.Path)-1]) {
			return errors.New("triangular path must start and end with the same token")
		}
	case "":
		return errors.New("missing strategy")
	default:
		return errors.Errorf("unknown strategy %q", o.Strategy)
	}
	return nil
}

// ExpiresAt returns the absolute expiry of the opportunity, or the zero time
// when the producer set none.
func (o *Opportunity) ExpiresAt() time.Time {
	if o.ExpiresAtNanos > 0 {
		return time.Unix(0, o.ExpiresAtNanos)
	}
	if o.Deadline > 0 {
		sec := int64(o.Deadline)
		nsec := int64((o.Deadline - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec)
	}
	return time.Time{}
}

// Expired reports whether the opportunity's deadline passed at the given
// wall time. Opportunities without a deadline never expire.
func (o *Opportunity) Expired(now time.Time) bool {
	exp := o.ExpiresAt()
	return !exp.IsZero() && now.After(exp)
}

// MaxTip returns the tip ceiling policy for MEV submission: the producer's
// maxMevTip when set, else a tenth of the expected profit.
func (o *Opportunity) MaxTip() decimal.Decimal {
	if o.MaxMevTip.IsPositive() {
		return o.MaxMevTip
	}
	return o.ExpectedProfit.Div(decimal.NewFromInt(10))
}

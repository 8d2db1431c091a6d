// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package mev coordinates bundle submission through MEV relays: provider
// selection, tip sizing, submission and the inclusion-wait loop.
package mev

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/paulwcunningham/FLIS/opportunity"
)

var logger = log.With().Str("pkg", "mev").Logger()

// Provider identifies a bundle relay family.
type Provider string

const (
	ProviderJito  Provider = "jito"
	ProviderSuave Provider = "suave"
)

// chainProviders maps chains to their default relay.
var chainProviders = map[string]Provider{
	"solana":    ProviderJito,
	"ethereum":  ProviderSuave,
	"polygon":   ProviderSuave,
	"arbitrum":  ProviderSuave,
	"base":      ProviderSuave,
	"optimism":  ProviderSuave,
	"avalanche": ProviderSuave,
	"bsc":       ProviderSuave,
}

// SelectProvider picks the relay for an opportunity: the producer's explicit
// preference when set, else the chain default, else suave.
func SelectProvider(opp *opportunity.Opportunity) Provider {
	if opp.PreferredMevProvider != "" {
		return Provider(strings.ToLower(opp.PreferredMevProvider))
	}
	if p, ok := chainProviders[strings.ToLower(opp.ChainName)]; ok {
		return p
	}
	return ProviderSuave
}

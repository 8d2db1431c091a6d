// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package mev

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/paulwcunningham/FLIS/gateway"
	"github.com/paulwcunningham/FLIS/opportunity"
)

// timeoutReason is the verbatim failure reason published when a bundle's
// inclusion deadline elapses. Downstream consumers match on this string.
const timeoutReason = "Confirmation timeout"

// JitoAPI is the block-engine surface the coordinator needs.
type JitoAPI interface {
	SendBundle(ctx context.Context, txsBase64 []string) (string, error)
	BundleStatus(ctx context.Context, bundleID string) (*BundleStatus, error)
	TipEstimate(ctx context.Context) *TipEstimate
	TipAccounts(ctx context.Context) ([]string, error)
}

// EVMRelayAPI is the builder-relay surface the coordinator needs.
type EVMRelayAPI interface {
	HasBuilder(chain string) bool
	SendBundle(ctx context.Context, chain string, rawTxs []string, targetBlock uint64) (string, error)
	BundleStats(ctx context.Context, chain, bundleHash string, targetBlock uint64) (*BundleStats, error)
}

// ReceiptSource fetches mined-transaction receipts for one chain.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gateway.Receipt, error)
}

// Options tune the inclusion-wait loops.
type Options struct {
	EVMPollInterval    time.Duration
	EVMDeadline        time.Duration
	SolanaPollInterval time.Duration
	SolanaDeadline     time.Duration
}

// DefaultOptions returns the production wait timings.
func DefaultOptions() Options {
	return Options{
		EVMPollInterval:    1000 * time.Millisecond,
		EVMDeadline:        60 * time.Second,
		SolanaPollInterval: 500 * time.Millisecond,
		SolanaDeadline:     30 * time.Second,
	}
}

// Coordinator routes bundles to the right relay, sizes tips, and waits for
// inclusion.
type Coordinator struct {
	jito  JitoAPI
	relay EVMRelayAPI
	opts  Options
}

// NewCoordinator creates a coordinator. Either relay may be nil; the
// matching provider is then unavailable.
func NewCoordinator(jito JitoAPI, relay EVMRelayAPI, opts Options) *Coordinator {
	return &Coordinator{
		jito:  jito,
		relay: relay,
		opts:  opts,
	}
}

// Available reports whether a relay can serve the opportunity's chain, and
// which provider would.
func (c *Coordinator) Available(opp *opportunity.Opportunity) (Provider, bool) {
	provider := SelectProvider(opp)
	switch provider {
	case ProviderJito:
		return provider, c.jito != nil
	default:
		return provider, c.relay != nil && c.relay.HasBuilder(opp.ChainName)
	}
}

// Submission records one accepted bundle submission.
type Submission struct {
	Provider    Provider
	Chain       string
	BundleID    string
	TipLamports int64
	TipAccount  string
	TargetBlock uint64
	TxHash      common.Hash
	SubmittedAt time.Time
}

// Submit routes the signed transaction to the opportunity's relay. For Jito
// the tip is sized from the current floor and the designated tip account is
// resolved alongside it; for builder relays the bundle targets the block
// after head. Builders that return no bundle hash get a client-generated id
// so the result stream always carries one.
func (c *Coordinator) Submit(
	ctx context.Context,
	opp *opportunity.Opportunity,
	rawTx string,
	txHash common.Hash,
	head uint64,
) (*Submission, error) {
	provider, ok := c.Available(opp)
	if !ok {
		return nil, errors.Errorf("no %s relay available for chain %s", provider, opp.ChainName)
	}

	switch provider {
	case ProviderJito:
		est := c.jito.TipEstimate(ctx)
		tip := SizeTip(est, opp)

		var tipAccount string
		if accounts, err := c.jito.TipAccounts(ctx); err != nil {
			logger.Warn().Err(err).Msg("unable to fetch tip accounts")
		} else if len(accounts) > 0 {
			tipAccount = accounts[0]
		}

		// The engine expects base64-encoded transactions.
		txBytes, err := hexutil.Decode(rawTx)
		if err != nil {
			return nil, errors.Wrap(err, "unable to decode raw transaction")
		}

		bundleID, err := c.jito.SendBundle(ctx, []string{base64.StdEncoding.EncodeToString(txBytes)})
		if err != nil {
			return nil, errors.Wrap(err, "unable to submit jito bundle")
		}
		logger.Info().
			Str("bundleId", bundleID).
			Int64("tipLamports", tip).
			Str("tipAccount", tipAccount).
			Msg("bundle submitted to block engine")
		return &Submission{
			Provider:    provider,
			Chain:       opp.ChainName,
			BundleID:    bundleID,
			TipLamports: tip,
			TipAccount:  tipAccount,
			TxHash:      txHash,
			SubmittedAt: time.Now(),
		}, nil

	default:
		target := head + 1
		bundleID, err := c.relay.SendBundle(ctx, opp.ChainName, []string{rawTx}, target)
		if err != nil {
			return nil, errors.Wrap(err, "unable to submit builder bundle")
		}
		if bundleID == "" {
			bundleID = uuid.New().String()
		}
		logger.Info().
			Str("chain", opp.ChainName).
			Str("bundleId", bundleID).
			Uint64("targetBlock", target).
			Msg("bundle submitted to builder")
		return &Submission{
			Provider:    provider,
			Chain:       opp.ChainName,
			BundleID:    bundleID,
			TargetBlock: target,
			TxHash:      txHash,
			SubmittedAt: time.Now(),
		}, nil
	}
}

// BundleOutcome is the final inclusion verdict for one bundle. WasFrontrun
// and WasBackrun are reserved for downstream attribution and stay false here.
type BundleOutcome struct {
	Provider    Provider
	BundleID    string
	Landed      bool
	BlockNumber uint64
	TipLamports int64
	TipAccount  string
	Reason      string
	WasFrontrun bool
	WasBackrun  bool
}

// Await blocks until the bundle lands, definitively fails, or its provider
// deadline elapses. receipts is only consulted for builder-relay bundles.
func (c *Coordinator) Await(ctx context.Context, sub *Submission, receipts ReceiptSource) *BundleOutcome {
	if sub.Provider == ProviderJito {
		return c.awaitJito(ctx, sub)
	}
	return c.awaitEVM(ctx, sub, receipts)
}

func (c *Coordinator) awaitJito(ctx context.Context, sub *Submission) *BundleOutcome {
	outcome := &BundleOutcome{
		Provider:    sub.Provider,
		BundleID:    sub.BundleID,
		TipLamports: sub.TipLamports,
		TipAccount:  sub.TipAccount,
	}

	deadline := time.NewTimer(c.opts.SolanaDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.SolanaPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			outcome.Reason = timeoutReason
			return outcome
		case <-deadline.C:
			outcome.Reason = timeoutReason
			return outcome
		case <-ticker.C:
			status, err := c.jito.BundleStatus(ctx, sub.BundleID)
			if err != nil {
				logger.Warn().Err(err).Str("bundleId", sub.BundleID).Msg("bundle status poll failed")
				continue
			}
			switch strings.ToLower(status.Status) {
			case "landed":
				outcome.Landed = true
				outcome.BlockNumber = status.LandedSlot
				return outcome
			case "failed", "invalid":
				outcome.Reason = "Bundle " + strings.ToLower(status.Status)
				return outcome
			}
		}
	}
}

// awaitEVM polls the builder's status endpoint for submission progress and
// the chain for the inclusion receipt; the receipt decides the verdict.
func (c *Coordinator) awaitEVM(ctx context.Context, sub *Submission, receipts ReceiptSource) *BundleOutcome {
	outcome := &BundleOutcome{
		Provider: sub.Provider,
		BundleID: sub.BundleID,
	}

	deadline := time.NewTimer(c.opts.EVMDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.EVMPollInterval)
	defer ticker.Stop()

	var simulated bool
	for {
		select {
		case <-ctx.Done():
			outcome.Reason = timeoutReason
			return outcome
		case <-deadline.C:
			outcome.Reason = timeoutReason
			return outcome
		case <-ticker.C:
			if c.relay != nil && !simulated {
				stats, err := c.relay.BundleStats(ctx, sub.Chain, sub.BundleID, sub.TargetBlock)
				if err != nil {
					logger.Debug().Err(err).Str("bundleId", sub.BundleID).Msg("bundle stats poll failed")
				} else if stats.IsSimulated {
					simulated = true
					logger.Debug().
						Str("bundleId", sub.BundleID).
						Str("simulatedAt", stats.SimulatedAt).
						Msg("bundle simulated by builder")
				}
			}

			receipt, err := receipts.TransactionReceipt(ctx, sub.TxHash)
			if err != nil {
				if !errors.Is(err, gateway.ErrNotFound) {
					logger.Warn().Err(err).Str("bundleId", sub.BundleID).Msg("receipt poll failed")
				}
				continue
			}
			if receipt.BlockNumber != nil {
				outcome.BlockNumber = receipt.BlockNumber.ToInt().Uint64()
			}
			if receipt.Succeeded() {
				outcome.Landed = true
				return outcome
			}
			outcome.Reason = "Bundle transaction reverted on chain"
			return outcome
		}
	}
}

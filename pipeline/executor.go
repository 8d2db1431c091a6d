// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/paulwcunningham/FLIS/gasbid"
	"github.com/paulwcunningham/FLIS/gateway"
	"github.com/paulwcunningham/FLIS/metrics"
	"github.com/paulwcunningham/FLIS/mev"
	"github.com/paulwcunningham/FLIS/opportunity"
	"github.com/paulwcunningham/FLIS/sim"
	"github.com/paulwcunningham/FLIS/txsigner"
)

var logger = log.With().Str("pkg", "pipeline").Logger()

var (
	metricRuns        = metrics.LazyLoadCounterVec("pipeline_runs_total", []string{"outcome"})
	metricSimLatency  = metrics.LazyLoadHistogram("pipeline_simulation_ms", metrics.BucketSimulationMs)
	metricRunLatency  = metrics.LazyLoadHistogram("pipeline_end_to_end_ms", metrics.BucketEndToEndMs)
	metricActiveRuns  = metrics.LazyLoadGauge("pipeline_active_runs")
	metricSubmissions = metrics.LazyLoadCounterVec("pipeline_submissions_total", []string{"route"})
)

// Chain is the per-chain surface a run needs. *gateway.Client provides it.
type Chain interface {
	ChainID() *big.Int
	BlockNumber(ctx context.Context) (uint64, error)
	Call(ctx context.Context, msg *gateway.CallMsg) ([]byte, error)
	SendRawTransaction(ctx context.Context, signedHex string) (common.Hash, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gateway.Receipt, error)
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
}

// Chains resolves a chain handle by name.
type Chains interface {
	Get(chainName string) (Chain, error)
}

// Bidder prices gas for one opportunity.
type Bidder interface {
	GetBid(ctx context.Context, opp *opportunity.Opportunity) (*gasbid.Bid, error)
}

// Simulator runs the read-only profitability gate.
type Simulator interface {
	Simulate(ctx context.Context, caller sim.Caller, opp *opportunity.Opportunity, bid *gasbid.Bid) (*sim.Outcome, error)
}

// Signer assembles and signs the submission transaction.
type Signer interface {
	BuildAndSign(ctx context.Context, nonces txsigner.NonceSource, chainID *big.Int, to common.Address, calldata []byte, bid *gasbid.Bid) (*txsigner.SignedTx, error)
}

// Bundler is the MEV submission surface. *mev.Coordinator provides it.
type Bundler interface {
	Available(opp *opportunity.Opportunity) (mev.Provider, bool)
	Submit(ctx context.Context, opp *opportunity.Opportunity, rawTx string, txHash common.Hash, head uint64) (*mev.Submission, error)
	Await(ctx context.Context, sub *mev.Submission, receipts mev.ReceiptSource) *mev.BundleOutcome
}

// Sink receives everything a run publishes. Delivery is best-effort; the
// sink logs and drops when the bus is down.
type Sink interface {
	PublishResult(res *Result)
	PublishStatus(upd *StatusUpdate)
	PublishBundleOutcome(out *mev.BundleOutcome)
	PublishLearning(res *Result)
}

// Options tune the standard-path receipt poll.
type Options struct {
	ReceiptPollInterval time.Duration
	ReceiptPollAttempts int
}

// DefaultOptions returns the production poll budget: 2 s cadence for about
// two minutes.
func DefaultOptions() Options {
	return Options{
		ReceiptPollInterval: 2 * time.Second,
		ReceiptPollAttempts: 60,
	}
}

// Executor owns the collaborators shared by all runs. All fields are wired
// once at startup and read-only afterwards.
type Executor struct {
	chains  Chains
	bidder  Bidder
	sim     Simulator
	signer  Signer
	bundler Bundler
	sink    Sink
	opts    Options
	now     func() time.Time
}

// New creates an executor. bundler may be nil when no relay is configured;
// every mev-flagged opportunity then takes the standard path.
func New(chains Chains, bidder Bidder, simulator Simulator, signer Signer, bundler Bundler, sink Sink, opts Options) *Executor {
	return &Executor{
		chains:  chains,
		bidder:  bidder,
		sim:     simulator,
		signer:  signer,
		bundler: bundler,
		sink:    sink,
		opts:    opts,
		now:     time.Now,
	}
}

func (e *Executor) status(r *run, status, detail string) {
	e.sink.PublishStatus(&StatusUpdate{
		OpportunityID: r.opportunityID,
		Status:        status,
		Timestamp:     e.now().UnixNano(),
		Detail:        detail,
	})
}

// finish publishes the terminal records in the required order: the durable
// result first, then the learning projection, then the terminal status.
func (e *Executor) finish(r *run, res *Result) {
	r.stamp(res, e.now())

	e.sink.PublishResult(res)
	e.sink.PublishLearning(res)

	terminal := StatusFailed
	outcome := "failed"
	if res.Success {
		terminal = StatusConfirmed
		outcome = "confirmed"
	} else if res.Reason != "" {
		outcome = "rejected"
	}
	e.status(r, terminal, res.Reason)

	metricRuns().AddWithLabel(1, map[string]string{"outcome": outcome})
	metricRunLatency().Observe(int64(res.TotalLatencyMs))
	if res.SimulationLatencyMs > 0 {
		metricSimLatency().Observe(int64(res.SimulationLatencyMs))
	}
}

// fail records the fault or rejection as the run's reason and publishes the
// terminal records.
func (e *Executor) fail(r *run, res *Result, err error) {
	res.Reason = err.Error()
	e.finish(r, res)
}

// Process drives one opportunity to its terminal publish. It never returns
// an error: faults become failed results.
func (e *Executor) Process(ctx context.Context, opp *opportunity.Opportunity) {
	metricActiveRuns().Add(1)
	defer metricActiveRuns().Add(-1)

	r := newRun(opp.ID, e.now())
	res := &Result{
		OpportunityID: opp.ID,
		Chain:         opp.ChainName,
		Strategy:      string(opp.Strategy),
	}

	e.status(r, StatusReceived, "")
	logger.Info().
		Str("id", opp.ID).
		Str("chain", opp.ChainName).
		Str("strategy", string(opp.Strategy)).
		Msg("opportunity received")

	chain, err := e.chains.Get(opp.ChainName)
	if err != nil {
		e.fail(r, res, &PolicyRejection{Reason: err.Error()})
		return
	}

	if opp.Expired(e.now()) {
		e.fail(r, res, &PolicyRejection{Reason: "deadline exceeded"})
		return
	}

	bid, err := e.bidder.GetBid(ctx, opp)
	if err != nil {
		e.fail(r, res, err)
		return
	}

	e.status(r, StatusSimulating, "")
	r.simStartedAtNanos = e.now().UnixNano()
	outcome, err := e.sim.Simulate(ctx, chain, opp, bid)
	r.simCompletedAtNanos = e.now().UnixNano()
	if err != nil {
		e.fail(r, res, err)
		return
	}

	res.GasUsedUSD = outcome.GasUSD
	res.FlashLoanFeeUSD = outcome.FlashLoanFeeUSD
	res.EstimatedProfitUSD = outcome.NetProfitUSD

	if outcome.Reverted {
		res.Reason = "simulation reverted: " + outcome.RevertReason
		e.finish(r, res)
		return
	}
	if !outcome.Feasible {
		res.Reason = fmt.Sprintf("unprofitable: net %s USD after costs", outcome.NetProfitUSD)
		e.finish(r, res)
		return
	}

	if opp.Expired(e.now()) {
		e.fail(r, res, &PolicyRejection{Reason: "deadline exceeded"})
		return
	}

	signed, err := e.signer.BuildAndSign(ctx, chain, chain.ChainID(), outcome.Contract, outcome.CallData, bid)
	if err != nil {
		e.fail(r, res, err)
		return
	}

	if provider, ok := e.mevRoute(opp); ok {
		e.submitBundle(ctx, r, res, opp, chain, signed, provider)
		return
	}
	e.submitStandard(ctx, r, res, chain, signed)
}

// mevRoute decides the submission branch: mev only when the producer asked
// for it and a relay serves the chain.
func (e *Executor) mevRoute(opp *opportunity.Opportunity) (mev.Provider, bool) {
	if !opp.UseMev || e.bundler == nil {
		return "", false
	}
	return e.bundler.Available(opp)
}

func (e *Executor) submitStandard(ctx context.Context, r *run, res *Result, chain Chain, signed *txsigner.SignedTx) {
	e.status(r, StatusSubmitting, "")
	metricSubmissions().AddWithLabel(1, map[string]string{"route": "standard"})

	hash, err := chain.SendRawTransaction(ctx, signed.RawHex)
	if err != nil {
		e.fail(r, res, err)
		return
	}
	r.submittedAtNanos = e.now().UnixNano()
	res.TransactionHash = hash.Hex()

	e.status(r, StatusPending, hash.Hex())

	receipt := e.pollReceipt(ctx, chain, hash)
	if receipt == nil {
		res.Reason = "Confirmation timeout"
		e.finish(r, res)
		return
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.ToInt().Uint64()
	}
	if !receipt.Succeeded() {
		res.Reason = "transaction reverted on chain"
		e.finish(r, res)
		return
	}

	r.confirmedAtNanos = e.now().UnixNano()
	res.Success = true
	e.finish(r, res)
}

// pollReceipt waits for the transaction to be mined within the poll budget.
// A nil return means the budget elapsed; the transaction may still land.
func (e *Executor) pollReceipt(ctx context.Context, chain Chain, hash common.Hash) *gateway.Receipt {
	ticker := time.NewTicker(e.opts.ReceiptPollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < e.opts.ReceiptPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			receipt, err := chain.TransactionReceipt(ctx, hash)
			if err != nil {
				if err != gateway.ErrNotFound {
					logger.Warn().Err(err).Str("tx", hash.Hex()).Msg("receipt poll failed")
				}
				continue
			}
			return receipt
		}
	}
	return nil
}

func (e *Executor) submitBundle(
	ctx context.Context,
	r *run,
	res *Result,
	opp *opportunity.Opportunity,
	chain Chain,
	signed *txsigner.SignedTx,
	provider mev.Provider,
) {
	e.status(r, StatusSubmittingMev, string(provider))
	metricSubmissions().AddWithLabel(1, map[string]string{"route": "mev"})
	res.MevProvider = string(provider)

	// Builder relays target head+1; the block engine ignores head.
	var head uint64
	if provider != mev.ProviderJito {
		h, err := chain.BlockNumber(ctx)
		if err != nil {
			e.fail(r, res, err)
			return
		}
		head = h
	}

	sub, err := e.bundler.Submit(ctx, opp, signed.RawHex, signed.Hash, head)
	if err != nil {
		e.fail(r, res, err)
		return
	}
	r.submittedAtNanos = e.now().UnixNano()
	res.BundleID = sub.BundleID
	res.TransactionHash = signed.Hash.Hex()

	e.status(r, StatusPending, sub.BundleID)

	out := e.bundler.Await(ctx, sub, chain)
	e.sink.PublishBundleOutcome(out)

	res.WasFrontrun = out.WasFrontrun
	res.WasBackrun = out.WasBackrun
	res.BlockNumber = out.BlockNumber
	if !out.Landed {
		res.Reason = out.Reason
		e.finish(r, res)
		return
	}

	r.confirmedAtNanos = e.now().UnixNano()
	res.Success = true
	e.finish(r, res)
}

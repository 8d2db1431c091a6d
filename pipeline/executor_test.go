// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pipeline

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulwcunningham/FLIS/gasbid"
	"github.com/paulwcunningham/FLIS/gateway"
	"github.com/paulwcunningham/FLIS/mev"
	"github.com/paulwcunningham/FLIS/opportunity"
	"github.com/paulwcunningham/FLIS/sim"
	"github.com/paulwcunningham/FLIS/txsigner"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeChain struct {
	chainID  *big.Int
	head     uint64
	callRet  []byte
	callErr  error
	txHash   common.Hash
	sendErr  error
	receipts []*gateway.Receipt

	sendCalls    int
	receiptCalls int
}

func (c *fakeChain) ChainID() *big.Int { return c.chainID }

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) { return c.head, nil }

func (c *fakeChain) Call(context.Context, *gateway.CallMsg) ([]byte, error) {
	return c.callRet, c.callErr
}

func (c *fakeChain) SendRawTransaction(context.Context, string) (common.Hash, error) {
	c.sendCalls++
	return c.txHash, c.sendErr
}

func (c *fakeChain) TransactionReceipt(context.Context, common.Hash) (*gateway.Receipt, error) {
	i := c.receiptCalls
	c.receiptCalls++
	if i >= len(c.receipts) || c.receipts[i] == nil {
		return nil, gateway.ErrNotFound
	}
	return c.receipts[i], nil
}

func (c *fakeChain) PendingNonce(context.Context, common.Address) (uint64, error) { return 7, nil }

type fakeChains struct {
	chain *fakeChain
}

func (f *fakeChains) Get(string) (Chain, error) { return f.chain, nil }

type fakeBidder struct {
	bid   *gasbid.Bid
	err   error
	calls int
}

func (b *fakeBidder) GetBid(context.Context, *opportunity.Opportunity) (*gasbid.Bid, error) {
	b.calls++
	return b.bid, b.err
}

type fakeBundler struct {
	provider  mev.Provider
	available bool
	sub       *mev.Submission
	subErr    error
	outcome   *mev.BundleOutcome
}

func (f *fakeBundler) Available(*opportunity.Opportunity) (mev.Provider, bool) {
	return f.provider, f.available
}

func (f *fakeBundler) Submit(context.Context, *opportunity.Opportunity, string, common.Hash, uint64) (*mev.Submission, error) {
	return f.sub, f.subErr
}

func (f *fakeBundler) Await(context.Context, *mev.Submission, mev.ReceiptSource) *mev.BundleOutcome {
	return f.outcome
}

// recordingSink keeps every publish in arrival order so tests can assert the
// result-before-terminal-status contract.
type recordingSink struct {
	events   []string
	results  []*Result
	statuses []*StatusUpdate
	bundles  []*mev.BundleOutcome
	learning []*Result
}

func (s *recordingSink) PublishResult(res *Result) {
	s.events = append(s.events, "result")
	s.results = append(s.results, res)
}

func (s *recordingSink) PublishStatus(upd *StatusUpdate) {
	s.events = append(s.events, "status:"+upd.Status)
	s.statuses = append(s.statuses, upd)
}

func (s *recordingSink) PublishBundleOutcome(out *mev.BundleOutcome) {
	s.events = append(s.events, "bundle")
	s.bundles = append(s.bundles, out)
}

func (s *recordingSink) PublishLearning(res *Result) {
	s.events = append(s.events, "learning")
	s.learning = append(s.learning, res)
}

func (s *recordingSink) statusTags() []string {
	tags := make([]string, 0, len(s.statuses))
	for _, upd := range s.statuses {
		tags = append(tags, upd.Status)
	}
	return tags
}

func fastOptions() Options {
	return Options{
		ReceiptPollInterval: time.Millisecond,
		ReceiptPollAttempts: 3,
	}
}

func ethereumOpp() *opportunity.Opportunity {
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

func standardBid() *gasbid.Bid {
	return &gasbid.Bid{
		GasPriceGwei:     decimal.NewFromInt(50),
		GasLimit:         300000,
		EstimatedCostUSD: decimal.NewFromInt(25),
	}
}

func profitWord() []byte {
	return common.LeftPadBytes(big.NewInt(1).Bytes(), 32)
}

func newExecutor(t *testing.T, chain *fakeChain, bidder *fakeBidder, bundler Bundler, sink Sink) *Executor {
	t.Helper()
	signer, err := txsigner.New(testKeyHex)
	require.NoError(t, err)
	simulator := sim.New(map[string]common.Address{
		"ethereum": common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		"solana":   common.HexToAddress("0x000000000000000000000000000000000000bEEF"),
	}, signer.Address())
	return New(&fakeChains{chain: chain}, bidder, simulator, signer, bundler, sink, fastOptions())
}

func TestProcessProfitableCrossDex(t *testing.T) {
	block := (*hexutil.Big)(hexutil.MustDecodeBig("0x64"))
	chain := &fakeChain{
		chainID: big.NewInt(1),
		callRet: profitWord(),
		txHash:  common.HexToHash("0xbeef"),
		receipts: []*gateway.Receipt{
			nil,
			{BlockNumber: block, Status: 1, GasUsed: 210000},
		},
	}
	sink := &recordingSink{}
	exec := newExecutor(t, chain, &fakeBidder{bid: standardBid()}, nil, sink)

	exec.Process(context.Background(), ethereumOpp())

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.Equal(t, "E1", res.OpportunityID)
	assert.True(t, res.Success)
	assert.True(t, res.EstimatedProfitUSD.Equal(decimal.NewFromInt(566)), "net=%s", res.EstimatedProfitUSD)
	assert.NotEmpty(t, res.TransactionHash)
	assert.Equal(t, uint64(100), res.BlockNumber)

	assert.Equal(t, []string{"received", "simulating", "submitting", "pending", "confirmed"}, sink.statusTags())

	// terminal status comes after the result publish
	assert.Equal(t, "result", sink.events[len(sink.events)-3])
	assert.Equal(t, "learning", sink.events[len(sink.events)-2])
	assert.Equal(t, "status:confirmed", sink.events[len(sink.events)-1])

	// timestamps are monotone through the run
	assert.LessOrEqual(t, res.ReceivedAtNanos, res.SimStartedAtNanos)
	assert.LessOrEqual(t, res.SimStartedAtNanos, res.SimCompletedAtNanos)
	assert.LessOrEqual(t, res.SimCompletedAtNanos, res.SubmittedAtNanos)
	assert.LessOrEqual(t, res.SubmittedAtNanos, res.ConfirmedAtNanos)
	assert.Greater(t, res.TotalLatencyMs, 0.0)
}

func TestProcessUnprofitableMultiHop(t *testing.T) {
	chain := &fakeChain{chainID: big.NewInt(1), callRet: profitWord()}
	sink := &recordingSink{}

	opp := ethereumOpp()
	opp.ID = "E2"
	opp.Strategy = opportunity.StrategyMultiHop
	opp.Path = opportunity.Path{"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"}
	opp.Amount = decimal.NewFromInt(100)
	opp.MinProfit = decimal.NewFromInt(5)
	opp.ExpectedProfit = decimal.NewFromInt(5)

	bid := &gasbid.Bid{GasPriceGwei: decimal.NewFromInt(80), GasLimit: 400000, EstimatedCostUSD: decimal.NewFromInt(40)}
	exec := newExecutor(t, chain, &fakeBidder{bid: bid}, nil, sink)

	exec.Process(context.Background(), opp)

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "unprofitable")
	assert.True(t, res.EstimatedProfitUSD.Equal(decimal.RequireFromString("-35.09")), "net=%s", res.EstimatedProfitUSD)
	assert.Zero(t, chain.sendCalls)
	assert.Equal(t, []string{"received", "simulating", "failed"}, sink.statusTags())
}

func TestProcessSimulationRevert(t *testing.T) {
	chain := &fakeChain{chainID: big.NewInt(1), callErr: &gateway.RevertError{Reason: "profit below minimum"}}
	sink := &recordingSink{}
	exec := newExecutor(t, chain, &fakeBidder{bid: standardBid()}, nil, sink)

	exec.Process(context.Background(), ethereumOpp())

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "revert")
	assert.Contains(t, res.Reason, "profit below minimum")
	assert.Empty(t, res.TransactionHash)
	assert.Zero(t, chain.sendCalls)
}

func TestProcessMevRoutedSolana(t *testing.T) {
	chain := &fakeChain{chainID: big.NewInt(0), callRet: profitWord()}
	sink := &recordingSink{}

	aoi := 0.8
	opp := ethereumOpp()
	opp.ID = "S1"
	opp.ChainName = "solana"
	opp.Strategy = opportunity.StrategyMevRouted
	opp.UseMev = true
	opp.AoiScore = &aoi
	opp.MaxMevTip = decimal.RequireFromString("0.5")
	opp.ExpectedProfit = decimal.NewFromInt(600)

	bundler := &fakeBundler{
		provider:  mev.ProviderJito,
		available: true,
		sub:       &mev.Submission{Provider: mev.ProviderJito, BundleID: "b-1", TipLamports: 22_500},
		outcome: &mev.BundleOutcome{
			Provider:    mev.ProviderJito,
			BundleID:    "b-1",
			Landed:      true,
			BlockNumber: 12345,
			TipLamports: 22_500,
		},
	}
	exec := newExecutor(t, chain, &fakeBidder{bid: standardBid()}, bundler, sink)

	exec.Process(context.Background(), opp)

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.True(t, res.Success)
	assert.Equal(t, "jito", res.MevProvider)
	assert.Equal(t, "b-1", res.BundleID)
	assert.Equal(t, uint64(12345), res.BlockNumber)

	require.Len(t, sink.bundles, 1)
	assert.Equal(t, int64(22_500), sink.bundles[0].TipLamports)

	assert.Equal(t, []string{"received", "simulating", "submitting_mev", "pending", "confirmed"}, sink.statusTags())
	assert.Zero(t, chain.sendCalls)
}

func TestProcessBundleTimeout(t *testing.T) {
	chain := &fakeChain{chainID: big.NewInt(1), callRet: profitWord(), head: 99}
	sink := &recordingSink{}

	opp := ethereumOpp()
	opp.UseMev = true

	bundler := &fakeBundler{
		provider:  mev.ProviderSuave,
		available: true,
		sub:       &mev.Submission{Provider: mev.ProviderSuave, BundleID: "b-2", TargetBlock: 100},
		outcome: &mev.BundleOutcome{
			Provider: mev.ProviderSuave,
			BundleID: "b-2",
			Reason:   "Confirmation timeout",
		},
	}
	exec := newExecutor(t, chain, &fakeBidder{bid: standardBid()}, bundler, sink)

	exec.Process(context.Background(), opp)

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.False(t, res.Success)
	assert.Equal(t, "Confirmation timeout", res.Reason)
	assert.Equal(t, "b-2", res.BundleID)
	assert.Zero(t, res.BlockNumber)
}

func TestProcessMevFlagWithoutRelayTakesStandardPath(t *testing.T) {
	block := (*hexutil.Big)(hexutil.MustDecodeBig("0x64"))
	chain := &fakeChain{
		chainID:  big.NewInt(1),
		callRet:  profitWord(),
		txHash:   common.HexToHash("0xbeef"),
		receipts: []*gateway.Receipt{{BlockNumber: block, Status: 1}},
	}
	sink := &recordingSink{}

	opp := ethereumOpp()
	opp.UseMev = true

	exec := newExecutor(t, chain, &fakeBidder{bid: standardBid()}, &fakeBundler{available: false}, sink)
	exec.Process(context.Background(), opp)

	require.Len(t, sink.results, 1)
	assert.True(t, sink.results[0].Success)
	assert.Empty(t, sink.results[0].MevProvider)
	assert.Equal(t, 1, chain.sendCalls)
}

func TestProcessDeadlineExceeded(t *testing.T) {
	chain := &fakeChain{chainID: big.NewInt(1)}
	sink := &recordingSink{}
	bidder := &fakeBidder{bid: standardBid()}
	exec := newExecutor(t, chain, bidder, nil, sink)

	opp := ethereumOpp()
	opp.Deadline = float64(time.Now().Add(-time.Second).Unix())

	exec.Process(context.Background(), opp)

	require.Len(t, sink.results, 1)
	assert.False(t, sink.results[0].Success)
	assert.Equal(t, "deadline exceeded", sink.results[0].Reason)
	assert.Zero(t, bidder.calls)
	assert.Zero(t, chain.sendCalls)
}

func TestProcessBidFailure(t *testing.T) {
	chain := &fakeChain{chainID: big.NewInt(1)}
	sink := &recordingSink{}
	exec := newExecutor(t, chain, &fakeBidder{err: &gasbid.BidError{}}, nil, sink)

	exec.Process(context.Background(), ethereumOpp())

	require.Len(t, sink.results, 1)
	assert.False(t, sink.results[0].Success)
	assert.Zero(t, chain.sendCalls)
}

func TestProcessReceiptTimeout(t *testing.T) {
	chain := &fakeChain{
		chainID: big.NewInt(1),
		callRet: profitWord(),
		txHash:  common.HexToHash("0xbeef"),
	}
	sink := &recordingSink{}
	exec := newExecutor(t, chain, &fakeBidder{bid: standardBid()}, nil, sink)

	exec.Process(context.Background(), ethereumOpp())

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.False(t, res.Success)
	assert.Equal(t, "Confirmation timeout", res.Reason)
	assert.NotEmpty(t, res.TransactionHash)
	assert.Equal(t, 3, chain.receiptCalls)
}

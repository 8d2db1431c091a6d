// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pipeline drives one opportunity from receipt to a published result.
// Each run owns its mutable state; nothing is shared across runs except the
// read-only collaborators wired at startup.
package pipeline

import (
	"time"

	"github.com/shopspring/decimal"
)

// Published status tags, in pipeline order. Rejections and faults both
// terminate with StatusFailed; the distinction lives in the result reason.
const (
	StatusReceived      = "received"
	StatusSimulating    = "simulating"
	StatusSubmitting    = "submitting"
	StatusSubmittingMev = "submitting_mev"
	StatusPending       = "pending"
	StatusConfirmed     = "confirmed"
	StatusFailed        = "failed"
)

// StatusUpdate is the ephemeral progress notification published on every
// state transition.
type StatusUpdate struct {
	OpportunityID string `json:"opportunityId"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
	Detail        string `json:"detail,omitempty"`
}

// Result is the single durable end-of-run record. One is published per
// opportunity, success or not.
type Result struct {
	OpportunityID string `json:"opportunityId"`
	Chain         string `json:"chain"`
	Strategy      string `json:"strategy"`
	Success       bool   `json:"success"`

	TransactionHash string `json:"transactionHash,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`

	GasUsedUSD         decimal.Decimal `json:"gasUsedUsd"`
	FlashLoanFeeUSD    decimal.Decimal `json:"flashLoanFeeUsd"`
	EstimatedProfitUSD decimal.Decimal `json:"estimatedProfitUsd"`

	Reason string `json:"reason,omitempty"`

	MevProvider string `json:"mevProvider,omitempty"`
	BundleID    string `json:"bundleId,omitempty"`
	WasFrontrun bool   `json:"wasFrontrun"`
	WasBackrun  bool   `json:"wasBackrun"`

	ReceivedAtNanos     int64 `json:"receivedAtNanos"`
	SimStartedAtNanos   int64 `json:"simStartedAtNanos"`
	SimCompletedAtNanos int64 `json:"simCompletedAtNanos"`
	SubmittedAtNanos    int64 `json:"submittedAtNanos"`
	ConfirmedAtNanos    int64 `json:"confirmedAtNanos"`

	TotalLatencyMs      float64 `json:"totalLatencyMs"`
	SimulationLatencyMs float64 `json:"simulationLatencyMs"`
}

// PolicyRejection marks a run that ended by policy rather than by fault:
// unprofitable, expired, unknown chain, missing binding.
type PolicyRejection struct {
	Reason string
}

func (e *PolicyRejection) Error() string { return e.Reason }

// run is the per-opportunity mutable state. It never crosses the pipeline
// boundary; the terminal Result is derived from it.
type run struct {
	opportunityID string

	receivedAtNanos     int64
	simStartedAtNanos   int64
	simCompletedAtNanos int64
	submittedAtNanos    int64
	confirmedAtNanos    int64
}

func newRun(opportunityID string, now time.Time) *run {
	return &run{
		opportunityID:   opportunityID,
		receivedAtNanos: now.UnixNano(),
	}
}

// stamp copies the run's timestamps into the result and derives latencies.
// Total latency is measured to confirmation when the run confirmed, else to
// the terminal publish.
func (r *run) stamp(res *Result, now time.Time) {
	res.ReceivedAtNanos = r.receivedAtNanos
	res.SimStartedAtNanos = r.simStartedAtNanos
	res.SimCompletedAtNanos = r.simCompletedAtNanos
	res.SubmittedAtNanos = r.submittedAtNanos
	res.ConfirmedAtNanos = r.confirmedAtNanos

	end := r.confirmedAtNanos
	if end == 0 {
		end = now.UnixNano()
	}
	res.TotalLatencyMs = float64(end-r.receivedAtNanos) / 1e6
	if r.simCompletedAtNanos > 0 && r.simStartedAtNanos > 0 {
		res.SimulationLatencyMs = float64(r.simCompletedAtNanos-r.simStartedAtNanos) / 1e6
	}
}

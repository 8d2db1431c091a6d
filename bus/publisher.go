// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bus

import (
	"encoding/json"
	"strings"

	"github.com/paulwcunningham/FLIS/metrics"
	"github.com/paulwcunningham/FLIS/mev"
	"github.com/paulwcunningham/FLIS/pipeline"
)

const learningSubject = "mloptimizer.training.flashloan"

var metricPublishes = metrics.LazyLoadCounterVec("bus_publishes_total", []string{"lane", "outcome"})

// ResultSubject returns the durable result lane for a chain.
func ResultSubject(chain string) string {
	return "flashloan.result." + strings.ToLower(chain)
}

// StatusSubject returns the per-opportunity status lane.
func StatusSubject(opportunityID string) string {
	return "flashloan.status." + opportunityID
}

// BundleSubject returns the durable bundle-outcome lane for a provider.
func BundleSubject(provider mev.Provider) string {
	return "mev.bundle.result." + string(provider)
}

// Transport is the connection surface the publisher needs. *Conn provides
// it; tests substitute a fake.
type Transport interface {
	IsConnected() bool
	Publish(subject string, data []byte) error
	PublishDurable(subject string, data []byte) error
}

// Publisher serializes run records onto their subjects. Publishing never
// fails the caller: a disconnected bus or a publish error is logged and the
// message dropped.
type Publisher struct {
	t Transport
}

// NewPublisher creates a publisher over the bus connection.
func NewPublisher(t Transport) *Publisher {
	return &Publisher{t: t}
}

func (p *Publisher) publish(lane, subject string, v any, durable bool) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Str("subject", subject).Msg("unable to marshal payload")
		metricPublishes().AddWithLabel(1, map[string]string{"lane": lane, "outcome": "marshal_error"})
		return
	}
	if !p.t.IsConnected() {
		logger.Warn().Str("subject", subject).Msg("bus not connected, dropping publish")
		metricPublishes().AddWithLabel(1, map[string]string{"lane": lane, "outcome": "dropped"})
		return
	}

	if durable {
		err = p.t.PublishDurable(subject, data)
	} else {
		err = p.t.Publish(subject, data)
	}
	if err != nil {
		logger.Warn().Err(err).Str("subject", subject).Msg("publish failed")
		metricPublishes().AddWithLabel(1, map[string]string{"lane": lane, "outcome": "error"})
		return
	}
	metricPublishes().AddWithLabel(1, map[string]string{"lane": lane, "outcome": "ok"})
}

// PublishResult emits the final run record on its chain's durable lane.
func (p *Publisher) PublishResult(res *pipeline.Result) {
	p.publish("result", ResultSubject(res.Chain), res, true)
}

// PublishStatus emits a progress update, best-effort.
func (p *Publisher) PublishStatus(upd *pipeline.StatusUpdate) {
	p.publish("status", StatusSubject(upd.OpportunityID), upd, false)
}

// PublishBundleOutcome emits the bundle verdict on the provider's durable
// lane.
func (p *Publisher) PublishBundleOutcome(out *mev.BundleOutcome) {
	p.publish("bundle", BundleSubject(out.Provider), out, true)
}

// learningRecord is the flat projection consumed by the training system.
type learningRecord struct {
	OpportunityID       string  `json:"opportunityId"`
	Chain               string  `json:"chain"`
	Strategy            string  `json:"strategy"`
	Success             bool    `json:"success"`
	GasUsedUSD          string  `json:"gasUsedUsd"`
	FlashLoanFeeUSD     string  `json:"flashLoanFeeUsd"`
	EstimatedProfitUSD  string  `json:"estimatedProfitUsd"`
	MevProvider         string  `json:"mevProvider,omitempty"`
	Reason              string  `json:"reason,omitempty"`
	TotalLatencyMs      float64 `json:"totalLatencyMs"`
	SimulationLatencyMs float64 `json:"simulationLatencyMs"`
}

// PublishLearning emits the analyst-friendly projection of the result.
func (p *Publisher) PublishLearning(res *pipeline.Result) {
	p.publish("learning", learningSubject, &learningRecord{
		OpportunityID:       res.OpportunityID,
		Chain:               res.Chain,
		Strategy:            res.Strategy,
		Success:             res.Success,
		GasUsedUSD:          res.GasUsedUSD.String(),
		FlashLoanFeeUSD:     res.FlashLoanFeeUSD.String(),
		EstimatedProfitUSD:  res.EstimatedProfitUSD.String(),
		MevProvider:         res.MevProvider,
		Reason:              res.Reason,
		TotalLatencyMs:      res.TotalLatencyMs,
		SimulationLatencyMs: res.SimulationLatencyMs,
	}, false)
}

// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bus

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/paulwcunningham/FLIS/co"
	"github.com/paulwcunningham/FLIS/metrics"
	"github.com/paulwcunningham/FLIS/opportunity"
)

var metricInbound = metrics.LazyLoadCounterVec("bus_inbound_total", []string{"outcome"})

// Runner processes one validated opportunity to completion.
type Runner interface {
	Process(ctx context.Context, opp *opportunity.Opportunity)
}

// Subscriber consumes the opportunity subject and fans messages out to
// concurrent pipeline runs. Concurrency is bounded by a semaphore; when all
// slots are busy further messages are dropped with a log entry, bounding
// memory over completeness.
type Subscriber struct {
	conn     *Conn
	subject  string
	resolver opportunity.ChainResolver
	runner   Runner

	sem    chan struct{}
	goes   co.Goes
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscriber creates a subscriber with at most maxConcurrent in-flight
// runs.
func NewSubscriber(conn *Conn, subject string, maxConcurrent int, resolver opportunity.ChainResolver, runner Runner) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		conn:     conn,
		subject:  subject,
		resolver: resolver,
		runner:   runner,
		sem:      make(chan struct{}, maxConcurrent),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the opportunity subject.
func (s *Subscriber) Start() error {
	if s.conn == nil {
		return errors.New("no bus connection")
	}
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		s.dispatch(msg.Data)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	logger.Info().Str("subject", s.subject).Msg("subscribed to opportunity subject")
	return nil
}

// dispatch decodes and validates one inbound message, then hands it to a
// pipeline run if a concurrency slot is free.
func (s *Subscriber) dispatch(data []byte) {
	var opp opportunity.Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		logger.Warn().Err(err).Msg("dropping undecodable opportunity")
		metricInbound().AddWithLabel(1, map[string]string{"outcome": "undecodable"})
		return
	}
	if err := opp.Validate(s.resolver); err != nil {
		logger.Warn().Err(err).Str("id", opp.ID).Msg("dropping invalid opportunity")
		metricInbound().AddWithLabel(1, map[string]string{"outcome": "invalid"})
		return
	}

	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warn().Str("id", opp.ID).Msg("concurrency limit reached, dropping opportunity")
		metricInbound().AddWithLabel(1, map[string]string{"outcome": "overloaded"})
		return
	}

	metricInbound().AddWithLabel(1, map[string]string{"outcome": "accepted"})
	s.goes.Go(func() {
		defer func() { <-s.sem }()
		s.runner.Process(s.ctx, &opp)
	})
}

// Close stops the subscription, cancels in-flight runs' contexts and waits
// for them to finish their terminal publishes. Cancellation happens before
// the wait so a run blocked in a receipt or bundle poll unwinds immediately
// instead of holding shutdown for its full poll budget.
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			logger.Warn().Err(err).Msg("unsubscribe failed")
		}
	}
	s.cancel()
	s.goes.Wait()
}

// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/paulwcunningham/FLIS/bus"
	"github.com/paulwcunningham/FLIS/config"
	"github.com/paulwcunningham/FLIS/gasbid"
	"github.com/paulwcunningham/FLIS/gateway"
	"github.com/paulwcunningham/FLIS/metrics"
	"github.com/paulwcunningham/FLIS/mev"
	"github.com/paulwcunningham/FLIS/pipeline"
	"github.com/paulwcunningham/FLIS/sim"
	"github.com/paulwcunningham/FLIS/txsigner"
)

var (
	version   string
	gitCommit string
	gitTag    string
	log       = zlog.With().Str("pkg", "main").Logger()
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "flis-executor",
		Usage:     "Flash-loan arbitrage executor",
		Copyright: "2025 The FLIS developers",
		Flags: []cli.Flag{
			configFlag,
			verbosityFlag,
			enableMetricsFlag,
			metricsAddrFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(ctx *cli.Context) {
	level, err := zerolog.ParseLevel(ctx.String(verbosityFlag.Name))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// chainRegistry adapts the gateway registry to the pipeline's Chains
// interface.
type chainRegistry struct {
	reg *gateway.Registry
}

func (r chainRegistry) Get(chainName string) (pipeline.Chain, error) {
	client, err := r.reg.Get(chainName)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func run(ctx *cli.Context) error {
	defer func() { log.Info().Msg("exited") }()

	initLogger(ctx)

	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		addr := cfg.MetricsAddr
		if flagAddr := ctx.String(metricsAddrFlag.Name); flagAddr != "" {
			addr = flagAddr
		}
		if addr != "" {
			srv, err := startMetricsServer(addr)
			if err != nil {
				return err
			}
			defer srv.Close()
		}
	}

	registry, err := gateway.NewRegistry(toNodes(cfg.Nodes))
	if err != nil {
		return err
	}
	defer registry.Close()

	signer, err := txsigner.New(cfg.ExecutorWallet.PrivateKey)
	if err != nil {
		return err
	}

	bindings := make(map[string]common.Address, len(cfg.SmartContracts))
	for _, contract := range cfg.SmartContracts {
		bindings[contract.ChainName] = common.HexToAddress(contract.ContractAddress)
	}
	simulator := sim.New(bindings, signer.Address())

	base, path := cfg.GasBidURL()
	bidder := gasbid.New(base, path)

	var jito mev.JitoAPI
	if cfg.Jito.BlockEngineURL != "" {
		jito = mev.NewJitoClient(cfg.Jito.BlockEngineURL, cfg.Jito.TipFloorURL, cfg.Jito.AuthToken)
	}
	var relay mev.EVMRelayAPI
	if cfg.Suave.Endpoint != "" || len(cfg.Suave.BuilderURLs) > 0 {
		relay = mev.NewEVMRelay(cfg.Suave.Endpoint, cfg.Suave.BuilderURLs, cfg.Suave.AuthToken)
	}
	coordinator := mev.NewCoordinator(jito, relay, mev.DefaultOptions())

	conn, err := bus.Connect(bus.Config{
		URL:          cfg.NATS.URL,
		User:         cfg.NATS.User,
		Password:     cfg.NATS.Password,
		UseTLS:       cfg.NATS.UseTLS,
		UseJetStream: cfg.NATS.UseJetStream,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	publisher := bus.NewPublisher(conn)
	executor := pipeline.New(chainRegistry{reg: registry}, bidder, simulator, signer, coordinator, publisher, pipeline.DefaultOptions())

	subscriber := bus.NewSubscriber(conn, cfg.NATS.OpportunitySubject, cfg.MaxConcurrentRuns, registry, executor)
	if err := subscriber.Start(); err != nil {
		return err
	}

	log.Info().
		Str("version", fullVersion()).
		Str("wallet", signer.Address().Hex()).
		Strs("chains", registry.Names()).
		Str("subject", cfg.NATS.OpportunitySubject).
		Msg("executor started")

	<-handleExitSignal()

	log.Info().Msg("draining in-flight runs...")
	subscriber.Close()
	return nil
}

func toNodes(nodes []config.Node) []gateway.Node {
	out := make([]gateway.Node, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, gateway.Node{
			ChainName: node.ChainName,
			RPCURL:    node.RPCURL,
			ChainID:   node.ChainID,
		})
	}
	return out
}

func startMetricsServer(addr string) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler())
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", listener.Addr().String()).Msg("metrics server started")
	return srv, nil
}

func handleExitSignal() chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		received := <-sig
		log.Info().Str("signal", received.String()).Msg("exit signal received")
	}()
	return done
}

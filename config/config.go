// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package config loads the executor configuration file and environment
// overrides. Only the keys documented here are recognized; unknown keys are
// ignored.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// NATS configures the bus connection and subjects.
type NATS struct {
	URL                string `mapstructure:"url"`
	OpportunitySubject string `mapstructure:"opportunitySubject"`
	ResultSubject      string `mapstructure:"resultSubject"`
	UseJetStream       bool   `mapstructure:"useJetStream"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	UseTLS             bool   `mapstructure:"useTls"`
}

// Node is one chain RPC endpoint.
type Node struct {
	ChainName string `mapstructure:"chainName"`
	RPCURL    string `mapstructure:"rpcUrl"`
	ChainID   uint64 `mapstructure:"chainId"`
}

// SmartContract binds the executor contract deployed on one chain.
type SmartContract struct {
	ChainName       string `mapstructure:"chainName"`
	ContractAddress string `mapstructure:"contractAddress"`
	ABI             string `mapstructure:"abi"`
}

// ExecutorWallet holds the signing key. The key is loadable from the
// FLIS_EXECUTORWALLET_PRIVATEKEY environment variable instead of the file.
type ExecutorWallet struct {
	PrivateKey string `mapstructure:"privateKey"`
}

// MLOptimizer locates the gas-bidding oracle.
type MLOptimizer struct {
	BaseURL            string `mapstructure:"baseUrl"`
	GasBiddingEndpoint string `mapstructure:"gasBiddingEndpoint"`
}

// Jito configures the Solana bundle relay.
type Jito struct {
	BlockEngineURL string `mapstructure:"blockEngineUrl"`
	TipFloorURL    string `mapstructure:"tipFloorUrl"`
	AuthToken      string `mapstructure:"authToken"`
}

// Suave configures the EVM builder relays.
type Suave struct {
	Endpoint    string            `mapstructure:"endpoint"`
	BuilderURLs map[string]string `mapstructure:"builderUrls"`
	AuthToken   string            `mapstructure:"authToken"`
}

// Config is the full recognized configuration tree.
type Config struct {
	NATS              NATS            `mapstructure:"nats"`
	Nodes             []Node          `mapstructure:"nodes"`
	SmartContracts    []SmartContract `mapstructure:"smartContracts"`
	ExecutorWallet    ExecutorWallet  `mapstructure:"executorWallet"`
	MLOptimizer       MLOptimizer     `mapstructure:"mlOptimizer"`
	Jito              Jito            `mapstructure:"jito"`
	Suave             Suave           `mapstructure:"suave"`
	MaxConcurrentRuns int             `mapstructure:"maxConcurrentRuns"`
	MetricsAddr       string          `mapstructure:"metricsAddr"`
}

// Load reads the configuration file at path, applies environment overrides
// (FLIS_ prefix, dots replaced by underscores) and validates the required
// keys.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("FLIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("executorWallet.privateKey"); err != nil {
		return nil, errors.Wrap(err, "unable to bind environment")
	}

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.opportunitySubject", "magnus.opportunities.flashloan")
	v.SetDefault("maxConcurrentRuns", 64)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "unable to read config file %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ExecutorWallet.PrivateKey == "" {
		return errors.New("executorWallet.privateKey is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, node := range c.Nodes {
		if node.ChainName == "" || node.RPCURL == "" {
			return errors.Errorf("node entry missing chainName or rpcUrl: %+v", node)
		}
	}
	if c.MaxConcurrentRuns <= 0 {
		return errors.New("maxConcurrentRuns must be positive")
	}
	return nil
}

// GasBidURL joins the oracle base and endpoint path.
func (c *Config) GasBidURL() (base, path string) {
	return c.MLOptimizer.BaseURL, c.MLOptimizer.GasBiddingEndpoint
}

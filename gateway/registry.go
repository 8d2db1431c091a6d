// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gateway

import (
	"strings"

	"github.com/pkg/errors"
)

// Registry holds one Client per configured chain, keyed by lowercased chain
// name. It is built once at startup and read-only afterwards.
type Registry struct {
	clients map[string]*Client
}

// NewRegistry dials every configured node. Any failed dial aborts startup.
func NewRegistry(nodes []Node) (*Registry, error) {
	clients := make(map[string]*Client, len(nodes))
	for _, node := range nodes {
		if node.ChainName == "" || node.RPCURL == "" {
			return nil, errors.New("node entry requires chainName and rpcUrl")
		}
		client, err := Dial(node)
		if err != nil {
			return nil, err
		}
		clients[strings.ToLower(node.ChainName)] = client
	}
	return &Registry{clients: clients}, nil
}

// NewRegistryWithClients builds a registry from pre-constructed clients.
func NewRegistryWithClients(clients ...*Client) *Registry {
	m := make(map[string]*Client, len(clients))
	for _, c := range clients {
		m[strings.ToLower(c.Name())] = c
	}
	return &Registry{clients: m}
}

// Get returns the client for the given chain name.
func (r *Registry) Get(chainName string) (*Client, error) {
	client, ok := r.clients[strings.ToLower(chainName)]
	if !ok {
		return nil, errors.Errorf("no RPC endpoint configured for chain %q", chainName)
	}
	return client, nil
}

// HasChain reports whether a chain is configured.
func (r *Registry) HasChain(chainName string) bool {
	_, ok := r.clients[strings.ToLower(chainName)]
	return ok
}

// Names returns the configured chain names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// Close releases all chain connections.
func (r *Registry) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}

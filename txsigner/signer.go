// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package txsigner assembles and signs executor transactions. The nonce is
// fetched per call; there is no cross-run nonce reservation.
package txsigner

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/paulwcunningham/FLIS/gasbid"
)

// NonceSource yields the executor account's next usable nonce on one chain.
type NonceSource interface {
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
}

// Signer holds the executor key and signs transactions for any chain id.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// New creates a signer from a hex private key, with or without 0x prefix.
func New(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid executor private key")
	}
	return &Signer{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the executor wallet address.
func (s *Signer) Address() common.Address { return s.addr }

// SignedTx is a built, signed transaction ready for submission.
type SignedTx struct {
	RawHex string
	Hash   common.Hash
	Nonce  uint64
}

// BuildAndSign fetches the pending nonce, assembles a legacy transaction to
// the contract with the bid's gas parameters, signs it for chainID and
// returns the hex-encoded raw transaction.
func (s *Signer) BuildAndSign(
	ctx context.Context,
	nonces NonceSource,
	chainID *big.Int,
	to common.Address,
	calldata []byte,
	bid *gasbid.Bid,
) (*SignedTx, error) {
	nonce, err := nonces.PendingNonce(ctx, s.addr)
	if err != nil {
		return nil, errors.Wrap(err, "unable to fetch nonce")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      bid.GasLimit,
		GasPrice: bid.GasPriceGwei.Shift(9).BigInt(),
		Data:     calldata,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "unable to sign transaction")
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode signed transaction")
	}

	return &SignedTx{
		RawHex: hexutil.Encode(raw),
		Hash:   signed.Hash(),
		Nonce:  nonce,
	}, nil
}

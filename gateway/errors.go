// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gateway

import (
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when the chain has no record for the requested
// object, e.g. a receipt that is not yet mined.
var ErrNotFound = errors.New("not found")

// RevertError reports an on-chain revert of a simulated call. It is a
// negative business outcome, not a transport fault, and callers must treat it
// as non-retryable.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// IsRevert reports whether err is (or wraps) a RevertError.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// asRevert converts an RPC error into a RevertError when the node reports a
// contract revert. Geth-lineage nodes surface reverts as a DataError with the
// encoded return data, or as a plain "execution reverted" message.
func asRevert(err error) (*RevertError, bool) {
	if err == nil {
		return nil, false
	}
	msg := err.Error()
	reverted := strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")

	var de rpc.DataError
	if errors.As(err, &de) && de.ErrorData() != nil {
		reverted = true
	}
	if !reverted {
		return nil, false
	}

	reason := ""
	if i := strings.Index(msg, "execution reverted:"); i >= 0 {
		reason = strings.TrimSpace(msg[i+len("execution reverted:"):])
	}
	return &RevertError{Reason: reason}, true
}

package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema.
// Prefix-based so each record family can be range-scanned on startup;
// event keys zero-pad the sequence number for lexicographic ordering.
const (
	prefixBalance = "bal:" // balance entries
	prefixOrder   = "ord:" // order records + lifecycle flags
	prefixEvent   = "evt:" // event journal
)

// balanceKey returns the key for one (asset, account) balance entry.
// Format: "bal:{asset}:{account}"
func balanceKey(assetID, account common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, assetID.Hex(), account.Hex()))
}

// orderKey returns the key for an order record.
// Format: "ord:{id}", zero-padded so scans return orders in ID order.
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// eventKey returns the key for one event journal entry.
// Format: "evt:{seq}", zero-padded for lexicographic ordering.
func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Package asset defines asset identifiers for the exchange ledger.
//
// Every balance in the exchange is keyed by an asset identifier plus an
// account address. An identifier is either the address of a fungible-token
// contract or the Ether sentinel (the zero address) for the chain-native
// asset.
package asset

import "github.com/ethereum/go-ethereum/common"

// Ether is the sentinel identifier for the native asset.
// Mirrors the address(0) convention used by on-chain exchanges.
var Ether = common.Address{}

// IsEther reports whether id denotes the native asset.
func IsEther(id common.Address) bool {
	return id == Ether
}

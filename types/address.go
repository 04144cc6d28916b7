package types

import (
	"bytes"

	"github.com/tendermint/tendermint/crypto"
)

// Address is a 20-byte validator identity: the first 20 bytes of the
// SHA-256 of the validator's public key.
type Address = crypto.Address

// GetAddress derives the address of a public key.
func GetAddress(key crypto.PubKey) Address {
	return key.Address()
}

func addressEqual(a, b Address) bool {
	return bytes.Equal(a, b)
}

// fork from github.com/tendermint/tendermint/crypto/merkle
package merkle

import (
	"crypto/sha256"
)

var (
	leafPrefix  = []byte{0}
	innerPrefix = []byte{1}
)

// returns empty hash
func emptyHash() []byte {
	return make([]byte, sha256.Size)
}

// returns sha256(0x00 || leaf)
func leafHash(leaf []byte) []byte {
	h := sha256.New()
	h.Write(leafPrefix)
	h.Write(leaf)
	return h.Sum(nil)
}

// returns sha256(0x01 || left || right)
func innerHash(left []byte, right []byte) []byte {
	h := sha256.New()
	h.Write(innerPrefix)
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

package signature

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// messagePrefix is the personal-message preamble wallets prepend before signing.
const messagePrefix = "\x19Ethereum Signed Message:\n"

// Keccak256 hashes the concatenation of data with legacy (pre-NIST) Keccak-256.
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// TextHash is the hash a wallet signs for signMessage(msg):
// keccak256(prefix || decimal(len(msg)) || msg).
func TextHash(msg []byte) common.Hash {
	return Keccak256([]byte(messagePrefix+strconv.Itoa(len(msg))), msg)
}

// PrefixedHash applies the personal-message convention to an already-hashed
// 32-byte digest, the form the permission-giver signs attestations in.
func PrefixedHash(digest common.Hash) common.Hash {
	return TextHash(digest.Bytes())
}

// Package signaturetest produces attestations the way an off-chain
// permission-giver wallet does, for use in tests.
package signaturetest

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"accolade/internal/signature"
)

// Account is a test key and its address.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewAccount generates a fresh secp256k1 account.
func NewAccount(t testing.TB) Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// AccountFromHex loads a fixed account, useful for golden vectors.
func AccountFromHex(t testing.TB, hexKey string) Account {
	t.Helper()
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// SignHash signs hash directly and returns V in the 27/28 form.
func (a Account) SignHash(t testing.TB, hash common.Hash) signature.Signature {
	t.Helper()
	raw, err := crypto.Sign(hash.Bytes(), a.Key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw[64] += 27
	sig, err := signature.FromBytes(raw)
	if err != nil {
		t.Fatalf("split signature: %v", err)
	}
	return sig
}

// SignMessage mirrors wallet signMessage(msg).
func (a Account) SignMessage(t testing.TB, msg []byte) signature.Signature {
	t.Helper()
	return a.SignHash(t, signature.TextHash(msg))
}

// Attest signs the canonical digest of (label, recipient) and returns the
// digest together with the signature, as a permission-giver would hand them out.
func (a Account) Attest(t testing.TB, label string, recipient common.Address) (common.Hash, signature.Signature) {
	t.Helper()
	digest, err := signature.CanonicalDigest(label, recipient)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	return digest, a.SignMessage(t, digest.Bytes())
}

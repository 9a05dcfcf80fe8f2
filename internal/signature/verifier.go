package signature

import (
	"crypto/subtle"

	"github.com/ethereum/go-ethereum/common"
)

// Verifier checks an attestation that recipient may claim the achievement
// labelled label.
type Verifier interface {
	Verify(label string, recipient common.Address, digest common.Hash, sig Signature, permissionGiver common.Address) error
}

// ECDSAVerifier verifies attestations signed with the personal-message
// convention over the canonical claim digest.
type ECDSAVerifier struct{}

func NewECDSAVerifier() *ECDSAVerifier {
	return &ECDSAVerifier{}
}

// Verify recovers the signer of the supplied digest and accepts only when the
// digest equals the one derived locally from (label, recipient) and the
// signer is permissionGiver. A digest signed for another label or recipient
// is a mismatch even if the signature itself is valid.
func (v *ECDSAVerifier) Verify(label string, recipient common.Address, digest common.Hash, sig Signature, permissionGiver common.Address) error {
	signer, err := RecoverSigner(PrefixedHash(digest), sig)
	if err != nil {
		return err
	}
	expected, err := CanonicalDigest(label, recipient)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected.Bytes(), digest.Bytes()) != 1 {
		return ErrSignatureMismatch
	}
	if signer != permissionGiver {
		return ErrSignatureMismatch
	}
	return nil
}

package signature

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	dErrors "accolade/pkg/domain-errors"
)

// Length of a serialized r || s || v signature.
const Length = 65

var (
	ErrInvalidSignature  = dErrors.New(dErrors.CodeInvalidSignature, "invalid signature")
	ErrSignatureMismatch = dErrors.New(dErrors.CodeSignatureMismatch, dErrors.ReasonWrongMessage)
)

// Signature holds the components of a recoverable secp256k1 signature.
// V is the recovery marker, either 27/28 or 0/1.
type Signature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// Parse splits a 0x-prefixed 65-byte r || s || v signature.
func Parse(s string) (Signature, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(raw) != Length {
		return Signature{}, ErrInvalidSignature
	}
	return FromBytes(raw)
}

// FromBytes splits a 65-byte r || s || v signature.
func FromBytes(raw []byte) (Signature, error) {
	if len(raw) != Length {
		return Signature{}, ErrInvalidSignature
	}
	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]
	return sig, nil
}

// Bytes serializes the signature as r || s || v, keeping V as given.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, Length)
	out = append(out, s.R[:]...)
	out = append(out, s.S[:]...)
	return append(out, s.V)
}

func (s Signature) Hex() string {
	return hexutil.Encode(s.Bytes())
}

// recoveryID normalizes V to 0 or 1.
func (s Signature) recoveryID() (byte, error) {
	switch s.V {
	case 0, 1:
		return s.V, nil
	case 27, 28:
		return s.V - 27, nil
	default:
		return 0, ErrInvalidSignature
	}
}

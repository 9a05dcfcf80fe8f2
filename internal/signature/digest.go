package signature

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// claimArguments is the ABI tuple (string label, address recipient). Its
// encoding is what off-chain signers hash; changing it invalidates every
// attestation already issued.
var claimArguments = mustClaimArguments()

func mustClaimArguments() abi.Arguments {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "label", Type: stringType},
		{Name: "recipient", Type: addressType},
	}
}

// EncodeClaim returns abi.encode(label, recipient).
func EncodeClaim(label string, recipient common.Address) ([]byte, error) {
	packed, err := claimArguments.Pack(label, recipient)
	if err != nil {
		return nil, fmt.Errorf("encode claim: %w", err)
	}
	return packed, nil
}

// CanonicalDigest is keccak256(abi.encode(label, recipient)).
func CanonicalDigest(label string, recipient common.Address) (common.Hash, error) {
	packed, err := EncodeClaim(label, recipient)
	if err != nil {
		return common.Hash{}, err
	}
	return Keccak256(packed), nil
}

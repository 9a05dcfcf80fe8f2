package signature

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverSigner recovers the address whose key produced sig over hash.
// Out-of-range, zero or high-s components fail with ErrInvalidSignature
// instead of recovering an arbitrary address.
func RecoverSigner(hash common.Hash, sig Signature) (common.Address, error) {
	recID, err := sig.recoveryID()
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(recID, r, s, true) {
		return common.Address{}, ErrInvalidSignature
	}

	raw := make([]byte, Length)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = recID

	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverPersonal recovers the signer of a wallet personal message.
func RecoverPersonal(msg []byte, sig Signature) (common.Address, error) {
	return RecoverSigner(TextHash(msg), sig)
}

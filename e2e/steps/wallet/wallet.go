// Package wallet signs sign-in challenges and attestations the way a
// browser wallet and the permission-giver's tooling do.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// Load returns the account for a role. "admin" and "permission giver" read
// their keys from E2E_ADMIN_KEY and E2E_PERMISSION_GIVER_KEY so they match
// the server's configured roles; any other name gets a fresh key.
func Load(name string) (*Account, error) {
	var envKey string
	switch name {
	case "admin":
		envKey = "E2E_ADMIN_KEY"
	case "permission giver":
		envKey = "E2E_PERMISSION_GIVER_KEY"
	}
	if envKey == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		return &Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
	}
	raw := strings.TrimPrefix(os.Getenv(envKey), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", envKey)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", envKey, err)
	}
	return &Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SignMessage returns the 65-byte personal-message signature with V as 27/28.
func (a *Account) SignMessage(msg []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), a.Key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// Attest returns keccak256(abi.encode(label, recipient)) and its signature.
func (a *Account) Attest(label string, recipient common.Address) (string, string, error) {
	stringType, _ := abi.NewType("string", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	packed, err := abi.Arguments{{Type: stringType}, {Type: addressType}}.Pack(label, recipient)
	if err != nil {
		return "", "", err
	}
	digest := crypto.Keccak256Hash(packed)
	sig, err := a.SignMessage(digest.Bytes())
	if err != nil {
		return "", "", err
	}
	return digest.Hex(), sig, nil
}

package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is a signing key and the account it controls.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// Hex returns the private key as hex without the 0x prefix.
func (w *Wallet) Hex() string {
	return hex.EncodeToString(crypto.FromECDSA(w.PrivateKey))
}

// Generate creates a fresh key, used for local development chains.
func Generate() (*Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return fromKey(privateKey), nil
}

// FromHex loads a key from hex, with or without the 0x prefix.
func FromHex(privKeyHex string) (*Wallet, error) {
	privKeyHex = strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x")
	privBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key hex: %v", err)
	}

	privKey, err := crypto.ToECDSA(privBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to ECDSA: %v", err)
	}
	return fromKey(privKey), nil
}

// FromList loads a comma separated list of hex keys, skipping blanks.
func FromList(list string) ([]*Wallet, error) {
	var out []*Wallet
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		w, err := FromHex(part)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func fromKey(k *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: k,
		Address:    crypto.PubkeyToAddress(k.PublicKey),
	}
}

package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Identity is a resolved signing key together with the address it controls.
// The operator process carries one Identity: its address must match the
// operator role registered in the engine, and its key signs custody
// transactions.
type Identity struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewIdentity parses a hex-encoded secp256k1 private key.
func NewIdentity(privateKeyHex string) (*Identity, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Identity{
		key:     pk,
		address: ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// LoadIdentity resolves a key via LoadKey and derives its identity.
func LoadIdentity(cfg KeyConfig) (*Identity, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewIdentity(keyHex)
}

// Address returns the address derived from the key.
func (id *Identity) Address() common.Address { return id.address }

// PrivateKey exposes the raw key for transaction signing.
func (id *Identity) PrivateKey() *ecdsa.PrivateKey { return id.key }

package wallets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"solana-fee-ledger-go/internal/store"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// Compile-time checks.
var (
	_ KeyValidator    = (*Keyring)(nil)
	_ KeypairProvider = (*Keyring)(nil)
)

// Keyring validates, generates and seals ed25519 keypairs. Keys are accepted
// and produced in the chain's conventions: base58 addresses, base58-encoded
// 64-byte private keys. At rest, key material is AES-GCM sealed under a key
// derived from the configured secret.
type Keyring struct {
	aead cipher.AEAD
}

func NewKeyring(secret string) (*Keyring, error) {
	if secret == "" {
		return nil, fmt.Errorf("wallet encryption secret cannot be empty")
	}

	derived := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, fmt.Errorf("unable to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize AEAD: %w", err)
	}

	return &Keyring{aead: aead}, nil
}

// ValidateAndEncrypt checks a user-supplied private key, derives its
// address, and seals the key for storage. The raw key is never persisted
// or logged.
func (k *Keyring) ValidateAndEncrypt(_ context.Context, rawKey string) (string, string, error) {
	keyBytes := base58.Decode(rawKey)
	if len(keyBytes) != ed25519.PrivateKeySize {
		return "", "", fmt.Errorf("%w: expected %d key bytes, got %d",
			store.ErrInvalidKeyMaterial, ed25519.PrivateKeySize, len(keyBytes))
	}

	priv := ed25519.PrivateKey(keyBytes)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return "", "", store.ErrInvalidKeyMaterial
	}

	sealed, err := k.seal(keyBytes)
	if err != nil {
		return "", "", err
	}
	return sealed, base58.Encode(pub), nil
}

// Generate creates a fresh keypair and returns its address with the sealed
// private key.
func (k *Keyring) Generate(_ context.Context) (string, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("unable to generate keypair: %w", err)
	}

	sealed, err := k.seal(priv)
	if err != nil {
		return "", "", err
	}
	return base58.Encode(pub), sealed, nil
}

// Open unseals stored key material back into a usable private key.
func (k *Keyring) Open(encryptedKey string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", store.ErrInvalidKeyMaterial)
	}
	if len(raw) < k.aead.NonceSize() {
		return nil, fmt.Errorf("%w: sealed blob too short", store.ErrInvalidKeyMaterial)
	}

	nonce, ciphertext := raw[:k.aead.NonceSize()], raw[k.aead.NonceSize():]
	keyBytes, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to unseal key", store.ErrInvalidKeyMaterial)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: unsealed to %d bytes", store.ErrInvalidKeyMaterial, len(keyBytes))
	}
	return ed25519.PrivateKey(keyBytes), nil
}

func (k *Keyring) seal(keyBytes []byte) (string, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("unable to generate nonce: %w", err)
	}

	sealed := k.aead.Seal(nonce, nonce, keyBytes, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

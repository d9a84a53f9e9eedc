package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
)

type plainOpener struct {
	keys map[string]ed25519.PrivateKey
}

func (p *plainOpener) Open(encryptedKey string) (ed25519.PrivateKey, error) {
	return p.keys[encryptedKey], nil
}

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	return pub, priv
}

func testBlockhash() string {
	return base58.Encode(make([]byte, 32))
}

func TestSignTransfer(t *testing.T) {
	fromPub, fromPriv := testKeypair(t)
	toPub, _ := testKeypair(t)
	signer := NewKeySigner(&plainOpener{keys: map[string]ed25519.PrivateKey{"blob": fromPriv}})

	signed, err := signer.SignTransfer(context.Background(), SignParams{
		EncryptedKey:    "blob",
		FromAddress:     base58.Encode(fromPub),
		ToAddress:       base58.Encode(toPub),
		Lamports:        1_000_000,
		RecentBlockhash: testBlockhash(),
	})
	if err != nil {
		t.Fatalf("SignTransfer failed: %v", err)
	}

	wire, err := base64.StdEncoding.DecodeString(signed.WireData)
	if err != nil {
		t.Fatalf("Wire data is not valid base64: %v", err)
	}
	if wire[0] != 1 {
		t.Errorf("Expected 1 signature, got %d", wire[0])
	}

	// The embedded signature must verify against the message under the
	// sender's key
	signature := wire[1:65]
	message := wire[65:]
	if !ed25519.Verify(fromPub, message, signature) {
		t.Error("Signature does not verify against the message")
	}
	if base58.Encode(signature) != signed.Signature {
		t.Error("Reported signature does not match the wire signature")
	}
}

func TestSignTransfer_KeyMismatch(t *testing.T) {
	_, fromPriv := testKeypair(t)
	otherPub, _ := testKeypair(t)
	toPub, _ := testKeypair(t)
	signer := NewKeySigner(&plainOpener{keys: map[string]ed25519.PrivateKey{"blob": fromPriv}})

	// The key opens fine but does not own the claimed source address
	_, err := signer.SignTransfer(context.Background(), SignParams{
		EncryptedKey:    "blob",
		FromAddress:     base58.Encode(otherPub),
		ToAddress:       base58.Encode(toPub),
		Lamports:        1,
		RecentBlockhash: testBlockhash(),
	})
	if err == nil {
		t.Error("Expected error for key/address mismatch")
	}
}

func TestSignTransfer_BadAddresses(t *testing.T) {
	fromPub, fromPriv := testKeypair(t)
	signer := NewKeySigner(&plainOpener{keys: map[string]ed25519.PrivateKey{"blob": fromPriv}})

	_, err := signer.SignTransfer(context.Background(), SignParams{
		EncryptedKey:    "blob",
		FromAddress:     base58.Encode(fromPub),
		ToAddress:       "not-an-address",
		Lamports:        1,
		RecentBlockhash: testBlockhash(),
	})
	if err == nil {
		t.Error("Expected error for invalid destination address")
	}
}

package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// Compile-time check: *KeySigner must satisfy Signer.
var _ Signer = (*KeySigner)(nil)

// systemProgramId is the native program that executes plain transfers.
// Its address is the 32-byte zero key.
var systemProgramId [32]byte

const transferInstruction uint32 = 2

// KeyOpener unseals stored key material. Implemented by the wallet keyring.
type KeyOpener interface {
	Open(encryptedKey string) (ed25519.PrivateKey, error)
}

// KeySigner builds and signs system-program transfer transactions. The
// resulting wire format is a single-signer legacy transaction: signature
// array, then the signed message.
type KeySigner struct {
	opener KeyOpener
}

func NewKeySigner(opener KeyOpener) *KeySigner {
	return &KeySigner{opener: opener}
}

func (s *KeySigner) SignTransfer(_ context.Context, params SignParams) (*SignedTransfer, error) {
	priv, err := s.opener.Open(params.EncryptedKey)
	if err != nil {
		return nil, err
	}

	from, err := decodeAddress(params.FromAddress)
	if err != nil {
		return nil, err
	}
	if pub := priv.Public().(ed25519.PublicKey); string(pub) != string(from[:]) {
		return nil, fmt.Errorf("key does not match source address %s", params.FromAddress)
	}
	to, err := decodeAddress(params.ToAddress)
	if err != nil {
		return nil, err
	}

	blockhash := base58.Decode(params.RecentBlockhash)
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("invalid recent blockhash %q", params.RecentBlockhash)
	}

	message := buildTransferMessage(from, to, blockhash, params.Lamports)
	signature := ed25519.Sign(priv, message)

	// signature count (1) + signature + message
	wire := make([]byte, 0, 1+len(signature)+len(message))
	wire = append(wire, 1)
	wire = append(wire, signature...)
	wire = append(wire, message...)

	return &SignedTransfer{
		Signature: base58.Encode(signature),
		WireData:  base64.StdEncoding.EncodeToString(wire),
	}, nil
}

// buildTransferMessage assembles the legacy message for a two-account
// system transfer: header, account keys, blockhash, one instruction.
func buildTransferMessage(from, to [32]byte, blockhash []byte, lamports uint64) []byte {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], transferInstruction)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	var msg []byte
	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned
	// (the program account).
	msg = append(msg, 1, 0, 1)
	// Account keys: payer, recipient, system program.
	msg = append(msg, 3)
	msg = append(msg, from[:]...)
	msg = append(msg, to[:]...)
	msg = append(msg, systemProgramId[:]...)
	msg = append(msg, blockhash...)
	// One instruction: program index 2, accounts [0, 1], transfer payload.
	msg = append(msg, 1)
	msg = append(msg, 2)
	msg = append(msg, 2, 0, 1)
	msg = append(msg, byte(len(data)))
	msg = append(msg, data...)
	return msg
}

func decodeAddress(address string) ([32]byte, error) {
	var key [32]byte
	raw := base58.Decode(address)
	if len(raw) != 32 {
		return key, fmt.Errorf("invalid address %q", address)
	}
	copy(key[:], raw)
	return key, nil
}

// Package crypto implements the secp256k1 signatures used to spend Elements
// inputs.
//
// Elements reuses Bitcoin's signature schemes: DER encoded ECDSA for legacy
// and segwit v0 inputs, BIP340 Schnorr for taproot inputs.
//
// Key formats:
//   - Private keys: WIF (Wallet Import Format) or raw 32 bytes
//   - Public keys: compressed 33 bytes, or 32 byte x-only for taproot
//   - Signatures: DER for ECDSA, 64 bytes for Schnorr
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey wraps a secp256k1 public key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// ParsePrivateKeyWIF parses a WIF-encoded private key.
func ParsePrivateKeyWIF(wif string) (*PrivateKey, error) {
	decoded, err := decodeWIF(wif)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(decoded)}, nil
}

// PrivateKeyFromBytes creates a private key from raw bytes.
func PrivateKeyFromBytes(keyBytes []byte) (*PrivateKey, error) {
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(keyBytes))
	}
	key := secp256k1.PrivKeyFromBytes(keyBytes)
	if key.Key.IsZero() {
		return nil, errors.New("private key is zero modulo the curve order")
	}
	return &PrivateKey{key: key}, nil
}

// Sign creates a DER encoded ECDSA signature (RFC6979 nonce, low S).
func (pk *PrivateKey) Sign(hash [32]byte) []byte {
	return ecdsa.Sign(pk.key, hash[:]).Serialize()
}

// SignSchnorr creates a 64 byte BIP340 signature.
func (pk *PrivateKey) SignSchnorr(hash [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(pk.key, hash[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// TaprootTweak returns the key that signs for the taproot output committing
// to merkleRoot. A nil root is a key path only output.
func (pk *PrivateKey) TaprootTweak(merkleRoot []byte) *PrivateKey {
	return &PrivateKey{key: txscript.TweakTaprootPrivKey(*pk.key, merkleRoot)}
}

// PublicKey derives the public key.
func (pk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: pk.key.PubKey()}
}

// Bytes returns the raw 32-byte private key.
func (pk *PrivateKey) Bytes() []byte {
	return pk.key.Serialize()
}

// Bytes returns the compressed public key bytes.
func (pub *PublicKey) Bytes() []byte {
	return pub.key.SerializeCompressed()
}

// XOnly returns the 32 byte BIP340 encoding.
func (pub *PublicKey) XOnly() []byte {
	return schnorr.SerializePubKey(pub.key)
}

// Key exposes the underlying curve point.
func (pub *PublicKey) Key() *secp256k1.PublicKey {
	return pub.key
}

// ParsePublicKey parses a compressed or uncompressed public key.
func ParsePublicKey(pubKeyBytes []byte) (*PublicKey, error) {
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return &PublicKey{key: pubKey}, nil
}

// VerifySignature verifies a DER encoded ECDSA signature.
func VerifySignature(pubkey *PublicKey, hash [32]byte, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash[:], pubkey.key)
}

// VerifySchnorr verifies a BIP340 signature against an x-only public key.
func VerifySchnorr(xOnlyPubKey []byte, hash [32]byte, signature []byte) bool {
	if len(signature) != schnorr.SignatureSize {
		return false
	}
	pub, err := schnorr.ParsePubKey(xOnlyPubKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash[:], pub)
}

// WIF version bytes. Elements networks reuse Bitcoin's.
const (
	wifMainnet = 0x80
	wifTestnet = 0xef
)

// decodeWIF decodes a WIF-encoded private key.
// WIF format: version_byte || private_key (32 bytes) || [compression_flag] || checksum (4 bytes)
func decodeWIF(wif string) ([]byte, error) {
	decoded := base58.Decode(wif)
	if len(decoded) != 37 && len(decoded) != 38 {
		return nil, errors.New("invalid WIF length")
	}

	version := decoded[0]
	if version != wifMainnet && version != wifTestnet {
		return nil, fmt.Errorf("invalid WIF version byte: 0x%02x", version)
	}
	if len(decoded) == 38 && decoded[33] != 0x01 {
		return nil, fmt.Errorf("invalid WIF compression flag: 0x%02x", decoded[33])
	}

	checksumOffset := len(decoded) - 4
	payload := decoded[:checksumOffset]
	if checksum(payload) != [4]byte(decoded[checksumOffset:]) {
		return nil, errors.New("WIF checksum mismatch")
	}
	return payload[1:33], nil
}

// EncodeWIF encodes a private key to WIF format.
func EncodeWIF(privateKey []byte, compressed bool, testnet bool) (string, error) {
	if len(privateKey) != 32 {
		return "", errors.New("private key must be 32 bytes")
	}

	version := byte(wifMainnet)
	if testnet {
		version = wifTestnet
	}

	payload := append([]byte{version}, privateKey...)
	if compressed {
		payload = append(payload, 0x01)
	}
	sum := checksum(payload)
	return base58.Encode(append(payload, sum[:]...)), nil
}

func checksum(b []byte) [4]byte {
	h1 := sha256.Sum256(b)
	h2 := sha256.Sum256(h1[:])
	return [4]byte(h2[:4])
}

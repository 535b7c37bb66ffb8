package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
)

// slip77Domain is the HMAC key SLIP-0077 uses to derive the master blinding
// key from a BIP32 seed.
const slip77Domain = "Symmetric key seed"

// slip77Label is the derivation label of the master blinding key.
var slip77Label = []byte("\x00SLIP-0077")

// MasterBlindingKeyFromSeed derives the SLIP-0077 master blinding key of a
// wallet seed.
func MasterBlindingKeyFromSeed(seed []byte) []byte {
	root := hmac.New(sha512.New, []byte(slip77Domain))
	root.Write(seed)
	chainCode := root.Sum(nil)[:32]

	node := hmac.New(sha512.New, chainCode)
	node.Write(slip77Label)
	return node.Sum(nil)[32:]
}

// BlindingKey derives the private blinding key of scriptPubKey from a
// SLIP-0077 master blinding key: HMAC-SHA256(master, script).
func BlindingKey(masterKey, script []byte) (*PrivateKey, error) {
	if len(masterKey) != 32 {
		return nil, errors.New("master blinding key must be 32 bytes")
	}
	mac := hmac.New(sha256.New, masterKey)
	mac.Write(script)
	return PrivateKeyFromBytes(mac.Sum(nil))
}

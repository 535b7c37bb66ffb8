// Package confidential exposes the commitment and zero-knowledge proof
// primitives behind confidential transactions.
//
// The primitives are reached through the ZKPLib capability interface so
// that the roles never reach for global state: a ZKPGenerator, ZKPValidator
// or Blinder is handed the library it should use at construction time.
//
// Libsecp is the production implementation. It delegates to
// libsecp256k1-zkp through go-secp256k1-zkp and go-elements/confidential,
// so commitments and proofs are consensus compatible with Elements.
package confidential

import (
	"errors"
)

var (
	// ErrInvalidProof is returned when a proof cannot be parsed or does
	// not verify right after being generated.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrRewindFailed is returned when a nonce does not open a range proof.
	ErrRewindFailed = errors.New("range proof rewind failed")

	// ErrNoMatchingInput is returned when no known input asset matches the
	// output.
	ErrNoMatchingInput = errors.New("no input matches the output asset")
)

// ZKPLib is the commitment and proof capability consumed by the roles.
type ZKPLib interface {
	// ECDH returns the Elements rewind nonce shared by privKey and pubKey.
	ECDH(pubKey, privKey []byte) ([]byte, error)

	// AssetGenerator returns the unblinded generator of a 32 byte asset.
	AssetGenerator(asset []byte) ([]byte, error)

	// BlindedAssetGenerator returns the asset commitment H_A + r*G.
	BlindedAssetGenerator(asset, assetBlinder []byte) ([]byte, error)

	// ValueCommitment returns the Pedersen commitment v*generator + r*G.
	ValueCommitment(value uint64, generator, valueBlinder []byte) ([]byte, error)

	RangeProofSign(args RangeProofArgs) ([]byte, error)
	RangeProofVerify(proof, valueCommitment, generator, extraCommit []byte) bool
	RangeProofRewind(proof, valueCommitment, generator, nonce,
		extraCommit []byte) (*RewindResult, error)
	RangeProofInfo(proof []byte) (*RangeProofInfo, error)

	// SurjectionProof proves that the blinded output asset is one of the
	// input assets. At least one input with a known asset and blinder must
	// match the output asset.
	SurjectionProof(args SurjectionProofArgs) ([]byte, error)
	SurjectionProofVerify(proof []byte, inputGenerators [][]byte,
		outputGenerator []byte) bool

	BlindValueProof(value uint64, valueCommitment, generator,
		valueBlinder []byte) ([]byte, error)
	VerifyBlindValueProof(value uint64, proof, valueCommitment,
		generator []byte) bool

	BlindAssetProof(asset, assetCommitment, assetBlinder []byte) ([]byte, error)
	VerifyBlindAssetProof(asset, proof, assetCommitment []byte) bool
}

// RangeProofArgs are the inputs of RangeProofSign.
type RangeProofArgs struct {
	Value           uint64
	ValueCommitment []byte // 33 bytes
	Generator       []byte // 33 byte asset commitment
	ValueBlinder    []byte // 32 bytes
	Nonce           []byte // 32 byte rewind nonce
	Message         []byte // recoverable on rewind
	ExtraCommit     []byte // bound into the proof, usually the script
	MinValue        uint64
	MinBits         uint8 // 0 means the smallest width that fits
}

// RewindResult is what the nonce holder recovers from a range proof.
type RewindResult struct {
	Value        uint64
	ValueBlinder []byte
	Message      []byte
	MinValue     uint64
	MaxValue     uint64
}

// RangeProofInfo describes the public range of a proof.
type RangeProofInfo struct {
	Exp      int
	Mantissa int
	MinValue uint64
	MaxValue uint64
}

// SurjectionProofArgs are the inputs of SurjectionProof. The input slices
// are parallel, one entry per surjection target.
type SurjectionProofArgs struct {
	InputAssets     [][]byte // 32 byte asset, nil when unknown
	InputGenerators [][]byte // 33 byte generator of every target
	InputBlinders   [][]byte // 32 byte asset blinder, nil when unknown
	OutputAsset     []byte   // 32 bytes
	OutputBlinder   []byte   // asset blinder of the output
	Seed            []byte   // 32 bytes of randomness
}

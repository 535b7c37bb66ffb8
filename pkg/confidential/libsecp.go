package confidential

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	elements "github.com/vulpemventures/go-elements/confidential"
	secp256k1 "github.com/vulpemventures/go-secp256k1-zkp"
)

const (
	// surjectionTargets bounds how many inputs a surjection proof ring
	// spans, as elementsd does.
	surjectionTargets = 3

	surjectionMaxIterations = 100
)

var (
	blindValueProofTag = []byte("elements-pset/blind-value-proof")
	blindAssetProofTag = []byte("elements-pset/blind-asset-proof")
)

// Libsecp implements ZKPLib on top of libsecp256k1-zkp.
type Libsecp struct {
	maxTargets int
}

// NewLibsecp returns a Libsecp using surjection rings of at most three
// inputs.
func NewLibsecp() *Libsecp {
	return &Libsecp{maxTargets: surjectionTargets}
}

var _ ZKPLib = (*Libsecp)(nil)

// ECDH returns SHA256(SHA256(compressed(privKey*pubKey))), the nonce
// elementsd rewinds range proofs with.
func (l *Libsecp) ECDH(pubKey, privKey []byte) ([]byte, error) {
	if len(privKey) != 32 || IsZeroScalar(privKey) {
		return nil, errors.New("invalid private key")
	}
	nonce, err := elements.NonceHash(pubKey, privKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	return nonce[:], nil
}

// AssetGenerator returns the unblinded generator of asset.
func (l *Libsecp) AssetGenerator(asset []byte) ([]byte, error) {
	if len(asset) != 32 {
		return nil, fmt.Errorf("asset must be 32 bytes, got %d", len(asset))
	}
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	gen, err := secp256k1.GeneratorGenerate(ctx, asset)
	if err != nil {
		return nil, err
	}
	b := gen.Bytes()
	return b[:], nil
}

// BlindedAssetGenerator returns the asset commitment of asset.
func (l *Libsecp) BlindedAssetGenerator(asset, assetBlinder []byte) ([]byte, error) {
	if len(asset) != 32 || len(assetBlinder) != 32 {
		return nil, errors.New("asset and asset blinder must be 32 bytes")
	}
	return elements.AssetCommitment(asset, assetBlinder)
}

// ValueCommitment commits to value under generator.
func (l *Libsecp) ValueCommitment(value uint64, generator, valueBlinder []byte) ([]byte, error) {
	if len(valueBlinder) != 32 {
		return nil, fmt.Errorf("value blinder must be 32 bytes, got %d", len(valueBlinder))
	}
	return elements.ValueCommitment(value, generator, valueBlinder)
}

// RangeProofSign proves that the committed value is in
// [MinValue, MinValue + 2^MinBits).
func (l *Libsecp) RangeProofSign(args RangeProofArgs) ([]byte, error) {
	if len(args.Nonce) != 32 || len(args.ValueBlinder) != 32 {
		return nil, errors.New("nonce and value blinder must be 32 bytes")
	}
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	commit, err := secp256k1.CommitmentParse(ctx, args.ValueCommitment)
	if err != nil {
		return nil, fmt.Errorf("value commitment: %w", err)
	}
	gen, err := secp256k1.GeneratorParse(ctx, args.Generator)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	proof, err := secp256k1.RangeProofSign(
		ctx,
		args.MinValue,
		commit,
		args.ValueBlinder,
		args.Nonce,
		0,
		int(args.MinBits),
		args.Value,
		args.Message,
		args.ExtraCommit,
		gen,
	)
	if err != nil {
		return nil, err
	}
	if !secp256k1.RangeProofVerify(ctx, proof, commit, args.ExtraCommit, gen) {
		return nil, ErrInvalidProof
	}
	return proof, nil
}

// RangeProofVerify checks proof against the commitment it was built for.
func (l *Libsecp) RangeProofVerify(proof, valueCommitment, generator, extraCommit []byte) bool {
	if len(proof) == 0 {
		return false
	}
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	commit, err := secp256k1.CommitmentParse(ctx, valueCommitment)
	if err != nil {
		return false
	}
	gen, err := secp256k1.GeneratorParse(ctx, generator)
	if err != nil {
		return false
	}
	return secp256k1.RangeProofVerify(ctx, proof, commit, extraCommit, gen)
}

// RangeProofRewind recovers the value, value blinder and message of proof.
func (l *Libsecp) RangeProofRewind(proof, valueCommitment, generator, nonce,
	extraCommit []byte) (*RewindResult, error) {

	if len(nonce) != 32 {
		return nil, fmt.Errorf("nonce must be 32 bytes, got %d", len(nonce))
	}
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	commit, err := secp256k1.CommitmentParse(ctx, valueCommitment)
	if err != nil {
		return nil, fmt.Errorf("value commitment: %w", err)
	}
	gen, err := secp256k1.GeneratorParse(ctx, generator)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	var nonce32 [32]byte
	copy(nonce32[:], nonce)
	blinder, value, minValue, maxValue, message, err := secp256k1.RangeProofRewind(
		ctx, commit, proof, nonce32, extraCommit, gen,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRewindFailed, err)
	}
	return &RewindResult{
		Value:        value,
		ValueBlinder: cloneBytes(blinder[:]),
		Message:      cloneBytes(message),
		MinValue:     minValue,
		MaxValue:     maxValue,
	}, nil
}

// RangeProofInfo returns the public parameters of proof.
func (l *Libsecp) RangeProofInfo(proof []byte) (*RangeProofInfo, error) {
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	exp, mantissa, minValue, maxValue, err := secp256k1.RangeProofInfo(ctx, proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return &RangeProofInfo{
		Exp:      exp,
		Mantissa: mantissa,
		MinValue: minValue,
		MaxValue: maxValue,
	}, nil
}

// SurjectionProof picks a ring of at most three targets, one of them an
// input whose asset matches the output, and proves the output asset
// commitment blinds one of them. Targets with an unknown asset are tagged
// with the x coordinate of their generator, which never matches.
func (l *Libsecp) SurjectionProof(args SurjectionProofArgs) ([]byte, error) {
	n := len(args.InputGenerators)
	if n == 0 || len(args.InputAssets) != n || len(args.InputBlinders) != n {
		return nil, errors.New("surjection targets are inconsistent")
	}
	if len(args.Seed) != 32 {
		return nil, fmt.Errorf("seed must be 32 bytes, got %d", len(args.Seed))
	}
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	fixedInputTags := make([]secp256k1.FixedAssetTag, 0, n)
	inputTags := make([]secp256k1.Generator, 0, n)
	for i, generator := range args.InputGenerators {
		if len(generator) != 33 {
			return nil, fmt.Errorf("target %d: generator must be 33 bytes", i)
		}
		asset := args.InputAssets[i]
		if asset == nil {
			asset = generator[1:]
		}
		tag, err := secp256k1.FixedAssetTagParse(asset)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		fixedInputTags = append(fixedInputTags, *tag)

		gen, err := secp256k1.GeneratorParse(ctx, generator)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		inputTags = append(inputTags, *gen)
	}

	fixedOutputTag, err := secp256k1.FixedAssetTagParse(args.OutputAsset)
	if err != nil {
		return nil, fmt.Errorf("output asset: %w", err)
	}
	outputTag, err := secp256k1.GeneratorGenerateBlinded(ctx, args.OutputAsset, args.OutputBlinder)
	if err != nil {
		return nil, fmt.Errorf("output asset commitment: %w", err)
	}

	proof, inputIndex, err := secp256k1.SurjectionProofInitialize(
		ctx,
		fixedInputTags,
		min(n, l.maxTargets),
		*fixedOutputTag,
		surjectionMaxIterations,
		args.Seed,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatchingInput, err)
	}
	inputBlinder := args.InputBlinders[inputIndex]
	if len(inputBlinder) != 32 {
		return nil, fmt.Errorf("%w: target %d has no known blinder", ErrNoMatchingInput, inputIndex)
	}

	if err := secp256k1.SurjectionProofGenerate(
		ctx,
		proof,
		inputTags,
		*outputTag,
		inputIndex,
		inputBlinder,
		args.OutputBlinder,
	); err != nil {
		return nil, err
	}
	if !secp256k1.SurjectionProofVerify(ctx, proof, inputTags, *outputTag) {
		return nil, ErrInvalidProof
	}
	return proof.Bytes(), nil
}

// SurjectionProofVerify checks proof against the generators of every
// target, in the order the prover used.
func (l *Libsecp) SurjectionProofVerify(proof []byte, inputGenerators [][]byte,
	outputGenerator []byte) bool {

	if len(proof) == 0 || len(inputGenerators) == 0 {
		return false
	}
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	parsed, err := secp256k1.SurjectionProofParse(ctx, proof)
	if err != nil {
		return false
	}
	inputTags := make([]secp256k1.Generator, 0, len(inputGenerators))
	for _, generator := range inputGenerators {
		gen, err := secp256k1.GeneratorParse(ctx, generator)
		if err != nil {
			return false
		}
		inputTags = append(inputTags, *gen)
	}
	outputTag, err := secp256k1.GeneratorParse(ctx, outputGenerator)
	if err != nil {
		return false
	}
	return secp256k1.SurjectionProofVerify(ctx, parsed, inputTags, *outputTag)
}

// BlindValueProof is an exact value range proof (exponent -1) showing that
// valueCommitment opens to value.
func (l *Libsecp) BlindValueProof(value uint64, valueCommitment, generator,
	valueBlinder []byte) ([]byte, error) {

	if len(valueBlinder) != 32 {
		return nil, fmt.Errorf("value blinder must be 32 bytes, got %d", len(valueBlinder))
	}
	ctx, _ := secp256k1.ContextCreate(secp256k1.ContextBoth)
	defer secp256k1.ContextDestroy(ctx)

	commit, err := secp256k1.CommitmentParse(ctx, valueCommitment)
	if err != nil {
		return nil, fmt.Errorf("value commitment: %w", err)
	}
	gen, err := secp256k1.GeneratorParse(ctx, generator)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	nonce := chainhash.TaggedHash(blindValueProofTag, valueBlinder, valueCommitment)
	return secp256k1.RangeProofSign(
		ctx, value, commit, valueBlinder, nonce[:], -1, 0, value, nil, nil, gen,
	)
}

// VerifyBlindValueProof checks that proof pins valueCommitment to value.
func (l *Libsecp) VerifyBlindValueProof(value uint64, proof, valueCommitment,
	generator []byte) bool {

	if !l.RangeProofVerify(proof, valueCommitment, generator, nil) {
		return false
	}
	info, err := l.RangeProofInfo(proof)
	if err != nil {
		return false
	}
	return info.MinValue == value && info.MaxValue == value
}

// BlindAssetProof is a single target surjection proof from the unblinded
// generator of asset to assetCommitment.
func (l *Libsecp) BlindAssetProof(asset, assetCommitment, assetBlinder []byte) ([]byte, error) {
	gen, err := l.AssetGenerator(asset)
	if err != nil {
		return nil, err
	}
	blinded, err := l.BlindedAssetGenerator(asset, assetBlinder)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(blinded, assetCommitment) {
		return nil, errors.New("asset blinder does not open the asset commitment")
	}
	seed := chainhash.TaggedHash(blindAssetProofTag, assetBlinder, assetCommitment)
	return l.SurjectionProof(SurjectionProofArgs{
		InputAssets:     [][]byte{asset},
		InputGenerators: [][]byte{gen},
		InputBlinders:   [][]byte{ZeroScalar()},
		OutputAsset:     asset,
		OutputBlinder:   assetBlinder,
		Seed:            seed[:],
	})
}

// VerifyBlindAssetProof checks that proof ties assetCommitment to asset.
func (l *Libsecp) VerifyBlindAssetProof(asset, proof, assetCommitment []byte) bool {
	gen, err := l.AssetGenerator(asset)
	if err != nil {
		return false
	}
	return l.SurjectionProofVerify(proof, [][]byte{gen}, assetCommitment)
}

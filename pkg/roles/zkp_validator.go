package roles

import (
	"bytes"

	"github.com/suffix-labs/elements-pset/pkg/confidential"
	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

// ZKPValidator verifies the proofs other parties attached to a PSET.
// Every check returns false rather than an error: a proof either verifies
// or it does not.
type ZKPValidator struct {
	lib confidential.ZKPLib
}

// NewZKPValidator returns a validator backed by lib.
func NewZKPValidator(lib confidential.ZKPLib) *ZKPValidator {
	return &ZKPValidator{lib: lib}
}

// VerifyValueRangeProof checks a range proof against its commitment, the
// asset commitment it is expressed in and the output script.
func (v *ZKPValidator) VerifyValueRangeProof(valueCommitment, assetCommitment,
	script, proof []byte) bool {

	return v.lib.RangeProofVerify(proof, valueCommitment, assetCommitment, script)
}

// VerifyAssetSurjectionProof checks that assetCommitment blinds one of the
// surjection targets of p.
func (v *ZKPValidator) VerifyAssetSurjectionProof(p *pset.Pset, assetCommitment,
	proof []byte) bool {

	targets, err := surjectionTargets(v.lib, p, nil)
	if err != nil {
		return false
	}
	return v.lib.SurjectionProofVerify(proof, targets.generators, assetCommitment)
}

// VerifyBlindValueProof checks that valueCommitment opens to value.
func (v *ZKPValidator) VerifyBlindValueProof(value uint64, valueCommitment,
	assetCommitment, proof []byte) bool {

	return v.lib.VerifyBlindValueProof(value, proof, valueCommitment, assetCommitment)
}

// VerifyBlindAssetProof checks that assetCommitment blinds asset.
func (v *ZKPValidator) VerifyBlindAssetProof(asset, assetCommitment, proof []byte) bool {
	return v.lib.VerifyBlindAssetProof(asset, proof, assetCommitment)
}

// VerifyOutput checks every proof of a fully blinded output against its
// explicit amount and asset.
func (v *ZKPValidator) VerifyOutput(p *pset.Pset, out *pset.Output) bool {
	if !out.IsFullyBlinded() {
		return false
	}
	return v.VerifyValueRangeProof(out.ValueCommitment, out.AssetCommitment,
		out.Script, out.ValueRangeproof) &&
		v.VerifyAssetSurjectionProof(p, out.AssetCommitment, out.AssetSurjectionProof) &&
		v.VerifyBlindValueProof(out.Amount, out.ValueCommitment, out.AssetCommitment,
			out.BlindValueProof) &&
		v.VerifyBlindAssetProof(out.Asset, out.AssetCommitment, out.BlindAssetProof)
}

// VerifyOutputBlindingArgs checks generated blinding args before they are
// applied to output index of p.
func (v *ZKPValidator) VerifyOutputBlindingArgs(p *pset.Pset, args OutputBlindingArgs) bool {
	out, err := p.Output(int(args.Index))
	if err != nil {
		return false
	}
	return v.VerifyValueRangeProof(args.ValueCommitment, args.AssetCommitment,
		out.Script, args.ValueRangeProof) &&
		v.VerifyAssetSurjectionProof(p, args.AssetCommitment, args.AssetSurjectionProof) &&
		v.VerifyBlindValueProof(out.Amount, args.ValueCommitment, args.AssetCommitment,
			args.ValueBlindProof) &&
		v.VerifyBlindAssetProof(out.Asset, args.AssetCommitment, args.AssetBlindProof)
}

// VerifyIssuanceBlindingArgs checks the proofs of a blinded issuance
// against the explicit amounts of input index.
func (v *ZKPValidator) VerifyIssuanceBlindingArgs(p *pset.Pset, args IssuanceBlindingArgs) bool {
	in, err := p.Input(int(args.Index))
	if err != nil {
		return false
	}
	check := func(amount uint64, asset, commitment, rangeProof, blindProof []byte) bool {
		gen, err := v.lib.AssetGenerator(asset)
		if err != nil {
			return false
		}
		return v.lib.RangeProofVerify(rangeProof, commitment, gen, nil) &&
			v.lib.VerifyBlindValueProof(amount, blindProof, commitment, gen)
	}
	if args.IssuanceValueCommitment != nil &&
		!check(in.IssuanceValue, args.IssuanceAsset, args.IssuanceValueCommitment,
			args.IssuanceValueRangeProof, args.IssuanceValueBlindProof) {
		return false
	}
	if args.IssuanceTokenCommitment != nil &&
		!check(in.IssuanceInflationKeys, args.IssuanceToken, args.IssuanceTokenCommitment,
			args.IssuanceTokenRangeProof, args.IssuanceTokenBlindProof) {
		return false
	}
	return true
}

// VerifyInputExplicitProofs checks the explicit value and asset proofs of
// input index against its confidential utxo. An input without explicit
// proofs fails.
func (v *ZKPValidator) VerifyInputExplicitProofs(p *pset.Pset, index int) bool {
	in, err := p.Input(index)
	if err != nil || in.ValueProof == nil || in.AssetProof == nil {
		return false
	}
	utxo, err := in.Utxo()
	if err != nil || !utxo.IsConfidential() {
		return false
	}
	return v.lib.VerifyBlindValueProof(in.ExplicitValue, in.ValueProof, utxo.Value, utxo.Asset) &&
		v.lib.VerifyBlindAssetProof(in.ExplicitAsset, in.AssetProof, utxo.Asset)
}

// VerifyOwnedInput checks that an opening matches the utxo of its input.
func (v *ZKPValidator) VerifyOwnedInput(p *pset.Pset, o OwnedInput) bool {
	in, err := p.Input(int(o.Index))
	if err != nil {
		return false
	}
	utxo, err := in.Utxo()
	if err != nil {
		return false
	}
	if !utxo.IsConfidential() {
		value, err := pset.ValueFromBytes(utxo.Value)
		if err != nil {
			return false
		}
		asset, err := pset.AssetFromBytes(utxo.Asset)
		if err != nil {
			return false
		}
		return value == o.Value && bytes.Equal(asset, o.Asset) &&
			confidential.IsZeroScalar(o.AssetBlinder) && confidential.IsZeroScalar(o.ValueBlinder)
	}

	gen, err := v.lib.BlindedAssetGenerator(o.Asset, o.AssetBlinder)
	if err != nil || !bytes.Equal(gen, utxo.Asset) {
		return false
	}
	commitment, err := v.lib.ValueCommitment(o.Value, gen, o.ValueBlinder)
	return err == nil && bytes.Equal(commitment, utxo.Value)
}

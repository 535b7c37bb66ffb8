package pset

import (
	"fmt"

	"github.com/vulpemventures/go-elements/transaction"
)

// NewOutput returns an unblinded output paying value of asset to script.
// asset is in internal byte order.
func NewOutput(value uint64, asset, script []byte) *Output {
	return &Output{
		Amount: value,
		Asset:  cloneBytes(asset),
		Script: cloneBytes(script),
	}
}

// NeedsBlinding reports whether the output carries a blinding pubkey.
func (out *Output) NeedsBlinding() bool {
	return out.BlindingPubkey != nil
}

// IsFullyBlinded reports whether commitments and proofs are set for both
// value and asset.
func (out *Output) IsFullyBlinded() bool {
	return out.ValueCommitment != nil && out.AssetCommitment != nil &&
		out.ValueRangeproof != nil && out.AssetSurjectionProof != nil &&
		out.BlindValueProof != nil && out.BlindAssetProof != nil &&
		out.EcdhPubkey != nil
}

// IsPartiallyBlinded reports whether some, but not all, blinding fields
// are set.
func (out *Output) IsPartiallyBlinded() bool {
	set := out.ValueCommitment != nil || out.AssetCommitment != nil ||
		out.ValueRangeproof != nil || out.AssetSurjectionProof != nil ||
		out.BlindValueProof != nil || out.BlindAssetProof != nil ||
		out.EcdhPubkey != nil
	return set && !out.IsFullyBlinded()
}

// IsFee reports whether the output is a fee output.
func (out *Output) IsFee() bool {
	return len(out.Script) == 0
}

// TxOutput returns the transaction output: commitments if blinded, explicit
// value and asset otherwise.
func (out *Output) TxOutput() (*transaction.TxOutput, error) {
	txOut := &transaction.TxOutput{
		Script: cloneBytes(out.Script),
		Nonce:  []byte{0x00},
	}
	if out.IsFullyBlinded() {
		txOut.Asset = cloneBytes(out.AssetCommitment)
		txOut.Value = cloneBytes(out.ValueCommitment)
		txOut.Nonce = cloneBytes(out.EcdhPubkey)
		txOut.RangeProof = cloneBytes(out.ValueRangeproof)
		txOut.SurjectionProof = cloneBytes(out.AssetSurjectionProof)
		return txOut, nil
	}
	asset, err := ExplicitAsset(out.Asset)
	if err != nil {
		return nil, err
	}
	txOut.Asset = asset
	txOut.Value = ExplicitValue(out.Amount)
	return txOut, nil
}

func (out *Output) sanityCheck(index int) error {
	fail := func(field string, format string, args ...any) error {
		return &FieldError{Scope: scopeOutput, Index: index, Field: field,
			Cause: fmt.Errorf(format, args...)}
	}

	if len(out.Asset) != 32 {
		return fail("asset", "must be 32 bytes, got %d", len(out.Asset))
	}
	if (out.ValueCommitment == nil) != (out.ValueRangeproof == nil) ||
		(out.ValueCommitment == nil) != (out.BlindValueProof == nil) {
		return fail("value_commitment", "commitment, range proof and blind value proof must be set together")
	}
	if (out.AssetCommitment == nil) != (out.AssetSurjectionProof == nil) ||
		(out.AssetCommitment == nil) != (out.BlindAssetProof == nil) {
		return fail("asset_commitment", "commitment, surjection proof and blind asset proof must be set together")
	}
	if out.ValueCommitment != nil && !IsConfidentialValue(out.ValueCommitment) {
		return fail("value_commitment", "not a value commitment")
	}
	if out.AssetCommitment != nil && !IsConfidentialAsset(out.AssetCommitment) {
		return fail("asset_commitment", "not an asset commitment")
	}
	if out.IsPartiallyBlinded() {
		return fail("value_commitment", "output is partially blinded")
	}
	if out.IsFullyBlinded() {
		if !out.NeedsBlinding() {
			return fail("blinding_pubkey", "blinded output without a blinding pubkey")
		}
		if out.BlinderIndex != nil {
			return fail("blinder_index", "set on a fully blinded output")
		}
	}
	if out.BlinderIndex != nil && !out.NeedsBlinding() {
		return fail("blinder_index", "set on an output that is not blinded")
	}
	return nil
}

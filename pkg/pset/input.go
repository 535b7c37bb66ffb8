package pset

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/vulpemventures/go-elements/transaction"
)

// NewInput returns an input spending txid:index with the default sequence.
// txid is in internal byte order.
func NewInput(txid []byte, index uint32) *Input {
	return &Input{
		PreviousTxid:    cloneBytes(txid),
		PreviousTxIndex: index,
		Sequence:        transaction.DefaultSequence,
	}
}

// HasIssuance reports whether the input carries an issuance or reissuance.
func (in *Input) HasIssuance() bool {
	return in.IssuanceValue > 0 || in.IssuanceValueCommitment != nil ||
		in.IssuanceInflationKeys > 0 || in.IssuanceInflationKeysCommitment != nil
}

// HasReissuance reports whether the issuance is a reissuance.
func (in *Input) HasReissuance() bool {
	return in.HasIssuance() && len(in.IssuanceBlindingNonce) == 32 &&
		!bytes.Equal(in.IssuanceBlindingNonce, make([]byte, 32))
}

// IsPegin reports whether the input claims a peg-in.
func (in *Input) IsPegin() bool {
	return in.PeginTx != nil || in.PeginWitness != nil
}

// IsFinalized reports whether a final scriptSig or witness is set.
func (in *Input) IsFinalized() bool {
	return in.FinalScriptSig != nil || in.FinalScriptWitness != nil
}

// IsTaproot reports whether the spent output is a segwit v1 output.
func (in *Input) IsTaproot() bool {
	utxo, err := in.Utxo()
	return err == nil && txscript.IsPayToTaproot(utxo.Script)
}

// Utxo returns the spent output, preferring the witness utxo.
func (in *Input) Utxo() (*transaction.TxOutput, error) {
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo, nil
	}
	if in.NonWitnessUtxo != nil {
		idx := int(in.PreviousTxIndex)
		if idx >= len(in.NonWitnessUtxo.Outputs) {
			return nil, &IndexError{Scope: scopeOutput, Index: idx, Count: len(in.NonWitnessUtxo.Outputs)}
		}
		return in.NonWitnessUtxo.Outputs[idx], nil
	}
	return nil, ErrMissingUtxo
}

// IssuanceEntropy returns the asset entropy of the input's issuance. For a
// reissuance the stored entropy is already final.
func (in *Input) IssuanceEntropy() ([]byte, error) {
	if !in.HasIssuance() {
		return nil, errors.New("input has no issuance")
	}
	if in.HasReissuance() {
		return cloneBytes(in.IssuanceAssetEntropy), nil
	}
	return ComputeEntropy(in.PreviousTxid, in.PreviousTxIndex, in.IssuanceAssetEntropy)
}

// IssuanceAsset returns the asset id created or inflated by the issuance.
func (in *Input) IssuanceAsset() ([]byte, error) {
	entropy, err := in.IssuanceEntropy()
	if err != nil {
		return nil, err
	}
	return ComputeAsset(entropy)
}

// IssuanceToken returns the reissuance token id of the issuance. The token
// id depends on BlindedIssuance only: commitments added by a blinder do not
// change it.
func (in *Input) IssuanceToken() ([]byte, error) {
	entropy, err := in.IssuanceEntropy()
	if err != nil {
		return nil, err
	}
	return ComputeReissuanceToken(entropy, in.confidentialIssuance())
}

func (in *Input) confidentialIssuance() bool {
	return in.BlindedIssuance != nil && *in.BlindedIssuance
}

// HasSignatures reports whether any ECDSA or Schnorr signature is set.
func (in *Input) HasSignatures() bool {
	return len(in.PartialSigs) > 0 || in.TapKeySig != nil || len(in.TapScriptSig) > 0
}

func (in *Input) samePrevout(other *Input) bool {
	return in.PreviousTxIndex == other.PreviousTxIndex &&
		bytes.Equal(in.PreviousTxid, other.PreviousTxid)
}

func (in *Input) sanityCheck(index int) error {
	fail := func(field string, format string, args ...any) error {
		return &FieldError{Scope: scopeInput, Index: index, Field: field,
			Cause: fmt.Errorf(format, args...)}
	}

	if len(in.PreviousTxid) != 32 {
		return fail("previous_txid", "must be 32 bytes, got %d", len(in.PreviousTxid))
	}
	if in.NonWitnessUtxo != nil {
		txid := in.NonWitnessUtxo.TxHash()
		if !bytes.Equal(txid[:], in.PreviousTxid) {
			return fail("non_witness_utxo", "txid %s does not match previous txid", txid)
		}
		if int(in.PreviousTxIndex) >= len(in.NonWitnessUtxo.Outputs) {
			return fail("non_witness_utxo", "no output %d", in.PreviousTxIndex)
		}
	}
	if in.WitnessUtxo == nil {
		if in.WitnessScript != nil {
			return fail("witness_script", "set without a witness utxo")
		}
		if in.FinalScriptWitness != nil {
			return fail("final_scriptwitness", "set without a witness utxo")
		}
	}
	if in.RequiredTimeLocktime != 0 && in.RequiredTimeLocktime < locktimeThreshold {
		return fail("required_time_locktime", "%d is a block height", in.RequiredTimeLocktime)
	}
	if in.RequiredHeightLocktime >= locktimeThreshold {
		return fail("required_height_locktime", "%d is a timestamp", in.RequiredHeightLocktime)
	}

	if (in.IssuanceValueCommitment == nil) != (in.IssuanceValueRangeproof == nil) {
		return fail("issuance_value_commitment", "commitment and range proof must be set together")
	}
	if (in.IssuanceInflationKeysCommitment == nil) != (in.IssuanceInflationKeysRangeproof == nil) {
		return fail("issuance_inflation_keys_commitment", "commitment and range proof must be set together")
	}
	if in.IssuanceValueCommitment != nil && !IsConfidentialValue(in.IssuanceValueCommitment) {
		return fail("issuance_value_commitment", "not a value commitment")
	}
	if in.IssuanceInflationKeysCommitment != nil &&
		!IsConfidentialValue(in.IssuanceInflationKeysCommitment) {
		return fail("issuance_inflation_keys_commitment", "not a value commitment")
	}
	if !in.HasIssuance() && (in.IssuanceAssetEntropy != nil || in.IssuanceBlindingNonce != nil) {
		return fail("issuance_asset_entropy", "issuance data without an issuance amount")
	}
	if in.HasReissuance() && in.IssuanceAssetEntropy == nil {
		return fail("issuance_asset_entropy", "reissuance requires the asset entropy")
	}

	if (in.ExplicitValue != 0) != (in.ValueProof != nil) {
		return fail("explicit_value", "explicit value and value proof must be set together")
	}
	if (in.ExplicitAsset != nil) != (in.AssetProof != nil) {
		return fail("explicit_asset", "explicit asset and asset proof must be set together")
	}

	if in.TapMerkleRoot != nil && in.TapInternalKey == nil {
		return fail("tap_merkle_root", "set without an internal key")
	}
	return nil
}

package roles

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/suffix-labs/elements-pset/pkg/pset"
)

// Combiner merges PSETs that describe the same transaction.
//
// Parties typically sign or blind copies of one PSET in parallel; the
// Combiner unions what each copy added:
//   - signatures, derivations and scripts of inputs and outputs
//   - utxos, final scripts, issuance and peg-in data
//   - output blinding data and published global scalars
//
// Two copies setting the same field to different values is an error.
type Combiner struct {
	psets []*pset.Pset
}

// NewCombiner creates a new Combiner.
func NewCombiner(psets []*pset.Pset) *Combiner {
	return &Combiner{psets: psets}
}

// Combine merges all PSETs into a new one. The inputs are left untouched.
func (c *Combiner) Combine() (*pset.Pset, error) {
	if len(c.psets) == 0 {
		return nil, &pset.CombineError{Message: "no psets to combine"}
	}

	result, err := c.psets[0].Copy()
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(c.psets); i++ {
		if err := mergeInto(result, c.psets[i]); err != nil {
			return nil, &pset.CombineError{Message: fmt.Sprintf("pset %d", i), Cause: err}
		}
	}
	if err := result.SanityCheck(); err != nil {
		return nil, &pset.CombineError{Message: "combined pset", Cause: err}
	}
	log.Debugf("Combined %d psets", len(c.psets))
	return result, nil
}

// Combine merges psets with a one-shot Combiner.
func Combine(psets ...*pset.Pset) (*pset.Pset, error) {
	return NewCombiner(psets).Combine()
}

func mergeInto(dst, src *pset.Pset) error {
	if err := sameTransaction(dst, src); err != nil {
		return err
	}

	g, sg := dst.Global, src.Global
	g.TxModifiable = (g.TxModifiable & sg.TxModifiable &^ pset.HasSighashSingle) |
		((g.TxModifiable | sg.TxModifiable) & pset.HasSighashSingle)
	for _, s := range sg.Scalars {
		if !containsBytes(g.Scalars, s) {
			g.Scalars = append(g.Scalars, cloneBytes(s))
		}
	}
	for _, x := range sg.Xpubs {
		found := false
		for _, y := range g.Xpubs {
			if bytes.Equal(x.ExtendedKey, y.ExtendedKey) {
				found = true
				break
			}
		}
		if !found {
			g.Xpubs = append(g.Xpubs, x)
		}
	}
	g.Unknowns = mergeUnknowns(g.Unknowns, sg.Unknowns)

	for i, in := range src.Inputs {
		if err := mergeInput(dst.Inputs[i], in); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	for i, out := range src.Outputs {
		if err := mergeOutput(dst.Outputs[i], out); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}

	// Scalars are consumed once the last blinder has run.
	if dst.IsFullyBlinded() {
		g.Scalars = nil
	}
	return nil
}

// sameTransaction checks that both PSETs spend the same outpoints to the
// same destinations.
func sameTransaction(a, b *pset.Pset) error {
	if a.Global.TxVersion != b.Global.TxVersion {
		return fmt.Errorf("tx version %d and %d", a.Global.TxVersion, b.Global.TxVersion)
	}
	if a.Locktime() != b.Locktime() {
		return fmt.Errorf("locktime %d and %d", a.Locktime(), b.Locktime())
	}
	if len(a.Inputs) != len(b.Inputs) || len(a.Outputs) != len(b.Outputs) {
		return fmt.Errorf("%d/%d and %d/%d inputs/outputs",
			len(a.Inputs), len(a.Outputs), len(b.Inputs), len(b.Outputs))
	}
	for i := range a.Inputs {
		x, y := a.Inputs[i], b.Inputs[i]
		if !bytes.Equal(x.PreviousTxid, y.PreviousTxid) ||
			x.PreviousTxIndex != y.PreviousTxIndex || x.Sequence != y.Sequence {
			return fmt.Errorf("input %d spends a different outpoint", i)
		}
	}
	for i := range a.Outputs {
		x, y := a.Outputs[i], b.Outputs[i]
		if x.Amount != y.Amount || !bytes.Equal(x.Asset, y.Asset) || !bytes.Equal(x.Script, y.Script) {
			return fmt.Errorf("output %d pays a different amount, asset or script", i)
		}
	}
	return nil
}

func mergeInput(dst, src *pset.Input) error {
	if dst.NonWitnessUtxo == nil && src.NonWitnessUtxo != nil {
		dst.NonWitnessUtxo = src.NonWitnessUtxo.Copy()
	}
	if dst.WitnessUtxo == nil && src.WitnessUtxo != nil {
		dst.WitnessUtxo = src.WitnessUtxo.Copy()
	}
	if dst.SigHashType == nil {
		dst.SigHashType = src.SigHashType
	} else if src.SigHashType != nil && *dst.SigHashType != *src.SigHashType {
		return fmt.Errorf("sighash type %d and %d", *dst.SigHashType, *src.SigHashType)
	}

	for _, ps := range src.PartialSigs {
		existing := findPartialSig(dst.PartialSigs, ps.PubKey)
		switch {
		case existing == nil:
			dst.PartialSigs = append(dst.PartialSigs, ps)
		case !bytes.Equal(existing.Signature, ps.Signature):
			return fmt.Errorf("partial signature of %x: %w", ps.PubKey, pset.ErrDuplicateKey)
		}
	}
	for _, d := range src.Bip32Derivation {
		if findBip32(dst.Bip32Derivation, d.PubKey) == nil {
			dst.Bip32Derivation = append(dst.Bip32Derivation, d)
		}
	}
	for _, ss := range src.TapScriptSig {
		found := false
		for _, existing := range dst.TapScriptSig {
			if bytes.Equal(existing.XOnlyPubKey, ss.XOnlyPubKey) &&
				bytes.Equal(existing.LeafHash, ss.LeafHash) {
				found = true
			}
		}
		if !found {
			dst.TapScriptSig = append(dst.TapScriptSig, ss)
		}
	}
	for _, leaf := range src.TapLeafScript {
		found := false
		for _, existing := range dst.TapLeafScript {
			if bytes.Equal(existing.ControlBlock, leaf.ControlBlock) {
				found = true
			}
		}
		if !found {
			dst.TapLeafScript = append(dst.TapLeafScript, leaf)
		}
	}
	for _, d := range src.TapBip32Derivation {
		found := false
		for _, existing := range dst.TapBip32Derivation {
			if bytes.Equal(existing.XOnlyPubKey, d.XOnlyPubKey) {
				found = true
			}
		}
		if !found {
			dst.TapBip32Derivation = append(dst.TapBip32Derivation, d)
		}
	}

	fields := []struct {
		name string
		dst  *[]byte
		src  []byte
	}{
		{"redeem_script", &dst.RedeemScript, src.RedeemScript},
		{"witness_script", &dst.WitnessScript, src.WitnessScript},
		{"final_scriptsig", &dst.FinalScriptSig, src.FinalScriptSig},
		{"final_scriptwitness", &dst.FinalScriptWitness, src.FinalScriptWitness},
		{"tap_key_sig", &dst.TapKeySig, src.TapKeySig},
		{"tap_internal_key", &dst.TapInternalKey, src.TapInternalKey},
		{"tap_merkle_root", &dst.TapMerkleRoot, src.TapMerkleRoot},
		{"issuance_value_commitment", &dst.IssuanceValueCommitment, src.IssuanceValueCommitment},
		{"issuance_value_rangeproof", &dst.IssuanceValueRangeproof, src.IssuanceValueRangeproof},
		{"issuance_inflation_keys_commitment", &dst.IssuanceInflationKeysCommitment, src.IssuanceInflationKeysCommitment},
		{"issuance_inflation_keys_rangeproof", &dst.IssuanceInflationKeysRangeproof, src.IssuanceInflationKeysRangeproof},
		{"issuance_blinding_nonce", &dst.IssuanceBlindingNonce, src.IssuanceBlindingNonce},
		{"issuance_asset_entropy", &dst.IssuanceAssetEntropy, src.IssuanceAssetEntropy},
		{"issuance_blind_value_proof", &dst.IssuanceBlindValueProof, src.IssuanceBlindValueProof},
		{"issuance_blind_inflation_keys_proof", &dst.IssuanceBlindInflationKeysProof, src.IssuanceBlindInflationKeysProof},
		{"pegin_txout_proof", &dst.PeginTxoutProof, src.PeginTxoutProof},
		{"pegin_genesis_hash", &dst.PeginGenesisHash, src.PeginGenesisHash},
		{"pegin_claim_script", &dst.PeginClaimScript, src.PeginClaimScript},
		{"utxo_rangeproof", &dst.UtxoRangeProof, src.UtxoRangeProof},
		{"value_proof", &dst.ValueProof, src.ValueProof},
		{"explicit_asset", &dst.ExplicitAsset, src.ExplicitAsset},
		{"asset_proof", &dst.AssetProof, src.AssetProof},
	}
	for _, f := range fields {
		if err := mergeBytes(f.name, f.dst, f.src); err != nil {
			return err
		}
	}

	if err := mergeUint("issuance_value", &dst.IssuanceValue, src.IssuanceValue); err != nil {
		return err
	}
	if err := mergeUint("issuance_inflation_keys", &dst.IssuanceInflationKeys, src.IssuanceInflationKeys); err != nil {
		return err
	}
	if err := mergeUint("pegin_value", &dst.PeginValue, src.PeginValue); err != nil {
		return err
	}
	if err := mergeUint("explicit_value", &dst.ExplicitValue, src.ExplicitValue); err != nil {
		return err
	}
	if dst.BlindedIssuance == nil {
		dst.BlindedIssuance = src.BlindedIssuance
	}
	if dst.PeginTx == nil && src.PeginTx != nil {
		dst.PeginTx = src.PeginTx.Copy()
	}
	if dst.PeginWitness == nil {
		dst.PeginWitness = src.PeginWitness
	}
	dst.RequiredTimeLocktime = max(dst.RequiredTimeLocktime, src.RequiredTimeLocktime)
	dst.RequiredHeightLocktime = max(dst.RequiredHeightLocktime, src.RequiredHeightLocktime)

	dst.Unknowns = mergeUnknowns(dst.Unknowns, src.Unknowns)
	if dst.IsFinalized() {
		clearSigningData(dst)
	}
	return nil
}

func mergeOutput(dst, src *pset.Output) error {
	for _, d := range src.Bip32Derivation {
		if findBip32(dst.Bip32Derivation, d.PubKey) == nil {
			dst.Bip32Derivation = append(dst.Bip32Derivation, d)
		}
	}
	if dst.TapTree == nil {
		dst.TapTree = src.TapTree
	}
	for _, d := range src.TapBip32Derivation {
		found := false
		for _, existing := range dst.TapBip32Derivation {
			if bytes.Equal(existing.XOnlyPubKey, d.XOnlyPubKey) {
				found = true
			}
		}
		if !found {
			dst.TapBip32Derivation = append(dst.TapBip32Derivation, d)
		}
	}

	// A blinded copy replaces the blinder index of an unblinded one.
	if src.IsFullyBlinded() && !dst.IsFullyBlinded() {
		dst.BlinderIndex = nil
	} else if dst.BlinderIndex == nil && !dst.IsFullyBlinded() {
		dst.BlinderIndex = src.BlinderIndex
	}

	fields := []struct {
		name string
		dst  *[]byte
		src  []byte
	}{
		{"redeem_script", &dst.RedeemScript, src.RedeemScript},
		{"witness_script", &dst.WitnessScript, src.WitnessScript},
		{"tap_internal_key", &dst.TapInternalKey, src.TapInternalKey},
		{"blinding_pubkey", &dst.BlindingPubkey, src.BlindingPubkey},
		{"value_commitment", &dst.ValueCommitment, src.ValueCommitment},
		{"asset_commitment", &dst.AssetCommitment, src.AssetCommitment},
		{"value_rangeproof", &dst.ValueRangeproof, src.ValueRangeproof},
		{"asset_surjection_proof", &dst.AssetSurjectionProof, src.AssetSurjectionProof},
		{"ecdh_pubkey", &dst.EcdhPubkey, src.EcdhPubkey},
		{"blind_value_proof", &dst.BlindValueProof, src.BlindValueProof},
		{"blind_asset_proof", &dst.BlindAssetProof, src.BlindAssetProof},
	}
	for _, f := range fields {
		if err := mergeBytes(f.name, f.dst, f.src); err != nil {
			return err
		}
	}
	dst.Unknowns = mergeUnknowns(dst.Unknowns, src.Unknowns)
	return nil
}

func mergeBytes(field string, dst *[]byte, src []byte) error {
	switch {
	case src == nil:
	case *dst == nil:
		*dst = cloneBytes(src)
	case !bytes.Equal(*dst, src):
		return fmt.Errorf("conflicting %s", field)
	}
	return nil
}

func mergeUint(field string, dst *uint64, src uint64) error {
	switch {
	case src == 0:
	case *dst == 0:
		*dst = src
	case *dst != src:
		return fmt.Errorf("conflicting %s", field)
	}
	return nil
}

func mergeUnknowns(dst, src []*psbt.Unknown) []*psbt.Unknown {
	for _, u := range src {
		found := false
		for _, existing := range dst {
			if bytes.Equal(existing.Key, u.Key) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, u)
		}
	}
	return dst
}

func findPartialSig(sigs []*psbt.PartialSig, pubKey []byte) *psbt.PartialSig {
	for _, s := range sigs {
		if bytes.Equal(s.PubKey, pubKey) {
			return s
		}
	}
	return nil
}

func findBip32(ds []*psbt.Bip32Derivation, pubKey []byte) *psbt.Bip32Derivation {
	for _, d := range ds {
		if bytes.Equal(d.PubKey, pubKey) {
			return d
		}
	}
	return nil
}

func containsBytes(list [][]byte, b []byte) bool {
	for _, x := range list {
		if bytes.Equal(x, b) {
			return true
		}
	}
	return false
}

package roles

import (
	"fmt"
	"sort"

	"github.com/suffix-labs/elements-pset/pkg/confidential"
	"github.com/suffix-labs/elements-pset/pkg/pset"
)

// BlindingArgs are the issuance and output blinding args one party applies
// in a single call.
type BlindingArgs struct {
	Issuances []IssuanceBlindingArgs
	Outputs   []OutputBlindingArgs
}

// Blinder applies one party's blinding to a PSET.
//
// Every party but the last calls BlindNonLast, which publishes the
// difference between the scalar offsets of the party's outputs and inputs
// as a global scalar. The last party calls BlindLast, which adjusts the
// value blinder of its last output so that all commitments balance and
// drops the published scalars.
//
// Once a party has blinded, inputs and outputs can no longer be added.
type Blinder struct {
	pset      *pset.Pset
	owned     []OwnedInput
	validator *ZKPValidator
	generator *ZKPGenerator
}

// NewBlinder returns a blinder for the party owning the given inputs.
// generator is used by BlindLast to recompute the proofs of the adjusted
// output.
func NewBlinder(p *pset.Pset, owned []OwnedInput, validator *ZKPValidator,
	generator *ZKPGenerator) (*Blinder, error) {

	if len(owned) == 0 {
		return nil, &pset.BlindingError{Code: pset.CodeMissingBlinder, Index: -1,
			Message: "no owned inputs"}
	}
	if validator == nil || generator == nil {
		return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: -1,
			Message: "validator and generator are required"}
	}
	if err := p.SanityCheck(); err != nil {
		return nil, err
	}
	for _, o := range owned {
		if !validator.VerifyOwnedInput(p, o) {
			return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(o.Index),
				Message: "owned input does not open its utxo"}
		}
	}
	return &Blinder{pset: p, owned: owned, validator: validator, generator: generator}, nil
}

// Pset returns the PSET being blinded.
func (b *Blinder) Pset() *pset.Pset {
	return b.pset
}

// BlindNonLast applies args and publishes the party's scalar offset.
func (b *Blinder) BlindNonLast(args BlindingArgs) error {
	return b.blind(args, false)
}

// BlindLast applies args and balances the transaction. Every output that
// needs blinding must be blinded once args are applied.
func (b *Blinder) BlindLast(args BlindingArgs) error {
	return b.blind(args, true)
}

// blind is a no-op on a PSET that is already fully blinded.
func (b *Blinder) blind(args BlindingArgs, last bool) error {
	if b.pset.IsFullyBlinded() {
		log.Debugf("Pset already fully blinded, nothing to do")
		return nil
	}
	if last && len(args.Outputs) == 0 {
		return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: -1,
			Message: "last blinder must blind at least one output"}
	}
	if err := b.validate(args); err != nil {
		return err
	}

	outputs := append([]OutputBlindingArgs(nil), args.Outputs...)
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Index < outputs[j].Index })

	inOffset, err := b.inputOffset(args.Issuances)
	if err != nil {
		return err
	}
	outOffset, err := b.outputOffset(outputs)
	if err != nil {
		return err
	}
	diff, err := confidential.SubtractScalars(outOffset, inOffset)
	if err != nil {
		return &pset.BlindingError{Code: pset.CodeUnbalanced, Index: -1,
			Message: "scalar offset", Cause: err}
	}

	if last {
		adjusted, err := b.balanceLastOutput(outputs[len(outputs)-1], diff)
		if err != nil {
			return err
		}
		outputs[len(outputs)-1] = *adjusted
	}

	err = b.pset.Update(func(p *pset.Pset) error {
		for _, a := range args.Issuances {
			applyIssuanceArgs(p.Inputs[a.Index], a)
		}
		for _, a := range outputs {
			applyOutputArgs(p.Outputs[a.Index], a)
		}

		if last {
			p.Global.Scalars = nil
			for i, out := range p.Outputs {
				if out.NeedsBlinding() && !out.IsFullyBlinded() {
					return &pset.BlindingError{Code: pset.CodeIncomplete, Index: i,
						Message: "output left unblinded by the last blinder",
						Cause:   pset.ErrOutputNotFullyBlinded}
				}
			}
		} else if !confidential.IsZeroScalar(diff) {
			p.Global.Scalars = append(p.Global.Scalars, diff)
		}

		p.Global.TxModifiable = p.Global.TxModifiable.
			Clear(pset.InputsModifiable).Clear(pset.OutputsModifiable)
		if len(args.Issuances) > 0 && p.Global.ElementsTxModifiable != nil {
			flags := *p.Global.ElementsTxModifiable &^ 0x01
			p.Global.ElementsTxModifiable = &flags
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("Blinded %d outputs and %d issuances (last=%v)", len(outputs),
		len(args.Issuances), last)
	return nil
}

func (b *Blinder) validate(args BlindingArgs) error {
	p := b.pset
	if p.HasSignatures() {
		return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: -1,
			Message: "pset is already signed"}
	}
	seen := make(map[uint32]bool, len(args.Outputs))
	for _, a := range args.Outputs {
		out, err := p.Output(int(a.Index))
		if err != nil {
			return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
				Message: "output", Cause: err}
		}
		if seen[a.Index] {
			return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
				Message: "output blinded twice"}
		}
		seen[a.Index] = true
		if err := checkLengths(map[string]sizedField{
			"value commitment": {a.ValueCommitment, 33},
			"asset commitment": {a.AssetCommitment, 33},
			"nonce commitment": {a.NonceCommitment, 33},
			"value blinder":    {a.ValueBlinder, 32},
			"asset blinder":    {a.AssetBlinder, 32},
		}); err != nil {
			return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
				Message: "output blinding args", Cause: err}
		}
		if !out.NeedsBlinding() || out.IsFullyBlinded() {
			return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
				Message: "output does not need blinding"}
		}
		if out.BlinderIndex == nil || !isOwned(b.owned, *out.BlinderIndex) {
			return &pset.BlindingError{Code: pset.CodeNotOwner, Index: int(a.Index),
				Message: "output is assigned to another blinder"}
		}
		if !b.validator.VerifyOutputBlindingArgs(p, a) {
			return &pset.BlindingError{Code: pset.CodeInvalidProof, Index: int(a.Index),
				Message: "output blinding args do not verify"}
		}
	}

	for _, a := range args.Issuances {
		in, err := p.Input(int(a.Index))
		if err != nil {
			return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
				Message: "issuance input", Cause: err}
		}
		fields := map[string]sizedField{"issuance asset": {a.IssuanceAsset, 32}}
		if a.IssuanceValueCommitment != nil {
			fields["issuance value commitment"] = sizedField{a.IssuanceValueCommitment, 33}
			fields["issuance value blinder"] = sizedField{a.IssuanceValueBlinder, 32}
		}
		if a.IssuanceTokenCommitment != nil {
			fields["issuance token"] = sizedField{a.IssuanceToken, 32}
			fields["issuance token commitment"] = sizedField{a.IssuanceTokenCommitment, 33}
			fields["issuance token blinder"] = sizedField{a.IssuanceTokenBlinder, 32}
		}
		if err := checkLengths(fields); err != nil {
			return &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
				Message: "issuance blinding args", Cause: err}
		}
		if !in.HasIssuance() || !isOwned(b.owned, a.Index) {
			return &pset.BlindingError{Code: pset.CodeNotOwner, Index: int(a.Index),
				Message: "issuance is not owned"}
		}
		if !b.validator.VerifyIssuanceBlindingArgs(p, a) {
			return &pset.BlindingError{Code: pset.CodeInvalidProof, Index: int(a.Index),
				Message: "issuance blinding args do not verify"}
		}
	}
	return nil
}

type sizedField struct {
	value []byte
	size  int
}

func checkLengths(fields map[string]sizedField) error {
	for name, f := range fields {
		if len(f.value) != f.size {
			return fmt.Errorf("%s must be %d bytes, got %d", name, f.size, len(f.value))
		}
	}
	return nil
}

// inputOffset sums the offsets of the owned inputs and of the issuances
// blinded by this party. Issued amounts use the unblinded asset generator,
// so their offset is the value blinder alone.
func (b *Blinder) inputOffset(issuances []IssuanceBlindingArgs) ([]byte, error) {
	offset := confidential.ZeroScalar()
	var err error
	for _, o := range b.owned {
		offset, err = confidential.ComputeAndAddToScalarOffset(offset, o.Value,
			o.AssetBlinder, o.ValueBlinder)
		if err != nil {
			return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(o.Index),
				Message: "input offset", Cause: err}
		}
	}
	for _, a := range issuances {
		for _, blinder := range [][]byte{a.IssuanceValueBlinder, a.IssuanceTokenBlinder} {
			if blinder == nil {
				continue
			}
			offset, err = confidential.AddScalars(offset, blinder)
			if err != nil {
				return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
					Message: "issuance offset", Cause: err}
			}
		}
	}
	return offset, nil
}

func (b *Blinder) outputOffset(outputs []OutputBlindingArgs) ([]byte, error) {
	offset := confidential.ZeroScalar()
	var err error
	for _, a := range outputs {
		amount := b.pset.Outputs[a.Index].Amount
		offset, err = confidential.ComputeAndAddToScalarOffset(offset, amount,
			a.AssetBlinder, a.ValueBlinder)
		if err != nil {
			return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(a.Index),
				Message: "output offset", Cause: err}
		}
	}
	return offset, nil
}

// balanceLastOutput returns a with its value blinder reduced by the party's
// own offset difference and by every scalar published so far, then
// recomputes the proofs depending on it.
func (b *Blinder) balanceLastOutput(a OutputBlindingArgs, diff []byte) (*OutputBlindingArgs, error) {
	fail := func(code, msg string, err error) error {
		return &pset.BlindingError{Code: code, Index: int(a.Index), Message: msg, Cause: err}
	}

	vbf, err := confidential.SubtractScalars(a.ValueBlinder, diff)
	if err != nil {
		return nil, fail(pset.CodeUnbalanced, "adjust value blinder", err)
	}
	for _, scalar := range b.pset.Global.Scalars {
		if vbf, err = confidential.SubtractScalars(vbf, scalar); err != nil {
			return nil, fail(pset.CodeUnbalanced, "apply global scalar", err)
		}
	}

	out := b.pset.Outputs[a.Index]
	commitment, rangeProof, blindProof, err := b.generator.valueProofs(out.Amount, out.Asset,
		a.AssetCommitment, a.AssetBlinder, vbf, a.Nonce, out.Script)
	if err != nil {
		return nil, fail(pset.CodeProofFailed, "reblind last output", err)
	}

	a.ValueBlinder = vbf
	a.ValueCommitment = commitment
	a.ValueRangeProof = rangeProof
	a.ValueBlindProof = blindProof
	return &a, nil
}

func applyIssuanceArgs(in *pset.Input, a IssuanceBlindingArgs) {
	if a.IssuanceValueCommitment != nil {
		in.IssuanceValueCommitment = cloneBytes(a.IssuanceValueCommitment)
		in.IssuanceValueRangeproof = cloneBytes(a.IssuanceValueRangeProof)
		in.IssuanceBlindValueProof = cloneBytes(a.IssuanceValueBlindProof)
	}
	if a.IssuanceTokenCommitment != nil {
		in.IssuanceInflationKeysCommitment = cloneBytes(a.IssuanceTokenCommitment)
		in.IssuanceInflationKeysRangeproof = cloneBytes(a.IssuanceTokenRangeProof)
		in.IssuanceBlindInflationKeysProof = cloneBytes(a.IssuanceTokenBlindProof)
	}
}

func applyOutputArgs(out *pset.Output, a OutputBlindingArgs) {
	out.ValueCommitment = cloneBytes(a.ValueCommitment)
	out.AssetCommitment = cloneBytes(a.AssetCommitment)
	out.ValueRangeproof = cloneBytes(a.ValueRangeProof)
	out.AssetSurjectionProof = cloneBytes(a.AssetSurjectionProof)
	out.BlindValueProof = cloneBytes(a.ValueBlindProof)
	out.BlindAssetProof = cloneBytes(a.AssetBlindProof)
	out.EcdhPubkey = cloneBytes(a.NonceCommitment)
	out.BlinderIndex = nil
}

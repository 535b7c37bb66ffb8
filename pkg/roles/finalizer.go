package roles

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"

	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

// Finalizer builds the final scriptSig and witness of signed inputs.
//
// Supported spends:
//   - P2PK, P2PKH and bare multisig
//   - P2WPKH and P2WSH multisig, native or nested in P2SH
//   - P2SH multisig
//   - P2TR key path, and script path over the leaf scripts' x-only keys
//
// Once an input is finalized, the signing metadata (partial signatures,
// scripts, derivations, preimages and taproot data) is cleared.
type Finalizer struct {
	pset *pset.Pset
}

// NewFinalizer creates a new Finalizer.
func NewFinalizer(p *pset.Pset) *Finalizer {
	return &Finalizer{pset: p}
}

// Pset returns the finalized PSET.
func (f *Finalizer) Pset() *pset.Pset {
	return f.pset
}

// Finalize finalizes every input that is not finalized yet. On error the
// PSET is unchanged.
func (f *Finalizer) Finalize() error {
	return f.pset.Update(func(p *pset.Pset) error {
		for i, in := range p.Inputs {
			if in.IsFinalized() {
				continue
			}
			if err := finalizeInput(in, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// FinalizeInput finalizes input inIndex.
func (f *Finalizer) FinalizeInput(inIndex int) error {
	return f.pset.Update(func(p *pset.Pset) error {
		in, err := p.Input(inIndex)
		if err != nil {
			return err
		}
		if in.IsFinalized() {
			return &pset.FinalizationError{Code: pset.CodeInvalidInput, InputIndex: inIndex,
				Message: "already finalized", Cause: pset.ErrInputFinalized}
		}
		return finalizeInput(in, inIndex)
	})
}

func finalizeInput(in *pset.Input, index int) error {
	fail := func(code, msg string, cause error) error {
		return &pset.FinalizationError{Code: code, InputIndex: index, Message: msg, Cause: cause}
	}

	utxo, err := in.Utxo()
	if err != nil {
		return fail(pset.CodeIncomplete, "missing utxo", err)
	}

	var scriptSig []byte
	var witness [][]byte

	script := utxo.Script
	if txscript.IsPayToTaproot(script) {
		witness, err = taprootWitness(in)
		if err != nil {
			return fail(pset.CodeIncomplete, "taproot", err)
		}
	} else {
		if txscript.IsPayToScriptHash(script) {
			if in.RedeemScript == nil {
				return fail(pset.CodeIncomplete, "p2sh input without redeem script", nil)
			}
			script = in.RedeemScript
		}

		switch {
		case txscript.IsPayToWitnessPubKeyHash(script):
			sig, pub, err := singleSig(in)
			if err != nil {
				return fail(pset.CodeIncomplete, "p2wpkh", err)
			}
			witness = [][]byte{sig, pub}

		case txscript.IsPayToWitnessScriptHash(script):
			if in.WitnessScript == nil {
				return fail(pset.CodeIncomplete, "p2wsh input without witness script", nil)
			}
			sigs, err := scriptSigs(in, in.WitnessScript)
			if err != nil {
				return fail(pset.CodeUnsupportedScript, "p2wsh", err)
			}
			witness = append(sigs, in.WitnessScript)

		default:
			sigs, err := scriptSigs(in, script)
			if err != nil {
				return fail(pset.CodeUnsupportedScript, "script", err)
			}
			if txscript.IsPayToScriptHash(utxo.Script) {
				sigs = append(sigs, in.RedeemScript)
			}
			if scriptSig, err = pushAll(sigs); err != nil {
				return fail(pset.CodeUnsupportedScript, "build scriptSig", err)
			}
		}

		// Nested segwit pushes the witness program as the scriptSig.
		if witness != nil && txscript.IsPayToScriptHash(utxo.Script) {
			if scriptSig, err = pushAll([][]byte{in.RedeemScript}); err != nil {
				return fail(pset.CodeUnsupportedScript, "build scriptSig", err)
			}
		}
	}

	if witness != nil {
		var buf bytes.Buffer
		if err := psbt.WriteTxWitness(&buf, witness); err != nil {
			return fail(pset.CodeInvalidInput, "serialize witness", err)
		}
		in.FinalScriptWitness = buf.Bytes()
		if in.WitnessUtxo == nil {
			in.WitnessUtxo = witnessUtxo(utxo)
		}
	}
	if scriptSig != nil {
		in.FinalScriptSig = scriptSig
	}
	clearSigningData(in)
	log.Debugf("Finalized input %d", index)
	return nil
}

func witnessUtxo(utxo *transaction.TxOutput) *transaction.TxOutput {
	w := utxo.Copy()
	w.RangeProof = nil
	w.SurjectionProof = nil
	return w
}

func singleSig(in *pset.Input) (sig, pubKey []byte, err error) {
	if len(in.PartialSigs) != 1 {
		return nil, nil, fmt.Errorf("need exactly one partial signature, got %d", len(in.PartialSigs))
	}
	return in.PartialSigs[0].Signature, in.PartialSigs[0].PubKey, nil
}

// scriptSigs returns the stack items that satisfy a P2PK, P2PKH or
// multisig script.
func scriptSigs(in *pset.Input, script []byte) ([][]byte, error) {
	switch txscript.GetScriptClass(script) {
	case txscript.PubKeyTy:
		if len(in.PartialSigs) != 1 {
			return nil, fmt.Errorf("p2pk needs one signature, got %d", len(in.PartialSigs))
		}
		return [][]byte{in.PartialSigs[0].Signature}, nil

	case txscript.PubKeyHashTy:
		sig, pub, err := singleSig(in)
		if err != nil {
			return nil, err
		}
		return [][]byte{sig, pub}, nil

	case txscript.MultiSigTy:
		_, required, err := txscript.CalcMultiSigStats(script)
		if err != nil {
			return nil, err
		}
		pushes, err := txscript.PushedData(script)
		if err != nil {
			return nil, err
		}
		// CHECKMULTISIG pops one extra item.
		stack := [][]byte{nil}
		for _, pub := range pushes {
			if len(stack)-1 == required {
				break
			}
			for _, ps := range in.PartialSigs {
				if bytes.Equal(ps.PubKey, pub) {
					stack = append(stack, ps.Signature)
				}
			}
		}
		if len(stack)-1 < required {
			return nil, fmt.Errorf("multisig needs %d signatures, got %d", required, len(stack)-1)
		}
		return stack, nil
	}
	return nil, fmt.Errorf("unsupported script class %s", txscript.GetScriptClass(script))
}

// taprootWitness prefers the key path. For the script path it picks the
// smallest leaf for which signatures exist, satisfying its keys in reverse
// order of appearance and leaving missing ones empty.
func taprootWitness(in *pset.Input) ([][]byte, error) {
	if in.TapKeySig != nil {
		return [][]byte{in.TapKeySig}, nil
	}

	leaves := append([]*psbt.TaprootTapLeafScript(nil), in.TapLeafScript...)
	sort.SliceStable(leaves, func(i, j int) bool {
		return len(leaves[i].Script) < len(leaves[j].Script)
	})
	for _, leaf := range leaves {
		leafHash := pset.TapLeafHash(leaf.Script)
		sigs := make(map[string][]byte)
		for _, ss := range in.TapScriptSig {
			if bytes.Equal(ss.LeafHash, leafHash[:]) {
				sigs[string(ss.XOnlyPubKey)] = ss.Signature
			}
		}
		if len(sigs) == 0 {
			continue
		}

		keys, err := leafKeys(leaf.Script)
		if err != nil {
			return nil, err
		}
		var witness [][]byte
		for i := len(keys) - 1; i >= 0; i-- {
			witness = append(witness, sigs[string(keys[i])])
		}
		return append(witness, leaf.Script, leaf.ControlBlock), nil
	}
	return nil, fmt.Errorf("no key path signature and no signed leaf")
}

func leafKeys(script []byte) ([][]byte, error) {
	var keys [][]byte
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		if data := tokenizer.Data(); len(data) == 32 {
			keys = append(keys, data)
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func pushAll(items [][]byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	for _, item := range items {
		if item == nil {
			b.AddOp(txscript.OP_0)
			continue
		}
		b.AddData(item)
	}
	return b.Script()
}

func clearSigningData(in *pset.Input) {
	in.PartialSigs = nil
	in.SigHashType = nil
	in.RedeemScript = nil
	in.WitnessScript = nil
	in.Bip32Derivation = nil
	in.Ripemd160Preimages = nil
	in.Sha256Preimages = nil
	in.Hash160Preimages = nil
	in.Hash256Preimages = nil
	in.TapKeySig = nil
	in.TapScriptSig = nil
	in.TapLeafScript = nil
	in.TapBip32Derivation = nil
	in.TapInternalKey = nil
	in.TapMerkleRoot = nil
}

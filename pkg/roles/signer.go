package roles

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/suffix-labs/elements-pset/pkg/crypto"
	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

// SignatureArgs carries the signatures added to one input. Any combination
// may be set.
type SignatureArgs struct {
	PartialSig    *psbt.PartialSig              // ECDSA signature, DER || sighash byte
	TapKeySig     []byte                        // Key path Schnorr signature
	TapScriptSigs []*psbt.TaprootScriptSpendSig // Script path Schnorr signatures
}

// Signer adds signatures to a PSET.
//
// Every signature is verified against the input's sighash before it is
// stored. Signatures committing to all outputs require the PSET to be
// fully blinded first, since blinding changes the outputs.
//
// After a signature is added the modifiable flags are narrowed to what it
// commits to:
//   - without ANYONECANPAY, inputs are locked
//   - with SIGHASH_ALL or SIGHASH_DEFAULT, outputs are locked
//   - with SIGHASH_SINGLE, HasSighashSingle is set
type Signer struct {
	pset *pset.Pset
	cfg  config
}

// NewSigner creates a new Signer. WithNetwork selects the genesis hash
// taproot sighashes commit to.
func NewSigner(p *pset.Pset, opts ...Option) (*Signer, error) {
	if err := p.SanityCheck(); err != nil {
		return nil, err
	}
	return &Signer{pset: p, cfg: newConfig(opts)}, nil
}

// Pset returns the signed PSET.
func (s *Signer) Pset() *pset.Pset {
	return s.pset
}

// AddSignature verifies and adds signatures to input inIndex. The input
// must carry its sighash type.
func (s *Signer) AddSignature(inIndex int, args SignatureArgs) error {
	return s.pset.Update(func(p *pset.Pset) error {
		return s.addSignature(p, inIndex, args)
	})
}

// SignInput signs input inIndex with key.
//
// Taproot inputs are signed on the key path when key is the input's
// internal key, otherwise on the script path of every leaf whose script
// contains the key. Other inputs get an ECDSA signature. A missing sighash
// type defaults to SIGHASH_DEFAULT for taproot and SIGHASH_ALL otherwise.
func (s *Signer) SignInput(inIndex int, key *crypto.PrivateKey) error {
	return s.pset.Update(func(p *pset.Pset) error {
		in, err := p.Input(inIndex)
		if err != nil {
			return err
		}
		if in.SigHashType == nil {
			sighash := txscript.SigHashAll
			if in.IsTaproot() {
				sighash = txscript.SigHashDefault
			}
			in.SigHashType = &sighash
		}

		args, err := s.sign(p, inIndex, key)
		if err != nil {
			return err
		}
		return s.addSignature(p, inIndex, *args)
	})
}

func (s *Signer) sign(p *pset.Pset, inIndex int, key *crypto.PrivateKey) (*SignatureArgs, error) {
	in := p.Inputs[inIndex]
	sighash := *in.SigHashType
	genesis := s.cfg.network.GenesisBlockHash

	if !in.IsTaproot() {
		h, err := p.InputPreimage(inIndex, sighash, &genesis, nil)
		if err != nil {
			return nil, err
		}
		sig := append(key.Sign(h), byte(sighash))
		return &SignatureArgs{PartialSig: &psbt.PartialSig{
			PubKey:    key.PublicKey().Bytes(),
			Signature: sig,
		}}, nil
	}

	xonly := key.PublicKey().XOnly()
	if bytes.Equal(xonly, in.TapInternalKey) {
		h, err := p.InputPreimage(inIndex, sighash, &genesis, nil)
		if err != nil {
			return nil, err
		}
		sig, err := key.TaprootTweak(in.TapMerkleRoot).SignSchnorr(h)
		if err != nil {
			return nil, &pset.SignatureError{InputIndex: inIndex, Message: "key path", Cause: err}
		}
		return &SignatureArgs{TapKeySig: withSighashByte(sig, sighash)}, nil
	}

	args := &SignatureArgs{}
	for _, leaf := range in.TapLeafScript {
		if !bytes.Contains(leaf.Script, xonly) {
			continue
		}
		leafHash := pset.TapLeafHash(leaf.Script)
		h, err := p.InputPreimage(inIndex, sighash, &genesis, &leafHash)
		if err != nil {
			return nil, err
		}
		sig, err := key.SignSchnorr(h)
		if err != nil {
			return nil, &pset.SignatureError{InputIndex: inIndex, Message: "script path", Cause: err}
		}
		args.TapScriptSigs = append(args.TapScriptSigs, &psbt.TaprootScriptSpendSig{
			XOnlyPubKey: xonly,
			LeafHash:    leafHash[:],
			Signature:   sig,
			SigHash:     sighash,
		})
	}
	if len(args.TapScriptSigs) == 0 {
		return nil, &pset.SignatureError{InputIndex: inIndex,
			Message: "key is neither the internal key nor in any leaf script"}
	}
	return args, nil
}

func withSighashByte(sig []byte, sighash txscript.SigHashType) []byte {
	if sighash == txscript.SigHashDefault {
		return sig
	}
	return append(sig, byte(sighash))
}

func (s *Signer) addSignature(p *pset.Pset, inIndex int, args SignatureArgs) error {
	fail := func(msg string, cause error) error {
		return &pset.SignatureError{InputIndex: inIndex, Message: msg, Cause: cause}
	}

	in, err := p.Input(inIndex)
	if err != nil {
		return err
	}
	if in.IsFinalized() {
		return fail("cannot sign", pset.ErrInputFinalized)
	}
	if in.SigHashType == nil {
		return fail("input has no sighash type", nil)
	}
	sighash := *in.SigHashType
	base := sighash & sighashMask
	if (base == txscript.SigHashAll || sighash == txscript.SigHashDefault) &&
		p.NeedsBlinding() && !p.IsFullyBlinded() {
		return fail("signature commits to outputs", pset.ErrOutputNotFullyBlinded)
	}
	utxo, err := in.Utxo()
	if err != nil {
		return fail("cannot verify", err)
	}
	genesis := s.cfg.network.GenesisBlockHash

	if ps := args.PartialSig; ps != nil {
		if len(ps.Signature) < 2 || txscript.SigHashType(ps.Signature[len(ps.Signature)-1]) != sighash {
			return fail("partial signature sighash byte does not match the input", nil)
		}
		if !pubKeyMatchesInput(in, utxo.Script, ps.PubKey) {
			return fail(fmt.Sprintf("pubkey %x does not belong to the input", ps.PubKey), nil)
		}
		pub, err := crypto.ParsePublicKey(ps.PubKey)
		if err != nil {
			return fail("partial signature pubkey", err)
		}
		h, err := p.InputPreimage(inIndex, sighash, &genesis, nil)
		if err != nil {
			return err
		}
		if !crypto.VerifySignature(pub, h, ps.Signature[:len(ps.Signature)-1]) {
			return fail("invalid partial signature", nil)
		}
		for _, existing := range in.PartialSigs {
			if bytes.Equal(existing.PubKey, ps.PubKey) {
				return fail("partial signature", pset.ErrDuplicateKey)
			}
		}
		in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
			PubKey:    cloneBytes(ps.PubKey),
			Signature: cloneBytes(ps.Signature),
		})
	}

	if args.TapKeySig != nil {
		if !txscript.IsPayToTaproot(utxo.Script) {
			return fail("taproot signature on a non taproot input", nil)
		}
		sig, sigHash, err := splitSchnorrSig(args.TapKeySig)
		if err != nil || sigHash != sighash {
			return fail("taproot key signature sighash does not match the input", err)
		}
		h, err := p.InputPreimage(inIndex, sighash, &genesis, nil)
		if err != nil {
			return err
		}
		if !crypto.VerifySchnorr(utxo.Script[2:], h, sig) {
			return fail("invalid taproot key signature", nil)
		}
		if in.TapKeySig != nil {
			return fail("taproot key signature", pset.ErrDuplicateKey)
		}
		in.TapKeySig = cloneBytes(args.TapKeySig)
	}

	for _, ss := range args.TapScriptSigs {
		if ss.SigHash != sighash {
			return fail("taproot script signature sighash does not match the input", nil)
		}
		leafHash, err := chainhash.NewHash(ss.LeafHash)
		if err != nil {
			return fail("leaf hash", err)
		}
		sig, _, err := splitSchnorrSig(ss.Signature)
		if err != nil {
			return fail("taproot script signature", err)
		}
		h, err := p.InputPreimage(inIndex, sighash, &genesis, leafHash)
		if err != nil {
			return err
		}
		if !crypto.VerifySchnorr(ss.XOnlyPubKey, h, sig) {
			return fail("invalid taproot script signature", nil)
		}
		for _, existing := range in.TapScriptSig {
			if bytes.Equal(existing.XOnlyPubKey, ss.XOnlyPubKey) &&
				bytes.Equal(existing.LeafHash, ss.LeafHash) {
				return fail("taproot script signature", pset.ErrDuplicateKey)
			}
		}
		in.TapScriptSig = append(in.TapScriptSig, &psbt.TaprootScriptSpendSig{
			XOnlyPubKey: cloneBytes(ss.XOnlyPubKey),
			LeafHash:    cloneBytes(ss.LeafHash),
			Signature:   cloneBytes(ss.Signature),
			SigHash:     ss.SigHash,
		})
	}

	updateModifiableFlags(p, sighash)
	log.Debugf("Added signature to input %d", inIndex)
	return nil
}

const sighashMask = txscript.SigHashType(0x1f)

// splitSchnorrSig splits a 64 or 65 byte Schnorr signature into the
// signature and its sighash type.
func splitSchnorrSig(sig []byte) ([]byte, txscript.SigHashType, error) {
	switch len(sig) {
	case 64:
		return sig, txscript.SigHashDefault, nil
	case 65:
		if txscript.SigHashType(sig[64]) == txscript.SigHashDefault {
			return nil, 0, fmt.Errorf("explicit SIGHASH_DEFAULT byte")
		}
		return sig[:64], txscript.SigHashType(sig[64]), nil
	}
	return nil, 0, fmt.Errorf("schnorr signature is %d bytes", len(sig))
}

// pubKeyMatchesInput reports whether pubKey can sign for the spent script.
// Key hash scripts must hash to it; script hash spends must contain it in
// the redeem or witness script.
func pubKeyMatchesInput(in *pset.Input, script, pubKey []byte) bool {
	if txscript.IsPayToScriptHash(script) && in.RedeemScript != nil {
		script = in.RedeemScript
	}
	switch {
	case txscript.IsPayToPubKeyHash(script):
		return bytes.Equal(script[3:23], btcutil.Hash160(pubKey))
	case txscript.IsPayToWitnessPubKeyHash(script):
		return bytes.Equal(script[2:22], btcutil.Hash160(pubKey))
	case txscript.IsPayToWitnessScriptHash(script):
		return in.WitnessScript != nil && bytes.Contains(in.WitnessScript, pubKey)
	}
	return bytes.Contains(script, pubKey)
}

// updateModifiableFlags narrows TX_MODIFIABLE to what a signature under
// sighash commits to.
func updateModifiableFlags(p *pset.Pset, sighash txscript.SigHashType) {
	base := sighash & sighashMask
	anyoneCanPay := sighash&txscript.SigHashAnyOneCanPay != 0

	flags := p.Global.TxModifiable
	if !anyoneCanPay {
		flags = flags.Clear(pset.InputsModifiable)
	}
	if base == txscript.SigHashAll || sighash == txscript.SigHashDefault {
		flags = flags.Clear(pset.OutputsModifiable)
	}
	if base == txscript.SigHashSingle {
		flags = flags.Set(pset.HasSighashSingle)
	}
	p.Global.TxModifiable = flags
}

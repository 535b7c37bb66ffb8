package roles

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

// Updater adds inputs, outputs and metadata to a PSET.
//
// The Updater role:
//   - Adds inputs and outputs while the modifiable flags allow it
//   - Attaches the spent utxos and their range proofs
//   - Attaches scripts, sighash types and BIP32 derivations
//   - Adds issuances and reissuances with their outputs
//   - Attaches taproot and peg-in metadata
//
// Every call is atomic: it either fully applies or leaves the PSET as it
// was.
type Updater struct {
	pset *pset.Pset
	cfg  config
}

// NewUpdater creates a new Updater.
//
// Recognized options: WithAddressDecoder.
func NewUpdater(p *pset.Pset, opts ...Option) (*Updater, error) {
	if err := p.SanityCheck(); err != nil {
		return nil, fmt.Errorf("invalid pset: %w", err)
	}
	return &Updater{pset: p, cfg: newConfig(opts)}, nil
}

// Pset returns the updated PSET.
func (u *Updater) Pset() *pset.Pset {
	return u.pset
}

func (u *Updater) updateInput(inIndex int, fn func(in *pset.Input) error) error {
	return u.pset.Update(func(p *pset.Pset) error {
		in, err := p.Input(inIndex)
		if err != nil {
			return err
		}
		if in.IsFinalized() {
			return fmt.Errorf("input %d: %w", inIndex, pset.ErrInputFinalized)
		}
		return fn(in)
	})
}

func (u *Updater) updateOutput(outIndex int, fn func(out *pset.Output) error) error {
	return u.pset.Update(func(p *pset.Pset) error {
		out, err := p.Output(outIndex)
		if err != nil {
			return err
		}
		return fn(out)
	})
}

// AddInputs appends inputs.
func (u *Updater) AddInputs(inputs []InputArgs) error {
	return u.pset.Update(func(p *pset.Pset) error {
		for i, in := range inputs {
			if err := p.AddInput(in.toInput()); err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
		}
		return nil
	})
}

// AddOutputs appends outputs.
func (u *Updater) AddOutputs(outputs []OutputArgs) error {
	return u.pset.Update(func(p *pset.Pset) error {
		for i, args := range outputs {
			out, err := args.toOutput(&u.cfg)
			if err != nil {
				return fmt.Errorf("output %d: %w", i, err)
			}
			if err := p.AddOutput(out); err != nil {
				return fmt.Errorf("output %d: %w", i, err)
			}
		}
		return nil
	})
}

// AddInNonWitnessUtxo attaches the full transaction the input spends from.
func (u *Updater) AddInNonWitnessUtxo(inIndex int, tx *transaction.Transaction) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		txid := tx.TxHash()
		if !bytes.Equal(txid[:], in.PreviousTxid) {
			return fmt.Errorf("non witness utxo %s does not match input %d", txid, inIndex)
		}
		in.NonWitnessUtxo = tx.Copy()
		return nil
	})
}

// AddInWitnessUtxo attaches the spent output. The output's range proof,
// if any, is kept as the input's utxo range proof since the witness utxo
// field only holds the non-witness part of the output.
func (u *Updater) AddInWitnessUtxo(inIndex int, txOut *transaction.TxOutput) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		utxo := txOut.Copy()
		if len(utxo.RangeProof) > 0 && in.UtxoRangeProof == nil {
			in.UtxoRangeProof = utxo.RangeProof
		}
		utxo.RangeProof = nil
		utxo.SurjectionProof = nil
		in.WitnessUtxo = utxo
		return nil
	})
}

// AddInUtxoRangeProof attaches the range proof of a confidential utxo.
func (u *Updater) AddInUtxoRangeProof(inIndex int, proof []byte) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		in.UtxoRangeProof = cloneBytes(proof)
		return nil
	})
}

// AddInSighashType sets the sighash type signers must use for the input.
func (u *Updater) AddInSighashType(inIndex int, sighashType txscript.SigHashType) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		t := sighashType
		in.SigHashType = &t
		return nil
	})
}

// AddInRedeemScript sets the P2SH redeem script of the input.
func (u *Updater) AddInRedeemScript(inIndex int, redeemScript []byte) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		in.RedeemScript = cloneBytes(redeemScript)
		return nil
	})
}

// AddInWitnessScript sets the P2WSH witness script of the input.
func (u *Updater) AddInWitnessScript(inIndex int, witnessScript []byte) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		in.WitnessScript = cloneBytes(witnessScript)
		return nil
	})
}

// AddInBip32Derivation records the origin of a key that signs the input.
// Can be called once per public key.
func (u *Updater) AddInBip32Derivation(inIndex int, d *psbt.Bip32Derivation) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		for _, existing := range in.Bip32Derivation {
			if bytes.Equal(existing.PubKey, d.PubKey) {
				return fmt.Errorf("derivation for %x: %w", d.PubKey, pset.ErrDuplicateKey)
			}
		}
		in.Bip32Derivation = append(in.Bip32Derivation, copyBip32(d))
		return nil
	})
}

// AddInHeightLocktime requires the transaction locktime to be at least
// the given block height. Fails if this changes the locktime of a PSET
// that already carries signatures.
func (u *Updater) AddInHeightLocktime(inIndex int, height uint32) error {
	return u.setInLocktime(inIndex, func(in *pset.Input) { in.RequiredHeightLocktime = height })
}

// AddInTimeLocktime requires the transaction locktime to be at least the
// given unix time. Fails if this changes the locktime of a PSET that
// already carries signatures.
func (u *Updater) AddInTimeLocktime(inIndex int, unixTime uint32) error {
	return u.setInLocktime(inIndex, func(in *pset.Input) { in.RequiredTimeLocktime = unixTime })
}

func (u *Updater) setInLocktime(inIndex int, set func(in *pset.Input)) error {
	return u.pset.Update(func(p *pset.Pset) error {
		in, err := p.Input(inIndex)
		if err != nil {
			return err
		}
		before := p.Locktime()
		set(in)
		if p.Locktime() != before && p.HasSignatures() {
			return pset.ErrLocktimeConflict
		}
		return nil
	})
}

// Destination is where issued coins are sent: Script or, with an
// AddressDecoder configured, Address. BlindingPubKey marks the output for
// blinding and defaults to the key of a confidential address.
type Destination struct {
	Script         []byte
	Address        string
	BlindingPubKey []byte
}

func (d Destination) isSet() bool {
	return len(d.Script) > 0 || d.Address != ""
}

// output builds the output paying amount of asset to d. A blinded output
// is assigned to the issuing input's owner.
func (d Destination) output(cfg *config, asset []byte, amount uint64,
	inIndex int) (*pset.Output, error) {

	out, err := OutputArgs{
		Asset:          asset,
		Amount:         amount,
		Script:         d.Script,
		Address:        d.Address,
		BlindingPubKey: d.BlindingPubKey,
	}.toOutput(cfg)
	if err != nil {
		return nil, err
	}
	if out.NeedsBlinding() {
		idx := uint32(inIndex)
		out.BlinderIndex = &idx
	}
	return out, nil
}

// AddInIssuanceArgs describes a new asset issuance.
type AddInIssuanceArgs struct {
	ContractHash    []byte // 32 bytes, nil for no contract
	AssetAmount     uint64
	TokenAmount     uint64
	AssetTo         Destination
	TokenTo         Destination
	BlindedIssuance bool // Amounts will be blinded; changes the token id
}

func (a AddInIssuanceArgs) validate(cfg *config) error {
	if a.AssetAmount == 0 && a.TokenAmount == 0 {
		return errors.New("asset or token amount must be greater than zero")
	}
	if a.ContractHash != nil && len(a.ContractHash) != 32 {
		return fmt.Errorf("contract hash must be 32 bytes, got %d", len(a.ContractHash))
	}
	if a.AssetAmount > 0 && !a.AssetTo.isSet() {
		return errors.New("missing destination for the issued asset")
	}
	if a.TokenAmount > 0 && !a.TokenTo.isSet() {
		return errors.New("missing destination for the reissuance token")
	}
	if a.AssetAmount > 0 && a.TokenAmount > 0 &&
		a.AssetTo.Address != "" && a.TokenTo.Address != "" && cfg.addressDecoder != nil &&
		cfg.addressDecoder.IsConfidential(a.AssetTo.Address) !=
			cfg.addressDecoder.IsConfidential(a.TokenTo.Address) {
		return errors.New("asset and token addresses must both be confidential or both unconfidential")
	}
	return nil
}

// AddInIssuance adds a new asset issuance to input inIndex and the outputs
// receiving the issued asset and its reissuance token.
//
// The asset entropy is derived from the input's outpoint and the contract
// hash, so issuing twice from the same outpoint and contract yields the
// same asset. Fails if the input already carries an issuance.
func (u *Updater) AddInIssuance(inIndex int, args AddInIssuanceArgs) error {
	if err := args.validate(&u.cfg); err != nil {
		return &pset.FieldError{Scope: "input", Index: inIndex, Field: "issuance", Cause: err}
	}

	return u.pset.Update(func(p *pset.Pset) error {
		in, err := p.Input(inIndex)
		if err != nil {
			return err
		}
		if in.HasIssuance() {
			return fmt.Errorf("input %d: %w", inIndex, pset.ErrIssuanceAlreadyPresent)
		}
		if in.IsFinalized() {
			return fmt.Errorf("input %d: %w", inIndex, pset.ErrInputFinalized)
		}

		contractHash := args.ContractHash
		if contractHash == nil {
			contractHash = make([]byte, 32)
		}
		blinded := args.BlindedIssuance
		in.IssuanceAssetEntropy = cloneBytes(contractHash)
		in.IssuanceValue = args.AssetAmount
		in.IssuanceInflationKeys = args.TokenAmount
		in.BlindedIssuance = &blinded

		if args.AssetAmount > 0 {
			asset, err := in.IssuanceAsset()
			if err != nil {
				return err
			}
			out, err := args.AssetTo.output(&u.cfg, asset, args.AssetAmount, inIndex)
			if err != nil {
				return fmt.Errorf("asset output: %w", err)
			}
			if err := p.AddOutput(out); err != nil {
				return err
			}
		}
		if args.TokenAmount > 0 {
			token, err := in.IssuanceToken()
			if err != nil {
				return err
			}
			out, err := args.TokenTo.output(&u.cfg, token, args.TokenAmount, inIndex)
			if err != nil {
				return fmt.Errorf("token output: %w", err)
			}
			if err := p.AddOutput(out); err != nil {
				return err
			}
		}

		log.Debugf("Added issuance of %d asset and %d token to input %d",
			args.AssetAmount, args.TokenAmount, inIndex)
		return nil
	})
}

// AddInReissuanceArgs describes the reissuance of an existing asset. The
// input spends the reissuance token.
type AddInReissuanceArgs struct {
	Entropy                []byte // 32 byte asset entropy of the initial issuance
	AssetAmount            uint64 // Amount to reissue
	TokenAmount            uint64 // Token amount spent and sent back
	TokenAssetBlinder      []byte // Asset blinder of the spent token output
	InitialIssuanceBlinded bool   // Whether the initial issuance was blinded
	AssetTo                Destination
	TokenTo                Destination
}

func (a AddInReissuanceArgs) validate() error {
	if len(a.Entropy) != 32 {
		return fmt.Errorf("entropy must be 32 bytes, got %d", len(a.Entropy))
	}
	if len(a.TokenAssetBlinder) != 32 {
		return fmt.Errorf("token asset blinder must be 32 bytes, got %d", len(a.TokenAssetBlinder))
	}
	if bytes.Equal(a.TokenAssetBlinder, make([]byte, 32)) {
		return errors.New("token asset blinder must not be zero")
	}
	if a.AssetAmount == 0 {
		return errors.New("reissued asset amount must be greater than zero")
	}
	if a.TokenAmount == 0 {
		return errors.New("token amount must be greater than zero")
	}
	if !a.AssetTo.isSet() || !a.TokenTo.isSet() {
		return errors.New("missing destination for the reissued asset or the token")
	}
	return nil
}

// AddInReissuance adds a reissuance to input inIndex, which must spend a
// confidential reissuance token: its asset blinder becomes the issuance
// blinding nonce, proving the spender can unblind the token. Adds the
// reissued asset output and the output returning the token.
func (u *Updater) AddInReissuance(inIndex int, args AddInReissuanceArgs) error {
	if err := args.validate(); err != nil {
		return &pset.FieldError{Scope: "input", Index: inIndex, Field: "issuance", Cause: err}
	}

	return u.pset.Update(func(p *pset.Pset) error {
		in, err := p.Input(inIndex)
		if err != nil {
			return err
		}
		if in.HasIssuance() {
			return fmt.Errorf("input %d: %w", inIndex, pset.ErrIssuanceAlreadyPresent)
		}
		if in.IsFinalized() {
			return fmt.Errorf("input %d: %w", inIndex, pset.ErrInputFinalized)
		}
		utxo, err := in.Utxo()
		if err != nil {
			return fmt.Errorf("input %d: %w", inIndex, err)
		}
		if !utxo.IsConfidential() {
			return fmt.Errorf("input %d: token prevout must be confidential", inIndex)
		}

		in.IssuanceAssetEntropy = cloneBytes(args.Entropy)
		in.IssuanceBlindingNonce = cloneBytes(args.TokenAssetBlinder)
		in.IssuanceValue = args.AssetAmount
		in.IssuanceInflationKeys = 0

		asset, err := pset.ComputeAsset(args.Entropy)
		if err != nil {
			return err
		}
		token, err := pset.ComputeReissuanceToken(args.Entropy, args.InitialIssuanceBlinded)
		if err != nil {
			return err
		}

		out, err := args.AssetTo.output(&u.cfg, asset, args.AssetAmount, inIndex)
		if err != nil {
			return fmt.Errorf("asset output: %w", err)
		}
		// The reissued amount is blinded along with the output receiving it.
		blinded := out.NeedsBlinding()
		in.BlindedIssuance = &blinded
		if err := p.AddOutput(out); err != nil {
			return err
		}
		out, err = args.TokenTo.output(&u.cfg, token, args.TokenAmount, inIndex)
		if err != nil {
			return fmt.Errorf("token output: %w", err)
		}
		if err := p.AddOutput(out); err != nil {
			return err
		}

		log.Debugf("Added reissuance of %d to input %d", args.AssetAmount, inIndex)
		return nil
	})
}

// AddInTapInternalKey sets the taproot internal key of the input.
func (u *Updater) AddInTapInternalKey(inIndex int, xOnlyKey []byte) error {
	if _, err := schnorr.ParsePubKey(xOnlyKey); err != nil {
		return fmt.Errorf("taproot internal key: %w", err)
	}
	return u.updateInput(inIndex, func(in *pset.Input) error {
		in.TapInternalKey = cloneBytes(xOnlyKey)
		return nil
	})
}

// AddInTapMerkleRoot sets the script tree root of a taproot input.
func (u *Updater) AddInTapMerkleRoot(inIndex int, root chainhash.Hash) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		in.TapMerkleRoot = root.CloneBytes()
		return nil
	})
}

// AddInTapLeafScript adds a leaf script the input can be spent with.
func (u *Updater) AddInTapLeafScript(inIndex int, leaf *psbt.TaprootTapLeafScript) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		for _, existing := range in.TapLeafScript {
			if bytes.Equal(existing.ControlBlock, leaf.ControlBlock) {
				return fmt.Errorf("leaf script: %w", pset.ErrDuplicateKey)
			}
		}
		in.TapLeafScript = append(in.TapLeafScript, &psbt.TaprootTapLeafScript{
			ControlBlock: cloneBytes(leaf.ControlBlock),
			Script:       cloneBytes(leaf.Script),
			LeafVersion:  leaf.LeafVersion,
		})
		return nil
	})
}

// AddInTapBip32Derivation records the origin of a taproot key.
func (u *Updater) AddInTapBip32Derivation(inIndex int, d *psbt.TaprootBip32Derivation) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		for _, existing := range in.TapBip32Derivation {
			if bytes.Equal(existing.XOnlyPubKey, d.XOnlyPubKey) {
				return fmt.Errorf("taproot derivation: %w", pset.ErrDuplicateKey)
			}
		}
		in.TapBip32Derivation = append(in.TapBip32Derivation, copyTapBip32(d))
		return nil
	})
}

// PeginArgs are the data of a peg-in claim.
type PeginArgs struct {
	BitcoinTx   *wire.MsgTx    // Bitcoin transaction sending to the peg-in address
	TxoutProof  []byte         // Merkle proof of BitcoinTx
	ClaimScript []byte         // Script the peg-in output commits to
	GenesisHash chainhash.Hash // Bitcoin genesis block hash
	Value       uint64         // Value of the pegged-in output
}

// AddInPeginData turns input inIndex into a peg-in claim.
func (u *Updater) AddInPeginData(inIndex int, args PeginArgs) error {
	if args.BitcoinTx == nil {
		return errors.New("peg-in requires the bitcoin transaction")
	}
	if len(args.TxoutProof) == 0 || len(args.ClaimScript) == 0 {
		return errors.New("peg-in requires the txout proof and the claim script")
	}
	return u.updateInput(inIndex, func(in *pset.Input) error {
		if txid := args.BitcoinTx.TxHash(); !bytes.Equal(txid[:], in.PreviousTxid) {
			return fmt.Errorf("bitcoin tx %s does not match input %d", txid, inIndex)
		}
		in.PeginTx = args.BitcoinTx.Copy()
		in.PeginTxoutProof = cloneBytes(args.TxoutProof)
		in.PeginClaimScript = cloneBytes(args.ClaimScript)
		in.PeginGenesisHash = args.GenesisHash.CloneBytes()
		in.PeginValue = args.Value
		return nil
	})
}

// AddInExplicitProofs attaches proofs that a confidential input spends a
// given value and asset.
func (u *Updater) AddInExplicitProofs(inIndex int, proofs *ExplicitProofs) error {
	return u.updateInput(inIndex, func(in *pset.Input) error {
		in.ExplicitValue = proofs.ExplicitValue
		in.ValueProof = cloneBytes(proofs.ValueProof)
		in.ExplicitAsset = cloneBytes(proofs.ExplicitAsset)
		in.AssetProof = cloneBytes(proofs.AssetProof)
		return nil
	})
}

// AddOutBip32Derivation records the origin of a key the output pays to.
func (u *Updater) AddOutBip32Derivation(outIndex int, d *psbt.Bip32Derivation) error {
	return u.updateOutput(outIndex, func(out *pset.Output) error {
		for _, existing := range out.Bip32Derivation {
			if bytes.Equal(existing.PubKey, d.PubKey) {
				return fmt.Errorf("derivation for %x: %w", d.PubKey, pset.ErrDuplicateKey)
			}
		}
		out.Bip32Derivation = append(out.Bip32Derivation, copyBip32(d))
		return nil
	})
}

// AddOutRedeemScript sets the redeem script of a P2SH output.
func (u *Updater) AddOutRedeemScript(outIndex int, redeemScript []byte) error {
	return u.updateOutput(outIndex, func(out *pset.Output) error {
		out.RedeemScript = cloneBytes(redeemScript)
		return nil
	})
}

// AddOutWitnessScript sets the witness script of a P2WSH output.
func (u *Updater) AddOutWitnessScript(outIndex int, witnessScript []byte) error {
	return u.updateOutput(outIndex, func(out *pset.Output) error {
		out.WitnessScript = cloneBytes(witnessScript)
		return nil
	})
}

// AddOutTapInternalKey sets the internal key of a taproot output.
func (u *Updater) AddOutTapInternalKey(outIndex int, xOnlyKey []byte) error {
	if _, err := schnorr.ParsePubKey(xOnlyKey); err != nil {
		return fmt.Errorf("taproot internal key: %w", err)
	}
	return u.updateOutput(outIndex, func(out *pset.Output) error {
		if out.TapInternalKey != nil {
			return errors.New("output already has a taproot internal key")
		}
		out.TapInternalKey = cloneBytes(xOnlyKey)
		return nil
	})
}

// AddOutTapTree sets the script tree of a taproot output, leaves in
// depth-first order.
func (u *Updater) AddOutTapTree(outIndex int, leaves []pset.TapLeaf) error {
	if len(leaves) == 0 {
		return errors.New("empty taproot tree")
	}
	return u.updateOutput(outIndex, func(out *pset.Output) error {
		if out.TapTree != nil {
			return errors.New("output already has a taproot tree")
		}
		out.TapTree = make([]pset.TapLeaf, len(leaves))
		for i, l := range leaves {
			out.TapTree[i] = pset.TapLeaf{
				Depth:       l.Depth,
				LeafVersion: l.LeafVersion,
				Script:      cloneBytes(l.Script),
			}
		}
		return nil
	})
}

// AddOutTapBip32Derivation records the origin of a taproot output key.
func (u *Updater) AddOutTapBip32Derivation(outIndex int, d *psbt.TaprootBip32Derivation) error {
	return u.updateOutput(outIndex, func(out *pset.Output) error {
		for _, existing := range out.TapBip32Derivation {
			if bytes.Equal(existing.XOnlyPubKey, d.XOnlyPubKey) {
				return fmt.Errorf("taproot derivation: %w", pset.ErrDuplicateKey)
			}
		}
		out.TapBip32Derivation = append(out.TapBip32Derivation, copyTapBip32(d))
		return nil
	})
}

func copyBip32(d *psbt.Bip32Derivation) *psbt.Bip32Derivation {
	return &psbt.Bip32Derivation{
		PubKey:               cloneBytes(d.PubKey),
		MasterKeyFingerprint: d.MasterKeyFingerprint,
		Bip32Path:            append([]uint32(nil), d.Bip32Path...),
	}
}

func copyTapBip32(d *psbt.TaprootBip32Derivation) *psbt.TaprootBip32Derivation {
	c := &psbt.TaprootBip32Derivation{
		XOnlyPubKey:          cloneBytes(d.XOnlyPubKey),
		MasterKeyFingerprint: d.MasterKeyFingerprint,
		Bip32Path:            append([]uint32(nil), d.Bip32Path...),
	}
	for _, h := range d.LeafHashes {
		c.LeafHashes = append(c.LeafHashes, cloneBytes(h))
	}
	return c
}

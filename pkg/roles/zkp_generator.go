package roles

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/suffix-labs/elements-pset/pkg/confidential"
	"github.com/suffix-labs/elements-pset/pkg/crypto"
	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

// OwnedInput is the opening of an input known to the party spending it.
// Explicit inputs have zero blinders.
type OwnedInput struct {
	Index        uint32
	Value        uint64
	Asset        []byte // 32 bytes, internal byte order
	ValueBlinder []byte // 32 bytes
	AssetBlinder []byte // 32 bytes
}

// OutputBlindingArgs are the commitments and proofs of one blinded output.
// Nonce is the ECDH secret shared with the receiver and never leaves the
// blinding party.
type OutputBlindingArgs struct {
	Index                uint32
	Nonce                []byte
	NonceCommitment      []byte // Ephemeral public key, the output's ECDH key
	ValueCommitment      []byte
	AssetCommitment      []byte
	ValueBlinder         []byte
	AssetBlinder         []byte
	ValueRangeProof      []byte
	AssetSurjectionProof []byte
	ValueBlindProof      []byte
	AssetBlindProof      []byte
}

// IssuanceBlindingArgs are the commitments and proofs of a blinded
// issuance. Token fields are empty when no inflation keys are issued.
type IssuanceBlindingArgs struct {
	Index                   uint32
	IssuanceAsset           []byte
	IssuanceToken           []byte
	IssuanceValueCommitment []byte
	IssuanceTokenCommitment []byte
	IssuanceValueRangeProof []byte
	IssuanceTokenRangeProof []byte
	IssuanceValueBlindProof []byte
	IssuanceTokenBlindProof []byte
	IssuanceValueBlinder    []byte
	IssuanceTokenBlinder    []byte
}

// ExplicitProofs reveal the value and asset of a confidential input.
type ExplicitProofs struct {
	ExplicitValue uint64
	ValueProof    []byte
	ExplicitAsset []byte
	AssetProof    []byte
}

// ZKPGenerator produces the blinders, commitments and proofs of the inputs
// and outputs a party owns.
//
// Owned inputs are either given directly, or recovered by rewinding the
// range proofs of the spent outputs with the party's blinding keys.
type ZKPGenerator struct {
	lib               confidential.ZKPLib
	ownedInputs       []OwnedInput
	blindingKeys      [][]byte
	masterBlindingKey []byte
	cfg               config
}

// NewZKPGeneratorFromOwnedInputs returns a generator for a party that
// already knows the openings of its inputs.
func NewZKPGeneratorFromOwnedInputs(lib confidential.ZKPLib, owned []OwnedInput,
	opts ...Option) *ZKPGenerator {

	return &ZKPGenerator{lib: lib, ownedInputs: owned, cfg: newConfig(opts)}
}

// NewZKPGeneratorFromBlindingKeys returns a generator that unblinds inputs
// by trying each private blinding key in turn.
func NewZKPGeneratorFromBlindingKeys(lib confidential.ZKPLib, keys [][]byte,
	opts ...Option) *ZKPGenerator {

	return &ZKPGenerator{lib: lib, blindingKeys: keys, cfg: newConfig(opts)}
}

// NewZKPGeneratorFromMasterBlindingKey returns a generator that derives the
// blinding key of each input from its script (SLIP-0077).
func NewZKPGeneratorFromMasterBlindingKey(lib confidential.ZKPLib, masterKey []byte,
	opts ...Option) (*ZKPGenerator, error) {

	if len(masterKey) != 32 {
		return nil, errors.New("master blinding key must be 32 bytes")
	}
	return &ZKPGenerator{
		lib:               lib,
		masterBlindingKey: cloneBytes(masterKey),
		cfg:               newConfig(opts),
	}, nil
}

// UnblindInputs returns the openings of the inputs at inIndexes, all
// inputs when empty. A generator built from owned inputs returns those
// matching the indexes.
func (g *ZKPGenerator) UnblindInputs(p *pset.Pset, inIndexes []int) ([]OwnedInput, error) {
	if len(inIndexes) == 0 {
		for i := range p.Inputs {
			inIndexes = append(inIndexes, i)
		}
	}

	if len(g.ownedInputs) > 0 {
		var owned []OwnedInput
		for _, o := range g.ownedInputs {
			for _, i := range inIndexes {
				if int(o.Index) == i {
					owned = append(owned, o)
				}
			}
		}
		return owned, nil
	}

	owned := make([]OwnedInput, 0, len(inIndexes))
	for _, i := range inIndexes {
		in, err := p.Input(i)
		if err != nil {
			return nil, err
		}
		utxo, err := in.Utxo()
		if err != nil {
			return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: i,
				Message: "cannot unblind", Cause: err}
		}
		o, err := g.unblindUtxo(utxo, in.UtxoRangeProof)
		if err != nil {
			return nil, &pset.BlindingError{Code: pset.CodeNotOwner, Index: i,
				Message: "cannot unblind", Cause: err}
		}
		o.Index = uint32(i)
		owned = append(owned, *o)
		log.Debugf("Unblinded input %d", i)
	}
	return owned, nil
}

func (g *ZKPGenerator) unblindUtxo(utxo *transaction.TxOutput, rangeProof []byte) (*OwnedInput, error) {
	if !utxo.IsConfidential() {
		value, err := pset.ValueFromBytes(utxo.Value)
		if err != nil {
			return nil, err
		}
		asset, err := pset.AssetFromBytes(utxo.Asset)
		if err != nil {
			return nil, err
		}
		return &OwnedInput{
			Value:        value,
			Asset:        asset,
			ValueBlinder: confidential.ZeroScalar(),
			AssetBlinder: confidential.ZeroScalar(),
		}, nil
	}

	if len(rangeProof) == 0 {
		rangeProof = utxo.RangeProof
	}
	if len(rangeProof) == 0 {
		return nil, errors.New("missing range proof of the confidential utxo")
	}
	if len(utxo.Nonce) != 33 {
		return nil, errors.New("missing ecdh public key of the confidential utxo")
	}

	keys := g.blindingKeys
	if g.masterBlindingKey != nil {
		key, err := crypto.BlindingKey(g.masterBlindingKey, utxo.Script)
		if err != nil {
			return nil, err
		}
		keys = [][]byte{key.Bytes()}
	}

	for i, key := range keys {
		o, err := g.rewind(utxo, rangeProof, key)
		if err != nil {
			log.Warnf("Blinding key %d does not open the utxo: %v", i, err)
			continue
		}
		return o, nil
	}
	return nil, errors.New("no blinding key opens the utxo")
}

func (g *ZKPGenerator) rewind(utxo *transaction.TxOutput, rangeProof, key []byte) (*OwnedInput, error) {
	nonce, err := g.lib.ECDH(utxo.Nonce, key)
	if err != nil {
		return nil, err
	}
	res, err := g.lib.RangeProofRewind(rangeProof, utxo.Value, utxo.Asset, nonce, utxo.Script)
	if err != nil {
		return nil, err
	}
	if len(res.Message) < 64 {
		return nil, fmt.Errorf("range proof message is %d bytes", len(res.Message))
	}
	asset, assetBlinder := res.Message[:32], res.Message[32:64]
	gen, err := g.lib.BlindedAssetGenerator(asset, assetBlinder)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(gen, utxo.Asset) {
		return nil, errors.New("recovered asset does not match the asset commitment")
	}
	return &OwnedInput{
		Value:        res.Value,
		Asset:        cloneBytes(asset),
		ValueBlinder: res.ValueBlinder,
		AssetBlinder: cloneBytes(assetBlinder),
	}, nil
}

// BlindIssuances blinds the amounts of the issuances marked as blinded.
// blindingKeys maps an input index to the 32 byte key the issuance range
// proofs can be rewound with; inputs without a key get a random one.
func (g *ZKPGenerator) BlindIssuances(p *pset.Pset,
	blindingKeys map[int][]byte) ([]IssuanceBlindingArgs, error) {

	var args []IssuanceBlindingArgs
	for i, in := range p.Inputs {
		if !in.HasIssuance() || in.BlindedIssuance == nil || !*in.BlindedIssuance {
			continue
		}
		if in.IssuanceValueCommitment != nil || in.IssuanceInflationKeysCommitment != nil {
			continue
		}

		key := blindingKeys[i]
		if key == nil {
			var err error
			if key, err = g.cfg.randomBytes(32); err != nil {
				return nil, err
			}
		}

		a := IssuanceBlindingArgs{Index: uint32(i)}
		asset, err := in.IssuanceAsset()
		if err != nil {
			return nil, err
		}
		a.IssuanceAsset = asset
		if in.IssuanceValue > 0 {
			a.IssuanceValueBlinder, a.IssuanceValueCommitment, a.IssuanceValueRangeProof,
				a.IssuanceValueBlindProof, err = g.blindIssuanceAmount(in.IssuanceValue, asset, key)
			if err != nil {
				return nil, &pset.BlindingError{Code: pset.CodeProofFailed, Index: i,
					Message: "issuance value", Cause: err}
			}
		}
		if in.IssuanceInflationKeys > 0 {
			token, err := in.IssuanceToken()
			if err != nil {
				return nil, err
			}
			a.IssuanceToken = token
			a.IssuanceTokenBlinder, a.IssuanceTokenCommitment, a.IssuanceTokenRangeProof,
				a.IssuanceTokenBlindProof, err = g.blindIssuanceAmount(in.IssuanceInflationKeys, token, key)
			if err != nil {
				return nil, &pset.BlindingError{Code: pset.CodeProofFailed, Index: i,
					Message: "issuance inflation keys", Cause: err}
			}
		}
		args = append(args, a)
		log.Debugf("Blinded issuance of input %d", i)
	}
	return args, nil
}

// blindIssuanceAmount commits to an issuance amount. Issued assets are
// explicit, so the commitment uses the unblinded asset generator.
func (g *ZKPGenerator) blindIssuanceAmount(value uint64, asset,
	nonce []byte) (blinder, commitment, rangeProof, blindProof []byte, err error) {

	generator, err := g.lib.AssetGenerator(asset)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if blinder, err = g.cfg.randomBytes(32); err != nil {
		return nil, nil, nil, nil, err
	}
	commitment, rangeProof, blindProof, err = g.valueProofs(value, asset,
		generator, confidential.ZeroScalar(), blinder, nonce, nil)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return blinder, commitment, rangeProof, blindProof, nil
}

// outputSecrets is the randomness of one output, drawn up front so the
// proofs can be computed concurrently.
type outputSecrets struct {
	ephemeralKey *crypto.PrivateKey
	valueBlinder []byte
	assetBlinder []byte
	seed         []byte
}

// BlindOutputs returns the blinding args of the outputs at outIndexes. When
// outIndexes is empty, every output that needs blinding and is assigned to
// one of owned is blinded.
//
// owned must hold the openings of the caller's inputs; they select which
// input asset each surjection proof is built over. Issued assets and tokens
// of p are explicit targets, whether or not their amounts are blinded.
func (g *ZKPGenerator) BlindOutputs(p *pset.Pset, owned []OwnedInput,
	outIndexes []int) ([]OutputBlindingArgs, error) {

	if len(outIndexes) == 0 {
		for i, out := range p.Outputs {
			if out.NeedsBlinding() && !out.IsFullyBlinded() &&
				out.BlinderIndex != nil && isOwned(owned, *out.BlinderIndex) {
				outIndexes = append(outIndexes, i)
			}
		}
	}
	sort.Ints(outIndexes)

	targets, err := surjectionTargets(g.lib, p, owned)
	if err != nil {
		return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: -1,
			Message: "surjection targets", Cause: err}
	}

	secrets := make([]outputSecrets, len(outIndexes))
	for i := range outIndexes {
		keyBytes, err := g.cfg.randomBytes(32)
		if err != nil {
			return nil, err
		}
		key, err := crypto.PrivateKeyFromBytes(keyBytes)
		if err != nil {
			return nil, err
		}
		s := outputSecrets{ephemeralKey: key}
		if s.valueBlinder, err = g.cfg.randomBytes(32); err != nil {
			return nil, err
		}
		if s.assetBlinder, err = g.cfg.randomBytes(32); err != nil {
			return nil, err
		}
		if s.seed, err = g.cfg.randomBytes(32); err != nil {
			return nil, err
		}
		secrets[i] = s
	}

	results := make([]OutputBlindingArgs, len(outIndexes))
	var eg errgroup.Group
	for i, outIndex := range outIndexes {
		out, err := p.Output(outIndex)
		if err != nil {
			return nil, err
		}
		if !out.NeedsBlinding() {
			return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: outIndex,
				Message: "output does not need blinding"}
		}
		eg.Go(func() error {
			args, err := g.blindOutput(out, uint32(outIndex), secrets[i], targets)
			if err != nil {
				return &pset.BlindingError{Code: pset.CodeProofFailed, Index: outIndex,
					Message: "blind output", Cause: err}
			}
			results[i] = *args
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	log.Debugf("Generated blinding args for %d outputs", len(results))
	return results, nil
}

func (g *ZKPGenerator) blindOutput(out *pset.Output, index uint32, s outputSecrets,
	targets *assetTargets) (*OutputBlindingArgs, error) {

	nonce, err := g.lib.ECDH(out.BlindingPubkey, s.ephemeralKey.Bytes())
	if err != nil {
		return nil, err
	}
	assetCommitment, err := g.lib.BlindedAssetGenerator(out.Asset, s.assetBlinder)
	if err != nil {
		return nil, err
	}
	valueCommitment, rangeProof, valueBlindProof, err := g.valueProofs(out.Amount,
		out.Asset, assetCommitment, s.assetBlinder, s.valueBlinder, nonce, out.Script)
	if err != nil {
		return nil, err
	}

	surjectionProof, err := g.lib.SurjectionProof(confidential.SurjectionProofArgs{
		InputAssets:     targets.assets,
		InputGenerators: targets.generators,
		InputBlinders:   targets.blinders,
		OutputAsset:     out.Asset,
		OutputBlinder:   s.assetBlinder,
		Seed:            s.seed,
	})
	if err != nil {
		return nil, err
	}
	assetBlindProof, err := g.lib.BlindAssetProof(out.Asset, assetCommitment, s.assetBlinder)
	if err != nil {
		return nil, err
	}

	return &OutputBlindingArgs{
		Index:                index,
		Nonce:                nonce,
		NonceCommitment:      s.ephemeralKey.PublicKey().Bytes(),
		ValueCommitment:      valueCommitment,
		AssetCommitment:      assetCommitment,
		ValueBlinder:         s.valueBlinder,
		AssetBlinder:         s.assetBlinder,
		ValueRangeProof:      rangeProof,
		AssetSurjectionProof: surjectionProof,
		ValueBlindProof:      valueBlindProof,
		AssetBlindProof:      assetBlindProof,
	}, nil
}

// valueProofs commits to value under generator and proves the commitment.
// The range proof message lets the nonce holder recover asset and
// assetBlinder.
func (g *ZKPGenerator) valueProofs(value uint64, asset, generator, assetBlinder,
	valueBlinder, nonce, script []byte) (commitment, rangeProof, blindProof []byte, err error) {

	commitment, err = g.lib.ValueCommitment(value, generator, valueBlinder)
	if err != nil {
		return nil, nil, nil, err
	}
	var minValue uint64
	if value > 0 {
		minValue = 1
	}
	message := make([]byte, 0, 64)
	message = append(message, asset...)
	message = append(message, assetBlinder...)
	rangeProof, err = g.lib.RangeProofSign(confidential.RangeProofArgs{
		Value:           value,
		ValueCommitment: commitment,
		Generator:       generator,
		ValueBlinder:    valueBlinder,
		Nonce:           nonce,
		Message:         message,
		ExtraCommit:     script,
		MinValue:        minValue,
		MinBits:         g.cfg.rangeProofBits,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	blindProof, err = g.lib.BlindValueProof(value, commitment, generator, valueBlinder)
	if err != nil {
		return nil, nil, nil, err
	}
	return commitment, rangeProof, blindProof, nil
}

// InputExplicitProofs proves the value and asset of a confidential input
// the caller owns.
func (g *ZKPGenerator) InputExplicitProofs(p *pset.Pset, owned OwnedInput) (*ExplicitProofs, error) {
	in, err := p.Input(int(owned.Index))
	if err != nil {
		return nil, err
	}
	utxo, err := in.Utxo()
	if err != nil {
		return nil, err
	}
	if !utxo.IsConfidential() {
		return nil, &pset.BlindingError{Code: pset.CodeInvalidInput, Index: int(owned.Index),
			Message: "explicit proofs need a confidential utxo"}
	}
	valueProof, err := g.lib.BlindValueProof(owned.Value, utxo.Value, utxo.Asset, owned.ValueBlinder)
	if err != nil {
		return nil, &pset.BlindingError{Code: pset.CodeProofFailed, Index: int(owned.Index),
			Message: "value proof", Cause: err}
	}
	assetProof, err := g.lib.BlindAssetProof(owned.Asset, utxo.Asset, owned.AssetBlinder)
	if err != nil {
		return nil, &pset.BlindingError{Code: pset.CodeProofFailed, Index: int(owned.Index),
			Message: "asset proof", Cause: err}
	}
	return &ExplicitProofs{
		ExplicitValue: owned.Value,
		ValueProof:    valueProof,
		ExplicitAsset: cloneBytes(owned.Asset),
		AssetProof:    assetProof,
	}, nil
}

// assetTargets are the candidate inputs of surjection proofs: one entry
// per input, then one per issued asset and token. assets and blinders are
// only known for explicit and owned legs.
type assetTargets struct {
	generators [][]byte
	assets     [][]byte
	blinders   [][]byte
}

func surjectionTargets(lib confidential.ZKPLib, p *pset.Pset, owned []OwnedInput) (*assetTargets, error) {
	t := &assetTargets{}
	addExplicit := func(asset []byte) error {
		gen, err := lib.AssetGenerator(asset)
		if err != nil {
			return err
		}
		t.generators = append(t.generators, gen)
		t.assets = append(t.assets, asset)
		t.blinders = append(t.blinders, confidential.ZeroScalar())
		return nil
	}

	for i, in := range p.Inputs {
		utxo, err := in.Utxo()
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if !pset.IsConfidentialAsset(utxo.Asset) {
			asset, err := pset.AssetFromBytes(utxo.Asset)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			if err := addExplicit(asset); err != nil {
				return nil, err
			}
			continue
		}
		t.generators = append(t.generators, cloneBytes(utxo.Asset))
		if o := findOwned(owned, uint32(i)); o != nil {
			t.assets = append(t.assets, o.Asset)
			t.blinders = append(t.blinders, o.AssetBlinder)
		} else {
			t.assets = append(t.assets, nil)
			t.blinders = append(t.blinders, nil)
		}
	}

	for _, in := range p.Inputs {
		if !in.HasIssuance() {
			continue
		}
		if in.IssuanceValue > 0 || in.IssuanceValueCommitment != nil {
			asset, err := in.IssuanceAsset()
			if err != nil {
				return nil, err
			}
			if err := addExplicit(asset); err != nil {
				return nil, err
			}
		}
		if in.IssuanceInflationKeys > 0 || in.IssuanceInflationKeysCommitment != nil {
			token, err := in.IssuanceToken()
			if err != nil {
				return nil, err
			}
			if err := addExplicit(token); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func findOwned(owned []OwnedInput, index uint32) *OwnedInput {
	for i := range owned {
		if owned[i].Index == index {
			return &owned[i]
		}
	}
	return nil
}

func isOwned(owned []OwnedInput, index uint32) bool {
	return findOwned(owned, index) != nil
}

package roles

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

// maxWitnessItemSize bounds a single final witness item.
const maxWitnessItemSize = 4_000_000

// Extractor produces the network transaction of a complete PSET.
type Extractor struct {
	pset *pset.Pset
	cfg  config
}

// NewExtractor creates a new Extractor. WithNetwork selects the policy
// asset of peg-in witnesses whose utxo does not carry an explicit asset.
func NewExtractor(p *pset.Pset, opts ...Option) *Extractor {
	return &Extractor{pset: p, cfg: newConfig(opts)}
}

// Extract returns the final transaction. Every input must be finalized and
// every output that needs blinding must be blinded.
func (e *Extractor) Extract() (*transaction.Transaction, error) {
	p := e.pset
	if !p.IsComplete() {
		for i, in := range p.Inputs {
			if !in.IsFinalized() {
				return nil, &pset.FinalizationError{Code: pset.CodeIncomplete, InputIndex: i,
					Message: "input not finalized", Cause: pset.ErrIncomplete}
			}
		}
	}
	if p.NeedsBlinding() && !p.IsFullyBlinded() {
		return nil, &pset.FinalizationError{Code: pset.CodeIncomplete, InputIndex: -1,
			Message: "outputs not blinded", Cause: pset.ErrOutputNotFullyBlinded}
	}

	tx, err := p.UnsignedTx()
	if err != nil {
		return nil, err
	}
	for i, in := range p.Inputs {
		txIn := tx.Inputs[i]
		txIn.Script = cloneBytes(in.FinalScriptSig)
		if in.FinalScriptWitness != nil {
			witness, err := parseWitness(in.FinalScriptWitness)
			if err != nil {
				return nil, &pset.FinalizationError{Code: pset.CodeInvalidInput, InputIndex: i,
					Message: "final script witness", Cause: err}
			}
			txIn.Witness = transaction.TxWitness(witness)
		}
		if in.IsPegin() {
			witness, err := e.peginWitness(in)
			if err != nil {
				return nil, &pset.FinalizationError{Code: pset.CodeIncomplete, InputIndex: i,
					Message: "peg-in witness", Cause: err}
			}
			txIn.PeginWitness = transaction.TxWitness(witness)
		}
	}

	log.Infof("Extracted transaction %s", tx.TxHash())
	return tx, nil
}

// peginWitness returns the stored peg-in witness, or builds it from the
// peg-in fields: value, asset, parent genesis hash, claim script, parent
// transaction and txout proof.
func (e *Extractor) peginWitness(in *pset.Input) (wire.TxWitness, error) {
	if in.PeginWitness != nil {
		return in.PeginWitness, nil
	}
	if in.PeginTx == nil || in.PeginTxoutProof == nil || in.PeginClaimScript == nil ||
		in.PeginGenesisHash == nil {
		return nil, fmt.Errorf("missing peg-in data")
	}

	asset := e.cfg.network.PolicyAsset()
	if utxo, err := in.Utxo(); err == nil && !pset.IsConfidentialAsset(utxo.Asset) {
		if asset, err = pset.AssetFromBytes(utxo.Asset); err != nil {
			return nil, err
		}
	}

	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, in.PeginValue)

	var btcTx bytes.Buffer
	if err := in.PeginTx.SerializeNoWitness(&btcTx); err != nil {
		return nil, err
	}
	return wire.TxWitness{
		value,
		asset,
		cloneBytes(in.PeginGenesisHash),
		cloneBytes(in.PeginClaimScript),
		btcTx.Bytes(),
		cloneBytes(in.PeginTxoutProof),
	}, nil
}

func parseWitness(b []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(b)
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if n > uint64(len(b)) {
		return nil, fmt.Errorf("witness claims %d items in %d bytes", n, len(b))
	}
	witness := make(wire.TxWitness, 0, n)
	for i := uint64(0); i < n; i++ {
		item, err := wire.ReadVarBytes(r, 0, maxWitnessItemSize, "witness item")
		if err != nil {
			return nil, err
		}
		witness = append(witness, item)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return witness, nil
}

// Package roles implements the PSET role pattern.
//
// PSET roles separate transaction construction into distinct responsibilities:
//   - Creator: Builds a PSET from input and output descriptors
//   - Updater: Adds utxos, scripts, derivations, issuances and peg-ins
//   - ZKPGenerator: Unblinds owned inputs and produces commitments and proofs
//   - ZKPValidator: Verifies proofs supplied by other parties
//   - Blinder: Applies one party's blinding and balances the commitments
//   - Signer: Adds verified ECDSA and Schnorr signatures
//   - Combiner: Merges PSETs describing the same transaction
//   - Finalizer: Builds final scriptSigs and witnesses
//   - Extractor: Produces the final network transaction
//
// Each role can be executed by different parties or at different times.
// Roles mutate the PSET through pset.Pset.Update, so a failed call never
// leaves it half modified.
package roles

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/suffix-labs/elements-pset/pkg/pset"
)

// InputArgs describes an input by the outpoint it spends.
type InputArgs struct {
	Txid           chainhash.Hash // Previous txid
	TxIndex        uint32         // Previous output index
	Sequence       *uint32        // nil uses 0xffffffff, or 0xfffffffe with a locktime
	HeightLocktime uint32         // Required block height locktime, zero if none
	TimeLocktime   uint32         // Required unix time locktime, zero if none
}

// LocktimeSequence is the default sequence of an input requiring a
// locktime. A final sequence would disable the transaction locktime.
const LocktimeSequence uint32 = 0xfffffffe

func (a InputArgs) toInput() *pset.Input {
	in := pset.NewInput(a.Txid[:], a.TxIndex)
	switch {
	case a.Sequence != nil:
		in.Sequence = *a.Sequence
	case a.HeightLocktime != 0 || a.TimeLocktime != 0:
		in.Sequence = LocktimeSequence
	}
	in.RequiredHeightLocktime = a.HeightLocktime
	in.RequiredTimeLocktime = a.TimeLocktime
	return in
}

// OutputArgs describes an output. The destination is either Script or,
// with an AddressDecoder configured, Address. An output with neither pays
// the fee.
type OutputArgs struct {
	Asset          []byte  // 32 byte asset id, internal byte order
	Amount         uint64  // Explicit amount
	Script         []byte  // scriptPubKey
	Address        string  // Alternative to Script
	BlindingPubKey []byte  // Marks the output for blinding
	BlinderIndex   *uint32 // Input whose owner blinds the output
}

func (a OutputArgs) toOutput(cfg *config) (*pset.Output, error) {
	if len(a.Asset) != 32 {
		return nil, fmt.Errorf("asset must be 32 bytes, got %d", len(a.Asset))
	}
	if a.Address != "" && len(a.Script) > 0 {
		return nil, fmt.Errorf("output has both a script and an address")
	}

	script, blindingKey := a.Script, a.BlindingPubKey
	if a.Address != "" {
		s, k, err := cfg.outputScript(a.Address)
		if err != nil {
			return nil, fmt.Errorf("address %s: %w", a.Address, err)
		}
		script = s
		if blindingKey == nil {
			blindingKey = k
		}
	}

	out := pset.NewOutput(a.Amount, a.Asset, script)
	out.BlindingPubkey = cloneBytes(blindingKey)
	if a.BlinderIndex != nil {
		if out.BlindingPubkey == nil {
			return nil, fmt.Errorf("blinder index set on an output that is not blinded")
		}
		idx := *a.BlinderIndex
		out.BlinderIndex = &idx
	}
	return out, nil
}

// Creator builds new PSETs.
//
// The Creator fixes the transaction-wide fields (tx version, fallback
// locktime) and seeds the PSET with its first inputs and outputs. More can
// be added by the Updater while the modifiable flags allow it.
type Creator struct {
	cfg config
}

// NewCreator creates a new Creator.
//
// Recognized options: WithTxVersion, WithFallbackLocktime and
// WithAddressDecoder.
func NewCreator(opts ...Option) *Creator {
	return &Creator{cfg: newConfig(opts)}
}

// NewPset returns a PSET v2 spending inputs to outputs.
//
// The PSET starts with inputs and outputs modifiable. Returns an error if
// an input or output is malformed or two inputs spend the same outpoint.
func (c *Creator) NewPset(inputs []InputArgs, outputs []OutputArgs) (*pset.Pset, error) {
	p, err := pset.New(c.cfg.txVersion, c.cfg.fallbackLocktime)
	if err != nil {
		return nil, err
	}

	for i, in := range inputs {
		if err := p.AddInput(in.toInput()); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	for i, args := range outputs {
		out, err := args.toOutput(&c.cfg)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		if err := p.AddOutput(out); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}

	if err := p.SanityCheck(); err != nil {
		return nil, err
	}
	log.Debugf("Created pset with %d inputs and %d outputs", len(inputs), len(outputs))
	return p, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

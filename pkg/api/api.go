// Package api provides the high-level public API for PSET operations.
//
// Every function takes and returns PSETs in their base64 encoding, so each
// step can run in a different process or on a different device:
//
//  1. ProposeTransaction - Creates a PSET with inputs, utxos and outputs
//  2. BlindTransaction - Blinds the outputs a party is responsible for
//  3. VerifyBeforeSigning - Validates a PSET before signing
//  4. GetSighash - Computes the signature hash of an input
//  5. AppendSignature - Signs an input
//  6. Combine - Merges PSETs carrying different signatures
//  7. FinalizeAndExtract - Finalizes inputs and extracts the transaction
//  8. ParsePset / SerializePset - Base64 encoding/decoding
package api

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/suffix-labs/elements-pset/pkg/confidential"
	"github.com/suffix-labs/elements-pset/pkg/crypto"
	"github.com/suffix-labs/elements-pset/pkg/network"
	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/suffix-labs/elements-pset/pkg/roles"
	"github.com/vulpemventures/go-elements/transaction"
)

// Input is an outpoint to spend together with the output it spends.
type Input struct {
	TxID        chainhash.Hash        // Previous txid
	OutputIndex uint32                // Previous output index
	Sequence    *uint32               // Sequence number (nil = 0xFFFFFFFF)
	Utxo        *transaction.TxOutput // Spent output, recorded as witness utxo
}

// TransactionProposal contains all inputs and outputs of a transaction.
type TransactionProposal struct {
	Inputs  []Input
	Outputs []roles.OutputArgs

	// Transaction metadata
	LockTime *uint32 // Fallback locktime when no input requires one
}

// ============================================================================
// API Function 1: ProposeTransaction
// ============================================================================

// ProposeTransaction creates a PSET from a transaction proposal.
//
// This function:
//  1. Creates a new PSET using the Creator role
//  2. Records the spent outputs using the Updater role
//
// The resulting PSET is ready for blinding (BlindTransaction) or, when no
// output carries a blinding key, for signing.
func ProposeTransaction(proposal *TransactionProposal) (string, error) {
	var opts []roles.Option
	if proposal.LockTime != nil {
		opts = append(opts, roles.WithFallbackLocktime(*proposal.LockTime))
	}

	inputs := make([]roles.InputArgs, 0, len(proposal.Inputs))
	for _, in := range proposal.Inputs {
		inputs = append(inputs, roles.InputArgs{
			Txid:     in.TxID,
			TxIndex:  in.OutputIndex,
			Sequence: in.Sequence,
		})
	}

	p, err := roles.NewCreator(opts...).NewPset(inputs, proposal.Outputs)
	if err != nil {
		return "", fmt.Errorf("failed to create PSET: %w", err)
	}

	updater, err := roles.NewUpdater(p, opts...)
	if err != nil {
		return "", err
	}
	for i, in := range proposal.Inputs {
		if in.Utxo == nil {
			return "", fmt.Errorf("input %d: missing utxo", i)
		}
		if err := updater.AddInWitnessUtxo(i, in.Utxo); err != nil {
			return "", fmt.Errorf("failed to add utxo of input %d: %w", i, err)
		}
	}

	return SerializePset(updater.Pset())
}

// ============================================================================
// API Function 2: BlindTransaction
// ============================================================================

// BlindTransaction blinds the outputs assigned to the caller's inputs.
//
// This function:
//  1. Unblinds the inputs at inIndexes with the caller's blinding keys
//  2. Blinds the caller's issuances marked as blinded
//  3. Blinds every output whose blinder index is one of inIndexes
//  4. Applies the result with the Blinder role
//
// Every party but the last passes last = false. The last party balances
// the transaction and must leave no output unblinded.
func BlindTransaction(psetB64 string, inIndexes []int, blindingKeys [][]byte,
	last bool) (string, error) {

	p, err := ParsePset(psetB64)
	if err != nil {
		return "", err
	}

	lib := confidential.NewLibsecp()
	generator := roles.NewZKPGeneratorFromBlindingKeys(lib, blindingKeys)
	owned, err := generator.UnblindInputs(p, inIndexes)
	if err != nil {
		return "", fmt.Errorf("failed to unblind inputs: %w", err)
	}

	allIssuances, err := generator.BlindIssuances(p, nil)
	if err != nil {
		return "", fmt.Errorf("failed to blind issuances: %w", err)
	}
	var issuances []roles.IssuanceBlindingArgs
	for _, a := range allIssuances {
		for _, o := range owned {
			if o.Index == a.Index {
				issuances = append(issuances, a)
			}
		}
	}

	outputs, err := generator.BlindOutputs(p, owned, nil)
	if err != nil {
		return "", fmt.Errorf("failed to blind outputs: %w", err)
	}

	blinder, err := roles.NewBlinder(p, owned, roles.NewZKPValidator(lib), generator)
	if err != nil {
		return "", err
	}
	args := roles.BlindingArgs{Issuances: issuances, Outputs: outputs}
	if last {
		err = blinder.BlindLast(args)
	} else {
		err = blinder.BlindNonLast(args)
	}
	if err != nil {
		return "", fmt.Errorf("blinding failed: %w", err)
	}

	return SerializePset(blinder.Pset())
}

// ============================================================================
// API Function 3: VerifyBeforeSigning
// ============================================================================

// VerifyBeforeSigning validates a PSET before signing.
//
// This function checks:
//   - the PSET is well-formed
//   - every input carries the output it spends
//   - every output that needs blinding is blinded, with valid proofs
//
// Wallets should call this before presenting the transaction to the
// user for signing.
func VerifyBeforeSigning(psetB64 string) error {
	p, err := ParsePset(psetB64)
	if err != nil {
		return err
	}
	if len(p.Inputs) == 0 {
		return errors.New("no inputs")
	}

	for i, in := range p.Inputs {
		if _, err := in.Utxo(); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}

	if !p.NeedsBlinding() {
		return nil
	}
	if !p.IsFullyBlinded() {
		return pset.ErrOutputNotFullyBlinded
	}
	validator := roles.NewZKPValidator(confidential.NewLibsecp())
	for i, out := range p.Outputs {
		if out.NeedsBlinding() && !validator.VerifyOutput(p, out) {
			return fmt.Errorf("output %d: blinding proofs do not verify", i)
		}
	}
	return nil
}

// ============================================================================
// API Function 4: GetSighash
// ============================================================================

// GetSighash computes the signature hash of an input.
//
// This is the 32-byte hash that should be signed with the private key.
// Taproot sighashes commit to the genesis hash of net.
func GetSighash(psetB64 string, inputIndex int, sighashType txscript.SigHashType,
	net *network.Params) (chainhash.Hash, error) {

	p, err := ParsePset(psetB64)
	if err != nil {
		return chainhash.Hash{}, err
	}
	genesis := net.GenesisBlockHash
	sighash, err := p.InputPreimage(inputIndex, sighashType, &genesis, nil)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to compute sighash: %w", err)
	}
	return sighash, nil
}

// ============================================================================
// API Function 5: AppendSignature
// ============================================================================

// AppendSignature signs an input with privateKey.
//
// Multiple parties can call this function independently to add their
// signatures. The Combiner can later merge them.
func AppendSignature(psetB64 string, inputIndex int, privateKey *crypto.PrivateKey,
	net *network.Params) (string, error) {

	p, err := ParsePset(psetB64)
	if err != nil {
		return "", err
	}

	signer, err := roles.NewSigner(p, roles.WithNetwork(net))
	if err != nil {
		return "", err
	}
	if err := signer.SignInput(inputIndex, privateKey); err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}

	return SerializePset(signer.Pset())
}

// ============================================================================
// API Function 6: Combine
// ============================================================================

// Combine merges multiple PSETs of the same transaction.
//
// This enables parallel signing workflows where multiple parties sign
// independently and then combine their signatures.
func Combine(psetB64List []string) (string, error) {
	if len(psetB64List) == 0 {
		return "", errors.New("no PSETs to combine")
	}

	psets := make([]*pset.Pset, len(psetB64List))
	for i, s := range psetB64List {
		p, err := ParsePset(s)
		if err != nil {
			return "", fmt.Errorf("PSET %d: %w", i, err)
		}
		psets[i] = p
	}

	combined, err := roles.NewCombiner(psets).Combine()
	if err != nil {
		return "", fmt.Errorf("combination failed: %w", err)
	}
	return SerializePset(combined)
}

// ============================================================================
// API Function 7: FinalizeAndExtract
// ============================================================================

// FinalizeAndExtract finalizes a signed PSET and extracts the transaction.
//
// The resulting hex encoded transaction is ready to broadcast.
func FinalizeAndExtract(psetB64 string) (string, error) {
	p, err := ParsePset(psetB64)
	if err != nil {
		return "", err
	}

	if err := roles.NewFinalizer(p).Finalize(); err != nil {
		return "", fmt.Errorf("finalization failed: %w", err)
	}

	tx, err := roles.NewExtractor(p).Extract()
	if err != nil {
		return "", fmt.Errorf("transaction extraction failed: %w", err)
	}
	return tx.ToHex()
}

// ============================================================================
// API Functions 8a & 8b: ParsePset / SerializePset
// ============================================================================

// ParsePset decodes a base64 PSET.
func ParsePset(psetB64 string) (*pset.Pset, error) {
	p, err := pset.NewFromBase64(psetB64)
	if err != nil {
		return nil, fmt.Errorf("invalid PSET: %w", err)
	}
	return p, nil
}

// SerializePset encodes a PSET as base64.
func SerializePset(p *pset.Pset) (string, error) {
	return p.ToBase64()
}

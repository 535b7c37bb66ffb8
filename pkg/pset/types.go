// Package pset implements the Partially Signed Elements Transaction (PSET)
// version 2 format.
//
// A PSET is a BIP174/BIP370 style key-value container extended with the
// confidential fields Elements needs: value and asset commitments, range
// and surjection proofs, issuances and peg-ins. Elements specific fields
// live under the proprietary key type 0xfc with the identifier "pset".
//
// Wire layout:
//
//	"pset" 0xff || global map || input map * N || output map * M
//
// Every map is a list of key-value pairs closed by a 0x00 separator:
//
//	varint keylen || keytype || keydata || varint valuelen || value
//
// References:
//   - BIP 174: https://github.com/bitcoin/bips/blob/master/bip-0174.mediawiki
//   - BIP 370: https://github.com/bitcoin/bips/blob/master/bip-0370.mediawiki
//   - Elements PSET: https://github.com/ElementsProject/elements/blob/master/doc/pset.mediawiki
package pset

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/vulpemventures/go-elements/transaction"
)

// Magic is the PSET header: "pset" followed by 0xff.
var Magic = []byte{0x70, 0x73, 0x65, 0x74, 0xff}

const (
	// Version is the only PSET version supported.
	Version = uint32(2)

	// MinTxVersion is the lowest transaction version a PSET v2 allows.
	MinTxVersion = uint32(2)

	// ProprietaryType is the key type of proprietary fields.
	ProprietaryType = byte(0xfc)

	// ProprietaryIdentifier prefixes every Elements proprietary key.
	ProprietaryIdentifier = "pset"

	separator = byte(0x00)

	// locktimeThreshold splits block heights from unix timestamps.
	locktimeThreshold = uint32(500_000_000)
)

// Global key types.
const (
	GlobalXpub             = byte(0x01)
	GlobalTxVersion        = byte(0x02)
	GlobalFallbackLocktime = byte(0x03)
	GlobalInputCount       = byte(0x04)
	GlobalOutputCount      = byte(0x05)
	GlobalTxModifiable     = byte(0x06)
	GlobalVersion          = byte(0xfb)

	// Proprietary subtypes.
	GlobalScalar               = byte(0x00)
	GlobalElementsTxModifiable = byte(0x01)
)

// Input key types.
const (
	InputNonWitnessUtxo         = byte(0x00)
	InputWitnessUtxo            = byte(0x01)
	InputPartialSig             = byte(0x02)
	InputSighashType            = byte(0x03)
	InputRedeemScript           = byte(0x04)
	InputWitnessScript          = byte(0x05)
	InputBip32Derivation        = byte(0x06)
	InputFinalScriptSig         = byte(0x07)
	InputFinalScriptWitness     = byte(0x08)
	InputRipemd160              = byte(0x0a)
	InputSha256                 = byte(0x0b)
	InputHash160                = byte(0x0c)
	InputHash256                = byte(0x0d)
	InputPreviousTxid           = byte(0x0e)
	InputPreviousTxIndex        = byte(0x0f)
	InputSequence               = byte(0x10)
	InputRequiredTimeLocktime   = byte(0x11)
	InputRequiredHeightLocktime = byte(0x12)
	InputTapKeySig              = byte(0x13)
	InputTapScriptSig           = byte(0x14)
	InputTapLeafScript          = byte(0x15)
	InputTapBip32Derivation     = byte(0x16)
	InputTapInternalKey         = byte(0x17)
	InputTapMerkleRoot          = byte(0x18)

	// Proprietary subtypes.
	InputIssuanceValue                   = byte(0x00)
	InputIssuanceValueCommitment         = byte(0x01)
	InputIssuanceValueRangeproof         = byte(0x02)
	InputIssuanceInflationKeysRangeproof = byte(0x03)
	InputPeginTx                         = byte(0x04)
	InputPeginTxoutProof                 = byte(0x05)
	InputPeginGenesisHash                = byte(0x06)
	InputPeginClaimScript                = byte(0x07)
	InputPeginValue                      = byte(0x08)
	InputPeginWitness                    = byte(0x09)
	InputIssuanceInflationKeys           = byte(0x0a)
	InputIssuanceInflationKeysCommitment = byte(0x0b)
	InputIssuanceBlindingNonce           = byte(0x0c)
	InputIssuanceAssetEntropy            = byte(0x0d)
	InputUtxoRangeProof                  = byte(0x0e)
	InputIssuanceBlindValueProof         = byte(0x0f)
	InputIssuanceBlindInflationKeysProof = byte(0x10)
	InputExplicitValue                   = byte(0x11)
	InputValueProof                      = byte(0x12)
	InputExplicitAsset                   = byte(0x13)
	InputAssetProof                      = byte(0x14)
	InputBlindedIssuance                 = byte(0x15)
)

// Output key types.
const (
	OutputRedeemScript       = byte(0x00)
	OutputWitnessScript      = byte(0x01)
	OutputBip32Derivation    = byte(0x02)
	OutputAmount             = byte(0x03)
	OutputScript             = byte(0x04)
	OutputTapInternalKey     = byte(0x05)
	OutputTapTree            = byte(0x06)
	OutputTapBip32Derivation = byte(0x07)

	// Proprietary subtypes.
	OutputValueCommitment      = byte(0x01)
	OutputAsset                = byte(0x02)
	OutputAssetCommitment      = byte(0x03)
	OutputValueRangeproof      = byte(0x04)
	OutputAssetSurjectionProof = byte(0x05)
	OutputBlindingPubkey       = byte(0x06)
	OutputEcdhPubkey           = byte(0x07)
	OutputBlinderIndex         = byte(0x08)
	OutputBlindValueProof      = byte(0x09)
	OutputBlindAssetProof      = byte(0x0a)
)

// BitSet is the TX_MODIFIABLE flag byte.
type BitSet uint8

// TX_MODIFIABLE bits.
const (
	InputsModifiable  BitSet = 1 << 0 // Inputs may be added or removed
	OutputsModifiable BitSet = 1 << 1 // Outputs may be added or removed
	HasSighashSingle  BitSet = 1 << 2 // Some input signed with SIGHASH_SINGLE
)

// Set returns b with flag set.
func (b BitSet) Set(flag BitSet) BitSet { return b | flag }

// Clear returns b with flag cleared.
func (b BitSet) Clear(flag BitSet) BitSet { return b &^ flag }

// Has reports whether flag is set.
func (b BitSet) Has(flag BitSet) bool { return b&flag == flag }

// Xpub is a global extended public key with its origin.
type Xpub struct {
	ExtendedKey          []byte   // 78 byte serialized xpub
	MasterKeyFingerprint uint32   // Fingerprint of the master key
	DerivationPath       []uint32 // Path from the master key
}

// Preimage is a hash lock preimage keyed by its hash.
type Preimage struct {
	Hash     []byte
	Preimage []byte
}

// TapLeaf is one leaf of an output taproot tree, in depth-first order.
type TapLeaf struct {
	Depth       uint8
	LeafVersion txscript.TapscriptLeafVersion
	Script      []byte
}

// Global contains transaction-wide fields.
type Global struct {
	Xpubs            []Xpub  // Extended public keys
	TxVersion        uint32  // Unsigned transaction version
	FallbackLocktime *uint32 // Locktime used when no input requires one
	InputCount       uint64  // Number of input maps
	OutputCount      uint64  // Number of output maps
	TxModifiable     BitSet  // Which parts of the tx may still change
	Version          uint32  // PSET version, always 2

	// Scalars are the offsets published by non-last blinders. A fully
	// blinded PSET carries none.
	Scalars [][]byte

	// ElementsTxModifiable is the proprietary modifiable flag. Bit 0 is set
	// while issuance blinding is still allowed.
	ElementsTxModifiable *uint8

	Unknowns []*psbt.Unknown
}

// Input is a PSET input map.
type Input struct {
	// Outpoint and sequence.
	PreviousTxid    []byte // 32 bytes, internal byte order
	PreviousTxIndex uint32
	Sequence        uint32

	// Spent output.
	NonWitnessUtxo *transaction.Transaction
	WitnessUtxo    *transaction.TxOutput

	// Signing data.
	PartialSigs     []*psbt.PartialSig
	SigHashType     *txscript.SigHashType
	RedeemScript    []byte
	WitnessScript   []byte
	Bip32Derivation []*psbt.Bip32Derivation

	// Finalized scripts.
	FinalScriptSig     []byte
	FinalScriptWitness []byte

	Ripemd160Preimages []Preimage
	Sha256Preimages    []Preimage
	Hash160Preimages   []Preimage
	Hash256Preimages   []Preimage

	// Zero means no requirement.
	RequiredTimeLocktime   uint32
	RequiredHeightLocktime uint32

	// Taproot.
	TapKeySig          []byte
	TapScriptSig       []*psbt.TaprootScriptSpendSig
	TapLeafScript      []*psbt.TaprootTapLeafScript
	TapBip32Derivation []*psbt.TaprootBip32Derivation
	TapInternalKey     []byte
	TapMerkleRoot      []byte

	// Issuance.
	IssuanceValue                   uint64
	IssuanceValueCommitment         []byte
	IssuanceValueRangeproof         []byte
	IssuanceInflationKeys           uint64
	IssuanceInflationKeysCommitment []byte
	IssuanceInflationKeysRangeproof []byte
	IssuanceBlindingNonce           []byte // 32 bytes, set on reissuance
	IssuanceAssetEntropy            []byte // Contract hash, or entropy on reissuance
	IssuanceBlindValueProof         []byte
	IssuanceBlindInflationKeysProof []byte
	BlindedIssuance                 *bool

	// Peg-in.
	PeginTx          *wire.MsgTx
	PeginTxoutProof  []byte
	PeginGenesisHash []byte
	PeginClaimScript []byte
	PeginValue       uint64
	PeginWitness     wire.TxWitness

	// Range proof of the spent output. Kept out of WitnessUtxo, which only
	// carries the non-witness part of the output.
	UtxoRangeProof []byte

	// Explicit value and asset of a confidential prevout, with proofs.
	ExplicitValue uint64
	ValueProof    []byte
	ExplicitAsset []byte
	AssetProof    []byte

	Unknowns []*psbt.Unknown
}

// Output is a PSET output map.
type Output struct {
	Amount uint64 // Explicit amount, known before blinding
	Script []byte // Empty for a fee output
	Asset  []byte // 32 byte asset id, internal byte order

	RedeemScript    []byte
	WitnessScript   []byte
	Bip32Derivation []*psbt.Bip32Derivation

	TapInternalKey     []byte
	TapTree            []TapLeaf
	TapBip32Derivation []*psbt.TaprootBip32Derivation

	// Blinding.
	BlindingPubkey       []byte  // Receiver's blinding key, marks the output for blinding
	BlinderIndex         *uint32 // Input whose owner blinds this output
	ValueCommitment      []byte
	AssetCommitment      []byte
	ValueRangeproof      []byte
	AssetSurjectionProof []byte
	EcdhPubkey           []byte // Ephemeral key, becomes the tx output nonce
	BlindValueProof      []byte
	BlindAssetProof      []byte

	Unknowns []*psbt.Unknown
}

package pset

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/taproot"
	"github.com/vulpemventures/go-elements/transaction"
)

// Prefixes of the confidential field encodings.
const (
	explicitPrefix = 0x01

	valueCommitmentPrefixEven = 0x08
	valueCommitmentPrefixOdd  = 0x09
	assetCommitmentPrefixEven = 0x0a
	assetCommitmentPrefixOdd  = 0x0b

	explicitValueLen = 9
	commitmentLen    = 33

	// Reissuance token flags of go-elements: the token id depends on
	// whether the initial issuance was blinded.
	explicitTokenFlag     = 0
	confidentialTokenFlag = 1
)

var (
	// ErrInvalidValue is returned for a malformed confidential value.
	ErrInvalidValue = errors.New("invalid confidential value")

	// ErrInvalidAsset is returned for a malformed confidential asset.
	ErrInvalidAsset = errors.New("invalid confidential asset")
)

// ExplicitValue encodes an unblinded amount: 0x01 || u64be.
func ExplicitValue(value uint64) []byte {
	b, _ := elementsutil.ValueToBytes(value)
	return b
}

// ExplicitAsset encodes an unblinded asset: 0x01 || asset.
func ExplicitAsset(asset []byte) ([]byte, error) {
	if len(asset) != 32 {
		return nil, fmt.Errorf("%w: asset must be 32 bytes", ErrInvalidAsset)
	}
	return append([]byte{explicitPrefix}, asset...), nil
}

// ValueFromBytes decodes an explicit confidential value.
func ValueFromBytes(b []byte) (uint64, error) {
	if len(b) != explicitValueLen || b[0] != explicitPrefix {
		return 0, fmt.Errorf("%w: not an explicit value", ErrInvalidValue)
	}
	return elementsutil.ValueFromBytes(b)
}

// AssetFromBytes returns the 32 byte asset of an explicit confidential asset.
func AssetFromBytes(b []byte) ([]byte, error) {
	if len(b) != commitmentLen || b[0] != explicitPrefix {
		return nil, fmt.Errorf("%w: not an explicit asset", ErrInvalidAsset)
	}
	return cloneBytes(b[1:]), nil
}

// IsConfidentialValue reports whether b is a value commitment.
func IsConfidentialValue(b []byte) bool {
	return len(b) == commitmentLen &&
		(b[0] == valueCommitmentPrefixEven || b[0] == valueCommitmentPrefixOdd)
}

// IsConfidentialAsset reports whether b is an asset commitment.
func IsConfidentialAsset(b []byte) bool {
	return len(b) == commitmentLen &&
		(b[0] == assetCommitmentPrefixEven || b[0] == assetCommitmentPrefixOdd)
}

// ComputeEntropy derives the asset entropy of a new issuance spending
// txid:index. txid is in internal byte order; a nil contract hash is zero.
func ComputeEntropy(txid []byte, index uint32, contractHash []byte) ([]byte, error) {
	if len(txid) != 32 {
		return nil, fmt.Errorf("txid must be 32 bytes, got %d", len(txid))
	}
	if contractHash == nil {
		contractHash = make([]byte, 32)
	}
	if len(contractHash) != 32 {
		return nil, fmt.Errorf("contract hash must be 32 bytes, got %d", len(contractHash))
	}
	issuance := transaction.NewTxIssuanceFromEntropy(nil)
	issuance.ContractHash = cloneBytes(contractHash)
	if err := issuance.GenerateEntropy(cloneBytes(txid), index); err != nil {
		return nil, err
	}
	return issuance.TxIssuance.AssetEntropy, nil
}

// ComputeAsset derives the asset id from the issuance entropy.
func ComputeAsset(entropy []byte) ([]byte, error) {
	if len(entropy) != 32 {
		return nil, fmt.Errorf("entropy must be 32 bytes, got %d", len(entropy))
	}
	return transaction.NewTxIssuanceFromEntropy(cloneBytes(entropy)).GenerateAsset()
}

// ComputeReissuanceToken derives the reissuance token id from the issuance
// entropy. confidential is whether the initial issuance was blinded.
func ComputeReissuanceToken(entropy []byte, confidential bool) ([]byte, error) {
	if len(entropy) != 32 {
		return nil, fmt.Errorf("entropy must be 32 bytes, got %d", len(entropy))
	}
	flag := uint(explicitTokenFlag)
	if confidential {
		flag = confidentialTokenFlag
	}
	return transaction.NewTxIssuanceFromEntropy(cloneBytes(entropy)).GenerateReissuanceToken(flag)
}

// TapLeafHash is the Elements tapleaf hash of a base version leaf.
func TapLeafHash(script []byte) chainhash.Hash {
	return taproot.NewBaseTapElementsLeaf(script).TapHash()
}

// serializeTxOutput encodes the non-witness part of an output, the way
// elementsd stores a witness utxo: asset || value || nonce || script.
func serializeTxOutput(out *transaction.TxOutput) ([]byte, error) {
	var buf bytes.Buffer
	for _, b := range [][]byte{out.Asset, out.Value, nonceOrNull(out.Nonce)} {
		buf.Write(b)
	}
	if err := wire.WriteVarBytes(&buf, 0, out.Script); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeTxOutput decodes an output encoded by serializeTxOutput.
func deserializeTxOutput(b []byte) (*transaction.TxOutput, error) {
	r := bytes.NewReader(b)
	out := &transaction.TxOutput{}
	var err error
	if out.Asset, err = readPrefixed(r, assetSize); err != nil {
		return nil, fmt.Errorf("asset: %w", err)
	}
	if out.Value, err = readPrefixed(r, valueSize); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if out.Nonce, err = readPrefixed(r, nonceSize); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	if out.Script, err = wire.ReadVarBytes(r, 0, maxValueLen, "script"); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after output", r.Len())
	}
	return out, nil
}

func nonceOrNull(nonce []byte) []byte {
	if len(nonce) == 0 {
		return []byte{0x00}
	}
	return nonce
}

func readPrefixed(r io.Reader, sizeFor func(byte) (int, error)) ([]byte, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size, err := sizeFor(prefix[0])
	if err != nil {
		return nil, err
	}
	b := make([]byte, size)
	b[0] = prefix[0]
	if _, err := io.ReadFull(r, b[1:]); err != nil {
		return nil, err
	}
	return b, nil
}

func valueSize(p byte) (int, error) {
	switch p {
	case 0x00:
		return 1, nil
	case explicitPrefix:
		return explicitValueLen, nil
	case valueCommitmentPrefixEven, valueCommitmentPrefixOdd:
		return commitmentLen, nil
	}
	return 0, fmt.Errorf("%w: prefix 0x%02x", ErrInvalidValue, p)
}

func assetSize(p byte) (int, error) {
	switch p {
	case 0x00:
		return 1, nil
	case explicitPrefix, assetCommitmentPrefixEven, assetCommitmentPrefixOdd:
		return commitmentLen, nil
	}
	return 0, fmt.Errorf("%w: prefix 0x%02x", ErrInvalidAsset, p)
}

func nonceSize(p byte) (int, error) {
	switch p {
	case 0x00:
		return 1, nil
	case 0x01, 0x02, 0x03:
		return commitmentLen, nil
	}
	return 0, fmt.Errorf("invalid nonce prefix 0x%02x", p)
}

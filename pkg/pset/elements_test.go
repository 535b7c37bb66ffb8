package pset

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulpemventures/go-elements/transaction"
)

// A regtest transaction paying two p2pkh outputs and a fee in the policy
// asset, as produced by elementsd.
const (
	regtestTxHex = "02000000000180e510ab7856a0a5cdedfcbb4cec8695349b31854102aa92994f263e34f0649d" +
		"0000000000ffffffff030125b251070e29ca19043cf33ccd7324e2ddab03ecc4ae0b5e77c4fc0e5cf6c9" +
		"5a010000000002faf080001976a91439397080b51ef22c59bd7469afacffbeec0da12e88ac0125b25107" +
		"0e29ca19043cf33ccd7324e2ddab03ecc4ae0b5e77c4fc0e5cf6c95a010000000002faecfc001976a914" +
		"659bedb5d3d3c7ab12d7f85323c3a1b6c060efbe88ac0125b251070e29ca19043cf33ccd7324e2ddab03" +
		"ecc4ae0b5e77c4fc0e5cf6c95a0100000000000001f4000000000000"
	regtestTxID        = "7314ab499a41e6ca5ba66cc3aeb49c09fd151b1120c1974e6f5b72fb4c030e60"
	regtestPolicyAsset = "5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225"
)

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestWitnessUtxoKnownAnswer(t *testing.T) {
	tx, err := transaction.NewTxFromHex(regtestTxHex)
	require.NoError(t, err)
	require.Equal(t, regtestTxID, tx.TxHash().String())
	require.Len(t, tx.Outputs, 3)

	tests := []struct {
		encoded string
		value   uint64
	}{
		{
			encoded: "0125b251070e29ca19043cf33ccd7324e2ddab03ecc4ae0b5e77c4fc0e5cf6c95a010000000002faf080" +
				"001976a91439397080b51ef22c59bd7469afacffbeec0da12e88ac",
			value: 50_000_000,
		},
		{
			encoded: "0125b251070e29ca19043cf33ccd7324e2ddab03ecc4ae0b5e77c4fc0e5cf6c95a010000000002faecfc" +
				"001976a914659bedb5d3d3c7ab12d7f85323c3a1b6c060efbe88ac",
			value: 49_999_100,
		},
		{
			encoded: "0125b251070e29ca19043cf33ccd7324e2ddab03ecc4ae0b5e77c4fc0e5cf6c95a0100000000000001f40000",
			value:   500,
		},
	}
	raw, err := tx.Serialize()
	require.NoError(t, err)

	for i, tc := range tests {
		out := tx.Outputs[i]
		want := mustDecodeHex(t, tc.encoded)

		got, err := serializeTxOutput(out)
		require.NoError(t, err)
		assert.Equal(t, want, got, "output %d", i)
		assert.True(t, bytes.Contains(raw, got), "output %d must be laid out as in the transaction", i)

		decoded, err := deserializeTxOutput(want)
		require.NoError(t, err)
		assert.Equal(t, out.Asset, decoded.Asset)
		assert.Equal(t, out.Value, decoded.Value)
		assert.Equal(t, out.Script, decoded.Script)
		assert.False(t, decoded.IsConfidential())

		value, err := ValueFromBytes(decoded.Value)
		require.NoError(t, err)
		assert.Equal(t, tc.value, value)
		assert.Equal(t, ExplicitValue(tc.value), out.Value)

		asset, err := AssetFromBytes(decoded.Asset)
		require.NoError(t, err)
		h, err := chainhash.NewHash(asset)
		require.NoError(t, err)
		assert.Equal(t, regtestPolicyAsset, h.String())
	}

	reencoded, err := tx.ToHex()
	require.NoError(t, err)
	assert.Equal(t, regtestTxHex, reencoded)
}

func TestWitnessUtxoConfidential(t *testing.T) {
	out := &transaction.TxOutput{
		Asset:  fakeCommitment(0x0a),
		Value:  fakeCommitment(0x09),
		Nonce:  fakeCommitment(0x02),
		Script: []byte{0x51},
	}
	encoded, err := serializeTxOutput(out)
	require.NoError(t, err)
	require.Len(t, encoded, 3*33+2)

	decoded, err := deserializeTxOutput(encoded)
	require.NoError(t, err)
	assert.Equal(t, out.Asset, decoded.Asset)
	assert.Equal(t, out.Value, decoded.Value)
	assert.Equal(t, out.Nonce, decoded.Nonce)
	assert.True(t, decoded.IsConfidential())
	assert.True(t, IsConfidentialAsset(decoded.Asset))
	assert.True(t, IsConfidentialValue(decoded.Value))
}

func TestWitnessUtxoRejectsMalformed(t *testing.T) {
	valid := mustDecodeHex(t, "0125b251070e29ca19043cf33ccd7324e2ddab03ecc4ae0b5e77c4fc0e5cf6c95a"+
		"0100000000000001f40000")

	tests := []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"trailing byte", append(append([]byte(nil), valid...), 0x00)},
		{"truncated", valid[:len(valid)-2]},
		{"bad asset prefix", append([]byte{0x05}, valid[1:]...)},
		{"bad value prefix", func() []byte {
			b := append([]byte(nil), valid...)
			b[33] = 0x07
			return b
		}()},
		{"bad nonce prefix", func() []byte {
			b := append([]byte(nil), valid...)
			b[42] = 0x04
			return b
		}()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := deserializeTxOutput(tc.b)
			require.Error(t, err)
		})
	}
}

func TestExplicitEncodings(t *testing.T) {
	_, err := ValueFromBytes(fakeCommitment(0x08))
	require.ErrorIs(t, err, ErrInvalidValue)
	_, err = AssetFromBytes(fakeCommitment(0x0a))
	require.ErrorIs(t, err, ErrInvalidAsset)
	_, err = ExplicitAsset(fill(0xaa, 31))
	require.ErrorIs(t, err, ErrInvalidAsset)

	assert.False(t, IsConfidentialValue(ExplicitValue(1)))
	assert.False(t, IsConfidentialAsset(fakeCommitment(0x08)))
}

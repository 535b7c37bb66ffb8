package pset

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulpemventures/go-elements/transaction"
)

func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func testKey(b byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(fill(b, 32))
	return priv
}

func p2wpkh(t *testing.T, pub *btcec.PublicKey) []byte {
	t.Helper()
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pub.SerializeCompressed())).
		Script()
	require.NoError(t, err)
	return script
}

func witnessUtxo(t *testing.T, value uint64, asset, script []byte) *transaction.TxOutput {
	t.Helper()
	a, err := ExplicitAsset(asset)
	require.NoError(t, err)
	return transaction.NewTxOutput(a, ExplicitValue(value), script)
}

func newTestPset(t *testing.T) *Pset {
	t.Helper()
	p, err := New(2, nil)
	require.NoError(t, err)
	return p
}

func fakeCommitment(prefix byte) []byte {
	return append([]byte{prefix}, fill(0x5a, 32)...)
}

func blindedOutput(asset []byte) *Output {
	out := NewOutput(1000, asset, []byte{0x51})
	out.BlindingPubkey = testKey(0x09).PubKey().SerializeCompressed()
	out.ValueCommitment = fakeCommitment(0x08)
	out.AssetCommitment = fakeCommitment(0x0a)
	out.ValueRangeproof = fill(0x01, 40)
	out.AssetSurjectionProof = fill(0x02, 67)
	out.BlindValueProof = fill(0x03, 74)
	out.BlindAssetProof = fill(0x04, 67)
	out.EcdhPubkey = testKey(0x0a).PubKey().SerializeCompressed()
	return out
}

// richPset sets at least one field of every codec shape.
func richPset(t *testing.T) *Pset {
	t.Helper()
	fallback := uint32(77)
	p, err := New(2, &fallback)
	require.NoError(t, err)

	asset := fill(0xaa, 32)
	key := testKey(0x01)
	pub := key.PubKey()

	p.Global.Xpubs = []Xpub{{
		ExtendedKey:          fill(0x04, 78),
		MasterKeyFingerprint: 0xdeadbeef,
		DerivationPath:       []uint32{0x80000054, 1},
	}}
	modifiable := uint8(1)
	p.Global.ElementsTxModifiable = &modifiable
	p.Global.Scalars = [][]byte{fill(0x07, 32)}
	p.Global.Unknowns = []*psbt.Unknown{
		{Key: []byte{0xf0, 0x01}, Value: []byte{0x02}},
		{Key: append([]byte{0xfc, 0x03}, []byte("foo\x01")...), Value: []byte{0x03}},
	}

	in := NewInput(fill(0x11, 32), 1)
	in.Sequence = 0xfffffffd
	in.WitnessUtxo = witnessUtxo(t, 5000, asset, p2wpkh(t, pub))
	sighash := txscript.SigHashAll
	in.SigHashType = &sighash
	in.PartialSigs = []*psbt.PartialSig{{PubKey: pub.SerializeCompressed(), Signature: fill(0x30, 71)}}
	in.Bip32Derivation = []*psbt.Bip32Derivation{{
		PubKey:               pub.SerializeCompressed(),
		MasterKeyFingerprint: 0x01020304,
		Bip32Path:            []uint32{0x80000054, 0, 7},
	}}
	in.WitnessScript = []byte{0x51}
	preimage := []byte("open sesame")
	hash := sha256.Sum256(preimage)
	in.Sha256Preimages = []Preimage{{Hash: hash[:], Preimage: preimage}}
	in.Hash160Preimages = []Preimage{{Hash: btcutil.Hash160(preimage), Preimage: preimage}}
	in.RequiredHeightLocktime = 100

	sig, err := schnorr.Sign(key, fill(0x42, 32))
	require.NoError(t, err)
	xonly := schnorr.SerializePubKey(pub)
	in.TapKeySig = sig.Serialize()
	in.TapScriptSig = []*psbt.TaprootScriptSpendSig{{
		XOnlyPubKey: xonly,
		LeafHash:    fill(0x43, 32),
		Signature:   sig.Serialize(),
		SigHash:     txscript.SigHashDefault,
	}}
	in.TapLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: fill(0xc4, 33),
		Script:       []byte{0x20, 0x51},
		LeafVersion:  txscript.BaseLeafVersion,
	}}
	in.TapBip32Derivation = []*psbt.TaprootBip32Derivation{{
		XOnlyPubKey:          xonly,
		LeafHashes:           [][]byte{fill(0x43, 32)},
		MasterKeyFingerprint: 0x0a0b0c0d,
		Bip32Path:            []uint32{86 | 0x80000000, 1},
	}}
	in.TapInternalKey = xonly
	in.TapMerkleRoot = fill(0x44, 32)

	in.IssuanceValue = 21_000
	in.IssuanceInflationKeys = 1
	in.IssuanceAssetEntropy = fill(0x45, 32)
	blinded := false
	in.BlindedIssuance = &blinded
	in.UtxoRangeProof = fill(0x46, 20)
	in.ExplicitValue = 5000
	in.ValueProof = fill(0x47, 74)
	in.ExplicitAsset = asset
	in.AssetProof = fill(0x48, 67)
	in.PeginClaimScript = []byte{0x00, 0x14, 0x01}
	in.PeginGenesisHash = fill(0x49, 32)
	in.PeginValue = 1_000_000
	in.PeginWitness = wire.TxWitness{fill(0x01, 8), fill(0x02, 3)}
	in.Unknowns = []*psbt.Unknown{{Key: []byte{0xfc, 0x04, 'p', 's', 'e', 't', 0x7f}, Value: []byte{0x01}}}
	require.NoError(t, p.AddInput(in))

	out := NewOutput(4000, asset, p2wpkh(t, testKey(0x02).PubKey()))
	out.BlindingPubkey = testKey(0x03).PubKey().SerializeCompressed()
	blinder := uint32(0)
	out.BlinderIndex = &blinder
	out.Bip32Derivation = []*psbt.Bip32Derivation{{
		PubKey:               testKey(0x02).PubKey().SerializeCompressed(),
		MasterKeyFingerprint: 0x01020304,
		Bip32Path:            []uint32{1, 2},
	}}
	out.TapTree = []TapLeaf{
		{Depth: 1, LeafVersion: txscript.BaseLeafVersion, Script: []byte{0x51}},
		{Depth: 1, LeafVersion: txscript.BaseLeafVersion, Script: []byte{0x52}},
	}
	require.NoError(t, p.AddOutput(out))
	require.NoError(t, p.AddOutput(blindedOutput(asset)))
	require.NoError(t, p.AddOutput(NewOutput(1000, asset, []byte{})))

	require.NoError(t, p.SanityCheck())
	return p
}

func TestRoundTrip(t *testing.T) {
	p := richPset(t)

	raw, err := p.ToBuffer()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, Magic))

	decoded, err := NewFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, p, decoded)

	again, err := decoded.ToBuffer()
	require.NoError(t, err)
	require.Equal(t, raw, again)

	b64, err := p.ToBase64()
	require.NoError(t, err)
	fromB64, err := NewFromBase64(b64)
	require.NoError(t, err)
	require.Equal(t, p, fromB64)

	hexStr, err := p.ToHex()
	require.NoError(t, err)
	fromHex, err := NewFromHex(hexStr)
	require.NoError(t, err)
	require.Equal(t, p, fromHex)
}

func TestRoundTripPeginTx(t *testing.T) {
	p := newTestPset(t)
	peg := wire.NewMsgTx(2)
	peg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x01}, 0), []byte{0x51}, nil))
	peg.AddTxOut(wire.NewTxOut(1_000_000, []byte{0x00, 0x14, 0x02}))

	in := NewInput(fill(0x21, 32), 0)
	in.PeginTx = peg
	require.NoError(t, p.AddInput(in))

	raw, err := p.ToBuffer()
	require.NoError(t, err)
	decoded, err := NewFromBytes(raw)
	require.NoError(t, err)

	require.NotNil(t, decoded.Inputs[0].PeginTx)
	require.Equal(t, peg.TxHash(), decoded.Inputs[0].PeginTx.TxHash())
	require.True(t, decoded.Inputs[0].IsPegin())

	tx, err := decoded.UnsignedTx()
	require.NoError(t, err)
	require.True(t, tx.Inputs[0].IsPegin)
}

func kv(key, value []byte) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarBytes(&buf, 0, key)
	_ = wire.WriteVarBytes(&buf, 0, value)
	return buf.Bytes()
}

func le32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func rawPset(maps ...[][]byte) []byte {
	buf := bytes.NewBuffer(append([]byte{}, Magic...))
	for _, m := range maps {
		for _, pair := range m {
			buf.Write(pair)
		}
		buf.WriteByte(separator)
	}
	return buf.Bytes()
}

func TestParseErrors(t *testing.T) {
	globalWith := func(extra ...[]byte) [][]byte {
		return append([][]byte{
			kv([]byte{GlobalTxVersion}, le32(2)),
			kv([]byte{GlobalInputCount}, []byte{0x00}),
			kv([]byte{GlobalOutputCount}, []byte{0x00}),
			kv([]byte{GlobalVersion}, le32(2)),
		}, extra...)
	}

	_, err := NewFromBytes(rawPset(globalWith()))
	require.NoError(t, err)

	_, err = NewFromBytes(append([]byte("psbt\xff"), 0x00))
	require.ErrorIs(t, err, ErrInvalidMagic)

	_, err = NewFromBytes(rawPset([][]byte{
		kv([]byte{GlobalTxVersion}, le32(2)),
		kv([]byte{GlobalVersion}, le32(0)),
	}))
	require.ErrorIs(t, err, ErrInvalidPsetVersion)

	_, err = NewFromBytes(rawPset([][]byte{
		kv([]byte{GlobalTxVersion}, le32(1)),
		kv([]byte{GlobalVersion}, le32(2)),
	}))
	require.ErrorIs(t, err, ErrInvalidTxVersion)

	_, err = NewFromBytes(rawPset(globalWith(kv([]byte{GlobalTxVersion}, le32(2)))))
	require.ErrorIs(t, err, ErrDuplicateKey)

	// An input whose previous txid is one byte short.
	_, err = NewFromBytes(rawPset(
		[][]byte{
			kv([]byte{GlobalTxVersion}, le32(2)),
			kv([]byte{GlobalInputCount}, []byte{0x01}),
			kv([]byte{GlobalOutputCount}, []byte{0x00}),
			kv([]byte{GlobalVersion}, le32(2)),
		},
		[][]byte{
			kv([]byte{InputPreviousTxid}, fill(0x01, 31)),
			kv([]byte{InputPreviousTxIndex}, le32(0)),
			kv([]byte{InputSequence}, le32(0xffffffff)),
		},
	))
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "previous_txid", fieldErr.Field)
	assert.Equal(t, scopeInput, fieldErr.Scope)

	// Truncated: the input map is announced but missing.
	_, err = NewFromBytes(rawPset([][]byte{
		kv([]byte{GlobalTxVersion}, le32(2)),
		kv([]byte{GlobalInputCount}, []byte{0x01}),
		kv([]byte{GlobalOutputCount}, []byte{0x00}),
		kv([]byte{GlobalVersion}, le32(2)),
	}))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)

	_, err = NewFromBytes(append(rawPset(globalWith()), 0x00))
	require.Error(t, err, "trailing bytes")
}

func TestUnknownProprietaryPassthrough(t *testing.T) {
	foreign := kv(append([]byte{0xfc, 0x03}, []byte("abc\x00")...), []byte{0x09})
	raw := rawPset([][]byte{
		kv([]byte{GlobalTxVersion}, le32(2)),
		kv([]byte{GlobalInputCount}, []byte{0x00}),
		kv([]byte{GlobalOutputCount}, []byte{0x00}),
		kv([]byte{GlobalTxModifiable}, []byte{0x03}),
		foreign,
		kv([]byte{GlobalVersion}, le32(2)),
	})
	p, err := NewFromBytes(raw)
	require.NoError(t, err)
	require.Len(t, p.Global.Unknowns, 1)
	assert.Equal(t, []byte{0x09}, p.Global.Unknowns[0].Value)

	out, err := p.ToBuffer()
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, foreign))
}

func TestProprietaryKeySubtype(t *testing.T) {
	tests := []struct {
		subtype byte
		encoded []byte
	}{
		{0x00, []byte{0x00}},
		{0x15, []byte{0x15}},
		{0xfc, []byte{0xfc}},
		{0xfd, []byte{0xfd, 0xfd, 0x00}},
		{0xff, []byte{0xfd, 0xff, 0x00}},
	}
	for _, tc := range tests {
		key := serializeKey(prop(tc.subtype), []byte{0xaa, 0xbb})
		want := append([]byte{ProprietaryType, 0x04}, []byte(ProprietaryIdentifier)...)
		want = append(append(want, tc.encoded...), 0xaa, 0xbb)
		require.Equal(t, want, key, "subtype 0x%02x", tc.subtype)

		k, keyData, ok := splitKey(key)
		require.True(t, ok)
		assert.Equal(t, prop(tc.subtype), k)
		assert.Equal(t, []byte{0xaa, 0xbb}, keyData)
	}
}

func TestSanityCheck(t *testing.T) {
	asset := fill(0xaa, 32)
	tests := []struct {
		name  string
		apply func(p *Pset)
		want  error
	}{
		{
			name: "issuance commitment without range proof",
			apply: func(p *Pset) {
				p.Inputs[0].IssuanceValueCommitment = fakeCommitment(0x08)
			},
		},
		{
			name: "witness script without witness utxo",
			apply: func(p *Pset) {
				p.Inputs[0].WitnessUtxo = nil
				p.Inputs[0].WitnessScript = []byte{0x51}
			},
		},
		{
			name: "partially blinded output",
			apply: func(p *Pset) {
				p.Outputs[0].BlindingPubkey = testKey(0x05).PubKey().SerializeCompressed()
				p.Outputs[0].ValueCommitment = fakeCommitment(0x09)
			},
		},
		{
			name: "fully blinded output keeps blinder index",
			apply: func(p *Pset) {
				idx := uint32(0)
				p.Outputs[1].BlinderIndex = &idx
			},
		},
		{
			name: "blinder index out of range",
			apply: func(p *Pset) {
				idx := uint32(5)
				p.Outputs[0].BlindingPubkey = testKey(0x05).PubKey().SerializeCompressed()
				p.Outputs[0].BlinderIndex = &idx
			},
		},
		{
			name: "residual scalars on fully blinded pset",
			apply: func(p *Pset) {
				p.Global.Scalars = [][]byte{fill(0x01, 32)}
			},
			want: ErrResidualScalars,
		},
		{
			name: "wrong pset version",
			apply: func(p *Pset) {
				p.Global.Version = 0
			},
			want: ErrInvalidPsetVersion,
		},
		{
			name: "duplicate outpoint",
			apply: func(p *Pset) {
				p.Inputs = append(p.Inputs, NewInput(fill(0x11, 32), 0))
				p.Global.InputCount++
			},
			want: ErrDuplicateInput,
		},
		{
			name: "count mismatch",
			apply: func(p *Pset) {
				p.Global.OutputCount++
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPset(t)
			in := NewInput(fill(0x11, 32), 0)
			in.WitnessUtxo = witnessUtxo(t, 2000, asset, []byte{0x51})
			require.NoError(t, p.AddInput(in))
			require.NoError(t, p.AddOutput(NewOutput(1000, asset, []byte{0x51})))
			require.NoError(t, p.AddOutput(blindedOutput(asset)))
			require.NoError(t, p.SanityCheck())

			tc.apply(p)
			err := p.SanityCheck()
			require.Error(t, err)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestAddInputAndOutput(t *testing.T) {
	asset := fill(0xaa, 32)
	p := newTestPset(t)
	require.NoError(t, p.AddInput(NewInput(fill(0x11, 32), 0)))
	require.NoError(t, p.AddInput(NewInput(fill(0x11, 32), 1)))

	err := p.AddInput(NewInput(fill(0x11, 32), 0))
	require.ErrorIs(t, err, ErrDuplicateInput)
	require.Len(t, p.Inputs, 2)
	require.Equal(t, uint64(2), p.Global.InputCount)

	require.NoError(t, p.AddOutput(NewOutput(1, asset, []byte{0x51})))

	p.Global.TxModifiable = p.Global.TxModifiable.Clear(OutputsModifiable)
	require.False(t, p.OutputsModifiable())
	require.ErrorIs(t, p.AddOutput(NewOutput(1, asset, []byte{0x51})), ErrOutputsNotModifiable)
	require.Len(t, p.Outputs, 1)

	p.Global.TxModifiable = p.Global.TxModifiable.Clear(InputsModifiable)
	require.ErrorIs(t, p.AddInput(NewInput(fill(0x12, 32), 0)), ErrInputsNotModifiable)

	require.Error(t, p.AddOutput(NewOutput(1, asset[:31], nil)))
}

func TestLocktime(t *testing.T) {
	fallback := uint32(42)
	tests := []struct {
		name     string
		fallback *uint32
		heights  []uint32
		times    []uint32
		want     uint32
	}{
		{name: "nothing set", want: 0},
		{name: "fallback only", fallback: &fallback, want: 42},
		{name: "max time", fallback: &fallback, times: []uint32{500_000_100, 500_000_200}, want: 500_000_200},
		{name: "height wins", times: []uint32{500_000_100}, heights: []uint32{0, 700_000}, want: 700_000},
		{name: "max height", heights: []uint32{10, 20}, want: 20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(2, tc.fallback)
			require.NoError(t, err)
			n := max(len(tc.heights), len(tc.times))
			for i := 0; i < n; i++ {
				in := NewInput(fill(0x30, 32), uint32(i))
				if i < len(tc.heights) {
					in.RequiredHeightLocktime = tc.heights[i]
				}
				if i < len(tc.times) {
					in.RequiredTimeLocktime = tc.times[i]
				}
				require.NoError(t, p.AddInput(in))
			}
			require.Equal(t, tc.want, p.Locktime())
		})
	}
}

func TestLocktimeConflictWithSignatures(t *testing.T) {
	p := newTestPset(t)
	signed := NewInput(fill(0x01, 32), 0)
	signed.RequiredHeightLocktime = 100
	signed.PartialSigs = []*psbt.PartialSig{{
		PubKey:    testKey(0x01).PubKey().SerializeCompressed(),
		Signature: fill(0x30, 70),
	}}
	require.NoError(t, p.AddInput(signed))

	// Lower requirement: the locktime stays 100.
	lower := NewInput(fill(0x02, 32), 0)
	lower.RequiredHeightLocktime = 50
	require.NoError(t, p.AddInput(lower))

	higher := NewInput(fill(0x03, 32), 0)
	higher.RequiredHeightLocktime = 200
	require.ErrorIs(t, p.AddInput(higher), ErrLocktimeConflict)
	require.Len(t, p.Inputs, 2)
	require.Equal(t, uint32(100), p.Locktime())
}

func TestUpdateIsAtomic(t *testing.T) {
	p := richPset(t)
	before, err := p.ToBuffer()
	require.NoError(t, err)

	boom := errors.New("boom")
	err = p.Update(func(c *Pset) error {
		c.Outputs[0].Amount = 1
		c.Global.TxVersion = 9
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = p.Update(func(c *Pset) error {
		c.Outputs[0].ValueCommitment = fakeCommitment(0x08)
		return nil
	})
	require.Error(t, err)

	after, err := p.ToBuffer()
	require.NoError(t, err)
	require.Equal(t, before, after)

	require.NoError(t, p.Update(func(c *Pset) error {
		c.Outputs[0].Amount = 3999
		return nil
	}))
	require.Equal(t, uint64(3999), p.Outputs[0].Amount)
}

func TestBlindingState(t *testing.T) {
	asset := fill(0xaa, 32)
	p := newTestPset(t)
	require.NoError(t, p.AddInput(NewInput(fill(0x01, 32), 0)))
	require.NoError(t, p.AddOutput(NewOutput(10, asset, []byte{0x51})))
	require.False(t, p.NeedsBlinding())
	require.False(t, p.IsFullyBlinded())

	out := NewOutput(10, asset, []byte{0x52})
	out.BlindingPubkey = testKey(0x05).PubKey().SerializeCompressed()
	require.NoError(t, p.AddOutput(out))
	require.True(t, p.NeedsBlinding())
	require.False(t, p.IsFullyBlinded())

	require.NoError(t, p.Update(func(c *Pset) error {
		c.Outputs[1] = blindedOutput(asset)
		return nil
	}))
	require.True(t, p.IsFullyBlinded())
	require.False(t, p.IsComplete())

	p.Inputs[0].FinalScriptSig = []byte{0x51}
	require.True(t, p.IsComplete())
}

func TestUnsignedTx(t *testing.T) {
	asset := fill(0xaa, 32)
	p := richPset(t)

	tx, err := p.UnsignedTx()
	require.NoError(t, err)
	require.Equal(t, int32(2), tx.Version)
	require.Equal(t, uint32(100), tx.Locktime, "height locktime beats fallback")
	require.Len(t, tx.Inputs, 1)
	require.Len(t, tx.Outputs, 3)

	iss := tx.Inputs[0].Issuance
	require.NotNil(t, iss)
	require.Equal(t, ExplicitValue(21_000), iss.AssetAmount)
	require.Equal(t, ExplicitValue(1), iss.TokenAmount)
	require.Equal(t, make([]byte, 32), iss.AssetBlindingNonce, "a new issuance has a zero nonce")

	explicitAsset, err := ExplicitAsset(asset)
	require.NoError(t, err)
	require.Equal(t, explicitAsset, tx.Outputs[0].Asset)
	require.Equal(t, ExplicitValue(4000), tx.Outputs[0].Value)
	require.Equal(t, p.Outputs[1].ValueCommitment, tx.Outputs[1].Value)
	require.Equal(t, p.Outputs[1].EcdhPubkey, tx.Outputs[1].Nonce)
	require.Empty(t, tx.Outputs[2].Script)
}

func TestInputPreimage(t *testing.T) {
	asset := fill(0xaa, 32)
	key := testKey(0x01)
	p := newTestPset(t)

	in := NewInput(fill(0x11, 32), 0)
	in.WitnessUtxo = witnessUtxo(t, 5000, asset, p2wpkh(t, key.PubKey()))
	require.NoError(t, p.AddInput(in))
	require.NoError(t, p.AddOutput(NewOutput(4900, asset, []byte{0x51})))
	require.NoError(t, p.AddOutput(NewOutput(100, asset, nil)))

	all, err := p.InputPreimage(0, txscript.SigHashAll, nil, nil)
	require.NoError(t, err)

	tx, err := p.UnsignedTx()
	require.NoError(t, err)
	code, err := p2pkhScript(btcutil.Hash160(key.PubKey().SerializeCompressed()))
	require.NoError(t, err)
	want := tx.HashForWitnessV0(0, code, ExplicitValue(5000), txscript.SigHashAll)
	require.Equal(t, chainhash.Hash(want), all)

	none, err := p.InputPreimage(0, txscript.SigHashNone, nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, all, none)

	_, err = p.InputPreimage(1, txscript.SigHashAll, nil, nil)
	var idxErr *IndexError
	require.ErrorAs(t, err, &idxErr)

	// Taproot spends need the genesis hash.
	tapScript, err := txscript.PayToTaprootScript(key.PubKey())
	require.NoError(t, err)
	require.NoError(t, p.Update(func(c *Pset) error {
		c.Inputs[0].WitnessUtxo = witnessUtxo(t, 5000, asset, tapScript)
		return nil
	}))
	_, err = p.InputPreimage(0, txscript.SigHashDefault, nil, nil)
	var shErr *SighashError
	require.ErrorAs(t, err, &shErr)

	genesis := chainhash.Hash{0x01}
	tapHash, err := p.InputPreimage(0, txscript.SigHashDefault, &genesis, nil)
	require.NoError(t, err)
	other := chainhash.Hash{0x02}
	otherHash, err := p.InputPreimage(0, txscript.SigHashDefault, &other, nil)
	require.NoError(t, err)
	require.NotEqual(t, tapHash, otherHash)
}

func TestIssuanceIdentifiers(t *testing.T) {
	in := NewInput(fill(0x11, 32), 2)
	_, err := in.IssuanceAsset()
	require.Error(t, err)

	in.IssuanceValue = 1000
	in.IssuanceAssetEntropy = fill(0x00, 32)

	entropy, err := ComputeEntropy(in.PreviousTxid, 2, make([]byte, 32))
	require.NoError(t, err)
	got, err := in.IssuanceEntropy()
	require.NoError(t, err)
	require.Equal(t, entropy, got)

	asset, err := in.IssuanceAsset()
	require.NoError(t, err)
	wantAsset, err := ComputeAsset(entropy)
	require.NoError(t, err)
	require.Equal(t, wantAsset, asset)

	unblinded, err := in.IssuanceToken()
	require.NoError(t, err)
	blinded := true
	in.BlindedIssuance = &blinded
	confidential, err := in.IssuanceToken()
	require.NoError(t, err)
	require.NotEqual(t, unblinded, confidential)
}

func TestIssuanceTokenIgnoresCommitments(t *testing.T) {
	in := NewInput(fill(0x11, 32), 2)
	in.IssuanceValue = 1000
	in.IssuanceInflationKeys = 1
	in.IssuanceAssetEntropy = fill(0x00, 32)

	unblinded, err := in.IssuanceToken()
	require.NoError(t, err)

	in.IssuanceValueCommitment = fakeCommitment(0x08)
	in.IssuanceInflationKeysCommitment = fakeCommitment(0x09)
	got, err := in.IssuanceToken()
	require.NoError(t, err)
	require.Equal(t, unblinded, got, "commitments without the blinded flag keep the explicit token")

	blinded := false
	in.BlindedIssuance = &blinded
	got, err = in.IssuanceToken()
	require.NoError(t, err)
	require.Equal(t, unblinded, got)

	blinded = true
	got, err = in.IssuanceToken()
	require.NoError(t, err)
	require.NotEqual(t, unblinded, got)
}

package roles

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/elements-pset/pkg/confidential"
	"github.com/suffix-labs/elements-pset/pkg/crypto"
	"github.com/suffix-labs/elements-pset/pkg/network"
	"github.com/suffix-labs/elements-pset/pkg/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func privKey(t *testing.T, b byte) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromBytes(fill(b, 32))
	require.NoError(t, err)
	return key
}

func p2wpkh(t *testing.T, key *crypto.PrivateKey) []byte {
	t.Helper()
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(key.PublicKey().Bytes())).
		Script()
	require.NoError(t, err)
	return script
}

func explicitUtxo(t *testing.T, value uint64, asset, script []byte) *transaction.TxOutput {
	t.Helper()
	a, err := pset.ExplicitAsset(asset)
	require.NoError(t, err)
	return transaction.NewTxOutput(a, pset.ExplicitValue(value), script)
}

// confidentialCoin is a blinded output together with its opening.
type confidentialCoin struct {
	utxo  *transaction.TxOutput
	owned OwnedInput
}

func newConfidentialCoin(t *testing.T, lib confidential.ZKPLib, index uint32, value uint64,
	asset, script, blindingPubKey []byte, seed byte) confidentialCoin {

	t.Helper()
	abf, vbf := fill(seed, 32), fill(seed+1, 32)
	gen, err := lib.BlindedAssetGenerator(asset, abf)
	require.NoError(t, err)
	commitment, err := lib.ValueCommitment(value, gen, vbf)
	require.NoError(t, err)

	ephemeral := privKey(t, seed+2)
	nonce, err := lib.ECDH(blindingPubKey, ephemeral.Bytes())
	require.NoError(t, err)
	message := make([]byte, 0, 64)
	message = append(message, asset...)
	message = append(message, abf...)
	proof, err := lib.RangeProofSign(confidential.RangeProofArgs{
		Value:           value,
		ValueCommitment: commitment,
		Generator:       gen,
		ValueBlinder:    vbf,
		Nonce:           nonce,
		Message:         message,
		ExtraCommit:     script,
		MinValue:        1,
		MinBits:         defaultRangeProofBits,
	})
	require.NoError(t, err)

	utxo := transaction.NewTxOutput(gen, commitment, script)
	utxo.Nonce = ephemeral.PublicKey().Bytes()
	utxo.RangeProof = proof
	return confidentialCoin{
		utxo: utxo,
		owned: OwnedInput{
			Index:        index,
			Value:        value,
			Asset:        asset,
			ValueBlinder: vbf,
			AssetBlinder: abf,
		},
	}
}

func TestCreatorBuildsPset(t *testing.T) {
	asset := network.Regtest.PolicyAsset()
	seq := uint32(0xfffffffd)
	p, err := NewCreator(WithFallbackLocktime(100)).NewPset(
		[]InputArgs{
			{Txid: chainhash.Hash{0x01}, TxIndex: 1, Sequence: &seq},
			{Txid: chainhash.Hash{0x02}, TxIndex: 0, HeightLocktime: 250},
			{Txid: chainhash.Hash{0x03}, TxIndex: 2},
		},
		[]OutputArgs{
			{Asset: asset, Amount: 900, Script: []byte{0x51}},
			{Asset: asset, Amount: 100},
		})
	require.NoError(t, err)

	require.Len(t, p.Inputs, 3)
	require.Len(t, p.Outputs, 2)
	assert.Equal(t, seq, p.Inputs[0].Sequence)
	assert.Equal(t, LocktimeSequence, p.Inputs[1].Sequence, "a required locktime must not be disabled")
	assert.Equal(t, uint32(transaction.DefaultSequence), p.Inputs[2].Sequence)
	assert.Equal(t, uint32(250), p.Locktime())
	assert.True(t, p.InputsModifiable())
	assert.True(t, p.OutputsModifiable())
	assert.True(t, p.Outputs[1].IsFee())

	encoded, err := p.ToBase64()
	require.NoError(t, err)
	decoded, err := pset.NewFromBase64(encoded)
	require.NoError(t, err)
	reencoded, err := decoded.ToBase64()
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestCreatorRejectsBadArgs(t *testing.T) {
	asset := fill(0xaa, 32)
	idx := uint32(0)

	tests := []struct {
		name    string
		inputs  []InputArgs
		outputs []OutputArgs
	}{
		{
			name:    "short asset",
			outputs: []OutputArgs{{Asset: asset[:31], Amount: 1}},
		},
		{
			name:    "script and address",
			outputs: []OutputArgs{{Asset: asset, Amount: 1, Script: []byte{0x51}, Address: "addr"}},
		},
		{
			name:    "address without decoder",
			outputs: []OutputArgs{{Asset: asset, Amount: 1, Address: "addr"}},
		},
		{
			name:    "blinder index without blinding key",
			outputs: []OutputArgs{{Asset: asset, Amount: 1, Script: []byte{0x51}, BlinderIndex: &idx}},
		},
		{
			name: "duplicate outpoint",
			inputs: []InputArgs{
				{Txid: chainhash.Hash{0x01}},
				{Txid: chainhash.Hash{0x01}},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCreator().NewPset(tc.inputs, tc.outputs)
			require.Error(t, err)
		})
	}

	_, err := NewCreator(WithTxVersion(1)).NewPset(nil, nil)
	require.ErrorIs(t, err, pset.ErrInvalidTxVersion)
}

type fakeDecoder struct {
	script []byte
	key    []byte
}

func (d fakeDecoder) ToOutputScript(string) ([]byte, error) { return d.script, nil }

func (d fakeDecoder) IsConfidential(string) bool { return d.key != nil }

func (d fakeDecoder) BlindingPubKey(string) ([]byte, error) { return d.key, nil }

func TestCreatorResolvesAddresses(t *testing.T) {
	key := privKey(t, 0x07).PublicKey().Bytes()
	dec := fakeDecoder{script: []byte{0x51}, key: key}
	idx := uint32(0)

	p, err := NewCreator(WithAddressDecoder(dec)).NewPset(
		[]InputArgs{{Txid: chainhash.Hash{0x01}}},
		[]OutputArgs{{Asset: fill(0xaa, 32), Amount: 10, Address: "el1...", BlinderIndex: &idx}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x51}, p.Outputs[0].Script)
	assert.Equal(t, key, p.Outputs[0].BlindingPubkey)
	assert.True(t, p.NeedsBlinding())
}

func TestUpdaterAddsInputsAndOutputs(t *testing.T) {
	asset := fill(0xaa, 32)
	p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}}, nil)
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)

	require.NoError(t, u.AddInputs([]InputArgs{{Txid: chainhash.Hash{0x02}, TxIndex: 3}}))
	require.NoError(t, u.AddOutputs([]OutputArgs{{Asset: asset, Amount: 5, Script: []byte{0x51}}}))
	assert.Len(t, p.Inputs, 2)
	assert.Len(t, p.Outputs, 1)

	err = u.AddInputs([]InputArgs{{Txid: chainhash.Hash{0x03}}, {Txid: chainhash.Hash{0x01}}})
	require.ErrorIs(t, err, pset.ErrDuplicateInput)
	assert.Len(t, p.Inputs, 2, "failed update must not leave a partial change")

	p.Global.TxModifiable = p.Global.TxModifiable.Clear(pset.OutputsModifiable)
	err = u.AddOutputs([]OutputArgs{{Asset: asset, Amount: 5, Script: []byte{0x51}}})
	require.ErrorIs(t, err, pset.ErrOutputsNotModifiable)
}

func TestUpdaterWitnessUtxoKeepsRangeProof(t *testing.T) {
	lib := confidential.NewLibsecp()
	blinding := privKey(t, 0x05)
	coin := newConfidentialCoin(t, lib, 0, 1000, fill(0xaa, 32), []byte{0x51},
		blinding.PublicKey().Bytes(), 0x10)

	p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}}, nil)
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)
	require.NoError(t, u.AddInWitnessUtxo(0, coin.utxo))

	in := p.Inputs[0]
	assert.Empty(t, in.WitnessUtxo.RangeProof)
	assert.Equal(t, coin.utxo.RangeProof, in.UtxoRangeProof)
	assert.NotNil(t, coin.utxo.RangeProof, "caller's output must not be modified")
}

func TestUpdaterNonWitnessUtxoMustMatch(t *testing.T) {
	prev := transaction.NewTx(2)
	prev.AddInput(transaction.NewTxInput(fill(0x09, 32), 0))
	prev.AddOutput(explicitUtxo(t, 50, fill(0xaa, 32), []byte{0x51}))
	txid := prev.TxHash()

	p, err := NewCreator().NewPset([]InputArgs{{Txid: txid}, {Txid: chainhash.Hash{0x07}}}, nil)
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)

	require.NoError(t, u.AddInNonWitnessUtxo(0, prev))
	require.Error(t, u.AddInNonWitnessUtxo(1, prev))

	utxo, err := p.Inputs[0].Utxo()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x51}, utxo.Script)
}

func TestUpdaterMetadata(t *testing.T) {
	key := privKey(t, 0x03)
	p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}},
		[]OutputArgs{{Asset: fill(0xaa, 32), Amount: 1, Script: []byte{0x51}}})
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)

	d := &psbt.Bip32Derivation{PubKey: key.PublicKey().Bytes(), MasterKeyFingerprint: 7,
		Bip32Path: []uint32{84 | 1<<31, 1 << 31, 1 << 31, 0, 0}}
	require.NoError(t, u.AddInBip32Derivation(0, d))
	require.ErrorIs(t, u.AddInBip32Derivation(0, d), pset.ErrDuplicateKey)
	require.NoError(t, u.AddOutBip32Derivation(0, d))
	require.NoError(t, u.AddInSighashType(0, txscript.SigHashAll))
	require.NoError(t, u.AddInRedeemScript(0, []byte{0x00, 0x14}))

	require.NoError(t, u.AddInTapInternalKey(0, key.PublicKey().XOnly()))
	require.NoError(t, u.AddInTapMerkleRoot(0, chainhash.Hash{0x42}))
	require.Error(t, u.AddInTapInternalKey(0, fill(0x00, 31)))

	require.NoError(t, u.AddInHeightLocktime(0, 1000))
	assert.Equal(t, uint32(1000), p.Locktime())
	require.Error(t, u.AddInTimeLocktime(0, 1000), "a block height is not a time locktime")

	_, err = u.Pset().Copy()
	require.NoError(t, err)
	assert.Equal(t, txscript.SigHashAll, *p.Inputs[0].SigHashType)
	assert.Len(t, p.Inputs[0].Bip32Derivation, 1)
	assert.Len(t, p.Outputs[0].Bip32Derivation, 1)
}

func TestIssuanceIsDeterministic(t *testing.T) {
	issue := func() *pset.Pset {
		p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x0c}, TxIndex: 2}}, nil)
		require.NoError(t, err)
		u, err := NewUpdater(p)
		require.NoError(t, err)
		require.NoError(t, u.AddInIssuance(0, AddInIssuanceArgs{
			AssetAmount: 1_000_000,
			TokenAmount: 1,
			AssetTo:     Destination{Script: []byte{0x51}},
			TokenTo:     Destination{Script: []byte{0x52}},
		}))
		return p
	}

	a, b := issue(), issue()
	require.Len(t, a.Outputs, 2)
	assert.Equal(t, a.Outputs[0].Asset, b.Outputs[0].Asset)
	assert.Equal(t, a.Outputs[1].Asset, b.Outputs[1].Asset)

	txid := chainhash.Hash{0x0c}
	entropy, err := pset.ComputeEntropy(txid[:], 2, make([]byte, 32))
	require.NoError(t, err)
	asset, err := pset.ComputeAsset(entropy)
	require.NoError(t, err)
	token, err := pset.ComputeReissuanceToken(entropy, false)
	require.NoError(t, err)
	assert.Equal(t, asset, a.Outputs[0].Asset)
	assert.Equal(t, token, a.Outputs[1].Asset)
	assert.Equal(t, uint64(1_000_000), a.Outputs[0].Amount)
	assert.True(t, a.Inputs[0].HasIssuance())
	assert.False(t, a.Inputs[0].HasReissuance())

	u, err := NewUpdater(a)
	require.NoError(t, err)
	err = u.AddInIssuance(0, AddInIssuanceArgs{AssetAmount: 1, AssetTo: Destination{Script: []byte{0x51}}})
	require.ErrorIs(t, err, pset.ErrIssuanceAlreadyPresent)

	err = u.AddInIssuance(0, AddInIssuanceArgs{})
	var fieldErr *pset.FieldError
	require.True(t, errors.As(err, &fieldErr))
}

func TestReissuanceRequiresConfidentialToken(t *testing.T) {
	entropy := fill(0x33, 32)
	p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}}, nil)
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)

	token, err := pset.ComputeReissuanceToken(entropy, false)
	require.NoError(t, err)
	require.NoError(t, u.AddInWitnessUtxo(0, explicitUtxo(t, 1, token, []byte{0x51})))

	args := AddInReissuanceArgs{
		Entropy:           entropy,
		AssetAmount:       10,
		TokenAmount:       1,
		TokenAssetBlinder: fill(0x44, 32),
		AssetTo:           Destination{Script: []byte{0x51}},
		TokenTo:           Destination{Script: []byte{0x52}},
	}
	require.Error(t, u.AddInReissuance(0, args))
	assert.False(t, p.Inputs[0].HasIssuance())

	lib := confidential.NewLibsecp()
	coin := newConfidentialCoin(t, lib, 0, 1, token, []byte{0x51},
		privKey(t, 0x08).PublicKey().Bytes(), 0x20)
	p2, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x02}}}, nil)
	require.NoError(t, err)
	u2, err := NewUpdater(p2)
	require.NoError(t, err)
	require.NoError(t, u2.AddInWitnessUtxo(0, coin.utxo))
	args.TokenAssetBlinder = coin.owned.AssetBlinder
	require.NoError(t, u2.AddInReissuance(0, args))

	in := p2.Inputs[0]
	assert.True(t, in.HasReissuance())
	asset, err := pset.ComputeAsset(entropy)
	require.NoError(t, err)
	assert.Equal(t, asset, p2.Outputs[0].Asset)
	assert.Equal(t, token, p2.Outputs[1].Asset)
}

// explicitFlow builds a one input P2WPKH spend with a fee output.
func explicitFlow(t *testing.T, key *crypto.PrivateKey) *pset.Pset {
	t.Helper()
	asset := network.Regtest.PolicyAsset()
	p, err := NewCreator().NewPset(
		[]InputArgs{{Txid: chainhash.Hash{0x01}, TxIndex: 0}},
		[]OutputArgs{
			{Asset: asset, Amount: 9000, Script: p2wpkh(t, privKey(t, 0x02))},
			{Asset: asset, Amount: 1000},
		})
	require.NoError(t, err)

	u, err := NewUpdater(p)
	require.NoError(t, err)
	require.NoError(t, u.AddInWitnessUtxo(0, explicitUtxo(t, 10_000, asset, p2wpkh(t, key))))
	require.NoError(t, u.AddInSighashType(0, txscript.SigHashAll))
	return p
}

func TestSignFinalizeExtract(t *testing.T) {
	key := privKey(t, 0x01)
	p := explicitFlow(t, key)

	s, err := NewSigner(p, WithNetwork(&network.Regtest))
	require.NoError(t, err)
	require.NoError(t, s.SignInput(0, key))

	in := p.Inputs[0]
	require.Len(t, in.PartialSigs, 1)
	assert.Equal(t, key.PublicKey().Bytes(), in.PartialSigs[0].PubKey)
	assert.False(t, p.InputsModifiable())
	assert.False(t, p.OutputsModifiable())
	require.ErrorIs(t, s.SignInput(0, key), pset.ErrDuplicateKey)

	_, err = NewExtractor(p).Extract()
	require.ErrorIs(t, err, pset.ErrIncomplete)

	require.NoError(t, NewFinalizer(p).Finalize())
	in = p.Inputs[0]
	assert.True(t, in.IsFinalized())
	assert.Empty(t, in.PartialSigs)
	assert.Nil(t, in.SigHashType)
	assert.Empty(t, in.FinalScriptSig)
	require.True(t, p.IsComplete())

	unsigned, err := p.UnsignedTx()
	require.NoError(t, err)
	tx, err := NewExtractor(p).Extract()
	require.NoError(t, err)
	require.Len(t, tx.Inputs[0].Witness, 2)
	assert.Equal(t, key.PublicKey().Bytes(), tx.Inputs[0].Witness[1])
	assert.Equal(t, unsigned.TxHash(), tx.TxHash(), "witness must not change the txid")

	raw, err := tx.Serialize()
	require.NoError(t, err)
	parsed, err := transaction.NewTxFromBuffer(bytes.NewBuffer(raw))
	require.NoError(t, err)
	assert.Equal(t, tx.WitnessHash(), parsed.WitnessHash())

	require.ErrorIs(t, NewFinalizer(p).FinalizeInput(0), pset.ErrInputFinalized)
	require.ErrorIs(t, s.SignInput(0, key), pset.ErrInputFinalized)
}

func TestSignerRejectsBadSignatures(t *testing.T) {
	key := privKey(t, 0x01)
	other := privKey(t, 0x09)
	p := explicitFlow(t, key)
	s, err := NewSigner(p)
	require.NoError(t, err)

	h, err := p.InputPreimage(0, txscript.SigHashAll, &network.Liquid.GenesisBlockHash, nil)
	require.NoError(t, err)

	t.Run("foreign key", func(t *testing.T) {
		sig := append(other.Sign(h), byte(txscript.SigHashAll))
		err := s.AddSignature(0, SignatureArgs{PartialSig: &psbt.PartialSig{
			PubKey: other.PublicKey().Bytes(), Signature: sig}})
		var sigErr *pset.SignatureError
		require.True(t, errors.As(err, &sigErr))
		assert.Equal(t, 0, sigErr.InputIndex)
	})

	t.Run("wrong hash", func(t *testing.T) {
		sig := append(key.Sign([32]byte{0x01}), byte(txscript.SigHashAll))
		err := s.AddSignature(0, SignatureArgs{PartialSig: &psbt.PartialSig{
			PubKey: key.PublicKey().Bytes(), Signature: sig}})
		require.Error(t, err)
	})

	t.Run("sighash byte mismatch", func(t *testing.T) {
		sig := append(key.Sign(h), byte(txscript.SigHashNone))
		err := s.AddSignature(0, SignatureArgs{PartialSig: &psbt.PartialSig{
			PubKey: key.PublicKey().Bytes(), Signature: sig}})
		require.Error(t, err)
	})

	assert.Empty(t, p.Inputs[0].PartialSigs)
	assert.True(t, p.InputsModifiable())

	sig := append(key.Sign(h), byte(txscript.SigHashAll))
	require.NoError(t, s.AddSignature(0, SignatureArgs{PartialSig: &psbt.PartialSig{
		PubKey: key.PublicKey().Bytes(), Signature: sig}}))
}

func TestSignerRequiresSighashAndBlinding(t *testing.T) {
	key := privKey(t, 0x01)
	asset := fill(0xaa, 32)
	idx := uint32(0)
	p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}},
		[]OutputArgs{{Asset: asset, Amount: 10, Script: []byte{0x51},
			BlindingPubKey: privKey(t, 0x04).PublicKey().Bytes(), BlinderIndex: &idx}})
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)
	require.NoError(t, u.AddInWitnessUtxo(0, explicitUtxo(t, 10, asset, p2wpkh(t, key))))

	s, err := NewSigner(p)
	require.NoError(t, err)
	require.Error(t, s.AddSignature(0, SignatureArgs{}), "missing sighash type")

	require.NoError(t, u.AddInSighashType(0, txscript.SigHashAll))
	require.ErrorIs(t, s.SignInput(0, key), pset.ErrOutputNotFullyBlinded)

	require.NoError(t, u.AddInSighashType(0, txscript.SigHashNone|txscript.SigHashAnyOneCanPay))
	require.NoError(t, s.SignInput(0, key))
	assert.True(t, p.InputsModifiable())
	assert.True(t, p.OutputsModifiable())
}

func TestSignTaprootKeyPath(t *testing.T) {
	key := privKey(t, 0x0b)
	asset := network.Regtest.PolicyAsset()
	outputKey := txscript.ComputeTaprootKeyNoScript(key.PublicKey().Key())
	script, err := txscript.PayToTaprootScript(outputKey)
	require.NoError(t, err)

	p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}},
		[]OutputArgs{{Asset: asset, Amount: 900, Script: []byte{0x51}}, {Asset: asset, Amount: 100}})
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)
	require.NoError(t, u.AddInWitnessUtxo(0, explicitUtxo(t, 1000, asset, script)))
	require.NoError(t, u.AddInTapInternalKey(0, key.PublicKey().XOnly()))

	s, err := NewSigner(p, WithNetwork(&network.Regtest))
	require.NoError(t, err)
	require.NoError(t, s.SignInput(0, key))
	require.Len(t, p.Inputs[0].TapKeySig, 64)

	require.NoError(t, NewFinalizer(p).Finalize())
	tx, err := NewExtractor(p).Extract()
	require.NoError(t, err)
	require.Len(t, tx.Inputs[0].Witness, 1)
	assert.Empty(t, p.Inputs[0].TapInternalKey)

	// The signature commits to the genesis hash of the network.
	p2, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}},
		[]OutputArgs{{Asset: asset, Amount: 900, Script: []byte{0x51}}, {Asset: asset, Amount: 100}})
	require.NoError(t, err)
	u2, err := NewUpdater(p2)
	require.NoError(t, err)
	require.NoError(t, u2.AddInWitnessUtxo(0, explicitUtxo(t, 1000, asset, script)))
	require.NoError(t, u2.AddInSighashType(0, txscript.SigHashDefault))
	s2, err := NewSigner(p2, WithNetwork(&network.Liquid))
	require.NoError(t, err)
	regtestSig := tx.Inputs[0].Witness[0]
	require.Error(t, s2.AddSignature(0, SignatureArgs{TapKeySig: regtestSig}))
}

func TestFinalizeMultisig(t *testing.T) {
	keys := []*crypto.PrivateKey{privKey(t, 0x11), privKey(t, 0x12), privKey(t, 0x13)}
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_2)
	for _, k := range keys {
		b.AddData(k.PublicKey().Bytes())
	}
	witnessScript, err := b.AddOp(txscript.OP_3).AddOp(txscript.OP_CHECKMULTISIG).Script()
	require.NoError(t, err)
	scriptHash := sha256.Sum256(witnessScript)
	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(scriptHash[:]).Script()
	require.NoError(t, err)

	asset := fill(0xaa, 32)
	p, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x01}}},
		[]OutputArgs{{Asset: asset, Amount: 90, Script: []byte{0x51}}, {Asset: asset, Amount: 10}})
	require.NoError(t, err)
	u, err := NewUpdater(p)
	require.NoError(t, err)
	require.NoError(t, u.AddInWitnessUtxo(0, explicitUtxo(t, 100, asset, script)))
	require.NoError(t, u.AddInWitnessScript(0, witnessScript))

	// Two signers work on separate copies.
	a, err := p.Copy()
	require.NoError(t, err)
	c, err := p.Copy()
	require.NoError(t, err)
	sa, err := NewSigner(a)
	require.NoError(t, err)
	require.NoError(t, sa.SignInput(0, keys[2]))
	sc, err := NewSigner(c)
	require.NoError(t, err)
	require.NoError(t, sc.SignInput(0, keys[0]))

	require.Error(t, NewFinalizer(a).Finalize(), "one of two signatures")

	combined, err := Combine(a, c)
	require.NoError(t, err)
	require.Len(t, combined.Inputs[0].PartialSigs, 2)
	require.NoError(t, NewFinalizer(combined).Finalize())

	tx, err := NewExtractor(combined).Extract()
	require.NoError(t, err)
	w := tx.Inputs[0].Witness
	require.Len(t, w, 4)
	assert.Empty(t, w[0])
	assert.Equal(t, witnessScript, w[3])
	// Signatures follow the key order of the script.
	sig0, sig2 := w[1], w[2]
	assert.NotEqual(t, sig0, sig2)
	h, err := a.InputPreimage(0, txscript.SigHashAll, &network.Liquid.GenesisBlockHash, nil)
	require.NoError(t, err)
	assert.True(t, crypto.VerifySignature(keys[0].PublicKey(), h, sig0[:len(sig0)-1]))
}

func TestCombinerConflicts(t *testing.T) {
	key := privKey(t, 0x01)
	p := explicitFlow(t, key)

	other := explicitFlow(t, key)
	u, err := NewUpdater(other)
	require.NoError(t, err)
	require.NoError(t, u.AddInRedeemScript(0, []byte{0x01}))
	u2, err := NewUpdater(p)
	require.NoError(t, err)
	require.NoError(t, u2.AddInRedeemScript(0, []byte{0x02}))

	_, err = Combine(p, other)
	var combineErr *pset.CombineError
	require.True(t, errors.As(err, &combineErr))

	different, err := NewCreator().NewPset([]InputArgs{{Txid: chainhash.Hash{0x09}}}, nil)
	require.NoError(t, err)
	_, err = Combine(p, different)
	require.Error(t, err)

	_, err = Combine()
	require.Error(t, err)

	single, err := Combine(p)
	require.NoError(t, err)
	want, err := p.ToBase64()
	require.NoError(t, err)
	got, err := single.ToBase64()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

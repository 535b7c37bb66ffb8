package pset

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck

	"github.com/vulpemventures/go-elements/transaction"
)

const maxTapTreeDepth = 128

var globalFields = newFieldTable(
	field[Global]{
		name: "xpub",
		key:  std(GlobalXpub),
		decode: func(g *Global, keyData, value []byte) error {
			if len(keyData) != 78 {
				return fmt.Errorf("extended key must be 78 bytes, got %d", len(keyData))
			}
			fp, path, err := psbt.ReadBip32Derivation(value)
			if err != nil {
				return err
			}
			g.Xpubs = append(g.Xpubs, Xpub{
				ExtendedKey:          cloneBytes(keyData),
				MasterKeyFingerprint: fp,
				DerivationPath:       path,
			})
			return nil
		},
		encode: func(g *Global) ([]keyPair, error) {
			var pairs []keyPair
			for _, x := range g.Xpubs {
				pairs = append(pairs, keyPair{
					keyData: x.ExtendedKey,
					value:   psbt.SerializeBIP32Derivation(x.MasterKeyFingerprint, x.DerivationPath),
				})
			}
			return pairs, nil
		},
	},
	uint32Field("tx_version", std(GlobalTxVersion), true,
		func(g *Global) *uint32 { return &g.TxVersion }),
	optUint32Field("fallback_locktime", std(GlobalFallbackLocktime),
		func(g *Global) **uint32 { return &g.FallbackLocktime }),
	varIntField("input_count", std(GlobalInputCount),
		func(g *Global) *uint64 { return &g.InputCount }),
	varIntField("output_count", std(GlobalOutputCount),
		func(g *Global) *uint64 { return &g.OutputCount }),
	field[Global]{
		name: "tx_modifiable",
		key:  std(GlobalTxModifiable),
		decode: func(g *Global, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if len(value) != 1 {
				return fmt.Errorf("expected 1 byte, got %d", len(value))
			}
			g.TxModifiable = BitSet(value[0])
			return nil
		},
		encode: func(g *Global) ([]keyPair, error) {
			return []keyPair{{value: []byte{byte(g.TxModifiable)}}}, nil
		},
	},
	field[Global]{
		name: "scalar",
		key:  prop(GlobalScalar),
		decode: func(g *Global, keyData, value []byte) error {
			if len(keyData) != 32 {
				return fmt.Errorf("scalar must be 32 bytes, got %d", len(keyData))
			}
			if len(value) != 0 {
				return fmt.Errorf("scalar value must be empty")
			}
			g.Scalars = append(g.Scalars, cloneBytes(keyData))
			return nil
		},
		encode: func(g *Global) ([]keyPair, error) {
			var pairs []keyPair
			for _, s := range g.Scalars {
				pairs = append(pairs, keyPair{keyData: s})
			}
			return pairs, nil
		},
	},
	field[Global]{
		name: "elements_tx_modifiable",
		key:  prop(GlobalElementsTxModifiable),
		decode: func(g *Global, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if len(value) != 1 {
				return fmt.Errorf("expected 1 byte, got %d", len(value))
			}
			v := value[0]
			g.ElementsTxModifiable = &v
			return nil
		},
		encode: func(g *Global) ([]keyPair, error) {
			if g.ElementsTxModifiable == nil {
				return nil, nil
			}
			return []keyPair{{value: []byte{*g.ElementsTxModifiable}}}, nil
		},
	},
	uint32Field("version", std(GlobalVersion), true,
		func(g *Global) *uint32 { return &g.Version }),
)

var inputFields = newFieldTable(
	field[Input]{
		name: "non_witness_utxo",
		key:  std(InputNonWitnessUtxo),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			buf := bytes.NewBuffer(cloneBytes(value))
			tx, err := transaction.NewTxFromBuffer(buf)
			if err != nil {
				return err
			}
			if buf.Len() != 0 {
				return fmt.Errorf("%d trailing bytes after transaction", buf.Len())
			}
			in.NonWitnessUtxo = tx
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.NonWitnessUtxo == nil {
				return nil, nil
			}
			b, err := in.NonWitnessUtxo.Serialize()
			if err != nil {
				return nil, err
			}
			return []keyPair{{value: b}}, nil
		},
	},
	field[Input]{
		name: "witness_utxo",
		key:  std(InputWitnessUtxo),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			out, err := deserializeTxOutput(value)
			if err != nil {
				return err
			}
			in.WitnessUtxo = out
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.WitnessUtxo == nil {
				return nil, nil
			}
			b, err := serializeTxOutput(in.WitnessUtxo)
			if err != nil {
				return nil, err
			}
			return []keyPair{{value: b}}, nil
		},
	},
	field[Input]{
		name: "partial_sig",
		key:  std(InputPartialSig),
		decode: func(in *Input, keyData, value []byte) error {
			if _, err := btcec.ParsePubKey(keyData); err != nil {
				return fmt.Errorf("pubkey: %w", err)
			}
			if len(value) == 0 {
				return fmt.Errorf("empty signature")
			}
			in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
				PubKey:    cloneBytes(keyData),
				Signature: cloneBytes(value),
			})
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			var pairs []keyPair
			for _, ps := range in.PartialSigs {
				pairs = append(pairs, keyPair{keyData: ps.PubKey, value: ps.Signature})
			}
			return pairs, nil
		},
	},
	field[Input]{
		name: "sighash_type",
		key:  std(InputSighashType),
		decode: func(in *Input, keyData, value []byte) error {
			v, err := decodeUint32(keyData, value)
			if err != nil {
				return err
			}
			sh := txscript.SigHashType(v)
			in.SigHashType = &sh
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.SigHashType == nil {
				return nil, nil
			}
			return []keyPair{{value: encodeUint32(uint32(*in.SigHashType))}}, nil
		},
	},
	bytesField("redeem_script", std(InputRedeemScript), 0,
		func(in *Input) *[]byte { return &in.RedeemScript }),
	bytesField("witness_script", std(InputWitnessScript), 0,
		func(in *Input) *[]byte { return &in.WitnessScript }),
	field[Input]{
		name: "bip32_derivation",
		key:  std(InputBip32Derivation),
		decode: func(in *Input, keyData, value []byte) error {
			d, err := decodeBip32(keyData, value)
			if err != nil {
				return err
			}
			in.Bip32Derivation = append(in.Bip32Derivation, d)
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			return encodeBip32(in.Bip32Derivation), nil
		},
	},
	bytesField("final_scriptsig", std(InputFinalScriptSig), 0,
		func(in *Input) *[]byte { return &in.FinalScriptSig }),
	bytesField("final_scriptwitness", std(InputFinalScriptWitness), 0,
		func(in *Input) *[]byte { return &in.FinalScriptWitness }),
	preimageField("ripemd160", std(InputRipemd160), 20, ripemd160Sum,
		func(in *Input) *[]Preimage { return &in.Ripemd160Preimages }),
	preimageField("sha256", std(InputSha256), 32, sha256Sum,
		func(in *Input) *[]Preimage { return &in.Sha256Preimages }),
	preimageField("hash160", std(InputHash160), 20, btcutil.Hash160,
		func(in *Input) *[]Preimage { return &in.Hash160Preimages }),
	preimageField("hash256", std(InputHash256), 32, chainhash.DoubleHashB,
		func(in *Input) *[]Preimage { return &in.Hash256Preimages }),
	bytesField("previous_txid", std(InputPreviousTxid), 32,
		func(in *Input) *[]byte { return &in.PreviousTxid }),
	uint32Field("output_index", std(InputPreviousTxIndex), true,
		func(in *Input) *uint32 { return &in.PreviousTxIndex }),
	uint32Field("sequence", std(InputSequence), true,
		func(in *Input) *uint32 { return &in.Sequence }),
	field[Input]{
		name: "required_time_locktime",
		key:  std(InputRequiredTimeLocktime),
		decode: func(in *Input, keyData, value []byte) error {
			v, err := decodeUint32(keyData, value)
			if err != nil {
				return err
			}
			if v < locktimeThreshold {
				return fmt.Errorf("time locktime %d below %d", v, locktimeThreshold)
			}
			in.RequiredTimeLocktime = v
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.RequiredTimeLocktime == 0 {
				return nil, nil
			}
			return []keyPair{{value: encodeUint32(in.RequiredTimeLocktime)}}, nil
		},
	},
	field[Input]{
		name: "required_height_locktime",
		key:  std(InputRequiredHeightLocktime),
		decode: func(in *Input, keyData, value []byte) error {
			v, err := decodeUint32(keyData, value)
			if err != nil {
				return err
			}
			if v == 0 || v >= locktimeThreshold {
				return fmt.Errorf("height locktime %d out of range", v)
			}
			in.RequiredHeightLocktime = v
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.RequiredHeightLocktime == 0 {
				return nil, nil
			}
			return []keyPair{{value: encodeUint32(in.RequiredHeightLocktime)}}, nil
		},
	},
	field[Input]{
		name: "tap_key_sig",
		key:  std(InputTapKeySig),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if err := checkSchnorrSig(value); err != nil {
				return err
			}
			in.TapKeySig = cloneBytes(value)
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.TapKeySig == nil {
				return nil, nil
			}
			return []keyPair{{value: in.TapKeySig}}, nil
		},
	},
	field[Input]{
		name: "tap_script_sig",
		key:  std(InputTapScriptSig),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != 64 {
				return fmt.Errorf("key must be xonly pubkey and leaf hash")
			}
			if err := checkSchnorrSig(value); err != nil {
				return err
			}
			sig := &psbt.TaprootScriptSpendSig{
				XOnlyPubKey: cloneBytes(keyData[:32]),
				LeafHash:    cloneBytes(keyData[32:]),
				Signature:   cloneBytes(value[:64]),
				SigHash:     txscript.SigHashDefault,
			}
			if len(value) == 65 {
				sig.SigHash = txscript.SigHashType(value[64])
			}
			in.TapScriptSig = append(in.TapScriptSig, sig)
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			var pairs []keyPair
			for _, s := range in.TapScriptSig {
				value := cloneBytes(s.Signature)
				if s.SigHash != txscript.SigHashDefault {
					value = append(value, byte(s.SigHash))
				}
				pairs = append(pairs, keyPair{
					keyData: append(cloneBytes(s.XOnlyPubKey), s.LeafHash...),
					value:   value,
				})
			}
			return pairs, nil
		},
	},
	field[Input]{
		name: "tap_leaf_script",
		key:  std(InputTapLeafScript),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) < 33 || (len(keyData)-33)%32 != 0 {
				return fmt.Errorf("invalid control block length %d", len(keyData))
			}
			if len(value) == 0 {
				return fmt.Errorf("missing leaf version")
			}
			in.TapLeafScript = append(in.TapLeafScript, &psbt.TaprootTapLeafScript{
				ControlBlock: cloneBytes(keyData),
				Script:       cloneBytes(value[:len(value)-1]),
				LeafVersion:  txscript.TapscriptLeafVersion(value[len(value)-1]),
			})
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			var pairs []keyPair
			for _, l := range in.TapLeafScript {
				pairs = append(pairs, keyPair{
					keyData: l.ControlBlock,
					value:   append(cloneBytes(l.Script), byte(l.LeafVersion)),
				})
			}
			return pairs, nil
		},
	},
	field[Input]{
		name: "tap_bip32_derivation",
		key:  std(InputTapBip32Derivation),
		decode: func(in *Input, keyData, value []byte) error {
			d, err := decodeTapBip32(keyData, value)
			if err != nil {
				return err
			}
			in.TapBip32Derivation = append(in.TapBip32Derivation, d)
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			return encodeTapBip32(in.TapBip32Derivation)
		},
	},
	bytesField("tap_internal_key", std(InputTapInternalKey), 32,
		func(in *Input) *[]byte { return &in.TapInternalKey }),
	bytesField("tap_merkle_root", std(InputTapMerkleRoot), 32,
		func(in *Input) *[]byte { return &in.TapMerkleRoot }),

	uint64Field("issuance_value", prop(InputIssuanceValue),
		func(in *Input) *uint64 { return &in.IssuanceValue }),
	bytesField("issuance_value_commitment", prop(InputIssuanceValueCommitment), 33,
		func(in *Input) *[]byte { return &in.IssuanceValueCommitment }),
	bytesField("issuance_value_rangeproof", prop(InputIssuanceValueRangeproof), 0,
		func(in *Input) *[]byte { return &in.IssuanceValueRangeproof }),
	bytesField("issuance_inflation_keys_rangeproof", prop(InputIssuanceInflationKeysRangeproof), 0,
		func(in *Input) *[]byte { return &in.IssuanceInflationKeysRangeproof }),
	field[Input]{
		name: "pegin_tx",
		key:  prop(InputPeginTx),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			tx := wire.NewMsgTx(wire.TxVersion)
			r := bytes.NewReader(value)
			if err := tx.Deserialize(r); err != nil {
				return err
			}
			if r.Len() != 0 {
				return fmt.Errorf("%d trailing bytes after peg-in tx", r.Len())
			}
			in.PeginTx = tx
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.PeginTx == nil {
				return nil, nil
			}
			var buf bytes.Buffer
			if err := in.PeginTx.Serialize(&buf); err != nil {
				return nil, err
			}
			return []keyPair{{value: buf.Bytes()}}, nil
		},
	},
	bytesField("pegin_txout_proof", prop(InputPeginTxoutProof), 0,
		func(in *Input) *[]byte { return &in.PeginTxoutProof }),
	bytesField("pegin_genesis_hash", prop(InputPeginGenesisHash), 32,
		func(in *Input) *[]byte { return &in.PeginGenesisHash }),
	bytesField("pegin_claim_script", prop(InputPeginClaimScript), 0,
		func(in *Input) *[]byte { return &in.PeginClaimScript }),
	uint64Field("pegin_value", prop(InputPeginValue),
		func(in *Input) *uint64 { return &in.PeginValue }),
	field[Input]{
		name: "pegin_witness",
		key:  prop(InputPeginWitness),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			wit, err := readWitnessStack(value)
			if err != nil {
				return err
			}
			in.PeginWitness = wit
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.PeginWitness == nil {
				return nil, nil
			}
			b, err := serializeWitnessStack(in.PeginWitness)
			if err != nil {
				return nil, err
			}
			return []keyPair{{value: b}}, nil
		},
	},
	uint64Field("issuance_inflation_keys", prop(InputIssuanceInflationKeys),
		func(in *Input) *uint64 { return &in.IssuanceInflationKeys }),
	bytesField("issuance_inflation_keys_commitment", prop(InputIssuanceInflationKeysCommitment), 33,
		func(in *Input) *[]byte { return &in.IssuanceInflationKeysCommitment }),
	bytesField("issuance_blinding_nonce", prop(InputIssuanceBlindingNonce), 32,
		func(in *Input) *[]byte { return &in.IssuanceBlindingNonce }),
	bytesField("issuance_asset_entropy", prop(InputIssuanceAssetEntropy), 32,
		func(in *Input) *[]byte { return &in.IssuanceAssetEntropy }),
	bytesField("utxo_rangeproof", prop(InputUtxoRangeProof), 0,
		func(in *Input) *[]byte { return &in.UtxoRangeProof }),
	bytesField("issuance_blind_value_proof", prop(InputIssuanceBlindValueProof), 0,
		func(in *Input) *[]byte { return &in.IssuanceBlindValueProof }),
	bytesField("issuance_blind_inflation_keys_proof", prop(InputIssuanceBlindInflationKeysProof), 0,
		func(in *Input) *[]byte { return &in.IssuanceBlindInflationKeysProof }),
	uint64Field("explicit_value", prop(InputExplicitValue),
		func(in *Input) *uint64 { return &in.ExplicitValue }),
	bytesField("value_proof", prop(InputValueProof), 0,
		func(in *Input) *[]byte { return &in.ValueProof }),
	bytesField("explicit_asset", prop(InputExplicitAsset), 32,
		func(in *Input) *[]byte { return &in.ExplicitAsset }),
	bytesField("asset_proof", prop(InputAssetProof), 0,
		func(in *Input) *[]byte { return &in.AssetProof }),
	field[Input]{
		name: "blinded_issuance",
		key:  prop(InputBlindedIssuance),
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if len(value) != 1 || value[0] > 1 {
				return fmt.Errorf("expected a single 0 or 1 byte")
			}
			b := value[0] == 1
			in.BlindedIssuance = &b
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			if in.BlindedIssuance == nil {
				return nil, nil
			}
			v := byte(0)
			if *in.BlindedIssuance {
				v = 1
			}
			return []keyPair{{value: []byte{v}}}, nil
		},
	},
)

var outputFields = newFieldTable(
	bytesField("redeem_script", std(OutputRedeemScript), 0,
		func(out *Output) *[]byte { return &out.RedeemScript }),
	bytesField("witness_script", std(OutputWitnessScript), 0,
		func(out *Output) *[]byte { return &out.WitnessScript }),
	field[Output]{
		name: "bip32_derivation",
		key:  std(OutputBip32Derivation),
		decode: func(out *Output, keyData, value []byte) error {
			d, err := decodeBip32(keyData, value)
			if err != nil {
				return err
			}
			out.Bip32Derivation = append(out.Bip32Derivation, d)
			return nil
		},
		encode: func(out *Output) ([]keyPair, error) {
			return encodeBip32(out.Bip32Derivation), nil
		},
	},
	field[Output]{
		name: "amount",
		key:  std(OutputAmount),
		decode: func(out *Output, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if len(value) != 8 {
				return fmt.Errorf("expected 8 bytes, got %d", len(value))
			}
			out.Amount = binary.LittleEndian.Uint64(value)
			return nil
		},
		encode: func(out *Output) ([]keyPair, error) {
			return []keyPair{{value: leBytes64(out.Amount)}}, nil
		},
	},
	bytesField("script", std(OutputScript), 0,
		func(out *Output) *[]byte { return &out.Script }),
	bytesField("tap_internal_key", std(OutputTapInternalKey), 32,
		func(out *Output) *[]byte { return &out.TapInternalKey }),
	field[Output]{
		name: "tap_tree",
		key:  std(OutputTapTree),
		decode: func(out *Output, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			leaves, err := decodeTapTree(value)
			if err != nil {
				return err
			}
			out.TapTree = leaves
			return nil
		},
		encode: func(out *Output) ([]keyPair, error) {
			if len(out.TapTree) == 0 {
				return nil, nil
			}
			b, err := encodeTapTree(out.TapTree)
			if err != nil {
				return nil, err
			}
			return []keyPair{{value: b}}, nil
		},
	},
	field[Output]{
		name: "tap_bip32_derivation",
		key:  std(OutputTapBip32Derivation),
		decode: func(out *Output, keyData, value []byte) error {
			d, err := decodeTapBip32(keyData, value)
			if err != nil {
				return err
			}
			out.TapBip32Derivation = append(out.TapBip32Derivation, d)
			return nil
		},
		encode: func(out *Output) ([]keyPair, error) {
			return encodeTapBip32(out.TapBip32Derivation)
		},
	},

	bytesField("value_commitment", prop(OutputValueCommitment), 33,
		func(out *Output) *[]byte { return &out.ValueCommitment }),
	bytesField("asset", prop(OutputAsset), 32,
		func(out *Output) *[]byte { return &out.Asset }),
	bytesField("asset_commitment", prop(OutputAssetCommitment), 33,
		func(out *Output) *[]byte { return &out.AssetCommitment }),
	bytesField("value_rangeproof", prop(OutputValueRangeproof), 0,
		func(out *Output) *[]byte { return &out.ValueRangeproof }),
	bytesField("asset_surjection_proof", prop(OutputAssetSurjectionProof), 0,
		func(out *Output) *[]byte { return &out.AssetSurjectionProof }),
	field[Output]{
		name: "blinding_pubkey",
		key:  prop(OutputBlindingPubkey),
		decode: func(out *Output, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if _, err := btcec.ParsePubKey(value); err != nil {
				return err
			}
			out.BlindingPubkey = cloneBytes(value)
			return nil
		},
		encode: func(out *Output) ([]keyPair, error) {
			if out.BlindingPubkey == nil {
				return nil, nil
			}
			return []keyPair{{value: out.BlindingPubkey}}, nil
		},
	},
	bytesField("ecdh_pubkey", prop(OutputEcdhPubkey), 33,
		func(out *Output) *[]byte { return &out.EcdhPubkey }),
	optUint32Field("blinder_index", prop(OutputBlinderIndex),
		func(out *Output) **uint32 { return &out.BlinderIndex }),
	bytesField("blind_value_proof", prop(OutputBlindValueProof), 0,
		func(out *Output) *[]byte { return &out.BlindValueProof }),
	bytesField("blind_asset_proof", prop(OutputBlindAssetProof), 0,
		func(out *Output) *[]byte { return &out.BlindAssetProof }),
)

func preimageField(name string, key fieldKey, hashLen int, sum func([]byte) []byte,
	get func(*Input) *[]Preimage) field[Input] {

	return field[Input]{
		name: name,
		key:  key,
		decode: func(in *Input, keyData, value []byte) error {
			if len(keyData) != hashLen {
				return fmt.Errorf("hash must be %d bytes, got %d", hashLen, len(keyData))
			}
			if !bytes.Equal(sum(value), keyData) {
				return fmt.Errorf("preimage does not match hash")
			}
			*get(in) = append(*get(in), Preimage{Hash: cloneBytes(keyData), Preimage: cloneBytes(value)})
			return nil
		},
		encode: func(in *Input) ([]keyPair, error) {
			var pairs []keyPair
			for _, p := range *get(in) {
				pairs = append(pairs, keyPair{keyData: p.Hash, value: p.Preimage})
			}
			return pairs, nil
		},
	}
}

func decodeBip32(keyData, value []byte) (*psbt.Bip32Derivation, error) {
	if _, err := btcec.ParsePubKey(keyData); err != nil {
		return nil, fmt.Errorf("pubkey: %w", err)
	}
	fp, path, err := psbt.ReadBip32Derivation(value)
	if err != nil {
		return nil, err
	}
	return &psbt.Bip32Derivation{
		PubKey:               cloneBytes(keyData),
		MasterKeyFingerprint: fp,
		Bip32Path:            path,
	}, nil
}

func encodeBip32(ds []*psbt.Bip32Derivation) []keyPair {
	var pairs []keyPair
	for _, d := range ds {
		pairs = append(pairs, keyPair{
			keyData: d.PubKey,
			value:   psbt.SerializeBIP32Derivation(d.MasterKeyFingerprint, d.Bip32Path),
		})
	}
	return pairs
}

func decodeTapBip32(keyData, value []byte) (*psbt.TaprootBip32Derivation, error) {
	if _, err := schnorr.ParsePubKey(keyData); err != nil {
		return nil, fmt.Errorf("xonly pubkey: %w", err)
	}
	return psbt.ReadTaprootBip32Derivation(cloneBytes(keyData), value)
}

func encodeTapBip32(ds []*psbt.TaprootBip32Derivation) ([]keyPair, error) {
	var pairs []keyPair
	for _, d := range ds {
		v, err := psbt.SerializeTaprootBip32Derivation(d)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, keyPair{keyData: d.XOnlyPubKey, value: v})
	}
	return pairs, nil
}

// Tap tree value: (depth u8 || leaf version u8 || varslice script)*
func decodeTapTree(b []byte) ([]TapLeaf, error) {
	r := bytes.NewReader(b)
	var leaves []TapLeaf
	for r.Len() > 0 {
		depth, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		version, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if depth > maxTapTreeDepth {
			return nil, fmt.Errorf("leaf depth %d too large", depth)
		}
		script, err := wire.ReadVarBytes(r, 0, maxValueLen, "leaf script")
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, TapLeaf{
			Depth:       depth,
			LeafVersion: txscript.TapscriptLeafVersion(version),
			Script:      script,
		})
	}
	if len(leaves) == 0 {
		return nil, fmt.Errorf("empty tap tree")
	}
	return leaves, nil
}

func encodeTapTree(leaves []TapLeaf) ([]byte, error) {
	var buf bytes.Buffer
	for _, l := range leaves {
		buf.WriteByte(l.Depth)
		buf.WriteByte(byte(l.LeafVersion))
		if err := wire.WriteVarBytes(&buf, 0, l.Script); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func checkSchnorrSig(b []byte) error {
	switch len(b) {
	case 64:
	case 65:
		if b[64] == byte(txscript.SigHashDefault) {
			return fmt.Errorf("explicit default sighash byte")
		}
	default:
		return fmt.Errorf("schnorr signature must be 64 or 65 bytes, got %d", len(b))
	}
	_, err := schnorr.ParseSignature(b[:64])
	return err
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func ripemd160Sum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}

func leBytes64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

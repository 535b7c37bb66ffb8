package pset

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/vulpemventures/go-elements/transaction"
)

// UnsignedTx builds the transaction the PSET describes, without final
// scripts or witnesses.
func (p *Pset) UnsignedTx() (*transaction.Transaction, error) {
	tx := transaction.NewTx(int32(p.Global.TxVersion))
	tx.Locktime = p.Locktime()

	for _, in := range p.Inputs {
		txIn := transaction.NewTxInput(cloneBytes(in.PreviousTxid), in.PreviousTxIndex)
		txIn.Sequence = in.Sequence
		txIn.IsPegin = in.IsPegin()
		if in.HasIssuance() {
			txIn.Issuance = &transaction.TxIssuance{
				AssetBlindingNonce: padTo32(in.IssuanceBlindingNonce),
				AssetEntropy:       padTo32(in.IssuanceAssetEntropy),
				AssetAmount:        issuanceAmount(in.IssuanceValueCommitment, in.IssuanceValue),
				TokenAmount:        issuanceAmount(in.IssuanceInflationKeysCommitment, in.IssuanceInflationKeys),
			}
			txIn.IssuanceRangeProof = cloneBytes(in.IssuanceValueRangeproof)
			txIn.InflationRangeProof = cloneBytes(in.IssuanceInflationKeysRangeproof)
		}
		tx.Inputs = append(tx.Inputs, txIn)
	}

	for _, out := range p.Outputs {
		txOut, err := out.TxOutput()
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, txOut)
	}
	return tx, nil
}

func issuanceAmount(commitment []byte, value uint64) []byte {
	switch {
	case commitment != nil:
		return cloneBytes(commitment)
	case value > 0:
		return ExplicitValue(value)
	}
	return []byte{0x00}
}

func padTo32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out, b)
	return out
}

// InputPreimage returns the signature hash of input index under
// sighashType.
//
// Taproot inputs use the Elements taproot sighash, which commits to every
// spent output and to genesisHash; leafHash selects a script path spend.
// Other inputs are classified by their spent script: P2SH resolves to the
// redeem script, P2WPKH and P2WSH (native or nested) use the segwit v0
// sighash, and anything else the legacy one.
func (p *Pset) InputPreimage(index int, sighashType txscript.SigHashType,
	genesisHash, leafHash *chainhash.Hash) (chainhash.Hash, error) {

	in, err := p.Input(index)
	if err != nil {
		return chainhash.Hash{}, err
	}
	utxo, err := in.Utxo()
	if err != nil {
		return chainhash.Hash{}, &SighashError{InputIndex: index, Message: "missing utxo", Cause: err}
	}
	tx, err := p.UnsignedTx()
	if err != nil {
		return chainhash.Hash{}, &SighashError{InputIndex: index, Message: "build transaction", Cause: err}
	}

	if txscript.IsPayToTaproot(utxo.Script) {
		return p.taprootPreimage(tx, index, sighashType, genesisHash, leafHash)
	}

	script := utxo.Script
	if txscript.IsPayToScriptHash(script) {
		if in.RedeemScript == nil {
			return chainhash.Hash{}, &SighashError{InputIndex: index, Message: "p2sh input without redeem script"}
		}
		script = in.RedeemScript
	}

	var h chainhash.Hash
	switch {
	case txscript.IsPayToWitnessPubKeyHash(script):
		code, err := p2pkhScript(script[2:])
		if err != nil {
			return chainhash.Hash{}, &SighashError{InputIndex: index, Message: "script code", Cause: err}
		}
		h = tx.HashForWitnessV0(index, code, utxo.Value, sighashType)
	case txscript.IsPayToWitnessScriptHash(script):
		if in.WitnessScript == nil {
			return chainhash.Hash{}, &SighashError{InputIndex: index, Message: "p2wsh input without witness script"}
		}
		h = tx.HashForWitnessV0(index, in.WitnessScript, utxo.Value, sighashType)
	default:
		h, err = tx.HashForSignature(index, script, sighashType)
		if err != nil {
			return chainhash.Hash{}, &SighashError{InputIndex: index, Message: "legacy", Cause: err}
		}
	}
	return h, nil
}

func (p *Pset) taprootPreimage(tx *transaction.Transaction, index int,
	sighashType txscript.SigHashType, genesisHash, leafHash *chainhash.Hash) (chainhash.Hash, error) {

	if genesisHash == nil {
		return chainhash.Hash{}, &SighashError{InputIndex: index, Message: "taproot sighash needs the genesis block hash"}
	}
	n := len(p.Inputs)
	scripts := make([][]byte, n)
	assets := make([][]byte, n)
	values := make([][]byte, n)
	for i, in := range p.Inputs {
		utxo, err := in.Utxo()
		if err != nil {
			return chainhash.Hash{}, &SighashError{InputIndex: index,
				Message: "taproot sighash needs every spent output", Cause: err}
		}
		scripts[i] = utxo.Script
		assets[i] = utxo.Asset
		values[i] = utxo.Value
	}
	return tx.HashForWitnessV1(index, scripts, assets, values, sighashType,
		genesisHash, leafHash, nil), nil
}

func p2pkhScript(pubKeyHash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

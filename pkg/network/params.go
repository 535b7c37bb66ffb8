// Package network defines the chain parameters that partially signed
// Elements transactions depend on.
//
// Only two values leak into the PSET workflow: the genesis block hash,
// which Taproot signature hashes commit to, and the policy asset, which
// pays fees. The rest of a network (address prefixes, key versions) comes
// from go-elements and is exposed through Chain.
package network

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/vulpemventures/go-elements/network"
)

// Params identifies an Elements based network.
type Params struct {
	Name             string         // Human readable network name
	GenesisBlockHash chainhash.Hash // Committed to by Taproot sighashes
	AssetID          string         // Policy asset id, display (reversed) hex
	Chain            *network.Network
}

// go-elements carries no genesis hashes, so they are kept here.

// Liquid is the Liquid mainnet.
var Liquid = newParams("liquid", &network.Liquid,
	"1466275836220db2944ca059a3a10ef6fd2ea684b0688d2c379296888a206003")

// Testnet is the Liquid testnet.
var Testnet = newParams("testnet", &network.Testnet,
	"a771da8e52ee6ad581ed1e9a99825e5b3b7992225534eaa2ae23244fe26ab1c1")

// Regtest is the default elementsd regtest network.
var Regtest = newParams("regtest", &network.Regtest,
	"00902a6b70c2ca83b5d9c815d96a0e2f4202179316970d14ea1847dae5b1ca21")

func newParams(name string, chain *network.Network, genesis string) Params {
	return Params{
		Name:             name,
		GenesisBlockHash: mustHash(genesis),
		AssetID:          chain.AssetID,
		Chain:            chain,
	}
}

// PolicyAsset returns the policy asset id in internal byte order.
func (p *Params) PolicyAsset() []byte {
	h, err := chainhash.NewHashFromStr(p.AssetID)
	if err != nil {
		return nil
	}
	return h.CloneBytes()
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

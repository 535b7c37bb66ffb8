package roles

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/suffix-labs/elements-pset/pkg/network"
	"github.com/suffix-labs/elements-pset/pkg/pset"
)

// defaultRangeProofBits covers every amount up to 2^52, which is more than
// the 21M * 1e8 policy asset supply.
const defaultRangeProofBits = 52

// ErrNoAddressDecoder is returned when an output is given by address but no
// AddressDecoder was configured.
var ErrNoAddressDecoder = errors.New("no address decoder configured")

// AddressDecoder converts addresses to output scripts. Address encodings
// (base58, bech32, blech32) live outside this module; callers plug in the
// decoder of their network.
type AddressDecoder interface {
	// ToOutputScript returns the scriptPubKey the address pays to.
	ToOutputScript(address string) ([]byte, error)

	// IsConfidential reports whether the address embeds a blinding key.
	IsConfidential(address string) bool

	// BlindingPubKey returns the 33 byte blinding key of a confidential
	// address.
	BlindingPubKey(address string) ([]byte, error)
}

type config struct {
	txVersion        uint32
	fallbackLocktime *uint32
	addressDecoder   AddressDecoder
	network          *network.Params
	rangeProofBits   uint8
	rand             io.Reader
}

// Option configures a role.
type Option func(*config)

// WithFallbackLocktime sets the locktime used when no input requires one.
func WithFallbackLocktime(locktime uint32) Option {
	return func(c *config) {
		c.fallbackLocktime = &locktime
	}
}

// WithTxVersion sets the version of the unsigned transaction. It must be
// at least 2.
func WithTxVersion(version uint32) Option {
	return func(c *config) {
		c.txVersion = version
	}
}

// WithAddressDecoder lets outputs and issuances be given by address.
func WithAddressDecoder(d AddressDecoder) Option {
	return func(c *config) {
		c.addressDecoder = d
	}
}

// WithNetwork selects the network whose genesis hash taproot sighashes
// commit to. Defaults to Liquid.
func WithNetwork(params *network.Params) Option {
	return func(c *config) {
		c.network = params
	}
}

// WithRangeProofBits sets the minimum width of generated range proofs.
func WithRangeProofBits(bits uint8) Option {
	return func(c *config) {
		c.rangeProofBits = bits
	}
}

// WithRandReader replaces crypto/rand as the source of blinders, ephemeral
// keys and proof seeds. Only tests should need it.
func WithRandReader(r io.Reader) Option {
	return func(c *config) {
		c.rand = r
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		txVersion:      pset.MinTxVersion,
		network:        &network.Liquid,
		rangeProofBits: defaultRangeProofBits,
		rand:           rand.Reader,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c *config) randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.rand, b); err != nil {
		return nil, err
	}
	return b, nil
}

// outputScript resolves the script of an output given by address.
func (c *config) outputScript(address string) (script, blindingKey []byte, err error) {
	if c.addressDecoder == nil {
		return nil, nil, ErrNoAddressDecoder
	}
	script, err = c.addressDecoder.ToOutputScript(address)
	if err != nil {
		return nil, nil, err
	}
	if c.addressDecoder.IsConfidential(address) {
		blindingKey, err = c.addressDecoder.BlindingPubKey(address)
		if err != nil {
			return nil, nil, err
		}
	}
	return script, blindingKey, nil
}

package confidential

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Scalar offsets.
//
// A leg (input, issuance or output) with value v, asset blinder a and
// value blinder r contributes v*a + r to the blinding factor of its
// commitment: C = v*(H + a*G) + r*G = v*H + (v*a + r)*G. The sums of these
// offsets over inputs and outputs must match for the commitments to
// balance. All values are 32 byte big endian scalars modulo the curve
// order.

// ZeroScalar returns the 32 byte additive identity.
func ZeroScalar() []byte {
	return make([]byte, 32)
}

// IsZeroScalar reports whether b is all zero.
func IsZeroScalar(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func orZero(b []byte) []byte {
	if len(b) == 0 {
		return ZeroScalar()
	}
	return b
}

// ComputeAndAddToScalarOffset returns scalar + value*assetBlinder + valueBlinder.
func ComputeAndAddToScalarOffset(scalar []byte, value uint64,
	assetBlinder, valueBlinder []byte) ([]byte, error) {

	if len(scalar) == 0 {
		scalar = ZeroScalar()
	}
	if IsZeroScalar(assetBlinder) && IsZeroScalar(valueBlinder) {
		return cloneBytes(scalar), nil
	}
	acc, err := parseScalar(scalar)
	if err != nil {
		return nil, fmt.Errorf("scalar offset: %w", err)
	}
	a, err := parseScalar(orZero(assetBlinder))
	if err != nil {
		return nil, fmt.Errorf("asset blinder: %w", err)
	}
	r, err := parseScalar(orZero(valueBlinder))
	if err != nil {
		return nil, fmt.Errorf("value blinder: %w", err)
	}

	var term secp256k1.ModNScalar
	term.Mul2(a, scalarFromUint64(value)).Add(r)
	acc.Add(&term)
	return scalarBytes(acc), nil
}

// AddScalars returns a + b.
func AddScalars(a, b []byte) ([]byte, error) {
	if IsZeroScalar(b) {
		return cloneBytes(a), nil
	}
	if IsZeroScalar(a) {
		return cloneBytes(b), nil
	}
	sa, err := parseScalar(a)
	if err != nil {
		return nil, err
	}
	sb, err := parseScalar(b)
	if err != nil {
		return nil, err
	}
	return scalarBytes(sa.Add(sb)), nil
}

// SubtractScalars returns a - b.
func SubtractScalars(a, b []byte) ([]byte, error) {
	if IsZeroScalar(b) {
		return cloneBytes(a), nil
	}
	sa, err := parseScalar(a)
	if err != nil {
		return nil, err
	}
	sb, err := parseScalar(b)
	if err != nil {
		return nil, err
	}
	var negB secp256k1.ModNScalar
	negB.NegateVal(sb)
	return scalarBytes(sa.Add(&negB)), nil
}

func parseScalar(b []byte) (*secp256k1.ModNScalar, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("scalar must be 32 bytes, got %d", len(b))
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b); overflow {
		return nil, errors.New("scalar overflows the group order")
	}
	return &s, nil
}

func scalarFromUint64(v uint64) *secp256k1.ModNScalar {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	var s secp256k1.ModNScalar
	s.SetByteSlice(b[:])
	return &s
}

func scalarBytes(s *secp256k1.ModNScalar) []byte {
	b := s.Bytes()
	return b[:]
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

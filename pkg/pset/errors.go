// Package pset error types.
//
// Typed errors carry the location of the failure (scope, index, field) so
// callers can report which part of a PSET was rejected. Conditions a caller
// is expected to branch on are exported as sentinels and wrapped by the
// typed errors, so errors.Is works through them.
package pset

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidMagic           = errors.New("invalid magic bytes")
	ErrInvalidPsetVersion     = errors.New("pset version must be 2")
	ErrInvalidTxVersion       = errors.New("tx version must be at least 2")
	ErrDuplicateKey           = errors.New("duplicate key")
	ErrDuplicateInput         = errors.New("input already spends this outpoint")
	ErrInputsNotModifiable    = errors.New("inputs are not modifiable")
	ErrOutputsNotModifiable   = errors.New("outputs are not modifiable")
	ErrLocktimeConflict       = errors.New("input locktime conflicts with existing signatures")
	ErrResidualScalars        = errors.New("global scalars left on a fully blinded pset")
	ErrOutputNotFullyBlinded  = errors.New("output is not fully blinded")
	ErrIssuanceAlreadyPresent = errors.New("input already has an issuance")
	ErrMissingUtxo            = errors.New("input has no utxo")
	ErrIncomplete             = errors.New("pset is not complete")
	ErrInputFinalized         = errors.New("input is finalized")
)

// ParseError is returned when the PSET bytes cannot be decoded.
//
// Scope is one of "global", "input" or "output". Index is only meaningful
// for inputs and outputs.
type ParseError struct {
	Scope   string
	Index   int
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	where := e.Scope
	if e.Scope == scopeInput || e.Scope == scopeOutput {
		where = fmt.Sprintf("%s %d", e.Scope, e.Index)
	}
	if where == "" {
		where = "pset"
	}
	if e.Cause != nil {
		return fmt.Sprintf("parse error in %s: %s: %v", where, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error in %s: %s", where, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// FieldError reports a malformed or inconsistent field.
type FieldError struct {
	Scope string // "global", "input" or "output"
	Index int    // Input or output index
	Field string // Field name, e.g. "issuance_value_commitment"
	Cause error
}

func (e *FieldError) Error() string {
	if e.Scope == scopeGlobal {
		return fmt.Sprintf("global field %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("%s %d field %s: %v", e.Scope, e.Index, e.Field, e.Cause)
}

func (e *FieldError) Unwrap() error { return e.Cause }

// IndexError is returned when an input or output index is out of range.
type IndexError struct {
	Scope string
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.Scope, e.Index, e.Count)
}

// SighashError is returned when a signature hash cannot be computed.
type SighashError struct {
	InputIndex int
	Message    string
	Cause      error
}

func (e *SighashError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sighash error at input %d: %s: %v", e.InputIndex, e.Message, e.Cause)
	}
	return fmt.Sprintf("sighash error at input %d: %s", e.InputIndex, e.Message)
}

func (e *SighashError) Unwrap() error { return e.Cause }

// SignatureError is returned when a signature is rejected.
type SignatureError struct {
	InputIndex int
	Message    string
	Cause      error
}

func (e *SignatureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("signature error at input %d: %s: %v", e.InputIndex, e.Message, e.Cause)
	}
	return fmt.Sprintf("signature error at input %d: %s", e.InputIndex, e.Message)
}

func (e *SignatureError) Unwrap() error { return e.Cause }

// BlindingError is returned by the blinding roles. Index is -1 when the
// failure is not tied to a single input or output.
type BlindingError struct {
	Code    string
	Index   int
	Message string
	Cause   error
}

func (e *BlindingError) Error() string {
	msg := fmt.Sprintf("blinding error [%s]", e.Code)
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s at index %d", msg, e.Index)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BlindingError) Unwrap() error { return e.Cause }

// FinalizationError is returned by the finalizer and extractor.
type FinalizationError struct {
	Code       string
	InputIndex int
	Message    string
	Cause      error
}

func (e *FinalizationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("finalization error [%s] at input %d: %s: %v",
			e.Code, e.InputIndex, e.Message, e.Cause)
	}
	return fmt.Sprintf("finalization error [%s] at input %d: %s", e.Code, e.InputIndex, e.Message)
}

func (e *FinalizationError) Unwrap() error { return e.Cause }

// CombineError is returned when two PSETs cannot be merged.
type CombineError struct {
	Message string
	Cause   error
}

func (e *CombineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("combine error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("combine error: %s", e.Message)
}

func (e *CombineError) Unwrap() error { return e.Cause }

// Error codes used by BlindingError and FinalizationError.
const (
	CodeInvalidInput      = "INVALID_INPUT"      // Caller supplied data is malformed
	CodeMissingBlinder    = "MISSING_BLINDER"    // No owned input or blinder for a leg
	CodeInvalidProof      = "INVALID_PROOF"      // A proof failed to verify
	CodeProofFailed       = "PROOF_FAILED"       // A proof could not be produced
	CodeNotOwner          = "NOT_OWNER"          // Output is not assigned to this blinder
	CodeUnbalanced        = "UNBALANCED"         // Scalars do not sum to zero
	CodeIncomplete        = "INCOMPLETE"         // Missing signatures or scripts
	CodeUnsupportedScript = "UNSUPPORTED_SCRIPT" // Script type cannot be finalized
)

const (
	scopeGlobal = "global"
	scopeInput  = "input"
	scopeOutput = "output"
)

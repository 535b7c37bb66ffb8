package pset

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Pset is a partially signed Elements transaction.
//
// Roles never mutate a Pset in place: they go through Update, which applies
// the change to a copy and only swaps it in when the copy passes
// SanityCheck. A Pset is not safe for concurrent mutation.
type Pset struct {
	Global  *Global
	Inputs  []*Input
	Outputs []*Output
}

// New returns an empty PSET v2. Inputs and outputs start out modifiable.
func New(txVersion uint32, fallbackLocktime *uint32) (*Pset, error) {
	p := &Pset{
		Global: &Global{
			TxVersion:    txVersion,
			TxModifiable: InputsModifiable | OutputsModifiable,
			Version:      Version,
		},
	}
	if fallbackLocktime != nil {
		v := *fallbackLocktime
		p.Global.FallbackLocktime = &v
	}
	if err := p.SanityCheck(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFromBuffer parses a serialized PSET and checks its invariants.
func NewFromBuffer(r io.Reader) (*Pset, error) {
	p, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := p.SanityCheck(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFromBytes parses a serialized PSET held in memory. Trailing bytes are
// rejected.
func NewFromBytes(b []byte) (*Pset, error) {
	r := bytes.NewReader(b)
	p, err := NewFromBuffer(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, &ParseError{Message: fmt.Sprintf("%d trailing bytes", r.Len())}
	}
	return p, nil
}

// NewFromBase64 parses a base64 encoded PSET.
func NewFromBase64(s string) (*Pset, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &ParseError{Message: "invalid base64", Cause: err}
	}
	return NewFromBytes(b)
}

// NewFromHex parses a hex encoded PSET.
func NewFromHex(s string) (*Pset, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &ParseError{Message: "invalid hex", Cause: err}
	}
	return NewFromBytes(b)
}

func decode(r io.Reader) (*Pset, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, &ParseError{Message: "read magic", Cause: err}
	}
	if !bytes.Equal(magic, Magic) {
		return nil, &ParseError{Message: fmt.Sprintf("magic %x", magic), Cause: ErrInvalidMagic}
	}

	p := &Pset{Global: &Global{}}
	if err := globalFields.decode(r, p.Global, &p.Global.Unknowns, scopeGlobal, 0); err != nil {
		return nil, err
	}
	if p.Global.Version != Version {
		return nil, &ParseError{Scope: scopeGlobal, Message: fmt.Sprintf("version %d", p.Global.Version),
			Cause: ErrInvalidPsetVersion}
	}

	for i := uint64(0); i < p.Global.InputCount; i++ {
		in := &Input{}
		if err := inputFields.decode(r, in, &in.Unknowns, scopeInput, int(i)); err != nil {
			return nil, err
		}
		p.Inputs = append(p.Inputs, in)
	}
	for i := uint64(0); i < p.Global.OutputCount; i++ {
		out := &Output{}
		if err := outputFields.decode(r, out, &out.Unknowns, scopeOutput, int(i)); err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, out)
	}
	return p, nil
}

// Serialize writes the PSET in its binary form.
func (p *Pset) Serialize(w io.Writer) error {
	if _, err := w.Write(Magic); err != nil {
		return err
	}
	if err := globalFields.encode(w, p.Global, p.Global.Unknowns, scopeGlobal, 0); err != nil {
		return err
	}
	for i, in := range p.Inputs {
		if err := inputFields.encode(w, in, in.Unknowns, scopeInput, i); err != nil {
			return err
		}
	}
	for i, out := range p.Outputs {
		if err := outputFields.encode(w, out, out.Unknowns, scopeOutput, i); err != nil {
			return err
		}
	}
	return nil
}

// ToBuffer returns the binary form of the PSET.
func (p *Pset) ToBuffer() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToBase64 returns the base64 form of the PSET.
func (p *Pset) ToBase64() (string, error) {
	b, err := p.ToBuffer()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// ToHex returns the hex form of the PSET.
func (p *Pset) ToHex() (string, error) {
	b, err := p.ToBuffer()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Copy returns a deep copy of the PSET. The copy goes through the codec, so
// it carries exactly what a serialized PSET would.
func (p *Pset) Copy() (*Pset, error) {
	var buf bytes.Buffer
	if err := p.Serialize(&buf); err != nil {
		return nil, err
	}
	return decode(&buf)
}

// Update applies fn to a copy of the PSET and swaps the result in only if
// fn succeeds and the result passes both the field checks of the codec and
// SanityCheck. On error p is unchanged.
func (p *Pset) Update(fn func(*Pset) error) error {
	c, err := p.Copy()
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	checked, err := c.Copy()
	if err != nil {
		return err
	}
	if err := checked.SanityCheck(); err != nil {
		return err
	}
	*p = *checked
	return nil
}

// InputsModifiable reports whether inputs may still be added.
func (p *Pset) InputsModifiable() bool {
	return p.Global.TxModifiable.Has(InputsModifiable)
}

// OutputsModifiable reports whether outputs may still be added.
func (p *Pset) OutputsModifiable() bool {
	return p.Global.TxModifiable.Has(OutputsModifiable)
}

// HasSighashSingle reports whether some input was signed with
// SIGHASH_SINGLE.
func (p *Pset) HasSighashSingle() bool {
	return p.Global.TxModifiable.Has(HasSighashSingle)
}

// AddInput appends an input. It fails when inputs are locked, when the
// outpoint is already spent by another input, or when the input's
// locktime requirement would change the locktime of already signed inputs.
// AddInput leaves p unchanged on error.
func (p *Pset) AddInput(in *Input) error {
	if !p.InputsModifiable() {
		return ErrInputsNotModifiable
	}
	index := len(p.Inputs)
	if err := in.sanityCheck(index); err != nil {
		return err
	}
	for _, other := range p.Inputs {
		if other.samePrevout(in) {
			return &FieldError{Scope: scopeInput, Index: index, Field: "previous_txid",
				Cause: ErrDuplicateInput}
		}
	}

	if in.RequiredTimeLocktime != 0 || in.RequiredHeightLocktime != 0 {
		current := p.Locktime()
		next := locktime(append(p.Inputs[:len(p.Inputs):len(p.Inputs)], in), p.Global.FallbackLocktime)
		if next != current && p.HasSignatures() {
			return ErrLocktimeConflict
		}
	}

	p.Inputs = append(p.Inputs, in)
	p.Global.InputCount++
	log.Debugf("Added input %d spending %x:%d", index, in.PreviousTxid, in.PreviousTxIndex)
	return nil
}

// AddOutput appends an output. It fails when outputs are locked.
func (p *Pset) AddOutput(out *Output) error {
	if !p.OutputsModifiable() {
		return ErrOutputsNotModifiable
	}
	if err := out.sanityCheck(len(p.Outputs)); err != nil {
		return err
	}
	p.Outputs = append(p.Outputs, out)
	p.Global.OutputCount++
	log.Debugf("Added output %d", len(p.Outputs)-1)
	return nil
}

// Locktime returns the transaction locktime: the max required height
// locktime if any input sets one, else the max required time locktime,
// else the fallback locktime (zero when unset).
func (p *Pset) Locktime() uint32 {
	return locktime(p.Inputs, p.Global.FallbackLocktime)
}

func locktime(inputs []*Input, fallback *uint32) uint32 {
	var height, time uint32
	for _, in := range inputs {
		height = max(height, in.RequiredHeightLocktime)
		time = max(time, in.RequiredTimeLocktime)
	}
	switch {
	case height > 0:
		return height
	case time > 0:
		return time
	case fallback != nil:
		return *fallback
	}
	return 0
}

// HasSignatures reports whether any input carries a signature.
func (p *Pset) HasSignatures() bool {
	for _, in := range p.Inputs {
		if in.HasSignatures() {
			return true
		}
	}
	return false
}

// NeedsBlinding reports whether any output carries a blinding pubkey.
func (p *Pset) NeedsBlinding() bool {
	for _, out := range p.Outputs {
		if out.NeedsBlinding() {
			return true
		}
	}
	return false
}

// IsFullyBlinded reports whether every output that needs blinding is
// blinded. A PSET with nothing to blind is not fully blinded.
func (p *Pset) IsFullyBlinded() bool {
	if !p.NeedsBlinding() {
		return false
	}
	for _, out := range p.Outputs {
		if out.NeedsBlinding() && !out.IsFullyBlinded() {
			return false
		}
	}
	return true
}

// IsComplete reports whether every input is finalized.
func (p *Pset) IsComplete() bool {
	for _, in := range p.Inputs {
		if !in.IsFinalized() {
			return false
		}
	}
	return true
}

// SanityCheck validates the cross-field invariants of the PSET.
func (p *Pset) SanityCheck() error {
	g := p.Global
	if g == nil {
		return &ParseError{Message: "missing global map"}
	}
	if g.Version != Version {
		return ErrInvalidPsetVersion
	}
	if g.TxVersion < MinTxVersion {
		return fmt.Errorf("tx version %d: %w", g.TxVersion, ErrInvalidTxVersion)
	}
	if g.InputCount != uint64(len(p.Inputs)) {
		return &FieldError{Scope: scopeGlobal, Field: "input_count",
			Cause: fmt.Errorf("count %d with %d inputs", g.InputCount, len(p.Inputs))}
	}
	if g.OutputCount != uint64(len(p.Outputs)) {
		return &FieldError{Scope: scopeGlobal, Field: "output_count",
			Cause: fmt.Errorf("count %d with %d outputs", g.OutputCount, len(p.Outputs))}
	}

	seen := make(map[string]int, len(p.Inputs))
	for i, in := range p.Inputs {
		if err := in.sanityCheck(i); err != nil {
			return err
		}
		key := fmt.Sprintf("%x:%d", in.PreviousTxid, in.PreviousTxIndex)
		if j, dup := seen[key]; dup {
			return &FieldError{Scope: scopeInput, Index: i, Field: "previous_txid",
				Cause: fmt.Errorf("same outpoint as input %d: %w", j, ErrDuplicateInput)}
		}
		seen[key] = i
	}
	for i, out := range p.Outputs {
		if err := out.sanityCheck(i); err != nil {
			return err
		}
		if out.BlinderIndex != nil && int(*out.BlinderIndex) >= len(p.Inputs) {
			return &FieldError{Scope: scopeOutput, Index: i, Field: "blinder_index",
				Cause: &IndexError{Scope: scopeInput, Index: int(*out.BlinderIndex), Count: len(p.Inputs)}}
		}
	}

	if p.IsFullyBlinded() && len(g.Scalars) > 0 {
		return ErrResidualScalars
	}
	return nil
}

// Input returns input i or an IndexError.
func (p *Pset) Input(i int) (*Input, error) {
	if i < 0 || i >= len(p.Inputs) {
		return nil, &IndexError{Scope: scopeInput, Index: i, Count: len(p.Inputs)}
	}
	return p.Inputs[i], nil
}

// Output returns output i or an IndexError.
func (p *Pset) Output(i int) (*Output, error) {
	if i < 0 || i >= len(p.Outputs) {
		return nil, &IndexError{Scope: scopeOutput, Index: i, Count: len(p.Outputs)}
	}
	return p.Outputs[i], nil
}

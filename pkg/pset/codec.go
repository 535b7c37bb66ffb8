package pset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// Each map (global, input, output) is described by a table of field codecs.
// Decoding dispatches on the key type (or proprietary subtype), encoding
// walks the table in order, and anything the table does not know is kept
// verbatim in the record's Unknowns.

const (
	maxKeyLen   = 10_000
	maxValueLen = 4_000_000
)

var errUnexpectedKeyData = errors.New("unexpected key data")

type fieldKey struct {
	proprietary bool
	keyType     byte
}

func std(t byte) fieldKey  { return fieldKey{keyType: t} }
func prop(t byte) fieldKey { return fieldKey{proprietary: true, keyType: t} }

// keyPair is one encoded entry of a field, without its key type.
type keyPair struct {
	keyData []byte
	value   []byte
}

type field[T any] struct {
	name   string
	key    fieldKey
	decode func(rec *T, keyData, value []byte) error
	encode func(rec *T) ([]keyPair, error)
}

type fieldTable[T any] struct {
	fields []field[T]
	index  map[fieldKey]int
}

func newFieldTable[T any](fields ...field[T]) *fieldTable[T] {
	t := &fieldTable[T]{fields: fields, index: make(map[fieldKey]int, len(fields))}
	for i, f := range fields {
		if _, ok := t.index[f.key]; ok {
			panic(fmt.Sprintf("pset: field %s registered twice", f.name))
		}
		t.index[f.key] = i
	}
	return t
}

func (t *fieldTable[T]) decode(r io.Reader, rec *T, unknowns *[]*psbt.Unknown,
	scope string, index int) error {

	seen := make(map[string]struct{})
	for {
		key, value, err := readPair(r)
		if err != nil {
			return &ParseError{Scope: scope, Index: index, Message: "read key-value pair", Cause: err}
		}
		if key == nil {
			return nil
		}
		if _, dup := seen[string(key)]; dup {
			return &ParseError{Scope: scope, Index: index,
				Message: fmt.Sprintf("key %x", key), Cause: ErrDuplicateKey}
		}
		seen[string(key)] = struct{}{}

		if fk, keyData, ok := splitKey(key); ok {
			if i, found := t.index[fk]; found {
				f := t.fields[i]
				if err := f.decode(rec, keyData, value); err != nil {
					return &FieldError{Scope: scope, Index: index, Field: f.name, Cause: err}
				}
				continue
			}
		}
		*unknowns = append(*unknowns, &psbt.Unknown{Key: key, Value: value})
	}
}

func (t *fieldTable[T]) encode(w io.Writer, rec *T, unknowns []*psbt.Unknown,
	scope string, index int) error {

	for _, f := range t.fields {
		pairs, err := f.encode(rec)
		if err != nil {
			return &FieldError{Scope: scope, Index: index, Field: f.name, Cause: err}
		}
		for _, p := range pairs {
			if err := writePair(w, serializeKey(f.key, p.keyData), p.value); err != nil {
				return err
			}
		}
	}
	for _, u := range unknowns {
		if err := writePair(w, u.Key, u.Value); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{separator})
	return err
}

// readPair returns a nil key at the map separator.
func readPair(r io.Reader) ([]byte, []byte, error) {
	keyLen, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, nil, err
	}
	if keyLen == 0 {
		return nil, nil, nil
	}
	if keyLen > maxKeyLen {
		return nil, nil, fmt.Errorf("key length %d exceeds %d", keyLen, maxKeyLen)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, err
	}
	value, err := wire.ReadVarBytes(r, 0, maxValueLen, "value")
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

func writePair(w io.Writer, key, value []byte) error {
	if err := wire.WriteVarBytes(w, 0, key); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, 0, value)
}

// splitKey resolves a raw key to its table key and key data. Proprietary
// keys with a foreign identifier are reported as not ok.
func splitKey(key []byte) (fieldKey, []byte, bool) {
	if key[0] != ProprietaryType {
		return std(key[0]), key[1:], true
	}
	r := bytes.NewReader(key[1:])
	id, err := wire.ReadVarBytes(r, 0, maxKeyLen, "identifier")
	if err != nil || string(id) != ProprietaryIdentifier {
		return fieldKey{}, nil, false
	}
	subtype, err := wire.ReadVarInt(r, 0)
	if err != nil || subtype > 0xff {
		return fieldKey{}, nil, false
	}
	return prop(byte(subtype)), key[len(key)-r.Len():], true
}

func serializeKey(k fieldKey, keyData []byte) []byte {
	if !k.proprietary {
		return append([]byte{k.keyType}, keyData...)
	}
	var buf bytes.Buffer
	buf.WriteByte(ProprietaryType)
	_ = wire.WriteVarBytes(&buf, 0, []byte(ProprietaryIdentifier))
	// The subtype is a compact size, so 0xfd and above take three bytes.
	_ = wire.WriteVarInt(&buf, 0, uint64(k.keyType))
	buf.Write(keyData)
	return buf.Bytes()
}

// Field constructors for the common shapes.

func bytesField[T any](name string, key fieldKey, size int, get func(*T) *[]byte) field[T] {
	return field[T]{
		name: name,
		key:  key,
		decode: func(rec *T, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if size > 0 && len(value) != size {
				return fmt.Errorf("expected %d bytes, got %d", size, len(value))
			}
			*get(rec) = cloneBytes(value)
			return nil
		},
		encode: func(rec *T) ([]keyPair, error) {
			b := *get(rec)
			if b == nil {
				return nil, nil
			}
			if size > 0 && len(b) != size {
				return nil, fmt.Errorf("expected %d bytes, got %d", size, len(b))
			}
			return []keyPair{{value: b}}, nil
		},
	}
}

// uint32Field encodes a little endian u32. Zero is omitted unless always
// is set.
func uint32Field[T any](name string, key fieldKey, always bool, get func(*T) *uint32) field[T] {
	return field[T]{
		name: name,
		key:  key,
		decode: func(rec *T, keyData, value []byte) error {
			v, err := decodeUint32(keyData, value)
			if err != nil {
				return err
			}
			*get(rec) = v
			return nil
		},
		encode: func(rec *T) ([]keyPair, error) {
			v := *get(rec)
			if v == 0 && !always {
				return nil, nil
			}
			return []keyPair{{value: encodeUint32(v)}}, nil
		},
	}
}

func optUint32Field[T any](name string, key fieldKey, get func(*T) **uint32) field[T] {
	return field[T]{
		name: name,
		key:  key,
		decode: func(rec *T, keyData, value []byte) error {
			v, err := decodeUint32(keyData, value)
			if err != nil {
				return err
			}
			*get(rec) = &v
			return nil
		},
		encode: func(rec *T) ([]keyPair, error) {
			p := *get(rec)
			if p == nil {
				return nil, nil
			}
			return []keyPair{{value: encodeUint32(*p)}}, nil
		},
	}
}

// uint64Field encodes a little endian u64. Zero is omitted.
func uint64Field[T any](name string, key fieldKey, get func(*T) *uint64) field[T] {
	return field[T]{
		name: name,
		key:  key,
		decode: func(rec *T, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			if len(value) != 8 {
				return fmt.Errorf("expected 8 bytes, got %d", len(value))
			}
			*get(rec) = binary.LittleEndian.Uint64(value)
			return nil
		},
		encode: func(rec *T) ([]keyPair, error) {
			v := *get(rec)
			if v == 0 {
				return nil, nil
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], v)
			return []keyPair{{value: b[:]}}, nil
		},
	}
}

func varIntField[T any](name string, key fieldKey, get func(*T) *uint64) field[T] {
	return field[T]{
		name: name,
		key:  key,
		decode: func(rec *T, keyData, value []byte) error {
			if len(keyData) != 0 {
				return errUnexpectedKeyData
			}
			r := bytes.NewReader(value)
			v, err := wire.ReadVarInt(r, 0)
			if err != nil {
				return err
			}
			if r.Len() != 0 {
				return fmt.Errorf("%d trailing bytes", r.Len())
			}
			*get(rec) = v
			return nil
		},
		encode: func(rec *T) ([]keyPair, error) {
			var buf bytes.Buffer
			if err := wire.WriteVarInt(&buf, 0, *get(rec)); err != nil {
				return nil, err
			}
			return []keyPair{{value: buf.Bytes()}}, nil
		},
	}
}

func decodeUint32(keyData, value []byte) (uint32, error) {
	if len(keyData) != 0 {
		return 0, errUnexpectedKeyData
	}
	if len(value) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d", len(value))
	}
	return binary.LittleEndian.Uint32(value), nil
}

func encodeUint32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func readWitnessStack(b []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(b)
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if n > uint64(len(b)) {
		return nil, fmt.Errorf("witness item count %d exceeds data", n)
	}
	wit := make(wire.TxWitness, n)
	for i := range wit {
		if wit[i], err = wire.ReadVarBytes(r, 0, maxValueLen, "witness item"); err != nil {
			return nil, err
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after witness", r.Len())
	}
	return wit, nil
}

func serializeWitnessStack(wit wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := psbt.WriteTxWitness(&buf, wit); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package stableregion

import (
	"encoding/binary"
	"math"
	"sort"
)

// Encoder builds a canonical binary encoding: fixed field order, explicit
// lengths, and sorted map keys, so that two processes holding the same
// logical state produce byte-identical output. This is deliberately not
// encoding/gob, whose map iteration order is randomized per run and whose
// wire format is not guaranteed stable across type changes.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt64(v int64) {
	e.PutUint64(uint64(v))
}

func (e *Encoder) PutFloat32(v float32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// PutString writes a length-prefixed UTF-8 string.
func (e *Encoder) PutString(s string) {
	e.PutUint64(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBytes writes a length-prefixed raw byte slice.
func (e *Encoder) PutBytes(b []byte) {
	e.PutUint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// PutStringSlice writes a length-prefixed sequence of strings, in the given
// order. Callers that need set semantics must sort before calling.
func (e *Encoder) PutStringSlice(ss []string) {
	e.PutUint64(uint64(len(ss)))
	for _, s := range ss {
		e.PutString(s)
	}
}

// PutFloat32Slice writes a length-prefixed sequence of float32s.
func (e *Encoder) PutFloat32Slice(vs []float32) {
	e.PutUint64(uint64(len(vs)))
	for _, v := range vs {
		e.PutFloat32(v)
	}
}

// PutStringMap writes a length-prefixed string->string map with keys sorted
// lexicographically, so encoding is independent of Go's randomized map
// iteration order.
func (e *Encoder) PutStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.PutUint64(uint64(len(keys)))
	for _, k := range keys {
		e.PutString(k)
		e.PutString(m[k])
	}
}

// PutBoolSet writes a length-prefixed string->bool map (used for tag sets),
// keys sorted, only true entries retained.
func (e *Encoder) PutBoolSet(m map[string]bool) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	e.PutUint64(uint64(len(keys)))
	for _, k := range keys {
		e.PutString(k)
	}
}

// Decoder reads back values written by Encoder, in the same field order.
type Decoder struct {
	buf []byte
	pos int
	err error
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

func (d *Decoder) Err() error { return d.err }

func (d *Decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.pos+n > len(d.buf) {
		d.err = errShortBuffer
		return false
	}
	return true
}

func (d *Decoder) GetUint64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v
}

func (d *Decoder) GetInt64() int64 {
	return int64(d.GetUint64())
}

func (d *Decoder) GetFloat32() float32 {
	if !d.need(4) {
		return 0
	}
	v := math.Float32frombits(binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4]))
	d.pos += 4
	return v
}

func (d *Decoder) GetBool() bool {
	if !d.need(1) {
		return false
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v
}

func (d *Decoder) GetString() string {
	n := int(d.GetUint64())
	if n == 0 || !d.need(n) {
		return ""
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s
}

func (d *Decoder) GetBytes() []byte {
	n := int(d.GetUint64())
	if n == 0 || !d.need(n) {
		return nil
	}
	b := append([]byte(nil), d.buf[d.pos:d.pos+n]...)
	d.pos += n
	return b
}

func (d *Decoder) GetStringSlice() []string {
	n := int(d.GetUint64())
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, d.GetString())
	}
	return out
}

func (d *Decoder) GetFloat32Slice() []float32 {
	n := int(d.GetUint64())
	out := make([]float32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, d.GetFloat32())
	}
	return out
}

func (d *Decoder) GetStringMap() map[string]string {
	n := int(d.GetUint64())
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k := d.GetString()
		v := d.GetString()
		out[k] = v
	}
	return out
}

func (d *Decoder) GetBoolSet() map[string]bool {
	n := int(d.GetUint64())
	if n == 0 {
		return nil
	}
	out := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		out[d.GetString()] = true
	}
	return out
}

type shortBufferError struct{}

func (shortBufferError) Error() string { return "stableregion: short buffer during decode" }

var errShortBuffer = shortBufferError{}

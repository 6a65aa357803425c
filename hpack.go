package h2stream

import (
	"sync"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http2/hpack"
)

// Pseudo-header names, https://tools.ietf.org/html/rfc7540#section-8.1.2.3
var (
	PseudoHeaderMethod    = []byte(":method")
	PseudoHeaderScheme    = []byte(":scheme")
	PseudoHeaderAuthority = []byte(":authority")
	PseudoHeaderPath      = []byte(":path")
	PseudoHeaderStatus    = []byte(":status")
)

var headerFieldPool = sync.Pool{
	New: func() interface{} { return &HeaderField{} },
}

// AcquireHeaderField returns a pooled, reset HeaderField.
func AcquireHeaderField() *HeaderField {
	return headerFieldPool.Get().(*HeaderField)
}

// ReleaseHeaderField resets hf and returns it to the pool.
func ReleaseHeaderField(hf *HeaderField) {
	hf.Reset()
	headerFieldPool.Put(hf)
}

// HeaderField is one decoded (or to-be-encoded) header: a name/value pair
// plus the sensitivity bit HPACK uses to forbid it from ever entering a
// dynamic table (https://tools.ietf.org/html/rfc7541#section-7.1.3).
type HeaderField struct {
	key       []byte
	value     []byte
	sensitive bool
}

func (hf *HeaderField) Reset() {
	hf.key = hf.key[:0]
	hf.value = hf.value[:0]
	hf.sensitive = false
}

func (hf *HeaderField) Key() string {
	return string(hf.key)
}

func (hf *HeaderField) Value() string {
	return string(hf.value)
}

func (hf *HeaderField) KeyBytes() []byte {
	return hf.key
}

func (hf *HeaderField) ValueBytes() []byte {
	return hf.value
}

func (hf *HeaderField) SetKeyBytes(b []byte) {
	hf.key = append(hf.key[:0], b...)
}

func (hf *HeaderField) SetValueBytes(b []byte) {
	hf.value = append(hf.value[:0], b...)
}

func (hf *HeaderField) SetBytes(key, value []byte) {
	hf.SetKeyBytes(key)
	hf.SetValueBytes(value)
}

func (hf *HeaderField) Sensitive() bool {
	return hf.sensitive
}

func (hf *HeaderField) SetSensitive(value bool) {
	hf.sensitive = value
}

// IsPseudo reports whether this is a pseudo-header (name starts with ':').
func (hf *HeaderField) IsPseudo() bool {
	return len(hf.key) > 0 && hf.key[0] == ':'
}

// Size is the RFC 7541 section 4.1 dynamic-table accounting size: the
// length of the name and value in bytes plus 32 bytes of overhead.
func (hf *HeaderField) Size() uint32 {
	return uint32(len(hf.key) + len(hf.value) + 32)
}

// HPACK wraps golang.org/x/net/http2/hpack's Encoder/Decoder with the
// HeaderField surface this module's frames exchange headers through. A
// connection holds one HPACK per direction: headers must be encoded and
// decoded in the exact order they're sent, since both sides mutate the
// same dynamic table as they go (https://tools.ietf.org/html/rfc7541#section-2.1).
type HPACK struct {
	encBuf bytebufferpool.ByteBuffer
	enc    *hpack.Encoder
	dec    *hpack.Decoder

	fields []hpack.HeaderField
}

// NewHPACK returns a fresh encoder/decoder pair with the default table size.
func NewHPACK() *HPACK {
	hp := &HPACK{}
	hp.enc = hpack.NewEncoder(&hp.encBuf)
	hp.dec = hpack.NewDecoder(defaultHeaderTableSize, hp.onField)
	return hp
}

func (hp *HPACK) onField(f hpack.HeaderField) {
	hp.fields = append(hp.fields, f)
}

// SetMaxTableSize changes the dynamic table size limit used on this HPACK's
// encode or decode side (callers keep separate HPACK values per direction).
func (hp *HPACK) SetMaxTableSize(size int) {
	hp.enc.SetMaxDynamicTableSize(uint32(size))
	hp.dec.SetMaxDynamicTableSize(uint32(size))
}

// AppendHeaderField HPACK-encodes hf onto dst and returns the extended slice.
// store controls whether the field may be added to the dynamic table
// (sensitive fields are always encoded as never-indexed regardless).
func (hp *HPACK) AppendHeaderField(dst []byte, hf *HeaderField, store bool) []byte {
	hp.encBuf.Reset()

	_ = hp.enc.WriteField(hpack.HeaderField{
		Name:      hf.Key(),
		Value:     hf.Value(),
		Sensitive: hf.sensitive || !store,
	})

	return append(dst, hp.encBuf.Bytes()...)
}

// DecodeFull decodes every header field contained in the full (already
// CONTINUATION-reassembled) header block fragment b, calling emit for each
// in arrival order.
func (hp *HPACK) DecodeFull(b []byte, emit func(*HeaderField) error) error {
	hp.fields = hp.fields[:0]

	if _, err := hp.dec.Write(b); err != nil {
		return NewError(CompressionError, err.Error())
	}

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	for _, f := range hp.fields {
		hf.SetKeyBytes([]byte(f.Name))
		hf.SetValueBytes([]byte(f.Value))
		hf.SetSensitive(f.Sensitive)

		if err := emit(hf); err != nil {
			return err
		}
	}

	hp.fields = hp.fields[:0]

	return nil
}

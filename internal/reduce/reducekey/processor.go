// Package reducekey builds the canonical reduce key of a group from
// its group-by values.
package reducekey

import (
	"encoding/binary"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/cespare/xxhash"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/mgo.v2/bson"
)

type Mode int

const (
	// SingleValue folds every group-by value into the hash as one unit
	SingleValue Mode = iota
	// MultiValue folds every element of a collection value individually,
	// used to re-reduce already reduced values
	MultiValue
)

func (m Mode) String() string {
	if m == MultiValue {
		return "multi"
	}
	return "single"
}

// type tags of the canonical encoding
const (
	tagNull   byte = 0x00
	tagFalse  byte = 0x01
	tagTrue   byte = 0x02
	tagInt    byte = 0x03
	tagFloat  byte = 0x04
	tagString byte = 0x05
	tagBytes  byte = 0x06
	tagList   byte = 0x07
	tagObject byte = 0x08
	tagTime   byte = 0x09
	tagOther  byte = 0x0a
)

const hashSeed uint64 = 0xcbf29ce484222325

var otherEncMode, _ = cbor.CoreDetEncOptions().EncMode()

type HashFunc func([]byte) uint64

type Option func(*Processor)

// WithHash replaces the hash function used for every encoded unit.
func WithHash(fn HashFunc) Option {
	return func(p *Processor) {
		p.hashFn = fn
	}
}

// Processor serializes the group-by values of one group into a byte
// buffer and a hash. The buffer is reused after Reset.
type Processor struct {
	mode   Mode
	hashFn HashFunc
	buf    []byte
	hash   uint64
	fields int

	pool  *Pool
	inUse bool
}

func NewProcessor(mode Mode, opts ...Option) *Processor {
	p := &Processor{
		mode:   mode,
		hashFn: xxhash.Sum64,
		buf:    make([]byte, 0, 64),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Reset()
	return p
}

func (p *Processor) Mode() Mode {
	return p.mode
}

func (p *Processor) Reset() {
	p.buf = p.buf[:0]
	p.hash = hashSeed
	p.fields = 0
}

// Process adds the value of the next group-by field. Values have to be
// passed in the field order of the index definition.
func (p *Processor) Process(v interface{}) {
	p.fields++

	if p.mode == MultiValue {
		if rv, ok := listValue(v); ok {
			n := rv.Len()
			start := len(p.buf)
			p.buf = append(p.buf, tagList)
			p.buf = binary.AppendUvarint(p.buf, uint64(n))
			p.fold(start)
			for i := 0; i < n; i++ {
				start = len(p.buf)
				p.buf = appendValue(p.buf, rv.Index(i).Interface())
				p.fold(start)
			}
			return
		}
	}

	start := len(p.buf)
	p.buf = appendValue(p.buf, v)
	p.fold(start)
}

func (p *Processor) fold(start int) {
	p.hash = mix(p.hash, p.hashFn(p.buf[start:]))
}

// Key returns the key buffer, it is only valid until the next Reset.
func (p *Processor) Key() []byte {
	return p.buf
}

// KeyCopy returns a copy of the key buffer.
func (p *Processor) KeyCopy() []byte {
	return append([]byte(nil), p.buf...)
}

func (p *Processor) Hash() uint64 {
	return p.hash
}

// IsSet is false as long as no field was processed. A key with only
// null values is set.
func (p *Processor) IsSet() bool {
	return p.fields > 0
}

// Fields returns the number of processed fields.
func (p *Processor) Fields() int {
	return p.fields
}

// mix folds v into h, the result depends on the order of the calls.
func mix(h, v uint64) uint64 {
	h ^= v + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2)
	return h
}

func appendValue(buf []byte, v interface{}) []byte {
	switch t := v.(type) {
	case nil:
		return append(buf, tagNull)
	case bool:
		if t {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case string:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(t)))
		return append(buf, t...)
	case []byte:
		buf = append(buf, tagBytes)
		buf = binary.AppendUvarint(buf, uint64(len(t)))
		return append(buf, t...)
	case time.Time:
		buf = append(buf, tagTime)
		return binary.BigEndian.AppendUint64(buf, uint64(t.UnixNano()))
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Name] = e.Value
		}
		return appendObject(buf, m)
	case map[string]interface{}:
		return appendObject(buf, t)
	case bson.M:
		return appendObject(buf, t)
	}

	if i, f, isInt, ok := number(v); ok {
		if isInt {
			buf = append(buf, tagInt)
			return binary.BigEndian.AppendUint64(buf, uint64(i))
		}
		buf = append(buf, tagFloat)
		if math.IsNaN(f) {
			f = math.NaN()
		}
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(f))
	}

	if rv, ok := listValue(v); ok {
		n := rv.Len()
		buf = append(buf, tagList)
		buf = binary.AppendUvarint(buf, uint64(n))
		for i := 0; i < n; i++ {
			buf = appendValue(buf, rv.Index(i).Interface())
		}
		return buf
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return appendObject(buf, m)
	}
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return append(buf, tagNull)
		}
		return appendValue(buf, rv.Elem().Interface())
	}

	data, err := otherEncMode.Marshal(v)
	if err != nil {
		// only unencodable types like channels and funcs end up here
		panic("reducekey: unable to encode group by value of type " + rv.Type().String() + ": " + err.Error())
	}
	buf = append(buf, tagOther)
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

// appendObject encodes the properties ordered by name.
func appendObject[M ~map[string]interface{}](buf []byte, m M) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = append(buf, tagObject)
	buf = binary.AppendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)
		buf = appendValue(buf, m[k])
	}
	return buf
}

// number returns the canonical form of numeric values. Integral
// floats are treated as integers so 10 and 10.0 are the same key.
func number(v interface{}) (i int64, f float64, isInt bool, ok bool) {
	switch t := v.(type) {
	case int:
		return int64(t), 0, true, true
	case int8:
		return int64(t), 0, true, true
	case int16:
		return int64(t), 0, true, true
	case int32:
		return int64(t), 0, true, true
	case int64:
		return t, 0, true, true
	case uint:
		return unsignedNumber(uint64(t))
	case uint8:
		return int64(t), 0, true, true
	case uint16:
		return int64(t), 0, true, true
	case uint32:
		return int64(t), 0, true, true
	case uint64:
		return unsignedNumber(t)
	case float32:
		return floatNumber(float64(t))
	case float64:
		return floatNumber(t)
	}
	return 0, 0, false, false
}

func unsignedNumber(u uint64) (int64, float64, bool, bool) {
	if u <= math.MaxInt64 {
		return int64(u), 0, true, true
	}
	return 0, float64(u), false, true
}

func floatNumber(f float64) (int64, float64, bool, bool) {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), 0, true, true
	}
	return 0, f, false, true
}

// listValue returns the value as reflect value if it is a list, byte
// slices are not lists.
func listValue(v interface{}) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	switch v.(type) {
	case []byte, bson.D:
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv, true
	}
	return reflect.Value{}, false
}

package model

import (
	"encoding/hex"
	"strconv"

	"gopkg.in/mgo.v2/bson"
)

// MapOutput is one binary document emitted by a map function for a
// source document. The decoded form is created on first access.
type MapOutput struct {
	SourceID   string `bson:"source"`
	Collection string `bson:"collection"`
	Raw        []byte `bson:"raw"`
	// ReduceKey and ReduceKeyHash are set once the reduce key was computed.
	// The hash is not stored, bson has no uint64 and the aggregator
	// computes it again when the entry is grouped.
	ReduceKey     []byte `bson:"key"`
	ReduceKeyHash uint64 `bson:"-"`

	data map[string]interface{}
}

// NewMapOutput encodes the ordered fields into a binary document.
func NewMapOutput(sourceID, collection string, fields bson.D) (*MapOutput, error) {
	raw, err := bson.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &MapOutput{
		SourceID:   sourceID,
		Collection: collection,
		Raw:        raw,
	}, nil
}

// Data returns the decoded document, nested documents are decoded as
// plain maps.
func (o *MapOutput) Data() (map[string]interface{}, error) {
	if o.data != nil {
		return o.data, nil
	}
	data, err := DecodeBinary(o.Raw)
	if err != nil {
		return nil, err
	}
	o.data = data
	return data, nil
}

// Fields returns the document in the stored field order.
func (o *MapOutput) Fields() (bson.D, error) {
	var d bson.D
	err := bson.Unmarshal(o.Raw, &d)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (o *MapOutput) String() string {
	return "<MapOutput source=" + strconv.Quote(o.SourceID) + " collection=" + strconv.Quote(o.Collection) + ">"
}

// ReduceResult is the materialized output of a reduce function for one
// group, ready to be persisted.
type ReduceResult struct {
	Key    []byte
	Hash   uint64
	Raw    []byte
	Fields bson.D
}

// KeyString is the printable form of the reduce key.
func (r *ReduceResult) KeyString() string {
	return hex.EncodeToString(r.Key)
}

// DecodeBinary decodes a binary document into a plain map.
func DecodeBinary(raw []byte) (map[string]interface{}, error) {
	var m bson.M
	err := bson.Unmarshal(raw, &m)
	if err != nil {
		return nil, err
	}
	return Plain(m).(map[string]interface{}), nil
}

// Plain converts bson specific container types (bson.M, bson.D,
// []interface{} with such values) to plain maps and slices.
func Plain(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = Plain(e)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = Plain(e)
		}
		return m
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Name] = Plain(e.Value)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = Plain(e)
		}
		return s
	default:
		return v
	}
}

package datatable

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// ObjectType is the one-byte tag that prefixes every Object cell payload.
// The set is closed: decoders reject tags outside it.
type ObjectType uint8

const (
	ObjectAvgPair ObjectType = iota + 1
	ObjectMinMaxRange
	ObjectDistinctSet
	ObjectInt64Set
	ObjectHistogram

	maxObjectType = ObjectHistogram
)

func (t ObjectType) Valid() bool { return t >= ObjectAvgPair && t <= maxObjectType }

func (t ObjectType) String() string {
	switch t {
	case ObjectAvgPair:
		return "AvgPair"
	case ObjectMinMaxRange:
		return "MinMaxRange"
	case ObjectDistinctSet:
		return "DistinctSet"
	case ObjectInt64Set:
		return "Int64Set"
	case ObjectHistogram:
		return "Histogram"
	}
	return fmt.Sprintf("ObjectType(%d)", uint8(t))
}

// AvgPair is the intermediate state of AVG.
type AvgPair struct {
	Sum   float64 `msgpack:"s"`
	Count int64   `msgpack:"c"`
}

func (p AvgPair) Merge(o AvgPair) AvgPair { return AvgPair{Sum: p.Sum + o.Sum, Count: p.Count + o.Count} }

func (p AvgPair) Avg() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.Sum / float64(p.Count)
}

// MinMaxRange is the intermediate state of MINMAXRANGE.
type MinMaxRange struct {
	Min float64 `msgpack:"lo"`
	Max float64 `msgpack:"hi"`
}

func (r MinMaxRange) Merge(o MinMaxRange) MinMaxRange {
	return MinMaxRange{Min: min(r.Min, o.Min), Max: max(r.Max, o.Max)}
}

// DistinctSet holds sorted, unique strings.
type DistinctSet []string

func NewDistinctSet(vals ...string) DistinctSet {
	s := slices.Clone(vals)
	slices.Sort(s)
	return DistinctSet(slices.Compact(s))
}

func (s DistinctSet) Merge(o DistinctSet) DistinctSet {
	return NewDistinctSet(append(slices.Clone(s), o...)...)
}

// Int64Set holds sorted, unique integers.
type Int64Set []int64

func NewInt64Set(vals ...int64) Int64Set {
	s := slices.Clone(vals)
	slices.Sort(s)
	return Int64Set(slices.Compact(s))
}

// Histogram counts occurrences per bucket label.
type Histogram map[string]int64

// ObjectCodec encodes one object kind. Encode receives only values for which
// Accepts returned true.
type ObjectCodec interface {
	Type() ObjectType
	Accepts(v any) bool
	Encode(v any) ([]byte, error)
	Decode(p []byte) (any, error)
}

// msgpackCodec serializes T with msgpack, map keys sorted so equal values
// always produce equal bytes.
type msgpackCodec[T any] struct {
	tag ObjectType
}

func (c msgpackCodec[T]) Type() ObjectType { return c.tag }

func (c msgpackCodec[T]) Accepts(v any) bool {
	_, ok := v.(T)
	return ok
}

func (c msgpackCodec[T]) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v.(T))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("datatable: encode %s: %w", c.tag, err)
	}
	return buf.Bytes(), nil
}

func (c msgpackCodec[T]) Decode(p []byte) (any, error) {
	var v T
	if err := msgpack.Unmarshal(p, &v); err != nil {
		return nil, fmt.Errorf("datatable: decode %s: %w", c.tag, err)
	}
	return v, nil
}

// ObjectRegistry maps object tags to codecs. It is built once and passed to
// builders and decoders; it is read-only after construction and safe to share.
type ObjectRegistry struct {
	codecs [maxObjectType + 1]ObjectCodec
}

// NewObjectRegistry returns a registry holding the built-in codec of every
// object kind.
func NewObjectRegistry() *ObjectRegistry {
	r := &ObjectRegistry{}
	r.mustRegister(msgpackCodec[AvgPair]{tag: ObjectAvgPair})
	r.mustRegister(msgpackCodec[MinMaxRange]{tag: ObjectMinMaxRange})
	r.mustRegister(msgpackCodec[DistinctSet]{tag: ObjectDistinctSet})
	r.mustRegister(msgpackCodec[Int64Set]{tag: ObjectInt64Set})
	r.mustRegister(msgpackCodec[Histogram]{tag: ObjectHistogram})
	return r
}

// Register replaces the codec of a known object kind. Call it before the
// registry is shared.
func (r *ObjectRegistry) Register(c ObjectCodec) error {
	if !c.Type().Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownObjectType, uint8(c.Type()))
	}
	r.codecs[c.Type()] = c
	return nil
}

func (r *ObjectRegistry) mustRegister(c ObjectCodec) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Encode returns the tagged payload for v.
func (r *ObjectRegistry) Encode(v any) ([]byte, error) {
	for _, c := range r.codecs {
		if c == nil || !c.Accepts(v) {
			continue
		}
		p, err := c.Encode(v)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, 1+len(p))
		out = append(out, byte(c.Type()))
		return append(out, p...), nil
	}
	return nil, fmt.Errorf("%w: no codec for %T", ErrUnknownObjectType, v)
}

// Decode reads a tagged payload. An empty payload is an unset cell and
// decodes to nil.
func (r *ObjectRegistry) Decode(p []byte) (any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	tag := ObjectType(p[0])
	if !tag.Valid() || r.codecs[tag] == nil {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownObjectType, p[0])
	}
	return r.codecs[tag].Decode(p[1:])
}

package jobmanager

import (
	"fmt"
	"maps"
	"slices"
)

// Data is the flat, primitive-valued payload a job serializes itself into.
// Each value type lives in its own map so a decoded record keeps its types
// without relying on JSON number inference.
type Data struct {
	Strings      map[string]string   `json:"strings,omitempty"`
	StringArrays map[string][]string `json:"string_arrays,omitempty"`
	Ints         map[string]int      `json:"ints,omitempty"`
	Longs        map[string]int64    `json:"longs,omitempty"`
	Floats       map[string]float64  `json:"floats,omitempty"`
	Bools        map[string]bool     `json:"bools,omitempty"`
}

// EmptyData is a payload with no fields.
var EmptyData = Data{}

func missing(key, kind string) error {
	return fmt.Errorf("%w: no %s value for key %q", ErrMalformedPayload, kind, key)
}

// HasString reports whether key holds a string.
func (d Data) HasString(key string) bool {
	_, ok := d.Strings[key]
	return ok
}

// HasInt reports whether key holds an int.
func (d Data) HasInt(key string) bool {
	_, ok := d.Ints[key]
	return ok
}

// GetString returns the string stored under key.
func (d Data) GetString(key string) (string, error) {
	v, ok := d.Strings[key]
	if !ok {
		return "", missing(key, "string")
	}
	return v, nil
}

// GetStringOrDefault returns the string stored under key, or def when absent.
func (d Data) GetStringOrDefault(key, def string) string {
	if v, ok := d.Strings[key]; ok {
		return v
	}
	return def
}

// GetStringArray returns a copy of the string array stored under key.
func (d Data) GetStringArray(key string) ([]string, error) {
	v, ok := d.StringArrays[key]
	if !ok {
		return nil, missing(key, "string array")
	}
	return slices.Clone(v), nil
}

// GetInt returns the int stored under key.
func (d Data) GetInt(key string) (int, error) {
	v, ok := d.Ints[key]
	if !ok {
		return 0, missing(key, "int")
	}
	return v, nil
}

// GetIntOrDefault returns the int stored under key, or def when absent.
func (d Data) GetIntOrDefault(key string, def int) int {
	if v, ok := d.Ints[key]; ok {
		return v
	}
	return def
}

// GetLong returns the int64 stored under key.
func (d Data) GetLong(key string) (int64, error) {
	v, ok := d.Longs[key]
	if !ok {
		return 0, missing(key, "long")
	}
	return v, nil
}

// GetFloat returns the float64 stored under key.
func (d Data) GetFloat(key string) (float64, error) {
	v, ok := d.Floats[key]
	if !ok {
		return 0, missing(key, "float")
	}
	return v, nil
}

// GetBool returns the bool stored under key.
func (d Data) GetBool(key string) (bool, error) {
	v, ok := d.Bools[key]
	if !ok {
		return false, missing(key, "bool")
	}
	return v, nil
}

// DataBuilder accumulates payload fields. Build returns an independent copy,
// so a builder may be reused.
type DataBuilder struct {
	d Data
}

// NewDataBuilder returns an empty builder.
func NewDataBuilder() *DataBuilder { return &DataBuilder{} }

// NewDataBuilderFrom returns a builder seeded with the fields of d.
func NewDataBuilderFrom(d Data) *DataBuilder {
	b := &DataBuilder{d: d}
	b.d = b.Build()
	return b
}

func put[V any](m *map[string]V, key string, v V) {
	if *m == nil {
		*m = make(map[string]V)
	}
	(*m)[key] = v
}

func (b *DataBuilder) PutString(key, v string) *DataBuilder {
	put(&b.d.Strings, key, v)
	return b
}

func (b *DataBuilder) PutStringArray(key string, v []string) *DataBuilder {
	put(&b.d.StringArrays, key, slices.Clone(v))
	return b
}

func (b *DataBuilder) PutInt(key string, v int) *DataBuilder {
	put(&b.d.Ints, key, v)
	return b
}

func (b *DataBuilder) PutLong(key string, v int64) *DataBuilder {
	put(&b.d.Longs, key, v)
	return b
}

func (b *DataBuilder) PutFloat(key string, v float64) *DataBuilder {
	put(&b.d.Floats, key, v)
	return b
}

func (b *DataBuilder) PutBool(key string, v bool) *DataBuilder {
	put(&b.d.Bools, key, v)
	return b
}

// Build returns the accumulated payload.
func (b *DataBuilder) Build() Data {
	out := Data{
		Strings: maps.Clone(b.d.Strings),
		Ints:    maps.Clone(b.d.Ints),
		Longs:   maps.Clone(b.d.Longs),
		Floats:  maps.Clone(b.d.Floats),
		Bools:   maps.Clone(b.d.Bools),
	}
	if b.d.StringArrays != nil {
		out.StringArrays = make(map[string][]string, len(b.d.StringArrays))
		for k, v := range b.d.StringArrays {
			out.StringArrays[k] = slices.Clone(v)
		}
	}
	return out
}

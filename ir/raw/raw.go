// Package raw models COS objects exactly as they appear in the file: the
// first stage of the parse pipeline, before stream decoding and semantic
// interpretation.
package raw

import "fmt"

// Object is the union of COS value types. The concrete types are Null, Bool,
// Integer, Real, Name, String, Array, Dict, Ref and *Stream.
type Object interface {
	isObject()
}

type Null struct{}

type Bool bool

type Integer int64

type Real float64

type Name string

// String holds the decoded bytes of a literal or hex string.
type String []byte

type Array []Object

type Dict map[Name]Object

// Ref is an indirect object reference.
type Ref struct {
	Num int
	Gen int
}

// Stream couples a stream dictionary with its raw, still-encoded payload.
// Payload bytes are kept verbatim so unmodified streams can be copied through
// to an output file without a decode/re-encode round trip.
type Stream struct {
	Dict Dict
	Raw  []byte
}

func (Null) isObject()    {}
func (Bool) isObject()    {}
func (Integer) isObject() {}
func (Real) isObject()    {}
func (Name) isObject()    {}
func (String) isObject()  {}
func (Array) isObject()   {}
func (Dict) isObject()    {}
func (Ref) isObject()     {}
func (*Stream) isObject() {}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Document is the parsed raw file: every indirect object plus the trailer.
type Document struct {
	Version string
	Objects map[Ref]Object
	Trailer Dict
}

// Resolve follows indirect references until a direct object is reached.
// Dangling references resolve to Null, matching reader behavior required by
// the file format.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Ref)
		if !ok {
			return obj
		}
		next, ok := d.Objects[ref]
		if !ok {
			return Null{}
		}
		obj = next
	}
	return Null{}
}

// Get resolves a dictionary entry.
func (d *Document) Get(dict Dict, key Name) Object {
	if dict == nil {
		return Null{}
	}
	v, ok := dict[key]
	if !ok {
		return Null{}
	}
	return d.Resolve(v)
}

// GetDict resolves a dictionary-valued entry, unwrapping stream dicts.
func (d *Document) GetDict(dict Dict, key Name) Dict {
	switch v := d.Get(dict, key).(type) {
	case Dict:
		return v
	case *Stream:
		return v.Dict
	}
	return nil
}

// GetArray resolves an array-valued entry. A lone value is promoted to a
// one-element array, mirroring how /Contents may hold one stream or many.
func (d *Document) GetArray(dict Dict, key Name) Array {
	if dict == nil {
		return nil
	}
	v, ok := dict[key]
	if !ok {
		return nil
	}
	res := d.Resolve(v)
	if a, ok := res.(Array); ok {
		return a
	}
	if _, ok := res.(Null); ok {
		return nil
	}
	return Array{v}
}

// GetInt resolves an integer-valued entry.
func (d *Document) GetInt(dict Dict, key Name) (int64, bool) {
	switch v := d.Get(dict, key).(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}

// GetName resolves a name-valued entry.
func (d *Document) GetName(dict Dict, key Name) (string, bool) {
	if v, ok := d.Get(dict, key).(Name); ok {
		return string(v), true
	}
	return "", false
}

// GetNumber resolves a numeric entry as float64.
func (d *Document) GetNumber(dict Dict, key Name) (float64, bool) {
	return AsNumber(d.Get(dict, key))
}

// AsNumber converts a direct numeric object to float64.
func AsNumber(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// FilterNames returns the filter chain of a stream dict in application
// order. /Filter may be a single name or an array of names.
func (d *Document) FilterNames(dict Dict) []string {
	switch v := d.Get(dict, "Filter").(type) {
	case Name:
		return []string{string(v)}
	case Array:
		var names []string
		for _, o := range v {
			if n, ok := d.Resolve(o).(Name); ok {
				names = append(names, string(n))
			}
		}
		return names
	}
	return nil
}

// DecodeParms returns the parameter dict for the i'th filter, or nil.
func (d *Document) DecodeParms(dict Dict, i int) Dict {
	obj := d.Get(dict, "DecodeParms")
	if _, ok := obj.(Null); ok {
		obj = d.Get(dict, "DP")
	}
	switch v := obj.(type) {
	case Dict:
		if i == 0 {
			return v
		}
	case Array:
		if i >= 0 && i < len(v) {
			if p, ok := d.Resolve(v[i]).(Dict); ok {
				return p
			}
		}
	}
	return nil
}

package client

import (
	"strings"

	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
)

// ParameterCollection is an ordered list of parameters with unique names.
// Names compare case-insensitively and without their @, : or $ prefix.
type ParameterCollection struct {
	items []*codec.Parameter
}

// Add appends p. An empty or already used name is an InvalidParameter error.
func (pc *ParameterCollection) Add(p *codec.Parameter) error {
	if codec.NormalizeName(p.Name) == "" {
		return dberr.NewInvalidParameterError("parameter name must not be empty")
	}
	if _, ok := pc.Lookup(p.Name); ok {
		return dberr.Newf(dberr.KindInvalidParameter, "parameter %q is already defined", p.Name)
	}
	pc.items = append(pc.items, p)
	return nil
}

// AddWithValue creates a parameter with an inferred type and adds it.
func (pc *ParameterCollection) AddWithValue(name string, value any) (*codec.Parameter, error) {
	p := codec.NewParameter(name, value)
	if err := pc.Add(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Lookup finds a parameter by name.
func (pc *ParameterCollection) Lookup(name string) (*codec.Parameter, bool) {
	name = codec.NormalizeName(name)
	for _, p := range pc.items {
		if strings.EqualFold(codec.NormalizeName(p.Name), name) {
			return p, true
		}
	}
	return nil, false
}

func (pc *ParameterCollection) Len() int {
	return len(pc.items)
}

func (pc *ParameterCollection) At(i int) *codec.Parameter {
	return pc.items[i]
}

// Remove deletes the named parameter and reports whether it existed.
func (pc *ParameterCollection) Remove(name string) bool {
	name = codec.NormalizeName(name)
	for i, p := range pc.items {
		if strings.EqualFold(codec.NormalizeName(p.Name), name) {
			pc.items = append(pc.items[:i], pc.items[i+1:]...)
			return true
		}
	}
	return false
}

func (pc *ParameterCollection) Clear() {
	pc.items = nil
}

// All returns a copy of the parameters in insertion order.
func (pc *ParameterCollection) All() []*codec.Parameter {
	out := make([]*codec.Parameter, len(pc.items))
	copy(out, pc.items)
	return out
}

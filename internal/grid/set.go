package grid

import (
	"encoding/json"
	"sort"
)

// Set is a set of coordinates. It marshals as a sorted list of "x,y" keys.
type Set map[Coord]struct{}

// NewSet builds a set from the given coordinates.
func NewSet(cs ...Coord) Set {
	s := make(Set, len(cs))
	for _, c := range cs {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Has(c Coord) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c and reports whether it was new.
func (s Set) Add(c Coord) bool {
	if _, ok := s[c]; ok {
		return false
	}
	s[c] = struct{}{}
	return true
}

// Clone returns an independent copy. Clone of nil is an empty set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Contains reports whether every member of other is in s.
func (s Set) Contains(other Set) bool {
	for c := range other {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

// Sorted returns the members in row-major order.
func (s Set) Sorted() []Coord {
	out := make([]Coord, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Keys returns the sorted "x,y" keys.
func (s Set) Keys() []string {
	sorted := s.Sorted()
	keys := make([]string, len(sorted))
	for i, c := range sorted {
		keys[i] = c.String()
	}
	return keys
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	out := make(Set, len(keys))
	for _, k := range keys {
		c, err := ParseCoord(k)
		if err != nil {
			return err
		}
		out[c] = struct{}{}
	}
	*s = out
	return nil
}

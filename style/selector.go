// Package style implements the small stylesheet language map features are
// styled with: selectors, rules and the declaration-order cascade.
package style

import (
	"slices"
	"sort"
	"strings"
)

// Attr is one [key=value] constraint.
type Attr struct {
	Key   string
	Value string
}

// Selector identifies a set of features. The zero value is the empty
// selector, which every query matches. Empty Type and ID mean absent.
// Classes are kept sorted and unique and Attributes sorted by key, so two
// selectors built in a different order still compare equal.
type Selector struct {
	Type       string
	ID         string
	Classes    []string
	Attributes []Attr
}

func NewSelector() Selector {
	return Selector{}
}

func (s Selector) clone() Selector {
	s.Classes = slices.Clone(s.Classes)
	s.Attributes = slices.Clone(s.Attributes)
	return s
}

// WithType returns a copy of s with the type set.
func (s Selector) WithType(typ string) Selector {
	s = s.clone()
	s.Type = typ
	return s
}

// WithID returns a copy of s with the id set.
func (s Selector) WithID(id string) Selector {
	s = s.clone()
	s.ID = id
	return s
}

// WithClass returns a copy of s with class added.
func (s Selector) WithClass(class string) Selector {
	s = s.clone()
	i := sort.SearchStrings(s.Classes, class)
	if i < len(s.Classes) && s.Classes[i] == class {
		return s
	}
	s.Classes = slices.Insert(s.Classes, i, class)
	return s
}

// WithAttribute returns a copy of s with key set to value, replacing any
// earlier value for key.
func (s Selector) WithAttribute(key, value string) Selector {
	s = s.clone()
	i := sort.Search(len(s.Attributes), func(i int) bool { return s.Attributes[i].Key >= key })
	if i < len(s.Attributes) && s.Attributes[i].Key == key {
		s.Attributes[i].Value = value
		return s
	}
	s.Attributes = slices.Insert(s.Attributes, i, Attr{Key: key, Value: value})
	return s
}

func (s Selector) Attribute(key string) (string, bool) {
	i := sort.Search(len(s.Attributes), func(i int) bool { return s.Attributes[i].Key >= key })
	if i < len(s.Attributes) && s.Attributes[i].Key == key {
		return s.Attributes[i].Value, true
	}
	return "", false
}

func (s Selector) HasClass(class string) bool {
	i := sort.SearchStrings(s.Classes, class)
	return i < len(s.Classes) && s.Classes[i] == class
}

// Matches reports whether s satisfies every constraint present in
// pattern. Fields pattern leaves empty constrain nothing, so this is a
// one-way subset test and not equality.
func (s Selector) Matches(pattern Selector) bool {
	if pattern.Type != "" && pattern.Type != s.Type {
		return false
	}
	if pattern.ID != "" && pattern.ID != s.ID {
		return false
	}
	for _, c := range pattern.Classes {
		if !s.HasClass(c) {
			return false
		}
	}
	for _, a := range pattern.Attributes {
		if v, ok := s.Attribute(a.Key); !ok || v != a.Value {
			return false
		}
	}
	return true
}

// Equal is structural equality.
func (s Selector) Equal(o Selector) bool {
	return s.Type == o.Type &&
		s.ID == o.ID &&
		slices.Equal(s.Classes, o.Classes) &&
		slices.Equal(s.Attributes, o.Attributes)
}

// String renders s in stylesheet syntax. Equal selectors render the same
// string, so it doubles as a map key.
func (s Selector) String() string {
	var b strings.Builder
	b.WriteString(s.Type)
	if s.ID != "" {
		b.WriteByte('#')
		b.WriteString(s.ID)
	}
	for _, c := range s.Classes {
		b.WriteByte('.')
		b.WriteString(c)
	}
	for _, a := range s.Attributes {
		b.WriteByte('[')
		b.WriteString(a.Key)
		b.WriteByte('=')
		if isAttrValue(a.Value) {
			b.WriteString(a.Value)
		} else {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(a.Value, `"`, `\"`))
			b.WriteByte('"')
		}
		b.WriteByte(']')
	}
	if b.Len() == 0 {
		return "*"
	}
	return b.String()
}

func isAttrValue(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAttrValueByte(s[i]) {
			return false
		}
	}
	return true
}

func isNameByte(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isAttrValueByte(c byte) bool {
	return isNameByte(c) || c == '.'
}

// Package varlinkdef implements the Varlink interface definition language:
// parsing interface description text into a typed AST (see Parse) and
// rendering that AST back into source text (see the Format* functions).
//
// See: https://varlink.org/Interface-Definition
package varlinkdef

import "fmt"

// Kind identifies the shape of a VType.
type Kind int

const (
	KindBool Kind = iota + 1
	KindInt
	KindFloat
	KindString
	KindObject
	KindName // a reference to another type by name, e.g. "MyType"
	KindStruct
	KindEnum
)

func (kind Kind) String() string {
	switch kind {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindName:
		return "name"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	default:
		panic(fmt.Errorf("varlinkdef: invalid kind %d", int(kind)))
	}
}

// VType is an unmodified Varlink base type: a primitive, a reference to a
// named type, or an inline struct/enum.
type VType struct {
	Kind   Kind
	Name   string // set when Kind == KindName
	Struct VStruct
	Enum   VEnum
}

var (
	TypeBool   = VType{Kind: KindBool}
	TypeInt    = VType{Kind: KindInt}
	TypeFloat  = VType{Kind: KindFloat}
	TypeString = VType{Kind: KindString}
	TypeObject = VType{Kind: KindObject}
)

// Modifier is the collection wrapper applied to a VType: none, array, or
// dict (string-keyed map).
type Modifier int

const (
	ModNone Modifier = iota
	ModArray
	ModDict
)

// VTypeExt wraps a VType with the modifiers the grammar allows: an optional
// leading "?" and, under it, a chain of "[]"/"[string]" wrappers. Per the
// grammar, Optional can only be true on the outermost VTypeExt of a field;
// an Inner VTypeExt (the element type of an array or dict) is never
// Optional itself -- "[]?T" is rejected by the parser, while "?[]T" and
// "?[string]T" are accepted, by design (see the parser's asymmetry note).
type VTypeExt struct {
	Optional bool
	Modifier Modifier
	Inner    *VTypeExt // set when Modifier != ModNone
	Base     VType     // set when Modifier == ModNone
}

// IsStringSet reports whether this is a "[string]()" dict of empty structs,
// the idiomatic Varlink spelling of a set of strings.
func (t VTypeExt) IsStringSet() bool {
	return t.Modifier == ModDict && t.Inner != nil &&
		t.Inner.Modifier == ModNone &&
		t.Inner.Base.Kind == KindStruct && len(t.Inner.Base.Struct) == 0
}

// Argument is one field of a VStruct: a name and its type.
type Argument struct {
	Name string
	Type VTypeExt
}

// VStruct is an ordered field list, as written inside "(...)".
type VStruct []Argument

// VEnum is an ordered set of enum value identifiers.
type VEnum []string

// Method is a `method` member: an input struct and an output struct.
type Method struct {
	Name string
	Doc  string
	In   VStruct
	Out  VStruct
}

// Typedef is a `type` member: a named struct or enum.
type Typedef struct {
	Name string
	Doc  string
	// Exactly one of Struct/Enum is meaningful, selected by Kind.
	Kind   Kind // KindStruct or KindEnum
	Struct VStruct
	Enum   VEnum
}

// VError is an `error` member: a name and its parameter struct.
type VError struct {
	Name string
	Doc  string
	Parm VStruct
}

// Interface is the parsed AST of one Varlink interface description.
//
// Typedefs, Methods, and Errors preserve source order (the spec requires
// deterministic re-formatting); the Lookup* methods provide name-indexed
// access for dispatch and introspection.
type Interface struct {
	Name string
	Doc  string

	Typedefs []*Typedef
	Methods  []*Method
	Errors   []*VError
}

// LookupMethod returns the method with the given name, if present.
func (i *Interface) LookupMethod(name string) (*Method, bool) {
	for _, m := range i.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// LookupTypedef returns the typedef with the given name, if present.
func (i *Interface) LookupTypedef(name string) (*Typedef, bool) {
	for _, t := range i.Typedefs {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// LookupError returns the error with the given name, if present.
func (i *Interface) LookupError(name string) (*VError, bool) {
	for _, e := range i.Errors {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Package types implements the closed type universe of spec.md §3: bool,
// the ten fixed-width integers, reference-to-T, and user-declared enums,
// plus the fixed trait set (Add, Eq, Ne) and the implicit Copy trait
// reported by IsCopy, which the lifetime pass does not consult.
package types

import "fmt"

// Kind enumerates the closed set of type constructors.
type Kind int

const (
	Bool Kind = iota
	I8
	I16
	I32
	I64
	I128
	U8
	U16
	U32
	U64
	U128
	Ref  // reference-to-T
	Enum // user-declared C-style enum
)

// Type is a value from the closed type universe. RefTo is populated only
// when Kind == Ref; EnumName only when Kind == Enum.
type Type struct {
	Kind     Kind
	RefTo    *Type
	EnumName string
}

var (
	TBool = Type{Kind: Bool}
	TI8   = Type{Kind: I8}
	TI16  = Type{Kind: I16}
	TI32  = Type{Kind: I32}
	TI64  = Type{Kind: I64}
	TI128 = Type{Kind: I128}
	TU8   = Type{Kind: U8}
	TU16  = Type{Kind: U16}
	TU32  = Type{Kind: U32}
	TU64  = Type{Kind: U64}
	TU128 = Type{Kind: U128}
)

// RefOf builds the reference-to-T type for a given referent type.
func RefOf(t Type) Type {
	cp := t
	return Type{Kind: Ref, RefTo: &cp}
}

// EnumOf builds the type of values of a user-declared enum.
func EnumOf(name string) Type {
	return Type{Kind: Enum, EnumName: name}
}

func (t Type) IsInteger() bool {
	switch t.Kind {
	case I8, I16, I32, I64, I128, U8, U16, U32, U64, U128:
		return true
	default:
		return false
	}
}

func (t Type) IsSigned() bool {
	switch t.Kind {
	case I8, I16, I32, I64, I128:
		return true
	default:
		return false
	}
}

// BitWidth returns the width in bits of an integer type's backing
// representation; the enum's own backing width (spec.md §3, "isomorphic
// to a small integer").
func (t Type) BitWidth() int {
	switch t.Kind {
	case I8, U8:
		return 8
	case I16, U16:
		return 16
	case I32, U32, Enum:
		return 32
	case I64, U64:
		return 64
	case I128, U128:
		return 128
	case Bool:
		return 1
	default:
		return 0
	}
}

// IsCopy reports whether values of this type are duplicated by Copy
// rather than moved. Every type in the universe except Ref is copyable —
// references follow the single-live-reference discipline instead
// (spec.md §3 invariants).
func (t Type) IsCopy() bool {
	return t.Kind != Ref
}

func (t Type) String() string {
	switch t.Kind {
	case Bool:
		return "bool"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case I128:
		return "i128"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case U128:
		return "u128"
	case Ref:
		return "&" + t.RefTo.String()
	case Enum:
		return t.EnumName
	default:
		return fmt.Sprintf("Type(%d)", int(t.Kind))
	}
}

func (a Type) Equal(b Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Ref:
		return a.RefTo.Equal(*b.RefTo)
	case Enum:
		return a.EnumName == b.EnumName
	default:
		return true
	}
}

// TraitType is one of the three fixed built-in traits of spec.md §1.
type TraitType int

const (
	Add TraitType = iota
	Eq
	Ne
)

// Implements reports whether t's operator behavior is defined for trait
// tr. Add is defined only over the integer types; Eq/Ne are defined over
// bool, the integers, and enums (comparing their backing discriminant).
func Implements(t Type, tr TraitType) bool {
	switch tr {
	case Add:
		return t.IsInteger()
	case Eq, Ne:
		return t.IsInteger() || t.Kind == Bool || t.Kind == Enum
	default:
		return false
	}
}

// EnumDef is a user-declared enum's resolved definition: its variants in
// declaration order, each isomorphic to a small integer discriminant
// starting at zero.
type EnumDef struct {
	Name     string
	Variants []string
}

// Discriminant returns the integer value of a named variant.
func (d EnumDef) Discriminant(variant string) (int64, bool) {
	for i, v := range d.Variants {
		if v == variant {
			return int64(i), true
		}
	}
	return 0, false
}

// Universe resolves enum declarations by name; it is the per-compilation
// type environment threaded alongside source.Context.
type Universe struct {
	Enums map[string]EnumDef
}

func NewUniverse() *Universe {
	return &Universe{Enums: make(map[string]EnumDef)}
}

func (u *Universe) DeclareEnum(def EnumDef) {
	u.Enums[def.Name] = def
}

func (u *Universe) LookupEnum(name string) (EnumDef, bool) {
	def, ok := u.Enums[name]
	return def, ok
}

package types

import "testing"

func TestBitWidth(t *testing.T) {
	tests := []struct {
		t    Type
		want int
	}{
		{TBool, 1},
		{TI8, 8},
		{TU8, 8},
		{TI32, 32},
		{TU64, 64},
		{TI128, 128},
		{EnumOf("Color"), 32},
	}
	for _, tc := range tests {
		if got := tc.t.BitWidth(); got != tc.want {
			t.Errorf("%s.BitWidth() = %d, want %d", tc.t, got, tc.want)
		}
	}
}

func TestIsCopyExcludesReferences(t *testing.T) {
	if !TI32.IsCopy() {
		t.Errorf("i32 should be copyable")
	}
	if RefOf(TI32).IsCopy() {
		t.Errorf("&i32 should not be copyable")
	}
}

func TestImplementsAdd(t *testing.T) {
	if !Implements(TI32, Add) {
		t.Errorf("i32 should implement Add")
	}
	if Implements(TBool, Add) {
		t.Errorf("bool should not implement Add")
	}
	if Implements(EnumOf("Color"), Add) {
		t.Errorf("enum should not implement Add")
	}
}

func TestImplementsEqNe(t *testing.T) {
	for _, tr := range []TraitType{Eq, Ne} {
		if !Implements(TBool, tr) {
			t.Errorf("bool should implement %v", tr)
		}
		if !Implements(TI32, tr) {
			t.Errorf("i32 should implement %v", tr)
		}
		if !Implements(EnumOf("Color"), tr) {
			t.Errorf("enum should implement %v", tr)
		}
		if Implements(RefOf(TI32), tr) {
			t.Errorf("&i32 should not implement %v", tr)
		}
	}
}

func TestTypeEqual(t *testing.T) {
	if !RefOf(TI32).Equal(RefOf(TI32)) {
		t.Errorf("&i32 should equal &i32")
	}
	if RefOf(TI32).Equal(RefOf(TU32)) {
		t.Errorf("&i32 should not equal &u32")
	}
	if !EnumOf("Color").Equal(EnumOf("Color")) {
		t.Errorf("Color should equal Color")
	}
	if EnumOf("Color").Equal(EnumOf("Shape")) {
		t.Errorf("Color should not equal Shape")
	}
}

func TestEnumDiscriminant(t *testing.T) {
	def := EnumDef{Name: "Color", Variants: []string{"Red", "Green", "Blue"}}
	d, ok := def.Discriminant("Green")
	if !ok || d != 1 {
		t.Errorf("Discriminant(Green) = (%d, %v), want (1, true)", d, ok)
	}
	if _, ok := def.Discriminant("Purple"); ok {
		t.Errorf("expected no discriminant for unknown variant")
	}
}

func TestUniverseLookup(t *testing.T) {
	u := NewUniverse()
	u.DeclareEnum(EnumDef{Name: "Color", Variants: []string{"Red"}})
	if _, ok := u.LookupEnum("Color"); !ok {
		t.Errorf("expected Color to be declared")
	}
	if _, ok := u.LookupEnum("Missing"); ok {
		t.Errorf("expected Missing to be undeclared")
	}
}

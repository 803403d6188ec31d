package schema

import (
	"errors"
	"testing"

	"chainforge/pkg/felt"
)

// Serialize then deserialize into a fresh template and compare.
func TestSerializeDeserializeRoundTrip(t *testing.T) {
	original := NewStruct("P", []Member{
		{Name: "x", Key: true, Ty: NewPrimitive(NewU32(7))},
		{Name: "y", Key: false, Ty: NewArray(
			NewPrimitive(Template(KU8)),
			NewPrimitive(NewU8(1)), NewPrimitive(NewU8(2)), NewPrimitive(NewU8(3)),
		)},
	})

	felts, err := original.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := []uint64{7, 3, 1, 2, 3}
	if len(felts) != len(want) {
		t.Fatalf("Serialize length = %d, want %d", len(felts), len(want))
	}
	for i, w := range want {
		if got, _ := felts[i].Uint64(); got != w {
			t.Errorf("felts[%d] = %d, want %d", i, got, w)
		}
	}

	template := NewStruct("P", []Member{
		{Name: "x", Key: true, Ty: NewPrimitive(Template(KU32))},
		{Name: "y", Key: false, Ty: NewArray(NewPrimitive(Template(KU8)))},
	})
	if err := template.Deserialize(&felts); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !template.Equal(original) {
		t.Errorf("round-trip mismatch: got %+v, want %+v", template, original)
	}
}

// Enum encoding: variant index first, then the payload.
func TestEnumEncoding(t *testing.T) {
	idx := uint8(2)
	e := NewEnum("E", &idx, []EnumOption{
		{Name: "A", Ty: NewTuple(nil)},
		{Name: "B", Ty: NewTuple(nil)},
		{Name: "C", Ty: NewTuple([]Ty{NewPrimitive(NewU32(42))})},
	})

	felts, err := e.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(felts) != 2 {
		t.Fatalf("Serialize length = %d, want 2", len(felts))
	}
	if got, _ := felts[0].Uint64(); got != 2 {
		t.Errorf("variant index = %d, want 2", got)
	}
	if got, _ := felts[1].Uint64(); got != 42 {
		t.Errorf("payload = %d, want 42", got)
	}

	fresh := NewEnum("E", nil, []EnumOption{
		{Name: "A", Ty: NewTuple(nil)},
		{Name: "B", Ty: NewTuple(nil)},
		{Name: "C", Ty: NewTuple([]Ty{NewPrimitive(Template(KU32))})},
	})
	if err := fresh.Deserialize(&felts); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if fresh.Enum.Option == nil || *fresh.Enum.Option != 2 {
		t.Fatalf("expected option 2 selected, got %v", fresh.Enum.Option)
	}
	if !fresh.Equal(e) {
		t.Errorf("round-trip mismatch: got %+v, want %+v", fresh, e)
	}
}

func TestEnumSerializeMissingOption(t *testing.T) {
	e := NewEnum("E", nil, []EnumOption{{Name: "A", Ty: NewTuple(nil)}})
	if _, err := e.Serialize(); err == nil {
		t.Fatalf("expected ErrMissingFieldElement")
	}
}

func TestEnumDeserializeRejectsOutOfRangeIndex(t *testing.T) {
	e := NewEnum("E", nil, []EnumOption{{Name: "A", Ty: NewTuple(nil)}})
	felts := []felt.Felt{felt.FromUint64(5)}
	if err := e.Deserialize(&felts); err == nil {
		t.Fatalf("expected ErrInvalidEnumOption")
	}
}

func TestDeserializeTruncatedInputFails(t *testing.T) {
	template := NewStruct("P", []Member{
		{Name: "x", Ty: NewPrimitive(Template(KU32))},
		{Name: "y", Ty: NewPrimitive(Template(KU32))},
	})
	felts := []felt.Felt{felt.FromUint64(7)}
	err := template.Deserialize(&felts)
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}
}

// Property 2: t.diff(t) == None for any schema t.
func TestDiffSelfIsNil(t *testing.T) {
	cases := []Ty{
		NewPrimitive(NewU32(7)),
		NewStruct("S", []Member{{Name: "a", Ty: NewPrimitive(NewU8(1))}}),
		NewArray(NewPrimitive(Template(KU8)), NewPrimitive(NewU8(1))),
		NewByteArray("hello"),
	}
	for _, c := range cases {
		_, changed, err := c.Diff(c)
		if err != nil {
			t.Fatalf("Diff errored on identical schema: %v", err)
		}
		if changed {
			t.Errorf("Diff(%v, %v) reported a change for an identical schema", c, c)
		}
	}
}

func TestDiffStructFindsMissingMembers(t *testing.T) {
	s1 := NewStruct("TestStruct", []Member{
		{Name: "field1", Ty: NewPrimitive(Template(KU32))},
		{Name: "field2", Ty: NewPrimitive(Template(KU32))},
		{Name: "field3", Ty: NewPrimitive(Template(KU32))},
	})
	s2 := NewStruct("TestStruct", []Member{
		{Name: "field1", Ty: NewPrimitive(Template(KU32))},
	})

	d, changed, err := s1.Diff(s2)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !changed {
		t.Fatalf("expected a diff")
	}
	if len(d.Struct.Children) != 2 {
		t.Fatalf("diff children = %d, want 2", len(d.Struct.Children))
	}
	if d.Struct.Children[0].Name != "field2" || d.Struct.Children[1].Name != "field3" {
		t.Errorf("unexpected diff fields: %+v", d.Struct.Children)
	}
}

func TestDiffKindMismatchIsFatal(t *testing.T) {
	a := NewPrimitive(NewU32(1))
	b := NewStruct("S", nil)
	if _, _, err := a.Diff(b); err == nil {
		t.Fatalf("expected ErrKindMismatch")
	}
}

// Property 1 & property 3 combined, across several representative shapes.
func TestJSONRoundTrip(t *testing.T) {
	f, _ := felt.FromHex("0x123abc")
	original := NewStruct("P", []Member{
		{Name: "flag", Ty: NewPrimitive(NewBool(true))},
		{Name: "small", Ty: NewPrimitive(NewU32(42))},
		{Name: "big", Ty: NewPrimitive(NewFelt252(f))},
		{Name: "items", Ty: NewArray(NewPrimitive(Template(KU8)), NewPrimitive(NewU8(9)))},
		{Name: "name", Ty: NewByteArray("forge")},
	})

	v, err := original.ToJSONValue()
	if err != nil {
		t.Fatalf("ToJSONValue: %v", err)
	}

	template := NewStruct("P", []Member{
		{Name: "flag", Ty: NewPrimitive(Template(KBool))},
		{Name: "small", Ty: NewPrimitive(Template(KU32))},
		{Name: "big", Ty: NewPrimitive(Template(KFelt252))},
		{Name: "items", Ty: NewArray(NewPrimitive(Template(KU8)))},
		{Name: "name", Ty: NewByteArray("")},
	})
	if err := template.FromJSONValue(v); err != nil {
		t.Fatalf("FromJSONValue: %v", err)
	}
	if !template.Equal(original) {
		t.Errorf("JSON round-trip mismatch: got %+v, want %+v", template, original)
	}
}

func TestFixedSizeArrayRoundTrip(t *testing.T) {
	original := NewFixedSizeArray(NewPrimitive(Template(KU8)), 3,
		NewPrimitive(NewU8(1)), NewPrimitive(NewU8(2)), NewPrimitive(NewU8(3)))
	felts, err := original.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(felts) != 3 {
		t.Fatalf("len(felts) = %d, want 3", len(felts))
	}
	template := NewFixedSizeArray(NewPrimitive(Template(KU8)), 3)
	if err := template.Deserialize(&felts); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !template.Equal(original) {
		t.Errorf("fixed array round-trip mismatch")
	}
}

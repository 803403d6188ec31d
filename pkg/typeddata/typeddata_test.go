package typeddata

import (
	"testing"

	"chainforge/pkg/felt"
)

func sampleTypes() map[string]TypeDef {
	return map[string]TypeDef{
		"Person": {
			{Name: "name", Type: "shortstring"},
			{Name: "wallet", Type: "ContractAddress"},
		},
		"Mail": {
			{Name: "from", Type: "Person"},
			{Name: "to", Type: "Person"},
			{Name: "contents", Type: "shortstring"},
		},
	}
}

func TestEncodeTypeIncludesDependenciesInOrder(t *testing.T) {
	td := TypedData{Types: sampleTypes(), PrimaryType: "Mail"}
	encoded, err := td.encodeType("Mail")
	if err != nil {
		t.Fatalf("encodeType: %v", err)
	}
	want := `"Mail"("from":"Person","to":"Person","contents":"shortstring")"Person"("name":"shortstring","wallet":"ContractAddress")`
	if encoded != want {
		t.Errorf("encodeType =\n%s\nwant\n%s", encoded, want)
	}
}

func TestHashIsDeterministic(t *testing.T) {
	td := TypedData{
		Types:       sampleTypes(),
		PrimaryType: "Mail",
		Domain:      Domain{Name: "ExampleDapp", Version: "1", ChainId: "SN_MAIN"},
		Message: map[string]interface{}{
			"from": map[string]interface{}{
				"name":   "Cow",
				"wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826",
			},
			"to": map[string]interface{}{
				"name":   "Bob",
				"wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBBbBbbbb",
			},
			"contents": "Hello, Bob!",
		},
	}
	account := felt.FromUint64(0x1234)

	h1, err := td.Hash(account)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := td.Hash(account)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h1.Equal(h2) {
		t.Errorf("Hash is not deterministic: %s != %s", h1.Hex(), h2.Hex())
	}
	if h1.IsZero() {
		t.Errorf("Hash returned zero felt")
	}
}

func TestHashChangesWithMessage(t *testing.T) {
	base := TypedData{
		Types:       sampleTypes(),
		PrimaryType: "Mail",
		Domain:      Domain{Name: "ExampleDapp", Version: "1", ChainId: "SN_MAIN"},
		Message: map[string]interface{}{
			"from":     map[string]interface{}{"name": "Cow", "wallet": "0x1"},
			"to":       map[string]interface{}{"name": "Bob", "wallet": "0x2"},
			"contents": "Hello, Bob!",
		},
	}
	altered := base
	altered.Message = map[string]interface{}{
		"from":     map[string]interface{}{"name": "Cow", "wallet": "0x1"},
		"to":       map[string]interface{}{"name": "Bob", "wallet": "0x2"},
		"contents": "Goodbye, Bob!",
	}

	account := felt.FromUint64(1)
	h1, err := base.Hash(account)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := altered.Hash(account)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1.Equal(h2) {
		t.Errorf("Hash did not change when message contents changed")
	}
}

func TestEncodeMissingTypeFails(t *testing.T) {
	td := TypedData{Types: map[string]TypeDef{}, PrimaryType: "Nope", Message: map[string]interface{}{}}
	if _, err := td.Hash(felt.Zero); err == nil {
		t.Fatalf("expected ErrTypeNotFound")
	}
}

func TestEncodeMissingFieldFails(t *testing.T) {
	td := TypedData{
		Types:       map[string]TypeDef{"Simple": {{Name: "a", Type: "felt"}}},
		PrimaryType: "Simple",
		Message:     map[string]interface{}{},
	}
	if _, err := td.Hash(felt.Zero); err == nil {
		t.Fatalf("expected ErrFieldNotFound")
	}
}

func TestHashEnumValue(t *testing.T) {
	types := map[string]TypeDef{
		"Wrapper": {{Name: "choice", Type: "enum"}},
	}
	td := TypedData{Types: types, PrimaryType: "Wrapper"}

	a := map[string]interface{}{
		"choice": map[string]interface{}{
			"variant_index": 0,
			"params":        []interface{}{"1"},
		},
	}
	b := map[string]interface{}{
		"choice": map[string]interface{}{
			"variant_index": 1,
			"params":        []interface{}{"1"},
		},
	}
	td.Message = a
	h1, err := td.Hash(felt.Zero)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	td.Message = b
	h2, err := td.Hash(felt.Zero)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1.Equal(h2) {
		t.Errorf("expected different variant indices to hash differently")
	}
}

func TestArrayFieldHashing(t *testing.T) {
	types := map[string]TypeDef{
		"Basket": {{Name: "items", Type: "felt*"}},
	}
	td := TypedData{
		Types:       types,
		PrimaryType: "Basket",
		Message: map[string]interface{}{
			"items": []interface{}{"1", "2", "3"},
		},
	}
	h1, err := td.Hash(felt.Zero)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	td.Message = map[string]interface{}{"items": []interface{}{"1", "2"}}
	h2, err := td.Hash(felt.Zero)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1.Equal(h2) {
		t.Errorf("expected different array lengths to hash differently")
	}
}

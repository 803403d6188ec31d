// Package typeddata implements the canonical SNIP-12-style structured-data
// hasher, used both at transaction construction and on the
// indexer's event-message path: encode_type canonicalization, Poseidon
// struct/enum hashing, and ByteArray/shortstring/selector encodings.
package typeddata

import (
	"fmt"
	"sort"
	"strings"

	"chainforge/pkg/felt"
)

// Field is a single named, typed member of a TypeDef.
type Field struct {
	Name string
	Type string
}

// TypeDef is an ordered field list for a named SNIP-12 type.
type TypeDef []Field

// Domain is the fixed StarknetDomain structure.
type Domain struct {
	Name     string
	Version  string
	ChainId  string
	Revision string
}

// starknetDomainType is the canonical, fixed StarknetDomain layout.
var starknetDomainType = TypeDef{
	{Name: "name", Type: "shortstring"},
	{Name: "version", Type: "shortstring"},
	{Name: "chainId", Type: "shortstring"},
	{Name: "revision", Type: "shortstring"},
}

// TypedData is the full structured-data value: the type graph, the
// primary type, the domain, and the message.
type TypedData struct {
	Types       map[string]TypeDef
	PrimaryType string
	Domain      Domain
	Message     map[string]interface{}
}

// primitiveTypes are leaf SNIP-12 types that encode directly to a felt
// rather than being looked up in Types.
var primitiveTypes = map[string]bool{
	"felt": true, "felt252": true, "ContractAddress": true, "ClassHash": true,
	"u128": true, "i128": true, "bool": true, "timestamp": true,
	"shortstring": true, "string": true, "selector": true, "merkletree": true,
}

func isArrayType(t string) (string, bool) {
	if strings.HasSuffix(t, "*") {
		return strings.TrimSuffix(t, "*"), true
	}
	return "", false
}

// Hash computes poseidon(prefix, domain_hash, account, message_hash).
func (td TypedData) Hash(account felt.Felt) (felt.Felt, error) {
	if td.Domain.Revision != "" && td.Domain.Revision != "1" {
		return felt.Zero, ErrInvalidDomain
	}

	prefix := shortstring("StarkNet Message")

	domainMsg := map[string]interface{}{
		"name":     td.Domain.Name,
		"version":  td.Domain.Version,
		"chainId":  td.Domain.ChainId,
		"revision": valueOrDefault(td.Domain.Revision, "1"),
	}
	domainHash, err := td.encode("StarknetDomain", domainMsg)
	if err != nil {
		return felt.Zero, err
	}

	messageHash, err := td.encode(td.PrimaryType, td.Message)
	if err != nil {
		return felt.Zero, err
	}

	return felt.Poseidon(prefix, domainHash, account, messageHash), nil
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (td TypedData) lookupType(name string) (TypeDef, bool) {
	if name == "StarknetDomain" {
		return starknetDomainType, true
	}
	t, ok := td.Types[name]
	return t, ok
}

// encode emits poseidon([type_selector, field_1_hash, ..., field_n_hash]).
func (td TypedData) encode(typeName string, value map[string]interface{}) (felt.Felt, error) {
	def, ok := td.lookupType(typeName)
	if !ok {
		return felt.Zero, fmt.Errorf("%w: %s", ErrTypeNotFound, typeName)
	}

	encodedType, err := td.encodeType(typeName)
	if err != nil {
		return felt.Zero, err
	}
	elems := []felt.Felt{felt.StarknetKeccak([]byte(encodedType))}

	for _, f := range def {
		raw, ok := value[f.Name]
		if !ok {
			return felt.Zero, fmt.Errorf("%w: %s.%s", ErrFieldNotFound, typeName, f.Name)
		}
		h, err := td.hashField(f.Type, raw)
		if err != nil {
			return felt.Zero, err
		}
		elems = append(elems, h)
	}
	return felt.PoseidonHashMany(elems), nil
}

func (td TypedData) hashField(fieldType string, raw interface{}) (felt.Felt, error) {
	if elemType, ok := isArrayType(fieldType); ok {
		values, ok := raw.([]interface{})
		if !ok {
			return felt.Zero, fmt.Errorf("%w: expected array for %s", ErrInvalidValue, fieldType)
		}
		elems := make([]felt.Felt, 0, len(values)+1)
		elems = append(elems, felt.FromUint64(uint64(len(values))))
		for _, v := range values {
			h, err := td.hashField(elemType, v)
			if err != nil {
				return felt.Zero, err
			}
			elems = append(elems, h)
		}
		return felt.PoseidonHashMany(elems), nil
	}

	if fieldType == "enum" {
		return td.hashEnumValue(raw)
	}

	if !primitiveTypes[fieldType] {
		if _, ok := td.lookupType(fieldType); ok {
			nested, ok := raw.(map[string]interface{})
			if !ok {
				return felt.Zero, fmt.Errorf("%w: expected object for %s", ErrInvalidValue, fieldType)
			}
			return td.encode(fieldType, nested)
		}
		return felt.Zero, fmt.Errorf("%w: %s", ErrTypeNotFound, fieldType)
	}

	return encodePrimitiveValue(fieldType, raw)
}

// hashEnumValue hashes poseidon([variant_index, hash(v1), ..., hash(vk)]).
func (td TypedData) hashEnumValue(raw interface{}) (felt.Felt, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return felt.Zero, fmt.Errorf("%w: expected object", ErrInvalidValue)
	}
	variantIdx, ok := obj["variant_index"].(int)
	if !ok {
		if f, isFloat := obj["variant_index"].(float64); isFloat {
			variantIdx = int(f)
		} else {
			return felt.Zero, fmt.Errorf("%w: missing variant_index", ErrInvalidEnum)
		}
	}
	params, _ := obj["params"].([]interface{})
	if len(params) == 0 && obj["params"] == nil {
		return felt.Zero, fmt.Errorf("%w: enum with zero entries", ErrInvalidEnum)
	}

	elems := []felt.Felt{felt.FromUint64(uint64(variantIdx))}
	for _, p := range params {
		f, err := toFeltValue(p)
		if err != nil {
			return felt.Zero, err
		}
		elems = append(elems, f)
	}
	return felt.PoseidonHashMany(elems), nil
}

// encodeType produces the canonical SNIP-12 string: the primary type's
// definition, followed by the definition of every transitively-referenced
// custom type, collected depth-first and then sorted by lowercase name.
func (td TypedData) encodeType(name string) (string, error) {
	def, ok := td.lookupType(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}

	deps := map[string]bool{}
	td.collectDeps(name, def, deps)
	delete(deps, name)

	ordered := make([]string, 0, len(deps))
	for d := range deps {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return strings.ToLower(ordered[i]) < strings.ToLower(ordered[j])
	})

	var sb strings.Builder
	sb.WriteString(formatTypeDef(name, def))
	for _, d := range ordered {
		depDef, _ := td.lookupType(d)
		sb.WriteString(formatTypeDef(d, depDef))
	}
	return sb.String(), nil
}

func (td TypedData) collectDeps(name string, def TypeDef, seen map[string]bool) {
	if seen[name] {
		return
	}
	seen[name] = true
	for _, f := range def {
		t := f.Type
		if elemType, ok := isArrayType(t); ok {
			t = elemType
		}
		if primitiveTypes[t] || t == "enum" {
			continue
		}
		if nested, ok := td.lookupType(t); ok {
			td.collectDeps(t, nested, seen)
		}
	}
}

func formatTypeDef(name string, def TypeDef) string {
	parts := make([]string, len(def))
	for i, f := range def {
		parts[i] = fmt.Sprintf("\"%s\":\"%s\"", f.Name, f.Type)
	}
	return fmt.Sprintf("\"%s\"(%s)", name, strings.Join(parts, ","))
}

package forkstate

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"chainforge/internal/blockingpool"
	"chainforge/pkg/felt"
)

// contractState caches the two per-contract columns the backend serves
// per address. Either field may be its zero value, meaning "unknown, go
// fetch": zero cannot be told apart from an absent entry.
type contractState struct {
	nonce     felt.Felt
	hasNonce  bool
	classHash felt.Felt
	hasClass  bool
}

// CachedClass bundles a fetched contract class with whether it is a legacy
// (pre-Sierra) definition, so CompiledClassHash can pick the right
// derivation path without a second round trip to the provider.
type CachedClass struct {
	Raw    []byte
	Legacy bool
}

// SharedStateProvider is the façade the rest of the system reads
// through. Reads check the cache first under
// a read lock; a miss forwards to the backend handle, inserts on success,
// and returns. ContractNotFound/ClassHashNotFound upstream errors collapse
// to (zero value, false); every other error propagates.
type SharedStateProvider struct {
	handle *BackendHandle
	cpu    *blockingpool.Pool

	mu                  sync.RWMutex
	contracts           map[felt.Felt]contractState
	storage             map[felt.Felt]map[felt.Felt]*felt.Felt // nil value = cached absence
	compiledClassHashes map[felt.Felt]felt.Felt
	classes             map[felt.Felt]CachedClass
}

// NewSharedStateProvider wraps handle with an in-memory cache. cpu is the
// blocking pool used to dispatch Sierra compiled-class-hash derivation
// (CPU-bound) off the caller's goroutine; pass nil to run it inline.
func NewSharedStateProvider(handle *BackendHandle, cpu *blockingpool.Pool) *SharedStateProvider {
	return &SharedStateProvider{
		handle:              handle,
		cpu:                 cpu,
		contracts:           make(map[felt.Felt]contractState),
		storage:             make(map[felt.Felt]map[felt.Felt]*felt.Felt),
		compiledClassHashes: make(map[felt.Felt]felt.Felt),
		classes:             make(map[felt.Felt]CachedClass),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) || errors.Is(err, ErrClassHashNotFound)
}

// Nonce returns the nonce of address, or (Zero, false) if the upstream
// provider reports the contract does not exist. A zero-valued cache entry
// is treated as a miss and refetched.
func (s *SharedStateProvider) Nonce(ctx context.Context, address felt.Felt) (felt.Felt, bool, error) {
	s.mu.RLock()
	cs, ok := s.contracts[address]
	s.mu.RUnlock()
	if ok && cs.hasNonce && !cs.nonce.IsZero() {
		return cs.nonce, true, nil
	}

	v, err := s.handle.Nonce(ctx, address)
	if err != nil {
		if isNotFound(err) {
			return felt.Zero, false, nil
		}
		return felt.Zero, false, err
	}

	s.mu.Lock()
	cs = s.contracts[address]
	cs.nonce, cs.hasNonce = v, true
	s.contracts[address] = cs
	s.mu.Unlock()
	return v, true, nil
}

// ClassHashAt returns the class hash deployed at address, with the same
// not-found and zero-value-miss semantics as Nonce.
func (s *SharedStateProvider) ClassHashAt(ctx context.Context, address felt.Felt) (felt.Felt, bool, error) {
	s.mu.RLock()
	cs, ok := s.contracts[address]
	s.mu.RUnlock()
	if ok && cs.hasClass && !cs.classHash.IsZero() {
		return cs.classHash, true, nil
	}

	v, err := s.handle.ClassHashAt(ctx, address)
	if err != nil {
		if isNotFound(err) {
			return felt.Zero, false, nil
		}
		return felt.Zero, false, err
	}

	s.mu.Lock()
	cs = s.contracts[address]
	cs.classHash, cs.hasClass = v, true
	s.contracts[address] = cs
	s.mu.Unlock()
	return v, true, nil
}

// StorageAt returns the value stored at key in address's storage. A cached
// nil pointer records a confirmed absence and is returned
// as (Zero, nil) without a fresh round trip.
func (s *SharedStateProvider) StorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error) {
	s.mu.RLock()
	if slots, ok := s.storage[address]; ok {
		if v, ok := slots[key]; ok {
			s.mu.RUnlock()
			if v == nil {
				return felt.Zero, nil
			}
			return *v, nil
		}
	}
	s.mu.RUnlock()

	v, err := s.handle.StorageAt(ctx, address, key)
	if err != nil && !isNotFound(err) {
		return felt.Zero, err
	}

	s.mu.Lock()
	slots, ok := s.storage[address]
	if !ok {
		slots = make(map[felt.Felt]*felt.Felt)
		s.storage[address] = slots
	}
	if err != nil {
		slots[key] = nil
	} else {
		vv := v
		slots[key] = &vv
	}
	s.mu.Unlock()

	if err != nil {
		return felt.Zero, nil
	}
	return v, nil
}

// Class returns the raw class definition for classHash, or a zero
// CachedClass and false if the upstream provider reports no such class.
func (s *SharedStateProvider) Class(ctx context.Context, classHash felt.Felt) (CachedClass, bool, error) {
	s.mu.RLock()
	c, ok := s.classes[classHash]
	s.mu.RUnlock()
	if ok {
		return c, true, nil
	}

	raw, err := s.handle.Class(ctx, classHash)
	if err != nil {
		if isNotFound(err) {
			return CachedClass{}, false, nil
		}
		return CachedClass{}, false, err
	}

	c = CachedClass{Raw: raw, Legacy: isLegacyClassRaw(raw)}
	s.mu.Lock()
	s.classes[classHash] = c
	s.mu.Unlock()
	return c, true, nil
}

// CompiledClassHash derives the Sierra-to-CASM compiled class hash for
// classHash, caching the result. Legacy (Cairo 0) classes use the class
// hash itself as the compiled hash, a deliberate self-reference, not a
// bug.
func (s *SharedStateProvider) CompiledClassHash(ctx context.Context, classHash felt.Felt) (felt.Felt, error) {
	s.mu.RLock()
	v, ok := s.compiledClassHashes[classHash]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	class, found, err := s.Class(ctx, classHash)
	if err != nil {
		return felt.Zero, err
	}
	if !found {
		return felt.Zero, ErrClassHashNotFound
	}

	var compiled felt.Felt
	if class.Legacy {
		compiled = classHash
	} else {
		compiled, err = s.deriveSierraCompiledHash(ctx, classHash, class.Raw)
		if err != nil {
			return felt.Zero, err
		}
	}

	s.mu.Lock()
	s.compiledClassHashes[classHash] = compiled
	s.mu.Unlock()
	return compiled, nil
}

// deriveSierraCompiledHash obtains the compiled hash of a Sierra class by
// asking the backend handle (the provider's GetCompiledClassHash), running
// that call on the CPU-blocking pool shared with internal/rpc when one is
// set. It does not compute the hash locally: the already-fetched class
// body passed in is not used.
func (s *SharedStateProvider) deriveSierraCompiledHash(ctx context.Context, classHash felt.Felt, _ []byte) (felt.Felt, error) {
	compute := func() (interface{}, error) {
		return s.handle.CompiledClassHash(ctx, classHash)
	}
	if s.cpu == nil {
		v, err := compute()
		if err != nil {
			return felt.Zero, err
		}
		return v.(felt.Felt), nil
	}
	v, err := s.cpu.Submit(ctx, compute)
	if err != nil {
		return felt.Zero, err
	}
	return v.(felt.Felt), nil
}

// isLegacyClassRaw classifies a raw contract-class JSON payload as legacy
// (Cairo 0, no "sierra_program" member) vs Sierra, by presence of the key
// rather than a full unmarshal; the cache only needs the classification,
// not the parsed class.
func isLegacyClassRaw(raw []byte) bool {
	return !bytes.Contains(raw, []byte(`"sierra_program"`))
}

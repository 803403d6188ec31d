package forkstate

import (
	"context"

	"chainforge/pkg/felt"
)

// Felt is a type alias so forkstate's public API can name the concrete
// field-element type without every caller importing pkg/felt directly for
// the handle's method signatures.
type Felt = felt.Felt

// Provider is the remote JSON-RPC collaborator the backend goroutine
// forwards cache misses to. A thin client built on
// github.com/ethereum/go-ethereum/rpc satisfies this against a real
// Starknet-speaking endpoint; tests supply an in-memory fake.
type Provider interface {
	GetNonce(ctx context.Context, block BlockID, address Felt) (Felt, error)
	GetClassHashAt(ctx context.Context, block BlockID, address Felt) (Felt, error)
	GetStorageAt(ctx context.Context, block BlockID, address, key Felt) (Felt, error)
	GetClass(ctx context.Context, block BlockID, classHash Felt) ([]byte, error)
	GetCompiledClassHash(ctx context.Context, block BlockID, classHash Felt) (Felt, error)
}

// ErrContractNotFound and ErrClassHashNotFound are the two upstream
// not-found errors the shared state provider converts to (value, false) at
// the cache boundary; every other Provider error propagates
// unchanged.
var (
	ErrContractNotFound  = providerNotFoundError("forkstate: contract not found")
	ErrClassHashNotFound = providerNotFoundError("forkstate: class hash not found")
)

type providerNotFoundError string

func (e providerNotFoundError) Error() string { return string(e) }

package forkstate

import (
	"context"

	"chainforge/internal/starknetrpc"
	"chainforge/pkg/felt"
)

// RPCProvider adapts a starknetrpc.Client to the Provider interface the
// backend goroutine talks to, translating forkstate's BlockID into the
// client's BlockRef wire shape.
type RPCProvider struct {
	Client *starknetrpc.Client
}

func toBlockRef(b BlockID) starknetrpc.BlockRef {
	switch {
	case b.Number != nil:
		return starknetrpc.ByNumber(*b.Number)
	case b.Hash != nil:
		return starknetrpc.ByHash(*b.Hash)
	default:
		return starknetrpc.Latest()
	}
}

func (p RPCProvider) GetNonce(ctx context.Context, block BlockID, address felt.Felt) (felt.Felt, error) {
	v, err := p.Client.GetNonce(ctx, toBlockRef(block), address)
	return v, translateNotFound(err)
}

func (p RPCProvider) GetClassHashAt(ctx context.Context, block BlockID, address felt.Felt) (felt.Felt, error) {
	v, err := p.Client.GetClassHashAt(ctx, toBlockRef(block), address)
	return v, translateNotFound(err)
}

func (p RPCProvider) GetStorageAt(ctx context.Context, block BlockID, address, key felt.Felt) (felt.Felt, error) {
	v, err := p.Client.GetStorageAt(ctx, toBlockRef(block), address, key)
	return v, translateNotFound(err)
}

func (p RPCProvider) GetClass(ctx context.Context, block BlockID, classHash felt.Felt) ([]byte, error) {
	v, err := p.Client.GetClass(ctx, toBlockRef(block), classHash)
	return v, translateNotFound(err)
}

func (p RPCProvider) GetCompiledClassHash(ctx context.Context, block BlockID, classHash felt.Felt) (felt.Felt, error) {
	v, err := p.Client.GetCompiledClassHash(ctx, toBlockRef(block), classHash)
	return v, translateNotFound(err)
}

// translateNotFound maps starknetrpc's not-found sentinels onto
// forkstate's own, so SharedStateProvider's isNotFound check does not
// need to import starknetrpc.
func translateNotFound(err error) error {
	switch {
	case err == nil:
		return nil
	case starknetrpc.ContractNotFound(err):
		return ErrContractNotFound
	case starknetrpc.ClassHashNotFound(err):
		return ErrClassHashNotFound
	default:
		return err
	}
}

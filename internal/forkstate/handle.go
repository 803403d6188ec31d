package forkstate

import "context"

// BackendHandle is the client-facing side of a Backend. Multiple
// goroutines may share one handle; every call is safe for concurrent use
// since each just sends a request and waits on its own private reply
// channel.
type BackendHandle struct {
	requests chan<- backendRequest
}

func (h *BackendHandle) call(ctx context.Context, key requestKey) (Response, error) {
	reply := make(chan Response, 1)
	select {
	case h.requests <- backendRequest{key: key, reply: reply}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, res.Err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Nonce fetches the nonce of address as of the backend's pinned block.
func (h *BackendHandle) Nonce(ctx context.Context, address Felt) (Felt, error) {
	res, err := h.call(ctx, requestKey{kind: KindNonce, address: address})
	return res.Felt, err
}

// StorageAt fetches the value stored at key in address's storage as of the
// backend's pinned block.
func (h *BackendHandle) StorageAt(ctx context.Context, address, key Felt) (Felt, error) {
	res, err := h.call(ctx, requestKey{kind: KindStorage, address: address, key: key})
	return res.Felt, err
}

// ClassHashAt fetches the class hash deployed at address.
func (h *BackendHandle) ClassHashAt(ctx context.Context, address Felt) (Felt, error) {
	res, err := h.call(ctx, requestKey{kind: KindClassHashAt, address: address})
	return res.Felt, err
}

// Class fetches the raw contract class definition for classHash.
func (h *BackendHandle) Class(ctx context.Context, classHash Felt) ([]byte, error) {
	res, err := h.call(ctx, requestKey{kind: KindClass, hash: classHash})
	return res.Class, err
}

// CompiledClassHash fetches the Sierra-to-CASM compiled class hash for
// classHash.
func (h *BackendHandle) CompiledClassHash(ctx context.Context, classHash Felt) (Felt, error) {
	res, err := h.call(ctx, requestKey{kind: KindCompiledClassHash, hash: classHash})
	return res.Felt, err
}

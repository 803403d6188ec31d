package indexer

import (
	"context"

	"chainforge/internal/eventfetch"
	"chainforge/pkg/felt"
)

// localEventSource adapts an eventfetch.Client/PendingClient pair (the
// sequencer's own local RPC surface) into the engine's EventSource.
type localEventSource struct {
	client        eventfetch.Client
	pendingClient eventfetch.PendingClient
}

// NewLocalEventSource builds the default EventSource, driving
// internal/eventfetch's range and pending fetchers directly against the
// local node.
func NewLocalEventSource(client eventfetch.Client, pendingClient eventfetch.PendingClient) EventSource {
	return &localEventSource{client: client, pendingClient: pendingClient}
}

func (s *localEventSource) FetchRange(ctx context.Context, addresses []felt.Felt, from, to uint64, cursor eventfetch.CursorMap, chunkSize int) ([]eventfetch.BlockEvents, error) {
	return eventfetch.FetchRange(ctx, s.client, addresses, from, to, cursor, chunkSize)
}

func (s *localEventSource) FetchPending(ctx context.Context, latestConfirmedHash felt.Felt) (*eventfetch.PendingBatch, error) {
	return eventfetch.FetchPending(ctx, s.pendingClient, latestConfirmedHash)
}

package eventfetch

import (
	"context"
	"fmt"

	"chainforge/internal/starknetrpc"
	"chainforge/pkg/felt"
)

// PendingClient is the subset of starknetrpc.Client the pending-fetch step
// needs.
type PendingClient interface {
	GetBlockWithReceiptsPending(ctx context.Context) (starknetrpc.BlockWithReceipts, error)
}

// PendingBatch is the pending block's not-yet-confirmed transactions and
// events, carried through to the indexer's pending-processing step.
type PendingBatch struct {
	Timestamp    uint64
	Transactions []TxEvents
}

// FetchPending requests the pending block with receipts and compares its
// parent hash against latestConfirmedHash. A mismatch means a new block
// was mined between polling ticks: the caller should treat
// this as "no pending" and let the next tick pick it up as a range fetch,
// signalled here by (nil, nil).
func FetchPending(ctx context.Context, client PendingClient, latestConfirmedHash felt.Felt) (*PendingBatch, error) {
	block, err := client.GetBlockWithReceiptsPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventfetch: fetch pending: %w", err)
	}

	parent, err := felt.FromHex(block.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("eventfetch: invalid parent_hash %q: %w", block.ParentHash, err)
	}
	if !parent.Equal(latestConfirmedHash) {
		return nil, nil
	}

	batch := &PendingBatch{Timestamp: block.Timestamp}
	for _, rtx := range block.Transactions {
		txHash, err := felt.FromHex(rtx.Transaction.TransactionHash)
		if err != nil {
			return nil, fmt.Errorf("eventfetch: invalid transaction_hash %q: %w", rtx.Transaction.TransactionHash, err)
		}
		events := make([]Event, 0, len(rtx.Receipt.Events))
		for _, re := range rtx.Receipt.Events {
			ev, err := decodeRawEvent(re)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		batch.Transactions = append(batch.Transactions, TxEvents{TransactionHash: txHash, Events: events})
	}
	return batch, nil
}

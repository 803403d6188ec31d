package starknetrpc

import (
	"context"
	"fmt"
)

// BlockWithReceipts is the subset of a get_block_with_receipts response
// internal/eventfetch needs for its pending-fetch step.
type BlockWithReceipts struct {
	BlockHash    string        `json:"block_hash"`
	ParentHash   string        `json:"parent_hash"`
	Timestamp    uint64        `json:"timestamp"`
	Transactions []ReceiptedTx `json:"transactions"`
}

// ReceiptedTx pairs a transaction hash with its emitted events, which is
// all the pending-fetch path needs out of the full receipt.
type ReceiptedTx struct {
	Transaction struct {
		TransactionHash string `json:"transaction_hash"`
	} `json:"transaction"`
	Receipt struct {
		Events []RawEvent `json:"events"`
	} `json:"receipt"`
}

// GetBlockWithReceiptsPending fetches the pending block with full receipts.
func (c *Client) GetBlockWithReceiptsPending(ctx context.Context) (BlockWithReceipts, error) {
	var out BlockWithReceipts
	if err := c.rpc.CallContext(ctx, &out, "starknet_getBlockWithReceipts", Pending()); err != nil {
		return BlockWithReceipts{}, fmt.Errorf("starknetrpc: get_block_with_receipts(pending): %w", err)
	}
	return out, nil
}

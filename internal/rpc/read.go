package rpc

import (
	"context"
	"encoding/json"

	"chainforge/internal/sequencer"
	"chainforge/internal/starknetrpc"
	"chainforge/pkg/felt"
)

func toBlockRef(id sequencer.BlockID) starknetrpc.BlockRef {
	switch {
	case id.Hash != nil:
		return starknetrpc.ByHash(*id.Hash)
	case id.Number != nil:
		return starknetrpc.ByNumber(*id.Number)
	case id.Tag == sequencer.TagPending:
		return starknetrpc.Pending()
	default:
		return starknetrpc.Latest()
	}
}

// precedesForkPoint reports whether the requested view may live below the
// fork point and therefore belongs to the upstream.
func (s *Server) precedesForkPoint(id sequencer.BlockID) bool {
	if s.fork == nil || s.cfg.ForkPoint == nil {
		return false
	}
	return id.Number != nil && *id.Number <= *s.cfg.ForkPoint
}

func (s *Server) chainID(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return shortStringHex(s.core.ChainID()), nil
}

func shortStringHex(str string) string {
	return felt.FromBytesBE([]byte(str)).Hex()
}

func (s *Server) blockNumber(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.core.LatestNumber(), nil
}

func (s *Server) blockHashAndNumber(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"block_hash":   s.core.LatestHash().Hex(),
		"block_number": s.core.LatestNumber(),
	}, nil
}

// pendingHeader synthesizes the partial header for the pending tag from
// the executor's block env plus the provider's latest hash.
func (s *Server) pendingHeader() (blockHeaderJSON, sequencer.PendingExecutor, bool) {
	pe, ok := s.core.PendingExecutorHandle()
	if !ok {
		return blockHeaderJSON{}, nil, false
	}
	env := pe.BlockEnv()
	return blockHeaderJSON{
		ParentHash:       s.core.LatestHash().Hex(),
		BlockNumber:      env.Number,
		Timestamp:        env.Timestamp,
		SequencerAddress: env.SequencerAddress.Hex(),
		Status:           "PENDING",
	}, pe, true
}

func toHeaderJSON(b sequencer.Block) blockHeaderJSON {
	return blockHeaderJSON{
		BlockHash:        b.Hash.Hex(),
		ParentHash:       b.ParentHash.Hex(),
		BlockNumber:      b.Number,
		Timestamp:        b.Timestamp,
		SequencerAddress: b.SequencerAddress.Hex(),
		Status:           "ACCEPTED_ON_L2",
	}
}

func (s *Server) getBlockWithTxHashes(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var id blockID
	if err := bindParams(params, []string{"block_id"}, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	if id.inner.IsPending() {
		if header, pe, ok := s.pendingHeader(); ok {
			txs := pe.Transactions()
			out := blockWithTxHashesJSON{blockHeaderJSON: header}
			for _, tx := range txs {
				out.Transactions = append(out.Transactions, tx.Hash.Hex())
			}
			return out, nil
		}
	}
	block, ok := s.core.BlockByID(id.inner)
	if !ok {
		return nil, blockNotFound()
	}
	out := blockWithTxHashesJSON{blockHeaderJSON: toHeaderJSON(block)}
	for _, h := range block.TxHashes {
		out.Transactions = append(out.Transactions, h.Hex())
	}
	if out.Transactions == nil {
		for _, tx := range block.Transactions {
			out.Transactions = append(out.Transactions, tx.Hash.Hex())
		}
	}
	return out, nil
}

func (s *Server) getBlockWithTxs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var id blockID
	if err := bindParams(params, []string{"block_id"}, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	if id.inner.IsPending() {
		if header, pe, ok := s.pendingHeader(); ok {
			out := blockWithTxsJSON{blockHeaderJSON: header}
			for _, tx := range pe.Transactions() {
				out.Transactions = append(out.Transactions, toTxJSON(tx))
			}
			return out, nil
		}
	}
	block, ok := s.core.BlockByID(id.inner)
	if !ok {
		return nil, blockNotFound()
	}
	out := blockWithTxsJSON{blockHeaderJSON: toHeaderJSON(block)}
	for _, tx := range block.Transactions {
		out.Transactions = append(out.Transactions, toTxJSON(tx))
	}
	return out, nil
}

func (s *Server) getBlockWithReceipts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var id blockID
	if err := bindParams(params, []string{"block_id"}, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	if id.inner.IsPending() {
		if header, pe, ok := s.pendingHeader(); ok {
			out := blockWithReceiptsJSON{blockHeaderJSON: header}
			txs := pe.Transactions()
			receipts := pe.Receipts()
			for i, tx := range txs {
				entry := txWithReceiptJSON{Transaction: toTxJSON(tx)}
				if i < len(receipts) {
					entry.Receipt = toReceiptJSON(receipts[i], false)
				}
				out.Transactions = append(out.Transactions, entry)
			}
			return out, nil
		}
	}
	block, ok := s.core.BlockByID(id.inner)
	if !ok {
		return nil, blockNotFound()
	}
	out := blockWithReceiptsJSON{blockHeaderJSON: toHeaderJSON(block)}
	for i, tx := range block.Transactions {
		entry := txWithReceiptJSON{Transaction: toTxJSON(tx)}
		if i < len(block.Receipts) {
			entry.Receipt = toReceiptJSON(block.Receipts[i], true)
		}
		out.Transactions = append(out.Transactions, entry)
	}
	return out, nil
}

func (s *Server) getStateUpdate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var id blockID
	if err := bindParams(params, []string{"block_id"}, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	block, ok := s.core.BlockByID(id.inner)
	if !ok {
		return nil, blockNotFound()
	}
	return map[string]interface{}{
		"block_hash": block.Hash.Hex(),
		"old_root":   felt.Zero.Hex(),
		"new_root":   felt.Zero.Hex(),
		"state_diff": map[string]interface{}{
			"storage_diffs":               []interface{}{},
			"deployed_contracts":          []interface{}{},
			"declared_classes":            []interface{}{},
			"deprecated_declared_classes": []interface{}{},
			"nonces":                      []interface{}{},
			"replaced_classes":            []interface{}{},
		},
	}, nil
}

func (s *Server) getStorageAt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		addr feltJSON
		key  feltJSON
		id   blockID
	)
	if err := bindParams(params, []string{"contract_address", "key", "block_id"}, &addr, &key, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	if s.precedesForkPoint(id.inner) {
		v, err := s.fork.GetStorageAt(ctx, toBlockRef(id.inner), addr.Felt, key.Felt)
		if err != nil {
			if starknetrpc.ContractNotFound(err) {
				return nil, contractNotFound()
			}
			return nil, err
		}
		return v.Hex(), nil
	}
	if v, ok := s.core.Storage(id.inner, addr.Felt, key.Felt); ok {
		return v.Hex(), nil
	}
	if s.fork != nil {
		v, err := s.fork.GetStorageAt(ctx, toBlockRef(id.inner), addr.Felt, key.Felt)
		if err == nil {
			return v.Hex(), nil
		}
		if !starknetrpc.ContractNotFound(err) {
			return nil, err
		}
	}
	return nil, contractNotFound()
}

func (s *Server) getNonce(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		id   blockID
		addr feltJSON
	)
	if err := bindParams(params, []string{"block_id", "contract_address"}, &id, &addr); err != nil {
		return nil, validationErr("%v", err)
	}
	if v, ok := s.core.NonceAt(id.inner, addr.Felt); ok {
		return v.Hex(), nil
	}
	if s.fork != nil {
		v, err := s.fork.GetNonce(ctx, toBlockRef(id.inner), addr.Felt)
		if err == nil {
			return v.Hex(), nil
		}
		if !starknetrpc.ContractNotFound(err) {
			return nil, err
		}
	}
	return nil, contractNotFound()
}

func (s *Server) getClassHashAt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		id   blockID
		addr feltJSON
	)
	if err := bindParams(params, []string{"block_id", "contract_address"}, &id, &addr); err != nil {
		return nil, validationErr("%v", err)
	}
	if v, ok := s.core.ClassHashOfContract(id.inner, addr.Felt); ok {
		return v.Hex(), nil
	}
	if s.fork != nil {
		v, err := s.fork.GetClassHashAt(ctx, toBlockRef(id.inner), addr.Felt)
		if err == nil {
			return v.Hex(), nil
		}
		if !starknetrpc.ContractNotFound(err) {
			return nil, err
		}
	}
	return nil, contractNotFound()
}

func (s *Server) getClass(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		id        blockID
		classHash feltJSON
	)
	if err := bindParams(params, []string{"block_id", "class_hash"}, &id, &classHash); err != nil {
		return nil, validationErr("%v", err)
	}
	if raw, ok := s.core.Class(id.inner, classHash.Felt); ok {
		return json.RawMessage(raw), nil
	}
	if s.fork != nil {
		raw, err := s.fork.GetClass(ctx, toBlockRef(id.inner), classHash.Felt)
		if err == nil {
			return json.RawMessage(raw), nil
		}
		if !starknetrpc.ClassHashNotFound(err) {
			return nil, err
		}
	}
	return nil, classHashNotFound()
}

func (s *Server) getClassAt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		id   blockID
		addr feltJSON
	)
	if err := bindParams(params, []string{"block_id", "contract_address"}, &id, &addr); err != nil {
		return nil, validationErr("%v", err)
	}
	classHash, ok := s.core.ClassHashOfContract(id.inner, addr.Felt)
	if !ok {
		if s.fork != nil {
			var err error
			classHash, err = s.fork.GetClassHashAt(ctx, toBlockRef(id.inner), addr.Felt)
			if err != nil {
				if starknetrpc.ContractNotFound(err) {
					return nil, contractNotFound()
				}
				return nil, err
			}
			ok = true
		}
	}
	if !ok {
		return nil, contractNotFound()
	}
	raw, found := s.core.Class(id.inner, classHash)
	if found {
		return json.RawMessage(raw), nil
	}
	if s.fork != nil {
		body, err := s.fork.GetClass(ctx, toBlockRef(id.inner), classHash)
		if err == nil {
			return json.RawMessage(body), nil
		}
		if !starknetrpc.ClassHashNotFound(err) {
			return nil, err
		}
	}
	return nil, classHashNotFound()
}

func (s *Server) getBlockTransactionCount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var id blockID
	if err := bindParams(params, []string{"block_id"}, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	if id.inner.IsPending() {
		if _, pe, ok := s.pendingHeader(); ok {
			return len(pe.Transactions()), nil
		}
	}
	n, ok := s.core.TransactionCountByBlock(id.inner)
	if !ok {
		return nil, blockNotFound()
	}
	return n, nil
}

func (s *Server) getTransactionByHash(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var hash feltJSON
	if err := bindParams(params, []string{"transaction_hash"}, &hash); err != nil {
		return nil, validationErr("%v", err)
	}
	if tx, ok := s.core.TransactionByHash(hash.Felt); ok {
		return toTxJSON(tx), nil
	}
	return nil, txnHashNotFound()
}

func (s *Server) getTransactionByBlockIdAndIndex(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		id  blockID
		idx int
	)
	if err := bindParams(params, []string{"block_id", "index"}, &id, &idx); err != nil {
		return nil, validationErr("%v", err)
	}
	if id.inner.IsPending() {
		if _, pe, ok := s.pendingHeader(); ok {
			txs := pe.Transactions()
			if idx < 0 || idx >= len(txs) {
				return nil, invalidTxnIndex()
			}
			return toTxJSON(txs[idx]), nil
		}
	}
	if _, ok := s.core.BlockEnvAt(id.inner); !ok {
		return nil, blockNotFound()
	}
	tx, ok := s.core.TransactionByBlockAndIndex(id.inner, idx)
	if !ok {
		return nil, invalidTxnIndex()
	}
	return toTxJSON(tx), nil
}

// getTransactionStatus resolves the three tiers in order: confirmed,
// pending, received.
func (s *Server) getTransactionStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var hash feltJSON
	if err := bindParams(params, []string{"transaction_hash"}, &hash); err != nil {
		return nil, validationErr("%v", err)
	}

	fin, exec, ok := s.core.TransactionStatus(hash.Felt)
	if !ok {
		return nil, txnHashNotFound()
	}
	if fin == sequencer.FinalityReceived {
		// Known to the pool but not yet executed: no execution status to
		// report yet.
		return map[string]string{"finality_status": "RECEIVED"}, nil
	}
	return map[string]string{
		"finality_status":  finalityStatusString(fin),
		"execution_status": executionStatusString(exec),
	}, nil
}

func (s *Server) getTransactionReceipt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var hash feltJSON
	if err := bindParams(params, []string{"transaction_hash"}, &hash); err != nil {
		return nil, validationErr("%v", err)
	}
	if receipt, ok := s.core.ReceiptByHash(hash.Felt); ok {
		return toReceiptJSON(receipt, true), nil
	}
	if pe, ok := s.core.PendingExecutorHandle(); ok {
		for _, r := range pe.Receipts() {
			if r.TransactionHash.Equal(hash.Felt) {
				return toReceiptJSON(r, false), nil
			}
		}
	}
	return nil, txnHashNotFound()
}

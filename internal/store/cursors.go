package store

import (
	"context"
	"database/sql"
	"fmt"

	"chainforge/internal/indexer"
	"chainforge/pkg/felt"
)

// LoadCursors reads every contract cursor row into memory. First-run
// contracts simply have no row yet; the engine creates their cursors.
func (s *Store) LoadCursors(ctx context.Context) (map[felt.Felt]*indexer.ContractCursor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT contract_address, contract_type, head, last_block_timestamp, last_pending_block_tx, last_pending_block_contract_tx, tps FROM contracts`)
	if err != nil {
		return nil, fmt.Errorf("store: load cursors: %w", err)
	}
	defer rows.Close()

	out := map[felt.Felt]*indexer.ContractCursor{}
	for rows.Next() {
		var (
			addr, ctype          string
			head, lastTs         uint64
			pendingTx, contractTx sql.NullString
			tps                  float64
		)
		if err := rows.Scan(&addr, &ctype, &head, &lastTs, &pendingTx, &contractTx, &tps); err != nil {
			return nil, fmt.Errorf("store: scan cursor row: %w", err)
		}
		address, err := felt.FromHex(addr)
		if err != nil {
			return nil, fmt.Errorf("store: cursor address %q: %w", addr, err)
		}
		c := &indexer.ContractCursor{
			ContractAddress:    address,
			ContractType:       indexer.ContractType(ctype),
			Head:               head,
			LastBlockTimestamp: lastTs,
			TPS:                tps,
		}
		if pendingTx.Valid {
			f, err := felt.FromHex(pendingTx.String)
			if err != nil {
				return nil, fmt.Errorf("store: cursor pending tx %q: %w", pendingTx.String, err)
			}
			c.LastPendingBlockTx = &f
		}
		if contractTx.Valid {
			f, err := felt.FromHex(contractTx.String)
			if err != nil {
				return nil, fmt.Errorf("store: cursor pending contract tx %q: %w", contractTx.String, err)
			}
			c.LastPendingBlockContractTx = &f
		}
		out[address] = c
	}
	return out, rows.Err()
}

// SaveCursors writes every cursor row and publishes one SetHead message
// per contract after the batch commits.
// It finishes by committing the batch: cursor persistence is the last
// write of an indexing batch.
func (s *Store) SaveCursors(ctx context.Context, cursors []*indexer.ContractCursor) error {
	stmts := make([]stmt, 0, len(cursors))
	msgs := make([]Message, 0, len(cursors))
	for _, c := range cursors {
		var pendingTx, contractTx interface{}
		if c.LastPendingBlockTx != nil {
			pendingTx = c.LastPendingBlockTx.Hex()
		}
		if c.LastPendingBlockContractTx != nil {
			contractTx = c.LastPendingBlockContractTx.Hex()
		}
		stmts = append(stmts, stmt{
			query: `INSERT INTO contracts (id, contract_address, contract_type, head, last_block_timestamp, last_pending_block_tx, last_pending_block_contract_tx, tps)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET head = excluded.head, last_block_timestamp = excluded.last_block_timestamp,
					last_pending_block_tx = excluded.last_pending_block_tx,
					last_pending_block_contract_tx = excluded.last_pending_block_contract_tx, tps = excluded.tps`,
			args: []interface{}{c.ContractAddress.Hex(), c.ContractAddress.Hex(), string(c.ContractType), c.Head, c.LastBlockTimestamp, pendingTx, contractTx, c.TPS},
		})
		msgs = append(msgs, Message{Kind: MsgSetHead, ID: c.ContractAddress.Hex(), Head: c.Head})
	}
	if err := s.exec.Enqueue(ctx, stmts, msgs); err != nil {
		return err
	}
	return s.exec.Execute(ctx)
}

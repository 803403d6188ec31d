package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"chainforge/internal/indexer"
)

// RecordTransaction lands a fetched transaction body plus its contract
// edge rows.
func (s *Store) RecordTransaction(ctx context.Context, tx indexer.TransactionRecord, eventIDs []string) error {
	hash := tx.Hash.Hex()
	stmts := []stmt{{
		query: `INSERT OR IGNORE INTO transactions (id, transaction_hash, sender_address, calldata, max_fee, transaction_type, executed_at, block_number)
			VALUES (?, ?, ?, ?, ?, 'INVOKE', unixepoch(), ?)`,
		args: []interface{}{hash, hash, tx.SenderAddress.Hex(), joinFelts(tx.Calldata), tx.MaxFee.Hex(), tx.Block},
	}}
	if tx.ContractAddress != nil {
		stmts = append(stmts, stmt{
			query: `INSERT OR IGNORE INTO transaction_contract (transaction_hash, contract_address) VALUES (?, ?)`,
			args:  []interface{}{hash, tx.ContractAddress.Hex()},
		})
	}
	for _, id := range eventIDs {
		stmts = append(stmts, stmt{
			query: `UPDATE events SET transaction_hash = ? WHERE id = ?`,
			args:  []interface{}{hash, id},
		})
	}
	return s.exec.Enqueue(ctx, stmts, []Message{{Kind: MsgTransaction, ID: hash}})
}

// TransactionPage is one page of the torii_getTransactions feed.
type TransactionPage struct {
	Transactions []TransactionRow
	NextCursor   string
}

// TransactionRow is one row of the feed, as shaped for the RPC response.
type TransactionRow struct {
	TransactionHash string
	SenderAddress   string
	Calldata        string
	MaxFee          string
	TransactionType string
	ExecutedAt      int64
	BlockNumber     uint64
	rowid           int64
}

// Transactions serves the paged feed behind torii_getTransactions. The
// cursor is the last row's rowid rendered in decimal; an empty cursor
// starts from the beginning.
func (s *Store) Transactions(ctx context.Context, cursor string, limit int) (TransactionPage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	after := int64(0)
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return TransactionPage{}, fmt.Errorf("store: malformed transaction cursor %q: %w", cursor, err)
		}
		after = n
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid, transaction_hash, COALESCE(sender_address, ''), COALESCE(calldata, ''), COALESCE(max_fee, ''), COALESCE(transaction_type, ''), COALESCE(executed_at, 0), COALESCE(block_number, 0)
		 FROM transactions WHERE rowid > ? ORDER BY rowid LIMIT ?`, after, limit)
	if err != nil {
		return TransactionPage{}, fmt.Errorf("store: transactions page: %w", err)
	}
	defer rows.Close()

	var page TransactionPage
	for rows.Next() {
		var r TransactionRow
		var blockNumber sql.NullInt64
		if err := rows.Scan(&r.rowid, &r.TransactionHash, &r.SenderAddress, &r.Calldata, &r.MaxFee, &r.TransactionType, &r.ExecutedAt, &blockNumber); err != nil {
			return TransactionPage{}, fmt.Errorf("store: scan transaction row: %w", err)
		}
		if blockNumber.Valid {
			r.BlockNumber = uint64(blockNumber.Int64)
		}
		page.Transactions = append(page.Transactions, r)
	}
	if err := rows.Err(); err != nil {
		return TransactionPage{}, err
	}
	if len(page.Transactions) == limit {
		page.NextCursor = strconv.FormatInt(page.Transactions[len(page.Transactions)-1].rowid, 10)
	}
	return page, nil
}

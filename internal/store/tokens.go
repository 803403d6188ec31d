package store

import (
	"context"
	"fmt"

	"chainforge/pkg/felt"
)

// tokenKey is the tokens-table primary key: the contract address alone
// for fungible standards, contract:token_id for NFT standards.
func tokenKey(standard string, contract, tokenID felt.Felt) string {
	if standard == "ERC20" {
		return contract.Hex()
	}
	return contract.Hex() + ":" + tokenID.Hex()
}

// ApplyTokenTransfer registers the token on first sight and lands the
// transfer plus both balance updates. A transfer that arrives while its
// token's registration is still queued is deferred and drained right
// before the batch commit.
func (s *Store) ApplyTokenTransfer(ctx context.Context, standard string, contract, from, to, tokenID, amount felt.Felt) error {
	key := tokenKey(standard, contract, tokenID)

	s.mu.Lock()
	registered := s.tokens[key]
	if !registered {
		s.tokens[key] = true
	}
	s.mu.Unlock()

	if !registered {
		reg := []stmt{{
			query: `INSERT OR IGNORE INTO tokens (id, contract_address, token_id, standard) VALUES (?, ?, ?, ?)`,
			args:  []interface{}{key, contract.Hex(), tokenID.Hex(), standard},
		}}
		if err := s.exec.Enqueue(ctx, reg, []Message{{Kind: MsgTokenRegistered, ID: key}}); err != nil {
			return err
		}
		// The registration insert is queued but not yet applied; the
		// transfer rides the deferred queue so it lands after it.
		return s.exec.EnqueueDeferred(ctx, s.transferStmts(key, from, to, amount), s.transferMessages(key, from, to))
	}
	return s.exec.Enqueue(ctx, s.transferStmts(key, from, to, amount), s.transferMessages(key, from, to))
}

func (s *Store) transferStmts(tokenID string, from, to, amount felt.Felt) []stmt {
	amt := amount.BigInt().String()
	stmts := []stmt{{
		query: `INSERT OR IGNORE INTO token_transfers (id, token_id, from_address, to_address, amount, executed_at)
			VALUES (?, ?, ?, ?, ?, unixepoch())`,
		args: []interface{}{fmt.Sprintf("%s:%s:%s:%s", tokenID, from.Hex(), to.Hex(), amt), tokenID, from.Hex(), to.Hex(), amt},
	}}
	if !from.IsZero() {
		stmts = append(stmts, stmt{
			query: `INSERT INTO token_balances (account_address, token_id, balance) VALUES (?, ?, '0')
				ON CONFLICT(account_address, token_id) DO NOTHING`,
			args: []interface{}{from.Hex(), tokenID},
		}, stmt{
			query: `UPDATE token_balances SET balance = CAST(CAST(balance AS INTEGER) - CAST(? AS INTEGER) AS TEXT)
				WHERE account_address = ? AND token_id = ?`,
			args: []interface{}{amt, from.Hex(), tokenID},
		})
	}
	if !to.IsZero() {
		stmts = append(stmts, stmt{
			query: `INSERT INTO token_balances (account_address, token_id, balance) VALUES (?, ?, ?)
				ON CONFLICT(account_address, token_id) DO UPDATE SET balance = CAST(CAST(token_balances.balance AS INTEGER) + CAST(excluded.balance AS INTEGER) AS TEXT)`,
			args: []interface{}{to.Hex(), tokenID, amt},
		})
	}
	return stmts
}

func (s *Store) transferMessages(tokenID string, from, to felt.Felt) []Message {
	msgs := []Message{}
	if !from.IsZero() {
		msgs = append(msgs, Message{Kind: MsgTokenBalanceUpdated, ID: from.Hex() + ":" + tokenID})
	}
	if !to.IsZero() {
		msgs = append(msgs, Message{Kind: MsgTokenBalanceUpdated, ID: to.Hex() + ":" + tokenID})
	}
	return msgs
}

// ApplyMetadataUpdate invalidates a token's cached metadata so the next
// metadata fetch refreshes it. A nil tokenID invalidates the whole
// contract (the ERC-4906 batch form).
func (s *Store) ApplyMetadataUpdate(ctx context.Context, contract felt.Felt, tokenID *felt.Felt) error {
	if tokenID != nil {
		return s.exec.Enqueue(ctx, []stmt{{
			query: `UPDATE tokens SET metadata = NULL WHERE contract_address = ? AND token_id = ?`,
			args:  []interface{}{contract.Hex(), tokenID.Hex()},
		}}, nil)
	}
	return s.exec.Enqueue(ctx, []stmt{{
		query: `UPDATE tokens SET metadata = NULL WHERE contract_address = ?`,
		args:  []interface{}{contract.Hex()},
	}}, nil)
}

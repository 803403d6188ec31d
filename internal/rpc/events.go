package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"chainforge/internal/eventfetch"
	"chainforge/internal/sequencer"
	"chainforge/internal/starknetrpc"
	"chainforge/pkg/felt"
)

// coreEventsClient adapts the sequencer core's stored receipts into the
// eventfetch.Client shape so the local side of get_events pagination can
// share the forked-merge logic.
type coreEventsClient struct {
	core sequencer.Core
}

// localCursor is the position a local continuation token names: the next
// (block, transaction index, event index) triple to emit.
type localCursor struct {
	block uint64
	tx    int
	event int
}

func (c localCursor) String() string {
	return fmt.Sprintf("%d:%d:%d", c.block, c.tx, c.event)
}

func parseLocalCursor(s string) (localCursor, error) {
	if s == "" {
		return localCursor{}, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return localCursor{}, fmt.Errorf("rpc: malformed local continuation %q", s)
	}
	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return localCursor{}, fmt.Errorf("rpc: malformed local continuation %q: %w", s, err)
	}
	tx, err := strconv.Atoi(parts[1])
	if err != nil {
		return localCursor{}, fmt.Errorf("rpc: malformed local continuation %q: %w", s, err)
	}
	event, err := strconv.Atoi(parts[2])
	if err != nil {
		return localCursor{}, fmt.Errorf("rpc: malformed local continuation %q: %w", s, err)
	}
	return localCursor{block: block, tx: tx, event: event}, nil
}

func (c coreEventsClient) resolveRef(ref starknetrpc.BlockRef) uint64 {
	switch {
	case ref.Number != nil:
		return *ref.Number
	default:
		return c.core.LatestNumber()
	}
}

func matchesKeys(eventKeys []felt.Felt, filter [][]string) bool {
	for i, group := range filter {
		if len(group) == 0 {
			continue
		}
		if i >= len(eventKeys) {
			return false
		}
		found := false
		for _, alt := range group {
			f, err := felt.FromHex(alt)
			if err == nil && f.Equal(eventKeys[i]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c coreEventsClient) BatchGetEvents(ctx context.Context, filters []starknetrpc.EventFilter) ([]starknetrpc.EventPage, error) {
	out := make([]starknetrpc.EventPage, len(filters))
	for i, filter := range filters {
		page, err := c.getEventsPage(filter)
		if err != nil {
			return nil, err
		}
		out[i] = page
	}
	return out, nil
}

func (c coreEventsClient) getEventsPage(filter starknetrpc.EventFilter) (starknetrpc.EventPage, error) {
	from := c.resolveRef(filter.FromBlock)
	to := c.resolveRef(filter.ToBlock)
	cursor, err := parseLocalCursor(filter.Continuation)
	if err != nil {
		return starknetrpc.EventPage{}, err
	}
	if cursor.block > from {
		from = cursor.block
	}
	chunk := filter.ChunkSize
	if chunk <= 0 {
		chunk = 100
	}

	var addrFilter *felt.Felt
	if filter.Address != "" {
		a, err := felt.FromHex(filter.Address)
		if err != nil {
			return starknetrpc.EventPage{}, err
		}
		addrFilter = &a
	}

	var page starknetrpc.EventPage
	for n := from; n <= to; n++ {
		block, ok := c.core.BlockByID(sequencer.BlockByNumber(n))
		if !ok {
			continue
		}
		for ti, receipt := range block.Receipts {
			if n == cursor.block && ti < cursor.tx {
				continue
			}
			for ei, ev := range receipt.Events {
				if n == cursor.block && ti == cursor.tx && ei < cursor.event {
					continue
				}
				if addrFilter != nil && !ev.FromAddress.Equal(*addrFilter) {
					continue
				}
				if !matchesKeys(ev.Keys, filter.Keys) {
					continue
				}
				if len(page.Events) >= chunk {
					page.ContinuationToken = localCursor{block: n, tx: ti, event: ei}.String()
					return page, nil
				}
				page.Events = append(page.Events, starknetrpc.RawEvent{
					FromAddress:     ev.FromAddress.Hex(),
					Keys:            feltHexes(ev.Keys),
					Data:            feltHexes(ev.Data),
					BlockNumber:     n,
					BlockHash:       block.Hash.Hex(),
					TransactionHash: receipt.TransactionHash.Hex(),
				})
			}
		}
	}
	return page, nil
}

func (c coreEventsClient) BatchGetBlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(numbers))
	for _, n := range numbers {
		if env, ok := c.core.BlockEnvAt(sequencer.BlockByNumber(n)); ok {
			out[n] = env.Timestamp
		}
	}
	return out, nil
}

func (s *Server) getEvents(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var filter struct {
		FromBlock         *blockID   `json:"from_block"`
		ToBlock           *blockID   `json:"to_block"`
		Address           *feltJSON  `json:"address"`
		Keys              [][]string `json:"keys"`
		ContinuationToken string     `json:"continuation_token"`
		ChunkSize         int        `json:"chunk_size"`
	}
	if err := bindParams(params, []string{"filter"}, &filter); err != nil {
		return nil, validationErr("%v", err)
	}
	if filter.ChunkSize > s.cfg.MaxEventPageSize {
		return nil, pageSizeTooBig()
	}
	chunk := filter.ChunkSize
	if chunk <= 0 {
		chunk = s.cfg.MaxEventPageSize
	}

	resolve := func(id *blockID, fallback uint64) uint64 {
		if id == nil {
			return fallback
		}
		switch {
		case id.inner.Number != nil:
			return *id.inner.Number
		case id.inner.Hash != nil:
			if env, ok := s.core.BlockEnvAt(id.inner); ok {
				return env.Number
			}
			return fallback
		default:
			return s.core.LatestNumber()
		}
	}
	from := resolve(filter.FromBlock, 0)
	to := resolve(filter.ToBlock, s.core.LatestNumber())

	pf := eventfetch.PageFilter{FromBlock: from, ToBlock: to, Keys: nil, ChunkSize: chunk}
	if filter.Address != nil {
		pf.Address = &filter.Address.Felt
	}
	for _, group := range filter.Keys {
		row, err := parseFelts(group)
		if err != nil {
			return nil, validationErr("%v", err)
		}
		pf.Keys = append(pf.Keys, row)
	}

	local := coreEventsClient{core: s.core}
	var upstream eventfetch.Client
	forkPoint := s.cfg.ForkPoint
	if s.fork != nil {
		upstream = s.fork
	} else {
		forkPoint = nil
	}
	result, err := eventfetch.GetEventsPage(ctx, local, upstream, forkPoint, pf, filter.ContinuationToken, chunk)
	if err != nil {
		return nil, err
	}

	events := make([]map[string]interface{}, 0, len(result.Events))
	for _, ev := range result.Events {
		events = append(events, map[string]interface{}{
			"from_address":     ev.FromAddress,
			"keys":             ev.Keys,
			"data":             ev.Data,
			"block_number":     ev.BlockNumber,
			"block_hash":       ev.BlockHash,
			"transaction_hash": ev.TransactionHash,
		})
	}
	out := map[string]interface{}{"events": events}
	if result.HasNext {
		out["continuation_token"] = result.NextToken
	}
	return out, nil
}

// getTransactions is the custom torii_getTransactions feed.
func (s *Server) getTransactions(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		cursor string
		limit  int
	)
	if err := bindParams(params, []string{"cursor", "limit"}, &cursor, &limit); err != nil {
		return nil, validationErr("%v", err)
	}
	if s.feed == nil {
		return nil, validationErr("transaction feed is not enabled on this node")
	}
	page, err := s.feed.Transactions(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}
	txs := make([]map[string]interface{}, 0, len(page.Transactions))
	for _, t := range page.Transactions {
		txs = append(txs, map[string]interface{}{
			"transaction_hash": t.TransactionHash,
			"sender_address":   t.SenderAddress,
			"calldata":         t.Calldata,
			"max_fee":          t.MaxFee,
			"transaction_type": t.TransactionType,
			"executed_at":      t.ExecutedAt,
			"block_number":     t.BlockNumber,
		})
	}
	out := map[string]interface{}{"transactions": txs}
	if page.NextCursor != "" {
		out["next_cursor"] = page.NextCursor
	}
	return out, nil
}

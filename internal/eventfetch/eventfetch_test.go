package eventfetch

import (
	"context"
	"testing"

	"chainforge/internal/starknetrpc"
	"chainforge/pkg/felt"
)

type fakeClient struct {
	pagesByAddress map[string][]starknetrpc.EventPage // consumed in order per address
	callIndex      map[string]int
	timestamps     map[uint64]uint64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pagesByAddress: map[string][]starknetrpc.EventPage{},
		callIndex:      map[string]int{},
		timestamps:     map[uint64]uint64{},
	}
}

func (f *fakeClient) BatchGetEvents(ctx context.Context, filters []starknetrpc.EventFilter) ([]starknetrpc.EventPage, error) {
	out := make([]starknetrpc.EventPage, len(filters))
	for i, filt := range filters {
		pages := f.pagesByAddress[filt.Address]
		idx := f.callIndex[filt.Address]
		if idx >= len(pages) {
			out[i] = starknetrpc.EventPage{}
			continue
		}
		out[i] = pages[idx]
		f.callIndex[filt.Address] = idx + 1
	}
	return out, nil
}

func (f *fakeClient) BatchGetBlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(numbers))
	for _, n := range numbers {
		out[n] = f.timestamps[n]
	}
	return out, nil
}

func rawEvent(addr string, block uint64, tx string) starknetrpc.RawEvent {
	return starknetrpc.RawEvent{
		FromAddress:     addr,
		Keys:            []string{"0x1"},
		Data:            []string{"0x2"},
		BlockNumber:     block,
		TransactionHash: tx,
	}
}

func TestFetchRangeFollowsContinuationAndDedupsBlocks(t *testing.T) {
	addr := "0xaa"
	client := newFakeClient()
	client.pagesByAddress[addr] = []starknetrpc.EventPage{
		{Events: []starknetrpc.RawEvent{rawEvent(addr, 10, "0x1")}, ContinuationToken: "page2"},
		{Events: []starknetrpc.RawEvent{rawEvent(addr, 10, "0x2"), rawEvent(addr, 11, "0x3")}},
	}
	client.timestamps[10] = 1000
	client.timestamps[11] = 1010

	addrFelt, _ := felt.FromHex(addr)
	out, err := FetchRange(context.Background(), client, []felt.Felt{addrFelt}, 10, 11, nil, 100)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(out))
	}
	if out[0].Number != 10 || len(out[0].Transactions) != 2 {
		t.Fatalf("expected block 10 with 2 txs, got %+v", out[0])
	}
	if out[1].Number != 11 || out[1].Timestamp != 1010 {
		t.Fatalf("expected block 11 with timestamp 1010, got %+v", out[1])
	}
}

func TestFetchRangeSkipsCursorTransaction(t *testing.T) {
	addr := "0xbb"
	client := newFakeClient()
	client.pagesByAddress[addr] = []starknetrpc.EventPage{
		{Events: []starknetrpc.RawEvent{rawEvent(addr, 5, "0x1"), rawEvent(addr, 5, "0x2")}},
	}
	client.timestamps[5] = 500

	addrFelt, _ := felt.FromHex(addr)
	cursorTx, _ := felt.FromHex("0x1")
	cursor := CursorMap{addrFelt: cursorTx}

	out, err := FetchRange(context.Background(), client, []felt.Felt{addrFelt}, 5, 5, cursor, 100)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(out) != 1 || len(out[0].Transactions) != 1 {
		t.Fatalf("expected exactly one surviving tx, got %+v", out)
	}
	if !out[0].Transactions[0].TransactionHash.Equal(func() felt.Felt { f, _ := felt.FromHex("0x2"); return f }()) {
		t.Fatalf("expected surviving tx 0x2, got %+v", out[0].Transactions[0])
	}
}

func TestGetEventsPageUnionHasNoRepeats(t *testing.T) {
	addr := "0xcc"
	client := newFakeClient()
	client.pagesByAddress[addr] = []starknetrpc.EventPage{
		{Events: []starknetrpc.RawEvent{rawEvent(addr, 1, "0x1"), rawEvent(addr, 1, "0x2")}, ContinuationToken: "next"},
		{Events: []starknetrpc.RawEvent{rawEvent(addr, 2, "0x3")}},
	}

	addrFelt, _ := felt.FromHex(addr)
	filter := PageFilter{FromBlock: 1, ToBlock: 2, Address: &addrFelt, ChunkSize: 2}

	page1, err := GetEventsPage(context.Background(), client, client, nil, filter, "", 2)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if !page1.HasNext || page1.NextToken == "" {
		t.Fatalf("expected a continuation after page1, got %+v", page1)
	}

	page2, err := GetEventsPage(context.Background(), client, client, nil, filter, page1.NextToken, 2)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if page2.HasNext {
		t.Fatalf("expected page2 to be terminal, got %+v", page2)
	}

	seen := map[string]bool{}
	for _, ev := range append(append([]starknetrpc.RawEvent{}, page1.Events...), page2.Events...) {
		key := ev.TransactionHash
		if seen[key] {
			t.Fatalf("event for tx %s repeated across pages", key)
		}
		seen[key] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected union of 3 distinct transactions, got %d", len(seen))
	}
}

func TestGetEventsPageForkedMergeCrossesIntoLocal(t *testing.T) {
	upAddr := "0xdd"
	upstream := newFakeClient()
	upstream.pagesByAddress[upAddr] = []starknetrpc.EventPage{
		{Events: []starknetrpc.RawEvent{rawEvent(upAddr, 1, "0x1")}},
	}
	local := newFakeClient()
	local.pagesByAddress[upAddr] = []starknetrpc.EventPage{
		{Events: []starknetrpc.RawEvent{rawEvent(upAddr, 6, "0x2")}},
	}

	addrFelt, _ := felt.FromHex(upAddr)
	forkPoint := uint64(5)
	filter := PageFilter{FromBlock: 1, ToBlock: 6, Address: &addrFelt, ChunkSize: 10}

	page, err := GetEventsPage(context.Background(), local, upstream, &forkPoint, filter, "", 10)
	if err != nil {
		t.Fatalf("GetEventsPage: %v", err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("expected forked+local merge to yield 2 events, got %+v", page.Events)
	}
	if page.Events[0].BlockNumber != 1 || page.Events[1].BlockNumber != 6 {
		t.Fatalf("expected upstream event before local event, got %+v", page.Events)
	}
	if page.HasNext {
		t.Fatalf("expected terminal page, got %+v", page)
	}
}

func TestFetchPendingDetectsReorg(t *testing.T) {
	client := fakePendingClient{
		block: starknetrpc.BlockWithReceipts{ParentHash: "0xabc", Timestamp: 42},
	}
	latest, _ := felt.FromHex("0xdead")
	batch, err := FetchPending(context.Background(), client, latest)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if batch != nil {
		t.Fatalf("expected nil batch on parent hash mismatch, got %+v", batch)
	}
}

func TestFetchPendingDecodesMatchingParent(t *testing.T) {
	latest, _ := felt.FromHex("0xabc")
	client := fakePendingClient{
		block: starknetrpc.BlockWithReceipts{
			ParentHash: "0xabc",
			Timestamp:  99,
			Transactions: []starknetrpc.ReceiptedTx{
				{
					Transaction: struct {
						TransactionHash string `json:"transaction_hash"`
					}{TransactionHash: "0x1"},
					Receipt: struct {
						Events []starknetrpc.RawEvent `json:"events"`
					}{Events: []starknetrpc.RawEvent{rawEvent("0xaa", 0, "0x1")}},
				},
			},
		},
	}
	batch, err := FetchPending(context.Background(), client, latest)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if batch == nil || batch.Timestamp != 99 || len(batch.Transactions) != 1 {
		t.Fatalf("expected one decoded pending tx, got %+v", batch)
	}
}

type fakePendingClient struct {
	block starknetrpc.BlockWithReceipts
}

func (f fakePendingClient) GetBlockWithReceiptsPending(ctx context.Context) (starknetrpc.BlockWithReceipts, error) {
	return f.block, nil
}

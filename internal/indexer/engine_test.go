package indexer

import (
	"context"
	"testing"
	"time"

	"chainforge/internal/eventfetch"
	"chainforge/pkg/felt"
	"chainforge/pkg/schema"
)

type fakeBlocks struct {
	number uint64
	hash   felt.Felt
}

func (f fakeBlocks) LatestNumber(ctx context.Context) (uint64, error) { return f.number, nil }
func (f fakeBlocks) LatestHash(ctx context.Context) (felt.Felt, error) { return f.hash, nil }

type fakeEvents struct {
	rangeResult []eventfetch.BlockEvents
	pending     *eventfetch.PendingBatch
}

func (f fakeEvents) FetchRange(ctx context.Context, addrs []felt.Felt, from, to uint64, cursor eventfetch.CursorMap, chunkSize int) ([]eventfetch.BlockEvents, error) {
	return f.rangeResult, nil
}

func (f fakeEvents) FetchPending(ctx context.Context, latest felt.Felt) (*eventfetch.PendingBatch, error) {
	return f.pending, nil
}

type fakeCursorStore struct {
	saved []*ContractCursor
}

func (f *fakeCursorStore) LoadCursors(ctx context.Context) (map[felt.Felt]*ContractCursor, error) {
	return map[felt.Felt]*ContractCursor{}, nil
}

func (f *fakeCursorStore) SaveCursors(ctx context.Context, cursors []*ContractCursor) error {
	f.saved = cursors
	return nil
}

type fakeStore struct {
	rawEvents []EventRecord
	models    map[string]ModelRecord
}

func (s *fakeStore) Model(ctx context.Context, modelID string) (ModelRecord, bool) {
	m, ok := s.models[modelID]
	return m, ok
}

func (s *fakeStore) RegisterModel(ctx context.Context, namespace, name string, classHash, contract felt.Felt, ty schema.Ty) error {
	return nil
}
func (s *fakeStore) RegisterEvent(ctx context.Context, namespace, name string, classHash felt.Felt, ty schema.Ty) error {
	return nil
}
func (s *fakeStore) UpgradeModel(ctx context.Context, namespace, name string, ty schema.Ty) error {
	return nil
}
func (s *fakeStore) UpgradeEvent(ctx context.Context, namespace, name string, ty schema.Ty) error {
	return nil
}
func (s *fakeStore) SetEntity(ctx context.Context, entityID felt.Felt, keys []felt.Felt, modelID string, value schema.Ty) error {
	return nil
}
func (s *fakeStore) DeleteEntity(ctx context.Context, entityID felt.Felt, modelID string) error {
	return nil
}
func (s *fakeStore) UpdateMember(ctx context.Context, entityID felt.Felt, modelID, path string, value schema.Ty) error {
	return nil
}
func (s *fakeStore) SetMetadata(ctx context.Context, resourceID felt.Felt, uri string) error {
	return nil
}
func (s *fakeStore) ApplyEventMessage(ctx context.Context, keys []felt.Felt, modelID string, value schema.Ty, historical bool) error {
	return nil
}
func (s *fakeStore) RecordTransaction(ctx context.Context, tx TransactionRecord, eventIDs []string) error {
	return nil
}
func (s *fakeStore) RecordRawEvent(ctx context.Context, ev EventRecord) error {
	s.rawEvents = append(s.rawEvents, ev)
	return nil
}
func (s *fakeStore) ApplyTokenTransfer(ctx context.Context, standard string, contract, from, to, tokenID, amount felt.Felt) error {
	return nil
}
func (s *fakeStore) ApplyMetadataUpdate(ctx context.Context, contract felt.Felt, tokenID *felt.Felt) error {
	return nil
}
func (s *fakeStore) ApplyController(ctx context.Context, account, publicKey felt.Felt) error {
	return nil
}

func TestEngineProcessRangeDispatchesToCatchAllAndAdvancesCursor(t *testing.T) {
	addr := felt.FromUint64(1)
	blocks := fakeBlocks{number: 10}
	evs := fakeEvents{rangeResult: []eventfetch.BlockEvents{
		{
			Number: 10, Timestamp: 1000,
			Transactions: []eventfetch.TxEvents{
				{TransactionHash: felt.FromUint64(5), Events: []eventfetch.Event{
					{FromAddress: addr, Keys: []felt.Felt{felt.FromUint64(424242)}, Data: nil},
				}},
			},
		},
	}}
	store := &fakeStore{}
	cursors := &fakeCursorStore{}
	reg := NewRegistry(DefaultProcessors()...)

	eng := New(Config{
		Addresses:          []felt.Felt{addr},
		ContractTypes:      map[felt.Felt]ContractType{addr: ContractOther},
		MaxConcurrentTasks: 2,
		PollingInterval:    time.Millisecond,
	}, reg, store, cursors, blocks, evs, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	advanced, err := eng.tick(ctx, map[felt.Felt]*ContractCursor{addr: {ContractAddress: addr, ContractType: ContractOther}})
	cancel()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !advanced {
		t.Fatal("expected tick to report progress")
	}
	if len(store.rawEvents) != 1 {
		t.Fatalf("expected one raw event recorded via the catch-all processor, got %d", len(store.rawEvents))
	}
	if len(cursors.saved) != 1 || cursors.saved[0].Head != 10 {
		t.Fatalf("expected cursor head advanced to 10, got %+v", cursors.saved)
	}
	saved := cursors.saved[0]
	if saved.LastPendingBlockTx != nil {
		t.Fatal("block-level pending tx must be nulled after a range batch")
	}
	if saved.LastPendingBlockContractTx == nil || !saved.LastPendingBlockContractTx.Equal(felt.FromUint64(5)) {
		t.Fatalf("per-contract cursor = %v, want the batch's last tx 0x5", saved.LastPendingBlockContractTx)
	}
}

func TestEngineSkipsUnwatchedAddresses(t *testing.T) {
	watched := felt.FromUint64(1)
	unwatched := felt.FromUint64(2)
	blocks := fakeBlocks{number: 5}
	evs := fakeEvents{rangeResult: []eventfetch.BlockEvents{
		{
			Number: 5, Timestamp: 500,
			Transactions: []eventfetch.TxEvents{
				{TransactionHash: felt.FromUint64(9), Events: []eventfetch.Event{
					{FromAddress: unwatched, Keys: []felt.Felt{felt.FromUint64(1)}},
				}},
			},
		},
	}}
	store := &fakeStore{}
	cursors := &fakeCursorStore{}
	reg := NewRegistry(DefaultProcessors()...)
	eng := New(Config{
		Addresses:          []felt.Felt{watched},
		ContractTypes:      map[felt.Felt]ContractType{watched: ContractOther},
		MaxConcurrentTasks: 1,
	}, reg, store, cursors, blocks, evs, nil, nil)

	if err := eng.processRange(context.Background(), map[felt.Felt]*ContractCursor{watched: {ContractAddress: watched}}, 1, 5); err != nil {
		t.Fatalf("processRange: %v", err)
	}
	if len(store.rawEvents) != 0 {
		t.Fatalf("expected unwatched address's event to be skipped, got %d recorded", len(store.rawEvents))
	}
}

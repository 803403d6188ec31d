package indexer

import (
	"context"
	"fmt"

	"chainforge/pkg/felt"
	"chainforge/pkg/schema"
)

// EventRecord is one decoded emitted event as the engine's range and
// pending processing steps see it, annotated with its position for
// event_id generation and cursor bookkeeping.
type EventRecord struct {
	Block           uint64
	Timestamp       uint64
	TransactionHash felt.Felt
	EventIndex      int
	FromAddress     felt.Felt
	Keys            []felt.Felt
	Data            []felt.Felt
}

// EventID renders the canonical event id,
// "{block:#066x}:{tx_hash:#x}:{event_idx:#04x}".
func (e EventRecord) EventID() string {
	return fmt.Sprintf("0x%064x:%s:0x%02x", e.Block, e.TransactionHash.Hex(), e.EventIndex)
}

// TransactionRecord is a full transaction body, fetched only when the
// TRANSACTIONS indexing flag is set.
type TransactionRecord struct {
	Hash            felt.Felt
	Block           uint64
	SenderAddress   felt.Felt
	Calldata        []felt.Felt
	MaxFee          felt.Felt
	ContractAddress *felt.Felt
}

// ModelRecord is the cached world resource record the store
// materializes at registration time and the record processors consult to
// decode event payloads.
type ModelRecord struct {
	Selector        felt.Felt
	Namespace       string
	Name            string
	ClassHash       felt.Felt
	ContractAddress felt.Felt
	Schema          schema.Ty
	PackedSize      uint32
	UnpackedSize    uint32
}

// WriteStore is the subset of internal/store's write surface the
// processors below need. internal/store provides the concrete
// implementation; tests supply an in-memory fake.
type WriteStore interface {
	// Model returns the cached registration record for a model selector
	// (hex-encoded), served from memory so lookups succeed before the
	// registration's write queue has flushed.
	Model(ctx context.Context, modelID string) (ModelRecord, bool)
	RegisterModel(ctx context.Context, namespace, name string, classHash felt.Felt, contract felt.Felt, tySchema schema.Ty) error
	RegisterEvent(ctx context.Context, namespace, name string, classHash felt.Felt, tySchema schema.Ty) error
	UpgradeModel(ctx context.Context, namespace, name string, tySchema schema.Ty) error
	UpgradeEvent(ctx context.Context, namespace, name string, tySchema schema.Ty) error
	SetEntity(ctx context.Context, entityID felt.Felt, keys []felt.Felt, modelID string, value schema.Ty) error
	DeleteEntity(ctx context.Context, entityID felt.Felt, modelID string) error
	UpdateMember(ctx context.Context, entityID felt.Felt, modelID, memberPath string, value schema.Ty) error
	SetMetadata(ctx context.Context, resourceID felt.Felt, uri string) error
	ApplyEventMessage(ctx context.Context, keys []felt.Felt, modelID string, value schema.Ty, historical bool) error
	RecordTransaction(ctx context.Context, tx TransactionRecord, eventIDs []string) error
	RecordRawEvent(ctx context.Context, ev EventRecord) error
	ApplyTokenTransfer(ctx context.Context, standard string, contract, from, to felt.Felt, tokenID, amount felt.Felt) error
	ApplyMetadataUpdate(ctx context.Context, contract felt.Felt, tokenID *felt.Felt) error
	ApplyController(ctx context.Context, account, publicKey felt.Felt) error
}

// Processor is one typed event handler: the world-schema mutations plus
// the token/controller side streams.
type Processor interface {
	ContractType() ContractType
	// Selector is the event.keys[0] value this processor is registered
	// under for dispatch; the zero felt matches any selector (used by the
	// RawEvent catch-all).
	Selector() felt.Felt
	// Validate performs the final candidate check among processors
	// sharing a (ContractType, Selector) pair; the first candidate whose
	// Validate returns true is elected.
	Validate(ev EventRecord) bool
	// TaskIdentifier returns taskmanager.Sequential for inline execution,
	// or a non-sequential identifier to enqueue the event for the task
	// manager.
	TaskIdentifier(ev EventRecord) string
	Priority() int
	Process(ctx context.Context, store WriteStore, ev EventRecord) error
}

type registryKey struct {
	ct       ContractType
	selector felt.Felt
}

// Registry resolves an event to its elected Processor.
type Registry struct {
	byKey map[registryKey][]Processor
}

// NewRegistry builds a Registry from the full processor catalogue.
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{byKey: map[registryKey][]Processor{}}
	for _, p := range processors {
		key := registryKey{ct: p.ContractType(), selector: p.Selector()}
		r.byKey[key] = append(r.byKey[key], p)
	}
	return r
}

// Select elects a processor for ev, trying the contract-type-specific
// candidates first and falling back to the wildcard (zero-selector)
// catch-all group.
func (r *Registry) Select(ct ContractType, ev EventRecord) (Processor, bool) {
	selector := felt.Zero
	if len(ev.Keys) > 0 {
		selector = ev.Keys[0]
	}
	for _, p := range r.byKey[registryKey{ct: ct, selector: selector}] {
		if p.Validate(ev) {
			return p, true
		}
	}
	for _, p := range r.byKey[registryKey{ct: ct, selector: felt.Zero}] {
		if p.Validate(ev) {
			return p, true
		}
	}
	for _, p := range r.byKey[registryKey{ct: ContractOther, selector: felt.Zero}] {
		if p.Validate(ev) {
			return p, true
		}
	}
	return nil, false
}

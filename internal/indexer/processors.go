package indexer

import (
	"context"
	"fmt"

	"chainforge/internal/indexer/taskmanager"
	"chainforge/pkg/felt"
	"chainforge/pkg/schema"
)

// selector computes the canonical event-name selector the same way
// on-chain event keys are derived.
func selector(name string) felt.Felt { return felt.StarknetKeccak([]byte(name)) }

// DefaultProcessors returns the full world-schema plus token/controller
// processor catalogue.
func DefaultProcessors() []Processor {
	return []Processor{
		registerModelProcessor{},
		registerEventProcessor{},
		upgradeModelProcessor{},
		upgradeEventProcessor{},
		storeSetRecordProcessor{},
		storeDelRecordProcessor{},
		storeUpdateRecordProcessor{},
		storeUpdateMemberProcessor{},
		metadataUpdateProcessor{},
		eventMessageProcessor{},
		erc20TransferProcessor{},
		erc20LegacyTransferProcessor{},
		erc721TransferProcessor{},
		erc721LegacyTransferProcessor{},
		erc1155TransferSingleProcessor{},
		erc1155TransferBatchProcessor{},
		erc4906MetadataUpdateProcessor{},
		erc4906BatchMetadataUpdateProcessor{},
		controllerProcessor{},
		rawEventProcessor{},
	}
}

// decodeRegistration unpacks a world registration/upgrade payload:
// [class_hash, namespace_shortstring, name_shortstring, layout...], where
// layout is the self-describing schema encoding (pkg/schema.EncodeLayout)
// the world emits from its introspection metadata.
func decodeRegistration(ev EventRecord) (classHash felt.Felt, namespace, name string, ty schema.Ty, err error) {
	if len(ev.Data) < 4 {
		return felt.Zero, "", "", schema.Ty{}, fmt.Errorf("indexer: registration payload too short: %d felts", len(ev.Data))
	}
	classHash = ev.Data[0]
	namespace, name = decodeNamespaceName(ev.Data[1:3])
	rest := ev.Data[3:]
	ty, err = schema.DecodeLayout(&rest)
	if err != nil {
		return felt.Zero, "", "", schema.Ty{}, fmt.Errorf("indexer: decode %s-%s schema layout: %w", namespace, name, err)
	}
	return classHash, namespace, name, ty, nil
}

// decodeRecord looks up the cached model for modelID, clones its schema
// template, and deserializes data into the clone, so the cached
// template itself is never mutated.
func decodeRecord(ctx context.Context, store WriteStore, modelID string, data []felt.Felt) (schema.Ty, error) {
	m, ok := store.Model(ctx, modelID)
	if !ok {
		return schema.Ty{}, fmt.Errorf("indexer: model %s not registered", modelID)
	}
	ty := m.Schema.Clone()
	rest := data
	if err := ty.Deserialize(&rest); err != nil {
		return schema.Ty{}, fmt.Errorf("indexer: decode %s record: %w", modelID, err)
	}
	return ty, nil
}

type registerModelProcessor struct{}

func (registerModelProcessor) ContractType() ContractType { return ContractWorld }
func (registerModelProcessor) Selector() felt.Felt        { return selector("ModelRegistered") }
func (registerModelProcessor) Validate(ev EventRecord) bool { return len(ev.Data) >= 4 }
func (registerModelProcessor) TaskIdentifier(ev EventRecord) string {
	return taskmanager.Sequential
}
func (registerModelProcessor) Priority() int { return 100 }
func (registerModelProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	classHash, namespace, name, ty, err := decodeRegistration(ev)
	if err != nil {
		return err
	}
	return store.RegisterModel(ctx, namespace, name, classHash, ev.FromAddress, ty)
}

type registerEventProcessor struct{}

func (registerEventProcessor) ContractType() ContractType { return ContractWorld }
func (registerEventProcessor) Selector() felt.Felt        { return selector("EventRegistered") }
func (registerEventProcessor) Validate(ev EventRecord) bool { return len(ev.Data) >= 4 }
func (registerEventProcessor) TaskIdentifier(ev EventRecord) string {
	return taskmanager.Sequential
}
func (registerEventProcessor) Priority() int { return 100 }
func (registerEventProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	classHash, namespace, name, ty, err := decodeRegistration(ev)
	if err != nil {
		return err
	}
	return store.RegisterEvent(ctx, namespace, name, classHash, ty)
}

type upgradeModelProcessor struct{}

func (upgradeModelProcessor) ContractType() ContractType   { return ContractWorld }
func (upgradeModelProcessor) Selector() felt.Felt          { return selector("ModelUpgraded") }
func (upgradeModelProcessor) Validate(ev EventRecord) bool { return len(ev.Data) >= 4 }
func (upgradeModelProcessor) TaskIdentifier(ev EventRecord) string {
	return taskmanager.Sequential
}
func (upgradeModelProcessor) Priority() int { return 100 }
func (upgradeModelProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	_, namespace, name, ty, err := decodeRegistration(ev)
	if err != nil {
		return err
	}
	return store.UpgradeModel(ctx, namespace, name, ty)
}

type upgradeEventProcessor struct{}

func (upgradeEventProcessor) ContractType() ContractType   { return ContractWorld }
func (upgradeEventProcessor) Selector() felt.Felt          { return selector("EventUpgraded") }
func (upgradeEventProcessor) Validate(ev EventRecord) bool { return len(ev.Data) >= 4 }
func (upgradeEventProcessor) TaskIdentifier(ev EventRecord) string {
	return taskmanager.Sequential
}
func (upgradeEventProcessor) Priority() int { return 100 }
func (upgradeEventProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	_, namespace, name, ty, err := decodeRegistration(ev)
	if err != nil {
		return err
	}
	return store.UpgradeEvent(ctx, namespace, name, ty)
}

// storeSetRecordProcessor applies a full-record upsert (SetEntity) for a
// world-schema model; the entity id and model id ride in ev.Keys[0] and
// ev.Keys[1], and ev.Data holds the record's serialized felts.
type storeSetRecordProcessor struct{}

func (storeSetRecordProcessor) ContractType() ContractType { return ContractWorld }
func (storeSetRecordProcessor) Selector() felt.Felt        { return selector("StoreSetRecord") }
func (storeSetRecordProcessor) Validate(ev EventRecord) bool { return len(ev.Keys) >= 2 }
func (storeSetRecordProcessor) TaskIdentifier(ev EventRecord) string {
	if len(ev.Keys) < 2 {
		return taskmanager.Sequential
	}
	return "model:" + ev.Keys[1].Hex()
}
func (storeSetRecordProcessor) Priority() int { return 50 }
func (storeSetRecordProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	entityID, modelID := ev.Keys[0], ev.Keys[1].Hex()
	ty, err := decodeRecord(ctx, store, modelID, ev.Data)
	if err != nil {
		return err
	}
	return store.SetEntity(ctx, entityID, ev.Keys[2:], modelID, ty)
}

type storeDelRecordProcessor struct{}

func (storeDelRecordProcessor) ContractType() ContractType   { return ContractWorld }
func (storeDelRecordProcessor) Selector() felt.Felt          { return selector("StoreDelRecord") }
func (storeDelRecordProcessor) Validate(ev EventRecord) bool { return len(ev.Keys) >= 2 }
func (storeDelRecordProcessor) TaskIdentifier(ev EventRecord) string {
	if len(ev.Keys) < 2 {
		return taskmanager.Sequential
	}
	return "model:" + ev.Keys[1].Hex()
}
func (storeDelRecordProcessor) Priority() int { return 50 }
func (storeDelRecordProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.DeleteEntity(ctx, ev.Keys[0], ev.Keys[1].Hex())
}

type storeUpdateRecordProcessor struct{}

func (storeUpdateRecordProcessor) ContractType() ContractType   { return ContractWorld }
func (storeUpdateRecordProcessor) Selector() felt.Felt          { return selector("StoreUpdateRecord") }
func (storeUpdateRecordProcessor) Validate(ev EventRecord) bool { return len(ev.Keys) >= 2 }
func (storeUpdateRecordProcessor) TaskIdentifier(ev EventRecord) string {
	if len(ev.Keys) < 2 {
		return taskmanager.Sequential
	}
	return "model:" + ev.Keys[1].Hex()
}
func (storeUpdateRecordProcessor) Priority() int { return 50 }
func (storeUpdateRecordProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	entityID, modelID := ev.Keys[0], ev.Keys[1].Hex()
	ty, err := decodeRecord(ctx, store, modelID, ev.Data)
	if err != nil {
		return err
	}
	return store.SetEntity(ctx, entityID, nil, modelID, ty)
}

type storeUpdateMemberProcessor struct{}

func (storeUpdateMemberProcessor) ContractType() ContractType   { return ContractWorld }
func (storeUpdateMemberProcessor) Selector() felt.Felt          { return selector("StoreUpdateMember") }
func (storeUpdateMemberProcessor) Validate(ev EventRecord) bool { return len(ev.Keys) >= 3 }
func (storeUpdateMemberProcessor) TaskIdentifier(ev EventRecord) string {
	if len(ev.Keys) < 2 {
		return taskmanager.Sequential
	}
	return "model:" + ev.Keys[1].Hex()
}
func (storeUpdateMemberProcessor) Priority() int { return 50 }
func (storeUpdateMemberProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	entityID, modelID, memberSelector := ev.Keys[0], ev.Keys[1].Hex(), ev.Keys[2]
	m, ok := store.Model(ctx, modelID)
	if !ok {
		return fmt.Errorf("indexer: model %s not registered", modelID)
	}
	if m.Schema.Kind != schema.KindStruct {
		return fmt.Errorf("indexer: model %s schema is not a struct", modelID)
	}
	for _, member := range m.Schema.Struct.Children {
		if !selector(member.Name).Equal(memberSelector) {
			continue
		}
		ty := member.Ty.Clone()
		rest := ev.Data
		if err := ty.Deserialize(&rest); err != nil {
			return fmt.Errorf("indexer: decode member %s of %s: %w", member.Name, modelID, err)
		}
		return store.UpdateMember(ctx, entityID, modelID, member.Name, ty)
	}
	return fmt.Errorf("indexer: model %s has no member with selector %s", modelID, memberSelector.Hex())
}

type metadataUpdateProcessor struct{}

func (metadataUpdateProcessor) ContractType() ContractType   { return ContractWorld }
func (metadataUpdateProcessor) Selector() felt.Felt          { return selector("MetadataUpdate") }
func (metadataUpdateProcessor) Validate(ev EventRecord) bool { return len(ev.Keys) >= 1 }
func (metadataUpdateProcessor) TaskIdentifier(ev EventRecord) string {
	return taskmanager.Sequential
}
func (metadataUpdateProcessor) Priority() int { return 40 }
func (metadataUpdateProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	uri := decodeByteArrayToString(ev.Data)
	return store.SetMetadata(ctx, ev.Keys[0], uri)
}

type eventMessageProcessor struct{}

func (eventMessageProcessor) ContractType() ContractType   { return ContractWorld }
func (eventMessageProcessor) Selector() felt.Felt          { return felt.Zero }
func (eventMessageProcessor) Validate(ev EventRecord) bool { return true }
func (eventMessageProcessor) TaskIdentifier(ev EventRecord) string {
	return "event-message:" + ev.FromAddress.Hex()
}
func (eventMessageProcessor) Priority() int { return 10 }
func (eventMessageProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	modelID := ev.FromAddress.Hex()
	if len(ev.Keys) > 0 {
		modelID = ev.Keys[0].Hex()
	}
	ty, err := decodeRecord(ctx, store, modelID, ev.Data)
	if err != nil {
		return err
	}
	// The store re-hashes the key members into the entity id and decides
	// historical placement from its configured model set.
	return store.ApplyEventMessage(ctx, ev.Keys[1:], modelID, ty, false)
}

// --- token / controller side streams ---

type erc20TransferProcessor struct{}

func (erc20TransferProcessor) ContractType() ContractType { return ContractErc20 }
func (erc20TransferProcessor) Selector() felt.Felt        { return selector("Transfer") }
func (erc20TransferProcessor) Validate(ev EventRecord) bool {
	return len(ev.Keys) >= 3 && len(ev.Data) >= 1
}
func (erc20TransferProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc20:" + ev.FromAddress.Hex()
}
func (erc20TransferProcessor) Priority() int { return 30 }
func (erc20TransferProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.ApplyTokenTransfer(ctx, "ERC20", ev.FromAddress, ev.Keys[1], ev.Keys[2], felt.Zero, ev.Data[0])
}

// erc20LegacyTransferProcessor matches pre-SNIP-12 contracts that emit
// Transfer with the from/to/amount triple packed into the data segment
// instead of the key segment.
type erc20LegacyTransferProcessor struct{}

func (erc20LegacyTransferProcessor) ContractType() ContractType { return ContractErc20 }
func (erc20LegacyTransferProcessor) Selector() felt.Felt        { return selector("Transfer") }
func (erc20LegacyTransferProcessor) Validate(ev EventRecord) bool {
	return len(ev.Keys) < 3 && len(ev.Data) >= 3
}
func (erc20LegacyTransferProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc20:" + ev.FromAddress.Hex()
}
func (erc20LegacyTransferProcessor) Priority() int { return 29 }
func (erc20LegacyTransferProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.ApplyTokenTransfer(ctx, "ERC20", ev.FromAddress, ev.Data[0], ev.Data[1], felt.Zero, ev.Data[2])
}

type erc721TransferProcessor struct{}

func (erc721TransferProcessor) ContractType() ContractType { return ContractErc721 }
func (erc721TransferProcessor) Selector() felt.Felt        { return selector("Transfer") }
func (erc721TransferProcessor) Validate(ev EventRecord) bool {
	return len(ev.Keys) >= 4
}
func (erc721TransferProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc721:" + ev.FromAddress.Hex()
}
func (erc721TransferProcessor) Priority() int { return 30 }
func (erc721TransferProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.ApplyTokenTransfer(ctx, "ERC721", ev.FromAddress, ev.Keys[1], ev.Keys[2], ev.Keys[3], felt.FromUint64(1))
}

type erc721LegacyTransferProcessor struct{}

func (erc721LegacyTransferProcessor) ContractType() ContractType { return ContractErc721 }
func (erc721LegacyTransferProcessor) Selector() felt.Felt        { return selector("Transfer") }
func (erc721LegacyTransferProcessor) Validate(ev EventRecord) bool {
	return len(ev.Keys) < 4 && len(ev.Data) >= 3
}
func (erc721LegacyTransferProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc721:" + ev.FromAddress.Hex()
}
func (erc721LegacyTransferProcessor) Priority() int { return 29 }
func (erc721LegacyTransferProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.ApplyTokenTransfer(ctx, "ERC721", ev.FromAddress, ev.Data[0], ev.Data[1], ev.Data[2], felt.FromUint64(1))
}

type erc1155TransferSingleProcessor struct{}

func (erc1155TransferSingleProcessor) ContractType() ContractType { return ContractErc1155 }
func (erc1155TransferSingleProcessor) Selector() felt.Felt        { return selector("TransferSingle") }
func (erc1155TransferSingleProcessor) Validate(ev EventRecord) bool {
	return len(ev.Keys) >= 3 && len(ev.Data) >= 2
}
func (erc1155TransferSingleProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc1155:" + ev.FromAddress.Hex()
}
func (erc1155TransferSingleProcessor) Priority() int { return 30 }
func (erc1155TransferSingleProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.ApplyTokenTransfer(ctx, "ERC1155", ev.FromAddress, ev.Keys[1], ev.Keys[2], ev.Data[0], ev.Data[1])
}

type erc1155TransferBatchProcessor struct{}

func (erc1155TransferBatchProcessor) ContractType() ContractType { return ContractErc1155 }
func (erc1155TransferBatchProcessor) Selector() felt.Felt        { return selector("TransferBatch") }
func (erc1155TransferBatchProcessor) Validate(ev EventRecord) bool {
	return len(ev.Keys) >= 3
}
func (erc1155TransferBatchProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc1155:" + ev.FromAddress.Hex()
}
func (erc1155TransferBatchProcessor) Priority() int { return 30 }
func (erc1155TransferBatchProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	// data is a (ids[], amounts[]) pair of length-prefixed arrays; apply
	// one transfer per index.
	if len(ev.Data) < 1 {
		return nil
	}
	n, _ := ev.Data[0].Uint64()
	for i := uint64(0); i < n && int(1+i) < len(ev.Data); i++ {
		tokenID := ev.Data[1+i]
		amount := felt.Zero
		amountIdx := 2 + n + i
		if int(amountIdx) < len(ev.Data) {
			amount = ev.Data[amountIdx]
		}
		if err := store.ApplyTokenTransfer(ctx, "ERC1155", ev.FromAddress, ev.Keys[1], ev.Keys[2], tokenID, amount); err != nil {
			return fmt.Errorf("indexer: erc1155 batch transfer index %d: %w", i, err)
		}
	}
	return nil
}

type erc4906MetadataUpdateProcessor struct{}

func (erc4906MetadataUpdateProcessor) ContractType() ContractType { return ContractErc721 }
func (erc4906MetadataUpdateProcessor) Selector() felt.Felt        { return selector("MetadataUpdate") }
func (erc4906MetadataUpdateProcessor) Validate(ev EventRecord) bool {
	return len(ev.Data) >= 1
}
func (erc4906MetadataUpdateProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc4906:" + ev.FromAddress.Hex()
}
func (erc4906MetadataUpdateProcessor) Priority() int { return 20 }
func (erc4906MetadataUpdateProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	tokenID := ev.Data[0]
	return store.ApplyMetadataUpdate(ctx, ev.FromAddress, &tokenID)
}

type erc4906BatchMetadataUpdateProcessor struct{}

func (erc4906BatchMetadataUpdateProcessor) ContractType() ContractType { return ContractErc721 }
func (erc4906BatchMetadataUpdateProcessor) Selector() felt.Felt {
	return selector("BatchMetadataUpdate")
}
func (erc4906BatchMetadataUpdateProcessor) Validate(ev EventRecord) bool { return true }
func (erc4906BatchMetadataUpdateProcessor) TaskIdentifier(ev EventRecord) string {
	return "erc4906:" + ev.FromAddress.Hex()
}
func (erc4906BatchMetadataUpdateProcessor) Priority() int { return 20 }
func (erc4906BatchMetadataUpdateProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.ApplyMetadataUpdate(ctx, ev.FromAddress, nil)
}

type controllerProcessor struct{}

func (controllerProcessor) ContractType() ContractType   { return ContractOther }
func (controllerProcessor) Selector() felt.Felt          { return selector("ControllerDeployed") }
func (controllerProcessor) Validate(ev EventRecord) bool { return len(ev.Keys) >= 2 }
func (controllerProcessor) TaskIdentifier(ev EventRecord) string {
	return taskmanager.Sequential
}
func (controllerProcessor) Priority() int { return 15 }
func (controllerProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.ApplyController(ctx, ev.Keys[0], ev.Keys[1])
}

// rawEventProcessor is the lowest-priority catch-all every other
// processor's (contract_type, selector) candidate list falls through to.
type rawEventProcessor struct{}

func (rawEventProcessor) ContractType() ContractType   { return ContractOther }
func (rawEventProcessor) Selector() felt.Felt          { return felt.Zero }
func (rawEventProcessor) Validate(ev EventRecord) bool { return true }
func (rawEventProcessor) TaskIdentifier(ev EventRecord) string {
	return taskmanager.Sequential
}
func (rawEventProcessor) Priority() int { return 0 }
func (rawEventProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	return store.RecordRawEvent(ctx, ev)
}

func decodeNamespaceName(data []felt.Felt) (namespace, name string) {
	if len(data) == 0 {
		return "", ""
	}
	namespace = decodeByteArrayToString([]felt.Felt{data[0]})
	if len(data) > 1 {
		name = decodeByteArrayToString(data[1:])
	}
	return namespace, name
}

// decodeByteArrayToString renders the first felt of data as a short ASCII
// string, treating it as a big-endian byte run the way Cairo short strings
// are packed; any later felts are ignored. Full ByteArray chunked decoding lives in
// pkg/schema's byte-array codec; this local helper covers the common
// single-felt shortstring case processors need for names and URIs.
func decodeByteArrayToString(data []felt.Felt) string {
	if len(data) == 0 {
		return ""
	}
	b := data[0].Bytes32()
	start := 0
	for start < len(b) && b[start] == 0 {
		start++
	}
	return string(b[start:])
}

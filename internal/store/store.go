// Package store implements the projection store: runtime
// SQL schema materialization from the Type-Schema Engine, a single-writer
// executor with deferred queries and a post-commit broker publish queue,
// cursor and contract-metadata tables, and historical mode. It is the
// concrete implementation behind internal/indexer's WriteStore and
// CursorStore interfaces.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"chainforge/internal/indexer"
	"chainforge/pkg/felt"
	"chainforge/pkg/schema"
)

// Config controls schema materialization and historical placement.
type Config struct {
	// HistoricalModels names the event models (by "namespace-Name" table
	// name) whose event messages also append to event_messages_historical.
	HistoricalModels map[string]bool
	// ModelIndices maps a table name to the extra columns to index beyond
	// the key-tagged ones.
	ModelIndices map[string]map[string]bool
	// IndexAllColumns indexes every derived column of every model table.
	IndexAllColumns bool
}

type modelEntry struct {
	rec     indexer.ModelRecord
	table   string
	cols    []column
	isEvent bool
}

// Store is the projection store facade. Writes are forwarded as typed
// messages to the single-writer Executor; the in-memory model cache is
// updated synchronously so incoming events can be decoded before the
// registration's write queue has flushed.
type Store struct {
	db     *sql.DB
	exec   *Executor
	broker *Broker
	log    *logrus.Logger
	cfg    Config

	mu     sync.RWMutex
	models map[string]*modelEntry
	tokens map[string]bool
}

// New opens the store over db, starting the writer task and reloading the
// model cache from the models table.
func New(db *sql.DB, cfg Config, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	broker := NewBroker()
	exec, err := NewExecutor(db, broker, log)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db: db, exec: exec, broker: broker, log: log, cfg: cfg,
		models: map[string]*modelEntry{}, tokens: map[string]bool{},
	}
	if err := s.reloadModels(context.Background()); err != nil {
		exec.Close()
		return nil, err
	}
	return s, nil
}

// Broker exposes the committed-write subscription surface.
func (s *Store) Broker() *Broker { return s.broker }

// Flush, Execute, and Rollback forward to the writer task. The indexer
// engine commits once per batch and rolls back on a failed batch.
func (s *Store) Flush(ctx context.Context) error    { return s.exec.Flush(ctx) }
func (s *Store) Execute(ctx context.Context) error  { return s.exec.Execute(ctx) }
func (s *Store) Rollback(ctx context.Context) error { return s.exec.Rollback(ctx) }

// Close stops the writer task. In-flight work rolls back.
func (s *Store) Close() { s.exec.Close() }

// ModelSelector derives the model's registry selector:
// poseidon(namespace_byte_hash, name_byte_hash).
func ModelSelector(namespace, name string) felt.Felt {
	return felt.PoseidonHash2(felt.StarknetKeccak([]byte(namespace)), felt.StarknetKeccak([]byte(name)))
}

func tableName(namespace, name string) string { return namespace + "-" + name }

func (s *Store) reloadModels(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, namespace, name, class_hash, COALESCE(contract_address, ''), layout FROM models`)
	if err != nil {
		return fmt.Errorf("store: reload models: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, namespace, name, classHash, contract, layout string
		if err := rows.Scan(&id, &namespace, &name, &classHash, &contract, &layout); err != nil {
			return fmt.Errorf("store: scan model row: %w", err)
		}
		var hexes []string
		if err := json.Unmarshal([]byte(layout), &hexes); err != nil {
			return fmt.Errorf("store: model %s layout: %w", id, err)
		}
		felts := make([]felt.Felt, len(hexes))
		for i, h := range hexes {
			if felts[i], err = felt.FromHex(h); err != nil {
				return fmt.Errorf("store: model %s layout felt %d: %w", id, i, err)
			}
		}
		ty, err := schema.DecodeLayout(&felts)
		if err != nil {
			return fmt.Errorf("store: model %s layout decode: %w", id, err)
		}
		ch, err := felt.FromHex(classHash)
		if err != nil {
			return fmt.Errorf("store: model %s class hash: %w", id, err)
		}
		entry := &modelEntry{
			rec: indexer.ModelRecord{
				Namespace: namespace, Name: name, ClassHash: ch,
				Schema: ty, UnpackedSize: uint32(len(columnsOf("", ty, false))),
			},
			table:   tableName(namespace, name),
			cols:    columnsOf("", ty, false),
			isEvent: contract == "",
		}
		entry.rec.Selector = ModelSelector(namespace, name)
		if contract != "" {
			if entry.rec.ContractAddress, err = felt.FromHex(contract); err != nil {
				return fmt.Errorf("store: model %s contract: %w", id, err)
			}
		}
		s.models[entry.rec.Selector.Hex()] = entry
	}
	return rows.Err()
}

// Model serves the cached registration record.
func (s *Store) Model(ctx context.Context, modelID string) (indexer.ModelRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.models[modelID]
	if !ok {
		return indexer.ModelRecord{}, false
	}
	rec := entry.rec
	rec.Schema = entry.rec.Schema.Clone()
	return rec, true
}

func layoutJSON(ty schema.Ty) string {
	felts := schema.EncodeLayout(ty)
	hexes := make([]string, len(felts))
	for i, f := range felts {
		hexes[i] = f.Hex()
	}
	raw, _ := json.Marshal(hexes)
	return string(raw)
}

// schemaJSON renders the type tree for human consumers of the models
// table; the machine-readable form is the layout column.
func schemaJSON(ty schema.Ty) string {
	var render func(t schema.Ty) interface{}
	render = func(t schema.Ty) interface{} {
		switch t.Kind {
		case schema.KindPrimitive:
			return t.Primitive.Kind.String()
		case schema.KindStruct:
			children := make([]interface{}, len(t.Struct.Children))
			for i, m := range t.Struct.Children {
				children[i] = map[string]interface{}{"name": m.Name, "key": m.Key, "ty": render(m.Ty)}
			}
			return map[string]interface{}{"struct": t.Struct.Name, "children": children}
		case schema.KindEnum:
			options := make([]interface{}, len(t.Enum.Options))
			for i, o := range t.Enum.Options {
				options[i] = map[string]interface{}{"name": o.Name, "ty": render(o.Ty)}
			}
			return map[string]interface{}{"enum": t.Enum.Name, "options": options}
		case schema.KindTuple:
			items := make([]interface{}, len(t.Tuple))
			for i, e := range t.Tuple {
				items[i] = render(e)
			}
			return map[string]interface{}{"tuple": items}
		case schema.KindArray:
			return map[string]interface{}{"array": render(*t.Array.Template)}
		case schema.KindFixedSizeArray:
			return map[string]interface{}{"fixed_array": render(*t.Fixed.Template), "size": t.Fixed.Size}
		default:
			return "bytearray"
		}
	}
	raw, _ := json.Marshal(render(ty))
	return string(raw)
}

func (s *Store) register(ctx context.Context, namespace, name string, classHash, contract felt.Felt, ty schema.Ty, isEvent bool) error {
	sel := ModelSelector(namespace, name)
	id := sel.Hex()
	table := tableName(namespace, name)

	s.mu.Lock()
	if existing, ok := s.models[id]; ok {
		s.mu.Unlock()
		if existing.rec.Schema.Equal(ty) {
			return nil
		}
		return s.upgrade(ctx, namespace, name, ty, isEvent)
	}
	cols := columnsOf("", ty, false)
	entry := &modelEntry{
		rec: indexer.ModelRecord{
			Selector: sel, Namespace: namespace, Name: name,
			ClassHash: classHash, ContractAddress: contract,
			Schema: ty.Clone(), UnpackedSize: uint32(len(cols)),
		},
		table: table, cols: cols, isEvent: isEvent,
	}
	s.models[id] = entry
	s.mu.Unlock()

	stmts := []stmt{{query: createTableSQL(table, cols)}}
	for _, q := range indexSQL(table, cols, s.cfg.ModelIndices[table], s.cfg.IndexAllColumns) {
		stmts = append(stmts, stmt{query: q})
	}
	contractVal := interface{}(nil)
	if !isEvent {
		contractVal = contract.Hex()
	}
	stmts = append(stmts, stmt{
		query: `INSERT INTO models (id, namespace, name, class_hash, contract_address, layout, schema, packed_size, unpacked_size, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, unixepoch())
			ON CONFLICT(id) DO UPDATE SET class_hash = excluded.class_hash, layout = excluded.layout, schema = excluded.schema, unpacked_size = excluded.unpacked_size`,
		args: []interface{}{id, namespace, name, classHash.Hex(), contractVal, layoutJSON(ty), schemaJSON(ty), 0, len(cols)},
	})
	return s.exec.Enqueue(ctx, stmts, []Message{{Kind: MsgModelRegistered, ID: id}})
}

// RegisterModel materializes a flat SQL table for the model and caches
// its resource record.
func (s *Store) RegisterModel(ctx context.Context, namespace, name string, classHash, contract felt.Felt, ty schema.Ty) error {
	return s.register(ctx, namespace, name, classHash, contract, ty, false)
}

// RegisterEvent registers an event model; its rows thread through the
// event_messages tables rather than entities.
func (s *Store) RegisterEvent(ctx context.Context, namespace, name string, classHash felt.Felt, ty schema.Ty) error {
	return s.register(ctx, namespace, name, classHash, felt.Zero, ty, true)
}

func (s *Store) upgrade(ctx context.Context, namespace, name string, ty schema.Ty, isEvent bool) error {
	sel := ModelSelector(namespace, name)
	id := sel.Hex()

	s.mu.Lock()
	entry, ok := s.models[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: upgrade of unregistered model %s-%s", namespace, name)
	}
	if _, changed, err := entry.rec.Schema.Diff(ty); err != nil {
		s.mu.Unlock()
		return err
	} else if !changed {
		s.mu.Unlock()
		return nil
	}
	oldCols := entry.cols
	newCols := columnsOf("", ty, false)
	table := entry.table
	entry.rec.Schema = ty.Clone()
	entry.rec.UnpackedSize = uint32(len(newCols))
	entry.cols = newCols
	s.mu.Unlock()

	up, err := upgradeSQL(table, oldCols, newCols, s.cfg.ModelIndices[table], s.cfg.IndexAllColumns)
	if err != nil {
		return err
	}
	stmts := make([]stmt, 0, len(up)+1)
	for _, q := range up {
		stmts = append(stmts, stmt{query: q})
	}
	stmts = append(stmts, stmt{
		query: `UPDATE models SET layout = ?, schema = ?, unpacked_size = ? WHERE id = ?`,
		args:  []interface{}{layoutJSON(ty), schemaJSON(ty), len(newCols), id},
	})
	return s.exec.Enqueue(ctx, stmts, []Message{{Kind: MsgModelRegistered, ID: id}})
}

// UpgradeModel applies an additive schema upgrade; incompatible
// type-kind changes are rejected, not re-shaped.
func (s *Store) UpgradeModel(ctx context.Context, namespace, name string, ty schema.Ty) error {
	return s.upgrade(ctx, namespace, name, ty, false)
}

// UpgradeEvent upgrades an event model's schema.
func (s *Store) UpgradeEvent(ctx context.Context, namespace, name string, ty schema.Ty) error {
	return s.upgrade(ctx, namespace, name, ty, true)
}

func joinFelts(felts []felt.Felt) string {
	parts := make([]string, len(felts))
	for i, f := range felts {
		parts[i] = f.Hex()
	}
	return strings.Join(parts, "/")
}

func (s *Store) entry(modelID string) (*modelEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.models[modelID]
	if !ok {
		return nil, fmt.Errorf("store: unknown model %s", modelID)
	}
	return entry, nil
}

// upsertModelRow renders the single INSERT ... ON CONFLICT(internal_id)
// DO UPDATE statement that lands a flattened value tree in a model table.
func upsertModelRow(table string, internalID, entityID, eventMessageID, eventID string, values map[string]interface{}) stmt {
	colNames := []string{"internal_id", "internal_event_id", "internal_entity_id", "internal_event_message_id"}
	args := []interface{}{internalID, eventID, nullable(entityID), nullable(eventMessageID)}
	var updates []string
	for name, v := range values {
		colNames = append(colNames, name)
		args = append(args, v)
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(name), quoteIdent(name)))
	}
	updates = append(updates, "internal_event_id = excluded.internal_event_id", "internal_updated_at = unixepoch()")

	quoted := make([]string, len(colNames))
	placeholders := make([]string, len(colNames))
	for i, n := range colNames {
		quoted[i] = quoteIdent(n)
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(internal_id) DO UPDATE SET %s",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	return stmt{query: query, args: args}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// SetEntity upserts the entity row, the entity_model edge, and the
// flattened value into the model table.
func (s *Store) SetEntity(ctx context.Context, entityID felt.Felt, keys []felt.Felt, modelID string, value schema.Ty) error {
	entry, err := s.entry(modelID)
	if err != nil {
		return err
	}
	values := map[string]interface{}{}
	if err := flattenValues("", value, values); err != nil {
		return err
	}
	id := entityID.Hex()
	stmts := []stmt{
		{
			query: `INSERT INTO entities (id, keys, executed_at, deleted) VALUES (?, ?, unixepoch(), 0)
				ON CONFLICT(id) DO UPDATE SET keys = COALESCE(excluded.keys, entities.keys), updated_at = unixepoch(), deleted = 0`,
			args: []interface{}{id, nullable(joinFelts(keys))},
		},
		{
			query: `INSERT OR IGNORE INTO entity_model (entity_id, model_id) VALUES (?, ?)`,
			args:  []interface{}{id, modelID},
		},
		upsertModelRow(entry.table, id, id, "", "", values),
	}
	return s.exec.Enqueue(ctx, stmts, []Message{{Kind: MsgEntityUpdated, ID: id}})
}

// UpdateMember overwrites one member's columns in place.
func (s *Store) UpdateMember(ctx context.Context, entityID felt.Felt, modelID, memberPath string, value schema.Ty) error {
	entry, err := s.entry(modelID)
	if err != nil {
		return err
	}
	values := map[string]interface{}{}
	if err := flattenValues(memberPath, value, values); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	var sets []string
	var args []interface{}
	for name, v := range values {
		sets = append(sets, quoteIdent(name)+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "internal_updated_at = unixepoch()")
	args = append(args, entityID.Hex())
	query := fmt.Sprintf("UPDATE %s SET %s WHERE internal_id = ?", quoteIdent(entry.table), strings.Join(sets, ", "))
	return s.exec.Enqueue(ctx, []stmt{{query: query, args: args}}, []Message{{Kind: MsgEntityUpdated, ID: entityID.Hex()}})
}

// DeleteEntity removes the model row and the (entity, model) edge; the
// entity row itself goes when that edge was the last one.
func (s *Store) DeleteEntity(ctx context.Context, entityID felt.Felt, modelID string) error {
	entry, err := s.entry(modelID)
	if err != nil {
		return err
	}
	id := entityID.Hex()
	stmts := []stmt{
		{query: fmt.Sprintf("DELETE FROM %s WHERE internal_id = ?", quoteIdent(entry.table)), args: []interface{}{id}},
		{query: `DELETE FROM entity_model WHERE entity_id = ? AND model_id = ?`, args: []interface{}{id, modelID}},
		{query: `DELETE FROM entities WHERE id = ? AND NOT EXISTS (SELECT 1 FROM entity_model WHERE entity_id = ?)`, args: []interface{}{id, id}},
	}
	return s.exec.Enqueue(ctx, stmts, []Message{{Kind: MsgEntityDeleted, ID: id}})
}

// ApplyEventMessage hashes the key members into the entity id, writes the
// event-message row, and, for historical models, appends a counter-
// incremented snapshot.
func (s *Store) ApplyEventMessage(ctx context.Context, keys []felt.Felt, modelID string, value schema.Ty, historical bool) error {
	entry, err := s.entry(modelID)
	if err != nil {
		return err
	}
	entityID := felt.PoseidonHashMany(keys)
	// Event messages share the entities id namespace behind an "event:"
	// prefix.
	id := "event:" + entityID.Hex()
	values := map[string]interface{}{}
	if err := flattenValues("", value, values); err != nil {
		return err
	}

	stmts := []stmt{
		{
			query: `INSERT INTO event_messages (id, keys, executed_at) VALUES (?, ?, unixepoch())
				ON CONFLICT(id) DO UPDATE SET keys = excluded.keys, updated_at = unixepoch()`,
			args: []interface{}{id, nullable(joinFelts(keys))},
		},
		{
			query: `INSERT OR IGNORE INTO event_model (entity_id, model_id) VALUES (?, ?)`,
			args:  []interface{}{id, modelID},
		},
		upsertModelRow(entry.table, id, "", id, "", values),
	}

	if historical || s.cfg.HistoricalModels[entry.table] {
		data, jerr := value.ToJSONValue()
		var payload string
		if jerr == nil {
			raw, _ := json.Marshal(data)
			payload = string(raw)
		}
		stmts = append(stmts,
			stmt{
				query: `UPDATE event_model SET historical_counter = historical_counter + 1 WHERE entity_id = ? AND model_id = ?`,
				args:  []interface{}{id, modelID},
			},
			stmt{
				query: `INSERT INTO event_messages_historical (id, model_id, counter, keys, data, executed_at)
					VALUES (?, ?, (SELECT historical_counter FROM event_model WHERE entity_id = ? AND model_id = ?), ?, ?, unixepoch())`,
				args: []interface{}{id, modelID, id, modelID, nullable(joinFelts(keys)), payload},
			},
		)
	}
	return s.exec.Enqueue(ctx, stmts, []Message{{Kind: MsgEventMessageUpdated, ID: id}})
}

// SetMetadata upserts a resource's metadata URI.
func (s *Store) SetMetadata(ctx context.Context, resourceID felt.Felt, uri string) error {
	return s.exec.Enqueue(ctx, []stmt{{
		query: `INSERT INTO metadata (id, uri) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET uri = excluded.uri, updated_at = unixepoch()`,
		args:  []interface{}{resourceID.Hex(), uri},
	}}, nil)
}

// RecordRawEvent lands an unrecognized event in the events table.
func (s *Store) RecordRawEvent(ctx context.Context, ev indexer.EventRecord) error {
	data := make([]string, len(ev.Data))
	for i, d := range ev.Data {
		data[i] = d.Hex()
	}
	raw, _ := json.Marshal(data)
	return s.exec.Enqueue(ctx, []stmt{{
		query: `INSERT OR IGNORE INTO events (id, keys, data, transaction_hash, executed_at) VALUES (?, ?, ?, ?, ?)`,
		args:  []interface{}{ev.EventID(), joinFelts(ev.Keys), string(raw), ev.TransactionHash.Hex(), ev.Timestamp},
	}}, []Message{{Kind: MsgEventEmitted, ID: ev.EventID()}})
}

// ApplyController records a deployed controller account.
func (s *Store) ApplyController(ctx context.Context, account, publicKey felt.Felt) error {
	return s.exec.Enqueue(ctx, []stmt{{
		query: `INSERT INTO controllers (account_address, public_key) VALUES (?, ?)
			ON CONFLICT(account_address) DO UPDATE SET public_key = excluded.public_key`,
		args: []interface{}{account.Hex(), publicKey.Hex()},
	}}, nil)
}

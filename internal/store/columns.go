package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"chainforge/internal/errs"
	"chainforge/pkg/schema"
)

// column is one derived SQL column of a model table.
type column struct {
	Name    string
	SQLType string
	// Check holds the enum variant names when the column is an enum
	// discriminator; emitted as a CHECK constraint.
	Check []string
	// Key marks columns derived from key-tagged members, which always get
	// an index.
	Key bool
}

func joinPath(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}

// columnsOf derives the flat column set for t by a recursive walk.
// An empty path at a scalar becomes "value".
func columnsOf(path string, t schema.Ty, key bool) []column {
	switch t.Kind {
	case schema.KindPrimitive:
		name := path
		if name == "" {
			name = "value"
		}
		return []column{{Name: name, SQLType: t.Primitive.Kind.SQLType(), Key: key}}
	case schema.KindStruct:
		var out []column
		for _, m := range t.Struct.Children {
			out = append(out, columnsOf(joinPath(path, m.Name), m.Ty, key || m.Key)...)
		}
		return out
	case schema.KindTuple:
		var out []column
		for i, e := range t.Tuple {
			out = append(out, columnsOf(joinPath(path, fmt.Sprintf("_%d", i)), e, key)...)
		}
		return out
	case schema.KindEnum:
		name := path
		if name == "" {
			name = "value"
		}
		variants := make([]string, len(t.Enum.Options))
		for i, o := range t.Enum.Options {
			variants[i] = o.Name
		}
		out := []column{{Name: name, SQLType: "TEXT", Check: variants, Key: key}}
		for _, o := range t.Enum.Options {
			if isUnitVariant(o.Ty) {
				continue
			}
			out = append(out, columnsOf(joinPath(path, o.Name), o.Ty, false)...)
		}
		return out
	case schema.KindArray, schema.KindFixedSizeArray, schema.KindByteArray:
		name := path
		if name == "" {
			name = "value"
		}
		return []column{{Name: name, SQLType: "TEXT", Key: key}}
	default:
		return nil
	}
}

func isUnitVariant(t schema.Ty) bool {
	return t.Kind == schema.KindTuple && len(t.Tuple) == 0
}

// flattenValues walks a populated value tree and fills out with one entry
// per scalar column. Unpopulated primitives are skipped so upserts leave
// those columns untouched.
func flattenValues(path string, t schema.Ty, out map[string]interface{}) error {
	switch t.Kind {
	case schema.KindPrimitive:
		if !t.Primitive.IsSet() {
			return nil
		}
		name := path
		if name == "" {
			name = "value"
		}
		out[name] = t.Primitive.ToSQLValue()
		return nil
	case schema.KindStruct:
		for _, m := range t.Struct.Children {
			if err := flattenValues(joinPath(path, m.Name), m.Ty, out); err != nil {
				return err
			}
		}
		return nil
	case schema.KindTuple:
		for i, e := range t.Tuple {
			if err := flattenValues(joinPath(path, fmt.Sprintf("_%d", i)), e, out); err != nil {
				return err
			}
		}
		return nil
	case schema.KindEnum:
		if t.Enum.Option == nil {
			return nil
		}
		opt, err := t.Enum.ActiveOption()
		if err != nil {
			return err
		}
		name := path
		if name == "" {
			name = "value"
		}
		out[name] = opt.Name
		if isUnitVariant(opt.Ty) {
			return nil
		}
		return flattenValues(joinPath(path, opt.Name), opt.Ty, out)
	case schema.KindArray, schema.KindFixedSizeArray, schema.KindByteArray:
		name := path
		if name == "" {
			name = "value"
		}
		v, err := t.ToJSONValue()
		if err != nil {
			// An unpopulated array template has nothing to persist yet.
			return nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: marshal %s payload: %w", name, err)
		}
		out[name] = string(raw)
		return nil
	default:
		return nil
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func indexName(table, col string) string {
	san := func(s string) string {
		s = strings.ReplaceAll(s, ".", "_")
		s = strings.ReplaceAll(s, "-", "_")
		return s
	}
	return "idx_" + san(table) + "_" + san(col)
}

// createTableSQL renders the model table DDL: derived columns plus the
// internal bookkeeping columns and foreign keys every model table
// carries.
func createTableSQL(table string, cols []column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (internal_id TEXT PRIMARY KEY, internal_event_id TEXT, internal_entity_id TEXT, internal_event_message_id TEXT, internal_executed_at INTEGER, internal_created_at INTEGER DEFAULT (unixepoch()), internal_updated_at INTEGER DEFAULT (unixepoch())")
	for _, c := range cols {
		b.WriteString(", ")
		b.WriteString(quoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(c.SQLType)
		if len(c.Check) > 0 {
			b.WriteString(" CHECK(")
			b.WriteString(quoteIdent(c.Name))
			b.WriteString(" IN (")
			for i, v := range c.Check {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString("'" + strings.ReplaceAll(v, "'", "''") + "'")
			}
			b.WriteString("))")
		}
	}
	b.WriteString(", FOREIGN KEY (internal_entity_id) REFERENCES entities(id), FOREIGN KEY (internal_event_message_id) REFERENCES event_messages(id))")
	return b.String()
}

// indexSQL renders CREATE INDEX statements for every key-tagged column
// plus any column named in modelIndices (or every column when indexAll).
func indexSQL(table string, cols []column, modelIndices map[string]bool, indexAll bool) []string {
	var out []string
	for _, c := range cols {
		if c.Key || indexAll || modelIndices[c.Name] {
			out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(table, c.Name), quoteIdent(table), quoteIdent(c.Name)))
		}
	}
	return out
}

// upgradeSQL computes the statement sequence that evolves table from
// oldCols to newCols. Schema evolution is additive: new columns are added,
// an INTEGER column widening to TEXT is rebuilt through a temporary table
// with printf('%064x', old), and anything else that changes shape is
// rejected as Fatal rather than silently re-shaped.
func upgradeSQL(table string, oldCols, newCols []column, modelIndices map[string]bool, indexAll bool) ([]string, error) {
	oldByName := make(map[string]column, len(oldCols))
	for _, c := range oldCols {
		oldByName[c.Name] = c
	}

	var stmts []string
	for _, nc := range newCols {
		oc, existed := oldByName[nc.Name]
		if !existed {
			add := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(nc.Name), nc.SQLType)
			stmts = append(stmts, add)
			if nc.Key || indexAll || modelIndices[nc.Name] {
				stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(table, nc.Name), quoteIdent(table), quoteIdent(nc.Name)))
			}
			continue
		}
		if oc.SQLType == nc.SQLType {
			continue
		}
		if oc.SQLType == "INTEGER" && nc.SQLType == "TEXT" {
			tmp := "tmp_" + strings.ReplaceAll(table, "-", "_")
			q := quoteIdent(table)
			qc := quoteIdent(nc.Name)
			stmts = append(stmts,
				fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT internal_id, %s AS old_value FROM %s", tmp, qc, q),
				fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName(table, nc.Name)),
				fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", q, qc),
				fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", q, qc),
				fmt.Sprintf("UPDATE %s SET %s = (SELECT printf('%%064x', t.old_value) FROM %s t WHERE t.internal_id = %s.internal_id)", q, qc, tmp, q),
				fmt.Sprintf("DROP TABLE %s", tmp),
			)
			if oc.Key || nc.Key || indexAll || modelIndices[nc.Name] {
				stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(table, nc.Name), q, qc))
			}
			continue
		}
		return nil, errs.Wrap(errs.Fatal, errs.CodeInternal,
			fmt.Sprintf("store: column %s.%s cannot change %s -> %s", table, nc.Name, oc.SQLType, nc.SQLType), nil)
	}
	return stmts, nil
}

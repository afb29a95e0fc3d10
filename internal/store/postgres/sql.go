package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/storesync/internal/core"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// selectList returns the declared columns. The timestamp column is read as
// text so its wall-clock digits reach the conflict check untouched.
func selectList(def *core.EntityDefinition) string {
	ts := def.Timestamp()
	cols := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == ts {
			cols = append(cols, fmt.Sprintf("%s::text AS %s", ident(f.Name), ident(f.Name)))
			continue
		}
		cols = append(cols, ident(f.Name))
	}
	return strings.Join(cols, ", ")
}

// where renders filter as equality conditions starting at placeholder $start.
func where(filter core.Filter, start int) (string, []any) {
	conds := make([]string, len(filter))
	args := make([]any, len(filter))
	for i, fv := range filter {
		conds[i] = fmt.Sprintf("%s = $%d", ident(fv.Field), start+i)
		args[i] = fv.Value
	}
	return strings.Join(conds, " AND "), args
}

func findSQL(def *core.EntityDefinition, filter core.Filter) (string, []any) {
	cond, args := where(filter, 1)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1",
		selectList(def), ident(def.TableName()), cond), args
}

func insertSQL(def *core.EntityDefinition, rec *core.Record) (string, []any) {
	names := rec.Fields()
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		v, _ := rec.Get(name)
		cols[i] = ident(name)
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = core.StoreValue(v)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		ident(def.TableName()), strings.Join(cols, ", "), strings.Join(marks, ", "), selectList(def)), args
}

func updateSQL(def *core.EntityDefinition, filter core.Filter, rec *core.Record) (string, []any) {
	names := rec.Fields()
	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+len(filter))
	for i, name := range names {
		v, _ := rec.Get(name)
		sets[i] = fmt.Sprintf("%s = $%d", ident(name), i+1)
		args = append(args, core.StoreValue(v))
	}
	cond, condArgs := where(filter, len(names)+1)
	args = append(args, condArgs...)
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		ident(def.TableName()), strings.Join(sets, ", "), cond, selectList(def)), args
}

func deleteSQL(def *core.EntityDefinition, filter core.Filter) (string, []any) {
	cond, args := where(filter, 1)
	return fmt.Sprintf("DELETE FROM %s WHERE %s", ident(def.TableName()), cond), args
}

// changesSQL pages by (timestamp text, primary key). The timestamp is
// compared as text under the C collation so the page order matches the
// stored digits, sub-millisecond fractions included.
func changesSQL(def *core.EntityDefinition, q core.ChangesQuery) (string, []any) {
	ts := ident(def.Timestamp())
	tsText := fmt.Sprintf(`%s::text COLLATE "C"`, ts)
	order := []string{tsText}
	for _, col := range def.PrimaryKey() {
		order = append(order, ident(col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s IS NOT NULL", selectList(def), ident(def.TableName()), ts)

	var args []any
	switch {
	case q.After != nil:
		marks := make([]string, 0, len(order))
		args = append(args, q.After.Timestamp)
		marks = append(marks, fmt.Sprintf("$%d", len(args)))
		for _, v := range q.After.Key {
			args = append(args, v)
			marks = append(marks, fmt.Sprintf("$%d", len(args)))
		}
		fmt.Fprintf(&b, " AND (%s) > (%s)", strings.Join(order, ", "), strings.Join(marks, ", "))
	case q.Since != "":
		args = append(args, q.Since)
		fmt.Fprintf(&b, " AND %s > $%d", tsText, len(args))
	}
	fmt.Fprintf(&b, " ORDER BY %s", strings.Join(order, ", "))
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

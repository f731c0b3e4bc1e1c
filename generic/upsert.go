package generic

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// UPSERT - Natural-key insert-or-update
// =============================================================================

// Column is one named value in a write.
type Column struct {
	Name  string
	Value any
}

// Col builds a Column.
func Col(name string, value any) Column { return Column{Name: name, Value: value} }

// UpsertSpec describes a write addressed by a natural key.
//
//   - Key:      the composite natural key; always written on insert
//   - Set:      fields explicitly present in the caller's input; written on
//     insert AND on update
//   - Defaults: values for absent fields; written on insert only
//
// A record that already exists keeps every column not listed in Set.
type UpsertSpec struct {
	Table    string
	Key      []Column
	Set      []Column
	Defaults []Column
}

// Upsert writes spec as a single INSERT ... ON CONFLICT DO UPDATE statement
// and returns the row id. When the table has no unique constraint on the key
// the statement is rejected by the store; the write then falls back to
// lookup-then-write inside a transaction.
func Upsert(ctx context.Context, q Querier, spec UpsertSpec) (int64, error) {
	if len(spec.Key) == 0 {
		return 0, NewValidationError("key", "upsert requires a natural key")
	}

	id, err := upsertOnConflict(ctx, q, spec)
	if err == nil || !IsNoConflictTarget(err) {
		return id, err
	}

	err = q.Tx(ctx, func(tx Querier) error {
		var txErr error
		id, txErr = upsertCheckThenWrite(ctx, tx, spec)
		return txErr
	})
	return id, err
}

func upsertOnConflict(ctx context.Context, q Querier, spec UpsertSpec) (int64, error) {
	d := q.Dialect()

	cols := make([]Column, 0, len(spec.Key)+len(spec.Set)+len(spec.Defaults))
	cols = append(cols, spec.Key...)
	cols = append(cols, spec.Set...)
	cols = append(cols, spec.Defaults...)

	names, args := splitColumns(d, cols)

	keyNames := make([]string, len(spec.Key))
	for i, k := range spec.Key {
		keyNames[i] = d.QuoteIdent(k.Name)
	}

	// With nothing to update, re-assign the first key column so the statement
	// still returns the existing row id.
	updates := spec.Set
	if len(updates) == 0 {
		updates = spec.Key[:1]
	}
	assignments := make([]string, len(updates))
	for i, c := range updates {
		n := d.QuoteIdent(c.Name)
		assignments[i] = n + " = excluded." + n
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		d.QuoteIdent(spec.Table),
		strings.Join(names, ", "),
		Placeholders(len(args)),
		strings.Join(keyNames, ", "),
		strings.Join(assignments, ", "),
	)
	return Insert(ctx, q, query, args...)
}

func upsertCheckThenWrite(ctx context.Context, q Querier, spec UpsertSpec) (int64, error) {
	d := q.Dialect()

	where, whereArgs := whereEquals(d, spec.Key)
	var existing int64
	found, err := QueryRow(ctx, q,
		fmt.Sprintf("SELECT id FROM %s WHERE %s ORDER BY id LIMIT 1", d.QuoteIdent(spec.Table), where),
		whereArgs, &existing)
	if err != nil {
		return 0, err
	}

	if found {
		if _, err := UpdateByID(ctx, q, spec.Table, existing, spec.Set); err != nil {
			return 0, err
		}
		return existing, nil
	}

	cols := make([]Column, 0, len(spec.Key)+len(spec.Set)+len(spec.Defaults))
	cols = append(cols, spec.Key...)
	cols = append(cols, spec.Set...)
	cols = append(cols, spec.Defaults...)
	return InsertColumns(ctx, q, spec.Table, cols)
}

// InsertColumns inserts one row and returns its id.
func InsertColumns(ctx context.Context, q Querier, table string, cols []Column) (int64, error) {
	d := q.Dialect()
	names, args := splitColumns(d, cols)
	return Insert(ctx, q, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table), strings.Join(names, ", "), Placeholders(len(args))), args...)
}

// UpdateByID updates only the given columns of one row. With no columns it
// does nothing and reports zero affected rows.
func UpdateByID(ctx context.Context, q Querier, table string, id int64, set []Column) (int64, error) {
	if len(set) == 0 {
		return 0, nil
	}
	d := q.Dialect()
	assignments := make([]string, len(set))
	args := make([]any, 0, len(set)+1)
	for i, c := range set {
		assignments[i] = d.QuoteIdent(c.Name) + " = ?"
		args = append(args, c.Value)
	}
	args = append(args, id)

	res, err := q.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE id = ?",
		d.QuoteIdent(table), strings.Join(assignments, ", ")), args...)
	return res.AffectedRows, err
}

func splitColumns(d Dialect, cols []Column) ([]string, []any) {
	names := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = d.QuoteIdent(c.Name)
		args[i] = c.Value
	}
	return names, args
}

func whereEquals(d Dialect, cols []Column) (string, []any) {
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if c.Value == nil {
			parts = append(parts, d.QuoteIdent(c.Name)+" IS NULL")
			continue
		}
		parts = append(parts, d.QuoteIdent(c.Name)+" = ?")
		args = append(args, c.Value)
	}
	return strings.Join(parts, " AND "), args
}

/*
Package schema resolves logical table and column names to stored ones.

PURPOSE:
  The engine is deployed against databases whose schema it does not own.
  Table and column names drift: "marcas" vs "Marcas", "marca_id" vs
  "Id_Marca", columns added in later versions (fijos_mensuales_marca.anio).
  This package is the single capability-negotiation layer for that drift:
  callers ask for a logical name, they get the stored one (or a
  SchemaDriftError), and never try literal name cascades themselves.

RESOLUTION:
  1. Candidates: the logical name, then its registered aliases
  2. Each candidate is matched case-insensitively against the catalog
  3. Then again ignoring '_' so "IdMarca" matches "id_marca"
  The first candidate that matches wins.

CACHING:
  - The table list is loaded on first use and kept for the process lifetime
  - Column lists are loaded per table on first use
  - A miss reloads the table list once before failing (tables created later)
  - Invalidate(table) drops what is known about one table; callers do it
    when the store rejects a statement with an unknown-column error

  Flags cached true elsewhere are not retroactively fixed by one invalidation.
  That staleness window is accepted; the next rejection fixes it.

SEE ALSO:
  - generic/store.go: Dialect.TablesQuery / ColumnsQuery
  - fixedpay/resolver.go: capability flag on top of HasColumns
*/
package schema

import (
	"context"
	"strings"
	"sync"

	"github.com/warp/commission-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver is the capability-negotiation contract.
type Resolver interface {
	// ResolveTable returns the stored name of a logical table.
	ResolveTable(ctx context.Context, logical string) (string, error)

	// ResolveColumn returns the stored name of a logical column of a stored
	// table. Extra candidates are tried after the registered aliases.
	ResolveColumn(ctx context.Context, table, logical string, candidates ...string) (string, error)

	// HasColumns reports whether every named column exists in the table.
	HasColumns(ctx context.Context, table string, names ...string) (bool, error)

	// Columns returns the stored column names of a table.
	Columns(ctx context.Context, table string) ([]string, error)

	// Invalidate forgets cached facts about a table.
	Invalidate(table string)
}

// Catalog implements Resolver over a generic.Querier.
type Catalog struct {
	q       generic.Querier
	aliases map[string][]string
	log     *zap.Logger

	mu      sync.RWMutex
	tables  []string            // nil until loaded
	columns map[string][]string // stored table (lower) -> columns
}

// NewCatalog creates a Catalog with the default aliases.
func NewCatalog(q generic.Querier, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{
		q:       q,
		aliases: make(map[string][]string),
		log:     log.Named("schema"),
		columns: make(map[string][]string),
	}
	for logical, alts := range DefaultAliases {
		c.aliases[strings.ToLower(logical)] = alts
	}
	return c
}

// Alias registers alternate stored names for a logical table or column.
func (c *Catalog) Alias(logical string, alternates ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(logical)
	c.aliases[key] = append(c.aliases[key], alternates...)
}

// ResolveTable implements Resolver.
func (c *Catalog) ResolveTable(ctx context.Context, logical string) (string, error) {
	tables, err := c.loadTables(ctx, false)
	if err != nil {
		return "", err
	}
	candidates := c.candidates(logical)
	if name := Pick(tables, candidates...); name != "" {
		return name, nil
	}

	tables, err = c.loadTables(ctx, true)
	if err != nil {
		return "", err
	}
	if name := Pick(tables, candidates...); name != "" {
		return name, nil
	}
	return "", &generic.SchemaDriftError{Object: "table", Name: logical}
}

// ResolveColumn implements Resolver.
func (c *Catalog) ResolveColumn(ctx context.Context, table, logical string, candidates ...string) (string, error) {
	cols, err := c.Columns(ctx, table)
	if err != nil {
		return "", err
	}
	all := append(c.candidates(logical), candidates...)
	if name := Pick(cols, all...); name != "" {
		return name, nil
	}
	return "", &generic.SchemaDriftError{Object: "column", Table: table, Name: logical}
}

// HasColumns implements Resolver.
func (c *Catalog) HasColumns(ctx context.Context, table string, names ...string) (bool, error) {
	cols, err := c.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if Pick(cols, n) == "" {
			return false, nil
		}
	}
	return true, nil
}

// Columns implements Resolver.
func (c *Catalog) Columns(ctx context.Context, table string) ([]string, error) {
	key := strings.ToLower(table)

	c.mu.RLock()
	cols, ok := c.columns[key]
	c.mu.RUnlock()
	if ok {
		return cols, nil
	}

	query, args := c.q.Dialect().ColumnsQuery(table)
	err := c.q.Query(ctx, query, args, func(row generic.RowScanner) error {
		var name string
		if err := row.Scan(&name); err != nil {
			return err
		}
		cols = append(cols, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &generic.SchemaDriftError{Object: "table", Name: table}
	}

	c.mu.Lock()
	c.columns[key] = cols
	c.mu.Unlock()
	return cols, nil
}

// Invalidate implements Resolver.
func (c *Catalog) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.columns, strings.ToLower(table))
	c.log.Debug("schema cache invalidated", zap.String("table", table))
}

// Reset forgets everything (tests, schema reloads).
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = nil
	c.columns = make(map[string][]string)
}

func (c *Catalog) loadTables(ctx context.Context, reload bool) ([]string, error) {
	if !reload {
		c.mu.RLock()
		tables := c.tables
		c.mu.RUnlock()
		if tables != nil {
			return tables, nil
		}
	}

	tables := []string{}
	err := c.q.Query(ctx, c.q.Dialect().TablesQuery(), nil, func(row generic.RowScanner) error {
		var name string
		if err := row.Scan(&name); err != nil {
			return err
		}
		tables = append(tables, name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()
	return tables, nil
}

func (c *Catalog) candidates(logical string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []string{logical}
	return append(out, c.aliases[strings.ToLower(logical)]...)
}

// =============================================================================
// MATCHING
// =============================================================================

// Pick returns the first stored name matching any candidate, trying an exact
// case-insensitive match first and then one that ignores underscores.
// It returns "" when nothing matches.
func Pick(stored []string, candidates ...string) string {
	for _, cand := range candidates {
		for _, s := range stored {
			if strings.EqualFold(s, cand) {
				return s
			}
		}
	}
	for _, cand := range candidates {
		n := squash(cand)
		for _, s := range stored {
			if squash(s) == n {
				return s
			}
		}
	}
	return ""
}

func squash(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

/*
Package runs records batch actions in the ejecuciones table.

PURPOSE:
  Objective generation, commission computation and rebate computation are
  run from the batch CLI, the HTTP API and the scheduler. Each run gets a
  row with a uuid, its kind and parameters, when it started and finished,
  and its result or error, so an operator can tell what was computed when.

KEY CONCEPTS:
  - Start inserts a "running" row; Finish completes it as "completed" or
    "failed". Track wraps a function with both.
  - The run log is auxiliary: a deployment without the table still runs
    batches; the run is only logged.

SEE ALSO:
  - cmd/batch/main.go: batch entry points
  - api/scheduler.go: periodic runs
*/
package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// Kind names a batch action.
type Kind string

const (
	KindObjectives  Kind = "objectives"
	KindCommissions Kind = "commissions"
	KindRapels      Kind = "rapels"
	KindPlanImport  Kind = "plan_import"
)

// Status of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one ejecuciones row.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	Params      json.RawMessage `json:"params,omitempty"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	persisted bool
}

// timeLayout sorts lexicographically for UTC times.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Filter narrows List. Zero values are ignored; Limit defaults to 50.
type Filter struct {
	Kind   Kind
	Status Status
	Limit  int
}

// Log reads and writes runs.
type Log struct {
	q      generic.Querier
	schema schema.Resolver
	log    *zap.Logger
	now    func() time.Time
}

// NewLog creates a Log.
func NewLog(q generic.Querier, sch schema.Resolver, log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{q: q, schema: sch, log: log.Named("runs"), now: time.Now}
}

// =============================================================================
// WRITE
// =============================================================================

// Start records a running run. Without the table the run is returned
// unpersisted.
func (l *Log) Start(ctx context.Context, kind Kind, params any) (*Run, error) {
	run := &Run{ID: uuid.New(), Kind: kind, Status: StatusRunning, StartedAt: l.now().UTC()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding run params: %w", err)
		}
		run.Params = raw
	}

	table, err := l.schema.ResolveTable(ctx, schema.TableRuns)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			l.log.Debug("run table unavailable, run not persisted", zap.String("kind", string(kind)))
			return run, nil
		}
		return nil, err
	}
	_, err = l.q.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, tipo, parametros, estado, iniciado_en) VALUES (?, ?, ?, ?, ?)`,
		l.q.Dialect().QuoteIdent(table)),
		run.ID.String(), string(kind), nullJSON(run.Params), string(StatusRunning), run.StartedAt.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	run.persisted = true
	l.log.Info("run started", zap.Stringer("run", run.ID), zap.String("kind", string(kind)))
	return run, nil
}

// Finish completes a run with its result, or marks it failed when runErr is
// not nil.
func (l *Log) Finish(ctx context.Context, run *Run, result any, runErr error) error {
	done := l.now().UTC()
	run.CompletedAt = &done
	run.Status = StatusCompleted
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding run result: %w", err)
		}
		run.Result = raw
	}

	fields := []zap.Field{
		zap.Stringer("run", run.ID), zap.String("kind", string(run.Kind)),
		zap.String("status", string(run.Status)), zap.Duration("took", done.Sub(run.StartedAt)),
	}
	if runErr != nil {
		l.log.Warn("run failed", append(fields, zap.Error(runErr))...)
	} else {
		l.log.Info("run completed", fields...)
	}
	if !run.persisted {
		return nil
	}

	table, err := l.schema.ResolveTable(ctx, schema.TableRuns)
	if err != nil {
		return err
	}
	_, err = l.q.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET estado = ?, resultado = ?, error = ?, completado_en = ? WHERE id = ?`,
		l.q.Dialect().QuoteIdent(table)),
		string(run.Status), nullJSON(run.Result), sql.NullString{String: run.Error, Valid: run.Error != ""},
		done.Format(timeLayout), run.ID.String())
	return err
}

// Track runs fn between Start and Finish. fn's error is returned; a failure
// to record the run is only logged. The run is finished even when ctx was
// cancelled while fn ran.
func Track[T any](ctx context.Context, l *Log, kind Kind, params any, fn func(context.Context) (T, error)) (T, *Run, error) {
	var zero T
	run, err := l.Start(ctx, kind, params)
	if err != nil {
		return zero, nil, err
	}
	out, runErr := fn(ctx)
	var result any
	if runErr == nil {
		result = out
	}
	if err := l.Finish(context.WithoutCancel(ctx), run, result, runErr); err != nil {
		l.log.Warn("recording run completion failed", zap.Stringer("run", run.ID), zap.Error(err))
	}
	return out, run, runErr
}

func nullJSON(raw json.RawMessage) sql.NullString {
	return sql.NullString{String: string(raw), Valid: len(raw) > 0}
}

// =============================================================================
// READ
// =============================================================================

// Get returns a run by id, or nil.
func (l *Log) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	runs, err := l.list(ctx, "WHERE id = ?", []any{id.String()}, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// List returns runs, newest first.
func (l *Log) List(ctx context.Context, f Filter) ([]Run, error) {
	where, args := "", []any{}
	add := func(cond string, arg any) {
		if where == "" {
			where = "WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, arg)
	}
	if f.Kind != "" {
		add("tipo = ?", string(f.Kind))
	}
	if f.Status != "" {
		add("estado = ?", string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	return l.list(ctx, where, args, limit)
}

func (l *Log) list(ctx context.Context, where string, args []any, limit int) ([]Run, error) {
	table, err := l.schema.ResolveTable(ctx, schema.TableRuns)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return []Run{}, nil
		}
		return nil, err
	}

	runs := []Run{}
	err = l.q.Query(ctx, fmt.Sprintf(`
		SELECT id, tipo, parametros, estado, resultado, error, iniciado_en, completado_en
		FROM %s %s
		ORDER BY iniciado_en DESC, id
		LIMIT %d`, l.q.Dialect().QuoteIdent(table), where, limit),
		args,
		func(row generic.RowScanner) error {
			var (
				r                    Run
				id, kind, status     string
				started              string
				params, result, errS sql.NullString
				completed            sql.NullString
			)
			if err := row.Scan(&id, &kind, &params, &status, &result, &errS, &started, &completed); err != nil {
				return err
			}
			parsed, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("run id %q: %w", id, err)
			}
			r.ID, r.Kind, r.Status, r.Error = parsed, Kind(kind), Status(status), errS.String
			r.persisted = true
			if params.Valid {
				r.Params = json.RawMessage(params.String)
			}
			if result.Valid {
				r.Result = json.RawMessage(result.String)
			}
			if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
				return fmt.Errorf("run %s start: %w", id, err)
			}
			if completed.Valid {
				at, err := time.Parse(timeLayout, completed.String)
				if err != nil {
					return fmt.Errorf("run %s completion: %w", id, err)
				}
				r.CompletedAt = &at
			}
			runs = append(runs, r)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

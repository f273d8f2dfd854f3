package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarrylane/lamina/platform/go/adapter"
)

// MainAdapter implements the shared data-access contract over the main
// database pool, so the routing layer can treat the main and tenant databases
// uniformly.
type MainAdapter struct {
	pool *pgxpool.Pool
}

// NewMainAdapter wraps the main database pool.
func NewMainAdapter(pool *pgxpool.Pool) (*MainAdapter, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &MainAdapter{pool: pool}, nil
}

func pgPlaceholder(i int) string { return fmt.Sprintf("$%d", i) }

func (a *MainAdapter) FindOne(ctx context.Context, model string, filter adapter.Filter) (adapter.Row, error) {
	rows, err := a.FindMany(ctx, model, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, adapter.ErrNoRows
	}
	return rows[0], nil
}

func (a *MainAdapter) FindMany(ctx context.Context, model string, filter adapter.Filter, limit int) ([]adapter.Row, error) {
	table, err := adapter.NormalizeIdentifier(model)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table
	where, args, err := adapter.BuildWhere(filter, nil, pgPlaceholder)
	if err != nil {
		return nil, err
	}
	query += where
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func (a *MainAdapter) Create(ctx context.Context, model string, values adapter.Values) (adapter.Row, error) {
	table, err := adapter.NormalizeIdentifier(model)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("create requires values")
	}

	columns := make([]string, 0, len(values))
	holders := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, key := range adapter.SortedKeys(values) {
		column, err := adapter.NormalizeIdentifier(key)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
		args = append(args, values[key])
		holders = append(holders, pgPlaceholder(len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(holders, ", "))

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	defer rows.Close()

	out, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return adapter.Row(values), nil
	}
	return out[0], nil
}

func (a *MainAdapter) Update(ctx context.Context, model string, filter adapter.Filter, values adapter.Values) (int64, error) {
	table, err := adapter.NormalizeIdentifier(model)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, errors.New("update requires values")
	}

	sets := make([]string, 0, len(values))
	args := make([]any, 0, len(values)+len(filter))
	for _, key := range adapter.SortedKeys(values) {
		column, err := adapter.NormalizeIdentifier(key)
		if err != nil {
			return 0, err
		}
		args = append(args, values[key])
		sets = append(sets, fmt.Sprintf("%s = %s", column, pgPlaceholder(len(args))))
	}

	query := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	where, args, err := adapter.BuildWhere(filter, args, pgPlaceholder)
	if err != nil {
		return 0, err
	}
	query += where

	tag, err := a.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (a *MainAdapter) Delete(ctx context.Context, model string, filter adapter.Filter) (int64, error) {
	table, err := adapter.NormalizeIdentifier(model)
	if err != nil {
		return 0, err
	}

	query := "DELETE FROM " + table
	where, args, err := adapter.BuildWhere(filter, nil, pgPlaceholder)
	if err != nil {
		return 0, err
	}
	query += where

	tag, err := a.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func collectRows(rows pgx.Rows) ([]adapter.Row, error) {
	fields := rows.FieldDescriptions()
	var out []adapter.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(adapter.Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ adapter.Adapter = (*MainAdapter)(nil)

package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quarrylane/lamina/platform/go/cloudflare"
)

// SQLQuerier is the slice of the provider client the D1 adapter needs.
type SQLQuerier interface {
	Query(ctx context.Context, databaseID, sql string, params ...any) (*cloudflare.QueryResult, error)
}

// D1Adapter executes adapter operations against one tenant database over the
// provider's SQL endpoint. One adapter is bound to exactly one database id and
// must never be reused for another.
type D1Adapter struct {
	querier    SQLQuerier
	databaseID string
}

// NewD1Adapter binds an adapter to a database resource id.
func NewD1Adapter(querier SQLQuerier, databaseID string) (*D1Adapter, error) {
	if querier == nil {
		return nil, errors.New("sql querier is required")
	}
	if databaseID == "" {
		return nil, errors.New("database id is required")
	}
	return &D1Adapter{querier: querier, databaseID: databaseID}, nil
}

// DatabaseID returns the bound resource id.
func (a *D1Adapter) DatabaseID() string {
	return a.databaseID
}

func sqlitePlaceholder(int) string { return "?" }

func (a *D1Adapter) FindOne(ctx context.Context, model string, filter Filter) (Row, error) {
	rows, err := a.FindMany(ctx, model, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

func (a *D1Adapter) FindMany(ctx context.Context, model string, filter Filter, limit int) ([]Row, error) {
	table, err := NormalizeIdentifier(model)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table
	where, args, err := BuildWhere(filter, nil, sqlitePlaceholder)
	if err != nil {
		return nil, err
	}
	query += where
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	res, err := a.querier.Query(ctx, a.databaseID, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}

	rows := make([]Row, 0, len(res.Results))
	for _, r := range res.Results {
		rows = append(rows, Row(r))
	}
	return rows, nil
}

func (a *D1Adapter) Create(ctx context.Context, model string, values Values) (Row, error) {
	table, err := NormalizeIdentifier(model)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("create requires values")
	}

	columns := make([]string, 0, len(values))
	holders := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, key := range SortedKeys(values) {
		column, err := NormalizeIdentifier(key)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
		holders = append(holders, "?")
		args = append(args, values[key])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(holders, ", "))

	res, err := a.querier.Query(ctx, a.databaseID, query, args...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	if len(res.Results) == 0 {
		return Row(values), nil
	}
	return Row(res.Results[0]), nil
}

func (a *D1Adapter) Update(ctx context.Context, model string, filter Filter, values Values) (int64, error) {
	table, err := NormalizeIdentifier(model)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, errors.New("update requires values")
	}

	sets := make([]string, 0, len(values))
	args := make([]any, 0, len(values)+len(filter))
	for _, key := range SortedKeys(values) {
		column, err := NormalizeIdentifier(key)
		if err != nil {
			return 0, err
		}
		args = append(args, values[key])
		sets = append(sets, column+" = ?")
	}

	query := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	where, args, err := BuildWhere(filter, args, sqlitePlaceholder)
	if err != nil {
		return 0, err
	}
	query += where

	res, err := a.querier.Query(ctx, a.databaseID, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.Meta.Changes, nil
}

func (a *D1Adapter) Delete(ctx context.Context, model string, filter Filter) (int64, error) {
	table, err := NormalizeIdentifier(model)
	if err != nil {
		return 0, err
	}

	query := "DELETE FROM " + table
	where, args, err := BuildWhere(filter, nil, sqlitePlaceholder)
	if err != nil {
		return 0, err
	}
	query += where

	res, err := a.querier.Query(ctx, a.databaseID, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.Meta.Changes, nil
}

var _ Adapter = (*D1Adapter)(nil)

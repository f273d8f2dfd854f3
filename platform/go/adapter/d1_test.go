package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarrylane/lamina/platform/go/cloudflare"
)

type fakeQuerier struct {
	sqls    []string
	args    [][]any
	dbIDs   []string
	next    *cloudflare.QueryResult
	nextErr error
}

func (f *fakeQuerier) Query(ctx context.Context, databaseID, sql string, params ...any) (*cloudflare.QueryResult, error) {
	f.dbIDs = append(f.dbIDs, databaseID)
	f.sqls = append(f.sqls, sql)
	f.args = append(f.args, params)
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	if f.next != nil {
		return f.next, nil
	}
	return &cloudflare.QueryResult{Success: true}, nil
}

func TestNormalizeIdentifier(t *testing.T) {
	for _, input := range []string{"projects", "tenant_databases", "a1", "  padded  "} {
		_, err := NormalizeIdentifier(input)
		require.NoError(t, err, input)
	}
	for _, input := range []string{"", "Projects", "1abc", "drop table", `x"; --`} {
		_, err := NormalizeIdentifier(input)
		require.Error(t, err, input)
	}
}

func TestBuildWhereDeterministic(t *testing.T) {
	filter := Filter{"b": 2, "a": 1, "c": "x"}

	where, args, err := BuildWhere(filter, nil, sqlitePlaceholder)
	require.NoError(t, err)
	require.Equal(t, " WHERE a = ? AND b = ? AND c = ?", where)
	require.Equal(t, []any{1, 2, "x"}, args)
}

func TestBuildWhereInList(t *testing.T) {
	where, args, err := BuildWhere(Filter{"status": []string{"creating", "deleting"}}, nil, sqlitePlaceholder)
	require.NoError(t, err)
	require.Equal(t, " WHERE status IN (?, ?)", where)
	require.Equal(t, []any{"creating", "deleting"}, args)

	_, _, err = BuildWhere(Filter{"status": []string{}}, nil, sqlitePlaceholder)
	require.Error(t, err)
}

func TestBuildWhereRejectsUnsafeColumn(t *testing.T) {
	_, _, err := BuildWhere(Filter{"id; DROP TABLE x": 1}, nil, sqlitePlaceholder)
	require.Error(t, err)
}

func TestD1AdapterFindMany(t *testing.T) {
	querier := &fakeQuerier{next: &cloudflare.QueryResult{
		Success: true,
		Results: []map[string]any{{"id": "p-1"}, {"id": "p-2"}},
	}}
	a, err := NewD1Adapter(querier, "db-1")
	require.NoError(t, err)

	rows, err := a.FindMany(context.Background(), "projects", Filter{"organization_id": "org-1"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "SELECT * FROM projects WHERE organization_id = ? LIMIT 10", querier.sqls[0])
	require.Equal(t, []any{"org-1"}, querier.args[0])
	require.Equal(t, "db-1", querier.dbIDs[0])
}

func TestD1AdapterFindOneNoRows(t *testing.T) {
	a, err := NewD1Adapter(&fakeQuerier{}, "db-1")
	require.NoError(t, err)

	_, err = a.FindOne(context.Background(), "projects", Filter{"id": "missing"})
	require.ErrorIs(t, err, ErrNoRows)
}

func TestD1AdapterCreate(t *testing.T) {
	querier := &fakeQuerier{next: &cloudflare.QueryResult{
		Success: true,
		Results: []map[string]any{{"id": "p-1", "name": "alpha"}},
	}}
	a, err := NewD1Adapter(querier, "db-1")
	require.NoError(t, err)

	row, err := a.Create(context.Background(), "projects", Values{"name": "alpha", "id": "p-1"})
	require.NoError(t, err)
	require.Equal(t, "alpha", row["name"])
	require.Equal(t, "INSERT INTO projects (id, name) VALUES (?, ?) RETURNING *", querier.sqls[0])
	require.Equal(t, []any{"p-1", "alpha"}, querier.args[0])
}

func TestD1AdapterUpdateReportsChanges(t *testing.T) {
	querier := &fakeQuerier{next: &cloudflare.QueryResult{
		Success: true,
		Meta:    cloudflare.QueryMeta{Changes: 3},
	}}
	a, err := NewD1Adapter(querier, "db-1")
	require.NoError(t, err)

	n, err := a.Update(context.Background(), "projects", Filter{"organization_id": "org-1"}, Values{"archived": true})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, "UPDATE projects SET archived = ? WHERE organization_id = ?", querier.sqls[0])
	require.Equal(t, []any{true, "org-1"}, querier.args[0])
}

func TestD1AdapterDelete(t *testing.T) {
	querier := &fakeQuerier{next: &cloudflare.QueryResult{
		Success: true,
		Meta:    cloudflare.QueryMeta{Changes: 1},
	}}
	a, err := NewD1Adapter(querier, "db-1")
	require.NoError(t, err)

	n, err := a.Delete(context.Background(), "projects", Filter{"id": "p-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, "DELETE FROM projects WHERE id = ?", querier.sqls[0])
}

func TestD1AdapterRejectsUnsafeModel(t *testing.T) {
	a, err := NewD1Adapter(&fakeQuerier{}, "db-1")
	require.NoError(t, err)

	_, err = a.FindMany(context.Background(), "projects; DROP TABLE users", nil, 0)
	require.Error(t, err)
}

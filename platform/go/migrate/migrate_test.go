package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatementsOrdering(t *testing.T) {
	schema := "CREATE TABLE a (id TEXT);\n--> statement-breakpoint\nCREATE TABLE b (id TEXT);\n--> statement-breakpoint\nCREATE INDEX b_id ON b (id);"

	statements := SplitStatements(schema)
	require.Equal(t, []string{
		"CREATE TABLE a (id TEXT);",
		"CREATE TABLE b (id TEXT);",
		"CREATE INDEX b_id ON b (id);",
	}, statements)
}

func TestSplitStatementsIgnoresMarkerInStringLiteral(t *testing.T) {
	schema := "INSERT INTO notes (body) VALUES ('--> statement-breakpoint');\n--> statement-breakpoint\nCREATE TABLE c (id TEXT);"

	statements := SplitStatements(schema)
	require.Len(t, statements, 2)
	require.Contains(t, statements[0], "'--> statement-breakpoint'")
}

func TestSplitStatementsIgnoresMarkerAfterCommentDashes(t *testing.T) {
	schema := "CREATE TABLE a (id TEXT); -- trailing note --> statement-breakpoint still comment\nCREATE TABLE b (id TEXT);"

	// The comment opener comes first, so the marker inside it does not split.
	statements := SplitStatements(schema)
	require.Len(t, statements, 1)
}

func TestSplitStatementsHandlesEscapedQuote(t *testing.T) {
	schema := "INSERT INTO t (v) VALUES ('it''s fine');\n--> statement-breakpoint\nSELECT 1;"

	statements := SplitStatements(schema)
	require.Len(t, statements, 2)
}

func TestSplitStatementsDiscardsEmptySegments(t *testing.T) {
	schema := "--> statement-breakpoint\nCREATE TABLE a (id TEXT);\n--> statement-breakpoint\n   \n--> statement-breakpoint"

	statements := SplitStatements(schema)
	require.Equal(t, []string{"CREATE TABLE a (id TEXT);"}, statements)
}

type execCall struct {
	databaseID string
	sql        string
}

type fakeExecutor struct {
	calls   []execCall
	failOn  int
	execErr error
}

func (f *fakeExecutor) Exec(ctx context.Context, databaseID, sql string) error {
	if f.execErr != nil && len(f.calls)+1 == f.failOn {
		return f.execErr
	}
	f.calls = append(f.calls, execCall{databaseID: databaseID, sql: sql})
	return nil
}

func TestInitializerAppliesStatementsSequentially(t *testing.T) {
	exec := &fakeExecutor{}
	init, err := NewInitializer(exec, Config{
		Schema:  Static("CREATE TABLE a (id TEXT);\n--> statement-breakpoint\nCREATE TABLE b (id TEXT);"),
		Version: Static("0001"),
	})
	require.NoError(t, err)

	applied, err := init.Apply(context.Background(), "db-1")
	require.NoError(t, err)

	require.Equal(t, "0001", applied.Version)
	require.Equal(t, 2, applied.Statements)
	require.NotEmpty(t, applied.Checksum)
	require.Len(t, exec.calls, 2)
	require.Equal(t, "CREATE TABLE a (id TEXT);", exec.calls[0].sql)
	require.Equal(t, "CREATE TABLE b (id TEXT);", exec.calls[1].sql)
	require.Equal(t, "db-1", exec.calls[0].databaseID)
}

func TestInitializerStopsAtFirstFailure(t *testing.T) {
	exec := &fakeExecutor{failOn: 2, execErr: errors.New("syntax error")}
	init, err := NewInitializer(exec, Config{
		Schema: Static("A;\n--> statement-breakpoint\nB;\n--> statement-breakpoint\nC;"),
	})
	require.NoError(t, err)

	_, err = init.Apply(context.Background(), "db-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "statement 2/3")
	require.Len(t, exec.calls, 1)
}

func TestInitializerRejectsBlankSchema(t *testing.T) {
	init, err := NewInitializer(&fakeExecutor{}, Config{Schema: Static("   \n\t")})
	require.NoError(t, err)

	_, err = init.Apply(context.Background(), "db-1")
	require.ErrorIs(t, err, ErrInvalidSchema)
}

func TestInitializerResolvesSchemaFromFunc(t *testing.T) {
	exec := &fakeExecutor{}
	init, err := NewInitializer(exec, Config{
		Schema: FromFunc(func(ctx context.Context) (string, error) {
			return "CREATE TABLE lazy (id TEXT);", nil
		}),
	})
	require.NoError(t, err)

	applied, err := init.Apply(context.Background(), "db-1")
	require.NoError(t, err)
	require.Equal(t, InitialVersion, applied.Version)
	require.Len(t, exec.calls, 1)
}

func TestInitializerPropagatesSourceError(t *testing.T) {
	srcErr := errors.New("fetch failed")
	init, err := NewInitializer(&fakeExecutor{}, Config{
		Schema: FromFunc(func(ctx context.Context) (string, error) { return "", srcErr }),
	})
	require.NoError(t, err)

	_, err = init.Apply(context.Background(), "db-1")
	require.ErrorIs(t, err, srcErr)
}

func TestChecksumIsStable(t *testing.T) {
	require.Equal(t, Checksum("abc"), Checksum("abc"))
	require.NotEqual(t, Checksum("abc"), Checksum("abd"))
	require.Len(t, Checksum("abc"), 64)
}

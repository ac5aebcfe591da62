package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	xerrors "Superio-Chain/internal/errors"
)

const testWallet = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func TestMemoryChatRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryChatRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	ctx := context.Background()

	conv, err := repo.Conversation(ctx, testWallet)
	if err != nil {
		t.Fatalf("conversation failed: %v", err)
	}
	if conv.Summary != DefaultSummary || len(conv.Messages) != 0 {
		t.Fatalf("unexpected empty conversation: %+v", conv)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		count, err := repo.AppendMessage(ctx, testWallet, Message{
			Role:      RoleUser,
			Content:   fmt.Sprintf("message-%d", i),
			Metadata:  map[string]any{"index": i},
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if count != i+1 {
			t.Fatalf("expected count %d, got %d", i+1, count)
		}
	}
	if err := repo.UpdateSummary(ctx, testWallet, "Bitcoin price check"); err != nil {
		t.Fatalf("update summary failed: %v", err)
	}

	recent, err := repo.RecentMessages(ctx, testWallet, 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "message-1" || recent[1].Content != "message-2" {
		t.Fatalf("unexpected recent messages: %+v", recent)
	}

	reloaded, err := NewMemoryChatRepository(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	conv, err = reloaded.Conversation(ctx, testWallet)
	if err != nil {
		t.Fatalf("conversation after reload failed: %v", err)
	}
	if conv.Summary != "Bitcoin price check" || conv.MessageCount != 3 || len(conv.Messages) != 3 {
		t.Fatalf("unexpected reloaded conversation: %+v", conv)
	}
	if conv.Messages[2].Metadata["index"] != float64(2) {
		t.Fatalf("metadata not restored: %+v", conv.Messages[2].Metadata)
	}
}

func TestMemoryChatRepositoryValidation(t *testing.T) {
	t.Parallel()

	repo, err := NewMemoryChatRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	ctx := context.Background()

	if _, err := repo.AppendMessage(ctx, " ", Message{Role: RoleUser, Content: "hi"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for empty wallet, got %v", err)
	}
	if _, err := repo.AppendMessage(ctx, testWallet, Message{Role: "system", Content: "hi"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for role, got %v", err)
	}
	if _, err := repo.AppendMessage(ctx, testWallet, Message{Role: "Assistant", Content: "  "}); err == nil {
		t.Fatalf("expected error for empty content")
	}
	if err := repo.UpdateSummary(ctx, testWallet, ""); err == nil {
		t.Fatalf("expected error for empty summary")
	}
}

func TestSQLChatRepositoryAppendMessage(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		beginOp(),
		execOp(upsertConversationSQL, mockResult{rowsAffected: 1}),
		execOp(insertMessageSQL, mockResult{lastInsertID: 9, rowsAffected: 1}),
		queryOp(selectCountSQL, mockRowsData{columns: []string{"message_count"}, values: [][]driver.Value{{int64(5)}}}),
		commitOp(),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	count, err := repo.AppendMessage(context.Background(), testWallet, Message{Role: RoleAssistant, Content: "hello", Metadata: map[string]any{"tool": "send_token"}})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
}

func TestSQLChatRepositoryAppendRollsBack(t *testing.T) {
	t.Parallel()

	failing := execOp(insertMessageSQL, mockResult{})
	failing.err = errors.New("disk full")
	db, driver := newMockDB(t, []mockOperation{
		beginOp(),
		execOp(upsertConversationSQL, mockResult{rowsAffected: 1}),
		failing,
		rollbackOp(),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	_, err := repo.AppendMessage(context.Background(), testWallet, Message{Role: RoleUser, Content: "hello"})
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestSQLChatRepositoryConversation(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		queryOp(selectConversationSQL, mockRowsData{
			columns: []string{"summary", "message_count", "created_at", "updated_at"},
			values:  [][]driver.Value{{"ETH yield pools", int64(2), int64(1714564800000), int64(1714564860000)}},
		}),
		queryOp(selectMessagesSQL, mockRowsData{
			columns: []string{"role", "content", "metadata", "created_at"},
			values: [][]driver.Value{
				{"user", "show me yields", nil, int64(1714564800000)},
				{"assistant", "Top pools...", `{"tool":"get_yield_pools"}`, int64(1714564860000)},
			},
		}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	conv, err := repo.Conversation(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("conversation failed: %v", err)
	}
	if conv.Summary != "ETH yield pools" || len(conv.Messages) != 2 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if conv.Messages[1].Metadata["tool"] != "get_yield_pools" {
		t.Fatalf("metadata not decoded: %+v", conv.Messages[1])
	}
	if conv.Messages[0].Metadata != nil {
		t.Fatalf("expected nil metadata for NULL column")
	}
}

func TestSQLChatRepositoryConversationMissing(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		queryOp(selectConversationSQL, mockRowsData{columns: []string{"summary", "message_count", "created_at", "updated_at"}}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	conv, err := repo.Conversation(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("conversation failed: %v", err)
	}
	if conv.Summary != DefaultSummary || len(conv.Messages) != 0 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestSQLChatRepositoryRecentMessagesChronological(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		queryOp(selectRecentSQL, mockRowsData{
			columns: []string{"role", "content", "metadata", "created_at"},
			values: [][]driver.Value{
				{"assistant", "second", nil, int64(20)},
				{"user", "first", nil, int64(10)},
			},
		}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	msgs, err := repo.RecentMessages(context.Background(), testWallet, 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "first" {
		t.Fatalf("expected chronological order: %+v", msgs)
	}
}

func TestSQLChatRepositoryUpdateSummary(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(upsertSummarySQL, mockResult{rowsAffected: 2}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &SQLChatRepository{db: db}
	if err := repo.UpdateSummary(context.Background(), testWallet, "Swap planning"); err != nil {
		t.Fatalf("update summary failed: %v", err)
	}
}

func TestRunMigrations(t *testing.T) {
	t.Parallel()

	statements := readMigrationStatements()
	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
	}
	for _, stmt := range statements {
		ops = append(ops, execOp(stmt, mockResult{}))
	}
	ops = append(ops,
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
		commitOp(),
	)
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}, values: [][]driver.Value{{"0001"}}}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestSplitSQLStatementsDropsComments(t *testing.T) {
	got := splitSQLStatements("-- header\nCREATE TABLE a (id INT);\n\n-- next\nCREATE TABLE b (id INT);\n")
	if len(got) != 2 || !strings.HasPrefix(got[1], "CREATE TABLE b") {
		t.Fatalf("unexpected statements: %q", got)
	}
}

func readMigrationStatements() []string {
	content, err := embeddedMigrations.ReadFile("0001_create_chat_history.sql")
	if err != nil {
		panic(fmt.Sprintf("failed to read migration: %v", err))
	}
	statements := splitSQLStatements(string(content))
	if len(statements) == 0 {
		panic("no statements in migration")
	}
	return statements
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(name string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	op, err := c.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.ExecContext(context.Background(), query, named(args))
}

func (c *mockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.QueryContext(context.Background(), query, named(args))
}

func (c *mockConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(ctx context.Context) error { return nil }

func (c *mockConn) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&c.driver.idx))
	if idx >= len(c.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &c.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&c.driver.idx, 1)
	if op.query != "" {
		expectedSQL := normalizeSQL(op.query)
		actualSQL := normalizeSQL(query)
		if expectedSQL != actualSQL {
			return nil, fmt.Errorf("unexpected query. want %q got %q", expectedSQL, actualSQL)
		}
	}
	return op, nil
}

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.next(opCommit)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.next(opRollback)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) next(expected operationType) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&t.driver.idx))
	if idx >= len(t.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &t.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&t.driver.idx, 1)
	return op, nil
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func named(args []driver.Value) []driver.NamedValue {
	namedArgs := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		namedArgs[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return namedArgs
}

func normalizeSQL(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}

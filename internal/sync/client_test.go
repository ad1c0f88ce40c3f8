package sync

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"tablesync/internal/connection"
	"tablesync/internal/db"
)

const peopleDDL = "CREATE TABLE people (id INTEGER, name VARCHAR(50), note TEXT)"

func TestClient_MaskingEndToEnd(t *testing.T) {
	seed := "INSERT INTO people (id, name, note) VALUES (1, 'Alice', 'secret')"
	src := openSQLite(t, "src.db", peopleDDL, seed)
	dst := openSQLite(t, "dst.db", peopleDDL, seed)
	mask := map[string]string{"note": "REDACTED"}

	source := newInitializedClient(t, connection.EndpointConfig{Table: "people", Role: connection.RoleSource, Mask: mask}, newConn(t, src), nil)
	defer source.Close(context.Background())
	destination := newInitializedClient(t, connection.EndpointConfig{Table: "people", Role: connection.RoleDestination, Mask: mask}, newConn(t, dst), newConn(t, dst))
	defer destination.Close(context.Background())

	if !reflect.DeepEqual(source.ColumnNames(), destination.ColumnNames()) {
		t.Fatalf("两端输出列应一致：%v vs %v", source.ColumnNames(), destination.ColumnNames())
	}

	got := fetchAll(t, source)
	want := [][]interface{}{{int64(1), "Alice", "REDACTED"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("源端读取结果不符合预期：%v", got)
	}

	got = fetchAll(t, destination)
	want = [][]interface{}{{int64(1), "Alice", "secret"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("目标端读取结果不符合预期：%v", got)
	}
}

func TestClient_FetchOrderAndEndOfData(t *testing.T) {
	src := openSQLite(t, "src.db", peopleDDL,
		"INSERT INTO people VALUES (3, 'c', NULL)",
		"INSERT INTO people VALUES (NULL, 'n', NULL)",
		"INSERT INTO people VALUES (1, 'a', 'x')",
		"INSERT INTO people VALUES (2, 'b', 'y')",
	)
	c := newInitializedClient(t, connection.EndpointConfig{
		Table:      "people",
		Role:       connection.RoleSource,
		Where:      "name <> ?",
		WhereArgs:  []interface{}{"b"},
		UniqueKeys: [][]string{{"id"}},
	}, newConn(t, src), nil)
	defer c.Close(context.Background())

	rows := fetchAll(t, c)
	var ids []interface{}
	for _, r := range rows {
		ids = append(ids, r[0])
	}
	if !reflect.DeepEqual(ids, []interface{}{int64(1), int64(3), nil}) {
		t.Fatalf("读取顺序不符合预期（NULL 应排在最后）：%v", ids)
	}

	if _, err := c.FetchRow(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("读取结束后应持续返回 io.EOF，实际=%v", err)
	}
	if c.LastErr() != nil {
		t.Fatalf("正常结束不应记录错误：%v", c.LastErr())
	}

	n, err := c.RowCount(context.Background(), ReadConn)
	if err != nil || n != 3 {
		t.Fatalf("行数统计应遵循过滤条件：n=%d err=%v", n, err)
	}
}

func TestClient_FetchErrorIsNotEndOfData(t *testing.T) {
	src := openSQLite(t, "src.db", peopleDDL)
	conn := newConn(t, src)
	c := newInitializedClient(t, connection.EndpointConfig{Table: "people"}, conn, nil)

	if _, err := src.DB().Exec("DROP TABLE people"); err != nil {
		t.Fatalf("删表失败：%v", err)
	}
	_, err := c.FetchRow(context.Background())
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("读取失败应与读取结束区分，实际=%v", err)
	}
	if !errors.Is(err, ErrFetch) || !errors.Is(c.LastErr(), ErrFetch) {
		t.Fatalf("读取失败应返回并记录 ErrFetch：%v", err)
	}
	_ = c.Close(context.Background())
}

func TestClient_InitFailures(t *testing.T) {
	src := openSQLite(t, "src.db", peopleDDL)

	c := NewClient(connection.EndpointConfig{Table: "missing"}, newConn(t, src), nil)
	if err := c.Init(context.Background()); !errors.Is(err, ErrSchemaProbe) {
		t.Fatalf("不存在的表应返回 ErrSchemaProbe，实际=%v", err)
	}

	c = NewClient(connection.EndpointConfig{Table: "people", Role: connection.RoleDestination, UniqueKeys: [][]string{{"id"}, {"nope"}}}, newConn(t, src), nil)
	if err := c.Init(context.Background()); !errors.Is(err, ErrInvalidKeyColumn) {
		t.Fatalf("无效唯一键应返回 ErrInvalidKeyColumn，实际=%v", err)
	}
	if !errors.Is(c.LastErr(), ErrInvalidKeyColumn) {
		t.Fatalf("错误应被记录：%v", c.LastErr())
	}

	c = NewClient(connection.EndpointConfig{Table: "people"}, newConn(t, src), nil)
	if _, err := c.FetchRow(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("未初始化时读取应返回 ErrNotInitialized，实际=%v", err)
	}
}

func TestClient_SourceRejectsWrites(t *testing.T) {
	src := openSQLite(t, "src.db", peopleDDL)
	c := newInitializedClient(t, connection.EndpointConfig{Table: "people", Role: connection.RoleSource}, newConn(t, src), nil)
	defer c.Close(context.Background())

	if err := c.InsertRow(context.Background(), 1, "a", "b"); !errors.Is(err, ErrWrite) {
		t.Fatalf("源端写入应返回 ErrWrite，实际=%v", err)
	}
	if err := c.RollBack(context.Background()); err != nil {
		t.Fatalf("源端回滚应为空操作：%v", err)
	}
	for _, q := range c.Queries() {
		if q.Kind != QuerySelect {
			t.Fatalf("源端只应构建查询语句：%v", q.Kind)
		}
	}
}

func TestClient_InsertAndNullSafeDelete(t *testing.T) {
	ctx := context.Background()
	dst := openSQLite(t, "dst.db", peopleDDL)
	conn := newConn(t, dst)
	c := newInitializedClient(t, connection.EndpointConfig{Table: "people", Role: connection.RoleDestination}, conn, conn)

	for _, row := range [][]interface{}{{1, "a", nil}, {1, "a", "x"}, {2, "b", nil}} {
		if err := c.InsertRow(ctx, row...); err != nil {
			t.Fatalf("插入失败：%v", err)
		}
	}
	if c.Inserts() != 3 || c.Pending() != 3 {
		t.Fatalf("计数不符合预期：inserts=%d pending=%d", c.Inserts(), c.Pending())
	}
	if n := countRows(t, dst, "SELECT COUNT(*) FROM people"); n != 0 {
		t.Fatalf("提交前其他连接不应看到数据，实际=%d", n)
	}

	n, err := c.DeleteRow(ctx, 1, "a", nil)
	if err != nil || n != 1 {
		t.Fatalf("NULL 安全删除应只删除一行：n=%d err=%v", n, err)
	}
	n, err = c.DeleteRow(ctx, 9, "z", "q")
	if err != nil || n != 0 {
		t.Fatalf("未匹配的删除应返回 0 且无错误：n=%d err=%v", n, err)
	}
	if c.Deletes() != 2 || c.Pending() != 5 {
		t.Fatalf("删除计数不符合预期：deletes=%d pending=%d", c.Deletes(), c.Pending())
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("关闭失败：%v", err)
	}
	if conn.commits != 1 {
		t.Fatalf("关闭时应提交一次，实际=%d", conn.commits)
	}
	if n := countRows(t, dst, "SELECT COUNT(*) FROM people WHERE id = 1 AND note = 'x'"); n != 1 {
		t.Fatalf("note 不为 NULL 的行不应被删除")
	}
	if n := countRows(t, dst, "SELECT COUNT(*) FROM people"); n != 2 {
		t.Fatalf("提交后期望 2 行，实际=%d", n)
	}
	if got := conn.autoCommits; !reflect.DeepEqual(got, []bool{false, true}) {
		t.Fatalf("应先关闭再恢复自动提交：%v", got)
	}
}

func TestClient_DistinctDeleteRemovesOneDuplicate(t *testing.T) {
	ctx := context.Background()
	dst := openSQLite(t, "dst.db", peopleDDL,
		"INSERT INTO people VALUES (1, 'a', 'x')",
		"INSERT INTO people VALUES (1, 'a', 'x')",
	)
	conn := newConn(t, dst)
	c := newInitializedClient(t, connection.EndpointConfig{Table: "people", Role: connection.RoleDestination, Distinct: true}, conn, conn)

	n, err := c.DeleteRow(ctx, 1, "a", "x")
	if err != nil || n != 1 {
		t.Fatalf("去重模式下删除应只影响一行：n=%d err=%v", n, err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("关闭失败：%v", err)
	}
	if n := countRows(t, dst, "SELECT COUNT(*) FROM people"); n != 1 {
		t.Fatalf("期望剩余 1 行，实际=%d", n)
	}
}

func TestClient_DeleteByUniqueKeysAggregates(t *testing.T) {
	ctx := context.Background()
	dst := openSQLite(t, "dst.db", "CREATE TABLE t (a INTEGER, b INTEGER, c TEXT)",
		"INSERT INTO t VALUES (1, 10, 'x')",
		"INSERT INTO t VALUES (1, 11, 'y')",
		"INSERT INTO t VALUES (2, 20, 'z')",
		"INSERT INTO t VALUES (3, 30, 'w')",
	)
	conn := newConn(t, dst)
	c := newInitializedClient(t, connection.EndpointConfig{
		Table:      "t",
		Role:       connection.RoleDestination,
		UniqueKeys: [][]string{{"a"}, {"b"}},
	}, conn, conn)

	n, err := c.DeleteByUniqueKeys(ctx, 1, 20, "q")
	if err != nil {
		t.Fatalf("按唯一键删除失败：%v", err)
	}
	if n != 3 {
		t.Fatalf("期望删除 3 行，实际=%d", n)
	}
	if c.Pending() != 1 || c.Deletes() != 1 {
		t.Fatalf("按唯一键删除只应计一次：pending=%d deletes=%d", c.Pending(), c.Deletes())
	}

	n, err = c.DeleteByUniqueKeys(ctx, 8, 80, "none")
	if err != nil || n != 0 {
		t.Fatalf("未匹配时应返回 0：n=%d err=%v", n, err)
	}
	if c.Pending() != 1 {
		t.Fatalf("未删除任何行时 pending 不应增加：%d", c.Pending())
	}

	var uniq int
	for _, q := range c.Queries() {
		if q.Kind == QueryUniqueDelete {
			uniq++
		}
	}
	if uniq != 2 {
		t.Fatalf("期望 2 条唯一键删除语句，实际=%d", uniq)
	}
	_ = c.Close(ctx)
}

func TestClient_SharedSessionCursorSurvivesCommit(t *testing.T) {
	ctx := context.Background()
	dst := openSQLite(t, "dst.db", peopleDDL,
		"INSERT INTO people VALUES (1, 'a', 'x')",
		"INSERT INTO people VALUES (2, 'b', 'y')",
		"INSERT INTO people VALUES (3, 'c', 'z')")
	conn := newConn(t, dst)
	c := newInitializedClient(t, connection.EndpointConfig{Table: "people", Role: connection.RoleDestination, CommitEvery: 1}, conn, conn)
	defer c.Close(ctx)

	if err := c.InsertRow(ctx, 4, "d", nil); err != nil {
		t.Fatalf("插入失败：%v", err)
	}
	first, err := c.FetchRow(ctx)
	if err != nil {
		t.Fatalf("首次读取失败：%v", err)
	}
	if first[0] != int64(1) {
		t.Fatalf("首行应为 id=1：%v", first)
	}

	if err := c.InsertRow(ctx, 5, "e", nil); err != nil {
		t.Fatalf("插入失败：%v", err)
	}
	if err := c.CheckPending(ctx); err != nil {
		t.Fatalf("CheckPending 失败：%v", err)
	}
	if conn.commits != 1 {
		t.Fatalf("两次插入后应提交一次：%d", conn.commits)
	}

	second, err := c.FetchRow(ctx)
	if err != nil {
		t.Fatalf("提交后游标应继续可用：%v", err)
	}
	if second[0] != int64(2) {
		t.Fatalf("第二行应为 id=2：%v", second)
	}
}

func TestClient_InitPrepareFailure(t *testing.T) {
	dst := openSQLite(t, "dst.db", peopleDDL)
	conn := newConn(t, dst)
	conn.failPrepare = "DELETE"

	c := NewClient(connection.EndpointConfig{Table: "people", Role: connection.RoleDestination, UniqueKeys: [][]string{{"id"}}}, conn, conn)
	err := c.Init(context.Background())
	if !errors.Is(err, ErrStatementPrepare) {
		t.Fatalf("预编译失败应返回 ErrStatementPrepare，实际=%v", err)
	}
	if !errors.Is(c.LastErr(), ErrStatementPrepare) {
		t.Fatalf("错误应被记录：%v", c.LastErr())
	}
	if len(conn.autoCommits) != 0 {
		t.Fatalf("初始化失败时不应切换自动提交：%v", conn.autoCommits)
	}
	if _, err := c.FetchRow(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("初始化失败后读取应返回 ErrNotInitialized，实际=%v", err)
	}
	if err := c.InsertRow(context.Background(), 1, "a", nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("初始化失败后写入应返回 ErrNotInitialized，实际=%v", err)
	}
	if conn.execs != 0 {
		t.Fatalf("不应执行任何写语句：%d", conn.execs)
	}
}

func TestClient_InitUnsupportedColumnType(t *testing.T) {
	src := openSQLite(t, "src.db", "CREATE TABLE shapes (id INTEGER, area GEOMETRY)")
	conn := newConn(t, src)
	conn.dialect = &db.PostgresDialect{}

	c := NewClient(connection.EndpointConfig{Table: "shapes"}, conn, nil)
	err := c.Init(context.Background())
	if !errors.Is(err, ErrUnsupportedColumnType) {
		t.Fatalf("无法识别的列类型应返回 ErrUnsupportedColumnType，实际=%v", err)
	}
	if !errors.Is(err, db.ErrUnsupportedType) {
		t.Fatalf("错误链应包含方言的类型错误：%v", err)
	}

	c = NewClient(connection.EndpointConfig{Table: "shapes", Exclude: []string{"area"}}, conn, nil)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("排除无法识别的列后应能初始化：%v", err)
	}
	_ = c.Close(context.Background())
}

// Package testutil provides a normalized stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StubConn records normalized statements for the postgres store during tests.
// It understands just enough SQL for the state and state_quarantine tables:
// inserts with ON CONFLICT DO NOTHING, version-guarded updates, deletes and
// column selects. Writes inside a transaction are undone on rollback.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Tables     map[string][]map[string]any
	Keys       map[string][]string
	FailExec   bool
	FailPing   bool
	FailBegin  bool
	RowsErr    error
	FailTables map[string]bool
	FailCommit bool

	saved map[string][]map[string]any
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{
		Tables: make(map[string][]map[string]any),
		Keys: map[string][]string{
			"state":            {"bucket"},
			"state_quarantine": {"bucket", "version"},
		},
	}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

// Rows returns a copy of the rows currently stored for table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneRows(c.Tables[table])
}

// Put stores or replaces a state row, bypassing the SQL surface.
func (c *StubConn) Put(bucket string, payload []byte, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := map[string]any{"bucket": bucket, "payload": payload, "version": version}
	for i, existing := range c.Tables["state"] {
		if existing["bucket"] == bucket {
			c.Tables["state"][i] = row
			return
		}
	}
	c.Tables["state"] = append(c.Tables["state"], row)
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	c.saved = make(map[string][]map[string]any, len(c.Tables))
	for table, rows := range c.Tables {
		c.saved[table] = cloneRows(rows)
	}
	c.mu.Unlock()
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	query = normalize(query)
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	up := strings.ToUpper(query)
	switch {
	case strings.HasPrefix(up, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(up, "INSERT INTO"):
		return c.insert(query, args)
	case strings.HasPrefix(up, "UPDATE "):
		return c.update(query, args)
	case strings.HasPrefix(up, "DELETE FROM"):
		table, col, err := parseDelete(query)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("missing args for delete %s", table)
		}
		target := args[0].Value
		var filtered []map[string]any
		var n int64
		for _, row := range c.Tables[table] {
			if equalValue(row[col], target) {
				n++
				continue
			}
			filtered = append(filtered, row)
		}
		c.Tables[table] = filtered
		return driver.RowsAffected(n), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, values, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(values) {
		return nil, fmt.Errorf("column/value mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		v, err := resolve(values[i], args)
		if err != nil {
			return nil, err
		}
		row[col] = v
	}
	if idx := c.find(table, row); idx >= 0 {
		if strings.Contains(strings.ToUpper(query), "DO NOTHING") {
			return driver.RowsAffected(0), nil
		}
		return nil, fmt.Errorf("duplicate key in %s", table)
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// update supports `UPDATE t SET a = $1, b = b + 1 WHERE k = $2 AND v = $3`.
func (c *StubConn) update(query string, args []driver.NamedValue) (driver.Result, error) {
	lower := strings.ToLower(query)
	setIdx := strings.Index(lower, " set ")
	whereIdx := strings.Index(lower, " where ")
	if setIdx == -1 || whereIdx == -1 || whereIdx < setIdx {
		return nil, fmt.Errorf("cannot parse update: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(query[len("update "):setIdx]))
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	preds := make(map[string]any)
	for _, clause := range splitAnd(query[whereIdx+len(" where "):]) {
		col, expr, ok := strings.Cut(clause, "=")
		if !ok {
			return nil, fmt.Errorf("cannot parse predicate: %s", clause)
		}
		v, err := resolve(strings.TrimSpace(expr), args)
		if err != nil {
			return nil, err
		}
		preds[strings.ToLower(strings.TrimSpace(col))] = v
	}
	var n int64
	for _, row := range c.Tables[table] {
		if !matches(row, preds) {
			continue
		}
		for _, assign := range strings.Split(query[setIdx+len(" set "):whereIdx], ",") {
			col, expr, ok := strings.Cut(assign, "=")
			if !ok {
				return nil, fmt.Errorf("cannot parse assignment: %s", assign)
			}
			col = strings.ToLower(strings.TrimSpace(col))
			expr = strings.TrimSpace(expr)
			if strings.HasSuffix(expr, "+ 1") {
				current, _ := toInt(row[col])
				row[col] = current + 1
				continue
			}
			v, err := resolve(expr, args)
			if err != nil {
				return nil, err
			}
			row[col] = v
		}
		n++
	}
	return driver.RowsAffected(n), nil
}

func (c *StubConn) find(table string, row map[string]any) int {
	keys := c.Keys[table]
	if len(keys) == 0 {
		return -1
	}
	for i, existing := range c.Tables[table] {
		same := true
		for _, k := range keys {
			if !equalValue(existing[k], row[k]) {
				same = false
				break
			}
		}
		if same {
			return i
		}
	}
	return -1
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	table, cols, err := parseSelect(normalize(query))
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	tableRows := c.Tables[table]
	values := make([][]driver.Value, 0, len(tableRows))
	for _, row := range tableRows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{
		cols: cols,
		rows: values,
		err:  c.RowsErr,
	}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		t.conn.Tables = t.conn.saved
		t.conn.saved = nil
		return fmt.Errorf("commit fail")
	}
	t.conn.saved = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.saved != nil {
		t.conn.Tables = t.conn.saved
		t.conn.saved = nil
	}
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func parseInsert(query string) (string, []string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	valuesIdx := strings.Index(up, "VALUES")
	if intoIdx == -1 || valuesIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	head := strings.TrimSpace(query[intoIdx+len("INTO ") : valuesIdx])
	open := strings.Index(head, "(")
	closeIdx := strings.LastIndex(head, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(head[:open]))
	cols := splitColumns(head[open+1 : closeIdx])

	tail := query[valuesIdx+len("VALUES"):]
	vOpen := strings.Index(tail, "(")
	vClose := strings.Index(tail, ")")
	if vOpen == -1 || vClose == -1 || vClose <= vOpen {
		return "", nil, nil, fmt.Errorf("cannot parse insert values: %s", query)
	}
	values := splitColumns(tail[vOpen+1 : vClose])
	return table, cols, values, nil
}

func parseDelete(query string) (string, string, error) {
	lower := strings.ToLower(query)
	prefix := "delete from "
	whereToken := " where "
	if !strings.HasPrefix(lower, prefix) {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	rest := strings.TrimSpace(query[len(prefix):])
	whereIdx := strings.Index(strings.ToLower(rest), whereToken)
	if whereIdx == -1 {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:whereIdx]))
	where := strings.TrimSpace(rest[whereIdx+len(whereToken):])
	parts := strings.SplitN(where, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("cannot parse delete predicate: %s", query)
	}
	col := strings.ToLower(strings.TrimSpace(parts[0]))
	return table, col, nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(query)
	selectPrefix := "select "
	fromToken := " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := query[len(selectPrefix):fromIdx]
	table := strings.TrimSpace(query[fromIdx+len(fromToken):])
	if table == "" {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	table = strings.Fields(table)[0]
	return strings.ToLower(table), splitColumns(cols), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}

func splitAnd(raw string) []string {
	var out []string
	rest := raw
	for {
		idx := strings.Index(strings.ToLower(rest), " and ")
		if idx == -1 {
			out = append(out, strings.TrimSpace(rest))
			return out
		}
		out = append(out, strings.TrimSpace(rest[:idx]))
		rest = rest[idx+len(" and "):]
	}
}

// resolve maps a VALUES/WHERE token to a bound argument or literal.
func resolve(token string, args []driver.NamedValue) (any, error) {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "$") {
		n, err := strconv.Atoi(token[1:])
		if err != nil || n < 1 || n > len(args) {
			return nil, fmt.Errorf("bad placeholder %s", token)
		}
		return copyValue(args[n-1].Value), nil
	}
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		return n, nil
	}
	return strings.Trim(token, "'"), nil
}

func matches(row map[string]any, preds map[string]any) bool {
	for col, want := range preds {
		if !equalValue(row[col], want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if ai, ok := toInt(a); ok {
		bi, ok := toInt(b)
		return ok && ai == bi
	}
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && string(ab) == string(bb)
	}
	return a == b
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func copyValue(v any) any {
	if b, ok := v.([]byte); ok {
		return append([]byte(nil), b...)
	}
	return v
}

func cloneRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return nil
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = copyValue(v)
		}
		out[i] = cp
	}
	return out
}

package dbpool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestExecuteSelect(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 2))

	rows, err := p.Execute(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	v, ok := rows[0].Get("1")
	if !ok || v != int64(1) {
		t.Errorf("Get(\"1\") = %v, %v; want 1, true", v, ok)
	}
	if got := p.IdleCount(); got != 1 {
		t.Errorf("IdleCount() = %d, want 1 after Execute", got)
	}
}

func TestExecuteBindsParameters(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	rows, err := p.Execute(context.Background(), "ECHO", []any{"198.51.100.7", 42})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	vals := rows[0].Values()
	if len(vals) != 2 || vals[0] != "198.51.100.7" || vals[1] != int64(42) {
		t.Errorf("Values() = %v, want [198.51.100.7 42]", vals)
	}
}

func TestExecutePreservesColumnOrder(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	rows, err := p.Execute(context.Background(), "ROWS", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	cols := rows[0].Columns()
	if len(cols) != 3 || cols[0] != "b" || cols[1] != "a" || cols[2] != "c" {
		t.Errorf("Columns() = %v, want [b a c]", cols)
	}

	// Text bytes become strings; binary stays bytes.
	if v, _ := rows[0].Get("a"); v != "alpha" {
		t.Errorf("row 0 a = %#v, want \"alpha\"", v)
	}
	if v, _ := rows[1].Get("a"); v == nil {
		t.Error("row 1 a = nil")
	} else if _, ok := v.([]byte); !ok {
		t.Errorf("row 1 a = %T, want []byte", v)
	}

	b, err := json.Marshal(rows[0])
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if want := `{"b":2,"a":"alpha","c":null}`; string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}

func TestExecuteNoResultSet(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	rows, err := p.Execute(context.Background(), "CREATE TABLE indicators (id INTEGER)", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if rows == nil {
		t.Fatal("Execute() returned nil rows, want empty")
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}

func TestExecuteQueryError(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	_, err := p.Execute(context.Background(), "FAIL", nil)
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("Execute() error = %v, want ErrQuery", err)
	}
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("Execute() error = %T, want *QueryError", err)
	}
	if qerr.Query != "FAIL" {
		t.Errorf("QueryError.Query = %q, want FAIL", qerr.Query)
	}
	if IsRetryable(err) {
		t.Error("IsRetryable(query error) = true")
	}

	// The handle went back to the pool before the error surfaced.
	if got := p.IdleCount(); got != 1 {
		t.Errorf("IdleCount() = %d, want 1", got)
	}
}

func TestExecuteQueryTimeout(t *testing.T) {
	p, srv := newTestPool(t, testConfig(1, 1))

	start := time.Now()
	_, err := p.Execute(context.Background(), "SLEEP 300", nil, WithQueryTimeout(50*time.Millisecond))
	if !errors.Is(err, ErrQueryTimeout) {
		t.Fatalf("Execute() error = %v, want ErrQueryTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Execute() returned after %s, want close to the 50ms timeout", elapsed)
	}

	// The worker still owns the handle until the driver returns.
	if got := p.IdleCount(); got != 0 {
		t.Errorf("IdleCount() = %d, want 0 while the statement runs", got)
	}
	waitFor(t, 2*time.Second, func() bool { return p.IdleCount() == 1 })

	stats := p.Stats()
	if stats.QueryTimeouts != 1 {
		t.Errorf("QueryTimeouts = %d, want 1", stats.QueryTimeouts)
	}
	if stats.InUse != 0 {
		t.Errorf("InUse = %d, want 0", stats.InUse)
	}
	if got := srv.queryCount(DefaultValidationQuery); got != 1 {
		t.Errorf("validation queries = %d, want 1", got)
	}

	if _, err := p.Execute(context.Background(), "SELECT 1", nil); err != nil {
		t.Errorf("Execute() after timeout error = %v", err)
	}
}

func TestExecuteAcquireTimeout(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	h, err := p.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer p.Release(h)

	_, err = p.Execute(context.Background(), "SELECT 1", nil, WithAcquireTimeout(30*time.Millisecond))
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Execute() error = %v, want ErrPoolExhausted", err)
	}
}

func TestExecuteWithHandle(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	h, err := p.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := p.Execute(context.Background(), "SELECT 1", nil, WithHandle(h)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if h.InUse() {
		t.Error("handle still in use after Execute")
	}

	// Released handles cannot be reused without a new Acquire.
	if _, err := p.Execute(context.Background(), "SELECT 1", nil, WithHandle(h)); !errors.Is(err, ErrHandleNotLeased) {
		t.Errorf("Execute() with released handle error = %v, want ErrHandleNotLeased", err)
	}
}

func TestExecAffected(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	n, err := p.ExecAffected(context.Background(), "UPDATE feeds SET enabled = 0", nil)
	if err != nil {
		t.Fatalf("ExecAffected() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ExecAffected() = %d, want 2", n)
	}

	if _, err := p.ExecAffected(context.Background(), "FAIL", nil); !errors.Is(err, ErrQuery) {
		t.Errorf("ExecAffected(FAIL) error = %v, want ErrQuery", err)
	}
}

func TestExecuteAfterClose(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))
	if err := p.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}

	if _, err := p.Execute(context.Background(), "SELECT 1", nil); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Execute() error = %v, want ErrPoolClosed", err)
	}
}

func TestHealthCheck(t *testing.T) {
	p, _ := newTestPool(t, testConfig(1, 1))

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	p.CloseAll() //nolint:errcheck // closing for test
	if err := p.HealthCheck(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("HealthCheck() after close error = %v, want ErrPoolClosed", err)
	}
}

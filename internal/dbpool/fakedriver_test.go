package dbpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDriverName is registered once for the package tests.
//
// Statements understood by fake connections:
//
//	SELECT 1      one row, column "1", value int64(1)
//	SLEEP <ms>    blocks for ms milliseconds ignoring the context, like a
//	              blocking driver, then returns column "slept"
//	FAIL          returns a syntax error
//	BREAK         marks the connection broken; every later statement fails
//	ROWS          two rows with columns b, a, c (in that order)
//	ECHO          one row echoing the arguments as p0..pn
//	anything else succeeds with no result set
const fakeDriverName = "dbpoolfake"

var (
	fakeServers sync.Map // dsn -> *fakeServer
	fakeSeq     atomic.Int64
)

func init() {
	sql.Register(fakeDriverName, fakeDriver{})
}

// fakeServer stands in for one database server and tracks connections to it.
type fakeServer struct {
	mu        sync.Mutex
	open      int
	maxOpen   int
	opened    int
	closed    int
	failOpens int // fail this many upcoming opens; -1 fails all
	openDelay time.Duration
	queries   map[string]int
}

func (s *fakeServer) connect() (driver.Conn, error) {
	s.mu.Lock()
	delay := s.openDelay
	if s.failOpens != 0 {
		if s.failOpens > 0 {
			s.failOpens--
		}
		s.mu.Unlock()
		return nil, errors.New("fake: connection refused")
	}
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.open++
	s.opened++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	return &fakeConn{server: s}, nil
}

func (s *fakeServer) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open--
	s.closed++
}

func (s *fakeServer) record(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queries == nil {
		s.queries = make(map[string]int)
	}
	s.queries[query]++
}

func (s *fakeServer) setFailOpens(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOpens = n
}

func (s *fakeServer) setOpenDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openDelay = d
}

func (s *fakeServer) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeServer) maxOpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpen
}

func (s *fakeServer) openedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *fakeServer) queryCount(query string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[query]
}

type fakeDriver struct{}

func (fakeDriver) Open(dsn string) (driver.Conn, error) {
	v, ok := fakeServers.Load(dsn)
	if !ok {
		return nil, fmt.Errorf("fake: unknown server %q", dsn)
	}
	return v.(*fakeServer).connect() //nolint:forcetypeassert // map only holds *fakeServer
}

type fakeConn struct {
	server *fakeServer
	broken atomic.Bool
	closed atomic.Bool
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fake: prepare not supported")
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("fake: transactions not supported")
}

func (c *fakeConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.server.disconnect()
	}
	return nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.server.record(query)
	if c.broken.Load() {
		return nil, errors.New("fake: connection broken")
	}

	switch {
	case query == "SELECT 1":
		return &fakeRows{cols: []string{"1"}, rows: [][]driver.Value{{int64(1)}}}, nil
	case strings.HasPrefix(query, "SLEEP "):
		ms, err := strconv.Atoi(strings.TrimPrefix(query, "SLEEP "))
		if err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return &fakeRows{cols: []string{"slept"}, rows: [][]driver.Value{{int64(ms)}}}, nil
	case query == "FAIL":
		return nil, errors.New("fake: syntax error")
	case query == "BREAK":
		c.broken.Store(true)
		return &fakeRows{}, nil
	case query == "ROWS":
		return &fakeRows{
			cols: []string{"b", "a", "c"},
			rows: [][]driver.Value{
				{int64(2), []byte("alpha"), nil},
				{int64(3), []byte{0xff, 0xfe}, "gamma"},
			},
		}, nil
	case query == "ECHO":
		cols := make([]string, len(args))
		row := make([]driver.Value, len(args))
		for i, a := range args {
			cols[i] = "p" + strconv.Itoa(i)
			row[i] = a.Value
		}
		return &fakeRows{cols: cols, rows: [][]driver.Value{row}}, nil
	default:
		return &fakeRows{}, nil
	}
}

func (c *fakeConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.server.record(query)
	if c.broken.Load() {
		return nil, errors.New("fake: connection broken")
	}
	if query == "FAIL" {
		return nil, errors.New("fake: syntax error")
	}
	return driver.RowsAffected(2), nil
}

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

// newFakeFactory registers a fresh server and returns a factory opening
// connections to it through database/sql.
func newFakeFactory(t *testing.T) (*fakeServer, Factory) {
	t.Helper()

	srv := &fakeServer{}
	dsn := fmt.Sprintf("%s#%d", t.Name(), fakeSeq.Add(1))
	fakeServers.Store(dsn, srv)

	db, err := sql.Open(fakeDriverName, dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxIdleConns(0)

	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
		fakeServers.Delete(dsn)
	})
	return srv, FactoryFunc(db.Conn)
}

// testConfig returns a small pool with short timeouts.
func testConfig(poolSize, maxPoolSize int) Config {
	return Config{
		PoolSize:        poolSize,
		MaxPoolSize:     maxPoolSize,
		AcquireTimeout:  2 * time.Second,
		QueryTimeout:    2 * time.Second,
		ConnectTimeout:  time.Second,
		ValidateTimeout: time.Second,
		CloseTimeout:    time.Second,
	}
}

// newTestPool builds a pool against a fresh fake server and closes it at
// test end.
func newTestPool(t *testing.T, cfg Config, opts ...Option) (*Pool, *fakeServer) {
	t.Helper()

	srv, factory := newFakeFactory(t)
	p, err := New(context.Background(), cfg, factory, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		p.CloseAll() //nolint:errcheck // Test cleanup
	})
	return p, srv
}

// waitFor polls cond until it holds or timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// recordingLogger keeps log messages and their levels for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) has(msg string) bool {
	return l.level(msg) != ""
}

// level returns the level msg was first logged at, or "" if never.
func (l *recordingLogger) level(msg string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e.level
		}
	}
	return ""
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

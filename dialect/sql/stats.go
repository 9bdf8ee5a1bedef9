package sql

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/aggrepo/dialect"
)

// QueryStats accumulates the counters of a StatsDriver. It is safe for
// concurrent use.
type QueryStats struct {
	queries atomic.Int64
	execs   atomic.Int64
	elapsed atomic.Int64 // nanoseconds
	slow    atomic.Int64
	errs    atomic.Int64

	batches    atomic.Int64
	rolledBack atomic.Int64

	mu  sync.Mutex
	ops map[string]int64 // committed batches per operation label
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	// TotalQueries and TotalExecs count statements returning rows and the
	// others.
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
	// Batches counts committed transactions, RolledBack the aborted ones.
	Batches    int64
	RolledBack int64
	// Operations counts committed batches per WithOperation label. Nil when
	// no labeled batch was committed.
	Operations map[string]int64
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	snap := StatsSnapshot{
		TotalQueries:  s.queries.Load(),
		TotalExecs:    s.execs.Load(),
		TotalDuration: time.Duration(s.elapsed.Load()),
		SlowQueries:   s.slow.Load(),
		Errors:        s.errs.Load(),
		Batches:       s.batches.Load(),
		RolledBack:    s.rolledBack.Load(),
	}
	s.mu.Lock()
	if len(s.ops) > 0 {
		snap.Operations = maps.Clone(s.ops)
	}
	s.mu.Unlock()
	return snap
}

// Reset zeroes every counter.
func (s *QueryStats) Reset() {
	for _, c := range []*atomic.Int64{&s.queries, &s.execs, &s.elapsed, &s.slow, &s.errs, &s.batches, &s.rolledBack} {
		c.Store(0)
	}
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}

func (s *QueryStats) statement(rows bool, took time.Duration, slow bool, err error) {
	if rows {
		s.queries.Add(1)
	} else {
		s.execs.Add(1)
	}
	s.elapsed.Add(int64(took))
	if slow {
		s.slow.Add(1)
	}
	if err != nil {
		s.errs.Add(1)
	}
}

func (s *QueryStats) batch(op string, committed bool) {
	if !committed {
		s.rolledBack.Add(1)
		return
	}
	s.batches.Add(1)
	if op == "" {
		return
	}
	s.mu.Lock()
	if s.ops == nil {
		s.ops = make(map[string]int64)
	}
	s.ops[op]++
	s.mu.Unlock()
}

// AvgQueryDuration returns the mean statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	n := s.TotalQueries + s.TotalExecs
	if n == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(n)
}

// String summarizes the snapshot on one line.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf("batches=%d rolled_back=%d queries=%d execs=%d avg=%s slow=%d errors=%d",
		s.Batches, s.RolledBack, s.TotalQueries, s.TotalExecs, s.AvgQueryDuration(), s.SlowQueries, s.Errors)
}

// SlowQueryHook is called for every statement slower than the threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver is a Driver recording statement and batch statistics. Batches
// run through it with Batch are counted once per transaction.
type StatsDriver struct {
	*Driver
	stats     *QueryStats
	threshold atomic.Int64 // nanoseconds
	hook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement counts as
// slow. The default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold.Store(int64(d))
	}
}

// WithSlowQueryHook registers a callback for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog logs slow statements at warn level to l, or to the
// default logger when l is nil. The operation label is included when set.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		logger := l
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "dialect/sql: slow statement",
			"operation", Operation(ctx), "duration", duration, "query", query, "args", len(args))
	})
}

// NewStatsDriver wraps drv:
//
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(logger))
//	users, err := repository.New[User](stats, agg)
//	...
//	fmt.Println(stats.QueryStats().Stats())
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &QueryStats{}}
	s.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the live counters.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// SlowThreshold returns the current slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	return time.Duration(d.threshold.Load())
}

// SetSlowThreshold changes the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.threshold.Store(int64(threshold))
}

// Query runs a query outside a transaction and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.measure(ctx, query, args, true, func() error {
		return d.Driver.Query(ctx, query, args, v)
	})
}

// Exec runs a statement outside a transaction and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.measure(ctx, query, args, false, func() error {
		return d.Driver.Exec(ctx, query, args, v)
	})
}

// Tx starts a transaction whose statements, commit and rollback are
// recorded under the operation label of ctx.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d, op: Operation(ctx)}, nil
}

// measure runs fn and records its duration and outcome.
func (d *StatsDriver) measure(ctx context.Context, query string, args any, rows bool, fn func() error) error {
	start := time.Now()
	err := fn()
	took := time.Since(start)
	slow := took > d.SlowThreshold()
	d.stats.statement(rows, took, slow, err)
	if slow && d.hook != nil {
		argv, _ := args.([]any)
		d.hook(ctx, query, argv, took)
	}
	return err
}

// StatsTx is a transaction of a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
	op     string
}

// Query runs a query in the transaction and records it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.measure(ctx, query, args, true, func() error {
		return tx.Tx.Query(ctx, query, args, v)
	})
}

// Exec runs a statement in the transaction and records it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.measure(ctx, query, args, false, func() error {
		return tx.Tx.Exec(ctx, query, args, v)
	})
}

// Commit commits the transaction and counts it as a batch of its operation.
// A failed commit is counted by the Rollback that follows it.
func (tx *StatsTx) Commit() error {
	err := tx.Tx.Commit()
	if err == nil {
		tx.driver.stats.batch(tx.op, true)
	}
	return err
}

// Rollback aborts the transaction and counts it as rolled back.
func (tx *StatsTx) Rollback() error {
	err := tx.Tx.Rollback()
	tx.driver.stats.batch(tx.op, false)
	return err
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
)

// OpenWithStats opens a Driver wrapped in a StatsDriver and returns its
// counters.
func OpenWithStats(driverName, source string, opts ...StatsOption) (*StatsDriver, *QueryStats, error) {
	drv, err := Open(driverName, source)
	if err != nil {
		return nil, nil, err
	}
	s := NewStatsDriver(drv, opts...)
	return s, s.stats, nil
}

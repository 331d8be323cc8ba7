// Package query runs guarded SQL against the bound connection.
package query

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koustreak/sqlscope/internal/connection"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/guard"
	"github.com/koustreak/sqlscope/internal/logger"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	Logger      *logger.Logger
	Connections *connection.Manager
	Guard       *guard.Guard
	Clock       clockwork.Clock
	Timeout     time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errs.New(errs.ErrKindInvalidInput, "logger is required")
	}
	if cfg.Connections == nil {
		return errs.New(errs.ErrKindInvalidInput, "connection manager is required")
	}
	if cfg.Guard == nil {
		return errs.New(errs.ErrKindInvalidInput, "guard is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return nil
}

// WriteOutcome is the result of a statement that returns no rows.
type WriteOutcome struct {
	RowsAffected int64
}

// Outcome is exactly one of a result set or a write outcome.
type Outcome struct {
	ResultSet *database.ResultSet
	Write     *WriteOutcome
	Elapsed   time.Duration
}

type Executor struct {
	log   *logger.Logger
	conns *connection.Manager
	guard *guard.Guard
	clock clockwork.Clock

	timeout time.Duration
}

func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		log:     cfg.Logger.Component("query"),
		conns:   cfg.Connections,
		guard:   cfg.Guard,
		clock:   cfg.Clock,
		timeout: cfg.Timeout,
	}, nil
}

// Classify exposes the guard decision without running anything.
func (e *Executor) Classify(sql string) guard.Classification {
	return e.guard.Classify(sql)
}

// Execute checks sql against the guard and runs it. Rejected statements
// never reach the data source.
func (e *Executor) Execute(ctx context.Context, sql string) (*Outcome, error) {
	c, err := e.guard.Check(sql)
	if err != nil {
		e.log.WarnWith("statement rejected", err, map[string]interface{}{"keyword": c.Keyword})
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if c.Kind == guard.KindWrite {
		return e.executeWrite(ctx, sql)
	}
	return e.executeRead(ctx, sql)
}

func (e *Executor) executeRead(ctx context.Context, sql string) (*Outcome, error) {
	var (
		rs      *database.ResultSet
		elapsed time.Duration
	)
	err := e.conns.WithConn(ctx, func(c *connection.Connection) error {
		start := e.clock.Now()
		rows, err := c.DB.Query(ctx, sql)
		if err != nil {
			return err
		}
		rs, err = database.ScanRows(rows)
		elapsed = e.clock.Since(start)
		return err
	})
	if err != nil {
		return nil, e.sourceError(ctx, err)
	}

	e.log.DebugWith("query executed", map[string]interface{}{
		"rows":       len(rs.Rows),
		"columns":    len(rs.Columns),
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return &Outcome{ResultSet: rs, Elapsed: elapsed}, nil
}

func (e *Executor) executeWrite(ctx context.Context, sql string) (*Outcome, error) {
	var (
		n       int64
		elapsed time.Duration
	)
	err := e.conns.WithWrite(ctx, func(c *connection.Connection) error {
		start := e.clock.Now()
		var err error
		n, err = c.DB.Exec(ctx, sql)
		elapsed = e.clock.Since(start)
		return err
	})
	if err != nil {
		return nil, e.sourceError(ctx, err)
	}

	e.log.InfoWith("write executed", map[string]interface{}{
		"rows_affected": n,
		"elapsed_ms":    elapsed.Milliseconds(),
	})
	return &Outcome{Write: &WriteOutcome{RowsAffected: n}, Elapsed: elapsed}, nil
}

// StreamSummary describes a completed Stream call.
type StreamSummary struct {
	Columns []string
	Rows    int
	Elapsed time.Duration
}

// Stream runs a read statement and hands each row to onRow as it is read,
// without materializing the result set. Statements that would not produce
// a result set fail with NotExportable before they are executed.
func (e *Executor) Stream(ctx context.Context, sql string, onColumns func([]string) error, onRow func(database.Row) error) (*StreamSummary, error) {
	c, err := e.guard.Check(sql)
	if err != nil {
		return nil, err
	}
	if c.Kind != guard.KindRead {
		return nil, errs.Newf(errs.ErrKindNotExportable, "%s statements do not produce a result set", c.Keyword)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	sum := &StreamSummary{}
	err = e.conns.WithConn(ctx, func(conn *connection.Connection) error {
		start := e.clock.Now()
		defer func() { sum.Elapsed = e.clock.Since(start) }()

		rows, err := conn.DB.Query(ctx, sql)
		if err != nil {
			return err
		}
		return database.EachRow(rows,
			func(cols []string) error {
				sum.Columns = cols
				if onColumns != nil {
					return onColumns(cols)
				}
				return nil
			},
			func(r database.Row) error {
				sum.Rows++
				return onRow(r)
			},
		)
	})
	if err != nil {
		return nil, e.sourceError(ctx, err)
	}
	return sum, nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// sourceError keeps typed errors as they are, reports an expired deadline
// as Timeout, and files anything else under SourceError.
func (e *Executor) sourceError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded && !errs.IsTimeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, "statement exceeded its time limit", err)
	}
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(errs.ErrKindSourceError, "statement failed", err)
}

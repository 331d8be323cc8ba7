// Package connection owns the single live data source connection.
//
// The Manager binds at most one database at a time. Readers share it under a
// read lock; connect and write statements take it exclusively. A separate scan
// barrier lets a statistics pass keep writes out for its whole duration while
// still releasing the connection lock between its individual queries.
package connection

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/logger"
)

// Opener opens the database file at path.
type Opener func(ctx context.Context, path string) (database.DB, error)

// Connection is the currently bound data source.
type Connection struct {
	DB         database.DB
	Path       string
	OpenedAt   time.Time
	Generation uint64

	revision atomic.Uint64
}

// Revision counts write statements executed on this connection.
func (c *Connection) Revision() uint64 {
	return c.revision.Load()
}

// Info describes a freshly bound connection.
type Info struct {
	Path       string
	Tables     []string
	OpenedAt   time.Time
	Generation uint64
}

type Config struct {
	Logger *logger.Logger
	Opener Opener
	Clock  clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errs.New(errs.ErrKindInvalidInput, "logger is required")
	}
	if cfg.Opener == nil {
		return errs.New(errs.ErrKindInvalidInput, "opener is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Manager struct {
	log   *logger.Logger
	open  Opener
	clock clockwork.Clock

	mu         sync.RWMutex
	conn       *Connection
	generation uint64

	scan sync.RWMutex
}

func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		log:   cfg.Logger.Component("connection"),
		open:  cfg.Opener,
		clock: cfg.Clock,
	}, nil
}

// Connect binds the database file at path, releasing any prior connection
// first. A path that does not exist fails with NotFound and leaves the
// current connection untouched; an open failure leaves no connection bound.
func (m *Manager) Connect(ctx context.Context, path string) (*Info, error) {
	if path == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "database path must not be empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid database path", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Newf(errs.ErrKindNotFound, "database file not found: %s", abs)
		}
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "cannot access database file", err)
	}
	if st.IsDir() {
		return nil, errs.Newf(errs.ErrKindNotFound, "database path is a directory: %s", abs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()

	db, err := m.open(ctx, abs)
	if err != nil {
		m.log.ErrorWith("failed to open database", err, map[string]interface{}{"path": abs})
		if errs.KindOf(err) == errs.ErrKindUnknown {
			return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open database", err)
		}
		return nil, err
	}

	tables, err := db.ListTables(ctx)
	if err != nil {
		_ = db.Close()
		m.log.ErrorWith("failed to list tables", err, map[string]interface{}{"path": abs})
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to read table catalog", err)
	}

	m.generation++
	m.conn = &Connection{
		DB:         db,
		Path:       abs,
		OpenedAt:   m.clock.Now(),
		Generation: m.generation,
	}

	m.log.InfoWith("database connected", map[string]interface{}{
		"path":       abs,
		"tables":     len(tables),
		"generation": m.generation,
	})

	return &Info{
		Path:       abs,
		Tables:     tables,
		OpenedAt:   m.conn.OpenedAt,
		Generation: m.generation,
	}, nil
}

// releaseLocked closes the bound connection. m.mu must be held for writing.
func (m *Manager) releaseLocked() {
	if m.conn == nil {
		return
	}
	if err := m.conn.DB.Close(); err != nil {
		m.log.WarnWith("failed to close previous connection", err, map[string]interface{}{"path": m.conn.Path})
	}
	m.log.InfoWith("database released", map[string]interface{}{"path": m.conn.Path})
	m.conn = nil
}

// Current returns the bound connection, if any.
func (m *Manager) Current() (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn, m.conn != nil
}

// WithConn runs fn with the bound connection under the shared lock.
func (m *Manager) WithConn(ctx context.Context, fn func(*Connection) error) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "context done before acquiring connection", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.conn == nil {
		return errNoConnection()
	}
	return fn(m.conn)
}

// WithWrite runs fn under the exclusive lock once no statistics pass is
// running, and counts the write against the connection's revision.
func (m *Manager) WithWrite(ctx context.Context, fn func(*Connection) error) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "context done before acquiring connection", err)
	}

	m.scan.Lock()
	defer m.scan.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return errNoConnection()
	}
	defer m.conn.revision.Add(1)
	return fn(m.conn)
}

// BeginScan marks the start of a statistics pass. Writes wait until the
// returned release func is called. Passes do not exclude each other.
func (m *Manager) BeginScan() (release func()) {
	m.scan.RLock()
	var once sync.Once
	return func() { once.Do(m.scan.RUnlock) }
}

// Close releases the bound connection, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func errNoConnection() error {
	return errs.New(errs.ErrKindNoConnection, "no database connected; call connect_db first")
}

package connection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/database/dbtest"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/fixture"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func stubOpener(stubs map[string]*dbtest.Stub) Opener {
	return func(_ context.Context, path string) (database.DB, error) {
		s, ok := stubs[filepath.Base(path)]
		if !ok {
			return nil, errs.New(errs.ErrKindConnectionFailed, "file is not a database")
		}
		return s, nil
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Opener: stubOpener(nil)}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("missing opener", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: logger.Nop()}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opener is required")
	})

	t.Run("defaults clock", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: logger.Nop(), Opener: stubOpener(nil)}
		require.NoError(t, cfg.Validate())
		assert.NotNil(t, cfg.Clock)
	})
}

func TestManager_NoConnection(t *testing.T) {
	t.Parallel()

	m, err := NewManager(Config{Logger: logger.Nop(), Opener: stubOpener(nil)})
	require.NoError(t, err)

	_, ok := m.Current()
	assert.False(t, ok)

	called := false
	err = m.WithConn(context.Background(), func(*Connection) error {
		called = true
		return nil
	})
	assert.True(t, errs.IsNoConnection(err))
	assert.False(t, called)

	err = m.WithWrite(context.Background(), func(*Connection) error { return nil })
	assert.True(t, errs.IsNoConnection(err))
}

func TestManager_ConnectAndReconnect(t *testing.T) {
	t.Parallel()

	first := &dbtest.Stub{Tables: []string{"a", "b"}}
	second := &dbtest.Stub{Tables: []string{"c"}}
	firstPath := touch(t, "first.db")
	secondPath := touch(t, "second.db")

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	m, err := NewManager(Config{
		Logger: logger.Nop(),
		Opener: stubOpener(map[string]*dbtest.Stub{"first.db": first, "second.db": second}),
		Clock:  clock,
	})
	require.NoError(t, err)

	info, err := m.Connect(context.Background(), firstPath)
	require.NoError(t, err)
	assert.Equal(t, firstPath, info.Path)
	assert.Equal(t, []string{"a", "b"}, info.Tables)
	assert.Equal(t, uint64(1), info.Generation)
	assert.Equal(t, clock.Now(), info.OpenedAt)

	info, err = m.Connect(context.Background(), secondPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Generation)
	assert.True(t, first.Closed(), "prior connection must be released")
	assert.False(t, second.Closed())

	conn, ok := m.Current()
	require.True(t, ok)
	assert.Same(t, second, conn.DB)

	m.Close()
	assert.True(t, second.Closed())
	_, ok = m.Current()
	assert.False(t, ok)
}

func TestManager_ConnectMissingPathKeepsCurrent(t *testing.T) {
	t.Parallel()

	stub := &dbtest.Stub{}
	path := touch(t, "live.db")
	m, err := NewManager(Config{Logger: logger.Nop(), Opener: stubOpener(map[string]*dbtest.Stub{"live.db": stub})})
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), path)
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	assert.True(t, errs.IsNotFound(err))
	assert.False(t, stub.Closed())

	_, err = m.Connect(context.Background(), t.TempDir())
	assert.True(t, errs.IsNotFound(err), "directories are not database files")

	_, ok := m.Current()
	assert.True(t, ok)
}

func TestManager_ConnectOpenFailureLeavesNothingBound(t *testing.T) {
	t.Parallel()

	stub := &dbtest.Stub{}
	good := touch(t, "good.db")
	bad := touch(t, "bad.db")
	m, err := NewManager(Config{Logger: logger.Nop(), Opener: stubOpener(map[string]*dbtest.Stub{"good.db": stub})})
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), good)
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), bad)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.True(t, stub.Closed())

	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_ConnectUnknownErrorBecomesConnectionFailure(t *testing.T) {
	t.Parallel()

	path := touch(t, "x.db")
	m, err := NewManager(Config{
		Logger: logger.Nop(),
		Opener: func(context.Context, string) (database.DB, error) { return nil, errors.New("boom") },
	})
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), path)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestManager_WriteWaitsForScan(t *testing.T) {
	t.Parallel()

	path := touch(t, "w.db")
	m, err := NewManager(Config{Logger: logger.Nop(), Opener: stubOpener(map[string]*dbtest.Stub{"w.db": {}})})
	require.NoError(t, err)
	_, err = m.Connect(context.Background(), path)
	require.NoError(t, err)

	release := m.BeginScan()

	var wrote atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.WithWrite(context.Background(), func(*Connection) error {
			wrote.Store(true)
			return nil
		})
	}()

	// Reads still proceed during the scan.
	require.NoError(t, m.WithConn(context.Background(), func(*Connection) error { return nil }))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, wrote.Load(), "write must wait for the scan to finish")

	release()
	release()
	<-done
	assert.True(t, wrote.Load())

	conn, _ := m.Current()
	assert.Equal(t, uint64(1), conn.Revision())
}

func TestManager_CanceledContext(t *testing.T) {
	t.Parallel()

	m, err := NewManager(Config{Logger: logger.Nop(), Opener: stubOpener(nil)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.WithConn(ctx, func(*Connection) error { return nil })
	assert.True(t, errs.IsTimeout(err))
}

func TestSQLiteOpener_Fixture(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shop.db")
	require.NoError(t, fixture.Ecommerce(context.Background(), path))

	m, err := NewManager(Config{Logger: logger.Nop(), Opener: SQLiteOpener(database.DefaultConfig(""))})
	require.NoError(t, err)
	defer m.Close()

	info, err := m.Connect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, fixture.EcommerceTables, info.Tables)
	assert.Len(t, info.Tables, 2)
}

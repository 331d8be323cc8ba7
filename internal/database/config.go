package database

import "time"

// Config holds all settings needed to open and pool a SQLite database file.
type Config struct {
	// Path is the filesystem path of the database file.
	Path string

	// ReadOnly opens the file with mode=ro. Required by the SELECT-only guard
	// policy; the denylist policy opens read-write.
	ReadOnly bool

	// Pool tuning
	MaxOpenConns    int           // maximum number of connections in the pool
	MaxIdleConns    int           // connections kept idle between calls
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle

	// Timeouts
	ConnectTimeout time.Duration // time limit for the initial ping
	BusyTimeout    time.Duration // how long SQLite waits on a locked file
}

// DefaultConfig returns pool settings tuned for a single-user, read-heavy
// workload over a local file.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:            path,
		ReadOnly:        true,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		BusyTimeout:     5 * time.Second,
	}
}

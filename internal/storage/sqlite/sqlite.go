// Package sqlite implements the local index database on top of the
// pure-Go, cgo-free driver from github.com/ncruces/go-sqlite3.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/blockvault/blockvault/internal/storage"
)

// DB is the sqlite-backed implementation of storage.Storage.
type DB struct {
	conn *sql.DB
	path string
	lock *flock.Flock
}

// Open creates or opens the index database at path, applying any
// pending migrations before returning. It also acquires an exclusive
// OS-level lock on path+".lock" for the lifetime of the returned DB --
// the single-writer rule (spec §5) must hold across cooperating
// goroutines within one process AND across separate processes pointed
// at the same database file, which SQLite's own locking alone cannot
// guarantee over network filesystems.
func Open(ctx context.Context, path string) (*DB, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock index database: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock index database: %s is already open by another process", path)
	}

	connStr := "file:" + path + "?_time_format=sqlite&_journal=wal&_busy_timeout=10000&_txlock=immediate"
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open index database: %w", err)
	}
	// The index database is single-writer by design (spec's cooperative
	// concurrency model); one connection avoids SQLITE_BUSY under our
	// own worker pools while still allowing concurrent readers via WAL.
	conn.SetMaxOpenConns(1)

	if err := RunMigrations(conn); err != nil {
		conn.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("migrate index database: %w", err)
	}

	return &DB{conn: conn, path: path, lock: lock}, nil
}

func (d *DB) Path() string         { return d.path }
func (d *DB) UnderlyingDB() *sql.DB { return d.conn }

func (d *DB) Close() error {
	err := d.conn.Close()
	if unlockErr := d.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("unlock index database: %w", unlockErr)
	}
	return err
}

func (d *DB) UnderlyingConn(ctx context.Context) (*sql.Conn, error) {
	return d.conn.Conn(ctx)
}

// RunInTransaction executes fn inside a BEGIN IMMEDIATE transaction.
// IMMEDIATE acquires the write lock up front, rather than lazily on the
// first write, so two goroutines don't discover a conflict mid-way
// through a multi-step write such as a fileset drop.
func (d *DB) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) (err error) {
	sqlTx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		err = sqlTx.Commit()
	}()

	err = fn(&tx{conn: sqlTx})
	return err
}

// tempTableName returns a collision-resistant identifier safe to splice
// into CREATE TEMP TABLE statements. SQLite doesn't support binding
// identifiers as parameters, so temp table names are generated
// out-of-band and carried only as trusted Go strings.
func tempTableName(prefix string) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate temp table name: %w", err)
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b[:])), nil
}

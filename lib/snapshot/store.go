// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/deltaforge/deltaforge/lib/clock"
	"github.com/deltaforge/deltaforge/lib/delta"
	"github.com/deltaforge/deltaforge/lib/sqlitepool"
)

// Store errors. Callers distinguish a missing version (the consumer
// asked for something that does not exist or was pruned) from an
// empty store (no snapshot has ever been produced) with errors.Is.
// Persistence failures are returned wrapped with context and match
// neither sentinel.
var (
	ErrNotFound   = errors.New("snapshot: version not found")
	ErrEmptyStore = errors.New("snapshot: store is empty")
)

// Snapshot is an immutable full serialization of the dataset at one
// version. Never mutated after creation.
type Snapshot struct {
	// Version is the strictly increasing, gapless version number.
	// The first snapshot is version 1.
	Version int64

	// Content is the full dataset serialization. Opaque to the store.
	Content []byte

	// ContentHash is the content-domain BLAKE3 hash of Content,
	// computed on write and verified on read.
	ContentHash delta.Hash

	// CreatedAt is when the snapshot was committed.
	CreatedAt time.Time
}

// Config holds the parameters for opening a snapshot store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Required.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative. Writes are serialized regardless; extra
	// connections serve concurrent reads.
	PoolSize int

	// MaxRetainedSnapshots bounds how many historical snapshots
	// remain available as delta sources. Zero means unbounded.
	// Prune removes the oldest snapshots beyond this count.
	MaxRetainedSnapshots int

	// Clock provides timestamps for new snapshots. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Store is the append-only snapshot store. Safe for concurrent use:
// Put is serialized internally (it is the sole writer of the version
// sequence), reads run concurrently on pooled connections.
type Store struct {
	pool        *sqlitepool.Pool
	clock       clock.Clock
	logger      *slog.Logger
	maxRetained int

	// writeMu serializes Put and Prune. The version number is
	// allocated and committed inside one transaction, so this lock
	// is about write ordering, not counter integrity — SQLite's
	// single-writer model would serialize them anyway, this just
	// fails fast instead of queueing on busy_timeout.
	writeMu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	version      INTEGER PRIMARY KEY,
	content      BLOB NOT NULL,
	content_hash BLOB NOT NULL,
	created_at   INTEGER NOT NULL
);
`

// Open creates or opens a snapshot store at the configured path. The
// schema is created if missing. The caller must call Close when done.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("snapshot: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("snapshot: Logger is required")
	}
	if cfg.MaxRetainedSnapshots < 0 {
		return nil, fmt.Errorf("snapshot: MaxRetainedSnapshots must be >= 0, got %d", cfg.MaxRetainedSnapshots)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	return &Store{
		pool:        pool,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		maxRetained: cfg.MaxRetainedSnapshots,
	}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Put stores content as the next snapshot version (current max + 1,
// starting at 1) and returns the new Snapshot. The version is
// allocated and the row committed in a single IMMEDIATE transaction,
// so a persistence failure never advances the version sequence.
func (s *Store) Put(ctx context.Context, content []byte) (Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: put: %w", err)
	}
	defer s.pool.Put(conn)

	contentHash := delta.HashContent(content)
	createdAt := s.clock.Now()

	var stored Snapshot
	err = withImmediateTransaction(conn, func() error {
		version, err := maxVersion(conn)
		if err != nil {
			return err
		}
		version++

		err = sqlitex.Execute(conn,
			`INSERT INTO snapshots (version, content, content_hash, created_at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{version, content, contentHash[:], createdAt.UnixMilli()},
			})
		if err != nil {
			return fmt.Errorf("inserting version %d: %w", version, err)
		}

		stored = Snapshot{
			Version:     version,
			Content:     content,
			ContentHash: contentHash,
			CreatedAt:   createdAt,
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: put: %w", err)
	}

	s.logger.Info("snapshot stored",
		"version", stored.Version,
		"size", len(content),
		"content_hash", delta.FormatHash(contentHash),
	)
	return stored, nil
}

// Get returns the snapshot at the given version, or [ErrNotFound] if
// no snapshot exists at that version.
func (s *Store) Get(ctx context.Context, version int64) (Snapshot, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: get %d: %w", version, err)
	}
	defer s.pool.Put(conn)

	snapshot, found, err := querySnapshot(conn,
		`SELECT version, content, content_hash, created_at FROM snapshots WHERE version = ?`,
		version)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: get %d: %w", version, err)
	}
	if !found {
		return Snapshot{}, fmt.Errorf("%w: version %d", ErrNotFound, version)
	}
	return snapshot, nil
}

// Latest returns the most recent snapshot, or [ErrEmptyStore] if no
// snapshot has ever been stored.
func (s *Store) Latest(ctx context.Context) (Snapshot, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: latest: %w", err)
	}
	defer s.pool.Put(conn)

	snapshot, found, err := querySnapshot(conn,
		`SELECT version, content, content_hash, created_at FROM snapshots ORDER BY version DESC LIMIT 1`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: latest: %w", err)
	}
	if !found {
		return Snapshot{}, ErrEmptyStore
	}
	return snapshot, nil
}

// VersionsSince returns all stored version numbers greater than
// version, in ascending order. An empty result means the caller is
// at or past the newest snapshot.
func (s *Store) VersionsSince(ctx context.Context, version int64) ([]int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: versions since %d: %w", version, err)
	}
	defer s.pool.Put(conn)

	var versions []int64
	err = sqlitex.Execute(conn,
		`SELECT version FROM snapshots WHERE version > ? ORDER BY version ASC`,
		&sqlitex.ExecOptions{
			Args: []any{version},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				versions = append(versions, stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("snapshot: versions since %d: %w", version, err)
	}
	return versions, nil
}

// OldestVersion returns the smallest retained version number, or
// [ErrEmptyStore] if the store is empty. The sync layer uses this to
// decide whether a requested base can still be delta-synced or must
// fall back to a full snapshot.
func (s *Store) OldestVersion(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot: oldest version: %w", err)
	}
	defer s.pool.Put(conn)

	var oldest int64
	var found bool
	err = sqlitex.Execute(conn,
		`SELECT MIN(version) FROM snapshots`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if stmt.ColumnType(0) != sqlite.TypeNull {
					oldest = stmt.ColumnInt64(0)
					found = true
				}
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("snapshot: oldest version: %w", err)
	}
	if !found {
		return 0, ErrEmptyStore
	}
	return oldest, nil
}

// Prune removes the oldest snapshots beyond MaxRetainedSnapshots and
// returns how many were removed. The latest snapshot is never
// removed. A no-op when retention is unbounded (zero) or the store
// holds fewer snapshots than the bound.
func (s *Store) Prune(ctx context.Context) (int, error) {
	if s.maxRetained == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot: prune: %w", err)
	}
	defer s.pool.Put(conn)

	removed := 0
	err = withImmediateTransaction(conn, func() error {
		latest, err := maxVersion(conn)
		if err != nil {
			return err
		}
		cutoff := latest - int64(s.maxRetained)
		if cutoff <= 0 {
			return nil
		}

		err = sqlitex.Execute(conn,
			`DELETE FROM snapshots WHERE version <= ?`,
			&sqlitex.ExecOptions{Args: []any{cutoff}})
		if err != nil {
			return fmt.Errorf("deleting versions <= %d: %w", cutoff, err)
		}
		removed = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot: prune: %w", err)
	}

	if removed > 0 {
		s.logger.Info("snapshots pruned",
			"removed", removed,
			"retained", s.maxRetained,
		)
	}
	return removed, nil
}

// maxVersion returns the highest stored version, or 0 for an empty
// store. Must run inside the caller's transaction when the result
// feeds a write.
func maxVersion(conn *sqlite.Conn) (int64, error) {
	var version int64
	err := sqlitex.Execute(conn,
		`SELECT COALESCE(MAX(version), 0) FROM snapshots`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				version = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("reading max version: %w", err)
	}
	return version, nil
}

// querySnapshot runs a query expected to yield at most one snapshot
// row with columns (version, content, content_hash, created_at), and
// verifies the content hash before returning the row.
func querySnapshot(conn *sqlite.Conn, query string, args ...any) (Snapshot, bool, error) {
	var snapshot Snapshot
	var found bool

	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			snapshot.Version = stmt.ColumnInt64(0)

			snapshot.Content = make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, snapshot.Content)

			var storedHash [32]byte
			if stmt.ColumnLen(2) != len(storedHash) {
				return fmt.Errorf("version %d: content hash column is %d bytes, want %d",
					snapshot.Version, stmt.ColumnLen(2), len(storedHash))
			}
			stmt.ColumnBytes(2, storedHash[:])
			snapshot.ContentHash = delta.Hash(storedHash)

			snapshot.CreatedAt = time.UnixMilli(stmt.ColumnInt64(3)).UTC()
			found = true
			return nil
		},
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	if !found {
		return Snapshot{}, false, nil
	}

	// A row that fails hash verification indicates storage
	// corruption. Surface it rather than letting bad bytes feed
	// delta computation.
	if delta.HashContent(snapshot.Content) != snapshot.ContentHash {
		return Snapshot{}, false, fmt.Errorf("version %d: content fails hash verification", snapshot.Version)
	}

	return snapshot, true, nil
}

// withImmediateTransaction runs fn inside BEGIN IMMEDIATE / COMMIT,
// rolling back if fn returns an error.
func withImmediateTransaction(conn *sqlite.Conn, fn func() error) (err error) {
	if err := sqlitex.ExecuteTransient(conn, "BEGIN IMMEDIATE", nil); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := sqlitex.ExecuteTransient(conn, "ROLLBACK", nil); rollbackErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
			}
			return
		}
		if commitErr := sqlitex.ExecuteTransient(conn, "COMMIT", nil); commitErr != nil {
			err = fmt.Errorf("commit: %w", commitErr)
		}
	}()
	return fn()
}

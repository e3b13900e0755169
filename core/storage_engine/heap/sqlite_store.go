package heap

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const pagesSchema = `
CREATE TABLE IF NOT EXISTS pages (
	table_id INTEGER NOT NULL,
	page_no  INTEGER NOT NULL,
	data     BLOB    NOT NULL,
	checksum BLOB    NOT NULL,
	PRIMARY KEY (table_id, page_no)
)`

// SQLiteStore keeps each page as one row of a SQLite database together with a
// BLAKE3 checksum that is verified on every read.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteStore opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", flushmanager.ErrIO, path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=FULL", pagesSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: init %s: %v", flushmanager.ErrIO, path, err)
		}
	}
	logger.Named("sqlitestore").Info("page store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger.Named("sqlitestore")}, nil
}

func (s *SQLiteStore) ReadPage(ctx context.Context, pid pagemanager.PageID) ([]byte, error) {
	var data, sum []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data, checksum FROM pages WHERE table_id = ? AND page_no = ?`,
		pid.TableID, pid.PageNo).Scan(&data, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", flushmanager.ErrPageOutOfRange, pid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read page %s: %v", flushmanager.ErrIO, pid, err)
	}
	want := blake3.Sum256(data)
	if !bytes.Equal(sum, want[:]) {
		s.logger.Error("page checksum mismatch", zap.Stringer("page", pid))
		return nil, fmt.Errorf("%w: page %s", flushmanager.ErrChecksumMismatch, pid)
	}
	return data, nil
}

func (s *SQLiteStore) WritePage(ctx context.Context, pid pagemanager.PageID, data []byte) error {
	n, err := s.NumPages(ctx, pid.TableID)
	if err != nil {
		return err
	}
	if int(pid.PageNo) > n {
		return fmt.Errorf("%w: %s leaves a gap after %d pages", flushmanager.ErrPageOutOfRange, pid, n)
	}
	sum := blake3.Sum256(data)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pages (table_id, page_no, data, checksum) VALUES (?, ?, ?, ?)
		 ON CONFLICT (table_id, page_no) DO UPDATE SET data = excluded.data, checksum = excluded.checksum`,
		pid.TableID, pid.PageNo, data, sum[:])
	if err != nil {
		return fmt.Errorf("%w: write page %s: %v", flushmanager.ErrIO, pid, err)
	}
	return nil
}

func (s *SQLiteStore) NumPages(ctx context.Context, table pagemanager.TableID) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE table_id = ?`, table).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count pages of table %d: %v", flushmanager.ErrIO, table, err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

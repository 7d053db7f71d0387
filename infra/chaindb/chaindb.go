// Package chaindb is the SQLite block store behind the logic layer.
//
// One database file holds block headers, payloads, and a small meta table
// for the tip pointer and the genesis anchor. The auxiliary process is
// the only writer; WAL mode keeps concurrent readers cheap.
package chaindb

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"tally"
)

// Schema is the SQL schema applied on open. Idempotent.
//
//go:embed schema.sql
var Schema string

// ErrNotFound reports a lookup for a hash the store has never seen.
var ErrNotFound = errors.New("chaindb: not found")

// ErrGenesisMismatch reports a database that belongs to a different chain
// than the one configured.
var ErrGenesisMismatch = errors.New("chaindb: genesis mismatch")

const (
	metaTip     = "tip"
	metaGenesis = "genesis"
)

// DB is the chain database handle.
type DB struct {
	db   *sql.DB
	path string
}

// Options control how the database is opened.
type Options struct {
	// Rebuild drops the existing database files and starts from an empty
	// store.
	Rebuild bool
}

// Open opens (or creates) the chain database at path and applies the
// schema. With Rebuild set, any existing database files are removed
// first.
func Open(path string, opts Options) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create chain db directory: %w", err)
	}
	if opts.Rebuild {
		if err := removeDatabaseFiles(path); err != nil {
			return nil, fmt.Errorf("rebuild chain db: %w", err)
		}
	}
	warnIfLowSpace(filepath.Dir(path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chain db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply chain db schema: %w", err)
	}

	return &DB{db: db, path: path}, nil
}

// removeDatabaseFiles deletes the database and its WAL sidecars.
func removeDatabaseFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// VerifyGenesis pins the store to the given genesis hash. On a fresh
// store the anchor is recorded; on an existing store a different anchor
// is ErrGenesisMismatch. A zero hash skips verification, which is how
// light runs operate.
func (d *DB) VerifyGenesis(ctx context.Context, genesis tally.BlockHash) error {
	if genesis.IsZero() {
		return nil
	}

	stored, err := d.metaValue(ctx, metaGenesis)
	if errors.Is(err, ErrNotFound) {
		if err := d.setMetaValue(ctx, metaGenesis, genesis[:]); err != nil {
			return fmt.Errorf("record genesis anchor: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read genesis anchor: %w", err)
	}
	if !bytes.Equal(stored, genesis[:]) {
		return fmt.Errorf("%w: store %x, config %s", ErrGenesisMismatch, stored, genesis)
	}
	return nil
}

// Tip returns the current best tip. A fresh store has a zero tip.
func (d *DB) Tip(ctx context.Context) (tally.Tip, error) {
	raw, err := d.metaValue(ctx, metaTip)
	if errors.Is(err, ErrNotFound) {
		return tally.Tip{}, nil
	}
	if err != nil {
		return tally.Tip{}, fmt.Errorf("read tip: %w", err)
	}

	var hash tally.BlockHash
	if len(raw) != len(hash) {
		return tally.Tip{}, fmt.Errorf("read tip: malformed hash of %d bytes", len(raw))
	}
	copy(hash[:], raw)

	hdr, err := d.Header(ctx, hash)
	if err != nil {
		return tally.Tip{}, fmt.Errorf("read tip header: %w", err)
	}
	return tally.Tip{Hash: hash, Slot: hdr.Slot, Height: hdr.Height}, nil
}

// Header returns the stored header for hash, or ErrNotFound.
func (d *DB) Header(ctx context.Context, hash tally.BlockHash) (tally.BlockHeader, error) {
	var (
		parent []byte
		slot   uint64
		height uint64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT parent, slot, height FROM headers WHERE hash = ?`, hash[:],
	).Scan(&parent, &slot, &height)
	if errors.Is(err, sql.ErrNoRows) {
		return tally.BlockHeader{}, ErrNotFound
	}
	if err != nil {
		return tally.BlockHeader{}, fmt.Errorf("read header %s: %w", hash, err)
	}

	hdr := tally.BlockHeader{Slot: slot, Height: height}
	if len(parent) != len(hdr.Parent) {
		return tally.BlockHeader{}, fmt.Errorf("read header %s: malformed parent of %d bytes", hash, len(parent))
	}
	copy(hdr.Parent[:], parent)
	return hdr, nil
}

// HasBlock reports whether the store holds a block with the given hash.
func (d *DB) HasBlock(ctx context.Context, hash tally.BlockHash) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM headers WHERE hash = ?`, hash[:],
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe block %s: %w", hash, err)
	}
	return true, nil
}

// AppendBlock stores b and advances the tip to it, atomically. Linkage
// against the current tip is the caller's job; the store only guarantees
// that header, payload, and tip move together.
func (d *DB) AppendBlock(ctx context.Context, b tally.Block) error {
	hash := b.Header.Hash()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append block %s: %w", hash, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO headers (hash, parent, slot, height, payload) VALUES (?, ?, ?, ?, ?)`,
		hash[:], b.Header.Parent[:], b.Header.Slot, b.Header.Height, b.Payload,
	)
	if err != nil {
		return fmt.Errorf("append block %s: %w", hash, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
		metaTip, hash[:],
	)
	if err != nil {
		return fmt.Errorf("advance tip to %s: %w", hash, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append block %s: %w", hash, err)
	}
	return nil
}

func (d *DB) metaValue(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := d.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (d *DB) setMetaValue(ctx context.Context, key string, value []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

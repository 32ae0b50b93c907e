// Package store persists an index to a SQLite file: node signatures,
// prime-support bitmaps and a snapshot of computed edges. Loading rebuilds
// the index from the stored signatures without refactorizing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/RoaringBitmap/roaring"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/resonance"
	"github.com/agentic-research/resonance/internal/signature"
)

// ErrNodeTooLarge is returned when n does not fit the 32-bit support bitmaps.
var ErrNodeTooLarge = errors.New("node exceeds persisted bitmap range")

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	n INTEGER PRIMARY KEY,
	key TEXT NOT NULL,
	mass INTEGER NOT NULL,
	width INTEGER NOT NULL,
	signature JSON NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_key ON nodes(key);

CREATE TABLE IF NOT EXISTS prime_support (
	prime INTEGER PRIMARY KEY,
	bitmap BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS edges (
	a INTEGER NOT NULL,
	b INTEGER NOT NULL,
	score REAL NOT NULL,
	law TEXT NOT NULL,
	PRIMARY KEY (a, b)
) WITHOUT ROWID;
`

// Edge is a persisted, classified edge. A < B.
type Edge struct {
	A, B  uint64
	Score float64
	Law   resonance.Law
}

// Store is a SQLite-backed snapshot of an index.
type Store struct {
	db     *sql.DB
	dbID   string
	module *SupportModule
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and attaches the
// support virtual table.
func Open(path string) (*Store, error) {
	// Register the module before the first connection is made.
	mod, err := registerSupportModule()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection for the outer query, one for the vtab's Filter callbacks.
	db.SetMaxOpenConns(2)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	// The vtab declaration is persisted, so the ID must be stable for a file.
	dbID := databaseID(path)
	mod.registerDB(dbID, db)
	query := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS support USING %s(%s)", supportModuleName, dbID)
	if _, err := db.Exec(query); err != nil {
		mod.unregisterDB(dbID, db)
		_ = db.Close()
		return nil, fmt.Errorf("create support vtab: %w", err)
	}
	return &Store{db: db, dbID: dbID, module: mod, logger: slog.Default()}, nil
}

func databaseID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return fmt.Sprintf("db_%x", h.Sum64())
}

// Close releases the database.
func (s *Store) Close() error {
	s.module.unregisterDB(s.dbID, s.db)
	return s.db.Close()
}

// Save replaces the stored snapshot with the nodes of idx and edges,
// classified by scorer, in a single transaction.
func (s *Store) Save(ctx context.Context, idx *graph.Index, edges []graph.EdgeRecord, scorer *resonance.Scorer) (err error) {
	nodes := idx.Nodes()
	for _, n := range nodes {
		if n.N > math.MaxUint32 {
			return fmt.Errorf("%w: %d", ErrNodeTooLarge, n.N)
		}
	}
	byID, idToN := idx.SupportBitmaps()
	support := make(map[uint32]*roaring.Bitmap, len(byID))
	for p, ids := range byID {
		bm := roaring.New()
		it := ids.Iterator()
		for it.HasNext() {
			bm.Add(uint32(idToN[it.Next()]))
		}
		support[p] = bm
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"nodes", "prime_support", "edges"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	stmtNode, err := tx.PrepareContext(ctx, `INSERT INTO nodes (n, key, mass, width, signature) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmtNode.Close() }()
	for _, n := range nodes {
		sig, mErr := json.Marshal(n.Signature())
		if mErr != nil {
			return fmt.Errorf("marshal signature %d: %w", n.N, mErr)
		}
		if _, err = stmtNode.ExecContext(ctx, int64(n.N), n.Key().String(), int64(n.Mass()), n.Depth, string(sig)); err != nil {
			return fmt.Errorf("insert node %d: %w", n.N, err)
		}
	}

	stmtSupport, err := tx.PrepareContext(ctx, `INSERT INTO prime_support (prime, bitmap) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmtSupport.Close() }()
	for p, bm := range support {
		bm.RunOptimize()
		blob, bErr := bm.ToBytes()
		if bErr != nil {
			return fmt.Errorf("encode support %d: %w", p, bErr)
		}
		if _, err = stmtSupport.ExecContext(ctx, int64(p), blob); err != nil {
			return fmt.Errorf("insert support %d: %w", p, err)
		}
	}

	stmtEdge, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO edges (a, b, score, law) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmtEdge.Close() }()
	for _, e := range edges {
		r, cErr := scorer.Classify(e.Similarity)
		if cErr != nil {
			return fmt.Errorf("classify edge %d~%d: %w", e.A, e.B, cErr)
		}
		if _, err = stmtEdge.ExecContext(ctx, int64(e.A), int64(e.B), e.Similarity, r.Law.String()); err != nil {
			return fmt.Errorf("insert edge %d~%d: %w", e.A, e.B, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("store saved", "nodes", len(nodes), "primes", len(support), "edges", len(edges))
	return nil
}

// Load rebuilds an index from the stored signatures.
func (s *Store) Load(ctx context.Context, opts ...graph.Option) (*graph.Index, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT n, signature FROM nodes ORDER BY n`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	idx := graph.NewIndex(opts...)
	for rows.Next() {
		var (
			n   int64
			raw string
		)
		if err := rows.Scan(&n, &raw); err != nil {
			return nil, err
		}
		var sig signature.Signature
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			return nil, fmt.Errorf("decode signature %d: %w", n, err)
		}
		if err := idx.Insert(graph.NodeFromSignature(uint64(n), sig)); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return idx, nil
}

// PrimeSupport returns the stored n values whose signature contains p,
// ascending.
func (s *Store) PrimeSupport(ctx context.Context, p uint32) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT n FROM support WHERE prime = ? ORDER BY n`, int64(p))
	if err != nil {
		return nil, fmt.Errorf("query support %d: %w", p, err)
	}
	defer func() { _ = rows.Close() }()

	var out []uint64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, uint64(n))
	}
	return out, rows.Err()
}

// QuerySupport runs a query against the database, which includes the
// support(prime, n) virtual table.
func (s *Store) QuerySupport(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// Edges returns the stored edges ordered by (A, B).
func (s *Store) Edges(ctx context.Context) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT a, b, score, law FROM edges ORDER BY a, b`)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Edge
	for rows.Next() {
		var (
			a, b  int64
			score float64
			law   string
		)
		if err := rows.Scan(&a, &b, &score, &law); err != nil {
			return nil, err
		}
		l, err := resonance.Parse(law)
		if err != nil {
			return nil, fmt.Errorf("edge %d~%d: %w", a, b, err)
		}
		out = append(out, Edge{A: uint64(a), B: uint64(b), Score: score, Law: l})
	}
	return out, rows.Err()
}

// Count returns the number of stored nodes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&n)
	return n, err
}

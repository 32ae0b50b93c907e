package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"modernc.org/sqlite/vtab"
)

// supportModuleName is the module behind the support virtual table:
//
//	SELECT n FROM support WHERE prime = 7
//
// expands the stored prime_support bitmap of 7 into one row per node.
const supportModuleName = "resonance_support"

var (
	supportOnce   sync.Once
	supportModule *SupportModule
	supportErr    error
)

// SupportModule implements vtab.Module. It is a process-wide singleton
// because modernc.org/sqlite registers modules on the driver, not per DB.
type SupportModule struct {
	mu sync.RWMutex
	// dbs maps the ID passed to CREATE VIRTUAL TABLE to the database
	// holding the prime_support table.
	dbs map[string]*sql.DB
}

// registerSupportModule registers the module once and returns it.
func registerSupportModule() (*SupportModule, error) {
	supportOnce.Do(func() {
		supportModule = &SupportModule{dbs: make(map[string]*sql.DB)}
		if err := vtab.RegisterModule(nil, supportModuleName, supportModule); err != nil {
			supportErr = fmt.Errorf("store: register %s: %w", supportModuleName, err)
			supportModule = nil
		}
	})
	return supportModule, supportErr
}

func (m *SupportModule) registerDB(id string, db *sql.DB) {
	m.mu.Lock()
	m.dbs[id] = db
	m.mu.Unlock()
}

// unregisterDB removes id if it still points at db.
func (m *SupportModule) unregisterDB(id string, db *sql.DB) {
	m.mu.Lock()
	if m.dbs[id] == db {
		delete(m.dbs, id)
	}
	m.mu.Unlock()
}

func (m *SupportModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	// args: module, database, table, then the arguments inside USING (...).
	if len(args) < 4 {
		return nil, fmt.Errorf("%s: missing DB ID argument (expected USING %s(id))", supportModuleName, supportModuleName)
	}
	id := args[3]

	m.mu.RLock()
	db, ok := m.dbs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: unknown DB ID %q", supportModuleName, id)
	}

	if err := ctx.Declare("CREATE TABLE x(prime INTEGER, n INTEGER)"); err != nil {
		return nil, err
	}
	return &supportTable{db: db}, nil
}

func (m *SupportModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

type supportTable struct {
	db *sql.DB
}

func (t *supportTable) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Column != 0 || c.Op != vtab.OpEQ {
			continue
		}
		c.ArgIndex = 0
		c.Omit = true
		info.IdxNum = 1
		info.EstimatedCost = 1
		info.EstimatedRows = 100
		return nil
	}
	info.IdxNum = 0
	info.EstimatedCost = 1e6
	info.EstimatedRows = 1e6
	return nil
}

func (t *supportTable) Open() (vtab.Cursor, error) {
	return &supportCursor{table: t}, nil
}

func (t *supportTable) Disconnect() error { return nil }
func (t *supportTable) Destroy() error    { return nil }

type supportRow struct {
	prime int64
	n     int64
}

type supportCursor struct {
	table *supportTable
	rows  []supportRow
	pos   int
}

func (c *supportCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = c.rows[:0]
	c.pos = 0

	if idxNum == 1 {
		p, ok := vals[0].(int64)
		if !ok {
			return nil
		}
		return c.loadPrime(p)
	}
	return c.loadAll()
}

func (c *supportCursor) loadPrime(p int64) error {
	var blob []byte
	err := c.table.db.QueryRow("SELECT bitmap FROM prime_support WHERE prime = ?", p).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: query prime %d: %w", supportModuleName, p, err)
	}
	return c.expand(p, blob)
}

// loadAll materializes every (prime, blob) pair before expanding, so the
// scan's connection is released first.
func (c *supportCursor) loadAll() error {
	type entry struct {
		prime int64
		blob  []byte
	}

	rows, err := c.table.db.Query("SELECT prime, bitmap FROM prime_support ORDER BY prime")
	if err != nil {
		return fmt.Errorf("%s: scan prime_support: %w", supportModuleName, err)
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.prime, &e.blob); err != nil {
			_ = rows.Close()
			return err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("%s: scan prime_support rows: %w", supportModuleName, err)
	}
	_ = rows.Close()

	for _, e := range entries {
		if err := c.expand(e.prime, e.blob); err != nil {
			return err
		}
	}
	return nil
}

func (c *supportCursor) expand(p int64, blob []byte) error {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(blob); err != nil {
		return fmt.Errorf("%s: unmarshal bitmap for %d: %w", supportModuleName, p, err)
	}
	it := bm.Iterator()
	for it.HasNext() {
		c.rows = append(c.rows, supportRow{prime: p, n: int64(it.Next())})
	}
	return nil
}

func (c *supportCursor) Next() error {
	c.pos++
	return nil
}

func (c *supportCursor) Eof() bool {
	return c.pos >= len(c.rows)
}

func (c *supportCursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	switch col {
	case 0:
		return c.rows[c.pos].prime, nil
	case 1:
		return c.rows[c.pos].n, nil
	default:
		return nil, nil
	}
}

func (c *supportCursor) Rowid() (int64, error) {
	return int64(c.pos), nil
}

func (c *supportCursor) Close() error {
	c.rows = nil
	return nil
}

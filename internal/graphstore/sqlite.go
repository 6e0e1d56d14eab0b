package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/rohankatakam/graphrag/internal/errors"
	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	uid  TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS edges (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	data   TEXT NOT NULL,
	PRIMARY KEY (source, target)
);
CREATE TABLE IF NOT EXISTS communities (
	uid  TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
`

// SQLiteBackend implements Backend for local development and single-process
// deployments, the default per Config.GraphStore.Backend ("sqlite").
type SQLiteBackend struct {
	db     *sqlx.DB
	logger *logrus.Logger

	// mu serializes the whole-db writes SQLite requires under WAL. The
	// per-uid locks below, not mu, stand in for Postgres's row-level
	// FOR UPDATE locking.
	mu sync.Mutex

	// locksMu and locks back WithNodeLock with a per-uid critical section,
	// distinct from mu, so a locked fn can call back into AddNode/UpdateNode
	// (which take mu themselves) without self-deadlocking.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewSQLiteBackend opens (creating if absent) the sqlite file at path.
func NewSQLiteBackend(path string, logger *logrus.Logger) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.FileSystemErrorf(err, "create graph store directory %q", dir)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "connect to sqlite graph store")
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, apperrors.DatabaseErrorf(err, "create sqlite graph store schema")
	}

	return &SQLiteBackend{db: db, logger: logger, locks: make(map[string]*sync.Mutex)}, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) nodeLock(uid string) *sync.Mutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()
	l, ok := b.locks[uid]
	if !ok {
		l = &sync.Mutex{}
		b.locks[uid] = l
	}
	return l
}

// WithNodeLock serializes concurrent read-modify-writes against uid. fn is
// free to call back into AddNode/GetNode/UpdateNode, which take the separate
// whole-db mu to perform their own statement.
func (b *SQLiteBackend) WithNodeLock(ctx context.Context, uid string, fn func(ctx context.Context) error) error {
	l := b.nodeLock(uid)
	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (b *SQLiteBackend) AddNode(ctx context.Context, node *graphmodel.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal node %q", node.UID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.db.ExecContext(ctx, `INSERT OR IGNORE INTO nodes (uid, data) VALUES (?, ?)`, node.UID, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "insert node %q", node.UID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.AlreadyExistsf("node %q already exists", node.UID)
	}
	return nil
}

func (b *SQLiteBackend) GetNode(ctx context.Context, uid string) (*graphmodel.Node, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM nodes WHERE uid = ?`, uid).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundf("node %q not found", uid)
	}
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "get node %q", uid)
	}
	var node graphmodel.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, apperrors.MalformedRecordf(err, "unmarshal node %q", uid)
	}
	return &node, nil
}

func (b *SQLiteBackend) UpdateNode(ctx context.Context, node *graphmodel.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal node %q", node.UID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.db.ExecContext(ctx, `UPDATE nodes SET data = ? WHERE uid = ?`, data, node.UID)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "update node %q", node.UID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("node %q not found", node.UID)
	}
	return nil
}

func (b *SQLiteBackend) RemoveNode(ctx context.Context, uid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "begin remove node %q", uid)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE uid = ?`, uid)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "delete node %q", uid)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("node %q not found", uid)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source = ? OR target = ?`, uid, uid); err != nil {
		return apperrors.DatabaseErrorf(err, "delete edges adjacent to %q", uid)
	}
	return tx.Commit()
}

func (b *SQLiteBackend) AddEdge(ctx context.Context, edge *graphmodel.Edge) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal edge %s->%s", edge.Source, edge.Target)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO edges (source, target, data) VALUES (?, ?, ?)`,
		edge.Source, edge.Target, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "insert edge %s->%s", edge.Source, edge.Target)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.AlreadyExistsf("edge %s->%s already exists", edge.Source, edge.Target)
	}
	return nil
}

func (b *SQLiteBackend) GetEdge(ctx context.Context, source, target string) (*graphmodel.Edge, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT data FROM edges WHERE source = ? AND target = ?`, source, target).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundf("edge %s->%s not found", source, target)
	}
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "get edge %s->%s", source, target)
	}
	var edge graphmodel.Edge
	if err := json.Unmarshal(data, &edge); err != nil {
		return nil, apperrors.MalformedRecordf(err, "unmarshal edge %s->%s", source, target)
	}
	return &edge, nil
}

func (b *SQLiteBackend) UpdateEdge(ctx context.Context, edge *graphmodel.Edge) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal edge %s->%s", edge.Source, edge.Target)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.db.ExecContext(ctx,
		`UPDATE edges SET data = ? WHERE source = ? AND target = ?`, data, edge.Source, edge.Target)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "update edge %s->%s", edge.Source, edge.Target)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("edge %s->%s not found", edge.Source, edge.Target)
	}
	return nil
}

func (b *SQLiteBackend) RemoveEdge(ctx context.Context, source, target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.db.ExecContext(ctx, `DELETE FROM edges WHERE source = ? AND target = ?`, source, target)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "delete edge %s->%s", source, target)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("edge %s->%s not found", source, target)
	}
	return nil
}

func (b *SQLiteBackend) BuildGraphView(ctx context.Context) (*graphmodel.GraphView, error) {
	view := &graphmodel.GraphView{Nodes: make(map[string]*graphmodel.Node)}

	nodeRows, err := b.db.QueryContext(ctx, `SELECT data FROM nodes`)
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "scan nodes for graph view")
	}
	defer nodeRows.Close()
	for nodeRows.Next() {
		var data []byte
		if err := nodeRows.Scan(&data); err != nil {
			return nil, apperrors.DatabaseErrorf(err, "scan node row")
		}
		var n graphmodel.Node
		if err := json.Unmarshal(data, &n); err != nil {
			b.logger.WithError(err).Warn("skipping malformed node row in graph view")
			continue
		}
		view.Nodes[n.UID] = &n
	}
	if err := nodeRows.Err(); err != nil {
		return nil, apperrors.DatabaseErrorf(err, "iterate node rows")
	}

	edgeRows, err := b.db.QueryContext(ctx, `SELECT data FROM edges`)
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "scan edges for graph view")
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var data []byte
		if err := edgeRows.Scan(&data); err != nil {
			return nil, apperrors.DatabaseErrorf(err, "scan edge row")
		}
		var e graphmodel.Edge
		if err := json.Unmarshal(data, &e); err != nil {
			b.logger.WithError(err).Warn("skipping malformed edge row in graph view")
			continue
		}
		view.Edges = append(view.Edges, &e)
	}
	return view, edgeRows.Err()
}

func (b *SQLiteBackend) ListCommunities(ctx context.Context) ([]*graphmodel.Community, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT data FROM communities`)
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "list communities")
	}
	defer rows.Close()

	var out []*graphmodel.Community
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, apperrors.DatabaseErrorf(err, "scan community row")
		}
		var c graphmodel.Community
		if err := json.Unmarshal(data, &c); err != nil {
			b.logger.WithError(err).Warn("skipping malformed community row")
			continue
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) StoreCommunity(ctx context.Context, community *graphmodel.Community) error {
	data, err := json.Marshal(community)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal community %q", community.UID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO communities (uid, data) VALUES (?, ?)
		ON CONFLICT (uid) DO UPDATE SET data = excluded.data
	`, community.UID, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "store community %q", community.UID)
	}
	return nil
}

func (b *SQLiteBackend) GetCommunity(ctx context.Context, uid string) (*graphmodel.Community, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM communities WHERE uid = ?`, uid).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundf("community %q not found", uid)
	}
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "get community %q", uid)
	}
	var c graphmodel.Community
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperrors.MalformedRecordf(err, "unmarshal community %q", uid)
	}
	return &c, nil
}

func (b *SQLiteBackend) ClearCommunities(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.ExecContext(ctx, `DELETE FROM communities`); err != nil {
		return apperrors.DatabaseErrorf(err, "clear communities")
	}
	return nil
}

var _ Backend = (*SQLiteBackend)(nil)

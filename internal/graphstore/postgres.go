package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/rohankatakam/graphrag/internal/errors"
	"github.com/rohankatakam/graphrag/internal/graphmodel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// schema mirrors spec.md §4.A: three tables, each a uid-keyed jsonb document.
// Edges are keyed by (source, target) since the store holds directed rows;
// undirected adjacency is the caller inserting both directions.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	uid  TEXT PRIMARY KEY,
	data JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS edges (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	data   JSONB NOT NULL,
	PRIMARY KEY (source, target)
);
CREATE TABLE IF NOT EXISTS communities (
	uid  TEXT PRIMARY KEY,
	data JSONB NOT NULL
);
`

// PostgresBackend implements Backend over three jsonb document tables.
type PostgresBackend struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// txKey is the context key WithNodeLock uses to pass its locking
// transaction down to fn, so a read-modify-write fn runs on the same
// connection that holds the row lock instead of blocking behind it.
type txKey struct{}

// querier is the subset of *sqlx.DB and *sqlx.Tx the node/edge statements
// use, so the same code path works whether or not ctx carries a locking
// transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (b *PostgresBackend) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return b.db
}

// NewPostgresBackend connects to dsn and ensures the schema exists.
func NewPostgresBackend(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresBackend, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, apperrors.DatabaseErrorf(err, "connect to graph store postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.DatabaseErrorf(err, "create graph store schema")
	}

	return &PostgresBackend{db: db, logger: logger}, nil
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

func (b *PostgresBackend) AddNode(ctx context.Context, node *graphmodel.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal node %q", node.UID)
	}

	res, err := b.q(ctx).ExecContext(ctx,
		`INSERT INTO nodes (uid, data) VALUES ($1, $2) ON CONFLICT (uid) DO NOTHING`,
		node.UID, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "insert node %q", node.UID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.AlreadyExistsf("node %q already exists", node.UID)
	}
	return nil
}

func (b *PostgresBackend) GetNode(ctx context.Context, uid string) (*graphmodel.Node, error) {
	var data []byte
	err := b.q(ctx).QueryRowContext(ctx, `SELECT data FROM nodes WHERE uid = $1`, uid).Scan(&data)
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

func (b *PostgresBackend) UpdateNode(ctx context.Context, node *graphmodel.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal node %q", node.UID)
	}

	res, err := b.q(ctx).ExecContext(ctx, `UPDATE nodes SET data = $2 WHERE uid = $1`, node.UID, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "update node %q", node.UID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("node %q not found", node.UID)
	}
	return nil
}

func (b *PostgresBackend) RemoveNode(ctx context.Context, uid string) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "begin remove node %q", uid)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE uid = $1`, uid)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "delete node %q", uid)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("node %q not found", uid)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source = $1 OR target = $1`, uid); err != nil {
		return apperrors.DatabaseErrorf(err, "delete edges adjacent to %q", uid)
	}
	return tx.Commit()
}

func (b *PostgresBackend) AddEdge(ctx context.Context, edge *graphmodel.Edge) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal edge %s->%s", edge.Source, edge.Target)
	}

	res, err := b.q(ctx).ExecContext(ctx,
		`INSERT INTO edges (source, target, data) VALUES ($1, $2, $3) ON CONFLICT (source, target) DO NOTHING`,
		edge.Source, edge.Target, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "insert edge %s->%s", edge.Source, edge.Target)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.AlreadyExistsf("edge %s->%s already exists", edge.Source, edge.Target)
	}
	return nil
}

func (b *PostgresBackend) GetEdge(ctx context.Context, source, target string) (*graphmodel.Edge, error) {
	var data []byte
	err := b.q(ctx).QueryRowContext(ctx,
		`SELECT data FROM edges WHERE source = $1 AND target = $2`, source, target).Scan(&data)
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

func (b *PostgresBackend) UpdateEdge(ctx context.Context, edge *graphmodel.Edge) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal edge %s->%s", edge.Source, edge.Target)
	}

	res, err := b.q(ctx).ExecContext(ctx,
		`UPDATE edges SET data = $3 WHERE source = $1 AND target = $2`,
		edge.Source, edge.Target, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "update edge %s->%s", edge.Source, edge.Target)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("edge %s->%s not found", edge.Source, edge.Target)
	}
	return nil
}

func (b *PostgresBackend) RemoveEdge(ctx context.Context, source, target string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM edges WHERE source = $1 AND target = $2`, source, target)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "delete edge %s->%s", source, target)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFoundf("edge %s->%s not found", source, target)
	}
	return nil
}

func (b *PostgresBackend) BuildGraphView(ctx context.Context) (*graphmodel.GraphView, error) {
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
	if err := edgeRows.Err(); err != nil {
		return nil, apperrors.DatabaseErrorf(err, "iterate edge rows")
	}

	return view, nil
}

func (b *PostgresBackend) ListCommunities(ctx context.Context) ([]*graphmodel.Community, error) {
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

func (b *PostgresBackend) StoreCommunity(ctx context.Context, community *graphmodel.Community) error {
	data, err := json.Marshal(community)
	if err != nil {
		return apperrors.MalformedRecordf(err, "marshal community %q", community.UID)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO communities (uid, data) VALUES ($1, $2)
		ON CONFLICT (uid) DO UPDATE SET data = EXCLUDED.data
	`, community.UID, data)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "store community %q", community.UID)
	}
	return nil
}

func (b *PostgresBackend) GetCommunity(ctx context.Context, uid string) (*graphmodel.Community, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM communities WHERE uid = $1`, uid).Scan(&data)
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

func (b *PostgresBackend) ClearCommunities(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM communities`); err != nil {
		return apperrors.DatabaseErrorf(err, "clear communities")
	}
	return nil
}

// WithNodeLock opens a transaction and takes a row-level lock via
// SELECT ... FOR UPDATE, so concurrent builders merging into the same node
// serialize their read-modify-write. A non-existent uid locks nothing and
// just runs fn: callers use this both for merges into existing nodes and for
// the first-insert race.
//
// fn receives a context carrying this transaction, and every AddNode/
// GetNode/UpdateNode/AddEdge/GetEdge/UpdateEdge call made through it (via q)
// runs on the same connection that holds the row lock, rather than on a
// different pooled connection that would block behind it until commit.
func (b *PostgresBackend) WithNodeLock(ctx context.Context, uid string, fn func(ctx context.Context) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseErrorf(err, "begin node lock tx for %q", uid)
	}
	defer tx.Rollback()

	var discard []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM nodes WHERE uid = $1 FOR UPDATE`, uid).Scan(&discard)
	if err != nil && err != sql.ErrNoRows {
		return apperrors.DatabaseErrorf(err, "lock node %q", uid)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseErrorf(err, "commit node lock tx for %q", uid)
	}
	return nil
}

var _ Backend = (*PostgresBackend)(nil)

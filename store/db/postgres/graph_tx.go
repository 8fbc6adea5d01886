package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/store"
)

type graphTx struct {
	tx *sql.Tx
}

func (d *DB) BeginGraphTx(ctx context.Context) (store.GraphTx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	return &graphTx{tx: tx}, nil
}

func (t *graphTx) FindNode(ctx context.Context, userID, label, nodeType string) (*store.Node, error) {
	query := `
		SELECT id, label, type, user_id, created_ts
		FROM graph_node
		WHERE label = ` + placeholder(1) + ` AND type = ` + placeholder(2) + ` AND user_id = ` + placeholder(3)
	var node store.Node
	err := t.tx.QueryRowContext(ctx, query, label, nodeType, userID).Scan(&node.ID, &node.Label, &node.Type, &node.UserID, &node.CreatedTs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find graph node")
	}
	return &node, nil
}

func (t *graphTx) CreateNode(ctx context.Context, create *store.Node) (*store.Node, bool, error) {
	stmt := `
		INSERT INTO graph_node (id, label, type, user_id, created_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (label, type, user_id) DO NOTHING
		RETURNING id`
	err := t.tx.QueryRowContext(ctx, stmt, create.ID, create.Label, create.Type, create.UserID, create.CreatedTs).Scan(&create.ID)
	if err == nil {
		return create, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errors.Wrap(err, "failed to create graph node")
	}

	existing, err := t.FindNode(ctx, create.UserID, create.Label, create.Type)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.Errorf("graph node %q conflicted but was not found", create.Label)
	}
	return existing, false, nil
}

func (t *graphTx) LinkNodeEntry(ctx context.Context, nodeID, entryID, userID string, ts int64) (bool, error) {
	stmt := `
		INSERT INTO graph_node_entry (node_id, entry_id, user_id, created_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (node_id, entry_id) DO NOTHING`
	result, err := t.tx.ExecContext(ctx, stmt, nodeID, entryID, userID, ts)
	if err != nil {
		return false, errors.Wrap(err, "failed to link graph node to entry")
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (t *graphTx) FindEdge(ctx context.Context, userID, fromNodeID, toNodeID string) (*store.Edge, error) {
	query := `
		SELECT id, from_node_id, to_node_id, weight, timestamps, source_entry_id, user_id, created_ts, updated_ts
		FROM graph_edge
		WHERE from_node_id = ` + placeholder(1) + ` AND to_node_id = ` + placeholder(2) + ` AND user_id = ` + placeholder(3) + `
		FOR UPDATE`
	var (
		edge       store.Edge
		timestamps pq.Int64Array
	)
	err := t.tx.QueryRowContext(ctx, query, fromNodeID, toNodeID, userID).Scan(
		&edge.ID,
		&edge.FromNodeID,
		&edge.ToNodeID,
		&edge.Weight,
		&timestamps,
		&edge.SourceEntryID,
		&edge.UserID,
		&edge.CreatedTs,
		&edge.UpdatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find graph edge")
	}
	edge.Timestamps = []int64(timestamps)
	return &edge, nil
}

func (t *graphTx) CreateEdge(ctx context.Context, create *store.Edge) (*store.Edge, bool, error) {
	stmt := `
		INSERT INTO graph_edge (id, from_node_id, to_node_id, weight, timestamps, source_entry_id, user_id, created_ts, updated_ts)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (from_node_id, to_node_id, user_id) DO NOTHING`
	result, err := t.tx.ExecContext(ctx, stmt,
		create.ID,
		create.FromNodeID,
		create.ToNodeID,
		create.Weight,
		pq.Int64Array(create.Timestamps),
		create.SourceEntryID,
		create.UserID,
		create.CreatedTs,
		create.UpdatedTs,
	)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to create graph edge")
	}
	rows, _ := result.RowsAffected()
	return create, rows > 0, nil
}

func (t *graphTx) UpdateEdge(ctx context.Context, update *store.Edge) error {
	stmt := `
		UPDATE graph_edge
		SET weight = ` + placeholder(1) + `, timestamps = ` + placeholder(2) + `, source_entry_id = ` + placeholder(3) + `, updated_ts = ` + placeholder(4) + `
		WHERE id = ` + placeholder(5)
	result, err := t.tx.ExecContext(ctx, stmt,
		update.Weight,
		pq.Int64Array(update.Timestamps),
		update.SourceEntryID,
		update.UpdatedTs,
		update.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update graph edge")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "graph edge %s", update.ID)
	}
	return nil
}

func (t *graphTx) Commit() error {
	return t.tx.Commit()
}

func (t *graphTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

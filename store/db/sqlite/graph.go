package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/store"
)

func (d *DB) ListGraphNodes(ctx context.Context, find *store.FindGraphNode) ([]*store.Node, int, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "n.id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "n.user_id = ?"), append(args, *find.UserID)
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_node n WHERE `+strings.Join(where, " AND "), args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count graph nodes")
	}

	query := `
		SELECT n.id, n.label, n.type, n.user_id, n.created_ts,
			(SELECT COUNT(*) FROM graph_node_entry ne WHERE ne.node_id = n.id) AS entry_count
		FROM graph_node n
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY n.created_ts DESC, n.id`
	query, args = appendPage(query, args, find.Limit, find.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list graph nodes")
	}
	defer rows.Close()

	list := []*store.Node{}
	for rows.Next() {
		var node store.Node
		if err := rows.Scan(&node.ID, &node.Label, &node.Type, &node.UserID, &node.CreatedTs, &node.EntryCount); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan graph node")
		}
		list = append(list, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (d *DB) ListGraphEdges(ctx context.Context, find *store.FindGraphEdge) ([]*store.EdgeView, int, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != nil {
		where, args = append(where, "e.user_id = ?"), append(args, *find.UserID)
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_edge e WHERE `+strings.Join(where, " AND "), args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count graph edges")
	}

	orderBy := "e.created_ts DESC, e.id"
	if find.OrderBy == store.EdgeOrderWeight {
		orderBy = "e.weight DESC, e.updated_ts DESC, e.id"
	}
	query := `
		SELECT e.id, e.from_node_id, e.to_node_id, e.weight, e.timestamps, e.source_entry_id,
			e.user_id, e.created_ts, e.updated_ts,
			f.label, f.type, t.label, t.type
		FROM graph_edge e
		JOIN graph_node f ON f.id = e.from_node_id
		JOIN graph_node t ON t.id = e.to_node_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + orderBy
	query, args = appendPage(query, args, find.Limit, find.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list graph edges")
	}
	defer rows.Close()

	list := []*store.EdgeView{}
	for rows.Next() {
		var (
			view       store.EdgeView
			timestamps string
		)
		if err := rows.Scan(
			&view.ID,
			&view.FromNodeID,
			&view.ToNodeID,
			&view.Weight,
			&timestamps,
			&view.SourceEntryID,
			&view.UserID,
			&view.CreatedTs,
			&view.UpdatedTs,
			&view.FromLabel,
			&view.FromType,
			&view.ToLabel,
			&view.ToType,
		); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan graph edge")
		}
		ts, err := decodeTimestamps(timestamps)
		if err != nil {
			return nil, 0, err
		}
		view.Timestamps = ts
		list = append(list, &view)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (d *DB) ListNodeStats(ctx context.Context, find *store.FindNodeStats) ([]*store.NodeStats, error) {
	where, args := []string{"1 = 1"}, []any{}
	connection := ""
	connectionColumns := "NULL, ''"
	if find.RelatedTo != nil {
		connection = `
		JOIN (
			SELECT to_node_id AS node_id, weight AS connection_weight, 'outgoing' AS connection_type
			FROM graph_edge WHERE from_node_id = ?
			UNION ALL
			SELECT from_node_id, weight, 'incoming'
			FROM graph_edge WHERE to_node_id = ?
		) c ON c.node_id = n.id`
		connectionColumns = "c.connection_weight, c.connection_type"
		args = append(args, *find.RelatedTo, *find.RelatedTo)
		where, args = append(where, "n.id <> ?"), append(args, *find.RelatedTo)
	}
	if find.UserID != nil {
		where, args = append(where, "n.user_id = ?"), append(args, *find.UserID)
	}

	query := `
		SELECT n.id, n.label, n.type, n.user_id, n.created_ts,
			COALESCE(o.edge_count, 0) + COALESCE(i.edge_count, 0) AS edge_count,
			COALESCE(o.avg_weight, 0.0) + COALESCE(i.avg_weight, 0.0) AS total_weight,
			COALESCE(ne.entry_count, 0) AS entry_count,
			` + connectionColumns + `
		FROM graph_node n
		LEFT JOIN (
			SELECT from_node_id AS node_id, COUNT(*) AS edge_count, AVG(weight) AS avg_weight
			FROM graph_edge GROUP BY from_node_id
		) o ON o.node_id = n.id
		LEFT JOIN (
			SELECT to_node_id AS node_id, COUNT(*) AS edge_count, AVG(weight) AS avg_weight
			FROM graph_edge GROUP BY to_node_id
		) i ON i.node_id = n.id
		LEFT JOIN (
			SELECT node_id, COUNT(DISTINCT entry_id) AS entry_count
			FROM graph_node_entry GROUP BY node_id
		) ne ON ne.node_id = n.id` + connection + `
		WHERE ` + strings.Join(where, " AND ")

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list node stats")
	}
	defer rows.Close()

	list := []*store.NodeStats{}
	for rows.Next() {
		var stats store.NodeStats
		if err := rows.Scan(
			&stats.NodeID,
			&stats.Label,
			&stats.Type,
			&stats.UserID,
			&stats.CreatedTs,
			&stats.EdgeCount,
			&stats.TotalWeight,
			&stats.EntryCount,
			&stats.ConnectionWeight,
			&stats.ConnectionType,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan node stats")
		}
		list = append(list, &stats)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// appendPage adds LIMIT/OFFSET. SQLite only accepts OFFSET after a LIMIT.
func appendPage(query string, args []any, limit, offset *int) (string, []any) {
	if limit == nil {
		if offset == nil {
			return query, args
		}
		query += " LIMIT -1"
	} else {
		query, args = query+" LIMIT ?", append(args, *limit)
	}
	if offset != nil {
		query, args = query+" OFFSET ?", append(args, *offset)
	}
	return query, args
}

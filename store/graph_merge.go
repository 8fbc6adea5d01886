package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MergeNode is a node proposed by one extraction.
type MergeNode struct {
	Label string
	Type  string
}

// MergeEdge is an edge proposed by one extraction, referencing node labels.
type MergeEdge struct {
	From   string
	To     string
	Weight float64
}

// MergeGraph is one entry's extraction to merge into the user's graph.
type MergeGraph struct {
	UserID  string
	EntryID string
	Nodes   []MergeNode
	Edges   []MergeEdge

	// Now is the mention instant; zero means time.Now().
	Now time.Time
}

// MergeStats counts what a merge changed.
type MergeStats struct {
	NodesCreated int
	NodesReused  int
	EntryLinks   int
	EdgesCreated int
	EdgesUpdated int
	// EdgesSkipped counts edges naming a label absent from the extraction's nodes.
	EdgesSkipped int
}

// MergeGraph upserts the extraction into the user's graph in one transaction.
//
// Nodes are deduplicated on (label, type, user_id) and linked to the entry.
// Edges are resolved through the labels of this extraction only; an edge naming
// an unknown label is skipped. An existing edge gets the mention appended, its
// weight replaced by the store's WeightPolicy and its source entry moved to this
// entry. Any failure rolls back the whole merge.
func (s *Store) MergeGraph(ctx context.Context, merge *MergeGraph) (*MergeStats, error) {
	if merge.UserID == "" || merge.EntryID == "" {
		return nil, errors.New("merge requires user id and entry id")
	}
	stats := &MergeStats{}
	if len(merge.Nodes) == 0 && len(merge.Edges) == 0 {
		return stats, nil
	}

	now := merge.Now
	if now.IsZero() {
		now = time.Now()
	}
	nowMs := now.UnixMilli()
	nowTs := now.Unix()

	tx, err := s.driver.BeginGraphTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin graph transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				slog.Warn("graph merge rollback failed", "entry_id", merge.EntryID, "error", err)
			}
		}
	}()

	nodeIDs := make(map[string]string, len(merge.Nodes))
	for _, proposed := range merge.Nodes {
		node, err := tx.FindNode(ctx, merge.UserID, proposed.Label, proposed.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to find node %q", proposed.Label)
		}
		if node != nil {
			stats.NodesReused++
		} else {
			var created bool
			node, created, err = tx.CreateNode(ctx, &Node{
				ID:        uuid.NewString(),
				Label:     proposed.Label,
				Type:      proposed.Type,
				UserID:    merge.UserID,
				CreatedTs: nowTs,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "failed to create node %q", proposed.Label)
			}
			if created {
				stats.NodesCreated++
			} else {
				stats.NodesReused++
			}
		}
		nodeIDs[proposed.Label] = node.ID

		linked, err := tx.LinkNodeEntry(ctx, node.ID, merge.EntryID, merge.UserID, nowTs)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to link node %q to entry", proposed.Label)
		}
		if linked {
			stats.EntryLinks++
		}
	}

	for _, proposed := range merge.Edges {
		fromID, fromOK := nodeIDs[proposed.From]
		toID, toOK := nodeIDs[proposed.To]
		if !fromOK || !toOK {
			stats.EdgesSkipped++
			slog.Warn("skipping edge with unresolved label",
				"user_id", merge.UserID,
				"entry_id", merge.EntryID,
				"from", proposed.From,
				"from_resolved", fromOK,
				"to", proposed.To,
				"to_resolved", toOK,
			)
			continue
		}

		edge, err := tx.FindEdge(ctx, merge.UserID, fromID, toID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to find edge %q -> %q", proposed.From, proposed.To)
		}
		if edge == nil {
			var created bool
			edge, created, err = tx.CreateEdge(ctx, &Edge{
				ID:            uuid.NewString(),
				FromNodeID:    fromID,
				ToNodeID:      toID,
				Weight:        proposed.Weight,
				Timestamps:    []int64{nowMs},
				SourceEntryID: merge.EntryID,
				UserID:        merge.UserID,
				CreatedTs:     nowTs,
				UpdatedTs:     nowTs,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "failed to create edge %q -> %q", proposed.From, proposed.To)
			}
			if created {
				stats.EdgesCreated++
				continue
			}
			// Lost a race with a concurrent merge: lock the winner's row and update it.
			edge, err = tx.FindEdge(ctx, merge.UserID, fromID, toID)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to find edge %q -> %q", proposed.From, proposed.To)
			}
			if edge == nil {
				return nil, errors.Errorf("edge %q -> %q vanished after conflict", proposed.From, proposed.To)
			}
		}

		edge.Weight = s.weightPolicy.Next(edge.Weight, len(edge.Timestamps), proposed.Weight)
		edge.Timestamps = append(edge.Timestamps, nowMs)
		edge.SourceEntryID = merge.EntryID
		edge.UpdatedTs = nowTs
		if err := tx.UpdateEdge(ctx, edge); err != nil {
			return nil, errors.Wrapf(err, "failed to update edge %q -> %q", proposed.From, proposed.To)
		}
		stats.EdgesUpdated++
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit graph merge")
	}
	committed = true

	s.invalidateGraphViews(ctx, merge.UserID)
	return stats, nil
}

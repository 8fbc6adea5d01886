package store

import (
	"sort"
)

// TopNodeScorer computes the display score of a ranked node.
type TopNodeScorer func(*NodeStats) float64

// ScoreTopNode is the default score: edge count plus total weight plus entry
// count, summed without normalization.
func ScoreTopNode(n *NodeStats) float64 {
	return float64(n.EdgeCount) + n.TotalWeight + float64(n.EntryCount)
}

// RankTopNodes scores every node and sorts it in place, returning at most limit
// nodes (all when limit <= 0).
//
// Without a related node: edge count, total weight, entry count, all descending.
// Relative to a node: connection weight, edge count, total weight, all descending.
// Remaining ties fall back to label then node id so the order is deterministic.
func RankTopNodes(nodes []*NodeStats, relative bool, limit int, score TopNodeScorer) []*NodeStats {
	if score == nil {
		score = ScoreTopNode
	}
	for _, n := range nodes {
		n.Score = score(n)
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if relative {
			if wa, wb := connectionWeight(a), connectionWeight(b); wa != wb {
				return wa > wb
			}
			if a.EdgeCount != b.EdgeCount {
				return a.EdgeCount > b.EdgeCount
			}
			if a.TotalWeight != b.TotalWeight {
				return a.TotalWeight > b.TotalWeight
			}
		} else {
			if a.EdgeCount != b.EdgeCount {
				return a.EdgeCount > b.EdgeCount
			}
			if a.TotalWeight != b.TotalWeight {
				return a.TotalWeight > b.TotalWeight
			}
			if a.EntryCount != b.EntryCount {
				return a.EntryCount > b.EntryCount
			}
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.NodeID < b.NodeID
	})

	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes
}

func connectionWeight(n *NodeStats) float64 {
	if n.ConnectionWeight == nil {
		return 0
	}
	return *n.ConnectionWeight
}

package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// SystemSetting model related methods.
	GetSystemSetting(ctx context.Context, name string) (string, error)
	UpsertSystemSetting(ctx context.Context, name, value string) error

	// JournalEntry model related methods.
	CreateJournalEntry(ctx context.Context, create *JournalEntry) (*JournalEntry, error)
	ListJournalEntries(ctx context.Context, find *FindJournalEntry) ([]*JournalEntry, int, error)
	UpdateJournalEntry(ctx context.Context, update *UpdateJournalEntry) error
	UpdateJournalEntryEmbedding(ctx context.Context, id string, embedding []float32) error
	FindJournalEntriesWithoutEmbedding(ctx context.Context, limit int) ([]*JournalEntry, error)
	SearchJournalEntries(ctx context.Context, opts *SearchJournalEntries) ([]*JournalEntryWithScore, error)

	// Graph read methods.
	ListGraphNodes(ctx context.Context, find *FindGraphNode) ([]*Node, int, error)
	ListGraphEdges(ctx context.Context, find *FindGraphEdge) ([]*EdgeView, int, error)
	ListNodeStats(ctx context.Context, find *FindNodeStats) ([]*NodeStats, error)

	// BeginGraphTx starts the transaction a graph merge runs in.
	BeginGraphTx(ctx context.Context) (GraphTx, error)
}

// GraphTx is the set of writes a graph merge performs inside one transaction.
// Find methods return nil, nil when nothing matches.
type GraphTx interface {
	FindNode(ctx context.Context, userID, label, nodeType string) (*Node, error)
	// CreateNode inserts the node unless (label, type, user_id) already exists,
	// in which case the existing row is returned with created=false.
	CreateNode(ctx context.Context, create *Node) (node *Node, created bool, err error)
	// LinkNodeEntry records that the entry mentions the node. Repeats are no-ops.
	LinkNodeEntry(ctx context.Context, nodeID, entryID, userID string, ts int64) (linked bool, err error)

	// FindEdge locks the edge for update where the dialect supports it.
	FindEdge(ctx context.Context, userID, fromNodeID, toNodeID string) (*Edge, error)
	// CreateEdge inserts the edge unless (from, to, user_id) already exists,
	// reporting created=false on conflict.
	CreateEdge(ctx context.Context, create *Edge) (edge *Edge, created bool, err error)
	UpdateEdge(ctx context.Context, update *Edge) error

	Commit() error
	Rollback() error
}

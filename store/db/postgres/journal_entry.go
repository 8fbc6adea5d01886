package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/store"
)

const journalEntryColumns = `id, user_id, content, embedding, metadata, title, emoji, summary, ai_summary, created_ts, updated_ts`

func (d *DB) CreateJournalEntry(ctx context.Context, create *store.JournalEntry) (*store.JournalEntry, error) {
	metadata, err := marshalMetadata(create.Metadata)
	if err != nil {
		return nil, err
	}
	var embedding any
	if len(create.Embedding) > 0 {
		embedding = pgvector.NewVector(create.Embedding)
	}

	stmt := `
		INSERT INTO journal_entry (` + journalEntryColumns + `)
		VALUES (` + placeholders(11) + `)
		RETURNING created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.UserID,
		create.Content,
		embedding,
		string(metadata),
		create.Title,
		create.Emoji,
		create.Summary,
		create.AISummary,
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create journal entry")
	}
	return create, nil
}

func (d *DB) ListJournalEntries(ctx context.Context, find *store.FindJournalEntry) ([]*store.JournalEntry, int, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_entry WHERE `+strings.Join(where, " AND "), args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count journal entries")
	}

	query := `
		SELECT ` + journalEntryColumns + `
		FROM journal_entry
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query, args = query+" LIMIT "+placeholder(len(args)+1), append(args, *find.Limit)
	}
	if find.Offset != nil {
		query, args = query+" OFFSET "+placeholder(len(args)+1), append(args, *find.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list journal entries")
	}
	defer rows.Close()

	list := []*store.JournalEntry{}
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (d *DB) UpdateJournalEntry(ctx context.Context, update *store.UpdateJournalEntry) error {
	set, args := []string{"updated_ts = " + placeholder(1)}, []any{update.UpdatedTs}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Emoji; v != nil {
		set, args = append(set, "emoji = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Summary; v != nil {
		set, args = append(set, "summary = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.AISummary; v != nil {
		set, args = append(set, "ai_summary = "+placeholder(len(args)+1)), append(args, *v)
	}

	stmt := `UPDATE journal_entry SET ` + strings.Join(set, ", ") +
		` WHERE id = ` + placeholder(len(args)+1) + ` AND user_id = ` + placeholder(len(args)+2)
	args = append(args, update.ID, update.UserID)

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update journal entry")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "journal entry %s", update.ID)
	}
	return nil
}

func (d *DB) UpdateJournalEntryEmbedding(ctx context.Context, id string, embedding []float32) error {
	stmt := `UPDATE journal_entry SET embedding = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	result, err := d.db.ExecContext(ctx, stmt, pgvector.NewVector(embedding), id)
	if err != nil {
		return errors.Wrap(err, "failed to update journal entry embedding")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "journal entry %s", id)
	}
	return nil
}

func (d *DB) FindJournalEntriesWithoutEmbedding(ctx context.Context, limit int) ([]*store.JournalEntry, error) {
	query := `
		SELECT ` + journalEntryColumns + `
		FROM journal_entry
		WHERE embedding IS NULL
		ORDER BY created_ts ASC
		LIMIT ` + placeholder(1)
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find journal entries without embedding")
	}
	defer rows.Close()

	list := []*store.JournalEntry{}
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchJournalEntries ranks entries by cosine similarity using pgvector.
// The <=> operator is cosine distance, so ascending distance is most similar first.
func (d *DB) SearchJournalEntries(ctx context.Context, opts *store.SearchJournalEntries) ([]*store.JournalEntryWithScore, error) {
	query := `
		SELECT ` + journalEntryColumns + `,
			1 - (embedding <=> ` + placeholder(1) + `) AS score
		FROM journal_entry
		WHERE user_id = ` + placeholder(2) + `
			AND embedding IS NOT NULL
		ORDER BY embedding <=> ` + placeholder(1) + `
		LIMIT ` + placeholder(3)

	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(opts.Vector), opts.UserID, opts.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search journal entries")
	}
	defer rows.Close()

	results := []*store.JournalEntryWithScore{}
	for rows.Next() {
		var result store.JournalEntryWithScore
		entry, err := scanJournalEntry(rows, &result.Score)
		if err != nil {
			return nil, err
		}
		result.Entry = entry
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJournalEntry(row scanner, extra ...any) (*store.JournalEntry, error) {
	var (
		entry    store.JournalEntry
		vector   *pgvector.Vector
		metadata []byte
	)
	dest := append([]any{
		&entry.ID,
		&entry.UserID,
		&entry.Content,
		&vector,
		&metadata,
		&entry.Title,
		&entry.Emoji,
		&entry.Summary,
		&entry.AISummary,
		&entry.CreatedTs,
		&entry.UpdatedTs,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "failed to scan journal entry")
	}
	if vector != nil {
		entry.Embedding = vector.Slice()
	}
	if len(metadata) > 0 {
		entry.Metadata = &store.EntryMetadata{}
		if err := json.Unmarshal(metadata, entry.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal journal entry metadata")
		}
	}
	return &entry, nil
}

func marshalMetadata(metadata *store.EntryMetadata) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal journal entry metadata")
	}
	return bytes, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/store"
)

const journalEntryColumns = `id, user_id, content, embedding, metadata, title, emoji, summary, ai_summary, created_ts, updated_ts`

func (d *DB) CreateJournalEntry(ctx context.Context, create *store.JournalEntry) (*store.JournalEntry, error) {
	metadata := "{}"
	if create.Metadata != nil {
		bytes, err := json.Marshal(create.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal journal entry metadata")
		}
		metadata = string(bytes)
	}
	embedding, err := encodeEmbedding(create.Embedding)
	if err != nil {
		return nil, err
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
		metadata,
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
	query, args = appendPage(query, args, find.Limit, find.Offset)

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
	set, args := []string{"updated_ts = ?"}, []any{update.UpdatedTs}
	if v := update.Title; v != nil {
		set, args = append(set, "title = ?"), append(args, *v)
	}
	if v := update.Emoji; v != nil {
		set, args = append(set, "emoji = ?"), append(args, *v)
	}
	if v := update.Summary; v != nil {
		set, args = append(set, "summary = ?"), append(args, *v)
	}
	if v := update.AISummary; v != nil {
		set, args = append(set, "ai_summary = ?"), append(args, *v)
	}
	args = append(args, update.ID, update.UserID)

	result, err := d.db.ExecContext(ctx, `UPDATE journal_entry SET `+strings.Join(set, ", ")+` WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update journal entry")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "journal entry %s", update.ID)
	}
	return nil
}

func (d *DB) UpdateJournalEntryEmbedding(ctx context.Context, id string, embedding []float32) error {
	encoded, err := encodeEmbedding(embedding)
	if err != nil {
		return err
	}
	result, err := d.db.ExecContext(ctx, `UPDATE journal_entry SET embedding = ? WHERE id = ?`, encoded, id)
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
		LIMIT ?`
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

// SearchJournalEntries is not supported for SQLite.
func (*DB) SearchJournalEntries(context.Context, *store.SearchJournalEntries) ([]*store.JournalEntryWithScore, error) {
	return nil, store.ErrVectorSearchUnsupported
}

func scanJournalEntry(rows *sql.Rows) (*store.JournalEntry, error) {
	var (
		entry     store.JournalEntry
		embedding sql.NullString
		metadata  string
	)
	if err := rows.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Content,
		&embedding,
		&metadata,
		&entry.Title,
		&entry.Emoji,
		&entry.Summary,
		&entry.AISummary,
		&entry.CreatedTs,
		&entry.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan journal entry")
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &entry.Embedding); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal journal entry embedding")
		}
	}
	if metadata != "" {
		entry.Metadata = &store.EntryMetadata{}
		if err := json.Unmarshal([]byte(metadata), entry.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal journal entry metadata")
		}
	}
	return &entry, nil
}

// encodeEmbedding returns nil (NULL) for an empty vector.
func encodeEmbedding(embedding []float32) (any, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	bytes, err := json.Marshal(embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embedding")
	}
	return string(bytes), nil
}

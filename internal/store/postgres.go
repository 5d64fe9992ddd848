package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"npa/draftbuilder/internal/builder"
	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/draft"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) ListDrafts(ctx context.Context) ([]DraftSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, title, revision, commit_hash, updated_at
		FROM drafts
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	items := make([]DraftSummary, 0)
	for rows.Next() {
		var item DraftSummary
		if err := rows.Scan(&item.ID, &item.TemplateID, &item.Title, &item.Revision, &item.CommitHash, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return items, nil
}

// GetDraft returns sql.ErrNoRows when the draft does not exist.
func (s *PostgresStore) GetDraft(ctx context.Context, draftID string) (Draft, error) {
	var item Draft
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, template_id, title, document, revision, commit_hash, created_by_name, created_at, updated_at
		FROM drafts
		WHERE id=$1
	`, draftID).Scan(
		&item.ID,
		&item.TemplateID,
		&item.Title,
		&raw,
		&item.Revision,
		&item.CommitHash,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Draft{}, err
	}
	if err := json.Unmarshal(raw, &item.Document); err != nil {
		return Draft{}, fmt.Errorf("decode draft document %s: %w", draftID, err)
	}
	return item, nil
}

func (s *PostgresStore) InsertDraft(ctx context.Context, item Draft) error {
	raw, err := json.Marshal(item.Document)
	if err != nil {
		return fmt.Errorf("marshal draft document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, template_id, title, document, created_by_name)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, item.ID, item.TemplateID, item.Title, string(raw), item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

// SaveSnapshot stores the document and upserts every field row in one
// transaction. Older revisions never overwrite newer ones.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap builder.Snapshot, commitHash string) error {
	raw, err := json.Marshal(snap.Document)
	if err != nil {
		return fmt.Errorf("marshal snapshot document: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE drafts
		SET title=$2, document=$3::jsonb, revision=$4, commit_hash=COALESCE(NULLIF($5, ''), commit_hash), updated_at=NOW()
		WHERE id=$1 AND revision <= $4
	`, snap.DraftID, snap.Title, string(raw), snap.Revision, commitHash)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update draft %s: %w", snap.DraftID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update draft rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM drafts WHERE id=$1)`, snap.DraftID).Scan(&exists); err != nil {
			return fmt.Errorf("check draft %s: %w", snap.DraftID, err)
		}
		if !exists {
			return fmt.Errorf("save draft %s: %w", snap.DraftID, sql.ErrNoRows)
		}
		// a newer revision is already stored
		return nil
	}

	labels := make(map[string]string)
	for _, f := range snap.Document.Fields() {
		labels[f.Key] = f.Label
	}
	for _, f := range snap.Fields {
		items := f.BulletItems
		if items == nil {
			items = []string{}
		}
		encodedItems, err := json.Marshal(items)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal bullet items %s: %w", f.Key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO draft_fields (draft_id, field_key, section_id, label, type, value, yes_no_value, bullet_items, lineage, strategy, confidence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, NOW())
			ON CONFLICT (draft_id, field_key) DO UPDATE SET
				section_id=EXCLUDED.section_id,
				label=EXCLUDED.label,
				type=EXCLUDED.type,
				value=EXCLUDED.value,
				yes_no_value=EXCLUDED.yes_no_value,
				bullet_items=EXCLUDED.bullet_items,
				lineage=EXCLUDED.lineage,
				strategy=EXCLUDED.strategy,
				confidence=EXCLUDED.confidence,
				updated_at=NOW()
		`, snap.DraftID, f.Key, f.SectionID, labels[f.Key], string(f.Type), f.Value, f.YesNoValue, string(encodedItems), string(f.Lineage), string(f.Strategy), f.Confidence)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert field %s: %w", f.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFieldRows(ctx context.Context, draftID string) ([]FieldRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT draft_id, field_key, section_id, label, type, value, lineage, strategy, confidence, updated_at
		FROM draft_fields
		WHERE draft_id=$1
		ORDER BY section_id ASC, field_key ASC
	`, draftID)
	if err != nil {
		return nil, fmt.Errorf("list field rows: %w", err)
	}
	defer rows.Close()

	items := make([]FieldRow, 0)
	for rows.Next() {
		var item FieldRow
		var confidence sql.NullFloat64
		if err := rows.Scan(
			&item.DraftID,
			&item.FieldKey,
			&item.SectionID,
			&item.Label,
			&item.Type,
			&item.Value,
			&item.Lineage,
			&item.Strategy,
			&confidence,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		if confidence.Valid {
			c := confidence.Float64
			item.Confidence = &c
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field rows: %w", err)
	}
	return items, nil
}

// LineageCounts reports how many saved fields of a draft carry each lineage.
func (s *PostgresStore) LineageCounts(ctx context.Context, draftID string) ([]LineageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lineage, COUNT(*)
		FROM draft_fields
		WHERE draft_id=$1
		GROUP BY lineage
		ORDER BY lineage ASC
	`, draftID)
	if err != nil {
		return nil, fmt.Errorf("count lineage: %w", err)
	}
	defer rows.Close()

	items := make([]LineageCount, 0)
	for rows.Next() {
		var item LineageCount
		var lineage string
		if err := rows.Scan(&lineage, &item.Count); err != nil {
			return nil, fmt.Errorf("scan lineage count: %w", err)
		}
		item.Lineage = draft.Lineage(lineage)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lineage counts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, draftID string) ([]comments.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draft_id, field_key, author_name, body, resolved, COALESCE(resolved_by_name, ''), resolved_at, created_at
		FROM comments
		WHERE draft_id=$1
		ORDER BY created_at ASC, id ASC
	`, draftID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]comments.Comment, 0)
	for rows.Next() {
		var item comments.Comment
		var resolvedAt sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.DraftID,
			&item.FieldKey,
			&item.Author,
			&item.Text,
			&item.Resolved,
			&item.ResolvedBy,
			&resolvedAt,
			&item.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if resolvedAt.Valid {
			at := resolvedAt.Time
			item.ResolvedAt = &at
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment comments.Comment) error {
	createdAt := comment.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, draft_id, field_key, author_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, comment.ID, comment.DraftID, comment.FieldKey, comment.Author, comment.Text, createdAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ResolveComment reports false when the comment is unknown or already resolved.
func (s *PostgresStore) ResolveComment(ctx context.Context, draftID, commentID, resolvedBy string, resolvedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET resolved=TRUE, resolved_by_name=$3, resolved_at=$4
		WHERE draft_id=$1 AND id=$2 AND resolved=FALSE
	`, draftID, commentID, resolvedBy, resolvedAt)
	if err != nil {
		return false, fmt.Errorf("resolve comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve comment rows: %w", err)
	}
	return affected > 0, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

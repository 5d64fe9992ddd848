package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across drafts, draft_fields and comments
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	dataSQL, countSQL, args := buildFTSQuery(q)
	if dataSQL == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DraftID, &r.FieldKey); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// buildFTSQuery returns the data and count statements for q and their shared
// arguments. Blank text yields empty statements.
func buildFTSQuery(q Query) (string, string, []any) {
	if strings.TrimSpace(q.Text) == "" {
		return "", "", nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	draftFilter := ""
	if q.FilterDraftID != "" {
		args = append(args, q.FilterDraftID)
		draftFilter = " AND %s = $2"
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultDraft {
		where := "d.fts @@ " + tsQuery
		if draftFilter != "" {
			where += fmt.Sprintf(draftFilter, "d.id")
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'draft'::text AS type, d.id, d.title,
				d.template_id AS snippet,
				d.id AS draft_id, ''::text AS field_key,
				ts_rank(d.fts, %s) AS rank
			FROM drafts d
			WHERE %s`, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultField {
		where := "f.fts @@ " + tsQuery
		if draftFilter != "" {
			where += fmt.Sprintf(draftFilter, "f.draft_id")
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'field'::text AS type, f.draft_id || '__' || f.field_key AS id, f.label AS title,
				ts_headline('english', coalesce(f.value, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				f.draft_id, f.field_key,
				ts_rank(f.fts, %s) AS rank
			FROM draft_fields f
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultComment {
		where := "c.fts @@ " + tsQuery
		if draftFilter != "" {
			where += fmt.Sprintf(draftFilter, "c.draft_id")
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, c.author_name AS title,
				ts_headline('english', coalesce(c.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.draft_id, c.field_key,
				ts_rank(c.fts, %s) AS rank
			FROM comments c
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return "", "", nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, draft_id, field_key
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)
	return dataSQL, countSQL, args
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DraftRecord, []FieldRecord, []CommentRecord, error) {
	draftRows, err := p.db.QueryContext(ctx, `SELECT id, title, template_id FROM drafts`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load drafts: %w", err)
	}
	defer draftRows.Close()

	drafts := make([]DraftRecord, 0)
	for draftRows.Next() {
		var d DraftRecord
		if err := draftRows.Scan(&d.ID, &d.Title, &d.TemplateID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := draftRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate drafts: %w", err)
	}

	fieldRows, err := p.db.QueryContext(ctx, `
		SELECT draft_id, field_key, section_id, label, value, lineage
		FROM draft_fields
		WHERE value <> ''
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load draft fields: %w", err)
	}
	defer fieldRows.Close()

	fields := make([]FieldRecord, 0)
	for fieldRows.Next() {
		var f FieldRecord
		if err := fieldRows.Scan(&f.DraftID, &f.FieldKey, &f.SectionID, &f.Label, &f.Value, &f.Lineage); err != nil {
			return nil, nil, nil, fmt.Errorf("scan draft field: %w", err)
		}
		f.ID = FieldDocumentID(f.DraftID, f.FieldKey)
		fields = append(fields, f)
	}
	if err := fieldRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate draft fields: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT id, draft_id, field_key, author_name, body, resolved
		FROM comments
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.DraftID, &c.FieldKey, &c.Author, &c.Body, &c.Resolved); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return drafts, fields, comments, nil
}

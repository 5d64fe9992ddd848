package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"npa/draftbuilder/internal/builder"
	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/util"
)

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func insertTestDraft(t *testing.T, s *PostgresStore) Draft {
	t.Helper()
	item := Draft{
		ID:         util.NewID("draft"),
		TemplateID: "npa-standard",
		Title:      "Green Deposit",
		CreatedBy:  "Avery",
		Document: draft.Document{
			ID:    "npa-standard",
			Title: "Green Deposit",
			Sections: []draft.Section{{
				ID: "PC.I",
				Fields: []draft.Field{
					{Key: "product_name", Label: "Product name", Type: draft.TypeText, Lineage: draft.LineageManual},
				},
			}},
		},
	}
	if err := s.InsertDraft(context.Background(), item); err != nil {
		t.Fatalf("InsertDraft() error = %v", err)
	}
	return item
}

func TestCommentsAuditGuardBlocksEditAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	item := insertTestDraft(t, s)

	comment := comments.Comment{
		ID:        util.NewID("cmt"),
		DraftID:   item.ID,
		FieldKey:  "product_name",
		Author:    "Avery",
		Text:      "Please confirm the name",
		Timestamp: time.Now().UTC(),
	}
	if err := s.InsertComment(ctx, comment); err != nil {
		t.Fatalf("InsertComment() error = %v", err)
	}

	_, err := s.DB().ExecContext(ctx, `UPDATE comments SET body='edited' WHERE id=$1`, comment.ID)
	assertGuardError(t, err, "comments are append-only; only resolving is allowed")

	_, err = s.DB().ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, comment.ID)
	assertGuardError(t, err, "comments are append-only; DELETE is not allowed")

	ok, err := s.ResolveComment(ctx, item.ID, comment.ID, "Jordan", time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("ResolveComment() = %v, %v", ok, err)
	}
	ok, err = s.ResolveComment(ctx, item.ID, comment.ID, "Jordan", time.Now().UTC())
	if err != nil || ok {
		t.Fatalf("second ResolveComment() = %v, %v; want false", ok, err)
	}

	_, err = s.DB().ExecContext(ctx, `UPDATE comments SET resolved=FALSE WHERE id=$1`, comment.ID)
	assertGuardError(t, err, "comments are append-only; only resolving is allowed")

	list, err := s.ListComments(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(list) != 1 || !list[0].Resolved || list[0].ResolvedBy != "Jordan" || list[0].ResolvedAt == nil {
		t.Fatalf("unexpected comments: %+v", list)
	}
}

func TestSaveSnapshotUpsertsFieldsAndKeepsNewestRevision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	item := insertTestDraft(t, s)

	doc := item.Document.Clone()
	doc.Sections[0].Fields[0].Value = "Green Deposit"
	snap := builder.Snapshot{
		DraftID:  item.ID,
		Title:    "Green Deposit",
		Revision: 3,
		Document: doc,
		Fields: []builder.FieldSnapshot{{
			Key: "product_name", SectionID: "PC.I", Type: draft.TypeText, Value: "Green Deposit", Lineage: draft.LineageManual,
		}},
	}
	if err := s.SaveSnapshot(ctx, snap, "abc1234"); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	stale := snap
	stale.Revision = 2
	stale.Title = "Stale"
	if err := s.SaveSnapshot(ctx, stale, "def5678"); err != nil {
		t.Fatalf("stale SaveSnapshot() error = %v", err)
	}

	got, err := s.GetDraft(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if got.Revision != 3 || got.CommitHash != "abc1234" || got.Title != "Green Deposit" {
		t.Fatalf("unexpected draft: %+v", got)
	}
	if f, ok := got.Document.Field("product_name"); !ok || f.Value != "Green Deposit" {
		t.Fatalf("document not stored: %+v", f)
	}

	rows, err := s.ListFieldRows(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListFieldRows() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Label != "Product name" || rows[0].Value != "Green Deposit" {
		t.Fatalf("unexpected field rows: %+v", rows)
	}

	missing := snap
	missing.DraftID = "draft_missing"
	if err := s.SaveSnapshot(ctx, missing, ""); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for unknown draft, got %v", err)
	}
}

func assertGuardError(t *testing.T, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected statement to be blocked, but it succeeded")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}
	if pgErr.Message != message {
		t.Fatalf("unexpected error message: %s", pgErr.Message)
	}
}

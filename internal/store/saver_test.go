package store

import (
	"context"
	"errors"
	"testing"

	"npa/draftbuilder/internal/builder"
	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/gitrepo"
)

type fakeWriter struct {
	saveFn func(ctx context.Context, snap builder.Snapshot, commitHash string) error
	hashes []string
}

func (f *fakeWriter) SaveSnapshot(ctx context.Context, snap builder.Snapshot, commitHash string) error {
	f.hashes = append(f.hashes, commitHash)
	if f.saveFn != nil {
		return f.saveFn(ctx, snap, commitHash)
	}
	return nil
}

func testSnapshot(revision uint64, summary string) builder.Snapshot {
	return builder.Snapshot{
		DraftID:  "draft-1",
		Title:    "Green Deposit",
		Revision: revision,
		Document: draft.Document{
			ID:    "npa-standard",
			Title: "Green Deposit",
			Sections: []draft.Section{{
				ID:     "PC.I",
				Fields: []draft.Field{{Key: "summary", Type: draft.TypeTextarea, Value: summary}},
			}},
		},
	}
}

func TestDraftSaverCommitsThenRecordsHash(t *testing.T) {
	repos := gitrepo.New(t.TempDir())
	writer := &fakeWriter{}
	var saved []gitrepo.CommitInfo
	saver := &DraftSaver{
		Writer:    writer,
		Committer: repos,
		OnSaved: func(_ context.Context, _ builder.Snapshot, commit gitrepo.CommitInfo) {
			saved = append(saved, commit)
		},
	}

	if err := saver.Save(context.Background(), testSnapshot(1, "first")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := saver.Save(context.Background(), testSnapshot(2, "first")); err != nil {
		t.Fatalf("Save() unchanged error = %v", err)
	}

	if len(writer.hashes) != 2 || writer.hashes[0] == "" || writer.hashes[0] != writer.hashes[1] {
		t.Fatalf("unexpected recorded hashes: %v", writer.hashes)
	}
	if len(saved) != 2 || saved[0].Unchanged || !saved[1].Unchanged {
		t.Fatalf("unexpected OnSaved calls: %+v", saved)
	}
	history, err := repos.History("draft-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Message != "Save revision 1" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestDraftSaverWriterFailureFailsSave(t *testing.T) {
	boom := errors.New("db down")
	called := false
	saver := &DraftSaver{
		Writer: &fakeWriter{saveFn: func(context.Context, builder.Snapshot, string) error {
			return boom
		}},
		Committer: gitrepo.New(t.TempDir()),
		OnSaved: func(context.Context, builder.Snapshot, gitrepo.CommitInfo) {
			called = true
		},
	}

	err := saver.Save(context.Background(), testSnapshot(1, "first"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
	if called {
		t.Fatal("OnSaved must not run after a failed save")
	}
}

func TestDraftSaverHonoursCancelledContext(t *testing.T) {
	writer := &fakeWriter{}
	saver := &DraftSaver{Writer: writer}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := saver.Save(ctx, testSnapshot(1, "x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(writer.hashes) != 0 {
		t.Fatal("writer must not be called")
	}
}

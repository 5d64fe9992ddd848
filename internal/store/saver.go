package store

import (
	"context"
	"fmt"

	"npa/draftbuilder/internal/builder"
	"npa/draftbuilder/internal/gitrepo"
)

type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snap builder.Snapshot, commitHash string) error
}

type SnapshotCommitter interface {
	CommitSnapshot(draftID string, content gitrepo.Content, author, message string) (gitrepo.CommitInfo, error)
}

// DraftSaver is the session persister: every save becomes a commit in the
// draft's history and then a row update carrying that commit hash.
type DraftSaver struct {
	Writer    SnapshotWriter
	Committer SnapshotCommitter
	Author    string
	// OnSaved runs after both writes succeeded.
	OnSaved func(ctx context.Context, snap builder.Snapshot, commit gitrepo.CommitInfo)
}

func (s *DraftSaver) Save(ctx context.Context, snap builder.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var commit gitrepo.CommitInfo
	if s.Committer != nil {
		var err error
		commit, err = s.Committer.CommitSnapshot(snap.DraftID, gitrepo.Content{
			DraftID:  snap.DraftID,
			Title:    snap.Title,
			Revision: snap.Revision,
			Document: snap.Document,
		}, s.Author, fmt.Sprintf("Save revision %d", snap.Revision))
		if err != nil {
			return fmt.Errorf("commit draft %s: %w", snap.DraftID, err)
		}
	}

	if s.Writer != nil {
		if err := s.Writer.SaveSnapshot(ctx, snap, commit.Hash); err != nil {
			return fmt.Errorf("store draft %s: %w", snap.DraftID, err)
		}
	}

	if s.OnSaved != nil {
		s.OnSaved(ctx, snap, commit)
	}
	return nil
}

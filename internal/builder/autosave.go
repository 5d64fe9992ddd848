package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"npa/draftbuilder/internal/draft"
	"npa/draftbuilder/internal/logx"
)

// startAutosaveLocked starts the ticker loop. Ticks save with the session
// context, so stopping the loop never aborts a save already running.
func (s *Session) startAutosaveLocked() {
	loopCtx, stop := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.stopAutosave = stop
	s.autosaveDone = done
	s.wg.Add(1)
	go s.autosaveLoop(loopCtx, done)
}

func (s *Session) autosaveLoop(ctx context.Context, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	ticker := time.NewTicker(s.opts.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.save(s.ctx, "autosave"); err != nil && err != ErrSaveInProgress && err != ErrClosed {
				logx.Warn().Err(err).Str("draft", s.id).Msg("autosave failed")
			}
		}
	}
}

// Flush stops the autosave loop, waits for any save still running and then
// saves until the persisted revision matches the session. On failure the
// autosave loop is restarted and the session stays usable.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stopAutosave, s.autosaveDone
	s.mu.Unlock()
	stop()
	<-done

	err := s.flush(ctx)
	if err != nil {
		s.mu.Lock()
		if !s.closed {
			s.startAutosaveLocked()
		}
		s.mu.Unlock()
	}
	return err
}

func (s *Session) flush(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		for s.inFlight {
			s.saveIdle.Wait()
		}
		closed, clean := s.closed, s.status == StatusSaved
		s.mu.Unlock()

		switch {
		case closed:
			return ErrClosed
		case clean:
			return nil
		case attempt == flushAttempts:
			return fmt.Errorf("flush draft %s: still unsaved after %d saves", s.id, flushAttempts)
		}

		err := s.save(ctx, "flush")
		if err != nil && !errors.Is(err, ErrSaveInProgress) {
			return err
		}
	}
}

// Save persists the current snapshot now. It returns ErrSaveInProgress
// when another save has not settled yet.
func (s *Session) Save(ctx context.Context) error {
	return s.save(ctx, "manual")
}

// save runs one save cycle: saving, the persister call bounded by
// SaveTimeout, then saved on success or unsaved on failure or timeout.
// Saves are unconditional; there is no dirty check.
func (s *Session) save(ctx context.Context, trigger string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	s.inFlight = true
	s.status = StatusSaving
	s.phase = PhaseSaving
	snap := s.snapshotLocked()
	s.mu.Unlock()

	started := time.Now()
	err := s.persist(ctx, snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.saveIdle.Broadcast()
	s.inFlight = false
	s.phase = PhaseEditing
	if err != nil {
		s.status = StatusUnsaved
		s.saveErr = err.Error()
		return fmt.Errorf("save draft %s: %w", s.id, err)
	}
	s.savedAt = time.Now().UTC()
	s.saveErr = ""
	// edits that landed while the save was running are not in snap
	if s.revision == snap.Revision {
		s.status = StatusSaved
	} else {
		s.status = StatusUnsaved
	}
	logx.Debug().Str("draft", s.id).Str("trigger", trigger).Uint64("revision", snap.Revision).Dur("took", time.Since(started)).Msg("draft saved")
	return nil
}

// persist calls the persister and gives up once SaveTimeout elapses, even
// if the persister ignores its context.
func (s *Session) persist(ctx context.Context, snap Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.persister.Save(ctx, snap)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("persist snapshot: %w", ctx.Err())
	}
}

// Snapshot returns the field value and lineage state handed to persistence.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	doc := s.doc.Clone()
	snap := Snapshot{
		DraftID:  s.id,
		Title:    doc.Title,
		Revision: s.revision,
		TakenAt:  time.Now().UTC(),
		Document: doc,
	}
	for i := range doc.Sections {
		section := &doc.Sections[i]
		for _, f := range section.AllFields() {
			snap.Fields = append(snap.Fields, fieldSnapshot(section.ID, f))
		}
	}
	return snap
}

func fieldSnapshot(sectionID string, f *draft.Field) FieldSnapshot {
	out := FieldSnapshot{
		Key:        f.Key,
		SectionID:  sectionID,
		Type:       f.Type,
		Value:      f.Value,
		YesNoValue: f.YesNoValue,
		Lineage:    f.Lineage,
		Strategy:   f.Strategy,
	}
	if len(f.BulletItems) > 0 {
		out.BulletItems = append([]string(nil), f.BulletItems...)
	}
	if f.Confidence != nil {
		c := *f.Confidence
		out.Confidence = &c
	}
	return out
}

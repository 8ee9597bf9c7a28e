package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/identity"
	"github.com/pkordes/lesson-invoices/backend/internal/reconcile"
	"github.com/pkordes/lesson-invoices/backend/internal/repo"
)

// Upload states.
const (
	stateParsed          = "parsed"
	stateDuplicate       = "duplicate"
	stateConflictPending = "conflict_pending"
	stateResolvedReplace = "resolved_replace"
	stateResolvedMerge   = "resolved_merge"
	stateResolvedCancel  = "resolved_cancel"
	stateStored          = "stored"
)

// Upload triggers.
const (
	triggerDuplicate = "duplicate"
	triggerConflict  = "conflict"
	triggerStore     = "store"
	triggerReplace   = "replace"
	triggerMerge     = "merge"
	triggerCancel    = "cancel"
	triggerCommit    = "commit"
)

// Parser turns spreadsheet bytes into a ParsedFile. *ingest.Parser satisfies it.
type Parser interface {
	Parse(filename string, data []byte) (domain.ParsedFile, error)
}

// UploadFile is one file of a multi-file upload.
type UploadFile struct {
	Filename string
	Data     []byte
}

// upload carries one file through the state machine.
type upload struct {
	id       uuid.UUID
	filename string
	hash     string
	parsed   domain.ParsedFile
	existing domain.StoredFile
	diff     domain.Diff
	fileID   uuid.UUID
	created  time.Time
	machine  *stateless.StateMachine

	// resolving is set while a decision is being applied.
	resolving bool
}

// UploadService runs the upload flow: parse, hash, dedup, reconcile, and store.
// Conflicting uploads wait in memory for a replace, merge or cancel decision.
type UploadService struct {
	repo     repo.InvoiceRepo
	parser   Parser
	logger   *slog.Logger
	now      func() time.Time
	onChange func()

	mu      sync.Mutex
	pending map[uuid.UUID]*upload
}

// NewUploadService constructs an UploadService.
func NewUploadService(r repo.InvoiceRepo, p Parser, logger *slog.Logger) *UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{
		repo:    r,
		parser:  p,
		logger:  logger,
		now:     time.Now,
		pending: map[uuid.UUID]*upload{},
	}
}

// OnChange registers fn to run whenever the stored row set changes.
func (s *UploadService) OnChange(fn func()) {
	s.onChange = fn
}

// newMachine wires the upload state machine. Side effects run on entry to the
// state that owns them; an error from a side effect aborts the transition.
func (s *UploadService) newMachine(u *upload, initial string) *stateless.StateMachine {
	m := stateless.NewStateMachine(initial)

	m.Configure(stateParsed).
		Permit(triggerDuplicate, stateDuplicate).
		Permit(triggerConflict, stateConflictPending).
		Permit(triggerStore, stateStored)

	m.Configure(stateConflictPending).
		OnEntry(func(ctx context.Context, _ ...any) error { return s.computeDiff(ctx, u) }).
		Permit(triggerReplace, stateResolvedReplace).
		Permit(triggerMerge, stateResolvedMerge).
		Permit(triggerCancel, stateResolvedCancel)

	m.Configure(stateResolvedReplace).
		OnEntry(func(ctx context.Context, _ ...any) error {
			id, err := s.repo.Replace(ctx, u.existing.ID, u.filename, u.hash, u.parsed)
			u.fileID = id
			return err
		}).
		Permit(triggerCommit, stateStored)

	m.Configure(stateResolvedMerge).
		OnEntry(func(ctx context.Context, _ ...any) error {
			id, err := s.repo.Merge(ctx, u.existing.ID, u.filename, u.hash, u.parsed)
			u.fileID = id
			return err
		}).
		Permit(triggerCommit, stateStored)

	m.Configure(stateStored).
		OnEntryFrom(triggerStore, func(ctx context.Context, _ ...any) error {
			id, err := s.repo.Save(ctx, u.filename, u.hash, u.parsed)
			u.fileID = id
			return err
		}).
		OnEntry(func(context.Context, ...any) error {
			s.changed()
			return nil
		})

	return m
}

func (s *UploadService) computeDiff(ctx context.Context, u *upload) error {
	rows, err := s.repo.RowsByFile(ctx, u.existing.ID)
	if err != nil {
		return err
	}
	u.diff = reconcile.Diff(rows, u.parsed.Rows)
	return nil
}

func (s *UploadService) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Upload processes one file.
//
//   - identical content already stored: duplicate, nothing written
//   - a stored file has the same name: conflict, diff returned with a pending id
//   - otherwise: stored
//
// Parse failures wrap domain.ErrParse.
func (s *UploadService) Upload(ctx context.Context, filename string, data []byte) (domain.UploadOutcome, error) {
	parsed, err := s.parser.Parse(filename, data)
	if err != nil {
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Upload: %w", err)
	}

	u := &upload{
		id:       uuid.New(),
		filename: filename,
		hash:     identity.Hash(data),
		parsed:   parsed,
		created:  s.now(),
	}
	u.machine = s.newMachine(u, stateParsed)
	out := domain.UploadOutcome{Filename: filename, RowCount: len(parsed.Rows)}

	dup, err := s.repo.FindByHash(ctx, u.hash)
	switch {
	case err == nil:
		if err := u.machine.FireCtx(ctx, triggerDuplicate); err != nil {
			return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Upload: %w", err)
		}
		s.logger.Info("duplicate upload skipped", "filename", filename, "file_id", dup.ID)
		out.Status = domain.UploadDuplicate
		out.FileID = &dup.ID
		return out, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Upload: %w", err)
	}

	existing, err := s.repo.FindByFilename(ctx, filename)
	switch {
	case err == nil:
		u.existing = existing
		if err := u.machine.FireCtx(ctx, triggerConflict); err != nil {
			return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Upload: %w", err)
		}
		s.mu.Lock()
		s.pending[u.id] = u
		s.mu.Unlock()

		s.logger.Info("upload conflicts with stored file", "filename", filename,
			"added", len(u.diff.Added), "removed", len(u.diff.Removed),
			"modified", len(u.diff.Modified), "unchanged", u.diff.UnchangedCount)
		out.Status = domain.UploadConflict
		out.PendingID = &u.id
		out.FileID = &existing.ID
		out.Diff = &u.diff
		return out, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Upload: %w", err)
	}

	if err := u.machine.FireCtx(ctx, triggerStore); err != nil {
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Upload: %w", err)
	}
	s.logger.Info("upload stored", "filename", filename, "file_id", u.fileID, "rows", len(parsed.Rows))
	out.Status = domain.UploadStored
	out.FileID = &u.fileID
	return out, nil
}

// UploadAll processes files independently; one file's failure is reported in
// its own outcome and does not affect the others.
func (s *UploadService) UploadAll(ctx context.Context, files []UploadFile) []domain.UploadOutcome {
	out := make([]domain.UploadOutcome, 0, len(files))
	for _, f := range files {
		o, err := s.Upload(ctx, f.Filename, f.Data)
		if err != nil {
			s.logger.Warn("upload failed", "filename", f.Filename, "error", err)
			o = domain.UploadOutcome{Filename: f.Filename, Status: domain.UploadFailed, Error: err.Error()}
		}
		out = append(out, o)
	}
	return out
}

// Resolve applies the user's decision to a pending conflict. The pending
// entry is consumed on cancel or once replace or merge has been stored; a
// failed replace or merge leaves it pending so the decision can be retried.
// Returns domain.ErrNotFound for an unknown or expired id and
// domain.ErrValidation for an unknown decision or one already in progress.
func (s *UploadService) Resolve(ctx context.Context, pendingID uuid.UUID, decision domain.Decision) (domain.UploadOutcome, error) {
	var trigger string
	switch decision {
	case domain.DecisionReplace:
		trigger = triggerReplace
	case domain.DecisionMerge:
		trigger = triggerMerge
	case domain.DecisionCancel:
		trigger = triggerCancel
	default:
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Resolve: decision %q: %w", decision, domain.ErrValidation)
	}

	s.mu.Lock()
	u, ok := s.pending[pendingID]
	busy := ok && u.resolving
	if ok && !busy {
		u.resolving = true
	}
	s.mu.Unlock()
	if !ok {
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Resolve: pending upload %s: %w", pendingID, domain.ErrNotFound)
	}
	if busy {
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Resolve: pending upload %s already being resolved: %w", pendingID, domain.ErrValidation)
	}

	if err := s.apply(ctx, u, trigger); err != nil {
		s.mu.Lock()
		u.machine = s.newMachine(u, stateConflictPending)
		u.resolving = false
		s.mu.Unlock()
		s.logger.Warn("resolve failed, upload still pending", "filename", u.filename, "decision", decision, "error", err)
		return domain.UploadOutcome{}, fmt.Errorf("service.UploadService.Resolve: %w", err)
	}

	s.mu.Lock()
	delete(s.pending, pendingID)
	s.mu.Unlock()

	out := domain.UploadOutcome{Filename: u.filename, RowCount: len(u.parsed.Rows)}
	if decision == domain.DecisionCancel {
		s.logger.Info("upload cancelled", "filename", u.filename)
		out.Status = domain.UploadCancelled
		out.FileID = &u.existing.ID
		return out, nil
	}
	s.logger.Info("upload resolved", "filename", u.filename, "decision", decision, "file_id", u.fileID)
	out.Status = domain.UploadStored
	out.FileID = &u.fileID
	return out, nil
}

// apply fires the decision and, for replace or merge, the commit.
func (s *UploadService) apply(ctx context.Context, u *upload, trigger string) error {
	if err := u.machine.FireCtx(ctx, trigger); err != nil {
		return err
	}
	if trigger == triggerCancel {
		return nil
	}
	return u.machine.FireCtx(ctx, triggerCommit)
}

// ExpirePending drops conflicts older than ttl and returns how many were dropped.
func (s *UploadService) ExpirePending(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, u := range s.pending {
		if u.created.Before(cutoff) {
			delete(s.pending, id)
			n++
		}
	}
	if n > 0 {
		s.logger.Info("expired pending uploads", "count", n)
	}
	return n
}

// PendingCount returns the number of conflicts awaiting a decision.
func (s *UploadService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

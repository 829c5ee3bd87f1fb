package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

const timestampLayout = "20060102_150405"

type DumperRegistry interface {
	Get(dbType domain.DBType) (domain.Dumper, error)
}

// Submitter is the bounded queue the engine hands jobs to. A full queue is
// reported as domain.ErrQueueFull.
type Submitter interface {
	TrySubmit(key string, task func(ctx context.Context) error) error
}

type CreateBackupRequest struct {
	Name       string            `json:"name"`
	BackupType domain.BackupType `json:"backup_type"`
	Tables     []string          `json:"tables"`
	Compress   bool              `json:"compress"`
}

type BackupManager struct {
	store      domain.BackupStore
	conns      domain.ConnectionStore
	dumpers    DumperRegistry
	compressor domain.Compressor
	queue      Submitter
	replicator *Replicator
	backupDir  string
	logger     Logger
	observer   Observer
	now        func() time.Time

	pathMu  sync.Mutex
	runMu   sync.Mutex
	running map[string]*runningJob
}

// runningJob is a job currently owned by a worker. done closes when the
// worker lets go of it.
type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type BackupManagerDeps struct {
	Store      domain.BackupStore
	Conns      domain.ConnectionStore
	Dumpers    DumperRegistry
	Compressor domain.Compressor
	Queue      Submitter
	Replicator *Replicator
	BackupDir  string
	Logger     Logger
	Observer   Observer
}

func NewBackupManager(deps BackupManagerDeps) *BackupManager {
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &BackupManager{
		store:      deps.Store,
		conns:      deps.Conns,
		dumpers:    deps.Dumpers,
		compressor: deps.Compressor,
		queue:      deps.Queue,
		replicator: deps.Replicator,
		backupDir:  deps.BackupDir,
		logger:     deps.Logger,
		observer:   observer,
		now:        time.Now,
		running:    make(map[string]*runningJob),
	}
}

func (m *BackupManager) validateRequest(conn *domain.Connection, req *CreateBackupRequest) error {
	if conn == nil || !conn.DBType.Valid() {
		return fmt.Errorf("%w: unknown database type", domain.ErrValidation)
	}
	if req.BackupType == "" {
		req.BackupType = domain.BackupTypeFull
	}
	if !req.BackupType.Valid() {
		return fmt.Errorf("%w: unknown backup type %q", domain.ErrValidation, req.BackupType)
	}
	if req.BackupType == domain.BackupTypeTables && len(req.Tables) == 0 {
		return fmt.Errorf("%w: tables backup requires at least one table", domain.ErrValidation)
	}
	if req.Name == "" {
		req.Name = conn.DisplayName()
	}
	return nil
}

// CreateBackup records a PENDING job and queues it. The returned job is the
// state at admission; callers poll GetBackup for progress. When the queue is
// full the job is failed immediately and ErrQueueFull is returned with it.
func (m *BackupManager) CreateBackup(ctx context.Context, conn *domain.Connection, req CreateBackupRequest) (*domain.BackupJob, error) {
	if err := m.validateRequest(conn, &req); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	job, err := m.reserve(ctx, conn, req)
	if err != nil {
		return nil, err
	}
	m.logger.Infof("[%s] Backup %s queued: %s", conn.DisplayName(), job.ID, filepath.Base(job.FilePath))

	task := func(ctx context.Context) error {
		m.execute(ctx, job, conn)
		return nil
	}

	if err := m.queue.TrySubmit(job.ID, task); err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrQueueFull) {
			msg = domain.ErrQueueFull.Error()
		}
		if uerr := m.store.UpdateBackup(ctx, job.ID, domain.BackupUpdate{Status: domain.BackupStatusFailed, ErrorMessage: msg}); uerr != nil {
			m.logger.Errorf("[%s] Failed to mark backup %s as failed: %v", conn.DisplayName(), job.ID, uerr)
		}
		m.observer.ObserveBackup(string(conn.DBType), string(domain.BackupStatusFailed), 0, 0)
		m.logger.Warnf("[%s] Backup %s rejected: %s", conn.DisplayName(), job.ID, msg)

		failed, gerr := m.store.GetBackup(ctx, job.ID)
		if gerr != nil {
			failed = job
		}
		if errors.Is(err, domain.ErrQueueFull) {
			return failed, domain.ErrQueueFull
		}
		return failed, fmt.Errorf("failed to queue backup: %w", err)
	}

	return job, nil
}

// reserve picks a unique artifact path and persists the record while holding
// pathMu, so two creates in the same second cannot claim the same file.
func (m *BackupManager) reserve(ctx context.Context, conn *domain.Connection, req CreateBackupRequest) (*domain.BackupJob, error) {
	m.pathMu.Lock()
	defer m.pathMu.Unlock()

	base := fmt.Sprintf("%s_%s", conn.DisplayName(), m.now().UTC().Format(timestampLayout))
	ext := ".sql"
	if req.Compress {
		ext += domain.CompressedSuffix
	}

	path := filepath.Join(m.backupDir, base+ext)
	for n := 1; ; n++ {
		taken, err := m.pathTaken(ctx, path)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		path = filepath.Join(m.backupDir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}

	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}

	return m.store.AddBackup(ctx, domain.NewBackup{
		ConnectionID: conn.ID,
		Name:         req.Name,
		BackupType:   req.BackupType,
		Tables:       req.Tables,
		FilePath:     path,
		Compressed:   req.Compress,
	})
}

// pathTaken checks the whole stem: a compressed job dumps into the raw
// .sql sibling first, so a plain artifact and a compressed one may never
// share it.
func (m *BackupManager) pathTaken(ctx context.Context, path string) (bool, error) {
	raw := strings.TrimSuffix(path, domain.CompressedSuffix)
	candidates := []string{raw, raw + domain.CompressedSuffix}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return true, nil
		}
	}
	for i, p := range candidates {
		if abs, err := filepath.Abs(p); err == nil {
			candidates[i] = abs
		}
	}
	return m.store.BackupPathExists(ctx, candidates...)
}

func (m *BackupManager) track(id string, cancel context.CancelFunc) {
	m.runMu.Lock()
	m.running[id] = &runningJob{cancel: cancel, done: make(chan struct{})}
	m.runMu.Unlock()
}

func (m *BackupManager) untrack(id string) {
	m.runMu.Lock()
	if rj, ok := m.running[id]; ok {
		close(rj.done)
		delete(m.running, id)
	}
	m.runMu.Unlock()
}

func (m *BackupManager) lookupRunning(id string) (*runningJob, bool) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	rj, ok := m.running[id]
	return rj, ok
}

func rawPath(job *domain.BackupJob) string {
	if job.Compressed {
		return strings.TrimSuffix(job.FilePath, domain.CompressedSuffix)
	}
	return job.FilePath
}

// removeArtifacts deletes the final file and any raw intermediate.
func (m *BackupManager) removeArtifacts(job *domain.BackupJob) error {
	for _, p := range []string{rawPath(job), job.FilePath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove backup file: %w", err)
		}
	}
	return nil
}

// execute runs on a pool worker. Every state change goes through the store;
// a rejected transition means another actor (cancel, delete) got there first.
func (m *BackupManager) execute(parent context.Context, job *domain.BackupJob, conn *domain.Connection) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	m.track(job.ID, cancel)
	defer m.untrack(job.ID)

	name := conn.DisplayName()
	start := m.now()

	if parent.Err() != nil {
		m.finishWithError(ctx, parent, job, conn, parent.Err(), start)
		return
	}

	if err := m.store.UpdateBackup(context.WithoutCancel(ctx), job.ID, domain.BackupUpdate{Status: domain.BackupStatusInProgress}); err != nil {
		m.logger.Warnf("[%s] Backup %s not started: %v", name, job.ID, err)
		return
	}
	m.logger.Infof("[%s] Starting backup...", name)

	size, err := m.produce(ctx, job, conn)
	if err != nil {
		m.finishWithError(ctx, parent, job, conn, err, start)
		return
	}

	completedAt := m.now()
	update := domain.BackupUpdate{Status: domain.BackupStatusCompleted, FileSize: &size, CompletedAt: &completedAt}
	if err := m.store.UpdateBackup(context.WithoutCancel(ctx), job.ID, update); err != nil {
		m.logger.Warnf("[%s] Backup %s finished but was not marked completed: %v", name, job.ID, err)
		if errors.Is(err, domain.ErrNotFound) {
			m.discardOrphan(job)
		}
		return
	}

	elapsed := m.now().Sub(start)
	m.observer.ObserveBackup(string(conn.DBType), string(domain.BackupStatusCompleted), elapsed.Seconds(), size)
	m.logger.Infof("[%s] Backup completed in %s: %s (%s)",
		name, elapsed.Round(time.Millisecond), filepath.Base(job.FilePath), humanize.Bytes(uint64(size)))

	if m.replicator != nil {
		if failed := m.replicator.Replicate(context.WithoutCancel(ctx), filepath.Base(job.FilePath), job.FilePath); len(failed) > 0 {
			m.logger.Warnf("[%s] Backup %s not replicated to: %s", name, job.ID, strings.Join(failed, ", "))
		}
	}
}

// produce dumps into the final path, compressing through a raw intermediate
// when requested.
func (m *BackupManager) produce(ctx context.Context, job *domain.BackupJob, conn *domain.Connection) (int64, error) {
	dumper, err := m.dumpers.Get(conn.DBType)
	if err != nil {
		return 0, err
	}

	raw := rawPath(job)

	req := domain.DumpRequest{
		Connection: conn,
		BackupType: job.BackupType,
		Tables:     job.Tables,
		OutputPath: raw,
	}
	if err := dumper.Dump(ctx, req); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if job.Compressed && raw != job.FilePath {
		rawInfo, _ := os.Stat(raw)
		m.logger.Infof("[%s] Compressing backup...", conn.DisplayName())
		if err := m.compressor.Compress(raw, job.FilePath); err != nil {
			return 0, fmt.Errorf("compression: %w", err)
		}
		if err := os.Remove(raw); err != nil && !os.IsNotExist(err) {
			m.logger.Warnf("[%s] Failed to remove intermediate %s: %v", conn.DisplayName(), raw, err)
		}
		if info, err := os.Stat(job.FilePath); err == nil && rawInfo != nil && rawInfo.Size() > 0 {
			m.logger.Infof("[%s] Compression complete, size: %s (%.1f%% of original)",
				conn.DisplayName(), humanize.Bytes(uint64(info.Size())),
				float64(info.Size())/float64(rawInfo.Size())*100)
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(job.FilePath)
	if err != nil {
		return 0, fmt.Errorf("stat backup file: %w", err)
	}
	return info.Size(), nil
}

func (m *BackupManager) finishWithError(ctx, parent context.Context, job *domain.BackupJob, conn *domain.Connection, cause error, start time.Time) {
	name := conn.DisplayName()
	update := domain.BackupUpdate{Status: domain.BackupStatusFailed, ErrorMessage: cause.Error()}

	if ctx.Err() != nil {
		msg := "backup cancelled"
		if parent.Err() != nil {
			msg = "backup interrupted by shutdown"
		}
		update = domain.BackupUpdate{Status: domain.BackupStatusCancelled, ErrorMessage: msg}
	}

	if err := m.store.UpdateBackup(context.WithoutCancel(ctx), job.ID, update); err != nil {
		// Already cancelled or deleted by the caller.
		m.logger.Debugf("[%s] Backup %s final update skipped: %v", name, job.ID, err)
		if errors.Is(err, domain.ErrNotFound) {
			m.discardOrphan(job)
		}
	}

	m.observer.ObserveBackup(string(conn.DBType), string(update.Status), m.now().Sub(start).Seconds(), 0)
	if update.Status == domain.BackupStatusCancelled {
		m.logger.Warnf("[%s] Backup %s %s", name, job.ID, update.ErrorMessage)
		return
	}
	m.logger.Errorf("[%s] Backup %s failed: %v", name, job.ID, cause)
	if m.replicator != nil {
		m.replicator.Notify(fmt.Sprintf("Backup of %s failed: %s", name, firstLine(cause.Error())))
	}
}

// discardOrphan removes files of a job whose record was deleted while it ran.
func (m *BackupManager) discardOrphan(job *domain.BackupJob) {
	if err := m.removeArtifacts(job); err != nil {
		m.logger.Warnf("Backup %s: %v", job.ID, err)
	}
}

// FailFromPanic marks a job failed after its worker recovered a panic.
func (m *BackupManager) FailFromPanic(id string, cause error) {
	ctx := context.Background()
	update := domain.BackupUpdate{Status: domain.BackupStatusFailed, ErrorMessage: fmt.Sprintf("internal error: %v", firstLine(cause.Error()))}
	if err := m.store.UpdateBackup(ctx, id, update); err != nil {
		m.logger.Debugf("Backup %s panic update skipped: %v", id, err)
	}
	m.logger.Errorf("Backup %s crashed: %v", id, cause)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// CancelBackup moves a pending or running job to CANCELLED and stops its
// subprocess.
func (m *BackupManager) CancelBackup(ctx context.Context, id string) error {
	job, err := m.store.GetBackup(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: backup is already %s", domain.ErrValidation, job.Status)
	}

	err = m.store.UpdateBackup(ctx, id, domain.BackupUpdate{Status: domain.BackupStatusCancelled, ErrorMessage: "backup cancelled"})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("%w: backup finished before it could be cancelled", domain.ErrValidation)
	}
	if err != nil {
		return err
	}

	if rj, ok := m.lookupRunning(id); ok {
		rj.cancel()
	}

	m.logger.Infof("Backup %s cancelled", id)
	return nil
}

// RestoreBackup loads a completed artifact into target. Compressed artifacts
// are expanded to a temporary sibling that is always removed afterwards.
func (m *BackupManager) RestoreBackup(ctx context.Context, id string, target *domain.Connection, tables []string) error {
	job, err := m.store.GetBackup(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.BackupStatusCompleted {
		return fmt.Errorf("%w: only completed backups can be restored (status %s)", domain.ErrValidation, job.Status)
	}
	if m.conns != nil {
		if source, err := m.conns.GetConnection(ctx, job.ConnectionID); err == nil && source.DBType != target.DBType {
			return fmt.Errorf("%w: cannot restore a %s backup into %s", domain.ErrValidation, source.DBType, target.DBType)
		}
	}

	dumper, err := m.dumpers.Get(target.DBType)
	if err != nil {
		return err
	}

	if _, err := os.Stat(job.FilePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup file %s: %w", job.FilePath, domain.ErrNotFound)
		}
		return fmt.Errorf("stat backup file: %w", err)
	}

	name := target.DisplayName()
	start := m.now()
	m.logger.Infof("[%s] Restoring backup %s...", name, id)

	input := job.FilePath
	if job.Compressed {
		f, err := os.CreateTemp(filepath.Dir(job.FilePath), ".restore_*")
		if err != nil {
			return fmt.Errorf("create restore temp file: %w", err)
		}
		tmp := f.Name()
		f.Close()
		defer func() {
			if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
				m.logger.Warnf("[%s] Failed to remove temp file %s: %v", name, tmp, rmErr)
			}
		}()
		if err := m.compressor.Decompress(job.FilePath, tmp); err != nil {
			return fmt.Errorf("decompression: %w", err)
		}
		input = tmp
	}

	if err := dumper.Restore(ctx, target, input, tables); err != nil {
		m.logger.Errorf("[%s] Restore of %s failed: %v", name, id, err)
		return err
	}

	m.logger.Infof("[%s] Restore completed in %s", name, m.now().Sub(start).Round(time.Millisecond))
	return nil
}

// DeleteBackup removes the artifact, if present, then the record. A running
// job is cancelled and its worker waited for first, so nothing is written
// after the files are gone. It reports false without error when the id is
// unknown.
func (m *BackupManager) DeleteBackup(ctx context.Context, id string) (bool, error) {
	job, err := m.store.GetBackup(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if rj, running := m.lookupRunning(id); running {
		rj.cancel()
		select {
		case <-rj.done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	if err := m.removeArtifacts(job); err != nil {
		return false, err
	}

	ok, err := m.store.DeleteBackup(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		m.logger.Infof("Backup %s deleted: %s", id, filepath.Base(job.FilePath))
	}
	return ok, nil
}

func (m *BackupManager) GetBackup(ctx context.Context, id string) (*domain.BackupJob, error) {
	return m.store.GetBackup(ctx, id)
}

func (m *BackupManager) ListBackups(ctx context.Context, connectionID string) ([]*domain.BackupJob, error) {
	return m.store.ListBackups(ctx, connectionID)
}

// BackupConnection resolves a stored connection and creates a backup of it.
// Used by scheduled backups.
func (m *BackupManager) BackupConnection(ctx context.Context, connectionID string, req CreateBackupRequest) (*domain.BackupJob, error) {
	if m.conns == nil {
		return nil, fmt.Errorf("%w: no connection store", domain.ErrUnsupported)
	}
	conn, err := m.conns.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return m.CreateBackup(ctx, conn, req)
}

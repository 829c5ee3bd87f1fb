package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

var timestampPattern = regexp.MustCompile(`(\d{8})_(\d{6})`)

// Cleanup enforces retention: local backup records and their files, then the
// copies held by remote targets.
type Cleanup struct {
	backups       *BackupManager
	uploadTargets []UploadTarget
	logger        Logger
	retentionDays int
	now           func() time.Time
}

func NewCleanup(
	backups *BackupManager,
	uploadTargets []UploadTarget,
	logger Logger,
	retentionDays int,
) *Cleanup {
	return &Cleanup{
		backups:       backups,
		uploadTargets: uploadTargets,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Execute runs one retention pass. A non-positive retention disables it.
func (uc *Cleanup) Execute(ctx context.Context) error {
	if uc.retentionDays <= 0 {
		return nil
	}
	uc.logger.Infof("Starting cleanup, retention: %d days", uc.retentionDays)

	cutoff := uc.now().AddDate(0, 0, -uc.retentionDays)

	var result *multierror.Error
	if uc.backups != nil {
		result = multierror.Append(result, uc.cleanupLocal(ctx, cutoff))
	}
	if len(uc.uploadTargets) > 0 {
		result = multierror.Append(result, uc.cleanupTargets(ctx, cutoff))
	}

	uc.logger.Infof("Cleanup completed")
	return result.ErrorOrNil()
}

func (uc *Cleanup) cleanupLocal(ctx context.Context, cutoff time.Time) error {
	jobs, err := uc.backups.ListBackups(ctx, "")
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	var result *multierror.Error
	deleted := 0
	for _, job := range jobs {
		if !job.Status.Terminal() || !job.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := uc.backups.DeleteBackup(ctx, job.ID); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete backup %s: %w", job.ID, err))
			continue
		}
		deleted++
	}

	uc.logger.Infof("Deleted %d expired local backup(s)", deleted)
	return result.ErrorOrNil()
}

func (uc *Cleanup) cleanupTargets(ctx context.Context, cutoff time.Time) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)

	for _, target := range uc.uploadTargets {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			if err := uc.cleanupTarget(ctx, t, cutoff); err != nil {
				uc.logger.Errorf("Cleanup failed for %s: %v", t.Name, err)
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s: %w", t.Name, err))
				mu.Unlock()
			}
		}(target)
	}

	wg.Wait()
	return result.ErrorOrNil()
}

func (uc *Cleanup) cleanupTarget(ctx context.Context, target UploadTarget, cutoff time.Time) error {
	files, err := target.Storage.GetOldFiles(ctx, cutoff)
	if err != nil {
		uc.logger.Warnf("GetOldFiles failed for %s, falling back to filename timestamps: %v", target.Name, err)
		files, err = uc.fallbackListFiles(ctx, target, cutoff)
		if err != nil {
			return err
		}
	}

	var result *multierror.Error
	deleted := 0
	for _, filename := range files {
		uc.logger.Infof("Deleting old backup from %s: %s", target.Name, filename)

		if err := target.Storage.Delete(ctx, filename); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete %s: %w", filename, err))
			continue
		}
		deleted++
	}

	uc.logger.Infof("Deleted %d old backup(s) from %s", deleted, target.Name)
	return result.ErrorOrNil()
}

func (uc *Cleanup) fallbackListFiles(ctx context.Context, target UploadTarget, cutoff time.Time) ([]string, error) {
	files, err := target.Storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	oldFiles := make([]string, 0)
	for _, filename := range files {
		timestamp, err := extractTimestamp(filename)
		if err != nil {
			uc.logger.Warnf("Could not parse timestamp from %s: %v", filename, err)
			continue
		}

		if timestamp.Before(cutoff) {
			oldFiles = append(oldFiles, filename)
		}
	}

	return oldFiles, nil
}

// extractTimestamp reads the UTC creation stamp embedded in artifact names.
func extractTimestamp(filename string) (time.Time, error) {
	matches := timestampPattern.FindStringSubmatch(filename)
	if len(matches) < 3 {
		return time.Time{}, fmt.Errorf("invalid filename format: no timestamp found")
	}

	return time.Parse(timestampLayout, matches[1]+"_"+matches[2])
}

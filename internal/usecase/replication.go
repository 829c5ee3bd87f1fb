package usecase

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type UploadTarget struct {
	Name    string
	Storage domain.Storage
}

// Replicator copies completed artifacts to every configured target. A failed
// copy is retried with exponential backoff and never affects the job status.
type Replicator struct {
	targets    []UploadTarget
	logger     Logger
	newBackOff func() backoff.BackOff
}

func NewReplicator(targets []UploadTarget, logger Logger) *Replicator {
	return &Replicator{
		targets: targets,
		logger:  logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
}

// Replicate blocks until every target has either accepted the file or given up.
// It returns the names of targets that failed.
func (r *Replicator) Replicate(ctx context.Context, remoteName, localPath string) []string {
	if len(r.targets) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)

	for _, target := range r.targets {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			r.logger.Infof("Uploading %s to %s", remoteName, t.Name)
			if err := r.upload(ctx, t, remoteName, localPath); err != nil {
				r.logger.Errorf("Failed to upload %s to %s: %v", remoteName, t.Name, err)
				mu.Lock()
				failed = append(failed, t.Name)
				mu.Unlock()
				return
			}
			r.logger.Infof("Successfully uploaded %s to %s", remoteName, t.Name)
		}(target)
	}

	wg.Wait()
	return failed
}

func (r *Replicator) upload(ctx context.Context, t UploadTarget, remoteName, localPath string) error {
	attempt := 0
	op := func() error {
		attempt++
		err := t.Storage.Upload(ctx, localPath, remoteName)
		if err == nil {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		r.logger.Warnf("Upload attempt %d of %s to %s failed: %v", attempt, remoteName, t.Name, err)
		return err
	}
	return backoff.Retry(op, backoff.WithContext(r.newBackOff(), ctx))
}

// Notify sends message to every target that accepts alerts. Failures are
// logged only.
func (r *Replicator) Notify(message string) {
	for _, t := range r.targets {
		n, ok := t.Storage.(domain.Notifier)
		if !ok {
			continue
		}
		if err := n.SendNotification(message); err != nil {
			r.logger.Warnf("Failed to notify %s: %v", t.Name, err)
		}
	}
}

package domain

import (
	"context"
	"time"
)

// Storage is a remote copy target for completed backup artifacts.
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}

// Notifier is implemented by targets that can also deliver plain alerts.
type Notifier interface {
	SendNotification(message string) error
}

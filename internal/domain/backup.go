package domain

import (
	"context"
	"fmt"
	"time"
)

type BackupType string

const (
	BackupTypeFull       BackupType = "full"
	BackupTypeSchemaOnly BackupType = "schema_only"
	BackupTypeDataOnly   BackupType = "data_only"
	BackupTypeTables     BackupType = "tables"
)

func (t BackupType) Valid() bool {
	switch t {
	case BackupTypeFull, BackupTypeSchemaOnly, BackupTypeDataOnly, BackupTypeTables:
		return true
	}
	return false
}

type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusInProgress BackupStatus = "in_progress"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
	BackupStatusCancelled  BackupStatus = "cancelled"
)

// Terminal reports whether no further transitions may leave the status.
func (s BackupStatus) Terminal() bool {
	return s == BackupStatusCompleted || s == BackupStatusFailed || s == BackupStatusCancelled
}

// allowedFrom lists the statuses a job may be in when moving to the key status.
var allowedFrom = map[BackupStatus][]BackupStatus{
	BackupStatusInProgress: {BackupStatusPending},
	BackupStatusCompleted:  {BackupStatusInProgress},
	BackupStatusFailed:     {BackupStatusPending, BackupStatusInProgress},
	BackupStatusCancelled:  {BackupStatusPending, BackupStatusInProgress},
}

// TransitionSources returns the statuses from which next is reachable.
func TransitionSources(next BackupStatus) []BackupStatus {
	return allowedFrom[next]
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to BackupStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// BackupJob is one tracked backup attempt. The store owns its persisted state.
type BackupJob struct {
	ID           string       `json:"id"`
	ConnectionID string       `json:"connection_id"`
	Name         string       `json:"name"`
	BackupType   BackupType   `json:"backup_type"`
	Tables       []string     `json:"tables"`
	FilePath     string       `json:"file_path"`
	Compressed   bool         `json:"compressed"`
	Status       BackupStatus `json:"status"`
	FileSize     *int64       `json:"file_size,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// NewBackup carries the immutable fields of a job at creation time.
type NewBackup struct {
	ConnectionID string
	Name         string
	BackupType   BackupType
	Tables       []string
	FilePath     string
	Compressed   bool
}

// BackupUpdate is a status transition plus the fields that travel with it.
// The store applies it in a single statement.
type BackupUpdate struct {
	Status       BackupStatus
	FileSize     *int64
	ErrorMessage string
	CompletedAt  *time.Time
}

func (u BackupUpdate) Validate() error {
	switch u.Status {
	case BackupStatusCompleted:
		if u.FileSize == nil || u.CompletedAt == nil {
			return fmt.Errorf("%w: completed update requires file size and completion time", ErrValidation)
		}
	case BackupStatusFailed, BackupStatusCancelled:
		if u.ErrorMessage == "" {
			return fmt.Errorf("%w: %s update requires an error message", ErrValidation, u.Status)
		}
	case BackupStatusInProgress:
	default:
		return fmt.Errorf("%w: unknown target status %q", ErrValidation, u.Status)
	}
	return nil
}

type BackupStore interface {
	AddBackup(ctx context.Context, b NewBackup) (*BackupJob, error)
	UpdateBackup(ctx context.Context, id string, u BackupUpdate) error
	GetBackup(ctx context.Context, id string) (*BackupJob, error)
	ListBackups(ctx context.Context, connectionID string) ([]*BackupJob, error)
	DeleteBackup(ctx context.Context, id string) (bool, error)
	BackupPathExists(ctx context.Context, paths ...string) (bool, error)
}

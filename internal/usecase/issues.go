package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IssueType   string    `json:"issue_type"`
	Environment string    `json:"environment,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateIssueRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"required"`
	IssueType   string `json:"issue_type" binding:"required,oneof=bug feature question"`
	Environment string `json:"environment"`
}

// IssueStore is an in-memory, insertion-ordered list of issues. Once full,
// the oldest issue is evicted for each new one.
type IssueStore struct {
	mu       sync.RWMutex
	capacity int
	issues   []*Issue
	logger   Logger
}

func NewIssueStore(capacity int, logger Logger) *IssueStore {
	if capacity <= 0 {
		capacity = 500
	}
	return &IssueStore{capacity: capacity, logger: logger}
}

func (s *IssueStore) Create(req CreateIssueRequest) *Issue {
	issue := &Issue{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		IssueType:   req.IssueType,
		Environment: req.Environment,
		Status:      "open",
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	if len(s.issues) >= s.capacity {
		evicted := s.issues[0]
		s.issues = append(s.issues[:0], s.issues[1:]...)
		s.logger.Debugf("Issue store full, evicted %s", evicted.ID)
	}
	s.issues = append(s.issues, issue)
	s.mu.Unlock()

	s.logger.Infof("Issue created: %s - %s", issue.ID, issue.Title)
	c := *issue
	return &c
}

func (s *IssueStore) List() []Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Issue, len(s.issues))
	for i, issue := range s.issues {
		out[i] = *issue
	}
	return out
}

func (s *IssueStore) Get(id string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, issue := range s.issues {
		if issue.ID == id {
			c := *issue
			return &c, nil
		}
	}
	return nil, fmt.Errorf("issue %s: %w", id, domain.ErrNotFound)
}

// Delete is idempotent; it reports whether anything was removed.
func (s *IssueStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, issue := range s.issues {
		if issue.ID == id {
			s.issues = append(s.issues[:i], s.issues[i+1:]...)
			return true
		}
	}
	return false
}

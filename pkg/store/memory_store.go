package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

// MemoryStore keeps users and submissions in-process. It backs tests and
// single-instance development runs ("memory://" database URL).
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User // key: user ID
	email       map[string]string      // email -> user ID
	userOrder   []string
	submissions map[string]domain.Submission
	subOrder    []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		email:       make(map[string]string),
		submissions: make(map[string]domain.Submission),
	}
}

// CreateUser registers a user.
func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := m.email[key]; ok {
		return ErrEmailTaken
	}
	m.users[u.ID] = u
	m.email[key] = u.ID
	m.userOrder = append(m.userOrder, u.ID)
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[strings.ToLower(email)]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns all users in registration order.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

// AssignRole sets the role of one user.
func (m *MemoryStore) AssignRole(userID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

// CreateSubmission stores a submission and tracks insertion order.
func (m *MemoryStore) CreateSubmission(s domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.submissions[s.ID]; !exists {
		m.subOrder = append(m.subOrder, s.ID)
	}
	s.PreviewPaths = append([]string(nil), s.PreviewPaths...)
	m.submissions[s.ID] = s
	return nil
}

// GetSubmission retrieves a submission by ID.
func (m *MemoryStore) GetSubmission(id string) (domain.Submission, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	return s, ok, nil
}

// ListSubmissionsByOwner returns submissions filtered by owner ID.
func (m *MemoryStore) ListSubmissionsByOwner(ownerID string) ([]domain.Submission, error) {
	return m.filter(func(s domain.Submission) bool { return s.OwnerID == ownerID }), nil
}

// ListSubmissionsByStatus returns submissions in status, oldest first.
func (m *MemoryStore) ListSubmissionsByStatus(status domain.SubmissionStatus) ([]domain.Submission, error) {
	return m.filter(func(s domain.Submission) bool { return s.Status == status }), nil
}

func (m *MemoryStore) filter(keep func(domain.Submission) bool) []domain.Submission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Submission, 0, len(m.subOrder))
	for _, id := range m.subOrder {
		if s, ok := m.submissions[id]; ok && keep(s) {
			res = append(res, s)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}

// DecideSubmission moves a pending submission to its terminal status.
func (m *MemoryStore) DecideSubmission(id string, d domain.Decision) error {
	if !domain.CanTransition(domain.StatusPending, d.Outcome) {
		return fmt.Errorf("invalid outcome %q", d.Outcome)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != domain.StatusPending {
		return ErrNotPending
	}
	decidedAt := d.DecidedAt.UTC()
	s.Status = d.Outcome
	s.ReviewerFeedback = d.Feedback
	s.ReviewedBy = d.ReviewerID
	s.ReviewedAt = &decidedAt
	s.UpdatedAt = decidedAt
	m.submissions[id] = s
	return nil
}

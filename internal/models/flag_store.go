package models

import (
	"context"
	"sort"
	"sync"
	"time"
)

// FlagStore persists flags and the read-only records the moderation views need.
// Implementations must apply UpdateFlag atomically per flag.
type FlagStore interface {
	// Flags
	ListFlags(ctx context.Context, status *Status) ([]FlaggedItem, error)
	GetFlag(ctx context.Context, id int) (*FlaggedItem, error)
	ListAssignedTo(ctx context.Context, facultyID int) ([]FlaggedItem, error)
	InsertFlag(ctx context.Context, f *FlaggedItem) error
	// UpdateFlag loads the flag, applies fn and persists the result. When
	// expectedVersion is positive and differs from the stored version,
	// ErrVersionMismatch is returned and fn is not called.
	UpdateFlag(ctx context.Context, id, expectedVersion int, fn func(*FlaggedItem) error) (*FlaggedItem, error)

	// Users
	ListUsers(ctx context.Context, role string) ([]User, error)
	GetUser(ctx context.Context, id int) (*User, error)
	InsertUser(ctx context.Context, u *User) error

	// Conversations
	ListMessages(ctx context.Context, conversationID int) ([]Message, error)
	InsertMessage(ctx context.Context, m *Message) error

	// Quizzes
	GetQuiz(ctx context.Context, id int) (*Quiz, error)
	InsertQuiz(ctx context.Context, q *Quiz) error
	GetQuizAttempt(ctx context.Context, id int) (*QuizAttempt, error)
	InsertQuizAttempt(ctx context.Context, a *QuizAttempt) error

	// Notifications
	InsertNotification(ctx context.Context, n StudentNotification) error
	ListNotifications(ctx context.Context, userID int) ([]StudentNotification, error)
}

// InMemoryFlagStore implements FlagStore with maps guarded by a single lock.
type InMemoryFlagStore struct {
	mu            sync.RWMutex
	flags         map[int]FlaggedItem
	users         map[int]User
	messages      map[int][]Message
	quizzes       map[int]Quiz
	attempts      map[int]QuizAttempt
	notifications map[int][]StudentNotification
	nextFlagID    int
	nextUserID    int
	nextMsgID     int
	nextQuizID    int
	nextAttemptID int
}

// NewInMemoryFlagStore creates an empty store.
func NewInMemoryFlagStore() *InMemoryFlagStore {
	return &InMemoryFlagStore{
		flags:         make(map[int]FlaggedItem),
		users:         make(map[int]User),
		messages:      make(map[int][]Message),
		quizzes:       make(map[int]Quiz),
		attempts:      make(map[int]QuizAttempt),
		notifications: make(map[int][]StudentNotification),
	}
}

var _ FlagStore = (*InMemoryFlagStore)(nil)

func sortFlags(items []FlaggedItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].FlaggedAt.Equal(items[j].FlaggedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].FlaggedAt.After(items[j].FlaggedAt)
	})
}

// ListFlags returns flags newest first, optionally restricted to one status.
func (s *InMemoryFlagStore) ListFlags(ctx context.Context, status *Status) ([]FlaggedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FlaggedItem, 0, len(s.flags))
	for _, f := range s.flags {
		if status != nil && f.Status != *status {
			continue
		}
		out = append(out, f)
	}
	sortFlags(out)
	return out, nil
}

// GetFlag retrieves a flag by ID.
func (s *InMemoryFlagStore) GetFlag(ctx context.Context, id int) (*FlaggedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

// ListAssignedTo returns every flag, open or resolved, assigned to facultyID.
func (s *InMemoryFlagStore) ListAssignedTo(ctx context.Context, facultyID int) ([]FlaggedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FlaggedItem
	for _, f := range s.flags {
		if f.AssignedToID != nil && *f.AssignedToID == facultyID {
			out = append(out, f)
		}
	}
	sortFlags(out)
	return out, nil
}

// InsertFlag stores a new flag in Pending and assigns its ID when unset.
func (s *InMemoryFlagStore) InsertFlag(ctx context.Context, f *FlaggedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		s.nextFlagID++
		f.ID = s.nextFlagID
	} else if f.ID > s.nextFlagID {
		s.nextFlagID = f.ID
	}
	if f.Status == "" {
		f.Status = StatusPending
	}
	if f.FlaggedAt.IsZero() {
		f.FlaggedAt = time.Now().UTC()
	}
	if f.Version == 0 {
		f.Version = 1
	}
	s.flags[f.ID] = *f
	return nil
}

// UpdateFlag applies fn to a copy of the flag and stores it if fn succeeds.
func (s *InMemoryFlagStore) UpdateFlag(ctx context.Context, id, expectedVersion int, fn func(*FlaggedItem) error) (*FlaggedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flags[id]
	if !ok {
		return nil, ErrNotFound
	}
	if expectedVersion > 0 && f.Version != expectedVersion {
		return nil, ErrVersionMismatch
	}
	if err := fn(&f); err != nil {
		return nil, err
	}
	s.flags[id] = f
	return &f, nil
}

// ListUsers returns users ordered by ID. An empty role returns everyone.
func (s *InMemoryFlagStore) ListUsers(ctx context.Context, role string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetUser retrieves a user by ID.
func (s *InMemoryFlagStore) GetUser(ctx context.Context, id int) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// InsertUser stores a user and assigns its ID when unset.
func (s *InMemoryFlagStore) InsertUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextUserID++
		u.ID = s.nextUserID
	} else if u.ID > s.nextUserID {
		s.nextUserID = u.ID
	}
	s.users[u.ID] = *u
	return nil
}

// ListMessages returns the conversation in send order. ErrNotFound is returned for
// unknown conversations.
func (s *InMemoryFlagStore) ListMessages(ctx context.Context, conversationID int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// InsertMessage appends a message to its conversation.
func (s *InMemoryFlagStore) InsertMessage(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		s.nextMsgID++
		m.ID = s.nextMsgID
	} else if m.ID > s.nextMsgID {
		s.nextMsgID = m.ID
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	msgs := append(s.messages[m.ConversationID], *m)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })
	s.messages[m.ConversationID] = msgs
	return nil
}

// GetQuiz retrieves a quiz by ID.
func (s *InMemoryFlagStore) GetQuiz(ctx context.Context, id int) (*Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

// InsertQuiz stores a quiz and assigns its ID when unset.
func (s *InMemoryFlagStore) InsertQuiz(ctx context.Context, q *Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == 0 {
		s.nextQuizID++
		q.ID = s.nextQuizID
	} else if q.ID > s.nextQuizID {
		s.nextQuizID = q.ID
	}
	s.quizzes[q.ID] = *q
	return nil
}

// GetQuizAttempt retrieves an attempt by ID.
func (s *InMemoryFlagStore) GetQuizAttempt(ctx context.Context, id int) (*QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// InsertQuizAttempt stores an attempt and assigns its ID when unset.
func (s *InMemoryFlagStore) InsertQuizAttempt(ctx context.Context, a *QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextAttemptID++
		a.ID = s.nextAttemptID
	} else if a.ID > s.nextAttemptID {
		s.nextAttemptID = a.ID
	}
	s.attempts[a.ID] = *a
	return nil
}

// InsertNotification records a student notification.
func (s *InMemoryFlagStore) InsertNotification(ctx context.Context, n StudentNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.UserID] = append(s.notifications[n.UserID], n)
	return nil
}

// ListNotifications returns a student's notifications newest first.
func (s *InMemoryFlagStore) ListNotifications(ctx context.Context, userID int) ([]StudentNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.notifications[userID]
	out := make([]StudentNotification, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

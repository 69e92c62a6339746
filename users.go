package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserService covers the account operations that matter for authentication
type UserService struct {
	repo     RepositoryManager
	logger   Logger
	activity ActivitySink
}

func NewUserService(repo RepositoryManager) *UserService {
	return &UserService{
		repo:     repo,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (s *UserService) WithLogger(logger Logger) *UserService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *UserService) WithActivitySink(sink ActivitySink) *UserService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.Users().GetActiveByID(ctx, id)
}

// CountUsers counts active users
func (s *UserService) CountUsers(ctx context.Context) (int, error) {
	return s.repo.Users().CountActive(ctx)
}

// FindActiveByEmail resolves token subjects
func (s *UserService) FindActiveByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.Users().FindActiveByEmail(ctx, email)
}

// DeactivateUser soft deletes the user
func (s *UserService) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repo.Users().DeactivateTx(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventUserDeactivated,
		UserID:    id.String(),
	})
	return nil
}

func (s *UserService) UpdateUserState(ctx context.Context, id uuid.UUID, state AvailabilityState) (*User, error) {
	if !state.Valid() {
		return nil, ErrUnknownState
	}

	user, err := s.repo.Users().UpdateState(ctx, id, state)
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventUserStateChanged,
		UserID:    id.String(),
		Metadata:  map[string]any{"state": string(state)},
	})
	return user, nil
}

package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MembershipService assigns and revokes roles
type MembershipService struct {
	repo     RepositoryManager
	logger   Logger
	activity ActivitySink
}

func NewMembershipService(repo RepositoryManager) *MembershipService {
	return &MembershipService{
		repo:     repo,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (s *MembershipService) WithLogger(logger Logger) *MembershipService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *MembershipService) WithActivitySink(sink ActivitySink) *MembershipService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// AssignRole links the user to the role. The pre-check gives a clean error
// for the common case, the partial unique index settles concurrent calls.
func (s *MembershipService) AssignRole(ctx context.Context, userID, roleID uuid.UUID) (*Membership, error) {
	var out *Membership
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.Users().GetActiveByIDTx(ctx, tx, userID); err != nil {
			return err
		}
		role, err := s.repo.Roles().GetByIDTx(ctx, tx, roleID)
		if err != nil {
			return err
		}

		if _, err := s.repo.Memberships().ActiveForPairTx(ctx, tx, userID, roleID); err == nil {
			return ErrMembershipAlreadyActive
		} else if !HasTextCode(err, TextCodeMembershipNotFound) {
			return err
		}

		out, err = s.repo.Memberships().ActivateTx(ctx, tx, userID, roleID)
		if err != nil {
			return err
		}
		out.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventRoleAssigned,
		UserID:    userID.String(),
		RoleID:    roleID.String(),
		Metadata:  map[string]any{"role": out.Role.Name},
	})
	return out, nil
}

// RemoveRole deactivates the active link between user and role
func (s *MembershipService) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repo.Memberships().RevokeTx(ctx, tx, userID, roleID)
	})
	if err != nil {
		return err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventRoleRevoked,
		UserID:    userID.String(),
		RoleID:    roleID.String(),
	})
	return nil
}

// DeactivateMembership revokes a membership by its own id
func (s *MembershipService) DeactivateMembership(ctx context.Context, id uuid.UUID) error {
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repo.Memberships().RevokeByIDTx(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventRoleRevoked,
		Metadata:  map[string]any{"membership_id": id.String()},
	})
	return nil
}

func (s *MembershipService) RolesForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error) {
	if _, err := s.repo.Users().GetActiveByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.Memberships().RolesForUser(ctx, userID)
}

func (s *MembershipService) UsersWithRole(ctx context.Context, roleID uuid.UUID) ([]*User, error) {
	if _, err := s.repo.Roles().GetByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.Memberships().UsersWithRole(ctx, roleID)
}

// UserHasRole compares role names case-insensitively
func (s *MembershipService) UserHasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	return s.repo.Memberships().UserHasRole(ctx, userID, roleName)
}

func (s *MembershipService) IsCarer(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.UserHasRole(ctx, userID, RoleNameCarer)
}

func (s *MembershipService) IsOwner(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.UserHasRole(ctx, userID, RoleNameOwner)
}

// MembershipsForUser lists the active memberships of an active user
func (s *MembershipService) MembershipsForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	if _, err := s.repo.Users().GetActiveByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.Memberships().ListActiveForUser(ctx, userID)
}

func (s *MembershipService) CountUsersWithRole(ctx context.Context, roleName string) (int, error) {
	return s.repo.Memberships().CountUsersWithRoleName(ctx, roleName)
}

func (s *MembershipService) ActiveMemberships(ctx context.Context) ([]*Membership, error) {
	return s.repo.Memberships().ListActive(ctx)
}

// AvailableCarers lists active users in the available state holding the carer role
func (s *MembershipService) AvailableCarers(ctx context.Context) ([]*User, error) {
	return s.repo.Memberships().AvailableWithRole(ctx, RoleNameCarer)
}

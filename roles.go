package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleService manages the role reference table
type RoleService struct {
	repo     RepositoryManager
	logger   Logger
	activity ActivitySink
}

func NewRoleService(repo RepositoryManager) *RoleService {
	return &RoleService{
		repo:     repo,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (s *RoleService) WithLogger(logger Logger) *RoleService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *RoleService) WithActivitySink(sink ActivitySink) *RoleService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *RoleService) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNoEmptyString
	}

	var out *Role
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := s.repo.Roles().NameTakenTx(ctx, tx, name, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrRoleNameTaken
		}
		out, err = s.repo.Roles().CreateTx(ctx, tx, &Role{
			Name:        name,
			Description: strings.TrimSpace(description),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventRoleCreated,
		RoleID:    out.ID.String(),
		Metadata:  map[string]any{"name": out.Name},
	})
	return out, nil
}

func (s *RoleService) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	return s.repo.Roles().GetByID(ctx, id)
}

func (s *RoleService) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.repo.Roles().GetByName(ctx, name)
}

func (s *RoleService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.repo.Roles().List(ctx)
}

func (s *RoleService) SearchRoles(ctx context.Context, fragment string) ([]*Role, error) {
	return s.repo.Roles().Search(ctx, fragment)
}

// UpdateRole renames a role, the new name must not belong to another role
func (s *RoleService) UpdateRole(ctx context.Context, id uuid.UUID, name, description string) (*Role, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNoEmptyString
	}

	var out *Role
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.Roles().GetByIDTx(ctx, tx, id); err != nil {
			return err
		}
		taken, err := s.repo.Roles().NameTakenTx(ctx, tx, name, id)
		if err != nil {
			return err
		}
		if taken {
			return ErrRoleNameTaken
		}
		out, err = s.repo.Roles().UpdateTx(ctx, tx, &Role{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(description),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventRoleUpdated,
		RoleID:    out.ID.String(),
		Metadata:  map[string]any{"name": out.Name},
	})
	return out, nil
}

// DeleteRole removes the role and, through the foreign key, its memberships
func (s *RoleService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repo.Roles().DeleteTx(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventRoleDeleted,
		RoleID:    id.String(),
	})
	return nil
}

// EnsureRoles creates the named roles that do not exist yet
func (s *RoleService) EnsureRoles(ctx context.Context, names ...string) error {
	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, name := range names {
			if NormalizeRoleName(name) == "" {
				continue
			}
			taken, err := s.repo.Roles().NameTakenTx(ctx, tx, name, uuid.Nil)
			if err != nil {
				return err
			}
			if taken {
				continue
			}
			if _, err := s.repo.Roles().CreateTx(ctx, tx, &Role{Name: name}); err != nil {
				return err
			}
			s.logger.Info("seeded role", "name", NormalizeRoleName(name))
		}
		return nil
	})
}

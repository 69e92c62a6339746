package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles is the role store. Roles are reference data and are hard deleted.
type Roles interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	NameTakenTx(ctx context.Context, tx bun.IDB, name string, exclude uuid.UUID) (bool, error)
	List(ctx context.Context) ([]*Role, error)
	Search(ctx context.Context, fragment string) ([]*Role, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type roles struct {
	repo repository.Repository[*Role]
	db   *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})
	return &roles{repo: repo, db: db}
}

func (r *roles) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *roles) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrRoleNotFound, err, map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().Model(record).
		Where("UPPER(?TableAlias.name) = ?", NormalizeRoleName(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrRoleNotFound, err, map[string]any{"name": name})
		}
		return nil, err
	}
	return record, nil
}

func (r *roles) NameTakenTx(ctx context.Context, tx bun.IDB, name string, exclude uuid.UUID) (bool, error) {
	q := tx.NewSelect().Model((*Role)(nil)).
		Where("UPPER(?TableAlias.name) = ?", NormalizeRoleName(name))
	if exclude != uuid.Nil {
		q = q.Where("?TableAlias.id != ?", exclude)
	}
	return q.Exists(ctx)
}

func (r *roles) List(ctx context.Context) ([]*Role, error) {
	var records []*Role
	err := r.db.NewSelect().Model(&records).Order("rol.name ASC").Scan(ctx)
	return records, err
}

func (r *roles) Search(ctx context.Context, fragment string) ([]*Role, error) {
	var records []*Role
	err := r.db.NewSelect().Model(&records).
		Where("UPPER(?TableAlias.name) LIKE ?", "%"+strings.ToUpper(strings.TrimSpace(fragment))+"%").
		Order("rol.name ASC").
		Scan(ctx)
	return records, err
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Name = NormalizeRoleName(record.Name)
	now := time.Now().UTC()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	created, err := r.repo.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withSource(ErrRoleNameTaken, err, map[string]any{"name": record.Name})
		}
		return nil, err
	}
	return created, nil
}

func (r *roles) UpdateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error) {
	record.Name = NormalizeRoleName(record.Name)
	now := time.Now().UTC()
	record.UpdatedAt = &now

	res, err := tx.NewUpdate().Model(record).
		Column("name", "description", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withSource(ErrRoleNameTaken, err, map[string]any{"name": record.Name})
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, withSource(ErrRoleNotFound, nil, map[string]any{"id": record.ID.String()})
	}
	return r.GetByIDTx(ctx, tx, record.ID)
}

func (r *roles) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().Model((*Role)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return withSource(ErrRoleNotFound, nil, map[string]any{"id": id.String()})
	}
	return nil
}

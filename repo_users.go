package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the credential store. Every read only sees active users.
type Users interface {
	FindActiveByEmail(ctx context.Context, email string) (*User, error)
	FindActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	EmailTakenTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	CountActiveByEmail(ctx context.Context, email string) (int, error)
	CountActive(ctx context.Context) (int, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	UpdateState(ctx context.Context, id uuid.UUID, state AvailabilityState) (*User, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
}

var _ Users = (*users)(nil)

// ActiveUsers is the only filter used to read users
func ActiveUsers(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("?TableAlias.active = ?", true)
}

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		repo: repo,
		db:   db,
	}
}

func (a *users) selectActive(tx bun.IDB, model any) *bun.SelectQuery {
	return ActiveUsers(tx.NewSelect().Model(model))
}

func (a *users) FindActiveByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindActiveByEmailTx(ctx, a.db, email)
}

func (a *users) FindActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := a.selectActive(tx, record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrUserNotFound, err, map[string]any{"email": email})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetActiveByIDTx(ctx, a.db, id)
}

func (a *users) GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := a.selectActive(tx, record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrUserNotFound, err, map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) EmailTakenTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return a.selectActive(tx, (*User)(nil)).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Exists(ctx)
}

func (a *users) CountActiveByEmail(ctx context.Context, email string) (int, error) {
	return a.selectActive(a.db, (*User)(nil)).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Count(ctx)
}

func (a *users) CountActive(ctx context.Context) (int, error) {
	return a.selectActive(a.db, (*User)(nil)).Count(ctx)
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)
	created, err := a.repo.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withSource(ErrDuplicateEmail, err, map[string]any{"email": record.Email})
		}
		return nil, err
	}
	return created, nil
}

func (a *users) UpdateState(ctx context.Context, id uuid.UUID, state AvailabilityState) (*User, error) {
	var out *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Table("users").
			Set("state = ?", state).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("active = ?", true).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrUserNotFound
		}
		out, err = a.GetActiveByIDTx(ctx, tx, id)
		return err
	})
	return out, err
}

func (a *users) Deactivate(ctx context.Context, id uuid.UUID) error {
	return a.DeactivateTx(ctx, a.db, id)
}

func (a *users) DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewUpdate().
		Table("users").
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("active = ?", true).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return withSource(ErrUserNotFound, nil, map[string]any{"id": id.String()})
	}
	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = NormalizeEmail(record.Email)
	if record.State == "" {
		record.State = StateAvailable
	}
	record.Active = true
	now := time.Now().UTC()
	record.CreatedAt = &now
	record.UpdatedAt = &now
}

package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Memberships is the user to role link store. Reads only see active links.
type Memberships interface {
	ActiveForPairTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (*Membership, error)
	ActivateTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (*Membership, error)
	InsertTx(ctx context.Context, tx bun.IDB, record *Membership) (*Membership, error)
	RevokeTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error
	RevokeByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	RoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
	RoleNamesForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error)
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error)
	UsersWithRole(ctx context.Context, roleID uuid.UUID) ([]*User, error)
	UserHasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error)
	ListActive(ctx context.Context) ([]*Membership, error)
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error)
	CountUsersWithRoleName(ctx context.Context, roleName string) (int, error)
	CountActiveForPair(ctx context.Context, userID, roleID uuid.UUID) (int, error)
	AvailableWithRole(ctx context.Context, roleName string) ([]*User, error)
}

type memberships struct {
	db *bun.DB
}

var _ Memberships = (*memberships)(nil)

// ActiveMemberships is the only filter used to read memberships
func ActiveMemberships(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("urol.active = ?", true)
}

func NewMembershipsRepository(db *bun.DB) Memberships {
	return &memberships{db: db}
}

func (m *memberships) selectActive(tx bun.IDB, model any) *bun.SelectQuery {
	return ActiveMemberships(tx.NewSelect().Model(model))
}

// joinActive selects from another table through active memberships
func (m *memberships) joinActive(q *bun.SelectQuery, on string) *bun.SelectQuery {
	return ActiveMemberships(q.Join("JOIN user_roles AS urol ON " + on))
}

func (m *memberships) ActiveForPairTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (*Membership, error) {
	record := &Membership{}
	err := m.selectActive(tx, record).
		Where("urol.user_id = ?", userID).
		Where("urol.role_id = ?", roleID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrMembershipNotFound, err, map[string]any{
				"user_id": userID.String(),
				"role_id": roleID.String(),
			})
		}
		return nil, err
	}
	return record, nil
}

// ActivateTx reactivates the latest revoked row for the pair. The update
// only matches an inactive row so two callers can not both flip it.
func (m *memberships) ActivateTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (*Membership, error) {
	revoked := &Membership{}
	err := tx.NewSelect().Model(revoked).
		Where("urol.user_id = ?", userID).
		Where("urol.role_id = ?", roleID).
		Where("urol.active = ?", false).
		Order("urol.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return m.InsertTx(ctx, tx, &Membership{UserID: userID, RoleID: roleID})
		}
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.NewUpdate().
		Table("user_roles").
		Set("active = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", revoked.ID).
		Where("active = ?", false).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withSource(ErrMembershipAlreadyActive, err, nil)
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrMembershipAlreadyActive
	}

	revoked.Active = true
	revoked.UpdatedAt = &now
	return revoked, nil
}

func (m *memberships) InsertTx(ctx context.Context, tx bun.IDB, record *Membership) (*Membership, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Active = true
	now := time.Now().UTC()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, withSource(ErrMembershipAlreadyActive, err, map[string]any{
				"user_id": record.UserID.String(),
				"role_id": record.RoleID.String(),
			})
		}
		return nil, err
	}
	return record, nil
}

func (m *memberships) RevokeTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error {
	res, err := tx.NewUpdate().
		Table("user_roles").
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Where("active = ?", true).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func (m *memberships) RevokeByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewUpdate().
		Table("user_roles").
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("active = ?", true).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func (m *memberships) RoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return m.RoleNamesForUserTx(ctx, m.db, userID)
}

func (m *memberships) RoleNamesForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error) {
	var names []string
	err := m.joinActive(tx.NewSelect().Model((*Role)(nil)), "urol.role_id = rol.id").
		ColumnExpr("rol.name").
		Where("urol.user_id = ?", userID).
		Order("rol.name ASC").
		Scan(ctx, &names)
	return names, err
}

func (m *memberships) RolesForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error) {
	var records []*Role
	err := m.joinActive(m.db.NewSelect().Model(&records), "urol.role_id = rol.id").
		Where("urol.user_id = ?", userID).
		Order("rol.name ASC").
		Scan(ctx)
	return records, err
}

func (m *memberships) UsersWithRole(ctx context.Context, roleID uuid.UUID) ([]*User, error) {
	var records []*User
	q := m.joinActive(m.db.NewSelect().Model(&records), "urol.user_id = usr.id")
	err := ActiveUsers(q).
		Where("urol.role_id = ?", roleID).
		Order("usr.email ASC").
		Scan(ctx)
	return records, err
}

func (m *memberships) UserHasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	return m.joinActive(m.db.NewSelect().Model((*Role)(nil)), "urol.role_id = rol.id").
		Where("urol.user_id = ?", userID).
		Where("UPPER(rol.name) = ?", NormalizeRoleName(roleName)).
		Exists(ctx)
}

func (m *memberships) ListActive(ctx context.Context) ([]*Membership, error) {
	var records []*Membership
	err := m.selectActive(m.db, &records).
		Relation("Role").
		Order("urol.created_at ASC").
		Scan(ctx)
	return records, err
}

func (m *memberships) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	var records []*Membership
	err := m.selectActive(m.db, &records).
		Relation("Role").
		Where("urol.user_id = ?", userID).
		Order("urol.created_at ASC").
		Scan(ctx)
	return records, err
}

// CountUsersWithRoleName counts active users holding the role through an
// active membership
func (m *memberships) CountUsersWithRoleName(ctx context.Context, roleName string) (int, error) {
	q := m.joinActive(m.db.NewSelect().Model((*User)(nil)), "urol.user_id = usr.id").
		Join("JOIN roles AS rol ON rol.id = urol.role_id")
	return ActiveUsers(q).
		Where("UPPER(rol.name) = ?", NormalizeRoleName(roleName)).
		Count(ctx)
}

func (m *memberships) CountActiveForPair(ctx context.Context, userID, roleID uuid.UUID) (int, error) {
	return m.selectActive(m.db, (*Membership)(nil)).
		Where("urol.user_id = ?", userID).
		Where("urol.role_id = ?", roleID).
		Count(ctx)
}

func (m *memberships) AvailableWithRole(ctx context.Context, roleName string) ([]*User, error) {
	var records []*User
	q := m.joinActive(m.db.NewSelect().Model(&records), "urol.user_id = usr.id").
		Join("JOIN roles AS rol ON rol.id = urol.role_id")
	err := ActiveUsers(q).
		Where("usr.state = ?", StateAvailable).
		Where("UPPER(rol.name) = ?", NormalizeRoleName(roleName)).
		Order("usr.email ASC").
		Scan(ctx)
	return records, err
}

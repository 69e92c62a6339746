package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	LastName string      `json:"lastName"`
	Password string      `json:"password"`
	Phone    string      `json:"phoneNumber"`
	State    string      `json:"state,omitempty"`
	Roles    []uuid.UUID `json:"roles,omitempty"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates a user with its memberships and issues a token,
// all inside one transaction.
type RegisterUserHandler struct {
	repo        RepositoryManager
	tokens      TokenIssuer
	defaultRole string
	phoneRegion string
	useHashid   bool
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
	txTimeout   time.Duration
}

func NewRegisterUserHandler(repo RepositoryManager, tokens TokenIssuer, cfg Config) *RegisterUserHandler {
	defaultRole := cfg.GetDefaultRole()
	if defaultRole == "" {
		defaultRole = RoleNameOwner
	}
	return &RegisterUserHandler{
		repo:        repo,
		tokens:      tokens,
		defaultRole: defaultRole,
		phoneRegion: cfg.GetPhoneRegion(),
		useHashid:   cfg.GetDeterministicIDs(),
		activity:    noopActivitySink{},
		logger:      defLogger{},
		now:         time.Now,
		txTimeout:   10 * time.Second,
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) Register(ctx context.Context, msg RegisterUserMessage) (*RegisterResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, msg RegisterUserMessage) (*RegisterResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.txTimeout)
	defer cancel()

	state, ok := ParseAvailabilityState(msg.State)
	if !ok {
		return nil, withSource(ErrUnknownState, nil, map[string]any{"state": msg.State})
	}

	phone, err := NormalizePhone(msg.Phone, h.phoneRegion)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{}
	now := h.now()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().EmailTakenTx(ctx, tx, msg.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateEmail
		}

		hash, err := HashPassword(msg.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user := &User{
			Email:        msg.Email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(msg.Name),
			LastName:     strings.TrimSpace(msg.LastName),
			Phone:        phone,
			State:        state,
		}
		if h.useHashid {
			// a deactivated address can register again, the email alone is not unique
			seed := NormalizeEmail(msg.Email) + "|" + strconv.FormatInt(now.UnixNano(), 10)
			if id, err := hashid.NewUUID(seed); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		roles, err := h.resolveRoles(ctx, tx, msg.Roles)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(roles))
		for _, role := range roles {
			if _, err := h.repo.Memberships().InsertTx(ctx, tx, &Membership{
				UserID: user.ID,
				RoleID: role.ID,
			}); err != nil {
				return err
			}
			names = append(names, role.Name)
		}

		token, err := h.tokens.Issue(user.Email, names, now)
		if err != nil {
			return err
		}

		result.UserID = user.ID
		result.Email = user.Email
		result.Roles = names
		result.Token = token
		return nil
	})

	if err != nil {
		h.logger.Debug("registration rolled back", "email", msg.Email, "error", err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		UserID:    result.UserID.String(),
		Metadata: map[string]any{
			"email": result.Email,
			"roles": result.Roles,
		},
	})

	return result, nil
}

// resolveRoles loads the requested roles, or the default role when none
// were requested. Duplicate ids are collapsed.
func (h *RegisterUserHandler) resolveRoles(ctx context.Context, tx bun.IDB, ids []uuid.UUID) ([]*Role, error) {
	if len(ids) == 0 {
		role, err := h.repo.Roles().GetByNameTx(ctx, tx, h.defaultRole)
		if err != nil {
			if HasTextCode(err, TextCodeRoleNotFound) {
				h.logger.Error("default role missing from role table", "role", h.defaultRole)
				return nil, withSource(ErrDefaultRoleMissing, err, map[string]any{"role": h.defaultRole})
			}
			return nil, err
		}
		return []*Role{role}, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]*Role, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		role, err := h.repo.Roles().GetByIDTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// NormalizePhone parses phone with the default region and formats it as
// E.164. An empty value is accepted.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	if region == "" {
		region = "ES"
	}

	num, err := phonenumbers.Parse(phone, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", withSource(ErrInvalidPhoneNumber, err, map[string]any{"phone": phone})
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

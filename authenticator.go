package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// Auther is the authentication gateway: login and registration
type Auther struct {
	repo     RepositoryManager
	provider *UserProvider
	tokens   TokenIssuer
	register *RegisterUserHandler
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

var _ Gateway = (*Auther)(nil)

// NewAuthenticator returns a new Auther
func NewAuthenticator(repo RepositoryManager, tokens TokenIssuer, cfg Config) *Auther {
	return &Auther{
		repo:     repo,
		provider: NewUserProvider(repo.Users()),
		tokens:   tokens,
		register: NewRegisterUserHandler(repo, tokens, cfg),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger == nil {
		return s
	}
	s.logger = logger
	s.provider.WithLogger(logger)
	s.register.WithLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	s.register.WithActivitySink(sink)
	return s
}

// WithClock overrides the issuing time source
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
		s.register.now = now
	}
	return s
}

// Login verifies the credentials and issues a token carrying the user's
// active role names.
func (s *Auther) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Info("Login verify identity error", "error", err)
		s.emitLoginFailure(ctx, email, err)
		return "", err
	}

	names, err := s.repo.Memberships().RoleNamesForUser(ctx, user.ID)
	if err != nil {
		s.logger.Error("Login failed to load roles", "error", err)
		s.emitLoginFailure(ctx, email, err)
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to load user roles")
	}

	token, err := s.tokens.Issue(user.Email, names, s.now())
	if err != nil {
		s.logger.Error("Login failed to issue token", "error", err)
		s.emitLoginFailure(ctx, email, err)
		return "", err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     user.Email,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"roles": names},
	})

	return token, nil
}

// Register onboards a new user, see RegisterUserHandler
func (s *Auther) Register(ctx context.Context, msg RegisterUserMessage) (*RegisterResult, error) {
	return s.register.Register(ctx, msg)
}

func (s *Auther) emitLoginFailure(ctx context.Context, email string, err error) {
	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     NormalizeEmail(email),
		Metadata:  map[string]any{"error": err.Error()},
	})
}

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/carely/go-auth/middleware/jwtware"
)

// TokenResponse is returned by login and registration. Token is the bare
// JWT, clients send it back as "Bearer <token>".
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

type ValidateResponse struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type AuthController struct {
	gateway     Gateway
	validator   TokenValidator
	users       *UserService
	roles       *RoleService
	memberships *MembershipService
	pinger      func(ctx context.Context) error
	logger      Logger
	loginGuards []fiber.Handler
	pageSize    int
	expiresIn   time.Duration
}

type AuthControllerOption func(*AuthController)

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) {
		if logger != nil {
			ac.logger = logger
		}
	}
}

// WithLoginGuards runs handlers, e.g. a rate limiter, before login
func WithLoginGuards(guards ...fiber.Handler) AuthControllerOption {
	return func(ac *AuthController) {
		ac.loginGuards = append(ac.loginGuards, guards...)
	}
}

func WithPageSize(size int) AuthControllerOption {
	return func(ac *AuthController) {
		if size > 0 {
			ac.pageSize = size
		}
	}
}

func WithTokenLifetime(d time.Duration) AuthControllerOption {
	return func(ac *AuthController) {
		ac.expiresIn = d
	}
}

func NewAuthController(gateway Gateway, validator TokenValidator, repo RepositoryManager, opts ...AuthControllerOption) *AuthController {
	ac := &AuthController{
		gateway:     gateway,
		validator:   validator,
		users:       NewUserService(repo),
		roles:       NewRoleService(repo),
		memberships: NewMembershipService(repo),
		pinger:      repo.Ping,
		logger:      defLogger{},
		pageSize:    20,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ac)
		}
	}
	return ac
}

// WithActivitySink forwards activity events of the admin services
func (ac *AuthController) WithActivitySink(sink ActivitySink) *AuthController {
	ac.users.WithActivitySink(sink)
	ac.roles.WithActivitySink(sink)
	ac.memberships.WithActivitySink(sink)
	return ac
}

// Users exposes the user service, the request filter resolves subjects with it
func (ac *AuthController) Users() *UserService {
	return ac.users
}

// RegisterRoutes mounts the auth and authorization endpoints
func (ac *AuthController) RegisterRoutes(app fiber.Router) {
	ac.users.WithLogger(ac.logger)
	ac.roles.WithLogger(ac.logger)
	ac.memberships.WithLogger(ac.logger)

	authGroup := app.Group("/auth")
	login := append(append([]fiber.Handler{}, ac.loginGuards...), ac.Login)
	authGroup.Post("/login", login...)
	authGroup.Post("/register", ac.Register)
	authGroup.Get("/validate", ac.Validate)

	app.Get("/actuator/health", ac.Health)

	users := app.Group("/users")
	users.Get("/carers/available", ac.AvailableCarers)
	users.Get("/me", RequireAuthenticated(), ac.Me)
	users.Get("/count", RequireRole(RoleNameAdmin), ac.CountUsers)
	users.Get("/count/role/:roleName", RequireRole(RoleNameAdmin), ac.CountUsersWithRole)
	users.Get("/email/:email", RequireAuthenticated(), ac.GetUserByEmail)
	users.Get("/:id/is-carer", ac.IsCarer)
	users.Get("/:id/is-owner", ac.IsOwner)
	users.Get("/:id/has-role/:role", ac.HasRole)
	users.Get("/:id/roles", RequireAuthenticated(), ac.UserRoles)
	users.Post("/:id/roles", RequireRole(RoleNameAdmin), ac.AssignRole)
	users.Delete("/:id/roles/:roleId", RequireRole(RoleNameAdmin), ac.RemoveRole)
	users.Patch("/:id/state", RequireRole(RoleNameAdmin), ac.UpdateState)
	users.Get("/:id", RequireAuthenticated(), ac.GetUser)
	users.Delete("/:id", RequireRole(RoleNameAdmin), ac.DeactivateUser)

	roles := app.Group("/roles", RequireRole(RoleNameAdmin))
	roles.Get("/", ac.ListRoles)
	roles.Get("/search", ac.SearchRoles)
	roles.Post("/", ac.CreateRole)
	roles.Get("/:id", ac.GetRole)
	roles.Put("/:id", ac.UpdateRole)
	roles.Delete("/:id", ac.DeleteRole)

	userRoles := app.Group("/user-roles", RequireRole(RoleNameAdmin))
	userRoles.Get("/", ac.ListMemberships)
	userRoles.Get("/user/:userId", ac.MembershipsForUser)
	userRoles.Get("/role/:roleId", ac.UsersWithRole)
	userRoles.Delete("/:id", ac.DeactivateMembership)
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	payload := LoginRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body could not be parsed")
	}
	if err := payload.Validate(); err != nil {
		// do not tell which field failed
		return ErrInvalidCredentials
	}

	token, err := ac.gateway.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	return c.JSON(ac.tokenResponse(token))
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	payload := RegisterRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body could not be parsed")
	}
	if err := payload.Validate(); err != nil {
		return validationError(err)
	}

	msg, err := payload.Message()
	if err != nil {
		return err
	}

	res, err := ac.gateway.Register(c.UserContext(), msg)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(ac.tokenResponse(res.Token))
}

// Validate reports the subject and roles of the bearer token in the
// Authorization header.
func (ac *AuthController) Validate(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if strings.TrimSpace(header) == "" {
		return fiber.NewError(http.StatusBadRequest, "Authorization header is required")
	}

	raw, err := jwtware.StripScheme(header, "Bearer")
	if err != nil {
		return withSource(ErrTokenMalformed, err, map[string]any{"reason": "missing bearer scheme"})
	}

	claims, err := ac.validator.Validate(raw)
	if err != nil {
		if IsMalformedError(err) || IsTokenExpiredError(err) || IsSignatureInvalidError(err) {
			return err
		}
		return errors.Wrap(err, errors.CategoryInternal, "token validation failed")
	}

	return c.JSON(ValidateResponse{
		Username: claims.Subject(),
		Roles:    claims.Authorities().Sorted(),
	})
}

func (ac *AuthController) Me(c *fiber.Ctx) error {
	p, _ := PrincipalFrom(c.UserContext())
	return c.JSON(fiber.Map{
		"username":    p.Subject,
		"user_id":     p.UserID,
		"authorities": p.Authorities.Sorted(),
	})
}

func (ac *AuthController) GetUser(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	user, err := ac.users.GetUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// GetUserByEmail is limited to admins and the owner of the address
func (ac *AuthController) GetUserByEmail(c *fiber.Ctx) error {
	email := NormalizeEmail(c.Params("email"))
	p, ok := PrincipalFrom(c.UserContext())
	if !ok {
		return ErrUnauthenticated
	}
	if !p.HasRole(RoleNameAdmin) && NormalizeEmail(p.Subject) != email {
		return ErrForbidden
	}
	user, err := ac.users.FindActiveByEmail(c.UserContext(), email)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (ac *AuthController) CountUsers(c *fiber.Ctx) error {
	n, err := ac.users.CountUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": n})
}

func (ac *AuthController) CountUsersWithRole(c *fiber.Ctx) error {
	n, err := ac.memberships.CountUsersWithRole(c.UserContext(), c.Params("roleName"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": n})
}

func (ac *AuthController) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := ac.pinger(ctx); err != nil {
		ac.logger.Warn("health check failed", "error", err)
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "DOWN"})
	}
	return c.JSON(fiber.Map{"status": "UP"})
}

func (ac *AuthController) IsCarer(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	ok, err := ac.memberships.IsCarer(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": ok})
}

func (ac *AuthController) IsOwner(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	ok, err := ac.memberships.IsOwner(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": ok})
}

func (ac *AuthController) HasRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	ok, err := ac.memberships.UserHasRole(c.UserContext(), id, c.Params("role"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": ok})
}

func (ac *AuthController) AvailableCarers(c *fiber.Ctx) error {
	users, err := ac.memberships.AvailableCarers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(users)
}

func (ac *AuthController) UserRoles(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	roles, err := ac.memberships.RolesForUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(roles)
}

func (ac *AuthController) AssignRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	payload := AssignRoleRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body could not be parsed")
	}
	if err := payload.Validate(); err != nil {
		return validationError(err)
	}

	m, err := ac.memberships.AssignRole(c.UserContext(), id, uuid.MustParse(payload.RoleID))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(m)
}

func (ac *AuthController) RemoveRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	roleID, err := paramUUID(c, "roleId")
	if err != nil {
		return err
	}
	if err := ac.memberships.RemoveRole(c.UserContext(), id, roleID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (ac *AuthController) UpdateState(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	payload := StateRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body could not be parsed")
	}
	payload.State = strings.ToUpper(strings.TrimSpace(payload.State))
	if err := payload.Validate(); err != nil {
		return validationError(err)
	}
	user, err := ac.users.UpdateUserState(c.UserContext(), id, AvailabilityState(payload.State))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (ac *AuthController) DeactivateUser(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.users.DeactivateUser(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (ac *AuthController) ListRoles(c *fiber.Ctx) error {
	roles, err := ac.roles.ListRoles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(paginate(c, roles, ac.pageSize))
}

func (ac *AuthController) SearchRoles(c *fiber.Ctx) error {
	roles, err := ac.roles.SearchRoles(c.UserContext(), c.Query("name"))
	if err != nil {
		return err
	}
	return c.JSON(paginate(c, roles, ac.pageSize))
}

func (ac *AuthController) CreateRole(c *fiber.Ctx) error {
	payload := RoleRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body could not be parsed")
	}
	if err := payload.Validate(); err != nil {
		return validationError(err)
	}
	role, err := ac.roles.CreateRole(c.UserContext(), payload.Name, payload.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(role)
}

func (ac *AuthController) GetRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	role, err := ac.roles.GetRole(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (ac *AuthController) UpdateRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	payload := RoleRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "request body could not be parsed")
	}
	if err := payload.Validate(); err != nil {
		return validationError(err)
	}
	role, err := ac.roles.UpdateRole(c.UserContext(), id, payload.Name, payload.Description)
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (ac *AuthController) DeleteRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.roles.DeleteRole(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (ac *AuthController) ListMemberships(c *fiber.Ctx) error {
	items, err := ac.memberships.ActiveMemberships(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(paginate(c, items, ac.pageSize))
}

func (ac *AuthController) MembershipsForUser(c *fiber.Ctx) error {
	id, err := paramUUID(c, "userId")
	if err != nil {
		return err
	}
	items, err := ac.memberships.MembershipsForUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (ac *AuthController) UsersWithRole(c *fiber.Ctx) error {
	roleID, err := paramUUID(c, "roleId")
	if err != nil {
		return err
	}
	users, err := ac.memberships.UsersWithRole(c.UserContext(), roleID)
	if err != nil {
		return err
	}
	return c.JSON(paginate(c, users, ac.pageSize))
}

func (ac *AuthController) DeactivateMembership(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.memberships.DeactivateMembership(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (ac *AuthController) tokenResponse(token string) TokenResponse {
	return TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(ac.expiresIn / time.Second),
	}
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, name+" must be a valid uuid")
	}
	return id, nil
}

// Page is a slice of a listing
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// MaxPageSize caps the size query parameter
const MaxPageSize = 100

func paginate[T any](c *fiber.Ctx, items []T, defaultSize int) Page[T] {
	page := c.QueryInt("page", 0)
	size := c.QueryInt("size", defaultSize)
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	out := []T{}
	if page <= len(items)/size {
		start := page * size
		end := min(start+size, len(items))
		if start < end {
			out = items[start:end]
		}
	}
	return Page[T]{Items: out, Page: page, Size: size, Total: len(items)}
}

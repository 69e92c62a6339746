package auth

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/carely/go-auth/middleware/jwtware"
)

// DefaultPublicPaths are reachable without a token
var DefaultPublicPaths = []string{
	"/auth/",
	"/users/*/is-carer",
	"/users/*/is-owner",
	"/users/*/has-role/*",
	"~/users/carers/available",
	"/swagger-ui*",
	"/v3/api-docs*",
	"/api-docs*",
	"/actuator*",
}

// ApiError is the body of every error response
type ApiError struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
	TextCode  string    `json:"text_code,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// NewRequestFilter builds the per request token filter. Invalid tokens and
// unknown subjects leave the request unauthenticated.
func NewRequestFilter(validator TokenValidator, users UserResolver, publicPaths []string, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}
	if publicPaths == nil {
		publicPaths = DefaultPublicPaths
	}
	matcher := jwtware.NewPathMatcher(publicPaths...)

	return jwtware.New(jwtware.Config{
		Filter: matcher.Filter,
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
			claims, err := validator.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ContextEnricher: func(ctx context.Context, c jwtware.Claims) (context.Context, error) {
			claims, ok := c.(*TokenClaims)
			if !ok {
				return ctx, ErrTokenMalformed
			}
			user, err := users.FindActiveByEmail(ctx, claims.Subject())
			if err != nil {
				return ctx, err
			}
			return WithPrincipal(ctx, NewPrincipal(claims, user)), nil
		},
		ContextCleaner: WithoutPrincipal,
		FailureListener: func(c *fiber.Ctx, err error) {
			logger.Debug("request filter rejected token",
				"path", c.Path(),
				"state", StateOf(err),
				"error", err,
			)
		},
	})
}

// RequireAuthenticated rejects requests without a principal
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFrom(c.UserContext()); !ok {
			return ErrUnauthenticated
		}
		return c.Next()
	}
}

// RequireRole rejects requests whose principal lacks every given role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c.UserContext())
		if !ok {
			return ErrUnauthenticated
		}
		for _, role := range roles {
			if p.HasRole(role) {
				return c.Next()
			}
		}
		return withSource(ErrForbidden, nil, map[string]any{"required": roles})
	}
}

// NewErrorHandler renders every error as an ApiError. Unknown errors become
// an opaque 500.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		body := ApiError{
			Timestamp: time.Now().UTC(),
			Path:      c.Path(),
		}

		var fiberErr *fiber.Error
		var richErr *errors.Error
		switch {
		case errors.As(err, &richErr):
			body.Status = richErr.Code
			if body.Status == 0 {
				body.Status = statusForError(richErr)
			}
			body.Message = richErr.Message
			body.TextCode = richErr.TextCode
			if fields, ok := richErr.Metadata["fields"]; ok {
				body.Details = fields
			}
			if body.Status >= http.StatusInternalServerError {
				logger.Error("request failed", "path", c.Path(), "error", err,
					"details", print.MaybePrettyJSON(richErr.Metadata))
				body.Message = "An unexpected error occurred"
				body.TextCode = ""
			} else {
				logger.Debug("request rejected", "path", c.Path(), "error", richErr.Message,
					"details", print.MaybePrettyJSON(richErr.Metadata))
			}
		case stderrors.As(err, &fiberErr):
			body.Status = fiberErr.Code
			body.Message = fiberErr.Message
		default:
			logger.Error("unexpected request error", "path", c.Path(), "error", err)
			body.Status = http.StatusInternalServerError
			body.Message = "An unexpected error occurred"
		}

		if body.Status == http.StatusUnauthorized && body.TextCode == TextCodeUnauthenticated {
			body.Message = "Authentication required: " + body.Message
		}
		body.Error = http.StatusText(body.Status)
		return c.Status(body.Status).JSON(body)
	}
}

func statusForError(richErr *errors.Error) int {
	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryBadInput, errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewApp assembles a fiber app with the error handler, the request filter
// and the controller routes.
func NewApp(ctrl *AuthController, validator TokenValidator, publicPaths []string, logger Logger) *fiber.App {
	if logger == nil {
		logger = defLogger{}
	}
	app := fiber.New(fiber.Config{
		AppName:               "carely-auth",
		ErrorHandler:          NewErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(NewRequestFilter(validator, ctrl.Users(), publicPaths, logger))
	ctrl.RegisterRoutes(app)
	return app
}

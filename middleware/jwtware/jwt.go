package jwtware

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup       = "header:" + fiber.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// Claims is the minimum a validated token exposes
type Claims interface {
	Subject() string
}

// TokenValidator validates raw tokens, mirrors the auth token service
type TokenValidator interface {
	Validate(tokenString string) (Claims, error)
}

// TokenValidatorFunc adapts a function to TokenValidator
type TokenValidatorFunc func(tokenString string) (Claims, error)

func (f TokenValidatorFunc) Validate(tokenString string) (Claims, error) {
	return f(tokenString)
}

type Config struct {
	// Filter returns true for requests that skip the middleware, e.g. public paths
	Filter      func(*fiber.Ctx) bool
	TokenLookup string
	AuthScheme  string
	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// ContextEnricher builds the authenticated context for valid claims. An
	// error leaves the request unauthenticated.
	ContextEnricher func(ctx context.Context, claims Claims) (context.Context, error)

	// ContextCleaner removes partial authentication state after a failure
	ContextCleaner func(ctx context.Context) context.Context

	// FailureListener observes rejected tokens, it can not stop the request
	FailureListener func(c *fiber.Ctx, err error)

	// ContextKey stores the validated claims in fiber locals
	ContextKey string
}

// New returns a filter that never rejects a request. Requests with a valid
// token continue with an enriched user context, everything else continues
// unauthenticated and is left to downstream guards.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawTokenFromContext(c, extractors)
		if err != nil || raw == "" {
			return c.Next()
		}

		claims, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			cfg.fail(c, err)
			return c.Next()
		}

		ctx, err := cfg.ContextEnricher(c.UserContext(), claims)
		if err != nil {
			cfg.fail(c, err)
			return c.Next()
		}

		c.Locals(cfg.ContextKey, claims)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

func (cfg Config) fail(c *fiber.Ctx, err error) {
	c.Locals(cfg.ContextKey, nil)
	c.SetUserContext(cfg.ContextCleaner(c.UserContext()))
	if cfg.FailureListener != nil {
		cfg.FailureListener(c, err)
	}
}

func ExtractRawTokenFromContext(c *fiber.Ctx, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = func(ctx context.Context, _ Claims) (context.Context, error) {
			return ctx, nil
		}
	}

	if cfg.ContextCleaner == nil {
		cfg.ContextCleaner = func(ctx context.Context) context.Context {
			return ctx
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// header:Authorization,cookie:jwt,query:auth_token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c *fiber.Ctx) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		return StripScheme(c.Get(header), authScheme)
	}
}

// StripScheme removes the auth scheme (case-insensitive) and every whitespace
// or control character from an Authorization value.
func StripScheme(value, authScheme string) (string, error) {
	value = strings.TrimLeftFunc(value, isNoise)
	l := len(authScheme)
	if l == 0 || len(value) <= l || !strings.EqualFold(value[:l], authScheme) {
		return "", ErrJWTMissingOrMalformed
	}
	if !isNoise(rune(value[l])) {
		return "", ErrJWTMissingOrMalformed
	}

	token := strings.Map(func(r rune) rune {
		if isNoise(r) {
			return -1
		}
		return r
	}, value[l:])

	if token == "" {
		return "", ErrJWTMissingOrMalformed
	}
	return token, nil
}

func isNoise(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r)
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

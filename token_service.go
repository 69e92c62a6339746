package auth

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenState is the terminal state of a validation
type TokenState string

const (
	TokenValid            TokenState = "valid"
	TokenMalformed        TokenState = "malformed"
	TokenSignatureInvalid TokenState = "signature_invalid"
	TokenExpired          TokenState = "expired"
)

// StateOf maps a Validate error to its terminal state
func StateOf(err error) TokenState {
	switch {
	case err == nil:
		return TokenValid
	case IsTokenExpiredError(err):
		return TokenExpired
	case IsSignatureInvalidError(err):
		return TokenSignatureInvalid
	default:
		return TokenMalformed
	}
}

// TokenService issues and validates HS256 bearer tokens
type TokenService struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	logger     Logger
	now        func() time.Time
}

type TokenServiceOption func(*TokenService)

// WithTokenIssuer sets the iss claim, validated when present
func WithTokenIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithTokenClock overrides the clock used by Validate
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService creates a token service. The secret string is used as
// raw key bytes.
func NewTokenService(secret string, expiration time.Duration, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey: []byte(secret),
		expiration: expiration,
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// NewTokenServiceFromConfig wires a token service from Config
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenService {
	return NewTokenService(cfg.GetSigningKey(), cfg.GetTokenExpiration(),
		WithTokenIssuer(cfg.GetIssuer()),
		WithTokenLogger(logger),
	)
}

// Expiration returns the configured token lifetime
func (ts *TokenService) Expiration() time.Duration {
	return ts.expiration
}

// Issue signs a token for subject embedding the given role names. The issue
// instant is truncated to whole seconds so exp is exactly iat plus the lifetime.
func (ts *TokenService) Issue(subject string, roleNames []string, now time.Time) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", ErrNoEmptyString
	}
	now = now.Truncate(time.Second)

	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiration)),
		},
		Roles: RolesClaim(roleNames),
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *TokenClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate checks the token against the current time
func (ts *TokenService) Validate(tokenString string) (*TokenClaims, error) {
	return ts.ValidateAt(tokenString, ts.now())
}

// ValidateAt parses and verifies the token as of now. The result is one of
// ErrTokenMalformed, ErrTokenSignatureInvalid, ErrTokenExpired or valid claims.
func (ts *TokenService) ValidateAt(tokenString string, now time.Time) (*TokenClaims, error) {
	if strings.Count(tokenString, ".") != 2 {
		return nil, ErrTokenMalformed
	}

	// a non canonical signature segment could decode to the original bytes
	signature := tokenString[strings.LastIndex(tokenString, ".")+1:]
	if nonCanonicalSegment(signature) {
		return nil, ErrTokenSignatureInvalid
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, withSource(ErrTokenMalformed, err, nil)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, withSource(ErrTokenSignatureInvalid, err, nil)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("TokenService validate rejected claims", "error", err)
		return nil, withSource(ErrTokenMalformed, err, nil)
	}

	if !token.Valid || claims.Subject() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// nonCanonicalSegment reports a segment that is not strict unpadded
// base64url, including non zero padding bits.
func nonCanonicalSegment(seg string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return true
	}
	return base64.RawURLEncoding.EncodeToString(raw) != seg
}

package auth

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*TokenClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*TokenClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// RotatingTokenValidator tries validators in order, used while a signing
// secret is being rotated. Only a signature failure moves on to the next
// validator; malformed and expired results are final.
type RotatingTokenValidator struct {
	validators []TokenValidator
}

// NewRotatingTokenValidator filters nil validators and returns a composite validator.
func NewRotatingTokenValidator(validators ...TokenValidator) *RotatingTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &RotatingTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *RotatingTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if IsSignatureInvalidError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenSignatureInvalid
}

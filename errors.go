package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds            = "invalid_credentials"
	TextCodeDuplicateEmail          = "duplicate_email"
	TextCodeRoleNotFound            = "role_not_found"
	TextCodeUserNotFound            = "user_not_found"
	TextCodeRoleNameTaken           = "role_name_taken"
	TextCodeDefaultRoleMissing      = "default_role_missing"
	TextCodeTokenMalformed          = "token_malformed"
	TextCodeTokenExpired            = "token_expired"
	TextCodeTokenSignatureInvalid   = "token_signature_invalid"
	TextCodeMembershipAlreadyActive = "membership_already_active"
	TextCodeMembershipNotFound      = "membership_not_found"
	TextCodeEmptyString             = "empty_string"
	TextCodeUnauthenticated         = "unauthenticated"
	TextCodeForbidden               = "forbidden"
	TextCodeTooManyLoginAttempts    = "too_many_login_attempts"
	TextCodeInvalidPhone            = "invalid_phone_number"
	TextCodeUnknownState            = "unknown_availability_state"
	TextCodePasswordTooLong         = "password_too_long"
)

// ErrInvalidCredentials covers both unknown email and wrong password.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned by ComparePasswordAndHash.
var ErrMismatchedHashAndPassword = ErrInvalidCredentials

var ErrDuplicateEmail = errors.New("an active user with that email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeConflict)

var ErrRoleNotFound = errors.New("role not found", errors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(errors.CodeNotFound)

var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

var ErrRoleNameTaken = errors.New("a role with that name already exists", errors.CategoryConflict).
	WithTextCode(TextCodeRoleNameTaken).
	WithCode(errors.CodeConflict)

// ErrDefaultRoleMissing signals a deployment misconfiguration, not a client error.
var ErrDefaultRoleMissing = errors.New("default role is not configured in the role table", errors.CategoryInternal).
	WithTextCode(TextCodeDefaultRoleMissing).
	WithCode(errors.CodeInternal)

var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeBadRequest)

var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

var ErrTokenSignatureInvalid = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenSignatureInvalid).
	WithCode(errors.CodeUnauthorized)

var ErrMembershipAlreadyActive = errors.New("user already has this role assigned", errors.CategoryConflict).
	WithTextCode(TextCodeMembershipAlreadyActive).
	WithCode(errors.CodeConflict)

var ErrMembershipNotFound = errors.New("no active membership for this user and role", errors.CategoryNotFound).
	WithTextCode(TextCodeMembershipNotFound).
	WithCode(errors.CodeNotFound)

var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyString).
	WithCode(errors.CodeBadRequest)

var ErrUnauthenticated = errors.New("full authentication is required to access this resource", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

var ErrForbidden = errors.New("access denied", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyLoginAttempts).
	WithCode(429)

var ErrInvalidPhoneNumber = errors.New("phone number is not valid", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidPhone).
	WithCode(errors.CodeBadRequest)

var ErrUnknownState = errors.New("unknown availability state", errors.CategoryValidation).
	WithTextCode(TextCodeUnknownState).
	WithCode(errors.CodeBadRequest)

var ErrPasswordTooLong = errors.New("password must not exceed 72 bytes", errors.CategoryValidation).
	WithTextCode(TextCodePasswordTooLong).
	WithCode(errors.CodeBadRequest)

// HasTextCode reports whether err carries the given text code
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for malformed tokens
func IsMalformedError(err error) bool {
	return HasTextCode(err, TextCodeTokenMalformed)
}

// IsSignatureInvalidError will check for tokens with a bad signature
func IsSignatureInvalidError(err error) bool {
	return HasTextCode(err, TextCodeTokenSignatureInvalid)
}

func withSource(base *errors.Error, source error, metadata map[string]any) error {
	clone := base.Clone()
	clone.Source = source
	if len(metadata) > 0 {
		return clone.WithMetadata(metadata)
	}
	return clone
}

package auth

import (
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidInput          = "INPUT_INVALID"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD"
	TextCodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	TextCodeRequestNotFound       = "REQUEST_NOT_FOUND"
	TextCodeCodeNotFound          = "CODE_NOT_FOUND"
	TextCodeInvalidCode           = "CODE_INVALID"
	TextCodeCodeAlreadyUsed       = "CODE_ALREADY_USED"
	TextCodeCodeExpired           = "CODE_EXPIRED"
	TextCodeCodePending           = "CODE_PENDING"
	TextCodeInvalidCreds          = "INVALID_CREDENTIALS"
	TextCodeAccountDisabled       = "ACCOUNT_DISABLED"
	TextCodeForbidden             = "FORBIDDEN"
	TextCodeConflict              = "CONFLICT"
	TextCodeUsernameTaken         = "USERNAME_TAKEN"
	TextCodeRequestNotPending     = "REQUEST_NOT_PENDING"
	TextCodeRoleNotEligible       = "ROLE_NOT_ELIGIBLE"
	TextCodeUnknownRole           = "UNKNOWN_ROLE"
	TextCodeTooManyAttempts       = "TOO_MANY_ATTEMPTS"
	TextCodeSessionEnded          = "SESSION_ENDED"
	TextCodeDigestVersionMismatch = "DIGEST_VERSION_MISMATCH"
	TextCodeMalformedDigest       = "MALFORMED_DIGEST"
	TextCodeInvalidTransition     = "INVALID_ACCOUNT_STATE_TRANSITION"
)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotFound is returned when no account matches the lookup
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRequestNotFound is returned when no registration request matches the lookup
var ErrRequestNotFound = goerrors.New("registration request not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRequestNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrCodeNotFound is returned when an enrollment code was never issued
var ErrCodeNotFound = goerrors.New("enrollment code not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrCodeAlreadyUsed is returned when consuming a code that was consumed before
var ErrCodeAlreadyUsed = goerrors.New("enrollment code has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeCodeAlreadyUsed).
	WithCode(goerrors.CodeConflict)

// ErrCodeExpired is returned when consuming a code past its expiry time
var ErrCodeExpired = goerrors.New("enrollment code has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeCodeExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrCodePending is returned when a code already backs a pending request
var ErrCodePending = goerrors.New("enrollment code is already attached to a pending request", goerrors.CategoryConflict).
	WithTextCode(TextCodeCodePending).
	WithCode(goerrors.CodeConflict)

// ErrMismatchedHashAndPassword is returned by hashers when the password does not match
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is returned by login when verification fails
var ErrInvalidCredentials = ErrMismatchedHashAndPassword

// ErrAccountDisabled is returned when a disabled account attempts to authenticate
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrForbidden is returned when the authorization policy denies an action
var ErrForbidden = goerrors.New("not authorized to perform this action", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrUsernameTaken is returned when the requested username already exists
var ErrUsernameTaken = goerrors.New("username is already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

// ErrRequestNotPending is returned when acting on an already processed request
var ErrRequestNotPending = goerrors.New("registration request is no longer pending", goerrors.CategoryConflict).
	WithTextCode(TextCodeRequestNotPending).
	WithCode(goerrors.CodeConflict)

// ErrRoleNotEligible is returned when a role may not hold a remember token
var ErrRoleNotEligible = goerrors.New("role is not eligible for remember me", goerrors.CategoryAuthz).
	WithTextCode(TextCodeRoleNotEligible).
	WithCode(goerrors.CodeForbidden)

// ErrUnknownRole is returned when an account carries a role with no policy
var ErrUnknownRole = goerrors.New("account has an unknown or invalid role", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnknownRole).
	WithCode(goerrors.CodeForbidden)

// ErrTooManyLoginAttempts is returned when login attempts exceed the allowed budget
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrSessionEnded is returned when operating on a session that is no longer live
var ErrSessionEnded = goerrors.New("session has ended", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionEnded).
	WithCode(goerrors.CodeUnauthorized)

// ErrDigestVersionMismatch is returned when a stored digest was produced with other hashing parameters
var ErrDigestVersionMismatch = goerrors.New("password digest was created with different parameters", goerrors.CategoryAuth).
	WithTextCode(TextCodeDigestVersionMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrMalformedDigest is returned when a stored digest can not be parsed
var ErrMalformedDigest = goerrors.New("password digest is malformed", goerrors.CategoryInternal).
	WithTextCode(TextCodeMalformedDigest).
	WithCode(goerrors.CodeInternal)

func newInputError(message string, err error) *goerrors.Error {
	if err == nil {
		return goerrors.New(message, goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidInput).
			WithCode(goerrors.CodeBadRequest)
	}
	return goerrors.Wrap(err, goerrors.CategoryBadInput, message).
		WithTextCode(TextCodeInvalidInput).
		WithCode(goerrors.CodeBadRequest)
}

func newInvalidCodeError(reason CodeInvalidReason) *goerrors.Error {
	return goerrors.New("enrollment code is not valid", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidCode).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"reason": string(reason)})
}

func newConflictError(message string, metadata map[string]any) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithTextCode(TextCodeConflict).
		WithCode(goerrors.CodeConflict).
		WithMetadata(metadata)
}

// TextCode returns the first text code found in the error chain
func TextCode(err error) string {
	for err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			return ""
		}
		if rich.TextCode != "" {
			return rich.TextCode
		}
		err = stderrors.Unwrap(rich)
	}
	return ""
}

// HasTextCode reports whether err carries the given text code
func HasTextCode(err error, code string) bool {
	return err != nil && TextCode(err) == code
}

// IsNotFound reports whether err is one of the not found outcomes
func IsNotFound(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryNotFound
	}
	return false
}

var userMessages = map[string]string{
	TextCodeInvalidInput:          "some of the information provided is missing or invalid, please review the form",
	TextCodeEmptyPassword:         "please enter a password",
	TextCodeAccountNotFound:       "no account exists with this username",
	TextCodeRequestNotFound:       "this registration request does not exist",
	TextCodeCodeNotFound:          "this enrollment code does not exist",
	TextCodeInvalidCode:           "this enrollment code is not valid, check it or ask for a new one",
	TextCodeCodeAlreadyUsed:       "this code has already been used",
	TextCodeCodeExpired:           "this code has expired, ask for a new one",
	TextCodeCodePending:           "a registration with this code is already waiting for review",
	TextCodeInvalidCreds:          "the username or password is incorrect",
	TextCodeAccountDisabled:       "this account has been disabled, contact an administrator",
	TextCodeForbidden:             "you are not allowed to perform this action",
	TextCodeConflict:              "the record was changed by someone else, reload and try again",
	TextCodeUsernameTaken:         "this username is already taken, choose another one",
	TextCodeRequestNotPending:     "this registration request has already been processed",
	TextCodeRoleNotEligible:       "remember me is not available for this role",
	TextCodeUnknownRole:           "this account has an unknown role, contact an administrator",
	TextCodeTooManyAttempts:       "too many login attempts, wait a moment and try again",
	TextCodeSessionEnded:          "your session has ended, please log in again",
	TextCodeDigestVersionMismatch: "your password must be reset by an administrator",
	TextCodeMalformedDigest:       "your password must be reset by an administrator",
	TextCodeInvalidTransition:     "this account can not change to the requested status",
}

// UserMessage maps an error to an actionable, user facing message
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[TextCode(err)]; ok {
		return msg
	}
	return "an unexpected error occurred, please try again"
}

package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords; callers must not be able to tell them apart.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountDisabled reports an active lockout. Unlike credential
	// failures this is an operational state and may be disclosed.
	ErrAccountDisabled = errors.New("auth: account disabled")

	ErrInvalidRefreshToken  = errors.New("auth: invalid refresh token")
	ErrUnsupportedGrantType = errors.New("auth: unsupported grant type")
	ErrInvalidRole          = errors.New("auth: invalid role")

	// ErrProvisioningPartial reports a role replacement that removed the
	// existing roles but failed to apply the requested set. The user is
	// left with fewer roles than requested; there is no rollback.
	ErrProvisioningPartial = errors.New("auth: partial role provisioning")

	// ErrInvalidToken indicates a bearer token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
)

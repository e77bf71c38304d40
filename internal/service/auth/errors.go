package auth

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrEmailTaken          = errors.New("email already registered")
	ErrAccountExists       = errors.New("account already exists")
	ErrRegistrationClosed  = errors.New("registration is closed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrForbidden           = errors.New("admin access required")
	ErrRefreshRequired     = errors.New("refresh token required")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrAccountNotFound     = errors.New("account not found")
)

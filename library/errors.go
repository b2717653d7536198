package library

import "errors"

// Domain errors. Operations wrap them with context; test with errors.Is.
var (
	ErrAuth            = errors.New("authentication failed")
	ErrNotFound        = errors.New("not found")
	ErrOutOfStock      = errors.New("out of stock")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrAuthorization   = errors.New("not allowed")
	ErrInvalidState    = errors.New("invalid state")
)

var (
	// ErrInvalidCredentials is returned by Login.
	ErrInvalidCredentials = &authError{"invalid credentials"}
	// ErrEmailInUse is returned by Register.
	ErrEmailInUse = &authError{"email already in use"}
)

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

func (e *authError) Unwrap() error { return ErrAuth }

package auth

import (
	"errors"
)

// Ошибки авторизации
var (
	ErrValidation       = errors.New("validation error")
	ErrNotAuthenticated = errors.New("not authenticated")
)

package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateToken проверяет, что строка похожа на bearer token:
// непустая, без пробелов и управляющих символов.
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w, empty token", ErrValidation)
	}

	for _, r := range token {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w, token contains whitespace or control characters", ErrValidation)
		}
	}

	return nil
}

package auth

import (
	"context"
	"sync"
	"time"
)

// Аутентификацией владеет внешний провайдер: модуль только хранит
// выданный им access token и отдает его клиенту бэкенда генерации.

// TokenProvider отдает действующий access token.
type TokenProvider interface {
	// Token возвращает токен для заголовка Authorization.
	Token(ctx context.Context) (string, error)
}

// Session реализует TokenProvider поверх токена внешнего провайдера.
type Session struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewSession создает сессию с токеном. Нулевое expiresAt означает
// токен без срока действия.
func NewSession(token string, expiresAt time.Time) (*Session, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}
	return &Session{token: token, expiresAt: expiresAt}, nil
}

// Token возвращает токен сессии. ErrNotAuthenticated, если срок вышел.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		return "", ErrNotAuthenticated
	}
	return s.token, nil
}

// Refresh заменяет токен сессии на свежий.
func (s *Session) Refresh(token string, expiresAt time.Time) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
	return nil
}

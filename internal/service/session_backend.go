package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/nutrimatic/plataforma/internal/session"
)

// SessionBackend adapta o AuthService ao protocolo de sessão usado
// pelo stream do dashboard. Cada conexão carrega seus próprios
// tokens.
type SessionBackend struct {
	auth         *AuthService
	accessToken  string
	refreshToken string
}

func NewSessionBackend(auth *AuthService, accessToken, refreshToken string) *SessionBackend {
	return &SessionBackend{auth: auth, accessToken: accessToken, refreshToken: refreshToken}
}

// GetSession valida o token de acesso; token ausente ou inválido
// significa "sem sessão", não erro.
func (b *SessionBackend) GetSession(ctx context.Context) (*session.User, error) {
	if b.accessToken == "" {
		return nil, nil
	}
	claims, err := b.auth.JWT().ParseAndValidate(b.accessToken)
	if err != nil {
		return nil, nil
	}
	return &session.User{ID: claims.Subject}, nil
}

// GetProfile busca o cadastro da profissional.
func (b *SessionBackend) GetProfile(ctx context.Context, userID string) (*session.Profile, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, err
	}
	profile, err := b.auth.GetMe(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &session.Profile{
		ID:    profile.ID,
		Nome:  profile.Nome,
		Email: profile.Email,
	}, nil
}

// SignOut revoga o refresh token da conexão.
func (b *SessionBackend) SignOut(ctx context.Context) error {
	return b.auth.Logout(ctx, b.refreshToken)
}

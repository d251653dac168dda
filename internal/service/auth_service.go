package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/nutrimatic/plataforma/internal/auth"
	"github.com/nutrimatic/plataforma/internal/nutricionista"
	"github.com/nutrimatic/plataforma/internal/repo"
	"github.com/nutrimatic/plataforma/internal/util"
)

// Audience única da plataforma.
const Audience = "nutricionista"

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrAccountDisabled indica conta desativada.
	ErrAccountDisabled = errors.New("conta desativada")
	// ErrRefreshInvalid indica refresh token inválido ou expirado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
	// ErrBackendUnavailable indica serviço subindo sem persistência.
	ErrBackendUnavailable = errors.New("backend não configurado")
)

type authRepository interface {
	GetByEmail(ctx context.Context, email string) (nutricionista.Nutricionista, error)
	GetByID(ctx context.Context, id uuid.UUID) (nutricionista.Nutricionista, error)
}

type tokenRepository interface {
	ReplaceRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.TokenRefresh, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra regras de autenticação e sessões.
type AuthService struct {
	repo       authRepository
	tokens     tokenRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	refreshTTL time.Duration
}

// NewAuthService cria novo serviço.
func NewAuthService(r authRepository, tokens tokenRepository, redisClient redisCommander, jwtMgr *auth.JWTManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{repo: r, tokens: tokens, redis: redisClient, jwt: jwtMgr, refreshTTL: refreshTTL}
}

// JWT expõe gerenciador de JWT (útil em middlewares).
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// Profile é o cadastro denormalizado carregado no login.
type Profile struct {
	ID           string `json:"id"`
	Nome         string `json:"nome"`
	Email        string `json:"email"`
	Telefone     string `json:"telefone,omitempty"`
	PrescMax     int    `json:"presc_max"`
	PrescGeradas int    `json:"presc_geradas"`
}

// LoginResult representa retorno padrão de autenticações.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	Subject       uuid.UUID
	Profile       *Profile
	RefreshHash   string
	RefreshExpiry time.Time
}

// Login autentica a profissional por e-mail e senha.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if s.repo == nil {
		return nil, ErrBackendUnavailable
	}

	user, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, nutricionista.ErrNotFound) {
			log.Warn().Msg("login: usuária não encontrada")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verify password failed")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login: senha inválida")
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user nutricionista.Nutricionista) (*LoginResult, error) {
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	token, _, err := s.jwt.GenerateAccessToken(user.ID.String(), Audience, nil)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expires := util.Now().Add(s.refreshTTL)
	if err := s.persistRefresh(ctx, user.ID, refreshHash, expires); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       user.ID,
		Profile:       buildProfile(user),
		RefreshHash:   refreshHash,
		RefreshExpiry: expires,
	}, nil
}

// Refresh troca refresh token por novos tokens, revogando o anterior.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}
	if s.repo == nil {
		return nil, ErrBackendUnavailable
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.tokens.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if record.Revogado || util.Now().After(record.Expiracao) || record.Audience != Audience {
		return nil, ErrRefreshInvalid
	}

	redisKey := auth.RefreshRedisKey(Audience, hash)
	status, err := s.redis.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if status != "active" {
		return nil, ErrRefreshInvalid
	}

	user, err := s.repo.GetByID(ctx, record.Subject)
	if err != nil {
		return nil, err
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && err != redis.Nil {
		return nil, err
	}
	return result, nil
}

// Logout revoga refresh token atual.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" || s.tokens == nil {
		return nil
	}
	hash := auth.HashRefreshToken(rawToken)
	if err := s.tokens.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	redisKey := auth.RefreshRedisKey(Audience, hash)
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// GetMe retorna o perfil completo do subject.
func (s *AuthService) GetMe(ctx context.Context, subject uuid.UUID) (*Profile, error) {
	if s.repo == nil {
		return nil, ErrBackendUnavailable
	}

	user, err := s.repo.GetByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	return buildProfile(user), nil
}

func (s *AuthService) persistRefresh(ctx context.Context, subject uuid.UUID, hash string, expires time.Time) error {
	_, err := s.tokens.ReplaceRefreshToken(ctx, repo.InsertRefreshTokenParams{
		ID:        uuid.New(),
		Subject:   subject,
		Audience:  Audience,
		TokenHash: hash,
		Expiracao: expires,
		CriadoEm:  util.Now(),
	})
	if err != nil {
		return err
	}

	return s.redis.Set(ctx, auth.RefreshRedisKey(Audience, hash), "active", time.Until(expires)).Err()
}

func buildProfile(user nutricionista.Nutricionista) *Profile {
	return &Profile{
		ID:           user.ID.String(),
		Nome:         user.Nome,
		Email:        user.Email,
		Telefone:     user.Telefone,
		PrescMax:     user.PrescMax,
		PrescGeradas: user.PrescGeradas,
	}
}

package repo

import (
	"time"

	"github.com/google/uuid"
)

// TokenRefresh modela tabela de refresh tokens.
type TokenRefresh struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Audience  string
	TokenHash string
	Expiracao time.Time
	CriadoEm  time.Time
	Revogado  bool
}

// InsertRefreshTokenParams agrupa os campos de criação.
type InsertRefreshTokenParams struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Audience  string
	TokenHash string
	Expiracao time.Time
	CriadoEm  time.Time
}

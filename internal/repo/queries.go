package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutrimatic/plataforma/internal/db"
)

const dbTimeout = 3 * time.Second

// Queries fornece a persistência de refresh tokens.
type Queries struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Queries {
	return &Queries{db: db}
}

const tokenColumns = `id, subject, audience, token_hash, expiracao, criado_em, revogado`

// ReplaceRefreshToken grava o novo refresh token e revoga os demais
// tokens vivos do sujeito na mesma transação. A rotação nunca deixa
// dois tokens válidos para a mesma audiência.
func (q *Queries) ReplaceRefreshToken(ctx context.Context, arg InsertRefreshTokenParams) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var token TokenRefresh
	err := db.WithTx(ctx, q.db, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tokens_refresh (id, subject, audience, token_hash, expiracao, criado_em)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+tokenColumns+`
		`, arg.ID, arg.Subject, arg.Audience, arg.TokenHash, arg.Expiracao, arg.CriadoEm)

		var scanErr error
		token, scanErr = scanToken(row)
		if scanErr != nil {
			return scanErr
		}

		_, execErr := tx.Exec(ctx, `
			UPDATE tokens_refresh
			SET revogado = TRUE
			WHERE subject = $1 AND audience = $2 AND token_hash <> $3 AND NOT revogado
		`, arg.Subject, arg.Audience, arg.TokenHash)
		return execErr
	})
	return token, err
}

// GetRefreshTokenByHash busca token pelo hash.
func (q *Queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := q.db.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens_refresh
		WHERE token_hash = $1
	`, tokenHash)
	return scanToken(row)
}

// RevokeRefreshToken marca o token como revogado.
func (q *Queries) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := q.db.Exec(ctx, `
		UPDATE tokens_refresh
		SET revogado = TRUE
		WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanToken(row pgx.Row) (TokenRefresh, error) {
	var t TokenRefresh
	err := row.Scan(
		&t.ID,
		&t.Subject,
		&t.Audience,
		&t.TokenHash,
		&t.Expiracao,
		&t.CriadoEm,
		&t.Revogado,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenRefresh{}, ErrNotFound
		}
		return TokenRefresh{}, err
	}
	return t, nil
}

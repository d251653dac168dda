package nutricionista

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela nutricionistas.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, nome, email, telefone, senha_hash, active, presc_max, presc_geradas, regras, created_at`

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Nutricionista, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM nutricionistas
		WHERE id = $1
	`, id)
	return scanNutricionista(row)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (Nutricionista, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM nutricionistas
		WHERE lower(email) = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	return scanNutricionista(row)
}

func scanNutricionista(row pgx.Row) (Nutricionista, error) {
	var n Nutricionista
	err := row.Scan(
		&n.ID,
		&n.Nome,
		&n.Email,
		&n.Telefone,
		&n.SenhaHash,
		&n.Active,
		&n.PrescMax,
		&n.PrescGeradas,
		&n.Regras,
		&n.CriadoEm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Nutricionista{}, ErrNotFound
		}
		return Nutricionista{}, err
	}
	return n, nil
}

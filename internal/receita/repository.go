package receita

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela receitas.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, identificacao, nome, url, status, rejection_observation, created_at`

// ListByOwner devolve as receitas da dona, mais recentes primeiro.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Receita, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM receitas
		WHERE identificacao = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receitas []Receita
	for rows.Next() {
		rec, err := scanReceita(rows)
		if err != nil {
			return nil, err
		}
		receitas = append(receitas, rec)
	}
	return receitas, rows.Err()
}

// Insert grava a receita recebida do fluxo de automação.
func (r *Repository) Insert(ctx context.Context, rec Receita) (Receita, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO receitas (id, identificacao, nome, url, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+selectColumns+`
	`, rec.ID, rec.Identificacao, rec.Nome, rec.URL, rec.Status)
	return scanReceita(row)
}

// UpdateStatus persiste a transição de status, sempre escopada pela
// dona, e devolve a linha atualizada.
func (r *Repository) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status string, observation *string) (Receita, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		UPDATE receitas
		SET status = $3, rejection_observation = $4
		WHERE id = $1 AND identificacao = $2
		RETURNING `+selectColumns+`
	`, id, ownerID, status, observation)
	rec, err := scanReceita(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receita{}, ErrNotFound
		}
		return Receita{}, err
	}
	return rec, nil
}

func scanReceita(row pgx.Row) (Receita, error) {
	var rec Receita
	err := row.Scan(
		&rec.ID,
		&rec.Identificacao,
		&rec.Nome,
		&rec.URL,
		&rec.Status,
		&rec.RejectionObservation,
		&rec.CriadoEm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receita{}, ErrNotFound
		}
		return Receita{}, err
	}
	return rec, nil
}

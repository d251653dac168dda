package cliente

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela clientes.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, identificacao, nome, numero, status, created_at`

// ListByOwner devolve as clientes da dona, mais recentes primeiro.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Cliente, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM clientes
		WHERE identificacao = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clientes []Cliente
	for rows.Next() {
		cli, err := scanCliente(rows)
		if err != nil {
			return nil, err
		}
		clientes = append(clientes, cli)
	}
	return clientes, rows.Err()
}

// Insert grava a cliente criada pelo formulário do painel.
func (r *Repository) Insert(ctx context.Context, cli Cliente) (Cliente, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO clientes (id, identificacao, nome, numero, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+selectColumns+`
	`, cli.ID, cli.Identificacao, cli.Nome, cli.Numero, cli.Status)
	return scanCliente(row)
}

func scanCliente(row pgx.Row) (Cliente, error) {
	var cli Cliente
	err := row.Scan(
		&cli.ID,
		&cli.Identificacao,
		&cli.Nome,
		&cli.Numero,
		&cli.Status,
		&cli.CriadoEm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cliente{}, ErrNotFound
		}
		return Cliente{}, err
	}
	return cli, nil
}

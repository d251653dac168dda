package agenda

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela agenda_eventos.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, identificacao, dia, horario, acao, numero, cliente_id, created_at`

// ListByOwner devolve os eventos da dona ordenados por dia e horário.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM agenda_eventos
		WHERE identificacao = $1
		ORDER BY dia DESC, horario DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eventos []Evento
	for rows.Next() {
		ev, err := scanEvento(rows)
		if err != nil {
			return nil, err
		}
		eventos = append(eventos, ev)
	}
	return eventos, rows.Err()
}

// Insert grava o evento criado pelo painel.
func (r *Repository) Insert(ctx context.Context, ev Evento) (Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO agenda_eventos (id, identificacao, dia, horario, acao, numero, cliente_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+selectColumns+`
	`, ev.ID, ev.Identificacao, ev.Dia, ev.Horario, ev.Acao, ev.Numero, ev.ClienteID)
	return scanEvento(row)
}

// Update persiste a edição, sempre escopada pela dona.
func (r *Repository) Update(ctx context.Context, ev Evento) (Evento, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		UPDATE agenda_eventos
		SET dia = $3, horario = $4, acao = $5, numero = $6, cliente_id = $7
		WHERE id = $1 AND identificacao = $2
		RETURNING `+selectColumns+`
	`, ev.ID, ev.Identificacao, ev.Dia, ev.Horario, ev.Acao, ev.Numero, ev.ClienteID)
	updated, err := scanEvento(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evento{}, ErrNotFound
		}
		return Evento{}, err
	}
	return updated, nil
}

// Delete remove o evento da dona.
func (r *Repository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		DELETE FROM agenda_eventos
		WHERE id = $1 AND identificacao = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEvento(row pgx.Row) (Evento, error) {
	var ev Evento
	err := row.Scan(
		&ev.ID,
		&ev.Identificacao,
		&ev.Dia,
		&ev.Horario,
		&ev.Acao,
		&ev.Numero,
		&ev.ClienteID,
		&ev.CriadoEm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evento{}, ErrNotFound
		}
		return Evento{}, err
	}
	return ev, nil
}

package prescricao

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutrimatic/plataforma/internal/db"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela prescricoes.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, identificacao, status, data, cliente_id, conteudo, created_at`

// ListByOwner devolve as prescrições da dona, mais recentes primeiro.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Prescricao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM prescricoes
		WHERE identificacao = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prescricoes []Prescricao
	for rows.Next() {
		presc, err := scanPrescricao(rows)
		if err != nil {
			return nil, err
		}
		prescricoes = append(prescricoes, presc)
	}
	return prescricoes, rows.Err()
}

// UpdateStatus persiste a transição de status, sempre escopada pela
// dona, e devolve a linha atualizada.
func (r *Repository) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status string) (Prescricao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		UPDATE prescricoes
		SET status = $3
		WHERE id = $1 AND identificacao = $2
		RETURNING `+selectColumns+`
	`, id, ownerID, status)
	presc, err := scanPrescricao(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Prescricao{}, ErrNotFound
		}
		return Prescricao{}, err
	}
	return presc, nil
}

// UpdateStatusComRegras aplica a transição e grava a observação nas
// regras da profissional na mesma transação. A reprovação nunca deixa
// status e regras divergentes.
func (r *Repository) UpdateStatusComRegras(ctx context.Context, ownerID, id uuid.UUID, status, regras string) (Prescricao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var presc Prescricao
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE prescricoes
			SET status = $3
			WHERE id = $1 AND identificacao = $2
			RETURNING `+selectColumns+`
		`, id, ownerID, status)

		var scanErr error
		presc, scanErr = scanPrescricao(row)
		if scanErr != nil {
			return scanErr
		}

		cmd, execErr := tx.Exec(ctx, `
			UPDATE nutricionistas
			SET regras = $2
			WHERE id = $1
		`, ownerID, regras)
		if execErr != nil {
			return execErr
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Prescricao{}, err
	}
	return presc, nil
}

func scanPrescricao(row pgx.Row) (Prescricao, error) {
	var presc Prescricao
	err := row.Scan(
		&presc.ID,
		&presc.Identificacao,
		&presc.Status,
		&presc.Data,
		&presc.ClienteID,
		&presc.Conteudo,
		&presc.CriadoEm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Prescricao{}, ErrNotFound
		}
		return Prescricao{}, err
	}
	return presc, nil
}

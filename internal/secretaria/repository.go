package secretaria

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela secretaria_config.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectColumns = `identificacao, agent_name, business_name, creativity, emojis, consultation_time, return_time, updated_at`

// GetByOwner devolve a configuração da dona.
func (r *Repository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (Config, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM secretaria_config
		WHERE identificacao = $1
	`, ownerID)
	return scanConfig(row)
}

// Upsert grava a configuração inteira da dona.
func (r *Repository) Upsert(ctx context.Context, cfg Config) (Config, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		INSERT INTO secretaria_config
			(identificacao, agent_name, business_name, creativity, emojis, consultation_time, return_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (identificacao) DO UPDATE SET
			agent_name = EXCLUDED.agent_name,
			business_name = EXCLUDED.business_name,
			creativity = EXCLUDED.creativity,
			emojis = EXCLUDED.emojis,
			consultation_time = EXCLUDED.consultation_time,
			return_time = EXCLUDED.return_time,
			updated_at = now()
		RETURNING `+selectColumns+`
	`, cfg.Identificacao, cfg.AgentName, cfg.BusinessName, cfg.Creativity, cfg.Emojis, cfg.ConsultationTime, cfg.ReturnTime)
	return scanConfig(row)
}

func scanConfig(row pgx.Row) (Config, error) {
	var cfg Config
	err := row.Scan(
		&cfg.Identificacao,
		&cfg.AgentName,
		&cfg.BusinessName,
		&cfg.Creativity,
		&cfg.Emojis,
		&cfg.ConsultationTime,
		&cfg.ReturnTime,
		&cfg.AtualizadoEm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrNotFound
		}
		return Config{}, err
	}
	return cfg, nil
}

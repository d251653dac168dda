package prescricao

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound é retornado quando a prescrição não existe para a dona.
	ErrNotFound = errors.New("prescrição não encontrada")
	// ErrInvalidStatus indica transição de status desconhecida.
	ErrInvalidStatus = errors.New("status de prescrição inválido")
	// ErrBackendUnavailable indica escrita pedida em modo degradado.
	ErrBackendUnavailable = errors.New("backend não configurado")
)

const (
	StatusPendente  = "Pendente"
	StatusAprovada  = "Aprovada"
	StatusRefazendo = "Refazendo"
)

// Tabela do feed realtime.
const Table = "prescricoes"

// Prescricao é gerada pelo fluxo de automação a partir dos dados da
// cliente. Conteudo carrega o plano em formato livre; a plataforma
// não interpreta os campos internos.
type Prescricao struct {
	ID            uuid.UUID       `json:"id"`
	Identificacao uuid.UUID       `json:"identificacao"`
	Status        string          `json:"status"`
	Data          time.Time       `json:"data"`
	ClienteID     *uuid.UUID      `json:"cliente_id,omitempty"`
	Conteudo      json.RawMessage `json:"conteudo,omitempty"`
	CriadoEm      time.Time       `json:"created_at"`
}

func (p Prescricao) RowID() string   { return p.ID.String() }
func (p Prescricao) OwnerID() string { return p.Identificacao.String() }

// IsValidStatus indica se o status é aceito.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPendente, StatusAprovada, StatusRefazendo:
		return true
	}
	return false
}

// Stats agrega contagens por status e por janela de tempo, no mesmo
// formato das receitas.
type Stats struct {
	Total     int `json:"total"`
	Pendentes int `json:"pendentes"`
	Aprovadas int `json:"aprovadas"`
	Refazendo int `json:"refazendo"`
	Semana    int `json:"semana"`
	Mes       int `json:"mes"`
}

// BuildStats calcula as contagens relativas a now. Semana começa na
// segunda-feira; mês no dia primeiro.
func BuildStats(items []Prescricao, now time.Time) Stats {
	stats := Stats{Total: len(items)}
	weekStart := startOfWeek(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	for _, item := range items {
		switch item.Status {
		case StatusAprovada:
			stats.Aprovadas++
		case StatusRefazendo:
			stats.Refazendo++
		default:
			stats.Pendentes++
		}
		if !item.CriadoEm.Before(weekStart) {
			stats.Semana++
		}
		if !item.CriadoEm.Before(monthStart) {
			stats.Mes++
		}
	}
	return stats
}

func startOfWeek(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

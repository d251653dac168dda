package receita

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound é retornado quando a receita não existe para a dona.
	ErrNotFound = errors.New("receita não encontrada")
	// ErrInvalidStatus indica transição de status desconhecida.
	ErrInvalidStatus = errors.New("status de receita inválido")
	// ErrBackendUnavailable indica escrita pedida em modo degradado.
	ErrBackendUnavailable = errors.New("backend não configurado")
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Tabela do feed realtime.
const Table = "receitas"

// Receita é criada pelo fluxo de automação e aprovada/reprovada pela
// profissional. O status vive no banco de registro; os webhooks são
// apenas notificação.
type Receita struct {
	ID                   uuid.UUID `json:"id"`
	Identificacao        uuid.UUID `json:"identificacao"`
	Nome                 string    `json:"nome"`
	URL                  string    `json:"url"`
	Status               string    `json:"status"`
	RejectionObservation *string   `json:"rejection_observation,omitempty"`
	CriadoEm             time.Time `json:"created_at"`
}

func (r Receita) RowID() string   { return r.ID.String() }
func (r Receita) OwnerID() string { return r.Identificacao.String() }

// IsValidStatus indica se o status é aceito.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Stats agrega contagens por status e por janela de tempo. Funções
// puras sobre a coleção em memória; recalculado a cada uso porque as
// coleções são pequenas.
type Stats struct {
	Total      int `json:"total"`
	Pendentes  int `json:"pendentes"`
	Aprovadas  int `json:"aprovadas"`
	Rejeitadas int `json:"rejeitadas"`
	Semana     int `json:"semana"`
	Mes        int `json:"mes"`
}

// BuildStats calcula as contagens relativas a now. Semana começa na
// segunda-feira; mês no dia primeiro.
func BuildStats(items []Receita, now time.Time) Stats {
	stats := Stats{Total: len(items)}
	weekStart := startOfWeek(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	for _, item := range items {
		switch item.Status {
		case StatusApproved:
			stats.Aprovadas++
		case StatusRejected:
			stats.Rejeitadas++
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

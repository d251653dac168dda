package agenda

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound é retornado quando o evento não existe para a dona.
var (
	ErrNotFound = errors.New("evento não encontrado")
	// ErrBackendUnavailable indica escrita pedida em modo degradado.
	ErrBackendUnavailable = errors.New("backend não configurado")
)

// Tabela do feed realtime.
const Table = "agenda_eventos"

// Evento é um compromisso da agenda da profissional. Dia e Horario
// ficam como texto no formato do painel (AAAA-MM-DD e HH:MM).
type Evento struct {
	ID            uuid.UUID  `json:"id"`
	Identificacao uuid.UUID  `json:"identificacao"`
	Dia           string     `json:"dia"`
	Horario       string     `json:"horario"`
	Acao          string     `json:"acao"`
	Numero        string     `json:"numero"`
	ClienteID     *uuid.UUID `json:"cliente_id,omitempty"`
	CriadoEm      time.Time  `json:"created_at"`
}

func (e Evento) RowID() string   { return e.ID.String() }
func (e Evento) OwnerID() string { return e.Identificacao.String() }

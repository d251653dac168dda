package secretaria

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound é retornado quando a dona ainda não configurou a agente.
	ErrNotFound = errors.New("configuração não encontrada")
	// ErrCreativityRange indica criatividade fora do intervalo 0..1.
	ErrCreativityRange = errors.New("criatividade deve ficar entre 0 e 1")
	// ErrBackendUnavailable indica escrita pedida em modo degradado.
	ErrBackendUnavailable = errors.New("backend não configurado")
)

// Tabela do feed realtime.
const Table = "secretaria_config"

// Config é a configuração da agente de IA que atende o WhatsApp da
// profissional. Uma linha por dona.
type Config struct {
	Identificacao    uuid.UUID `json:"identificacao"`
	AgentName        string    `json:"agent_name"`
	BusinessName     string    `json:"business_name"`
	Creativity       float64   `json:"creativity"`
	Emojis           bool      `json:"emojis"`
	ConsultationTime int       `json:"consultation_time"`
	ReturnTime       int       `json:"return_time"`
	AtualizadoEm     time.Time `json:"updated_at"`
}

// A configuração é singleton por dona; a própria identificação serve
// de chave de linha no feed.
func (c Config) RowID() string   { return c.Identificacao.String() }
func (c Config) OwnerID() string { return c.Identificacao.String() }

// Validate confere os limites dos campos.
func (c Config) Validate() error {
	if c.Creativity < 0 || c.Creativity > 1 {
		return ErrCreativityRange
	}
	return nil
}

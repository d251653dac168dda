package nutricionista

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound é retornado quando não há registro para o id/email.
	ErrNotFound = errors.New("nutricionista não encontrada")
)

// Nutricionista é o registro da(o) profissional dona da conta. Uma
// linha por usuária(o) autenticada(o).
type Nutricionista struct {
	ID           uuid.UUID `json:"id"`
	Nome         string    `json:"nome"`
	Email        string    `json:"email"`
	Telefone     string    `json:"telefone"`
	SenhaHash    string    `json:"-"`
	Active       bool      `json:"active"`
	PrescMax     int       `json:"presc_max"`
	PrescGeradas int       `json:"presc_geradas"`
	Regras       *string   `json:"regras,omitempty"`
	CriadoEm     time.Time `json:"created_at"`
}

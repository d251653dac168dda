package cliente

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound é retornado quando a cliente não existe para a dona.
var (
	ErrNotFound = errors.New("cliente não encontrada")
	// ErrBackendUnavailable indica escrita pedida em modo degradado.
	ErrBackendUnavailable = errors.New("backend não configurado")
)

const (
	StatusNovo    = "novo"
	StatusAtivo   = "ativo"
	StatusInativo = "inativo"
)

// Tabela do feed realtime.
const Table = "clientes"

// Cliente é a paciente atendida pela profissional. Criada pelo
// formulário do painel; o restante do ciclo de vida é conduzido pelo
// fluxo de automação via realtime.
type Cliente struct {
	ID            uuid.UUID `json:"id"`
	Identificacao uuid.UUID `json:"identificacao"`
	Nome          string    `json:"nome"`
	Numero        string    `json:"numero"`
	Status        string    `json:"status"`
	CriadoEm      time.Time `json:"created_at"`
}

func (c Cliente) RowID() string   { return c.ID.String() }
func (c Cliente) OwnerID() string { return c.Identificacao.String() }

package cliente

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutrimatic/plataforma/internal/cache"
	"github.com/nutrimatic/plataforma/internal/realtime"
	"github.com/nutrimatic/plataforma/internal/store"
	"github.com/nutrimatic/plataforma/internal/util"
	"github.com/nutrimatic/plataforma/internal/webhook"
)

type repository interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Cliente, error)
	Insert(ctx context.Context, cli Cliente) (Cliente, error)
}

type publisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}

type notifyQueue interface {
	Enqueue(urls []string, payload any)
}

// Service concentra as regras de clientes: carga sincronizada e
// cadastro validado. A escrita é direta no banco de registro; o
// webhook apenas avisa o fluxo de automação.
type Service struct {
	repo   repository
	col    *store.Collection[Cliente]
	pub    publisher
	queue  notifyQueue
	urls   []string
	logger zerolog.Logger
}

// NewService monta o serviço. repo nulo ativa modo degradado.
func NewService(repo repository, cacheStore *cache.Store, feed *realtime.Feed, queue notifyQueue, urls []string, notifier store.Notifier, logger zerolog.Logger) *Service {
	s := &Service{
		queue:  queue,
		urls:   urls,
		logger: logger,
	}
	var fetch store.Fetcher[Cliente]
	if repo != nil {
		s.repo = repo
		fetch = func(ctx context.Context, ownerID string) ([]Cliente, error) {
			uid, err := uuid.Parse(ownerID)
			if err != nil {
				return nil, err
			}
			return repo.ListByOwner(ctx, uid)
		}
	}
	if feed != nil {
		s.pub = feed
	}
	s.col = store.NewCollection(store.Options[Cliente]{
		Entity:   Table,
		Fetch:    fetch,
		Cache:    cacheStore,
		Feed:     feed,
		Notifier: notifier,
		InsertToast: func(cli Cliente) (string, string) {
			return "Nova cliente", cli.Nome
		},
		Logger: logger,
	})
	return s
}

// Close libera a assinatura do feed.
func (s *Service) Close() {
	s.col.Close()
}

// List devolve o snapshot sincronizado da dona.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Cliente] {
	return s.col.Load(ctx, ownerID.String())
}

// Reload força nova busca (retry da interface).
func (s *Service) Reload(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Cliente] {
	return s.col.Reload(ctx, ownerID.String())
}

// CreateInput são os campos do formulário de cadastro.
type CreateInput struct {
	Nome   string
	Numero string
}

// Create valida, grava no banco de registro e avisa o fluxo de
// automação em melhor esforço.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (Cliente, error) {
	if s.repo == nil {
		return Cliente{}, ErrBackendUnavailable
	}
	if err := util.RequireString(input.Nome, "nome"); err != nil {
		return Cliente{}, err
	}
	numero := util.NormalizeWhatsApp(input.Numero)
	if err := util.ValidateWhatsApp(numero); err != nil {
		return Cliente{}, err
	}

	cli := Cliente{
		ID:            uuid.New(),
		Identificacao: ownerID,
		Nome:          strings.TrimSpace(input.Nome),
		Numero:        numero,
		Status:        StatusNovo,
	}
	saved, err := s.repo.Insert(ctx, cli)
	if err != nil {
		return Cliente{}, err
	}

	s.col.Prepend(saved.OwnerID(), saved)
	s.publish(ctx, realtime.EventInsert, saved)

	if s.queue != nil {
		s.queue.Enqueue(s.urls, webhook.Payload(ownerID.String(), nil, map[string]any{
			"cliente_id": saved.ID.String(),
			"nome":       saved.Nome,
			"numero":     saved.Numero,
		}))
	}
	return saved, nil
}

func (s *Service) publish(ctx context.Context, eventType realtime.EventType, row Cliente) {
	if s.pub == nil {
		return
	}
	event := realtime.Event{Table: Table, Type: eventType}
	if raw, err := json.Marshal(row); err == nil {
		event.New = raw
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.pub.Publish(pubCtx, event); err != nil {
		s.logger.Warn().Err(err).Str("table", Table).Msg("publicação realtime falhou")
	}
}

package receita

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
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Receita, error)
	Insert(ctx context.Context, rec Receita) (Receita, error)
	UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status string, observation *string) (Receita, error)
}

type publisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}

type notifyQueue interface {
	Enqueue(urls []string, payload any)
}

// Service concentra as regras de receitas: carga sincronizada,
// ingestão vinda da automação e transições de status persistidas.
type Service struct {
	repo   repository
	col    *store.Collection[Receita]
	pub    publisher
	queue  notifyQueue
	urls   []string
	logger zerolog.Logger
}

// NewService monta o serviço. repo nulo ativa modo degradado (coleções
// vazias, sem rede).
func NewService(repo repository, cacheStore *cache.Store, feed *realtime.Feed, queue notifyQueue, urls []string, notifier store.Notifier, logger zerolog.Logger) *Service {
	s := &Service{
		queue:  queue,
		urls:   urls,
		logger: logger,
	}
	var fetch store.Fetcher[Receita]
	if repo != nil {
		s.repo = repo
		fetch = func(ctx context.Context, ownerID string) ([]Receita, error) {
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
	s.col = store.NewCollection(store.Options[Receita]{
		Entity:   Table,
		Fetch:    fetch,
		Cache:    cacheStore,
		Feed:     feed,
		Notifier: notifier,
		InsertToast: func(rec Receita) (string, string) {
			return "Nova receita", rec.Nome
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
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Receita] {
	return s.col.Load(ctx, ownerID.String())
}

// Reload força nova busca (retry da interface).
func (s *Service) Reload(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Receita] {
	return s.col.Reload(ctx, ownerID.String())
}

// Stats calcula agregados sobre o snapshot atual.
func (s *Service) Stats(ctx context.Context, ownerID uuid.UUID) Stats {
	snap := s.col.Load(ctx, ownerID.String())
	return BuildStats(snap.Items, util.Now())
}

// IngestInput são os campos aceitos do fluxo de automação.
type IngestInput struct {
	Identificacao uuid.UUID
	Nome          string
	URL           string
}

// Ingest grava receita criada pela automação e propaga o INSERT.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (Receita, error) {
	if s.repo == nil {
		return Receita{}, ErrBackendUnavailable
	}
	if err := util.RequireString(input.Nome, "nome"); err != nil {
		return Receita{}, err
	}
	if err := util.RequireString(input.URL, "url"); err != nil {
		return Receita{}, err
	}

	rec := Receita{
		ID:            uuid.New(),
		Identificacao: input.Identificacao,
		Nome:          strings.TrimSpace(input.Nome),
		URL:           strings.TrimSpace(input.URL),
		Status:        StatusPending,
	}
	saved, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return Receita{}, err
	}

	s.col.Prepend(saved.OwnerID(), saved)
	s.publish(ctx, realtime.EventInsert, saved, nil)
	return saved, nil
}

// Approve persiste o novo status e só então atualiza o estado local;
// o webhook de notificação é melhor esforço.
func (s *Service) Approve(ctx context.Context, ownerID, id uuid.UUID) (Receita, error) {
	return s.transition(ctx, ownerID, id, StatusApproved, nil)
}

// Reject persiste a reprovação com a observação da profissional.
func (s *Service) Reject(ctx context.Context, ownerID, id uuid.UUID, observation string) (Receita, error) {
	observation = strings.TrimSpace(observation)
	var obs *string
	if observation != "" {
		obs = &observation
	}
	return s.transition(ctx, ownerID, id, StatusRejected, obs)
}

func (s *Service) transition(ctx context.Context, ownerID, id uuid.UUID, status string, observation *string) (Receita, error) {
	if s.repo == nil {
		return Receita{}, ErrBackendUnavailable
	}
	if !IsValidStatus(status) {
		return Receita{}, ErrInvalidStatus
	}

	before, _ := s.current(ownerID, id)

	updated, err := s.repo.UpdateStatus(ctx, ownerID, id, status, observation)
	if err != nil {
		// Escrita falhou: nada de commit otimista no estado local.
		return Receita{}, err
	}

	s.col.Patch(updated.OwnerID(), updated.RowID(), func(Receita) Receita { return updated })
	s.publish(ctx, realtime.EventUpdate, updated, before)

	if s.queue != nil {
		fields := map[string]any{
			"receita_id": updated.ID.String(),
			"nome":       updated.Nome,
			"status":     updated.Status,
		}
		if observation != nil {
			fields["observacao"] = *observation
		}
		s.queue.Enqueue(s.urls, webhook.Payload(ownerID.String(), nil, fields))
	}
	return updated, nil
}

func (s *Service) current(ownerID, id uuid.UUID) (*Receita, bool) {
	snap := s.col.SnapshotNow(ownerID.String())
	for i := range snap.Items {
		if snap.Items[i].ID == id {
			return &snap.Items[i], true
		}
	}
	return nil, false
}

func (s *Service) publish(ctx context.Context, eventType realtime.EventType, row Receita, old *Receita) {
	if s.pub == nil {
		return
	}
	event := realtime.Event{Table: Table, Type: eventType}
	if raw, err := json.Marshal(row); err == nil {
		event.New = raw
	}
	if old != nil {
		if raw, err := json.Marshal(old); err == nil {
			event.Old = raw
		}
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.pub.Publish(pubCtx, event); err != nil {
		s.logger.Warn().Err(err).Str("table", Table).Msg("publicação realtime falhou")
	}
}

package prescricao

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
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Prescricao, error)
	UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, status string) (Prescricao, error)
	// UpdateStatusComRegras grava status e observação atomicamente; a
	// reprovação com observação nunca comita só metade.
	UpdateStatusComRegras(ctx context.Context, ownerID, id uuid.UUID, status, regras string) (Prescricao, error)
}

type publisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}

type notifyQueue interface {
	Enqueue(urls []string, payload any)
}

// Service concentra as regras de prescrições: carga sincronizada e
// transições de status. Reprovar também registra a observação nas
// regras da profissional, para o fluxo de automação refazer o plano.
type Service struct {
	repo   repository
	col    *store.Collection[Prescricao]
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
	var fetch store.Fetcher[Prescricao]
	if repo != nil {
		s.repo = repo
		fetch = func(ctx context.Context, ownerID string) ([]Prescricao, error) {
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
	s.col = store.NewCollection(store.Options[Prescricao]{
		Entity:   Table,
		Fetch:    fetch,
		Cache:    cacheStore,
		Feed:     feed,
		Notifier: notifier,
		InsertToast: func(presc Prescricao) (string, string) {
			return "Nova prescrição", "Uma nova prescrição chegou para revisão"
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
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Prescricao] {
	return s.col.Load(ctx, ownerID.String())
}

// Reload força nova busca (retry da interface).
func (s *Service) Reload(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Prescricao] {
	return s.col.Reload(ctx, ownerID.String())
}

// Stats calcula agregados sobre o snapshot atual.
func (s *Service) Stats(ctx context.Context, ownerID uuid.UUID) Stats {
	snap := s.col.Load(ctx, ownerID.String())
	return BuildStats(snap.Items, util.Now())
}

// Approve persiste o status Aprovada e atualiza o estado local.
func (s *Service) Approve(ctx context.Context, ownerID, id uuid.UUID) (Prescricao, error) {
	return s.transition(ctx, ownerID, id, StatusAprovada, "")
}

// Reject marca a prescrição como Refazendo e grava a observação nas
// regras da profissional, onde o fluxo de automação lê as instruções
// para o novo plano.
func (s *Service) Reject(ctx context.Context, ownerID, id uuid.UUID, observation string) (Prescricao, error) {
	return s.transition(ctx, ownerID, id, StatusRefazendo, strings.TrimSpace(observation))
}

func (s *Service) transition(ctx context.Context, ownerID, id uuid.UUID, status, observation string) (Prescricao, error) {
	if s.repo == nil {
		return Prescricao{}, ErrBackendUnavailable
	}
	if !IsValidStatus(status) {
		return Prescricao{}, ErrInvalidStatus
	}

	before, _ := s.current(ownerID, id)

	var updated Prescricao
	var err error
	if status == StatusRefazendo && observation != "" {
		updated, err = s.repo.UpdateStatusComRegras(ctx, ownerID, id, status, observation)
	} else {
		updated, err = s.repo.UpdateStatus(ctx, ownerID, id, status)
	}
	if err != nil {
		// Escrita falhou: nada de commit otimista no estado local.
		return Prescricao{}, err
	}

	s.col.Patch(updated.OwnerID(), updated.RowID(), func(Prescricao) Prescricao { return updated })
	s.publish(ctx, realtime.EventUpdate, updated, before)

	if s.queue != nil {
		fields := map[string]any{
			"prescricao_id": updated.ID.String(),
			"status":        updated.Status,
		}
		if observation != "" {
			fields["observacao"] = observation
		}
		s.queue.Enqueue(s.urls, webhook.Payload(ownerID.String(), nil, fields))
	}
	return updated, nil
}

func (s *Service) current(ownerID, id uuid.UUID) (*Prescricao, bool) {
	snap := s.col.SnapshotNow(ownerID.String())
	for i := range snap.Items {
		if snap.Items[i].ID == id {
			return &snap.Items[i], true
		}
	}
	return nil, false
}

func (s *Service) publish(ctx context.Context, eventType realtime.EventType, row Prescricao, old *Prescricao) {
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

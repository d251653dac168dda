package agenda

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
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Evento, error)
	Insert(ctx context.Context, ev Evento) (Evento, error)
	Update(ctx context.Context, ev Evento) (Evento, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type publisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}

type notifyQueue interface {
	Enqueue(urls []string, payload any)
}

// Service concentra as regras da agenda. Criar, editar e excluir
// seguem o mesmo caminho: escrita direta no banco de registro e
// webhook apenas como notificação.
type Service struct {
	repo   repository
	col    *store.Collection[Evento]
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
	var fetch store.Fetcher[Evento]
	if repo != nil {
		s.repo = repo
		fetch = func(ctx context.Context, ownerID string) ([]Evento, error) {
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
	s.col = store.NewCollection(store.Options[Evento]{
		Entity: Table,
		Fetch:  fetch,
		Cache:  cacheStore,
		Feed:   feed,
		Logger: logger,
	})
	return s
}

// Close libera a assinatura do feed.
func (s *Service) Close() {
	s.col.Close()
}

// List devolve o snapshot sincronizado da dona.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Evento] {
	return s.col.Load(ctx, ownerID.String())
}

// Reload força nova busca (retry da interface).
func (s *Service) Reload(ctx context.Context, ownerID uuid.UUID) store.Snapshot[Evento] {
	return s.col.Reload(ctx, ownerID.String())
}

// EventoInput são os campos editáveis de um evento.
type EventoInput struct {
	Dia       string
	Horario   string
	Acao      string
	Numero    string
	ClienteID *uuid.UUID
}

func (in EventoInput) validate() error {
	if err := util.RequireString(in.Dia, "dia"); err != nil {
		return err
	}
	if err := util.RequireString(in.Horario, "horario"); err != nil {
		return err
	}
	return util.RequireString(in.Acao, "acao")
}

// Create grava o evento e avisa o fluxo de automação.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, input EventoInput) (Evento, error) {
	if s.repo == nil {
		return Evento{}, ErrBackendUnavailable
	}
	if err := input.validate(); err != nil {
		return Evento{}, err
	}

	ev := Evento{
		ID:            uuid.New(),
		Identificacao: ownerID,
		Dia:           strings.TrimSpace(input.Dia),
		Horario:       strings.TrimSpace(input.Horario),
		Acao:          strings.TrimSpace(input.Acao),
		Numero:        util.NormalizeWhatsApp(input.Numero),
		ClienteID:     input.ClienteID,
	}
	saved, err := s.repo.Insert(ctx, ev)
	if err != nil {
		return Evento{}, err
	}

	s.col.Prepend(saved.OwnerID(), saved)
	s.publish(ctx, realtime.EventInsert, saved, nil)
	s.notify(ownerID, "criado", saved)
	return saved, nil
}

// Update persiste a edição e só então atualiza o estado local.
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, input EventoInput) (Evento, error) {
	if s.repo == nil {
		return Evento{}, ErrBackendUnavailable
	}
	if err := input.validate(); err != nil {
		return Evento{}, err
	}

	before, _ := s.current(ownerID, id)

	updated, err := s.repo.Update(ctx, Evento{
		ID:            id,
		Identificacao: ownerID,
		Dia:           strings.TrimSpace(input.Dia),
		Horario:       strings.TrimSpace(input.Horario),
		Acao:          strings.TrimSpace(input.Acao),
		Numero:        util.NormalizeWhatsApp(input.Numero),
		ClienteID:     input.ClienteID,
	})
	if err != nil {
		return Evento{}, err
	}

	s.col.Patch(updated.OwnerID(), updated.RowID(), func(Evento) Evento { return updated })
	s.publish(ctx, realtime.EventUpdate, updated, before)
	s.notify(ownerID, "editado", updated)
	return updated, nil
}

// Delete remove o evento e avisa o fluxo de automação.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if s.repo == nil {
		return ErrBackendUnavailable
	}
	before, found := s.current(ownerID, id)

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	s.col.Remove(ownerID.String(), id.String())
	if found {
		s.publishDelete(ctx, *before)
		s.notify(ownerID, "excluido", *before)
	} else {
		s.notify(ownerID, "excluido", Evento{ID: id, Identificacao: ownerID})
	}
	return nil
}

func (s *Service) notify(ownerID uuid.UUID, acao string, ev Evento) {
	if s.queue == nil {
		return
	}
	s.queue.Enqueue(s.urls, webhook.Payload(ownerID.String(), nil, map[string]any{
		"evento_id": ev.ID.String(),
		"operacao":  acao,
		"dia":       ev.Dia,
		"horario":   ev.Horario,
		"acao":      ev.Acao,
		"numero":    ev.Numero,
	}))
}

func (s *Service) current(ownerID, id uuid.UUID) (*Evento, bool) {
	snap := s.col.SnapshotNow(ownerID.String())
	for i := range snap.Items {
		if snap.Items[i].ID == id {
			return &snap.Items[i], true
		}
	}
	return nil, false
}

func (s *Service) publish(ctx context.Context, eventType realtime.EventType, row Evento, old *Evento) {
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
	s.send(ctx, event)
}

func (s *Service) publishDelete(ctx context.Context, row Evento) {
	if s.pub == nil {
		return
	}
	event := realtime.Event{Table: Table, Type: realtime.EventDelete}
	if raw, err := json.Marshal(row); err == nil {
		event.Old = raw
	}
	s.send(ctx, event)
}

func (s *Service) send(ctx context.Context, event realtime.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.pub.Publish(pubCtx, event); err != nil {
		s.logger.Warn().Err(err).Str("table", Table).Msg("publicação realtime falhou")
	}
}

package secretaria

import (
	"context"
	"encoding/json"
	"errors"
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

var (
	// ErrNoQRCode indica que os endpoints de conexão não devolveram QR.
	ErrNoQRCode = errors.New("nenhum endpoint devolveu QR code")
	// ErrNoStatus indica que a sonda de conexão não devolveu status.
	ErrNoStatus = errors.New("nenhum endpoint devolveu status de conexão")
)

type repository interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (Config, error)
	Upsert(ctx context.Context, cfg Config) (Config, error)
}

type publisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}

type notifyQueue interface {
	Enqueue(urls []string, payload any)
}

// dispatcher é o fan-out síncrono usado pelo fluxo de conexão do
// WhatsApp, que precisa da resposta (QR code, status).
type dispatcher interface {
	Send(ctx context.Context, urls []string, payload any) webhook.Result
}

// Service cuida da configuração da agente de IA (singleton por dona)
// e do fluxo de conexão do WhatsApp.
type Service struct {
	repo         repository
	col          *store.Collection[Config]
	pub          publisher
	queue        notifyQueue
	dispatcher   dispatcher
	configURLs   []string
	whatsappURLs []string
	logger       zerolog.Logger
}

// Options agrupa as dependências do serviço.
type Options struct {
	Repo         repository
	Cache        *cache.Store
	Feed         *realtime.Feed
	Queue        notifyQueue
	Dispatcher   dispatcher
	ConfigURLs   []string
	WhatsAppURLs []string
	Logger       zerolog.Logger
}

// NewService monta o serviço. Repo nulo ativa modo degradado.
func NewService(opts Options) *Service {
	s := &Service{
		queue:        opts.Queue,
		dispatcher:   opts.Dispatcher,
		configURLs:   opts.ConfigURLs,
		whatsappURLs: opts.WhatsAppURLs,
		logger:       opts.Logger,
	}
	var fetch store.Fetcher[Config]
	if opts.Repo != nil {
		s.repo = opts.Repo
		fetch = func(ctx context.Context, ownerID string) ([]Config, error) {
			uid, err := uuid.Parse(ownerID)
			if err != nil {
				return nil, err
			}
			cfg, err := opts.Repo.GetByOwner(ctx, uid)
			if errors.Is(err, ErrNotFound) {
				// Dona ainda sem configuração não é erro de carga.
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []Config{cfg}, nil
		}
	}
	if opts.Feed != nil {
		s.pub = opts.Feed
	}
	s.col = store.NewCollection(store.Options[Config]{
		Entity: Table,
		Fetch:  fetch,
		Cache:  opts.Cache,
		Feed:   opts.Feed,
		Logger: opts.Logger,
	})
	return s
}

// Close libera a assinatura do feed.
func (s *Service) Close() {
	s.col.Close()
}

// Get devolve a configuração da dona, se existir, mais o estado de
// carga do snapshot.
func (s *Service) Get(ctx context.Context, ownerID uuid.UUID) (*Config, store.Snapshot[Config]) {
	snap := s.col.Load(ctx, ownerID.String())
	if len(snap.Items) == 0 {
		return nil, snap
	}
	return &snap.Items[0], snap
}

// Reload força nova busca (retry da interface).
func (s *Service) Reload(ctx context.Context, ownerID uuid.UUID) (*Config, store.Snapshot[Config]) {
	snap := s.col.Reload(ctx, ownerID.String())
	if len(snap.Items) == 0 {
		return nil, snap
	}
	return &snap.Items[0], snap
}

// SaveInput são os campos editáveis da configuração.
type SaveInput struct {
	AgentName        string
	BusinessName     string
	Creativity       float64
	Emojis           bool
	ConsultationTime int
	ReturnTime       int
}

// Save valida, grava a configuração inteira e avisa o fluxo de
// automação em melhor esforço.
func (s *Service) Save(ctx context.Context, ownerID uuid.UUID, input SaveInput) (Config, error) {
	if s.repo == nil {
		return Config{}, ErrBackendUnavailable
	}
	if err := util.RequireString(input.AgentName, "agent_name"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Identificacao:    ownerID,
		AgentName:        strings.TrimSpace(input.AgentName),
		BusinessName:     strings.TrimSpace(input.BusinessName),
		Creativity:       input.Creativity,
		Emojis:           input.Emojis,
		ConsultationTime: input.ConsultationTime,
		ReturnTime:       input.ReturnTime,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	saved, err := s.repo.Upsert(ctx, cfg)
	if err != nil {
		return Config{}, err
	}

	created := s.installSingleton(saved)
	eventType := realtime.EventUpdate
	if created {
		// Primeira gravação: réplicas remotas ainda não conhecem a
		// linha e descartariam um UPDATE para id desconhecido.
		eventType = realtime.EventInsert
	}
	s.publish(ctx, eventType, saved)

	if s.queue != nil {
		s.queue.Enqueue(s.configURLs, webhook.Payload(ownerID.String(), nil, map[string]any{
			"agent_name":        saved.AgentName,
			"business_name":     saved.BusinessName,
			"creativity":        saved.Creativity,
			"emojis":            saved.Emojis,
			"consultation_time": saved.ConsultationTime,
			"return_time":       saved.ReturnTime,
		}))
	}
	return saved, nil
}

// ConnectWhatsApp pede o QR code de pareamento aos endpoints de
// conexão. Diferente das notificações, aqui a resposta importa, então
// o fan-out é aguardado.
func (s *Service) ConnectWhatsApp(ctx context.Context, ownerID uuid.UUID) (string, error) {
	res := s.dispatcher.Send(ctx, s.whatsappURLs, webhook.Payload(ownerID.String(), nil, map[string]any{
		"operacao": "conectar",
	}))
	if qr, ok := webhook.ExtractQRCode(res); ok {
		return qr, nil
	}
	if !res.OK() {
		s.logger.Warn().Str("user_id", ownerID.String()).Msg("conexão whatsapp sem resposta utilizável")
	}
	return "", ErrNoQRCode
}

// ConnectionStatus sonda os endpoints e normaliza a resposta para
// conectado ou desconectado.
func (s *Service) ConnectionStatus(ctx context.Context, ownerID uuid.UUID) (string, error) {
	res := s.dispatcher.Send(ctx, s.whatsappURLs, webhook.Payload(ownerID.String(), nil, map[string]any{
		"operacao": "status",
	}))
	if status, ok := webhook.ExtractConnectionStatus(res); ok {
		return status, nil
	}
	return "", ErrNoStatus
}

// installSingleton troca a única linha da dona pelo valor gravado e
// informa se a linha acabou de ser criada.
func (s *Service) installSingleton(cfg Config) bool {
	owner := cfg.OwnerID()
	snap := s.col.SnapshotNow(owner)
	if len(snap.Items) == 0 {
		s.col.Prepend(owner, cfg)
		return true
	}
	s.col.Patch(owner, cfg.RowID(), func(Config) Config { return cfg })
	return false
}

func (s *Service) publish(ctx context.Context, eventType realtime.EventType, cfg Config) {
	if s.pub == nil {
		return
	}
	event := realtime.Event{Table: Table, Type: eventType}
	if raw, err := json.Marshal(cfg); err == nil {
		event.New = raw
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.pub.Publish(pubCtx, event); err != nil {
		s.logger.Warn().Err(err).Str("table", Table).Msg("publicação realtime falhou")
	}
}

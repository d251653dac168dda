package secretaria

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutrimatic/plataforma/internal/realtime"
	"github.com/nutrimatic/plataforma/internal/webhook"
)

type stubRepo struct {
	configs map[uuid.UUID]Config
}

func (s *stubRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (Config, error) {
	cfg, ok := s.configs[ownerID]
	if !ok {
		return Config{}, ErrNotFound
	}
	return cfg, nil
}

func (s *stubRepo) Upsert(ctx context.Context, cfg Config) (Config, error) {
	if s.configs == nil {
		s.configs = map[uuid.UUID]Config{}
	}
	s.configs[cfg.Identificacao] = cfg
	return cfg, nil
}

type stubQueue struct {
	payloads []any
}

func (s *stubQueue) Enqueue(urls []string, payload any) {
	s.payloads = append(s.payloads, payload)
}

type stubDispatcher struct {
	result webhook.Result
}

func (s *stubDispatcher) Send(ctx context.Context, urls []string, payload any) webhook.Result {
	return s.result
}

func newTestService(repo *stubRepo, queue *stubQueue, disp *stubDispatcher) *Service {
	return NewService(Options{
		Repo:         repo,
		Queue:        queue,
		Dispatcher:   disp,
		ConfigURLs:   []string{"http://teste"},
		WhatsAppURLs: []string{"http://whatsapp"},
		Logger:       zerolog.New(io.Discard),
	})
}

func TestGetBeforeFirstSaveIsEmptyNotError(t *testing.T) {
	owner := uuid.New()
	svc := newTestService(&stubRepo{}, &stubQueue{}, nil)

	cfg, snap := svc.Get(context.Background(), owner)
	if cfg != nil {
		t.Fatalf("dona sem configuração devolve nil: %+v", cfg)
	}
	if snap.Err != "" {
		t.Fatalf("ausência de configuração não é erro: %q", snap.Err)
	}
	if !snap.Initialized {
		t.Fatal("snapshot deveria estar inicializado")
	}
}

func TestSaveUpsertsSingletonAndNotifies(t *testing.T) {
	owner := uuid.New()
	repo := &stubRepo{}
	queue := &stubQueue{}
	svc := newTestService(repo, queue, nil)
	svc.Get(context.Background(), owner)

	saved, err := svc.Save(context.Background(), owner, SaveInput{
		AgentName:        "Clara",
		BusinessName:     "Consultório Vida",
		Creativity:       0.7,
		Emojis:           true,
		ConsultationTime: 40,
		ReturnTime:       20,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg, _ := svc.Get(context.Background(), owner)
	if cfg == nil || cfg.AgentName != "Clara" {
		t.Fatalf("singleton não instalado: %+v", cfg)
	}

	// Segundo Save substitui, não duplica.
	if _, err := svc.Save(context.Background(), owner, SaveInput{AgentName: "Lia", Creativity: 0.2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg, snap := svc.Get(context.Background(), owner)
	if len(snap.Items) != 1 || cfg.AgentName != "Lia" {
		t.Fatalf("configuração é singleton por dona: %+v", snap.Items)
	}

	if repo.configs[owner].AgentName != "Lia" {
		t.Fatal("upsert deveria persistir no banco de registro")
	}
	if len(queue.payloads) != 2 {
		t.Fatalf("cada Save dispara um webhook, veio %d", len(queue.payloads))
	}
	_ = saved
}

func TestSaveRejectsCreativityOutOfRange(t *testing.T) {
	owner := uuid.New()
	repo := &stubRepo{}
	svc := newTestService(repo, &stubQueue{}, nil)

	for _, creativity := range []float64{-0.1, 1.1} {
		_, err := svc.Save(context.Background(), owner, SaveInput{AgentName: "Clara", Creativity: creativity})
		if err == nil {
			t.Fatalf("criatividade %v deveria ser rejeitada", creativity)
		}
	}
	if len(repo.configs) != 0 {
		t.Fatal("valor inválido não pode gravar")
	}
}

func TestConnectWhatsAppExtractsQRFromAnyEndpoint(t *testing.T) {
	owner := uuid.New()
	disp := &stubDispatcher{result: webhook.Result{Outcomes: []webhook.Outcome{
		{StatusCode: 500},
		{StatusCode: 200, JSON: map[string]any{"qr_code": "data:image/png;base64,abc"}},
	}}}
	svc := newTestService(&stubRepo{}, &stubQueue{}, disp)

	qr, err := svc.ConnectWhatsApp(context.Background(), owner)
	if err != nil {
		t.Fatalf("ConnectWhatsApp: %v", err)
	}
	if qr != "data:image/png;base64,abc" {
		t.Fatalf("QR errado: %q", qr)
	}
}

func TestConnectWhatsAppWithoutQRFails(t *testing.T) {
	owner := uuid.New()
	disp := &stubDispatcher{result: webhook.Result{Outcomes: []webhook.Outcome{
		{StatusCode: 500},
	}}}
	svc := newTestService(&stubRepo{}, &stubQueue{}, disp)

	if _, err := svc.ConnectWhatsApp(context.Background(), owner); err != ErrNoQRCode {
		t.Fatalf("esperava ErrNoQRCode, veio %v", err)
	}
}

func TestConnectionStatusNormalizesVocabulary(t *testing.T) {
	owner := uuid.New()
	disp := &stubDispatcher{result: webhook.Result{Outcomes: []webhook.Outcome{
		{StatusCode: 200, JSON: map[string]any{"status": "CONNECTED"}},
	}}}
	svc := newTestService(&stubRepo{}, &stubQueue{}, disp)

	status, err := svc.ConnectionStatus(context.Background(), owner)
	if err != nil {
		t.Fatalf("ConnectionStatus: %v", err)
	}
	if status != "conectado" {
		t.Fatalf("status deveria ser normalizado para conectado, veio %q", status)
	}
}

type stubPublisher struct {
	events []realtime.Event
}

func (s *stubPublisher) Publish(ctx context.Context, event realtime.Event) error {
	s.events = append(s.events, event)
	return nil
}

func TestFirstSavePublishesInsertThenUpdate(t *testing.T) {
	owner := uuid.New()
	svc := newTestService(&stubRepo{}, &stubQueue{}, nil)
	pub := &stubPublisher{}
	svc.pub = pub
	svc.Get(context.Background(), owner)

	if _, err := svc.Save(context.Background(), owner, SaveInput{AgentName: "Clara", Creativity: 0.5}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := svc.Save(context.Background(), owner, SaveInput{AgentName: "Lia", Creativity: 0.2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("cada Save publica um evento, veio %d", len(pub.events))
	}
	// A linha recém-criada precisa chegar como INSERT para coleções que
	// ainda não a conhecem; daí em diante é UPDATE.
	if pub.events[0].Type != realtime.EventInsert {
		t.Fatalf("primeira gravação deveria publicar INSERT, veio %q", pub.events[0].Type)
	}
	if pub.events[1].Type != realtime.EventUpdate {
		t.Fatalf("regravação deveria publicar UPDATE, veio %q", pub.events[1].Type)
	}
}

func TestSaveWithoutBackendFails(t *testing.T) {
	queue := &stubQueue{}
	svc := NewService(Options{
		Queue:      queue,
		ConfigURLs: []string{"http://teste"},
		Logger:     zerolog.New(io.Discard),
	})

	_, err := svc.Save(context.Background(), uuid.New(), SaveInput{AgentName: "Clara", Creativity: 0.5})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("gravação sem backend deveria dar ErrBackendUnavailable, veio %v", err)
	}
	if len(queue.payloads) != 0 {
		t.Fatal("modo degradado não pode disparar webhook")
	}
}

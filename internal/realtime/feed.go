package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// EventType identifica a mudança de linha propagada pelo feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event carrega uma mudança de linha de uma tabela.
type Event struct {
	Table string          `json:"table"`
	Type  EventType       `json:"event_type"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Channel é o canal único de NOTIFY usado pela plataforma.
const Channel = "nutrimatic_changes"

// Feed distribui eventos de mudança por tabela para assinantes locais.
// A fonte é LISTEN/NOTIFY do Postgres; eventos perdidos durante uma
// reconexão não são reexecutados.
type Feed struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func(Event)
	nextID int

	once   sync.Once
	cancel context.CancelFunc
}

// NewFeed cria o feed sem iniciar a escuta.
func NewFeed(pool *pgxpool.Pool, logger zerolog.Logger) *Feed {
	return &Feed{
		pool:   pool,
		logger: logger,
		subs:   make(map[string]map[int]func(Event)),
	}
}

// Start inicia o loop de escuta. Safe para chamar múltiplas vezes.
func (f *Feed) Start(parent context.Context) {
	f.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		f.cancel = cancel
		go f.listenLoop(ctx)
	})
}

// Stop encerra o loop de escuta.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Subscribe registra handler para eventos da tabela e devolve a função
// de cancelamento. O cancelamento é a única limpeza exigida dos
// consumidores.
func (f *Feed) Subscribe(table string, fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subs[table] == nil {
		f.subs[table] = make(map[int]func(Event))
	}
	id := f.nextID
	f.nextID++
	f.subs[table][id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[table], id)
	}
}

// Publish emite um evento via pg_notify para todos os processos
// escutando o canal, inclusive este.
func (f *Feed) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = f.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, string(payload))
	return err
}

// Dispatch entrega o evento aos assinantes da tabela. Exportado para
// permitir injeção direta em testes e em fluxos locais.
func (f *Feed) Dispatch(event Event) {
	f.mu.Lock()
	handlers := make([]func(Event), 0, len(f.subs[event.Table]))
	for _, fn := range f.subs[event.Table] {
		handlers = append(handlers, fn)
	}
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

func (f *Feed) listenLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.listenOnce(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("realtime: conexão perdida")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (f *Feed) listenOnce(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}

	f.logger.Info().Str("channel", Channel).Msg("realtime: escutando")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var event Event
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			f.logger.Warn().Err(err).Msg("realtime: payload inválido")
			continue
		}
		f.Dispatch(event)
	}
}

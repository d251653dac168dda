package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type job struct {
	urls    []string
	payload any
}

// BestEffort enfileira disparos sem bloquear quem chama. Entrega é
// melhor esforço: falhas só aparecem no log, nunca para quem enfileirou.
type BestEffort struct {
	dispatcher *Dispatcher
	logger     zerolog.Logger
	timeout    time.Duration

	queue chan job
	once  sync.Once
	wg    sync.WaitGroup
}

// NewBestEffort cria a fila e inicia o worker de entrega.
func NewBestEffort(dispatcher *Dispatcher, size int, timeout time.Duration, logger zerolog.Logger) *BestEffort {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b := &BestEffort{
		dispatcher: dispatcher,
		logger:     logger,
		timeout:    timeout,
		queue:      make(chan job, size),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Enqueue agenda o disparo e retorna imediatamente. Fila cheia descarta
// o disparo (melhor esforço, registrado no log).
func (b *BestEffort) Enqueue(urls []string, payload any) {
	if len(urls) == 0 {
		return
	}
	select {
	case b.queue <- job{urls: urls, payload: payload}:
	default:
		b.logger.Warn().Strs("urls", urls).Msg("webhook: fila cheia, disparo descartado")
	}
}

// Close drena a fila e encerra o worker.
func (b *BestEffort) Close() {
	b.once.Do(func() {
		close(b.queue)
	})
	b.wg.Wait()
}

func (b *BestEffort) run() {
	defer b.wg.Done()
	for j := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		res := b.dispatcher.Send(ctx, j.urls, j.payload)
		cancel()

		if !res.OK() {
			for _, o := range res.Outcomes {
				if o.Err != nil {
					b.logger.Warn().Err(o.Err).Str("url", o.URL).Msg("webhook: entrega falhou")
				} else {
					b.logger.Warn().Int("status", o.StatusCode).Str("url", o.URL).Msg("webhook: entrega falhou")
				}
			}
		}
	}
}

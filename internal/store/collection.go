package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutrimatic/plataforma/internal/cache"
	"github.com/nutrimatic/plataforma/internal/realtime"
)

// Row é o contrato mínimo das linhas sincronizadas: identidade própria
// e identificação da dona(o), usada para escopo de todas as operações.
type Row interface {
	RowID() string
	OwnerID() string
}

// Fetcher busca as linhas da dona(o) no backend, ordenadas da mais
// recente para a mais antiga.
type Fetcher[T Row] func(ctx context.Context, ownerID string) ([]T, error)

// Notifier recebe avisos destinados à interface (toast). Interface
// explícita injetada; nunca um global de ambiente.
type Notifier interface {
	Notify(ownerID, title, message string)
}

// Snapshot é a visão devolvida aos consumidores.
type Snapshot[T Row] struct {
	Items       []T
	Err         string
	Initialized bool
	FromCache   bool
}

// Options parametriza a coleção.
type Options[T Row] struct {
	// Entity nomeia a entidade; também é o prefixo da chave de cache.
	Entity string
	Fetch  Fetcher[T]
	Cache  *cache.Store
	Feed   *realtime.Feed
	// Notifier e InsertToast são opcionais; quando presentes, INSERTs
	// vindos do feed geram aviso.
	Notifier    Notifier
	InsertToast func(row T) (title, message string)
	Logger      zerolog.Logger
	// ReconcileTimeout limita o fetch de reconciliação em segundo plano.
	ReconcileTimeout time.Duration
}

// Collection mantém, por dona(o), o estado em memória de uma entidade:
// carga inicial cache-first, merge de eventos do feed e patches
// otimistas pós-escrita.
type Collection[T Row] struct {
	entity           string
	fetch            Fetcher[T]
	cache            *cache.Store
	notifier         Notifier
	insertToast      func(T) (string, string)
	logger           zerolog.Logger
	reconcileTimeout time.Duration

	mu     sync.Mutex
	owners map[string]*ownerState[T]

	unsubscribe func()
	wg          sync.WaitGroup
}

type ownerState[T Row] struct {
	items       []T
	err         string
	initialized bool
}

// NewCollection cria a coleção e assina o feed quando disponível.
func NewCollection[T Row](opts Options[T]) *Collection[T] {
	c := &Collection[T]{
		entity:           opts.Entity,
		fetch:            opts.Fetch,
		cache:            opts.Cache,
		notifier:         opts.Notifier,
		insertToast:      opts.InsertToast,
		logger:           opts.Logger,
		reconcileTimeout: opts.ReconcileTimeout,
		owners:           make(map[string]*ownerState[T]),
	}
	if c.reconcileTimeout <= 0 {
		c.reconcileTimeout = 10 * time.Second
	}
	if opts.Feed != nil {
		c.unsubscribe = opts.Feed.Subscribe(opts.Entity, c.Apply)
	}
	return c
}

// Close cancela a assinatura do feed e espera reconciliações em curso.
func (c *Collection[T]) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.wg.Wait()
}

// Load devolve o snapshot da dona(o), seguindo a política cache-first:
// dona vazia não é erro (coleção vazia, sem rede); cache fresco serve
// na hora e reconcilia em segundo plano; sem cache fresco busca agora;
// falha de busca preserva dados velhos quando existirem.
func (c *Collection[T]) Load(ctx context.Context, ownerID string) Snapshot[T] {
	if ownerID == "" {
		return Snapshot[T]{Items: []T{}, Initialized: true}
	}
	if c.fetch == nil {
		// Backend não configurado: modo degradado, estado vazio utilizável.
		return Snapshot[T]{Items: []T{}, Initialized: true}
	}

	c.mu.Lock()
	state := c.owners[ownerID]
	if state != nil && state.initialized {
		snap := snapshotOf(state)
		c.mu.Unlock()
		return snap
	}
	c.mu.Unlock()

	var cached []T
	cacheFound, cacheFresh := false, false
	if c.cache != nil {
		found, fresh, err := c.cache.Get(ctx, c.entity, ownerID, &cached)
		if err != nil {
			c.logger.Warn().Err(err).Str("entity", c.entity).Msg("cache ilegível")
		} else {
			cacheFound, cacheFresh = found, fresh
		}
	}

	if cacheFound && cacheFresh {
		snap := c.install(ownerID, cached, "", true)
		c.reconcileLater(ownerID)
		return snap
	}

	rows, err := c.fetch(ctx, ownerID)
	if err != nil {
		c.logger.Error().Err(err).Str("entity", c.entity).Msg("carga inicial falhou")
		if cacheFound {
			// Fallback degradado: melhor dado velho do que nenhum.
			return c.install(ownerID, cached, err.Error(), true)
		}
		return c.installError(ownerID, err.Error())
	}

	snap := c.install(ownerID, rows, "", false)
	c.writeCache(ctx, ownerID, snap.Items)
	return snap
}

// Reload força nova busca (ação de retry da interface).
func (c *Collection[T]) Reload(ctx context.Context, ownerID string) Snapshot[T] {
	if ownerID == "" || c.fetch == nil {
		return Snapshot[T]{Items: []T{}, Initialized: true}
	}
	rows, err := c.fetch(ctx, ownerID)
	if err != nil {
		c.mu.Lock()
		state := c.owners[ownerID]
		if state != nil {
			state.err = err.Error()
			snap := snapshotOf(state)
			c.mu.Unlock()
			return snap
		}
		c.mu.Unlock()
		return c.installError(ownerID, err.Error())
	}
	snap := c.install(ownerID, rows, "", false)
	c.writeCache(ctx, ownerID, snap.Items)
	return snap
}

// Apply faz merge de um evento do feed no estado em memória. Eventos
// repetidos são idempotentes. Donas sem estado materializado são
// ignoradas; a próxima carga busca tudo.
func (c *Collection[T]) Apply(event realtime.Event) {
	var row T
	payload := event.New
	if event.Type == realtime.EventDelete {
		payload = event.Old
	}
	if len(payload) == 0 {
		return
	}
	if err := json.Unmarshal(payload, &row); err != nil {
		c.logger.Warn().Err(err).Str("entity", c.entity).Msg("evento ilegível")
		return
	}

	ownerID := row.OwnerID()

	c.mu.Lock()
	state := c.owners[ownerID]
	if state == nil || !state.initialized {
		c.mu.Unlock()
		return
	}

	switch event.Type {
	case realtime.EventInsert:
		if idx := indexOf(state.items, row.RowID()); idx >= 0 {
			state.items[idx] = row
		} else {
			state.items = append([]T{row}, state.items...)
		}
	case realtime.EventUpdate:
		if idx := indexOf(state.items, row.RowID()); idx >= 0 {
			state.items[idx] = row
		}
	case realtime.EventDelete:
		if idx := indexOf(state.items, row.RowID()); idx >= 0 {
			state.items = append(state.items[:idx], state.items[idx+1:]...)
		}
	}
	c.mu.Unlock()

	if event.Type == realtime.EventInsert && c.notifier != nil && c.insertToast != nil {
		title, message := c.insertToast(row)
		c.notifier.Notify(ownerID, title, message)
	}
}

// Patch substitui a linha pelo resultado de fn após uma escrita
// confirmada no backend (atualização otimista do estado local).
func (c *Collection[T]) Patch(ownerID, id string, fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.owners[ownerID]
	if state == nil {
		return
	}
	if idx := indexOf(state.items, id); idx >= 0 {
		state.items[idx] = fn(state.items[idx])
	}
}

// Prepend insere a linha no topo do estado local (ordem mais recente
// primeiro), deduplicada por id.
func (c *Collection[T]) Prepend(ownerID string, row T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.ensure(ownerID)
	if idx := indexOf(state.items, row.RowID()); idx >= 0 {
		state.items[idx] = row
		return
	}
	state.items = append([]T{row}, state.items...)
}

// Remove retira a linha do estado local.
func (c *Collection[T]) Remove(ownerID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.owners[ownerID]
	if state == nil {
		return
	}
	if idx := indexOf(state.items, id); idx >= 0 {
		state.items = append(state.items[:idx], state.items[idx+1:]...)
	}
}

func (c *Collection[T]) reconcileLater(ownerID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.reconcileTimeout)
		defer cancel()

		rows, err := c.fetch(ctx, ownerID)
		if err != nil {
			c.logger.Warn().Err(err).Str("entity", c.entity).Msg("reconciliação falhou")
			return
		}
		// Substituição integral: um fetch atrasado pode regredir estado
		// que o feed já atualizou. Corrida conhecida e aceita.
		snap := c.install(ownerID, rows, "", false)
		c.writeCache(ctx, ownerID, snap.Items)
	}()
}

// WaitReconcile espera reconciliações pendentes; útil em testes.
func (c *Collection[T]) WaitReconcile() {
	c.wg.Wait()
}

func (c *Collection[T]) writeCache(ctx context.Context, ownerID string, rows []T) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, c.entity, ownerID, rows); err != nil {
		c.logger.Warn().Err(err).Str("entity", c.entity).Msg("escrita de cache falhou")
	}
}

func (c *Collection[T]) install(ownerID string, rows []T, errMsg string, fromCache bool) Snapshot[T] {
	scoped := rows[:0:0]
	for _, row := range rows {
		// Nenhuma linha de outra dona(o) entra no estado nem no cache,
		// mesmo que o backend devolva a mais.
		if row.OwnerID() == ownerID {
			scoped = append(scoped, row)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.ensure(ownerID)
	state.items = scoped
	state.err = errMsg
	state.initialized = true
	snap := snapshotOf(state)
	snap.FromCache = fromCache
	return snap
}

func (c *Collection[T]) installError(ownerID string, errMsg string) Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.ensure(ownerID)
	state.err = errMsg
	state.initialized = true
	return snapshotOf(state)
}

// SnapshotNow devolve o estado atual sem disparar cargas.
func (c *Collection[T]) SnapshotNow(ownerID string) Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.owners[ownerID]
	if state == nil {
		return Snapshot[T]{Items: []T{}}
	}
	return snapshotOf(state)
}

func (c *Collection[T]) ensure(ownerID string) *ownerState[T] {
	state := c.owners[ownerID]
	if state == nil {
		state = &ownerState[T]{}
		c.owners[ownerID] = state
	}
	return state
}

func snapshotOf[T Row](state *ownerState[T]) Snapshot[T] {
	items := make([]T, len(state.items))
	copy(items, state.items)
	return Snapshot[T]{Items: items, Err: state.err, Initialized: state.initialized}
}

func indexOf[T Row](items []T, id string) int {
	for i, item := range items {
		if item.RowID() == id {
			return i
		}
	}
	return -1
}
